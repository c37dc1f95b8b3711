package module

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValuesBoolCoercion(t *testing.T) {
	v := Values{"enabled": "true", "disabled": "0"}
	b, err := v.Bool("m", "enabled", false)
	require.NoError(t, err)
	assert.True(t, b)

	b, err = v.Bool("m", "disabled", true)
	require.NoError(t, err)
	assert.False(t, b)

	_, err = v.Bool("m", "missing", true)
	require.NoError(t, err)
}

func TestValuesBoolInvalid(t *testing.T) {
	v := Values{"flag": "maybe"}
	_, err := v.Bool("m", "flag", false)
	assert.Error(t, err)
}

func TestValuesPositiveIntRejectsZero(t *testing.T) {
	v := Values{"threshold": "0"}
	_, err := v.PositiveInt("m", "threshold", 1)
	assert.Error(t, err)
}

func TestValuesPositiveIntRejectsNegative(t *testing.T) {
	v := Values{"threshold": "-5"}
	_, err := v.PositiveInt("m", "threshold", 1)
	assert.Error(t, err)
}

func TestValuesRequireStringMissing(t *testing.T) {
	v := Values{}
	_, err := v.RequireString("m", "feed_url")
	assert.Error(t, err)
	var pe *ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestValuesFloatDefault(t *testing.T) {
	v := Values{}
	f, err := v.Float("m", "threshold", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.5, f)
}
