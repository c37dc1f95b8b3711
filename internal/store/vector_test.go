package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorRoundTrip(t *testing.T) {
	v := Vector{0.1, 0.2, 0.3}
	parsed, err := ParseVector(v.String())
	require.NoError(t, err)
	require.Len(t, parsed, 3)
	for i := range v {
		assert.InDelta(t, v[i], parsed[i], 1e-6)
	}
}

func TestCosineDistanceIdentical(t *testing.T) {
	v := Vector{1, 0, 0}
	assert.InDelta(t, 0, CosineDistance(v, v), 1e-9)
}

func TestCosineDistanceOrthogonal(t *testing.T) {
	a := Vector{1, 0}
	b := Vector{0, 1}
	assert.InDelta(t, 1, CosineDistance(a, b), 1e-9)
}

func TestCosineDistanceEmpty(t *testing.T) {
	assert.Equal(t, 1.0, CosineDistance(nil, Vector{1, 2}))
}
