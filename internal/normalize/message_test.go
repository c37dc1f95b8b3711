package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageValidate(t *testing.T) {
	m := Message{
		ID:     "rss:abc123",
		Source: Source{Module: "rss"},
		Tags:   map[string]any{"feed": "example.com", "count": 3, "fresh": true},
	}
	require.NoError(t, m.Validate("rss"))
}

func TestMessageValidateModuleMismatch(t *testing.T) {
	m := Message{ID: "x", Source: Source{Module: "rss"}}
	err := m.Validate("bitfinex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match publishing module")
}

func TestMessageValidateNonScalarTag(t *testing.T) {
	m := Message{
		ID:     "x",
		Source: Source{Module: "rss"},
		Tags:   map[string]any{"bad": []string{"nope"}},
	}
	err := m.Validate("rss")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-scalar")
}

func TestContextValidateSummaryShortLength(t *testing.T) {
	c := Context{
		OwnerModule:  "polymarket",
		SourceKey:    "market-1",
		SummaryShort: strings.Repeat("a", SummaryShortMaxLen),
	}
	require.NoError(t, c.Validate())

	c.SummaryShort += "x"
	require.Error(t, c.Validate())
}

func TestSubjectFor(t *testing.T) {
	assert.Equal(t, "feedeater.rss.messageCreated", SubjectMessageCreated("rss"))
	assert.Equal(t, "feedeater.rss.contextUpdated", SubjectContextUpdated("rss"))
	assert.Equal(t, "feedeater.rss.log", SubjectLog("rss"))
	assert.Equal(t, "feedeater.module.dead.rss", SubjectDead("rss"))
}
