package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactStripsSecretValues(t *testing.T) {
	in := []Setting{
		{Module: "rss", Key: "feed_url", Value: "https://example.com/feed", IsSecret: false},
		{Module: "rss", Key: "api_key", Value: "sekret", IsSecret: true},
	}
	out := Redact(in)
	assert.Equal(t, "https://example.com/feed", out[0].Value)
	assert.Equal(t, "", out[1].Value)
	// Redact must not mutate the input slice's values.
	assert.Equal(t, "sekret", in[1].Value)
}

func TestCacheKeyIsNamespacedByModule(t *testing.T) {
	assert.Equal(t, "rss/feed_url", cacheKey("rss", "feed_url"))
	assert.NotEqual(t, cacheKey("rss", "feed_url"), cacheKey("bitfinex", "feed_url"))
}
