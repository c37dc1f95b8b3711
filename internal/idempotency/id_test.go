package idempotency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageIDIsPure(t *testing.T) {
	a := MessageID("bitfinex", "bitfinex:tBTCUSD:tradeId=12345")
	b := MessageID("bitfinex", "bitfinex:tBTCUSD:tradeId=12345")
	assert.Equal(t, a, b)
}

func TestMessageIDDiffersByModule(t *testing.T) {
	a := MessageID("bitfinex", "same-key")
	b := MessageID("polymarket", "same-key")
	assert.NotEqual(t, a, b)
}

func TestMessageIDDiffersBySourceID(t *testing.T) {
	a := MessageID("rss", "key-1")
	b := MessageID("rss", "key-2")
	assert.NotEqual(t, a, b)
}

func TestSourceID(t *testing.T) {
	assert.Equal(t, "bitfinex:trade:tBTCUSD:12345", SourceID("bitfinex", "trade", "tBTCUSD", "12345"))
}
