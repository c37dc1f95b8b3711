package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandleAggregatorBucketsAndFlushes(t *testing.T) {
	a := NewCandleAggregator(60_000) // 1-minute buckets

	assert.Nil(t, a.Trade("tBTCUSD", 0, 100, 1))
	assert.Nil(t, a.Trade("tBTCUSD", 10_000, 105, 2))
	assert.Nil(t, a.Trade("tBTCUSD", 20_000, 95, 1))

	flushed := a.Trade("tBTCUSD", 65_000, 110, 3) // lands in the next bucket
	require.NotNil(t, flushed)

	assert.Equal(t, 100.0, flushed.Open)
	assert.Equal(t, 95.0, flushed.Close)
	assert.Equal(t, 105.0, flushed.High)
	assert.Equal(t, 95.0, flushed.Low)
	assert.Equal(t, 4.0, flushed.Volume)
	assert.Equal(t, int64(3), flushed.TradeCount)
}

func TestCandleAggregatorFlushAll(t *testing.T) {
	a := NewCandleAggregator(60_000)
	a.Trade("tBTCUSD", 0, 100, 1)
	a.Trade("tETHUSD", 0, 2000, 5)

	flushed := a.Flush()
	assert.Len(t, flushed, 2)
	assert.Empty(t, a.current)
}
