package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderBookTopKAndSizeZeroRemoves(t *testing.T) {
	ob := NewOrderBook("tBTCUSD", 2)
	ob.Apply("bid", 100, 1)
	ob.Apply("bid", 101, 2)
	ob.Apply("bid", 99, 3)

	bids := ob.Bids()
	assert.Len(t, bids, 2)
	assert.Equal(t, 101.0, bids[0].Price)
	assert.Equal(t, 100.0, bids[1].Price)

	ob.Apply("bid", 101, 0)
	bids = ob.Bids()
	assert.Len(t, bids, 2)
	assert.Equal(t, 100.0, bids[0].Price)
	assert.Equal(t, 99.0, bids[1].Price)
}

func TestOrderBookAsksSortedAscending(t *testing.T) {
	ob := NewOrderBook("tBTCUSD", 5)
	ob.Apply("ask", 105, 1)
	ob.Apply("ask", 102, 1)
	asks := ob.Asks()
	assert.Equal(t, 102.0, asks[0].Price)
	assert.Equal(t, 105.0, asks[1].Price)
}

func TestOrderBookSnapshotInterval(t *testing.T) {
	ob := NewOrderBook("tBTCUSD", 5)
	now := time.Now()
	assert.True(t, ob.ShouldSnapshot(now, 60*time.Second))
	ob.MarkSnapshotted(now)
	assert.False(t, ob.ShouldSnapshot(now.Add(10*time.Second), 60*time.Second))
	assert.True(t, ob.ShouldSnapshot(now.Add(61*time.Second), 60*time.Second))
}
