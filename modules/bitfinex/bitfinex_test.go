package bitfinex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSplitSymbolsTrimsAndDropsEmpty(t *testing.T) {
	got := splitSymbols(" tBTCUSD, tETHUSD ,, tLTCUSD")
	assert.Equal(t, []string{"tBTCUSD", "tETHUSD", "tLTCUSD"}, got)
}

func TestSplitSymbolsEmptyInput(t *testing.T) {
	assert.Empty(t, splitSymbols(""))
}

func TestHandleEventBindsChannel(t *testing.T) {
	c := New(nil, nil, nil, zap.NewNop(), nil)
	frame := []byte(`{"event":"subscribed","channel":"trades","chanId":17,"symbol":"tBTCUSD"}`)
	require.NoError(t, c.handleEvent(frame))

	c.mu.Lock()
	binding, ok := c.channels[17]
	c.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, "tBTCUSD", binding.symbol)
	assert.Equal(t, "trades", binding.kind)
}

func TestHandleEventIgnoresNonSubscribedEvents(t *testing.T) {
	c := New(nil, nil, nil, zap.NewNop(), nil)
	require.NoError(t, c.handleEvent([]byte(`{"event":"info","version":2}`)))
	assert.Empty(t, c.channels)
}
