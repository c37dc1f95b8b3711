package collector

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSessionTripsAfterThresholdConsecutiveFailures(t *testing.T) {
	// A plain HTTP server that never upgrades the connection: every dial
	// attempt fails, driving the reconnect/backoff/trip path.
	srv := httptest.NewServer(nil)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	s := &Session{
		Module:        "bybit",
		URL:           url,
		Log:           zap.NewNop(),
		Handle:        func(ctx context.Context, frame []byte) error { return nil },
		TripThreshold: 2,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	metrics := s.Run(ctx)

	require.Equal(t, StateTripped, s.CurrentState())
	assert.Equal(t, true, metrics["circuit_tripped"])
	assert.GreaterOrEqual(t, metrics["reconnecting"], 2)
}

func TestSessionClosesCleanlyOnContextCancellation(t *testing.T) {
	srv := httptest.NewServer(nil)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	s := &Session{
		Module:        "bybit",
		URL:           url,
		Log:           zap.NewNop(),
		Handle:        func(ctx context.Context, frame []byte) error { return nil },
		TripThreshold: 1000, // effectively disabled so cancellation wins the race
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	s.Run(ctx)
	assert.Equal(t, StateClosed, s.CurrentState())
}
