package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestScheduler() *Scheduler {
	return New(nil, zap.NewNop())
}

func TestRunNowExecutesRegisteredJob(t *testing.T) {
	s := newTestScheduler()
	var calls int32
	done := make(chan struct{}, 1)
	err := s.Register("rss", "poll", "rss", "", time.Second, 1, func(ctx context.Context) (map[string]any, error) {
		atomic.AddInt32(&calls, 1)
		done <- struct{}{}
		return map[string]any{"inserted": 3}, nil
	})
	require.NoError(t, err)

	_, err = s.RunNow("rss", "poll")
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
	// allow the worker goroutine to finish persisting status after signaling done
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	status, _, _, ok := s.StatusOf("rss", "poll")
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, status)
}

func TestRunNowUnknownJob(t *testing.T) {
	s := newTestScheduler()
	_, err := s.RunNow("ghost", "nope")
	assert.Error(t, err)
}

func TestSingleFlightSerializesInstances(t *testing.T) {
	s := newTestScheduler()
	var running int32
	var maxConcurrent int32

	err := s.Register("bybit", "stream", "bybit", "", time.Second, 1, func(ctx context.Context) (map[string]any, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			cur := atomic.LoadInt32(&maxConcurrent)
			if n <= cur || atomic.CompareAndSwapInt32(&maxConcurrent, cur, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil, nil
	})
	require.NoError(t, err)

	_, err = s.RunNow("bybit", "stream")
	require.NoError(t, err)
	_, err = s.RunNow("bybit", "stream")
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxConcurrent), int32(1))
}

func TestTickCoalescesWhileRunning(t *testing.T) {
	s := newTestScheduler()
	var calls int32
	block := make(chan struct{})

	err := s.Register("poly", "sync", "poly", "", time.Second, 1, func(ctx context.Context) (map[string]any, error) {
		atomic.AddInt32(&calls, 1)
		<-block
		return nil, nil
	})
	require.NoError(t, err)

	key := jobKey{module: "poly", job: "sync"}
	s.tick(key) // enters running
	time.Sleep(10 * time.Millisecond)
	s.tick(key) // coalesced: already running
	s.tick(key) // still coalesced
	close(block)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
