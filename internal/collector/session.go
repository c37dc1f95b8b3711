package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jhacksman/feedeater/internal/broker"
)

// State is a streaming session's transport state (spec.md §4.5 state
// machine): idle → connecting → open → {open | reconnecting} → closed,
// with reconnecting → tripped as the terminal failure path.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
	StateTripped      State = "tripped"
)

// DefaultTripThreshold is the consecutive-failure count at which the
// circuit breaker trips (spec.md §4.5 "e.g., 10 consecutive failures").
const DefaultTripThreshold = 10

// DefaultKeepaliveInterval is the WebSocket ping period where the
// protocol supports one (spec.md §5 "keepalive ping with 20s period").
const DefaultKeepaliveInterval = 20 * time.Second

// FrameHandler processes one decoded WebSocket frame. Returning an error
// logs it at warn and continues the session — a single malformed frame
// must never end the session (spec.md §4.5(c)).
type FrameHandler func(ctx context.Context, frame []byte) error

// Session runs one streaming collector invocation: connect, read frames
// until budget exhaustion or cancellation, reconnecting with exponential
// backoff on disconnect, tripping a circuit breaker after repeated
// failures.
type Session struct {
	Module        string
	URL           string
	Broker        *broker.Broker
	Log           *zap.Logger
	Handle        FrameHandler
	// OnOpen runs once per successful connect, before the read loop starts —
	// e.g. to send a protocol-level subscribe frame. A nil OnOpen is a no-op.
	OnOpen        func(conn *websocket.Conn) error
	TripThreshold int           // defaults to DefaultTripThreshold if zero
	MaxBackoff    time.Duration // defaults to 30s if zero
	Keepalive     time.Duration // defaults to DefaultKeepaliveInterval if zero

	state State
}

// Run drives the session's state machine until ctx is cancelled (the
// invocation's wall-clock budget) or the circuit breaker trips. It
// returns accumulated metrics either way.
func (s *Session) Run(ctx context.Context) Metrics {
	metrics := Metrics{}
	trip := s.TripThreshold
	if trip <= 0 {
		trip = DefaultTripThreshold
	}
	maxBackoff := s.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	keepalive := s.Keepalive
	if keepalive <= 0 {
		keepalive = DefaultKeepaliveInterval
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = maxBackoff
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0 // the invocation's ctx deadline governs overall duration

	consecutiveFailures := 0
	s.state = StateIdle

	for {
		if ctx.Err() != nil {
			s.state = StateClosed
			return metrics
		}

		s.state = StateConnecting
		conn, err := s.connect(ctx)
		if err != nil {
			consecutiveFailures++
			metrics.Inc("reconnecting", 1)
			s.Log.Warn("collector: connect failed", zap.String("module", s.Module), zap.Error(err), zap.Int("attempt", consecutiveFailures))
			if consecutiveFailures >= trip {
				s.trip(ctx, metrics)
				s.state = StateTripped
				return metrics
			}
			s.state = StateReconnecting
			if !s.sleepBackoff(ctx, bo) {
				s.state = StateClosed
				return metrics
			}
			continue
		}

		consecutiveFailures = 0
		bo.Reset()
		s.state = StateOpen
		metrics.Inc("connections", 1)

		if s.OnOpen != nil {
			if err := s.OnOpen(conn); err != nil {
				s.Log.Warn("collector: on-open hook failed", zap.String("module", s.Module), zap.Error(err))
				conn.Close()
				s.state = StateReconnecting
				if !s.sleepBackoff(ctx, bo) {
					s.state = StateClosed
					return metrics
				}
				continue
			}
		}

		readErr := s.readLoop(ctx, conn, keepalive, metrics)
		conn.Close()
		if readErr == nil {
			s.state = StateClosed
			return metrics
		}
		s.state = StateReconnecting
	}
}

func (s *Session) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("collector: dial %s: %w", s.URL, err)
	}
	return conn, nil
}

// readLoop pumps frames off conn until budget exhaustion, cancellation,
// or a read error (triggering reconnect). Frame decode/processing errors
// are contained per spec.md §4.5(c): logged, loop continues.
func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn, keepalive time.Duration, metrics Metrics) error {
	type frameOrErr struct {
		data []byte
		err  error
	}
	frames := make(chan frameOrErr, 16)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			select {
			case frames <- frameOrErr{data: data, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil // budget exhausted or process shutdown: clean close, no reconnect
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case f := <-frames:
			if f.err != nil {
				metrics.Inc("disconnects", 1)
				return f.err
			}
			if err := s.Handle(ctx, f.data); err != nil {
				metrics.Inc("decode_errors", 1)
				s.Log.Warn("collector: frame processing failed", zap.String("module", s.Module), zap.Error(err))
				continue
			}
			metrics.Inc("frames_processed", 1)
		}
	}
}

func (s *Session) sleepBackoff(ctx context.Context, bo *backoff.ExponentialBackOff) bool {
	select {
	case <-time.After(bo.NextBackOff()):
		return true
	case <-ctx.Done():
		return false
	}
}

// trip publishes the dead-module notification exactly once and marks the
// breaker open for the remainder of this invocation (spec.md §4.5(b),
// §8 "exactly once").
func (s *Session) trip(ctx context.Context, metrics Metrics) {
	if s.Broker != nil {
		subject := fmt.Sprintf("feedeater.module.dead.%s", s.Module)
		payload := fmt.Sprintf(`{"module":%q,"at":%q}`, s.Module, time.Now().UTC().Format(time.RFC3339))
		s.Broker.Publish(subject, []byte(payload))
	}
	metrics.Set("circuit_tripped", true)
	s.Log.Error("collector: circuit breaker tripped", zap.String("module", s.Module))
}

// CurrentState reports the session's transport state, mainly for tests
// and diagnostics.
func (s *Session) CurrentState() State { return s.state }
