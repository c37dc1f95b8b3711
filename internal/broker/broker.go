// Package broker wraps a NATS JetStream connection with the thin typed
// publish/subscribe contract FeedEater's collectors and bus components
// share (spec.md §4.1).
package broker

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// StreamMessages is the durable JetStream stream that captures every
// canonical envelope published by any module.
const StreamMessages = "FEEDEATER_EVENTS"

// SubjectAll is the subject filter bound to StreamMessages.
const SubjectAll = "feedeater.>"

// Broker is a typed wrapper around a NATS connection and JetStream context.
type Broker struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
	log  *zap.Logger
}

// Connect dials NATS and initializes a JetStream context, matching the
// teacher's natsclient.NewClient: retry-on-failed-connect, unlimited
// reconnect attempts by the client library itself (the broker connection
// is a shared long-lived resource, not a per-module session).
func Connect(url string, log *zap.Logger) (*Broker, error) {
	nc, err := nats.Connect(url, nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("broker: connect to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("broker: init jetstream: %w", err)
	}

	log.Info("broker connected", zap.String("url", url))
	return &Broker{Conn: nc, JS: js, log: log}, nil
}

// ProvisionStream idempotently ensures the FEEDEATER_EVENTS stream exists.
func (b *Broker) ProvisionStream() error {
	_, err := b.JS.StreamInfo(StreamMessages)
	if err == nil {
		b.log.Info("broker stream already exists", zap.String("stream", StreamMessages))
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return fmt.Errorf("broker: stream info: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:      StreamMessages,
		Subjects:  []string{SubjectAll},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
	}
	if _, err := b.JS.AddStream(cfg); err != nil {
		return fmt.Errorf("broker: create stream: %w", err)
	}
	b.log.Info("broker stream provisioned", zap.String("stream", StreamMessages))
	return nil
}

// Publish is fire-and-forget: failure is logged but never returned to the
// caller as fatal, per spec.md §4.1 ("failure is logged but non-fatal").
func (b *Broker) Publish(subject string, payload []byte) {
	if _, err := b.JS.PublishAsync(subject, payload); err != nil {
		b.log.Warn("broker publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

// Envelope pairs a subject with its raw payload, as delivered to subscribers.
type Envelope struct {
	Subject string
	Data    []byte
	ack     func()
}

// Ack acknowledges the underlying JetStream message, if applicable.
func (e Envelope) Ack() {
	if e.ack != nil {
		e.ack()
	}
}

// Subscribe opens a durable pull subscription on subject and returns a
// channel of envelopes that closes when ctx is cancelled. Callers should
// call Envelope.Ack() once an envelope has been durably processed.
func (b *Broker) Subscribe(ctx context.Context, subject, durable string) (<-chan Envelope, error) {
	sub, err := b.JS.PullSubscribe(subject, durable, nats.BindStream(StreamMessages))
	if err != nil {
		return nil, fmt.Errorf("broker: pull subscribe %s: %w", subject, err)
	}

	out := make(chan Envelope)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			msgs, err := sub.Fetch(20, nats.Context(ctx))
			if err != nil {
				if err == nats.ErrTimeout || ctx.Err() != nil {
					continue
				}
				b.log.Error("broker fetch error", zap.String("subject", subject), zap.Error(err))
				continue
			}
			for _, m := range msgs {
				msg := m
				select {
				case out <- Envelope{Subject: msg.Subject, Data: msg.Data, ack: func() { msg.Ack() }}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// SubjectFor returns the canonical "<root>.<module>.<event>" subject string.
func (b *Broker) SubjectFor(module, event string) string {
	return fmt.Sprintf("feedeater.%s.%s", module, event)
}

// Close drains and closes the NATS connection, flushing pending publish
// acknowledgments before tearing the connection down.
func (b *Broker) Close() {
	if b.Conn == nil {
		return
	}
	if err := b.Conn.Drain(); err != nil {
		b.Conn.Close()
	}
}
