// Package bus implements the bus history persister and the live-stream
// bridge backing the operational SSE endpoints (spec.md §4.10).
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/jhacksman/feedeater/internal/broker"
	"github.com/jhacksman/feedeater/internal/normalize"
	"github.com/jhacksman/feedeater/internal/store"
)

// DurableConsumer is the JetStream durable name the persister binds, kept
// stable across restarts so replay resumes rather than restarting.
const DurableConsumer = "bus-history-persister"

// Persister subscribes to every module's messageCreated subject and
// copies each envelope into bus_messages, indexed by messageId for
// dedup (spec.md §3 "Bus history row").
type Persister struct {
	Broker *broker.Broker
	Store  *store.Store
	Log    *zap.Logger
}

// Run subscribes to the wildcard messageCreated subject and persists
// every envelope until ctx is cancelled.
func (p *Persister) Run(ctx context.Context) error {
	envelopes, err := p.Broker.Subscribe(ctx, normalize.WildcardMessageCreated, DurableConsumer)
	if err != nil {
		return fmt.Errorf("bus: subscribe to %s: %w", normalize.WildcardMessageCreated, err)
	}

	for env := range envelopes {
		if err := p.persist(ctx, env); err != nil {
			p.Log.Error("bus: persist envelope failed", zap.String("subject", env.Subject), zap.Error(err))
			continue // a single bad envelope must not stop the persister
		}
		env.Ack()
	}
	return nil
}

func (p *Persister) persist(ctx context.Context, env broker.Envelope) error {
	var created normalize.MessageCreated
	if err := json.Unmarshal(env.Data, &created); err != nil {
		return fmt.Errorf("unmarshal MessageCreated: %w", err)
	}

	// context_summary_short is populated by the context engine's own
	// upsert path, not the persister; left null here.
	return p.Store.Exec(ctx, `
		INSERT INTO bus_messages (message_id, subject, received_at, context_summary_short, data)
		VALUES ($1, $2, now(), NULL, $3::jsonb)
		ON CONFLICT (message_id) DO NOTHING
	`, created.Message.ID, env.Subject, string(env.Data))
}
