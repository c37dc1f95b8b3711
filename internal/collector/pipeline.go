package collector

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/jhacksman/feedeater/internal/broker"
	"github.com/jhacksman/feedeater/internal/normalize"
	"github.com/jhacksman/feedeater/internal/store"
)

// Pipeline implements the shared per-event persistence path (spec.md
// §4.5(c)): insert raw row on conflict-do-nothing, publish on fresh
// insert, optionally upsert an embedding. A single event's failure at any
// step is contained here and never propagates to the caller's loop.
type Pipeline struct {
	Module string
	Store  *store.Store
	Broker *broker.Broker
	Log    *zap.Logger
}

// PublishPolicy controls whether a canonical event is emitted only on a
// fresh raw-row insert, or unconditionally. FeedEater standardizes on
// PublishOnInsert for every module (see design notes on the historical
// inconsistency this resolves).
type PublishPolicy int

const (
	PublishOnInsert PublishPolicy = iota
	PublishAlways
)

// Ingest runs one event through the pipeline: raw insert, then publish if
// policy and freshness allow, then an optional embedding upsert. It
// returns whether the raw row was a fresh insert (false on conflict), so
// callers can distinguish "new data" from "already seen" for their own
// sweep-level metrics (spec.md §8 S1, e.g. rss's feeds_unchanged).
func (p *Pipeline) Ingest(ctx context.Context, namespace, sourceID string, rawData any, msg normalize.Message, policy PublishPolicy, embedding store.Vector) (fresh bool) {
	contextKey := ""
	if msg.ContextRef != nil {
		contextKey = msg.ContextRef.SourceKey
	}
	fresh, err := p.insertRaw(ctx, namespace, msg.ID, sourceID, contextKey, rawData)
	if err != nil {
		p.Log.Error("collector: raw insert failed", zap.String("module", p.Module), zap.String("id", msg.ID), zap.Error(err))
		return false
	}

	if !fresh && policy == PublishOnInsert {
		return fresh
	}

	if err := msg.Validate(p.Module); err != nil {
		p.Log.Warn("collector: message failed validation, skipping publish", zap.String("module", p.Module), zap.Error(err))
		return fresh
	}

	p.publish(msg)

	if len(embedding) > 0 {
		if err := p.upsertEmbedding(ctx, namespace, msg.ID, embedding); err != nil {
			p.Log.Error("collector: embedding upsert failed", zap.String("module", p.Module), zap.String("id", msg.ID), zap.Error(err))
		}
	}
	return fresh
}

func (p *Pipeline) insertRaw(ctx context.Context, namespace, id, sourceID, contextKey string, rawData any) (fresh bool, err error) {
	payload, err := json.Marshal(rawData)
	if err != nil {
		return false, fmt.Errorf("collector: marshal raw event: %w", err)
	}

	sql := fmt.Sprintf(`
		INSERT INTO %s.raw_events (id, source_id, context_key, data)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (id) DO NOTHING
		RETURNING id
	`, namespace)

	rows, err := p.Store.Query(ctx, sql, id, sourceID, contextKey, string(payload))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	fresh = rows.Next()
	return fresh, rows.Err()
}

func (p *Pipeline) publish(msg normalize.Message) {
	event := normalize.NewMessageCreated(msg)
	payload, err := json.Marshal(event)
	if err != nil {
		p.Log.Error("collector: marshal MessageCreated failed", zap.String("module", p.Module), zap.Error(err))
		return
	}
	p.Broker.Publish(normalize.SubjectMessageCreated(p.Module), payload)
}

func (p *Pipeline) upsertEmbedding(ctx context.Context, namespace, recordID string, embedding store.Vector) error {
	sql := fmt.Sprintf(`
		INSERT INTO %s.%s_embeddings (record_id, embedding, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (record_id) DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = now()
	`, namespace, p.Module)
	return p.Store.Exec(ctx, sql, recordID, embedding.String())
}
