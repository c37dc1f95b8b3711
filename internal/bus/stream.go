package bus

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jhacksman/feedeater/internal/broker"
	"github.com/jhacksman/feedeater/internal/store"
)

// HistoryRow is one persisted bus_messages record.
type HistoryRow struct {
	MessageID string
	Subject   string
	ReceivedAt time.Time
	Data      json.RawMessage
}

// History queries persisted envelopes from the last sinceMinutes,
// optionally filtered by module/stream/free-text query, newest first,
// capped at limit (spec.md §4.10 "GET /api/bus/history").
func History(ctx context.Context, st *store.Store, sinceMinutes, limit int, module, streamFilter, q string) ([]HistoryRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	sql := `
		SELECT message_id, subject, received_at, data
		FROM bus_messages
		WHERE received_at >= now() - ($1 || ' minutes')::interval
	`
	args := []any{sinceMinutes}
	if module != "" {
		args = append(args, "feedeater."+module+".%")
		sql += " AND subject LIKE $" + strconv.Itoa(len(args))
	}
	if streamFilter != "" {
		args = append(args, "%"+streamFilter+"%")
		sql += " AND data->>'stream' ILIKE $" + strconv.Itoa(len(args))
	}
	if q != "" {
		args = append(args, "%"+q+"%")
		sql += " AND data::text ILIKE $" + strconv.Itoa(len(args))
	}
	args = append(args, limit)
	sql += " ORDER BY received_at DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := st.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var r HistoryRow
		var data []byte
		if err := rows.Scan(&r.MessageID, &r.Subject, &r.ReceivedAt, &data); err != nil {
			return nil, err
		}
		r.Data = data
		out = append(out, r)
	}
	return out, rows.Err()
}

// LiveBridge streams broker envelopes to a single SSE consumer, deduping
// against a history slice it has already sent (spec.md §4.10, §8 S6).
type LiveBridge struct {
	Broker *broker.Broker
	Log    *zap.Logger
}

// Stream sends history (already deduplicated by the caller) then bridges
// live envelopes matching subjectFilter to sink until ctx is cancelled.
// Envelopes whose message id is already present in seen are dropped.
func (b *LiveBridge) Stream(ctx context.Context, subjectFilter, durable string, seen map[string]bool, sink func(subject string, data []byte) error) error {
	envelopes, err := b.Broker.Subscribe(ctx, subjectFilter, durable)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-envelopes:
			if !ok {
				return nil
			}
			id := messageIDOf(env.Data)
			if id != "" && seen[id] {
				env.Ack()
				continue
			}
			if id != "" {
				seen[id] = true
			}
			if err := sink(env.Subject, env.Data); err != nil {
				return err
			}
			env.Ack()
		}
	}
}

func messageIDOf(data []byte) string {
	var partial struct {
		Message struct {
			ID string `json:"id"`
		} `json:"message"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return ""
	}
	return partial.Message.ID
}
