// Package contextengine implements the per-module context/summary loop:
// candidate sourceKey selection, k-NN retrieval over stored embeddings, an
// AI summarization call with its JSON→plain-text→fallback degradation
// chain, and ContextUpdated publication (spec.md §4.11).
package contextengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jhacksman/feedeater/internal/aiclient"
	"github.com/jhacksman/feedeater/internal/broker"
	"github.com/jhacksman/feedeater/internal/collector"
	"github.com/jhacksman/feedeater/internal/normalize"
	"github.com/jhacksman/feedeater/internal/store"
)

// DefaultTopK is the number of most-relevant prior records selected per
// sourceKey when no override is configured (spec.md §4.11(b)).
const DefaultTopK = 20

// MaxPromptChars bounds the assembled prompt (spec.md §4.11(c) "~8000 characters").
const MaxPromptChars = 8000

// Engine runs the context loop for one module.
type Engine struct {
	Module    string
	Namespace string
	TopK      int

	Store  *store.Store
	AI     aiclient.Client
	Broker *broker.Broker
	Log    *zap.Logger
}

type candidateRecord struct {
	RecordID    string
	Text        string
	CollectedAt time.Time
	Embedding   store.Vector
}

// RunOnce executes one context-loop pass over sourceKeys with activity
// since now-lookback, returning the accumulated metrics of spec.md
// §4.11.3: updated, aiSummaries, fallbackSummaries, embeddingsInserted.
func (e *Engine) RunOnce(ctx context.Context, lookback time.Duration) (collector.Metrics, error) {
	metrics := collector.Metrics{}
	topK := e.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	keys, err := e.candidateSourceKeys(ctx, lookback)
	if err != nil {
		return metrics, fmt.Errorf("contextengine: select candidate keys: %w", err)
	}

	var tokenRates []float64
	for _, key := range keys {
		start := time.Now()
		outcome, err := e.refreshOne(ctx, key, topK)
		if err != nil {
			// Per-key failures are local (spec.md §4.11 "Failure semantics").
			e.Log.Warn("contextengine: refresh failed for key", zap.String("module", e.Module), zap.String("sourceKey", key), zap.Error(err))
			continue
		}
		metrics.Inc("updated", 1)
		if outcome.usedAI {
			metrics.Inc("aiSummaries", 1)
		}
		if outcome.usedFallback {
			metrics.Inc("fallbackSummaries", 1)
		}
		if outcome.embedded {
			metrics.Inc("embeddingsInserted", 1)
		}
		elapsed := time.Since(start).Seconds()
		if elapsed > 0 {
			tokenRates = append(tokenRates, float64(len(outcome.promptChars))/elapsed)
		}
	}

	if len(tokenRates) > 0 {
		var sum float64
		for _, r := range tokenRates {
			sum += r
		}
		metrics.Set("avgTokenRate", sum/float64(len(tokenRates)))
	}
	return metrics, nil
}

type refreshOutcome struct {
	usedAI       bool
	usedFallback bool
	embedded     bool
	promptChars  string
}

func (e *Engine) refreshOne(ctx context.Context, sourceKey string, topK int) (refreshOutcome, error) {
	prior, err := e.priorSummaryLong(ctx, sourceKey)
	if err != nil {
		return refreshOutcome{}, err
	}

	candidates, err := e.selectCandidates(ctx, sourceKey, prior, topK)
	if err != nil {
		return refreshOutcome{}, err
	}
	if len(candidates) == 0 {
		return refreshOutcome{}, fmt.Errorf("no candidate records for key %s", sourceKey)
	}

	prompt := buildPrompt(prior, candidates)

	ctxObj := normalize.Context{OwnerModule: e.Module, SourceKey: sourceKey}
	outcome := refreshOutcome{promptChars: prompt}

	summary, err := e.AI.SummarizeJSON(ctx, prompt)
	if err == nil && summary.SummaryLong != "" {
		ctxObj.SummaryShort = summary.SummaryShort
		ctxObj.SummaryLong = summary.SummaryLong
		outcome.usedAI = true
	} else {
		// JSON mode failed (transport error or unparseable structure): fall
		// back to a plain-text prompt (spec.md §4.11(d)).
		text, textErr := e.AI.SummarizePlainText(ctx, prompt)
		if textErr == nil && text != "" {
			ctxObj.SummaryLong = text
			ctxObj.SummaryShort = truncate(text, normalize.SummaryShortMaxLen)
			outcome.usedFallback = true
		} else {
			ctxObj.SummaryLong = fmt.Sprintf("%s — last updated at %s", sourceKey, time.Now().UTC().Format(time.RFC3339))
			ctxObj.SummaryShort = truncate(ctxObj.SummaryLong, normalize.SummaryShortMaxLen)
			outcome.usedFallback = true
		}
	}

	if ctxObj.SummaryLong != "" {
		if emb, embErr := e.AI.Embed(ctx, ctxObj.SummaryLong); embErr == nil && len(emb) > 0 {
			ctxObj.Embedding = emb
			outcome.embedded = true
		}
	}

	if err := ctxObj.Validate(); err != nil {
		return outcome, fmt.Errorf("invalid context: %w", err)
	}

	if err := e.upsertContext(ctx, ctxObj); err != nil {
		return outcome, fmt.Errorf("upsert context: %w", err)
	}

	event := normalize.NewContextUpdated("", ctxObj)
	payload, err := json.Marshal(event)
	if err != nil {
		return outcome, fmt.Errorf("marshal ContextUpdated: %w", err)
	}
	e.Broker.Publish(normalize.SubjectContextUpdated(e.Module), payload)

	return outcome, nil
}

func buildPrompt(priorSummary string, candidates []candidateRecord) string {
	var b strings.Builder
	if priorSummary != "" {
		b.WriteString("Prior summary:\n")
		b.WriteString(priorSummary)
		b.WriteString("\n\n")
	}
	b.WriteString("Recent items:\n")
	for _, c := range candidates {
		line := fmt.Sprintf("- [%s] %s\n", c.CollectedAt.Format(time.RFC3339), c.Text)
		if b.Len()+len(line) > MaxPromptChars {
			break
		}
		b.WriteString(line)
	}
	prompt := b.String()
	if len(prompt) > MaxPromptChars {
		prompt = prompt[:MaxPromptChars]
	}
	return prompt
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// candidateSourceKeys returns distinct non-empty context_key values with
// raw activity since now-lookback (spec.md §4.11.1).
func (e *Engine) candidateSourceKeys(ctx context.Context, lookback time.Duration) ([]string, error) {
	sql := fmt.Sprintf(`
		SELECT DISTINCT context_key FROM %s.raw_events
		WHERE context_key != '' AND collected_at >= $1
	`, e.Namespace)
	rows, err := e.Store.Query(ctx, sql, time.Now().UTC().Add(-lookback))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (e *Engine) priorSummaryLong(ctx context.Context, sourceKey string) (string, error) {
	rows, err := e.Store.Query(ctx, `
		SELECT summary_long FROM bus_contexts WHERE owner_module = $1 AND source_key = $2
	`, e.Module, sourceKey)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	if rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return "", err
		}
		return s, nil
	}
	return "", rows.Err()
}

// selectCandidates picks the top-K most relevant prior records for
// sourceKey via cosine distance over stored embeddings to a query
// embedding derived from the prior summary (or falls back to the K most
// recent records when no query embedding is available). Ties break
// ascending distance, then descending timestamp, then ascending id
// (spec.md §4.11 tie-breaking rule).
func (e *Engine) selectCandidates(ctx context.Context, sourceKey, priorSummary string, topK int) ([]candidateRecord, error) {
	var queryEmbedding store.Vector
	if priorSummary != "" {
		if emb, err := e.AI.Embed(ctx, priorSummary); err == nil && len(emb) > 0 {
			queryEmbedding = emb
		}
	}

	sql := fmt.Sprintf(`
		SELECT r.id, r.data, r.collected_at, e.embedding
		FROM %s.raw_events r
		LEFT JOIN %s.%s_embeddings e ON e.record_id = r.id
		WHERE r.context_key = $1
		ORDER BY r.collected_at DESC
		LIMIT 500
	`, e.Namespace, e.Namespace, e.Module)

	rows, err := e.Store.Query(ctx, sql, sourceKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []candidateRecord
	for rows.Next() {
		var id string
		var data []byte
		var collectedAt time.Time
		var embeddingText *string
		if err := rows.Scan(&id, &data, &collectedAt, &embeddingText); err != nil {
			return nil, err
		}
		rec := candidateRecord{RecordID: id, Text: string(data), CollectedAt: collectedAt}
		if embeddingText != nil {
			if v, perr := store.ParseVector(*embeddingText); perr == nil {
				rec.Embedding = v
			}
		}
		all = append(all, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(queryEmbedding) == 0 {
		if len(all) > topK {
			all = all[:topK]
		}
		return all, nil
	}

	rankByRelevance(all, queryEmbedding)
	if len(all) > topK {
		all = all[:topK]
	}
	return all, nil
}

// rankByRelevance sorts candidates by ascending cosine distance to
// queryEmbedding, then descending timestamp, then ascending id
// (spec.md §4.11 tie-breaking rule).
func rankByRelevance(all []candidateRecord, queryEmbedding store.Vector) {
	sort.Slice(all, func(i, j int) bool {
		di := store.CosineDistance(queryEmbedding, all[i].Embedding)
		dj := store.CosineDistance(queryEmbedding, all[j].Embedding)
		if di != dj {
			return di < dj
		}
		if !all[i].CollectedAt.Equal(all[j].CollectedAt) {
			return all[i].CollectedAt.After(all[j].CollectedAt)
		}
		return all[i].RecordID < all[j].RecordID
	})
}

func (e *Engine) upsertContext(ctx context.Context, c normalize.Context) error {
	keyPointsJSON, err := json.Marshal(c.KeyPoints)
	if err != nil {
		return err
	}
	var embeddingArg any
	if len(c.Embedding) > 0 {
		embeddingArg = store.Vector(c.Embedding).String()
	}
	return e.Store.Exec(ctx, `
		INSERT INTO bus_contexts (owner_module, source_key, summary_short, summary_long, key_points, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, now())
		ON CONFLICT (owner_module, source_key) DO UPDATE SET
			summary_short = EXCLUDED.summary_short,
			summary_long = EXCLUDED.summary_long,
			key_points = EXCLUDED.key_points,
			embedding = EXCLUDED.embedding,
			updated_at = now()
	`, c.OwnerModule, c.SourceKey, c.SummaryShort, c.SummaryLong, string(keyPointsJSON), embeddingArg)
}
