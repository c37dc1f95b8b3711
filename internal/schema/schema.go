// Package schema provides the per-module schema manager: idempotent
// namespace/table/index bootstrap plus non-destructive embedding-dimension
// evolution (spec.md §4.4).
package schema

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jhacksman/feedeater/internal/store"
)

// Manager ensures a single module's Postgres namespace exists and tracks
// its configured embedding dimension.
type Manager struct {
	st     *store.Store
	module string
	log    *zap.Logger
}

// New builds a Manager for the given module, whose objects live in schema
// "mod_<module>".
func New(st *store.Store, module string, log *zap.Logger) *Manager {
	return &Manager{st: st, module: module, log: log}
}

// Namespace returns the module's schema name, "mod_<module>".
func (m *Manager) Namespace() string { return "mod_" + m.module }

// EnsureSchema creates the module's schema and common raw/embedding tables
// if they do not already exist. It is safe to call on every collector
// boot (spec.md §4.4: "runs at every collector boot. Idempotent").
func (m *Manager) EnsureSchema(ctx context.Context, embedDim int) error {
	ns := m.Namespace()

	if err := m.st.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, ns)); err != nil {
		return fmt.Errorf("schema: create schema %s: %w", ns, err)
	}

	rawDDL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.raw_events (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL,
			context_key TEXT NOT NULL DEFAULT '',
			collected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			data JSONB NOT NULL
		)`, ns)
	if err := m.st.Exec(ctx, rawDDL); err != nil {
		return fmt.Errorf("schema: create raw_events: %w", err)
	}

	idxDDL := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_raw_events_collected_at ON %s.raw_events (collected_at)`, m.module, ns)
	if err := m.st.Exec(ctx, idxDDL); err != nil {
		return fmt.Errorf("schema: create raw_events index: %w", err)
	}

	ctxIdxDDL := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_raw_events_context_key ON %s.raw_events (context_key, collected_at)`, m.module, ns)
	if err := m.st.Exec(ctx, ctxIdxDDL); err != nil {
		return fmt.Errorf("schema: create raw_events context_key index: %w", err)
	}

	if err := m.ensureEmbeddingsTable(ctx, embedDim); err != nil {
		return err
	}

	m.log.Info("schema ensured", zap.String("module", m.module), zap.String("namespace", ns))
	return nil
}

// ensureEmbeddingsTable creates "<ns>.<module>_embeddings" with a vector(n)
// column sized to embedDim, evolving the column type non-destructively on
// dimension change, and manages the ivfflat similarity index according to
// spec.md's n <= 2000 rule.
func (m *Manager) ensureEmbeddingsTable(ctx context.Context, embedDim int) error {
	ns := m.Namespace()
	table := fmt.Sprintf("%s.%s_embeddings", ns, m.module)

	createDDL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			record_id TEXT PRIMARY KEY,
			embedding vector(%d),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, table, embedDim)
	if err := m.st.Exec(ctx, createDDL); err != nil {
		return fmt.Errorf("schema: create embeddings table: %w", err)
	}

	alterDDL := fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN embedding TYPE vector(%d)`, table, embedDim)
	if err := m.st.Exec(ctx, alterDDL); err != nil {
		return fmt.Errorf("schema: alter embedding dimension: %w", err)
	}

	idxName := fmt.Sprintf("idx_%s_embeddings_cosine", m.module)
	if embedDim > store.MaxIndexableVectorDim {
		m.log.Warn("embedding dimension exceeds indexable maximum, skipping similarity index",
			zap.String("module", m.module),
			zap.Int("dim", embedDim),
			zap.Int("max", store.MaxIndexableVectorDim),
		)
		dropDDL := fmt.Sprintf(`DROP INDEX IF EXISTS %s.%s`, ns, idxName)
		return m.st.Exec(ctx, dropDDL)
	}

	createIdxDDL := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s USING ivfflat (embedding vector_cosine_ops)`,
		idxName, table,
	)
	if err := m.st.Exec(ctx, createIdxDDL); err != nil {
		return fmt.Errorf("schema: create ivfflat index: %w", err)
	}
	return nil
}
