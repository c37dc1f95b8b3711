//go:build integration

package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/jhacksman/feedeater/internal/store"
)

// startPostgres boots a pgvector-enabled Postgres container for the
// duration of one test, grounded on testcontainers-go's own Run/Terminate
// lifecycle idiom (no pack file exercises this module, since the pack's
// own go.mod lists it as an unused direct require).
func startPostgres(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "pgvector/pgvector:pg16",
		postgres.WithDatabase("feedeater"),
		postgres.WithUsername("feedeater"),
		postgres.WithPassword("feedeater"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(ctx) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	st, err := store.Open(ctx, dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(st.Close)

	require.NoError(t, st.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"))
	return st
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	mgr := New(st, "rss", zap.NewNop())

	require.NoError(t, mgr.EnsureSchema(ctx, 1536))
	require.NoError(t, mgr.EnsureSchema(ctx, 1536))

	require.NoError(t, st.Exec(ctx, "INSERT INTO mod_rss.raw_events (id, source_id, data) VALUES ('a', 'a', '{}'::jsonb)"))
	require.NoError(t, st.Exec(ctx, "INSERT INTO mod_rss.raw_events (id, source_id, data) VALUES ('a', 'a', '{}'::jsonb) ON CONFLICT (id) DO NOTHING"))
}

func TestEnsureSchemaEvolvesEmbeddingDimensionNonDestructively(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	mgr := New(st, "polymarket", zap.NewNop())

	require.NoError(t, mgr.EnsureSchema(ctx, 384))
	require.NoError(t, st.Exec(ctx,
		"INSERT INTO mod_polymarket.polymarket_embeddings (record_id, embedding) VALUES ('r1', $1)",
		store.Vector(make([]float32, 384)).String(),
	))

	require.NoError(t, mgr.EnsureSchema(ctx, 1536))

	var count int
	rows, err := st.Query(ctx, "SELECT count(*) FROM mod_polymarket.polymarket_embeddings WHERE record_id = 'r1'")
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	require.NoError(t, rows.Scan(&count))
	require.Equal(t, 1, count)
}

func TestEnsureSchemaSkipsIndexAboveIndexableDimension(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	mgr := New(st, "oversized", zap.NewNop())

	require.NoError(t, mgr.EnsureSchema(ctx, store.MaxIndexableVectorDim+1))

	rows, err := st.Query(ctx,
		"SELECT count(*) FROM pg_indexes WHERE schemaname = 'mod_oversized' AND indexname = 'idx_oversized_embeddings_cosine'")
	require.NoError(t, err)
	defer rows.Close()
	var count int
	require.True(t, rows.Next())
	require.NoError(t, rows.Scan(&count))
	require.Equal(t, 0, count)
}
