// Package settings implements the module-scoped key/value registry: a
// Postgres row store of record fronted by a short-TTL cache, invalidated
// on write (spec.md §4.3). The cache is Redis-backed when a client is
// attached, so every feedeater replica agrees on cached values; it falls
// back to an in-process map when no Redis client is configured (tests,
// single-replica deployments).
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/jhacksman/feedeater/internal/store"
)

// CacheTTL is the maximum staleness of a cached read, per spec.md §4.3
// ("≤30s").
const CacheTTL = 30 * time.Second

// redisKeyPrefix namespaces cached entries in a shared Redis keyspace.
const redisKeyPrefix = "feedeater:settings:"

// Setting is one (module, key) row.
type Setting struct {
	Module   string
	Key      string
	Value    string
	IsSecret bool
}

// Registry is the settings store: Postgres of record, TTL-cached reads.
type Registry struct {
	st    *store.Store
	redis *redis.Client // nil falls back to the local map below

	mu    sync.RWMutex
	local map[string]cacheEntry // "module/key" -> entry, used when redis is nil
}

type cacheEntry struct {
	Value     string `json:"value"`
	IsSecret  bool   `json:"isSecret"`
	expiresAt time.Time
}

// New constructs a Registry backed by st, with a local in-process cache.
// Call WithRedis to share the cache across replicas.
func New(st *store.Store) *Registry {
	return &Registry{st: st, local: make(map[string]cacheEntry)}
}

// WithRedis attaches client as the registry's shared TTL cache backing
// and returns the registry for chaining.
func (r *Registry) WithRedis(client *redis.Client) *Registry {
	r.redis = client
	return r
}

func cacheKey(module, key string) string { return module + "/" + key }

func redisKey(module, key string) string { return redisKeyPrefix + cacheKey(module, key) }

// GetAll returns every setting row for module, trusted-internal view
// (secrets included).
func (r *Registry) GetAll(ctx context.Context, module string) ([]Setting, error) {
	rows, err := r.st.Query(ctx, `SELECT module, key, value, is_secret FROM settings WHERE module = $1`, module)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Module, &s.Key, &s.Value, &s.IsSecret); err != nil {
			return nil, fmt.Errorf("settings: scan row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetOne returns a single setting's value and its secret flag, preferring
// the TTL cache, and falling back to Postgres (then caching the result) on
// a miss. Callers serving an external (non-trusted) surface must withhold
// the value when isSecret is true — GetOne itself returns the plaintext
// value in all cases, this is a trusted-internal read (spec.md §4.3).
func (r *Registry) GetOne(ctx context.Context, module, key string) (value string, isSecret bool, found bool, err error) {
	if entry, ok := r.cacheGet(ctx, module, key); ok {
		return entry.Value, entry.IsSecret, true, nil
	}

	row := r.st.Pool.QueryRow(ctx, `SELECT value, is_secret FROM settings WHERE module = $1 AND key = $2`, module, key)
	if err := row.Scan(&value, &isSecret); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, false, nil // not found is not an error — caller falls back to manifest default
		}
		return "", false, false, fmt.Errorf("settings: get %s/%s: %w", module, key, err)
	}

	r.cachePut(ctx, module, key, cacheEntry{Value: value, IsSecret: isSecret})
	return value, isSecret, true, nil
}

// cacheGet reads through Redis when attached, else the local map.
func (r *Registry) cacheGet(ctx context.Context, module, key string) (cacheEntry, bool) {
	if r.redis != nil {
		raw, err := r.redis.Get(ctx, redisKey(module, key)).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				// Redis unavailable: degrade to a cache miss rather than fail the read.
				return cacheEntry{}, false
			}
			return cacheEntry{}, false
		}
		var entry cacheEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return cacheEntry{}, false
		}
		return entry, true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.local[cacheKey(module, key)]
	if !ok || !time.Now().Before(entry.expiresAt) {
		return cacheEntry{}, false
	}
	return entry, true
}

func (r *Registry) cachePut(ctx context.Context, module, key string, entry cacheEntry) {
	if r.redis != nil {
		raw, err := json.Marshal(entry)
		if err != nil {
			return
		}
		r.redis.Set(ctx, redisKey(module, key), raw, CacheTTL)
		return
	}

	entry.expiresAt = time.Now().Add(CacheTTL)
	r.mu.Lock()
	r.local[cacheKey(module, key)] = entry
	r.mu.Unlock()
}

func (r *Registry) cacheInvalidate(ctx context.Context, module, key string) {
	if r.redis != nil {
		r.redis.Del(ctx, redisKey(module, key))
		return
	}
	r.mu.Lock()
	delete(r.local, cacheKey(module, key))
	r.mu.Unlock()
}

// Put upserts a setting and invalidates its cache entry immediately.
func (r *Registry) Put(ctx context.Context, module, key, value string, isSecret bool) error {
	err := r.st.Exec(ctx, `
		INSERT INTO settings (module, key, value, is_secret)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (module, key) DO UPDATE SET value = EXCLUDED.value, is_secret = EXCLUDED.is_secret
	`, module, key, value, isSecret)
	if err != nil {
		return fmt.Errorf("settings: put %s/%s: %w", module, key, err)
	}

	r.cacheInvalidate(ctx, module, key)
	return nil
}

// Redact strips secret-flagged values for external (non-trusted) readers.
func Redact(all []Setting) []Setting {
	out := make([]Setting, len(all))
	for i, s := range all {
		out[i] = s
		if s.IsSecret {
			out[i].Value = ""
		}
	}
	return out
}
