// Package cache provides the persistent TTL cache backing the sync layer.
// One Postgres table per entity kind, every row carrying a cached_at
// timestamp; freshness is always computed client-side against the TTL, never
// trusted from the store.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// TTL is how long a cache entry stays fresh.
	TTL = 24 * time.Hour

	// ChunkSize caps keys per round trip, keeping batched lookups under the
	// host-enforced query size limit.
	ChunkSize = 100
)

// Store wraps a PostgreSQL connection pool.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Connect establishes a connection pool to the cache database.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cache database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}
	return &Store{pool: pool, now: time.Now}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the cache tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS stage_history_cache (
			lead_id       TEXT PRIMARY KEY,
			stage_history JSONB NOT NULL,
			cached_at     TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notes_cache (
			lead_id   TEXT PRIMARY KEY,
			last_note TEXT NOT NULL,
			note_time TIMESTAMPTZ,
			cached_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS snapshot_cache (
			cache_key TEXT PRIMARY KEY,
			data      JSONB NOT NULL,
			cached_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS status_snapshots (
			snapshot_date         DATE PRIMARY KEY,
			stale_count           INTEGER NOT NULL DEFAULT 0,
			at_risk_count         INTEGER NOT NULL DEFAULT 0,
			needs_attention_count INTEGER NOT NULL DEFAULT 0,
			healthy_count         INTEGER NOT NULL DEFAULT 0,
			total_count           INTEGER NOT NULL DEFAULT 0,
			created_at            TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create cache schema: %w", err)
		}
	}
	return nil
}

// fresh reports whether a cached_at timestamp is still within the TTL.
func (s *Store) fresh(cachedAt time.Time) bool {
	return s.now().Sub(cachedAt) <= TTL
}

// chunk splits keys into ChunkSize batches.
func chunk(keys []string) [][]string {
	var chunks [][]string
	for start := 0; start < len(keys); start += ChunkSize {
		end := start + ChunkSize
		if end > len(keys) {
			end = len(keys)
		}
		chunks = append(chunks, keys[start:end])
	}
	return chunks
}
