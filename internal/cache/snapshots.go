package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/panopticon/internal/lead"
)

// Fixed snapshot_cache keys for the whole-list snapshots.
const (
	LeadsKey      = "leads_with_appointments"
	DeliveriesKey = "deliveries"
)

// GetLeadsSnapshot returns the cached leads list when fresh, along with its
// cached_at timestamp for "last updated" display. Returns nil when absent or
// expired.
func (s *Store) GetLeadsSnapshot(ctx context.Context) ([]lead.Lead, *time.Time, error) {
	raw, cachedAt, err := s.getSnapshot(ctx, LeadsKey)
	if err != nil || raw == nil {
		return nil, nil, err
	}
	var leads []lead.Lead
	if err := json.Unmarshal(raw, &leads); err != nil {
		return nil, nil, fmt.Errorf("failed to decode leads snapshot: %w", err)
	}
	log.Printf("[cache] leads snapshot hit (%d leads)", len(leads))
	return leads, cachedAt, nil
}

// SetLeadsSnapshot caches the full leads list under the fixed key.
func (s *Store) SetLeadsSnapshot(ctx context.Context, leads []lead.Lead) error {
	return s.setSnapshot(ctx, LeadsKey, leads)
}

// LastLeadsSnapshot returns the cached leads list regardless of freshness,
// for serving stale data when the upstream fetch fails outright.
func (s *Store) LastLeadsSnapshot(ctx context.Context) ([]lead.Lead, *time.Time, error) {
	var (
		raw      []byte
		cachedAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT data, cached_at FROM snapshot_cache WHERE cache_key = $1`, LeadsKey,
	).Scan(&raw, &cachedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to read leads snapshot: %w", err)
	}
	var leads []lead.Lead
	if err := json.Unmarshal(raw, &leads); err != nil {
		return nil, nil, fmt.Errorf("failed to decode leads snapshot: %w", err)
	}
	return leads, &cachedAt, nil
}

// LeadsSnapshotAge returns when the leads list was last cached, regardless of
// freshness, or nil when never cached.
func (s *Store) LeadsSnapshotAge(ctx context.Context) (*time.Time, error) {
	var cachedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT cached_at FROM snapshot_cache WHERE cache_key = $1`, LeadsKey,
	).Scan(&cachedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read leads snapshot age: %w", err)
	}
	return &cachedAt, nil
}

// GetDeliveriesSnapshot returns the cached deliveries list when fresh.
func (s *Store) GetDeliveriesSnapshot(ctx context.Context) ([]lead.Delivery, error) {
	raw, _, err := s.getSnapshot(ctx, DeliveriesKey)
	if err != nil || raw == nil {
		return nil, err
	}
	var deliveries []lead.Delivery
	if err := json.Unmarshal(raw, &deliveries); err != nil {
		return nil, fmt.Errorf("failed to decode deliveries snapshot: %w", err)
	}
	log.Printf("[cache] deliveries snapshot hit (%d records)", len(deliveries))
	return deliveries, nil
}

// SetDeliveriesSnapshot caches the full deliveries list under the fixed key.
func (s *Store) SetDeliveriesSnapshot(ctx context.Context, deliveries []lead.Delivery) error {
	return s.setSnapshot(ctx, DeliveriesKey, deliveries)
}

// ClearSnapshot removes one snapshot row. Used by forced refresh.
func (s *Store) ClearSnapshot(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM snapshot_cache WHERE cache_key = $1`, key); err != nil {
		return fmt.Errorf("failed to clear snapshot %s: %w", key, err)
	}
	return nil
}

func (s *Store) getSnapshot(ctx context.Context, key string) ([]byte, *time.Time, error) {
	var (
		raw      []byte
		cachedAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT data, cached_at FROM snapshot_cache WHERE cache_key = $1`, key,
	).Scan(&raw, &cachedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to read snapshot %s: %w", key, err)
	}
	if !s.fresh(cachedAt) {
		log.Printf("[cache] snapshot %s expired", key)
		return nil, nil, nil
	}
	return raw, &cachedAt, nil
}

func (s *Store) setSnapshot(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %s: %w", key, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO snapshot_cache (cache_key, data, cached_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (cache_key) DO UPDATE
		 SET data = EXCLUDED.data, cached_at = EXCLUDED.cached_at`,
		key, raw, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot %s: %w", key, err)
	}
	return nil
}

// StatusCounts is a per-day tally of classified lead statuses.
type StatusCounts struct {
	Date           string `json:"date"`
	Stale          int    `json:"stale"`
	AtRisk         int    `json:"at_risk"`
	NeedsAttention int    `json:"needs_attention"`
	Healthy        int    `json:"healthy"`
	Total          int    `json:"total"`
}

// TodaySnapshot returns today's status snapshot when one was already saved.
func (s *Store) TodaySnapshot(ctx context.Context) (*StatusCounts, error) {
	today := s.now().UTC().Format("2006-01-02")
	var counts StatusCounts
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot_date::text, stale_count, at_risk_count, needs_attention_count, healthy_count, total_count
		 FROM status_snapshots WHERE snapshot_date = $1`,
		today,
	).Scan(&counts.Date, &counts.Stale, &counts.AtRisk, &counts.NeedsAttention, &counts.Healthy, &counts.Total)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read today's snapshot: %w", err)
	}
	return &counts, nil
}

// SaveStatusSnapshot upserts today's status counts for trend tracking.
func (s *Store) SaveStatusSnapshot(ctx context.Context, counts StatusCounts) error {
	today := s.now().UTC().Format("2006-01-02")
	total := counts.Stale + counts.AtRisk + counts.NeedsAttention + counts.Healthy
	_, err := s.pool.Exec(ctx,
		`INSERT INTO status_snapshots
		 (snapshot_date, stale_count, at_risk_count, needs_attention_count, healthy_count, total_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (snapshot_date) DO UPDATE
		 SET stale_count = EXCLUDED.stale_count,
		     at_risk_count = EXCLUDED.at_risk_count,
		     needs_attention_count = EXCLUDED.needs_attention_count,
		     healthy_count = EXCLUDED.healthy_count,
		     total_count = EXCLUDED.total_count,
		     created_at = EXCLUDED.created_at`,
		today, counts.Stale, counts.AtRisk, counts.NeedsAttention, counts.Healthy, total, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save status snapshot: %w", err)
	}
	log.Printf("[cache] saved status snapshot for %s", today)
	return nil
}

// StatusSnapshots returns snapshots for the last N days, oldest first.
func (s *Store) StatusSnapshots(ctx context.Context, days int) ([]StatusCounts, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := s.pool.Query(ctx,
		`SELECT snapshot_date::text, stale_count, at_risk_count, needs_attention_count, healthy_count, total_count
		 FROM status_snapshots WHERE snapshot_date >= $1
		 ORDER BY snapshot_date ASC`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list status snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []StatusCounts
	for rows.Next() {
		var c StatusCounts
		if err := rows.Scan(&c.Date, &c.Stale, &c.AtRisk, &c.NeedsAttention, &c.Healthy, &c.Total); err != nil {
			return nil, fmt.Errorf("failed to scan status snapshot: %w", err)
		}
		snapshots = append(snapshots, c)
	}
	return snapshots, rows.Err()
}
