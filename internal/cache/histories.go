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

// GetStageHistories returns fresh cached stage histories for the given lead
// ids, chunked to stay under the batch query limit. Stale rows are treated as
// absent. A chunk read failure skips that chunk rather than failing the call.
func (s *Store) GetStageHistories(ctx context.Context, leadIDs []string) (map[string][]lead.StageTransition, error) {
	result := make(map[string][]lead.StageTransition)
	if len(leadIDs) == 0 {
		return result, nil
	}

	for _, ids := range chunk(leadIDs) {
		rows, err := s.pool.Query(ctx,
			`SELECT lead_id, stage_history, cached_at
			 FROM stage_history_cache WHERE lead_id = ANY($1)`,
			ids,
		)
		if err != nil {
			log.Printf("[cache] failed to read stage history chunk: %v", err)
			continue
		}
		for rows.Next() {
			var (
				leadID   string
				raw      []byte
				cachedAt time.Time
			)
			if err := rows.Scan(&leadID, &raw, &cachedAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan stage history row: %w", err)
			}
			if !s.fresh(cachedAt) {
				continue
			}
			var history []lead.StageTransition
			if err := json.Unmarshal(raw, &history); err != nil {
				log.Printf("[cache] dropping undecodable stage history for lead %s: %v", leadID, err)
				continue
			}
			result[leadID] = history
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to read stage history rows: %w", err)
		}
		rows.Close()
	}

	log.Printf("[cache] stage history hit for %d/%d leads", len(result), len(leadIDs))
	return result, nil
}

// SetStageHistories upserts stage histories for many leads in one batched
// statement per chunk, each row stamped with a fresh cached_at.
func (s *Store) SetStageHistories(ctx context.Context, histories map[string][]lead.StageTransition) error {
	if len(histories) == 0 {
		return nil
	}

	ids := make([]string, 0, len(histories))
	for id := range histories {
		ids = append(ids, id)
	}

	now := s.now().UTC()
	for _, chunkIDs := range chunk(ids) {
		payloads := make([]string, 0, len(chunkIDs))
		for _, id := range chunkIDs {
			history := histories[id]
			if history == nil {
				history = []lead.StageTransition{}
			}
			raw, err := json.Marshal(history)
			if err != nil {
				return fmt.Errorf("failed to encode stage history for lead %s: %w", id, err)
			}
			payloads = append(payloads, string(raw))
		}

		_, err := s.pool.Exec(ctx,
			`INSERT INTO stage_history_cache (lead_id, stage_history, cached_at)
			 SELECT unnest($1::text[]), unnest($2::jsonb[]), $3
			 ON CONFLICT (lead_id) DO UPDATE
			 SET stage_history = EXCLUDED.stage_history, cached_at = EXCLUDED.cached_at`,
			chunkIDs, payloads, now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert stage histories: %w", err)
		}
	}

	log.Printf("[cache] cached stage history for %d leads", len(histories))
	return nil
}

// ClearStageHistory removes one lead's cached history, or every history when
// leadID is empty.
func (s *Store) ClearStageHistory(ctx context.Context, leadID string) error {
	var err error
	if leadID == "" {
		_, err = s.pool.Exec(ctx, `DELETE FROM stage_history_cache`)
	} else {
		_, err = s.pool.Exec(ctx, `DELETE FROM stage_history_cache WHERE lead_id = $1`, leadID)
	}
	if err != nil {
		return fmt.Errorf("failed to clear stage history cache: %w", err)
	}
	return nil
}

// StageHistory returns one lead's cached history regardless of freshness.
// The history view shows whatever is on hand; the sync path owns refreshing.
func (s *Store) StageHistory(ctx context.Context, leadID string) ([]lead.StageTransition, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT stage_history FROM stage_history_cache WHERE lead_id = $1`, leadID,
	).Scan(&raw)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read stage history for lead %s: %w", leadID, err)
	}
	var history []lead.StageTransition
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("failed to decode stage history for lead %s: %w", leadID, err)
	}
	return history, nil
}

// AllTransitions returns every cached stage transition with both endpoints
// set, for pipeline flow visualisation. Freshness is ignored here: stale flow
// data is still useful for trend display.
func (s *Store) AllTransitions(ctx context.Context) ([]lead.StageTransition, error) {
	rows, err := s.pool.Query(ctx, `SELECT stage_history FROM stage_history_cache`)
	if err != nil {
		return nil, fmt.Errorf("failed to read stage histories: %w", err)
	}
	defer rows.Close()

	var all []lead.StageTransition
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan stage history row: %w", err)
		}
		var history []lead.StageTransition
		if err := json.Unmarshal(raw, &history); err != nil {
			continue
		}
		for _, t := range history {
			if t.FromStage != nil && *t.FromStage != "" && t.ToStage != "" {
				all = append(all, t)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stage history rows: %w", err)
	}
	return all, nil
}
