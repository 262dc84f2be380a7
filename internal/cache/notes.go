package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jonathan/panopticon/internal/lead"
)

// NoNotesMarker is the absence sentinel stored when an upstream fetch
// positively determined a lead has no notes. Caching absence prevents
// re-fetching definitively-empty results every cycle.
const NoNotesMarker = "__NO_NOTES__"

// GetNotes returns fresh cached notes for the given lead ids. Leads cached
// with the absence sentinel are present in the result with an empty Note, so
// callers can tell "confirmed empty" from "not yet fetched".
func (s *Store) GetNotes(ctx context.Context, leadIDs []string) (map[string]lead.Note, error) {
	result := make(map[string]lead.Note)
	if len(leadIDs) == 0 {
		return result, nil
	}

	for _, ids := range chunk(leadIDs) {
		rows, err := s.pool.Query(ctx,
			`SELECT lead_id, last_note, note_time, cached_at
			 FROM notes_cache WHERE lead_id = ANY($1)`,
			ids,
		)
		if err != nil {
			log.Printf("[cache] failed to read notes chunk: %v", err)
			continue
		}
		for rows.Next() {
			var (
				leadID   string
				content  string
				noteTime *time.Time
				cachedAt time.Time
			)
			if err := rows.Scan(&leadID, &content, &noteTime, &cachedAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan note row: %w", err)
			}
			if !s.fresh(cachedAt) {
				continue
			}
			if content == NoNotesMarker {
				result[leadID] = lead.Note{}
				continue
			}
			result[leadID] = lead.Note{Content: content, Time: noteTime}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to read note rows: %w", err)
		}
		rows.Close()
	}

	return result, nil
}

// SetNotes upserts notes for many leads in one batched statement per chunk.
// Empty notes are stored as the absence sentinel.
func (s *Store) SetNotes(ctx context.Context, notes map[string]lead.Note) error {
	if len(notes) == 0 {
		return nil
	}

	ids := make([]string, 0, len(notes))
	for id := range notes {
		ids = append(ids, id)
	}

	now := s.now().UTC()
	for _, chunkIDs := range chunk(ids) {
		contents := make([]string, 0, len(chunkIDs))
		times := make([]*time.Time, 0, len(chunkIDs))
		for _, id := range chunkIDs {
			note := notes[id]
			if note.Empty() {
				contents = append(contents, NoNotesMarker)
				times = append(times, nil)
				continue
			}
			contents = append(contents, note.Content)
			times = append(times, note.Time)
		}

		_, err := s.pool.Exec(ctx,
			`INSERT INTO notes_cache (lead_id, last_note, note_time, cached_at)
			 SELECT unnest($1::text[]), unnest($2::text[]), unnest($3::timestamptz[]), $4
			 ON CONFLICT (lead_id) DO UPDATE
			 SET last_note = EXCLUDED.last_note, note_time = EXCLUDED.note_time, cached_at = EXCLUDED.cached_at`,
			chunkIDs, contents, times, now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert notes: %w", err)
		}
	}

	log.Printf("[cache] cached notes for %d leads", len(notes))
	return nil
}

// ClearNotes removes every cached note.
func (s *Store) ClearNotes(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM notes_cache`); err != nil {
		return fmt.Errorf("failed to clear notes cache: %w", err)
	}
	return nil
}
