// Package syncer coordinates cached and live CRM data into complete, bounded
// batch fetches, and runs the refresh cycle that feeds classification.
package syncer

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/panopticon/internal/lead"
)

// DefaultWorkerCount bounds concurrent per-lead fetches against the CRM.
const DefaultWorkerCount = 10

// TokenSource supplies a valid access token. The coordinator pre-fetches one
// token per batch so workers never touch shared token state.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TimelineAPI is the per-lead upstream surface used by batch workers. The
// token is passed by value into every call.
type TimelineAPI interface {
	FetchStageHistory(ctx context.Context, token, leadID string) ([]lead.StageTransition, error)
	FetchLatestNote(ctx context.Context, token, leadID string) (lead.Note, bool, error)
}

// HistoryCache is the slice of the cache store the history batch needs.
type HistoryCache interface {
	GetStageHistories(ctx context.Context, leadIDs []string) (map[string][]lead.StageTransition, error)
	SetStageHistories(ctx context.Context, histories map[string][]lead.StageTransition) error
}

// NoteCache is the slice of the cache store the notes batch needs.
type NoteCache interface {
	GetNotes(ctx context.Context, leadIDs []string) (map[string]lead.Note, error)
	SetNotes(ctx context.Context, notes map[string]lead.Note) error
}

// BatchFetcher serves per-lead data from cache where fresh and fetches the
// remainder concurrently, writing results back in one batched upsert.
type BatchFetcher struct {
	api       TimelineAPI
	tokens    TokenSource
	histories HistoryCache
	notes     NoteCache
	workers   int
	now       func() time.Time
}

// NewBatchFetcher wires a batch fetcher. workers <= 0 selects the default
// bound.
func NewBatchFetcher(api TimelineAPI, tokens TokenSource, histories HistoryCache, notes NoteCache, workers int) *BatchFetcher {
	if workers <= 0 {
		workers = DefaultWorkerCount
	}
	return &BatchFetcher{
		api:       api,
		tokens:    tokens,
		histories: histories,
		notes:     notes,
		workers:   workers,
		now:       time.Now,
	}
}

// FetchStageHistories returns stage histories for the given leads, cache
// first. Cached entries whose last transition disagrees with the
// caller-supplied current stage are invalidated and refetched; freshly
// fetched histories that still lag get a synthetic trailing transition so the
// same lead is not invalidated again next call. A single lead's fetch failure
// omits that lead from the result rather than failing the batch.
func (b *BatchFetcher) FetchStageHistories(ctx context.Context, leadIDs []string, currentStageByID map[string]string) (map[string][]lead.StageTransition, error) {
	result := make(map[string][]lead.StageTransition, len(leadIDs))
	if len(leadIDs) == 0 {
		return result, nil
	}

	cached, err := b.histories.GetStageHistories(ctx, leadIDs)
	if err != nil {
		return result, err
	}

	var refetch []string
	for _, id := range leadIDs {
		history, ok := cached[id]
		if !ok {
			refetch = append(refetch, id)
			continue
		}
		// Smart invalidation: the current stage is an out-of-band signal that
		// the cached history is behind.
		if stale := historyDisagrees(history, currentStageByID[id]); stale {
			refetch = append(refetch, id)
			continue
		}
		result[id] = history
	}
	if len(refetch) == 0 {
		return result, nil
	}
	log.Printf("[syncer] fetching stage history for %d leads (%d served from cache)", len(refetch), len(result))

	token, err := b.tokens.Token(ctx)
	if err != nil {
		return result, err
	}

	fetched := fetchValues(ctx, b.workers, refetch, func(ctx context.Context, id string) ([]lead.StageTransition, bool, error) {
		history, err := b.api.FetchStageHistory(ctx, token, id)
		if err != nil {
			return nil, false, err
		}
		return b.bridgeHistory(history, currentStageByID[id]), true, nil
	})

	if err := b.histories.SetStageHistories(ctx, fetched); err != nil {
		log.Printf("[syncer] failed to cache stage histories: %v", err)
	}
	for id, history := range fetched {
		result[id] = history
	}
	return result, nil
}

// FetchNotes returns the latest note per lead, cache first. Leads positively
// determined to have no notes are cached via the absence sentinel and come
// back as empty notes, distinct from leads omitted after a fetch failure.
func (b *BatchFetcher) FetchNotes(ctx context.Context, leadIDs []string) (map[string]lead.Note, error) {
	result := make(map[string]lead.Note, len(leadIDs))
	if len(leadIDs) == 0 {
		return result, nil
	}

	cached, err := b.notes.GetNotes(ctx, leadIDs)
	if err != nil {
		return result, err
	}
	var missing []string
	for _, id := range leadIDs {
		if note, ok := cached[id]; ok {
			result[id] = note
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return result, nil
	}
	log.Printf("[syncer] fetching notes for %d leads (%d served from cache)", len(missing), len(result))

	token, err := b.tokens.Token(ctx)
	if err != nil {
		return result, err
	}

	fetched := fetchValues(ctx, b.workers, missing, func(ctx context.Context, id string) (lead.Note, bool, error) {
		note, found, err := b.api.FetchLatestNote(ctx, token, id)
		if err != nil {
			return lead.Note{}, false, err
		}
		if !found {
			// Confirmed absent; cache the sentinel.
			return lead.Note{}, true, nil
		}
		return note, true, nil
	})

	if err := b.notes.SetNotes(ctx, fetched); err != nil {
		log.Printf("[syncer] failed to cache notes: %v", err)
	}
	for id, note := range fetched {
		result[id] = note
	}
	return result, nil
}

// fetchValues runs fn for every id on the bounded worker pool. Workers
// only return results; the coordinator owns the result map and all cache
// writes. Failures are logged and omitted.
func fetchValues[T any](ctx context.Context, workers int, ids []string, fn func(ctx context.Context, id string) (T, bool, error)) map[string]T {
	var (
		mu      sync.Mutex
		fetched = make(map[string]T, len(ids))
	)
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, id := range ids {
		g.Go(func() error {
			value, ok, err := fn(ctx, id)
			if err != nil {
				log.Printf("[syncer] fetch failed for lead %s: %v", id, err)
				return nil
			}
			if !ok {
				return nil
			}
			mu.Lock()
			fetched[id] = value
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return fetched
}

// bridgeHistory appends a synthetic trailing transition when the fetched
// timeline still does not end at the lead's current stage. The timestamp is
// an approximation (the real change time is unknown), accepted to stop the
// invalidate-refetch loop.
func (b *BatchFetcher) bridgeHistory(history []lead.StageTransition, currentStage string) []lead.StageTransition {
	if currentStage == "" || !historyDisagrees(history, currentStage) {
		return history
	}
	var from *string
	if len(history) > 0 {
		last := history[len(history)-1].ToStage
		from = &last
	}
	return append(history, lead.StageTransition{
		FromStage: from,
		ToStage:   currentStage,
		ChangedAt: b.now().UTC(),
		Synthetic: true,
	})
}

// historyDisagrees reports whether a history's last transition contradicts
// the lead's current stage.
func historyDisagrees(history []lead.StageTransition, currentStage string) bool {
	if currentStage == "" {
		return false
	}
	if len(history) == 0 {
		return true
	}
	return !lead.SameStage(history[len(history)-1].ToStage, currentStage)
}
