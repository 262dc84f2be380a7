package syncer

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/panopticon/internal/cache"
	"github.com/jonathan/panopticon/internal/classify"
	"github.com/jonathan/panopticon/internal/crm"
	"github.com/jonathan/panopticon/internal/lead"
)

// BulkAPI is the whole-list upstream surface used by the orchestrator.
type BulkAPI interface {
	FetchLeads(ctx context.Context) ([]lead.Lead, error)
	FetchDeliveries(ctx context.Context) ([]lead.Delivery, error)
}

// SnapshotCache is the slice of the cache store the orchestrator needs.
type SnapshotCache interface {
	GetLeadsSnapshot(ctx context.Context) ([]lead.Lead, *time.Time, error)
	LastLeadsSnapshot(ctx context.Context) ([]lead.Lead, *time.Time, error)
	SetLeadsSnapshot(ctx context.Context, leads []lead.Lead) error
	GetDeliveriesSnapshot(ctx context.Context) ([]lead.Delivery, error)
	SetDeliveriesSnapshot(ctx context.Context, deliveries []lead.Delivery) error
	ClearSnapshot(ctx context.Context, key string) error
	TodaySnapshot(ctx context.Context) (*cache.StatusCounts, error)
	SaveStatusSnapshot(ctx context.Context, counts cache.StatusCounts) error
}

// Result is one completed refresh cycle: the classified lead list plus the
// per-lead context the presentation layer renders alongside it.
type Result struct {
	RunID       uuid.UUID
	Leads       []lead.Classified
	Histories   map[string][]lead.StageTransition
	Notes       map[string]lead.Note
	LastUpdated *time.Time
	Partial     string
}

// Orchestrator runs refresh cycles: load leads and deliveries (cache first,
// degrade gracefully), batch-fetch histories and notes, classify, and record
// the daily status snapshot.
type Orchestrator struct {
	api       BulkAPI
	store     SnapshotCache
	batch     *BatchFetcher
	engine    *classify.Engine
	directory lead.Directory
	syncCtx   *crm.SyncContext
}

// NewOrchestrator wires a refresh orchestrator. directory may be nil when no
// locator contacts are configured.
func NewOrchestrator(api BulkAPI, store SnapshotCache, batch *BatchFetcher, engine *classify.Engine, directory lead.Directory, syncCtx *crm.SyncContext) *Orchestrator {
	if directory == nil {
		directory = lead.NewStaticDirectory(nil)
	}
	return &Orchestrator{
		api:       api,
		store:     store,
		batch:     batch,
		engine:    engine,
		directory: directory,
		syncCtx:   syncCtx,
	}
}

// Cycle runs one full refresh and classification pass.
func (o *Orchestrator) Cycle(ctx context.Context) (*Result, error) {
	runID := uuid.New()
	log.Printf("[syncer] starting refresh cycle %s", runID)
	o.syncCtx.ClearPartial()

	leads, lastUpdated, err := o.loadLeads(ctx)
	if err != nil {
		return nil, err
	}

	deliveries := o.loadDeliveries(ctx)

	ids := make([]string, 0, len(leads))
	stageByID := make(map[string]string, len(leads))
	for _, l := range leads {
		ids = append(ids, l.ID)
		stageByID[l.ID] = l.CurrentStage
	}

	histories, err := o.batch.FetchStageHistories(ctx, ids, stageByID)
	if err != nil {
		// Serve what the cache gave us; missing entries classify as unknown.
		o.syncCtx.SetPartial("Some stage history may be missing. Showing cached data.")
	}
	notes, err := o.batch.FetchNotes(ctx, ids)
	if err != nil {
		o.syncCtx.SetPartial("Some notes may be missing. Showing cached data.")
	}

	classified := make([]lead.Classified, 0, len(leads))
	now := time.Now().UTC()
	for _, l := range leads {
		status, reason := o.engine.Classify(l, histories[l.ID], notes[l.ID], deliveries)
		days := 0
		if l.AppointmentDate != nil {
			days = lead.DaysSince(*l.AppointmentDate, now)
		}
		contact, _ := o.directory.Lookup(l.LocatorName)
		classified = append(classified, lead.Classified{
			Lead:      l,
			DaysSince: days,
			Status:    status,
			Reason:    reason,
			Contact:   contact,
		})
	}
	sortClassified(classified)

	o.saveDailySnapshot(ctx, classified)

	result := &Result{
		RunID:       runID,
		Leads:       classified,
		Histories:   histories,
		Notes:       notes,
		LastUpdated: lastUpdated,
		Partial:     o.syncCtx.Partial(),
	}
	log.Printf("[syncer] refresh cycle %s complete: %d leads classified", runID, len(classified))
	return result, nil
}

// ForceRefresh drops the whole-list snapshots so the next cycle hits the
// upstream, then runs a cycle.
func (o *Orchestrator) ForceRefresh(ctx context.Context) (*Result, error) {
	if err := o.store.ClearSnapshot(ctx, cache.LeadsKey); err != nil {
		return nil, err
	}
	if err := o.store.ClearSnapshot(ctx, cache.DeliveriesKey); err != nil {
		return nil, err
	}
	return o.Cycle(ctx)
}

// loadLeads serves the leads list from the snapshot cache when fresh, else
// fetches from the upstream. A failed fetch with an older snapshot on hand
// degrades to the stale copy with a partial warning; with no snapshot at all
// it is a hard error.
func (o *Orchestrator) loadLeads(ctx context.Context) ([]lead.Lead, *time.Time, error) {
	snapshot, cachedAt, err := o.store.GetLeadsSnapshot(ctx)
	if err != nil {
		log.Printf("[syncer] leads snapshot read failed: %v", err)
	}
	if snapshot != nil {
		return snapshot, cachedAt, nil
	}

	leads, fetchErr := o.api.FetchLeads(ctx)
	if fetchErr == nil {
		if err := o.store.SetLeadsSnapshot(ctx, leads); err != nil {
			log.Printf("[syncer] failed to cache leads snapshot: %v", err)
		}
		now := time.Now().UTC()
		return leads, &now, nil
	}

	stale, staleAt, err := o.store.LastLeadsSnapshot(ctx)
	if err != nil {
		log.Printf("[syncer] stale leads snapshot read failed: %v", err)
	}
	if len(stale) > 0 {
		log.Printf("[syncer] leads fetch failed, serving stale snapshot from %v", staleAt)
		o.syncCtx.SetPartial("Some data may be missing. Showing cached data.")
		return stale, staleAt, nil
	}
	return nil, nil, fmt.Errorf("failed to load leads and no cached snapshot exists: %w", fetchErr)
}

// loadDeliveries is best-effort: classification simply skips the delivery
// cross-reference when the set is unavailable.
func (o *Orchestrator) loadDeliveries(ctx context.Context) []lead.Delivery {
	snapshot, err := o.store.GetDeliveriesSnapshot(ctx)
	if err != nil {
		log.Printf("[syncer] deliveries snapshot read failed: %v", err)
	}
	if snapshot != nil {
		return snapshot
	}

	deliveries, err := o.api.FetchDeliveries(ctx)
	if err != nil {
		log.Printf("[syncer] deliveries fetch failed: %v", err)
		o.syncCtx.SetPartial("Delivery records unavailable. Matching skipped this cycle.")
		return nil
	}
	if err := o.store.SetDeliveriesSnapshot(ctx, deliveries); err != nil {
		log.Printf("[syncer] failed to cache deliveries snapshot: %v", err)
	}
	return deliveries
}

// saveDailySnapshot records status counts once per UTC day.
func (o *Orchestrator) saveDailySnapshot(ctx context.Context, classified []lead.Classified) {
	existing, err := o.store.TodaySnapshot(ctx)
	if err != nil {
		log.Printf("[syncer] failed to check today's snapshot: %v", err)
		return
	}
	if existing != nil {
		return
	}
	counts := classify.CountStatuses(classified)
	err = o.store.SaveStatusSnapshot(ctx, cache.StatusCounts{
		Stale:          counts[lead.StatusStale],
		AtRisk:         counts[lead.StatusAtRisk],
		NeedsAttention: counts[lead.StatusNeedsAttention],
		Healthy:        counts[lead.StatusHealthy],
	})
	if err != nil {
		log.Printf("[syncer] failed to save status snapshot: %v", err)
	}
}

// sortClassified orders the output worst-first: status severity, then day
// count descending, then name for stability.
func sortClassified(classified []lead.Classified) {
	severity := map[lead.Status]int{
		lead.StatusStale:          0,
		lead.StatusAtRisk:         1,
		lead.StatusNeedsAttention: 2,
		lead.StatusHealthy:        3,
	}
	sort.SliceStable(classified, func(i, j int) bool {
		if severity[classified[i].Status] != severity[classified[j].Status] {
			return severity[classified[i].Status] < severity[classified[j].Status]
		}
		if classified[i].DaysSince != classified[j].DaysSince {
			return classified[i].DaysSince > classified[j].DaysSince
		}
		return classified[i].Lead.Name < classified[j].Lead.Name
	})
}
