package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/panopticon/internal/cache"
	"github.com/jonathan/panopticon/internal/classify"
	"github.com/jonathan/panopticon/internal/crm"
	"github.com/jonathan/panopticon/internal/lead"
)

type fakeBulkAPI struct {
	leads         []lead.Lead
	leadsErr      error
	leadCalls     int
	deliveries    []lead.Delivery
	deliveriesErr error
}

func (f *fakeBulkAPI) FetchLeads(_ context.Context) ([]lead.Lead, error) {
	f.leadCalls++
	return f.leads, f.leadsErr
}

func (f *fakeBulkAPI) FetchDeliveries(_ context.Context) ([]lead.Delivery, error) {
	return f.deliveries, f.deliveriesErr
}

// fakeSnapshotStore is an in-memory SnapshotCache with controllable staleness.
type fakeSnapshotStore struct {
	freshLeads    []lead.Lead
	freshLeadsAt  *time.Time
	staleLeads    []lead.Lead
	staleLeadsAt  *time.Time
	deliveries    []lead.Delivery
	cleared       []string
	savedLeads    [][]lead.Lead
	today         *cache.StatusCounts
	savedStatuses []cache.StatusCounts
}

func (f *fakeSnapshotStore) GetLeadsSnapshot(_ context.Context) ([]lead.Lead, *time.Time, error) {
	return f.freshLeads, f.freshLeadsAt, nil
}

func (f *fakeSnapshotStore) LastLeadsSnapshot(_ context.Context) ([]lead.Lead, *time.Time, error) {
	return f.staleLeads, f.staleLeadsAt, nil
}

func (f *fakeSnapshotStore) SetLeadsSnapshot(_ context.Context, leads []lead.Lead) error {
	f.savedLeads = append(f.savedLeads, leads)
	return nil
}

func (f *fakeSnapshotStore) GetDeliveriesSnapshot(_ context.Context) ([]lead.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeSnapshotStore) SetDeliveriesSnapshot(_ context.Context, _ []lead.Delivery) error {
	return nil
}

func (f *fakeSnapshotStore) ClearSnapshot(_ context.Context, key string) error {
	f.cleared = append(f.cleared, key)
	if key == cache.LeadsKey {
		f.freshLeads = nil
	}
	if key == cache.DeliveriesKey {
		f.deliveries = nil
	}
	return nil
}

func (f *fakeSnapshotStore) TodaySnapshot(_ context.Context) (*cache.StatusCounts, error) {
	return f.today, nil
}

func (f *fakeSnapshotStore) SaveStatusSnapshot(_ context.Context, counts cache.StatusCounts) error {
	f.savedStatuses = append(f.savedStatuses, counts)
	return nil
}

func newTestOrchestrator(api *fakeBulkAPI, store *fakeSnapshotStore) *Orchestrator {
	timeline := newFakeAPI()
	batch := NewBatchFetcher(timeline, &fakeTokens{}, newMemHistoryCache(), newMemNoteCache(), 0)
	engine := classify.NewEngine(classify.DefaultThresholds())
	return NewOrchestrator(api, store, batch, engine, nil, crm.NewSyncContext())
}

func appointment(daysAgo int) *time.Time {
	t := time.Now().UTC().AddDate(0, 0, -daysAgo)
	return &t
}

func TestCycle_ClassifiesAndSortsWorstFirst(t *testing.T) {
	api := &fakeBulkAPI{
		leads: []lead.Lead{
			{ID: "healthy", Name: "Done Deal", CurrentStage: "Green/Delivered", AppointmentDate: appointment(3)},
			{ID: "stale", Name: "Forgotten", CurrentStage: "HLM Follow up", AppointmentDate: appointment(20)},
			{ID: "atrisk", Name: "Ignored", CurrentStage: lead.StageAwaitingAck, AppointmentDate: appointment(3)},
		},
	}
	store := &fakeSnapshotStore{}
	o := newTestOrchestrator(api, store)

	result, err := o.Cycle(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Leads, 3)

	assert.Equal(t, lead.StatusStale, result.Leads[0].Status)
	assert.Equal(t, lead.StatusAtRisk, result.Leads[1].Status)
	assert.Equal(t, lead.StatusHealthy, result.Leads[2].Status)
	assert.NotEqual(t, result.RunID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Empty(t, result.Partial)

	// The fetched list was snapshotted for the next cycle.
	require.Len(t, store.savedLeads, 1)
}

func TestCycle_ServesFreshSnapshotWithoutFetching(t *testing.T) {
	cachedAt := time.Now().UTC().Add(-time.Hour)
	api := &fakeBulkAPI{leadsErr: errors.New("should not be called")}
	store := &fakeSnapshotStore{
		freshLeads:   []lead.Lead{{ID: "1", Name: "Cached", CurrentStage: "Green/Delivered"}},
		freshLeadsAt: &cachedAt,
	}
	o := newTestOrchestrator(api, store)

	result, err := o.Cycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, api.leadCalls)
	require.NotNil(t, result.LastUpdated)
	assert.Equal(t, cachedAt, *result.LastUpdated)
}

func TestCycle_DegradesToStaleSnapshot(t *testing.T) {
	staleAt := time.Now().UTC().Add(-48 * time.Hour)
	api := &fakeBulkAPI{leadsErr: errors.New("CRM down")}
	store := &fakeSnapshotStore{
		staleLeads:   []lead.Lead{{ID: "1", Name: "Old Copy", CurrentStage: "Green/Delivered"}},
		staleLeadsAt: &staleAt,
	}
	o := newTestOrchestrator(api, store)

	result, err := o.Cycle(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Leads, 1)
	assert.Contains(t, result.Partial, "cached data")
	require.NotNil(t, result.LastUpdated)
	assert.Equal(t, staleAt, *result.LastUpdated)
}

func TestCycle_HardFailureWithoutAnySnapshot(t *testing.T) {
	api := &fakeBulkAPI{leadsErr: errors.New("CRM down")}
	o := newTestOrchestrator(api, &fakeSnapshotStore{})

	_, err := o.Cycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no cached snapshot")
}

func TestCycle_DeliveriesAreBestEffort(t *testing.T) {
	api := &fakeBulkAPI{
		leads:         []lead.Lead{{ID: "1", Name: "Lead", CurrentStage: "Green/Delivered"}},
		deliveriesErr: errors.New("COQL unavailable"),
	}
	o := newTestOrchestrator(api, &fakeSnapshotStore{})

	result, err := o.Cycle(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Leads, 1)
	assert.Contains(t, result.Partial, "Delivery records unavailable")
}

func TestCycle_SavesDailyStatusSnapshotOnce(t *testing.T) {
	api := &fakeBulkAPI{
		leads: []lead.Lead{{ID: "1", Name: "Lead", CurrentStage: "Green/Delivered", AppointmentDate: appointment(1)}},
	}
	store := &fakeSnapshotStore{}
	o := newTestOrchestrator(api, store)

	_, err := o.Cycle(context.Background())
	require.NoError(t, err)
	require.Len(t, store.savedStatuses, 1)
	assert.Equal(t, 1, store.savedStatuses[0].Healthy)

	// A snapshot already recorded today suppresses a second save.
	store.today = &cache.StatusCounts{Healthy: 1}
	_, err = o.Cycle(context.Background())
	require.NoError(t, err)
	assert.Len(t, store.savedStatuses, 1)
}

func TestForceRefresh_DropsSnapshotsFirst(t *testing.T) {
	cachedAt := time.Now().UTC()
	api := &fakeBulkAPI{
		leads: []lead.Lead{{ID: "fresh", Name: "Fresh", CurrentStage: "Green/Delivered"}},
	}
	store := &fakeSnapshotStore{
		freshLeads:   []lead.Lead{{ID: "cached", Name: "Cached", CurrentStage: "Green/Delivered"}},
		freshLeadsAt: &cachedAt,
	}
	o := newTestOrchestrator(api, store)

	result, err := o.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{cache.LeadsKey, cache.DeliveriesKey}, store.cleared)
	assert.Equal(t, 1, api.leadCalls)
	require.Len(t, result.Leads, 1)
	assert.Equal(t, "fresh", result.Leads[0].Lead.ID)
}

func TestCycle_ContactResolution(t *testing.T) {
	api := &fakeBulkAPI{
		leads: []lead.Lead{{ID: "1", Name: "Lead", CurrentStage: "Green/Delivered", LocatorName: "Dana Whitfield"}},
	}
	store := &fakeSnapshotStore{}
	timeline := newFakeAPI()
	batch := NewBatchFetcher(timeline, &fakeTokens{}, newMemHistoryCache(), newMemNoteCache(), 0)
	directory := lead.NewStaticDirectory([]lead.Contact{{Name: "Dana Whitfield", Phone: "5550102000"}})
	o := NewOrchestrator(api, store, batch, classify.NewEngine(classify.DefaultThresholds()), directory, crm.NewSyncContext())

	result, err := o.Cycle(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Leads, 1)
	assert.Equal(t, "tel:5550102000", result.Leads[0].Contact.Phone)
}
