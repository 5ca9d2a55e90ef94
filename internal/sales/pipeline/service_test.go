package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/smt-trading/crm/internal/platform/cache"
	"github.com/smt-trading/crm/internal/sales/catalog"
	salesshared "github.com/smt-trading/crm/internal/sales/shared"
	"github.com/smt-trading/crm/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	mu          sync.Mutex
	deals       map[int64]*Deal
	history     []StageChange
	nextID      int64
	totalsCalls atomic.Int32
}

func newMockRepository() *mockRepository {
	return &mockRepository{deals: make(map[int64]*Deal), nextID: 1}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *mockRepository) Get(ctx context.Context, id int64) (*Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deals[id]
	if !ok {
		return nil, fmt.Errorf("%w: deal %d", shared.ErrNotFound, id)
	}
	out := *d
	out.Tags = append([]string{}, d.Tags...)
	return &out, nil
}

func (m *mockRepository) GetForUpdate(ctx context.Context, id int64) (*Deal, error) {
	return m.Get(ctx, id)
}

func (m *mockRepository) List(ctx context.Context, filter ListFilter) ([]Deal, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Deal{}
	for _, d := range m.deals {
		if filter.Stage != nil && d.Stage != *filter.Stage {
			continue
		}
		if filter.Tag != "" && !hasTag(d.Tags, filter.Tag) {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (m *mockRepository) Create(ctx context.Context, d Deal) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = m.nextID
	m.nextID++
	m.deals[d.ID] = &d
	return d.ID, nil
}

func (m *mockRepository) Update(ctx context.Context, d Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deals[d.ID]; !ok {
		return shared.ErrNotFound
	}
	m.deals[d.ID] = &d
	return nil
}

func (m *mockRepository) UpdateStage(ctx context.Context, id int64, stage Stage, actualClose *time.Time, lostReason *string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deals[id]
	if !ok {
		return shared.ErrNotFound
	}
	d.Stage, d.ActualCloseDate, d.LostReason, d.UpdatedAt = stage, actualClose, lostReason, at
	return nil
}

func (m *mockRepository) SetQuotation(ctx context.Context, id, quotationID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deals[id]
	if !ok {
		return fmt.Errorf("%w: deal %d", shared.ErrNotFound, id)
	}
	d.QuotationID, d.UpdatedAt = &quotationID, at
	return nil
}

func (m *mockRepository) AppendHistory(ctx context.Context, c StageChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = int64(len(m.history) + 1)
	m.history = append(m.history, c)
	return nil
}

func (m *mockRepository) History(ctx context.Context, dealID int64) ([]StageChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []StageChange{}
	for _, c := range m.history {
		if c.DealID == dealID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockRepository) StageTotals(ctx context.Context) ([]StageStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.totalsCalls.Add(1)
	m.mu.Lock()
	deals := make([]Deal, 0, len(m.deals))
	for _, d := range m.deals {
		deals = append(deals, *d)
	}
	m.mu.Unlock()
	return aggregate(deals).Stages, nil
}

// aggregate is the in-memory equivalent of the StageTotals query.
func aggregate(deals []Deal) Summary {
	byStage := make(map[Stage]*StageStat)
	for _, d := range deals {
		st, ok := byStage[d.Stage]
		if !ok {
			st = &StageStat{Stage: d.Stage}
			byStage[d.Stage] = st
		}
		st.Count++
		if d.DealValue != nil {
			st.TotalValue += *d.DealValue
		}
		st.WeightedValue += WeightedValue(d.DealValue, d.Probability)
	}
	rows := make([]StageStat, 0, len(byStage))
	for _, st := range byStage {
		rows = append(rows, *st)
	}
	return Summarize(rows)
}

// ============================================================================
// COLLABORATORS
// ============================================================================

type directory map[int64]catalog.Customer

func (d directory) GetCustomer(ctx context.Context, id int64) (*catalog.Customer, error) {
	c, ok := d[id]
	if !ok {
		return nil, fmt.Errorf("%w: customer %d", shared.ErrNotFound, id)
	}
	return &c, nil
}

type stageRecorder struct {
	salesshared.NopRecorder
	mu       sync.Mutex
	statuses []string
}

func (r *stageRecorder) StatusChanged(entity, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, entity+":"+status)
}

type mutableClock struct{ at time.Time }

func (c *mutableClock) Now() time.Time { return c.at }

var testNow = time.Date(2026, time.April, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	repo     *mockRepository
	clock    *mutableClock
	recorder *stageRecorder
	service  *Service
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{repo: newMockRepository(), clock: &mutableClock{at: testNow}, recorder: &stageRecorder{}}
	base := []Option{WithClock(f.clock), WithRecorder(f.recorder)}
	f.service = NewService(
		f.repo,
		directory{1: {ID: 1, Code: "C-001", Name: "PT Surya Elektronik", IsActive: true}},
		append(base, opts...)...,
	)
	return f
}

func ptr[T any](v T) *T { return &v }

func (f *fixture) createDeal(t *testing.T, title string, value float64, probability int) *Deal {
	t.Helper()
	d, err := f.service.CreateDeal(context.Background(), CreateDealRequest{
		Title:       title,
		DealValue:   ptr(value),
		Probability: ptr(probability),
	})
	require.NoError(t, err)
	return d
}

func (f *fixture) moveTo(t *testing.T, id int64, stage Stage) *Deal {
	t.Helper()
	d, err := f.service.SetStage(context.Background(), id, SetStageRequest{Stage: string(stage)})
	require.NoError(t, err)
	return d
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateDealStartsAsLead(t *testing.T) {
	f := newFixture()
	d, err := f.service.CreateDeal(context.Background(), CreateDealRequest{
		Title:      "  CM602 feeder retrofit  ",
		CustomerID: ptr(int64(1)),
		Tags:       []string{"feeder", " feeder ", "", "retrofit"},
	})
	require.NoError(t, err)

	assert.Equal(t, "CM602 feeder retrofit", d.Title)
	assert.Equal(t, StageLead, d.Stage)
	assert.Equal(t, []string{"feeder", "retrofit"}, d.Tags)
	assert.Nil(t, d.ActualCloseDate)
	assert.Equal(t, testNow, d.CreatedAt)
}

func TestCreateDealValidation(t *testing.T) {
	cases := map[string]CreateDealRequest{
		"blank title":      {Title: "   "},
		"probability high": {Title: "x", Probability: ptr(101)},
		"probability low":  {Title: "x", Probability: ptr(-1)},
		"unknown customer": {Title: "x", CustomerID: ptr(int64(9))},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newFixture().service.CreateDeal(context.Background(), req)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestUpdateDealKeepsUnsetFields(t *testing.T) {
	f := newFixture()
	d := f.createDeal(t, "NPM nozzle batch", 1200, 40)

	updated, err := f.service.Update(context.Background(), d.ID, UpdateDealRequest{
		Probability: ptr(60),
		Tags:        ptr([]string{"nozzle"}),
	})
	require.NoError(t, err)
	assert.Equal(t, "NPM nozzle batch", updated.Title)
	assert.Equal(t, 1200.0, *updated.DealValue)
	assert.Equal(t, 60, *updated.Probability)
	assert.Equal(t, []string{"nozzle"}, updated.Tags)

	_, err = f.service.Update(context.Background(), d.ID, UpdateDealRequest{Probability: ptr(150)})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.Update(context.Background(), 99, UpdateDealRequest{})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSetStageStampsCloseDateOnEveryEntry(t *testing.T) {
	f := newFixture()
	d := f.createDeal(t, "Reflow oven spares", 5000, 50)

	won := f.moveTo(t, d.ID, StageWon)
	require.NotNil(t, won.ActualCloseDate)
	assert.Equal(t, testNow, *won.ActualCloseDate)

	f.clock.at = testNow.Add(48 * time.Hour)
	reopened := f.moveTo(t, d.ID, StageNegotiation)
	assert.Equal(t, testNow, *reopened.ActualCloseDate, "leaving a closed stage keeps the close date")

	f.clock.at = testNow.Add(72 * time.Hour)
	again := f.moveTo(t, d.ID, StageWon)
	assert.Equal(t, testNow.Add(72*time.Hour), *again.ActualCloseDate)
}

func TestSetStageLostReason(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	d := f.createDeal(t, "Mounter head overhaul", 800, 20)

	lost, err := f.service.SetStage(ctx, d.ID, SetStageRequest{Stage: "lost", LostReason: ptr("price")})
	require.NoError(t, err)
	require.NotNil(t, lost.LostReason)
	assert.Equal(t, "price", *lost.LostReason)

	// Re-entering lost without a reason keeps the previous one.
	f.moveTo(t, d.ID, StageProposal)
	relost := f.moveTo(t, d.ID, StageLost)
	assert.Equal(t, "price", *relost.LostReason)

	// A reason given for any other stage is ignored.
	other := f.createDeal(t, "Spare belts", 100, 10)
	q, err := f.service.SetStage(ctx, other.ID, SetStageRequest{Stage: "qualified", LostReason: ptr("n/a")})
	require.NoError(t, err)
	assert.Nil(t, q.LostReason)
}

func TestSetStageRecordsHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	d := f.createDeal(t, "Vision camera", 3000, 30)

	f.moveTo(t, d.ID, StageQualified)
	f.moveTo(t, d.ID, StageQualified)
	f.moveTo(t, d.ID, StageProposal)

	history, err := f.service.History(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, StageLead, history[0].FromStage)
	assert.Equal(t, StageQualified, history[0].ToStage)
	assert.Equal(t, StageProposal, history[1].ToStage)
	assert.Equal(t, []string{"deal:qualified", "deal:proposal"}, f.recorder.statuses)

	_, err = f.service.History(ctx, 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSetStageRejectsUnknownStage(t *testing.T) {
	f := newFixture()
	d := f.createDeal(t, "x", 1, 1)
	_, err := f.service.SetStage(context.Background(), d.ID, SetStageRequest{Stage: "closed"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestStrictPolicyKeepsClosedDealsClosed(t *testing.T) {
	f := newFixture(WithPolicy(salesshared.PolicyStrict))
	d := f.createDeal(t, "Solder paste printer", 9000, 70)

	f.moveTo(t, d.ID, StageNegotiation)
	f.moveTo(t, d.ID, StageProposal)
	f.moveTo(t, d.ID, StageWon)

	_, err := f.service.SetStage(context.Background(), d.ID, SetStageRequest{Stage: "lost"})
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	f.moveTo(t, d.ID, StageWon)
}

func TestCanTransition(t *testing.T) {
	for _, from := range stageOrder {
		for _, to := range stageOrder {
			assert.True(t, CanTransition(salesshared.PolicyPermissive, from, to), "%s -> %s", from, to)
			want := from == to || !from.Closed()
			assert.Equal(t, want, CanTransition(salesshared.PolicyStrict, from, to), "%s -> %s", from, to)
		}
	}
}

func TestWeightedSummary(t *testing.T) {
	deals := []Deal{
		{Stage: StageLead, DealValue: ptr(100.0), Probability: ptr(50)},
		{Stage: StageProposal, DealValue: ptr(200.0), Probability: ptr(25)},
		{Stage: StageWon, DealValue: ptr(500.0), Probability: ptr(100)},
		{Stage: StageLead, Probability: ptr(80)},
		{Stage: StageProposal, DealValue: ptr(40.0)},
	}
	summary := aggregate(deals)

	assert.Equal(t, 100.0, summary.TotalWeighted)
	require.Len(t, summary.Stages, 3)
	assert.Equal(t, StageStat{Stage: StageLead, Count: 2, TotalValue: 100, WeightedValue: 50}, summary.Stages[0])
	assert.Equal(t, StageStat{Stage: StageProposal, Count: 2, TotalValue: 240, WeightedValue: 50}, summary.Stages[1])
	assert.Equal(t, StageStat{Stage: StageWon, Count: 1, TotalValue: 500, WeightedValue: 500}, summary.Stages[2])

	assert.Empty(t, aggregate(nil).Stages)
}

func newStatsCache(t *testing.T) *cache.Versioned {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewVersioned(client, "sales:pipeline", time.Minute)
}

func TestStatsCachedUntilDealChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(WithStatsCache(newStatsCache(t)))
	lead := f.createDeal(t, "Feeder carts", 100, 50)
	f.createDeal(t, "Tape splicers", 200, 25)

	first, err := f.service.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, first.TotalWeighted)

	_, err = f.service.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.repo.totalsCalls.Load())

	f.moveTo(t, lead.ID, StageWon)
	after, err := f.service.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.repo.totalsCalls.Load())
	assert.Equal(t, 50.0, after.TotalWeighted)
}

func TestStatsWithoutCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.createDeal(t, "Feeder carts", 100, 50)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			s, err := f.service.Stats(ctx)
			if err != nil {
				return err
			}
			if s.TotalWeighted != 50 {
				return fmt.Errorf("unexpected total %v", s.TotalWeighted)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.LessOrEqual(t, f.repo.totalsCalls.Load(), int32(8))
}

func TestLinkQuotation(t *testing.T) {
	f := newFixture()
	d := f.createDeal(t, "Nozzle cleaner", 700, 60)

	f.clock.at = f.clock.at.Add(time.Hour)

	linked, err := LinkQuotation(context.Background(), f.repo, d.ID, 42, f.clock.Now())
	require.NoError(t, err)
	require.NotNil(t, linked.QuotationID)
	assert.Equal(t, int64(42), *linked.QuotationID)
	assert.Equal(t, f.clock.Now(), linked.UpdatedAt)
	assert.Equal(t, d.Stage, linked.Stage)

	_, err = LinkQuotation(context.Background(), f.repo, 99, 42, f.clock.Now())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStatsLoadSurvivesCallerCancellation(t *testing.T) {
	f := newFixture()
	f.createDeal(t, "Feeder cart", 300, 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.service.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, summary.Stages, 1)
	assert.Equal(t, 150.0, summary.TotalWeighted)
}

func TestListFiltersByTag(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, err := f.service.CreateDeal(ctx, CreateDealRequest{Title: "a", Tags: []string{"feeder"}})
	require.NoError(t, err)
	_, err = f.service.CreateDeal(ctx, CreateDealRequest{Title: "b", Tags: []string{"nozzle"}})
	require.NoError(t, err)

	deals, total, err := f.service.List(ctx, ListFilter{Tag: "nozzle"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "b", deals[0].Title)
}
