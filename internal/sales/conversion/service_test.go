package conversion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smt-trading/crm/internal/sales/catalog"
	"github.com/smt-trading/crm/internal/sales/orders"
	"github.com/smt-trading/crm/internal/sales/pipeline"
	"github.com/smt-trading/crm/internal/sales/quotations"
	"github.com/smt-trading/crm/internal/sales/sequence"
	salesshared "github.com/smt-trading/crm/internal/sales/shared"
	"github.com/smt-trading/crm/internal/shared"
)

// ============================================================================
// IN-MEMORY STORES
// ============================================================================

// The stores embed the repository interfaces and implement only what conversion and
// the scenario below exercise.

type memQuotations struct {
	quotations.Repository
	rows   map[int64]quotations.Quotation
	items  map[int64][]quotations.Item
	nextID int64
}

func (m *memQuotations) WithTx(ctx context.Context, fn func(context.Context, quotations.Repository) error) error {
	return fn(ctx, m)
}

func (m *memQuotations) Get(ctx context.Context, id int64) (*quotations.Quotation, error) {
	q, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: quotation %d", shared.ErrNotFound, id)
	}
	q.Items = append([]quotations.Item{}, m.items[id]...)
	return &q, nil
}

func (m *memQuotations) GetForUpdate(ctx context.Context, id int64) (*quotations.Quotation, error) {
	return m.Get(ctx, id)
}

func (m *memQuotations) Create(ctx context.Context, q quotations.Quotation) (int64, error) {
	m.nextID++
	q.ID = m.nextID
	m.rows[q.ID] = q
	return q.ID, nil
}

func (m *memQuotations) InsertItems(ctx context.Context, quotationID int64, items []quotations.Item) error {
	for i, it := range items {
		it.ID = int64(i + 1)
		it.QuotationID = quotationID
		m.items[quotationID] = append(m.items[quotationID], it)
	}
	return nil
}

func (m *memQuotations) UpdateStatus(ctx context.Context, id int64, status quotations.Status, sentAt, acceptedAt *time.Time, at time.Time) error {
	q, ok := m.rows[id]
	if !ok {
		return shared.ErrNotFound
	}
	q.Status, q.SentAt, q.AcceptedAt, q.UpdatedAt = status, sentAt, acceptedAt, at
	m.rows[id] = q
	return nil
}

type memOrders struct {
	orders.Repository
	rows        map[int64]orders.Order
	items       map[int64][]orders.Item
	nextID      int64
	nextItemID  int64
	failInserts bool
}

func (m *memOrders) WithTx(ctx context.Context, fn func(context.Context, orders.Repository) error) error {
	return fn(ctx, m)
}

func (m *memOrders) Get(ctx context.Context, id int64) (*orders.Order, error) {
	o, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
	}
	o.Items = append([]orders.Item{}, m.items[id]...)
	return &o, nil
}

func (m *memOrders) GetForUpdate(ctx context.Context, id int64) (*orders.Order, error) {
	return m.Get(ctx, id)
}

func (m *memOrders) Create(ctx context.Context, o orders.Order) (int64, error) {
	m.nextID++
	o.ID = m.nextID
	m.rows[o.ID] = o
	return o.ID, nil
}

func (m *memOrders) InsertItems(ctx context.Context, orderID int64, items []orders.Item) error {
	if m.failInserts {
		return errors.New("disk full")
	}
	for _, it := range items {
		m.nextItemID++
		it.ID = m.nextItemID
		it.OrderID = orderID
		m.items[orderID] = append(m.items[orderID], it)
	}
	return nil
}

func (m *memOrders) ApplyPayment(ctx context.Context, id int64, paid float64, status orders.PaymentStatus, at time.Time) error {
	o := m.rows[id]
	o.PaidAmount, o.PaymentStatus, o.UpdatedAt = paid, status, at
	m.rows[id] = o
	return nil
}

func (m *memOrders) InsertPayment(ctx context.Context, p orders.Payment) (int64, error) {
	return 1, nil
}

type memDeals struct {
	pipeline.Repository
	rows map[int64]pipeline.Deal
}

func (m *memDeals) Get(ctx context.Context, id int64) (*pipeline.Deal, error) {
	d, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: deal %d", shared.ErrNotFound, id)
	}
	return &d, nil
}

func (m *memDeals) GetForUpdate(ctx context.Context, id int64) (*pipeline.Deal, error) {
	return m.Get(ctx, id)
}

func (m *memDeals) SetQuotation(ctx context.Context, id, quotationID int64, at time.Time) error {
	d := m.rows[id]
	d.QuotationID, d.UpdatedAt = &quotationID, at
	m.rows[id] = d
	return nil
}

// memUnitOfWork restores every store when fn fails, like a rolled-back transaction.
type memUnitOfWork struct {
	mu         sync.Mutex
	open       atomic.Bool
	quotations *memQuotations
	orders     *memOrders
	deals      *memDeals
}

func newMemUnitOfWork() *memUnitOfWork {
	return &memUnitOfWork{
		quotations: &memQuotations{rows: map[int64]quotations.Quotation{}, items: map[int64][]quotations.Item{}},
		orders:     &memOrders{rows: map[int64]orders.Order{}, items: map[int64][]orders.Item{}},
		deals:      &memDeals{rows: map[int64]pipeline.Deal{}},
	}
}

func (u *memUnitOfWork) Do(ctx context.Context, fn func(context.Context, Stores) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	orderRows, orderItems := cloneMap(u.orders.rows), cloneMap(u.orders.items)
	nextID, nextItemID := u.orders.nextID, u.orders.nextItemID
	dealRows := cloneMap(u.deals.rows)

	u.open.Store(true)
	defer u.open.Store(false)
	err := fn(ctx, Stores{Quotations: u.quotations, Orders: u.orders, Deals: u.deals})
	if err != nil {
		u.orders.rows, u.orders.items = orderRows, orderItems
		u.orders.nextID, u.orders.nextItemID = nextID, nextItemID
		u.deals.rows = dealRows
	}
	return err
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ============================================================================
// COLLABORATORS
// ============================================================================

// outsideTx fails any allocation made while a unit of work is open.
type outsideTx struct {
	uow   *memUnitOfWork
	next  NumberAllocator
	calls int
}

func (a *outsideTx) Next(ctx context.Context, docType sequence.DocumentType) (string, error) {
	a.calls++
	if a.uow.open.Load() {
		return "", errors.New("number allocated inside a transaction")
	}
	return a.next.Next(ctx, docType)
}

type directory map[int64]catalog.Customer

func (d directory) GetCustomer(ctx context.Context, id int64) (*catalog.Customer, error) {
	c, ok := d[id]
	if !ok {
		return nil, fmt.Errorf("%w: customer %d", shared.ErrNotFound, id)
	}
	return &c, nil
}

type products map[int64]catalog.Product

func (p products) GetProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	pr, ok := p[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %d", shared.ErrNotFound, id)
	}
	return &pr, nil
}

var testNow = time.Date(2026, time.May, 14, 8, 30, 0, 0, time.UTC)

type fixture struct {
	uow        *memUnitOfWork
	numbers    *sequence.Allocator
	quotations *quotations.Service
	orders     *orders.Service
	service    *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := shared.FixedClock{At: testNow}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	customers := directory{1: {ID: 1, Code: "C-001", Name: "PT Surya Elektronik", IsActive: true}}
	catalogue := products{
		10: {ID: 10, PartNumber: "KXF-0DKDA00", UnitPrice: 1000, CostPrice: 700},
		11: {ID: 11, PartNumber: "N610071334AA", UnitPrice: 2000, CostPrice: 1500},
		12: {ID: 12, PartNumber: "KXF-0E3RA00", UnitPrice: 55.5, CostPrice: 30},
	}

	f := &fixture{uow: newMemUnitOfWork()}
	f.numbers = sequence.NewAllocator(sequence.NewRedisCounter(client, "sales:seq"), clock)
	f.quotations = quotations.NewService(f.uow.quotations, customers, catalogue, f.numbers,
		quotations.WithClock(clock), quotations.WithLogger(logger))
	f.orders = orders.NewService(f.uow.orders, customers, catalogue, f.numbers,
		orders.WithClock(clock), orders.WithLogger(logger))
	base := []Option{WithClock(clock), WithLogger(logger)}
	f.service = NewService(f.uow, f.numbers, append(base, opts...)...)
	return f
}

func (f *fixture) quotation(t *testing.T, statuses ...string) *quotations.Quotation {
	t.Helper()
	ctx := context.Background()
	desc := "feeder unit"
	q, err := f.quotations.Create(ctx, quotations.CreateQuotationRequest{
		CustomerID: 1,
		TaxRate:    10,
		Items: []quotations.ItemRequest{
			{ProductID: 10, Quantity: 10, Description: &desc},
			{ProductID: 11, Quantity: 5},
		},
	})
	require.NoError(t, err)
	for _, st := range statuses {
		q, err = f.quotations.SetStatus(ctx, q.ID, st)
		require.NoError(t, err)
	}
	return q
}

// ============================================================================
// TESTS
// ============================================================================

func TestQuotationToOrderCopiesEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	notes := "deliver to line 3"
	price := 99.99
	q, err := f.quotations.Create(ctx, quotations.CreateQuotationRequest{
		CustomerID: 1,
		TaxRate:    11,
		Currency:   "idr",
		Notes:      &notes,
		Items: []quotations.ItemRequest{
			{ProductID: 10, Quantity: 2},
			{ProductID: 11, Quantity: 1, UnitPrice: &price},
			{ProductID: 12, Quantity: 3},
		},
	})
	require.NoError(t, err)
	_, err = f.quotations.SetStatus(ctx, q.ID, "accepted")
	require.NoError(t, err)

	o, err := f.service.QuotationToOrder(ctx, q.ID)
	require.NoError(t, err)

	assert.Equal(t, "SC-ORD-202605-0001", o.OrderNumber)
	assert.Equal(t, orders.StatusConfirmed, o.Status)
	assert.Equal(t, orders.PaymentUnpaid, o.PaymentStatus)
	require.NotNil(t, o.QuotationID)
	assert.Equal(t, q.ID, *o.QuotationID)
	assert.Equal(t, q.CustomerID, o.CustomerID)
	assert.Equal(t, "IDR", o.Currency)
	assert.Equal(t, q.Subtotal, o.Subtotal)
	assert.Equal(t, q.TaxAmount, o.TaxAmount)
	assert.Equal(t, q.TotalAmount, o.TotalAmount)
	assert.Equal(t, &notes, o.Notes)

	require.Len(t, o.Items, 3)
	for i, it := range o.Items {
		src := q.Items[i]
		assert.Equal(t, src.ProductID, it.ProductID)
		assert.Equal(t, src.Quantity, it.Quantity)
		assert.Equal(t, src.UnitPrice, it.UnitPrice)
		assert.Equal(t, src.CostPrice, it.CostPrice)
		assert.Equal(t, src.Amount, it.Amount)
		assert.Equal(t, orders.ItemPending, it.Status)
		assert.Equal(t, o.ID, it.OrderID)
	}
	assert.Equal(t, 166.5, o.Items[2].Amount)
}

func TestQuotationToOrderIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	q := f.quotation(t, "sent", "accepted")
	f.uow.orders.failInserts = true

	_, err := f.service.QuotationToOrder(context.Background(), q.ID)
	require.Error(t, err)
	assert.Empty(t, f.uow.orders.rows)
	assert.Empty(t, f.uow.orders.items)

	f.uow.orders.failInserts = false
	o, err := f.service.QuotationToOrder(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, "SC-ORD-202605-0002", o.OrderNumber, "the number burned by the failed attempt is not reused")
}

func TestQuotationToOrderAcceptanceGuard(t *testing.T) {
	ctx := context.Background()

	permissive := newFixture(t)
	draft := permissive.quotation(t)
	o, err := permissive.service.QuotationToOrder(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.TotalAmount, o.TotalAmount)

	strict := newFixture(t, WithPolicy(salesshared.PolicyStrict))
	sent := strict.quotation(t, "sent")
	_, err = strict.service.QuotationToOrder(ctx, sent.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = strict.service.QuotationToOrder(ctx, 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestQuotationToOrderAllocatesOutsideTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.quotation(t, "sent", "accepted")
	alloc := &outsideTx{uow: f.uow, next: f.numbers}
	svc := NewService(f.uow, alloc, WithClock(shared.FixedClock{At: testNow}))

	o, err := svc.QuotationToOrder(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, alloc.calls)
	assert.Equal(t, "SC-ORD-202605-0001", o.OrderNumber)
}

func TestQuotationToOrderGuardKeepsNumber(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithPolicy(salesshared.PolicyStrict))
	sent := f.quotation(t, "sent")

	_, err := f.service.QuotationToOrder(ctx, sent.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = f.quotations.SetStatus(ctx, sent.ID, "accepted")
	require.NoError(t, err)
	o, err := f.service.QuotationToOrder(ctx, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, "SC-ORD-202605-0001", o.OrderNumber, "a rejected conversion allocates nothing")
}

func TestDealToQuotation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.quotation(t)
	f.uow.deals.rows[7] = pipeline.Deal{ID: 7, Title: "Feeder refresh", Stage: pipeline.StageWon}

	d, err := f.service.DealToQuotation(ctx, 7, q.ID)
	require.NoError(t, err)
	require.NotNil(t, d.QuotationID)
	assert.Equal(t, q.ID, *d.QuotationID)
	assert.Equal(t, testNow, d.UpdatedAt)

	_, err = f.service.DealToQuotation(ctx, 7, 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.service.DealToQuotation(ctx, 8, q.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Equal(t, q.ID, *f.uow.deals.rows[7].QuotationID)
}

// TestQuoteToCashScenario walks a quotation from draft to a fully paid order.
func TestQuoteToCashScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithPolicy(salesshared.PolicyStrict))

	q := f.quotation(t)
	assert.Equal(t, "SC-Q-2026-0001", q.QuoteNumber)
	assert.Equal(t, 20000.0, q.Subtotal)
	assert.Equal(t, 2000.0, q.TaxAmount)
	assert.Equal(t, 22000.0, q.TotalAmount)

	for _, st := range []string{"sent", "viewed", "accepted"} {
		var err error
		q, err = f.quotations.SetStatus(ctx, q.ID, st)
		require.NoError(t, err)
	}
	require.NotNil(t, q.SentAt)
	require.NotNil(t, q.AcceptedAt)

	o, err := f.service.QuotationToOrder(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 22000.0, o.TotalAmount)

	o, err = f.orders.RecordPayment(ctx, o.ID, orders.RecordPaymentRequest{Amount: 10000})
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPartial, o.PaymentStatus)

	o, err = f.orders.RecordPayment(ctx, o.ID, orders.RecordPaymentRequest{Amount: 12000})
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, 22000.0, o.PaidAmount)
	assert.Equal(t, orders.StatusConfirmed, o.Status, "payments never move fulfilment status")
}
