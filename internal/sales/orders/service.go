package orders

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/smt-trading/crm/internal/sales/catalog"
	"github.com/smt-trading/crm/internal/sales/sequence"
	salesshared "github.com/smt-trading/crm/internal/sales/shared"
	"github.com/smt-trading/crm/internal/shared"
)

// NumberAllocator mints document numbers.
type NumberAllocator interface {
	Next(ctx context.Context, docType sequence.DocumentType) (string, error)
}

type Service struct {
	repo      Repository
	customers catalog.Directory
	products  catalog.Products
	numbers   NumberAllocator
	clock     shared.Clock
	policy    salesshared.Policy
	recorder  salesshared.Recorder
	logger    *slog.Logger
}

type Option func(*Service)

func WithClock(c shared.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithPolicy(p salesshared.Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithRecorder(r salesshared.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(repo Repository, customers catalog.Directory, products catalog.Products, numbers NumberAllocator, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		customers: customers,
		products:  products,
		numbers:   numbers,
		clock:     shared.SystemClock{},
		policy:    salesshared.PolicyPermissive,
		recorder:  salesshared.NopRecorder{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	currency, err := salesshared.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	if err := catalog.RequireCustomer(ctx, s.customers, req.CustomerID); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(req.Items))
	for i, it := range req.Items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d quantity must be positive", shared.ErrValidation, i+1)
		}
		unit, cost, err := catalog.ResolvePrices(ctx, s.products, it.ProductID, it.UnitPrice, it.CostPrice)
		if err != nil {
			return nil, err
		}
		if unit < 0 {
			return nil, fmt.Errorf("%w: item %d unit price must not be negative", shared.ErrValidation, i+1)
		}
		item := PendingItem(it.ProductID, it.Quantity, unit, cost)
		item.Description = it.Description
		item.SupplierID = it.SupplierID
		item.LineOrder = i + 1
		items = append(items, item)
	}

	number := req.OrderNumber
	if number == "" {
		number, err = s.numbers.Next(ctx, sequence.DocumentOrder)
		if err != nil {
			return nil, fmt.Errorf("allocate order number: %w", err)
		}
	}

	order := Confirmed(number, req.CustomerID, currency, salesshared.RecomputeTotals(Lines(items), req.TaxRate), s.clock.Now())
	order.QuotationID = req.QuotationID
	order.Notes = req.Notes

	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err = repo.Create(ctx, order)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := repo.InsertItems(ctx, id, items); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Advance moves the order one step along the canonical fulfilment path.
func (s *Service) Advance(ctx context.Context, id int64) (*Order, error) {
	var next Status
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		o, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		var ok bool
		next, ok = o.Status.Next()
		if !ok {
			return fmt.Errorf("%w: order %s is %s", shared.ErrInvalidTransition, o.OrderNumber, o.Status)
		}
		return repo.UpdateStatus(ctx, id, next, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	s.recorder.StatusChanged("order", string(next))
	return s.repo.Get(ctx, id)
}

// SetStatus jumps directly to status, subject to the transition policy.
func (s *Service) SetStatus(ctx context.Context, id int64, status string) (*Order, error) {
	to, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	var from Status
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		o, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = o.Status
		if !CanTransition(s.policy, from, to) {
			return fmt.Errorf("%w: order %s cannot move from %s to %s", shared.ErrInvalidTransition, o.OrderNumber, from, to)
		}
		return repo.UpdateStatus(ctx, id, to, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	if from != to {
		s.recorder.StatusChanged("order", string(to))
	}
	return s.repo.Get(ctx, id)
}

// SetItemStatus records procurement progress of a single line.
func (s *Service) SetItemStatus(ctx context.Context, orderID, itemID int64, status string) (*Order, error) {
	to, err := ParseItemStatus(status)
	if err != nil {
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		o, err := repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		var item *Item
		for i := range o.Items {
			if o.Items[i].ID == itemID {
				item = &o.Items[i]
				break
			}
		}
		if item == nil {
			return fmt.Errorf("%w: item %d on order %s", shared.ErrNotFound, itemID, o.OrderNumber)
		}
		if !CanTransitionItem(s.policy, item.Status, to) {
			return fmt.Errorf("%w: item %d cannot move from %s to %s", shared.ErrInvalidTransition, itemID, item.Status, to)
		}
		return repo.UpdateItemStatus(ctx, orderID, itemID, to, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	s.recorder.StatusChanged("order_item", string(to))
	return s.repo.Get(ctx, orderID)
}

// RecordPayment adds amount to the order's cumulative paid amount and rederives the
// payment status. The order row stays locked from read to write so concurrent payments
// serialise. A repeated idempotency key fails with shared.ErrConflict and changes nothing.
func (s *Service) RecordPayment(ctx context.Context, orderID int64, req RecordPaymentRequest) (*Order, error) {
	if req.Amount <= 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return nil, fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
	}

	var status PaymentStatus
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		now := s.clock.Now()
		if req.IdempotencyKey != "" {
			if err := repo.ClaimIdempotencyKey(ctx, req.IdempotencyKey, now); err != nil {
				return err
			}
		}
		o, err := repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		paid := salesshared.Round2(o.PaidAmount + req.Amount)
		status = DerivePaymentStatus(paid, o.TotalAmount)
		if o.TotalAmount > 0 && paid > o.TotalAmount {
			s.logger.Warn("order overpaid",
				slog.String("order_number", o.OrderNumber),
				slog.Float64("paid", paid),
				slog.Float64("total", o.TotalAmount))
		}
		if err := repo.ApplyPayment(ctx, orderID, paid, status, now); err != nil {
			return fmt.Errorf("apply payment: %w", err)
		}

		paidAt := now
		if req.PaidAt != nil {
			paidAt = *req.PaidAt
		}
		_, err = repo.InsertPayment(ctx, Payment{
			OrderID:   orderID,
			Reference: uuid.New(),
			Amount:    salesshared.Round2(req.Amount),
			PaidAt:    paidAt,
			Note:      req.Note,
		})
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recorder.PaymentRecorded(string(status), req.Amount)
	return s.repo.Get(ctx, orderID)
}

func (s *Service) ListPayments(ctx context.Context, orderID int64) ([]Payment, error) {
	if _, err := s.repo.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, orderID)
}

func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}
