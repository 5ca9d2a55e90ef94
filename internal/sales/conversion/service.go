// Package conversion turns quotations into orders and links deals to the quotations
// they produced.
package conversion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/smt-trading/crm/internal/sales/orders"
	"github.com/smt-trading/crm/internal/sales/pipeline"
	"github.com/smt-trading/crm/internal/sales/quotations"
	"github.com/smt-trading/crm/internal/sales/sequence"
	salesshared "github.com/smt-trading/crm/internal/sales/shared"
	"github.com/smt-trading/crm/internal/shared"
)

// NumberAllocator mints document numbers.
type NumberAllocator interface {
	Next(ctx context.Context, docType sequence.DocumentType) (string, error)
}

type Service struct {
	uow      UnitOfWork
	numbers  NumberAllocator
	clock    shared.Clock
	policy   salesshared.Policy
	recorder salesshared.Recorder
	logger   *slog.Logger
}

type Option func(*Service)

func WithClock(c shared.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithPolicy sets the transition policy. Only the strict policy requires a quotation to
// be accepted before it converts.
func WithPolicy(p salesshared.Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithRecorder(r salesshared.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(uow UnitOfWork, numbers NumberAllocator, opts ...Option) *Service {
	s := &Service{
		uow:      uow,
		numbers:  numbers,
		clock:    shared.SystemClock{},
		policy:   salesshared.PolicyPermissive,
		recorder: salesshared.NopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QuotationToOrder creates a confirmed, unpaid order from a quotation, copying its
// customer, currency, totals and every line. The order and its items commit together or
// not at all. The order number is allocated between a validating read and the write
// transaction, so no transaction holds a connection while the counter needs another. A
// number allocated for a conversion that then fails is not reused.
func (s *Service) QuotationToOrder(ctx context.Context, quotationID int64) (*orders.Order, error) {
	err := s.uow.Do(ctx, func(ctx context.Context, st Stores) error {
		q, err := st.Quotations.Get(ctx, quotationID)
		if err != nil {
			return err
		}
		return s.checkConvertible(q, true)
	})
	if err != nil {
		return nil, err
	}

	number, err := s.numbers.Next(ctx, sequence.DocumentOrder)
	if err != nil {
		return nil, fmt.Errorf("allocate order number: %w", err)
	}

	var created *orders.Order
	err = s.uow.Do(ctx, func(ctx context.Context, st Stores) error {
		q, err := st.Quotations.GetForUpdate(ctx, quotationID)
		if err != nil {
			return err
		}
		if err := s.checkConvertible(q, false); err != nil {
			return err
		}

		now := s.clock.Now()
		order := orders.Confirmed(number, q.CustomerID, q.Currency, salesshared.Totals{
			Subtotal:    q.Subtotal,
			TaxRate:     q.TaxRate,
			TaxAmount:   q.TaxAmount,
			TotalAmount: q.TotalAmount,
		}, now)
		order.QuotationID = &q.ID
		order.Notes = q.Notes

		items := make([]orders.Item, len(q.Items))
		for i, it := range q.Items {
			items[i] = orders.PendingItem(it.ProductID, it.Quantity, it.UnitPrice, it.CostPrice)
			items[i].Description = it.Description
			items[i].LineOrder = i + 1
		}

		id, err := st.Orders.Create(ctx, order)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := st.Orders.InsertItems(ctx, id, items); err != nil {
			return fmt.Errorf("copy items: %w", err)
		}
		created, err = st.Orders.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recorder.StatusChanged("order", string(created.Status))
	s.logger.Info("quotation converted",
		slog.Int64("quotation_id", quotationID), slog.String("order_number", created.OrderNumber))
	return created, nil
}

// checkConvertible applies the acceptance guard and rejects empty quotations.
func (s *Service) checkConvertible(q *quotations.Quotation, warn bool) error {
	if q.Status != quotations.StatusAccepted {
		if s.policy == salesshared.PolicyStrict {
			return fmt.Errorf("%w: quotation %s is %s, not accepted", shared.ErrInvalidTransition, q.QuoteNumber, q.Status)
		}
		if warn {
			s.logger.Warn("converting quotation that is not accepted",
				slog.Int64("quotation_id", q.ID), slog.String("status", string(q.Status)))
		}
	}
	if len(q.Items) == 0 {
		return fmt.Errorf("%w: quotation %s has no items", shared.ErrValidation, q.QuoteNumber)
	}
	return nil
}

// DealToQuotation links a deal to the quotation it converted into.
func (s *Service) DealToQuotation(ctx context.Context, dealID, quotationID int64) (*pipeline.Deal, error) {
	var linked *pipeline.Deal
	err := s.uow.Do(ctx, func(ctx context.Context, st Stores) error {
		if _, err := st.Quotations.Get(ctx, quotationID); err != nil {
			return err
		}
		var err error
		linked, err = pipeline.LinkQuotation(ctx, st.Deals, dealID, quotationID, s.clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return linked, nil
}
