package quotations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/smt-trading/crm/internal/sales/catalog"
	"github.com/smt-trading/crm/internal/sales/sequence"
	salesshared "github.com/smt-trading/crm/internal/sales/shared"
	"github.com/smt-trading/crm/internal/shared"
)

// DefaultValidity is how long a quotation stays open when no valid_until is given.
const DefaultValidity = 30 * 24 * time.Hour

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
	location  *time.Location
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

// WithLocation sets the timezone whose calendar decides when a validity date has passed.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.location = loc }
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
		location:  time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy reports the transition policy in force.
func (s *Service) Policy() salesshared.Policy {
	return s.policy
}

func (s *Service) Create(ctx context.Context, req CreateQuotationRequest) (*Quotation, error) {
	currency, err := salesshared.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	if err := catalog.RequireCustomer(ctx, s.customers, req.CustomerID); err != nil {
		return nil, err
	}
	items, err := s.buildItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	number := req.QuoteNumber
	if number == "" {
		number, err = s.numbers.Next(ctx, sequence.DocumentQuotation)
		if err != nil {
			return nil, fmt.Errorf("allocate quote number: %w", err)
		}
	}

	now := s.clock.Now()
	validUntil := now.Add(DefaultValidity)
	if req.ValidUntil != nil {
		validUntil = *req.ValidUntil
	}
	totals := salesshared.RecomputeTotals(lines(items), req.TaxRate)

	quotation := Quotation{
		QuoteNumber: number,
		CustomerID:  req.CustomerID,
		Status:      StatusDraft,
		Subtotal:    totals.Subtotal,
		TaxRate:     totals.TaxRate,
		TaxAmount:   totals.TaxAmount,
		TotalAmount: totals.TotalAmount,
		Currency:    currency,
		ValidUntil:  validUntil,
		Notes:       req.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err = repo.Create(ctx, quotation)
		if err != nil {
			return fmt.Errorf("create quotation: %w", err)
		}
		if err := repo.InsertItems(ctx, id, items); err != nil {
			return fmt.Errorf("insert quotation items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// ReplaceItems swaps the whole item set and recomputes totals. Terminal quotations
// are frozen.
func (s *Service) ReplaceItems(ctx context.Context, id int64, req ReplaceItemsRequest) (*Quotation, error) {
	items, err := s.buildItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if q.Status.Terminal() {
			return fmt.Errorf("%w: quotation %s is %s", shared.ErrInvalidTransition, q.QuoteNumber, q.Status)
		}
		taxRate := q.TaxRate
		if req.TaxRate != nil {
			taxRate = *req.TaxRate
		}
		totals := salesshared.RecomputeTotals(lines(items), taxRate)

		if err := repo.DeleteItems(ctx, id); err != nil {
			return fmt.Errorf("delete quotation items: %w", err)
		}
		if err := repo.InsertItems(ctx, id, items); err != nil {
			return fmt.Errorf("insert quotation items: %w", err)
		}
		return repo.UpdateTotals(ctx, id, totals, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// SetStatus moves a quotation to status. The first entry into sent and accepted stamps
// SentAt and AcceptedAt; later re-entries keep the original stamp.
func (s *Service) SetStatus(ctx context.Context, id int64, status string) (*Quotation, error) {
	to, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}

	var from Status
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = q.Status
		if !CanTransition(s.policy, from, to) {
			return fmt.Errorf("%w: quotation %s cannot move from %s to %s", shared.ErrInvalidTransition, q.QuoteNumber, from, to)
		}

		now := s.clock.Now()
		sentAt, acceptedAt := q.SentAt, q.AcceptedAt
		if to == StatusSent && sentAt == nil {
			sentAt = &now
		}
		if to == StatusAccepted && acceptedAt == nil {
			acceptedAt = &now
		}
		return repo.UpdateStatus(ctx, id, to, sentAt, acceptedAt, now)
	})
	if err != nil {
		return nil, err
	}
	if from != to {
		s.recorder.StatusChanged("quotation", string(to))
	}
	return s.repo.Get(ctx, id)
}

// ExpireOverdue marks every open quotation whose validity has lapsed as expired and
// returns how many were changed. A quotation stays valid through its valid_until date.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	now := s.clock.Now()
	local := now.In(s.location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	ids, err := s.repo.ExpireBefore(ctx, today, expirable, now)
	if err != nil {
		return 0, fmt.Errorf("expire quotations: %w", err)
	}
	for range ids {
		s.recorder.StatusChanged("quotation", string(StatusExpired))
	}
	if len(ids) > 0 {
		s.logger.Info("quotations expired", slog.Int("count", len(ids)), slog.String("cutoff", today.Format(time.DateOnly)))
	}
	return len(ids), nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Quotation, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Quotation, int, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) buildItems(ctx context.Context, reqs []ItemRequest) ([]Item, error) {
	items := make([]Item, 0, len(reqs))
	for i, req := range reqs {
		if req.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d quantity must be positive", shared.ErrValidation, i+1)
		}
		unit, cost, err := catalog.ResolvePrices(ctx, s.products, req.ProductID, req.UnitPrice, req.CostPrice)
		if err != nil {
			return nil, err
		}
		if unit < 0 {
			return nil, fmt.Errorf("%w: item %d unit price must not be negative", shared.ErrValidation, i+1)
		}
		items = append(items, Item{
			ProductID:   req.ProductID,
			Description: req.Description,
			Quantity:    req.Quantity,
			UnitPrice:   unit,
			CostPrice:   cost,
			Amount:      salesshared.LineAmount(req.Quantity, unit),
			LineOrder:   i + 1,
		})
	}
	return items, nil
}

func lines(items []Item) []salesshared.Line {
	out := make([]salesshared.Line, len(items))
	for i, it := range items {
		out[i] = salesshared.Line{Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}
	return out
}
