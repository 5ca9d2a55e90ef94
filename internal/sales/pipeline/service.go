package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/smt-trading/crm/internal/platform/cache"
	"github.com/smt-trading/crm/internal/sales/catalog"
	salesshared "github.com/smt-trading/crm/internal/sales/shared"
	"github.com/smt-trading/crm/internal/shared"
)

type Service struct {
	repo      Repository
	customers catalog.Directory
	cache     *cache.Versioned
	group     singleflight.Group
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

// WithStatsCache caches Stats results. Every deal write bumps the cache version.
func WithStatsCache(c *cache.Versioned) Option {
	return func(s *Service) { s.cache = c }
}

func NewService(repo Repository, customers catalog.Directory, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		customers: customers,
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

func (s *Service) CreateDeal(ctx context.Context, req CreateDealRequest) (*Deal, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", shared.ErrValidation)
	}
	if err := validateProbability(req.Probability); err != nil {
		return nil, err
	}
	if req.CustomerID != nil {
		if err := catalog.RequireCustomer(ctx, s.customers, *req.CustomerID); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	deal := Deal{
		Title:             title,
		CustomerID:        req.CustomerID,
		Stage:             StageLead,
		DealValue:         req.DealValue,
		Probability:       req.Probability,
		ExpectedCloseDate: req.ExpectedCloseDate,
		Tags:              normalizeTags(req.Tags),
		Notes:             req.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	id, err := s.repo.Create(ctx, deal)
	if err != nil {
		return nil, fmt.Errorf("create deal: %w", err)
	}
	s.invalidate(ctx)
	return s.repo.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateDealRequest) (*Deal, error) {
	if err := validateProbability(req.Probability); err != nil {
		return nil, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		d, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Title != nil {
			d.Title = strings.TrimSpace(*req.Title)
		}
		if req.DealValue != nil {
			d.DealValue = req.DealValue
		}
		if req.Probability != nil {
			d.Probability = req.Probability
		}
		if req.ExpectedCloseDate != nil {
			d.ExpectedCloseDate = req.ExpectedCloseDate
		}
		if req.Tags != nil {
			d.Tags = normalizeTags(*req.Tags)
		}
		if req.Notes != nil {
			d.Notes = req.Notes
		}
		d.UpdatedAt = s.clock.Now()
		return repo.Update(ctx, *d)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return s.repo.Get(ctx, id)
}

// SetStage moves a deal to stage. Entering won or lost stamps ActualCloseDate every
// time, including re-entry. A lost reason is only written when entering lost with one
// and is never cleared.
func (s *Service) SetStage(ctx context.Context, id int64, req SetStageRequest) (*Deal, error) {
	to, err := ParseStage(req.Stage)
	if err != nil {
		return nil, err
	}

	var from Stage
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		d, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = d.Stage
		if !CanTransition(s.policy, from, to) {
			return fmt.Errorf("%w: deal %d is %s", shared.ErrInvalidTransition, id, from)
		}

		now := s.clock.Now()
		closeDate, lostReason := d.ActualCloseDate, d.LostReason
		if to.Closed() {
			closeDate = &now
		}
		if to == StageLost && req.LostReason != nil && strings.TrimSpace(*req.LostReason) != "" {
			lostReason = req.LostReason
		}
		if err := repo.UpdateStage(ctx, id, to, closeDate, lostReason, now); err != nil {
			return fmt.Errorf("update stage: %w", err)
		}
		if from == to {
			return nil
		}
		return repo.AppendHistory(ctx, StageChange{DealID: id, FromStage: from, ToStage: to, ChangedAt: now})
	})
	if err != nil {
		return nil, err
	}
	if from != to {
		s.recorder.StatusChanged("deal", string(to))
	}
	s.invalidate(ctx)
	return s.repo.Get(ctx, id)
}

// Stats returns the per-stage roll-up. Concurrent callers share one load.
func (s *Service) Stats(ctx context.Context) (*Summary, error) {
	v, err, _ := s.group.Do("stats", func() (any, error) {
		// Waiters share this load, so one caller's cancellation must not fail the rest.
		ctx := context.WithoutCancel(ctx)
		key, err := s.cache.Key(ctx, "stats")
		if err != nil {
			s.logger.Warn("pipeline stats cache unavailable", slog.Any("error", err))
			return s.loadStats(ctx)
		}
		var summary Summary
		err = s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (any, error) {
			return s.loadStats(ctx)
		})
		if err != nil {
			return nil, err
		}
		return &summary, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Summary), nil
}

func (s *Service) loadStats(ctx context.Context) (*Summary, error) {
	rows, err := s.repo.StageTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stage totals: %w", err)
	}
	summary := Summarize(rows)
	return &summary, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Deal, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Deal, int, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) History(ctx context.Context, id int64) ([]StageChange, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, id)
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("pipeline stats cache bump failed", slog.Any("error", err))
	}
}

func validateProbability(p *int) error {
	if p != nil && (*p < 0 || *p > 100) {
		return fmt.Errorf("%w: probability must be between 0 and 100", shared.ErrValidation)
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
