// Package sequence mints human-readable document numbers such as SC-Q-2026-0001.
//
// Numbers are scoped to a (document type, period) key. Quotations reset every calendar
// year, orders every calendar month. Each allocation is one atomic counter increment, so
// concurrent callers for the same period never receive the same number.
package sequence

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	salesshared "github.com/smt-trading/crm/internal/sales/shared"
	"github.com/smt-trading/crm/internal/shared"
)

// DocumentType identifies a numbered document kind.
type DocumentType string

const (
	DocumentQuotation DocumentType = "quotation"
	DocumentOrder     DocumentType = "order"
)

// Key scopes a counter.
type Key struct {
	Type   DocumentType
	Period string
}

func (k Key) String() string {
	return string(k.Type) + ":" + k.Period
}

type format struct {
	prefix       string
	periodLayout string
}

var formats = map[DocumentType]format{
	DocumentQuotation: {prefix: "SC-Q", periodLayout: "2006"},
	DocumentOrder:     {prefix: "SC-ORD", periodLayout: "200601"},
}

// ParseDocumentType validates a document type name.
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := formats[t]; !ok {
		return "", fmt.Errorf("%w: unknown document type %q", shared.ErrValidation, s)
	}
	return t, nil
}

// Counter increments a per-key counter atomically. When the key has never been used the
// counter starts from seed, so the first call returns seed+1.
type Counter interface {
	Increment(ctx context.Context, key Key, seed func(context.Context) (int64, error)) (int64, error)
}

// Seeder reports the highest document number already stored for a prefix, or "" when
// none exists. It lets a fresh counter continue numbering written before counters existed.
type Seeder interface {
	LatestNumber(ctx context.Context, docType DocumentType, prefix string) (string, error)
}

// Allocator mints document numbers.
type Allocator struct {
	counter  Counter
	seeder   Seeder
	clock    shared.Clock
	location *time.Location
	logger   *slog.Logger
	recorder salesshared.Recorder
}

// Option customises an Allocator.
type Option func(*Allocator)

// WithSeeder enables legacy seeding from existing documents.
func WithSeeder(s Seeder) Option {
	return func(a *Allocator) { a.seeder = s }
}

// WithLocation sets the time zone periods are computed in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(a *Allocator) {
		if loc != nil {
			a.location = loc
		}
	}
}

// WithLogger sets the logger used for seed fallbacks.
func WithLogger(l *slog.Logger) Option {
	return func(a *Allocator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithRecorder reports allocations to r.
func WithRecorder(r salesshared.Recorder) Option {
	return func(a *Allocator) {
		if r != nil {
			a.recorder = r
		}
	}
}

// NewAllocator constructs an Allocator.
func NewAllocator(counter Counter, clock shared.Clock, opts ...Option) *Allocator {
	a := &Allocator{
		counter:  counter,
		clock:    clock,
		location: time.UTC,
		logger:   slog.Default(),
		recorder: salesshared.NopRecorder{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.clock == nil {
		a.clock = shared.SystemClock{}
	}
	return a
}

// Next allocates the next number for docType in the current period.
func (a *Allocator) Next(ctx context.Context, docType DocumentType) (string, error) {
	f, ok := formats[docType]
	if !ok {
		return "", fmt.Errorf("%w: unknown document type %q", shared.ErrValidation, docType)
	}
	period := a.clock.Now().In(a.location).Format(f.periodLayout)
	prefix := PeriodPrefix(docType, period)
	key := Key{Type: docType, Period: period}

	seq, err := a.counter.Increment(ctx, key, func(ctx context.Context) (int64, error) {
		return a.seed(ctx, docType, prefix)
	})
	if err != nil {
		return "", fmt.Errorf("allocate %s: %w", key, err)
	}
	a.recorder.DocumentAllocated(string(docType))
	return Format(docType, period, seq), nil
}

func (a *Allocator) seed(ctx context.Context, docType DocumentType, prefix string) (int64, error) {
	if a.seeder == nil {
		return 0, nil
	}
	latest, err := a.seeder.LatestNumber(ctx, docType, prefix)
	if err != nil {
		return 0, fmt.Errorf("read latest %s number: %w", docType, err)
	}
	if latest == "" {
		return 0, nil
	}
	n, ok := ParseSuffix(latest, prefix)
	if !ok {
		a.logger.Warn("unparsable document number, restarting sequence at 1",
			slog.String("doc_type", string(docType)),
			slog.String("latest", latest))
		return 0, nil
	}
	return n, nil
}

// PeriodPrefix returns "<prefix>-<period>-", the part shared by every number in a period.
func PeriodPrefix(docType DocumentType, period string) string {
	return formats[docType].prefix + "-" + period + "-"
}

// Format renders a document number with a four digit zero-padded suffix.
func Format(docType DocumentType, period string, seq int64) string {
	return fmt.Sprintf("%s%04d", PeriodPrefix(docType, period), seq)
}

// ParseSuffix extracts the numeric suffix of number when it starts with prefix.
func ParseSuffix(number, prefix string) (int64, bool) {
	if !strings.HasPrefix(number, prefix) {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(number, prefix), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
