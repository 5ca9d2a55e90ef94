package sequence

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"

	"github.com/smt-trading/crm/internal/platform/db"
)

// PostgresCounter keeps one row per (doc_type, period) in document_sequences and bumps
// it with a single UPDATE ... RETURNING. The row lock taken by the update serialises
// concurrent allocators for the same period.
type PostgresCounter struct {
	db db.DBTX
}

// NewPostgresCounter constructs a PostgresCounter.
func NewPostgresCounter(q db.DBTX) *PostgresCounter {
	return &PostgresCounter{db: q}
}

const (
	incrementSequenceSQL = `
		UPDATE document_sequences
		SET last_value = last_value + 1, updated_at = now()
		WHERE doc_type = $1 AND period = $2
		RETURNING last_value`

	initSequenceSQL = `
		INSERT INTO document_sequences (doc_type, period, last_value, updated_at)
		VALUES ($1, $2, $3 + 1, now())
		ON CONFLICT (doc_type, period)
		DO UPDATE SET last_value = document_sequences.last_value + 1, updated_at = now()
		RETURNING last_value`
)

// Increment implements Counter.
func (c *PostgresCounter) Increment(ctx context.Context, key Key, seed func(context.Context) (int64, error)) (int64, error) {
	var value int64
	err := c.db.QueryRow(ctx, incrementSequenceSQL, string(key.Type), key.Period).Scan(&value)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, db.Classify(err)
	}

	// First allocation in this period. A concurrent first allocation loses the insert
	// race and falls into the ON CONFLICT branch, so the seed is applied exactly once.
	start, err := seed(ctx)
	if err != nil {
		return 0, err
	}
	if err := c.db.QueryRow(ctx, initSequenceSQL, string(key.Type), key.Period, start).Scan(&value); err != nil {
		return 0, db.Classify(err)
	}
	return value, nil
}

// PostgresSeeder finds the highest stored document number for a period prefix.
type PostgresSeeder struct {
	db db.DBTX
}

// NewPostgresSeeder constructs a PostgresSeeder.
func NewPostgresSeeder(q db.DBTX) *PostgresSeeder {
	return &PostgresSeeder{db: q}
}

// The LIKE narrows by prefix and the regex drops hand-entered numbers with a
// non-numeric tail, which would otherwise win the length ordering.
var latestNumberSQL = map[DocumentType]string{
	DocumentQuotation: `SELECT quote_number FROM quotations
		WHERE quote_number LIKE $1 AND quote_number ~ $2
		ORDER BY length(quote_number) DESC, quote_number DESC LIMIT 1`,
	DocumentOrder: `SELECT order_number FROM orders
		WHERE order_number LIKE $1 AND order_number ~ $2
		ORDER BY length(order_number) DESC, order_number DESC LIMIT 1`,
}

func numberPattern(prefix string) string {
	return "^" + regexp.QuoteMeta(prefix) + "[0-9]+$"
}

// LatestNumber implements Seeder.
func (s *PostgresSeeder) LatestNumber(ctx context.Context, docType DocumentType, prefix string) (string, error) {
	query, ok := latestNumberSQL[docType]
	if !ok {
		return "", fmt.Errorf("no seed query for %s", docType)
	}
	var number string
	err := s.db.QueryRow(ctx, query, prefix+"%", numberPattern(prefix)).Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return number, nil
}
