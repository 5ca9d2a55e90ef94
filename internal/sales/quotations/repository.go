package quotations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smt-trading/crm/internal/platform/db"
	salesshared "github.com/smt-trading/crm/internal/sales/shared"
	"github.com/smt-trading/crm/internal/shared"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Quotation, error)
	// GetForUpdate reads the quotation and locks its row until the transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*Quotation, error)
	List(ctx context.Context, filter ListFilter) ([]Quotation, int, error)
	Create(ctx context.Context, q Quotation) (int64, error)
	InsertItems(ctx context.Context, quotationID int64, items []Item) error
	DeleteItems(ctx context.Context, quotationID int64) error
	UpdateTotals(ctx context.Context, id int64, totals salesshared.Totals, at time.Time) error
	UpdateStatus(ctx context.Context, id int64, status Status, sentAt, acceptedAt *time.Time, at time.Time) error
	// ExpireBefore moves quotations in one of the from statuses whose valid_until date is
	// before the calendar date of cutoff to expired, returning their ids.
	ExpireBefore(ctx context.Context, cutoff time.Time, from []Status, at time.Time) ([]int64, error)
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

// NewTxRepository binds a repository to a transaction opened elsewhere. Its WithTx runs
// fn inside that same transaction.
func NewTxRepository(tx pgx.Tx) Repository {
	return &repository{db: tx}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.pool == nil {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx})
	})
}

const quotationColumns = `id, quote_number, customer_id, status, subtotal, tax_rate, tax_amount,
	total_amount, currency, valid_until, sent_at, accepted_at, notes, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Quotation, error) {
	return r.get(ctx, id, "")
}

func (r *repository) GetForUpdate(ctx context.Context, id int64) (*Quotation, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *repository) get(ctx context.Context, id int64, lock string) (*Quotation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE id = $1`+lock, id)
	q, err := scanQuotation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: quotation %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	q.Items, err = r.items(ctx, id)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (r *repository) items(ctx context.Context, quotationID int64) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, quotation_id, product_id, description, quantity, unit_price, cost_price, amount, line_order
		FROM quotation_items
		WHERE quotation_id = $1
		ORDER BY line_order, id`, quotationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var (
			it                                Item
			description                       pgtype.Text
			quantity, unitPrice, cost, amount pgtype.Numeric
			lineOrder                         int32
		)
		if err := rows.Scan(&it.ID, &it.QuotationID, &it.ProductID, &description,
			&quantity, &unitPrice, &cost, &amount, &lineOrder); err != nil {
			return nil, err
		}
		if description.Valid {
			it.Description = &description.String
		}
		it.Quantity = db.Float(quantity)
		it.UnitPrice = db.Float(unitPrice)
		it.CostPrice = db.Float(cost)
		it.Amount = db.Float(amount)
		it.LineOrder = int(lineOrder)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Quotation, int, error) {
	var conditions []string
	var args []any

	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM quotations "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM quotations %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		quotationColumns, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Quotation{}
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *q)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, q Quotation) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO quotations (quote_number, customer_id, status, subtotal, tax_rate, tax_amount,
			total_amount, currency, valid_until, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		q.QuoteNumber, q.CustomerID, string(q.Status),
		db.Numeric(q.Subtotal), db.Numeric(q.TaxRate), db.Numeric(q.TaxAmount), db.Numeric(q.TotalAmount),
		q.Currency, q.ValidUntil, q.Notes, q.CreatedAt, q.UpdatedAt,
	).Scan(&id)
	return id, err
}

func (r *repository) InsertItems(ctx context.Context, quotationID int64, items []Item) error {
	for _, it := range items {
		_, err := r.db.Exec(ctx, `
			INSERT INTO quotation_items (quotation_id, product_id, description, quantity, unit_price,
				cost_price, amount, line_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			quotationID, it.ProductID, it.Description, db.Numeric(it.Quantity), db.Numeric(it.UnitPrice),
			db.Numeric(it.CostPrice), db.Numeric(it.Amount), it.LineOrder)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) DeleteItems(ctx context.Context, quotationID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM quotation_items WHERE quotation_id = $1`, quotationID)
	return err
}

func (r *repository) UpdateTotals(ctx context.Context, id int64, totals salesshared.Totals, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE quotations
		SET subtotal = $2, tax_rate = $3, tax_amount = $4, total_amount = $5, updated_at = $6
		WHERE id = $1`,
		id, db.Numeric(totals.Subtotal), db.Numeric(totals.TaxRate), db.Numeric(totals.TaxAmount),
		db.Numeric(totals.TotalAmount), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status, sentAt, acceptedAt *time.Time, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE quotations SET status = $2, sent_at = $3, accepted_at = $4, updated_at = $5
		WHERE id = $1`,
		id, string(status), sentAt, acceptedAt, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *repository) ExpireBefore(ctx context.Context, cutoff time.Time, from []Status, at time.Time) ([]int64, error) {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	rows, err := r.db.Query(ctx, `
		UPDATE quotations SET status = $1, updated_at = $2
		WHERE status = ANY($3) AND valid_until < $4::date
		RETURNING id`,
		string(StatusExpired), at, statuses, cutoff.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func scanQuotation(row pgx.Row) (*Quotation, error) {
	var (
		q                                   Quotation
		status                              string
		subtotal, taxRate, taxAmount, total pgtype.Numeric
		sentAt, acceptedAt                  pgtype.Timestamptz
		notes                               pgtype.Text
	)
	err := row.Scan(&q.ID, &q.QuoteNumber, &q.CustomerID, &status, &subtotal, &taxRate, &taxAmount,
		&total, &q.Currency, &q.ValidUntil, &sentAt, &acceptedAt, &notes, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	q.Status = Status(status)
	q.Subtotal = db.Float(subtotal)
	q.TaxRate = db.Float(taxRate)
	q.TaxAmount = db.Float(taxAmount)
	q.TotalAmount = db.Float(total)
	if sentAt.Valid {
		q.SentAt = &sentAt.Time
	}
	if acceptedAt.Valid {
		q.AcceptedAt = &acceptedAt.Time
	}
	if notes.Valid {
		q.Notes = &notes.String
	}
	return &q, nil
}
