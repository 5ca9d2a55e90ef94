package orders

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
	"github.com/smt-trading/crm/internal/shared"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Order, error)
	// GetForUpdate reads the order and locks its row until the transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int, error)
	Create(ctx context.Context, o Order) (int64, error)
	InsertItems(ctx context.Context, orderID int64, items []Item) error
	UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) error
	UpdateItemStatus(ctx context.Context, orderID, itemID int64, status ItemStatus, at time.Time) error
	ApplyPayment(ctx context.Context, id int64, paid float64, status PaymentStatus, at time.Time) error
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	ListPayments(ctx context.Context, orderID int64) ([]Payment, error)
	// ClaimIdempotencyKey fails with shared.ErrConflict when key was already used.
	ClaimIdempotencyKey(ctx context.Context, key string, at time.Time) error
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

// NewTxRepository binds a repository to a transaction opened elsewhere.
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

const orderColumns = `id, order_number, quotation_id, customer_id, status, payment_status, currency,
	subtotal, tax_rate, tax_amount, total_amount, paid_amount, notes, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Order, error) {
	return r.get(ctx, id, "")
}

func (r *repository) GetForUpdate(ctx context.Context, id int64) (*Order, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *repository) get(ctx context.Context, id int64, lock string) (*Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`+lock, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	o.Items, err = r.items(ctx, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repository) items(ctx context.Context, orderID int64) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, description, quantity, unit_price, cost_price, amount,
		       status, supplier_id, line_order
		FROM order_items
		WHERE order_id = $1
		ORDER BY line_order, id`, orderID)
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
			status                            string
			supplierID                        pgtype.Int8
			lineOrder                         int32
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &description, &quantity, &unitPrice,
			&cost, &amount, &status, &supplierID, &lineOrder); err != nil {
			return nil, err
		}
		if description.Valid {
			it.Description = &description.String
		}
		if supplierID.Valid {
			it.SupplierID = &supplierID.Int64
		}
		it.Quantity = db.Float(quantity)
		it.UnitPrice = db.Float(unitPrice)
		it.CostPrice = db.Float(cost)
		it.Amount = db.Float(amount)
		it.Status = ItemStatus(status)
		it.LineOrder = int(lineOrder)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
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
	if filter.PaymentStatus != nil {
		args = append(args, string(*filter.PaymentStatus))
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM orders "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *o)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO orders (order_number, quotation_id, customer_id, status, payment_status, currency,
			subtotal, tax_rate, tax_amount, total_amount, paid_amount, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
		o.OrderNumber, o.QuotationID, o.CustomerID, string(o.Status), string(o.PaymentStatus), o.Currency,
		db.Numeric(o.Subtotal), db.Numeric(o.TaxRate), db.Numeric(o.TaxAmount), db.Numeric(o.TotalAmount),
		db.Numeric(o.PaidAmount), o.Notes, o.CreatedAt, o.UpdatedAt,
	).Scan(&id)
	return id, err
}

func (r *repository) InsertItems(ctx context.Context, orderID int64, items []Item) error {
	for _, it := range items {
		_, err := r.db.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, description, quantity, unit_price, cost_price,
				amount, status, supplier_id, line_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			orderID, it.ProductID, it.Description, db.Numeric(it.Quantity), db.Numeric(it.UnitPrice),
			db.Numeric(it.CostPrice), db.Numeric(it.Amount), string(it.Status), it.SupplierID, it.LineOrder)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *repository) UpdateItemStatus(ctx context.Context, orderID, itemID int64, status ItemStatus, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE order_items SET status = $3 WHERE id = $2 AND order_id = $1`,
		orderID, itemID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: item %d on order %d", shared.ErrNotFound, itemID, orderID)
	}
	_, err = r.db.Exec(ctx, `UPDATE orders SET updated_at = $2 WHERE id = $1`, orderID, at)
	return err
}

func (r *repository) ApplyPayment(ctx context.Context, id int64, paid float64, status PaymentStatus, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET paid_amount = $2, payment_status = $3, updated_at = $4
		WHERE id = $1`,
		id, db.Numeric(paid), string(status), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *repository) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO order_payments (order_id, reference, amount, paid_at, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		p.OrderID, p.Reference, db.Numeric(p.Amount), p.PaidAt, p.Note,
	).Scan(&id)
	return id, err
}

func (r *repository) ListPayments(ctx context.Context, orderID int64) ([]Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, reference, amount, paid_at, note
		FROM order_payments
		WHERE order_id = $1
		ORDER BY paid_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []Payment{}
	for rows.Next() {
		var (
			p      Payment
			amount pgtype.Numeric
			note   pgtype.Text
		)
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Reference, &amount, &p.PaidAt, &note); err != nil {
			return nil, err
		}
		p.Amount = db.Float(amount)
		if note.Valid {
			p.Note = &note.String
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *repository) ClaimIdempotencyKey(ctx context.Context, key string, at time.Time) error {
	return shared.NewIdempotencyStore(r.db).CheckAndInsert(ctx, key, paymentsModule, at)
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                                   Order
		quotationID                         pgtype.Int8
		status, paymentStatus               string
		subtotal, taxRate, taxAmount, total pgtype.Numeric
		paid                                pgtype.Numeric
		notes                               pgtype.Text
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &quotationID, &o.CustomerID, &status, &paymentStatus, &o.Currency,
		&subtotal, &taxRate, &taxAmount, &total, &paid, &notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if quotationID.Valid {
		o.QuotationID = &quotationID.Int64
	}
	o.Status = Status(status)
	o.PaymentStatus = PaymentStatus(paymentStatus)
	o.Subtotal = db.Float(subtotal)
	o.TaxRate = db.Float(taxRate)
	o.TaxAmount = db.Float(taxAmount)
	o.TotalAmount = db.Float(total)
	o.PaidAmount = db.Float(paid)
	if notes.Valid {
		o.Notes = &notes.String
	}
	return &o, nil
}
