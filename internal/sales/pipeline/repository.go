package pipeline

import (
	"context"
	"encoding/json"
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
	Get(ctx context.Context, id int64) (*Deal, error)
	GetForUpdate(ctx context.Context, id int64) (*Deal, error)
	List(ctx context.Context, filter ListFilter) ([]Deal, int, error)
	Create(ctx context.Context, d Deal) (int64, error)
	Update(ctx context.Context, d Deal) error
	UpdateStage(ctx context.Context, id int64, stage Stage, actualClose *time.Time, lostReason *string, at time.Time) error
	SetQuotation(ctx context.Context, id, quotationID int64, at time.Time) error
	AppendHistory(ctx context.Context, c StageChange) error
	History(ctx context.Context, dealID int64) ([]StageChange, error)
	StageTotals(ctx context.Context) ([]StageStat, error)
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

const dealColumns = `id, title, customer_id, stage, deal_value, probability, expected_close_date,
	actual_close_date, lost_reason, quotation_id, tags, notes, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Deal, error) {
	return r.get(ctx, id, "")
}

func (r *repository) GetForUpdate(ctx context.Context, id int64) (*Deal, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *repository) get(ctx context.Context, id int64, lock string) (*Deal, error) {
	d, err := scanDeal(r.db.QueryRow(ctx, `SELECT `+dealColumns+` FROM pipeline_deals WHERE id = $1`+lock, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: deal %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return d, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Deal, int, error) {
	var conditions []string
	var args []any

	if filter.Stage != nil {
		args = append(args, string(*filter.Stage))
		conditions = append(conditions, fmt.Sprintf("stage = $%d", len(args)))
	}
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.Tag != "" {
		raw, err := encodeTags([]string{filter.Tag})
		if err != nil {
			return nil, 0, err
		}
		args = append(args, raw)
		conditions = append(conditions, fmt.Sprintf("tags::jsonb @> $%d::jsonb", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM pipeline_deals "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM pipeline_deals %s ORDER BY updated_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		dealColumns, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	deals := []Deal{}
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, 0, err
		}
		deals = append(deals, *d)
	}
	return deals, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, d Deal) (int64, error) {
	tags, err := encodeTags(d.Tags)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.db.QueryRow(ctx, `
		INSERT INTO pipeline_deals (title, customer_id, stage, deal_value, probability, expected_close_date,
			tags, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		d.Title, d.CustomerID, string(d.Stage), db.NullableNumeric(d.DealValue), d.Probability,
		d.ExpectedCloseDate, tags, d.Notes, d.CreatedAt, d.UpdatedAt,
	).Scan(&id)
	return id, err
}

func (r *repository) Update(ctx context.Context, d Deal) error {
	tags, err := encodeTags(d.Tags)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE pipeline_deals
		SET title = $2, deal_value = $3, probability = $4, expected_close_date = $5, tags = $6,
		    notes = $7, updated_at = $8
		WHERE id = $1`,
		d.ID, d.Title, db.NullableNumeric(d.DealValue), d.Probability, d.ExpectedCloseDate, tags,
		d.Notes, d.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: deal %d", shared.ErrNotFound, d.ID)
	}
	return nil
}

func (r *repository) UpdateStage(ctx context.Context, id int64, stage Stage, actualClose *time.Time, lostReason *string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE pipeline_deals
		SET stage = $2, actual_close_date = $3, lost_reason = $4, updated_at = $5
		WHERE id = $1`,
		id, string(stage), actualClose, lostReason, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: deal %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *repository) SetQuotation(ctx context.Context, id, quotationID int64, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE pipeline_deals SET quotation_id = $2, updated_at = $3 WHERE id = $1`,
		id, quotationID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: deal %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *repository) AppendHistory(ctx context.Context, c StageChange) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO deal_stage_history (deal_id, from_stage, to_stage, changed_at)
		VALUES ($1, $2, $3, $4)`,
		c.DealID, string(c.FromStage), string(c.ToStage), c.ChangedAt)
	return err
}

func (r *repository) History(ctx context.Context, dealID int64) ([]StageChange, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, deal_id, from_stage, to_stage, changed_at
		FROM deal_stage_history
		WHERE deal_id = $1
		ORDER BY changed_at, id`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []StageChange{}
	for rows.Next() {
		var c StageChange
		var from, to string
		if err := rows.Scan(&c.ID, &c.DealID, &from, &to, &c.ChangedAt); err != nil {
			return nil, err
		}
		c.FromStage, c.ToStage = Stage(from), Stage(to)
		history = append(history, c)
	}
	return history, rows.Err()
}

// StageTotals aggregates in SQL. A NULL value or probability makes the product NULL,
// which SUM skips, so such deals contribute zero.
func (r *repository) StageTotals(ctx context.Context) ([]StageStat, error) {
	rows, err := r.db.Query(ctx, `
		SELECT stage, COUNT(*),
		       COALESCE(SUM(deal_value), 0),
		       COALESCE(SUM(deal_value * probability / 100.0), 0)
		FROM pipeline_deals
		GROUP BY stage`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []StageStat
	for rows.Next() {
		var (
			st              StageStat
			stage           string
			total, weighted pgtype.Numeric
		)
		if err := rows.Scan(&stage, &st.Count, &total, &weighted); err != nil {
			return nil, err
		}
		st.Stage = Stage(stage)
		st.TotalValue = db.Float(total)
		st.WeightedValue = db.Float(weighted)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func scanDeal(row pgx.Row) (*Deal, error) {
	var (
		d                          Deal
		customerID, quotationID    pgtype.Int8
		stage                      string
		value                      pgtype.Numeric
		probability                pgtype.Int4
		expectedClose, actualClose pgtype.Timestamptz
		lostReason, notes          pgtype.Text
		tags                       pgtype.Text
	)
	err := row.Scan(&d.ID, &d.Title, &customerID, &stage, &value, &probability, &expectedClose,
		&actualClose, &lostReason, &quotationID, &tags, &notes, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Stage = Stage(stage)
	d.DealValue = db.FloatPtr(value)
	if customerID.Valid {
		d.CustomerID = &customerID.Int64
	}
	if quotationID.Valid {
		d.QuotationID = &quotationID.Int64
	}
	if probability.Valid {
		p := int(probability.Int32)
		d.Probability = &p
	}
	if expectedClose.Valid {
		d.ExpectedCloseDate = &expectedClose.Time
	}
	if actualClose.Valid {
		d.ActualCloseDate = &actualClose.Time
	}
	if lostReason.Valid {
		d.LostReason = &lostReason.String
	}
	if notes.Valid {
		d.Notes = &notes.String
	}
	d.Tags, err = decodeTags(tags)
	if err != nil {
		return nil, fmt.Errorf("deal %d: %w", d.ID, err)
	}
	return &d, nil
}

// Tags are stored as a JSON array in a text column.
func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(raw), nil
}

func decodeTags(raw pgtype.Text) ([]string, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return []string{}, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw.String), &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}
