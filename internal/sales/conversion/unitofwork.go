package conversion

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smt-trading/crm/internal/platform/db"
	"github.com/smt-trading/crm/internal/sales/orders"
	"github.com/smt-trading/crm/internal/sales/pipeline"
	"github.com/smt-trading/crm/internal/sales/quotations"
)

// Stores are the repositories a unit of work exposes, all bound to one transaction.
type Stores struct {
	Quotations quotations.Repository
	Orders     orders.Repository
	Deals      pipeline.Repository
}

// UnitOfWork runs fn atomically across quotations, orders and deals.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(context.Context, Stores) error) error
}

type pgUnitOfWork struct {
	pool *pgxpool.Pool
}

func NewUnitOfWork(pool *pgxpool.Pool) UnitOfWork {
	return &pgUnitOfWork{pool: pool}
}

func (u *pgUnitOfWork) Do(ctx context.Context, fn func(context.Context, Stores) error) error {
	return db.WithTx(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(ctx, Stores{
			Quotations: quotations.NewTxRepository(tx),
			Orders:     orders.NewTxRepository(tx),
			Deals:      pipeline.NewTxRepository(tx),
		})
	})
}
