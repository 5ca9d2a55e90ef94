// Package catalog exposes the read-only customer directory and product catalog the sales
// lifecycle consumes. Both are maintained elsewhere; this package only looks rows up.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/smt-trading/crm/internal/platform/cache"
	"github.com/smt-trading/crm/internal/platform/db"
	"github.com/smt-trading/crm/internal/shared"
)

// Customer is the directory view of a customer.
type Customer struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Product is the catalog view of an SMT spare part.
type Product struct {
	ID         int64   `json:"id"`
	PartNumber string  `json:"part_number"`
	Name       string  `json:"name"`
	UnitPrice  float64 `json:"unit_price"`
	CostPrice  float64 `json:"cost_price"`
}

// Directory resolves customers.
type Directory interface {
	GetCustomer(ctx context.Context, id int64) (*Customer, error)
}

// Products resolves catalog prices.
type Products interface {
	GetProduct(ctx context.Context, id int64) (*Product, error)
}

// Repository reads customers and products from PostgreSQL.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a Repository.
func NewRepository(q db.DBTX) *Repository {
	return &Repository{db: q}
}

// GetCustomer implements Directory.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	var c Customer
	err := r.db.QueryRow(ctx,
		`SELECT id, code, name, is_active FROM customers WHERE id = $1`, id,
	).Scan(&c.ID, &c.Code, &c.Name, &c.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: customer %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return &c, nil
}

// GetProduct implements Products.
func (r *Repository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var (
		p               Product
		unitPrice, cost pgtype.Numeric
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, part_number, name, unit_price, cost_price FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.PartNumber, &p.Name, &unitPrice, &cost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %d", shared.ErrNotFound, id)
		}
		return nil, err
	}
	if unitPrice.Valid {
		f, _ := unitPrice.Float64Value()
		p.UnitPrice = f.Float64
	}
	if cost.Valid {
		f, _ := cost.Float64Value()
		p.CostPrice = f.Float64
	}
	return &p, nil
}

// RequireCustomer checks that a document's customer exists. A missing customer is a
// validation failure of the request, not a missing resource.
func RequireCustomer(ctx context.Context, dir Directory, id int64) error {
	if _, err := dir.GetCustomer(ctx, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: customer %d does not exist", shared.ErrValidation, id)
		}
		return fmt.Errorf("verify customer: %w", err)
	}
	return nil
}

// ResolvePrices fills prices a line left empty from the catalog. The catalog is only
// consulted when at least one price is missing.
func ResolvePrices(ctx context.Context, products Products, productID int64, unitPrice, costPrice *float64) (float64, float64, error) {
	if unitPrice != nil && costPrice != nil {
		return *unitPrice, *costPrice, nil
	}
	p, err := products.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return 0, 0, fmt.Errorf("%w: product %d does not exist", shared.ErrValidation, productID)
		}
		return 0, 0, fmt.Errorf("resolve product %d: %w", productID, err)
	}
	unit, cost := p.UnitPrice, p.CostPrice
	if unitPrice != nil {
		unit = *unitPrice
	}
	if costPrice != nil {
		cost = *costPrice
	}
	return unit, cost, nil
}

// CachedProducts memoises product lookups in Redis. Prices change rarely and quotation
// entry looks the same parts up repeatedly.
type CachedProducts struct {
	next  Products
	cache *cache.Versioned
}

// NewCachedProducts wraps next with the versioned cache.
func NewCachedProducts(next Products, c *cache.Versioned) *CachedProducts {
	return &CachedProducts{next: next, cache: c}
}

// GetProduct implements Products.
func (c *CachedProducts) GetProduct(ctx context.Context, id int64) (*Product, error) {
	key, err := c.cache.Key(ctx, "product", strconv.FormatInt(id, 10))
	if err != nil {
		return c.next.GetProduct(ctx, id)
	}
	var p Product
	err = c.cache.FetchJSON(ctx, key, &p, func(ctx context.Context) (any, error) {
		return c.next.GetProduct(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Invalidate drops every cached product, e.g. after a price list import.
func (c *CachedProducts) Invalidate(ctx context.Context) error {
	return c.cache.Bump(ctx)
}
