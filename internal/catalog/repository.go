package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/almacen-pos/almacen/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateProduct inserts a product row.
func (r *Repository) CreateProduct(ctx context.Context, input ProductInput) (*Product, error) {
	const query = `
		INSERT INTO products (name, category, unit_price, presentation, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	p := Product{
		Name:         input.Name,
		Category:     input.Category,
		UnitPrice:    input.UnitPrice,
		Presentation: input.Presentation,
		IsActive:     input.IsActive,
	}
	err := r.pool.QueryRow(ctx, query,
		input.Name, input.Category, input.UnitPrice, input.Presentation, input.IsActive,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProduct rewrites the mutable product fields.
func (r *Repository) UpdateProduct(ctx context.Context, id int64, input ProductInput) (*Product, error) {
	const query = `
		UPDATE products
		SET name = $2, category = $3, unit_price = $4, presentation = $5, is_active = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, category, unit_price, presentation, is_active, created_at, updated_at`

	var p Product
	err := r.pool.QueryRow(ctx, query,
		id, input.Name, input.Category, input.UnitPrice, input.Presentation, input.IsActive,
	).Scan(&p.ID, &p.Name, &p.Category, &p.UnitPrice, &p.Presentation, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetProduct fetches a product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	const query = `
		SELECT id, name, category, unit_price, presentation, is_active, created_at, updated_at
		FROM products
		WHERE id = $1`

	var p Product
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Category, &p.UnitPrice, &p.Presentation, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListProducts lists products ordered by name.
func (r *Repository) ListProducts(ctx context.Context, activeOnly bool) ([]Product, error) {
	query := `
		SELECT id, name, category, unit_price, presentation, is_active, created_at, updated_at
		FROM products`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.UnitPrice, &p.Presentation, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
