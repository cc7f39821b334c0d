package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/almacen-pos/almacen/internal/shared"
)

// Repository persists lots in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const lotColumns = `id, product_id, code, quantity, unit_cost, expiry, is_enabled, created_at, updated_at`

func scanLot(row pgx.Row) (*Lot, error) {
	var lot Lot
	var expiry pgtype.Date
	err := row.Scan(&lot.ID, &lot.ProductID, &lot.Code, &lot.Quantity, &lot.UnitCost, &expiry, &lot.IsEnabled, &lot.CreatedAt, &lot.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if expiry.Valid {
		t := expiry.Time
		lot.Expiry = &t
	}
	return &lot, nil
}

func expiryParam(expiry *time.Time) pgtype.Date {
	if expiry == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *expiry, Valid: true}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txRepo struct {
	tx pgx.Tx
}

// GetLotForUpdate locks the lot row for the transaction's lifetime so
// concurrent movements against the same lot serialize.
func (r *txRepo) GetLotForUpdate(ctx context.Context, lotID int64) (*Lot, error) {
	const query = `SELECT ` + lotColumns + ` FROM lots WHERE id = $1 FOR UPDATE`
	return scanLot(r.tx.QueryRow(ctx, query, lotID))
}

func (r *txRepo) UpdateLotQuantity(ctx context.Context, lotID, quantity int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE lots SET quantity = $2, updated_at = NOW() WHERE id = $1`, lotID, quantity)
	return err
}

// InsertLot creates a lot row. A unique-violation on the code index maps to
// ErrCodeTaken so two simultaneous creations cannot share a code.
func (r *Repository) InsertLot(ctx context.Context, lot Lot) (*Lot, error) {
	const query = `
		INSERT INTO lots (product_id, code, quantity, unit_cost, expiry, is_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at, id`

	err := r.pool.QueryRow(ctx, query,
		lot.ProductID, lot.Code, lot.Quantity, lot.UnitCost, expiryParam(lot.Expiry), lot.IsEnabled,
	).Scan(&lot.CreatedAt, &lot.UpdatedAt, &lot.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrCodeTaken
		}
		return nil, err
	}
	return &lot, nil
}

// GetLot fetches a lot by id.
func (r *Repository) GetLot(ctx context.Context, id int64) (*Lot, error) {
	const query = `SELECT ` + lotColumns + ` FROM lots WHERE id = $1`
	return scanLot(r.pool.QueryRow(ctx, query, id))
}

// GetLotByCode fetches a lot by its code, case-insensitively.
func (r *Repository) GetLotByCode(ctx context.Context, code string) (*Lot, error) {
	const query = `SELECT ` + lotColumns + ` FROM lots WHERE upper(code) = upper($1)`
	return scanLot(r.pool.QueryRow(ctx, query, code))
}

// ListLotsByProduct lists all lots of a product, soonest expiry first.
func (r *Repository) ListLotsByProduct(ctx context.Context, productID int64) ([]Lot, error) {
	const query = `SELECT ` + lotColumns + ` FROM lots WHERE product_id = $1 ORDER BY expiry ASC NULLS LAST, id ASC`
	rows, err := r.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, *lot)
	}
	return lots, rows.Err()
}

// CodeExists reports whether any lot carries the code, case-insensitively.
func (r *Repository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM lots WHERE upper(code) = upper($1))`, code).Scan(&exists)
	return exists, err
}

// ProductName returns the name of a product for code generation.
func (r *Repository) ProductName(ctx context.Context, productID int64) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM products WHERE id = $1`, productID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", err
	}
	return name, nil
}

func (r *Repository) mutateLot(ctx context.Context, lotID int64, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, append([]any{lotID}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetExpiry updates the expiry date only.
func (r *Repository) SetExpiry(ctx context.Context, lotID int64, expiry *time.Time) error {
	return r.mutateLot(ctx, lotID, `UPDATE lots SET expiry = $2, updated_at = NOW() WHERE id = $1`, expiryParam(expiry))
}

// SetCost updates the acquisition cost only.
func (r *Repository) SetCost(ctx context.Context, lotID, cost int64) error {
	return r.mutateLot(ctx, lotID, `UPDATE lots SET unit_cost = $2, updated_at = NOW() WHERE id = $1`, cost)
}

// SetEnabled flips the enabled flag only.
func (r *Repository) SetEnabled(ctx context.Context, lotID int64, enabled bool) error {
	return r.mutateLot(ctx, lotID, `UPDATE lots SET is_enabled = $2, updated_at = NOW() WHERE id = $1`, enabled)
}

// TotalStock sums quantity over the product's enabled lots.
func (r *Repository) TotalStock(ctx context.Context, productID int64) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM lots WHERE product_id = $1 AND is_enabled`,
		productID,
	).Scan(&total)
	return total, err
}

// ListLowStock lists active products whose enabled stock is at or below the
// threshold, lowest first.
func (r *Repository) ListLowStock(ctx context.Context, threshold int64) ([]LowStockProduct, error) {
	const query = `
		SELECT p.id, p.name, COALESCE(SUM(l.quantity) FILTER (WHERE l.is_enabled), 0) AS total
		FROM products p
		LEFT JOIN lots l ON l.product_id = p.id
		WHERE p.is_active
		GROUP BY p.id, p.name
		HAVING COALESCE(SUM(l.quantity) FILTER (WHERE l.is_enabled), 0) <= $1
		ORDER BY total ASC, p.name`

	rows, err := r.pool.Query(ctx, query, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LowStockProduct
	for rows.Next() {
		var p LowStockProduct
		if err := rows.Scan(&p.ProductID, &p.Name, &p.TotalStock); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListExpiring pages through enabled lots expiring on or before until.
func (r *Repository) ListExpiring(ctx context.Context, until time.Time, limit, offset int) ([]ExpiringLot, error) {
	const query = `
		SELECT l.id, l.code, l.product_id, p.name, l.quantity, l.expiry
		FROM lots l
		JOIN products p ON p.id = l.product_id
		WHERE l.expiry IS NOT NULL
		  AND l.expiry >= CURRENT_DATE
		  AND l.expiry <= $1
		  AND l.is_enabled
		ORDER BY l.expiry ASC, l.id ASC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, pgtype.Date{Time: until, Valid: true}, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExpiringLot
	for rows.Next() {
		var e ExpiringLot
		var expiry pgtype.Date
		if err := rows.Scan(&e.LotID, &e.Code, &e.ProductID, &e.ProductName, &e.Quantity, &expiry); err != nil {
			return nil, err
		}
		e.Expiry = expiry.Time
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
