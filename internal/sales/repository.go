package sales

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/almacen-pos/almacen/internal/inventory"
	"github.com/almacen-pos/almacen/internal/shared"
)

// Repository provides PostgreSQL backed persistence for sales.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps the callback in a repeatable-read transaction.
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

const lotColumns = `id, product_id, code, quantity, unit_cost, expiry, is_enabled, created_at, updated_at`

func scanLot(row pgx.Row) (*inventory.Lot, error) {
	var lot inventory.Lot
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

func (r *txRepo) GetLotForUpdate(ctx context.Context, lotID int64) (*inventory.Lot, error) {
	const query = `SELECT ` + lotColumns + ` FROM lots WHERE id = $1 FOR UPDATE`
	return scanLot(r.tx.QueryRow(ctx, query, lotID))
}

func (r *txRepo) ListEnabledLotsForUpdate(ctx context.Context, productID int64) ([]inventory.Lot, error) {
	const query = `SELECT ` + lotColumns + ` FROM lots WHERE product_id = $1 AND is_enabled FOR UPDATE`
	rows, err := r.tx.Query(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lots []inventory.Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, *lot)
	}
	return lots, rows.Err()
}

// DecrementLot subtracts quantity behind a guard so the row can never go
// negative; a false return means the guard rejected the update.
func (r *txRepo) DecrementLot(ctx context.Context, lotID, quantity int64) (bool, error) {
	tag, err := r.tx.Exec(ctx,
		`UPDATE lots SET quantity = quantity - $2, updated_at = NOW() WHERE id = $1 AND quantity >= $2`,
		lotID, quantity,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepo) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	const query = `
		INSERT INTO sales (number, sold_at, method, subtotal, tax, total, is_fiado, client_id, due_date, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		RETURNING id`

	var clientID pgtype.Int8
	if sale.ClientID != nil {
		clientID = pgtype.Int8{Int64: *sale.ClientID, Valid: true}
	}
	var dueDate pgtype.Date
	if sale.DueDate != nil {
		dueDate = pgtype.Date{Time: *sale.DueDate, Valid: true}
	}

	var id int64
	err := r.tx.QueryRow(ctx, query,
		sale.Number, sale.SoldAt, string(sale.Method), sale.Subtotal, sale.Tax, sale.Total,
		sale.IsFiado, clientID, dueDate, string(sale.Status), sale.CreatedBy,
	).Scan(&id)
	return id, err
}

func (r *txRepo) InsertSaleLine(ctx context.Context, line SaleLine) (int64, error) {
	const query = `
		INSERT INTO sale_lines (sale_id, product_id, lot_id, quantity, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var lotID pgtype.Int8
	if line.LotID != nil {
		lotID = pgtype.Int8{Int64: *line.LotID, Valid: true}
	}
	var id int64
	err := r.tx.QueryRow(ctx, query,
		line.SaleID, line.ProductID, lotID, line.Quantity, line.UnitPrice, line.Subtotal,
	).Scan(&id)
	return id, err
}

func (r *txRepo) InsertAllocation(ctx context.Context, alloc LineAllocation) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO sale_line_allocations (line_id, lot_id, quantity) VALUES ($1, $2, $3)`,
		alloc.LineID, alloc.LotID, alloc.Quantity,
	)
	return err
}

const saleColumns = `id, number, sold_at, method, subtotal, tax, total, is_fiado, client_id, due_date, status, created_by, created_at`

func scanSale(row pgx.Row) (*Sale, error) {
	var sale Sale
	var clientID pgtype.Int8
	var dueDate pgtype.Date
	err := row.Scan(&sale.ID, &sale.Number, &sale.SoldAt, &sale.Method, &sale.Subtotal, &sale.Tax, &sale.Total,
		&sale.IsFiado, &clientID, &dueDate, &sale.Status, &sale.CreatedBy, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if clientID.Valid {
		sale.ClientID = &clientID.Int64
	}
	if dueDate.Valid {
		t := dueDate.Time
		sale.DueDate = &t
	}
	return &sale, nil
}

// GetSale fetches a sale by id.
func (r *Repository) GetSale(ctx context.Context, id int64) (*Sale, error) {
	const query = `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`
	return scanSale(r.pool.QueryRow(ctx, query, id))
}

// ListSaleLines lists the line items of a sale.
func (r *Repository) ListSaleLines(ctx context.Context, saleID int64) ([]SaleLine, error) {
	const query = `
		SELECT id, sale_id, product_id, lot_id, quantity, unit_price, subtotal
		FROM sale_lines
		WHERE sale_id = $1
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []SaleLine
	for rows.Next() {
		var line SaleLine
		var lotID pgtype.Int8
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ProductID, &lotID, &line.Quantity, &line.UnitPrice, &line.Subtotal); err != nil {
			return nil, err
		}
		if lotID.Valid {
			line.LotID = &lotID.Int64
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ListSales lists sales in a date range, newest first.
func (r *Repository) ListSales(ctx context.Context, filter SaleFilter) ([]Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE 1=1`
	args := []any{}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += ` AND sold_at >= $` + itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To.Add(24*time.Hour))
		query += ` AND sold_at < $` + itoa(len(args))
	}
	query += ` ORDER BY sold_at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)
	query += ` LIMIT $` + itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	return sales, rows.Err()
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

var _ RepositoryPort = (*Repository)(nil)
