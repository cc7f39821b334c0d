package returns

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/almacen-pos/almacen/internal/sales"
	"github.com/almacen-pos/almacen/internal/shared"
)

// Repository provides PostgreSQL backed persistence for returns.
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

func (r *txRepo) GetSaleForUpdate(ctx context.Context, saleID int64) (*sales.Sale, error) {
	const query = `
		SELECT id, number, sold_at, method, subtotal, tax, total, is_fiado, client_id, due_date, status, created_by, created_at
		FROM sales WHERE id = $1 FOR UPDATE`

	var sale sales.Sale
	var clientID pgtype.Int8
	var dueDate pgtype.Date
	err := r.tx.QueryRow(ctx, query, saleID).Scan(
		&sale.ID, &sale.Number, &sale.SoldAt, &sale.Method, &sale.Subtotal, &sale.Tax, &sale.Total,
		&sale.IsFiado, &clientID, &dueDate, &sale.Status, &sale.CreatedBy, &sale.CreatedAt,
	)
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

func (r *txRepo) ListSaleLines(ctx context.Context, saleID int64) ([]sales.SaleLine, error) {
	const query = `
		SELECT id, sale_id, product_id, lot_id, quantity, unit_price, subtotal
		FROM sale_lines WHERE sale_id = $1 ORDER BY id`

	rows, err := r.tx.Query(ctx, query, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []sales.SaleLine
	for rows.Next() {
		var line sales.SaleLine
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

func (r *txRepo) ListAllocations(ctx context.Context, lineID int64) ([]sales.LineAllocation, error) {
	const query = `SELECT line_id, lot_id, quantity FROM sale_line_allocations WHERE line_id = $1 ORDER BY id`

	rows, err := r.tx.Query(ctx, query, lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var allocations []sales.LineAllocation
	for rows.Next() {
		var alloc sales.LineAllocation
		if err := rows.Scan(&alloc.LineID, &alloc.LotID, &alloc.Quantity); err != nil {
			return nil, err
		}
		allocations = append(allocations, alloc)
	}
	return allocations, rows.Err()
}

// ReturnedByLot sums prior returns of the sale, keyed line id then lot id.
func (r *txRepo) ReturnedByLot(ctx context.Context, saleID int64) (map[int64]map[int64]int64, error) {
	const query = `
		SELECT ri.line_id, ri.lot_id, SUM(ri.quantity)
		FROM return_items ri
		JOIN returns ret ON ret.id = ri.return_id
		WHERE ret.sale_id = $1
		GROUP BY ri.line_id, ri.lot_id`

	rows, err := r.tx.Query(ctx, query, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returned := make(map[int64]map[int64]int64)
	for rows.Next() {
		var lineID, lotID, qty int64
		if err := rows.Scan(&lineID, &lotID, &qty); err != nil {
			return nil, err
		}
		if returned[lineID] == nil {
			returned[lineID] = make(map[int64]int64)
		}
		returned[lineID][lotID] = qty
	}
	return returned, rows.Err()
}

// IncrementLot restores quantity to a lot, enabled or not.
func (r *txRepo) IncrementLot(ctx context.Context, lotID, quantity int64) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE lots SET quantity = quantity + $2, updated_at = NOW() WHERE id = $1`,
		lotID, quantity,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepo) InsertReturn(ctx context.Context, ret Return) (int64, error) {
	const query = `
		INSERT INTO returns (sale_id, reference, reason, amount, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int64
	err := r.tx.QueryRow(ctx, query, ret.SaleID, ret.Reference, ret.Reason, ret.Amount, ret.CreatedBy, ret.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepo) InsertReturnItem(ctx context.Context, item ReturnItem) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO return_items (return_id, line_id, lot_id, quantity, unit_price, amount) VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ReturnID, item.LineID, item.LotID, item.Quantity, item.UnitPrice, item.Amount,
	)
	return err
}

func (r *txRepo) SumPayments(ctx context.Context, saleID int64) (int64, error) {
	var total int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE sale_id = $1`, saleID).Scan(&total)
	return total, err
}

func (r *txRepo) SumReturns(ctx context.Context, saleID int64) (int64, error) {
	var total int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM returns WHERE sale_id = $1`, saleID).Scan(&total)
	return total, err
}

func (r *txRepo) SettleSale(ctx context.Context, saleID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales SET status = 'SETTLED' WHERE id = $1 AND status = 'OPEN'`, saleID)
	return err
}

const returnColumns = `id, sale_id, reference, reason, amount, created_by, created_at`

// GetReturn fetches a return with its items.
func (r *Repository) GetReturn(ctx context.Context, id int64) (*Return, error) {
	var ret Return
	err := r.pool.QueryRow(ctx, `SELECT `+returnColumns+` FROM returns WHERE id = $1`, id).Scan(
		&ret.ID, &ret.SaleID, &ret.Reference, &ret.Reason, &ret.Amount, &ret.CreatedBy, &ret.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	items, err := r.listItems(ctx, ret.ID)
	if err != nil {
		return nil, err
	}
	ret.Items = items
	return &ret, nil
}

// ListReturnsBySale lists returns recorded against a sale, items included.
func (r *Repository) ListReturnsBySale(ctx context.Context, saleID int64) ([]Return, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+returnColumns+` FROM returns WHERE sale_id = $1 ORDER BY id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Return
	for rows.Next() {
		var ret Return
		if err := rows.Scan(&ret.ID, &ret.SaleID, &ret.Reference, &ret.Reason, &ret.Amount, &ret.CreatedBy, &ret.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		items, err := r.listItems(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Items = items
	}
	return result, nil
}

func (r *Repository) listItems(ctx context.Context, returnID int64) ([]ReturnItem, error) {
	const query = `
		SELECT id, return_id, line_id, lot_id, quantity, unit_price, amount
		FROM return_items WHERE return_id = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, query, returnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ReturnItem
	for rows.Next() {
		var item ReturnItem
		if err := rows.Scan(&item.ID, &item.ReturnID, &item.LineID, &item.LotID, &item.Quantity, &item.UnitPrice, &item.Amount); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
