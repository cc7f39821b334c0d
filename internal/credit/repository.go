package credit

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/almacen-pos/almacen/internal/sales"
	"github.com/almacen-pos/almacen/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the credit ledger.
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

const saleColumns = `id, number, sold_at, method, subtotal, tax, total, is_fiado, client_id, due_date, status, created_by, created_at`

func scanSale(row pgx.Row) (*sales.Sale, error) {
	var sale sales.Sale
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

func (r *txRepo) GetSaleForUpdate(ctx context.Context, saleID int64) (*sales.Sale, error) {
	const query = `SELECT ` + saleColumns + ` FROM sales WHERE id = $1 FOR UPDATE`
	return scanSale(r.tx.QueryRow(ctx, query, saleID))
}

func (r *txRepo) SumPayments(ctx context.Context, saleID int64) (int64, error) {
	return sumPayments(ctx, r.tx, saleID)
}

func (r *txRepo) SumReturns(ctx context.Context, saleID int64) (int64, error) {
	return sumReturns(ctx, r.tx, saleID)
}

func (r *txRepo) InsertPayment(ctx context.Context, payment Payment) (int64, error) {
	const query = `
		INSERT INTO payments (sale_id, reference, amount, method, paid_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int64
	err := r.tx.QueryRow(ctx, query,
		payment.SaleID, payment.Reference, payment.Amount, payment.Method, payment.PaidAt, payment.CreatedBy,
	).Scan(&id)
	return id, err
}

func (r *txRepo) SettleSale(ctx context.Context, saleID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales SET status = 'SETTLED' WHERE id = $1 AND status = 'OPEN'`, saleID)
	return err
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func sumPayments(ctx context.Context, q queryer, saleID int64) (int64, error) {
	var total int64
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE sale_id = $1`, saleID).Scan(&total)
	return total, err
}

func sumReturns(ctx context.Context, q queryer, saleID int64) (int64, error) {
	var total int64
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM returns WHERE sale_id = $1`, saleID).Scan(&total)
	return total, err
}

// GetSale fetches a sale by id.
func (r *Repository) GetSale(ctx context.Context, saleID int64) (*sales.Sale, error) {
	const query = `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`
	return scanSale(r.pool.QueryRow(ctx, query, saleID))
}

// SumPayments totals the payments registered against a sale.
func (r *Repository) SumPayments(ctx context.Context, saleID int64) (int64, error) {
	return sumPayments(ctx, r.pool, saleID)
}

// SumReturns totals the return amounts recorded against a sale.
func (r *Repository) SumReturns(ctx context.Context, saleID int64) (int64, error) {
	return sumReturns(ctx, r.pool, saleID)
}

// ListPayments lists the payments of a sale, oldest first.
func (r *Repository) ListPayments(ctx context.Context, saleID int64) ([]Payment, error) {
	const query = `
		SELECT id, sale_id, reference, amount, method, paid_at, created_by
		FROM payments WHERE sale_id = $1 ORDER BY paid_at, id`

	rows, err := r.pool.Query(ctx, query, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.SaleID, &p.Reference, &p.Amount, &p.Method, &p.PaidAt, &p.CreatedBy); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ListOutstanding lists open fiado sales with their derived balances.
func (r *Repository) ListOutstanding(ctx context.Context, sort SortKey) ([]OutstandingSale, error) {
	query := `
		SELECT s.id, s.number, s.sold_at, s.method, s.subtotal, s.tax, s.total, s.is_fiado,
		       s.client_id, s.due_date, s.status, s.created_by, s.created_at,
		       GREATEST(s.total - COALESCE(p.paid, 0) - COALESCE(ret.returned, 0), 0) AS outstanding
		FROM sales s
		LEFT JOIN (SELECT sale_id, SUM(amount) AS paid FROM payments GROUP BY sale_id) p ON p.sale_id = s.id
		LEFT JOIN (SELECT sale_id, SUM(amount) AS returned FROM returns GROUP BY sale_id) ret ON ret.sale_id = s.id
		WHERE s.is_fiado AND s.status = 'OPEN'`

	switch sort {
	case SortByOutstanding:
		query += ` ORDER BY outstanding DESC, s.id`
	case SortBySaleDate:
		query += ` ORDER BY s.sold_at DESC, s.id`
	default:
		query += ` ORDER BY s.due_date ASC NULLS LAST, s.id`
	}

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []OutstandingSale
	for rows.Next() {
		var out OutstandingSale
		var clientID pgtype.Int8
		var dueDate pgtype.Date
		err := rows.Scan(&out.ID, &out.Number, &out.SoldAt, &out.Method, &out.Subtotal, &out.Tax, &out.Total,
			&out.IsFiado, &clientID, &dueDate, &out.Status, &out.CreatedBy, &out.CreatedAt, &out.Outstanding)
		if err != nil {
			return nil, err
		}
		if clientID.Valid {
			out.ClientID = &clientID.Int64
		}
		if dueDate.Valid {
			t := dueDate.Time
			out.DueDate = &t
		}
		result = append(result, out)
	}
	return result, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
