package credit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/almacen-pos/almacen/internal/sales"
	"github.com/almacen-pos/almacen/internal/shared"
)

// RepositoryPort defines persistence operations for the credit ledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, saleID int64) (*sales.Sale, error)
	ListPayments(ctx context.Context, saleID int64) ([]Payment, error)
	SumPayments(ctx context.Context, saleID int64) (int64, error)
	SumReturns(ctx context.Context, saleID int64) (int64, error)
	ListOutstanding(ctx context.Context, sort SortKey) ([]OutstandingSale, error)
}

// TxRepository exposes the operations available inside a payment transaction.
type TxRepository interface {
	GetSaleForUpdate(ctx context.Context, saleID int64) (*sales.Sale, error)
	SumPayments(ctx context.Context, saleID int64) (int64, error)
	SumReturns(ctx context.Context, saleID int64) (int64, error)
	InsertPayment(ctx context.Context, payment Payment) (int64, error)
	SettleSale(ctx context.Context, saleID int64) error
}

// AuditPort records credit activity.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages fiado balances and payments.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the service clock.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// RegisterPayment applies a payment to an open fiado sale. When the balance
// reaches zero the sale flips to settled, permanently.
func (s *Service) RegisterPayment(ctx context.Context, saleID, amount int64, method string, actorID int64) (*Payment, error) {
	if amount <= 0 {
		return nil, shared.Validationf("amount", "must be positive")
	}
	switch sales.PaymentMethod(method) {
	case sales.MethodCash, sales.MethodDebit, sales.MethodTransfer:
	default:
		return nil, shared.Validationf("method", "%q is not a valid payment method", method)
	}

	payment := Payment{
		SaleID:    saleID,
		Reference: uuid.NewString(),
		Amount:    amount,
		Method:    method,
		PaidAt:    s.now(),
		CreatedBy: actorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if !sale.IsFiado {
			return shared.Validationf("sale_id", "sale %d is not a fiado sale", saleID)
		}
		outstanding, err := outstandingOf(ctx, tx, sale)
		if err != nil {
			return err
		}
		if amount > outstanding {
			return ErrPaymentExceedsBalance
		}
		id, err := tx.InsertPayment(ctx, payment)
		if err != nil {
			return err
		}
		payment.ID = id
		if amount == outstanding {
			return tx.SettleSale(ctx, saleID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "payment.register",
		Entity:   "payment",
		EntityID: strconv.FormatInt(payment.ID, 10),
		Meta: map[string]any{
			"sale_id": saleID,
			"amount":  amount,
			"method":  method,
		},
	})
	return &payment, nil
}

// Outstanding returns the derived balance of a sale, clamped at zero.
func (s *Service) Outstanding(ctx context.Context, saleID int64) (int64, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return 0, err
	}
	payments, err := s.repo.SumPayments(ctx, saleID)
	if err != nil {
		return 0, err
	}
	returns, err := s.repo.SumReturns(ctx, saleID)
	if err != nil {
		return 0, err
	}
	outstanding := sale.Total - payments - returns
	if outstanding < 0 {
		outstanding = 0
	}
	return outstanding, nil
}

// ListPayments lists payments registered against a sale.
func (s *Service) ListPayments(ctx context.Context, saleID int64) ([]Payment, error) {
	return s.repo.ListPayments(ctx, saleID)
}

// ListOutstanding lists open fiado sales ordered by the given key, flagging
// the overdue ones against the current date.
func (s *Service) ListOutstanding(ctx context.Context, sort SortKey) ([]OutstandingSale, error) {
	if sort == "" {
		sort = SortByDueDate
	}
	if !sort.Valid() {
		return nil, shared.Validationf("sort", "%q is not a supported ordering", sort)
	}
	list, err := s.repo.ListOutstanding(ctx, sort)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range list {
		list[i].Overdue = list[i].DueDate != nil && list[i].DueDate.Before(now)
	}
	return list, nil
}

func outstandingOf(ctx context.Context, tx TxRepository, sale *sales.Sale) (int64, error) {
	payments, err := tx.SumPayments(ctx, sale.ID)
	if err != nil {
		return 0, err
	}
	returns, err := tx.SumReturns(ctx, sale.ID)
	if err != nil {
		return 0, err
	}
	outstanding := sale.Total - payments - returns
	if outstanding < 0 {
		outstanding = 0
	}
	return outstanding, nil
}
