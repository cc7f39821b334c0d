package returns

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/almacen-pos/almacen/internal/sales"
	"github.com/almacen-pos/almacen/internal/shared"
)

// RepositoryPort defines persistence operations for returns.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetReturn(ctx context.Context, id int64) (*Return, error)
	ListReturnsBySale(ctx context.Context, saleID int64) ([]Return, error)
}

// TxRepository exposes the operations available inside a return transaction.
type TxRepository interface {
	GetSaleForUpdate(ctx context.Context, saleID int64) (*sales.Sale, error)
	ListSaleLines(ctx context.Context, saleID int64) ([]sales.SaleLine, error)
	ListAllocations(ctx context.Context, lineID int64) ([]sales.LineAllocation, error)
	ReturnedByLot(ctx context.Context, saleID int64) (map[int64]map[int64]int64, error)
	IncrementLot(ctx context.Context, lotID, quantity int64) error
	InsertReturn(ctx context.Context, ret Return) (int64, error)
	InsertReturnItem(ctx context.Context, item ReturnItem) error
	SumPayments(ctx context.Context, saleID int64) (int64, error)
	SumReturns(ctx context.Context, saleID int64) (int64, error)
	SettleSale(ctx context.Context, saleID int64) error
}

// AuditPort records return activity.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service processes merchandise returns.
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

// ReturnComplete returns every remaining returnable unit of the sale.
func (s *Service) ReturnComplete(ctx context.Context, saleID int64, reason string, actorID int64) (*Return, error) {
	return s.process(ctx, saleID, nil, reason, actorID)
}

// ReturnPartial returns the given quantities of specific sale lines.
func (s *Service) ReturnPartial(ctx context.Context, saleID int64, items []LineInput, reason string, actorID int64) (*Return, error) {
	if len(items) == 0 {
		return nil, shared.Validationf("items", "at least one line is required")
	}
	return s.process(ctx, saleID, items, reason, actorID)
}

// GetReturn fetches a return with its items.
func (s *Service) GetReturn(ctx context.Context, id int64) (*Return, error) {
	return s.repo.GetReturn(ctx, id)
}

// ListReturnsBySale lists the returns recorded against a sale.
func (s *Service) ListReturnsBySale(ctx context.Context, saleID int64) ([]Return, error) {
	return s.repo.ListReturnsBySale(ctx, saleID)
}

// process runs the shared return pipeline: items == nil means "everything
// that remains returnable".
func (s *Service) process(ctx context.Context, saleID int64, items []LineInput, reason string, actorID int64) (*Return, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, shared.Validationf("reason", "a reason is required")
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, shared.Validationf("items", "line %d: quantity must be positive", item.LineID)
		}
	}

	var result *Return
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		lines, err := tx.ListSaleLines(ctx, saleID)
		if err != nil {
			return err
		}
		returned, err := tx.ReturnedByLot(ctx, saleID)
		if err != nil {
			return err
		}

		byID := make(map[int64]sales.SaleLine, len(lines))
		for _, line := range lines {
			byID[line.ID] = line
		}

		if items == nil {
			for _, line := range lines {
				remaining := line.Quantity - sumByLot(returned[line.ID])
				if remaining > 0 {
					items = append(items, LineInput{LineID: line.ID, Quantity: remaining})
				}
			}
			if len(items) == 0 {
				return fmt.Errorf("%w: sale %d has nothing left to return", ErrReturnExceedsSold, saleID)
			}
		}

		// The credited amount carries the sale's tax, spread over the
		// merchandise proportionally. Amounts are telescoping differences of
		// the cumulative gross, so the returns on a sale always sum to
		// exactly sale.Total once every unit comes back, rounding included.
		netBefore := int64(0)
		for _, line := range lines {
			netBefore += line.UnitPrice * sumByLot(returned[line.ID])
		}

		ret := Return{
			SaleID:    saleID,
			Reference: uuid.NewString(),
			Reason:    strings.TrimSpace(reason),
			CreatedBy: actorID,
			CreatedAt: s.now(),
		}
		var restores []ReturnItem
		cumNet := netBefore
		for _, item := range items {
			line, ok := byID[item.LineID]
			if !ok {
				return shared.Validationf("items", "line %d does not belong to sale %d", item.LineID, saleID)
			}
			already := sumByLot(returned[line.ID])
			if item.Quantity > line.Quantity-already {
				return fmt.Errorf("%w: line %d sold %d, already returned %d, requested %d",
					ErrReturnExceedsSold, line.ID, line.Quantity, already, item.Quantity)
			}
			parts, err := s.splitAcrossLots(ctx, tx, line, returned[line.ID], item.Quantity)
			if err != nil {
				return err
			}
			for _, part := range parts {
				before := grossUpTo(sale, cumNet)
				cumNet += part.UnitPrice * part.Quantity
				part.Amount = grossUpTo(sale, cumNet) - before
				ret.Amount += part.Amount
				restores = append(restores, part)
			}
		}

		var outstanding int64
		if sale.IsFiado {
			payments, err := tx.SumPayments(ctx, sale.ID)
			if err != nil {
				return err
			}
			priorReturns, err := tx.SumReturns(ctx, sale.ID)
			if err != nil {
				return err
			}
			outstanding = sale.Total - payments - priorReturns
			if ret.Amount > outstanding {
				return fmt.Errorf("%w: sale %d owes %d, return credits %d",
					ErrReturnExceedsOutstanding, sale.ID, outstanding, ret.Amount)
			}
		}

		returnID, err := tx.InsertReturn(ctx, ret)
		if err != nil {
			return err
		}
		ret.ID = returnID
		for i := range restores {
			restores[i].ReturnID = returnID
			if err := tx.InsertReturnItem(ctx, restores[i]); err != nil {
				return err
			}
			if err := tx.IncrementLot(ctx, restores[i].LotID, restores[i].Quantity); err != nil {
				return err
			}
		}
		ret.Items = restores

		if sale.IsFiado && sale.Status == sales.StatusOpen && outstanding-ret.Amount <= 0 {
			if err := tx.SettleSale(ctx, sale.ID); err != nil {
				return err
			}
		}
		result = &ret
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "return.create",
		Entity:   "return",
		EntityID: strconv.FormatInt(result.ID, 10),
		Meta: map[string]any{
			"sale_id": saleID,
			"amount":  result.Amount,
			"reason":  result.Reason,
		},
	})
	return result, nil
}

// splitAcrossLots distributes a returned quantity over the lots the line was
// settled from, honoring what each lot already got back.
func (s *Service) splitAcrossLots(ctx context.Context, tx TxRepository, line sales.SaleLine, returnedByLot map[int64]int64, quantity int64) ([]ReturnItem, error) {
	allocations, err := tx.ListAllocations(ctx, line.ID)
	if err != nil {
		return nil, err
	}
	if len(allocations) == 0 {
		return nil, fmt.Errorf("returns: sale line %d has no lot allocations", line.ID)
	}

	var parts []ReturnItem
	remaining := quantity
	for _, alloc := range allocations {
		if remaining == 0 {
			break
		}
		capacity := alloc.Quantity - returnedByLot[alloc.LotID]
		if capacity <= 0 {
			continue
		}
		take := min(capacity, remaining)
		parts = append(parts, ReturnItem{
			LineID:    line.ID,
			LotID:     alloc.LotID,
			Quantity:  take,
			UnitPrice: line.UnitPrice,
		})
		remaining -= take
	}
	if remaining > 0 {
		return nil, fmt.Errorf("%w: line %d allocations cannot absorb %d more units",
			ErrReturnExceedsSold, line.ID, remaining)
	}
	return parts, nil
}

// grossUpTo maps a cumulative net merchandise value onto the sale's gross
// scale (total over subtotal). Returning all of the merchandise lands on
// sale.Total exactly.
func grossUpTo(sale *sales.Sale, net int64) int64 {
	if sale.Subtotal <= 0 {
		return net
	}
	return int64(math.Round(float64(net) * float64(sale.Total) / float64(sale.Subtotal)))
}

func sumByLot(byLot map[int64]int64) int64 {
	var total int64
	for _, qty := range byLot {
		total += qty
	}
	return total
}
