package sales

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/almacen-pos/almacen/internal/inventory"
	"github.com/almacen-pos/almacen/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id int64) (*Sale, error)
	ListSaleLines(ctx context.Context, saleID int64) ([]SaleLine, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]Sale, error)
}

// TxRepository exposes the operations of one settlement transaction.
type TxRepository interface {
	GetLotForUpdate(ctx context.Context, lotID int64) (*inventory.Lot, error)
	ListEnabledLotsForUpdate(ctx context.Context, productID int64) ([]inventory.Lot, error)
	// DecrementLot subtracts quantity and reports false when the lot no
	// longer holds enough, leaving the row untouched.
	DecrementLot(ctx context.Context, lotID, quantity int64) (bool, error)
	InsertSale(ctx context.Context, sale Sale) (int64, error)
	InsertSaleLine(ctx context.Context, line SaleLine) (int64, error)
	InsertAllocation(ctx context.Context, alloc LineAllocation) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups settlement settings.
type ServiceConfig struct {
	// TaxRate is the IVA fraction applied to the subtotal, e.g. 0.19.
	TaxRate float64
}

// Service converts proposed carts into persisted, stock-consistent sales.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	cfg   ServiceConfig
	now   func() time.Time
}

// NewService builds a Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	return &Service{repo: repo, audit: audit, cfg: cfg, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// Tax computes the rounded tax for a subtotal in whole currency units.
func (s *Service) Tax(subtotal int64) int64 {
	return int64(math.Round(float64(subtotal) * s.cfg.TaxRate))
}

func (s *Service) validateCart(input CartInput) error {
	if len(input.Lines) == 0 {
		return ErrEmptyCart
	}
	if !input.Method.Valid() {
		return shared.Validationf("method", "unknown payment method %q", string(input.Method))
	}
	var subtotal int64
	for i, line := range input.Lines {
		if line.ProductID <= 0 {
			return shared.Validationf("lines", "line %d: product is required", i+1)
		}
		if line.Quantity <= 0 {
			return shared.Validationf("lines", "line %d: quantity must be a positive integer", i+1)
		}
		if line.UnitPrice <= 0 {
			return shared.Validationf("lines", "line %d: unit price must be positive", i+1)
		}
		subtotal += line.Quantity * line.UnitPrice
	}
	if input.Subtotal != subtotal {
		return shared.Validationf("subtotal", "expected %d from line items, got %d", subtotal, input.Subtotal)
	}
	if want := s.Tax(subtotal); input.Tax != want {
		return shared.Validationf("tax", "expected %d at the configured rate, got %d", want, input.Tax)
	}
	if input.Subtotal+input.Tax != input.Total {
		return shared.Validationf("total", "subtotal + tax must equal total")
	}
	if input.DueDate != nil && input.Method != MethodFiado {
		return shared.Validationf("due_date", "due date only applies to fiado sales")
	}
	return nil
}

// SubmitSale validates the cart and, in a single transaction, decrements
// the chosen lots, persists the sale with price snapshots and, for fiado,
// opens the credit ledger entry. On any failure nothing is mutated.
func (s *Service) SubmitSale(ctx context.Context, input CartInput) (*Sale, error) {
	if err := s.validateCart(input); err != nil {
		return nil, err
	}

	isFiado := input.Method == MethodFiado
	sale := Sale{
		Number:    uuid.NewString(),
		SoldAt:    s.now(),
		Method:    input.Method,
		Subtotal:  input.Subtotal,
		Tax:       input.Tax,
		Total:     input.Total,
		IsFiado:   isFiado,
		ClientID:  input.ClientID,
		DueDate:   input.DueDate,
		Status:    StatusSettled,
		CreatedBy: input.ActorID,
	}
	if isFiado {
		sale.Status = StatusOpen
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		saleID, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = saleID

		for _, line := range input.Lines {
			allocations, err := s.reserveLine(ctx, tx, line)
			if err != nil {
				return err
			}
			lineID, err := tx.InsertSaleLine(ctx, SaleLine{
				SaleID:    saleID,
				ProductID: line.ProductID,
				LotID:     line.LotID,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
				Subtotal:  line.Quantity * line.UnitPrice,
			})
			if err != nil {
				return err
			}
			for _, alloc := range allocations {
				alloc.LineID = lineID
				if err := tx.InsertAllocation(ctx, alloc); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, input.ActorID, "sales:submit", sale.ID, map[string]any{
		"number": sale.Number,
		"method": string(sale.Method),
		"total":  sale.Total,
		"fiado":  sale.IsFiado,
	})
	return &sale, nil
}

// reserveLine decrements stock for one line and returns the allocation
// snapshot. Lines naming a lot take it all from that lot; the rest follow
// the FEFO policy across the product's enabled lots.
func (s *Service) reserveLine(ctx context.Context, tx TxRepository, line CartLine) ([]LineAllocation, error) {
	if line.LotID != nil {
		lot, err := tx.GetLotForUpdate(ctx, *line.LotID)
		if err != nil {
			return nil, err
		}
		if lot.ProductID != line.ProductID {
			return nil, shared.Validationf("lines", "lot %s does not belong to product %d", lot.Code, line.ProductID)
		}
		if !lot.IsEnabled || lot.Quantity < line.Quantity {
			available := lot.Quantity
			if !lot.IsEnabled {
				available = 0
			}
			return nil, &InsufficientStockError{ProductID: line.ProductID, Requested: line.Quantity, Available: available}
		}
		ok, err := tx.DecrementLot(ctx, lot.ID, line.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &InsufficientStockError{ProductID: line.ProductID, Requested: line.Quantity, Available: lot.Quantity}
		}
		return []LineAllocation{{LotID: lot.ID, Quantity: line.Quantity}}, nil
	}

	lots, err := tx.ListEnabledLotsForUpdate(ctx, line.ProductID)
	if err != nil {
		return nil, err
	}
	allocations, available := allocateFEFO(lots, line.Quantity)
	if allocations == nil {
		return nil, &InsufficientStockError{ProductID: line.ProductID, Requested: line.Quantity, Available: available}
	}
	out := make([]LineAllocation, 0, len(allocations))
	for _, alloc := range allocations {
		ok, err := tx.DecrementLot(ctx, alloc.LotID, alloc.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &InsufficientStockError{ProductID: line.ProductID, Requested: line.Quantity, Available: available}
		}
		out = append(out, LineAllocation{LotID: alloc.LotID, Quantity: alloc.Quantity})
	}
	return out, nil
}

// SaleDetail bundles a sale with its lines.
type SaleDetail struct {
	Sale  Sale       `json:"sale"`
	Lines []SaleLine `json:"lines"`
}

// GetSale fetches a sale with its line items.
func (s *Service) GetSale(ctx context.Context, id int64) (*SaleDetail, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.ListSaleLines(ctx, id)
	if err != nil {
		return nil, err
	}
	return &SaleDetail{Sale: *sale, Lines: lines}, nil
}

// ListSales lists sales within a date range, newest first.
func (s *Service) ListSales(ctx context.Context, filter SaleFilter) ([]Sale, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, shared.Validationf("range", "end of range precedes start")
	}
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, saleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sale",
		EntityID: strconv.FormatInt(saleID, 10),
		Meta:     meta,
	})
}
