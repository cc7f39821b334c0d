package inventory

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/almacen-pos/almacen/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	InsertLot(ctx context.Context, lot Lot) (*Lot, error)
	GetLot(ctx context.Context, id int64) (*Lot, error)
	GetLotByCode(ctx context.Context, code string) (*Lot, error)
	ListLotsByProduct(ctx context.Context, productID int64) ([]Lot, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	ProductName(ctx context.Context, productID int64) (string, error)
	SetExpiry(ctx context.Context, lotID int64, expiry *time.Time) error
	SetCost(ctx context.Context, lotID, cost int64) error
	SetEnabled(ctx context.Context, lotID int64, enabled bool) error
	TotalStock(ctx context.Context, productID int64) (int64, error)
	ListLowStock(ctx context.Context, threshold int64) ([]LowStockProduct, error)
	ListExpiring(ctx context.Context, until time.Time, limit, offset int) ([]ExpiringLot, error)
}

// TxRepository exposes the row-locked operations used inside transactions.
type TxRepository interface {
	GetLotForUpdate(ctx context.Context, lotID int64) (*Lot, error)
	UpdateLotQuantity(ctx context.Context, lotID, quantity int64) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups aggregator settings. The low-stock threshold is an
// explicit configuration value, never process-wide mutable state.
type ServiceConfig struct {
	LowStockThreshold int64
}

// Service owns the lot ledger and its read projections.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	cfg    ServiceConfig
	single singleflight.Group
	now    func() time.Time
}

// NewService builds a Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	if cfg.LowStockThreshold <= 0 {
		cfg.LowStockThreshold = 5
	}
	return &Service{repo: repo, audit: audit, cfg: cfg, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// CreateLot registers a newly received lot. An empty code is generated from
// the product name; a supplied code must be free across the whole catalog.
func (s *Service) CreateLot(ctx context.Context, input LotInput) (*Lot, error) {
	if input.ProductID == 0 {
		return nil, shared.Validationf("product_id", "product is required")
	}
	if input.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if input.UnitCost < 0 {
		return nil, ErrInvalidUnitCost
	}

	code := normalizeCode(input.Code)
	if code == "" {
		name, err := s.repo.ProductName(ctx, input.ProductID)
		if err != nil {
			return nil, err
		}
		code, err = s.generateCode(ctx, name, s.now())
		if err != nil {
			return nil, err
		}
	} else {
		taken, err := s.repo.CodeExists(ctx, code)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrCodeTaken
		}
	}

	lot, err := s.repo.InsertLot(ctx, Lot{
		ProductID: input.ProductID,
		Code:      code,
		Quantity:  input.Quantity,
		UnitCost:  input.UnitCost,
		Expiry:    input.Expiry,
		IsEnabled: true,
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, input.ActorID, "inventory:lot_create", lot.ID, map[string]any{
		"product_id": lot.ProductID,
		"code":       lot.Code,
		"quantity":   lot.Quantity,
	})
	return lot, nil
}

// IncrementLot adds quantity to a lot. Used for restocking and return
// reversal. There is no upper bound.
func (s *Service) IncrementLot(ctx context.Context, lotID, quantity, actorID int64) (*Lot, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	var updated *Lot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lot, err := tx.GetLotForUpdate(ctx, lotID)
		if err != nil {
			return err
		}
		lot.Quantity += quantity
		if err := tx.UpdateLotQuantity(ctx, lot.ID, lot.Quantity); err != nil {
			return err
		}
		updated = lot
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "inventory:lot_increment", lotID, map[string]any{"quantity": quantity})
	return updated, nil
}

// DecrementLot removes quantity from a lot. A decrement that would drive
// the quantity negative is rejected, not clamped.
func (s *Service) DecrementLot(ctx context.Context, lotID, quantity, actorID int64) (*Lot, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	var updated *Lot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lot, err := tx.GetLotForUpdate(ctx, lotID)
		if err != nil {
			return err
		}
		if lot.Quantity < quantity {
			return fmt.Errorf("%w: lot %s has %d", ErrInsufficientStock, lot.Code, lot.Quantity)
		}
		lot.Quantity -= quantity
		if err := tx.UpdateLotQuantity(ctx, lot.ID, lot.Quantity); err != nil {
			return err
		}
		updated = lot
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "inventory:lot_decrement", lotID, map[string]any{"quantity": quantity})
	return updated, nil
}

// SetExpiry updates a lot's expiry date without touching its quantity.
func (s *Service) SetExpiry(ctx context.Context, lotID int64, expiry *time.Time, actorID int64) error {
	if err := s.repo.SetExpiry(ctx, lotID, expiry); err != nil {
		return err
	}
	s.record(ctx, actorID, "inventory:lot_set_expiry", lotID, map[string]any{"expiry": expiry})
	return nil
}

// SetCost updates a lot's unit acquisition cost.
func (s *Service) SetCost(ctx context.Context, lotID, cost, actorID int64) error {
	if cost < 0 {
		return ErrInvalidUnitCost
	}
	if err := s.repo.SetCost(ctx, lotID, cost); err != nil {
		return err
	}
	s.record(ctx, actorID, "inventory:lot_set_cost", lotID, map[string]any{"unit_cost": cost})
	return nil
}

// SetEnabled toggles a lot in or out of sellable stock. Disabling replaces
// deletion so history stays intact.
func (s *Service) SetEnabled(ctx context.Context, lotID int64, enabled bool, actorID int64) error {
	if err := s.repo.SetEnabled(ctx, lotID, enabled); err != nil {
		return err
	}
	s.record(ctx, actorID, "inventory:lot_set_enabled", lotID, map[string]any{"enabled": enabled})
	return nil
}

// GetLot fetches one lot.
func (s *Service) GetLot(ctx context.Context, lotID int64) (*Lot, error) {
	return s.repo.GetLot(ctx, lotID)
}

// GetLotByCode fetches a lot by its human-assigned code, case-insensitively.
func (s *Service) GetLotByCode(ctx context.Context, code string) (*Lot, error) {
	return s.repo.GetLotByCode(ctx, normalizeCode(code))
}

// ListLotsByProduct lists every lot of a product, disabled ones included.
func (s *Service) ListLotsByProduct(ctx context.Context, productID int64) ([]Lot, error) {
	return s.repo.ListLotsByProduct(ctx, productID)
}

// TotalStock derives a product's sellable stock: the sum over its enabled
// lots only. Concurrent dashboard polls for the same product collapse into
// a single query.
func (s *Service) TotalStock(ctx context.Context, productID int64) (int64, error) {
	v, err, _ := s.single.Do("stock:"+strconv.FormatInt(productID, 10), func() (any, error) {
		return s.repo.TotalStock(ctx, productID)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// IsLowStock reports whether the product's total stock sits at or below the
// threshold. A nil threshold falls back to the configured default.
func (s *Service) IsLowStock(ctx context.Context, productID int64, threshold *int64) (bool, error) {
	limit := s.cfg.LowStockThreshold
	if threshold != nil {
		limit = *threshold
	}
	total, err := s.TotalStock(ctx, productID)
	if err != nil {
		return false, err
	}
	return total <= limit, nil
}

// LowStockThreshold exposes the configured default threshold.
func (s *Service) LowStockThreshold() int64 {
	return s.cfg.LowStockThreshold
}

// ListLowStock lists products at or below the threshold (default when <= 0).
func (s *Service) ListLowStock(ctx context.Context, threshold int64) ([]LowStockProduct, error) {
	if threshold <= 0 {
		threshold = s.cfg.LowStockThreshold
	}
	return s.repo.ListLowStock(ctx, threshold)
}

// expiringPageSize bounds each repository fetch inside ExpiringLots.
const expiringPageSize = 100

// ExpiringLots yields lots whose expiry falls within [now, now+withinDays],
// enriched with the product name. The sequence is lazy (it pages through
// the repository) and restartable (each range starts a fresh scan). Lots
// without an expiry date never appear.
func (s *Service) ExpiringLots(ctx context.Context, withinDays int) iter.Seq2[ExpiringLot, error] {
	until := s.now().AddDate(0, 0, withinDays)
	return func(yield func(ExpiringLot, error) bool) {
		for offset := 0; ; offset += expiringPageSize {
			page, err := s.repo.ListExpiring(ctx, until, expiringPageSize, offset)
			if err != nil {
				yield(ExpiringLot{}, err)
				return
			}
			for _, lot := range page {
				if !yield(lot, nil) {
					return
				}
			}
			if len(page) < expiringPageSize {
				return
			}
		}
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, lotID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "lot",
		EntityID: strconv.FormatInt(lotID, 10),
		Meta:     meta,
	})
}
