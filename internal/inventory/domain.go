package inventory

import (
	"errors"
	"time"
)

// Lot is a discrete quantity of one product received at one time, with its
// own acquisition cost and expiry. Lots are never deleted; disabling one
// keeps it out of sellable stock while preserving history.
type Lot struct {
	ID        int64      `json:"id"`
	ProductID int64      `json:"product_id"`
	Code      string     `json:"code"`
	Quantity  int64      `json:"quantity"`
	UnitCost  int64      `json:"unit_cost"`
	Expiry    *time.Time `json:"expiry,omitempty"`
	IsEnabled bool       `json:"is_enabled"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// LotInput describes a lot creation request. Code may be empty, in which
// case one is generated from the product name.
type LotInput struct {
	ProductID int64
	Code      string
	Quantity  int64
	UnitCost  int64
	Expiry    *time.Time
	ActorID   int64
}

// ExpiringLot is a lot close to its expiry date, enriched with the owning
// product's name for display.
type ExpiringLot struct {
	LotID       int64     `json:"lot_id"`
	Code        string    `json:"code"`
	ProductID   int64     `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int64     `json:"quantity"`
	Expiry      time.Time `json:"expiry"`
}

// LowStockProduct is a product whose aggregate enabled stock sits at or
// below the alert threshold.
type LowStockProduct struct {
	ProductID  int64  `json:"product_id"`
	Name       string `json:"name"`
	TotalStock int64  `json:"total_stock"`
}

var (
	// ErrInsufficientStock is returned when a decrement exceeds the quantity on hand.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInvalidQuantity indicates a non-positive movement quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be a positive integer")
	// ErrInvalidUnitCost indicates a negative cost value.
	ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")
	// ErrCodeTaken indicates the lot code collides with an existing one.
	ErrCodeTaken = errors.New("inventory: lot code already in use")
)
