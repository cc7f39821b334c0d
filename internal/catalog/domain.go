package catalog

import "time"

// Product is a sellable item. Stock is never stored here; it is derived
// from the product's lots by the inventory aggregator.
type Product struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	UnitPrice    int64     `json:"unit_price"`
	Presentation string    `json:"presentation"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProductInput describes a create or update request.
type ProductInput struct {
	Name         string
	Category     string
	UnitPrice    int64
	Presentation string
	IsActive     bool
}
