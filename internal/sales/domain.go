package sales

import (
	"errors"
	"fmt"
	"time"

	"github.com/almacen-pos/almacen/internal/inventory"
)

// PaymentMethod enumerates how a sale is paid.
type PaymentMethod string

const (
	MethodCash     PaymentMethod = "CASH"
	MethodDebit    PaymentMethod = "DEBIT"
	MethodTransfer PaymentMethod = "TRANSFER"
	// MethodFiado is a credit sale: the buyer owes the total, settled
	// later through the credit ledger.
	MethodFiado PaymentMethod = "FIADO"
)

// Valid reports whether the method is one of the supported values.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodDebit, MethodTransfer, MethodFiado:
		return true
	}
	return false
}

// SaleStatus tracks settlement of the sale's balance.
type SaleStatus string

const (
	// StatusOpen means an outstanding balance remains (fiado only).
	StatusOpen SaleStatus = "OPEN"
	// StatusSettled means nothing is owed. One-way; no reopening.
	StatusSettled SaleStatus = "SETTLED"
)

// Sale is a committed transaction. Subtotal, tax and total are fixed at
// creation; later returns and payments only move the derived outstanding
// balance, never these fields.
type Sale struct {
	ID        int64         `json:"id"`
	Number    string        `json:"number"`
	SoldAt    time.Time     `json:"sold_at"`
	Method    PaymentMethod `json:"method"`
	Subtotal  int64         `json:"subtotal"`
	Tax       int64         `json:"tax"`
	Total     int64         `json:"total"`
	IsFiado   bool          `json:"is_fiado"`
	ClientID  *int64        `json:"client_id,omitempty"`
	DueDate   *time.Time    `json:"due_date,omitempty"`
	Status    SaleStatus    `json:"status"`
	CreatedBy int64         `json:"created_by"`
	CreatedAt time.Time     `json:"created_at"`
}

// SaleLine is one cart position with its price snapshotted at sale time.
type SaleLine struct {
	ID        int64  `json:"id"`
	SaleID    int64  `json:"sale_id"`
	ProductID int64  `json:"product_id"`
	LotID     *int64 `json:"lot_id,omitempty"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Subtotal  int64  `json:"subtotal"`
}

// LineAllocation records which lot a line's quantity was taken from, so a
// return can put it back exactly where it came from.
type LineAllocation struct {
	LineID   int64 `json:"line_id"`
	LotID    int64 `json:"lot_id"`
	Quantity int64 `json:"quantity"`
}

// CartLine is one proposed line item.
type CartLine struct {
	ProductID int64
	LotID     *int64
	Quantity  int64
	UnitPrice int64
}

// CartInput is a proposed sale with client-computed totals.
type CartInput struct {
	Lines    []CartLine
	Method   PaymentMethod
	Subtotal int64
	Tax      int64
	Total    int64
	ClientID *int64
	DueDate  *time.Time
	ActorID  int64
}

// SaleFilter bounds sale listings.
type SaleFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

// InsufficientStockError identifies the product that could not be covered
// so the caller can redirect the user to inventory.
type InsufficientStockError struct {
	ProductID int64
	Requested int64
	Available int64
}

// Error implements the error interface.
func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("sales: insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Unwrap lets errors.Is match the ledger's sentinel.
func (e *InsufficientStockError) Unwrap() error {
	return inventory.ErrInsufficientStock
}

// ErrEmptyCart indicates a sale without line items.
var ErrEmptyCart = errors.New("sales: cart must contain at least one line item")
