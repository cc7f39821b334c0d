package credit

import (
	"errors"
	"time"

	"github.com/almacen-pos/almacen/internal/sales"
)

// Payment is money received against an open fiado sale.
type Payment struct {
	ID        int64     `json:"id"`
	SaleID    int64     `json:"sale_id"`
	Reference string    `json:"reference"`
	Amount    int64     `json:"amount"`
	Method    string    `json:"method"`
	PaidAt    time.Time `json:"paid_at"`
	CreatedBy int64     `json:"created_by"`
}

// OutstandingSale is an open fiado sale with its derived balance.
type OutstandingSale struct {
	sales.Sale
	Outstanding int64 `json:"outstanding"`
	Overdue     bool  `json:"overdue"`
}

// SortKey orders the outstanding-debt listing.
type SortKey string

const (
	// SortByDueDate lists the soonest due first, undated last.
	SortByDueDate SortKey = "due_date"
	// SortByOutstanding lists the largest balance first.
	SortByOutstanding SortKey = "outstanding"
	// SortBySaleDate lists the most recent sale first.
	SortBySaleDate SortKey = "sale_date"
)

// Valid reports whether the sort key is one of the supported orderings.
func (k SortKey) Valid() bool {
	switch k {
	case SortByDueDate, SortByOutstanding, SortBySaleDate:
		return true
	}
	return false
}

// ErrPaymentExceedsBalance rejects payments larger than what is owed.
var ErrPaymentExceedsBalance = errors.New("credit: payment exceeds outstanding balance")
