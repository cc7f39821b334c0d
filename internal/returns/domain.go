package returns

import (
	"errors"
	"time"
)

// Return is a recorded merchandise return against a sale.
type Return struct {
	ID        int64        `json:"id"`
	SaleID    int64        `json:"sale_id"`
	Reference string       `json:"reference"`
	Reason    string       `json:"reason"`
	Amount    int64        `json:"amount"`
	CreatedBy int64        `json:"created_by"`
	CreatedAt time.Time    `json:"created_at"`
	Items     []ReturnItem `json:"items,omitempty"`
}

// ReturnItem records the returned quantity of one sale line restored to one lot.
type ReturnItem struct {
	ID        int64 `json:"id"`
	ReturnID  int64 `json:"return_id"`
	LineID    int64 `json:"line_id"`
	LotID     int64 `json:"lot_id"`
	Quantity  int64 `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
	Amount    int64 `json:"amount"`
}

// LineInput selects how much of a sale line to return.
type LineInput struct {
	LineID   int64
	Quantity int64
}

// ErrReturnExceedsSold rejects returning more than what remains returnable on a line.
var ErrReturnExceedsSold = errors.New("returns: quantity exceeds what remains returnable")

// ErrReturnExceedsOutstanding rejects a return whose credited amount would
// drive a fiado sale's outstanding balance negative.
var ErrReturnExceedsOutstanding = errors.New("returns: amount exceeds outstanding balance")
