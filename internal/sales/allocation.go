package sales

import (
	"cmp"
	"slices"

	"github.com/almacen-pos/almacen/internal/inventory"
)

// lotAllocation pairs a lot with the quantity to take from it.
type lotAllocation struct {
	LotID    int64
	Quantity int64
}

// allocateFEFO picks lots for a line item that did not name one:
// first-expiry-first-out, lots without expiry last, tiebreaking on lowest
// quantity and then oldest lot id. Disabled lots never participate.
func allocateFEFO(lots []inventory.Lot, quantity int64) ([]lotAllocation, int64) {
	candidates := make([]inventory.Lot, 0, len(lots))
	for _, lot := range lots {
		if lot.IsEnabled && lot.Quantity > 0 {
			candidates = append(candidates, lot)
		}
	}
	slices.SortStableFunc(candidates, func(a, b inventory.Lot) int {
		switch {
		case a.Expiry == nil && b.Expiry != nil:
			return 1
		case a.Expiry != nil && b.Expiry == nil:
			return -1
		case a.Expiry != nil && b.Expiry != nil && !a.Expiry.Equal(*b.Expiry):
			if a.Expiry.Before(*b.Expiry) {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(a.Quantity, b.Quantity); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	var available int64
	for _, lot := range candidates {
		available += lot.Quantity
	}
	if available < quantity {
		return nil, available
	}

	var allocations []lotAllocation
	remaining := quantity
	for _, lot := range candidates {
		if remaining == 0 {
			break
		}
		take := min(lot.Quantity, remaining)
		allocations = append(allocations, lotAllocation{LotID: lot.ID, Quantity: take})
		remaining -= take
	}
	return allocations, available
}
