package sales

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/almacen-pos/almacen/internal/inventory"
)

func lotWith(id int64, qty int64, expiry *time.Time, enabled bool) inventory.Lot {
	return inventory.Lot{ID: id, ProductID: 1, Quantity: qty, Expiry: expiry, IsEnabled: enabled}
}

func TestAllocateFEFOOrdersByExpiry(t *testing.T) {
	soon := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)

	lots := []inventory.Lot{
		lotWith(1, 10, &later, true),
		lotWith(2, 3, &soon, true),
		lotWith(3, 5, nil, true),
	}

	allocations, available := allocateFEFO(lots, 12)
	require.Equal(t, int64(18), available)
	require.Equal(t, []lotAllocation{
		{LotID: 2, Quantity: 3},
		{LotID: 1, Quantity: 9},
	}, allocations)
}

func TestAllocateFEFOExpirylessLast(t *testing.T) {
	soon := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	lots := []inventory.Lot{
		lotWith(1, 2, nil, true),
		lotWith(2, 2, &soon, true),
	}

	allocations, _ := allocateFEFO(lots, 3)
	require.Equal(t, []lotAllocation{
		{LotID: 2, Quantity: 2},
		{LotID: 1, Quantity: 1},
	}, allocations)
}

func TestAllocateFEFOTiebreaks(t *testing.T) {
	expiry := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	// Same expiry: smallest quantity first, then lowest id.
	lots := []inventory.Lot{
		lotWith(5, 4, &expiry, true),
		lotWith(3, 2, &expiry, true),
		lotWith(4, 2, &expiry, true),
	}

	allocations, _ := allocateFEFO(lots, 7)
	require.Equal(t, []lotAllocation{
		{LotID: 3, Quantity: 2},
		{LotID: 4, Quantity: 2},
		{LotID: 5, Quantity: 3},
	}, allocations)
}

func TestAllocateFEFOSkipsDisabledAndEmpty(t *testing.T) {
	soon := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	lots := []inventory.Lot{
		lotWith(1, 50, &soon, false),
		lotWith(2, 0, &soon, true),
		lotWith(3, 4, nil, true),
	}

	allocations, available := allocateFEFO(lots, 4)
	require.Equal(t, int64(4), available)
	require.Equal(t, []lotAllocation{{LotID: 3, Quantity: 4}}, allocations)
}

func TestAllocateFEFOInsufficient(t *testing.T) {
	lots := []inventory.Lot{lotWith(1, 3, nil, true)}

	allocations, available := allocateFEFO(lots, 5)
	require.Nil(t, allocations)
	require.Equal(t, int64(3), available)
}
