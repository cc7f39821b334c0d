package sales

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/almacen-pos/almacen/internal/inventory"
	"github.com/almacen-pos/almacen/internal/shared"
)

type memorySalesRepo struct {
	lots        map[int64]*inventory.Lot
	sales       map[int64]*Sale
	lines       map[int64][]SaleLine
	allocations map[int64][]LineAllocation
	nextSaleID  int64
	nextLineID  int64
}

func newMemorySalesRepo() *memorySalesRepo {
	return &memorySalesRepo{
		lots:        make(map[int64]*inventory.Lot),
		sales:       make(map[int64]*Sale),
		lines:       make(map[int64][]SaleLine),
		allocations: make(map[int64][]LineAllocation),
	}
}

func (r *memorySalesRepo) addLot(lot inventory.Lot) {
	copied := lot
	r.lots[lot.ID] = &copied
}

// WithTx snapshots all state and restores it when the callback fails, so the
// fake honors the all-or-nothing contract of the real transaction.
func (r *memorySalesRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := r.clone()
	if err := fn(ctx, (*memoryTx)(r)); err != nil {
		*r = *snapshot
		return err
	}
	return nil
}

func (r *memorySalesRepo) clone() *memorySalesRepo {
	c := newMemorySalesRepo()
	c.nextSaleID = r.nextSaleID
	c.nextLineID = r.nextLineID
	for id, lot := range r.lots {
		copied := *lot
		c.lots[id] = &copied
	}
	for id, sale := range r.sales {
		copied := *sale
		c.sales[id] = &copied
	}
	for id, lines := range r.lines {
		c.lines[id] = append([]SaleLine(nil), lines...)
	}
	for id, allocs := range r.allocations {
		c.allocations[id] = append([]LineAllocation(nil), allocs...)
	}
	return c
}

func (r *memorySalesRepo) GetSale(ctx context.Context, id int64) (*Sale, error) {
	sale, ok := r.sales[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *sale
	return &copied, nil
}

func (r *memorySalesRepo) ListSaleLines(ctx context.Context, saleID int64) ([]SaleLine, error) {
	return append([]SaleLine(nil), r.lines[saleID]...), nil
}

func (r *memorySalesRepo) ListSales(ctx context.Context, filter SaleFilter) ([]Sale, error) {
	var out []Sale
	for _, sale := range r.sales {
		if !filter.From.IsZero() && sale.SoldAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !sale.SoldAt.Before(filter.To.Add(24*time.Hour)) {
			continue
		}
		out = append(out, *sale)
	}
	return out, nil
}

type memoryTx memorySalesRepo

func (t *memoryTx) GetLotForUpdate(ctx context.Context, lotID int64) (*inventory.Lot, error) {
	lot, ok := t.lots[lotID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *lot
	return &copied, nil
}

func (t *memoryTx) ListEnabledLotsForUpdate(ctx context.Context, productID int64) ([]inventory.Lot, error) {
	var lots []inventory.Lot
	for _, lot := range t.lots {
		if lot.ProductID == productID && lot.IsEnabled {
			lots = append(lots, *lot)
		}
	}
	return lots, nil
}

func (t *memoryTx) DecrementLot(ctx context.Context, lotID, quantity int64) (bool, error) {
	lot, ok := t.lots[lotID]
	if !ok {
		return false, shared.ErrNotFound
	}
	if lot.Quantity < quantity {
		return false, nil
	}
	lot.Quantity -= quantity
	return true, nil
}

func (t *memoryTx) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	t.nextSaleID++
	sale.ID = t.nextSaleID
	t.sales[sale.ID] = &sale
	return sale.ID, nil
}

func (t *memoryTx) InsertSaleLine(ctx context.Context, line SaleLine) (int64, error) {
	t.nextLineID++
	line.ID = t.nextLineID
	t.lines[line.SaleID] = append(t.lines[line.SaleID], line)
	return line.ID, nil
}

func (t *memoryTx) InsertAllocation(ctx context.Context, alloc LineAllocation) error {
	t.allocations[alloc.LineID] = append(t.allocations[alloc.LineID], alloc)
	return nil
}

type nopAudit struct{}

func (nopAudit) Record(ctx context.Context, log shared.AuditLog) error { return nil }

func newTestSalesService(repo *memorySalesRepo) *Service {
	return NewService(repo, nopAudit{}, ServiceConfig{TaxRate: 0.19})
}

func cartFor(svc *Service, lines []CartLine, method PaymentMethod) CartInput {
	var subtotal int64
	for _, line := range lines {
		subtotal += line.Quantity * line.UnitPrice
	}
	tax := svc.Tax(subtotal)
	return CartInput{
		Lines:    lines,
		Method:   method,
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal + tax,
		ActorID:  1,
	}
}

func TestSubmitSaleFEFOAcrossLots(t *testing.T) {
	repo := newMemorySalesRepo()
	soon := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	later := time.Date(2026, 12, 10, 0, 0, 0, 0, time.UTC)
	repo.addLot(inventory.Lot{ID: 1, ProductID: 7, Quantity: 3, Expiry: &soon, IsEnabled: true})
	repo.addLot(inventory.Lot{ID: 2, ProductID: 7, Quantity: 10, Expiry: &later, IsEnabled: true})

	svc := newTestSalesService(repo)
	input := cartFor(svc, []CartLine{{ProductID: 7, Quantity: 5, UnitPrice: 1000}}, MethodCash)

	sale, err := svc.SubmitSale(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, StatusSettled, sale.Status)
	require.False(t, sale.IsFiado)

	// The soonest-expiring lot drains first.
	require.Equal(t, int64(0), repo.lots[1].Quantity)
	require.Equal(t, int64(8), repo.lots[2].Quantity)

	lines := repo.lines[sale.ID]
	require.Len(t, lines, 1)
	require.Equal(t, []LineAllocation{
		{LineID: lines[0].ID, LotID: 1, Quantity: 3},
		{LineID: lines[0].ID, LotID: 2, Quantity: 2},
	}, repo.allocations[lines[0].ID])
}

func TestSubmitSaleExplicitLot(t *testing.T) {
	repo := newMemorySalesRepo()
	repo.addLot(inventory.Lot{ID: 1, ProductID: 7, Quantity: 6, IsEnabled: true})
	repo.addLot(inventory.Lot{ID: 2, ProductID: 8, Quantity: 6, IsEnabled: true})

	svc := newTestSalesService(repo)
	lotID := int64(1)
	input := cartFor(svc, []CartLine{{ProductID: 7, LotID: &lotID, Quantity: 4, UnitPrice: 500}}, MethodDebit)

	sale, err := svc.SubmitSale(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, int64(2), repo.lots[1].Quantity)

	// A lot belonging to another product is rejected outright.
	wrong := int64(2)
	bad := cartFor(svc, []CartLine{{ProductID: 7, LotID: &wrong, Quantity: 1, UnitPrice: 500}}, MethodDebit)
	_, err = svc.SubmitSale(context.Background(), bad)
	require.True(t, shared.IsValidation(err))
	require.NotNil(t, sale)
}

func TestSubmitSaleInsufficientStockRollsBackEverything(t *testing.T) {
	repo := newMemorySalesRepo()
	repo.addLot(inventory.Lot{ID: 1, ProductID: 7, Quantity: 10, IsEnabled: true})
	repo.addLot(inventory.Lot{ID: 2, ProductID: 8, Quantity: 1, IsEnabled: true})

	svc := newTestSalesService(repo)
	input := cartFor(svc, []CartLine{
		{ProductID: 7, Quantity: 5, UnitPrice: 1000},
		{ProductID: 8, Quantity: 3, UnitPrice: 2000},
	}, MethodCash)

	_, err := svc.SubmitSale(context.Background(), input)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, int64(8), stockErr.ProductID)
	require.Equal(t, int64(3), stockErr.Requested)
	require.Equal(t, int64(1), stockErr.Available)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	// The first line's decrement was rolled back along with the sale.
	require.Equal(t, int64(10), repo.lots[1].Quantity)
	require.Empty(t, repo.sales)
}

func TestSubmitSaleDisabledLotsDoNotSell(t *testing.T) {
	repo := newMemorySalesRepo()
	repo.addLot(inventory.Lot{ID: 1, ProductID: 7, Quantity: 10, IsEnabled: false})

	svc := newTestSalesService(repo)
	input := cartFor(svc, []CartLine{{ProductID: 7, Quantity: 1, UnitPrice: 100}}, MethodCash)

	_, err := svc.SubmitSale(context.Background(), input)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, int64(0), stockErr.Available)
}

func TestSubmitSaleValidatesTotals(t *testing.T) {
	repo := newMemorySalesRepo()
	repo.addLot(inventory.Lot{ID: 1, ProductID: 7, Quantity: 10, IsEnabled: true})
	svc := newTestSalesService(repo)

	base := cartFor(svc, []CartLine{{ProductID: 7, Quantity: 2, UnitPrice: 1000}}, MethodCash)

	wrongSubtotal := base
	wrongSubtotal.Subtotal++
	_, err := svc.SubmitSale(context.Background(), wrongSubtotal)
	require.True(t, shared.IsValidation(err))

	wrongTax := base
	wrongTax.Tax++
	_, err = svc.SubmitSale(context.Background(), wrongTax)
	require.True(t, shared.IsValidation(err))

	wrongTotal := base
	wrongTotal.Total++
	_, err = svc.SubmitSale(context.Background(), wrongTotal)
	require.True(t, shared.IsValidation(err))

	_, err = svc.SubmitSale(context.Background(), CartInput{Method: MethodCash})
	require.ErrorIs(t, err, ErrEmptyCart)

	// Nothing was sold along the way.
	require.Equal(t, int64(10), repo.lots[1].Quantity)
}

func TestSubmitSaleTaxRounding(t *testing.T) {
	svc := newTestSalesService(newMemorySalesRepo())
	// 999 * 0.19 = 189.81, rounded to 190.
	require.Equal(t, int64(190), svc.Tax(999))
	require.Equal(t, int64(0), svc.Tax(0))
}

func TestSubmitSaleFiadoOpensLedger(t *testing.T) {
	repo := newMemorySalesRepo()
	repo.addLot(inventory.Lot{ID: 1, ProductID: 7, Quantity: 10, IsEnabled: true})

	svc := newTestSalesService(repo)
	due := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	client := int64(42)
	input := cartFor(svc, []CartLine{{ProductID: 7, Quantity: 2, UnitPrice: 1500}}, MethodFiado)
	input.ClientID = &client
	input.DueDate = &due

	sale, err := svc.SubmitSale(context.Background(), input)
	require.NoError(t, err)
	require.True(t, sale.IsFiado)
	require.Equal(t, StatusOpen, sale.Status)
	require.Equal(t, &client, sale.ClientID)
	require.Equal(t, &due, sale.DueDate)
}

func TestSubmitSaleDueDateRequiresFiado(t *testing.T) {
	repo := newMemorySalesRepo()
	repo.addLot(inventory.Lot{ID: 1, ProductID: 7, Quantity: 10, IsEnabled: true})

	svc := newTestSalesService(repo)
	due := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	input := cartFor(svc, []CartLine{{ProductID: 7, Quantity: 1, UnitPrice: 100}}, MethodCash)
	input.DueDate = &due

	_, err := svc.SubmitSale(context.Background(), input)
	require.True(t, shared.IsValidation(err))
}
