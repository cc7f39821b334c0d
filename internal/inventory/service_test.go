package inventory

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/almacen-pos/almacen/internal/shared"
)

type memoryLotRepo struct {
	lots   map[int64]*Lot
	names  map[int64]string
	nextID int64
}

func newMemoryLotRepo() *memoryLotRepo {
	return &memoryLotRepo{
		lots:  make(map[int64]*Lot),
		names: make(map[int64]string),
	}
}

func (r *memoryLotRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryLotRepo) GetLotForUpdate(ctx context.Context, lotID int64) (*Lot, error) {
	lot, ok := r.lots[lotID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *lot
	return &copied, nil
}

func (r *memoryLotRepo) UpdateLotQuantity(ctx context.Context, lotID, quantity int64) error {
	lot, ok := r.lots[lotID]
	if !ok {
		return shared.ErrNotFound
	}
	lot.Quantity = quantity
	return nil
}

func (r *memoryLotRepo) InsertLot(ctx context.Context, lot Lot) (*Lot, error) {
	r.nextID++
	lot.ID = r.nextID
	lot.CreatedAt = time.Now()
	lot.UpdatedAt = lot.CreatedAt
	r.lots[lot.ID] = &lot
	copied := lot
	return &copied, nil
}

func (r *memoryLotRepo) GetLot(ctx context.Context, id int64) (*Lot, error) {
	return r.GetLotForUpdate(ctx, id)
}

func (r *memoryLotRepo) GetLotByCode(ctx context.Context, code string) (*Lot, error) {
	for _, lot := range r.lots {
		if lot.Code == code {
			copied := *lot
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryLotRepo) ListLotsByProduct(ctx context.Context, productID int64) ([]Lot, error) {
	var lots []Lot
	for _, lot := range r.lots {
		if lot.ProductID == productID {
			lots = append(lots, *lot)
		}
	}
	sort.Slice(lots, func(i, j int) bool { return lots[i].ID < lots[j].ID })
	return lots, nil
}

func (r *memoryLotRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	for _, lot := range r.lots {
		if lot.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryLotRepo) ProductName(ctx context.Context, productID int64) (string, error) {
	name, ok := r.names[productID]
	if !ok {
		return "", shared.ErrNotFound
	}
	return name, nil
}

func (r *memoryLotRepo) SetExpiry(ctx context.Context, lotID int64, expiry *time.Time) error {
	lot, ok := r.lots[lotID]
	if !ok {
		return shared.ErrNotFound
	}
	lot.Expiry = expiry
	return nil
}

func (r *memoryLotRepo) SetCost(ctx context.Context, lotID, cost int64) error {
	lot, ok := r.lots[lotID]
	if !ok {
		return shared.ErrNotFound
	}
	lot.UnitCost = cost
	return nil
}

func (r *memoryLotRepo) SetEnabled(ctx context.Context, lotID int64, enabled bool) error {
	lot, ok := r.lots[lotID]
	if !ok {
		return shared.ErrNotFound
	}
	lot.IsEnabled = enabled
	return nil
}

func (r *memoryLotRepo) TotalStock(ctx context.Context, productID int64) (int64, error) {
	var total int64
	for _, lot := range r.lots {
		if lot.ProductID == productID && lot.IsEnabled {
			total += lot.Quantity
		}
	}
	return total, nil
}

func (r *memoryLotRepo) ListLowStock(ctx context.Context, threshold int64) ([]LowStockProduct, error) {
	totals := make(map[int64]int64)
	for _, lot := range r.lots {
		if lot.IsEnabled {
			totals[lot.ProductID] += lot.Quantity
		}
	}
	var result []LowStockProduct
	for productID, total := range totals {
		if total <= threshold {
			result = append(result, LowStockProduct{ProductID: productID, Name: r.names[productID], TotalStock: total})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ProductID < result[j].ProductID })
	return result, nil
}

func (r *memoryLotRepo) ListExpiring(ctx context.Context, until time.Time, limit, offset int) ([]ExpiringLot, error) {
	var all []ExpiringLot
	today := time.Now().Truncate(24 * time.Hour)
	for _, lot := range r.lots {
		if !lot.IsEnabled || lot.Expiry == nil {
			continue
		}
		if lot.Expiry.Before(today) || lot.Expiry.After(until) {
			continue
		}
		all = append(all, ExpiringLot{
			LotID:       lot.ID,
			Code:        lot.Code,
			ProductID:   lot.ProductID,
			ProductName: r.names[lot.ProductID],
			Quantity:    lot.Quantity,
			Expiry:      *lot.Expiry,
		})
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Expiry.Equal(all[j].Expiry) {
			return all[i].Expiry.Before(all[j].Expiry)
		}
		return all[i].LotID < all[j].LotID
	})
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

type recordedAudit struct {
	entries []shared.AuditLog
}

func (a *recordedAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

func newTestService(repo *memoryLotRepo) *Service {
	return NewService(repo, &recordedAudit{}, ServiceConfig{LowStockThreshold: 5})
}

func TestCreateLotGeneratesCorrelativeCodes(t *testing.T) {
	repo := newMemoryLotRepo()
	repo.names[1] = "Almendras tostadas"
	svc := newTestService(repo)
	svc.WithNow(func() time.Time { return time.Date(2025, 11, 10, 12, 0, 0, 0, time.UTC) })

	first, err := svc.CreateLot(context.Background(), LotInput{ProductID: 1, Quantity: 10, UnitCost: 500})
	require.NoError(t, err)
	require.Equal(t, "ALM-01-11-2025", first.Code)

	second, err := svc.CreateLot(context.Background(), LotInput{ProductID: 1, Quantity: 5, UnitCost: 500})
	require.NoError(t, err)
	require.Equal(t, "ALM-02-11-2025", second.Code)
	require.True(t, second.IsEnabled)
}

func TestCreateLotRejectsDuplicateCode(t *testing.T) {
	repo := newMemoryLotRepo()
	repo.names[1] = "Harina"
	svc := newTestService(repo)

	_, err := svc.CreateLot(context.Background(), LotInput{ProductID: 1, Code: "HAR-99", Quantity: 10, UnitCost: 100})
	require.NoError(t, err)

	_, err = svc.CreateLot(context.Background(), LotInput{ProductID: 1, Code: "har-99", Quantity: 3, UnitCost: 100})
	require.ErrorIs(t, err, ErrCodeTaken)
}

func TestCreateLotValidation(t *testing.T) {
	repo := newMemoryLotRepo()
	repo.names[1] = "Harina"
	svc := newTestService(repo)

	_, err := svc.CreateLot(context.Background(), LotInput{ProductID: 1, Quantity: 0, UnitCost: 100})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.CreateLot(context.Background(), LotInput{ProductID: 1, Quantity: 5, UnitCost: -1})
	require.ErrorIs(t, err, ErrInvalidUnitCost)
}

func TestIncrementAndDecrementLot(t *testing.T) {
	repo := newMemoryLotRepo()
	repo.names[1] = "Arroz"
	svc := newTestService(repo)

	lot, err := svc.CreateLot(context.Background(), LotInput{ProductID: 1, Quantity: 10, UnitCost: 900})
	require.NoError(t, err)

	updated, err := svc.DecrementLot(context.Background(), lot.ID, 4, 1)
	require.NoError(t, err)
	require.Equal(t, int64(6), updated.Quantity)

	_, err = svc.DecrementLot(context.Background(), lot.ID, 7, 1)
	require.ErrorIs(t, err, ErrInsufficientStock)

	// The failed decrement must not touch the stored quantity.
	stored, err := svc.GetLot(context.Background(), lot.ID)
	require.NoError(t, err)
	require.Equal(t, int64(6), stored.Quantity)

	updated, err = svc.IncrementLot(context.Background(), lot.ID, 14, 1)
	require.NoError(t, err)
	require.Equal(t, int64(20), updated.Quantity)

	_, err = svc.IncrementLot(context.Background(), lot.ID, 0, 1)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestTotalStockCountsEnabledLotsOnly(t *testing.T) {
	repo := newMemoryLotRepo()
	repo.names[1] = "Fideos"
	svc := newTestService(repo)

	a, err := svc.CreateLot(context.Background(), LotInput{ProductID: 1, Quantity: 8, UnitCost: 700})
	require.NoError(t, err)
	_, err = svc.CreateLot(context.Background(), LotInput{ProductID: 1, Quantity: 5, UnitCost: 700})
	require.NoError(t, err)

	total, err := svc.TotalStock(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(13), total)

	require.NoError(t, svc.SetEnabled(context.Background(), a.ID, false, 1))

	total, err = svc.TotalStock(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(5), total)
}

func TestIsLowStockThresholds(t *testing.T) {
	repo := newMemoryLotRepo()
	repo.names[1] = "Sal"
	svc := newTestService(repo)

	_, err := svc.CreateLot(context.Background(), LotInput{ProductID: 1, Quantity: 5, UnitCost: 300})
	require.NoError(t, err)

	// Default threshold is 5; 5 <= 5 means low.
	low, err := svc.IsLowStock(context.Background(), 1, nil)
	require.NoError(t, err)
	require.True(t, low)

	threshold := int64(3)
	low, err = svc.IsLowStock(context.Background(), 1, &threshold)
	require.NoError(t, err)
	require.False(t, low)
}

func TestExpiringLotsWindow(t *testing.T) {
	repo := newMemoryLotRepo()
	repo.names[1] = "Yogurt"
	svc := newTestService(repo)

	soon := time.Now().AddDate(0, 0, 7)
	later := time.Now().AddDate(0, 0, 20)
	far := time.Now().AddDate(0, 0, 90)

	_, err := svc.CreateLot(context.Background(), LotInput{ProductID: 1, Quantity: 4, UnitCost: 100, Expiry: &later})
	require.NoError(t, err)
	_, err = svc.CreateLot(context.Background(), LotInput{ProductID: 1, Quantity: 2, UnitCost: 100, Expiry: &soon})
	require.NoError(t, err)
	_, err = svc.CreateLot(context.Background(), LotInput{ProductID: 1, Quantity: 9, UnitCost: 100, Expiry: &far})
	require.NoError(t, err)
	_, err = svc.CreateLot(context.Background(), LotInput{ProductID: 1, Quantity: 6, UnitCost: 100})
	require.NoError(t, err)

	collect := func() []ExpiringLot {
		var lots []ExpiringLot
		for lot, err := range svc.ExpiringLots(context.Background(), 30) {
			require.NoError(t, err)
			lots = append(lots, lot)
		}
		return lots
	}

	lots := collect()
	require.Len(t, lots, 2)
	require.Equal(t, "Yogurt", lots[0].ProductName)
	require.True(t, lots[0].Expiry.Before(lots[1].Expiry))

	// The sequence is restartable: a second range yields the same lots.
	require.Equal(t, lots, collect())

	// Early break stops the iteration cleanly.
	for range svc.ExpiringLots(context.Background(), 30) {
		break
	}
}
