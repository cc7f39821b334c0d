package jobs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/almacen-pos/almacen/internal/inventory"
)

// stubInventoryRepo feeds the alert scans fixed read projections; the
// ledger mutations are never reached from the scan handlers.
type stubInventoryRepo struct {
	lowStock []inventory.LowStockProduct
	expiring []inventory.ExpiringLot
}

func (r *stubInventoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return nil
}
func (r *stubInventoryRepo) InsertLot(ctx context.Context, lot inventory.Lot) (*inventory.Lot, error) {
	return nil, nil
}
func (r *stubInventoryRepo) GetLot(ctx context.Context, id int64) (*inventory.Lot, error) {
	return nil, nil
}
func (r *stubInventoryRepo) GetLotByCode(ctx context.Context, code string) (*inventory.Lot, error) {
	return nil, nil
}
func (r *stubInventoryRepo) ListLotsByProduct(ctx context.Context, productID int64) ([]inventory.Lot, error) {
	return nil, nil
}
func (r *stubInventoryRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	return false, nil
}
func (r *stubInventoryRepo) ProductName(ctx context.Context, productID int64) (string, error) {
	return "", nil
}
func (r *stubInventoryRepo) SetExpiry(ctx context.Context, lotID int64, expiry *time.Time) error {
	return nil
}
func (r *stubInventoryRepo) SetCost(ctx context.Context, lotID, cost int64) error    { return nil }
func (r *stubInventoryRepo) SetEnabled(ctx context.Context, lotID int64, e bool) error { return nil }
func (r *stubInventoryRepo) TotalStock(ctx context.Context, productID int64) (int64, error) {
	return 0, nil
}
func (r *stubInventoryRepo) ListLowStock(ctx context.Context, threshold int64) ([]inventory.LowStockProduct, error) {
	return r.lowStock, nil
}
func (r *stubInventoryRepo) ListExpiring(ctx context.Context, until time.Time, limit, offset int) ([]inventory.ExpiringLot, error) {
	if offset > 0 {
		return nil, nil
	}
	return r.expiring, nil
}

func newTasksFixture(t *testing.T, repo *stubInventoryRepo) (*Tasks, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := inventory.NewService(repo, nil, inventory.ServiceConfig{LowStockThreshold: 5})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTasks(svc, client, logger, 30), client
}

func TestHandleLowStockScanCachesSnapshot(t *testing.T) {
	repo := &stubInventoryRepo{lowStock: []inventory.LowStockProduct{
		{ProductID: 1, Name: "Sal", TotalStock: 2},
	}}
	tasks, client := newTasksFixture(t, repo)

	require.NoError(t, tasks.HandleLowStockScan(context.Background(), NewLowStockScanTask()))

	data, err := client.Get(context.Background(), lowStockSnapshotKey).Bytes()
	require.NoError(t, err)

	var snapshot LowStockSnapshot
	require.NoError(t, json.Unmarshal(data, &snapshot))
	require.Equal(t, int64(5), snapshot.Threshold)
	require.Len(t, snapshot.Products, 1)
	require.Equal(t, "Sal", snapshot.Products[0].Name)
	require.False(t, snapshot.ScannedAt.IsZero())
}

func TestHandleExpiryScanCachesSnapshot(t *testing.T) {
	repo := &stubInventoryRepo{expiring: []inventory.ExpiringLot{
		{LotID: 3, Code: "YOG-01-08-2026", ProductID: 9, ProductName: "Yogurt", Quantity: 4, Expiry: time.Now().AddDate(0, 0, 5)},
	}}
	tasks, client := newTasksFixture(t, repo)

	require.NoError(t, tasks.HandleExpiryScan(context.Background(), NewExpiryScanTask()))

	data, err := client.Get(context.Background(), expirySnapshotKey).Bytes()
	require.NoError(t, err)

	var snapshot ExpirySnapshot
	require.NoError(t, json.Unmarshal(data, &snapshot))
	require.Equal(t, 30, snapshot.WithinDays)
	require.Len(t, snapshot.Lots, 1)
	require.Equal(t, "YOG-01-08-2026", snapshot.Lots[0].Code)
}
