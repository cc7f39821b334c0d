package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/almacen-pos/almacen/internal/inventory"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockScan scans for products whose enabled stock sits at or
	// below the configured threshold.
	TaskLowStockScan = "alerts:low_stock"
	// TaskExpiryScan scans for enabled lots expiring inside the alert window.
	TaskExpiryScan = "alerts:expiring_lots"

	lowStockSnapshotKey = "almacen_alerts:low_stock"
	expirySnapshotKey   = "almacen_alerts:expiring_lots"
	snapshotTTL         = 24 * time.Hour
)

// LowStockSnapshot is the cached result of a low-stock scan.
type LowStockSnapshot struct {
	ScannedAt time.Time                   `json:"scanned_at"`
	Threshold int64                       `json:"threshold"`
	Products  []inventory.LowStockProduct `json:"products"`
}

// ExpirySnapshot is the cached result of an expiring-lot scan.
type ExpirySnapshot struct {
	ScannedAt  time.Time               `json:"scanned_at"`
	WithinDays int                     `json:"within_days"`
	Lots       []inventory.ExpiringLot `json:"lots"`
}

// NewLowStockScanTask constructs the low-stock scan task.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockScan, nil)
}

// NewExpiryScanTask constructs the expiring-lot scan task.
func NewExpiryScanTask() *asynq.Task {
	return asynq.NewTask(TaskExpiryScan, nil)
}

// Tasks holds the dependencies of the alert scan handlers.
type Tasks struct {
	inventory  *inventory.Service
	redis      *redis.Client
	logger     *slog.Logger
	expiryDays int
}

// NewTasks constructs the task handler set.
func NewTasks(inv *inventory.Service, client *redis.Client, logger *slog.Logger, expiryDays int) *Tasks {
	if expiryDays <= 0 {
		expiryDays = 30
	}
	return &Tasks{inventory: inv, redis: client, logger: logger, expiryDays: expiryDays}
}

// HandleLowStockScan refreshes the low-stock alert snapshot in Redis.
func (t *Tasks) HandleLowStockScan(ctx context.Context, _ *asynq.Task) error {
	products, err := t.inventory.ListLowStock(ctx, 0)
	if err != nil {
		return err
	}
	snapshot := LowStockSnapshot{
		ScannedAt: time.Now().UTC(),
		Threshold: t.inventory.LowStockThreshold(),
		Products:  products,
	}
	if err := t.storeSnapshot(ctx, lowStockSnapshotKey, snapshot); err != nil {
		return err
	}
	t.logger.Info("low stock scan", slog.Int("products", len(products)))
	return nil
}

// HandleExpiryScan refreshes the expiring-lot alert snapshot in Redis.
func (t *Tasks) HandleExpiryScan(ctx context.Context, _ *asynq.Task) error {
	var lots []inventory.ExpiringLot
	for lot, err := range t.inventory.ExpiringLots(ctx, t.expiryDays) {
		if err != nil {
			return err
		}
		lots = append(lots, lot)
	}
	snapshot := ExpirySnapshot{
		ScannedAt:  time.Now().UTC(),
		WithinDays: t.expiryDays,
		Lots:       lots,
	}
	if err := t.storeSnapshot(ctx, expirySnapshotKey, snapshot); err != nil {
		return err
	}
	t.logger.Info("expiry scan", slog.Int("lots", len(lots)))
	return nil
}

func (t *Tasks) storeSnapshot(ctx context.Context, key string, snapshot any) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return t.redis.Set(ctx, key, data, snapshotTTL).Err()
}
