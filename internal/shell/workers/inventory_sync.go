package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/vpsfleet/internal/shell/inventory"
)

// InventorySyncConfig configures the inventory sync worker.
type InventorySyncConfig struct {
	// Interval is the time between sync cycles.
	// Default: 15 minutes.
	Interval time.Duration

	// CycleTimeout bounds a single sync cycle.
	// Default: 2 minutes.
	CycleTimeout time.Duration
}

// DefaultInventorySyncConfig returns the default configuration.
func DefaultInventorySyncConfig() InventorySyncConfig {
	return InventorySyncConfig{
		Interval:     15 * time.Minute,
		CycleTimeout: 2 * time.Minute,
	}
}

// InventorySync periodically reconciles cloud provider inventories against
// the fleet records.
type InventorySync struct {
	syncer *inventory.Syncer
	config InventorySyncConfig
	logger *slog.Logger

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewInventorySync creates a new inventory sync worker.
func NewInventorySync(syncer *inventory.Syncer, config InventorySyncConfig, logger *slog.Logger) *InventorySync {
	if config.Interval == 0 {
		config.Interval = 15 * time.Minute
	}
	if config.CycleTimeout == 0 {
		config.CycleTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &InventorySync{
		syncer: syncer,
		config: config,
		logger: logger.With("component", "inventory_sync"),
	}
}

// Start begins the inventory sync background goroutine.
func (w *InventorySync) Start() {
	w.ctx, w.cancel = context.WithCancel(context.Background())

	w.wg.Add(1)
	go w.run()

	w.logger.Info("inventory sync started", "interval", w.config.Interval)
}

// Stop gracefully stops the inventory sync worker.
func (w *InventorySync) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("inventory sync stopped")
}

// run is the main loop that syncs inventory periodically.
func (w *InventorySync) run() {
	defer w.wg.Done()

	// Run immediately on start
	w.runCycle()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.runCycle()
		}
	}
}

// runCycle executes a single reconciliation pass.
func (w *InventorySync) runCycle() {
	ctx, cancel := context.WithTimeout(w.ctx, w.config.CycleTimeout)
	defer cancel()

	if _, err := w.syncer.Sync(ctx); err != nil {
		w.logger.Error("inventory sync cycle failed", "error", err)
	}
}
