// Package workers contains background workers for the fleet service.
package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/vpsfleet/internal/shell/billing"
)

// PriceRefresherConfig configures the price refresher worker.
type PriceRefresherConfig struct {
	// Interval is the time between refresh cycles.
	// Default: 1 hour.
	Interval time.Duration

	// CycleTimeout bounds a single refresh cycle.
	// Default: 5 minutes.
	CycleTimeout time.Duration
}

// DefaultPriceRefresherConfig returns the default configuration.
func DefaultPriceRefresherConfig() PriceRefresherConfig {
	return PriceRefresherConfig{
		Interval:     time.Hour,
		CycleTimeout: 5 * time.Minute,
	}
}

// PriceRefresher periodically recomputes every server's charge for the
// configured billing period and writes the results through to the store, so
// the advisory snapshot columns stay close to live.
type PriceRefresher struct {
	service *billing.Service
	config  PriceRefresherConfig
	logger  *slog.Logger

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPriceRefresher creates a new price refresher worker.
func NewPriceRefresher(service *billing.Service, config PriceRefresherConfig, logger *slog.Logger) *PriceRefresher {
	if config.Interval == 0 {
		config.Interval = time.Hour
	}
	if config.CycleTimeout == 0 {
		config.CycleTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PriceRefresher{
		service: service,
		config:  config,
		logger:  logger.With("component", "price_refresher"),
	}
}

// Start begins the price refresher background goroutine.
func (p *PriceRefresher) Start() {
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.wg.Add(1)
	go p.run()

	p.logger.Info("price refresher started", "interval", p.config.Interval)
}

// Stop gracefully stops the price refresher.
// It waits for any in-progress cycle to complete.
func (p *PriceRefresher) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("price refresher stopped")
}

// run is the main loop that refreshes prices periodically.
func (p *PriceRefresher) run() {
	defer p.wg.Done()

	// Run immediately on start
	p.runCycle()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.runCycle()
		}
	}
}

// runCycle executes a single refresh for the configured billing period.
func (p *PriceRefresher) runCycle() {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.CycleTimeout)
	defer cancel()

	period, err := p.service.BillingPeriod(ctx)
	if err != nil {
		p.logger.Error("failed to resolve billing period", "error", err)
		return
	}

	updated, err := p.service.RefreshPrices(ctx, period)
	if err != nil {
		p.logger.Error("price refresh cycle failed", "period", period.String(), "error", err)
		return
	}

	p.logger.Debug("price refresh cycle complete", "period", period.String(), "servers", updated)
}
