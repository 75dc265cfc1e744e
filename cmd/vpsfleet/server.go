package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/vpsfleet/internal/shell/api"
	"github.com/artpar/vpsfleet/internal/shell/billing"
	"github.com/artpar/vpsfleet/internal/shell/exchange"
	"github.com/artpar/vpsfleet/internal/shell/inventory"
	"github.com/artpar/vpsfleet/internal/shell/store"
	"github.com/artpar/vpsfleet/internal/shell/workers"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitHTTPServerError = 3
)

// =============================================================================
// Server
// =============================================================================

// Server represents the vpsfleet application server.
type Server struct {
	config         *Config
	httpServer     *http.Server
	store          store.Store
	priceRefresher *workers.PriceRefresher
	inventorySync  *workers.InventorySync
	logger         *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	// Connect to database
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}

	// Seed an empty database from a legacy fleet file, if one is configured.
	if cfg.Snapshot.BootstrapPath != "" {
		if err := bootstrapFromSnapshot(context.Background(), s, cfg.Snapshot.BootstrapPath, logger); err != nil {
			s.Close()
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      err,
				ExitCode: ExitDatabaseError,
			}
		}
	}

	// Exchange rate provider
	rates := exchange.NewProvider(exchange.Config{
		APIURL:          cfg.Exchange.APIURL,
		CacheDir:        cfg.Exchange.CacheDir,
		Timeout:         cfg.Exchange.Timeout,
		CurrentMonthTTL: cfg.Exchange.CurrentMonthTTL,
	}, logger)

	// Billing service
	billingService := billing.NewService(billing.ServiceConfig{
		Store:  s,
		Rates:  rates,
		Logger: logger,
	})

	// Inventory syncer (optional; one source per configured provider)
	var syncer *inventory.Syncer
	var inventorySync *workers.InventorySync
	if cfg.Inventory.Enabled {
		sources, err := buildSources(cfg, logger)
		if err != nil {
			s.Close()
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      err,
				ExitCode: ExitConfigError,
			}
		}
		if len(sources) == 0 {
			s.Close()
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      errors.New("inventory enabled but no provider credentials configured"),
				ExitCode: ExitConfigError,
			}
		}

		syncer = inventory.NewSyncer(inventory.SyncerConfig{
			Store:   s,
			Sources: sources,
			Logger:  logger,
		})

		inventorySync = workers.NewInventorySync(syncer, workers.InventorySyncConfig{
			Interval: cfg.Workers.InventorySyncInterval,
		}, logger)

		logger.Info("inventory sync enabled",
			"sources", len(sources),
			"interval", cfg.Workers.InventorySyncInterval,
		)
	} else {
		logger.Info("inventory sync disabled")
	}

	// Price refresher worker
	priceRefresher := workers.NewPriceRefresher(billingService, workers.PriceRefresherConfig{
		Interval: cfg.Workers.PriceRefreshInterval,
	}, logger)

	// HTTP handler
	handler := api.NewHandler(s, billingService, syncer, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:         cfg,
		httpServer:     httpServer,
		store:          s,
		priceRefresher: priceRefresher,
		inventorySync:  inventorySync,
		logger:         logger,
	}, nil
}

// bootstrapFromSnapshot imports a legacy fleet file into an empty store.
// A populated store or a missing file means there is nothing to do.
func bootstrapFromSnapshot(ctx context.Context, s store.Store, path string, logger *slog.Logger) error {
	existing, err := s.ListAllServers(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		logger.Info("skipping snapshot bootstrap, store already populated",
			"path", path, "servers", len(existing))
		return nil
	}

	snapshot, err := store.ReadSnapshot(path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Info("no bootstrap snapshot found", "path", path)
			return nil
		}
		return err
	}

	created, updated, err := store.ImportSnapshot(ctx, s, snapshot)
	if err != nil {
		return err
	}
	logger.Info("bootstrapped fleet from snapshot",
		"path", path, "created", created, "updated", updated)
	return nil
}

// buildSources creates an inventory source per configured provider.
func buildSources(cfg *Config, logger *slog.Logger) ([]inventory.Source, error) {
	var sources []inventory.Source

	if cfg.Inventory.Hetzner.APIToken != "" {
		src, err := inventory.NewSource(inventory.SourceConfig{
			Kind:     "hetzner",
			APIToken: cfg.Inventory.Hetzner.APIToken,
		}, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	if cfg.Inventory.DigitalOcean.APIToken != "" {
		src, err := inventory.NewSource(inventory.SourceConfig{
			Kind:     "digitalocean",
			APIToken: cfg.Inventory.DigitalOcean.APIToken,
		}, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	if cfg.Inventory.AWS.AccessKeyID != "" && cfg.Inventory.AWS.SecretAccessKey != "" {
		src, err := inventory.NewSource(inventory.SourceConfig{
			Kind:            "aws",
			AccessKeyID:     cfg.Inventory.AWS.AccessKeyID,
			SecretAccessKey: cfg.Inventory.AWS.SecretAccessKey,
			Region:          cfg.Inventory.AWS.Region,
		}, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	return sources, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start background workers
	s.priceRefresher.Start()
	if s.inventorySync != nil {
		s.inventorySync.Start()
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Stop background workers
	s.priceRefresher.Stop()
	if s.inventorySync != nil {
		s.inventorySync.Stop()
	}

	// Persist the fleet file before the store goes away
	if path := s.config.Snapshot.ExportPath; path != "" {
		snapshot, err := store.BuildFleetSnapshot(shutdownCtx, s.store)
		if err != nil {
			s.logger.Error("fleet snapshot build error", "error", err)
		} else if err := store.WriteSnapshot(path, snapshot); err != nil {
			s.logger.Error("fleet snapshot write error", "path", path, "error", err)
		} else {
			s.logger.Info("exported fleet snapshot", "path", path, "servers", len(snapshot.Servers))
		}
	}

	// Close database
	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
