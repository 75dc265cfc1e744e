package inventory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/artpar/vpsfleet/internal/core/domain"
	"github.com/artpar/vpsfleet/internal/shell/store"
)

// =============================================================================
// Syncer
// =============================================================================

// Syncer reconciles provider inventories against the fleet records: instances
// with no record get one created, records whose instance vanished from every
// source get decommissioned. Existing billing fields are never touched.
type Syncer struct {
	store   store.Store
	sources []Source
	logger  *slog.Logger
	now     func() time.Time
}

// SyncerConfig holds syncer dependencies.
type SyncerConfig struct {
	Store   store.Store
	Sources []Source
	Logger  *slog.Logger
}

// NewSyncer creates an inventory syncer.
func NewSyncer(cfg SyncerConfig) *Syncer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Syncer{
		store:   cfg.Store,
		sources: cfg.Sources,
		logger:  cfg.Logger,
		now:     time.Now,
	}
}

// SyncResult summarizes one reconciliation pass.
type SyncResult struct {
	Seen           int `json:"seen"`
	Created        int `json:"created"`
	Updated        int `json:"updated"`
	Decommissioned int `json:"decommissioned"`
}

// Sync runs one reconciliation pass over all sources. A source failure skips
// that source but never aborts the pass, and never decommissions its servers
// on the strength of a failed listing.
func (s *Syncer) Sync(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{}
	seen := make(map[string]bool)
	allSourcesHealthy := true

	for _, source := range s.sources {
		instances, err := source.ListInstances(ctx)
		if err != nil {
			s.logger.Warn("inventory source failed, skipping", "source", source.Name(), "error", err)
			allSourcesHealthy = false
			continue
		}

		for _, instance := range instances {
			if instance.Name == "" {
				continue
			}
			seen[instance.Name] = true
			result.Seen++

			created, updated, err := s.reconcileInstance(ctx, source.Name(), &instance)
			if err != nil {
				s.logger.Warn("failed to reconcile instance",
					"source", source.Name(), "instance", instance.Name, "error", err)
				continue
			}
			if created {
				result.Created++
			}
			if updated {
				result.Updated++
			}
		}
	}

	// Only decommission when every source answered: a missing server must be
	// genuinely gone, not hidden behind a provider outage.
	if allSourcesHealthy && len(s.sources) > 0 {
		decommissioned, err := s.decommissionVanished(ctx, seen)
		if err != nil {
			return result, err
		}
		result.Decommissioned = decommissioned
	}

	s.logger.Info("inventory sync complete",
		"seen", result.Seen,
		"created", result.Created,
		"updated", result.Updated,
		"decommissioned", result.Decommissioned,
	)
	return result, nil
}

func (s *Syncer) reconcileInstance(ctx context.Context, sourceName string, instance *Instance) (created, updated bool, err error) {
	existing, err := s.store.GetServer(ctx, instance.Name)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return false, false, err
		}

		record := &domain.ServerRecord{
			ID:            uuid.NewString(),
			Name:          instance.Name,
			Host:          instance.PublicIP,
			Country:       instance.Country,
			Status:        domain.StatusActive,
			PricePerMonth: decimal.Zero,
			CreatedAt:     s.now().UTC(),
			UpdatedAt:     s.now().UTC(),
		}
		if !instance.CreatedAt.IsZero() {
			record.PurchaseDate = domain.FormatDate(instance.CreatedAt)
			record.EnabledDate = domain.FormatDateTime(instance.CreatedAt)
		}
		if err := s.store.CreateServer(ctx, record); err != nil {
			return false, false, err
		}
		s.logger.Info("created fleet record for discovered instance",
			"source", sourceName, "server", instance.Name, "host", instance.PublicIP)
		return true, false, nil
	}

	changed := false
	if instance.PublicIP != "" && existing.Host != instance.PublicIP {
		existing.Host = instance.PublicIP
		changed = true
	}
	if instance.Country != "" && existing.Country != instance.Country {
		existing.Country = instance.Country
		changed = true
	}
	// A record previously decommissioned but visible again was resurrected on
	// the provider side.
	if existing.IsDecommissioned() {
		existing.Status = domain.StatusActive
		existing.DecommissionDate = ""
		s.logger.Info("reactivating server seen in inventory", "server", existing.Name)
		changed = true
	}
	if !changed {
		return false, false, nil
	}

	existing.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateServer(ctx, existing); err != nil {
		return false, false, err
	}
	return false, true, nil
}

func (s *Syncer) decommissionVanished(ctx context.Context, seen map[string]bool) (int, error) {
	// Reconciliation must see the whole fleet, not one listing page.
	servers, err := s.store.ListAllServers(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range servers {
		srv := &servers[i]
		if srv.IsDecommissioned() || seen[srv.Name] {
			continue
		}
		if err := s.store.SetServerStatus(ctx, srv.Name, domain.StatusDecommissioned, s.now()); err != nil {
			s.logger.Warn("failed to decommission vanished server", "server", srv.Name, "error", err)
			continue
		}
		s.logger.Info("decommissioned server missing from inventory", "server", srv.Name)
		count++
	}
	return count, nil
}
