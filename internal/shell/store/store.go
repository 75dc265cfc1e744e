package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/artpar/vpsfleet/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for fleet entities. Server lookups
// are keyed by name; names are unique across the fleet.
type Store interface {
	// Server operations
	CreateServer(ctx context.Context, server *domain.ServerRecord) error
	GetServer(ctx context.Context, name string) (*domain.ServerRecord, error)
	UpdateServer(ctx context.Context, server *domain.ServerRecord) error
	DeleteServer(ctx context.Context, name string) error
	ListServers(ctx context.Context, opts ListOptions) ([]domain.ServerRecord, error)

	// ListAllServers returns the entire fleet with no pagination. Billing
	// walks every record; a page cap here would silently drop servers from
	// statements.
	ListAllServers(ctx context.Context) ([]domain.ServerRecord, error)

	// SetServerStatus transitions a server's lifecycle state. Transitioning to
	// decommissioned stamps the decommission date with `when`; transitioning
	// back to active clears it.
	SetServerStatus(ctx context.Context, name string, status domain.ServerStatus, when time.Time) error

	// SetServerCharge writes through the advisory snapshot of the most recent
	// proration run (usage label plus charged total).
	SetServerCharge(ctx context.Context, name string, usageLabel string, total decimal.Decimal) error

	// Billing period (single-row app state)
	GetBillingPeriod(ctx context.Context) (domain.Period, error)
	SetBillingPeriod(ctx context.Context, period domain.Period) error

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination and filtering options.
type ListOptions struct {
	Limit  int
	Offset int
	// Status restricts the listing to one lifecycle state when non-empty.
	Status domain.ServerStatus
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
