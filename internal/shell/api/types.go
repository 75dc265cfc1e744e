package api

import (
	"time"

	"github.com/artpar/vpsfleet/internal/core/domain"
	"github.com/artpar/vpsfleet/internal/shell/billing"
)

// =============================================================================
// Request Types
// =============================================================================

// CreateServerRequest is the request body for registering a server.
type CreateServerRequest struct {
	Name          string `json:"name"`
	Host          string `json:"host,omitempty"`
	Country       string `json:"country,omitempty"`
	PricePerMonth string `json:"price_per_month"`
	PurchaseDate  string `json:"purchase_date,omitempty"`
	EnabledDate   string `json:"enabled_date,omitempty"`
	UsesNATPool   bool   `json:"uses_nat_pool,omitempty"`
}

// UpdateServerRequest is the request body for updating a server. Nil fields
// are left unchanged.
type UpdateServerRequest struct {
	Host          *string `json:"host,omitempty"`
	Country       *string `json:"country,omitempty"`
	PricePerMonth *string `json:"price_per_month,omitempty"`
	PurchaseDate  *string `json:"purchase_date,omitempty"`
	EnabledDate   *string `json:"enabled_date,omitempty"`
	UsesNATPool   *bool   `json:"uses_nat_pool,omitempty"`
}

// SetPeriodRequest is the request body for setting the billing period.
type SetPeriodRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// =============================================================================
// Response Types
// =============================================================================

// ServerResponse is the response for server operations.
type ServerResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Host             string    `json:"host,omitempty"`
	Country          string    `json:"country,omitempty"`
	Status           string    `json:"status"`
	PricePerMonth    string    `json:"price_per_month"`
	PurchaseDate     string    `json:"purchase_date,omitempty"`
	EnabledDate      string    `json:"enabled_date,omitempty"`
	DecommissionDate string    `json:"decommission_date,omitempty"`
	UsesNATPool      bool      `json:"uses_nat_pool"`
	LastUsageLabel   string    `json:"last_usage_label,omitempty"`
	LastTotalPrice   string    `json:"last_total_price"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ServerListResponse is the response for listing servers.
type ServerListResponse struct {
	Servers []ServerResponse `json:"servers"`
	Count   int              `json:"count"`
}

// PeriodResponse is the response for billing period operations.
type PeriodResponse struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// RefreshResponse is the response for a price refresh.
type RefreshResponse struct {
	Period  string `json:"period"`
	Updated int    `json:"updated"`
}

// MonthlyTotalsResponse is the response for multi-month summaries.
type MonthlyTotalsResponse struct {
	Totals []billing.PeriodTotal `json:"totals"`
}

// StatementResponse wraps a computed statement.
type StatementResponse struct {
	Statement *domain.Statement `json:"statement"`
}

// SyncResponse is the response for a manual inventory sync.
type SyncResponse struct {
	Seen           int `json:"seen"`
	Created        int `json:"created"`
	Updated        int `json:"updated"`
	Decommissioned int `json:"decommissioned"`
}

// SnapshotImportResponse is the response for a fleet snapshot import.
type SnapshotImportResponse struct {
	Servers int `json:"servers"`
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
