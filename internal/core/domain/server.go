// Package domain contains the core domain types and validation logic.
// This is part of the Functional Core - all functions are pure with no I/O.
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// Server Errors
// =============================================================================

var (
	// Server field validation errors
	ErrServerNameRequired = errors.New("server name is required")
	ErrServerNameTooLong  = errors.New("server name must be at most 100 characters")
	ErrPriceNegative      = errors.New("price per month must not be negative")
	ErrStatusInvalid      = errors.New("server status is invalid")

	// Date consistency errors
	ErrDecommissionBeforePurchase = errors.New("decommission date precedes purchase date")

	// Server operation errors
	ErrServerNotFound  = errors.New("server not found")
	ErrServerExists    = errors.New("server with this name already exists")
	ErrNotDecommissionable = errors.New("server is already decommissioned")
)

// =============================================================================
// Server Status
// =============================================================================

// ServerStatus represents the lifecycle state of a VPS.
type ServerStatus string

const (
	StatusActive         ServerStatus = "active"
	StatusDecommissioned ServerStatus = "decommissioned"
)

// IsValid checks if the server status is valid.
func (s ServerStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusDecommissioned:
		return true
	default:
		return false
	}
}

// =============================================================================
// ServerRecord
// =============================================================================

// ServerRecord is one managed VPS instance.
//
// Date fields are stored as strings in the legacy multi-format form (see
// ParseDate) so that records survive round-trips through the YAML fleet file
// byte-for-byte. They are parsed lazily by the billing calculators.
type ServerRecord struct {
	ID      string       `json:"id" yaml:"id,omitempty"`
	Name    string       `json:"name" yaml:"name"`
	Host    string       `json:"host,omitempty" yaml:"ip_address,omitempty"`
	Country string       `json:"country,omitempty" yaml:"country,omitempty"`
	Status  ServerStatus `json:"status" yaml:"status"`

	// PricePerMonth is the flat monthly sticker price in USD.
	PricePerMonth decimal.Decimal `json:"price_per_month" yaml:"price_per_month"`

	// PurchaseDate is when the billing clock notionally starts. EnabledDate is
	// when the server was actually provisioned; it is the fallback when
	// PurchaseDate is absent or unparseable.
	PurchaseDate string `json:"purchase_date,omitempty" yaml:"purchase_date,omitempty"`
	EnabledDate  string `json:"enabled_date,omitempty" yaml:"start_date,omitempty"`

	// DecommissionDate is set when Status transitions to decommissioned.
	DecommissionDate string `json:"decommission_date,omitempty" yaml:"cancel_date,omitempty"`

	// UsesNATPool marks servers whose bandwidth is billed through the shared
	// NAT pool instead of individually.
	UsesNATPool bool `json:"uses_nat_pool" yaml:"use_nat"`

	// LastUsageLabel and LastTotalPrice are a write-through snapshot of the
	// most recent proration run. Advisory only: statements always recompute
	// live for the period being queried.
	LastUsageLabel string          `json:"last_usage_label,omitempty" yaml:"usage_period,omitempty"`
	LastTotalPrice decimal.Decimal `json:"last_total_price" yaml:"total_price"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Validate checks the record's fields for consistency.
func (s *ServerRecord) Validate() error {
	if s.Name == "" {
		return ErrServerNameRequired
	}
	if len(s.Name) > 100 {
		return ErrServerNameTooLong
	}
	if s.PricePerMonth.IsNegative() {
		return ErrPriceNegative
	}
	if !s.Status.IsValid() {
		return ErrStatusInvalid
	}
	// Only enforceable when both dates parse; unparseable dates are the
	// billing calculators' concern, not a validation failure.
	if s.PurchaseDate != "" && s.DecommissionDate != "" {
		purchase, perr := ParseDate(s.PurchaseDate)
		decomm, derr := ParseDateEndOfDay(s.DecommissionDate)
		if perr == nil && derr == nil && decomm.Before(purchase) {
			return ErrDecommissionBeforePurchase
		}
	}
	return nil
}

// IsDecommissioned reports whether the record is marked decommissioned.
func (s *ServerRecord) IsDecommissioned() bool {
	return s.Status == StatusDecommissioned
}

// BillingStartDate resolves the date the billing clock starts: the purchase
// date, or the enabled date when no purchase date was recorded. The boolean
// is false when the resolved string is empty or does not parse; such records
// fall back to plain per-minute pricing.
func (s *ServerRecord) BillingStartDate() (time.Time, bool) {
	str := s.PurchaseDate
	if str == "" {
		str = s.EnabledDate
	}
	if str == "" {
		return time.Time{}, false
	}
	t, err := ParseDate(str)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
