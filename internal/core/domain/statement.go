package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// Monthly Statement
// =============================================================================

// LineItem is one server's charge on a monthly statement.
type LineItem struct {
	ServerName string       `json:"server_name"`
	Host       string       `json:"host,omitempty"`
	Country    string       `json:"country,omitempty"`
	Status     ServerStatus `json:"status"`

	// DecommissionDate is populated only for the month the decommission
	// actually occurred; in earlier months the server displays as active.
	DecommissionDate string `json:"decommission_date,omitempty"`

	UsageLabel    string          `json:"usage_label"`
	PricePerMonth decimal.Decimal `json:"price_per_month"`
	Total         decimal.Decimal `json:"total"`
	UsesNATPool   bool            `json:"uses_nat_pool"`
}

// SkippedServer marks a record excluded from a statement because a date field
// could not be parsed. One bad record never aborts the whole statement.
type SkippedServer struct {
	ServerName string `json:"server_name"`
	Reason     string `json:"reason"`
}

// NATFeeDetail explains how the NAT pool surcharge was derived.
type NATFeeDetail struct {
	PooledServers int             `json:"pooled_servers"`
	TotalDays     int             `json:"total_days"`
	Rate          decimal.Decimal `json:"rate"` // CNY->USD factor used
}

// Statement is a computed monthly bill. It is always derived fresh from the
// server records plus the requested period and is never persisted.
type Statement struct {
	Period     Period          `json:"period"`
	Lines      []LineItem      `json:"lines"`
	NATFee     decimal.Decimal `json:"nat_fee"`
	NATDetail  *NATFeeDetail   `json:"nat_detail,omitempty"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	Skipped    []SkippedServer `json:"skipped,omitempty"`
}

// LineTotal sums the per-line charges, excluding the NAT surcharge.
func (s *Statement) LineTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range s.Lines {
		total = total.Add(line.Total)
	}
	return total
}

// SortLines orders line items deterministically: NAT-pooled servers first,
// then the rest, each group sorted by name. Grouping pooled rows in visual
// batches is the exporters' concern.
func (s *Statement) SortLines() {
	sort.SliceStable(s.Lines, func(i, j int) bool {
		a, b := s.Lines[i], s.Lines[j]
		if a.UsesNATPool != b.UsesNATPool {
			return a.UsesNATPool
		}
		return a.ServerName < b.ServerName
	})
}
