// Package billing implements the proration billing calculators.
// This is part of the Functional Core - all functions are pure with no I/O.
package billing

import (
	"fmt"
	"time"

	"github.com/artpar/vpsfleet/internal/core/domain"
)

// =============================================================================
// Usage Window Calculator
// =============================================================================

// UsageKind tags the outcome of a usage window computation. Parse failures
// are distinguishable from genuine zero usage so callers never silently bill
// a broken record at $0.
type UsageKind int

const (
	// UsageComputed means a usable window was derived.
	UsageComputed UsageKind = iota
	// UsageZero means the server was not in service during the period.
	UsageZero
	// UsageDateError means a date field could not be parsed.
	UsageDateError
)

// Usage is the clipped in-service window of one server for one period,
// decomposed into whole days, remainder hours and remainder minutes for
// display. Start and End retain second precision for price computation.
type Usage struct {
	Kind    UsageKind
	Days    int
	Hours   int
	Minutes int
	Start   time.Time
	End     time.Time
}

// IsZero reports whether the window contributes no billable time.
func (u Usage) IsZero() bool {
	return u.Kind == UsageZero || (u.Kind == UsageComputed && u.Days == 0 && u.Hours == 0 && u.Minutes == 0)
}

// Label renders the window for display and for the record's write-through
// usage cache.
func (u Usage) Label() string {
	switch u.Kind {
	case UsageDateError:
		return "date error"
	case UsageZero:
		return "0d 0h 0m"
	default:
		return fmt.Sprintf("%dd %dh %dm", u.Days, u.Hours, u.Minutes)
	}
}

func zeroUsage() Usage     { return Usage{Kind: UsageZero} }
func dateErrUsage() Usage  { return Usage{Kind: UsageDateError} }

// ComputeUsage computes the time window a server was actually in service
// during the given period, clipped to the period's calendar bounds.
//
// The decommission date only terminates the window when it falls inside the
// period: a later decommission means the server was still live this month,
// an earlier one means it was already gone. For the in-progress calendar
// month the window ends at now; fully past months end at month end.
func ComputeUsage(srv *domain.ServerRecord, period domain.Period, now time.Time) Usage {
	monthStart := period.Start()
	monthEnd := period.End()

	// Purchase date starts the billing clock. An unparseable purchase date is
	// treated as absent; billing then starts at month start.
	var purchase time.Time
	purchaseSet := false
	if srv.PurchaseDate != "" {
		if t, err := domain.ParseDate(srv.PurchaseDate); err == nil {
			purchase = t
			purchaseSet = true
		}
	}
	if purchaseSet && monthEnd.Before(purchase) {
		return zeroUsage()
	}

	// Decommission handling. Date-only entries bill through 23:59:59 of
	// their day; an unparseable date falls back to month end.
	var decomm time.Time
	decommInMonth := false
	if srv.IsDecommissioned() && srv.DecommissionDate != "" {
		d, err := domain.ParseDateEndOfDay(srv.DecommissionDate)
		if err != nil {
			d = monthEnd
		}
		decommPeriod := domain.Period{Year: d.Year(), Month: int(d.Month())}
		switch {
		case period.Before(decommPeriod):
			// Not yet decommissioned as of the target month; treat as active.
		case decommPeriod.Before(period):
			return zeroUsage()
		default:
			decomm = d
			decommInMonth = true
		}
	}

	// The enabled date gates validity: a record with no parseable enabled
	// date is excluded with a visible error, never billed as zero.
	if srv.EnabledDate == "" {
		return dateErrUsage()
	}
	if _, err := domain.ParseDate(srv.EnabledDate); err != nil {
		return dateErrUsage()
	}

	startTime := monthStart
	if purchaseSet && purchase.After(monthStart) {
		startTime = purchase
	}

	var endTime time.Time
	switch {
	case decommInMonth:
		endTime = decomm
	case period.Contains(now):
		endTime = now
	default:
		endTime = monthEnd
	}

	if startTime.After(monthEnd) || endTime.Before(monthStart) {
		return zeroUsage()
	}
	if startTime.Before(monthStart) {
		startTime = monthStart
	}
	if endTime.After(monthEnd) {
		endTime = monthEnd
	}
	if endTime.Before(startTime) {
		return zeroUsage()
	}

	diff := endTime.Sub(startTime)
	return Usage{
		Kind:    UsageComputed,
		Days:    int(diff / (24 * time.Hour)),
		Hours:   int(diff % (24 * time.Hour) / time.Hour),
		Minutes: int(diff % time.Hour / time.Minute),
		Start:   startTime,
		End:     endTime,
	}
}

// NATDays converts a usage window to the day count charged against the NAT
// pool: whole days, rounded up by one when the remainder exceeds 12 hours.
func (u Usage) NATDays() int {
	if u.Kind != UsageComputed {
		return 0
	}
	days := u.Days
	if u.Hours > 12 || (u.Hours == 12 && u.Minutes > 0) {
		days++
	}
	return days
}
