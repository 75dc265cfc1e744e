package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/artpar/vpsfleet/internal/core/domain"
)

// =============================================================================
// Proration Pricing Engine
// =============================================================================

// ComputeCharge computes the dollar amount a server owes for the given
// period, rounded to 2 decimal places.
//
// Whole months used are charged the flat sticker price so the statement never
// drifts against the advertised rate; first and last partial months are
// billed by elapsed minutes at price / (daysInMonth x 24 x 60).
func ComputeCharge(srv *domain.ServerRecord, period domain.Period, now time.Time) decimal.Decimal {
	price := srv.PricePerMonth
	if price.IsZero() || price.IsNegative() {
		return decimal.Zero
	}

	daysInMonth := period.Days()
	monthStart := period.Start()
	monthEnd := period.End()

	// With no resolvable start date the record is billed by the plain
	// per-minute formula over its usage window.
	purchase, ok := srv.BillingStartDate()
	if !ok {
		return fallbackCharge(srv, period, now)
	}

	// The enabled date anchors the billing window start; the purchase date
	// stands in when it is absent or unparseable.
	enabled := purchase
	if srv.EnabledDate != "" {
		if t, perr := domain.ParseDate(srv.EnabledDate); perr == nil {
			enabled = t
		}
	}

	var decomm time.Time
	decommSet := false
	if srv.IsDecommissioned() && srv.DecommissionDate != "" {
		if d, derr := domain.ParseDateEndOfDay(srv.DecommissionDate); derr == nil {
			decomm = d
			decommSet = true
		}
	}

	// Already gone before this month began, or not yet started.
	if decommSet && decomm.Before(monthStart) {
		return decimal.Zero
	}
	if enabled.After(monthEnd) {
		return decimal.Zero
	}

	// Billing window end: live months bill up to now, past months to month
	// end, and an in-month decommission overrides both.
	billingEnd := monthEnd
	if period.Contains(now) && now.Before(monthEnd) {
		billingEnd = now
	}
	if decommSet && !decomm.Before(monthStart) && !decomm.After(monthEnd) {
		billingEnd = decomm
	}

	billingStart := monthStart
	if enabled.After(monthStart) && !enabled.After(monthEnd) {
		billingStart = enabled
	}

	if billingEnd.Before(billingStart) {
		return decimal.Zero
	}

	if isFullMonth(billingStart, billingEnd, daysInMonth) {
		return price.Round(2)
	}

	return prorate(price, billingEnd.Sub(billingStart), daysInMonth)
}

// isFullMonth is the single whole-month predicate: the window must run from
// day 1 at 00:00 to the last day at 23:59 and span exactly the month's day
// count. A decommission instant normalized to 23:59:59 satisfies the end
// check, so the decommissioned and active branches share this test.
func isFullMonth(start, end time.Time, daysInMonth int) bool {
	if start.Day() != 1 || start.Hour() != 0 || start.Minute() != 0 {
		return false
	}
	if end.Day() != daysInMonth || end.Hour() != 23 || end.Minute() != 59 {
		return false
	}
	daysSpanned := int(end.Sub(start)/(24*time.Hour)) + 1
	return daysSpanned == daysInMonth
}

// prorate bills an elapsed span by fractional minutes. Sub-minute precision
// is preserved: seconds contribute fractional minutes rather than being
// truncated.
func prorate(price decimal.Decimal, span time.Duration, daysInMonth int) decimal.Decimal {
	if span <= 0 {
		return decimal.Zero
	}
	totalMinutes := decimal.NewFromFloat(span.Seconds()).Div(decimal.NewFromInt(60))
	perMinute := price.Div(decimal.NewFromInt(int64(daysInMonth) * 24 * 60))
	return totalMinutes.Mul(perMinute).Round(2)
}

// fallbackCharge prices a record whose purchase date cannot be resolved:
// the plain per-minute formula over the usage window, with no full-month
// short-circuit. A record whose window itself errors charges nothing here;
// the aggregator reports it as skipped.
func fallbackCharge(srv *domain.ServerRecord, period domain.Period, now time.Time) decimal.Decimal {
	usage := ComputeUsage(srv, period, now)
	if usage.Kind != UsageComputed {
		return decimal.Zero
	}
	totalMinutes := int64(usage.Days)*24*60 + int64(usage.Hours)*60 + int64(usage.Minutes)
	perMinute := srv.PricePerMonth.Div(decimal.NewFromInt(int64(period.Days()) * 24 * 60))
	return decimal.NewFromInt(totalMinutes).Mul(perMinute).Round(2)
}
