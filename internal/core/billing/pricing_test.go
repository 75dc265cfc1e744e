package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/artpar/vpsfleet/internal/core/domain"
)

func price(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestComputeCharge_FullMonthFlatRate(t *testing.T) {
	// A server in service the whole calendar month is charged the sticker
	// price exactly, with no proration drift, for any month length.
	tests := []struct {
		name   string
		period domain.Period
		price  string
	}{
		{"31-day month", domain.Period{Year: 2025, Month: 3}, "19.99"},
		{"30-day month", domain.Period{Year: 2025, Month: 4}, "7.77"},
		{"28-day february", domain.Period{Year: 2025, Month: 2}, "123.45"},
		{"29-day february", domain.Period{Year: 2024, Month: 2}, "5.00"},
	}
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := activeServer("2024/01/01", "2024/01/01")
			srv.PricePerMonth = price(tt.price)

			got := ComputeCharge(srv, tt.period, now)

			assert.True(t, got.Equal(price(tt.price)), "got %s want %s", got, tt.price)
		})
	}
}

func TestComputeCharge_ZeroPrice(t *testing.T) {
	srv := activeServer("2025/01/01", "2025/01/01")
	srv.PricePerMonth = decimal.Zero
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	got := ComputeCharge(srv, domain.Period{Year: 2025, Month: 3}, now)

	assert.True(t, got.IsZero())
}

func TestComputeCharge_ZeroOutsideWindow(t *testing.T) {
	srv := activeServer("2025/05/10", "2025/05/10")
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	got := ComputeCharge(srv, domain.Period{Year: 2025, Month: 4}, now)

	assert.True(t, got.IsZero())
}

func TestComputeCharge_MidMonthPurchaseProrated(t *testing.T) {
	// Purchased 2025/03/16 00:00 at $20/month, billed for March 2025 with
	// now at the last instant: 15d23h59m59s at 20/(31*24*60) per minute.
	srv := activeServer("2025/03/16", "2025/03/16")
	now := time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC)

	got := ComputeCharge(srv, domain.Period{Year: 2025, Month: 3}, now)

	assert.Equal(t, "10.32", got.StringFixed(2))
}

func TestComputeCharge_MidMonthDecommissionProrated(t *testing.T) {
	// In service day 1 through day 28 of a 31-day month: 28 != 31, so the
	// flat rate does not apply even though the span starts at month start.
	srv := activeServer("2025/01/01", "2025/01/01")
	srv.Status = domain.StatusDecommissioned
	srv.DecommissionDate = "2025/03/28"
	srv.PricePerMonth = price("31")
	now := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)

	got := ComputeCharge(srv, domain.Period{Year: 2025, Month: 3}, now)

	// 27d23h59m59s = 40319.983 minutes at 31/44640 per minute.
	assert.Equal(t, "28.00", got.StringFixed(2))
}

func TestComputeCharge_DecommissionOnLastDayIsFullMonth(t *testing.T) {
	// Decommissioned on the last day of the month with a date-only entry
	// (bills through 23:59:59): a whole month, charged flat.
	srv := activeServer("2025/01/01", "2025/01/01")
	srv.Status = domain.StatusDecommissioned
	srv.DecommissionDate = "2025/03/31"
	srv.PricePerMonth = price("20")
	now := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)

	got := ComputeCharge(srv, domain.Period{Year: 2025, Month: 3}, now)

	assert.True(t, got.Equal(price("20")))
}

func TestComputeCharge_DecommissionBeforeMonth(t *testing.T) {
	srv := activeServer("2025/01/01", "2025/01/01")
	srv.Status = domain.StatusDecommissioned
	srv.DecommissionDate = "2025/02/10"
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	got := ComputeCharge(srv, domain.Period{Year: 2025, Month: 3}, now)

	assert.True(t, got.IsZero())
}

func TestComputeCharge_LiveMonthBillsToNow(t *testing.T) {
	// Billing the in-progress month prorates up to now, not month end.
	srv := activeServer("2025/03/01", "2025/03/01")
	srv.PricePerMonth = price("44.64")
	now := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)

	got := ComputeCharge(srv, domain.Period{Year: 2025, Month: 3}, now)

	// 10 whole days = 14400 minutes at 44.64/44640 = 0.001 per minute.
	assert.Equal(t, "14.40", got.StringFixed(2))
}

func TestComputeCharge_UnparseablePurchaseFallsBackToFlatFormula(t *testing.T) {
	// No usable purchase date: the plain per-minute formula over the usage
	// window applies, without the full-month short-circuit.
	srv := activeServer("garbage", "2025/01/01")
	srv.PricePerMonth = price("43.20")
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	got := ComputeCharge(srv, domain.Period{Year: 2025, Month: 4}, now)

	// Window 29d23h59m = 43199 whole minutes at 43.20/43200 = 0.001.
	assert.Equal(t, "43.20", got.StringFixed(2))
}

func TestComputeCharge_DateErrorRecordChargesNothing(t *testing.T) {
	srv := activeServer("", "")
	srv.PricePerMonth = price("20")
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	got := ComputeCharge(srv, domain.Period{Year: 2025, Month: 3}, now)

	assert.True(t, got.IsZero())
}

func TestIsFullMonth_BoundaryPinned(t *testing.T) {
	march := domain.Period{Year: 2025, Month: 3}
	start := march.Start()
	end := march.End()

	assert.True(t, isFullMonth(start, end, 31))
	// A minute late on day 1 breaks it.
	assert.False(t, isFullMonth(start.Add(time.Minute), end, 31))
	// Ending at 23:58 on the last day breaks it.
	assert.False(t, isFullMonth(start, end.Add(-time.Minute-59*time.Second), 31))
	// Ending a day early breaks it.
	assert.False(t, isFullMonth(start, end.AddDate(0, 0, -1), 31))
}
