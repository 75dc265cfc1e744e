// Package billing assembles monthly statements from the fleet records. It
// glues the pure calculators in core/billing to the store, the exchange rate
// provider and the exporters.
package billing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	corebilling "github.com/artpar/vpsfleet/internal/core/billing"
	"github.com/artpar/vpsfleet/internal/core/domain"
	"github.com/artpar/vpsfleet/internal/shell/store"
)

// natPoolDailyRateCNY is the per-server-day NAT pool surcharge in CNY.
var natPoolDailyRateCNY = decimal.NewFromInt(1)

// =============================================================================
// Rate Provider Interface
// =============================================================================

// RateProvider resolves the CNY->USD conversion factor for a billing period.
type RateProvider interface {
	Rate(ctx context.Context, period domain.Period) decimal.Decimal
	ResetCache()
}

// =============================================================================
// Service
// =============================================================================

// Service computes NAT pool fees and monthly statements.
type Service struct {
	store  store.Store
	rates  RateProvider
	logger *slog.Logger
	now    func() time.Time

	// natMu guards the current-month NAT fee memo. The fee walks every pooled
	// server, so statement builds reuse it within a month.
	natMu     sync.Mutex
	natFee    *decimal.Decimal
	natDetail *domain.NATFeeDetail
	natPeriod domain.Period
}

// ServiceConfig holds billing service dependencies.
type ServiceConfig struct {
	Store  store.Store
	Rates  RateProvider
	Logger *slog.Logger
}

// NewService creates a billing service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:  cfg.Store,
		rates:  cfg.Rates,
		logger: cfg.Logger,
		now:    time.Now,
	}
}

// =============================================================================
// Billing Period
// =============================================================================

// BillingPeriod returns the configured billing period, defaulting to the
// current calendar month when none has been set.
func (s *Service) BillingPeriod(ctx context.Context) (domain.Period, error) {
	period, err := s.store.GetBillingPeriod(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CurrentPeriod(s.now()), nil
		}
		return domain.Period{}, err
	}
	return period, nil
}

// SetBillingPeriod validates and persists the billing period, and invalidates
// the NAT fee memo since it was computed for the old period.
func (s *Service) SetBillingPeriod(ctx context.Context, period domain.Period) error {
	if err := period.Validate(); err != nil {
		return err
	}
	if err := s.store.SetBillingPeriod(ctx, period); err != nil {
		return err
	}
	s.ResetNATFee()
	return nil
}

// =============================================================================
// NAT Pool Fee
// =============================================================================

// NATPoolFee computes the shared NAT pool surcharge for the period: one CNY
// per pooled server-day, converted to USD at the period's exchange rate.
// Partial days beyond 12 hours count as a full day. The current month's fee
// is memoized until ResetNATFee is called or the month changes.
func (s *Service) NATPoolFee(ctx context.Context, period domain.Period) (decimal.Decimal, *domain.NATFeeDetail, error) {
	s.natMu.Lock()
	if s.natFee != nil && s.natPeriod == period {
		fee, detail := *s.natFee, s.natDetail
		s.natMu.Unlock()
		return fee, detail, nil
	}
	s.natMu.Unlock()

	fee, detail, err := s.computeNATPoolFee(ctx, period)
	if err != nil {
		return decimal.Zero, nil, err
	}

	// Memoize only the current month: historical fees are cheap to recompute
	// and never change, while the live month is queried on every refresh.
	if period == domain.CurrentPeriod(s.now()) {
		s.natMu.Lock()
		s.natFee = &fee
		s.natDetail = detail
		s.natPeriod = period
		s.natMu.Unlock()
	}

	return fee, detail, nil
}

// ResetNATFee drops the memoized NAT fee and the exchange rate memo so the
// next statement recomputes both from scratch.
func (s *Service) ResetNATFee() {
	s.natMu.Lock()
	s.natFee = nil
	s.natDetail = nil
	s.natPeriod = domain.Period{}
	s.natMu.Unlock()
	if s.rates != nil {
		s.rates.ResetCache()
	}
}

func (s *Service) computeNATPoolFee(ctx context.Context, period domain.Period) (decimal.Decimal, *domain.NATFeeDetail, error) {
	servers, err := s.store.ListAllServers(ctx)
	if err != nil {
		return decimal.Zero, nil, err
	}

	now := s.now()
	totalDays := 0
	pooled := 0
	for i := range servers {
		srv := &servers[i]
		if !srv.UsesNATPool {
			continue
		}
		usage := corebilling.ComputeUsage(srv, period, now)
		days := usage.NATDays()
		if days == 0 {
			continue
		}
		pooled++
		totalDays += days
	}

	// Nothing pooled this month: no fee, and no point resolving a rate.
	if totalDays == 0 {
		return decimal.Zero, nil, nil
	}

	rate := s.rates.Rate(ctx, period)
	feeCNY := natPoolDailyRateCNY.Mul(decimal.NewFromInt(int64(totalDays)))
	fee := feeCNY.Mul(rate).Round(2)

	s.logger.Debug("computed nat pool fee",
		"period", period.String(),
		"pooled_servers", pooled,
		"total_days", totalDays,
		"rate", rate.String(),
		"fee_usd", fee.String(),
	)

	return fee, &domain.NATFeeDetail{
		PooledServers: pooled,
		TotalDays:     totalDays,
		Rate:          rate,
	}, nil
}

// =============================================================================
// Statement Assembly
// =============================================================================

// BuildStatement computes the monthly statement for the period. Zero-usage
// servers are omitted, records with unusable dates are isolated into the
// skipped list, and the NAT pool surcharge is appended as its own component.
// Line charges are written through to the store as the advisory snapshot.
func (s *Service) BuildStatement(ctx context.Context, period domain.Period) (*domain.Statement, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	// Recompute from scratch: a stale fee memo from a prior period or a
	// mid-month price edit must not leak into this statement.
	s.ResetNATFee()

	servers, err := s.store.ListAllServers(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	statement := &domain.Statement{Period: period}

	for i := range servers {
		srv := &servers[i]
		usage := corebilling.ComputeUsage(srv, period, now)

		switch usage.Kind {
		case corebilling.UsageDateError:
			statement.Skipped = append(statement.Skipped, domain.SkippedServer{
				ServerName: srv.Name,
				Reason:     "start date missing or unparseable",
			})
			s.logger.Warn("skipping server with unusable dates", "server", srv.Name)
			continue
		case corebilling.UsageZero:
			continue
		}

		total := corebilling.ComputeCharge(srv, period, now)
		statement.Lines = append(statement.Lines, domain.LineItem{
			ServerName:       srv.Name,
			Host:             srv.Host,
			Country:          srv.Country,
			Status:           displayStatus(srv, period),
			DecommissionDate: displayDecommissionDate(srv, period),
			UsageLabel:       usage.Label(),
			PricePerMonth:    srv.PricePerMonth,
			Total:            total,
			UsesNATPool:      srv.UsesNATPool,
		})

		if err := s.store.SetServerCharge(ctx, srv.Name, usage.Label(), total); err != nil {
			s.logger.Warn("failed to write through server charge", "server", srv.Name, "error", err)
		}
	}

	fee, detail, err := s.NATPoolFee(ctx, period)
	if err != nil {
		return nil, err
	}
	statement.NATFee = fee
	statement.NATDetail = detail
	statement.GrandTotal = statement.LineTotal().Add(fee)
	statement.SortLines()

	s.logger.Info("built statement",
		"period", period.String(),
		"lines", len(statement.Lines),
		"skipped", len(statement.Skipped),
		"nat_fee", fee.String(),
		"grand_total", statement.GrandTotal.String(),
	)

	return statement, nil
}

// RefreshPrices recomputes every server's charge for the period and writes
// the results through to the store. Returns the number of servers updated.
func (s *Service) RefreshPrices(ctx context.Context, period domain.Period) (int, error) {
	if err := period.Validate(); err != nil {
		return 0, err
	}

	servers, err := s.store.ListAllServers(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	updated := 0
	for i := range servers {
		srv := &servers[i]
		usage := corebilling.ComputeUsage(srv, period, now)
		if usage.Kind == corebilling.UsageDateError {
			continue
		}
		total := corebilling.ComputeCharge(srv, period, now)
		if err := s.store.SetServerCharge(ctx, srv.Name, usage.Label(), total); err != nil {
			return updated, err
		}
		updated++
	}

	s.logger.Info("refreshed prices", "period", period.String(), "servers", updated)
	return updated, nil
}

// =============================================================================
// Monthly Totals
// =============================================================================

// PeriodTotal is one month's summary line in a multi-month report.
type PeriodTotal struct {
	Period     domain.Period   `json:"period"`
	LineTotal  decimal.Decimal `json:"line_total"`
	NATFee     decimal.Decimal `json:"nat_fee"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	Servers    int             `json:"servers"`
}

// MonthlyTotals builds per-month summaries for every period from `from`
// through `to` inclusive.
func (s *Service) MonthlyTotals(ctx context.Context, from, to domain.Period) ([]PeriodTotal, error) {
	if err := from.Validate(); err != nil {
		return nil, err
	}
	if err := to.Validate(); err != nil {
		return nil, err
	}
	if to.Before(from) {
		from, to = to, from
	}

	var totals []PeriodTotal
	for p := from; !to.Before(p); p = p.Next() {
		statement, err := s.BuildStatement(ctx, p)
		if err != nil {
			return nil, err
		}
		totals = append(totals, PeriodTotal{
			Period:     p,
			LineTotal:  statement.LineTotal(),
			NATFee:     statement.NATFee,
			GrandTotal: statement.GrandTotal,
			Servers:    len(statement.Lines),
		})
	}
	return totals, nil
}

// =============================================================================
// Display Rules
// =============================================================================

// displayStatus resolves how a server's status appears on a statement: the
// decommissioned marker shows only for the month the decommission occurred;
// in earlier months the server was still in service and displays as active.
func displayStatus(srv *domain.ServerRecord, period domain.Period) domain.ServerStatus {
	if !srv.IsDecommissioned() {
		return domain.StatusActive
	}
	decomm, err := domain.ParseDateEndOfDay(srv.DecommissionDate)
	if err != nil {
		return domain.StatusDecommissioned
	}
	if period.Contains(decomm) || decomm.Before(period.Start()) {
		return domain.StatusDecommissioned
	}
	return domain.StatusActive
}

func displayDecommissionDate(srv *domain.ServerRecord, period domain.Period) string {
	if displayStatus(srv, period) != domain.StatusDecommissioned {
		return ""
	}
	return srv.DecommissionDate
}
