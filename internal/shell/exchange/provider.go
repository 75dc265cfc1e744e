// Package exchange provides the CNY to USD conversion rate used by the NAT
// pool fee calculator. This is part of the Imperative Shell - it talks to an
// external rate API and caches results on disk.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/artpar/vpsfleet/internal/core/domain"
)

// =============================================================================
// Configuration
// =============================================================================

// FallbackRate is the documented fixed CNY->USD factor used whenever the rate
// service cannot be reached (roughly 7.22 CNY per USD). Rate lookups never
// surface a hard failure to billing.
var FallbackRate = decimal.RequireFromString("0.1385")

// estimatedRates are per-year approximations used for historical months with
// no cached rate; free rate APIs do not serve history.
var estimatedRates = map[int]decimal.Decimal{
	2021: decimal.RequireFromString("0.1550"),
	2022: decimal.RequireFromString("0.1495"),
	2023: decimal.RequireFromString("0.1429"),
	2024: decimal.RequireFromString("0.1408"),
}

// Config holds exchange rate provider configuration.
type Config struct {
	// APIURL is the live rate endpoint (returns {"rates": {"USD": ...}}).
	APIURL string
	// CacheDir is where per-month rate cache files live.
	CacheDir string
	// Timeout bounds the live fetch.
	Timeout time.Duration
	// CurrentMonthTTL is how long a cached current-month rate stays fresh.
	CurrentMonthTTL time.Duration
}

// DefaultConfig returns default exchange rate provider configuration.
func DefaultConfig() Config {
	return Config{
		APIURL:          "https://api.exchangerate-api.com/v4/latest/CNY",
		CacheDir:        "./data/exchange_rates",
		Timeout:         10 * time.Second,
		CurrentMonthTTL: 24 * time.Hour,
	}
}

// =============================================================================
// Provider
// =============================================================================

// Provider resolves the CNY->USD rate for a billing period. Historical months
// are cached indefinitely (rates are immutable once past); the current month
// is cached for the configured TTL.
type Provider struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu   sync.Mutex
	memo map[domain.Period]decimal.Decimal
}

// NewProvider creates an exchange rate provider.
func NewProvider(cfg Config, logger *slog.Logger) *Provider {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultConfig().APIURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CurrentMonthTTL == 0 {
		cfg.CurrentMonthTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		now:        time.Now,
		memo:       make(map[domain.Period]decimal.Decimal),
	}
}

// cacheEntry is the on-disk cache document for one month's rate.
type cacheEntry struct {
	Rate      float64 `json:"rate"`
	Timestamp int64   `json:"timestamp"`
	Year      int     `json:"year"`
	Month     int     `json:"month"`
	Estimated bool    `json:"is_estimated,omitempty"`
}

// rateResponse is the live API response shape.
type rateResponse struct {
	Rates map[string]float64 `json:"rates"`
}

// Rate returns the CNY->USD factor for the given period, rounded to 4
// places. It never fails: any fetch or cache problem resolves to an estimate
// or the fixed fallback.
func (p *Provider) Rate(ctx context.Context, period domain.Period) decimal.Decimal {
	p.mu.Lock()
	if rate, ok := p.memo[period]; ok {
		p.mu.Unlock()
		return rate
	}
	p.mu.Unlock()

	rate := p.resolve(ctx, period)

	p.mu.Lock()
	p.memo[period] = rate
	p.mu.Unlock()
	return rate
}

// ResetCache clears the in-memory memo so the next lookup re-reads the disk
// cache (and, for the current month, refetches once the TTL lapses).
func (p *Provider) ResetCache() {
	p.mu.Lock()
	p.memo = make(map[domain.Period]decimal.Decimal)
	p.mu.Unlock()
}

func (p *Provider) resolve(ctx context.Context, period domain.Period) decimal.Decimal {
	isCurrent := period == domain.CurrentPeriod(p.now())

	if entry, ok := p.readCache(period); ok {
		age := p.now().Sub(time.Unix(entry.Timestamp, 0))
		if !isCurrent || age < p.config.CurrentMonthTTL {
			return decimal.NewFromFloat(entry.Rate).Round(4)
		}
	}

	if isCurrent {
		rate, err := p.fetchLive(ctx)
		if err != nil {
			p.logger.Warn("live exchange rate fetch failed, using fallback",
				"period", period.String(), "error", err)
			return FallbackRate
		}
		p.writeCache(period, cacheEntry{
			Rate:      rate,
			Timestamp: p.now().Unix(),
			Year:      period.Year,
			Month:     period.Month,
		})
		return decimal.NewFromFloat(rate).Round(4)
	}

	// Historical month with no cached rate: fall back to the per-year
	// estimate table, cached so repeat statements agree.
	est, ok := estimatedRates[period.Year]
	if !ok {
		est = FallbackRate
	}
	f, _ := est.Float64()
	p.writeCache(period, cacheEntry{
		Rate:      f,
		Timestamp: p.now().Unix(),
		Year:      period.Year,
		Month:     period.Month,
		Estimated: true,
	})
	return est.Round(4)
}

func (p *Provider) fetchLive(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.APIURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create rate request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch exchange rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rate service returned status %d", resp.StatusCode)
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode rate response: %w", err)
	}
	rate, ok := body.Rates["USD"]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("rate response missing USD rate")
	}
	return rate, nil
}

func (p *Provider) cachePath(period domain.Period) string {
	return filepath.Join(p.config.CacheDir, fmt.Sprintf("exchange_rate_%d_%d.json", period.Year, period.Month))
}

func (p *Provider) readCache(period domain.Period) (cacheEntry, bool) {
	if p.config.CacheDir == "" {
		return cacheEntry{}, false
	}
	data, err := os.ReadFile(p.cachePath(period))
	if err != nil {
		return cacheEntry{}, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Rate <= 0 {
		return cacheEntry{}, false
	}
	return entry, true
}

func (p *Provider) writeCache(period domain.Period, entry cacheEntry) {
	if p.config.CacheDir == "" {
		return
	}
	if err := os.MkdirAll(p.config.CacheDir, 0o755); err != nil {
		p.logger.Warn("failed to create exchange rate cache dir", "error", err)
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := os.WriteFile(p.cachePath(period), data, 0o644); err != nil {
		p.logger.Warn("failed to write exchange rate cache", "error", err)
	}
}
