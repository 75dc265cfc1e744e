// Package api provides HTTP handlers for the fleet billing API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/artpar/vpsfleet/internal/core/domain"
	"github.com/artpar/vpsfleet/internal/shell/billing"
	"github.com/artpar/vpsfleet/internal/shell/export"
	"github.com/artpar/vpsfleet/internal/shell/inventory"
	"github.com/artpar/vpsfleet/internal/shell/store"
)

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	store   store.Store
	billing *billing.Service
	syncer  *inventory.Syncer // optional, nil disables /sync
	logger  *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, b *billing.Service, syncer *inventory.Syncer, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	return &Handler{
		store:   s,
		billing: b,
		syncer:  syncer,
		logger:  l,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Server routes
		r.Route("/servers", func(r chi.Router) {
			r.Post("/", h.handleCreateServer)
			r.Get("/", h.handleListServers)
			r.Get("/{name}", h.handleGetServer)
			r.Put("/{name}", h.handleUpdateServer)
			r.Delete("/{name}", h.handleDeleteServer)
			r.Post("/{name}/decommission", h.handleDecommissionServer)
			r.Post("/{name}/reactivate", h.handleReactivateServer)
		})

		// Billing routes
		r.Route("/billing", func(r chi.Router) {
			r.Get("/period", h.handleGetPeriod)
			r.Put("/period", h.handleSetPeriod)
			r.Get("/statement", h.handleGetStatement)
			r.Post("/refresh", h.handleRefreshPrices)
			r.Post("/nat/reset", h.handleResetNATFee)
			r.Get("/export", h.handleExportStatement)
			r.Get("/monthly", h.handleMonthlyTotals)
		})

		// Inventory routes
		r.Post("/inventory/sync", h.handleInventorySync)

		// Fleet snapshot routes
		r.Route("/fleet", func(r chi.Router) {
			r.Get("/snapshot", h.handleExportSnapshot)
			r.Post("/snapshot", h.handleImportSnapshot)
		})
	})

	return r
}

// jsonContentType sets the JSON content type on every response. The export
// handler overrides it for binary downloads.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.ListServers(r.Context(), store.ListOptions{Limit: 1}); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not ready",
			Reason: "store unavailable",
		})
		return
	}
	h.writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready"})
}

// =============================================================================
// Server Handlers
// =============================================================================

func (h *Handler) handleCreateServer(w http.ResponseWriter, r *http.Request) {
	var req CreateServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	price := decimal.Zero
	if req.PricePerMonth != "" {
		var err error
		price, err = decimal.NewFromString(req.PricePerMonth)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "price_per_month is not a valid decimal", "validation_error")
			return
		}
	}

	now := time.Now().UTC()
	server := &domain.ServerRecord{
		ID:            uuid.NewString(),
		Name:          req.Name,
		Host:          req.Host,
		Country:       req.Country,
		Status:        domain.StatusActive,
		PricePerMonth: price,
		PurchaseDate:  req.PurchaseDate,
		EnabledDate:   req.EnabledDate,
		UsesNATPool:   req.UsesNATPool,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := server.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	if err := h.store.CreateServer(r.Context(), server); err != nil {
		if errors.Is(err, store.ErrDuplicateName) {
			h.writeError(w, http.StatusConflict, domain.ErrServerExists.Error(), "server_exists")
			return
		}
		h.logger.Error("failed to create server", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create server", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusCreated, h.serverToResponse(server))
}

func (h *Handler) handleGetServer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	server, err := h.store.GetServer(r.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, domain.ErrServerNotFound.Error(), "server_not_found")
			return
		}
		h.logger.Error("failed to get server", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get server", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, h.serverToResponse(server))
}

func (h *Handler) handleListServers(w http.ResponseWriter, r *http.Request) {
	opts := store.DefaultListOptions()
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			opts.Offset = n
		}
	}
	if status := r.URL.Query().Get("status"); status != "" {
		s := domain.ServerStatus(status)
		if !s.IsValid() {
			h.writeError(w, http.StatusBadRequest, "invalid status filter", "validation_error")
			return
		}
		opts.Status = s
	}

	servers, err := h.store.ListServers(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list servers", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list servers", "internal_error")
		return
	}

	resp := ServerListResponse{
		Servers: make([]ServerResponse, 0, len(servers)),
		Count:   len(servers),
	}
	for i := range servers {
		resp.Servers = append(resp.Servers, h.serverToResponse(&servers[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUpdateServer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	server, err := h.store.GetServer(r.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, domain.ErrServerNotFound.Error(), "server_not_found")
			return
		}
		h.logger.Error("failed to get server", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get server", "internal_error")
		return
	}

	var req UpdateServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	if req.Host != nil {
		server.Host = *req.Host
	}
	if req.Country != nil {
		server.Country = *req.Country
	}
	if req.PricePerMonth != nil {
		price, err := decimal.NewFromString(*req.PricePerMonth)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "price_per_month is not a valid decimal", "validation_error")
			return
		}
		server.PricePerMonth = price
	}
	if req.PurchaseDate != nil {
		server.PurchaseDate = *req.PurchaseDate
	}
	if req.EnabledDate != nil {
		server.EnabledDate = *req.EnabledDate
	}
	if req.UsesNATPool != nil {
		server.UsesNATPool = *req.UsesNATPool
	}

	if err := server.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	server.UpdatedAt = time.Now().UTC()
	if err := h.store.UpdateServer(r.Context(), server); err != nil {
		h.logger.Error("failed to update server", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to update server", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, h.serverToResponse(server))
}

func (h *Handler) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.store.DeleteServer(r.Context(), name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, domain.ErrServerNotFound.Error(), "server_not_found")
			return
		}
		h.logger.Error("failed to delete server", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete server", "internal_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDecommissionServer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	server, err := h.store.GetServer(r.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, domain.ErrServerNotFound.Error(), "server_not_found")
			return
		}
		h.logger.Error("failed to get server", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get server", "internal_error")
		return
	}
	if server.IsDecommissioned() {
		h.writeError(w, http.StatusConflict, domain.ErrNotDecommissionable.Error(), "not_decommissionable")
		return
	}

	if err := h.store.SetServerStatus(r.Context(), name, domain.StatusDecommissioned, time.Now().UTC()); err != nil {
		h.logger.Error("failed to decommission server", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to decommission server", "internal_error")
		return
	}

	server, err = h.store.GetServer(r.Context(), name)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to reload server", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, h.serverToResponse(server))
}

func (h *Handler) handleReactivateServer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.store.SetServerStatus(r.Context(), name, domain.StatusActive, time.Now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, domain.ErrServerNotFound.Error(), "server_not_found")
			return
		}
		h.logger.Error("failed to reactivate server", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to reactivate server", "internal_error")
		return
	}

	server, err := h.store.GetServer(r.Context(), name)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to reload server", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, h.serverToResponse(server))
}

// =============================================================================
// Billing Handlers
// =============================================================================

func (h *Handler) handleGetPeriod(w http.ResponseWriter, r *http.Request) {
	period, err := h.billing.BillingPeriod(r.Context())
	if err != nil {
		h.logger.Error("failed to get billing period", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get billing period", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, PeriodResponse{Year: period.Year, Month: period.Month})
}

func (h *Handler) handleSetPeriod(w http.ResponseWriter, r *http.Request) {
	var req SetPeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	period := domain.Period{Year: req.Year, Month: req.Month}
	if err := h.billing.SetBillingPeriod(r.Context(), period); err != nil {
		if errors.Is(err, domain.ErrInvalidPeriod) {
			h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
			return
		}
		h.logger.Error("failed to set billing period", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to set billing period", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, PeriodResponse{Year: period.Year, Month: period.Month})
}

// periodFromQuery resolves the period from year/month query params, falling
// back to the configured billing period.
func (h *Handler) periodFromQuery(r *http.Request) (domain.Period, error) {
	yearStr := r.URL.Query().Get("year")
	monthStr := r.URL.Query().Get("month")
	if yearStr == "" && monthStr == "" {
		return h.billing.BillingPeriod(r.Context())
	}

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return domain.Period{}, fmt.Errorf("%w: bad year", domain.ErrInvalidPeriod)
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil {
		return domain.Period{}, fmt.Errorf("%w: bad month", domain.ErrInvalidPeriod)
	}
	period := domain.Period{Year: year, Month: month}
	return period, period.Validate()
}

func (h *Handler) handleGetStatement(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodFromQuery(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	statement, err := h.billing.BuildStatement(r.Context(), period)
	if err != nil {
		h.logger.Error("failed to build statement", "period", period.String(), "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to build statement", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, StatementResponse{Statement: statement})
}

func (h *Handler) handleRefreshPrices(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodFromQuery(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	updated, err := h.billing.RefreshPrices(r.Context(), period)
	if err != nil {
		h.logger.Error("failed to refresh prices", "period", period.String(), "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to refresh prices", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, RefreshResponse{Period: period.String(), Updated: updated})
}

func (h *Handler) handleResetNATFee(w http.ResponseWriter, r *http.Request) {
	h.billing.ResetNATFee()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleExportStatement(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodFromQuery(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "xlsx"
	}

	statement, err := h.billing.BuildStatement(r.Context(), period)
	if err != nil {
		h.logger.Error("failed to build statement", "period", period.String(), "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to build statement", "internal_error")
		return
	}

	var data []byte
	var contentType, filename string
	switch format {
	case "xlsx":
		data, err = export.BuildStatementXLSX(statement)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		filename = fmt.Sprintf("statement_%04d_%02d.xlsx", period.Year, period.Month)
	case "pdf":
		data, err = export.BuildStatementPDF(statement)
		contentType = "application/pdf"
		filename = fmt.Sprintf("statement_%04d_%02d.pdf", period.Year, period.Month)
	default:
		h.writeError(w, http.StatusBadRequest, "format must be xlsx or pdf", "validation_error")
		return
	}
	if err != nil {
		h.logger.Error("failed to render statement export", "format", format, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to render export", "internal_error")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleMonthlyTotals(w http.ResponseWriter, r *http.Request) {
	from, err := queryPeriod(r, "from_year", "from_month")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}
	to, err := queryPeriod(r, "to_year", "to_month")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	totals, err := h.billing.MonthlyTotals(r.Context(), from, to)
	if err != nil {
		h.logger.Error("failed to compute monthly totals", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to compute monthly totals", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, MonthlyTotalsResponse{Totals: totals})
}

func queryPeriod(r *http.Request, yearKey, monthKey string) (domain.Period, error) {
	year, err := strconv.Atoi(r.URL.Query().Get(yearKey))
	if err != nil {
		return domain.Period{}, fmt.Errorf("%w: bad %s", domain.ErrInvalidPeriod, yearKey)
	}
	month, err := strconv.Atoi(r.URL.Query().Get(monthKey))
	if err != nil {
		return domain.Period{}, fmt.Errorf("%w: bad %s", domain.ErrInvalidPeriod, monthKey)
	}
	period := domain.Period{Year: year, Month: month}
	return period, period.Validate()
}

// =============================================================================
// Inventory Handlers
// =============================================================================

func (h *Handler) handleInventorySync(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		h.writeError(w, http.StatusNotImplemented, "no inventory sources configured", "sync_disabled")
		return
	}

	result, err := h.syncer.Sync(r.Context())
	if err != nil {
		h.logger.Error("inventory sync failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "inventory sync failed", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, SyncResponse{
		Seen:           result.Seen,
		Created:        result.Created,
		Updated:        result.Updated,
		Decommissioned: result.Decommissioned,
	})
}

// =============================================================================
// Fleet Snapshot Handlers
// =============================================================================

// handleExportSnapshot serves the whole fleet as a YAML document in the
// legacy fleet-file format, with the current period's totals stamped in.
func (h *Handler) handleExportSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := store.BuildFleetSnapshot(r.Context(), h.store)
	if err != nil {
		h.logger.Error("failed to build fleet snapshot", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to build fleet snapshot", "internal_error")
		return
	}

	period, err := h.billing.BillingPeriod(r.Context())
	if err != nil {
		h.logger.Error("failed to get billing period", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get billing period", "internal_error")
		return
	}
	statement, err := h.billing.BuildStatement(r.Context(), period)
	if err != nil {
		h.logger.Error("failed to build statement", "period", period.String(), "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to build statement", "internal_error")
		return
	}
	snapshot.TotalBill = statement.GrandTotal.String()
	snapshot.NATFee = statement.NATFee.String()

	w.Header().Set("Content-Type", "application/x-yaml")
	w.Header().Set("Content-Disposition", `attachment; filename="fleet.yaml"`)
	w.WriteHeader(http.StatusOK)
	if err := store.EncodeSnapshot(w, snapshot); err != nil {
		h.logger.Error("failed to encode fleet snapshot", "error", err)
	}
}

// handleImportSnapshot upserts a posted YAML fleet file. The whole import is
// one transaction; a bad record rejects the entire document.
func (h *Handler) handleImportSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := store.DecodeSnapshot(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "body is not a valid fleet snapshot", "invalid_snapshot")
		return
	}

	created, updated, err := store.ImportSnapshot(r.Context(), h.store, snapshot)
	if err != nil {
		if errors.Is(err, store.ErrInvalidData) {
			h.writeError(w, http.StatusBadRequest, err.Error(), "invalid_snapshot")
			return
		}
		h.logger.Error("failed to import fleet snapshot", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to import fleet snapshot", "internal_error")
		return
	}

	// The fleet just changed under the memoized fee.
	h.billing.ResetNATFee()

	h.writeJSON(w, http.StatusOK, SnapshotImportResponse{
		Servers: len(snapshot.Servers),
		Created: created,
		Updated: updated,
	})
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func (h *Handler) serverToResponse(s *domain.ServerRecord) ServerResponse {
	return ServerResponse{
		ID:               s.ID,
		Name:             s.Name,
		Host:             s.Host,
		Country:          s.Country,
		Status:           string(s.Status),
		PricePerMonth:    s.PricePerMonth.String(),
		PurchaseDate:     s.PurchaseDate,
		EnabledDate:      s.EnabledDate,
		DecommissionDate: s.DecommissionDate,
		UsesNATPool:      s.UsesNATPool,
		LastUsageLabel:   s.LastUsageLabel,
		LastTotalPrice:   s.LastTotalPrice.String(),
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}
