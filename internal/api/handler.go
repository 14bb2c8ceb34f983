package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/consortia-finance/tally/internal/alert"
	"github.com/consortia-finance/tally/internal/commission"
	"github.com/consortia-finance/tally/internal/domain"
	"github.com/consortia-finance/tally/internal/repository"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	service  *commission.Service
	repo     domain.Repository
	cache    domain.Cache
	alerts   *alert.Engine
	validate *validator.Validate
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(service *commission.Service, repo domain.Repository, cache domain.Cache, alerts *alert.Engine, version string) *Handler {
	return &Handler{
		service:  service,
		repo:     repo,
		cache:    cache,
		alerts:   alerts,
		validate: validator.New(),
		version:  version,
	}
}

// CommissionRequest is the request body for POST /commissions.
type CommissionRequest struct {
	SellerID      string   `json:"sellerId"`
	ProductID     string   `json:"productId" validate:"required"`
	Rate          float64  `json:"rate" validate:"required,gt=0,lte=100"`
	MinSaleValue  *float64 `json:"minSaleValue,omitempty" validate:"omitempty,gte=0"`
	MaxSaleValue  *float64 `json:"maxSaleValue,omitempty" validate:"omitempty,gte=0"`
	RecipientType string   `json:"recipientType,omitempty" validate:"omitempty,oneof=sale_value office_commission"`
}

// CommissionPatchRequest is the request body for PUT /commissions/{id}.
// Absent fields are left untouched; clearMinValue/clearMaxValue remove a
// bound explicitly, since a null field is indistinguishable from an
// omitted one.
type CommissionPatchRequest struct {
	Rate          *float64 `json:"rate,omitempty" validate:"omitempty,gt=0,lte=100"`
	MinSaleValue  *float64 `json:"minSaleValue,omitempty" validate:"omitempty,gte=0"`
	MaxSaleValue  *float64 `json:"maxSaleValue,omitempty" validate:"omitempty,gte=0"`
	ClearMinValue bool     `json:"clearMinValue,omitempty"`
	ClearMaxValue bool     `json:"clearMaxValue,omitempty"`
	RecipientType *string  `json:"recipientType,omitempty" validate:"omitempty,oneof=sale_value office_commission"`
	IsActive      *bool    `json:"isActive,omitempty"`
}

// ResolveRequest is the request body for POST /resolve.
type ResolveRequest struct {
	SellerID  string  `json:"sellerId" validate:"required"`
	ProductID string  `json:"productId" validate:"required"`
	SaleValue float64 `json:"saleValue" validate:"required,gt=0"`
}

// SettleRequest is the request body for POST /settle.
type SettleRequest struct {
	SaleID           string  `json:"saleId,omitempty"`
	SellerID         string  `json:"sellerId" validate:"required"`
	ProductID        string  `json:"productId" validate:"required"`
	Value            float64 `json:"value" validate:"required,gt=0"`
	OfficeCommission float64 `json:"officeCommission,omitempty" validate:"omitempty,gte=0"`
	SoldAt           string  `json:"soldAt,omitempty"`
}

// SimulateRequest is the request body for POST /simulate.
type SimulateRequest struct {
	Rate        float64 `json:"rate" validate:"required,gt=0,lte=100"`
	Volume      float64 `json:"volume" validate:"gte=0"`
	AvgTicket   float64 `json:"avgTicket" validate:"gte=0"`
	Seasonality float64 `json:"seasonality,omitempty" validate:"omitempty,gt=0"`
}

// SimulateSellerRequest is the request body for POST /simulate/seller.
type SimulateSellerRequest struct {
	SellerID  string  `json:"sellerId" validate:"required"`
	ProductID string  `json:"productId,omitempty"`
	Rate      float64 `json:"rate" validate:"required,gt=0,lte=100"`
}

// AlertRuleRequest is the request body for POST /alerts/rules.
type AlertRuleRequest struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression" validate:"required"`
	Severity    string `json:"severity,omitempty" validate:"omitempty,oneof=info warning critical"`
	Enabled     bool   `json:"enabled"`
}

// DashboardResponse is the response for GET /dashboard.
type DashboardResponse struct {
	Metrics *domain.DashboardMetrics `json:"metrics"`
	Alerts  []domain.Alert           `json:"alerts,omitempty"`
}

// CreateCommission handles POST /commissions.
func (h *Handler) CreateCommission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CommissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	candidate := &domain.CommissionRecord{
		SellerID:      req.SellerID,
		ProductID:     req.ProductID,
		Rate:          req.Rate,
		MinSaleValue:  req.MinSaleValue,
		MaxSaleValue:  req.MaxSaleValue,
		RecipientType: req.RecipientType,
	}

	rec, err := h.service.Create(ctx, tenantID, candidate)
	if err != nil {
		h.writeServiceError(w, err, "failed to create commission record")
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// ListCommissions handles GET /commissions. Every record is returned
// annotated with conflicts and projected impact, so dashboards surface
// overlaps that slipped past validate-then-save.
func (h *Handler) ListCommissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	overviews, err := h.service.ListWithConflicts(ctx, tenantID)
	if err != nil {
		h.writeServiceError(w, err, "failed to list commission records")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"commissions": overviews,
		"count":       len(overviews),
	})
}

// GetCommission handles GET /commissions/{id}.
func (h *Handler) GetCommission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	rec, err := h.service.Get(ctx, tenantID, id)
	if err != nil {
		h.writeServiceError(w, err, "failed to get commission record")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// UpdateCommission handles PUT /commissions/{id}.
func (h *Handler) UpdateCommission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	var req CommissionPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	patch := &domain.CommissionPatch{
		Rate:          req.Rate,
		MinSaleValue:  req.MinSaleValue,
		MaxSaleValue:  req.MaxSaleValue,
		ClearMinValue: req.ClearMinValue,
		ClearMaxValue: req.ClearMaxValue,
		RecipientType: req.RecipientType,
		IsActive:      req.IsActive,
	}

	rec, err := h.service.Update(ctx, tenantID, id, patch)
	if err != nil {
		h.writeServiceError(w, err, "failed to update commission record")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// DeleteCommission handles DELETE /commissions/{id} (soft delete).
func (h *Handler) DeleteCommission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(ctx, tenantID, id); err != nil {
		h.writeServiceError(w, err, "failed to delete commission record")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "deactivated",
		"id":     id,
	})
}

// ValidateCommission handles POST /commissions/validate. Dry run: the
// candidate is validated against the active set but never persisted.
func (h *Handler) ValidateCommission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CommissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	candidate := &domain.CommissionRecord{
		SellerID:      req.SellerID,
		ProductID:     req.ProductID,
		Rate:          req.Rate,
		MinSaleValue:  req.MinSaleValue,
		MaxSaleValue:  req.MaxSaleValue,
		RecipientType: req.RecipientType,
	}

	errs, err := h.service.Validate(ctx, tenantID, candidate, "")
	if err != nil {
		h.writeServiceError(w, err, "validation check failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  len(errs) == 0,
		"errors": errs,
	})
}

// Resolve handles POST /resolve.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	rec, err := h.service.ResolveRate(ctx, tenantID, req.SellerID, req.ProductID, req.SaleValue)
	if err != nil {
		if errors.Is(err, commission.ErrNoApplicableRate) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "no applicable commission rate",
			})
			return
		}
		h.writeServiceError(w, err, "rate resolution failed")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// Settle handles POST /settle.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	sale := &domain.Sale{
		ID:               req.SaleID,
		SellerID:         req.SellerID,
		ProductID:        req.ProductID,
		Value:            req.Value,
		OfficeCommission: req.OfficeCommission,
	}
	if sale.ID == "" {
		sale.ID = uuid.New().String()
	}
	if req.SoldAt != "" {
		soldAt, err := time.Parse(time.RFC3339, req.SoldAt)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "soldAt must be RFC3339",
			})
			return
		}
		sale.SoldAt = soldAt
	}

	settlement, err := h.service.Settle(ctx, tenantID, sale)
	if err != nil {
		// The sale itself is recorded; only commission computation is
		// blocked. 422 keeps the miss loud instead of defaulting to
		// zero commission.
		if errors.Is(err, commission.ErrNoApplicableRate) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  "no applicable commission rate",
				"saleId": sale.ID,
				"status": "blocked",
			})
			return
		}
		h.writeServiceError(w, err, "settlement failed")
		return
	}

	writeJSON(w, http.StatusOK, settlement)
}

// Simulate handles POST /simulate.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	seasonality := req.Seasonality
	if seasonality == 0 {
		seasonality = 1.0
	}

	result := commission.Simulate(domain.SimulationParams{
		Rate:        req.Rate,
		Volume:      req.Volume,
		AvgTicket:   req.AvgTicket,
		Seasonality: seasonality,
	})

	writeJSON(w, http.StatusOK, result)
}

// SimulateSeller handles POST /simulate/seller.
func (h *Handler) SimulateSeller(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req SimulateSellerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	result, err := h.service.SimulateSeller(ctx, tenantID, req.SellerID, req.ProductID, req.Rate)
	if err != nil {
		h.writeServiceError(w, err, "seller simulation failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Dashboard handles GET /dashboard. Aggregates are cached briefly and
// evaluated against the tenant's alert rules.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	metrics, err := h.service.DashboardMetrics(ctx, tenantID)
	if err != nil {
		h.writeServiceError(w, err, "failed to compute dashboard metrics")
		return
	}

	resp := DashboardResponse{Metrics: metrics}
	if h.alerts != nil {
		resp.Alerts = h.alerts.Evaluate(tenantID, metrics)
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListAlertRules handles GET /alerts/rules.
func (h *Handler) ListAlertRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	rules, err := h.repo.ListAlertRules(ctx, tenantID)
	if err != nil {
		h.writeServiceError(w, err, "failed to list alert rules")
		return
	}

	loaded := 0
	if h.alerts != nil {
		loaded = h.alerts.RulesCount(tenantID)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  rules,
		"count":  len(rules),
		"loaded": loaded,
	})
}

// CreateAlertRule handles POST /alerts/rules. The CEL expression is
// compiled before persisting, so a bad rule never reaches the store.
func (h *Handler) CreateAlertRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req AlertRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	severity := req.Severity
	if severity == "" {
		severity = domain.SeverityWarning
	}

	rule := &domain.AlertRule{
		ID:          req.ID,
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Severity:    severity,
		Enabled:     req.Enabled,
	}

	if h.alerts != nil {
		if err := h.alerts.ValidateRule(rule); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid CEL expression: " + err.Error(),
			})
			return
		}
	}

	if err := h.repo.SaveAlertRule(ctx, tenantID, rule); err != nil {
		h.writeServiceError(w, err, "failed to save alert rule")
		return
	}

	slog.Info("alert rule created", "id", rule.ID, "tenant_id", tenantID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /alerts/rules/reload to apply changes.",
	})
}

// DeleteAlertRule handles DELETE /alerts/rules/{id}.
func (h *Handler) DeleteAlertRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	if err := h.repo.DeleteAlertRule(ctx, tenantID, id); err != nil {
		h.writeServiceError(w, err, "failed to delete alert rule")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"id":     id,
	})
}

// ReloadAlertRules handles POST /alerts/rules/reload. Hot-reloads the
// tenant's enabled rules from the repository into the engine.
func (h *Handler) ReloadAlertRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	rules, err := h.repo.ListAlertRules(ctx, tenantID)
	if err != nil {
		h.writeServiceError(w, err, "failed to load alert rules")
		return
	}

	if h.alerts != nil {
		if err := h.alerts.ReloadRules(tenantID, rules); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to reload rules: " + err.Error(),
			})
			return
		}
	}

	slog.Info("alert rules reloaded", "tenant_id", tenantID, "count", len(rules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "alert rules reloaded successfully",
		"count":   len(rules),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// writeServiceError maps service errors onto HTTP statuses. Validation
// failures are advisory and recoverable (422 with the full error list);
// unknown IDs map to 404; anything else is a store error.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, logMsg string) {
	var verr *commission.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"errors": verr.Errors,
		})
		return
	}

	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "record not found",
		})
		return
	}

	slog.Error(logMsg, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
