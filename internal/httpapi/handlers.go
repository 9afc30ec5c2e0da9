package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/recurring"
	"salonpos/backend/internal/service"
	"salonpos/backend/internal/store"
)

func (a *API) decodeOrReject(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return false
	}
	return true
}

func (a *API) handleOpenCashSession(w http.ResponseWriter, r *http.Request) {
	var req service.OpenCashSessionRequest
	if !a.decodeOrReject(w, r, &req) {
		return
	}
	session, err := a.service.OpenCashSession(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (a *API) handleCurrentCashSession(w http.ResponseWriter, r *http.Request) {
	session, err := a.service.CurrentCashSession(r.Context(), r.URL.Query().Get("location_id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleGetCashSession(w http.ResponseWriter, r *http.Request) {
	session, err := a.service.GetCashSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleCloseCashSession(w http.ResponseWriter, r *http.Request) {
	var req service.CloseCashSessionRequest
	if !a.decodeOrReject(w, r, &req) {
		return
	}
	session, err := a.service.CloseCashSession(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleCashMovement(w http.ResponseWriter, r *http.Request) {
	var req service.CashMovementRequest
	if !a.decodeOrReject(w, r, &req) {
		return
	}
	movement, err := a.service.RecordCashMovement(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, movement)
}

func (a *API) handleCashSessionReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.CashSessionReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req service.CreateOrderRequest
	if !a.decodeOrReject(w, r, &req) {
		return
	}
	order, err := a.service.CreateOrder(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	orders, err := a.service.ListOrders(r.Context(), store.OrderFilter{
		LocationID:    query.Get("location_id"),
		CashSessionID: query.Get("cash_session_id"),
		Status:        query.Get("status"),
		Limit:         parsePositiveLimit(query.Get("limit"), 50, 200),
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req service.AddItemRequest
	if !a.decodeOrReject(w, r, &req) {
		return
	}
	added, err := a.service.AddItem(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, added)
}

func (a *API) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateItemRequest
	if !a.decodeOrReject(w, r, &req) {
		return
	}
	order, err := a.service.UpdateItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.RemoveItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type closeOrderResponse struct {
	Outcome      service.CloseOutcomeKind `json:"outcome"`
	Order        domain.Order             `json:"order"`
	RevenueRef   string                   `json:"revenue_ref,omitempty"`
	RevenueError string                   `json:"revenue_error,omitempty"`
}

func toCloseResponse(outcome service.CloseOutcome) closeOrderResponse {
	resp := closeOrderResponse{
		Outcome:    outcome.Kind,
		Order:      outcome.Order,
		RevenueRef: outcome.RevenueRef,
	}
	if outcome.RevenueErr != nil {
		resp.RevenueError = outcome.RevenueErr.Error()
	}
	return resp
}

func (a *API) handleCloseOrder(w http.ResponseWriter, r *http.Request) {
	var req service.CloseOrderRequest
	if !a.decodeOrReject(w, r, &req) {
		return
	}
	outcome, err := a.service.CloseOrder(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCloseResponse(outcome))
}

func (a *API) handleRetryRevenue(w http.ResponseWriter, r *http.Request) {
	outcome, err := a.service.RetryRevenuePosting(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCloseResponse(outcome))
}

func (a *API) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !a.decodeOrReject(w, r, &req) {
		return
	}
	order, err := a.service.CancelOrder(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := a.service.ListServices(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (a *API) handleResolveCommission(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	quote, err := a.service.ResolveCommission(r.Context(), query.Get("professional_id"), query.Get("service_id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (a *API) handleSetCommissionOverride(w http.ResponseWriter, r *http.Request) {
	var req service.SetCommissionOverrideRequest
	if !a.decodeOrReject(w, r, &req) {
		return
	}
	override, err := a.service.SetCommissionOverride(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, override)
}

func (a *API) handleDeleteCommissionOverride(w http.ResponseWriter, r *http.Request) {
	err := a.service.DeleteCommissionOverride(r.Context(), chi.URLParam(r, "professionalID"), chi.URLParam(r, "serviceID"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCreateRecurringExpense(w http.ResponseWriter, r *http.Request) {
	var req recurring.CreateConfigParams
	if !a.decodeOrReject(w, r, &req) {
		return
	}
	cfg, err := a.configs.CreateConfig(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (a *API) handleGetRecurringExpense(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.configs.GetConfig(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *API) handleListInstallments(w http.ResponseWriter, r *http.Request) {
	installments, err := a.configs.ListInstallments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"installments": installments})
}

func (a *API) handleDeactivateRecurringExpense(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.configs.DeactivateConfig(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *API) handleListBatchRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	runs, err := a.service.ListBatchRuns(r.Context(), strings.ToUpper(query.Get("job_type")), parsePositiveLimit(query.Get("limit"), 30, 200))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	logs, err := a.service.ListAuditLogs(r.Context(), query.Get("location_id"), parsePositiveLimit(query.Get("limit"), 100, 500))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

type cronResponse struct {
	Success       bool     `json:"success"`
	Skipped       bool     `json:"skipped,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	Status        string   `json:"status,omitempty"`
	Generated     int      `json:"generated"`
	Processed     int      `json:"processed"`
	Errors        int      `json:"errors"`
	ErrorsList    []string `json:"errorsList"`
	CorrelationID string   `json:"correlationId"`
	RunID         string   `json:"runId,omitempty"`
	Duration      string   `json:"duration"`
}

// handleRecurringExpensesCron answers 500 only when the batch could not
// start; partial runs and skips are 200.
func (a *API) handleRecurringExpensesCron(w http.ResponseWriter, r *http.Request) {
	correlationID := strings.TrimSpace(r.Header.Get("X-Correlation-ID"))
	if correlationID == "" {
		correlationID = middleware.GetReqID(r.Context())
	}

	result, err := a.batch.Run(r.Context(), correlationID)
	resp := cronResponse{
		Success:       err == nil,
		Skipped:       result.Skipped,
		Reason:        result.Reason,
		Status:        result.Status,
		Generated:     result.Generated,
		Processed:     result.Processed,
		Errors:        result.Errors,
		ErrorsList:    result.ErrorsList,
		CorrelationID: result.CorrelationID,
		RunID:         result.RunID,
		Duration:      result.Duration.String(),
	}
	if resp.ErrorsList == nil {
		resp.ErrorsList = []string{}
	}
	if err != nil {
		a.logger.WithError(err).WithField("correlation_id", result.CorrelationID).Error("recurring expense batch failed to start")
		if resp.Status == "" {
			resp.Status = domain.RunFailed
		}
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
