package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/recurring"
	"salonpos/backend/internal/service"
)

// BatchRunner triggers the recurring expense batch.
type BatchRunner interface {
	Run(ctx context.Context, correlationID string) (recurring.Result, error)
}

type Options struct {
	AllowedOrigin string
	Logger        logrus.FieldLogger
}

type API struct {
	service       *service.Service
	configs       *recurring.ConfigService
	batch         BatchRunner
	auth          *AuthManager
	cron          *CronGuard
	allowedOrigin string
	logger        logrus.FieldLogger
}

func New(svc *service.Service, configs *recurring.ConfigService, batch BatchRunner, auth *AuthManager, cron *CronGuard, opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	return &API{
		service:       svc,
		configs:       configs,
		batch:         batch,
		auth:          auth,
		cron:          cron,
		allowedOrigin: opts.AllowedOrigin,
		logger:        opts.Logger.WithField("component", "httpapi"),
	}
}

func (a *API) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(a.accessLog)
	router.Use(middleware.Recoverer)
	router.Use(securityHeaders)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{a.allowedOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-ID"},
		MaxAge:         300,
	}))
	router.Use(limitJSONBody)

	router.Get("/healthz", a.handleHealth)

	router.Route("/api/cron", func(r chi.Router) {
		if a.cron != nil {
			r.Use(a.cron.Middleware)
		} else {
			r.Use(rejectAll)
		}
		r.Get("/recurring-expenses", a.handleRecurringExpensesCron)
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(RoleCashier, RoleManager, RoleAdmin))

			r.Post("/cash-sessions", a.handleOpenCashSession)
			r.Get("/cash-sessions/current", a.handleCurrentCashSession)
			r.Get("/cash-sessions/{id}", a.handleGetCashSession)
			r.Post("/cash-sessions/{id}/close", a.handleCloseCashSession)
			r.Post("/cash-sessions/{id}/movements", a.handleCashMovement)

			r.Post("/orders", a.handleCreateOrder)
			r.Get("/orders", a.handleListOrders)
			r.Get("/orders/{id}", a.handleGetOrder)
			r.Post("/orders/{id}/items", a.handleAddItem)
			r.Patch("/orders/{id}/items/{itemID}", a.handleUpdateItem)
			r.Delete("/orders/{id}/items/{itemID}", a.handleRemoveItem)
			r.Post("/orders/{id}/close", a.handleCloseOrder)
			r.Post("/orders/{id}/cancel", a.handleCancelOrder)

			r.Get("/services", a.handleListServices)
			r.Get("/commissions/resolve", a.handleResolveCommission)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(RoleManager, RoleAdmin))

			r.Get("/cash-sessions/{id}/report", a.handleCashSessionReport)
			r.Post("/orders/{id}/revenue/retry", a.handleRetryRevenue)

			r.Put("/commission-overrides", a.handleSetCommissionOverride)
			r.Delete("/commission-overrides/{professionalID}/{serviceID}", a.handleDeleteCommissionOverride)

			r.Post("/recurring-expenses", a.handleCreateRecurringExpense)
			r.Get("/recurring-expenses/{id}", a.handleGetRecurringExpense)
			r.Get("/recurring-expenses/{id}/installments", a.handleListInstallments)
			r.Post("/recurring-expenses/{id}/deactivate", a.handleDeactivateRecurringExpense)

			r.Get("/batch-runs", a.handleListBatchRuns)
			r.Get("/audit-logs", a.handleAuditLogs)
		})
	})

	return router
}

func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}

			actor, err := a.auth.ParseToken(token)
			if err != nil {
				a.writeError(w, http.StatusUnauthorized, err)
				return
			}

			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				a.writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Info("request")
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

func limitJSONBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		next.ServeHTTP(w, r)
	})
}

func rejectAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "cron trigger is not configured"})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps the domain error kind of err onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPrecondition):
		return http.StatusPreconditionFailed
	case errors.Is(err, domain.ErrState), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	a.writeError(w, statusFor(err), err)
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the detail only goes to the log.
	msg := err.Error()
	if status >= 500 {
		a.logger.WithError(err).WithField("status", status).Error("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody{Error: msg, Kind: domain.KindOf(err)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}
