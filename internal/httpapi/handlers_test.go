package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/crypto/bcrypt"

	"salonpos/backend/internal/cache"
	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/ledger"
	"salonpos/backend/internal/notify"
	"salonpos/backend/internal/recurring"
	"salonpos/backend/internal/revenue"
	"salonpos/backend/internal/service"
	"salonpos/backend/internal/store/memory"
)

const testCronSecret = "cron-secret-for-tests-0123456789abcdef"

// newTestAPI builds a full API over an in-memory store so handler tests
// exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	return newTestAPIWithBatch(t, nil)
}

func newTestAPIWithBatch(t *testing.T, batch BatchRunner) *API {
	t.Helper()

	logger, _ := test.NewNullLogger()
	repo := memory.NewSeeded()
	svc := service.New(repo, revenue.NewStorePoster(repo), service.Options{
		Cache:             cache.NewMemoryCache(),
		DefaultLocationID: "loc-1",
		Logger:            logger,
	})
	configs := recurring.NewConfigService(repo, logger)
	if batch == nil {
		batch = recurring.NewScheduler(repo, recurring.NewStoreGenerator(repo), ledger.New(repo, 30*time.Minute, logger),
			nil, notify.NewLogNotifier(logger), time.UTC, logger)
	}
	auth := NewAuthManager("test-secret-key-test-secret-key-00", time.Hour)
	cron, err := NewCronGuard(mustHashSecret(t, testCronSecret))
	if err != nil {
		t.Fatalf("cron guard: %v", err)
	}
	return New(svc, configs, batch, auth, cron, Options{AllowedOrigin: "*", Logger: logger})
}

func mustHashSecret(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func tokenFor(t *testing.T, api *API, role string) string {
	t.Helper()
	token, _, err := api.auth.Issue("user-"+role, role)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v (status %d)", err, rec.Code)
	}
	return out
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api.Handler(), http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestClientAPIRequiresToken(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api.Handler(), http.MethodGet, "/api/v1/services", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = doJSON(t, api.Handler(), http.MethodGet, "/api/v1/services", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestManagerRoutesRejectCashier(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/audit-logs", tokenFor(t, api, RoleCashier), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/audit-logs", tokenFor(t, api, RoleManager), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for manager, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestOrderFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := tokenFor(t, api, RoleCashier)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/orders", token, map[string]any{
		"location_id": "loc-1", "client_id": "client-1", "professional_id": "prof-ana",
	})
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412 without an open session, got %d", rec.Code)
	}
	if body := decodeBody[errorBody](t, rec); body.Kind != "precondition" {
		t.Fatalf("expected precondition kind, got %+v", body)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cash-sessions", token, map[string]any{
		"location_id": "loc-1", "opening_balance": "100.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open session: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	session := decodeBody[domain.CashSession](t, rec)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cash-sessions", token, map[string]any{"location_id": "loc-1"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second open: expected 409, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders", token, map[string]any{
		"location_id": "loc-1", "client_id": "client-1", "professional_id": "prof-ana",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	order := decodeBody[domain.Order](t, rec)
	if order.CashSessionID != session.ID {
		t.Fatalf("order bound to %q, want %q", order.CashSessionID, session.ID)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/close", token, map[string]any{"payment_method_id": "pm-cash"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("close empty order: expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/items", token, map[string]any{"service_id": "svc-haircut"})
	if rec.Code != http.StatusOK {
		t.Fatalf("add item: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	added := decodeBody[service.AddedItem](t, rec)
	if added.Item.ServiceID != "svc-haircut" || added.Item.ID == "" {
		t.Fatalf("unexpected added item: %+v", added.Item)
	}
	order = added.Order
	if order.TotalAmount.String() != "50" || order.Items[0].CommissionPercent.String() != "40" {
		t.Fatalf("unexpected totals: total=%s percent=%s", order.TotalAmount, order.Items[0].CommissionPercent)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/close", token, map[string]any{"payment_method_id": "pm-cash"})
	if rec.Code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	closed := decodeBody[closeOrderResponse](t, rec)
	if closed.Outcome != service.OutcomeClosed || closed.RevenueRef == "" || closed.Order.Status != domain.OrderClosed {
		t.Fatalf("unexpected close response: %+v", closed)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/cancel", token, map[string]any{"reason": "changed my mind"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("cancel closed order: expected 409, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/orders/ord-missing", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing order: expected 404, got %d", rec.Code)
	}
}

func TestCancelOrderReasonValidation(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := tokenFor(t, api, RoleCashier)

	doJSON(t, handler, http.MethodPost, "/api/v1/cash-sessions", token, map[string]any{"location_id": "loc-1"})
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/orders", token, map[string]any{
		"location_id": "loc-1", "client_id": "client-1", "professional_id": "prof-ana",
	})
	order := decodeBody[domain.Order](t, rec)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/cancel", token, map[string]any{"reason": "too short"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/cancel", token, map[string]any{"reason": "client no-show"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestRecurringExpenseEndpoints(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := tokenFor(t, api, RoleManager)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/recurring-expenses", token, map[string]any{
		"expense_id": "exp-1", "location_id": "loc-1", "description": "Rent",
		"amount": "1200.00", "start_date": "01/02/2025", "total_installments": 12,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date: expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/recurring-expenses", token, map[string]any{
		"expense_id": "exp-1", "location_id": "loc-1", "description": "Rent",
		"amount": "1200.00", "start_date": "2025-01-15", "total_installments": 12,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	cfg := decodeBody[domain.RecurringExpenseConfig](t, rec)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/recurring-expenses/"+cfg.ID+"/installments", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("installments: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/recurring-expenses/"+cfg.ID+"/deactivate", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if got := decodeBody[domain.RecurringExpenseConfig](t, rec); got.Status != domain.RecurringInactive {
		t.Fatalf("expected inactive, got %s", got.Status)
	}
}

func cronRequest(secret string, remote string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/cron/recurring-expenses", nil)
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	req.RemoteAddr = remote
	return req
}

func TestCronEndpointRunsOncePerDay(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, cronRequest(testCronSecret, "10.0.0.1:4000"))
	if rec.Code != http.StatusOK {
		t.Fatalf("first run: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	first := decodeBody[cronResponse](t, rec)
	if !first.Success || first.Skipped || first.Status != domain.RunSuccess || first.RunID == "" || first.CorrelationID == "" {
		t.Fatalf("unexpected first response: %+v", first)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, cronRequest(testCronSecret, "10.0.0.1:4000"))
	if rec.Code != http.StatusOK {
		t.Fatalf("second run: expected 200, got %d", rec.Code)
	}
	second := decodeBody[cronResponse](t, rec)
	if !second.Skipped || second.Reason != ledger.ReasonAlreadyExecuted || second.Generated != 0 {
		t.Fatalf("expected skip, got %+v", second)
	}
}

type failingBatch struct{}

func (failingBatch) Run(_ context.Context, correlationID string) (recurring.Result, error) {
	return recurring.Result{CorrelationID: correlationID, Status: domain.RunFailed}, errors.New("database unavailable")
}

func TestCronEndpointReturns500WhenBatchCannotStart(t *testing.T) {
	api := newTestAPIWithBatch(t, failingBatch{})

	req := cronRequest(testCronSecret, "10.0.0.2:4000")
	req.Header.Set("X-Correlation-ID", "corr-fixed")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	body := decodeBody[cronResponse](t, rec)
	if body.Success || body.Status != domain.RunFailed || body.CorrelationID != "corr-fixed" {
		t.Fatalf("unexpected body: %+v", body)
	}
}
