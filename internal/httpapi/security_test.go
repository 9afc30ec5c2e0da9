package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestCronSecretRequired(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, cronRequest("", "10.1.0.1:4000"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, cronRequest("wrong-secret", "10.1.0.2:4000"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong secret, got %d", rec.Code)
	}
}

func TestCronFailedAttemptsRateLimited(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	lastCode := 0
	for i := 0; i < 6; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, cronRequest("wrong-secret", "127.0.0.1:5000"))
		lastCode = rec.Code
	}
	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated failures, got %d", lastCode)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, cronRequest(testCronSecret, "127.0.0.1:5001"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected the correct secret to stay blocked for the client, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, cronRequest(testCronSecret, "127.0.0.2:5000"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected other clients to pass, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	token := tokenFor(t, api, RoleCashier)

	body := `{"location_id":"` + strings.Repeat("a", (1<<20)+64) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cash-sessions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized payload, got %d", res.Code)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	api := newTestAPI(t)
	token := tokenFor(t, api, RoleCashier)

	rec := doJSON(t, api.Handler(), http.MethodPost, "/api/v1/cash-sessions", token, map[string]any{"location": "loc-1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeBody[errorBody](t, rec); body.Kind != "validation" {
		t.Fatalf("expected validation kind, got %+v", body)
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	if got := parsePositiveLimit("", 30, 200); got != 30 {
		t.Fatalf("expected fallback 30, got %d", got)
	}
	if got := parsePositiveLimit("-4", 30, 200); got != 30 {
		t.Fatalf("expected fallback for negative, got %d", got)
	}
	if got := parsePositiveLimit("999", 30, 200); got != 200 {
		t.Fatalf("expected cap 200, got %d", got)
	}
}
