package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func hourBucketsAgo(n int64) int64 {
	return time.Now().UTC().Truncate(time.Hour).Unix() - n*3600
}

func TestSecurityHeaders(t *testing.T) {
	handler := newTestAPI(t).Handler()
	rec := doJSON(handler, http.MethodGet, "/healthz", "", "", nil)

	headers := map[string]string{
		"X-Content-Type-Options":      "nosniff",
		"X-Frame-Options":             "DENY",
		"Referrer-Policy":             "strict-origin-when-cross-origin",
		"Cross-Origin-Opener-Policy":  "same-origin",
		"Access-Control-Allow-Origin": "*",
	}
	for name, want := range headers {
		if got := rec.Header().Get(name); got != want {
			t.Fatalf("header %s: expected %q, got %q", name, want, got)
		}
	}
}

func TestOptionsPreflight(t *testing.T) {
	handler := newTestAPI(t).Handler()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/trips", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
}

func TestMutationsRequireCSRFToken(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "staff", "staff123")

	rec := doJSON(handler, http.MethodPost, "/api/v1/trips", token, "", map[string]any{
		"date":            "2024-03-15",
		"distributor_ids": []string{"dist-01"},
		"items": []map[string]any{
			{"book_id": "bk-pod-01", "quantity_out": 2},
		},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf token, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(handler, http.MethodPost, "/api/v1/trips", token, "bogus-token", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with bogus csrf token, got %d", rec.Code)
	}
}

func TestLoginExemptFromCSRF(t *testing.T) {
	handler := newTestAPI(t).Handler()
	// loginAs sends no CSRF header; failure here means the exemption broke.
	loginAs(t, handler, "admin", "admin123")
}

func TestCSRFTokenWindow(t *testing.T) {
	api := newTestAPI(t)

	current := api.generateCSRFToken()
	if !api.validateCSRFToken(current) {
		t.Fatalf("current token should validate")
	}
	if api.validateCSRFToken("deadbeef") {
		t.Fatalf("garbage token should not validate")
	}

	// Token minted two hours ago falls outside the validity window.
	stale := api.csrfTokenForHour(hourBucketsAgo(2))
	if api.validateCSRFToken(stale) {
		t.Fatalf("stale token should not validate")
	}
	previous := api.csrfTokenForHour(hourBucketsAgo(1))
	if !api.validateCSRFToken(previous) {
		t.Fatalf("previous-hour token should still validate")
	}
}

func TestLoginRateLimited(t *testing.T) {
	handler := newTestAPI(t).Handler()

	var last int
	for i := 0; i < 7; i++ {
		rec := doJSON(handler, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
			"username": "admin", "password": "wrong",
		})
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated attempts, got %d", last)
	}
}

func TestPinAttemptLimiter(t *testing.T) {
	limiter := newAttemptLimiter(2, 0)
	if !limiter.Allow("1.2.3.4") || !limiter.Allow("1.2.3.4") {
		t.Fatalf("first attempts should pass")
	}
	if limiter.Allow("1.2.3.4") {
		t.Fatalf("third attempt should be blocked")
	}
	if !limiter.Allow("5.6.7.8") {
		t.Fatalf("other clients are unaffected")
	}
}
