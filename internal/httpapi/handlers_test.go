package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pustaka/backend/internal/cache"
	"pustaka/backend/internal/domain"
	"pustaka/backend/internal/service"
	"pustaka/backend/internal/store/memory"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopReportCache{}, time.Minute, logger)
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", repo)
	return New(svc, auth, "*", logger)
}

func loginAs(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: status %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected access token in response")
	}
	return resp.AccessToken
}

func csrfToken(t *testing.T, handler http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("csrf token fetch failed: status %d", rec.Code)
	}
	var resp struct {
		Token string `json:"csrf_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode csrf response: %v", err)
	}
	return resp.Token
}

func doJSON(handler http.Handler, method, path, token, csrf string, payload any) *httptest.ResponseRecorder {
	var body io.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()
	rec := doJSON(handler, http.MethodGet, "/healthz", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	handler := newTestAPI(t).Handler()
	rec := doJSON(handler, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"username": "admin",
		"password": "wrong-password",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestRequestsWithoutBearerAreRejected(t *testing.T) {
	handler := newTestAPI(t).Handler()
	rec := doJSON(handler, http.MethodGet, "/api/v1/books", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestTripLifecycleOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "staff", "staff123")
	csrf := csrfToken(t, handler)

	rec := doJSON(handler, http.MethodPost, "/api/v1/trips", token, csrf, map[string]any{
		"date":            "2024-03-15",
		"distributor_ids": []string{"dist-01"},
		"items": []map[string]any{
			{"book_id": "bk-pod-01", "quantity_out": 10},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create trip: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created domain.TripCreateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if len(created.Trips) != 1 {
		t.Fatalf("expected 1 trip, got %d", len(created.Trips))
	}
	tripID := created.Trips[0].ID

	// Settle with a quantity sent as a string, as the UI does.
	rec = doJSON(handler, http.MethodPut, "/api/v1/trips/"+tripID+"/settlement", token, csrf, map[string]any{
		"items": []map[string]any{
			{"book_id": "bk-pod-01", "quantity_return": "4", "amount_returned_cents": 30000},
		},
		"cash_cents":   20000,
		"online_cents": 10000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("settlement: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var view domain.TripView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode settlement view: %v", err)
	}
	if len(view.Items) != 1 || view.Items[0].Remaining != 6 || view.Items[0].Sold != 6 {
		t.Fatalf("unexpected derived item: %+v", view.Items)
	}
	// 6 remaining at 5000 cents.
	if view.Summary.ExpectedCents != 30000 || view.Summary.CollectedCents != 30000 {
		t.Fatalf("unexpected summary: %+v", view.Summary)
	}
	if view.CashCheck.Mismatch {
		t.Fatalf("cash 20000 + online 10000 should match collected 30000")
	}

	rec = doJSON(handler, http.MethodPost, "/api/v1/trips/"+tripID+"/complete", token, csrf, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(handler, http.MethodPut, "/api/v1/trips/"+tripID+"/settlement", token, csrf, map[string]any{
		"items": []map[string]any{
			{"book_id": "bk-pod-01", "quantity_return": 4},
		},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("settle after complete: expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(handler, http.MethodGet, "/api/v1/reports/summary?date=2024-03-15", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary report: expected 200, got %d", rec.Code)
	}
	var summary domain.SummaryReportResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if len(summary.Groups) != 1 || summary.Total.BooksSold != 6 {
		t.Fatalf("unexpected summary report: %+v", summary)
	}
}

func TestSettlementPreservesTripItems(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "staff", "staff123")
	csrf := csrfToken(t, handler)

	rec := doJSON(handler, http.MethodPost, "/api/v1/trips", token, csrf, map[string]any{
		"date":            "2024-03-16",
		"distributor_ids": []string{"dist-01"},
		"items": []map[string]any{
			{"book_id": "bk-pod-01", "quantity_out": 10},
			{"book_id": "bk-bg-01", "quantity_out": 5},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create trip: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created domain.TripCreateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	tripID := created.Trips[0].ID

	// Settling one item must not drop the other.
	rec = doJSON(handler, http.MethodPut, "/api/v1/trips/"+tripID+"/settlement", token, csrf, map[string]any{
		"items": []map[string]any{
			{"book_id": "bk-pod-01", "quantity_return": 4},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("settlement: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var view domain.TripView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode settlement view: %v", err)
	}
	if len(view.Items) != 2 {
		t.Fatalf("expected 2 items after partial settlement, got %d", len(view.Items))
	}

	// A book that never shipped on this trip cannot be settled onto it.
	rec = doJSON(handler, http.MethodPut, "/api/v1/trips/"+tripID+"/settlement", token, csrf, map[string]any{
		"items": []map[string]any{
			{"book_id": "bk-kb-01", "quantity_return": 1},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for undispatched book, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestStaffForbiddenFromAdminRoutes(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "staff", "staff123")
	csrf := csrfToken(t, handler)

	rec := doJSON(handler, http.MethodPost, "/api/v1/books", token, csrf, map[string]any{
		"title": "Unauthorized Title", "price_cents": 1000,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff book create, got %d", rec.Code)
	}

	rec = doJSON(handler, http.MethodGet, "/api/v1/audit-logs", token, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff audit logs, got %d", rec.Code)
	}
}

func TestDeleteTripRequiresManagerPIN(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "admin", "admin123")
	csrf := csrfToken(t, handler)

	rec := doJSON(handler, http.MethodPost, "/api/v1/trips", token, csrf, map[string]any{
		"date":            "2024-03-15",
		"distributor_ids": []string{"dist-02"},
		"items": []map[string]any{
			{"book_id": "bk-bg-01", "quantity_out": 3},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create trip: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created domain.TripCreateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	tripID := created.Trips[0].ID

	rec = doJSON(handler, http.MethodDelete, "/api/v1/trips/"+tripID, token, csrf, map[string]any{
		"manager_pin": "000000",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with wrong pin, got %d", rec.Code)
	}

	rec = doJSON(handler, http.MethodDelete, "/api/v1/trips/"+tripID, token, csrf, map[string]any{
		"manager_pin": "123456",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with correct pin, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(handler, http.MethodGet, "/api/v1/trips/"+tripID, token, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestAdminCanManageStaffAccounts(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "admin", "admin123")
	csrf := csrfToken(t, handler)

	rec := doJSON(handler, http.MethodPost, "/api/v1/users/staff", token, csrf, map[string]any{
		"username": "gopal", "password": "secret123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create staff: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(handler, http.MethodGet, "/api/v1/users/staff", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list staff: expected 200, got %d", rec.Code)
	}
	var resp struct {
		Staff []domain.StaffUser `json:"staff"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode staff list: %v", err)
	}
	found := false
	for _, s := range resp.Staff {
		if s.Username == "gopal" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected new staff account in list: %+v", resp.Staff)
	}

	token = loginAs(t, handler, "gopal", "secret123")
	rec = doJSON(handler, http.MethodGet, "/api/v1/books", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("new staff should read books: got %d", rec.Code)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "admin", "admin123")
	csrf := csrfToken(t, handler)

	rec := doJSON(handler, http.MethodPost, "/api/v1/books", token, csrf, map[string]any{
		"title": "Some Book", "price_cents": 1000, "surprise": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}
