package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/service"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

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

func TestPreflightReturnsNoContent(t *testing.T) {
	api := newTestAPI(t)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodOptions, "/api/v1/attendance/clock-in", nil))

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "PATCH") {
		t.Fatalf("expected PATCH in allowed methods, got %q", got)
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Username: "lin", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		api.Handler().ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestUnknownJSONFieldsRejected(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "lin", "employee123")

	res := do(t, handler, http.MethodPost, "/api/v1/attendance/clock-in", token, csrfToken(t, handler), map[string]string{
		"store_name":     "Main Store",
		"gps_coordinate": atMainStore,
		"late_minutes":   "0",
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", res.Code)
	}
}

func TestMutationRequiresCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "lin", "employee123")

	missing := do(t, handler, http.MethodPost, "/api/v1/attendance/clock-in", token, "", domain.ClockRequest{
		StoreName:     "Main Store",
		GPSCoordinate: atMainStore,
	})
	if missing.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", missing.Code)
	}

	forged := do(t, handler, http.MethodPost, "/api/v1/attendance/clock-in", token, strings.Repeat("0", 64), domain.ClockRequest{
		StoreName:     "Main Store",
		GPSCoordinate: atMainStore,
	})
	if forged.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with forged CSRF token, got %d", forged.Code)
	}
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	handler := newTestAPI(t).Handler()

	for _, path := range []string{
		"/api/v1/attendance/today",
		"/api/v1/attendance/history",
		"/api/v1/bonus/settings",
		"/api/v1/revenue/stats/daily",
		"/api/v1/audit-logs",
	} {
		res := do(t, handler, http.MethodGet, path, "", "", nil)
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, res.Code)
		}
	}

	res := do(t, handler, http.MethodGet, "/api/v1/attendance/today", "not-a-jwt", "", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", res.Code)
	}
}

func TestManagerOnlyRoutesRejectEmployees(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "lin", "employee123")

	for _, path := range []string{
		"/api/v1/revenue/stats/monthly",
		"/api/v1/audit-logs",
		"/api/v1/users/employees",
	} {
		res := do(t, handler, http.MethodGet, path, token, "", nil)
		if res.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", path, res.Code)
		}
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	if got := parsePositiveLimit("9999", 50, 200); got != 200 {
		t.Fatalf("expected capped limit 200, got %d", got)
	}
	if got := parsePositiveLimit("", 50, 200); got != 50 {
		t.Fatalf("expected fallback limit 50, got %d", got)
	}
	if got := parsePositiveLimit("invalid", 50, 200); got != 50 {
		t.Fatalf("expected fallback on invalid input, got %d", got)
	}
}

func TestStatusForCodes(t *testing.T) {
	cases := map[string]int{
		service.CodeValidation:             http.StatusBadRequest,
		service.CodeNotFound:               http.StatusNotFound,
		service.CodeDuplicateClockIn:       http.StatusConflict,
		service.CodeDuplicateClockOut:      http.StatusConflict,
		service.CodeMissingClockIn:         http.StatusConflict,
		service.CodeDuplicateRevenueRecord: http.StatusConflict,
		service.CodeOutOfRange:             http.StatusUnprocessableEntity,
		service.CodeLockTimeout:            http.StatusServiceUnavailable,
		service.CodeSystem:                 http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := statusFor(code); got != want {
			t.Fatalf("statusFor(%s) = %d, want %d", code, got, want)
		}
	}
}
