package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/logger"
	"shiftbook/backend/internal/service"
)

const (
	codeUnauthorized     = "UNAUTHORIZED"
	codeForbidden        = "FORBIDDEN"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	codeRateLimited      = "RATE_LIMITED"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	log           *zap.Logger
	loginLimiter  *attemptLimiter
	clockLimiter  *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, log *zap.Logger) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		log:           logger.Named(log, "httpapi"),
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		clockLimiter:  newAttemptLimiter(20, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (Unix time truncated to the hour).
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	bucket := time.Now().UTC().Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken accepts the current or previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	currentBucket := time.Now().UTC().Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(currentBucket))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(prevBucket)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	anyRole := []string{domain.RoleEmployee, domain.RoleManager}

	mux.HandleFunc("/api/v1/attendance/clock-in", a.requireAuth(a.handleClockIn, anyRole...))
	mux.HandleFunc("/api/v1/attendance/clock-out", a.requireAuth(a.handleClockOut, anyRole...))
	mux.HandleFunc("/api/v1/attendance/history", a.requireAuth(a.handleAttendanceHistory, anyRole...))
	mux.HandleFunc("/api/v1/attendance/today", a.requireAuth(a.handleTodayStatus, anyRole...))
	mux.HandleFunc("/api/v1/attendance/late-minutes", a.requireAuth(a.handleLateMinutes, anyRole...))

	mux.HandleFunc("/api/v1/revenue", a.requireAuth(a.handleRevenueSubmit, anyRole...))
	mux.HandleFunc("/api/v1/revenue/", a.requireAuth(a.handleRevenueActions, anyRole...))
	mux.HandleFunc("/api/v1/revenue/stats/daily", a.requireAuth(a.handleDailyStats, domain.RoleManager))
	mux.HandleFunc("/api/v1/revenue/stats/monthly", a.requireAuth(a.handleMonthlyStats, domain.RoleManager))

	mux.HandleFunc("/api/v1/bonus/preview", a.requireAuth(a.handleBonusPreview, anyRole...))
	mux.HandleFunc("/api/v1/bonus/settings", a.requireAuth(a.handleBonusSettings, anyRole...))

	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, domain.RoleManager))
	mux.HandleFunc("/api/v1/users/employees", a.requireAuth(a.handleEmployeeAccounts, domain.RoleManager))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, codeForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

// ownEmployeeID resolves the employee a request acts on. Employees may only
// act on themselves; an empty id defaults to the caller's own.
func ownEmployeeID(w http.ResponseWriter, r *http.Request, requested string) (string, bool) {
	requested = strings.TrimSpace(requested)
	actor, _ := service.ActorFromContext(r.Context())
	if actor.Role == domain.RoleManager {
		return requested, true
	}
	if actor.EmployeeID == "" {
		writeError(w, http.StatusForbidden, codeForbidden, errors.New("account is not linked to an employee"))
		return "", false
	}
	if requested == "" {
		return actor.EmployeeID, true
	}
	if requested != actor.EmployeeID {
		writeError(w, http.StatusForbidden, codeForbidden, errors.New("employees may only act on their own records"))
		return "", false
	}
	return requested, true
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, codeRateLimited, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, err)
		return
	}

	writeOK(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token for the X-CSRF-Token header of mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF enforces token validation for POST/PUT/PATCH.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, codeForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleClockIn(w http.ResponseWriter, r *http.Request) {
	a.handleClock(w, r, "clockIn", a.service.ClockIn)
}

func (a *API) handleClockOut(w http.ResponseWriter, r *http.Request) {
	a.handleClock(w, r, "clockOut", a.service.ClockOut)
}

func (a *API) handleClock(w http.ResponseWriter, r *http.Request, operation string, clock func(ctx context.Context, req domain.ClockRequest) (domain.ClockResult, error)) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.clockLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, codeRateLimited, errors.New("too many clock attempts"))
		return
	}

	var req domain.ClockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	employeeID, ok := ownEmployeeID(w, r, req.EmployeeID)
	if !ok {
		return
	}
	req.EmployeeID = employeeID

	result, err := clock(r.Context(), req)
	if err != nil {
		a.writeFailure(w, operation, err, zap.String("employee_id", req.EmployeeID), zap.String("store_name", req.StoreName))
		return
	}
	writeOK(w, http.StatusCreated, result)
}

func (a *API) handleAttendanceHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	employeeID, ok := ownEmployeeID(w, r, q.Get("employee_id"))
	if !ok {
		return
	}

	history, err := a.service.AttendanceHistory(r.Context(), domain.AttendanceHistoryQuery{
		EmployeeID: employeeID,
		From:       q.Get("from"),
		To:         q.Get("to"),
		Limit:      parsePositiveLimit(q.Get("limit"), 100, 500),
	})
	if err != nil {
		a.writeFailure(w, "getAttendanceHistory", err, zap.String("employee_id", employeeID))
		return
	}
	writeOK(w, http.StatusOK, history)
}

func (a *API) handleTodayStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	employeeID, ok := ownEmployeeID(w, r, r.URL.Query().Get("employee_id"))
	if !ok {
		return
	}

	status, err := a.service.TodayStatus(r.Context(), employeeID)
	if err != nil {
		a.writeFailure(w, "todayStatus", err, zap.String("employee_id", employeeID))
		return
	}
	writeOK(w, http.StatusOK, status)
}

func (a *API) handleLateMinutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	employeeID, ok := ownEmployeeID(w, r, q.Get("employee_id"))
	if !ok {
		return
	}
	year, month, ok := parseYearMonth(w, q.Get("year"), q.Get("month"))
	if !ok {
		return
	}

	summary, err := a.service.MonthlyLateMinutes(r.Context(), employeeID, year, month)
	if err != nil {
		a.writeFailure(w, "monthlyLateMinutes", err, zap.String("employee_id", employeeID))
		return
	}
	writeOK(w, http.StatusOK, summary)
}

func (a *API) handleRevenueSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.RevenueSubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	employeeID, ok := ownEmployeeID(w, r, req.EmployeeID)
	if !ok {
		return
	}
	req.EmployeeID = employeeID

	record, err := a.service.SubmitRevenue(r.Context(), req)
	if err != nil {
		a.writeFailure(w, "submitRevenue", err,
			zap.String("employee_id", req.EmployeeID),
			zap.String("business_date", req.BusinessDate),
			zap.String("store_name", req.StoreName))
		return
	}
	writeOK(w, http.StatusCreated, record)
}

// handleRevenueActions serves /api/v1/revenue/{id}: GET for the owner or a
// manager, PATCH for managers only.
func (a *API) handleRevenueActions(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/revenue/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, service.CodeNotFound, errors.New("route not found"))
		return
	}
	actor, _ := service.ActorFromContext(r.Context())

	switch r.Method {
	case http.MethodGet:
		record, err := a.service.GetRevenue(r.Context(), id)
		if err != nil {
			a.writeFailure(w, "getRevenue", err, zap.String("id", id))
			return
		}
		if actor.Role != domain.RoleManager && record.EmployeeID != actor.EmployeeID {
			writeError(w, http.StatusForbidden, codeForbidden, errors.New("employees may only act on their own records"))
			return
		}
		writeOK(w, http.StatusOK, record)
	case http.MethodPatch:
		if actor.Role != domain.RoleManager {
			writeError(w, http.StatusForbidden, codeForbidden, errors.New("forbidden role"))
			return
		}
		var patch domain.RevenuePatch
		if err := decodeJSON(r, &patch); err != nil {
			writeBadRequest(w, err)
			return
		}
		record, err := a.service.UpdateRevenue(r.Context(), id, patch)
		if err != nil {
			a.writeFailure(w, "updateRevenue", err, zap.String("id", id))
			return
		}
		writeOK(w, http.StatusOK, record)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	stats, err := a.service.DailyRevenueStats(r.Context(), q.Get("date"), q.Get("store_name"))
	if err != nil {
		a.writeFailure(w, "getDailyRevenueStats", err, zap.String("date", q.Get("date")))
		return
	}
	writeOK(w, http.StatusOK, stats)
}

func (a *API) handleMonthlyStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	year, month, ok := parseYearMonth(w, q.Get("year"), q.Get("month"))
	if !ok {
		return
	}
	stats, err := a.service.MonthlyRevenueStats(r.Context(), year, month, q.Get("store_name"))
	if err != nil {
		a.writeFailure(w, "getMonthlyRevenueStats", err, zap.Int("year", year), zap.Int("month", month))
		return
	}
	writeOK(w, http.StatusOK, stats)
}

func (a *API) handleBonusPreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.BonusPreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	employeeID, ok := ownEmployeeID(w, r, req.EmployeeID)
	if !ok {
		return
	}
	req.EmployeeID = employeeID

	result := a.service.CalculateBonus(r.Context(), req)
	if !result.Success {
		writeEnvelope(w, http.StatusBadRequest, domain.Envelope{
			Success: false,
			Code:    service.CodeValidation,
			Message: result.Message,
			Data:    result,
		})
		return
	}
	writeOK(w, http.StatusOK, result)
}

func (a *API) handleBonusSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	settings, err := a.service.BonusSettings(r.Context())
	if err != nil {
		a.writeFailure(w, "getBonusSettings", err)
		return
	}
	writeOK(w, http.StatusOK, settings)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	logs, err := a.service.ListAuditLogs(r.Context(), q.Get("date"), parsePositiveLimit(q.Get("limit"), 100, 500))
	if err != nil {
		a.writeFailure(w, "listAuditLogs", err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"audit_logs": logs})
}

func (a *API) handleEmployeeAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeOK(w, http.StatusOK, map[string]any{"accounts": a.auth.ListAccounts(r.Context())})
	case http.MethodPost:
		var req domain.AccountCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, err)
			return
		}
		if _, err := a.service.GetEmployee(r.Context(), req.EmployeeID); err != nil {
			a.writeFailure(w, "createEmployeeAccount", err, zap.String("employee_id", req.EmployeeID))
			return
		}
		account, err := a.auth.CreateEmployeeAccount(r.Context(), req)
		if err != nil {
			if errors.Is(err, errUsernameTaken) {
				writeError(w, http.StatusConflict, "DUPLICATE_USERNAME", err)
				return
			}
			writeBadRequest(w, err)
			return
		}
		writeOK(w, http.StatusCreated, account)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		a.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("latency", time.Since(startedAt)))
	})
}

func parseYearMonth(w http.ResponseWriter, rawYear string, rawMonth string) (int, int, bool) {
	var year, month int
	var fields []domain.FieldError
	if v := strings.TrimSpace(rawYear); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			fields = append(fields, domain.FieldError{Field: "year", Message: "must be a number"})
		}
		year = parsed
	}
	if v := strings.TrimSpace(rawMonth); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			fields = append(fields, domain.FieldError{Field: "month", Message: "must be a number"})
		}
		month = parsed
	}
	if len(fields) > 0 {
		writeEnvelope(w, http.StatusBadRequest, domain.Envelope{
			Code:    service.CodeValidation,
			Message: "invalid query parameters",
			Errors:  fields,
		})
		return 0, 0, false
	}
	return year, month, true
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

// statusFor maps an envelope code to the HTTP status it is served with.
func statusFor(code string) int {
	switch code {
	case service.CodeValidation:
		return http.StatusBadRequest
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeDuplicateClockIn, service.CodeDuplicateClockOut,
		service.CodeMissingClockIn, service.CodeDuplicateRevenueRecord:
		return http.StatusConflict
	case service.CodeOutOfRange:
		return http.StatusUnprocessableEntity
	case service.CodeLockTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure converts a service error to its envelope. System errors are
// logged with the operation and input fields; the client only sees a generic message.
func (a *API) writeFailure(w http.ResponseWriter, operation string, err error, fields ...zap.Field) {
	env := service.Envelope(nil, err)
	status := statusFor(env.Code)
	if status >= 500 {
		fields = append(fields,
			zap.String("operation", operation),
			zap.String("severity", severityFor(env.Code)),
			zap.Error(err))
		a.log.Error("ledger operation failed", fields...)
	}
	writeEnvelope(w, status, env)
}

func severityFor(code string) string {
	if code == service.CodeLockTimeout {
		return "medium"
	}
	return "high"
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, errors.New("method not allowed"))
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, service.CodeValidation, err)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeEnvelope(w, status, domain.Envelope{Success: false, Code: code, Message: msg})
}

func writeOK(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, service.Envelope(data, nil))
}

func writeEnvelope(w http.ResponseWriter, status int, env domain.Envelope) {
	writeJSON(w, status, env)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
