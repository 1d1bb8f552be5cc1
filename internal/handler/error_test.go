package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/devro-ai/devro/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) JSONError {
	t.Helper()
	var body JSONError
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	return body
}

func TestErrorResponse_QuotaCarriesResetTime(t *testing.T) {
	resetAt := time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC)
	quotaErr := domain.DailyLimitExceeded("ledger.consume", resetAt)

	req := httptest.NewRequest("POST", "/api/generate", nil)
	rec := httptest.NewRecorder()
	ErrorResponse(rec, req, testLogger(), quotaErr)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("quota error status = %d, want 429", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Error.Code != domain.EQUOTADAILY {
		t.Errorf("code = %q, want %q", body.Error.Code, domain.EQUOTADAILY)
	}
	if body.Error.ResetAt != "2024-06-11T00:00:00Z" {
		t.Errorf("reset_at = %q, want RFC3339 reset time", body.Error.ResetAt)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("quota error should set Retry-After")
	}
}

func TestErrorResponse_InternalErrorHidesDetails(t *testing.T) {
	dbErr := &mockDatabaseError{message: "pq: relation \"accounts\" does not exist"}
	internalErr := domain.Internal(dbErr, "AccountStore.Get", "Database query failed")

	req := httptest.NewRequest("GET", "/api/profile", nil)
	rec := httptest.NewRecorder()
	ErrorResponse(rec, req, testLogger(), internalErr)

	body := rec.Body.String()
	if strings.Contains(body, "pq:") || strings.Contains(body, "relation") {
		t.Errorf("response exposes database error: %s", body)
	}
	if strings.Contains(body, "AccountStore") {
		t.Errorf("response exposes internal operation: %s", body)
	}
	if !strings.Contains(body, "internal error") {
		t.Errorf("response should contain generic message, got: %s", body)
	}
}

func TestErrorResponse_UnwrappedErrorReturnsGeneric(t *testing.T) {
	rawErr := &mockDatabaseError{message: "FATAL: password authentication failed for user \"postgres\""}

	req := httptest.NewRequest("GET", "/api/projects", nil)
	rec := httptest.NewRecorder()
	ErrorResponse(rec, req, testLogger(), rawErr)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "FATAL") || strings.Contains(body, "postgres") {
		t.Errorf("response exposes raw error: %s", body)
	}
}

func TestValidationErrorResponse_DoesNotExposeOperationName(t *testing.T) {
	ve := domain.NewValidationError("AccountService.Register", "email", "Email is required")

	req := httptest.NewRequest("POST", "/api/auth/signup", nil)
	rec := httptest.NewRecorder()
	ValidationErrorResponse(rec, req, testLogger(), ve)

	body := rec.Body.String()
	if strings.Contains(body, "AccountService") {
		t.Errorf("response exposes internal operation name: %s", body)
	}
	if !strings.Contains(body, "email") || !strings.Contains(body, "Email is required") {
		t.Errorf("response should contain field errors: %s", body)
	}
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.EUNAUTHORIZED, http.StatusUnauthorized},
		{domain.EFORBIDDEN, http.StatusForbidden},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ECONFLICT, http.StatusConflict},
		{domain.ERATELIMIT, http.StatusTooManyRequests},
		{domain.EQUOTADAILY, http.StatusTooManyRequests},
		{domain.EQUOTAMONTHLY, http.StatusTooManyRequests},
		{domain.EUNAVAILABLE, http.StatusServiceUnavailable},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{"something_else", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := ErrorCodeToHTTPStatus(tt.code); got != tt.want {
			t.Errorf("ErrorCodeToHTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

// mockDatabaseError simulates a database error for testing
type mockDatabaseError struct {
	message string
}

func (e *mockDatabaseError) Error() string {
	return e.message
}
