package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"marketplace-api/internal/services"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type stubValidator struct {
	claims *services.Claims
	err    error
	got    string
}

func (s *stubValidator) ValidateToken(token string) (*services.Claims, error) {
	s.got = token
	return s.claims, s.err
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestAuthentication(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		stub    *stubValidator
		status  int
		message string
	}{
		{"missing header", "", &stubValidator{}, http.StatusUnauthorized, "No token provided"},
		{"wrong scheme", "Basic abc", &stubValidator{}, http.StatusUnauthorized, "No token provided"},
		{"invalid token", "Bearer bad", &stubValidator{err: errors.New("expired")}, http.StatusUnauthorized, "Invalid token"},
		{"valid token", "Bearer good", &stubValidator{claims: &services.Claims{UserID: "u-1", Role: "seller", IsAdmin: true}}, http.StatusOK, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotID, gotRole string
			var gotAdmin bool
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotID, _ = GetUserID(r)
				gotRole, _ = GetUserRole(r)
				gotAdmin = IsAdmin(r)
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()

			Authentication(tc.stub, zerolog.Nop())(next).ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if tc.status != http.StatusOK {
				body := decodeError(t, rr)
				if body.Error != "unauthorized" || body.Message != tc.message {
					t.Fatalf("unexpected body %+v", body)
				}
				return
			}
			if tc.stub.got != "good" {
				t.Fatalf("expected token to be passed to validator, got %q", tc.stub.got)
			}
			if gotID != "u-1" || gotRole != "seller" || !gotAdmin {
				t.Fatalf("unexpected context identity %q %q %v", gotID, gotRole, gotAdmin)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name    string
		role    string
		isAdmin bool
		status  int
	}{
		{"buyer rejected", "buyer", false, http.StatusForbidden},
		{"seller allowed", "seller", false, http.StatusOK},
		{"admin buyer allowed", "buyer", true, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPut, "/api/orders/o-1/status", nil)
			req = req.WithContext(WithUser(req.Context(), "u-1", tc.role, tc.isAdmin))
			rr := httptest.NewRecorder()

			RequireRole("seller")(next).ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if tc.status == http.StatusForbidden && decodeError(t, rr).Error != "forbidden" {
				t.Fatalf("expected forbidden error code")
			}
		})
	}
}

func TestRequestValidation(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequestValidation()(next)

	req := httptest.NewRequest(http.MethodPost, "/api/cart/add", strings.NewReader("productId=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-JSON body, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/cart/add", strings.NewReader(`{"productId":"1"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected JSON body to pass, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected bodyless POST to pass, got %d", rr.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Hour), 1)
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited, got %d", rr.Code)
	}
	if decodeError(t, rr).Error != "rate_limit_exceeded" {
		t.Fatal("expected rate_limit_exceeded code")
	}
}

func TestErrorHandlingRecoversPanics(t *testing.T) {
	handler := ErrorHandling(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if decodeError(t, rr).Error != "internal_error" {
		t.Fatal("expected internal_error code")
	}
}

func TestRequestLoggingSetsRequestID(t *testing.T) {
	var seen string
	handler := RequestLogging(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.Write([]byte("ok"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rr.Header().Get("X-Request-ID") != seen {
		t.Fatalf("expected generated request id to be propagated, got %q / %q", seen, rr.Header().Get("X-Request-ID"))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if seen != "req-42" {
		t.Fatalf("expected incoming request id to be reused, got %q", seen)
	}
}

func TestPerformanceMonitoringSetsResponseTime(t *testing.T) {
	handler := PerformanceMonitoring(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Header().Get("X-Response-Time") == "" {
		t.Fatal("expected X-Response-Time header")
	}
}
