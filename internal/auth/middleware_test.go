package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func mustToken(t *testing.T, role string, expiresAt time.Time) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func wrapped(t *testing.T) (http.Handler, *bool) {
	t.Helper()
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})
	policy := NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	return NewMiddleware(testSecret, policy).Wrap(next), &reached
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	handler, reached := wrapped(t)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/devices/dev-1/latest", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	if *reached {
		t.Fatal("handler reached without token")
	}
}

func TestMiddlewareAcceptsViewerToken(t *testing.T) {
	handler, reached := wrapped(t)

	req := httptest.NewRequest(http.MethodGet, "/devices/dev-1/latest", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, "viewer", time.Now().Add(time.Hour)))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if !*reached {
		t.Fatal("handler not reached with valid token")
	}
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	handler, _ := wrapped(t)

	req := httptest.NewRequest(http.MethodGet, "/devices/dev-1/latest", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, "viewer", time.Now().Add(-time.Hour)))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestMiddlewareRejectsUnknownRole(t *testing.T) {
	handler, _ := wrapped(t)

	req := httptest.NewRequest(http.MethodGet, "/devices/dev-1/latest", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, "superuser", time.Now().Add(time.Hour)))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestMiddlewareRejectsWrongSecret(t *testing.T) {
	handler, _ := wrapped(t)

	claims := Claims{Role: "viewer", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/devices/dev-1/latest", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestMiddlewareExemptPath(t *testing.T) {
	handler, reached := wrapped(t)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if !*reached {
		t.Fatal("exempt path blocked")
	}
}

func TestMiddlewareIdentityInContext(t *testing.T) {
	var gotRole Role
	var gotSubject string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRole = RoleFromContext(r.Context())
		gotSubject = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	policy := NewDefaultPolicy(nil, nil)
	handler := NewMiddleware(testSecret, policy).Wrap(next)

	req := httptest.NewRequest(http.MethodGet, "/devices/dev-1/history", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, "Admin", time.Now().Add(time.Hour)))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if gotRole != RoleAdmin {
		t.Fatalf("role: expected admin, got %q", gotRole)
	}
	if gotSubject != "user-1" {
		t.Fatalf("subject: got %q", gotSubject)
	}
}

func TestRoleAtLeast(t *testing.T) {
	if !RoleAtLeast(RoleAdmin, RoleViewer) {
		t.Fatal("admin should satisfy viewer")
	}
	if RoleAtLeast(RoleViewer, RoleOperator) {
		t.Fatal("viewer should not satisfy operator")
	}
	if RoleAtLeast("", RoleViewer) {
		t.Fatal("unknown role should not satisfy viewer")
	}
}
