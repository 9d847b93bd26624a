package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthMiddleware_NoToken(t *testing.T) {
	secret := []byte("test-secret")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cash/registers", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ViewerForbiddenTransactionPost(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "user-1", "viewer")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cash/transactions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_CashierForbiddenRegisterExport(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "user-1", "cashier")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cash/registers/3/export.pdf", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_IdentityInContext(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "user-42", "cashier")
	mw := NewMiddleware(secret, NewDefaultPolicy([]string{"/healthz"}, nil))
	var subject string
	var role Role
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = SubjectFromContext(r.Context())
		role = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/invoices", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if subject != "user-42" || role != RoleCashier {
		t.Fatalf("unexpected identity %q/%q", subject, role)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected exempt path to pass, got %d", resp.Code)
	}
}

func mustToken(t *testing.T, secret []byte, subject, role string) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestPolicy_RequiredRole(t *testing.T) {
	policy := NewDefaultPolicy([]string{"/healthz"}, nil)
	cases := []struct {
		method string
		path   string
		want   Role
		ok     bool
	}{
		{http.MethodGet, "/api/v1/cash/registers/open", RoleViewer, true},
		{http.MethodPost, "/api/v1/cash/open", RoleCashier, true},
		{http.MethodPost, "/api/v1/cash/transactions", RoleCashier, true},
		{http.MethodGet, "/api/v1/cash/registers/3/export.xlsx", RoleManager, true},
		{http.MethodGet, "/api/v1/documents/invoices?year=2025", RoleViewer, true},
		{http.MethodPost, "/api/v1/documents/invoices", RoleCashier, true},
		{http.MethodGet, "/metrics", "", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		got, ok := policy.RequiredRole(req)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("%s %s: expected %q/%v, got %q/%v", tc.method, tc.path, tc.want, tc.ok, got, ok)
		}
	}
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" Manager ")
	if !ok || role != RoleManager {
		t.Fatalf("expected manager, got %q/%v", role, ok)
	}
	if _, ok := ParseRole("admin"); ok {
		t.Fatalf("expected unknown role to be rejected")
	}
	if !RoleManager.Satisfies(RoleCashier) || RoleViewer.Satisfies(RoleCashier) || Role("").Satisfies(RoleViewer) {
		t.Fatalf("unexpected role ordering")
	}
}
