package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const authTestSecret = "auth-test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(authTestSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func authHandler(requiredScopes ...string) http.Handler {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: authTestSecret}, nil)
	return auth.Middleware(requiredScopes...)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func doAuth(t *testing.T, handler http.Handler, bearer string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/pool", nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestMissingTokenRejected(t *testing.T) {
	if code := doAuth(t, authHandler(), ""); code != http.StatusUnauthorized {
		t.Fatalf("missing token: %d", code)
	}
}

func TestValidTokenAccepted(t *testing.T) {
	tok := signToken(t, jwt.MapClaims{
		"scope": ScopeUser,
		"exp":   float64(time.Now().Add(time.Hour).Unix()),
	})
	if code := doAuth(t, authHandler(ScopeUser), tok); code != http.StatusOK {
		t.Fatalf("valid token: %d", code)
	}
}

func TestScopeEnforced(t *testing.T) {
	tok := signToken(t, jwt.MapClaims{
		"scope": ScopeUser,
		"exp":   float64(time.Now().Add(time.Hour).Unix()),
	})
	if code := doAuth(t, authHandler(ScopeManager), tok); code != http.StatusForbidden {
		t.Fatalf("user token on manager route: %d", code)
	}

	both := signToken(t, jwt.MapClaims{
		"scope": ScopeUser + " " + ScopeManager,
		"exp":   float64(time.Now().Add(time.Hour).Unix()),
	})
	if code := doAuth(t, authHandler(ScopeManager), both); code != http.StatusOK {
		t.Fatalf("manager token: %d", code)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	tok := signToken(t, jwt.MapClaims{
		"scope": ScopeUser,
		"exp":   float64(time.Now().Add(-time.Hour).Unix()),
	})
	if code := doAuth(t, authHandler(ScopeUser), tok); code != http.StatusUnauthorized {
		t.Fatalf("expired token: %d", code)
	}
}

func TestWrongSecretRejected(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"scope": ScopeUser,
		"exp":   float64(time.Now().Add(time.Hour).Unix()),
	}).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if code := doAuth(t, authHandler(ScopeUser), signed); code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: %d", code)
	}
}
