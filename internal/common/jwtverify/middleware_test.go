package jwtverify

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AlibekovAA/webpush-relay/internal/common/logger"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestParseToken(t *testing.T) {
	valid := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub": "u1", "usr": "alice", "sid": "tok-a",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	claims, err := ParseToken(valid, []byte(testSecret))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if claims.UserID != "u1" || claims.Username != "alice" || claims.SessionID != "tok-a" {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "wrong secret",
			token: sign(t, jwt.SigningMethodHS256, []byte("another-secret-another-secret-xx"), jwt.MapClaims{"sub": "u1", "usr": "alice"}),
		},
		{
			name:  "expired",
			token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u1", "usr": "alice", "exp": time.Now().Add(-time.Hour).Unix()}),
		},
		{
			name:  "other hmac method",
			token: sign(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"sub": "u1", "usr": "alice"}),
		},
		{
			name:  "missing usr",
			token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u1"}),
		},
		{
			name:  "garbage",
			token: "not.a.token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, []byte(testSecret)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws/push?token=from-query", nil)
	if token, ok := ExtractToken(r); !ok || token != "from-query" {
		t.Errorf("expected query token, got %q ok=%v", token, ok)
	}

	r.Header.Set("Authorization", "Bearer from-header")
	if token, ok := ExtractToken(r); !ok || token != "from-header" {
		t.Errorf("expected header token to win, got %q ok=%v", token, ok)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic abc")
	if _, ok := ExtractTokenFromHeader(r); ok {
		t.Error("expected non-bearer header rejected")
	}
}

func TestMiddleware(t *testing.T) {
	log := logger.NewWithWriter(io.Discard, "test", "DEBUG")
	var seen Claims
	handler := Middleware(testSecret, log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without header, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u1", "usr": "alice", "sid": "tok-a"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seen.SessionID != "tok-a" {
		t.Errorf("expected claims in context, got %+v", seen)
	}
}
