package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lumichat/agent-queue/internal/middleware"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims *middleware.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAuthValidToken(t *testing.T) {
	var gotAgentID, gotAgentCode string
	handler := middleware.Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgentID = middleware.GetAgentID(r.Context())
		gotAgentCode = middleware.GetAgentCode(r.Context())
	}))

	signed := signToken(t, &middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "agent-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		AgentCode: "A1",
		Scopes:    []string{"queue:read"},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotAgentID != "agent-1" || gotAgentCode != "A1" {
		t.Fatalf("context not populated: id=%q code=%q", gotAgentID, gotAgentCode)
	}
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	handler := middleware.Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	handler := middleware.Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	signed := signToken(t, &middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "agent-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRejectsWrongSecret(t *testing.T) {
	handler := middleware.Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "agent-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireScope(t *testing.T) {
	handler := middleware.Auth(testSecret)(
		middleware.RequireScope("queue:write")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})),
	)

	signed := signToken(t, &middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "agent-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scopes: []string{"queue:read"},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/c1/read", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without scope, got %d", rec.Code)
	}
}

func TestValidateConversationID(t *testing.T) {
	if err := middleware.ValidateConversationID("chat-123"); err != nil {
		t.Fatalf("expected valid id, got %v", err)
	}
	if err := middleware.ValidateConversationID(""); err == nil {
		t.Fatal("expected error for empty id")
	}
}
