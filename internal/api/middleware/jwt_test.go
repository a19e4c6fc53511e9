package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tasktracker/internal/api/auth"
	"tasktracker/internal/pkg/seclog"

	"github.com/gin-gonic/gin"
)

func newAuthedRouter(t *testing.T, tokens *auth.TokenManager, events *seclog.Logger) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", AuthMiddleware(tokens, events), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c)})
	})
	return r
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	r := newAuthedRouter(t, tokens, nil)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Token is missing") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	token := issueWithTTL(t, "test-secret", -time.Minute)

	logPath := filepath.Join(t.TempDir(), "security.log")
	events, err := seclog.New(logPath, nil)
	if err != nil {
		t.Fatalf("open seclog: %v", err)
	}
	defer events.Close()

	r := newAuthedRouter(t, tokens, events)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Token expired") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read seclog: %v", err)
	}
	if !strings.Contains(string(data), "Expired token used") {
		t.Fatalf("expected security event, got: %s", data)
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	tokens := auth.NewTokenManager("test-secret", time.Hour)

	logPath := filepath.Join(t.TempDir(), "security.log")
	events, err := seclog.New(logPath, nil)
	if err != nil {
		t.Fatalf("open seclog: %v", err)
	}
	defer events.Close()

	r := newAuthedRouter(t, tokens, events)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer garbage.token.here")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Invalid token") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read seclog: %v", err)
	}
	if !strings.Contains(string(data), "Invalid token attempt") {
		t.Fatalf("expected security event, got: %s", data)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	token, err := tokens.Issue(7)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	r := newAuthedRouter(t, tokens, nil)

	for _, header := range []string{"Bearer " + token, token} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("header %q: expected 200, got %d", header, w.Code)
		}
		if !strings.Contains(w.Body.String(), `"user_id":7`) {
			t.Fatalf("header %q: unexpected body: %s", header, w.Body.String())
		}
	}
}

func issueWithTTL(t *testing.T, secret string, ttl time.Duration) string {
	t.Helper()
	m := auth.NewTokenManager(secret, time.Hour)
	token, err := m.IssueWithTTL(1, ttl)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	return token
}
