package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tasktracker/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func newTestRouter(t *testing.T) (*gin.Engine, *TokenManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Task{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	tokens := NewTokenManager("test-secret", time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(db, tokens, nil, logger)

	r := gin.New()
	r.POST("/api/register", h.Register)
	r.POST("/api/login", h.Login)
	return r, tokens
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegister_Success(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/register",
		map[string]string{"username": "alice", "password": "secret1"})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Message string `json:"message"`
		UserID  uint   `json:"user_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "User registered successfully" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
	if resp.UserID == 0 {
		t.Fatalf("expected user_id in response")
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	r, _ := newTestRouter(t)

	if w := doJSON(t, r, http.MethodPost, "/api/register",
		map[string]string{"username": "alice", "password": "secret1"}); w.Code != http.StatusCreated {
		t.Fatalf("first register failed: %d", w.Code)
	}

	w := doJSON(t, r, http.MethodPost, "/api/register",
		map[string]string{"username": "alice", "password": "different1"})

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "Username already exists" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
}

func TestRegister_ShortPassword(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/register",
		map[string]string{"username": "alice", "password": "123"})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "Password must be at least 6 characters" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
}

func TestRegister_MissingFields(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, body := range []map[string]string{
		{},
		{"username": "alice"},
		{"password": "secret1"},
	} {
		w := doJSON(t, r, http.MethodPost, "/api/register", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %v: expected 400, got %d", body, w.Code)
		}
	}
}

func TestLogin_Success(t *testing.T) {
	r, tokens := newTestRouter(t)

	if w := doJSON(t, r, http.MethodPost, "/api/register",
		map[string]string{"username": "alice", "password": "secret1"}); w.Code != http.StatusCreated {
		t.Fatalf("register failed: %d", w.Code)
	}

	w := doJSON(t, r, http.MethodPost, "/api/login",
		map[string]string{"username": "alice", "password": "secret1"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Message string `json:"message"`
		Token   string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "Login successful" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
	if _, err := tokens.Verify(resp.Token); err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
}

func TestLogin_BadCredentialsIndistinguishable(t *testing.T) {
	r, _ := newTestRouter(t)

	if w := doJSON(t, r, http.MethodPost, "/api/register",
		map[string]string{"username": "alice", "password": "secret1"}); w.Code != http.StatusCreated {
		t.Fatalf("register failed: %d", w.Code)
	}

	wrongPassword := doJSON(t, r, http.MethodPost, "/api/login",
		map[string]string{"username": "alice", "password": "wrongpass"})
	unknownUser := doJSON(t, r, http.MethodPost, "/api/login",
		map[string]string{"username": "nobody", "password": "secret1"})

	if wrongPassword.Code != http.StatusUnauthorized || unknownUser.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", wrongPassword.Code, unknownUser.Code)
	}
	if wrongPassword.Body.String() != unknownUser.Body.String() {
		t.Fatalf("responses must be identical: %q vs %q",
			wrongPassword.Body.String(), unknownUser.Body.String())
	}
}

func TestLogin_MissingFields(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/login", map[string]string{"username": "alice"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
