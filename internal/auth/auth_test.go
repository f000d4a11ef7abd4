package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ict-engine/internal/logging"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, err := m.GenerateAccessToken(OperatorClaims{Username: "ops", Role: RoleOperator})
	if err != nil {
		t.Fatal(err)
	}
	claims, err := m.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.Username != "ops" || claims.Role != RoleOperator {
		t.Errorf("Unexpected claims %+v", claims)
	}
	if m.GetAccessTokenDuration() != 3600 {
		t.Errorf("Expected 3600s, got %d", m.GetAccessTokenDuration())
	}
}

func TestJWTRejects(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	token, _ := m.GenerateAccessToken(OperatorClaims{Username: "ops"})

	other := NewJWTManager("different", time.Minute)
	if _, err := other.ValidateAccessToken(token); err != ErrInvalidToken {
		t.Errorf("Wrong secret: expected ErrInvalidToken, got %v", err)
	}

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := m.ValidateAccessToken(token); err != ErrTokenExpired {
		t.Errorf("Expired token: expected ErrTokenExpired, got %v", err)
	}

	if _, err := other.ValidateAccessToken("not-a-token"); err != ErrInvalidToken {
		t.Errorf("Garbage: expected ErrInvalidToken, got %v", err)
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter22", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if !VerifyPassword("hunter22", hash) {
		t.Error("Expected the password to verify")
	}
	if VerifyPassword("wrong", hash) || VerifyPassword("hunter22", "") {
		t.Error("Expected verification to fail")
	}
}

func newRouter(t *testing.T, cfg Config) (*gin.Engine, *JWTManager) {
	t.Helper()
	jwt := NewJWTManager(cfg.JWTSecret, time.Hour)
	h := NewHandlers(cfg, jwt, logging.Nop())

	r := gin.New()
	r.POST("/api/auth/token", h.IssueToken)
	protected := r.Group("/api", Middleware(jwt))
	protected.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"operator": GetOperator(c)})
	})
	return r, jwt
}

func TestIssueTokenAndMiddleware(t *testing.T) {
	hash, _ := HashPassword("s3cret-pass", bcrypt.MinCost)
	cfg := Config{Enabled: true, JWTSecret: "k", OperatorUser: "operator", OperatorPasswordHash: hash}
	r, _ := newRouter(t, cfg)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"valid", `{"username":"operator","password":"s3cret-pass"}`, http.StatusOK},
		{"wrong password", `{"username":"operator","password":"nope"}`, http.StatusUnauthorized},
		{"wrong user", `{"username":"root","password":"s3cret-pass"}`, http.StatusUnauthorized},
		{"missing fields", `{}`, http.StatusBadRequest},
	}
	var token string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/token", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantCode == http.StatusOK {
				var resp TokenResponse
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatal(err)
				}
				token = resp.AccessToken
			}
		})
	}

	if token == "" {
		t.Fatal("No token issued")
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Authorized request failed: %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/whoami?token="+token, nil))
	if w.Code != http.StatusOK {
		t.Errorf("Query token should be accepted, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/whoami", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Missing token should be rejected, got %d", w.Code)
	}
}

func TestIssueToken_Disabled(t *testing.T) {
	r, _ := newRouter(t, Config{Enabled: false})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/token", bytes.NewBufferString(`{"username":"a","password":"b"}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 when auth disabled, got %d", w.Code)
	}
}

func TestMiddleware_NilManagerPassesThrough(t *testing.T) {
	r := gin.New()
	r.GET("/x", Middleware(nil), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected pass-through, got %d", w.Code)
	}
}
