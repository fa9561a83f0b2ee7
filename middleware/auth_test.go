package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/AnTengye/contractgraph/config"
	"github.com/AnTengye/contractgraph/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testAuth = &config.AuthConfig{
	JWTSecret:        "test-secret-key",
	TokenExpireHours: 24,
}

func signClaims(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return s
}

func TestGenerateToken(t *testing.T) {
	token, expiresAt, err := GenerateToken("alice", "acme", testAuth)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if token == "" {
		t.Error("Expected non-empty token")
	}

	expectedExpiry := time.Now().Add(24 * time.Hour)
	if expiresAt.Before(expectedExpiry.Add(-time.Minute)) || expiresAt.After(expectedExpiry.Add(time.Minute)) {
		t.Errorf("Expiry time %v is not within expected range of %v", expiresAt, expectedExpiry)
	}

	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(testAuth.JWTSecret), nil
	}); err != nil {
		t.Fatalf("Failed to parse token: %v", err)
	}
	if claims.Tenant != "acme" || claims.Subject != "alice" {
		t.Errorf("Unexpected claims %+v", claims)
	}
}

func TestAuthMiddleware(t *testing.T) {
	token, _, err := GenerateToken("alice", "acme", testAuth)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	future := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"missing scheme", token, http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"invalid token", "Bearer invalid.token.here", http.StatusUnauthorized},
		{
			"wrong secret",
			"Bearer " + signClaims(t, jwt.SigningMethodHS256, []byte("other"), Claims{Username: "alice", Tenant: "acme", RegisteredClaims: future}),
			http.StatusUnauthorized,
		},
		{
			"other signing method",
			"Bearer " + signClaims(t, jwt.SigningMethodHS512, []byte(testAuth.JWTSecret), Claims{Username: "alice", Tenant: "acme", RegisteredClaims: future}),
			http.StatusUnauthorized,
		},
		{
			"no tenant",
			"Bearer " + signClaims(t, jwt.SigningMethodHS256, []byte(testAuth.JWTSecret), Claims{Username: "alice", RegisteredClaims: future}),
			http.StatusUnauthorized,
		},
		{
			"expired",
			"Bearer " + signClaims(t, jwt.SigningMethodHS256, []byte(testAuth.JWTSecret), Claims{
				Username: "alice", Tenant: "acme",
				RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
			}),
			http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(AuthMiddleware(testAuth))
			router.GET("/test", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"message": "ok"})
			})

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestAuthMiddlewareSetsIdentity(t *testing.T) {
	token, _, _ := GenerateToken("alice", "acme", testAuth)

	var gotTenant, gotUser, ctxTenant, ctxUser string
	router := gin.New()
	router.Use(AuthMiddleware(testAuth))
	router.GET("/test", func(c *gin.Context) {
		gotTenant, gotUser = GetTenant(c), GetUsername(c)
		ctxTenant, _ = c.Request.Context().Value(logger.TenantKey).(string)
		ctxUser, _ = c.Request.Context().Value(logger.UsernameKey).(string)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(httptest.NewRecorder(), req)

	if gotTenant != "acme" || gotUser != "alice" {
		t.Errorf("Expected acme/alice on gin context, got %q/%q", gotTenant, gotUser)
	}
	if ctxTenant != "acme" || ctxUser != "alice" {
		t.Errorf("Expected acme/alice on request context, got %q/%q", ctxTenant, ctxUser)
	}
}

func TestGetUsernameAndTenant(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if GetUsername(c) != "" || GetTenant(c) != "" {
		t.Error("Expected empty strings when unset")
	}

	c.Set("username", "alice")
	c.Set("tenant", "acme")
	if GetUsername(c) != "alice" {
		t.Errorf("Expected 'alice', got '%s'", GetUsername(c))
	}
	if GetTenant(c) != "acme" {
		t.Errorf("Expected 'acme', got '%s'", GetTenant(c))
	}

	c.Set("tenant", 42)
	if GetTenant(c) != "" {
		t.Error("Expected empty string for non-string tenant")
	}
}

func TestParseToken(t *testing.T) {
	token, _, err := GenerateToken("alice", "acme", testAuth)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	claims, err := ParseToken(token, testAuth)
	if err != nil {
		t.Fatalf("Failed to parse token: %v", err)
	}
	if claims.Username != "alice" || claims.Tenant != "acme" {
		t.Errorf("Unexpected claims %+v", claims)
	}

	noExpiry := signClaims(t, jwt.SigningMethodHS256, []byte(testAuth.JWTSecret), Claims{Username: "alice", Tenant: "acme"})
	noTenant := signClaims(t, jwt.SigningMethodHS256, []byte(testAuth.JWTSecret), Claims{
		Username:         "alice",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	for name, bad := range map[string]string{"garbage": "not-a-token", "no expiry": noExpiry, "no tenant": noTenant} {
		if _, err := ParseToken(bad, testAuth); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}
