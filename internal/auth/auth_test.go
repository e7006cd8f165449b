package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metaapi-trading-bot/config"
	"metaapi-trading-bot/internal/logging"
)

func newService(t *testing.T) *Service {
	t.Helper()
	hash, err := HashPassword("s3cret-pass", 4)
	require.NoError(t, err)

	svc, err := NewService(config.AuthConfig{
		Enabled:             true,
		JWTSecret:           "test-secret",
		OperatorUser:        "admin",
		OperatorPassHash:    hash,
		AccessTokenDuration: time.Hour,
	}, logging.Nop())
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresSecretWhenEnabled(t *testing.T) {
	_, err := NewService(config.AuthConfig{Enabled: true}, logging.Nop())
	assert.ErrorIs(t, err, ErrMissingSecret)

	svc, err := NewService(config.AuthConfig{}, logging.Nop())
	require.NoError(t, err)
	assert.False(t, svc.Enabled())
}

func TestLogin(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	token, err := svc.Login(ctx, LoginRequest{Username: "admin", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, int64(3600), token.ExpiresIn)

	claims, err := svc.GetJWTManager().ValidateAccessToken(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, RoleOperator, claims.Role)

	_, err = svc.Login(ctx, LoginRequest{Username: "admin", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, LoginRequest{Username: "root", Password: "s3cret-pass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginWithoutHashIsNotConfigured(t *testing.T) {
	svc, err := NewService(config.AuthConfig{Enabled: true, JWTSecret: "x", OperatorUser: "admin"}, logging.Nop())
	require.NoError(t, err)
	_, err = svc.Login(context.Background(), LoginRequest{Username: "admin", Password: "anything"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestExpiredToken(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	issued := time.Now().Add(-time.Hour)
	m.now = func() time.Time { return issued }
	token, err := m.GenerateAccessToken(OperatorClaims{Username: "admin", Role: RoleOperator})
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ValidateAccessToken(token.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = NewJWTManager("other", time.Minute).ValidateAccessToken(token.AccessToken)
	assert.Error(t, err)
}

func TestPasswordLimits(t *testing.T) {
	_, err := HashPassword(strings.Repeat("a", MaxPasswordLength+1), 4)
	assert.Error(t, err)
	assert.False(t, VerifyPassword("x", "not-a-hash"))
}

func protectedRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/auth/login", svc.LoginHandler)
	r.GET("/api/bot/status", svc.RequireOperator(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"operator": GetUsername(c)})
	})
	return r
}

func TestRequireOperator(t *testing.T) {
	svc := newService(t)
	r := protectedRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/bot/status", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/bot/status", nil)
	req.Header.Set("Authorization", "Token abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"username":"admin","password":"s3cret-pass"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	var token TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &token))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/bot/status", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"operator":"admin"}`, w.Body.String())
}

func TestLoginHandlerErrors(t *testing.T) {
	r := protectedRouter(newService(t))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"username":"admin","password":"nope"}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_CREDENTIALS")
}

func TestRequireOperatorDisabledPassesThrough(t *testing.T) {
	svc, err := NewService(config.AuthConfig{}, logging.Nop())
	require.NoError(t, err)
	r := protectedRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/bot/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
