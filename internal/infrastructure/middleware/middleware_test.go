package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"
	"studymesh/pkg/config"
	apperrors "studymesh/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubAuthProvider struct {
	users map[string]ports.CurrentUser
}

func (s *stubAuthProvider) Login(ctx context.Context, email, password string) (string, ports.CurrentUser, error) {
	return "", ports.CurrentUser{}, errors.New("not implemented")
}

func (s *stubAuthProvider) Signup(ctx context.Context, email, password, displayName string) (string, ports.CurrentUser, error) {
	return "", ports.CurrentUser{}, errors.New("not implemented")
}

func (s *stubAuthProvider) Logout(ctx context.Context, token string) error { return nil }

func (s *stubAuthProvider) Current(ctx context.Context, token string) (ports.CurrentUser, error) {
	if token == "" {
		return ports.CurrentUser{ID: "guest-1", DisplayName: "Guest", Guest: true}, nil
	}
	user, ok := s.users[token]
	if !ok {
		return ports.CurrentUser{}, errors.New("invalid token")
	}
	return user, nil
}

func echoUser(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"user_id": c.MustGet(ContextUserID),
		"guest":   c.MustGet(ContextGuest),
	})
}

func get(router *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := &stubAuthProvider{users: map[string]ports.CurrentUser{
		"tok-1": {ID: "u1", DisplayName: "Uma"},
	}}

	router := gin.New()
	router.GET("/", AuthMiddleware(auth), echoUser)

	w := get(router, "tok-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "u1")

	w = get(router, "bad-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(router, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", AuthMiddleware(&stubAuthProvider{}), echoUser)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOptionalAuthMiddleware_GuestFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", OptionalAuthMiddleware(&stubAuthProvider{}), echoUser)

	w := get(router, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "guest-1")
	assert.Contains(t, w.Body.String(), "true")
}

func TestErrorHandlerMiddleware_AppError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandlerMiddleware(zaptest.NewLogger(t).Sugar()))
	router.GET("/", func(c *gin.Context) {
		c.Error(apperrors.NewNotFound("room"))
	})

	w := get(router, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestErrorHandlerMiddleware_PlainError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandlerMiddleware(zaptest.NewLogger(t).Sugar()))
	router.GET("/", func(c *gin.Context) {
		c.Error(domain.ErrRoomNotFound)
	})

	w := get(router, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(zaptest.NewLogger(t).Sugar()))
	router.GET("/", func(c *gin.Context) {
		panic("boom")
	})

	w := get(router, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.RequestsPerSecond = 1
	cfg.RateLimiting.Burst = 2

	router := gin.New()
	router.Use(NewHTTPRateLimitMiddleware(cfg))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(router, "").Code)
	assert.Equal(t, http.StatusOK, get(router, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(router, "").Code)
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = false

	router := gin.New()
	router.Use(NewHTTPRateLimitMiddleware(cfg))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 20; i++ {
		require.Equal(t, http.StatusOK, get(router, "").Code)
	}
}
