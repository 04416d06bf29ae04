package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultRateLimitConfig(t *testing.T) {
	config := DefaultRateLimitConfig()

	assert.Equal(t, 100, config.Requests)
	assert.Equal(t, time.Minute, config.Window)
	require.NotNil(t, config.KeyFunc)
	require.NotNil(t, config.SkipFunc)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()

	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/chat/sessions", nil)
	assert.NotEmpty(t, config.KeyFunc(c))
	assert.False(t, config.SkipFunc(c))

	probe, _ := gin.CreateTestContext(w)
	probe.Request = httptest.NewRequest(http.MethodGet, "/health", nil)
	assert.True(t, config.SkipFunc(probe))

	live, _ := gin.CreateTestContext(w)
	live.Request = httptest.NewRequest(http.MethodGet, "/live", nil)
	assert.True(t, config.SkipFunc(live))
}

func TestNewRateLimiter(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimitConfig(), nil, nil)
	require.NotNil(t, rl)
	assert.NotNil(t, rl.localMap)
	assert.NotNil(t, rl.logger)
}

func setupRateLimitRouter(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func TestRateLimiterMiddlewareRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	config := RateLimitConfig{
		Requests: 2,
		Window:   time.Minute,
		KeyFunc:  func(c *gin.Context) string { return "test-client" },
		SkipFunc: func(c *gin.Context) bool { return false },
	}
	rl := NewRateLimiter(config, client, zap.NewNop())
	router := setupRateLimitRouter(rl)

	t.Run("allows requests within limit", func(t *testing.T) {
		require.NoError(t, rl.Reset(context.Background(), "test-client"))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get(RateLimitHeader))
		assert.Equal(t, "1", w.Header().Get(RateLimitRemainingHeader))
		assert.NotEmpty(t, w.Header().Get(RateLimitResetHeader))
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		require.NoError(t, rl.Reset(context.Background(), "test-client"))

		for i := 0; i < 2; i++ {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "0", w.Header().Get(RateLimitRemainingHeader))
	})

	t.Run("window expiry frees the budget", func(t *testing.T) {
		require.NoError(t, rl.Reset(context.Background(), "test-client"))

		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		}
		mr.FastForward(2 * time.Minute)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRateLimiterSkipFunc(t *testing.T) {
	config := RateLimitConfig{
		Requests: 1,
		Window:   time.Minute,
		KeyFunc:  func(c *gin.Context) string { return "skip-test" },
		SkipFunc: func(c *gin.Context) bool { return c.Request.URL.Path == "/test" },
	}
	rl := NewRateLimiter(config, nil, zap.NewNop())
	router := setupRateLimitRouter(rl)

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get(RateLimitHeader))
	}
}

func TestCheckAndUpdateLocal(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Requests: 3, Window: time.Minute}, nil, zap.NewNop())
	key := "test-local-key"

	allowed, remaining, resetTime, err := rl.checkAndUpdateLocal(key)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 2, remaining)
	assert.False(t, resetTime.IsZero())

	allowed, remaining, _, err = rl.checkAndUpdateLocal(key)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)

	allowed, remaining, _, err = rl.checkAndUpdateLocal(key)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 0, remaining)

	allowed, remaining, _, err = rl.checkAndUpdateLocal(key)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
}

func TestLocalWindowExpiry(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Requests: 1, Window: 50 * time.Millisecond}, nil, zap.NewNop())
	key := "expiry-test"

	allowed, _, _, err := rl.checkAndUpdateLocal(key)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, _, _ = rl.checkAndUpdateLocal(key)
	assert.False(t, allowed)

	time.Sleep(60 * time.Millisecond)

	allowed, _, _, err = rl.checkAndUpdateLocal(key)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestReset(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Requests: 2, Window: time.Minute}, nil, zap.NewNop())
	key := "reset-test"

	_, _, _, _ = rl.checkAndUpdateLocal(key)
	_, _, _, _ = rl.checkAndUpdateLocal(key)

	allowed, _, _, _ := rl.checkAndUpdateLocal(key)
	assert.False(t, allowed)

	require.NoError(t, rl.Reset(context.Background(), key))

	allowed, remaining, _, err := rl.checkAndUpdateLocal(key)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)
}
