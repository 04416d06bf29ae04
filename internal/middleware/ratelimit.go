package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// RateLimitHeader is the header name for the request budget.
	RateLimitHeader = "X-RateLimit-Limit"
	// RateLimitRemainingHeader is the header name for remaining requests.
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
	// RateLimitResetHeader is the header name for the window reset timestamp.
	RateLimitResetHeader = "X-RateLimit-Reset"
)

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	// Requests allowed per window.
	Requests int
	// Window duration.
	Window time.Duration
	// KeyFunc extracts the throttling key from the request.
	KeyFunc func(*gin.Context) string
	// SkipFunc bypasses throttling for certain requests.
	SkipFunc func(*gin.Context) bool
}

// DefaultRateLimitConfig throttles per client IP and skips health probes.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Requests: 100,
		Window:   time.Minute,
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
		SkipFunc: func(c *gin.Context) bool {
			return c.Request.URL.Path == "/health" || c.Request.URL.Path == "/live"
		},
	}
}

// RateLimiter throttles requests using Redis when available, with an
// in-memory fallback so a Redis outage does not take the API down.
type RateLimiter struct {
	config RateLimitConfig
	redis  *redis.Client
	logger *zap.Logger

	mu       sync.Mutex
	localMap map[string]*rateLimitEntry
}

type rateLimitEntry struct {
	count     int
	resetTime time.Time
}

// NewRateLimiter creates a rate limiter. redisClient may be nil for
// single-instance deployments; a nil logger falls back to no-op.
func NewRateLimiter(config RateLimitConfig, redisClient *redis.Client, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		config:   config,
		redis:    redisClient,
		logger:   logger,
		localMap: make(map[string]*rateLimitEntry),
	}
}

// Middleware returns the gin handler enforcing the limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.config.SkipFunc != nil && rl.config.SkipFunc(c) {
			c.Next()
			return
		}

		key := rl.config.KeyFunc(c)
		allowed, remaining, resetTime, err := rl.checkAndUpdate(c.Request.Context(), key)
		if err != nil {
			// Fail open: a broken limiter must not block traffic.
			rl.logger.Error("rate limit check failed", zap.Error(err), zap.String("key", key))
			c.Next()
			return
		}

		c.Header(RateLimitHeader, strconv.Itoa(rl.config.Requests))
		c.Header(RateLimitRemainingHeader, strconv.Itoa(remaining))
		c.Header(RateLimitResetHeader, strconv.FormatInt(resetTime.Unix(), 10))

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": resetTime.Unix() - time.Now().Unix(),
			})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) checkAndUpdate(ctx context.Context, key string) (bool, int, time.Time, error) {
	if rl.redis != nil {
		return rl.checkAndUpdateRedis(ctx, key)
	}
	return rl.checkAndUpdateLocal(key)
}

// rateLimitScript atomically increments the window counter and starts the
// window's expiry on first use.
var rateLimitScript = redis.NewScript(`
	local current = redis.call("GET", KEYS[1])
	if current == false then
		current = 0
	else
		current = tonumber(current)
	end

	local limit = tonumber(ARGV[1])
	if current >= limit then
		return {0, 0, redis.call("TTL", KEYS[1])}
	end

	current = redis.call("INCR", KEYS[1])
	if current == 1 then
		redis.call("EXPIRE", KEYS[1], tonumber(ARGV[2]))
	end
	return {1, limit - current, redis.call("TTL", KEYS[1])}
`)

func (rl *RateLimiter) checkAndUpdateRedis(ctx context.Context, key string) (bool, int, time.Time, error) {
	result, err := rateLimitScript.Run(ctx, rl.redis,
		[]string{"ratelimit:" + key},
		rl.config.Requests,
		int(rl.config.Window.Seconds()),
	).Int64Slice()
	if err != nil {
		return false, 0, time.Time{}, err
	}
	if len(result) != 3 {
		return false, 0, time.Time{}, errUnexpectedScriptReply
	}

	allowed := result[0] == 1
	remaining := int(result[1])
	resetTime := time.Now().Add(time.Duration(result[2]) * time.Second)
	return allowed, remaining, resetTime, nil
}

var errUnexpectedScriptReply = errors.New("unexpected rate limit script reply")

func (rl *RateLimiter) checkAndUpdateLocal(key string) (bool, int, time.Time, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if len(rl.localMap) > 1000 {
		for k, entry := range rl.localMap {
			if now.After(entry.resetTime) {
				delete(rl.localMap, k)
			}
		}
	}

	entry, exists := rl.localMap[key]
	if !exists || now.After(entry.resetTime) {
		rl.localMap[key] = &rateLimitEntry{count: 1, resetTime: now.Add(rl.config.Window)}
		return true, rl.config.Requests - 1, now.Add(rl.config.Window), nil
	}

	if entry.count >= rl.config.Requests {
		return false, 0, entry.resetTime, nil
	}
	entry.count++
	return true, rl.config.Requests - entry.count, entry.resetTime, nil
}

// Reset clears the window for a key.
func (rl *RateLimiter) Reset(ctx context.Context, key string) error {
	if rl.redis != nil {
		return rl.redis.Del(ctx, "ratelimit:"+key).Err()
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.localMap, key)
	return nil
}
