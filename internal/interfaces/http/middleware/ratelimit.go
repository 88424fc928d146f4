package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/erp/inventoryreport/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	// DefaultRateLimitClients bounds how many callers are tracked at once
	DefaultRateLimitClients = 1000
	// DefaultRateLimitIdle is how long an idle caller's bucket is kept
	DefaultRateLimitIdle = 5 * time.Minute
)

// RateLimiter hands out one token bucket per caller key. Buckets for callers
// that go quiet expire from the LRU.
type RateLimiter struct {
	limiters *expirable.LRU[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
	perMin   int
}

// NewRateLimiter allows requestsPerMin requests per caller with bursts of
// up to burst. burst below 1 falls back to a tenth of the rate, at least 1.
func NewRateLimiter(requestsPerMin, burst int) *RateLimiter {
	if burst < 1 {
		burst = max(requestsPerMin/10, 1)
	}
	return &RateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](DefaultRateLimitClients, nil, DefaultRateLimitIdle),
		limit:    rate.Limit(float64(requestsPerMin) / 60.0),
		burst:    burst,
		perMin:   requestsPerMin,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	limiter, ok := rl.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters.Add(key, limiter)
	}
	return limiter
}

// Reserve takes a token for key. On refusal it returns how long the caller
// should wait before the next token is free.
func (rl *RateLimiter) Reserve(key string, now time.Time) (bool, time.Duration) {
	limiter := rl.limiter(key)
	if limiter.AllowN(now, 1) {
		return true, 0
	}
	r := limiter.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return false, wait
}

// RateLimit throttles callers of the wrapped routes. Authenticated callers
// are keyed by token subject, everyone else by client IP.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if subject := GetJWTSubject(c); subject != "" {
			key = "sub:" + subject
		}

		allowed, wait := limiter.Reserve(key, time.Now())
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.perMin))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRateLimited,
				"Too many requests. Please try again later.",
				getRequestID(c),
			))
			return
		}
		c.Next()
	}
}
