package http

import (
	"net/http"
	"strings"
	"time"

	"counsel/internal/domain/agent/ports"
	"counsel/internal/infra/observability"
	"counsel/internal/shared/logging"
	id "counsel/internal/shared/utils/id"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	headerOwnerID  = "X-Owner-Id"
	headerTenantID = "X-Tenant-Id"
	headerLogID    = "X-Log-Id"

	identityContextKey = "counsel.identity"
)

func resolveLogID(r *http.Request) string {
	for _, header := range []string{headerLogID, "X-Request-Id", "X-Correlation-Id"} {
		if value := strings.TrimSpace(r.Header.Get(header)); value != "" {
			return value
		}
	}
	return ""
}

// logIDMiddleware tags every request with a log id, echoes it back and logs
// the request line.
func logIDMiddleware(logger logging.Logger) gin.HandlerFunc {
	logger = logging.OrNop(logger)
	return func(c *gin.Context) {
		logID := resolveLogID(c.Request)
		if logID == "" {
			logID = id.NewLogID()
		}
		ctx := id.WithLogID(c.Request.Context(), logID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(headerLogID, logID)

		started := time.Now()
		c.Next()
		logging.FromContext(ctx, logger).Info("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(started).Round(time.Microsecond))
	}
}

// observabilityMiddleware records request metrics by route template.
func observabilityMiddleware(metrics *observability.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		metrics.RecordHTTPServerRequest(c.Request.Context(), c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(started))
	}
}

// identityMiddleware reads the caller identity that the upstream gateway
// has already authenticated.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := ports.Identity{
			OwnerID:  strings.TrimSpace(c.GetHeader(headerOwnerID)),
			TenantID: strings.TrimSpace(c.GetHeader(headerTenantID)),
		}
		if identity.OwnerID == "" || identity.TenantID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("missing "+headerOwnerID+" or "+headerTenantID+" header"))
			return
		}
		c.Set(identityContextKey, identity)
		c.Request = c.Request.WithContext(id.WithOwnerID(c.Request.Context(), identity.OwnerID))
		c.Next()
	}
}

func identityFrom(c *gin.Context) ports.Identity {
	if v, ok := c.Get(identityContextKey); ok {
		if identity, ok := v.(ports.Identity); ok {
			return identity
		}
	}
	return ports.Identity{}
}

// RateLimitConfig bounds how fast one owner may submit tasks.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
	EntryTTL          time.Duration
	MaxEntries        int
}

// ownerRateLimiter keeps one token bucket per owner. Idle buckets expire.
type ownerRateLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *expirable.LRU[string, *rate.Limiter]
}

func newOwnerRateLimiter(cfg RateLimitConfig) *ownerRateLimiter {
	ttl := cfg.EntryTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	size := cfg.MaxEntries
	if size <= 0 {
		size = 10000
	}
	return &ownerRateLimiter{
		limit:   rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute)),
		burst:   cfg.Burst,
		buckets: expirable.NewLRU[string, *rate.Limiter](size, nil, ttl),
	}
}

func (r *ownerRateLimiter) allow(key string) bool {
	limiter, ok := r.buckets.Get(key)
	if !ok {
		limiter = rate.NewLimiter(r.limit, r.burst)
		r.buckets.Add(key, limiter)
	}
	return limiter.Allow()
}

// rateLimitMiddleware rejects requests over the owner's budget with 429.
func rateLimitMiddleware(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerMinute <= 0 || cfg.Burst <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := newOwnerRateLimiter(cfg)
	return func(c *gin.Context) {
		key := identityFrom(c).OwnerID
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !limiter.allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody("rate limit exceeded"))
			return
		}
		c.Next()
	}
}
