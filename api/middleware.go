package api

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/killallgit/dataset-importer/pkg/config"
)

const (
	defaultCORSMethods = "GET, POST, PUT, DELETE, OPTIONS"
	defaultCORSHeaders = "Origin, Content-Length, Content-Type, Authorization"
	limiterIdleTimeout = 10 * time.Minute
)

// clientLimiter holds a rate limiter and its last accessed time
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanoseconds
}

// CORS applies the configured cross-origin policy. A "*" origin allows any
// caller; otherwise only listed origins are echoed back.
func CORS(cfg config.SecurityConfig) gin.HandlerFunc {
	allowAll := len(cfg.CORSOrigins) == 0
	allowed := make(map[string]bool, len(cfg.CORSOrigins))
	for _, o := range cfg.CORSOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}

	methods := defaultCORSMethods
	if len(cfg.CORSMethods) > 0 {
		methods = strings.Join(cfg.CORSMethods, ", ")
	}
	headers := defaultCORSHeaders
	if len(cfg.CORSHeaders) > 0 {
		headers = strings.Join(cfg.CORSHeaders, ", ")
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", headers)
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func RequestSizeLimit() gin.HandlerFunc {
	return RequestSizeLimitWithSize(1024 * 1024)
}

func RequestSizeLimitWithSize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost ||
			c.Request.Method == http.MethodPut ||
			c.Request.Method == http.MethodPatch {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// PerClientRateLimit limits each client IP to rps requests per second. A
// non-positive rps disables limiting.
func PerClientRateLimit(rateLimiters *sync.Map, cleanupStop chan struct{}, cleanupInitialized *sync.Once, rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}

	cleanupInitialized.Do(func() {
		go cleanupOldRateLimiters(rateLimiters, cleanupStop, 5*time.Minute)
	})

	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		fresh := &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
		limiterInterface, _ := rateLimiters.LoadOrStore(clientIP, fresh)

		cl := limiterInterface.(*clientLimiter)
		cl.lastSeen.Store(time.Now().UnixNano())

		if !cl.limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"status":  "error",
				"error":   "rate_limited",
				"message": "Rate limit exceeded. Please slow down your requests.",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func cleanupOldRateLimiters(rateLimiters *sync.Map, cleanupStop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pruneRateLimiters(rateLimiters, time.Now())
		case <-cleanupStop:
			return
		}
	}
}

// pruneRateLimiters drops limiters of clients idle for longer than limiterIdleTimeout
func pruneRateLimiters(rateLimiters *sync.Map, now time.Time) {
	rateLimiters.Range(func(key, value interface{}) bool {
		cl := value.(*clientLimiter)
		if now.Sub(time.Unix(0, cl.lastSeen.Load())) > limiterIdleTimeout {
			rateLimiters.Delete(key)
		}
		return true
	})
}
