package core

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
)

// RateLimiter caps requests per client IP in fixed one minute windows
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	length  time.Duration
	now     func() time.Time
	done    chan struct{}
}

type window struct {
	start time.Time
	count int
}

// NewRateLimiter allows requestsPerMinute requests per client
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	rl := &RateLimiter{
		windows: make(map[string]*window),
		limit:   requestsPerMinute,
		length:  time.Minute,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// Middleware rejects requests over the limit with 429 and Retry-After
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retry := rl.take(c.ClientIP())
		if !ok {
			GlobalMetrics.RateLimitBlocks.Inc()
			seconds := int(retry.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many search requests"})
			return
		}
		c.Next()
	}
}

// Allow reports whether client may make another request now
func (rl *RateLimiter) Allow(client string) bool {
	ok, _ := rl.take(client)
	return ok
}

// take counts one request and returns how long a rejected client has to wait
func (rl *RateLimiter) take(client string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[client]
	if !ok || now.Sub(w.start) >= rl.length {
		w = &window{start: now}
		rl.windows[client] = w
	}
	if w.count >= rl.limit {
		return false, w.start.Add(rl.length).Sub(now)
	}
	w.count++
	return true, 0
}

// sweep drops expired windows until Stop is called
func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for client, w := range rl.windows {
				if now.Sub(w.start) >= rl.length {
					delete(rl.windows, client)
				}
			}
			rl.mu.Unlock()
		case <-rl.done:
			return
		}
	}
}

// Stop ends the sweeper
func (rl *RateLimiter) Stop() {
	close(rl.done)
}

// previewHeaders are set on every preview server response. Chapter previews
// carry inline styles from the highlighter.
var previewHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Content-Security-Policy", "default-src 'self'; img-src 'self' data:; style-src 'self' 'unsafe-inline'"},
}

// SecurityHeadersMiddleware adds previewHeaders to responses
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, h := range previewHeaders {
			c.Header(h[0], h[1])
		}
		c.Next()
	}
}

// RequestLogger logs one record per request through the package logger
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration", time.Since(start),
			"client", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			args = append(args, "error", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			Error("request", args...)
		case status >= http.StatusBadRequest:
			Warn("request", args...)
		default:
			Debug("request", args...)
		}
	}
}

// NewCORS allows the frontend dev server origins to call the preview API
func NewCORS(origins []string) *cors.Cors {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept"},
	})
}
