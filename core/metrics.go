package core

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// Counter represents a monotonically increasing counter
type Counter struct {
	value int64
	name  string
	help  string
}

// NewCounter creates a new counter
func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

// Inc increments the counter by 1
func (c *Counter) Inc() {
	atomic.AddInt64(&c.value, 1)
}

// Add adds the given value to the counter
func (c *Counter) Add(value int64) {
	atomic.AddInt64(&c.value, value)
}

// Get returns the current counter value
func (c *Counter) Get() int64 {
	return atomic.LoadInt64(&c.value)
}

// Gauge represents a value that can go up and down
type Gauge struct {
	value int64
	name  string
	help  string
}

// NewGauge creates a new gauge
func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

// Set sets the gauge to the given value
func (g *Gauge) Set(value int64) {
	atomic.StoreInt64(&g.value, value)
}

// Inc increments the gauge by 1
func (g *Gauge) Inc() {
	atomic.AddInt64(&g.value, 1)
}

// Dec decrements the gauge by 1
func (g *Gauge) Dec() {
	atomic.AddInt64(&g.value, -1)
}

// Get returns the current gauge value
func (g *Gauge) Get() int64 {
	return atomic.LoadInt64(&g.value)
}

// Histogram tracks the distribution of millisecond durations
type Histogram struct {
	mu     sync.RWMutex
	bounds []float64
	counts []int64
	sum    float64
	count  int64
	name   string
	help   string
}

var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// NewHistogram creates a histogram with the default millisecond buckets
func NewHistogram(name, help string) *Histogram {
	return &Histogram{
		bounds: defaultBuckets,
		counts: make([]int64, len(defaultBuckets)),
		name:   name,
		help:   help,
	}
}

// Observe records a new observation
func (h *Histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += value
	h.count++
	for i, bound := range h.bounds {
		if value <= bound {
			h.counts[i]++
		}
	}
}

// GetBuckets returns cumulative counts keyed by the formatted upper bound
func (h *Histogram) GetBuckets() map[string]int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[string]int64, len(h.bounds))
	for i, bound := range h.bounds {
		result[strconv.FormatFloat(bound, 'g', -1, 64)] = h.counts[i]
	}
	return result
}

// GetSum returns the sum of all observations
func (h *Histogram) GetSum() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sum
}

// GetCount returns the number of observations
func (h *Histogram) GetCount() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Timer measures one duration into a histogram
type Timer struct {
	start time.Time
	hist  *Histogram
}

// NewTimer starts a timer for hist
func NewTimer(hist *Histogram) *Timer {
	return &Timer{start: time.Now(), hist: hist}
}

// ObserveDuration records and returns the time since the timer started
func (t *Timer) ObserveDuration() time.Duration {
	d := time.Since(t.start)
	t.hist.Observe(float64(d.Nanoseconds()) / 1e6)
	return d
}

// MetricsCollector holds the counters for generator runs and the preview server
type MetricsCollector struct {
	// Generator metrics
	GeneratorRunsTotal   *Counter
	GeneratorErrorsTotal *Counter
	GeneratorDuration    *Histogram
	ItemsProcessed       *Counter
	ItemErrors           *Counter
	FilesCopied          *Counter
	FilesSkipped         *Counter
	PostsTotal           *Gauge
	BooksTotal           *Gauge

	// Watch mode metrics
	FileWatcherEvents *Counter
	RebuildsTotal     *Counter

	// HTTP metrics
	HTTPRequestsTotal    *Counter
	HTTPRequestDuration  *Histogram
	HTTPRequestsInFlight *Gauge
	HTTPErrorsTotal      *Counter
	SearchQueriesTotal   *Counter
	RateLimitBlocks      *Counter

	startTime time.Time
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		GeneratorRunsTotal:   NewCounter("generator_runs_total", "Total number of generator runs"),
		GeneratorErrorsTotal: NewCounter("generator_errors_total", "Total number of failed generator runs"),
		GeneratorDuration:    NewHistogram("generator_duration_ms", "Generator run duration in milliseconds"),
		ItemsProcessed:       NewCounter("items_processed_total", "Posts and books processed successfully"),
		ItemErrors:           NewCounter("item_errors_total", "Posts and books recorded as errors"),
		FilesCopied:          NewCounter("files_copied_total", "Files written into the public tree"),
		FilesSkipped:         NewCounter("files_skipped_total", "Files skipped because the copy was up to date"),
		PostsTotal:           NewGauge("posts_in_manifest", "Posts in the last manifest"),
		BooksTotal:           NewGauge("books_in_manifest", "Books in the last manifest"),

		FileWatcherEvents: NewCounter("file_watcher_events_total", "Total number of file watcher events"),
		RebuildsTotal:     NewCounter("rebuilds_total", "Rebuilds triggered by file changes"),

		HTTPRequestsTotal:    NewCounter("http_requests_total", "Total number of HTTP requests"),
		HTTPRequestDuration:  NewHistogram("http_request_duration_ms", "HTTP request duration in milliseconds"),
		HTTPRequestsInFlight: NewGauge("http_requests_in_flight", "Current number of HTTP requests being processed"),
		HTTPErrorsTotal:      NewCounter("http_errors_total", "Total number of HTTP errors"),
		SearchQueriesTotal:   NewCounter("search_queries_total", "Total number of search queries"),
		RateLimitBlocks:      NewCounter("rate_limit_blocks_total", "Requests rejected by the rate limiter"),

		startTime: time.Now(),
	}
}

// GetAllMetrics returns all current metric values
func (mc *MetricsCollector) GetAllMetrics() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := map[string]interface{}{}
	for _, c := range []*Counter{
		mc.GeneratorRunsTotal, mc.GeneratorErrorsTotal, mc.ItemsProcessed, mc.ItemErrors,
		mc.FilesCopied, mc.FilesSkipped, mc.FileWatcherEvents, mc.RebuildsTotal,
		mc.HTTPRequestsTotal, mc.HTTPErrorsTotal, mc.SearchQueriesTotal, mc.RateLimitBlocks,
	} {
		metrics[c.name] = c.Get()
	}
	for _, g := range []*Gauge{mc.PostsTotal, mc.BooksTotal, mc.HTTPRequestsInFlight} {
		metrics[g.name] = g.Get()
	}
	for _, h := range []*Histogram{mc.GeneratorDuration, mc.HTTPRequestDuration} {
		metrics[h.name] = map[string]interface{}{
			"buckets": h.GetBuckets(),
			"sum":     h.GetSum(),
			"count":   h.GetCount(),
		}
	}

	metrics["go_routines_count"] = int64(runtime.NumGoroutine())
	metrics["memory_usage_bytes"] = int64(memStats.Alloc)
	metrics["uptime_seconds"] = int64(time.Since(mc.startTime).Seconds())

	return metrics
}

// MetricsMiddleware records request counts and durations
func (mc *MetricsCollector) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/metrics") {
			c.Next()
			return
		}

		mc.HTTPRequestsInFlight.Inc()
		timer := NewTimer(mc.HTTPRequestDuration)

		c.Next()

		duration := timer.ObserveDuration()
		mc.HTTPRequestsInFlight.Dec()
		mc.HTTPRequestsTotal.Inc()

		if c.Writer.Status() >= 400 {
			mc.HTTPErrorsTotal.Inc()
		}

		if duration > time.Second {
			Info("slow request", "method", c.Request.Method, "path", c.Request.URL.Path, "duration", duration)
		}
	}
}

// MetricsHandler returns all metrics as JSON
func (mc *MetricsCollector) MetricsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"timestamp": time.Now(),
			"metrics":   mc.GetAllMetrics(),
		})
	}
}

// PrometheusHandler returns metrics in the Prometheus text format
func (mc *MetricsCollector) PrometheusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		c.String(http.StatusOK, FormatPrometheus(mc.GetAllMetrics()))
	}
}

// FormatPrometheus renders a metrics map in name order
func FormatPrometheus(metrics map[string]interface{}) string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		switch v := metrics[name].(type) {
		case int64:
			kind := "gauge"
			if strings.HasSuffix(name, "_total") {
				kind = "counter"
			}
			fmt.Fprintf(&b, "# TYPE %s %s\n%s %d\n", name, kind, name, v)
		case map[string]interface{}:
			buckets, ok := v["buckets"].(map[string]int64)
			if !ok {
				continue
			}
			bounds := make([]string, 0, len(buckets))
			for bound := range buckets {
				bounds = append(bounds, bound)
			}
			sort.Slice(bounds, func(i, j int) bool {
				x, _ := strconv.ParseFloat(bounds[i], 64)
				y, _ := strconv.ParseFloat(bounds[j], 64)
				return x < y
			})

			fmt.Fprintf(&b, "# TYPE %s histogram\n", name)
			for _, bound := range bounds {
				fmt.Fprintf(&b, "%s_bucket{le=\"%s\"} %d\n", name, bound, buckets[bound])
			}
			if count, ok := v["count"].(int64); ok {
				fmt.Fprintf(&b, "%s_bucket{le=\"+Inf\"} %d\n", name, count)
			}
			if sum, ok := v["sum"].(float64); ok {
				fmt.Fprintf(&b, "%s_sum %.2f\n", name, sum)
			}
			if count, ok := v["count"].(int64); ok {
				fmt.Fprintf(&b, "%s_count %d\n", name, count)
			}
		}
	}

	return b.String()
}

// StartMetricsCollector logs a metrics snapshot at debug level until ctx is done
func (mc *MetricsCollector) StartMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			Debug("metrics",
				"generator_runs", mc.GeneratorRunsTotal.Get(),
				"rebuilds", mc.RebuildsTotal.Get(),
				"http_requests", mc.HTTPRequestsTotal.Get())
		}
	}
}

// Global metrics collector instance
var GlobalMetrics = NewMetricsCollector()

// NewGeneratorTimer starts timing a generator run
func NewGeneratorTimer() *Timer {
	return NewTimer(GlobalMetrics.GeneratorDuration)
}

// RecordFileWatcherEvent counts one watcher event
func RecordFileWatcherEvent() {
	GlobalMetrics.FileWatcherEvents.Inc()
}
