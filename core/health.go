package core

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthStatus is the state of one probe or of the whole preview server
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// ProbeResult is the last outcome of a probe
type ProbeResult struct {
	Name      string        `json:"name"`
	Critical  bool          `json:"critical"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message,omitempty"`
	CheckedAt time.Time     `json:"checkedAt"`
	Duration  time.Duration `json:"duration"`
}

type probe struct {
	name     string
	critical bool
	check    func(ctx context.Context) error
}

// HealthChecker runs probes against the generated site and the watch loop.
// A failing critical probe makes the server unhealthy; any other failure
// only degrades it.
type HealthChecker struct {
	mu      sync.RWMutex
	probes  []probe
	results map[string]ProbeResult
	status  HealthStatus
	checked time.Time
}

// NewHealthChecker creates a checker without probes
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		results: make(map[string]ProbeResult),
		status:  HealthStatusUnknown,
	}
}

// Register adds a probe, replacing any probe with the same name
func (hc *HealthChecker) Register(name string, critical bool, check func(ctx context.Context) error) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	p := probe{name: name, critical: critical, check: check}
	for i := range hc.probes {
		if hc.probes[i].name == name {
			hc.probes[i] = p
			return
		}
	}
	hc.probes = append(hc.probes, p)
}

// Check runs every probe in registration order and returns the overall status
func (hc *HealthChecker) Check(ctx context.Context) HealthStatus {
	hc.mu.RLock()
	probes := append([]probe(nil), hc.probes...)
	hc.mu.RUnlock()

	results := make(map[string]ProbeResult, len(probes))
	status := HealthStatusHealthy
	if len(probes) == 0 {
		status = HealthStatusUnknown
	}

	for _, p := range probes {
		start := time.Now()
		err := p.check(ctx)
		res := ProbeResult{
			Name:      p.name,
			Critical:  p.critical,
			Status:    HealthStatusHealthy,
			CheckedAt: start,
			Duration:  time.Since(start),
		}
		if err != nil {
			res.Message = err.Error()
			res.Status = HealthStatusDegraded
			if p.critical {
				res.Status = HealthStatusUnhealthy
			}
		}
		results[p.name] = res
		status = worse(status, res.Status)
	}

	hc.mu.Lock()
	hc.results = results
	hc.status = status
	hc.checked = time.Now()
	hc.mu.Unlock()

	return status
}

func worse(a, b HealthStatus) HealthStatus {
	rank := map[HealthStatus]int{
		HealthStatusHealthy:   0,
		HealthStatusUnknown:   1,
		HealthStatusDegraded:  2,
		HealthStatusUnhealthy: 3,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Status returns the result of the last Check with probes in registration order
func (hc *HealthChecker) Status() (HealthStatus, []ProbeResult) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	results := make([]ProbeResult, 0, len(hc.probes))
	for _, p := range hc.probes {
		res, ok := hc.results[p.name]
		if !ok {
			res = ProbeResult{Name: p.name, Critical: p.critical, Status: HealthStatusUnknown}
		}
		results = append(results, res)
	}
	return hc.status, results
}

// HealthHandler runs the probes and reports them. Degraded still answers 200
// so that a missing manifest does not take the preview down.
func (hc *HealthChecker) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		hc.Check(ctx)
		status, probes := hc.Status()

		code := http.StatusOK
		if status == HealthStatusUnhealthy || status == HealthStatusUnknown {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"checked": time.Now().UTC(),
			"probes":  probes,
		})
	}
}

// LivenessHandler answers as long as the process serves requests
func (hc *HealthChecker) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
	}
}

// ReadinessHandler reports ready once a check has passed without critical failures
func (hc *HealthChecker) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		hc.mu.RLock()
		status, checked := hc.status, hc.checked
		hc.mu.RUnlock()

		if checked.IsZero() {
			status = hc.Check(c.Request.Context())
		}
		if status == HealthStatusHealthy || status == HealthStatusDegraded {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "health": status})
	}
}

// StartPeriodicChecks re-runs the probes every interval until ctx is done.
// Only status changes are logged.
func (hc *HealthChecker) StartPeriodicChecks(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := hc.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			status := hc.Check(checkCtx)
			cancel()

			if status == last {
				continue
			}
			_, probes := hc.Status()
			for _, p := range probes {
				if p.Status != HealthStatusHealthy {
					Warn("health probe failing", "probe", p.Name, "status", p.Status, "message", p.Message)
				}
			}
			Info("health changed", "from", last, "to", status)
			last = status
		}
	}
}

// ManifestProbe fails while a manifest is absent, empty or unreadable
func ManifestProbe(fm *FileManager, name string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		path := fm.PublicPath(name)
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%s has not been generated", name)
		}
		if info.Size() == 0 {
			return fmt.Errorf("%s is empty", name)
		}

		var doc struct {
			Generated string `json:"generated"`
		}
		if err := ReadManifest(path, &doc); err != nil {
			return err
		}
		if doc.Generated == "" {
			return fmt.Errorf("%s has no generated timestamp", name)
		}
		return nil
	}
}

// WatcherProbe fails when the watch loop stopped
func WatcherProbe(fw *FileWatcher) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if !fw.IsRunning() {
			return ErrWatcherNotRunning
		}
		if len(fw.GetWatchedDirectories()) == 0 {
			return fmt.Errorf("no content directories watched")
		}
		return nil
	}
}

// GeneratorsProbe fails when nothing would be rebuilt
func GeneratorsProbe(pm *PluginManager) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if len(pm.ListPlugins()) == 0 {
			return fmt.Errorf("no generators registered")
		}
		return nil
	}
}

// LastBuildProbe fails when the most recent recorded run failed
func LastBuildProbe(h *History) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := h.db.PingContext(ctx); err != nil {
			return err
		}
		records, err := h.Recent(1)
		if err != nil {
			return err
		}
		if len(records) == 1 && records[0].Status != StatusOK {
			return fmt.Errorf("last %s run failed: %s", records[0].Generator, records[0].Message)
		}
		return nil
	}
}

// GlobalHealthChecker is the checker used by serve
var GlobalHealthChecker = NewHealthChecker()

// RegisterDefaultHealthChecks registers the probes for everything ctx carries
func RegisterDefaultHealthChecks(hc *HealthChecker, ctx *Context) {
	if ctx.PluginManager != nil {
		hc.Register("generators", true, GeneratorsProbe(ctx.PluginManager))
	}
	if ctx.FileManager != nil {
		hc.Register("posts_manifest", false, ManifestProbe(ctx.FileManager, PostsManifestName))
		hc.Register("books_manifest", false, ManifestProbe(ctx.FileManager, BooksManifestName))
	}
	if ctx.FileWatcher != nil {
		hc.Register("watcher", true, WatcherProbe(ctx.FileWatcher))
	}
	if ctx.History != nil {
		hc.Register("last_build", false, LastBuildProbe(ctx.History))
	}
}
