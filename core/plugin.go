package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run triggers recorded in the build history
const (
	TriggerBuild = "build"
	TriggerWatch = "watch"
	TriggerDump  = "dump"
)

// PluginContext provides a generator with everything one run needs
type PluginContext struct {
	RunID       string
	Trigger     string
	Config      *Config
	FileManager *FileManager
	Started     time.Time

	// Changed holds the paths that triggered a watch-mode run. It is empty
	// for full builds.
	Changed []string
}

// PluginResult represents the outcome of a generator run
type PluginResult struct {
	Success    bool
	Error      error  // fatal error; nothing was written
	Output     string // path of the written artifact, if any
	Items      int    // entries in the produced artifact
	ItemErrors int    // entries recorded as errors
	Manifest   any    // the produced document, used by dry runs
}

// Plugin is a generator producing one artifact in the public directory
type Plugin interface {
	// Name returns the generator name
	Name() string

	// Priority returns the execution priority (lower numbers run first)
	Priority() int

	// Watches reports whether a change to path requires this generator to run
	Watches(path string) bool

	// Generate runs the generator
	Generate(ctx *PluginContext) *PluginResult
}

// RunRecorder stores one entry per generator run
type RunRecorder interface {
	Record(rec BuildRecord) error
}

// PluginManager manages all registered generators
type PluginManager struct {
	mu       sync.RWMutex
	plugins  []Plugin
	recorder RunRecorder
}

// NewPluginManager creates a new plugin manager
func NewPluginManager() *PluginManager {
	return &PluginManager{
		plugins: make([]Plugin, 0),
	}
}

// SetRecorder attaches a build history store
func (pm *PluginManager) SetRecorder(r RunRecorder) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.recorder = r
}

// RegisterPlugin registers a new plugin
func (pm *PluginManager) RegisterPlugin(plugin Plugin) {
	if plugin == nil {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.plugins = append(pm.plugins, plugin)

	sort.SliceStable(pm.plugins, func(i, j int) bool {
		return pm.plugins[i].Priority() < pm.plugins[j].Priority()
	})
}

// Get returns the registered generator with the given name
func (pm *PluginManager) Get(name string) (Plugin, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	for _, p := range pm.plugins {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// ListPlugins returns information about all registered plugins
func (pm *PluginManager) ListPlugins() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if len(pm.plugins) == 0 {
		return nil
	}

	var builder strings.Builder
	list := make([]string, 0, len(pm.plugins))

	for _, plugin := range pm.plugins {
		builder.Reset()
		builder.WriteString(plugin.Name())
		builder.WriteString(" (priority: ")
		builder.WriteString(fmt.Sprintf("%d", plugin.Priority()))
		builder.WriteString(")")
		list = append(list, builder.String())
	}

	return list
}

// GetPluginsForPaths returns the generators watching any of paths, in priority order
func (pm *PluginManager) GetPluginsForPaths(paths []string) []Plugin {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	var matching []Plugin
	for _, plugin := range pm.plugins {
		for _, path := range paths {
			if plugin.Watches(path) {
				matching = append(matching, plugin)
				break
			}
		}
	}
	return matching
}

func (pm *PluginManager) all() []Plugin {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return append([]Plugin(nil), pm.plugins...)
}

// NewPluginContext creates a context for one run with a fresh run id
func NewPluginContext(config *Config, fm *FileManager, trigger string) *PluginContext {
	return &PluginContext{
		RunID:       uuid.NewString(),
		Trigger:     trigger,
		Config:      config,
		FileManager: fm,
		Started:     time.Now(),
	}
}

// Run executes the named generator
func (pm *PluginManager) Run(name string, ctx *PluginContext) (*PluginResult, error) {
	plugin, ok := pm.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGeneratorNotFound, name)
	}
	return pm.execute(plugin, ctx)
}

// RunAll executes every generator in priority order. A fatal error in one
// generator does not stop the others; all fatal errors are returned joined.
func (pm *PluginManager) RunAll(ctx *PluginContext) ([]*PluginResult, error) {
	return pm.runEach(pm.all(), ctx)
}

// RunAffected executes the generators watching any of the changed paths
func (pm *PluginManager) RunAffected(ctx *PluginContext, paths []string) ([]*PluginResult, error) {
	ctx.Changed = paths
	plugins := pm.GetPluginsForPaths(paths)
	if len(plugins) == 0 {
		Debug("no generator watches the changed paths", "paths", paths)
		return nil, nil
	}
	return pm.runEach(plugins, ctx)
}

func (pm *PluginManager) runEach(plugins []Plugin, ctx *PluginContext) ([]*PluginResult, error) {
	results := make([]*PluginResult, 0, len(plugins))
	var errs []error
	for _, plugin := range plugins {
		result, err := pm.execute(plugin, ctx)
		results = append(results, result)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

func (pm *PluginManager) execute(plugin Plugin, ctx *PluginContext) (*PluginResult, error) {
	timer := NewGeneratorTimer()
	started := time.Now()

	result := plugin.Generate(ctx)
	if result == nil {
		result = &PluginResult{Error: fmt.Errorf("%w: no result", ErrGeneratorFailed)}
	}

	duration := timer.ObserveDuration()
	GlobalMetrics.GeneratorRunsTotal.Inc()

	var err error
	if result.Error != nil {
		result.Success = false
		err = NewGeneratorError(plugin.Name(), result.Error)
		GlobalMetrics.GeneratorErrorsTotal.Inc()
		Error("generator failed", "generator", plugin.Name(), "error", result.Error)
	} else {
		result.Success = true
		Debug("generator finished", "generator", plugin.Name(), "items", result.Items, "duration", duration)
	}

	pm.record(plugin.Name(), ctx, started, duration, result)
	return result, err
}

func (pm *PluginManager) record(name string, ctx *PluginContext, started time.Time, d time.Duration, result *PluginResult) {
	pm.mu.RLock()
	recorder := pm.recorder
	pm.mu.RUnlock()

	if recorder == nil || ctx.Trigger == TriggerDump {
		return
	}

	rec := BuildRecord{
		ID:         uuid.NewString(),
		RunID:      ctx.RunID,
		Generator:  name,
		Trigger:    ctx.Trigger,
		StartedAt:  started,
		Duration:   d,
		Items:      result.Items,
		ItemErrors: result.ItemErrors,
		Status:     StatusOK,
	}
	if result.Error != nil {
		rec.Status = StatusFailed
		rec.Message = result.Error.Error()
	}

	if err := recorder.Record(rec); err != nil {
		Warn("failed to record build history", "generator", name, "error", err)
	}
}
