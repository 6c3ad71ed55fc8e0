package core

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestFileBuilder helps create content files with front matter
type TestFileBuilder struct {
	path   string
	format string
	fields []string
	body   string
	raw    *string
}

// NewTestFileBuilder creates a new test file builder
func NewTestFileBuilder(path string) *TestFileBuilder {
	return &TestFileBuilder{path: path, format: FormatTOML}
}

// WithTOML selects a +++ front matter block (the default)
func (tfb *TestFileBuilder) WithTOML() *TestFileBuilder {
	tfb.format = FormatTOML
	return tfb
}

// WithYAML selects a --- front matter block
func (tfb *TestFileBuilder) WithYAML() *TestFileBuilder {
	tfb.format = FormatYAML
	return tfb
}

// WithField adds one front matter line. value is written as is, so strings
// need their own quotes.
func (tfb *TestFileBuilder) WithField(key, value string) *TestFileBuilder {
	sep := " = "
	if tfb.format == FormatYAML {
		sep = ": "
	}
	tfb.fields = append(tfb.fields, key+sep+value)
	return tfb
}

// WithBody sets the markdown body
func (tfb *TestFileBuilder) WithBody(body string) *TestFileBuilder {
	tfb.body = body
	return tfb
}

// WithContent replaces the whole file content, front matter included
func (tfb *TestFileBuilder) WithContent(content string) *TestFileBuilder {
	tfb.raw = &content
	return tfb
}

// Content renders the file
func (tfb *TestFileBuilder) Content() string {
	if tfb.raw != nil {
		return *tfb.raw
	}
	if len(tfb.fields) == 0 {
		return tfb.body
	}

	delim := TOMLDelimiter
	if tfb.format == FormatYAML {
		delim = YAMLDelimiter
	}

	var b strings.Builder
	b.WriteString(delim + "\n")
	for _, f := range tfb.fields {
		b.WriteString(f + "\n")
	}
	b.WriteString(delim + "\n")
	b.WriteString(tfb.body)
	return b.String()
}

// CreatePhysically creates the file on disk in the given base directory
func (tfb *TestFileBuilder) CreatePhysically(t *testing.T, baseDir string) string {
	t.Helper()
	return writeTestFile(t, filepath.Join(baseDir, tfb.path), tfb.Content())
}

func writeTestFile(t *testing.T, fullPath, content string) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("Failed to create directory %s: %v", filepath.Dir(fullPath), err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create file %s: %v", fullPath, err)
	}
	return fullPath
}

// SiteBuilder creates posts and books trees below a temporary directory
type SiteBuilder struct {
	t       *testing.T
	BaseDir string
	Config  Config
}

// NewSiteBuilder creates empty posts, books and public roots in t.TempDir()
func NewSiteBuilder(t *testing.T) *SiteBuilder {
	t.Helper()

	base := t.TempDir()
	config := NewDefaultConfig()
	config.Paths = Paths{
		Posts:  filepath.Join(base, "posts"),
		Books:  filepath.Join(base, "books"),
		Public: filepath.Join(base, "public"),
	}
	config.Site.URL = "https://example.com"

	for _, dir := range []string{config.Paths.Posts, config.Paths.Books} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}

	return &SiteBuilder{t: t, BaseDir: base, Config: config}
}

// Post adds posts/<slug>/index.md
func (sb *SiteBuilder) Post(slug string, file *TestFileBuilder) *SiteBuilder {
	sb.t.Helper()
	writeTestFile(sb.t, filepath.Join(sb.Config.Paths.Posts, slug, "index.md"), file.Content())
	return sb
}

// PostAsset adds a file next to a post's index.md
func (sb *SiteBuilder) PostAsset(slug, name, content string) *SiteBuilder {
	sb.t.Helper()
	writeTestFile(sb.t, filepath.Join(sb.Config.Paths.Posts, slug, name), content)
	return sb
}

// PostFolder adds an empty post folder
func (sb *SiteBuilder) PostFolder(slug string) *SiteBuilder {
	sb.t.Helper()
	if err := os.MkdirAll(filepath.Join(sb.Config.Paths.Posts, slug), 0755); err != nil {
		sb.t.Fatalf("Failed to create post folder %s: %v", slug, err)
	}
	return sb
}

// Book adds books/<id>/book.toml with the given content
func (sb *SiteBuilder) Book(id, bookToml string) *SiteBuilder {
	sb.t.Helper()
	writeTestFile(sb.t, filepath.Join(sb.Config.Paths.Books, id, "book.toml"), bookToml)
	return sb
}

// BookFolder adds an empty book folder without book.toml
func (sb *SiteBuilder) BookFolder(id string) *SiteBuilder {
	sb.t.Helper()
	if err := os.MkdirAll(filepath.Join(sb.Config.Paths.Books, id), 0755); err != nil {
		sb.t.Fatalf("Failed to create book folder %s: %v", id, err)
	}
	return sb
}

// Chapter adds a chapter folder below a book. chapterPath uses slashes for
// nesting; an empty content creates the folder only.
func (sb *SiteBuilder) Chapter(bookID, chapterPath, fileName, content string) *SiteBuilder {
	sb.t.Helper()
	dir := filepath.Join(sb.Config.Paths.Books, bookID, filepath.FromSlash(chapterPath))
	if fileName == "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			sb.t.Fatalf("Failed to create chapter folder %s: %v", dir, err)
		}
		return sb
	}
	writeTestFile(sb.t, filepath.Join(dir, fileName), content)
	return sb
}

// Path joins elements onto the base directory
func (sb *SiteBuilder) Path(elem ...string) string {
	return filepath.Join(append([]string{sb.BaseDir}, elem...)...)
}

// Public joins elements onto the public directory
func (sb *SiteBuilder) Public(elem ...string) string {
	return filepath.Join(append([]string{sb.Config.Paths.Public}, elem...)...)
}

// Context returns an initialized context for the built tree
func (sb *SiteBuilder) Context() *Context {
	sb.t.Helper()
	ctx := &Context{Config: sb.Config}
	ctx.Config.Log.Level = "error"
	if err := InitializeContext(ctx); err != nil {
		sb.t.Fatalf("Failed to initialize context: %v", err)
	}
	sb.t.Cleanup(func() { ctx.Close() })
	return ctx
}

// PluginContext returns a context for a single generator run
func (sb *SiteBuilder) PluginContext(fm *FileManager) *PluginContext {
	if fm == nil {
		fm = NewFileManager(sb.Config.Paths.Public)
	}
	return NewPluginContext(&sb.Config, fm, TriggerBuild)
}

// EventCollector helps collect and verify file watch events during tests
type EventCollector struct {
	mu      sync.Mutex
	events  []FileWatchEvent
	eventCh <-chan FileWatchEvent
	timeout time.Duration
	done    chan struct{}
}

// NewEventCollector creates a new event collector
func NewEventCollector(eventCh <-chan FileWatchEvent, timeout time.Duration) *EventCollector {
	return &EventCollector{
		events:  make([]FileWatchEvent, 0),
		eventCh: eventCh,
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// Start begins collecting events
func (ec *EventCollector) Start() {
	go ec.collectEvents()
}

// Stop stops collecting events and returns collected events
func (ec *EventCollector) Stop() []FileWatchEvent {
	close(ec.done)
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return append([]FileWatchEvent(nil), ec.events...)
}

func (ec *EventCollector) collectEvents() {
	for {
		select {
		case event, ok := <-ec.eventCh:
			if !ok {
				return
			}
			ec.mu.Lock()
			ec.events = append(ec.events, event)
			ec.mu.Unlock()
		case <-ec.done:
			return
		}
	}
}

// WaitForEvents waits for a specific number of events or timeout
func (ec *EventCollector) WaitForEvents(count int) []FileWatchEvent {
	deadline := time.Now().Add(ec.timeout)
	for time.Now().Before(deadline) {
		ec.mu.Lock()
		n := len(ec.events)
		ec.mu.Unlock()
		if n >= count {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	ec.mu.Lock()
	defer ec.mu.Unlock()
	return append([]FileWatchEvent(nil), ec.events...)
}

// GetEventsOfType returns events of a specific type
func (ec *EventCollector) GetEventsOfType(eventType FileWatchEventType) []FileWatchEvent {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	var filtered []FileWatchEvent
	for _, event := range ec.events {
		if event.Type == eventType {
			filtered = append(filtered, event)
		}
	}
	return filtered
}

// RebuildRecorder is a Rebuilder that records every call
type RebuildRecorder struct {
	mu    sync.Mutex
	calls [][]string
}

// Rebuild implements Rebuilder
func (r *RebuildRecorder) Rebuild(paths []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string(nil), paths...))
	return nil
}

// Calls returns the recorded path batches
func (r *RebuildRecorder) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

// WaitForCalls waits until at least n rebuilds happened or timeout passes
func (r *RebuildRecorder) WaitForCalls(n int, timeout time.Duration) [][]string {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(r.Calls()) >= n {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return r.Calls()
}

// MockPlugin provides a simple generator implementation for testing
type MockPlugin struct {
	mu           sync.Mutex
	name         string
	priority     int
	watchPrefix  string
	generateFunc func(ctx *PluginContext) *PluginResult
	callCount    int
}

// NewMockPlugin creates a new mock generator that watches everything
func NewMockPlugin(name string, priority int) *MockPlugin {
	return &MockPlugin{
		name:     name,
		priority: priority,
		generateFunc: func(ctx *PluginContext) *PluginResult {
			return &PluginResult{Success: true}
		},
	}
}

// WithGenerateFunc sets a custom generate function
func (mp *MockPlugin) WithGenerateFunc(fn func(ctx *PluginContext) *PluginResult) *MockPlugin {
	mp.generateFunc = fn
	return mp
}

// WithWatchPrefix restricts Watches to paths below prefix
func (mp *MockPlugin) WithWatchPrefix(prefix string) *MockPlugin {
	mp.watchPrefix = prefix
	return mp
}

func (mp *MockPlugin) Name() string {
	return mp.name
}

func (mp *MockPlugin) Priority() int {
	return mp.priority
}

func (mp *MockPlugin) Watches(path string) bool {
	return mp.watchPrefix == "" || strings.HasPrefix(path, mp.watchPrefix)
}

func (mp *MockPlugin) Generate(ctx *PluginContext) *PluginResult {
	mp.mu.Lock()
	mp.callCount++
	mp.mu.Unlock()
	return mp.generateFunc(ctx)
}

// GetCallCount returns how often Generate ran
func (mp *MockPlugin) GetCallCount() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.callCount
}
