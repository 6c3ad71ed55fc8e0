package core

import (
	"errors"
	"io"
	"os"
	"time"
)

// ManifestCacheTTL bounds how long the preview server reuses a parsed manifest
const ManifestCacheTTL = 30 * time.Second

type Context struct {
	Config        Config
	Logger        *Logger
	FileManager   *FileManager
	PluginManager *PluginManager
	FileWatcher   *FileWatcher
	History       *History

	Posts *TTLCache[*PostManifest]
	Books *TTLCache[*BookManifest]

	// set by the commands that register the search and markdown plugins
	Search   Searcher
	Renderer MarkdownRenderer
}

// InitializeContext wires logging, the public tree writer, the generator
// manager and, when configured, the build history from ctx.Config.
func InitializeContext(ctx *Context) error {
	ctx.Logger = NewLoggerWithWriter(os.Stderr, ctx.Config.Log.Format, ParseLogLevel(ctx.Config.Log.Level))
	SetGlobalLogger(ctx.Logger)

	ctx.FileManager = NewFileManager(ctx.Config.Paths.Public)
	if ctx.PluginManager == nil {
		ctx.PluginManager = NewPluginManager()
	}

	ctx.Posts = NewTTLCache[*PostManifest](ManifestCacheTTL)
	ctx.Books = NewTTLCache[*BookManifest](ManifestCacheTTL)

	if ctx.Config.History.Database != "" {
		history, err := OpenHistory(ctx.Config.History.Database)
		if err != nil {
			return err
		}
		ctx.History = history
		ctx.PluginManager.SetRecorder(history)
	}

	return nil
}

// Close releases the resources opened by InitializeContext
func (ctx *Context) Close() error {
	var errs []error
	if ctx.FileWatcher != nil && ctx.FileWatcher.IsRunning() {
		errs = append(errs, ctx.FileWatcher.Stop())
	}
	if ctx.History != nil {
		errs = append(errs, ctx.History.Close())
	}
	if closer, ok := ctx.Search.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

// Build runs every generator once
func (ctx *Context) Build(trigger string) ([]*PluginResult, error) {
	start := time.Now()
	pctx := NewPluginContext(&ctx.Config, ctx.FileManager, trigger)

	results, err := ctx.PluginManager.RunAll(pctx)
	ctx.invalidate()

	Info("build finished",
		"run", pctx.RunID,
		"files", ctx.FileManager.ResetStats().String(),
		"duration", time.Since(start).Round(time.Millisecond))
	return results, err
}

// Rebuild runs the generators affected by paths. It implements Rebuilder.
func (ctx *Context) Rebuild(paths []string) error {
	start := time.Now()
	pctx := NewPluginContext(&ctx.Config, ctx.FileManager, TriggerWatch)

	results, err := ctx.PluginManager.RunAffected(pctx, paths)
	ctx.invalidate()

	Info("rebuild finished",
		"run", pctx.RunID,
		"generators", len(results),
		"files", ctx.FileManager.ResetStats().String(),
		"duration", time.Since(start).Round(time.Millisecond))
	return err
}

func (ctx *Context) invalidate() {
	if ctx.Posts != nil {
		ctx.Posts.Clear()
	}
	if ctx.Books != nil {
		ctx.Books.Clear()
	}
}

// LoadPosts returns the current posts.json, cached
func (ctx *Context) LoadPosts() (*PostManifest, error) {
	return ctx.Posts.GetOrCompute(PostsManifestName, func() (*PostManifest, error) {
		var m PostManifest
		if err := ReadManifest(ctx.FileManager.PublicPath(PostsManifestName), &m); err != nil {
			return nil, err
		}
		return &m, nil
	})
}

// LoadBooks returns the current books.json, cached
func (ctx *Context) LoadBooks() (*BookManifest, error) {
	return ctx.Books.GetOrCompute(BooksManifestName, func() (*BookManifest, error) {
		var m BookManifest
		if err := ReadManifest(ctx.FileManager.PublicPath(BooksManifestName), &m); err != nil {
			return nil, err
		}
		return &m, nil
	})
}
