package core

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const eventBufferSize = 100

// FileWatcher watches the content roots and reports changes on an event channel
type FileWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	watchedDirs map[string]bool
	roots       []string
	running     bool
	ctx         context.Context
	cancel      context.CancelFunc
	eventChan   chan FileWatchEvent
	wg          sync.WaitGroup
}

// FileWatchEventType represents the type of file system event
type FileWatchEventType int

const (
	FileCreated FileWatchEventType = iota
	FileModified
	FileDeleted
	FileRenamed
	DirCreated
	DirDeleted
)

var eventTypeNames = [...]string{
	FileCreated:  "FileCreated",
	FileModified: "FileModified",
	FileDeleted:  "FileDeleted",
	FileRenamed:  "FileRenamed",
	DirCreated:   "DirCreated",
	DirDeleted:   "DirDeleted",
}

func (t FileWatchEventType) String() string {
	if t < 0 || int(t) >= len(eventTypeNames) {
		return "Unknown"
	}
	return eventTypeNames[t]
}

// FileWatchEvent represents a file system change below one of the watched roots
type FileWatchEvent struct {
	Type  FileWatchEventType
	Root  string // watched root the change happened under
	Path  string // absolute path of the changed entry
	IsDir bool
	Time  time.Time
}

// Rel returns Path relative to Root
func (e FileWatchEvent) Rel() string {
	rel, err := filepath.Rel(e.Root, e.Path)
	if err != nil {
		return e.Path
	}
	return rel
}

// NewFileWatcher creates a stopped watcher
func NewFileWatcher() (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &FileWatcher{
		watcher:     watcher,
		watchedDirs: make(map[string]bool),
		ctx:         ctx,
		cancel:      cancel,
		eventChan:   make(chan FileWatchEvent, eventBufferSize),
	}, nil
}

// IsHidden reports whether a file or folder name starts with a dot
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// IgnoreFile returns true if a path should not trigger a rebuild
// (hidden entries, symlinks, editor and temporary files)
func IgnoreFile(path string, info os.FileInfo) bool {
	if info == nil {
		return true
	}

	baseName := filepath.Base(path)
	if IsHidden(baseName) {
		return true
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return true
	}

	return hasTempSuffix(baseName)
}

func hasTempSuffix(name string) bool {
	for _, suffix := range []string{".bak", ".tmp", "~", ".swp", ".lock"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// rootFor returns the watched root containing path
func (fw *FileWatcher) rootFor(path string) (string, bool) {
	fw.mu.RLock()
	defer fw.mu.RUnlock()

	best := ""
	for _, root := range fw.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			if len(root) > len(best) {
				best = root
			}
		}
	}
	return best, best != ""
}

// watchTree adds dir and every visible directory below it
func (fw *FileWatcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			Warn("cannot walk content directory", "path", path, "error", err)
			return nil
		case !d.IsDir():
			return nil
		case path != dir && IsHidden(d.Name()):
			return filepath.SkipDir
		}

		if err := fw.watcher.Add(path); err != nil {
			Warn("cannot watch content directory", "path", path, "error", err)
			return nil
		}

		fw.mu.Lock()
		fw.watchedDirs[path] = true
		fw.mu.Unlock()
		Debug("watching", "dir", path)
		return nil
	})
}

// unwatchTree forgets dir and every watched directory below it. fsnotify
// already dropped them when the directory went away, so Remove errors are ignored.
func (fw *FileWatcher) unwatchTree(dir string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	for watched := range fw.watchedDirs {
		if watched != dir && !strings.HasPrefix(watched, dir+string(filepath.Separator)) {
			continue
		}
		_ = fw.watcher.Remove(watched)
		delete(fw.watchedDirs, watched)
	}
}

// Start begins watching every root that exists. Missing roots are logged and
// skipped; at least one root has to be present.
func (fw *FileWatcher) Start(roots ...string) error {
	if len(roots) == 0 {
		return fmt.Errorf("at least one root path is required")
	}

	fw.mu.Lock()
	if fw.running {
		fw.mu.Unlock()
		return ErrWatcherRunning
	}
	fw.mu.Unlock()

	var present []string
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("failed to resolve root path %s: %w", root, err)
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			Warn("not watching missing root", "path", root)
			continue
		}
		present = append(present, abs)
	}
	if len(present) == 0 {
		return fmt.Errorf("%w: %s", ErrInputRootMissing, strings.Join(roots, ", "))
	}

	fw.mu.Lock()
	fw.running = true
	fw.roots = present
	fw.mu.Unlock()

	for _, root := range present {
		if err := fw.watchTree(root); err != nil {
			fw.mu.Lock()
			fw.running = false
			fw.mu.Unlock()
			return fmt.Errorf("failed to add initial directory watches: %w", err)
		}
	}

	fw.wg.Add(1)
	go fw.processWatcherEvents()

	Info("file watcher started", "roots", present)
	return nil
}

// Stop shuts the watcher down and closes the event channel
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return ErrWatcherNotRunning
	}
	fw.running = false
	fw.mu.Unlock()

	fw.cancel()
	err := fw.watcher.Close()
	fw.wg.Wait()
	close(fw.eventChan)

	Info("file watcher stopped")
	return err
}

func (fw *FileWatcher) processWatcherEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			RecordFileWatcherEvent()

			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				fw.handleCreated(event.Name)
			case event.Op&fsnotify.Write == fsnotify.Write:
				fw.handleModified(event.Name)
			case event.Op&fsnotify.Remove == fsnotify.Remove:
				fw.handleDeleted(event.Name, FileDeleted)
			case event.Op&fsnotify.Rename == fsnotify.Rename:
				// the new name arrives as a separate Create
				fw.handleDeleted(event.Name, FileRenamed)
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			Error("file watcher error", "error", err)
		}
	}
}

func (fw *FileWatcher) handleModified(path string) {
	info, err := os.Stat(path)
	if err != nil {
		Debug("modified file vanished", "path", path, "error", err)
		return
	}
	if IgnoreFile(path, info) || info.IsDir() {
		return
	}
	fw.emit(FileModified, path, false)
}

func (fw *FileWatcher) handleCreated(path string) {
	info, err := os.Stat(path)
	if err != nil {
		Debug("created file vanished", "path", path, "error", err)
		return
	}
	if IgnoreFile(path, info) {
		return
	}

	if info.IsDir() {
		if err := fw.watchTree(path); err != nil {
			Warn("failed to watch new directory", "path", path, "error", err)
		}
		fw.emit(DirCreated, path, true)
		return
	}
	fw.emit(FileCreated, path, false)
}

func (fw *FileWatcher) handleDeleted(path string, fileType FileWatchEventType) {
	if IsHidden(filepath.Base(path)) || hasTempSuffix(filepath.Base(path)) {
		return
	}

	fw.mu.RLock()
	wasDir := fw.watchedDirs[path]
	fw.mu.RUnlock()

	if wasDir {
		fw.unwatchTree(path)
		fw.emit(DirDeleted, path, true)
		return
	}
	fw.emit(fileType, path, false)
}

func (fw *FileWatcher) emit(eventType FileWatchEventType, path string, isDir bool) {
	root, ok := fw.rootFor(path)
	if !ok {
		return
	}
	fw.sendEvent(FileWatchEvent{
		Type:  eventType,
		Root:  root,
		Path:  path,
		IsDir: isDir,
		Time:  time.Now(),
	})
}

// sendEvent blocks while the listener is busy so that no root change is
// lost; it gives up only when the watcher is stopping.
func (fw *FileWatcher) sendEvent(event FileWatchEvent) {
	select {
	case fw.eventChan <- event:
	case <-fw.ctx.Done():
	}
}

// IsRunning returns whether the file watcher is currently running
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	return fw.running
}

// GetEventChannel returns the event channel for subscribers
func (fw *FileWatcher) GetEventChannel() <-chan FileWatchEvent {
	return fw.eventChan
}

// GetWatchedDirectories returns a copy of currently watched directories
func (fw *FileWatcher) GetWatchedDirectories() []string {
	fw.mu.RLock()
	defer fw.mu.RUnlock()

	dirs := make([]string, 0, len(fw.watchedDirs))
	for dir := range fw.watchedDirs {
		dirs = append(dirs, dir)
	}
	return dirs
}

// Roots returns the absolute roots being watched
func (fw *FileWatcher) Roots() []string {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	return append([]string(nil), fw.roots...)
}
