package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Rebuilder re-runs the generators affected by a set of changed paths
type Rebuilder interface {
	Rebuild(paths []string) error
}

// RebuilderFunc adapts a function to the Rebuilder interface
type RebuilderFunc func(paths []string) error

func (f RebuilderFunc) Rebuild(paths []string) error {
	return f(paths)
}

// FileWatcherListener consumes watcher events on a single goroutine. Events
// are collected until the watcher has been quiet for the debounce period,
// then one rebuild runs for all collected paths. Rebuilds never overlap.
type FileWatcherListener struct {
	mu       sync.RWMutex
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	fw       *FileWatcher
	rebuild  Rebuilder
	debounce time.Duration
}

// RegisterFileWatcherListener creates a listener for fw and starts it
func RegisterFileWatcherListener(fw *FileWatcher, rebuild Rebuilder, debounce time.Duration) (*FileWatcherListener, error) {
	fwl := newFileWatcherListener(rebuild, debounce)

	if err := fwl.Start(fw); err != nil {
		return nil, fmt.Errorf("failed to start file watcher listener: %w", err)
	}

	return fwl, nil
}

func newFileWatcherListener(rebuild Rebuilder, debounce time.Duration) *FileWatcherListener {
	ctx, cancel := context.WithCancel(context.Background())

	return &FileWatcherListener{
		ctx:      ctx,
		cancel:   cancel,
		rebuild:  rebuild,
		debounce: debounce,
	}
}

// Start begins listening to events from the file watcher
func (fwl *FileWatcherListener) Start(fw *FileWatcher) error {
	if fw == nil {
		return fmt.Errorf("file watcher cannot be nil")
	}
	if fwl.rebuild == nil {
		return fmt.Errorf("rebuilder cannot be nil")
	}

	fwl.mu.Lock()
	defer fwl.mu.Unlock()

	if fwl.running {
		return fmt.Errorf("listener is already running")
	}

	fwl.running = true
	fwl.fw = fw

	fwl.wg.Add(1)
	go fwl.processEvents(fw.GetEventChannel())

	Debug("started listening to file watcher events", "debounce", fwl.debounce)
	return nil
}

// Stop stops the event listener. Pending changes are dropped.
func (fwl *FileWatcherListener) Stop() error {
	fwl.mu.Lock()
	if !fwl.running {
		fwl.mu.Unlock()
		return fmt.Errorf("listener is not running")
	}
	fwl.running = false
	fwl.mu.Unlock()

	fwl.cancel()
	fwl.wg.Wait()

	Debug("stopped listening to file watcher events")
	return nil
}

// IsRunning returns whether the listener is currently active
func (fwl *FileWatcherListener) IsRunning() bool {
	fwl.mu.RLock()
	defer fwl.mu.RUnlock()
	return fwl.running
}

// processEvents is the main event loop
func (fwl *FileWatcherListener) processEvents(eventChan <-chan FileWatchEvent) {
	defer fwl.wg.Done()

	pending := make(map[string]bool)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-fwl.ctx.Done():
			return

		case event, ok := <-eventChan:
			if !ok {
				fwl.flush(pending)
				return
			}

			Debug("content changed", "type", event.Type.String(), "path", event.Rel(), "root", event.Root)
			pending[event.Path] = true

			timer.Stop()
			select {
			case <-timer.C:
			default:
			}
			timer.Reset(fwl.debounce)

		case <-timer.C:
			fwl.flush(pending)
		}
	}
}

func (fwl *FileWatcherListener) flush(pending map[string]bool) {
	if len(pending) == 0 {
		return
	}

	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
		delete(pending, p)
	}
	sort.Strings(paths)

	GlobalMetrics.RebuildsTotal.Inc()
	Info("rebuilding", "changes", len(paths))
	if err := fwl.rebuild.Rebuild(paths); err != nil {
		Error("rebuild failed", "error", err)
	}
}
