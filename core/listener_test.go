package core

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedListener drives a listener from a hand-fed channel instead of fsnotify
func feedListener(t *testing.T, rebuild Rebuilder, debounce time.Duration) (*FileWatcherListener, chan FileWatchEvent) {
	t.Helper()
	events := make(chan FileWatchEvent, 16)
	fwl := newFileWatcherListener(rebuild, debounce)
	fwl.running = true
	fwl.wg.Add(1)
	go fwl.processEvents(events)
	t.Cleanup(func() {
		if fwl.IsRunning() {
			fwl.Stop()
		}
	})
	return fwl, events
}

func TestListener_DebouncesBursts(t *testing.T) {
	recorder := &RebuildRecorder{}
	_, events := feedListener(t, recorder, 50*time.Millisecond)

	for _, p := range []string{"/src/posts/b/index.md", "/src/posts/a/index.md", "/src/posts/b/index.md"} {
		events <- FileWatchEvent{Type: FileModified, Root: "/src/posts", Path: p}
		time.Sleep(5 * time.Millisecond)
	}

	calls := recorder.WaitForCalls(1, 2*time.Second)
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"/src/posts/a/index.md", "/src/posts/b/index.md"}, calls[0])

	time.Sleep(150 * time.Millisecond)
	assert.Len(t, recorder.Calls(), 1, "no extra rebuild without new events")
}

func TestListener_SeparateBursts(t *testing.T) {
	recorder := &RebuildRecorder{}
	_, events := feedListener(t, recorder, 30*time.Millisecond)

	events <- FileWatchEvent{Path: "/src/posts/a/index.md"}
	recorder.WaitForCalls(1, 2*time.Second)
	events <- FileWatchEvent{Path: "/src/books/b/book.toml"}

	calls := recorder.WaitForCalls(2, 2*time.Second)
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"/src/books/b/book.toml"}, calls[1])
}

func TestListener_RebuildsDoNotOverlap(t *testing.T) {
	var mu sync.Mutex
	active, maxActive, calls := 0, 0, 0
	slow := RebuilderFunc(func(paths []string) error {
		mu.Lock()
		active++
		calls++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(60 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return errors.New("failures are only logged")
	})

	_, events := feedListener(t, slow, 10*time.Millisecond)
	for i := 0; i < 5; i++ {
		events <- FileWatchEvent{Path: filepath.Join("/src/posts", string(rune('a'+i)))}
		time.Sleep(40 * time.Millisecond)
	}
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxActive)
	assert.GreaterOrEqual(t, calls, 1)
}

func TestListener_FlushesWhenChannelCloses(t *testing.T) {
	recorder := &RebuildRecorder{}
	fwl := newFileWatcherListener(recorder, time.Hour)
	events := make(chan FileWatchEvent, 1)
	fwl.running = true
	fwl.wg.Add(1)
	go fwl.processEvents(events)

	events <- FileWatchEvent{Path: "/src/posts/a/index.md"}
	close(events)
	fwl.wg.Wait()

	assert.Equal(t, [][]string{{"/src/posts/a/index.md"}}, recorder.Calls())
}

func TestListener_StartStop(t *testing.T) {
	_, err := RegisterFileWatcherListener(nil, &RebuildRecorder{}, time.Millisecond)
	assert.Error(t, err)

	dir := t.TempDir()
	fw := startWatcher(t, dir)

	_, err = RegisterFileWatcherListener(fw, nil, time.Millisecond)
	assert.Error(t, err)

	fwl, err := RegisterFileWatcherListener(fw, &RebuildRecorder{}, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, fwl.IsRunning())
	assert.Error(t, fwl.Start(fw), "second start fails")

	require.NoError(t, fwl.Stop())
	assert.False(t, fwl.IsRunning())
	assert.Error(t, fwl.Stop())
}

func TestListener_WithWatcher(t *testing.T) {
	dir := t.TempDir()
	post := filepath.Join(dir, "hello")
	require.NoError(t, os.MkdirAll(post, 0755))

	fw := startWatcher(t, dir)
	recorder := &RebuildRecorder{}
	fwl, err := RegisterFileWatcherListener(fw, recorder, 50*time.Millisecond)
	require.NoError(t, err)
	defer fwl.Stop()

	writeFile(t, filepath.Join(post, "index.md"), "+++\ntitle = \"Hello\"\n+++\n")

	calls := recorder.WaitForCalls(1, 3*time.Second)
	require.NotEmpty(t, calls)
	assert.Contains(t, calls[0], filepath.Join(post, "index.md"))
}
