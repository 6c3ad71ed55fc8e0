package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, roots ...string) *FileWatcher {
	t.Helper()
	fw, err := NewFileWatcher()
	require.NoError(t, err)
	require.NoError(t, fw.Start(roots...))
	t.Cleanup(func() {
		if fw.IsRunning() {
			fw.Stop()
		}
	})
	return fw
}

func TestIgnoreFile(t *testing.T) {
	dir := t.TempDir()
	regular := filepath.Join(dir, "index.md")
	writeFile(t, regular, "x")
	info, err := os.Stat(regular)
	require.NoError(t, err)

	tests := []struct {
		name string
		want bool
	}{
		{"index.md", false},
		{".DS_Store", true},
		{"index.md~", true},
		{"index.md.swp", true},
		{"draft.tmp", true},
		{"package.lock", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IgnoreFile(filepath.Join(dir, tt.name), info))
		})
	}

	assert.True(t, IgnoreFile(regular, nil))
}

func TestFileWatcher_StartStop(t *testing.T) {
	posts := t.TempDir()
	books := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(books, "my-book", "01-intro"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(books, ".git"), 0755))

	fw := startWatcher(t, posts, books)
	assert.True(t, fw.IsRunning())
	assert.ElementsMatch(t, []string{posts, books}, fw.Roots())

	dirs := fw.GetWatchedDirectories()
	assert.Contains(t, dirs, filepath.Join(books, "my-book", "01-intro"))
	assert.NotContains(t, dirs, filepath.Join(books, ".git"))

	assert.ErrorIs(t, fw.Start(posts), ErrWatcherRunning)

	require.NoError(t, fw.Stop())
	assert.False(t, fw.IsRunning())
	assert.ErrorIs(t, fw.Stop(), ErrWatcherNotRunning)
}

func TestFileWatcher_MissingRoots(t *testing.T) {
	dir := t.TempDir()

	fw, err := NewFileWatcher()
	require.NoError(t, err)
	err = fw.Start(filepath.Join(dir, "nope"), filepath.Join(dir, "also-nope"))
	assert.ErrorIs(t, err, ErrInputRootMissing)
	assert.False(t, fw.IsRunning())

	present := filepath.Join(dir, "posts")
	require.NoError(t, os.MkdirAll(present, 0755))
	fw = startWatcher(t, present, filepath.Join(dir, "books"))
	assert.Equal(t, []string{present}, fw.Roots())
}

func TestFileWatcher_Events(t *testing.T) {
	posts := t.TempDir()
	books := t.TempDir()
	fw := startWatcher(t, posts, books)

	collector := NewEventCollector(fw.GetEventChannel(), 3*time.Second)
	collector.Start()

	post := filepath.Join(posts, "hello-world")
	require.NoError(t, os.Mkdir(post, 0755))
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(post, "index.md"), "+++\ntitle = \"x\"\n+++\n")
	writeFile(t, filepath.Join(books, "book.toml.swp"), "ignored")

	events := collector.WaitForEvents(2)
	collector.Stop()
	require.NotEmpty(t, events)

	var sawDir, sawFile bool
	for _, ev := range events {
		assert.NotContains(t, ev.Path, ".swp")
		switch {
		case ev.Type == DirCreated && ev.Path == post:
			sawDir = true
			assert.Equal(t, posts, ev.Root)
			assert.Equal(t, "hello-world", ev.Rel())
		case !ev.IsDir && ev.Path == filepath.Join(post, "index.md"):
			sawFile = true
			assert.Equal(t, filepath.Join("hello-world", "index.md"), ev.Rel())
		}
	}
	assert.True(t, sawDir, "expected DirCreated for the new post folder")
	assert.True(t, sawFile, "expected an event for index.md in the new folder")
}

func TestFileWatchEventType_String(t *testing.T) {
	assert.Equal(t, "FileCreated", FileCreated.String())
	assert.Equal(t, "DirDeleted", DirDeleted.String())
	assert.Equal(t, "Unknown", FileWatchEventType(99).String())
}

func TestFileWatcher_FullBufferKeepsEvents(t *testing.T) {
	fw, err := NewFileWatcher()
	require.NoError(t, err)
	defer fw.watcher.Close()

	for i := 0; i < eventBufferSize; i++ {
		fw.sendEvent(FileWatchEvent{Type: FileModified, Root: "/posts", Path: "/posts/a/index.md"})
	}

	sent := make(chan struct{})
	go func() {
		fw.sendEvent(FileWatchEvent{Type: FileCreated, Root: "/books", Path: "/books/b/book.toml"})
		close(sent)
	}()

	select {
	case <-sent:
		t.Fatal("send returned while the buffer was full")
	case <-time.After(50 * time.Millisecond):
	}

	var last FileWatchEvent
	for i := 0; i <= eventBufferSize; i++ {
		last = <-fw.eventChan
	}
	<-sent
	assert.Equal(t, "/books", last.Root)
	assert.Equal(t, FileCreated, last.Type)
}

func TestFileWatcher_SendReturnsOnStop(t *testing.T) {
	fw, err := NewFileWatcher()
	require.NoError(t, err)
	defer fw.watcher.Close()

	for i := 0; i < eventBufferSize; i++ {
		fw.sendEvent(FileWatchEvent{Type: FileModified})
	}

	sent := make(chan struct{})
	go func() {
		fw.sendEvent(FileWatchEvent{Type: FileModified})
		close(sent)
	}()
	fw.cancel()

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("send blocked after cancel")
	}
	assert.Len(t, fw.eventChan, eventBufferSize)
}
