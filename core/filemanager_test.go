package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestFilesAreIdentical(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	c := filepath.Join(dir, "c")
	d := filepath.Join(dir, "d")
	writeFile(t, a, "same content")
	writeFile(t, b, "same content")
	writeFile(t, c, "same-content")
	writeFile(t, d, "shorter")

	assert.True(t, FilesAreIdentical(a, b))
	assert.False(t, FilesAreIdentical(a, c), "same size, different bytes")
	assert.False(t, FilesAreIdentical(a, d), "different size")
	assert.False(t, FilesAreIdentical(a, filepath.Join(dir, "missing")))
	assert.False(t, FilesAreIdentical(a, dir), "destination is a directory")
}

func TestFilesAreIdentical_LargeFiles(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 3*compareChunkSize+17)
	for i := range data {
		data[i] = byte(i % 251)
	}
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(a, data, 0644))
	require.NoError(t, os.WriteFile(b, data, 0644))
	assert.True(t, FilesAreIdentical(a, b))

	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(b, data, 0644))
	assert.False(t, FilesAreIdentical(a, b))
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src", "cover.png")
	dst := filepath.Join(dir, "public", "posts", "p", "cover.png")
	writeFile(t, src, "png bytes")

	fm := NewFileManager(filepath.Join(dir, "public"))

	copied, err := fm.CopyFile(src, dst)
	require.NoError(t, err)
	assert.True(t, copied)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "png bytes", string(got))

	copied, err = fm.CopyFile(src, dst)
	require.NoError(t, err)
	assert.False(t, copied, "identical destination is not rewritten")

	stats := fm.ResetStats()
	assert.Equal(t, 1, stats.Copied)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, CopyStats{}, fm.Stats())
}

func TestCopyFile_Errors(t *testing.T) {
	dir := t.TempDir()
	fm := NewFileManager(dir)

	_, err := fm.CopyFile(filepath.Join(dir, "missing"), filepath.Join(dir, "out"))
	var fmErr *FileManagerError
	require.ErrorAs(t, err, &fmErr)
	assert.Equal(t, "stat", fmErr.Op)

	_, err = fm.CopyFile(dir, filepath.Join(dir, "out"))
	assert.ErrorIs(t, err, ErrNotRegularFile)
}

func TestMirrorFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "post")
	writeFile(t, filepath.Join(src, "index.md"), "# hi")
	writeFile(t, filepath.Join(src, "image.jpg"), "jpg")
	writeFile(t, filepath.Join(src, "nested", "skip.txt"), "not copied")

	dst := filepath.Join(dir, "public", "posts", "post")
	fm := NewFileManager(filepath.Join(dir, "public"))
	errs := fm.MirrorFiles(src, dst)
	assert.Empty(t, errs)

	assert.FileExists(t, filepath.Join(dst, "index.md"))
	assert.FileExists(t, filepath.Join(dst, "image.jpg"))
	assert.NoDirExists(t, filepath.Join(dst, "nested"))
}

func TestMirrorTree(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "book")
	writeFile(t, filepath.Join(src, "book.toml"), "[book]")
	writeFile(t, filepath.Join(src, "01-intro", "index.md"), "# Intro")
	writeFile(t, filepath.Join(src, "01-intro", "diagram.svg"), "<svg/>")
	writeFile(t, filepath.Join(src, "02-next", "deep", "README.md"), "# Deep")
	writeFile(t, filepath.Join(src, ".git", "HEAD.md"), "hidden")

	dst := filepath.Join(dir, "public", "books", "book")
	fm := NewFileManager(filepath.Join(dir, "public"))
	onlyMarkdown := func(name string) bool { return filepath.Ext(name) == ".md" }

	errs := fm.MirrorTree(src, dst, onlyMarkdown, "book.toml")
	assert.Empty(t, errs)

	assert.FileExists(t, filepath.Join(dst, "01-intro", "index.md"))
	assert.FileExists(t, filepath.Join(dst, "02-next", "deep", "README.md"))
	assert.NoFileExists(t, filepath.Join(dst, "01-intro", "diagram.svg"))
	assert.NoFileExists(t, filepath.Join(dst, "book.toml"))
	assert.NoDirExists(t, filepath.Join(dst, ".git"))
}

func TestFileManager_DryRun(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "post")
	writeFile(t, filepath.Join(src, "index.md"), "# hi")

	public := filepath.Join(dir, "public")
	fm := NewFileManager(public)
	fm.DryRun = true

	errs := fm.MirrorFiles(src, filepath.Join(public, "posts", "post"))
	assert.Empty(t, errs)
	assert.Equal(t, 1, fm.Stats().Copied, "dry runs still count copies")

	path, err := fm.WriteManifest(PostsManifestName, map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(public, PostsManifestName), path)

	_, err = fm.WriteFile("robots.txt", []byte("x"))
	require.NoError(t, err)

	assert.NoDirExists(t, public)
}

func TestFileManager_WriteFile(t *testing.T) {
	public := filepath.Join(t.TempDir(), "public")
	fm := NewFileManager(public)

	path, err := fm.WriteFile("robots.txt", []byte("User-agent: *\n"))
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "User-agent: *\n", string(got))
}

func TestCopyStats_String(t *testing.T) {
	s := CopyStats{Copied: 2, Skipped: 3, Bytes: 2048}
	assert.Contains(t, s.String(), "2 copied")
	assert.Contains(t, s.String(), "3 unchanged")
}
