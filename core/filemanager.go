package core

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
)

const compareChunkSize = 32 * 1024

// CopyStats counts what the FileManager did during a run
type CopyStats struct {
	Copied  int
	Skipped int
	Failed  int
	Bytes   int64
}

// String renders the stats for summary logs
func (s CopyStats) String() string {
	return fmt.Sprintf("%d copied (%s), %d unchanged, %d failed",
		s.Copied, humanize.Bytes(uint64(s.Bytes)), s.Skipped, s.Failed)
}

// FileManager owns every write into the public output tree: mirrored post
// assets, mirrored book chapters and the manifests themselves.
type FileManager struct {
	mu              sync.Mutex
	PublicDirectory string
	DryRun          bool // when set nothing is written, but stats are still counted
	stats           CopyStats
}

// NewFileManager creates a file manager rooted at the public directory
func NewFileManager(publicDirectory string) *FileManager {
	return &FileManager{PublicDirectory: publicDirectory}
}

// PublicPath joins path elements onto the public directory
func (fm *FileManager) PublicPath(elem ...string) string {
	return filepath.Join(append([]string{fm.PublicDirectory}, elem...)...)
}

// Stats returns the counters accumulated since the last reset
func (fm *FileManager) Stats() CopyStats {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.stats
}

// ResetStats clears the counters, returning the previous values
func (fm *FileManager) ResetStats() CopyStats {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	prev := fm.stats
	fm.stats = CopyStats{}
	return prev
}

func (fm *FileManager) record(fn func(s *CopyStats)) {
	fm.mu.Lock()
	fn(&fm.stats)
	fm.mu.Unlock()
}

// FilesAreIdentical reports whether dst exists and has the same bytes as src.
// Sizes are compared first, content only when the sizes match.
func FilesAreIdentical(src, dst string) bool {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		return false
	}
	if !dstInfo.Mode().IsRegular() || srcInfo.Size() != dstInfo.Size() {
		return false
	}

	a, err := os.Open(src)
	if err != nil {
		return false
	}
	defer a.Close()

	b, err := os.Open(dst)
	if err != nil {
		return false
	}
	defer b.Close()

	ra := bufio.NewReaderSize(a, compareChunkSize)
	rb := bufio.NewReaderSize(b, compareChunkSize)
	bufA := make([]byte, compareChunkSize)
	bufB := make([]byte, compareChunkSize)

	for {
		na, errA := io.ReadFull(ra, bufA)
		nb, errB := io.ReadFull(rb, bufB)
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false
		}
		doneA := errA == io.EOF || errA == io.ErrUnexpectedEOF
		doneB := errB == io.EOF || errB == io.ErrUnexpectedEOF
		if doneA || doneB {
			return doneA && doneB
		}
		if errA != nil || errB != nil {
			return false
		}
	}
}

// CopyFile copies src to dst unless dst already holds identical bytes.
// It reports whether a write happened.
func (fm *FileManager) CopyFile(src, dst string) (bool, error) {
	info, err := os.Stat(src)
	if err != nil {
		fm.record(func(s *CopyStats) { s.Failed++ })
		return false, NewFileManagerError("stat", src, err)
	}
	if !info.Mode().IsRegular() {
		return false, NewFileManagerError("copy", src, ErrNotRegularFile)
	}

	if FilesAreIdentical(src, dst) {
		fm.record(func(s *CopyStats) { s.Skipped++ })
		GlobalMetrics.FilesSkipped.Inc()
		Debug("file is up to date", "path", dst)
		return false, nil
	}

	if fm.DryRun {
		fm.record(func(s *CopyStats) { s.Copied++; s.Bytes += info.Size() })
		return true, nil
	}

	if err := copyFileContents(src, dst); err != nil {
		fm.record(func(s *CopyStats) { s.Failed++ })
		return false, err
	}

	fm.record(func(s *CopyStats) { s.Copied++; s.Bytes += info.Size() })
	GlobalMetrics.FilesCopied.Inc()
	Debug("copied file", "from", src, "to", dst)
	return true, nil
}

func copyFileContents(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return NewFileManagerError("mkdir", filepath.Dir(dst), err)
	}

	in, err := os.Open(src)
	if err != nil {
		return NewFileManagerError("open", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return NewFileManagerError("create", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return NewFileManagerError("copy", dst, err)
	}

	if err := out.Close(); err != nil {
		return NewFileManagerError("close", dst, err)
	}
	return nil
}

// MirrorFiles copies every regular file directly inside srcDir into dstDir.
// Subdirectories are not descended. Individual copy failures are collected and
// returned; they never stop the remaining copies.
func (fm *FileManager) MirrorFiles(srcDir, dstDir string) []error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return []error{NewFileManagerError("readdir", srcDir, err)}
	}

	if !fm.DryRun {
		if err := os.MkdirAll(dstDir, 0755); err != nil {
			return []error{NewFileManagerError("mkdir", dstDir, err)}
		}
	}

	var errs []error
	for _, entry := range entries {
		src := filepath.Join(srcDir, entry.Name())
		info, err := os.Stat(src)
		if err != nil {
			errs = append(errs, NewFileManagerError("stat", src, err))
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if _, err := fm.CopyFile(src, filepath.Join(dstDir, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// MirrorTree copies the files under srcDir accepted by include into dstDir,
// preserving relative paths. Hidden entries and names listed in skip are
// ignored, directories included.
func (fm *FileManager) MirrorTree(srcDir, dstDir string, include func(name string) bool, skip ...string) []error {
	skipped := make(map[string]bool, len(skip))
	for _, name := range skip {
		skipped[name] = true
	}

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return []error{NewFileManagerError("readdir", srcDir, err)}
	}

	if !fm.DryRun {
		if err := os.MkdirAll(dstDir, 0755); err != nil {
			return []error{NewFileManagerError("mkdir", dstDir, err)}
		}
	}

	var errs []error
	for _, entry := range entries {
		name := entry.Name()
		if skipped[name] || IsHidden(name) {
			continue
		}

		src := filepath.Join(srcDir, name)
		dst := filepath.Join(dstDir, name)

		if entry.IsDir() {
			errs = append(errs, fm.MirrorTree(src, dst, include, skip...)...)
			continue
		}

		if include != nil && !include(name) {
			continue
		}
		if _, err := fm.CopyFile(src, dst); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// WriteManifest writes v as JSON to name inside the public directory
func (fm *FileManager) WriteManifest(name string, v any) (string, error) {
	path := fm.PublicPath(name)
	if fm.DryRun {
		return path, nil
	}
	return path, WriteManifest(path, v)
}

// WriteFile writes raw bytes to name inside the public directory
func (fm *FileManager) WriteFile(name string, data []byte) (string, error) {
	path := fm.PublicPath(name)
	if fm.DryRun {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return path, NewFileManagerError("mkdir", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return path, NewFileManagerError("write", path, err)
	}
	return path, nil
}
