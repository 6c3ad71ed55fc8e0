package plugins

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sitegen/core"
	"sort"
	"strconv"
	"strings"
)

// UnorderedChapter is the order of folders without a numeric prefix; they sort last
const UnorderedChapter = math.MaxInt32

var chapterNameRe = regexp.MustCompile(`^(\d+)-(.+)$`)

// ParseChapterName splits "10-intro" into order 10 and title "intro".
// Other names get UnorderedChapter and keep the whole name as title.
func ParseChapterName(name string) (int, string) {
	match := chapterNameRe.FindStringSubmatch(name)
	if match == nil {
		return UnorderedChapter, name
	}
	order, err := strconv.Atoi(match[1])
	if err != nil || order > UnorderedChapter {
		return UnorderedChapter, name
	}
	return order, match[2]
}

// ScanChapters builds the chapter tree below dir. Only subdirectories are
// chapters; files in dir itself are ignored.
func ScanChapters(dir string, level int) ([]core.ChapterNode, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, core.NewFileManagerError("readdir", dir, err)
	}

	chapters := []core.ChapterNode{}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || core.IsHidden(name) {
			continue
		}

		path := filepath.Join(dir, name)
		node := scanChapter(path, name, level)

		children, err := ScanChapters(path, level+1)
		if err != nil {
			core.Warn("failed to scan sub-chapters", "path", path, "error", err)
		}
		if len(children) > 0 {
			node.Children = children
		}

		chapters = append(chapters, node)
	}

	sort.SliceStable(chapters, func(i, j int) bool {
		return chapters[i].Order < chapters[j].Order
	})
	return chapters, nil
}

func scanChapter(path, name string, level int) core.ChapterNode {
	order, title := ParseChapterName(name)
	node := core.ChapterNode{
		ID:    name,
		Title: title,
		Order: order,
		Level: level,
	}

	contentPath, data, err := readContentFile(path, core.ChapterContentFiles...)
	if errors.Is(err, core.ErrMissingContentFile) {
		return node
	}
	node.HasContent = true
	if err != nil {
		core.Error("failed to read chapter", "path", contentPath, "error", err)
		return node
	}

	fm, err := core.ParseFrontMatter(string(data))
	if err != nil {
		core.Error("failed to parse chapter front matter", "path", contentPath, "error", err)
		return node
	}

	node.WordCount = len(strings.Fields(fm.Body))
	if heading, ok := FirstHeading([]byte(fm.Body)); ok {
		core.Debug("chapter title from heading", "folder", name, "title", heading)
		node.Title = heading
	}
	return node
}

// CountChapters returns the number of chapters with content and their total words
func CountChapters(chapters []core.ChapterNode) (int, int) {
	total, words := 0, 0
	for _, chapter := range chapters {
		if chapter.HasContent {
			total++
			words += chapter.WordCount
		}
		t, w := CountChapters(chapter.Children)
		total += t
		words += w
	}
	return total, words
}

// WalkChapters calls fn for every chapter with its slash-separated path
// below the book directory
func WalkChapters(chapters []core.ChapterNode, fn func(path string, chapter core.ChapterNode)) {
	walkChapters("", chapters, fn)
}

func walkChapters(prefix string, chapters []core.ChapterNode, fn func(string, core.ChapterNode)) {
	for _, chapter := range chapters {
		path := chapter.ID
		if prefix != "" {
			path = prefix + "/" + chapter.ID
		}
		fn(path, chapter)
		walkChapters(path, chapter.Children, fn)
	}
}
