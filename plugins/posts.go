package plugins

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sitegen/core"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Post folder conventions
const (
	PostContentFile      = "index.md"
	DescriptionMaxLength = 200
	CharsPerMinute       = 1000
)

// skippedPostFolders are scaffolding folders that never hold a post
var skippedPostFolders = []string{"_template", "template"}

// PostMeta is the validated front matter of a post
type PostMeta struct {
	Title       string
	Date        string
	Description string
	Image       string
	Categories  []string
	Tags        []string
	Draft       bool

	PublishedAt time.Time
}

// NewPostMeta reads the post fields from parsed front matter
func NewPostMeta(fm *core.FrontMatter) PostMeta {
	return PostMeta{
		Title:       fm.String("title"),
		Date:        fm.String("date"),
		Description: fm.String("description"),
		Image:       fm.String("image"),
		Categories:  fm.Strings("categories"),
		Tags:        fm.Strings("tags"),
		Draft:       fm.Bool("draft"),
	}
}

// Validate checks the required fields in a fixed order and stores the parsed
// date. The first failure is returned as a *core.FieldError.
func (m *PostMeta) Validate() error {
	if err := validation.Validate(m.Title, validation.Required); err != nil {
		return core.MissingField("title")
	}
	if err := validation.Validate(m.Date, validation.Required); err != nil {
		return core.MissingField("date")
	}

	var published time.Time
	parse := validation.By(func(value interface{}) error {
		t, err := dateparse.ParseIn(value.(string), time.UTC)
		if err != nil {
			return err
		}
		published = t
		return nil
	})
	if err := validation.Validate(m.Date, parse); err != nil {
		return core.InvalidField("date")
	}

	m.PublishedAt = published
	return nil
}

var (
	fencedCodeRe = regexp.MustCompile("(?s)```.*?```")
	headingRe    = regexp.MustCompile(`#+\s+`)
	emphasisRe   = regexp.MustCompile("[*_`]")
	imageRe      = regexp.MustCompile(`!\[.*?\]\(.*?\)`)
	linkRe       = regexp.MustCompile(`\[.*?\]\(.*?\)`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// DeriveDescription builds a plain-text summary of a markdown body
func DeriveDescription(body string) string {
	text := fencedCodeRe.ReplaceAllString(body, "")
	text = headingRe.ReplaceAllString(text, "")
	text = emphasisRe.ReplaceAllString(text, "")
	text = imageRe.ReplaceAllString(text, "")
	text = linkRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))

	if utf8.RuneCountInString(text) <= DescriptionMaxLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:DescriptionMaxLength]) + "..."
}

// ReadingTime estimates minutes from the character count, at least one
func ReadingTime(wordCount int) int {
	minutes := int(math.Ceil(float64(wordCount) / CharsPerMinute))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// PostProcessor turns post folders into manifest entries
type PostProcessor struct {
	Root  string
	Files *core.FileManager
}

// ProcessPostFolder reads posts/<name>/index.md, validates it, mirrors the
// folder's files into the public tree and returns the entry.
func (p *PostProcessor) ProcessPostFolder(name string) (core.PostEntry, error) {
	folder := filepath.Join(p.Root, name)
	indexPath := filepath.Join(folder, PostContentFile)

	info, err := os.Stat(indexPath)
	if err != nil || !info.Mode().IsRegular() {
		return core.PostEntry{}, core.ErrMissingContentFile
	}

	content, err := os.ReadFile(indexPath)
	if err != nil {
		return core.PostEntry{}, err
	}

	fm, err := core.ParseFrontMatter(string(content))
	if err != nil {
		return core.PostEntry{}, err
	}

	meta := NewPostMeta(fm)
	if err := meta.Validate(); err != nil {
		return core.PostEntry{}, err
	}

	for _, err := range p.Files.MirrorFiles(folder, p.Files.PublicPath("posts", name)) {
		core.Warn("failed to copy post asset", "post", name, "error", err)
	}

	var image *string
	if meta.Image != "" {
		if st, err := os.Stat(filepath.Join(folder, meta.Image)); err == nil && st.Mode().IsRegular() {
			url := "/posts/" + name + "/" + meta.Image
			image = &url
		}
	}

	description := meta.Description
	if description == "" {
		description = DeriveDescription(fm.Body)
	}

	wordCount := utf8.RuneCountInString(fm.Body)

	return core.PostEntry{
		Slug:         name,
		Title:        meta.Title,
		Description:  description,
		Date:         meta.Date,
		Image:        image,
		Categories:   meta.Categories,
		Tags:         meta.Tags,
		Draft:        meta.Draft,
		WordCount:    wordCount,
		ReadingTime:  ReadingTime(wordCount),
		LastModified: core.ISOTimestamp(info.ModTime()),
		PublishedAt:  meta.PublishedAt,
	}, nil
}

// SortPosts orders posts newest first. Posts with equal dates keep their order.
func SortPosts(posts []core.PostEntry) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].PublishedAt.After(posts[j].PublishedAt)
	})
}

// frequency counts names in first-seen order, then sorts by count descending
func frequency(posts []core.PostEntry, values func(core.PostEntry) []string) []core.NameCount {
	index := map[string]int{}
	counts := []core.NameCount{}
	for _, post := range posts {
		seen := map[string]bool{}
		for _, v := range values(post) {
			if seen[v] {
				continue
			}
			seen[v] = true
			if i, ok := index[v]; ok {
				counts[i].Count++
				continue
			}
			index[v] = len(counts)
			counts = append(counts, core.NameCount{Name: v, Count: 1})
		}
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	return counts
}

// ComputePostStats aggregates the statistics of a sorted post list
func ComputePostStats(posts []core.PostEntry) core.PostStats {
	stats := core.PostStats{
		Total:      len(posts),
		Categories: frequency(posts, func(p core.PostEntry) []string { return p.Categories }),
		Tags:       frequency(posts, func(p core.PostEntry) []string { return p.Tags }),
		Years:      []core.YearCount{},
	}

	years := map[int]int{}
	readingSum := 0
	for _, post := range posts {
		if post.Draft {
			stats.Draft++
		} else {
			stats.Published++
		}
		stats.TotalWords += post.WordCount
		readingSum += post.ReadingTime
		years[post.PublishedAt.Year()]++
	}

	for year, count := range years {
		stats.Years = append(stats.Years, core.YearCount{Year: year, Count: count})
	}
	sort.Slice(stats.Years, func(i, j int) bool {
		return stats.Years[i].Year > stats.Years[j].Year
	})

	if len(posts) > 0 {
		stats.AverageReadingTime = int(math.Ceil(float64(readingSum) / float64(len(posts))))
	}
	return stats
}

// GeneratePosts scans root and builds the manifest without writing it
func GeneratePosts(root string, files *core.FileManager) (*core.PostManifest, error) {
	folders, err := listFolders(root, skippedPostFolders...)
	if err != nil {
		return nil, err
	}

	processor := &PostProcessor{Root: root, Files: files}
	manifest := &core.PostManifest{
		Posts:  []core.PostEntry{},
		Errors: []core.ErrorRecord{},
	}

	for _, name := range folders {
		entry, err := processor.ProcessPostFolder(name)
		if err != nil {
			core.Error("failed to process post", "post", name, "error", err)
			core.GlobalMetrics.ItemErrors.Inc()
			manifest.Errors = append(manifest.Errors, core.ErrorRecord{Folder: name, Error: err.Error()})
			continue
		}
		core.Debug("processed post", "post", name)
		core.GlobalMetrics.ItemsProcessed.Inc()
		manifest.Posts = append(manifest.Posts, entry)
	}

	SortPosts(manifest.Posts)
	manifest.Stats = ComputePostStats(manifest.Posts)
	manifest.Generated = core.ISOTimestamp(time.Now())
	return manifest, nil
}

// PostsPlugin generates posts.json
type PostsPlugin struct {
	root string
}

// NewPostsPlugin creates the posts generator for the configured root
func NewPostsPlugin(config *core.Config) *PostsPlugin {
	return &PostsPlugin{root: absRoot(config.Paths.Posts)}
}

func (p *PostsPlugin) Name() string {
	return "posts"
}

func (p *PostsPlugin) Priority() int {
	return 100
}

func (p *PostsPlugin) Watches(path string) bool {
	return underRoot(p.root, path)
}

func (p *PostsPlugin) Generate(ctx *core.PluginContext) *core.PluginResult {
	manifest, err := GeneratePosts(ctx.Config.Paths.Posts, ctx.FileManager)
	if err != nil {
		if errors.Is(err, core.ErrInputRootMissing) {
			core.Error("posts root does not exist", "path", ctx.Config.Paths.Posts)
		}
		return &core.PluginResult{Error: err}
	}

	output, err := ctx.FileManager.WriteManifest(core.PostsManifestName, manifest)
	if err != nil {
		return &core.PluginResult{Error: err}
	}
	core.GlobalMetrics.PostsTotal.Set(int64(len(manifest.Posts)))

	core.Info("generated posts manifest",
		"posts", manifest.Stats.Total,
		"categories", len(manifest.Stats.Categories),
		"tags", len(manifest.Stats.Tags),
		"errors", len(manifest.Errors),
		"output", output)
	for _, rec := range manifest.Errors {
		core.Warn("post skipped", "folder", rec.Folder, "error", rec.Error)
	}

	return &core.PluginResult{
		Success:    true,
		Output:     output,
		Items:      len(manifest.Posts),
		ItemErrors: len(manifest.Errors),
		Manifest:   manifest,
	}
}
