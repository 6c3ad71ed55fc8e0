package plugins

import (
	"errors"
	"os"
	"path/filepath"
	"sitegen/core"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Book folder conventions
const (
	BookConfigFile    = "book.toml"
	BookConfigSection = "book"
)

// BookConfig is the validated [book] section of book.toml
type BookConfig struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Author      []string `json:"author"`
	Ref         string   `json:"ref"`
	Link        string   `json:"link"`
	Image       string   `json:"image"`

	// Lenient is set when book.toml was not valid TOML
	Lenient bool `json:"-"`
}

// LoadBookConfig reads the [book] section of a book.toml document. Strict
// TOML is tried first; the line reader is used when it fails.
func LoadBookConfig(content string) BookConfig {
	var fields map[string]core.Value
	lenient := false

	if all, err := core.DecodeTOMLFields(content); err == nil {
		fields = make(map[string]core.Value)
		prefix := BookConfigSection + "."
		for key, value := range all {
			if strings.HasPrefix(key, prefix) {
				fields[strings.TrimPrefix(key, prefix)] = value
			}
		}
	} else {
		fields = core.ParseKeyValue(content, BookConfigSection)
		lenient = true
	}

	get := func(key string) string {
		return strings.TrimSpace(fields[key].String())
	}

	var authors []string
	if v, ok := fields["author"]; ok {
		for _, a := range v.Strings() {
			if a = strings.TrimSpace(a); a != "" {
				authors = append(authors, a)
			}
		}
	}

	return BookConfig{
		Title:       get("title"),
		Description: get("description"),
		Author:      authors,
		Ref:         get("ref"),
		Link:        get("link"),
		Image:       get("image"),
		Lenient:     lenient,
	}
}

// bookFieldOrder fixes which failure is reported when several fields are bad
var bookFieldOrder = []string{"title", "description", "author", "ref", "link"}

// Validate reports the first missing or invalid field as a *core.FieldError
func (c *BookConfig) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Title, validation.Required),
		validation.Field(&c.Description, validation.Required),
		validation.Field(&c.Author, validation.Required),
		validation.Field(&c.Ref, validation.Required, validation.In(core.RefBook, core.RefLink)),
		validation.Field(&c.Link, validation.When(c.Ref == core.RefLink, validation.Required)),
	)
	if err == nil {
		return nil
	}

	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, field := range bookFieldOrder {
		if _, ok := verrs[field]; !ok {
			continue
		}
		if field == "ref" && c.Ref != "" {
			return core.InvalidField(field)
		}
		return core.MissingField(field)
	}
	return err
}

// BookProcessor turns book folders into manifest entries
type BookProcessor struct {
	Root  string
	Files *core.FileManager
	Now   time.Time
}

func isMarkdown(name string) bool {
	return strings.HasSuffix(name, ".md")
}

// ProcessBookFolder reads books/<name>/book.toml and, for locally hosted
// books, the chapter tree. The bool result is true when the folder has no
// book.toml and was skipped.
func (p *BookProcessor) ProcessBookFolder(name string) (core.BookEntry, bool, error) {
	folder := filepath.Join(p.Root, name)
	configPath := filepath.Join(folder, BookConfigFile)

	content, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			core.Warn("skipping book folder without config", "book", name, "file", BookConfigFile)
			return core.BookEntry{}, true, nil
		}
		return core.BookEntry{}, false, err
	}

	config := LoadBookConfig(string(content))
	if config.Lenient {
		core.Warn("book config is not valid TOML, read leniently", "book", name)
	}
	if err := config.Validate(); err != nil {
		return core.BookEntry{}, false, err
	}

	entry := core.BookEntry{
		ID:          name,
		Title:       config.Title,
		Description: config.Description,
		Author:      config.Author,
		Image:       config.Image,
		Ref:         config.Ref,
		Link:        config.Link,
	}

	if config.Ref != core.RefBook {
		return entry, false, nil
	}

	chapters, err := ScanChapters(folder, 0)
	if err != nil {
		return core.BookEntry{}, false, err
	}
	if len(chapters) > 0 {
		total, words := CountChapters(chapters)
		entry.Chapters = chapters
		entry.Stats = &core.BookStats{
			TotalChapters: total,
			TotalWords:    words,
			LastModified:  p.Now.UTC().Format("2006-01-02"),
		}
	}

	for _, err := range p.Files.MirrorTree(folder, p.Files.PublicPath("books", name), isMarkdown, BookConfigFile) {
		core.Warn("failed to copy chapter file", "book", name, "error", err)
	}

	return entry, false, nil
}

// ComputeBooksStats aggregates the book list
func ComputeBooksStats(books []core.BookEntry) core.BooksStats {
	stats := core.BooksStats{Total: len(books)}
	for _, book := range books {
		switch book.Ref {
		case core.RefBook:
			stats.LocalBooks++
		case core.RefLink:
			stats.ExternalLinks++
		}
		if book.Stats != nil {
			stats.TotalChapters += book.Stats.TotalChapters
		}
	}
	return stats
}

// GenerateBooks scans root and builds the manifest without writing it
func GenerateBooks(root string, files *core.FileManager) (*core.BookManifest, error) {
	folders, err := listFolders(root)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	processor := &BookProcessor{Root: root, Files: files, Now: now}
	manifest := &core.BookManifest{
		Books:  []core.BookEntry{},
		Errors: []core.ErrorRecord{},
	}

	for _, name := range folders {
		entry, skipped, err := processor.ProcessBookFolder(name)
		if skipped {
			continue
		}
		if err != nil {
			core.Error("failed to process book", "book", name, "error", err)
			core.GlobalMetrics.ItemErrors.Inc()
			manifest.Errors = append(manifest.Errors, core.ErrorRecord{Folder: name, Error: err.Error()})
			continue
		}
		core.Debug("processed book", "book", name, "title", entry.Title)
		core.GlobalMetrics.ItemsProcessed.Inc()
		manifest.Books = append(manifest.Books, entry)
	}

	manifest.Stats = ComputeBooksStats(manifest.Books)
	manifest.Generated = core.ISOTimestamp(now)
	return manifest, nil
}

// BooksPlugin generates books.json
type BooksPlugin struct {
	root string
}

// NewBooksPlugin creates the books generator for the configured root
func NewBooksPlugin(config *core.Config) *BooksPlugin {
	return &BooksPlugin{root: absRoot(config.Paths.Books)}
}

func (p *BooksPlugin) Name() string {
	return "books"
}

func (p *BooksPlugin) Priority() int {
	return 200
}

func (p *BooksPlugin) Watches(path string) bool {
	return underRoot(p.root, path)
}

func (p *BooksPlugin) Generate(ctx *core.PluginContext) *core.PluginResult {
	manifest, err := GenerateBooks(ctx.Config.Paths.Books, ctx.FileManager)
	if err != nil {
		if errors.Is(err, core.ErrInputRootMissing) {
			core.Error("books root does not exist", "path", ctx.Config.Paths.Books)
		}
		return &core.PluginResult{Error: err}
	}

	output, err := ctx.FileManager.WriteManifest(core.BooksManifestName, manifest)
	if err != nil {
		return &core.PluginResult{Error: err}
	}
	core.GlobalMetrics.BooksTotal.Set(int64(len(manifest.Books)))

	core.Info("generated books manifest",
		"books", manifest.Stats.Total,
		"local", manifest.Stats.LocalBooks,
		"links", manifest.Stats.ExternalLinks,
		"chapters", manifest.Stats.TotalChapters,
		"errors", len(manifest.Errors),
		"output", output)

	return &core.PluginResult{
		Success:    true,
		Output:     output,
		Items:      len(manifest.Books),
		ItemErrors: len(manifest.Errors),
		Manifest:   manifest,
	}
}
