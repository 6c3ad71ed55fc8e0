package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Manifest file names inside the public directory
const (
	PostsManifestName = "posts.json"
	BooksManifestName = "books.json"
)

// ChapterContentFiles are tried in order for a chapter folder's text
var ChapterContentFiles = []string{"index.md", "README.md"}

// Book reference kinds
const (
	RefBook = "book"
	RefLink = "link"
)

// ISOTimestamp formats t the way the frontend expects timestamps: UTC, milliseconds.
func ISOTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// PostEntry describes one published or draft post
type PostEntry struct {
	Slug         string   `json:"slug"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Date         string   `json:"date"`
	Image        *string  `json:"image"`
	Categories   []string `json:"categories"`
	Tags         []string `json:"tags"`
	Draft        bool     `json:"draft"`
	WordCount    int      `json:"wordCount"`
	ReadingTime  int      `json:"readingTime"`
	LastModified string   `json:"lastModified"`

	// parsed Date, used for ordering and year statistics
	PublishedAt time.Time `json:"-"`
}

// NameCount is one row of a category or tag frequency table
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// YearCount is one row of the per-year table
type YearCount struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

// PostStats aggregates the post list
type PostStats struct {
	Total              int         `json:"total"`
	Published          int         `json:"published"`
	Draft              int         `json:"draft"`
	Categories         []NameCount `json:"categories"`
	Tags               []NameCount `json:"tags"`
	Years              []YearCount `json:"years"`
	TotalWords         int         `json:"totalWords"`
	AverageReadingTime int         `json:"averageReadingTime"`
}

// ErrorRecord is a per-folder processing failure written into a manifest
type ErrorRecord struct {
	Folder string `json:"folder"`
	Error  string `json:"error"`
}

// PostManifest is the document written to posts.json
type PostManifest struct {
	Posts     []PostEntry   `json:"posts"`
	Stats     PostStats     `json:"stats"`
	Errors    []ErrorRecord `json:"errors"`
	Generated string        `json:"generated"`
}

// ChapterNode is one chapter folder of a locally hosted book
type ChapterNode struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Order      int           `json:"order"`
	Level      int           `json:"level"`
	HasContent bool          `json:"hasContent"`
	WordCount  int           `json:"wordCount"`
	Children   []ChapterNode `json:"children,omitempty"`
}

// BookStats summarizes the chapter tree of one book
type BookStats struct {
	TotalChapters int    `json:"totalChapters"`
	TotalWords    int    `json:"totalWords"`
	LastModified  string `json:"lastModified"`
}

// BookEntry describes one book folder
type BookEntry struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Author      []string      `json:"author"`
	Image       string        `json:"image,omitempty"`
	Ref         string        `json:"ref"`
	Link        string        `json:"link,omitempty"`
	Chapters    []ChapterNode `json:"chapters,omitempty"`
	Stats       *BookStats    `json:"stats,omitempty"`
}

// BooksStats aggregates the book list
type BooksStats struct {
	Total         int `json:"total"`
	LocalBooks    int `json:"localBooks"`
	ExternalLinks int `json:"externalLinks"`
	TotalChapters int `json:"totalChapters"`
}

// BookManifest is the document written to books.json
type BookManifest struct {
	Books     []BookEntry   `json:"books"`
	Stats     BooksStats    `json:"stats"`
	Errors    []ErrorRecord `json:"errors"`
	Generated string        `json:"generated"`
}

// FindPost returns the post with the given slug
func (m *PostManifest) FindPost(slug string) (PostEntry, bool) {
	for _, p := range m.Posts {
		if p.Slug == slug {
			return p, true
		}
	}
	return PostEntry{}, false
}

// FindBook returns the book with the given id
func (m *BookManifest) FindBook(id string) (BookEntry, bool) {
	for _, b := range m.Books {
		if b.ID == id {
			return b, true
		}
	}
	return BookEntry{}, false
}

// EncodeManifest renders v as indented JSON without HTML escaping
func EncodeManifest(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteManifest serializes v to path, creating parent directories and
// overwriting any previous file.
func WriteManifest(path string, v any) error {
	data, err := EncodeManifest(v)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return NewFileManagerError("mkdir", filepath.Dir(path), err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return NewFileManagerError("write", path, err)
	}

	return nil
}

// ReadManifest decodes the JSON document at path into v
func ReadManifest(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return nil
}
