package plugins

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sitegen/core"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// Kinds of indexed documents
const (
	SearchKindPost    = "post"
	SearchKindChapter = "chapter"
)

// SearchDocument is what gets indexed for a post or a chapter
type SearchDocument struct {
	Kind  string `json:"kind"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Body  string `json:"body"`
	Tags  string `json:"tags"`
}

// SearchPlugin keeps an in-memory full-text index of posts and chapters.
// The index is rebuilt from the manifests after every run.
type SearchPlugin struct {
	mu    sync.RWMutex
	index bleve.Index
	roots []string
}

// NewSearchPlugin creates the search generator with an empty index
func NewSearchPlugin(config *core.Config) (*SearchPlugin, error) {
	index, err := newSearchIndex()
	if err != nil {
		return nil, err
	}
	return &SearchPlugin{
		index: index,
		roots: []string{absRoot(config.Paths.Posts), absRoot(config.Paths.Books)},
	}, nil
}

func newSearchIndex() (bleve.Index, error) {
	return bleve.NewMemOnly(bleve.NewIndexMapping())
}

func (p *SearchPlugin) Name() string {
	return "search"
}

func (p *SearchPlugin) Priority() int {
	return 900
}

func (p *SearchPlugin) Watches(path string) bool {
	for _, root := range p.roots {
		if underRoot(root, path) {
			return true
		}
	}
	return false
}

// readBody returns the markdown body of a content file with front matter stripped
func readBody(dir string, names ...string) (string, error) {
	_, data, err := readContentFile(dir, names...)
	if err != nil {
		return "", err
	}
	fm, err := core.ParseFrontMatter(string(data))
	if err != nil {
		return "", err
	}
	return fm.Body, nil
}

// PostDocuments builds one document per post. Bodies are read from the
// source tree; a missing body only drops the text.
func PostDocuments(root string, manifest *core.PostManifest) map[string]SearchDocument {
	docs := map[string]SearchDocument{}
	for _, post := range manifest.Posts {
		body, err := readBody(filepath.Join(root, post.Slug), PostContentFile)
		if err != nil {
			core.Debug("indexing post without body", "post", post.Slug, "error", err)
		}
		docs["post:"+post.Slug] = SearchDocument{
			Kind:  SearchKindPost,
			Title: post.Title,
			URL:   "/blog/" + url.PathEscape(post.Slug),
			Body:  post.Description + "\n" + body,
			Tags:  strings.Join(append(append([]string{}, post.Tags...), post.Categories...), " "),
		}
	}
	return docs
}

// ChapterDocuments builds one document per chapter with content in local books
func ChapterDocuments(root string, manifest *core.BookManifest) map[string]SearchDocument {
	docs := map[string]SearchDocument{}
	for _, book := range manifest.Books {
		if book.Ref != core.RefBook {
			continue
		}
		WalkChapters(book.Chapters, func(path string, chapter core.ChapterNode) {
			if !chapter.HasContent {
				return
			}
			body, err := readBody(filepath.Join(root, book.ID, filepath.FromSlash(path)), core.ChapterContentFiles...)
			if err != nil {
				core.Debug("indexing chapter without body", "book", book.ID, "chapter", path, "error", err)
			}
			docs["chapter:"+book.ID+"/"+path] = SearchDocument{
				Kind:  SearchKindChapter,
				Title: chapter.Title,
				URL:   "/book/" + book.ID + "/" + chapter.ID,
				Body:  body,
			}
		})
	}
	return docs
}

func (p *SearchPlugin) Generate(ctx *core.PluginContext) *core.PluginResult {
	fm := ctx.FileManager
	docs := map[string]SearchDocument{}

	var posts core.PostManifest
	if err := core.ReadManifest(fm.PublicPath(core.PostsManifestName), &posts); err != nil {
		core.Warn("search index without posts", "error", err)
	} else {
		for id, doc := range PostDocuments(ctx.Config.Paths.Posts, &posts) {
			docs[id] = doc
		}
	}

	var books core.BookManifest
	if err := core.ReadManifest(fm.PublicPath(core.BooksManifestName), &books); err != nil {
		core.Warn("search index without books", "error", err)
	} else {
		for id, doc := range ChapterDocuments(ctx.Config.Paths.Books, &books) {
			docs[id] = doc
		}
	}

	if err := p.Reindex(docs); err != nil {
		return &core.PluginResult{Error: err}
	}

	core.Info("rebuilt search index", "documents", len(docs))
	return &core.PluginResult{Success: true, Items: len(docs)}
}

// Reindex replaces the index contents with docs
func (p *SearchPlugin) Reindex(docs map[string]SearchDocument) error {
	index, err := newSearchIndex()
	if err != nil {
		return err
	}

	batch := index.NewBatch()
	for id, doc := range docs {
		if err := batch.Index(id, doc); err != nil {
			index.Close()
			return fmt.Errorf("failed to index %s: %w", id, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		index.Close()
		return err
	}

	p.mu.Lock()
	old := p.index
	p.index = index
	p.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

var (
	ErrEmptyQuery   = errors.New("empty search query")
	ErrSearchClosed = errors.New("search index is closed")
)

// Search implements core.Searcher
func (p *SearchPlugin) Search(query string, limit int) ([]core.SearchHit, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = core.DefaultSearchResults
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.index == nil {
		return nil, ErrSearchClosed
	}

	request := bleve.NewSearchRequest(bleve.NewQueryStringQuery(query))
	request.Size = limit
	request.Fields = []string{"kind", "title", "url"}
	request.Highlight = bleve.NewHighlight()

	results, err := p.index.Search(request)
	if err != nil {
		return nil, err
	}

	hits := make([]core.SearchHit, 0, len(results.Hits))
	for _, hit := range results.Hits {
		field := func(name string) string {
			s, _ := hit.Fields[name].(string)
			return s
		}
		var snippets []string
		for _, fragments := range hit.Fragments {
			snippets = append(snippets, fragments...)
		}
		hits = append(hits, core.SearchHit{
			Kind:     field("kind"),
			ID:       hit.ID,
			Title:    field("title"),
			URL:      field("url"),
			Score:    hit.Score,
			Snippets: snippets,
		})
	}
	return hits, nil
}

// Close releases the index
func (p *SearchPlugin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index == nil {
		return nil
	}
	err := p.index.Close()
	p.index = nil
	return err
}

var _ core.Searcher = (*SearchPlugin)(nil)
