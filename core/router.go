package core

import (
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// DefaultSearchResults caps the hits returned by /api/search
const DefaultSearchResults = 20

// SearchHit is one full-text search result
type SearchHit struct {
	Kind     string   `json:"kind"` // "post" or "chapter"
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	URL      string   `json:"url"`
	Score    float64  `json:"score"`
	Snippets []string `json:"snippets,omitempty"`
}

// Searcher answers full-text queries over the generated content
type Searcher interface {
	Search(query string, limit int) ([]SearchHit, error)
}

// MarkdownRenderer turns a markdown body into HTML
type MarkdownRenderer interface {
	Render(source []byte) ([]byte, error)
}

// RouterManager builds the preview server routes
type RouterManager struct {
	mu         sync.RWMutex
	router     *gin.Engine
	ctx        *Context
	health     *HealthChecker
	limiter    *RateLimiter
	middleware []gin.HandlerFunc
}

func NewRouterManager() *RouterManager {
	return &RouterManager{
		middleware: make([]gin.HandlerFunc, 0),
	}
}

func (rm *RouterManager) AddMiddleware(middleware ...gin.HandlerFunc) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.middleware = append(rm.middleware, middleware...)
}

// InitializeRouter creates the gin engine with every preview route
func (rm *RouterManager) InitializeRouter(ctx *Context, health *HealthChecker) error {
	if ctx == nil || ctx.FileManager == nil {
		return errors.New("router needs an initialized context")
	}
	if health == nil {
		health = GlobalHealthChecker
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.ctx = ctx
	rm.health = health
	if rm.limiter != nil {
		rm.limiter.Stop()
	}
	rm.limiter = NewRateLimiter(ctx.Config.Server.SearchRateLimit)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger())
	r.Use(GlobalMetrics.MetricsMiddleware())
	r.Use(SecurityHeadersMiddleware())
	for _, middleware := range rm.middleware {
		r.Use(middleware)
	}

	r.GET("/"+PostsManifestName, rm.handlePostsManifest)
	r.GET("/"+BooksManifestName, rm.handleBooksManifest)

	api := r.Group("/api")
	api.GET("/posts", rm.handleListPosts)
	api.GET("/posts/:slug", rm.handleGetPost)
	api.GET("/books", rm.handleListBooks)
	api.GET("/books/:id", rm.handleGetBook)
	api.GET("/books/:id/chapters/*path", rm.handleChapter)
	api.GET("/builds", rm.handleBuilds)
	if ctx.Config.Server.SearchRateLimit > 0 {
		api.GET("/search", rm.limiter.Middleware(), rm.handleSearch)
	} else {
		api.GET("/search", rm.handleSearch)
	}

	r.GET("/healthz", health.HealthHandler())
	r.GET("/livez", health.LivenessHandler())
	r.GET("/readyz", health.ReadinessHandler())
	r.GET("/metrics", GlobalMetrics.MetricsHandler())
	r.GET("/metrics/prometheus", GlobalMetrics.PrometheusHandler())

	r.Static("/posts", ctx.FileManager.PublicPath("posts"))
	r.Static("/books", ctx.FileManager.PublicPath("books"))

	rm.router = r
	return nil
}

// GetRouter returns the current router (thread-safe)
func (rm *RouterManager) GetRouter() *gin.Engine {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.router
}

// Handler returns the router wrapped with CORS handling
func (rm *RouterManager) Handler() http.Handler {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return NewCORS(rm.ctx.Config.Server.CORSOrigins).Handler(rm.router)
}

// Stop releases the rate limiter
func (rm *RouterManager) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.limiter != nil {
		rm.limiter.Stop()
		rm.limiter = nil
	}
}

func manifestError(c *gin.Context, err error) {
	if errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusNotFound, gin.H{"error": "manifest has not been generated"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func writeManifest(c *gin.Context, v any) {
	data, err := EncodeManifest(v)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (rm *RouterManager) handlePostsManifest(c *gin.Context) {
	m, err := rm.ctx.LoadPosts()
	if err != nil {
		manifestError(c, err)
		return
	}
	writeManifest(c, m)
}

func (rm *RouterManager) handleBooksManifest(c *gin.Context) {
	m, err := rm.ctx.LoadBooks()
	if err != nil {
		manifestError(c, err)
		return
	}
	writeManifest(c, m)
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

// FilterPosts returns the posts matching tag and category (both optional).
// Drafts are dropped unless includeDrafts is set.
func FilterPosts(posts []PostEntry, tag, category string, includeDrafts bool) []PostEntry {
	out := make([]PostEntry, 0, len(posts))
	for _, p := range posts {
		if p.Draft && !includeDrafts {
			continue
		}
		if tag != "" && !contains(p.Tags, tag) {
			continue
		}
		if category != "" && !contains(p.Categories, category) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func queryBool(c *gin.Context, key string) bool {
	v := strings.ToLower(c.Query(key))
	return v == "1" || v == "true" || v == "yes"
}

func (rm *RouterManager) handleListPosts(c *gin.Context) {
	m, err := rm.ctx.LoadPosts()
	if err != nil {
		manifestError(c, err)
		return
	}

	posts := FilterPosts(m.Posts, c.Query("tag"), c.Query("category"), queryBool(c, "drafts"))
	writeManifest(c, gin.H{"posts": posts, "total": len(posts)})
}

func (rm *RouterManager) handleGetPost(c *gin.Context) {
	m, err := rm.ctx.LoadPosts()
	if err != nil {
		manifestError(c, err)
		return
	}

	post, ok := m.FindPost(c.Param("slug"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	writeManifest(c, post)
}

func (rm *RouterManager) handleListBooks(c *gin.Context) {
	m, err := rm.ctx.LoadBooks()
	if err != nil {
		manifestError(c, err)
		return
	}
	writeManifest(c, gin.H{"books": m.Books, "total": len(m.Books)})
}

func (rm *RouterManager) handleGetBook(c *gin.Context) {
	m, err := rm.ctx.LoadBooks()
	if err != nil {
		manifestError(c, err)
		return
	}

	book, ok := m.FindBook(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "book not found"})
		return
	}
	writeManifest(c, book)
}

// chapterDir resolves a chapter path below the mirrored book tree. Paths
// escaping the book directory are rejected.
func chapterDir(bookDir, chapterPath string) (string, bool) {
	clean := path.Clean("/" + chapterPath)
	if clean == "/" || strings.Contains(clean, "..") {
		return "", false
	}
	return filepath.Join(bookDir, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), true
}

func (rm *RouterManager) handleChapter(c *gin.Context) {
	if rm.ctx.Renderer == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "chapter rendering is not available"})
		return
	}

	id := c.Param("id")
	if id == "" || strings.Contains(id, "..") || strings.ContainsRune(id, '/') {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid book id"})
		return
	}

	dir, ok := chapterDir(rm.ctx.FileManager.PublicPath("books", id), c.Param("path"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chapter path"})
		return
	}

	var content []byte
	var err error
	for _, name := range ChapterContentFiles {
		content, err = os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			break
		}
	}
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "chapter not found"})
		return
	}

	fm, err := ParseFrontMatter(string(content))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	html, err := rm.ctx.Renderer.Render([]byte(fm.Body))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"book":    id,
		"chapter": strings.Trim(c.Param("path"), "/"),
		"html":    string(html),
	})
}

func (rm *RouterManager) handleSearch(c *gin.Context) {
	if rm.ctx.Search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search is disabled"})
		return
	}

	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}

	limit := DefaultSearchResults
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}

	GlobalMetrics.SearchQueriesTotal.Inc()
	hits, err := rm.ctx.Search.Search(q, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": q, "hits": hits, "total": len(hits)})
}

func (rm *RouterManager) handleBuilds(c *gin.Context) {
	if rm.ctx.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrHistoryDisabled.Error()})
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	records, err := rm.ctx.History.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"builds": records})
}
