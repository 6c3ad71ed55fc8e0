package plugins

import (
	"bytes"
	"encoding/xml"
	"net/url"
	"sitegen/core"
	"strconv"
	"strings"
	"time"
)

// Output names inside the public directory
const (
	SitemapName = "sitemap.xml"
	RobotsName  = "robots.txt"
)

const sitemapNamespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// Defaults applied to sitemap entries
const (
	StaticChangeFreq  = "weekly"
	StaticPriority    = 0.8
	PostPriority      = 0.9
	BookPriority      = 0.7
	ChapterPriority   = 0.6
	ContentChangeFreq = "monthly"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []SitemapURL `xml:"url"`
}

// SitemapURL is one <url> entry
type SitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

const robotsTemplate = `User-agent: *
Allow: /

# Sitemap
Sitemap: {{.Host}}/sitemap.xml

# Crawl-delay for polite crawling
Crawl-delay: 1

# Disallow common non-content paths
Disallow: /admin/
Disallow: /api/
Disallow: /*.json$
Disallow: /*?*utm_*
Disallow: /*?*fbclid*
Disallow: /*?*gclid*
`

func formatPriority(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// datePart turns an ISO timestamp into its YYYY-MM-DD prefix
func datePart(ts, fallback string) string {
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t.UTC().Format("2006-01-02")
	}
	return fallback
}

// BuildSitemapURLs lists the site URLs for the static routes and the two
// manifests. Either manifest may be nil.
func BuildSitemapURLs(site core.Site, posts *core.PostManifest, books *core.BookManifest, now time.Time) []SitemapURL {
	host := strings.TrimRight(site.URL, "/")
	today := now.UTC().Format("2006-01-02")

	urls := []SitemapURL{}
	for _, route := range site.StaticRoutes {
		changefreq := route.ChangeFreq
		if changefreq == "" {
			changefreq = StaticChangeFreq
		}
		priority := route.Priority
		if priority == 0 {
			priority = StaticPriority
		}
		urls = append(urls, SitemapURL{
			Loc:        host + route.Path,
			LastMod:    today,
			ChangeFreq: changefreq,
			Priority:   formatPriority(priority),
		})
	}

	if posts != nil {
		for _, post := range posts.Posts {
			urls = append(urls, SitemapURL{
				Loc:        host + "/blog/" + url.PathEscape(post.Slug),
				LastMod:    datePart(post.LastModified, today),
				ChangeFreq: ContentChangeFreq,
				Priority:   formatPriority(PostPriority),
			})
		}
	}

	if books != nil {
		for _, book := range books.Books {
			if book.Ref != core.RefBook {
				continue
			}
			urls = append(urls, SitemapURL{
				Loc:        host + "/book/" + book.ID,
				LastMod:    today,
				ChangeFreq: ContentChangeFreq,
				Priority:   formatPriority(BookPriority),
			})
			WalkChapters(book.Chapters, func(_ string, chapter core.ChapterNode) {
				if !chapter.HasContent {
					return
				}
				urls = append(urls, SitemapURL{
					Loc:        host + "/book/" + book.ID + "/" + chapter.ID,
					LastMod:    today,
					ChangeFreq: ContentChangeFreq,
					Priority:   formatPriority(ChapterPriority),
				})
			})
		}
	}

	return urls
}

// EncodeSitemap renders urls as a sitemap document
func EncodeSitemap(urls []SitemapURL) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(sitemapURLSet{XMLNS: sitemapNamespace, URLs: urls}); err != nil {
		return nil, err
	}
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// RenderRobots renders robots.txt for the site URL
func RenderRobots(siteURL string) ([]byte, error) {
	return ApplyTemplate(RobotsName, robotsTemplate, struct{ Host string }{strings.TrimRight(siteURL, "/")})
}

// SitemapPlugin writes sitemap.xml and robots.txt from the generated manifests
type SitemapPlugin struct {
	roots []string
}

// NewSitemapPlugin creates the sitemap generator. It reruns after any content change.
func NewSitemapPlugin(config *core.Config) *SitemapPlugin {
	return &SitemapPlugin{roots: []string{absRoot(config.Paths.Posts), absRoot(config.Paths.Books)}}
}

func (p *SitemapPlugin) Name() string {
	return "sitemap"
}

func (p *SitemapPlugin) Priority() int {
	return 1000
}

func (p *SitemapPlugin) Watches(path string) bool {
	for _, root := range p.roots {
		if underRoot(root, path) {
			return true
		}
	}
	return false
}

func (p *SitemapPlugin) Generate(ctx *core.PluginContext) *core.PluginResult {
	fm := ctx.FileManager

	var posts *core.PostManifest
	var m core.PostManifest
	if err := core.ReadManifest(fm.PublicPath(core.PostsManifestName), &m); err != nil {
		core.Warn("sitemap without posts", "error", err)
	} else {
		posts = &m
	}

	var books *core.BookManifest
	var b core.BookManifest
	if err := core.ReadManifest(fm.PublicPath(core.BooksManifestName), &b); err != nil {
		core.Warn("sitemap without books", "error", err)
	} else {
		books = &b
	}

	urls := BuildSitemapURLs(ctx.Config.Site, posts, books, ctx.Started)

	data, err := EncodeSitemap(urls)
	if err != nil {
		return &core.PluginResult{Error: err}
	}
	output, err := fm.WriteFile(SitemapName, data)
	if err != nil {
		return &core.PluginResult{Error: err}
	}

	robots, err := RenderRobots(ctx.Config.Site.URL)
	if err != nil {
		return &core.PluginResult{Error: err}
	}
	if _, err := fm.WriteFile(RobotsName, robots); err != nil {
		return &core.PluginResult{Error: err}
	}

	core.Info("generated sitemap", "urls", len(urls), "output", output)
	return &core.PluginResult{
		Success:  true,
		Output:   output,
		Items:    len(urls),
		Manifest: urls,
	}
}
