package plugins

import (
	"encoding/xml"
	"os"
	"sitegen/core"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sitemapNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func sitemapFixtures() (core.Site, *core.PostManifest, *core.BookManifest) {
	site := core.Site{
		URL: "https://example.com/",
		StaticRoutes: []core.StaticRoute{
			{Path: "/", ChangeFreq: "daily", Priority: 1},
			{Path: "/about"},
		},
	}
	posts := &core.PostManifest{Posts: []core.PostEntry{
		{Slug: "hello world", LastModified: "2024-03-04T10:11:12.000Z"},
		{Slug: "no-date"},
	}}
	books := &core.BookManifest{Books: []core.BookEntry{
		{ID: "guide", Ref: core.RefBook, Chapters: []core.ChapterNode{
			{ID: "10-intro", HasContent: true, Children: []core.ChapterNode{
				{ID: "1-detail", HasContent: true},
			}},
			{ID: "20-empty"},
		}},
		{ID: "elsewhere", Ref: core.RefLink, Link: "https://example.org"},
	}}
	return site, posts, books
}

func TestBuildSitemapURLs(t *testing.T) {
	site, posts, books := sitemapFixtures()

	urls := BuildSitemapURLs(site, posts, books, sitemapNow)

	assert.Equal(t, []SitemapURL{
		{Loc: "https://example.com/", LastMod: "2024-06-01", ChangeFreq: "daily", Priority: "1"},
		{Loc: "https://example.com/about", LastMod: "2024-06-01", ChangeFreq: StaticChangeFreq, Priority: "0.8"},
		{Loc: "https://example.com/blog/hello%20world", LastMod: "2024-03-04", ChangeFreq: ContentChangeFreq, Priority: "0.9"},
		{Loc: "https://example.com/blog/no-date", LastMod: "2024-06-01", ChangeFreq: ContentChangeFreq, Priority: "0.9"},
		{Loc: "https://example.com/book/guide", LastMod: "2024-06-01", ChangeFreq: ContentChangeFreq, Priority: "0.7"},
		{Loc: "https://example.com/book/guide/10-intro", LastMod: "2024-06-01", ChangeFreq: ContentChangeFreq, Priority: "0.6"},
		{Loc: "https://example.com/book/guide/1-detail", LastMod: "2024-06-01", ChangeFreq: ContentChangeFreq, Priority: "0.6"},
	}, urls)
}

func TestBuildSitemapURLs_WithoutManifests(t *testing.T) {
	site, _, _ := sitemapFixtures()

	urls := BuildSitemapURLs(site, nil, nil, sitemapNow)

	assert.Len(t, urls, 2)
}

func TestEncodeSitemap(t *testing.T) {
	data, err := EncodeSitemap([]SitemapURL{{Loc: "https://example.com/?a=1&b=2", Priority: "0.5"}})
	require.NoError(t, err)

	out := string(data)
	assert.True(t, strings.HasPrefix(out, xml.Header))
	assert.Contains(t, out, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	assert.Contains(t, out, "<loc>https://example.com/?a=1&amp;b=2</loc>")
	assert.NotContains(t, out, "<lastmod>", "empty fields are omitted")

	var decoded sitemapURLSet
	require.NoError(t, xml.Unmarshal(data, &decoded))
	require.Len(t, decoded.URLs, 1)
	assert.Equal(t, "https://example.com/?a=1&b=2", decoded.URLs[0].Loc)
}

func TestRenderRobots(t *testing.T) {
	robots, err := RenderRobots("https://example.com/")
	require.NoError(t, err)

	out := string(robots)
	assert.True(t, strings.HasPrefix(out, "User-agent: *\nAllow: /\n"))
	assert.Contains(t, out, "Sitemap: https://example.com/sitemap.xml\n")
	assert.Contains(t, out, "Disallow: /api/\n")
}

func TestSitemapPlugin_Generate(t *testing.T) {
	site := core.NewSiteBuilder(t)
	site.Post("hello", post("title", `"Hello"`, "date", `"2024-01-01"`))
	site.Book("guide", localBookToml).Chapter("guide", "1-start", "index.md", "text")

	pctx := site.PluginContext(nil)
	require.NoError(t, NewPostsPlugin(&site.Config).Generate(pctx).Error)
	require.NoError(t, NewBooksPlugin(&site.Config).Generate(pctx).Error)

	result := NewSitemapPlugin(&site.Config).Generate(pctx)
	require.NoError(t, result.Error)

	// default "/" route, one post, one book, one chapter
	assert.Equal(t, 4, result.Items)

	sitemap, err := os.ReadFile(site.Public(SitemapName))
	require.NoError(t, err)
	assert.Contains(t, string(sitemap), "<loc>https://example.com/blog/hello</loc>")
	assert.Contains(t, string(sitemap), "<loc>https://example.com/book/guide/1-start</loc>")

	robots, err := os.ReadFile(site.Public(RobotsName))
	require.NoError(t, err)
	assert.Contains(t, string(robots), "Sitemap: https://example.com/sitemap.xml")
}

func TestSitemapPlugin_MissingManifests(t *testing.T) {
	site := core.NewSiteBuilder(t)

	result := NewSitemapPlugin(&site.Config).Generate(site.PluginContext(nil))

	require.NoError(t, result.Error)
	assert.Equal(t, 1, result.Items)
	assert.FileExists(t, site.Public(SitemapName))
}

func TestSitemapPlugin_DryRun(t *testing.T) {
	site := core.NewSiteBuilder(t)
	fm := core.NewFileManager(site.Config.Paths.Public)
	fm.DryRun = true

	result := NewSitemapPlugin(&site.Config).Generate(site.PluginContext(fm))

	require.NoError(t, result.Error)
	assert.NoFileExists(t, site.Public(SitemapName))
	assert.NoFileExists(t, site.Public(RobotsName))
}
