package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"sitegen/core"
	"sitegen/plugins"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func helloSite(t *testing.T) *core.SiteBuilder {
	t.Helper()
	site := core.NewSiteBuilder(t)
	site.Post("hello-world", core.NewTestFileBuilder("index.md").
		WithField("title", `"Hello"`).
		WithField("date", `"2024-01-01"`).
		WithBody("Hello there."))
	site.PostAsset("hello-world", "cover.png", "png")
	return site
}

func withPlugins(ctx *core.Context) *core.Context {
	ctx.PluginManager.RegisterPlugin(plugins.NewPostsPlugin(&ctx.Config))
	ctx.PluginManager.RegisterPlugin(plugins.NewBooksPlugin(&ctx.Config))
	ctx.PluginManager.RegisterPlugin(plugins.NewSitemapPlugin(&ctx.Config))
	return ctx
}

func TestDump_JSON(t *testing.T) {
	site := helloSite(t)
	site.Config.DumpTarget = core.ModePosts
	site.Config.DumpFormat = "json"
	ctx := withPlugins(site.Context())

	var out bytes.Buffer
	require.NoError(t, Dump(ctx, &out))

	var manifest core.PostManifest
	require.NoError(t, json.Unmarshal(out.Bytes(), &manifest))
	require.Len(t, manifest.Posts, 1)
	assert.Equal(t, "hello-world", manifest.Posts[0].Slug)

	assert.NoFileExists(t, site.Public(core.PostsManifestName), "dump never writes")
	assert.NoFileExists(t, site.Public("posts", "hello-world", "cover.png"))
}

func TestDump_YAML(t *testing.T) {
	site := helloSite(t)
	site.Config.DumpTarget = core.ModePosts
	ctx := withPlugins(site.Context())

	var out bytes.Buffer
	require.NoError(t, Dump(ctx, &out))

	assert.Contains(t, out.String(), "slug: hello-world")
	assert.Contains(t, out.String(), "readingTime: 1")
}

func TestDump_UnknownGenerator(t *testing.T) {
	site := helloSite(t)
	site.Config.DumpTarget = "pages"
	ctx := site.Context()

	err := Dump(ctx, &bytes.Buffer{})

	assert.ErrorIs(t, err, core.ErrGeneratorNotFound)
}

func TestBuild_WritesArtifacts(t *testing.T) {
	site := helloSite(t)
	ctx := withPlugins(site.Context())

	require.NoError(t, Build(ctx))

	assert.FileExists(t, site.Public(core.PostsManifestName))
	assert.FileExists(t, site.Public(core.BooksManifestName))
	assert.FileExists(t, site.Public(plugins.SitemapName))
	assert.FileExists(t, site.Public(plugins.RobotsName))
	assert.FileExists(t, site.Public("posts", "hello-world", "cover.png"))
}

func TestGenerate_SingleGenerator(t *testing.T) {
	site := helloSite(t)
	ctx := withPlugins(site.Context())

	require.NoError(t, Generate(ctx, core.ModePosts))

	assert.FileExists(t, site.Public(core.PostsManifestName))
	assert.NoFileExists(t, site.Public(core.BooksManifestName))
}

func TestHistory(t *testing.T) {
	site := helloSite(t)
	site.Config.History.Database = site.Path("history.db")
	ctx := withPlugins(site.Context())

	var out bytes.Buffer
	require.NoError(t, History(ctx, &out))
	assert.Equal(t, "no runs recorded\n", out.String())

	require.NoError(t, Build(ctx))

	out.Reset()
	require.NoError(t, History(ctx, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4, "header and one row per generator")
	assert.True(t, strings.HasPrefix(lines[0], "STARTED"))
	assert.Contains(t, out.String(), "sitemap")
	assert.Contains(t, out.String(), core.TriggerBuild)
}

func TestHistory_Disabled(t *testing.T) {
	ctx := helloSite(t).Context()

	assert.ErrorIs(t, History(ctx, &bytes.Buffer{}), core.ErrHistoryDisabled)
}

func TestPrintVersion(t *testing.T) {
	var out bytes.Buffer
	PrintVersion(&out)

	assert.True(t, strings.HasPrefix(out.String(), "sitegen dev ("))
}

func contextFromArgs(t *testing.T, args ...string) *core.Context {
	t.Helper()
	config, err := core.ParseCommandLineArguments(args)
	require.NoError(t, err)

	ctx := &core.Context{Config: config}
	require.NoError(t, core.InitializeContext(ctx))
	t.Cleanup(func() { ctx.Close() })
	return withPlugins(ctx)
}

func siteArgs(site *core.SiteBuilder, args ...string) []string {
	return append([]string{
		"--posts", site.Config.Paths.Posts,
		"--books", site.Config.Paths.Books,
		"-o", site.Config.Paths.Public,
	}, args...)
}

func TestCommandLine_Build(t *testing.T) {
	site := helloSite(t)
	ctx := contextFromArgs(t, siteArgs(site, "build")...)

	require.Equal(t, core.ModeBuild, ctx.Config.Mode)
	require.NoError(t, Build(ctx))

	assert.FileExists(t, site.Public(core.PostsManifestName))
	assert.FileExists(t, site.Public(core.BooksManifestName))
	assert.FileExists(t, site.Public(plugins.SitemapName))
}

func TestCommandLine_DumpJSON(t *testing.T) {
	site := helloSite(t)
	ctx := contextFromArgs(t, siteArgs(site, "dump", "--format", "json", "posts")...)

	var out bytes.Buffer
	require.NoError(t, Dump(ctx, &out))

	var manifest core.PostManifest
	require.NoError(t, json.Unmarshal(out.Bytes(), &manifest))
	require.Len(t, manifest.Posts, 1)
	assert.NoFileExists(t, site.Public(core.PostsManifestName))
}

func TestCommandLine_HistoryFromConfigFile(t *testing.T) {
	site := helloSite(t)
	configPath := site.Path("sitegen.yaml")
	require.NoError(t, os.WriteFile(configPath,
		[]byte("history:\n  database: "+site.Path("runs.db")+"\n"), 0644))

	ctx := contextFromArgs(t, siteArgs(site, "-c", configPath, "history", "-n", "3")...)
	require.NotNil(t, ctx.History)
	require.NoError(t, Build(ctx))

	var out bytes.Buffer
	require.NoError(t, History(ctx, &out))
	assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "\n"), 4, "header and three rows")
}
