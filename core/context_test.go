package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeContext(t *testing.T) {
	site := NewSiteBuilder(t)
	ctx := site.Context()

	assert.NotNil(t, ctx.Logger)
	assert.NotNil(t, ctx.PluginManager)
	assert.Equal(t, site.Config.Paths.Public, ctx.FileManager.PublicDirectory)
	assert.Nil(t, ctx.History, "history stays off without a database path")
}

func TestInitializeContext_History(t *testing.T) {
	site := NewSiteBuilder(t)
	site.Config.History.Database = site.Path("state", "history.db")
	ctx := site.Context()

	require.NotNil(t, ctx.History)
	ctx.PluginManager.RegisterPlugin(NewMockPlugin("posts", 100))

	_, err := ctx.Build(TriggerBuild)
	require.NoError(t, err)

	records, err := ctx.History.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, TriggerBuild, records[0].Trigger)
}

func TestContext_BuildInvalidatesCaches(t *testing.T) {
	site := NewSiteBuilder(t)
	ctx := site.Context()

	writes := 0
	ctx.PluginManager.RegisterPlugin(NewMockPlugin("posts", 100).WithGenerateFunc(func(pctx *PluginContext) *PluginResult {
		writes++
		m := &PostManifest{Posts: []PostEntry{}, Errors: []ErrorRecord{}}
		for i := 0; i < writes; i++ {
			m.Posts = append(m.Posts, PostEntry{Slug: string(rune('a' + i))})
		}
		out, err := pctx.FileManager.WriteManifest(PostsManifestName, m)
		return &PluginResult{Output: out, Error: err, Items: len(m.Posts)}
	}))

	_, err := ctx.Build(TriggerBuild)
	require.NoError(t, err)
	m, err := ctx.LoadPosts()
	require.NoError(t, err)
	assert.Len(t, m.Posts, 1)

	_, err = ctx.Build(TriggerBuild)
	require.NoError(t, err)
	m, err = ctx.LoadPosts()
	require.NoError(t, err)
	assert.Len(t, m.Posts, 2, "a build clears the cached manifest")
}

func TestContext_Rebuild(t *testing.T) {
	site := NewSiteBuilder(t)
	ctx := site.Context()

	posts := NewMockPlugin("posts", 100).WithWatchPrefix(site.Config.Paths.Posts)
	books := NewMockPlugin("books", 200).WithWatchPrefix(site.Config.Paths.Books).
		WithGenerateFunc(func(*PluginContext) *PluginResult {
			return &PluginResult{Error: errors.New("books root missing")}
		})
	ctx.PluginManager.RegisterPlugin(posts)
	ctx.PluginManager.RegisterPlugin(books)

	require.NoError(t, ctx.Rebuild([]string{site.Path("posts", "hello", "index.md")}))
	assert.Equal(t, 1, posts.GetCallCount())
	assert.Equal(t, 0, books.GetCallCount())

	err := ctx.Rebuild([]string{site.Path("books", "b", "book.toml")})
	assert.ErrorContains(t, err, "books root missing")
	assert.Equal(t, 1, books.GetCallCount())

	var _ Rebuilder = ctx
}

func TestContext_LoadMissingManifest(t *testing.T) {
	ctx := NewSiteBuilder(t).Context()

	_, err := ctx.LoadPosts()
	assert.Error(t, err)
	_, err = ctx.LoadBooks()
	assert.Error(t, err)
}

func TestContext_Close(t *testing.T) {
	site := NewSiteBuilder(t)
	ctx := &Context{Config: site.Config}
	ctx.Config.History.Database = ":memory:"
	require.NoError(t, InitializeContext(ctx))

	fw, err := NewFileWatcher()
	require.NoError(t, err)
	require.NoError(t, fw.Start(site.Config.Paths.Posts))
	ctx.FileWatcher = fw

	require.NoError(t, ctx.Close())
	assert.False(t, fw.IsRunning())
}
