package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sitegen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, DefaultPostsDir, config.Paths.Posts)
	assert.Equal(t, DefaultBooksDir, config.Paths.Books)
	assert.Equal(t, DefaultPublicDir, config.Paths.Public)
	assert.Equal(t, DefaultPort, config.Server.Port)
	assert.Equal(t, 300*time.Millisecond, config.Watch.Debounce())
	require.Len(t, config.Site.StaticRoutes, 1)
	assert.Equal(t, "/", config.Site.StaticRoutes[0].Path)
	assert.NoError(t, config.Validate())
}

func TestReadConfigYaml(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		check   func(t *testing.T, c Config)
		wantErr error
	}{
		{
			name: "complete config",
			yaml: `
paths:
  posts: content/posts
  books: content/books
  public: dist
site:
  url: https://blog.example.com
  static_routes:
    - path: /
      changefreq: daily
      priority: 1.0
    - path: /about
server:
  port: 9090
  hostname: preview.local
  cors_origins: ["https://blog.example.com"]
watch:
  debounce_ms: 100
log:
  level: debug
  format: json
history:
  database: .sitegen/history.db
`,
			check: func(t *testing.T, c Config) {
				assert.Equal(t, Paths{Posts: "content/posts", Books: "content/books", Public: "dist"}, c.Paths)
				assert.Equal(t, "https://blog.example.com", c.Site.URL)
				require.Len(t, c.Site.StaticRoutes, 2)
				assert.Equal(t, "/about", c.Site.StaticRoutes[1].Path)
				assert.Equal(t, 9090, c.Server.Port)
				assert.Equal(t, []string{"https://blog.example.com"}, c.Server.CORSOrigins)
				assert.Equal(t, 100*time.Millisecond, c.Watch.Debounce())
				assert.Equal(t, "json", c.Log.Format)
				assert.Equal(t, ".sitegen/history.db", c.History.Database)
			},
		},
		{
			name: "partial config keeps defaults",
			yaml: "server:\n  port: 3000\n",
			check: func(t *testing.T, c Config) {
				assert.Equal(t, 3000, c.Server.Port)
				assert.Equal(t, DefaultPostsDir, c.Paths.Posts)
			},
		},
		{
			name:    "invalid yaml",
			yaml:    "server:\n  port: [not a port\n",
			wantErr: ErrInvalidYAML,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			path := writeConfig(t, tt.yaml)
			err := ReadConfigYaml(&config, path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, path, config.FilePath)
			tt.check(t, config)
		})
	}
}

func TestReadConfigYaml_Errors(t *testing.T) {
	config := NewDefaultConfig()
	assert.ErrorIs(t, ReadConfigYaml(&config, filepath.Join(t.TempDir(), "none.yaml")), ErrConfigNotFound)
	assert.ErrorIs(t, ReadConfigYaml(&config, ""), ErrInvalidPath)
	assert.ErrorIs(t, ReadConfigYaml(&config, "bad|name.yaml"), ErrInvalidPath)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		valid  bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"missing posts root", func(c *Config) { c.Paths.Posts = "" }, false},
		{"bad public path", func(c *Config) { c.Paths.Public = "out<put" }, false},
		{"site url not a url", func(c *Config) { c.Site.URL = "not a url" }, false},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, false},
		{"bad hostname", func(c *Config) { c.Server.Hostname = "-bad-.host" }, false},
		{"negative debounce", func(c *Config) { c.Watch.DebounceMS = -1 }, false},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }, false},
		{"static route without slash", func(c *Config) {
			c.Site.StaticRoutes = []StaticRoute{{Path: "about"}}
		}, false},
		{"static route bad changefreq", func(c *Config) {
			c.Site.StaticRoutes = []StaticRoute{{Path: "/", ChangeFreq: "sometimes"}}
		}, false},
		{"static route priority above one", func(c *Config) {
			c.Site.StaticRoutes = []StaticRoute{{Path: "/", Priority: 1.5}}
		}, false},
		{"history database set", func(c *Config) { c.History.Database = ".sitegen/history.db" }, true},
		{"history database bad path", func(c *Config) { c.History.Database = "history|db" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.modify(&config)
			err := config.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestLoadEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SITEGEN_BOOKS_DIR=from-dotenv\n"), 0644))

	t.Setenv("SITEGEN_POSTS_DIR", "from-env/posts")
	t.Setenv("SITEGEN_PORT", "9999")
	t.Setenv("SITEGEN_SITE_URL", "https://env.example.com")

	config := NewDefaultConfig()
	require.NoError(t, LoadEnv(&config, envFile))
	// godotenv.Load sets process variables; clear the one it added
	t.Cleanup(func() { os.Unsetenv("SITEGEN_BOOKS_DIR") })

	assert.Equal(t, "from-env/posts", config.Paths.Posts)
	assert.Equal(t, "from-dotenv", config.Paths.Books)
	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "https://env.example.com", config.Site.URL)

	t.Setenv("SITEGEN_PORT", "eighty")
	assert.ErrorIs(t, LoadEnv(&config, ""), ErrInvalidConfig)

	assert.NoError(t, LoadEnv(&config, filepath.Join(t.TempDir(), "missing.env")))
}

func TestParseCommandLineArguments(t *testing.T) {
	configPath := writeConfig(t, "paths:\n  posts: yaml-posts\nserver:\n  port: 7000\n")

	tests := []struct {
		name    string
		args    []string
		check   func(t *testing.T, c Config)
		wantErr bool
	}{
		{
			name: "build with defaults",
			args: []string{"build"},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, ModeBuild, c.Mode)
				assert.Equal(t, DefaultPostsDir, c.Paths.Posts)
				assert.Empty(t, c.FilePath, "a missing default config file is fine")
			},
		},
		{
			name: "flags override config file",
			args: []string{"-c", configPath, "--books", "flag-books", "-o", "out", "--site-url", "https://flags.example.com", "posts"},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, ModePosts, c.Mode)
				assert.Equal(t, "yaml-posts", c.Paths.Posts)
				assert.Equal(t, "flag-books", c.Paths.Books)
				assert.Equal(t, "out", c.Paths.Public)
				assert.Equal(t, "https://flags.example.com", c.Site.URL)
				assert.Equal(t, 7000, c.Server.Port)
			},
		},
		{
			name: "serve options",
			args: []string{"serve", "--port", "8181", "--hostname", "0.0.0.0"},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, ModeServe, c.Mode)
				assert.Equal(t, 8181, c.Server.Port)
				assert.Equal(t, "0.0.0.0", c.Server.Hostname)
			},
		},
		{
			name: "verbose",
			args: []string{"-v", "watch"},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, ModeWatch, c.Mode)
				assert.Equal(t, "debug", c.Log.Level)
			},
		},
		{
			name: "dump books as json",
			args: []string{"dump", "--format", "json", "books"},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, ModeDump, c.Mode)
				assert.Equal(t, "books", c.DumpTarget)
				assert.Equal(t, "json", c.DumpFormat)
			},
		},
		{
			name: "dump defaults to yaml",
			args: []string{"dump", "posts"},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, "yaml", c.DumpFormat)
			},
		},
		{
			name: "history database from config file",
			args: []string{"-c", writeConfig(t, "history:\n  database: runs.db\n"), "history"},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, "runs.db", c.History.Database)
				assert.NoError(t, c.Validate())
			},
		},
		{
			name: "history limit",
			args: []string{"history", "-n", "5"},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, ModeHistory, c.Mode)
				assert.Equal(t, 5, c.HistoryLimit)
			},
		},
		{
			name: "version skips config loading",
			args: []string{"-c", "does-not-exist.yaml", "version"},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, ModeVersion, c.Mode)
			},
		},
		{name: "no command", args: []string{}, wantErr: true},
		{name: "unknown command", args: []string{"publish"}, wantErr: true},
		{name: "dump unknown target", args: []string{"dump", "pages"}, wantErr: true},
		{name: "dump without target", args: []string{"dump"}, wantErr: true},
		{name: "bad dump format", args: []string{"dump", "--format", "xml", "posts"}, wantErr: true},
		{name: "explicit missing config", args: []string{"-c", "does-not-exist.yaml", "build"}, wantErr: true},
		{name: "invalid site url", args: []string{"--site-url", "nope", "build"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := ParseCommandLineArguments(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, config)
		})
	}
}
