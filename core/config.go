package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Configuration constants
const (
	DefaultConfigFile  = "sitegen.yaml"
	DefaultEnvFile     = ".env"
	DefaultPostsDir    = "src/posts"
	DefaultBooksDir    = "src/books"
	DefaultPublicDir   = "public"
	DefaultSiteURL     = "http://localhost:8080"
	DefaultPort        = 8080
	DefaultHostname    = "localhost"
	DefaultDebounceMS  = 300
	DefaultSearchLimit = 60
	DefaultHistoryRows = 20
	MinPort            = 1
	MaxPort            = 65535
	MaxHostnameLength  = 253
	EnvPrefix          = "SITEGEN_"
)

// Run modes selected by the command line
const (
	ModeBuild   = "build"
	ModePosts   = "posts"
	ModeBooks   = "books"
	ModeSitemap = "sitemap"
	ModeWatch   = "watch"
	ModeServe   = "serve"
	ModeDump    = "dump"
	ModeHistory = "history"
	ModeVersion = "version"
)

// Validation errors
var (
	ErrInvalidHostname = errors.New("hostname is invalid")
	ErrInvalidPath     = errors.New("path contains invalid characters")
	ErrConfigNotFound  = errors.New("configuration file not found")
	ErrInvalidYAML     = errors.New("invalid YAML configuration")
)

// Paths locates the input roots and the public output directory
type Paths struct {
	Posts  string `yaml:"posts"`
	Books  string `yaml:"books"`
	Public string `yaml:"public"`
}

func (p Paths) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Posts, validation.Required, validation.By(pathRule)),
		validation.Field(&p.Books, validation.Required, validation.By(pathRule)),
		validation.Field(&p.Public, validation.Required, validation.By(pathRule)),
	)
}

// StaticRoute is a fixed sitemap entry such as "/" or "/about"
type StaticRoute struct {
	Path       string  `yaml:"path"`
	ChangeFreq string  `yaml:"changefreq"`
	Priority   float64 `yaml:"priority"`
}

func (r StaticRoute) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required, validation.By(func(value interface{}) error {
			if !strings.HasPrefix(value.(string), "/") {
				return errors.New("must start with /")
			}
			return nil
		})),
		validation.Field(&r.ChangeFreq, validation.In("always", "hourly", "daily", "weekly", "monthly", "yearly", "never")),
		validation.Field(&r.Priority, validation.Min(0.0), validation.Max(1.0)),
	)
}

// Site describes the public website the artifacts are generated for
type Site struct {
	URL          string        `yaml:"url"`
	StaticRoutes []StaticRoute `yaml:"static_routes"`
}

func (s Site) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.URL, validation.Required, is.URL),
		validation.Field(&s.StaticRoutes),
	)
}

// Server configures the preview server
type Server struct {
	Port            int      `yaml:"port"`
	Hostname        string   `yaml:"hostname"`
	CORSOrigins     []string `yaml:"cors_origins"`
	SearchRateLimit int      `yaml:"search_rate_limit"`
}

func (s Server) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Port, validation.Required, validation.Min(MinPort), validation.Max(MaxPort)),
		validation.Field(&s.Hostname, validation.By(hostnameRule)),
		validation.Field(&s.SearchRateLimit, validation.Min(0)),
	)
}

// Watch configures the development rebuild loop
type Watch struct {
	DebounceMS int `yaml:"debounce_ms"`
}

func (w Watch) Validate() error {
	return validation.ValidateStruct(&w,
		validation.Field(&w.DebounceMS, validation.Min(0)),
	)
}

// Debounce returns the quiet period as a duration
func (w Watch) Debounce() time.Duration {
	return time.Duration(w.DebounceMS) * time.Millisecond
}

// Logging selects level and record format
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (l Logging) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "warning", "error")),
		validation.Field(&l.Format, validation.In("text", "json")),
	)
}

// HistoryConfig enables the sqlite build log when Database is set
type HistoryConfig struct {
	Database string `yaml:"database"`
}

func (h HistoryConfig) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Database, validation.By(pathRule)),
	)
}

// Search toggles the full-text index in the preview server
type Search struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	FilePath string `yaml:"-"`
	Mode     string `yaml:"-"`

	// dump and history arguments
	DumpTarget   string `yaml:"-"`
	DumpFormat   string `yaml:"-"`
	HistoryLimit int    `yaml:"-"`

	Paths   Paths         `yaml:"paths"`
	Site    Site          `yaml:"site"`
	Server  Server        `yaml:"server"`
	Watch   Watch         `yaml:"watch"`
	Log     Logging       `yaml:"log"`
	History HistoryConfig `yaml:"history"`
	Search  Search        `yaml:"search"`
}

func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Paths),
		validation.Field(&c.Site),
		validation.Field(&c.Server),
		validation.Field(&c.Watch),
		validation.Field(&c.Log),
		validation.Field(&c.History),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func pathRule(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if !isValidPath(s) {
		return ErrInvalidPath
	}
	return nil
}

func hostnameRule(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if !isValidHostname(s) {
		return ErrInvalidHostname
	}
	return nil
}

// Performs basic hostname validation
func isValidHostname(hostname string) bool {
	if hostname == "" || len(hostname) > MaxHostnameLength {
		return false
	}

	if strings.HasPrefix(hostname, ".") || strings.HasSuffix(hostname, ".") {
		return false
	}

	for _, label := range strings.Split(hostname, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
		for _, char := range label {
			if !((char >= 'a' && char <= 'z') ||
				(char >= 'A' && char <= 'Z') ||
				(char >= '0' && char <= '9') ||
				char == '-') {
				return false
			}
		}
	}

	return true
}

// Validates file system paths
func isValidPath(path string) bool {
	if path == "" {
		return false
	}

	for _, char := range []string{"\x00", "<", ">", "|", "?", "*"} {
		if strings.Contains(path, char) {
			return false
		}
	}

	return true
}

// Options defines the global command-line options
type Options struct {
	Config  string `short:"c" long:"config" description:"YAML config file" default:"sitegen.yaml"`
	Posts   string `long:"posts" description:"Posts root directory"`
	Books   string `long:"books" description:"Books root directory"`
	Public  string `short:"o" long:"public" description:"Public output directory"`
	SiteURL string `long:"site-url" description:"Canonical site URL used in the sitemap"`
	Verbose bool   `short:"v" long:"verbose" description:"Enable debug logging"`
}

// Commands defines the available subcommands
type Commands struct {
	Build   struct{}       `command:"build"`
	Posts   struct{}       `command:"posts"`
	Books   struct{}       `command:"books"`
	Sitemap struct{}       `command:"sitemap"`
	Watch   struct{}       `command:"watch"`
	Serve   ServeCommand   `command:"serve"`
	Dump    DumpCommand    `command:"dump"`
	History HistoryCommand `command:"history"`
	Version struct{}       `command:"version"`
}

type ServeCommand struct {
	Port     int    `short:"p" long:"port" description:"Port for the preview server"`
	Hostname string `long:"hostname" description:"Hostname for the preview server"`
}

type DumpCommand struct {
	Format string `short:"f" long:"format" description:"Output format" choice:"yaml" choice:"json" default:"yaml"`
	Args   struct {
		Target string `positional-arg-name:"target" description:"posts or books"`
	} `positional-args:"yes" required:"yes"`
}

type HistoryCommand struct {
	Limit int `short:"n" long:"limit" description:"Number of runs to show" default:"20"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() Config {
	return Config{
		Paths: Paths{
			Posts:  DefaultPostsDir,
			Books:  DefaultBooksDir,
			Public: DefaultPublicDir,
		},
		Site: Site{
			URL: DefaultSiteURL,
			StaticRoutes: []StaticRoute{
				{Path: "/", ChangeFreq: "weekly", Priority: 1.0},
			},
		},
		Server: Server{
			Port:            DefaultPort,
			Hostname:        DefaultHostname,
			SearchRateLimit: DefaultSearchLimit,
		},
		Watch:        Watch{DebounceMS: DefaultDebounceMS},
		Log:          Logging{Level: "info", Format: "text"},
		Search:       Search{Enabled: true},
		HistoryLimit: DefaultHistoryRows,
	}
}

// ReadConfigYaml reads filePath on top of the values already in config
func ReadConfigYaml(config *Config, filePath string) error {
	if filePath == "" || !isValidPath(filePath) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, filePath)
	}

	config.FilePath = filePath

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, filePath)
		}
		return fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidYAML, err.Error())
	}

	return nil
}

// LoadEnv loads envFile if present and applies SITEGEN_* overrides to config
func LoadEnv(config *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}

	setString("POSTS_DIR", &config.Paths.Posts)
	setString("BOOKS_DIR", &config.Paths.Books)
	setString("PUBLIC_DIR", &config.Paths.Public)
	setString("SITE_URL", &config.Site.URL)
	setString("HOSTNAME", &config.Server.Hostname)
	setString("LOG_LEVEL", &config.Log.Level)
	setString("LOG_FORMAT", &config.Log.Format)
	setString("HISTORY_DB", &config.History.Database)

	if v, ok := os.LookupEnv(EnvPrefix + "PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sPORT=%q", ErrInvalidConfig, EnvPrefix, v)
		}
		config.Server.Port = port
	}

	return nil
}

// ParseCommandLineArguments parses args (without the program name) and
// returns the validated configuration. Values are layered as defaults,
// then the config file, then the environment, then flags.
func ParseCommandLineArguments(args []string) (Config, error) {
	config := NewDefaultConfig()

	var opts Options
	var commands Commands

	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand(ModeBuild, "Build everything",
		"Generate posts.json, books.json, sitemap.xml and robots.txt", &commands.Build)
	parser.AddCommand(ModePosts, "Build the post manifest",
		"Scan the posts root and write posts.json", &commands.Posts)
	parser.AddCommand(ModeBooks, "Build the book manifest",
		"Scan the books root and write books.json", &commands.Books)
	parser.AddCommand(ModeSitemap, "Write sitemap.xml and robots.txt",
		"Read both manifests and write sitemap.xml and robots.txt", &commands.Sitemap)
	parser.AddCommand(ModeWatch, "Build and rebuild on changes",
		"Build once, then rebuild whenever the posts or books roots change", &commands.Watch)
	parser.AddCommand(ModeServe, "Watch and run the preview server",
		"Watch the content roots and serve the generated artifacts over HTTP", &commands.Serve)
	parser.AddCommand(ModeDump, "Print a manifest without writing anything",
		"Run the posts or books pipeline in dry-run mode and print the manifest", &commands.Dump)
	parser.AddCommand(ModeHistory, "Show recent generator runs",
		"List recent generator runs from the build history database", &commands.History)
	parser.AddCommand(ModeVersion, "Print the build version",
		"Print the build version", &commands.Version)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return config, fmt.Errorf("failed to parse command line arguments: %w", err)
	}

	if parser.Active == nil {
		return config, errors.New("no command specified")
	}
	config.Mode = parser.Active.Name
	if config.Mode == ModeVersion {
		return config, nil
	}

	// A missing config file is only an error when it was named explicitly
	if err := ReadConfigYaml(&config, opts.Config); err != nil {
		if !(errors.Is(err, ErrConfigNotFound) && opts.Config == DefaultConfigFile) {
			return config, err
		}
		config.FilePath = ""
	}

	if err := LoadEnv(&config, DefaultEnvFile); err != nil {
		return config, err
	}

	if opts.Posts != "" {
		config.Paths.Posts = opts.Posts
	}
	if opts.Books != "" {
		config.Paths.Books = opts.Books
	}
	if opts.Public != "" {
		config.Paths.Public = opts.Public
	}
	if opts.SiteURL != "" {
		config.Site.URL = opts.SiteURL
	}
	if opts.Verbose {
		config.Log.Level = "debug"
	}

	switch config.Mode {
	case ModeServe:
		if commands.Serve.Port != 0 {
			config.Server.Port = commands.Serve.Port
		}
		if commands.Serve.Hostname != "" {
			config.Server.Hostname = commands.Serve.Hostname
		}
	case ModeDump:
		config.DumpTarget = commands.Dump.Args.Target
		config.DumpFormat = commands.Dump.Format
		if err := validation.Validate(config.DumpTarget, validation.In(ModePosts, ModeBooks)); err != nil {
			return config, fmt.Errorf("%w: dump target %q: %v", ErrInvalidConfig, config.DumpTarget, err)
		}
	case ModeHistory:
		config.HistoryLimit = commands.History.Limit
	}

	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
