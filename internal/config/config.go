// Package config provides configuration management for the Veritube agent.
// Values come from built-in defaults, an optional YAML file and environment
// variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 5000
	DefaultLogLevel      = "info"
	DefaultDataDir       = ".veritube"
	DefaultWindowSeconds = 300
	DefaultCacheBackend  = "sqlite"
	DefaultAIProvider    = "gemini"
	DefaultGeminiModel   = "gemini-2.5-flash"
	DefaultOpenAIModel   = "gpt-4o-mini"
	DefaultAIRPM         = 30
	DefaultMaxComments   = 20
	DefaultYTDLP         = "yt-dlp"
	DefaultSiblingModule = "twelve.flow"

	DefaultTimeoutDoctor   = 30   // seconds
	DefaultTimeoutDownload = 900  // 15 minutes
	DefaultTimeoutSibling  = 3600 // 1 hour
	DefaultTimeoutAI       = 120  // seconds

	// Environment variable names
	EnvConfigFile      = "VERITUBE_CONFIG"
	EnvHost            = "VERITUBE_HOST"
	EnvPort            = "VERITUBE_PORT"
	EnvLogLevel        = "VERITUBE_LOG_LEVEL"
	EnvDataDir         = "VERITUBE_DATA_DIR"
	EnvDownloadDir     = "VERITUBE_DOWNLOAD_DIR"
	EnvInboxDir        = "VERITUBE_INBOX_DIR"
	EnvWindowSeconds   = "VERITUBE_WINDOW_SECONDS"
	EnvHeadless        = "VERITUBE_HEADLESS"
	EnvAPIToken        = "VERITUBE_API_TOKEN"
	EnvCollapseRuns    = "VERITUBE_COLLAPSE_DUPLICATES"
	EnvWatchInbox      = "VERITUBE_WATCH_INBOX"
	EnvCacheBackend    = "VERITUBE_CACHE_BACKEND"
	EnvCacheTTL        = "VERITUBE_CACHE_TTL"
	EnvRedisURL        = "VERITUBE_REDIS_URL"
	EnvPostgresDSN     = "VERITUBE_POSTGRES_DSN"
	EnvAIProvider      = "VERITUBE_AI_PROVIDER"
	EnvGeminiAPIKeys   = "VERITUBE_GEMINI_API_KEYS"
	EnvGeminiModel     = "VERITUBE_GEMINI_MODEL"
	EnvOpenAIAPIKey    = "VERITUBE_OPENAI_API_KEY"
	EnvOpenAIBaseURL   = "VERITUBE_OPENAI_BASE_URL"
	EnvOpenAIModel     = "VERITUBE_OPENAI_MODEL"
	EnvAIRPM           = "VERITUBE_AI_REQUESTS_PER_MINUTE"
	EnvYTDLPPath       = "VERITUBE_YTDLP_PATH"
	EnvDownloadMedia   = "VERITUBE_DOWNLOAD_MEDIA"
	EnvMaxComments     = "VERITUBE_MAX_COMMENTS"
	EnvSiblingPython   = "VERITUBE_SIBLING_PYTHON"
	EnvSiblingModule   = "VERITUBE_SIBLING_MODULE"
	EnvTimeoutDownload = "VERITUBE_TIMEOUT_DOWNLOAD"
	EnvTimeoutAI       = "VERITUBE_TIMEOUT_AI"

	// Database filename
	DBFilename = "veritube.db"
)

// Config defines the application configuration interface
type Config interface {
	Host() string
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	DownloadDir() string
	InboxDir() string
	WindowSeconds() int
	Headless() bool
	APIToken() string
	CollapseDuplicates() bool
	WatchInbox() bool

	CacheBackend() string
	CacheTTL() time.Duration
	RedisURL() string
	PostgresDSN() string

	AIProvider() string
	GeminiAPIKeys() []string
	GeminiModel() string
	OpenAIAPIKey() string
	OpenAIBaseURL() string
	OpenAIModel() string
	AIRequestsPerMinute() int
	TimeoutAI() time.Duration

	YTDLPPath() string
	DownloadMedia() bool
	MaxComments() int
	SiblingPython() string
	SiblingModule() string
	TimeoutDoctor() time.Duration
	TimeoutDownload() time.Duration
	TimeoutSibling() time.Duration
}

// fileConfig mirrors the YAML layout accepted by VERITUBE_CONFIG.
type fileConfig struct {
	Server struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		LogLevel string `yaml:"log_level"`
		Headless *bool  `yaml:"headless"`
		APIToken string `yaml:"api_token"`
	} `yaml:"server"`
	Storage struct {
		DataDir     string `yaml:"data_dir"`
		DownloadDir string `yaml:"download_dir"`
		InboxDir    string `yaml:"inbox_dir"`
		WatchInbox  *bool  `yaml:"watch_inbox"`
	} `yaml:"storage"`
	Cache struct {
		Backend     string `yaml:"backend"`
		TTL         string `yaml:"ttl"`
		RedisURL    string `yaml:"redis_url"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"cache"`
	Pipeline struct {
		WindowSeconds      int   `yaml:"window_seconds"`
		CollapseDuplicates *bool `yaml:"collapse_duplicates"`
		MaxComments        int   `yaml:"max_comments"`
		DownloadMedia      *bool `yaml:"download_media"`
	} `yaml:"pipeline"`
	AI struct {
		Provider          string   `yaml:"provider"`
		GeminiAPIKeys     []string `yaml:"gemini_api_keys"`
		GeminiModel       string   `yaml:"gemini_model"`
		OpenAIAPIKey      string   `yaml:"openai_api_key"`
		OpenAIBaseURL     string   `yaml:"openai_base_url"`
		OpenAIModel       string   `yaml:"openai_model"`
		RequestsPerMinute int      `yaml:"requests_per_minute"`
	} `yaml:"ai"`
	Tools struct {
		YTDLPPath     string `yaml:"ytdlp_path"`
		SiblingPython string `yaml:"sibling_python"`
		SiblingModule string `yaml:"sibling_module"`
	} `yaml:"tools"`
}

// EnvConfig holds the resolved configuration.
type EnvConfig struct {
	host               string
	port               int
	logLevel           string
	dataDir            string
	downloadDir        string
	inboxDir           string
	windowSeconds      int
	headless           bool
	apiToken           string
	collapseDuplicates bool
	watchInbox         bool

	cacheBackend string
	cacheTTL     time.Duration
	redisURL     string
	postgresDSN  string

	aiProvider    string
	geminiAPIKeys []string
	geminiModel   string
	openAIAPIKey  string
	openAIBaseURL string
	openAIModel   string
	aiRPM         int
	timeoutAI     time.Duration

	ytdlpPath       string
	downloadMedia   bool
	maxComments     int
	siblingPython   string
	siblingModule   string
	timeoutDownload time.Duration
}

// New creates a new EnvConfig with defaults, the optional YAML file named by
// VERITUBE_CONFIG and environment variable overrides.
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		host:               DefaultHost,
		port:               DefaultPort,
		logLevel:           DefaultLogLevel,
		dataDir:            defaultDataDir(),
		windowSeconds:      DefaultWindowSeconds,
		headless:           true,
		collapseDuplicates: true,
		cacheBackend:       DefaultCacheBackend,
		aiProvider:         DefaultAIProvider,
		geminiModel:        DefaultGeminiModel,
		openAIModel:        DefaultOpenAIModel,
		aiRPM:              DefaultAIRPM,
		timeoutAI:          DefaultTimeoutAI * time.Second,
		ytdlpPath:          DefaultYTDLP,
		maxComments:        DefaultMaxComments,
		siblingModule:      DefaultSiblingModule,
		timeoutDownload:    DefaultTimeoutDownload * time.Second,
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if cfg.port < 1 || cfg.port > 65535 {
		return nil, fmt.Errorf("invalid port %d: must be between 1 and 65535", cfg.port)
	}
	if cfg.windowSeconds <= 0 {
		return nil, fmt.Errorf("invalid window seconds %d: must be positive", cfg.windowSeconds)
	}
	switch cfg.cacheBackend {
	case "sqlite", "redis", "postgres", "memory":
	default:
		return nil, fmt.Errorf("invalid cache backend %q", cfg.cacheBackend)
	}
	switch cfg.aiProvider {
	case "gemini", "openai", "none":
	default:
		return nil, fmt.Errorf("invalid ai provider %q", cfg.aiProvider)
	}

	return cfg, nil
}

func (c *EnvConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.host, fc.Server.Host)
	setInt(&c.port, fc.Server.Port)
	setString(&c.logLevel, fc.Server.LogLevel)
	setBool(&c.headless, fc.Server.Headless)
	setString(&c.apiToken, fc.Server.APIToken)

	setString(&c.dataDir, fc.Storage.DataDir)
	setString(&c.downloadDir, fc.Storage.DownloadDir)
	setString(&c.inboxDir, fc.Storage.InboxDir)
	setBool(&c.watchInbox, fc.Storage.WatchInbox)

	setString(&c.cacheBackend, fc.Cache.Backend)
	if fc.Cache.TTL != "" {
		ttl, err := time.ParseDuration(fc.Cache.TTL)
		if err != nil {
			return fmt.Errorf("invalid cache.ttl: %w", err)
		}
		c.cacheTTL = ttl
	}
	setString(&c.redisURL, fc.Cache.RedisURL)
	setString(&c.postgresDSN, fc.Cache.PostgresDSN)

	setInt(&c.windowSeconds, fc.Pipeline.WindowSeconds)
	setBool(&c.collapseDuplicates, fc.Pipeline.CollapseDuplicates)
	setInt(&c.maxComments, fc.Pipeline.MaxComments)
	setBool(&c.downloadMedia, fc.Pipeline.DownloadMedia)

	setString(&c.aiProvider, fc.AI.Provider)
	if len(fc.AI.GeminiAPIKeys) > 0 {
		c.geminiAPIKeys = fc.AI.GeminiAPIKeys
	}
	setString(&c.geminiModel, fc.AI.GeminiModel)
	setString(&c.openAIAPIKey, fc.AI.OpenAIAPIKey)
	setString(&c.openAIBaseURL, fc.AI.OpenAIBaseURL)
	setString(&c.openAIModel, fc.AI.OpenAIModel)
	setInt(&c.aiRPM, fc.AI.RequestsPerMinute)

	setString(&c.ytdlpPath, fc.Tools.YTDLPPath)
	setString(&c.siblingPython, fc.Tools.SiblingPython)
	setString(&c.siblingModule, fc.Tools.SiblingModule)

	return nil
}

func (c *EnvConfig) loadEnv() error {
	setString(&c.host, os.Getenv(EnvHost))
	setString(&c.logLevel, os.Getenv(EnvLogLevel))
	setString(&c.dataDir, os.Getenv(EnvDataDir))
	setString(&c.downloadDir, os.Getenv(EnvDownloadDir))
	setString(&c.inboxDir, os.Getenv(EnvInboxDir))
	setString(&c.apiToken, os.Getenv(EnvAPIToken))
	setString(&c.cacheBackend, strings.ToLower(os.Getenv(EnvCacheBackend)))
	setString(&c.redisURL, os.Getenv(EnvRedisURL))
	setString(&c.postgresDSN, os.Getenv(EnvPostgresDSN))
	setString(&c.aiProvider, strings.ToLower(os.Getenv(EnvAIProvider)))
	setString(&c.geminiModel, os.Getenv(EnvGeminiModel))
	setString(&c.openAIAPIKey, os.Getenv(EnvOpenAIAPIKey))
	setString(&c.openAIBaseURL, os.Getenv(EnvOpenAIBaseURL))
	setString(&c.openAIModel, os.Getenv(EnvOpenAIModel))
	setString(&c.ytdlpPath, os.Getenv(EnvYTDLPPath))
	setString(&c.siblingPython, os.Getenv(EnvSiblingPython))
	setString(&c.siblingModule, os.Getenv(EnvSiblingModule))

	if keys := os.Getenv(EnvGeminiAPIKeys); keys != "" {
		c.geminiAPIKeys = splitList(keys)
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{EnvPort, &c.port},
		{EnvWindowSeconds, &c.windowSeconds},
		{EnvAIRPM, &c.aiRPM},
		{EnvMaxComments, &c.maxComments},
	}
	for _, v := range ints {
		if err := envInt(v.name, v.dst); err != nil {
			return err
		}
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{EnvHeadless, &c.headless},
		{EnvCollapseRuns, &c.collapseDuplicates},
		{EnvWatchInbox, &c.watchInbox},
		{EnvDownloadMedia, &c.downloadMedia},
	}
	for _, v := range bools {
		if err := envBool(v.name, v.dst); err != nil {
			return err
		}
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{EnvCacheTTL, &c.cacheTTL},
		{EnvTimeoutDownload, &c.timeoutDownload},
		{EnvTimeoutAI, &c.timeoutAI},
	}
	for _, v := range durations {
		if err := envDuration(v.name, v.dst); err != nil {
			return err
		}
	}

	return nil
}

// Host returns the HTTP listen host
func (c *EnvConfig) Host() string {
	return c.host
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// DownloadDir returns the root under which per-video artifact folders live.
func (c *EnvConfig) DownloadDir() string {
	if c.downloadDir != "" {
		return c.downloadDir
	}
	return filepath.Join(c.dataDir, "downloads")
}

// InboxDir returns the directory watched for dropped caption files.
func (c *EnvConfig) InboxDir() string {
	if c.inboxDir != "" {
		return c.inboxDir
	}
	return filepath.Join(c.dataDir, "inbox")
}

func (c *EnvConfig) WindowSeconds() int {
	return c.windowSeconds
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

// APIToken returns the bearer token required by the API. Empty disables auth.
func (c *EnvConfig) APIToken() string {
	return c.apiToken
}

func (c *EnvConfig) CollapseDuplicates() bool {
	return c.collapseDuplicates
}

func (c *EnvConfig) WatchInbox() bool {
	return c.watchInbox
}

func (c *EnvConfig) CacheBackend() string {
	return c.cacheBackend
}

// CacheTTL returns the default expiry for pipeline artifacts. Zero means no expiry.
func (c *EnvConfig) CacheTTL() time.Duration {
	return c.cacheTTL
}

func (c *EnvConfig) RedisURL() string {
	return c.redisURL
}

func (c *EnvConfig) PostgresDSN() string {
	return c.postgresDSN
}

func (c *EnvConfig) AIProvider() string {
	return c.aiProvider
}

func (c *EnvConfig) GeminiAPIKeys() []string {
	return c.geminiAPIKeys
}

func (c *EnvConfig) GeminiModel() string {
	return c.geminiModel
}

func (c *EnvConfig) OpenAIAPIKey() string {
	return c.openAIAPIKey
}

func (c *EnvConfig) OpenAIBaseURL() string {
	return c.openAIBaseURL
}

func (c *EnvConfig) OpenAIModel() string {
	return c.openAIModel
}

func (c *EnvConfig) AIRequestsPerMinute() int {
	return c.aiRPM
}

func (c *EnvConfig) TimeoutAI() time.Duration {
	return c.timeoutAI
}

func (c *EnvConfig) YTDLPPath() string {
	return c.ytdlpPath
}

func (c *EnvConfig) DownloadMedia() bool {
	return c.downloadMedia
}

func (c *EnvConfig) MaxComments() int {
	return c.maxComments
}

func (c *EnvConfig) SiblingPython() string {
	return c.siblingPython
}

func (c *EnvConfig) SiblingModule() string {
	return c.siblingModule
}

func (c *EnvConfig) TimeoutDoctor() time.Duration {
	return time.Duration(DefaultTimeoutDoctor) * time.Second
}

func (c *EnvConfig) TimeoutDownload() time.Duration {
	return c.timeoutDownload
}

func (c *EnvConfig) TimeoutSibling() time.Duration {
	return time.Duration(DefaultTimeoutSibling) * time.Second
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func envInt(name string, dst *int) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = v
	return nil
}

func envBool(name string, dst *bool) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = v
	return nil
}

// envDuration accepts Go duration strings ("90s", "24h") or a bare number of seconds.
func envDuration(name string, dst *time.Duration) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		*dst = time.Duration(secs) * time.Second
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = v
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
