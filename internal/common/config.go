package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production" - controls localhost webhook validation
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Fetcher     FetcherConfig   `toml:"fetcher"`
	Crawl       CrawlSettings   `toml:"crawl"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
	Badger BadgerConfig `toml:"badger"`
}

// SQLiteConfig represents the relational store holding jobs, queue items,
// exclusion rules and scored products
type SQLiteConfig struct {
	Path          string `toml:"path"`            // Database file path
	CacheSizeMB   int    `toml:"cache_size_mb"`   // Page cache size in megabytes
	BusyTimeoutMS int    `toml:"busy_timeout_ms"` // Lock wait timeout in milliseconds
	WALMode       bool   `toml:"wal_mode"`        // Enable write-ahead logging
}

// BadgerConfig represents the key/value store holding job logs and crawl events
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level         string   `toml:"level"`           // "debug", "info", "warn", "error"
	Format        string   `toml:"format"`          // "json" or "text"
	Output        []string `toml:"output"`          // "stdout", "file"
	TimeFormat    string   `toml:"time_format"`     // Time format for logs (default: "15:04:05.000")
	MinEventLevel string   `toml:"min_event_level"` // Minimum log level to persist to the per-job stream
}

// FetcherConfig contains the browser-as-a-service integration settings.
// WebhookBaseURL must be a publicly reachable origin or callbacks never
// arrive; the startup self-test catches the silent failure mode.
type FetcherConfig struct {
	APIKey          string        `toml:"api_key"`           // Fetcher API key (FETCHER_API_KEY)
	BaseURL         string        `toml:"base_url"`          // Fetcher endpoint (FETCHER_BASE_URL)
	WebhookBaseURL  string        `toml:"webhook_base_url"`  // Our public callback origin (WEBHOOK_BASE_URL)
	SubmitTimeout   time.Duration `toml:"submit_timeout"`    // Submit-side HTTP timeout
	DownloadTimeout time.Duration `toml:"download_timeout"`  // Payload download timeout
	RateLimit       time.Duration `toml:"rate_limit"`        // Minimum time between fetcher requests
	SelfTestTimeout time.Duration `toml:"self_test_timeout"` // Wait for the startup webhook round-trip
}

// CrawlSettings contains queue pacing and retry tuning
type CrawlSettings struct {
	CatalogBaseURL        string  `toml:"catalog_base_url"`         // Origin for search and product URLs
	SubmitDelayMinSeconds float64 `toml:"submit_delay_min_seconds"` // Lower bound of the pacing delay
	SubmitDelayMaxSeconds float64 `toml:"submit_delay_max_seconds"` // Upper bound of the pacing delay
	RetryBaseSeconds      int     `toml:"retry_base_seconds"`       // Backoff base for the first retry
	RetryJitterSeconds    int     `toml:"retry_jitter_seconds"`     // Uniform jitter added to each backoff
	MaxRetries            int     `toml:"max_retries"`              // Attempts before an item fails terminally
	WarmupQueueDepth      int     `toml:"warmup_queue_depth"`       // Ready items required before paced submission resumes
	MaxPaginationPages    int     `toml:"max_pagination_pages"`     // Cap on result pages expanded per keyword
	StaleSubmittedAfter   string  `toml:"stale_submitted_after"`    // Age after which the sweeper recycles submitted items (duration)
	SweeperSchedule       string  `toml:"sweeper_schedule"`         // Cron schedule (with seconds) for the recovery sweeper
	RulesCacheTTL         string  `toml:"rules_cache_ttl"`          // Exclusion rule cache refresh interval (duration)
}

// WebSocketConfig contains configuration for WebSocket log streaming
type WebSocketConfig struct {
	MinLevel        string   `toml:"min_level"`        // Minimum log level to broadcast ("debug", "info", "warn", "error")
	ExcludePatterns []string `toml:"exclude_patterns"` // Log message patterns to exclude from broadcasting
	// Throttle intervals for high-frequency messages. Map of message type to duration string.
	// Example: {"crawl_progress": "1s"}
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

// NewDefaultConfig creates a configuration with default values
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in trawler.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development", // Default to development mode - allows localhost webhook URLs
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:          "./data/trawler.db",
				CacheSizeMB:   64,
				BusyTimeoutMS: 5000,
				WALMode:       true,
			},
			Badger: BadgerConfig{
				Path: "./data/kv",
			},
		},
		Logging: LoggingConfig{
			Level:         "info",                     // Info level for production (debug|info|warn|error)
			Format:        "text",                     // Human-readable text format (text|json)
			Output:        []string{"stdout", "file"}, // Log to both console and file
			MinEventLevel: "info",                     // Persist info and above to the per-job stream
		},
		Fetcher: FetcherConfig{
			APIKey:          "", // User must provide API key via FETCHER_API_KEY or config file
			BaseURL:         "",
			WebhookBaseURL:  "",
			SubmitTimeout:   10 * time.Second,
			DownloadTimeout: 30 * time.Second,
			RateLimit:       500 * time.Millisecond,
			SelfTestTimeout: 15 * time.Second,
		},
		Crawl: CrawlSettings{
			CatalogBaseURL:        "https://cjdropshipping.com",
			SubmitDelayMinSeconds: 5,
			SubmitDelayMaxSeconds: 15,
			RetryBaseSeconds:      900, // 15 minutes, doubles per retry
			RetryJitterSeconds:    300,
			MaxRetries:            3,
			WarmupQueueDepth:      15,
			MaxPaginationPages:    10,
			StaleSubmittedAfter:   "30m",
			SweeperSchedule:       "0 * * * * *", // Every minute on the minute
			RulesCacheTTL:         "60s",
		},
		WebSocket: WebSocketConfig{
			MinLevel: "info", // Default: info level and above
			ExcludePatterns: []string{
				"WebSocket client connected",
				"WebSocket client disconnected",
				"HTTP request",
				"HTTP response",
			},
			// Throttle high-frequency messages to prevent WebSocket flooding during large crawls
			ThrottleIntervals: map[string]string{
				"crawl_progress": "1s", // Max 1 crawl progress update per second per job
			},
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
// Priority system: CLI flags > Environment variables > Config file > Defaults
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env -> CLI
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	// Start with defaults
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier files)
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// Apply environment variables (overrides all file configs)
	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// Fetcher and pacing settings accept two names each: the TRAWLER_-prefixed
// form first, then the bare form for compatibility with the deploy scripts.
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: TRAWLER_ENV, fallback: GO_ENV)
	if env := os.Getenv("TRAWLER_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("TRAWLER_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("TRAWLER_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if sqlitePath := os.Getenv("TRAWLER_SQLITE_PATH"); sqlitePath != "" {
		config.Storage.SQLite.Path = sqlitePath
	}
	if badgerPath := os.Getenv("TRAWLER_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("TRAWLER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("TRAWLER_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("TRAWLER_LOG_OUTPUT"); output != "" {
		// Split comma-separated output types
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
	if minEventLevel := os.Getenv("TRAWLER_LOG_MIN_EVENT_LEVEL"); minEventLevel != "" {
		config.Logging.MinEventLevel = minEventLevel
	}

	// Fetcher configuration
	if apiKey := envFirst("TRAWLER_FETCHER_API_KEY", "FETCHER_API_KEY"); apiKey != "" {
		config.Fetcher.APIKey = apiKey
	}
	if baseURL := envFirst("TRAWLER_FETCHER_BASE_URL", "FETCHER_BASE_URL"); baseURL != "" {
		config.Fetcher.BaseURL = baseURL
	}
	if webhookBase := envFirst("TRAWLER_WEBHOOK_BASE_URL", "WEBHOOK_BASE_URL"); webhookBase != "" {
		config.Fetcher.WebhookBaseURL = webhookBase
	}
	if submitTimeout := os.Getenv("TRAWLER_FETCHER_SUBMIT_TIMEOUT"); submitTimeout != "" {
		if st, err := time.ParseDuration(submitTimeout); err == nil {
			config.Fetcher.SubmitTimeout = st
		}
	}
	if downloadTimeout := os.Getenv("TRAWLER_FETCHER_DOWNLOAD_TIMEOUT"); downloadTimeout != "" {
		if dt, err := time.ParseDuration(downloadTimeout); err == nil {
			config.Fetcher.DownloadTimeout = dt
		}
	}
	if rateLimit := os.Getenv("TRAWLER_FETCHER_RATE_LIMIT"); rateLimit != "" {
		if rl, err := time.ParseDuration(rateLimit); err == nil {
			config.Fetcher.RateLimit = rl
		}
	}

	// Crawl pacing configuration
	if catalogBase := os.Getenv("TRAWLER_CATALOG_BASE_URL"); catalogBase != "" {
		config.Crawl.CatalogBaseURL = catalogBase
	}
	if delayMin := envFirst("TRAWLER_SUBMIT_DELAY_MIN_SECONDS", "SUBMIT_DELAY_MIN_SECONDS"); delayMin != "" {
		if d, err := strconv.ParseFloat(delayMin, 64); err == nil {
			config.Crawl.SubmitDelayMinSeconds = d
		}
	}
	if delayMax := envFirst("TRAWLER_SUBMIT_DELAY_MAX_SECONDS", "SUBMIT_DELAY_MAX_SECONDS"); delayMax != "" {
		if d, err := strconv.ParseFloat(delayMax, 64); err == nil {
			config.Crawl.SubmitDelayMaxSeconds = d
		}
	}
	if retryBase := envFirst("TRAWLER_RETRY_BASE_SECONDS", "RETRY_BASE_SECONDS"); retryBase != "" {
		if rb, err := strconv.Atoi(retryBase); err == nil {
			config.Crawl.RetryBaseSeconds = rb
		}
	}
	if retryJitter := envFirst("TRAWLER_RETRY_JITTER_SECONDS", "RETRY_JITTER_SECONDS"); retryJitter != "" {
		if rj, err := strconv.Atoi(retryJitter); err == nil {
			config.Crawl.RetryJitterSeconds = rj
		}
	}
	if maxRetries := envFirst("TRAWLER_MAX_RETRIES", "MAX_RETRIES"); maxRetries != "" {
		if mr, err := strconv.Atoi(maxRetries); err == nil {
			config.Crawl.MaxRetries = mr
		}
	}
	if warmupDepth := envFirst("TRAWLER_WARMUP_QUEUE_DEPTH", "WARMUP_QUEUE_DEPTH"); warmupDepth != "" {
		if wd, err := strconv.Atoi(warmupDepth); err == nil {
			config.Crawl.WarmupQueueDepth = wd
		}
	}
	if maxPages := os.Getenv("TRAWLER_MAX_PAGINATION_PAGES"); maxPages != "" {
		if mp, err := strconv.Atoi(maxPages); err == nil {
			config.Crawl.MaxPaginationPages = mp
		}
	}
	if staleAfter := os.Getenv("TRAWLER_STALE_SUBMITTED_AFTER"); staleAfter != "" {
		if _, err := time.ParseDuration(staleAfter); err == nil {
			config.Crawl.StaleSubmittedAfter = staleAfter
		}
	}
	if sweeperSchedule := os.Getenv("TRAWLER_SWEEPER_SCHEDULE"); sweeperSchedule != "" {
		config.Crawl.SweeperSchedule = sweeperSchedule
	}
	if rulesTTL := os.Getenv("TRAWLER_RULES_CACHE_TTL"); rulesTTL != "" {
		if _, err := time.ParseDuration(rulesTTL); err == nil {
			config.Crawl.RulesCacheTTL = rulesTTL
		}
	}

	// WebSocket configuration
	if minLevel := os.Getenv("TRAWLER_WEBSOCKET_MIN_LEVEL"); minLevel != "" {
		config.WebSocket.MinLevel = minLevel
	}
	if excludePatterns := os.Getenv("TRAWLER_WEBSOCKET_EXCLUDE_PATTERNS"); excludePatterns != "" {
		// Split comma-separated patterns
		patterns := []string{}
		for _, p := range strings.Split(excludePatterns, ",") {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				patterns = append(patterns, trimmed)
			}
		}
		if len(patterns) > 0 {
			config.WebSocket.ExcludePatterns = patterns
		}
	}
	if progressThrottle := os.Getenv("TRAWLER_WEBSOCKET_THROTTLE_CRAWL_PROGRESS"); progressThrottle != "" {
		if _, err := time.ParseDuration(progressThrottle); err == nil {
			if config.WebSocket.ThrottleIntervals == nil {
				config.WebSocket.ThrottleIntervals = make(map[string]string)
			}
			config.WebSocket.ThrottleIntervals["crawl_progress"] = progressThrottle
		}
	}
}

// envFirst returns the first non-empty value among the named variables
func envFirst(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate rejects configurations the crawl engine cannot run with
func (c *Config) Validate() error {
	if c.Crawl.SubmitDelayMinSeconds < 0 {
		return fmt.Errorf("submit_delay_min_seconds must be >= 0, got %v", c.Crawl.SubmitDelayMinSeconds)
	}
	if c.Crawl.SubmitDelayMaxSeconds < c.Crawl.SubmitDelayMinSeconds {
		return fmt.Errorf("submit_delay_max_seconds (%v) must be >= submit_delay_min_seconds (%v)",
			c.Crawl.SubmitDelayMaxSeconds, c.Crawl.SubmitDelayMinSeconds)
	}
	if c.Crawl.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.Crawl.MaxRetries)
	}
	if c.Crawl.RetryBaseSeconds <= 0 {
		return fmt.Errorf("retry_base_seconds must be > 0, got %d", c.Crawl.RetryBaseSeconds)
	}
	if c.Crawl.SweeperSchedule != "" {
		if err := ValidateSweeperSchedule(c.Crawl.SweeperSchedule); err != nil {
			return err
		}
	}
	if _, err := time.ParseDuration(c.Crawl.StaleSubmittedAfter); err != nil {
		return fmt.Errorf("invalid stale_submitted_after: %w", err)
	}
	if _, err := time.ParseDuration(c.Crawl.RulesCacheTTL); err != nil {
		return fmt.Errorf("invalid rules_cache_ttl: %w", err)
	}
	return nil
}

// ValidateSweeperSchedule validates a cron schedule expression (with seconds field)
func ValidateSweeperSchedule(schedule string) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid sweeper schedule: %w", err)
	}
	return nil
}

// StaleSubmittedAge returns the parsed staleness window, falling back to the
// default when the string failed to parse.
func (c *CrawlSettings) StaleSubmittedAge() time.Duration {
	d, err := time.ParseDuration(c.StaleSubmittedAfter)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// RulesCacheInterval returns the parsed rule cache TTL
func (c *CrawlSettings) RulesCacheInterval() time.Duration {
	d, err := time.ParseDuration(c.RulesCacheTTL)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// AllowTestURLs returns true if test URLs (localhost, 127.0.0.1, etc.) are allowed
// as the webhook callback origin. Only allowed in development mode.
func (c *Config) AllowTestURLs() bool {
	return !c.IsProduction()
}
