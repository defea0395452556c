package config

import (
	"fmt"
	"io"
	"math"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Environment overrides applied after the YAML document.
const (
	EnvGitHubToken   = "GH_DASHBOARD_GITHUB_TOKEN"
	EnvBackendURL    = "GH_DASHBOARD_BACKEND_URL"
	EnvRedisPassword = "GH_DASHBOARD_REDIS_PASSWORD"
)

var (
	validLogLevels    = []string{"debug", "info", "warn", "error"}
	validCacheBackend = []string{"memory", "redis"}
	validRedisModes   = []string{"standalone", "sentinel"}
	validTraceModes   = []string{"", "off", "errors", "sampled", "detailed"}
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Retry     RetryConfig
	RateLimit RateLimitConfig
	GitHub    GitHubConfig
	Cache     CacheConfig
	Dashboard DashboardConfig
	Health    HealthConfig
	Telemetry TelemetryConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddr        string
	LogLevel          string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// BackendConfig locates the stats backend.
type BackendConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// RetryConfig configures retries against the stats backend.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// RateLimitConfig configures rate-limit handling. MaxWait caps how long a request may
// block on a throttled upstream before the error is shown instead.
type RateLimitConfig struct {
	MinRemainingThreshold int
	SecondaryLimitBackoff time.Duration
	MaxWait               time.Duration
}

// GitHubConfig configures direct GitHub reads for the profile widget.
type GitHubConfig struct {
	Enabled        bool
	APIBaseURL     string
	Token          string
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
	RequestTimeout time.Duration
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Backend            string
	RedisMode          string
	RedisAddr          string
	RedisMasterSet     string
	RedisSentinelAddrs []string
	RedisPassword      string
	RedisDB            int
	Namespace          string
	MaxEntries         int
	RankingsTTL        time.Duration
	CountriesTTL       time.Duration
	StatsTTL           time.Duration
}

// DashboardConfig configures pages and widgets.
type DashboardConfig struct {
	// SettleTimeout bounds how long an HTML render waits for in-flight widget fetches.
	SettleTimeout      time.Duration
	FetchTimeout       time.Duration
	PageIdleTimeout    time.Duration
	MaxPages           int
	GlobalRankingLimit int
	WindowWeeks        int
	MinBarPercent      float64
	TopRepos           int
	MetricsRefresh     time.Duration
}

// HealthConfig configures health check behavior.
type HealthConfig struct {
	CheckTimeout  time.Duration
	CheckCacheTTL time.Duration
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELTraceMode        string
	OTELTraceSampleRatio float64
}

// Load reads configuration from YAML, applies process environment overrides and validates
// the result.
func Load(reader io.Reader) (*Config, error) {
	return LoadWithEnv(reader, os.LookupEnv)
}

// LoadWithEnv is Load with an injectable environment lookup.
func LoadWithEnv(reader io.Reader, lookup func(string) (string, bool)) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := raw.toConfig()
	applyEnv(cfg, lookup)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates configuration values. All problems are reported together.
func (c *Config) Validate() error {
	var result *multierror.Error
	add := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if !slices.Contains(validLogLevels, c.Server.LogLevel) {
		add("server.log_level must be one of debug|info|warn|error")
	}
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		add("server.listen_addr is required")
	}

	if parsed, err := url.Parse(c.Backend.BaseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		add("backend.base_url must be an absolute url")
	}
	if c.Backend.RequestTimeout <= 0 {
		add("backend.request_timeout must be > 0")
	}

	if c.Retry.MaxAttempts < 1 {
		add("retry.max_attempts must be >= 1")
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		add("retry.max_backoff must be >= retry.initial_backoff")
	}
	if c.RateLimit.MinRemainingThreshold < 0 {
		add("rate_limit.min_remaining_threshold must be >= 0")
	}

	if c.GitHub.Enabled {
		if c.GitHub.AppID > 0 || c.GitHub.InstallationID > 0 {
			if c.GitHub.AppID <= 0 {
				add("github.app_id must be > 0 when github.installation_id is set")
			}
			if c.GitHub.InstallationID <= 0 {
				add("github.installation_id must be > 0 when github.app_id is set")
			}
			if strings.TrimSpace(c.GitHub.PrivateKeyPath) == "" {
				add("github.private_key_path is required for app installation auth")
			}
		}
	}

	if !slices.Contains(validCacheBackend, c.Cache.Backend) {
		add("cache.backend must be memory or redis")
	}
	if c.Cache.Backend == "redis" {
		if !slices.Contains(validRedisModes, c.Cache.RedisMode) {
			add("cache.redis_mode must be standalone or sentinel")
		}
		if c.Cache.RedisMode == "sentinel" && len(c.Cache.RedisSentinelAddrs) == 0 {
			add("cache.redis_sentinel_addrs is required when cache.redis_mode=sentinel")
		}
		if c.Cache.RedisMode == "standalone" && strings.TrimSpace(c.Cache.RedisAddr) == "" {
			add("cache.redis_addr is required when cache.redis_mode=standalone")
		}
	}
	if c.Cache.MaxEntries < 0 {
		add("cache.max_entries must be >= 0")
	}

	if c.Dashboard.GlobalRankingLimit <= 0 {
		add("dashboard.global_ranking_limit must be > 0")
	}
	if c.Dashboard.WindowWeeks <= 0 {
		add("dashboard.window_weeks must be > 0")
	}
	if c.Dashboard.MinBarPercent < 0 || c.Dashboard.MinBarPercent > 100 {
		add("dashboard.min_bar_percent must be within [0,100]")
	}
	if c.Dashboard.MaxPages <= 0 {
		add("dashboard.max_pages must be > 0")
	}

	if !slices.Contains(validTraceModes, strings.ToLower(c.Telemetry.OTELTraceMode)) {
		add("telemetry.otel_trace_mode must be one of off|errors|sampled|detailed")
	}

	return result.ErrorOrNil()
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if lookup == nil {
		return
	}
	if value, ok := lookup(EnvGitHubToken); ok && strings.TrimSpace(value) != "" {
		cfg.GitHub.Token = strings.TrimSpace(value)
	}
	if value, ok := lookup(EnvBackendURL); ok && strings.TrimSpace(value) != "" {
		cfg.Backend.BaseURL = strings.TrimSpace(value)
	}
	if value, ok := lookup(EnvRedisPassword); ok {
		cfg.Cache.RedisPassword = value
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8081"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://localhost:8080"
	}
	if cfg.Backend.RequestTimeout == 0 {
		cfg.Backend.RequestTimeout = 15 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialBackoff == 0 {
		cfg.Retry.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.Retry.MaxBackoff == 0 {
		cfg.Retry.MaxBackoff = 2 * time.Second
	}
	if cfg.RateLimit.SecondaryLimitBackoff == 0 {
		cfg.RateLimit.SecondaryLimitBackoff = 5 * time.Second
	}
	if cfg.RateLimit.MaxWait == 0 {
		cfg.RateLimit.MaxWait = 5 * time.Second
	}
	if cfg.GitHub.RequestTimeout == 0 {
		cfg.GitHub.RequestTimeout = 10 * time.Second
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.RedisMode == "" {
		cfg.Cache.RedisMode = "standalone"
	}
	if cfg.Cache.Namespace == "" {
		cfg.Cache.Namespace = "gh-dashboard"
	}
	if cfg.Cache.RankingsTTL == 0 {
		cfg.Cache.RankingsTTL = time.Hour
	}
	if cfg.Cache.CountriesTTL == 0 {
		cfg.Cache.CountriesTTL = time.Hour
	}
	if cfg.Cache.StatsTTL == 0 {
		cfg.Cache.StatsTTL = time.Minute
	}
	if cfg.Dashboard.SettleTimeout == 0 {
		cfg.Dashboard.SettleTimeout = 3 * time.Second
	}
	if cfg.Dashboard.FetchTimeout == 0 {
		cfg.Dashboard.FetchTimeout = 30 * time.Second
	}
	if cfg.Dashboard.PageIdleTimeout == 0 {
		cfg.Dashboard.PageIdleTimeout = 30 * time.Minute
	}
	if cfg.Dashboard.MaxPages == 0 {
		cfg.Dashboard.MaxPages = 1000
	}
	if cfg.Dashboard.GlobalRankingLimit == 0 {
		cfg.Dashboard.GlobalRankingLimit = 100
	}
	if cfg.Dashboard.WindowWeeks == 0 {
		cfg.Dashboard.WindowWeeks = 52
	}
	if cfg.Dashboard.MinBarPercent == 0 {
		cfg.Dashboard.MinBarPercent = 2
	}
	if cfg.Dashboard.TopRepos == 0 {
		cfg.Dashboard.TopRepos = 10
	}
	if cfg.Dashboard.MetricsRefresh == 0 {
		cfg.Dashboard.MetricsRefresh = 15 * time.Second
	}
	if cfg.Health.CheckTimeout == 0 {
		cfg.Health.CheckTimeout = 2 * time.Second
	}
	if cfg.Health.CheckCacheTTL == 0 {
		cfg.Health.CheckCacheTTL = 5 * time.Second
	}
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	Server    rawServer    `yaml:"server"`
	Backend   rawBackend   `yaml:"backend"`
	Retry     rawRetry     `yaml:"retry"`
	RateLimit rawRateLimit `yaml:"rate_limit"`
	GitHub    rawGitHub    `yaml:"github"`
	Cache     rawCache     `yaml:"cache"`
	Dashboard rawDashboard `yaml:"dashboard"`
	Health    rawHealth    `yaml:"health"`
	Telemetry rawTelemetry `yaml:"telemetry"`
}

type rawServer struct {
	ListenAddr        string   `yaml:"listen_addr"`
	LogLevel          string   `yaml:"log_level"`
	ReadHeaderTimeout duration `yaml:"read_header_timeout"`
	ShutdownTimeout   duration `yaml:"shutdown_timeout"`
}

type rawBackend struct {
	BaseURL        string   `yaml:"base_url"`
	RequestTimeout duration `yaml:"request_timeout"`
}

type rawRetry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff duration `yaml:"initial_backoff"`
	MaxBackoff     duration `yaml:"max_backoff"`
}

type rawRateLimit struct {
	MinRemainingThreshold int      `yaml:"min_remaining_threshold"`
	SecondaryLimitBackoff duration `yaml:"secondary_limit_backoff"`
	MaxWait               duration `yaml:"max_wait"`
}

type rawGitHub struct {
	Enabled        bool     `yaml:"enabled"`
	APIBaseURL     string   `yaml:"api_base_url"`
	Token          string   `yaml:"token"`
	AppID          int64    `yaml:"app_id"`
	InstallationID int64    `yaml:"installation_id"`
	PrivateKeyPath string   `yaml:"private_key_path"`
	RequestTimeout duration `yaml:"request_timeout"`
}

type rawCache struct {
	Backend            string   `yaml:"backend"`
	RedisMode          string   `yaml:"redis_mode"`
	RedisAddr          string   `yaml:"redis_addr"`
	RedisMasterSet     string   `yaml:"redis_master_set"`
	RedisSentinelAddrs []string `yaml:"redis_sentinel_addrs"`
	RedisPassword      string   `yaml:"redis_password"`
	RedisDB            int      `yaml:"redis_db"`
	Namespace          string   `yaml:"namespace"`
	MaxEntries         int      `yaml:"max_entries"`
	RankingsTTL        duration `yaml:"rankings_ttl"`
	CountriesTTL       duration `yaml:"countries_ttl"`
	StatsTTL           duration `yaml:"stats_ttl"`
}

type rawDashboard struct {
	SettleTimeout      duration `yaml:"settle_timeout"`
	FetchTimeout       duration `yaml:"fetch_timeout"`
	PageIdleTimeout    duration `yaml:"page_idle_timeout"`
	MaxPages           int      `yaml:"max_pages"`
	GlobalRankingLimit int      `yaml:"global_ranking_limit"`
	WindowWeeks        int      `yaml:"window_weeks"`
	MinBarPercent      float64  `yaml:"min_bar_percent"`
	TopRepos           int      `yaml:"top_repos"`
	MetricsRefresh     duration `yaml:"metrics_refresh_interval"`
}

type rawHealth struct {
	CheckTimeout  duration `yaml:"check_timeout"`
	CheckCacheTTL duration `yaml:"check_cache_ttl"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
}

func (r rawConfig) toConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:        r.Server.ListenAddr,
			LogLevel:          strings.ToLower(strings.TrimSpace(r.Server.LogLevel)),
			ReadHeaderTimeout: r.Server.ReadHeaderTimeout.Duration,
			ShutdownTimeout:   r.Server.ShutdownTimeout.Duration,
		},
		Backend: BackendConfig{
			BaseURL:        strings.TrimSpace(r.Backend.BaseURL),
			RequestTimeout: r.Backend.RequestTimeout.Duration,
		},
		Retry: RetryConfig{
			MaxAttempts:    r.Retry.MaxAttempts,
			InitialBackoff: r.Retry.InitialBackoff.Duration,
			MaxBackoff:     r.Retry.MaxBackoff.Duration,
		},
		RateLimit: RateLimitConfig{
			MinRemainingThreshold: r.RateLimit.MinRemainingThreshold,
			SecondaryLimitBackoff: r.RateLimit.SecondaryLimitBackoff.Duration,
			MaxWait:               r.RateLimit.MaxWait.Duration,
		},
		GitHub: GitHubConfig{
			Enabled:        r.GitHub.Enabled,
			APIBaseURL:     strings.TrimSpace(r.GitHub.APIBaseURL),
			Token:          strings.TrimSpace(r.GitHub.Token),
			AppID:          r.GitHub.AppID,
			InstallationID: r.GitHub.InstallationID,
			PrivateKeyPath: r.GitHub.PrivateKeyPath,
			RequestTimeout: r.GitHub.RequestTimeout.Duration,
		},
		Cache: CacheConfig{
			Backend:            strings.ToLower(strings.TrimSpace(r.Cache.Backend)),
			RedisMode:          strings.ToLower(strings.TrimSpace(r.Cache.RedisMode)),
			RedisAddr:          r.Cache.RedisAddr,
			RedisMasterSet:     r.Cache.RedisMasterSet,
			RedisSentinelAddrs: r.Cache.RedisSentinelAddrs,
			RedisPassword:      r.Cache.RedisPassword,
			RedisDB:            r.Cache.RedisDB,
			Namespace:          r.Cache.Namespace,
			MaxEntries:         r.Cache.MaxEntries,
			RankingsTTL:        r.Cache.RankingsTTL.Duration,
			CountriesTTL:       r.Cache.CountriesTTL.Duration,
			StatsTTL:           r.Cache.StatsTTL.Duration,
		},
		Dashboard: DashboardConfig{
			SettleTimeout:      r.Dashboard.SettleTimeout.Duration,
			FetchTimeout:       r.Dashboard.FetchTimeout.Duration,
			PageIdleTimeout:    r.Dashboard.PageIdleTimeout.Duration,
			MaxPages:           r.Dashboard.MaxPages,
			GlobalRankingLimit: r.Dashboard.GlobalRankingLimit,
			WindowWeeks:        r.Dashboard.WindowWeeks,
			MinBarPercent:      r.Dashboard.MinBarPercent,
			TopRepos:           r.Dashboard.TopRepos,
			MetricsRefresh:     r.Dashboard.MetricsRefresh.Duration,
		},
		Health: HealthConfig{
			CheckTimeout:  r.Health.CheckTimeout.Duration,
			CheckCacheTTL: r.Health.CheckCacheTTL.Duration,
		},
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELTraceMode:        r.Telemetry.OTELTraceMode,
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
		},
	}
}
