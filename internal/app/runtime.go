package app

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/cam3ron2/gh-dashboard/internal/auth"
	"github.com/cam3ron2/gh-dashboard/internal/config"
	"github.com/cam3ron2/gh-dashboard/internal/dashboard"
	"github.com/cam3ron2/gh-dashboard/internal/exporter"
	"github.com/cam3ron2/gh-dashboard/internal/githubapi"
	"github.com/cam3ron2/gh-dashboard/internal/health"
	"github.com/cam3ron2/gh-dashboard/internal/statsapi"
	"go.uber.org/zap"
)

// ProfileReader reads GitHub profiles and follower lists.
type ProfileReader interface {
	dashboard.ProfileSource
	Followers(ctx context.Context, login string) (githubapi.UserList, error)
	Following(ctx context.Context, login string) (githubapi.UserList, error)
}

// StatsReader is the stats backend as the runtime uses it.
type StatsReader interface {
	dashboard.StatsSource
	SearchUsers(ctx context.Context, query string) (statsapi.UserSearch, error)
}

// Dependencies are the collaborators a Runtime serves pages from.
type Dependencies struct {
	Stats StatsReader
	// Profiles is optional. Without it the profile widget stays idle.
	Profiles ProfileReader
	// Auth backs the login session every page gets.
	Auth auth.Backend
	// Cache is optional and defaults to an in-memory cache used only for metrics.
	Cache        *CacheBackend
	BackendCheck health.Check
	GitHubCheck  health.Check
}

// Runtime is the application runtime: page registry, HTTP surface and background upkeep.
type Runtime struct {
	cfg       *config.Config
	stats     StatsReader
	profiles  ProfileReader
	auth      auth.Backend
	cache     *CacheBackend
	registry  *PageRegistry
	monitor   *health.Monitor
	templates *template.Template
	logger    *zap.Logger

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewRuntime creates a runtime instance.
func NewRuntime(cfg *config.Config, deps Dependencies, logger ...*zap.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Stats == nil {
		return nil, fmt.Errorf("stats source is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth backend is required")
	}
	baseLogger := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		baseLogger = logger[0]
	}
	if deps.Cache == nil {
		deps.Cache = NewCacheBackend(config.CacheConfig{Backend: cacheBackendMemory}, baseLogger)
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		cfg:       cfg,
		stats:     deps.Stats,
		profiles:  deps.Profiles,
		auth:      deps.Auth,
		cache:     deps.Cache,
		templates: templates,
		logger:    baseLogger,
		Now:       time.Now,
	}
	rt.registry = NewPageRegistry(rt.newPage, RegistryConfig{
		IdleTimeout: cfg.Dashboard.PageIdleTimeout,
		MaxPages:    cfg.Dashboard.MaxPages,
		NewSession: func() *auth.Session {
			return auth.NewSession(rt.auth, baseLogger)
		},
	}, baseLogger)

	var githubCheck health.Check
	if deps.Profiles != nil {
		githubCheck = deps.GitHubCheck
	}
	rt.monitor = health.NewMonitor(health.MonitorConfig{
		CacheBackend: deps.Cache.Name,
		Cache:        deps.Cache.Cache.Ping,
		Pages:        rt.registry.Check,
		Backend:      deps.BackendCheck,
		GitHub:       githubCheck,
		Timeout:      cfg.Health.CheckTimeout,
		TTL:          cfg.Health.CheckCacheTTL,
	})
	return rt, nil
}

// Registry exposes the page registry.
func (rt *Runtime) Registry() *PageRegistry {
	return rt.registry
}

// CurrentStatus implements health.Provider.
func (rt *Runtime) CurrentStatus(ctx context.Context) health.Status {
	return rt.monitor.CurrentStatus(ctx)
}

// Handler returns the combined HTTP handler.
func (rt *Runtime) Handler() http.Handler {
	reader := exporter.NewCachedSnapshotReader(
		exporter.NewDashboardReader(rt.registry, rt.cache.Cache, rt.cache.Name),
		exporter.CacheConfig{RefreshInterval: rt.cfg.Dashboard.MetricsRefresh},
	)
	metricsHandler := exporter.NewOpenMetricsHandler(reader)
	healthHandler := health.NewHandler(rt)
	return NewHTTPHandler(rt.routes(), metricsHandler, healthHandler)
}

// Run expires idle pages and collects expired cache entries until ctx is done.
func (rt *Runtime) Run(ctx context.Context) {
	interval := rt.janitorInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rt.logger.Info("starting page janitor",
		zap.Duration("interval", interval),
		zap.Duration("page_idle_timeout", rt.cfg.Dashboard.PageIdleTimeout),
		zap.String("cache_backend", rt.cache.Name),
	)
	for {
		select {
		case <-ctx.Done():
			rt.logger.Debug("page janitor stopped")
			return
		case <-ticker.C:
			rt.RunJanitorCycle(ctx)
		}
	}
}

// RunJanitorCycle performs one upkeep pass.
func (rt *Runtime) RunJanitorCycle(ctx context.Context) {
	now := rt.Now()
	expired := rt.registry.Expire(now)
	rt.cache.GC(ctx, now)
	rt.logger.Debug("page janitor cycle completed",
		zap.Int("pages_expired", expired),
		zap.Int("pages_live", rt.registry.Len()),
	)
}

// Close drops every page and releases the cache.
func (rt *Runtime) Close() error {
	rt.registry.Close()
	if err := rt.cache.Cache.Close(); err != nil {
		return fmt.Errorf("close cache: %w", err)
	}
	return nil
}

func (rt *Runtime) newPage(session *auth.Session) (*dashboard.Page, error) {
	if session == nil {
		return nil, fmt.Errorf("page session is required")
	}
	var profiles dashboard.ProfileSource
	if rt.profiles != nil {
		profiles = rt.profiles
	}
	return dashboard.NewPage(rt.stats, profiles, session, dashboard.Options{
		FetchTimeout: rt.cfg.Dashboard.FetchTimeout,
		GlobalLimit:  rt.cfg.Dashboard.GlobalRankingLimit,
		WindowWeeks:  rt.cfg.Dashboard.WindowWeeks,
		MinPercent:   rt.cfg.Dashboard.MinBarPercent,
		TopRepos:     rt.cfg.Dashboard.TopRepos,
		Logger:       rt.logger,
	})
}

// settle waits for in-flight widget fetches so a server render shows data rather than
// spinners. Widgets still loading at the deadline render as loading.
func (rt *Runtime) settle(ctx context.Context, page *dashboard.Page) {
	timeout := rt.cfg.Dashboard.SettleTimeout
	if timeout <= 0 {
		return
	}
	settleCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := page.Wait(settleCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		rt.logger.Debug("page settle interrupted", zap.Error(err))
	}
}

func (rt *Runtime) janitorInterval() time.Duration {
	interval := rt.cfg.Dashboard.PageIdleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}
	return interval
}
