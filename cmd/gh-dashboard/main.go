package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cam3ron2/gh-dashboard/internal/app"
	"github.com/cam3ron2/gh-dashboard/internal/config"
	"github.com/cam3ron2/gh-dashboard/internal/githubapi"
	"github.com/cam3ron2/gh-dashboard/internal/statsapi"
	"github.com/cam3ron2/gh-dashboard/internal/telemetry"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "gh-dashboard: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "config/local.yaml", "path to YAML config file")
	flag.Parse()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	configFile, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = configFile.Close()
	}()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(cfg.Server.LogLevel))
	logger, err := loggerConfig.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil && !shouldIgnoreLoggerSyncError(syncErr) {
			_, _ = fmt.Fprintf(os.Stderr, "gh-dashboard: sync logger: %v\n", syncErr)
		}
	}()

	telemetryRuntime, err := telemetry.Setup(telemetry.Config{
		Enabled:     cfg.Telemetry.OTELEnabled,
		ServiceName: telemetry.DefaultServiceName,
		Mode:        cfg.Telemetry.OTELTraceMode,
		SampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetryRuntime.Shutdown(shutdownCtx)
	}()

	rootCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps, err := buildDependencies(rootCtx, cfg, logger)
	if err != nil {
		return err
	}

	runtime, err := app.NewRuntime(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	defer func() {
		if closeErr := runtime.Close(); closeErr != nil {
			logger.Warn("runtime close failed", zap.Error(closeErr))
		}
	}()
	go runtime.Run(rootCtx)

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           runtime.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.ListenAddr))
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			serverErrCh <- serveErr
		}
		close(serverErrCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-serverErrCh:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// buildDependencies wires the stats backend client, its response cache and the optional GitHub
// profile client. The data client also serves as the auth backend; every browser gets its own
// session on top of it.
func buildDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (app.Dependencies, error) {
	requestClient := statsapi.NewClient(
		&http.Client{Timeout: cfg.Backend.RequestTimeout},
		statsapi.RetryConfig{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
		},
		statsapi.RateLimitPolicy{
			MinRemaining:    cfg.RateLimit.MinRemainingThreshold,
			ThrottleBackoff: cfg.RateLimit.SecondaryLimitBackoff,
			MaxWait:         cfg.RateLimit.MaxWait,
		},
	)
	data, err := statsapi.NewDataClient(cfg.Backend.BaseURL, requestClient, logger)
	if err != nil {
		return app.Dependencies{}, fmt.Errorf("build stats client: %w", err)
	}

	cache := app.NewCacheBackend(cfg.Cache, logger)
	logger.Info("response cache ready", zap.String("backend", cache.Name))
	stats := statsapi.NewCachedClient(data, cache.Cache, statsapi.CacheTTLs{
		Rankings:  cfg.Cache.RankingsTTL,
		Countries: cfg.Cache.CountriesTTL,
		Stats:     cfg.Cache.StatsTTL,
	}, logger)

	deps := app.Dependencies{
		Stats: stats,
		Auth:  data,
		Cache: cache,
		BackendCheck: func(ctx context.Context) error {
			_, err := data.AvailableCountries(ctx)
			return err
		},
	}

	if !cfg.GitHub.Enabled {
		return deps, nil
	}
	rest, err := githubapi.NewAuthenticatedRESTClient(githubapi.AuthConfig{
		Token: cfg.GitHub.Token,
		Installation: githubapi.InstallationAuthConfig{
			AppID:          cfg.GitHub.AppID,
			InstallationID: cfg.GitHub.InstallationID,
			PrivateKeyPath: cfg.GitHub.PrivateKeyPath,
			Timeout:        cfg.GitHub.RequestTimeout,
		},
		Timeout: cfg.GitHub.RequestTimeout,
	}, cfg.GitHub.APIBaseURL)
	if err != nil {
		_ = cache.Cache.Close()
		return app.Dependencies{}, fmt.Errorf("build github client: %w", err)
	}
	profiles, err := githubapi.NewProfileClient(rest, logger)
	if err != nil {
		_ = cache.Cache.Close()
		return app.Dependencies{}, fmt.Errorf("build profile client: %w", err)
	}
	logger.Info("github profile client ready", zap.String("auth", string(rest.Mode)))
	deps.Profiles = profiles
	deps.GitHubCheck = profiles.Ping
	return deps, nil
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// shouldIgnoreLoggerSyncError reports whether err is the harmless failure of syncing a
// terminal or pipe.
func shouldIgnoreLoggerSyncError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}
