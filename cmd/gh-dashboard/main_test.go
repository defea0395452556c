package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/cam3ron2/gh-dashboard/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLogLevel(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		input string
		want  zapcore.Level
	}{
		{name: "debug", input: "debug", want: zapcore.DebugLevel},
		{name: "warn_upper", input: "WARN", want: zapcore.WarnLevel},
		{name: "error", input: "error", want: zapcore.ErrorLevel},
		{name: "default_info", input: "other", want: zapcore.InfoLevel},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := logLevel(tc.input)
			if got != tc.want {
				t.Fatalf("logLevel(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestShouldIgnoreLoggerSyncError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil_error", err: nil, want: false},
		{name: "einval_direct", err: syscall.EINVAL, want: true},
		{name: "enotty_direct", err: syscall.ENOTTY, want: true},
		{name: "wrapped_einval", err: fmt.Errorf("wrapped: %w", syscall.EINVAL), want: true},
		{name: "other_error", err: errors.New("boom"), want: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := shouldIgnoreLoggerSyncError(tc.err)
			if got != tc.want {
				t.Fatalf("shouldIgnoreLoggerSyncError(%v) = %t, want %t", tc.err, got, tc.want)
			}
		})
	}
}

func TestBuildDependencies(t *testing.T) {
	t.Parallel()

	baseConfig := func() *config.Config {
		cfg, err := config.LoadWithEnv(strings.NewReader("backend:\n  base_url: http://127.0.0.1:1\n"), func(string) (string, bool) {
			return "", false
		})
		if err != nil {
			t.Fatalf("LoadWithEnv() unexpected error: %v", err)
		}
		cfg.Backend.RequestTimeout = 200 * time.Millisecond
		cfg.Retry.MaxAttempts = 1
		return cfg
	}

	testCases := []struct {
		name         string
		mutate       func(cfg *config.Config)
		wantErr      string
		wantProfiles bool
	}{
		{
			name:         "github_disabled",
			mutate:       func(*config.Config) {},
			wantProfiles: false,
		},
		{
			name: "github_token",
			mutate: func(cfg *config.Config) {
				cfg.GitHub.Enabled = true
				cfg.GitHub.Token = "ghp_test"
			},
			wantProfiles: true,
		},
		{
			name: "github_app_key_missing",
			mutate: func(cfg *config.Config) {
				cfg.GitHub.Enabled = true
				cfg.GitHub.AppID = 1
				cfg.GitHub.InstallationID = 2
				cfg.GitHub.PrivateKeyPath = "/nonexistent/key.pem"
			},
			wantErr: "build github client",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := baseConfig()
			tc.mutate(cfg)
			deps, err := buildDependencies(context.Background(), cfg, zap.NewNop())
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("buildDependencies() error = %v, want %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("buildDependencies() unexpected error: %v", err)
			}
			t.Cleanup(func() {
				_ = deps.Cache.Cache.Close()
			})
			if deps.Stats == nil || deps.Auth == nil || deps.BackendCheck == nil {
				t.Fatalf("buildDependencies() left required dependencies unset: %+v", deps)
			}
			if !strings.HasSuffix(deps.Auth.LoginURL(), "/api/auth/login") {
				t.Fatalf("Auth.LoginURL() = %q, want the backend login route", deps.Auth.LoginURL())
			}
			if got := deps.Profiles != nil; got != tc.wantProfiles {
				t.Fatalf("profiles configured = %t, want %t", got, tc.wantProfiles)
			}
			if got := deps.GitHubCheck != nil; got != tc.wantProfiles {
				t.Fatalf("github check configured = %t, want %t", got, tc.wantProfiles)
			}
		})
	}
}
