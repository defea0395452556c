package app

import (
	"context"
	"testing"
	"time"

	"github.com/cam3ron2/gh-dashboard/internal/config"
	"github.com/cam3ron2/gh-dashboard/internal/store"
	"go.uber.org/zap"
)

func TestNewCacheBackendFallbacks(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		cfg  config.CacheConfig
	}{
		{
			name: "memory_backend",
			cfg:  config.CacheConfig{Backend: "memory", MaxEntries: 10},
		},
		{
			name: "unreachable_redis_falls_back",
			cfg: config.CacheConfig{
				Backend:   "redis",
				RedisMode: "standalone",
				RedisAddr: "127.0.0.1:1",
				Namespace: "gh-dashboard-test",
			},
		},
		{
			name: "empty_backend_defaults_to_memory",
			cfg:  config.CacheConfig{},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			backend := NewCacheBackend(tc.cfg, zap.NewNop())
			t.Cleanup(func() {
				_ = backend.Cache.Close()
			})
			if backend.Name != cacheBackendMemory {
				t.Fatalf("backend name = %q, want %q", backend.Name, cacheBackendMemory)
			}
			if _, ok := backend.Cache.(*store.MemoryCache); !ok {
				t.Fatalf("cache type = %T, want *store.MemoryCache", backend.Cache)
			}
			if err := backend.Cache.Ping(context.Background()); err != nil {
				t.Fatalf("Ping() unexpected error: %v", err)
			}
		})
	}
}

func TestCacheBackendGC(t *testing.T) {
	t.Parallel()

	backend := NewCacheBackend(config.CacheConfig{Backend: "memory"}, nil)
	memory := backend.Cache.(*store.MemoryCache)
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	memory.Now = func() time.Time { return start }

	ctx := context.Background()
	if err := memory.Set(ctx, "short", []byte("1"), time.Minute); err != nil {
		t.Fatalf("Set() unexpected error: %v", err)
	}
	if err := memory.Set(ctx, "long", []byte("2"), time.Hour); err != nil {
		t.Fatalf("Set() unexpected error: %v", err)
	}

	backend.GC(ctx, start.Add(2*time.Minute))
	if got := memory.Stats().Entries; got != 1 {
		t.Fatalf("entries after GC = %d, want 1", got)
	}

	var nilBackend *CacheBackend
	nilBackend.GC(ctx, start)
}

func TestRunJanitorCycleExpiresIdlePages(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t, false)
	if _, _, err := rt.Registry().Create(); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}

	rt.Now = time.Now
	rt.RunJanitorCycle(context.Background())
	if got := rt.Registry().Len(); got != 1 {
		t.Fatalf("Len() after fresh cycle = %d, want 1", got)
	}

	rt.Now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	rt.RunJanitorCycle(context.Background())
	if got := rt.Registry().Len(); got != 0 {
		t.Fatalf("Len() after idle cycle = %d, want 0", got)
	}
}

func TestRuntimeRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	rt := newTestRuntime(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rt.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run() did not return after cancel")
	}
}

func TestNewRuntimeValidation(t *testing.T) {
	t.Parallel()

	stats := newFakeStats()
	testCases := []struct {
		name string
		cfg  *config.Config
		deps Dependencies
	}{
		{name: "nil_config", cfg: nil, deps: Dependencies{Stats: stats}},
		{name: "missing_stats", cfg: testConfig(), deps: Dependencies{}},
		{name: "missing_auth", cfg: testConfig(), deps: Dependencies{Stats: stats}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewRuntime(tc.cfg, tc.deps); err == nil {
				t.Fatalf("NewRuntime() expected error")
			}
		})
	}
}
