package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Mode indicates high-level health mode.
type Mode string

const (
	// ModeHealthy indicates all dependencies are healthy.
	ModeHealthy Mode = "healthy"
	// ModeDegraded indicates the dashboard serves pages but an upstream is failing, so widgets
	// will show errors.
	ModeDegraded Mode = "degraded"
	// ModeUnhealthy indicates a required dependency is unhealthy.
	ModeUnhealthy Mode = "unhealthy"
)

// Input represents dependency states used for health evaluation.
type Input struct {
	// CacheBackend names the response cache in use ("memory" or "redis").
	CacheBackend   string
	CacheHealthy   bool
	PagesHealthy   bool
	BackendHealthy bool
	GitHubEnabled  bool
	GitHubHealthy  bool
}

// Status represents evaluated application health.
type Status struct {
	Mode         Mode            `json:"mode"`
	Ready        bool            `json:"ready"`
	CacheBackend string          `json:"cache_backend,omitempty"`
	Components   map[string]bool `json:"components"`
}

// Provider supplies current health status.
type Provider interface {
	CurrentStatus(ctx context.Context) Status
}

// StatusEvaluator evaluates health and readiness.
type StatusEvaluator struct{}

// NewStatusEvaluator creates a health evaluator.
func NewStatusEvaluator() *StatusEvaluator {
	return &StatusEvaluator{}
}

// Evaluate evaluates readiness and mode from dependency state. Upstream failures only
// degrade: every widget surfaces its own error and the dashboard stays usable.
func (e *StatusEvaluator) Evaluate(input Input) Status {
	components := map[string]bool{
		"cache":         input.CacheHealthy,
		"page_registry": input.PagesHealthy,
		"stats_backend": input.BackendHealthy,
	}
	if input.GitHubEnabled {
		components["github"] = input.GitHubHealthy
	}

	ready := input.CacheHealthy && input.PagesHealthy

	mode := ModeHealthy
	switch {
	case !ready:
		mode = ModeUnhealthy
	case !input.BackendHealthy:
		mode = ModeDegraded
	case input.GitHubEnabled && !input.GitHubHealthy:
		mode = ModeDegraded
	}

	return Status{
		Mode:         mode,
		Ready:        ready,
		CacheBackend: input.CacheBackend,
		Components:   components,
	}
}

// Check tests one dependency.
type Check func(ctx context.Context) error

// MonitorConfig configures a Monitor. Nil checks count as healthy, except GitHub which is
// left out of the status entirely.
type MonitorConfig struct {
	CacheBackend string
	Cache        Check
	Pages        Check
	Backend      Check
	GitHub       Check
	// Timeout bounds each check.
	Timeout time.Duration
	// TTL reuses the last status for repeated requests.
	TTL time.Duration
	Now func() time.Time
}

// Monitor runs dependency checks on demand and caches the evaluated status briefly so
// frequent kubelet polling does not hammer upstreams.
type Monitor struct {
	cfg       MonitorConfig
	evaluator *StatusEvaluator

	mu        sync.Mutex
	last      Status
	checkedAt time.Time
	checked   bool
}

// NewMonitor creates a monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Monitor{cfg: cfg, evaluator: NewStatusEvaluator()}
}

// CurrentStatus implements Provider.
func (m *Monitor) CurrentStatus(ctx context.Context) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.cfg.Now()
	if m.checked && m.cfg.TTL > 0 && now.Sub(m.checkedAt) < m.cfg.TTL {
		return m.last
	}

	input := Input{
		CacheBackend:   m.cfg.CacheBackend,
		CacheHealthy:   m.run(ctx, m.cfg.Cache),
		PagesHealthy:   m.run(ctx, m.cfg.Pages),
		BackendHealthy: m.run(ctx, m.cfg.Backend),
		GitHubEnabled:  m.cfg.GitHub != nil,
	}
	if input.GitHubEnabled {
		input.GitHubHealthy = m.run(ctx, m.cfg.GitHub)
	}

	m.last = m.evaluator.Evaluate(input)
	m.checkedAt = now
	m.checked = true
	return m.last
}

func (m *Monitor) run(ctx context.Context, check Check) bool {
	if check == nil {
		return true
	}
	checkCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	return check(checkCtx) == nil
}

// NewHandler returns the health HTTP handler with /livez, /readyz, and /healthz endpoints.
func NewHandler(provider Provider) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			return
		}
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		status := provider.CurrentStatus(r.Context())
		if status.Ready {
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("ready")); err != nil {
				return
			}
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("not ready")); err != nil {
			return
		}
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := provider.CurrentStatus(r.Context())
		payload, err := json.Marshal(status)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			if _, writeErr := w.Write([]byte(`{"mode":"unhealthy","error":"marshal health status"}`)); writeErr != nil {
				return
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		//nolint:gosec // Health payload is server-generated JSON status.
		if _, err := w.Write(payload); err != nil {
			return
		}
	})

	return mux
}
