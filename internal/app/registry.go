package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cam3ron2/gh-dashboard/internal/auth"
	"github.com/cam3ron2/gh-dashboard/internal/dashboard"
	"github.com/cam3ron2/gh-dashboard/internal/widget"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrRegistryClosed is returned once the registry has been closed.
var ErrRegistryClosed = errors.New("page registry is closed")

// PageFactory builds a fresh dashboard page viewed through session.
type PageFactory func(session *auth.Session) (*dashboard.Page, error)

// RegistryConfig configures a PageRegistry.
type RegistryConfig struct {
	IdleTimeout time.Duration
	// MaxPages bounds live pages. Creating one more evicts the least recently used page.
	MaxPages int
	Now      func() time.Time
	NewID    func() string
	// NewSession creates the login session of each new page. Nil hands the factory a nil
	// session.
	NewSession func() *auth.Session
}

type pageEntry struct {
	id       string
	page     *dashboard.Page
	session  *auth.Session
	lastSeen time.Time
}

// PageRegistry holds the live dashboard pages keyed by id. Every page belongs to one browser
// and carries that browser's login session.
type PageRegistry struct {
	factory PageFactory
	cfg     RegistryConfig
	logger  *zap.Logger

	mu      sync.Mutex
	pages   map[string]*pageEntry
	retired map[string]widget.Stats
	closed  bool
}

// NewPageRegistry creates a registry.
func NewPageRegistry(factory PageFactory, cfg RegistryConfig, logger ...*zap.Logger) *PageRegistry {
	resolvedLogger := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		resolvedLogger = logger[0]
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1000
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &PageRegistry{
		factory: factory,
		cfg:     cfg,
		logger:  resolvedLogger,
		pages:   make(map[string]*pageEntry),
		retired: make(map[string]widget.Stats),
	}
}

// Create registers a new page with a fresh anonymous session and returns its id.
func (r *PageRegistry) Create() (string, *dashboard.Page, error) {
	var session *auth.Session
	if r.cfg.NewSession != nil {
		session = r.cfg.NewSession()
	}
	page, err := r.factory(session)
	if err != nil {
		return "", nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", nil, ErrRegistryClosed
	}

	for len(r.pages) >= r.cfg.MaxPages {
		r.evictOldestLocked()
	}
	id := r.cfg.NewID()
	r.pages[id] = &pageEntry{id: id, page: page, session: session, lastSeen: r.cfg.Now()}
	r.logger.Debug("dashboard page created", zap.String("page_id", id), zap.Int("pages", len(r.pages)))
	return id, page, nil
}

// Get returns the page registered under id and marks it as used.
func (r *PageRegistry) Get(id string) (*dashboard.Page, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.pages[id]
	if !ok {
		return nil, false
	}
	entry.lastSeen = r.cfg.Now()
	return entry.page, true
}

// Session returns the login session of the page registered under id.
func (r *PageRegistry) Session(id string) (*auth.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.pages[id]
	if !ok || entry.session == nil {
		return nil, false
	}
	return entry.session, true
}

// GetOrCreate returns the page under id, creating a new one when id is unknown. The
// returned id differs from the argument when a page was created.
func (r *PageRegistry) GetOrCreate(id string) (string, *dashboard.Page, error) {
	if id != "" {
		if page, ok := r.Get(id); ok {
			return id, page, nil
		}
	}
	return r.Create()
}

// Remove drops the page under id.
func (r *PageRegistry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.pages[id]
	if !ok {
		return false
	}
	r.retireLocked(entry)
	return true
}

// Expire drops pages idle for longer than the idle timeout and returns how many it removed.
func (r *PageRegistry) Expire(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, entry := range r.pages {
		if now.Sub(entry.lastSeen) < r.cfg.IdleTimeout {
			continue
		}
		r.retireLocked(entry)
		removed++
	}
	if removed > 0 {
		r.logger.Debug("idle dashboard pages expired", zap.Int("expired", removed), zap.Int("pages", len(r.pages)))
	}
	return removed
}

// Len returns the number of live pages.
func (r *PageRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pages)
}

// Each calls fn for every live page. fn runs without the registry lock held.
func (r *PageRegistry) Each(fn func(*dashboard.Page)) {
	for _, page := range r.livePages() {
		fn(page)
	}
}

// PageSnapshots returns widget snapshots of every live page.
func (r *PageRegistry) PageSnapshots() [][]dashboard.WidgetSnapshot {
	pages := r.livePages()
	snapshots := make([][]dashboard.WidgetSnapshot, 0, len(pages))
	for _, page := range pages {
		snapshots = append(snapshots, page.Snapshot())
	}
	return snapshots
}

// RetiredStats returns the accumulated fetch counters of removed pages per widget.
func (r *PageRegistry) RetiredStats() map[string]widget.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]widget.Stats, len(r.retired))
	for name, stats := range r.retired {
		out[name] = stats
	}
	return out
}

// Check reports registry health for the readiness endpoint.
func (r *PageRegistry) Check(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	return nil
}

// Close drops every page and rejects new ones.
func (r *PageRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.pages {
		r.retireLocked(entry)
	}
	r.closed = true
}

func (r *PageRegistry) livePages() []*dashboard.Page {
	r.mu.Lock()
	defer r.mu.Unlock()
	pages := make([]*dashboard.Page, 0, len(r.pages))
	for _, entry := range r.pages {
		pages = append(pages, entry.page)
	}
	return pages
}

func (r *PageRegistry) evictOldestLocked() {
	var oldest *pageEntry
	for _, entry := range r.pages {
		if oldest == nil || entry.lastSeen.Before(oldest.lastSeen) {
			oldest = entry
		}
	}
	if oldest == nil {
		return
	}
	r.retireLocked(oldest)
	r.logger.Debug("dashboard page evicted", zap.String("page_id", oldest.id))
}

func (r *PageRegistry) retireLocked(entry *pageEntry) {
	delete(r.pages, entry.id)
	for _, snapshot := range entry.page.Snapshot() {
		current := r.retired[snapshot.Widget]
		r.retired[snapshot.Widget] = widget.Stats{
			Issued:  current.Issued + snapshot.Stats.Issued,
			Applied: current.Applied + snapshot.Stats.Applied,
			Stale:   current.Stale + snapshot.Stats.Stale,
			Failed:  current.Failed + snapshot.Stats.Failed,
		}
	}
}
