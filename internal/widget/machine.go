package widget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cam3ron2/gh-dashboard/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Fetcher loads the payload for one selector.
type Fetcher[K comparable, T any] func(ctx context.Context, key K) (T, error)

// Options configures a Machine.
type Options struct {
	// Name identifies the widget in logs, spans and metrics.
	Name string
	// Timeout bounds each fetch. Zero leaves the deadline to the fetcher.
	Timeout time.Duration
	// Classify maps fetch errors to kinds. Defaults to DefaultClassify.
	Classify Classifier
	// Describe maps fetch errors to the message shown in the error phase.
	// Defaults to DescribeAs(Name).
	Describe Describer
	Logger   *zap.Logger
}

// Machine owns one widget's fetch lifecycle for one data kind.
//
// Fetches run on their own goroutines and are never cancelled when superseded; the epoch
// guard alone decides whether a resolved fetch may touch the view state.
type Machine[K comparable, T any] struct {
	name     string
	fetch    Fetcher[K, T]
	timeout  time.Duration
	classify Classifier
	describe Describer
	logger   *zap.Logger

	guard    Guard
	inflight sync.WaitGroup

	mu        sync.Mutex
	requested bool
	state     State[K, T]
	stats     Stats
	observers []func(State[K, T])
}

// NewMachine creates an idle machine.
func NewMachine[K comparable, T any](fetch Fetcher[K, T], opts Options) *Machine[K, T] {
	classify := opts.Classify
	if classify == nil {
		classify = DefaultClassify
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	name := opts.Name
	if name == "" {
		name = "widget"
	}
	describe := opts.Describe
	if describe == nil {
		describe = DescribeAs(name)
	}
	return &Machine[K, T]{
		name:     name,
		fetch:    fetch,
		timeout:  opts.Timeout,
		classify: classify,
		describe: describe,
		logger:   logger.With(zap.String("widget", name)),
		state:    State[K, T]{Phase: PhaseIdle},
	}
}

// Name returns the widget name.
func (m *Machine[K, T]) Name() string {
	return m.name
}

// SetSelector requests the view for next. The first call always issues a fetch; later calls
// are no-ops when next equals the latest requested selector, unless that fetch failed, in
// which case the same selector is fetched again. It reports whether a fetch was issued.
func (m *Machine[K, T]) SetSelector(next K) bool {
	m.mu.Lock()
	if m.requested && m.state.Selector == next && m.state.Phase != PhaseError {
		m.mu.Unlock()
		return false
	}
	snapshot, epoch := m.beginLocked(next)
	m.mu.Unlock()

	m.notify(snapshot)
	go m.run(epoch, next)
	return true
}

// Retry re-issues the latest requested selector. It returns false before the first selector.
func (m *Machine[K, T]) Retry() bool {
	m.mu.Lock()
	if !m.requested {
		m.mu.Unlock()
		return false
	}
	key := m.state.Selector
	snapshot, epoch := m.beginLocked(key)
	m.mu.Unlock()

	m.notify(snapshot)
	go m.run(epoch, key)
	return true
}

// State returns a snapshot of the current view state.
func (m *Machine[K, T]) State() State[K, T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns activity counters.
func (m *Machine[K, T]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Epoch returns the latest issued epoch.
func (m *Machine[K, T]) Epoch() uint64 {
	return m.guard.Epoch()
}

// Subscribe registers fn to receive every state the machine transitions to.
// Callbacks run on the goroutine that caused the transition and must not block.
func (m *Machine[K, T]) Subscribe(fn func(State[K, T])) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// Wait blocks until every issued fetch, stale ones included, has resolved.
func (m *Machine[K, T]) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine[K, T]) beginLocked(next K) (State[K, T], uint64) {
	epoch := m.guard.Begin()
	m.requested = true
	m.stats.Issued++
	m.state = State[K, T]{
		Phase:    PhaseLoading,
		Selector: next,
		Epoch:    epoch,
	}
	m.inflight.Add(1)
	m.logger.Debug("widget fetch issued", zap.Uint64("epoch", epoch), zap.Any("selector", next))
	return m.state, epoch
}

func (m *Machine[K, T]) run(epoch uint64, key K) {
	defer m.inflight.Done()

	ctx, span := telemetry.StartSpan(
		context.Background(),
		"gh-dashboard/internal/widget",
		"widget.fetch",
		attribute.String("widget.name", m.name),
		attribute.Int64("widget.epoch", int64(epoch)),
	)
	defer span.End()

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	data, err := m.invoke(ctx, key)

	m.mu.Lock()
	if !m.guard.Current(epoch) {
		m.stats.Stale++
		m.mu.Unlock()
		span.SetAttributes(attribute.Bool("widget.stale", true))
		m.logger.Debug("widget stale response discarded",
			zap.Uint64("epoch", epoch),
			zap.Uint64("current_epoch", m.guard.Epoch()),
			zap.Bool("failed", err != nil),
		)
		return
	}

	if err != nil {
		kind := m.classify(err)
		m.stats.Failed++
		m.state = State[K, T]{
			Phase:    PhaseError,
			Selector: key,
			Message:  m.describe(err),
			Kind:     kind,
			Epoch:    epoch,
		}
		snapshot := m.state
		m.mu.Unlock()

		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		m.logger.Warn("widget fetch failed",
			zap.Uint64("epoch", epoch),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		m.notify(snapshot)
		return
	}

	m.stats.Applied++
	m.state = State[K, T]{
		Phase:    PhaseLoaded,
		Selector: key,
		Data:     data,
		Epoch:    epoch,
	}
	snapshot := m.state
	m.mu.Unlock()

	span.SetStatus(codes.Ok, "applied")
	m.logger.Debug("widget fetch applied", zap.Uint64("epoch", epoch))
	m.notify(snapshot)
}

func (m *Machine[K, T]) invoke(ctx context.Context, key K) (data T, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("widget %s fetch panicked: %v", m.name, recovered)
		}
	}()
	if m.fetch == nil {
		return data, fmt.Errorf("widget %s has no fetcher", m.name)
	}
	return m.fetch(ctx, key)
}

func (m *Machine[K, T]) notify(state State[K, T]) {
	m.mu.Lock()
	observers := make([]func(State[K, T]), len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}
