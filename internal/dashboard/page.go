// Package dashboard composes the widgets of one dashboard page. A Page fans a selector out
// to every widget's projection and renders the widget states into normalized view models.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cam3ron2/gh-dashboard/internal/githubapi"
	"github.com/cam3ron2/gh-dashboard/internal/normalize"
	"github.com/cam3ron2/gh-dashboard/internal/region"
	"github.com/cam3ron2/gh-dashboard/internal/selector"
	"github.com/cam3ron2/gh-dashboard/internal/statsapi"
	"github.com/cam3ron2/gh-dashboard/internal/widget"
	"go.uber.org/zap"
)

// Widget names, used in routes, logs and metrics.
const (
	WidgetContributions = "contributions"
	WidgetCodeFrequency = "code_frequency"
	WidgetFunStats      = "fun_stats"
	WidgetTopRepos      = "top_repos"
	WidgetProfile       = "profile"
	WidgetRank          = "rank"
	WidgetRankings      = "rankings"
)

const defaultTopRepos = 10

// StatsSource is the stats backend as seen by a page.
type StatsSource interface {
	region.Source
	Contributions(ctx context.Context, login string, year int) (statsapi.Contributions, error)
	CodeFrequency(ctx context.Context, login, visibility string) (statsapi.CodeFrequency, error)
	FunStats(ctx context.Context, login, visibility string) (statsapi.FunStats, error)
	RepoCommits(ctx context.Context, login, visibility string) (statsapi.RepoCommits, error)
	UserRanking(ctx context.Context, login string) (statsapi.UserRanking, error)
}

// ProfileSource reads GitHub profiles.
type ProfileSource interface {
	Profile(ctx context.Context, login string) (githubapi.Profile, error)
}

// VisibilityPolicy is the viewer of a page: it decides which visibility a subject may be read
// with and carries the viewer's backend credentials into every stats fetch.
type VisibilityPolicy interface {
	VisibilityFor(subject string, requested selector.Visibility) selector.Visibility
	Owns(subject string) bool
	Authorize(ctx context.Context) context.Context
}

// Options configures a Page.
type Options struct {
	// FetchTimeout bounds each widget fetch.
	FetchTimeout time.Duration
	GlobalLimit  int
	WindowWeeks  int
	MinPercent   float64
	TopRepos     int
	Logger       *zap.Logger
}

// Page owns one instance of every widget. Widgets never share state, so one widget failing
// leaves the others untouched.
type Page struct {
	stats    StatsSource
	profiles ProfileSource
	policy   VisibilityPolicy
	opts     Options
	logger   *zap.Logger

	contributions *widget.Machine[selector.ContributionsKey, statsapi.Contributions]
	frequency     *widget.Machine[selector.ActivityKey, statsapi.CodeFrequency]
	funStats      *widget.Machine[selector.ActivityKey, statsapi.FunStats]
	repos         *widget.Machine[selector.ActivityKey, statsapi.RepoCommits]
	profile       *widget.Machine[selector.ProfileKey, githubapi.Profile]
	rank          *widget.Machine[selector.ProfileKey, statsapi.UserRanking]
	rankings      *region.Selector

	mu        sync.RWMutex
	applied   bool
	current   selector.Selector
	requested selector.Visibility
}

// NewPage creates a page with idle widgets. profiles may be nil, in which case the profile
// widget stays idle.
func NewPage(stats StatsSource, profiles ProfileSource, policy VisibilityPolicy, opts Options) (*Page, error) {
	if stats == nil {
		return nil, fmt.Errorf("stats source is required")
	}
	if policy == nil {
		return nil, fmt.Errorf("visibility policy is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.WindowWeeks <= 0 {
		opts.WindowWeeks = normalize.DefaultWindowWeeks
	}
	if opts.MinPercent <= 0 {
		opts.MinPercent = normalize.DefaultMinPercent
	}
	if opts.TopRepos <= 0 {
		opts.TopRepos = defaultTopRepos
	}

	p := &Page{
		stats:    stats,
		profiles: profiles,
		policy:   policy,
		opts:     opts,
		logger:   opts.Logger,
	}

	p.contributions = widget.NewMachine[selector.ContributionsKey, statsapi.Contributions](p.fetchContributions, p.widgetOptions(WidgetContributions))
	p.frequency = widget.NewMachine[selector.ActivityKey, statsapi.CodeFrequency](p.fetchCodeFrequency, p.widgetOptions(WidgetCodeFrequency))
	p.funStats = widget.NewMachine[selector.ActivityKey, statsapi.FunStats](p.fetchFunStats, p.widgetOptions(WidgetFunStats))
	p.repos = widget.NewMachine[selector.ActivityKey, statsapi.RepoCommits](p.fetchRepoCommits, p.widgetOptions(WidgetTopRepos))
	p.rank = widget.NewMachine[selector.ProfileKey, statsapi.UserRanking](p.fetchRank, p.widgetOptions(WidgetRank))
	if profiles != nil {
		profileOpts := p.widgetOptions(WidgetProfile)
		profileOpts.Classify = widget.DefaultClassify
		p.profile = widget.NewMachine[selector.ProfileKey, githubapi.Profile](p.fetchProfile, profileOpts)
	}
	p.rankings = region.New(stats, region.Options{
		GlobalLimit: opts.GlobalLimit,
		Timeout:     opts.FetchTimeout,
		Logger:      opts.Logger,
	})
	return p, nil
}

// Apply requests sel on every widget. Visibility is re-derived from the policy, so private
// data is only requested for the signed-in owner. Widgets whose projection did not change
// keep their state without a new fetch. It returns the selector actually applied.
func (p *Page) Apply(sel selector.Selector) (selector.Selector, error) {
	if err := sel.Validate(); err != nil {
		return selector.Selector{}, fmt.Errorf("apply selector: %w", err)
	}

	requested := sel.Visibility
	effective := sel.WithVisibility(p.policy.VisibilityFor(sel.Subject, requested))

	p.mu.Lock()
	p.applied = true
	p.current = effective
	p.requested = requested
	p.mu.Unlock()

	issued := make([]string, 0, 7)
	if p.contributions.SetSelector(effective.Contributions()) {
		issued = append(issued, WidgetContributions)
	}
	activity := effective.Activity()
	if p.frequency.SetSelector(activity) {
		issued = append(issued, WidgetCodeFrequency)
	}
	if p.funStats.SetSelector(activity) {
		issued = append(issued, WidgetFunStats)
	}
	if p.repos.SetSelector(activity) {
		issued = append(issued, WidgetTopRepos)
	}
	if p.profile != nil && p.profile.SetSelector(effective.Profile()) {
		issued = append(issued, WidgetProfile)
	}
	if p.rank.SetSelector(effective.Profile()) {
		issued = append(issued, WidgetRank)
	}

	p.logger.Debug("dashboard selector applied",
		zap.String("subject", effective.Subject),
		zap.String("visibility", string(effective.Visibility)),
		zap.String("requested_visibility", string(requested)),
		zap.Int("year", effective.Year),
		zap.Strings("issued", issued),
	)
	return effective, nil
}

// Reapply re-derives visibility for the last requested selector, typically after login or
// logout. It is a no-op before the first Apply.
func (p *Page) Reapply() (selector.Selector, error) {
	p.mu.RLock()
	applied, current, requested := p.applied, p.current, p.requested
	p.mu.RUnlock()
	if !applied {
		return selector.Selector{}, nil
	}
	return p.Apply(current.WithVisibility(requested))
}

// Selector returns the last applied selector and whether one was applied.
func (p *Page) Selector() (selector.Selector, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.applied
}

// Rankings returns the page's region picker.
func (p *Page) Rankings() *region.Selector {
	return p.rankings
}

// StartRankings loads the country list once and issues the first ranking fetch.
func (p *Page) StartRankings(ctx context.Context) {
	p.rankings.LoadCandidates(ctx)
	p.rankings.Start()
}

// Retry re-issues the latest fetch of one widget.
func (p *Page) Retry(name string) (bool, error) {
	switch name {
	case WidgetContributions:
		return p.contributions.Retry(), nil
	case WidgetCodeFrequency:
		return p.frequency.Retry(), nil
	case WidgetFunStats:
		return p.funStats.Retry(), nil
	case WidgetTopRepos:
		return p.repos.Retry(), nil
	case WidgetProfile:
		if p.profile == nil {
			return false, nil
		}
		return p.profile.Retry(), nil
	case WidgetRank:
		return p.rank.Retry(), nil
	case WidgetRankings:
		return p.rankings.Retry(), nil
	}
	return false, fmt.Errorf("unknown widget %q", name)
}

// Wait blocks until every issued fetch on the page has resolved or ctx is done.
func (p *Page) Wait(ctx context.Context) error {
	waiters := []func(context.Context) error{
		p.contributions.Wait,
		p.frequency.Wait,
		p.funStats.Wait,
		p.repos.Wait,
		p.rank.Wait,
		p.rankings.Wait,
	}
	if p.profile != nil {
		waiters = append(waiters, p.profile.Wait)
	}
	for _, wait := range waiters {
		if err := wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Page) widgetOptions(name string) widget.Options {
	return widget.Options{
		Name:     name,
		Timeout:  p.opts.FetchTimeout,
		Classify: statsapi.Classify,
		Describe: widget.DescribeAs(strings.ReplaceAll(name, "_", " ")),
		Logger:   p.logger,
	}
}

func (p *Page) fetchContributions(ctx context.Context, key selector.ContributionsKey) (statsapi.Contributions, error) {
	return p.stats.Contributions(p.policy.Authorize(ctx), key.Subject, key.Year)
}

func (p *Page) fetchCodeFrequency(ctx context.Context, key selector.ActivityKey) (statsapi.CodeFrequency, error) {
	return p.stats.CodeFrequency(p.policy.Authorize(ctx), key.Subject, string(key.Visibility))
}

func (p *Page) fetchFunStats(ctx context.Context, key selector.ActivityKey) (statsapi.FunStats, error) {
	return p.stats.FunStats(p.policy.Authorize(ctx), key.Subject, string(key.Visibility))
}

func (p *Page) fetchRepoCommits(ctx context.Context, key selector.ActivityKey) (statsapi.RepoCommits, error) {
	return p.stats.RepoCommits(p.policy.Authorize(ctx), key.Subject, string(key.Visibility))
}

func (p *Page) fetchRank(ctx context.Context, key selector.ProfileKey) (statsapi.UserRanking, error) {
	return p.stats.UserRanking(ctx, key.Subject)
}

func (p *Page) fetchProfile(ctx context.Context, key selector.ProfileKey) (githubapi.Profile, error) {
	return p.profiles.Profile(ctx, key.Subject)
}
