package dashboard

import (
	"github.com/cam3ron2/gh-dashboard/internal/githubapi"
	"github.com/cam3ron2/gh-dashboard/internal/normalize"
	"github.com/cam3ron2/gh-dashboard/internal/region"
	"github.com/cam3ron2/gh-dashboard/internal/selector"
	"github.com/cam3ron2/gh-dashboard/internal/statsapi"
	"github.com/cam3ron2/gh-dashboard/internal/widget"
)

// WidgetView is one widget's render state. Data is only meaningful when Phase is loaded.
type WidgetView[T any] struct {
	Name      string
	Phase     widget.Phase
	Data      T
	Message   string
	NotFound  bool
	Retryable bool
	Epoch     uint64
}

// Loading reports whether a fetch is in flight.
func (v WidgetView[T]) Loading() bool {
	return v.Phase == widget.PhaseLoading
}

// Loaded reports whether Data is populated.
func (v WidgetView[T]) Loaded() bool {
	return v.Phase == widget.PhaseLoaded
}

// Failed reports whether the widget is in the error phase.
func (v WidgetView[T]) Failed() bool {
	return v.Phase == widget.PhaseError
}

// FunStatsView is the commit-timing chart plus the summary cards.
type FunStatsView struct {
	Chart                 normalize.BucketSeries
	MostProductiveHour    int
	MostProductiveDay     string
	AverageCommitsPerDay  float64
	LongestCodingStreak   int
	TotalCommits          int
	TotalRepositories     int
	MostActiveRepo        string
	MostActiveRepoCommits int
	WeekendWarriorPercent float64
	NightOwlPercent       float64
	EarlyBirdPercent      float64
}

// View is the render-ready state of a whole page.
type View struct {
	Selector selector.Selector
	// RequestedVisibility is what the user asked for; Selector.Visibility is what was granted.
	RequestedVisibility selector.Visibility
	Owner               bool

	Contributions WidgetView[normalize.CalendarView]
	CodeFrequency WidgetView[normalize.FrequencyView]
	FunStats      WidgetView[FunStatsView]
	TopRepos      WidgetView[[]normalize.RepoBar]
	Profile       WidgetView[githubapi.Profile]
	// Rank is the country placement badge; a not-found rank means the subject is unranked.
	Rank     WidgetView[RankBadge]
	Rankings region.View
}

// RankBadge is the "#N in Country" badge shown next to the profile name.
type RankBadge struct {
	Rank        int
	Total       int
	Country     string
	CountryName string
}

// View renders every widget from its current state. View and stat modes are read from the
// latest selector, so switching them re-normalizes loaded data without a fetch.
func (p *Page) View() View {
	p.mu.RLock()
	current, requested := p.current, p.requested
	p.mu.RUnlock()

	view := View{
		Selector:            current,
		RequestedVisibility: requested,
		Owner:               current.Subject != "" && p.policy.Owns(current.Subject),
		Rankings:            p.rankings.View(),
	}

	view.Contributions = project(WidgetContributions, p.contributions.State(), func(data statsapi.Contributions) normalize.CalendarView {
		return normalize.Calendar(data, p.opts.WindowWeeks)
	})
	view.CodeFrequency = project(WidgetCodeFrequency, p.frequency.State(), func(data statsapi.CodeFrequency) normalize.FrequencyView {
		return normalize.CodeFrequency(data, p.opts.WindowWeeks, p.opts.MinPercent)
	})
	view.FunStats = project(WidgetFunStats, p.funStats.State(), func(data statsapi.FunStats) FunStatsView {
		return FunStatsView{
			Chart:                 normalize.Buckets(data, current.ViewMode, current.StatMode, p.opts.MinPercent),
			MostProductiveHour:    data.MostProductiveHour,
			MostProductiveDay:     data.MostProductiveDay,
			AverageCommitsPerDay:  data.AverageCommitsPerDay,
			LongestCodingStreak:   data.LongestCodingStreak,
			TotalCommits:          data.TotalCommits,
			TotalRepositories:     data.TotalRepositories,
			MostActiveRepo:        data.MostActiveRepo,
			MostActiveRepoCommits: data.MostActiveRepoCommits,
			WeekendWarriorPercent: normalize.Percent(data.WeekendWarriorPercent),
			NightOwlPercent:       normalize.Percent(data.NightOwlPercent),
			EarlyBirdPercent:      normalize.Percent(data.EarlyBirdPercent),
		}
	})
	view.TopRepos = project(WidgetTopRepos, p.repos.State(), func(data statsapi.RepoCommits) []normalize.RepoBar {
		return normalize.TopRepos(data, p.opts.TopRepos, p.opts.MinPercent)
	})
	view.Rank = project(WidgetRank, p.rank.State(), func(data statsapi.UserRanking) RankBadge {
		return RankBadge{
			Rank:        data.CountryRank,
			Total:       data.CountryTotal,
			Country:     data.Country,
			CountryName: selector.DisplayName(data.Country),
		}
	})
	if p.profile != nil {
		view.Profile = project(WidgetProfile, p.profile.State(), func(data githubapi.Profile) githubapi.Profile {
			return data
		})
	} else {
		view.Profile = WidgetView[githubapi.Profile]{Name: WidgetProfile, Phase: widget.PhaseIdle}
	}
	return view
}

func project[K comparable, T, V any](name string, state widget.State[K, T], render func(T) V) WidgetView[V] {
	view := WidgetView[V]{
		Name:  name,
		Phase: state.Phase,
		Epoch: state.Epoch,
	}
	switch state.Phase {
	case widget.PhaseLoaded:
		view.Data = render(state.Data)
	case widget.PhaseError:
		view.Message = state.Message
		view.NotFound = state.Kind == widget.KindNotFound
		view.Retryable = state.Kind == widget.KindTransient
	}
	return view
}
