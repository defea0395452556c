// Package region implements the ranking region picker: a filterable country list, open and
// dismiss handling, and the ranking widget driven by the current choice.
package region

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/cam3ron2/gh-dashboard/internal/selector"
	"github.com/cam3ron2/gh-dashboard/internal/statsapi"
	"github.com/cam3ron2/gh-dashboard/internal/widget"
	"go.uber.org/zap"
)

// DefaultGlobalLimit is the size of the global ranking request.
const DefaultGlobalLimit = 100

// Source provides rankings and the rankable countries.
type Source interface {
	AvailableCountries(ctx context.Context) ([]string, error)
	CountryRanking(ctx context.Context, country string) (statsapi.Ranking, error)
	GlobalRanking(ctx context.Context, limit int) (statsapi.Ranking, error)
}

// Options configures a Selector.
type Options struct {
	GlobalLimit int
	Timeout     time.Duration
	Logger      *zap.Logger
}

// Candidate is one selectable country.
type Candidate struct {
	Code string
	Name string
}

// View is a render-ready snapshot of the picker and its ranking.
type View struct {
	Selection        selector.RegionChoice
	DisplayName      string
	Open             bool
	FilterText       string
	CandidatesLoaded bool
	Candidates       []Candidate
	Ranking          widget.State[selector.RankingScope, statsapi.Ranking]
}

// Selector is the region picker. Filter and open state never trigger fetches; only Select
// moves the ranking widget.
type Selector struct {
	source  Source
	limit   int
	logger  *zap.Logger
	ranking *widget.Machine[selector.RankingScope, statsapi.Ranking]

	loadOnce sync.Once

	// selectMu orders selection changes with the ranking fetches they issue.
	selectMu sync.Mutex

	mu               sync.RWMutex
	candidates       []string
	candidatesLoaded bool
	filterText       string
	open             bool
	selection        selector.RegionChoice
	loaded           map[selector.RankingScope]statsapi.Ranking
}

// New creates a picker with the global selection. Call Start to issue the first fetch.
func New(source Source, opts Options) *Selector {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := opts.GlobalLimit
	if limit <= 0 {
		limit = DefaultGlobalLimit
	}

	s := &Selector{
		source:    source,
		limit:     limit,
		logger:    logger,
		selection: selector.Global,
		loaded:    make(map[selector.RankingScope]statsapi.Ranking),
	}
	s.ranking = widget.NewMachine[selector.RankingScope, statsapi.Ranking](s.fetch, widget.Options{
		Name:     "rankings",
		Timeout:  opts.Timeout,
		Classify: statsapi.Classify,
		Describe: widget.DescribeAs("rankings"),
		Logger:   logger,
	})
	s.ranking.Subscribe(s.remember)
	return s
}

// Start issues the fetch for the current selection.
func (s *Selector) Start() bool {
	s.selectMu.Lock()
	defer s.selectMu.Unlock()
	return s.ranking.SetSelector(s.scopeFor(s.Selection()))
}

// LoadCandidates reads the country list once per picker. A failure leaves the list empty.
func (s *Selector) LoadCandidates(ctx context.Context) {
	s.loadOnce.Do(func() {
		countries, err := s.source.AvailableCountries(ctx)
		if err != nil {
			s.logger.Warn("region candidates unavailable", zap.Error(err))
			countries = nil
		}

		s.mu.Lock()
		s.candidates = append([]string(nil), countries...)
		s.candidatesLoaded = true
		s.mu.Unlock()
	})
}

// Filter sets the filter text.
func (s *Selector) Filter(text string) {
	s.mu.Lock()
	s.filterText = text
	s.mu.Unlock()
}

// Filtered returns candidates whose display name matches the filter text, case-insensitively,
// in their original order. A name matches when it contains the text, or when the text's first
// character starts one of its words and the remaining characters follow in order, so "la"
// also finds "Lithuania" but "ta" does not.
func (s *Selector) Filtered() []Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterCandidates(s.candidates, s.filterText)
}

// Open shows the list.
func (s *Selector) Open() {
	s.mu.Lock()
	s.open = true
	s.mu.Unlock()
}

// Toggle flips the list open or closed. Closing by toggle keeps the filter text.
func (s *Selector) Toggle() {
	s.mu.Lock()
	s.open = !s.open
	s.mu.Unlock()
}

// Dismiss handles an interaction outside the picker: the list closes and the filter clears,
// the selection is kept.
func (s *Selector) Dismiss() {
	s.mu.Lock()
	s.open = false
	s.filterText = ""
	s.mu.Unlock()
}

// Select closes the list, clears the filter and moves the ranking widget to choice. It
// reports whether a fetch was issued.
func (s *Selector) Select(choice selector.RegionChoice) bool {
	choice = s.scopeFor(choice).Region

	s.selectMu.Lock()
	defer s.selectMu.Unlock()

	s.mu.Lock()
	s.selection = choice
	s.open = false
	s.filterText = ""
	s.mu.Unlock()

	return s.ranking.SetSelector(s.scopeFor(choice))
}

// Retry re-issues the current ranking fetch.
func (s *Selector) Retry() bool {
	return s.ranking.Retry()
}

// Selection returns the current choice.
func (s *Selector) Selection() selector.RegionChoice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection
}

// Ranking returns the ranking widget state.
func (s *Selector) Ranking() widget.State[selector.RankingScope, statsapi.Ranking] {
	return s.ranking.State()
}

// LastLoaded returns the most recent ranking applied for choice. A failed fetch for one
// scope never clears what another scope loaded.
func (s *Selector) LastLoaded(choice selector.RegionChoice) (statsapi.Ranking, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ranking, ok := s.loaded[s.scopeFor(choice)]
	return ranking, ok
}

// Machine exposes the ranking widget for metrics and tests.
func (s *Selector) Machine() *widget.Machine[selector.RankingScope, statsapi.Ranking] {
	return s.ranking
}

// Wait blocks until every issued ranking fetch has resolved.
func (s *Selector) Wait(ctx context.Context) error {
	return s.ranking.Wait(ctx)
}

// View returns a snapshot for rendering.
func (s *Selector) View() View {
	s.mu.RLock()
	view := View{
		Selection:        s.selection,
		DisplayName:      selector.DisplayName(string(s.selection)),
		Open:             s.open,
		FilterText:       s.filterText,
		CandidatesLoaded: s.candidatesLoaded,
		Candidates:       filterCandidates(s.candidates, s.filterText),
	}
	s.mu.RUnlock()
	view.Ranking = s.ranking.State()
	return view
}

func (s *Selector) scopeFor(choice selector.RegionChoice) selector.RankingScope {
	if choice.IsGlobal() {
		return selector.RankingScope{Region: selector.Global, Limit: s.limit}
	}
	return selector.RankingScope{Region: selector.RegionChoice(choice.Country())}
}

func (s *Selector) remember(state widget.State[selector.RankingScope, statsapi.Ranking]) {
	if !state.Loaded() {
		return
	}
	s.mu.Lock()
	s.loaded[state.Selector] = state.Data
	s.mu.Unlock()
}

func (s *Selector) fetch(ctx context.Context, scope selector.RankingScope) (statsapi.Ranking, error) {
	if scope.Region.IsGlobal() {
		return s.source.GlobalRanking(ctx, scope.Limit)
	}
	return s.source.CountryRanking(ctx, scope.Region.Country())
}

func filterCandidates(candidates []string, filterText string) []Candidate {
	needle := strings.ToLower(filterText)
	out := make([]Candidate, 0, len(candidates))
	for _, code := range candidates {
		name := selector.DisplayName(code)
		if !matchesFilter(strings.ToLower(name), needle) {
			continue
		}
		out = append(out, Candidate{Code: code, Name: name})
	}
	return out
}

func matchesFilter(name, needle string) bool {
	if needle == "" || strings.Contains(name, needle) {
		return true
	}
	letters := []rune(name)
	want := []rune(needle)
	wordStart := true
	for i, r := range letters {
		if wordStart && r == want[0] && inOrder(letters[i+1:], want[1:]) {
			return true
		}
		wordStart = !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}
	return false
}

// inOrder reports whether want appears in letters as a subsequence.
func inOrder(letters, want []rune) bool {
	for _, r := range letters {
		if len(want) == 0 {
			break
		}
		if r == want[0] {
			want = want[1:]
		}
	}
	return len(want) == 0
}
