package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cam3ron2/gh-dashboard/internal/config"
	"github.com/cam3ron2/gh-dashboard/internal/githubapi"
	"github.com/cam3ron2/gh-dashboard/internal/statsapi"
)

type fakeStats struct {
	mu      sync.Mutex
	calls   []string
	missing map[string]bool
}

func newFakeStats() *fakeStats {
	return &fakeStats{missing: map[string]bool{}}
}

// record notes call, suffixed with "@token" when the request carried a backend session.
func (f *fakeStats) record(ctx context.Context, login, call string) error {
	if token := statsapi.SessionToken(ctx); token != "" {
		call += "@" + token
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.missing[login] {
		return &statsapi.StatusError{Op: "stats", Status: 404, Message: "User not found"}
	}
	return nil
}

func (f *fakeStats) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

// withToken counts calls that carried token as their backend session.
func (f *fakeStats) withToken(token string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if strings.HasSuffix(call, "@"+token) {
			n++
		}
	}
	return n
}

func (f *fakeStats) Contributions(ctx context.Context, login string, year int) (statsapi.Contributions, error) {
	if err := f.record(ctx, login, fmt.Sprintf("contributions:%s:%d", login, year)); err != nil {
		return statsapi.Contributions{}, err
	}
	return statsapi.Contributions{
		Weeks: []statsapi.ContributionWeek{{Days: []statsapi.ContributionDay{
			{Date: "2024-01-07", Count: 3},
			{Date: "2024-01-08", Count: 0},
		}}},
		Total: 3,
		Year:  year,
	}, nil
}

func (f *fakeStats) CodeFrequency(ctx context.Context, login, visibility string) (statsapi.CodeFrequency, error) {
	if err := f.record(ctx, login, fmt.Sprintf("frequency:%s:%s", login, visibility)); err != nil {
		return statsapi.CodeFrequency{}, err
	}
	return statsapi.CodeFrequency{
		Weeks:          []statsapi.CodeFrequencyWeek{{Week: 1704585600, Additions: 40, Deletions: 10}},
		TotalAdditions: 40,
		TotalDeletions: 10,
	}, nil
}

func (f *fakeStats) FunStats(ctx context.Context, login, visibility string) (statsapi.FunStats, error) {
	if err := f.record(ctx, login, fmt.Sprintf("fun:%s:%s", login, visibility)); err != nil {
		return statsapi.FunStats{}, err
	}
	return statsapi.FunStats{
		CommitsByHour:     map[int]int{9: 4},
		TotalCommits:      4,
		MostProductiveDay: "Monday",
	}, nil
}

func (f *fakeStats) RepoCommits(ctx context.Context, login, visibility string) (statsapi.RepoCommits, error) {
	if err := f.record(ctx, login, fmt.Sprintf("repos:%s:%s", login, visibility)); err != nil {
		return statsapi.RepoCommits{}, err
	}
	return statsapi.RepoCommits{CommitsByRepo: map[string]int{"gh-dashboard": 4}, TotalCommits: 4}, nil
}

func (f *fakeStats) AvailableCountries(context.Context) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "countries")
	f.mu.Unlock()
	return []string{"lithuania", "latvia", "united_kingdom"}, nil
}

func (f *fakeStats) CountryRanking(_ context.Context, country string) (statsapi.Ranking, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "ranking:"+country)
	f.mu.Unlock()
	if country == "atlantis" {
		return statsapi.Ranking{}, &statsapi.StatusError{Op: "country ranking", Status: 404, Message: "Country not found"}
	}
	return statsapi.Ranking{
		Country: country,
		Users:   []statsapi.RankingEntry{{Login: "ona", PublicContributions: 1500}},
		Total:   1,
	}, nil
}

func (f *fakeStats) GlobalRanking(_ context.Context, limit int) (statsapi.Ranking, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("ranking:global:%d", limit))
	f.mu.Unlock()
	return statsapi.Ranking{
		Users: []statsapi.RankingEntry{{Login: "torvalds", PublicContributions: 4200}},
		Total: 1,
	}, nil
}

func (f *fakeStats) UserRanking(ctx context.Context, login string) (statsapi.UserRanking, error) {
	if err := f.record(ctx, login, "rank:"+login); err != nil {
		return statsapi.UserRanking{}, err
	}
	if login != "octocat" {
		return statsapi.UserRanking{}, &statsapi.StatusError{Op: "user ranking", Status: 404, Message: "User not ranked"}
	}
	return statsapi.UserRanking{Username: login, Country: "lithuania", CountryRank: 3, CountryTotal: 250}, nil
}

func (f *fakeStats) SearchUsers(ctx context.Context, query string) (statsapi.UserSearch, error) {
	if err := f.record(ctx, query, "search:"+query); err != nil {
		return statsapi.UserSearch{}, err
	}
	switch query {
	case "boom":
		return statsapi.UserSearch{}, fmt.Errorf("dial tcp 10.0.0.1:8080: connection refused")
	case "slow":
		return statsapi.UserSearch{}, &statsapi.StatusError{Op: "user search", Status: 429, Message: "Slow down"}
	}
	return statsapi.UserSearch{Count: 2, Users: []statsapi.SearchUser{
		{Login: "octocat", AvatarURL: "https://avatars.example/octocat", Type: "User"},
		{Login: "octo-org", AvatarURL: "https://avatars.example/org", Type: "Organization"},
	}}, nil
}

type fakeProfiles struct{}

func (fakeProfiles) Profile(_ context.Context, login string) (githubapi.Profile, error) {
	if login == "ghost" {
		return githubapi.Profile{}, &githubapi.StatusError{Status: 404, Message: "User not found"}
	}
	return githubapi.Profile{Login: login, Name: "Octo Cat", Followers: 1200}, nil
}

func (fakeProfiles) Followers(_ context.Context, login string) (githubapi.UserList, error) {
	if login == "ghost" {
		return githubapi.UserList{}, &githubapi.StatusError{Status: 404, Message: "User not found"}
	}
	return githubapi.UserList{Count: 1, Users: []githubapi.UserSummary{{Login: "hubot"}}}, nil
}

func (fakeProfiles) Following(context.Context, string) (githubapi.UserList, error) {
	return githubapi.UserList{Users: []githubapi.UserSummary{}}, nil
}

// fakeAuthBackend resolves sessions per token, the way the backend reads its session cookie.
// Only "owner-token" belongs to a signed-in user.
type fakeAuthBackend struct {
	mu       sync.Mutex
	statuses map[string]statsapi.AuthStatus
	logouts  []string
}

func newFakeAuthBackend() *fakeAuthBackend {
	return &fakeAuthBackend{statuses: map[string]statsapi.AuthStatus{
		"owner-token": {Authenticated: true, Username: "octocat"},
	}}
}

func (f *fakeAuthBackend) AuthStatus(ctx context.Context) (statsapi.AuthStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[statsapi.SessionToken(ctx)], nil
}

func (f *fakeAuthBackend) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts = append(f.logouts, statsapi.SessionToken(ctx))
	return nil
}

func (f *fakeAuthBackend) LoginURL() string {
	return "https://stats.example.com/api/auth/login"
}

func (f *fakeAuthBackend) Logouts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := make([]string, len(f.logouts))
	copy(copied, f.logouts)
	return copied
}

func testConfig() *config.Config {
	return &config.Config{
		Dashboard: config.DashboardConfig{
			SettleTimeout:      2 * time.Second,
			FetchTimeout:       2 * time.Second,
			PageIdleTimeout:    time.Minute,
			MaxPages:           10,
			GlobalRankingLimit: 100,
			WindowWeeks:        52,
			MinBarPercent:      2,
			TopRepos:           10,
			MetricsRefresh:     time.Nanosecond,
		},
		Health: config.HealthConfig{CheckTimeout: time.Second},
	}
}

type testRuntime struct {
	*Runtime
	stats   *fakeStats
	backend *fakeAuthBackend
}

func newTestRuntime(t *testing.T, withProfiles bool) *testRuntime {
	t.Helper()

	stats := newFakeStats()
	backend := newFakeAuthBackend()
	deps := Dependencies{
		Stats: stats,
		Auth:  backend,
	}
	if withProfiles {
		deps.Profiles = fakeProfiles{}
	}
	rt, err := NewRuntime(testConfig(), deps)
	if err != nil {
		t.Fatalf("NewRuntime() unexpected error: %v", err)
	}
	rt.Now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	t.Cleanup(func() {
		_ = rt.Close()
	})
	return &testRuntime{Runtime: rt, stats: stats, backend: backend}
}
