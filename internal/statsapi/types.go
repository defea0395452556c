package statsapi

import "time"

// ContributionDay is one cell of the contribution calendar.
type ContributionDay struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
	Level int    `json:"level"`
}

// ContributionWeek is one calendar column of seven days, Sunday first.
type ContributionWeek struct {
	Days []ContributionDay `json:"days"`
}

// Contributions is the contribution calendar for one subject and year.
type Contributions struct {
	Weeks []ContributionWeek `json:"contributions"`
	Total int                `json:"totalContributions"`
	Year  int                `json:"year"`
}

// CodeFrequencyWeek is one week of line changes. Week is the unix timestamp of the week start.
type CodeFrequencyWeek struct {
	Week      int64 `json:"week"`
	Additions int   `json:"additions"`
	Deletions int   `json:"deletions"`
}

// CodeFrequency is the weekly additions/deletions series for one subject.
type CodeFrequency struct {
	Weeks          []CodeFrequencyWeek `json:"weeks"`
	TotalAdditions int                 `json:"totalAdditions"`
	TotalDeletions int                 `json:"totalDeletions"`
}

// FunStats is the commit-timing summary. Totals and averages are pre-aggregated by the
// backend and keyed by the same bucket identifiers.
type FunStats struct {
	MostProductiveHour    int                `json:"mostProductiveHour"`
	MostProductiveDay     string             `json:"mostProductiveDay"`
	CommitsByHour         map[int]int        `json:"commitsByHour"`
	AvgCommitsByHour      map[int]float64    `json:"avgCommitsByHour"`
	CommitsByDayOfWeek    map[string]int     `json:"commitsByDayOfWeek"`
	AvgCommitsByDayOfWeek map[string]float64 `json:"avgCommitsByDayOfWeek"`
	CommitsByMonth        map[string]int     `json:"commitsByMonth"`
	AvgCommitsByMonth     map[string]float64 `json:"avgCommitsByMonth"`
	AverageCommitsPerDay  float64            `json:"averageCommitsPerDay"`
	LongestCodingStreak   int                `json:"longestCodingStreak"`
	TotalCommits          int                `json:"totalCommits"`
	TotalRepositories     int                `json:"totalRepositories"`
	MostActiveRepo        string             `json:"mostActiveRepo"`
	MostActiveRepoCommits int                `json:"mostActiveRepoCommits"`
	WeekendWarriorPercent float64            `json:"weekendWarriorPercent"`
	NightOwlPercent       float64            `json:"nightOwlPercent"`
	EarlyBirdPercent      float64            `json:"earlyBirdPercent"`
}

// RepoCommits maps repository names to the subject's commit counts.
type RepoCommits struct {
	CommitsByRepo map[string]int `json:"commitsByRepo"`
	TotalCommits  int            `json:"totalCommits"`
}

// RankingEntry is one ranked user. Order in a Ranking is the rank.
type RankingEntry struct {
	Login               string `json:"login"`
	Name                string `json:"name,omitempty"`
	AvatarURL           string `json:"avatarUrl"`
	Country             string `json:"country,omitempty"`
	PublicContributions int    `json:"publicContributions"`
	Followers           int    `json:"followers,omitempty"`
	Location            string `json:"location,omitempty"`
}

// Ranking is an ordered ranking result for one scope.
type Ranking struct {
	Country   string         `json:"country,omitempty"`
	Users     []RankingEntry `json:"users"`
	Total     int            `json:"total"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// SearchUser is one user search hit.
type SearchUser struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
	Type      string `json:"type"`
}

// UserSearch is the result of a user search.
type UserSearch struct {
	Count int          `json:"count"`
	Users []SearchUser `json:"users"`
}

// UserRanking places one user in their country ranking and, when known, the global one.
type UserRanking struct {
	Username             string `json:"username"`
	Country              string `json:"country"`
	CountryRank          int    `json:"countryRank"`
	CountryTotal         int    `json:"countryTotal"`
	GlobalRank           int    `json:"globalRank,omitempty"`
	GlobalTotal          int    `json:"globalTotal,omitempty"`
	PublicContributions  int    `json:"publicContributions"`
	PrivateContributions int    `json:"privateContributions,omitempty"`
	Followers            int    `json:"followers,omitempty"`
}

// AuthStatus is the backend's view of the current session.
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`
}

// userRankingPayload accepts both a bare ranking and one wrapped as {"ranking": ...};
// a null or rank-less ranking means the user is not ranked.
type userRankingPayload struct {
	UserRanking
	Ranking *UserRanking `json:"ranking"`
}

func (p userRankingPayload) resolve() (UserRanking, bool) {
	ranking := p.UserRanking
	if p.Ranking != nil {
		ranking = *p.Ranking
	}
	if ranking.CountryRank <= 0 || ranking.Country == "" {
		return UserRanking{}, false
	}
	return ranking, true
}

type countriesPayload struct {
	Countries []string `json:"countries"`
}

type rateLimitPayload struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	LoginRequired bool   `json:"login_required"`
}
