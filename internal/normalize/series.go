package normalize

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cam3ron2/gh-dashboard/internal/selector"
	"github.com/cam3ron2/gh-dashboard/internal/statsapi"
)

var (
	weekdays   = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
	monthNames = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
)

// Bar is one scaled bucket.
type Bar struct {
	Key     string
	Label   string
	Value   float64
	Display string
	Height  float64
}

// BucketSeries is the fun-stats chart for one view and stat mode.
type BucketSeries struct {
	View  selector.ViewMode
	Stat  selector.StatMode
	Title string
	Bars  []Bar
}

// Buckets selects the total or average map for the view mode and scales it. Buckets the
// backend omits read as zero. Month averages fall back to the totals when the backend does
// not send them.
func Buckets(stats statsapi.FunStats, view selector.ViewMode, stat selector.StatMode, minPercent float64) BucketSeries {
	average := stat == selector.StatAverage
	series := BucketSeries{View: view, Stat: stat}

	switch view {
	case selector.ViewDay:
		series.Title = titleFor("Commits by Day of Week", average)
		for _, day := range weekdays {
			value := float64(stats.CommitsByDayOfWeek[day])
			if average {
				value = stats.AvgCommitsByDayOfWeek[day]
			}
			series.Bars = append(series.Bars, Bar{
				Key:     day,
				Label:   day,
				Value:   value,
				Display: formatValue(value, average, 1),
			})
		}
	case selector.ViewMonth:
		totals := stats.CommitsByMonth
		averages := stats.AvgCommitsByMonth
		useAverage := average && len(averages) > 0
		series.Title = titleFor("Commits by Month", useAverage)
		keys := monthKeys(totals, averages, useAverage)
		for _, key := range keys {
			value := float64(totals[key])
			if useAverage {
				value = averages[key]
			}
			series.Bars = append(series.Bars, Bar{
				Key:     key,
				Label:   monthLabel(key),
				Value:   value,
				Display: formatValue(value, useAverage, 2),
			})
		}
	default:
		series.View = selector.ViewHour
		series.Title = titleFor("Commits by Hour", average)
		for hour := 0; hour < 24; hour++ {
			value := float64(stats.CommitsByHour[hour])
			if average {
				value = stats.AvgCommitsByHour[hour]
			}
			series.Bars = append(series.Bars, Bar{
				Key:     strconv.Itoa(hour),
				Label:   strconv.Itoa(hour) + ":00",
				Value:   value,
				Display: formatValue(value, average, 2),
			})
		}
	}

	applyHeights(series.Bars, minPercent)
	return series
}

// FrequencyWeek is one rendered code-frequency column.
type FrequencyWeek struct {
	Start           time.Time
	Additions       int
	Deletions       int
	AdditionsHeight float64
	DeletionsHeight float64
}

// FrequencyView is the windowed code-frequency chart.
type FrequencyView struct {
	Weeks          []FrequencyWeek
	TotalAdditions string
	TotalDeletions string
}

// CodeFrequency windows the weekly series and scales additions and deletions against their
// shared maximum.
func CodeFrequency(payload statsapi.CodeFrequency, window int, minPercent float64) FrequencyView {
	if window <= 0 {
		window = DefaultWindowWeeks
	}
	weeks := Tail(payload.Weeks, window)

	// Interleave so both series share one maximum.
	values := make([]float64, 0, len(weeks)*2)
	for _, week := range weeks {
		values = append(values, float64(week.Additions), float64(week.Deletions))
	}
	heights := Heights(values, minPercent)

	view := FrequencyView{
		Weeks:          make([]FrequencyWeek, 0, len(weeks)),
		TotalAdditions: Compact(payload.TotalAdditions),
		TotalDeletions: Compact(payload.TotalDeletions),
	}
	for i, week := range weeks {
		view.Weeks = append(view.Weeks, FrequencyWeek{
			Start:           time.Unix(week.Week, 0).UTC(),
			Additions:       week.Additions,
			Deletions:       week.Deletions,
			AdditionsHeight: heights[2*i],
			DeletionsHeight: heights[2*i+1],
		})
	}
	return view
}

// RepoBar is one ranked repository.
type RepoBar struct {
	Name    string
	Commits int
	Share   float64
	Height  float64
}

// TopRepos orders repositories by commit count, then name, and keeps the first limit.
func TopRepos(payload statsapi.RepoCommits, limit int, minPercent float64) []RepoBar {
	repos := make([]RepoBar, 0, len(payload.CommitsByRepo))
	total := 0
	for name, commits := range payload.CommitsByRepo {
		repos = append(repos, RepoBar{Name: name, Commits: commits})
		total += commits
	}
	if payload.TotalCommits > total {
		total = payload.TotalCommits
	}
	sort.Slice(repos, func(i, j int) bool {
		if repos[i].Commits != repos[j].Commits {
			return repos[i].Commits > repos[j].Commits
		}
		return repos[i].Name < repos[j].Name
	})
	if limit > 0 && len(repos) > limit {
		repos = repos[:limit]
	}

	values := make([]float64, len(repos))
	for i, repo := range repos {
		values[i] = float64(repo.Commits)
	}
	for i, height := range Heights(values, minPercent) {
		repos[i].Height = height
		if total > 0 {
			repos[i].Share = Percent(float64(repos[i].Commits) / float64(total) * 100)
		}
	}
	return repos
}

func applyHeights(bars []Bar, minPercent float64) {
	values := make([]float64, len(bars))
	for i, bar := range bars {
		values[i] = bar.Value
	}
	for i, height := range Heights(values, minPercent) {
		bars[i].Height = height
	}
}

func monthKeys(totals map[string]int, averages map[string]float64, useAverage bool) []string {
	keys := make([]string, 0, len(totals))
	if useAverage {
		for key := range averages {
			keys = append(keys, key)
		}
	} else {
		for key := range totals {
			keys = append(keys, key)
		}
	}
	// YYYY-MM sorts chronologically as a string.
	sort.Strings(keys)
	return keys
}

func monthLabel(key string) string {
	year, month, ok := strings.Cut(key, "-")
	if !ok {
		return key
	}
	index, err := strconv.Atoi(month)
	if err != nil || index < 1 || index > 12 {
		return key
	}
	return monthNames[index-1] + " " + year
}

func titleFor(base string, average bool) string {
	if average {
		return "Average " + base
	}
	return base
}

func formatValue(value float64, average bool, precision int) string {
	if !average {
		return strconv.FormatFloat(value, 'f', 0, 64)
	}
	return strconv.FormatFloat(value, 'f', precision, 64)
}
