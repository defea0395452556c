package selector

import (
	"fmt"
	"strconv"
	"strings"
)

// Visibility selects which repositories feed visibility-sensitive widgets.
type Visibility string

const (
	// VisibilityPublic reads public data only.
	VisibilityPublic Visibility = "public"
	// VisibilityPrivate reads private data only. It requires an authenticated owner.
	VisibilityPrivate Visibility = "private"
	// VisibilityAll reads public and private data. It requires an authenticated owner.
	VisibilityAll Visibility = "all"
)

// ViewMode selects the bucket dimension of the commit-timing chart.
type ViewMode string

const (
	// ViewHour buckets commits by hour of day.
	ViewHour ViewMode = "hour"
	// ViewDay buckets commits by weekday.
	ViewDay ViewMode = "day"
	// ViewMonth buckets commits by calendar month.
	ViewMonth ViewMode = "month"
)

// StatMode selects between pre-aggregated totals and averages.
type StatMode string

const (
	// StatTotal renders bucket totals.
	StatTotal StatMode = "total"
	// StatAverage renders bucket averages.
	StatAverage StatMode = "average"
)

// Selector is the compound key describing what a dashboard page currently wants to display.
// It is a comparable value; two selectors describe the same request iff they are equal.
type Selector struct {
	Subject    string
	Visibility Visibility
	// Year is the calendar year of the contribution graph. Zero means the trailing 12 months.
	Year     int
	ViewMode ViewMode
	StatMode StatMode
}

// New returns the default selector for a subject.
func New(subject string) Selector {
	return Selector{
		Subject:    strings.TrimSpace(subject),
		Visibility: VisibilityPublic,
		ViewMode:   ViewHour,
		StatMode:   StatTotal,
	}
}

// WithSubject returns a copy with a different subject.
func (s Selector) WithSubject(subject string) Selector {
	s.Subject = strings.TrimSpace(subject)
	return s
}

// WithVisibility returns a copy with a different visibility.
func (s Selector) WithVisibility(visibility Visibility) Selector {
	s.Visibility = visibility
	return s
}

// WithYear returns a copy with a different year. Zero selects the trailing 12 months.
func (s Selector) WithYear(year int) Selector {
	s.Year = year
	return s
}

// WithViewMode returns a copy with a different view mode.
func (s Selector) WithViewMode(mode ViewMode) Selector {
	s.ViewMode = mode
	return s
}

// WithStatMode returns a copy with a different stat mode.
func (s Selector) WithStatMode(mode StatMode) Selector {
	s.StatMode = mode
	return s
}

// Validate reports whether every field holds a known value.
func (s Selector) Validate() error {
	if s.Subject == "" {
		return fmt.Errorf("subject is required")
	}
	if _, err := ParseVisibility(string(s.Visibility)); err != nil {
		return err
	}
	if _, err := ParseViewMode(string(s.ViewMode)); err != nil {
		return err
	}
	if _, err := ParseStatMode(string(s.StatMode)); err != nil {
		return err
	}
	if s.Year < 0 {
		return fmt.Errorf("year must be >= 0")
	}
	return nil
}

// ParseVisibility parses a visibility value. Empty input yields public.
func ParseVisibility(raw string) (Visibility, error) {
	switch Visibility(strings.ToLower(strings.TrimSpace(raw))) {
	case "", VisibilityPublic:
		return VisibilityPublic, nil
	case VisibilityPrivate:
		return VisibilityPrivate, nil
	case VisibilityAll:
		return VisibilityAll, nil
	}
	return "", fmt.Errorf("unknown visibility %q", raw)
}

// ParseViewMode parses a view mode. Empty input yields hour.
func ParseViewMode(raw string) (ViewMode, error) {
	switch ViewMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ViewHour:
		return ViewHour, nil
	case ViewDay:
		return ViewDay, nil
	case ViewMonth:
		return ViewMonth, nil
	}
	return "", fmt.Errorf("unknown view mode %q", raw)
}

// ParseStatMode parses a stat mode. Empty input yields total.
func ParseStatMode(raw string) (StatMode, error) {
	switch StatMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", StatTotal:
		return StatTotal, nil
	case StatAverage:
		return StatAverage, nil
	}
	return "", fmt.Errorf("unknown stat mode %q", raw)
}

// ParseYear parses a calendar year. Empty input yields zero (trailing 12 months).
func ParseYear(raw string) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	year, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("parse year %q: %w", raw, err)
	}
	if year < FirstContributionYear {
		return 0, fmt.Errorf("year %d is before %d", year, FirstContributionYear)
	}
	return year, nil
}

// FirstContributionYear is the earliest year with GitHub contribution data.
const FirstContributionYear = 2008

// Years lists selectable years from current down to FirstContributionYear.
func Years(current int) []int {
	if current < FirstContributionYear {
		return nil
	}
	years := make([]int, 0, current-FirstContributionYear+1)
	for year := current; year >= FirstContributionYear; year-- {
		years = append(years, year)
	}
	return years
}
