package normalize

import "github.com/cam3ron2/gh-dashboard/internal/statsapi"

// DefaultWindowWeeks is the number of trailing weeks shown by weekly widgets.
const DefaultWindowWeeks = 52

// CalendarDay is one rendered calendar cell.
type CalendarDay struct {
	Date  string
	Count int
	Level int
}

// CalendarView is the windowed, re-quantized contribution calendar.
type CalendarView struct {
	Weeks [][]CalendarDay
	// Total is the sum over the visible window.
	Total int
	// Reported is the backend's total for the whole requested period.
	Reported int
	Year     int
	Max      int
}

// Calendar windows the payload to the last window weeks and recomputes heat levels against
// the windowed maximum, so levels stay monotonic in count within what is shown.
func Calendar(payload statsapi.Contributions, window int) CalendarView {
	if window <= 0 {
		window = DefaultWindowWeeks
	}
	weeks := Tail(payload.Weeks, window)

	maxCount := 0
	for _, week := range weeks {
		for _, day := range week.Days {
			if day.Count > maxCount {
				maxCount = day.Count
			}
		}
	}

	view := CalendarView{
		Weeks:    make([][]CalendarDay, 0, len(weeks)),
		Reported: payload.Total,
		Year:     payload.Year,
		Max:      maxCount,
	}
	for _, week := range weeks {
		days := make([]CalendarDay, 0, len(week.Days))
		for _, day := range week.Days {
			count := day.Count
			if count < 0 {
				count = 0
			}
			view.Total += count
			days = append(days, CalendarDay{
				Date:  day.Date,
				Count: count,
				Level: Level(count, maxCount),
			})
		}
		view.Weeks = append(view.Weeks, days)
	}
	return view
}
