// Package billing maps timestamps onto custom-start-day billing periods.
//
// A billing period is a half-open interval [start, end) anchored to a
// configurable day of month. With cycle day 1 the periods are plain
// calendar months; otherwise the period containing a date starts on the
// cycle day of the current month when the date's day is on or past it,
// and on the cycle day of the previous month otherwise. Cycle days that
// exceed a short month's length clamp to the month's last day.
package billing

import (
	"fmt"
	"time"
)

// Period is a half-open billing interval [Start, End).
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Key returns a stable map key for the period.
func (p Period) Key() string {
	return p.Start.Format("2006-01-02")
}

// PeriodFor returns the billing period containing date.
//
// Parameters:
//   - date: Any timestamp; its location determines period boundaries
//   - cycleDay: Day of month the period starts on (1 = calendar months)
//
// Cycle days outside [1, 31] are treated as 1.
func PeriodFor(date time.Time, cycleDay int) Period {
	if cycleDay < 1 || cycleDay > 31 {
		cycleDay = 1
	}

	year, month, _ := date.Date()
	loc := date.Location()

	if cycleDay == 1 {
		// Fast path: plain calendar month.
		start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
		end := start.AddDate(0, 1, 0)
		return Period{
			Start: start,
			End:   end,
			Label: start.Format("2006-01"),
		}
	}

	startDay := clampDay(year, month, cycleDay)

	var start time.Time
	if date.Day() >= startDay {
		start = time.Date(year, month, startDay, 0, 0, 0, 0, loc)
	} else {
		prevYear, prevMonth := prevMonthOf(year, month)
		prevDay := clampDay(prevYear, prevMonth, cycleDay)
		start = time.Date(prevYear, prevMonth, prevDay, 0, 0, 0, 0, loc)
	}

	end := nextCycleStart(start, cycleDay)

	return Period{
		Start: start,
		End:   end,
		Label: fmt.Sprintf("%s - %s",
			start.Format("2006-01-02"),
			end.AddDate(0, 0, -1).Format("2006-01-02")),
	}
}

// nextCycleStart returns the start of the period following one that
// starts at start, honoring short-month clamping.
func nextCycleStart(start time.Time, cycleDay int) time.Time {
	year, month, _ := start.Date()
	nextYear, nextMonth := nextMonthOf(year, month)
	day := clampDay(nextYear, nextMonth, cycleDay)
	return time.Date(nextYear, nextMonth, day, 0, 0, 0, 0, start.Location())
}

// clampDay clamps day to the last valid day of the given month.
func clampDay(year int, month time.Month, day int) int {
	last := daysInMonth(year, month)
	if day > last {
		return last
	}
	return day
}

// daysInMonth returns the number of days in the given month.
func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func prevMonthOf(year int, month time.Month) (int, time.Month) {
	if month == time.January {
		return year - 1, time.December
	}
	return year, month - 1
}

func nextMonthOf(year int, month time.Month) (int, time.Month) {
	if month == time.December {
		return year + 1, time.January
	}
	return year, month + 1
}
