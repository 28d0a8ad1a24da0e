package recurrence

import (
	"slices"
	"time"
)

var weekdayCodes = [...]string{"SUN", "MON", "TUE", "WED", "THU", "FRI", "SAT"}

// WeekdayCode returns the three-letter upper-case code of d.
func WeekdayCode(d time.Weekday) string {
	return weekdayCodes[d]
}

// MostRecentOccurrence returns the start of the schedule period containing
// now: the latest scheduled instant of rule at or before now, evaluated on
// the wall clock of loc. CUSTOM and unknown frequencies schedule daily.
func MostRecentOccurrence(rule Rule, loc *time.Location, now time.Time) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	clock := ParseClock(rule.TimeOfDay)

	switch rule.Frequency {
	case Weekly:
		return weeklyOccurrence(now, clock, rule.DaysOfWeek)
	case Monthly:
		day := now.Day()
		if rule.DayOfMonth != nil {
			day = *rule.DayOfMonth
		}
		return monthlyOccurrence(now, clock, day)
	default:
		return dailyOccurrence(now, clock)
	}
}

// at returns the instant on year/month/day (normalized) at clock in now's
// location.
func at(now time.Time, year int, month time.Month, day int, clock Clock) time.Time {
	return time.Date(year, month, day, clock.Hour, clock.Minute, 0, 0, now.Location())
}

func dailyOccurrence(now time.Time, clock Clock) time.Time {
	y, m, d := now.Date()
	candidate := at(now, y, m, d, clock)
	if candidate.After(now) {
		candidate = at(now, y, m, d-1, clock)
	}
	return candidate
}

func weeklyOccurrence(now time.Time, clock Clock, days []string) time.Time {
	if len(days) == 0 {
		days = []string{WeekdayCode(now.Weekday())}
	}
	y, m, d := now.Date()
	for offset := 0; offset < 7; offset++ {
		candidate := at(now, y, m, d-offset, clock)
		if !slices.Contains(days, WeekdayCode(candidate.Weekday())) {
			continue
		}
		if !candidate.After(now) {
			return candidate
		}
	}
	return at(now, y, m, d-7, clock)
}

func monthlyOccurrence(now time.Time, clock Clock, day int) time.Time {
	if day < 1 {
		day = 1
	}
	y, m, _ := now.Date()
	candidate := at(now, y, m, min(day, daysIn(y, m)), clock)
	if !candidate.After(now) {
		return candidate
	}

	py, pm, _ := time.Date(y, m-1, 1, 0, 0, 0, 0, time.UTC).Date()
	return at(now, py, pm, min(day, daysIn(py, pm)), clock)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
