// Package recurrence decodes recurrence patterns written in task documents
// and decides when a completed recurring task is due again.
//
// Pattern grammar (case-insensitive, optional "@HH:MM" time override):
//
//	daily              every day
//	weekday            MON-FRI
//	weekend            SAT, SUN
//	weekly:mon,thu     listed days (first three letters of each)
//	monthly:15         day 15 of each month
//	<anything else>    CUSTOM, treated as daily when scheduling
package recurrence

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Frequency is the recurrence frequency of a rule.
type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Custom  Frequency = "CUSTOM"
)

// Rule is the schedule part of a recurrence: enough to compute occurrences.
type Rule struct {
	Frequency  Frequency `json:"frequency"`
	DaysOfWeek []string  `json:"daysOfWeek,omitempty"`
	DayOfMonth *int      `json:"dayOfMonth,omitempty"`
	// TimeOfDay is "HH:MM", or empty when unspecified.
	TimeOfDay string `json:"timeOfDay,omitempty"`
}

// Pattern is a decoded recurrence pattern together with its source text.
type Pattern struct {
	Rule
	Raw string `json:"raw"`
}

var (
	weekdays = []string{"MON", "TUE", "WED", "THU", "FRI"}
	weekends = []string{"SAT", "SUN"}
)

// ParsePattern decodes value. fallbackTime (already normalized) is used
// unless the pattern carries its own "@HH:MM"; an invalid override leaves
// the time unspecified. Empty input returns nil.
func ParsePattern(value, fallbackTime string) *Pattern {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return nil
	}

	patternPart, timePart, hasTime := strings.Cut(raw, "@")
	if hasTime {
		// Only the text up to a second '@' counts as the override.
		timePart, _, _ = strings.Cut(timePart, "@")
	} else {
		timePart = fallbackTime
	}
	pattern := strings.ToLower(strings.TrimSpace(patternPart))

	p := &Pattern{Raw: raw}
	p.TimeOfDay = NormalizeTime(timePart)

	switch {
	case strings.HasPrefix(pattern, "weekly:"):
		p.Frequency = Weekly
		p.DaysOfWeek = parseDays(field(pattern, 1))
	case strings.HasPrefix(pattern, "monthly:"):
		p.Frequency = Monthly
		if n, err := strconv.Atoi(strings.TrimSpace(field(pattern, 1))); err == nil {
			p.DayOfMonth = &n
		}
	case pattern == "weekday":
		p.Frequency = Weekly
		p.DaysOfWeek = append([]string(nil), weekdays...)
	case pattern == "weekend":
		p.Frequency = Weekly
		p.DaysOfWeek = append([]string(nil), weekends...)
	case pattern == "daily":
		p.Frequency = Daily
	default:
		p.Frequency = Custom
	}
	return p
}

// field returns the i-th colon-separated field of s, or "".
func field(s string, i int) string {
	parts := strings.Split(s, ":")
	if i < len(parts) {
		return parts[i]
	}
	return ""
}

func parseDays(list string) []string {
	days := []string{}
	for _, tok := range strings.Split(list, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if r := []rune(tok); len(r) > 3 {
			tok = string(r[:3])
		}
		days = append(days, strings.ToUpper(tok))
	}
	return days
}

var clockRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// NormalizeTime returns value as zero-padded "HH:MM", or "" when it is not
// a valid H:MM / HH:MM time.
func NormalizeTime(value string) string {
	m := clockRe.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return ""
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	if h > 23 || mi > 59 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", h, mi)
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// DefaultClock is the scheduled time for rules without one.
var DefaultClock = Clock{Hour: 8, Minute: 0}

// ParseClock parses "H:MM" / "HH:MM", clamping out-of-range fields.
// Anything else yields DefaultClock.
func ParseClock(value string) Clock {
	m := clockRe.FindStringSubmatch(value)
	if m == nil {
		return DefaultClock
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	return Clock{Hour: min(h, 23), Minute: min(mi, 59)}
}

// String formats c as "HH:MM".
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}
