package recurrence

import (
	"strings"
	"time"
	_ "time/tzdata" // zone data for hosts without a zoneinfo database
)

// ResolveLocation loads the first non-empty zone name. A missing or invalid
// name yields UTC.
func ResolveLocation(names ...string) *time.Location {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		loc, err := time.LoadLocation(name)
		if err != nil {
			return time.UTC
		}
		return loc
	}
	return time.UTC
}

// ValidTimezone reports whether name is a loadable IANA zone.
func ValidTimezone(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}
