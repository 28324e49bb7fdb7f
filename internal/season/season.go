// Package season derives competition-season keys from dates.
//
// A season runs from May 1 of year Y through April 30 of year Y+1 and is
// identified by the string "Y/Y+1". The key is the list-partitioning value for
// time-series tables (results, event participants).
package season

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// StartMonth is the first month of a season.
const StartMonth = time.May

var keyPattern = regexp.MustCompile(`^(\d{4})/(\d{4})$`)

// ErrInvalidKey is returned by Validate and Parse for malformed season keys.
var ErrInvalidKey = errors.New("season: invalid key")

// Key returns the season identifier for t. Only the calendar date of t, in
// its own location, is considered.
func Key(t time.Time) string {
	y := t.Year()
	if t.Month() >= StartMonth {
		return fmt.Sprintf("%d/%d", y, y+1)
	}
	return fmt.Sprintf("%d/%d", y-1, y)
}

// Parse returns the starting year of a season key.
func Parse(key string) (int, error) {
	m := keyPattern.FindStringSubmatch(key)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	first, _ := strconv.Atoi(m[1])
	second, _ := strconv.Atoi(m[2])
	if second != first+1 {
		return 0, fmt.Errorf("%w: %q: years must be consecutive", ErrInvalidKey, key)
	}
	return first, nil
}

// Validate reports whether key is a well-formed season identifier.
func Validate(key string) error {
	_, err := Parse(key)
	return err
}

// Slug converts a season key into a form usable inside identifiers:
// "2024/2025" becomes "2024_2025".
func Slug(key string) string {
	return strings.ReplaceAll(key, "/", "_")
}

// Start returns midnight UTC on May 1 of the season's first year.
func Start(key string) (time.Time, error) {
	y, err := Parse(key)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(y, StartMonth, 1, 0, 0, 0, 0, time.UTC), nil
}

// End returns the exclusive upper bound of the season (May 1 of the next year).
func End(key string) (time.Time, error) {
	y, err := Parse(key)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(y+1, StartMonth, 1, 0, 0, 0, 0, time.UTC), nil
}

// Span lists every season touched by the inclusive range [from, to], oldest
// first. It returns nil when to is before from.
func Span(from, to time.Time) []string {
	if to.Before(from) {
		return nil
	}
	first, _ := Parse(Key(from))
	last, _ := Parse(Key(to))
	out := make([]string, 0, last-first+1)
	for y := first; y <= last; y++ {
		out = append(out, fmt.Sprintf("%d/%d", y, y+1))
	}
	return out
}
