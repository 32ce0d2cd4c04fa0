package types

import (
	"fmt"
	"strings"
	"time"
)

// Interval is the bar granularity. Minute intervals are written as their
// length in minutes; daily and longer use a single letter.
type Interval string

const (
	OneMinute      Interval = "1"
	ThreeMinutes   Interval = "3"
	FiveMinutes    Interval = "5"
	FifteenMinutes Interval = "15"
	ThirtyMinutes  Interval = "30"
	Hour           Interval = "60"
	TwoHours       Interval = "120"
	FourHours      Interval = "240"
	Day            Interval = "D"
	Week           Interval = "W"
	Month          Interval = "M"
)

// Month has no fixed length and reports zero.
var intervalLength = map[Interval]time.Duration{
	OneMinute:      time.Minute,
	ThreeMinutes:   3 * time.Minute,
	FiveMinutes:    5 * time.Minute,
	FifteenMinutes: 15 * time.Minute,
	ThirtyMinutes:  30 * time.Minute,
	Hour:           time.Hour,
	TwoHours:       2 * time.Hour,
	FourHours:      4 * time.Hour,
	Day:            24 * time.Hour,
	Week:           7 * 24 * time.Hour,
	Month:          0,
}

// ParseInterval resolves a config value such as "D" or "15" into an
// Interval. Letters are case-insensitive and an empty string means daily.
func ParseInterval(s string) (Interval, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Day, nil
	}
	iv := Interval(s)
	if _, ok := intervalLength[iv]; !ok {
		return "", fmt.Errorf("unknown interval %q", s)
	}
	return iv, nil
}

// Duration is the nominal bar length.
func (i Interval) Duration() time.Duration {
	return intervalLength[i]
}

// Daily reports whether bars of the interval are keyed by calendar date.
func (i Interval) Daily() bool {
	switch i {
	case Day, Week, Month:
		return true
	}
	return false
}
