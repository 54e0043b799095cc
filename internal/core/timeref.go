package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timeLayouts are the absolute time formats accepted by ParseTimeRef.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimeRef parses an absolute time (RFC3339 or a 2006-01-02 date, read
// as UTC) or a duration in the past relative to now: "7d", "2w", "24h",
// "90m". "now" returns now.
func ParseTimeRef(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time reference")
	}
	if strings.EqualFold(s, "now") {
		return now.UTC(), nil
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	ago, err := parseAgo(s)
	if err != nil {
		return time.Time{}, err
	}
	return now.UTC().Add(-ago), nil
}

func parseAgo(s string) (time.Duration, error) {
	unit := s[len(s)-1]
	switch unit {
	case 'd', 'w':
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil {
			return 0, fmt.Errorf("invalid time reference %q", s)
		}
		days := n
		if unit == 'w' {
			days = 7 * n
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid time reference %q (use RFC3339, 2006-01-02, or e.g. 7d, 24h)", s)
	}
	return d, nil
}
