package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var timeLeftPart = regexp.MustCompile(`(\d+)\s*(d|day|days|h|hr|hrs|hour|hours|m|min|mins|minute|minutes|s|sec|secs|second|seconds)\b`)

// ParseTimeLeft reads marketplace countdown text such as "1d 4h left" or "12m 30s".
func ParseTimeLeft(s string) (time.Duration, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	matches := timeLeftPart.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return 0, false
	}
	var total time.Duration
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		total += time.Duration(n) * unit(m[2])
	}
	return total, true
}

func unit(u string) time.Duration {
	switch u[0] {
	case 'd':
		return 24 * time.Hour
	case 'h':
		return time.Hour
	case 'm':
		return time.Minute
	default:
		return time.Second
	}
}
