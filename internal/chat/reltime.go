package chat

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var relTimePattern = regexp.MustCompile(`(?i)^(\d+)\s*(m|min|mins|minute|minutes|h|hr|hrs|hour|hours|d|day|days|w|wk|wks|week|weeks|y|yr|yrs|year|years)$`)

var unitMinutes = map[byte]int{
	'm': 1,
	'h': 60,
	'd': 60 * 24,
	'w': 60 * 24 * 7,
	'y': 60 * 24 * 365,
}

// ConvertTimeToMinutes turns a relative time label from the chat list
// ("3m", "2h", "1d", "1w", "5 mins") into minutes. "now", anything it
// cannot parse and results past math.MaxInt32 yield 0.
func ConvertTimeToMinutes(label string) int {
	n, ok := parseRelativeTime(label)
	if !ok {
		return 0
	}
	return n
}

// IsRelativeTime reports whether label is a relative time this package
// understands, including "now".
func IsRelativeTime(label string) bool {
	_, ok := parseRelativeTime(label)
	return ok
}

func parseRelativeTime(label string) (int, bool) {
	s := strings.TrimSpace(strings.ToLower(label))
	s = strings.TrimSuffix(s, " ago")
	if s == "now" || s == "just now" || s == "active now" {
		return 0, true
	}
	m := relTimePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	unit := unitMinutes[m[2][0]]
	if n > math.MaxInt32/unit {
		return 0, false
	}
	return n * unit, true
}
