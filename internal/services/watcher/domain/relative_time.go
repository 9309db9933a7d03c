package domain

import (
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// relativeUnit is one recognised upstream age vocabulary entry.
type relativeUnit struct {
	match string
	// fixed is used as-is when set; otherwise the leading count is multiplied by per.
	fixed time.Duration
	per   time.Duration
	// margin is added to counted durations.
	margin time.Duration
}

// relativeUnits is checked in order; the first substring match wins. The
// listing only reports whole weeks, so week ages get a day of margin to keep
// boundary threads inside the catch-up window.
var relativeUnits = []relativeUnit{
	{match: "min", per: time.Minute},
	{match: "hr", per: time.Hour},
	{match: "Yesterday", fixed: day},
	{match: "day", per: day},
	{match: "week", per: 7 * day, margin: day},
}

// ParseRelativeAge converts an upstream relative timestamp such as "5 mins",
// "2 hrs", "Yesterday", "3 days" or "2 weeks" into an age. It returns false
// for anything it cannot read, which callers treat as the end of fresh data.
func ParseRelativeAge(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	for _, unit := range relativeUnits {
		if !strings.Contains(value, unit.match) {
			continue
		}
		if unit.fixed > 0 {
			return unit.fixed, true
		}
		count, ok := leadingCount(value)
		if !ok {
			return 0, false
		}
		return time.Duration(count)*unit.per + unit.margin, true
	}
	return 0, false
}

// leadingCount reads the first run of digits in value.
func leadingCount(value string) (int, bool) {
	start := strings.IndexAny(value, "0123456789")
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(value) && value[end] >= '0' && value[end] <= '9' {
		end++
	}
	count, err := strconv.Atoi(value[start:end])
	if err != nil {
		return 0, false
	}
	return count, true
}
