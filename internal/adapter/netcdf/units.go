package netcdf

import (
	"fmt"
	"strings"
	"time"
)

var referenceLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTimeUnits parses CF time units such as "hours since 1900-01-01 00:00:00.0".
func parseTimeUnits(units string) (time.Duration, time.Time, error) {
	word, ref, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("time units %q: expected \"<unit> since <date>\"", units)
	}
	unit, err := durationUnit(word)
	if err != nil {
		return 0, time.Time{}, err
	}

	ref = strings.TrimSpace(ref)
	ref = strings.TrimSuffix(ref, " UTC")
	for _, layout := range referenceLayouts {
		if t, err := time.Parse(layout, ref); err == nil {
			return unit, t.UTC(), nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("time units %q: unrecognised reference date", units)
}

// parseStepUnits accepts a bare unit ("hours") or CF-style "hours since ..."
// and defaults to hours when units are absent.
func parseStepUnits(units string) (time.Duration, error) {
	units = strings.TrimSpace(units)
	if units == "" {
		return time.Hour, nil
	}
	word, _, _ := strings.Cut(units, " ")
	return durationUnit(word)
}

func durationUnit(word string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(word)) {
	case "days", "day", "d":
		return 24 * time.Hour, nil
	case "hours", "hour", "hrs", "hr", "h":
		return time.Hour, nil
	case "minutes", "minute", "mins", "min":
		return time.Minute, nil
	case "seconds", "second", "secs", "sec", "s":
		return time.Second, nil
	case "milliseconds", "millisecond", "ms":
		return time.Millisecond, nil
	case "nanoseconds", "nanosecond", "ns":
		return time.Nanosecond, nil
	default:
		return 0, fmt.Errorf("unsupported time unit %q", word)
	}
}
