package fortune

import (
	"strings"
	"time"
)

// Canonical layouts for date and time inputs.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ParseDate accepts YYYY-MM-DD (single-digit month/day tolerated) and returns the
// canonical string with the parsed date.
func ParseDate(value string) (string, time.Time, error) {
	value = strings.TrimSpace(value)
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		t, err = time.Parse("2006-1-2", value)
		if err != nil {
			return "", time.Time{}, err
		}
	}
	return t.Format(DateLayout), t, nil
}

// ParseClock accepts HH:MM (single-digit hour tolerated) and returns the canonical
// string with hour and minute.
func ParseClock(value string) (string, int, int, error) {
	value = strings.TrimSpace(value)
	t, err := time.Parse(TimeLayout, value)
	if err != nil {
		t, err = time.Parse("15:4", value)
		if err != nil {
			return "", 0, 0, err
		}
	}
	return t.Format(TimeLayout), t.Hour(), t.Minute(), nil
}

// Trimmed returns the trimmed value of key.
func (r RawInput) Trimmed(key string) string {
	return strings.TrimSpace(r[key])
}

// MatchOption returns the option value equal to value, or "" when none matches.
func MatchOption(field InputField, value string) string {
	value = strings.TrimSpace(value)
	for _, o := range field.Options {
		if o.Value == value {
			return o.Value
		}
	}
	return ""
}
