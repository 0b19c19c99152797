package sqlite

import "time"

// parseRFC3339 parses a stored timestamp, returning the zero time on error
// (an empty/malformed column should never abort a scan).
func parseRFC3339(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
