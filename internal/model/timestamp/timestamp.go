// Package timestamp parses the dates accepted in request bodies, such as contract start dates.
package timestamp

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Timestamp is a time.Time that accepts a date, a date and time, or a full RFC 3339 timestamp in JSON.
type Timestamp time.Time

type format struct {
	pattern *regexp.Regexp
	layout  string
}

// formats is checked in order. Values without a zone are interpreted in UTC.
var formats = []format{
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`), time.DateOnly},
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`), "2006-01-02T15:04:05"},
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$`), time.RFC3339Nano},
}

// Parse parses a timestamp in one of the accepted formats:
//
//	2024-02-21                    - Midnight UTC on the specified date.
//	2024-02-21T01:02:03           - The specified date and time in UTC.
//	2024-02-21T01:02:03Z          - The specified date and time in UTC.
//	2024-02-01T01:02:03.5-07:00   - The specified date and time in the specified time zone.
func Parse(value string) (Timestamp, error) {
	for _, f := range formats {
		if !f.pattern.MatchString(value) {
			continue
		}
		t, err := time.ParseInLocation(f.layout, value, time.UTC)
		if err != nil {
			return Timestamp{}, err
		}
		return Timestamp(t.UTC()), nil
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp format: %s", value)
}

// Time returns the timestamp as a time.Time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// UnmarshalJSON implements json.Unmarshaler. Null and empty strings leave the timestamp unchanged.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	value := string(data)
	if value == "null" || value == `""` {
		return nil
	}

	value, err := strconv.Unquote(value)
	if err != nil {
		return fmt.Errorf("timestamps must be strings: %s", data)
	}

	parsed, err := Parse(value)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(t.Time().Format(time.RFC3339))), nil
}
