package adventures

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used on the wire and in forms.
const DateLayout = "2006-01-02"

// Date is the calendar day an activity happened on.
type Date struct {
	time.Time
}

// NewDate builds a Date at midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts a calendar date or an RFC 3339 timestamp. Empty input yields the zero Date.
func ParseDate(rawInput string) (Date, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return Date{}, nil
	}
	if parsed, err := time.Parse(DateLayout, trimmed); err == nil {
		return Date{Time: parsed}, nil
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, rawInput)
	}
	return NewDate(parsed.Year(), parsed.Month(), parsed.Day()), nil
}

// String renders the date using DateLayout.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MarshalJSON encodes the date as a DateLayout string.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a DateLayout or RFC 3339 string.
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
