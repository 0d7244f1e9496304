package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// timeFormats covers the timestamp shapes the backend emits. FastAPI
// serializes naive datetimes without a zone suffix, so RFC 3339 alone is
// not enough.
var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// ParseTime parses a backend timestamp. Zone-less values are treated as UTC.
// An empty string yields the zero time without error.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// UnmarshalJSON decodes a message, accepting all backend timestamp shapes.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	aux := struct {
		*alias
		CreatedAt string `json:"created_at"`
	}{alias: (*alias)(m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	t, err := ParseTime(aux.CreatedAt)
	if err != nil {
		return fmt.Errorf("message %s: %w", m.ID, err)
	}
	m.CreatedAt = t
	return nil
}

// UnmarshalJSON decodes a user record, accepting all backend timestamp shapes.
func (u *User) UnmarshalJSON(data []byte) error {
	type alias User
	aux := struct {
		*alias
		CreatedAt string `json:"created_at"`
	}{alias: (*alias)(u)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	t, err := ParseTime(aux.CreatedAt)
	if err != nil {
		return fmt.Errorf("user %s: %w", u.ID, err)
	}
	u.CreatedAt = t
	return nil
}
