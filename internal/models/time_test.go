package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "rfc3339",
			input: "2025-06-01T10:00:05Z",
			want:  time.Date(2025, 6, 1, 10, 0, 5, 0, time.UTC),
		},
		{
			name:  "rfc3339 with offset",
			input: "2025-06-01T12:00:05+02:00",
			want:  time.Date(2025, 6, 1, 12, 0, 5, 0, time.FixedZone("", 2*3600)),
		},
		{
			name:  "naive fastapi datetime",
			input: "2025-06-01T10:00:05.123456",
			want:  time.Date(2025, 6, 1, 10, 0, 5, 123456000, time.UTC),
		},
		{
			name:  "naive without fraction",
			input: "2025-06-01T10:00:05",
			want:  time.Date(2025, 6, 1, 10, 0, 5, 0, time.UTC),
		},
		{
			name:  "empty is zero time",
			input: "",
			want:  time.Time{},
		},
		{
			name:    "garbage",
			input:   "yesterday",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTime(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want, got)
		})
	}
}

func TestMessageUnmarshal(t *testing.T) {
	raw := `{"id":"m1","role":"assistant","content":"hi","created_at":"2025-06-01T10:00:05.500000"}`

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 5, 500000000, time.UTC), msg.CreatedAt)
	assert.Equal(t, StatusConfirmed, msg.Status, "wire messages are confirmed")
}

func TestMessageUnmarshal_BadTimestamp(t *testing.T) {
	raw := `{"id":"m1","role":"user","content":"hi","created_at":"not-a-time"}`

	var msg Message
	err := json.Unmarshal([]byte(raw), &msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "m1")
}
