package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRoomID(t *testing.T) {
	id := GenerateRoomID()
	assert.Len(t, id, 32)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		next := GenerateRoomID()
		require.False(t, seen[next], "room ids must not collide")
		seen[next] = true
	}
}

func TestGenerateID(t *testing.T) {
	id := GenerateID("track")
	assert.True(t, strings.HasPrefix(id, "track_"))
	assert.NotEqual(t, id, GenerateID("track"))
}

func TestGenerateGuestID(t *testing.T) {
	assert.True(t, strings.HasPrefix(GenerateGuestID(), "guest_"))
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  hello  ", "hello"},
		{"line\nbreak", "line\nbreak"},
		{"null\x00byte", "nullbyte"},
		{"bell\x07", "bell"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeString(tt.in))
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "lon...", TruncateString("longer text", 6))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(""))
	assert.True(t, IsEmpty("  \t\n"))
	assert.False(t, IsEmpty("x"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "1.50s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m5s", FormatDuration(2*time.Minute+5*time.Second))
}

func TestTimestampRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	parsed, err := ParseTimestamp(FormatTimestamp(now))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(now))
}
