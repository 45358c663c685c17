package timespec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 10, 29, 14, 0, 0, 0, time.UTC)

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		spec     string
		expected time.Time
		wantErr  string
	}{
		{name: "duration", spec: "1h30m", expected: now.Add(-90 * time.Minute)},
		{name: "rfc3339", spec: "2025-10-29T13:00:00Z", expected: time.Date(2025, 10, 29, 13, 0, 0, 0, time.UTC)},
		{name: "empty", spec: "", wantErr: "empty time specification"},
		{name: "negative duration", spec: "-1h", wantErr: "must not be negative"},
		{name: "garbage", spec: "yesterday", wantErr: "invalid time specification"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.spec, now)
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tc.expected.Equal(got), "got %s", got)
		})
	}
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("2h", "1h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-2*time.Hour), r.Since)
	assert.Equal(t, now.Add(-time.Hour), r.Until)

	r, err = ParseRange("", "", now)
	require.NoError(t, err)
	assert.True(t, r.Since.IsZero())
	assert.True(t, r.Until.IsZero())

	_, err = ParseRange("1h", "2h", now)
	assert.ErrorContains(t, err, "--since must be before --until")

	_, err = ParseRange("soon", "", now)
	assert.ErrorContains(t, err, "invalid --since")

	_, err = ParseRange("", "later", now)
	assert.ErrorContains(t, err, "invalid --until")
}

func TestRangeContains(t *testing.T) {
	r := Range{Since: now.Add(-time.Hour), Until: now}

	assert.True(t, r.Contains(now.Add(-time.Hour)))
	assert.True(t, r.Contains(now.Add(-time.Minute)))
	assert.False(t, r.Contains(now))
	assert.False(t, r.Contains(now.Add(-2*time.Hour)))
	assert.True(t, Range{}.Contains(now))
}
