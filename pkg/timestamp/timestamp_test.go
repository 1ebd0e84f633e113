package timestamp

import (
	"errors"
	"testing"
	"time"

	errs "fasearch/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

func TestNormalizeRelative(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.Local)
	n := NewNormalizer(testingclock.NewFakeClock(now))

	tests := []struct {
		input    string
		expected time.Time
	}{
		{"30m", now.Add(-30 * time.Minute)},
		{"2h", now.Add(-2 * time.Hour)},
		{"14d", now.Add(-14 * 24 * time.Hour)},
		{"14D", now.Add(-14 * 24 * time.Hour)},
		{"1.5h", now.Add(-90 * time.Minute)},
		{"0m", now},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := n.Normalize(tt.input)
			require.NoError(t, err)
			assert.Len(t, got, 12)
			assert.Equal(t, tt.expected.Format("200601021504"), got)
			assert.Less(t, got, "202403101201")
		})
	}
}

func TestNormalizeRelativeUsesWallClock(t *testing.T) {
	got, err := Normalize("30m")
	require.NoError(t, err)

	parsed, err := time.ParseInLocation(MinuteLayout, got, time.Local)
	require.NoError(t, err)
	offset := time.Since(parsed)
	assert.True(t, offset >= 30*time.Minute && offset < 32*time.Minute, "offset was %v", offset)
}

func TestNormalizeAbsolute(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"already normalized", "201310180600", "201310180600"},
		{"sixteen characters", "2013-10-18 06:00", "201310180600"},
		{"iso with zone", "2013-10-18T06:00:00.000Z", "201310180600"},
		{"iso without millis", "2013-10-18T06:00:00Z", "201310180600"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeUnrecognized(t *testing.T) {
	for _, input := range []string{"not-a-date", "", "2013", "20131018060", "xh", "-3d", "tomorrow"} {
		t.Run(input, func(t *testing.T) {
			_, err := Normalize(input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errs.ErrUnrecognizedTimestamp), "got %v", err)
		})
	}
}

func TestParseRecordTime(t *testing.T) {
	bucket, err := ParseRecordTime("201310180600")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2013, 10, 18, 6, 0, 0, 0, time.UTC), bucket)

	posted, err := ParseRecordTime("2013-11-15T17:16:42.000Z")
	require.NoError(t, err)
	assert.Equal(t, "20131115171642", FormatSecond(posted))

	_, err = ParseRecordTime("yesterday-ish")
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "last 30 days", Describe("", ""))
	assert.Equal(t, "30 days ago to 201310180600", Describe("", "201310180600"))
	assert.Equal(t, "201310180600 to now", Describe("201310180600", ""))
	assert.Equal(t, "201310180600 to 201310190600", Describe("201310180600", "201310190600"))
}
