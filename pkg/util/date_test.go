package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	require.True(t, ok)
	assert.Equal(t, s, got.Format(time.RFC3339))
}

func TestParseTimeDateOnly(t *testing.T) {
	got, ok := ParseTime("2025-03-31")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), got)
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	require.True(t, ok)
	assert.Equal(t, ts, got.Unix())
}

func TestParseDurationDefault(t *testing.T) {
	assert.Equal(t, 90*24*time.Hour, ParseDurationDefault("90d", time.Hour))
	assert.Equal(t, 30*time.Minute, ParseDurationDefault("30m", time.Hour))
	assert.Equal(t, time.Hour, ParseDurationDefault("xd", time.Hour))
	assert.Equal(t, time.Hour, ParseDurationDefault("", time.Hour))
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, SplitCSV(" A, ,B,"))
	assert.Nil(t, SplitCSV(""))
}
