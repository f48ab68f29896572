package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseISODateTimeRoundTrip(t *testing.T) {
	cases := []string{
		"2015-04-01T12:34:00+02:00",
		"2015-04-01T00:00:00Z",
		"2020-12-31T23:59:59-05:00",
	}

	for _, c := range cases {
		parsed, ok := ParseISODateTime(c)
		require.True(t, ok)

		iso := DateTimeToISO(parsed, ok)
		reparsed, ok2 := ParseISODateTime(iso)
		require.True(t, ok2)

		assert.True(t, parsed.Equal(reparsed))
	}
}

func TestParseISODateTimeEmpty(t *testing.T) {
	_, ok := ParseISODateTime("")
	assert.False(t, ok)
}

func TestParseISODelay(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"PT0M", 0},
		{"PT4M", 4},
		{"PT4M29S", 4},
		{"PT4M30S", 5},
		{"PT1H5M", 65},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, ParseISODelay(c.in), "input %q", c.in)
	}
}

func TestCombineLocal(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)

	date := time.Date(2015, 4, 1, 0, 0, 0, 0, loc)
	result := CombineLocal(date, 25*time.Hour+30*time.Minute, loc)

	assert.Equal(t, 2, result.Day())
	assert.Equal(t, 1, result.Hour())
	assert.Equal(t, 30, result.Minute())
}

func TestGetServiceDate(t *testing.T) {
	loc := time.UTC

	early := time.Date(2015, 4, 2, 3, 59, 0, 0, loc)
	assert.Equal(t, time.Date(2015, 4, 1, 0, 0, 0, 0, loc), GetServiceDate(early))

	late := time.Date(2015, 4, 2, 4, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2015, 4, 2, 0, 0, 0, 0, loc), GetServiceDate(late))
}
