package timetable

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttcal/internal/model"
)

var sydneyLoc, sydneyErr = time.LoadLocation("Australia/Sydney")

// sydney returns one shared *time.Location so times built in tests compare
// equal field by field.
func sydney(t *testing.T) *time.Location {
	t.Helper()
	require.NoError(t, sydneyErr)
	return sydneyLoc
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"2 hr", 120},
		{"1 hr", 60},
		{"3 hrs", 180},
		{"1.5 hr", 90},
		{"45 min", 0},
		{"", 0},
		{"hr", 0},
		{"two hr", 0},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseDuration(tc.in))
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("09:00")
	require.NoError(t, err)
	assert.Equal(t, model.TimeOfDay{Hour: 9}, got)

	got, err = ParseTimeOfDay("14:30:15")
	require.NoError(t, err)
	assert.Equal(t, model.TimeOfDay{Hour: 14, Minute: 30, Second: 15}, got)

	for _, bad := range []string{"", "9am", "25:00", "12:00:00:00"} {
		_, err := ParseTimeOfDay(bad)
		assert.ErrorIs(t, err, ErrBadTime, bad)
	}
}

func TestParseSubjectCode(t *testing.T) {
	code, err := ParseSubjectCode("COMP3308_S1C_ND_CC")
	require.NoError(t, err)
	assert.Equal(t, "COMP3308", code)

	_, err = ParseSubjectCode("")
	assert.ErrorIs(t, err, ErrNoSubjectCode)

	_, err = ParseSubjectCode("3308COMP")
	assert.ErrorIs(t, err, ErrNoSubjectCode)
}

func TestParseDayDate(t *testing.T) {
	loc := sydney(t)

	got, err := ParseDayDate("24/2", 2024, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.February, 24, 0, 0, 0, 0, loc), got)

	got, err = ParseDayDate("07/04", 2024, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.April, 7, 0, 0, 0, 0, loc), got)
}

func TestParseDayDate_FallsBackToNextYear(t *testing.T) {
	loc := sydney(t)

	// 2023 is not a leap year; 2024 is.
	got, err := ParseDayDate("29/2", 2023, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, loc), got)
}

func TestParseDayDate_PropagatesSecondFailure(t *testing.T) {
	loc := sydney(t)

	_, err := ParseDayDate("31/4", 2024, loc)
	assert.ErrorIs(t, err, ErrBadDate)

	_, err = ParseDayDate("soon", 2024, loc)
	assert.ErrorIs(t, err, ErrBadDate)
}

func TestSplitDateRanges(t *testing.T) {
	assert.Equal(t, []string{"24/2 - 7/4", "28/4 - 2/6"}, SplitDateRanges(" 24/2 - 7/4,28/4 - 2/6 "))
	assert.Equal(t, []string{""}, SplitDateRanges(""))
}

func TestParseDateRange(t *testing.T) {
	loc := sydney(t)

	r, ok, err := ParseDateRange("24/2 - 7/4", 2024, loc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, time.February, 24, 0, 0, 0, 0, loc), r.Start)
	assert.Equal(t, time.Date(2024, time.April, 7, 0, 0, 0, 0, loc), r.End)

	_, ok, err = ParseDateRange("24/2", 2024, loc)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = ParseDateRange("1/2 - 3/4 - 5/6", 2024, loc)
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrBadDate)
}
