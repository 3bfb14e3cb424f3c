package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextAt(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("X", 3*3600)
	tests := []struct {
		name string
		now  time.Time
		h, m int
		want time.Time
	}{
		{"later today", time.Date(2026, 3, 1, 10, 0, 0, 0, loc), 20, 0, time.Date(2026, 3, 1, 20, 0, 0, 0, loc)},
		{"already passed", time.Date(2026, 3, 1, 21, 0, 0, 0, loc), 20, 0, time.Date(2026, 3, 2, 20, 0, 0, 0, loc)},
		{"exactly now", time.Date(2026, 3, 1, 20, 0, 0, 0, loc), 20, 0, time.Date(2026, 3, 2, 20, 0, 0, 0, loc)},
		{"month end", time.Date(2026, 1, 31, 23, 30, 0, 0, loc), 7, 5, time.Date(2026, 2, 1, 7, 5, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NextAt(tt.now, tt.h, tt.m, loc)
			require.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
		})
	}
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()

	h, m, err := ParseHHMM(" 07:45 ")
	require.NoError(t, err)
	require.Equal(t, 7, h)
	require.Equal(t, 45, m)

	for _, bad := range []string{"", "7", "24:00", "12:60", "ab:cd", "12:5"} {
		_, _, err := ParseHHMM(bad)
		require.Error(t, err, bad)
	}
}

func TestDayAddDaysCrossesMonths(t *testing.T) {
	t.Parallel()

	d := Day{Year: 2024, Month: time.March, Day: 1}
	require.Equal(t, "2024-02-29", d.AddDays(-1).String())
	require.Equal(t, "2024-03-02", d.AddDays(1).String())
}

func TestSettingsPatch(t *testing.T) {
	t.Parallel()

	lc := false
	tm := " 21:15 "
	s := SettingsPatch{ReminderTime: &tm, PreferLeetCode: &lc}.Apply(Settings{ReminderTime: "20:00", PreferLeetCode: true, CodeforcesHandle: "tourist"})
	require.Equal(t, Settings{ReminderTime: "21:15", PreferLeetCode: false, CodeforcesHandle: "tourist"}, s)
	require.True(t, SettingsPatch{}.Empty())

	site, err := ParseSite("CF")
	require.NoError(t, err)
	require.Equal(t, SiteCodeforces, site)
	_, err = ParseSite("atcoder")
	require.Error(t, err)
}
