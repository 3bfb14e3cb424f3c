package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cpbot/internal/core"
	"cpbot/internal/storage"
	logx "cpbot/pkg/logx"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newLedger(t *testing.T, at time.Time) (*Ledger, *clock) {
	t.Helper()
	c := &clock{t: at}
	return New(storage.NewMemory(), nil, time.UTC, c.now, nil, logx.Nop()), c
}

func ptr[T any](v T) *T { return &v }

var day0 = time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)

func TestComputeStreak(t *testing.T) {
	t.Parallel()
	today := core.DayOf(day0, time.UTC)
	set := func(offsets ...int) map[core.Day]struct{} {
		m := map[core.Day]struct{}{}
		for _, o := range offsets {
			m[today.AddDays(o)] = struct{}{}
		}
		return m
	}

	tests := []struct {
		name string
		days map[core.Day]struct{}
		want int
	}{
		{"three in a row", set(0, -1, -2), 3},
		{"missing today", set(-1, -2), 0},
		{"empty", set(), 0},
		{"gap", set(0, -1, -3), 2},
		{"future day ignored", set(1, 0), 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, ComputeStreak(tc.days, today))
		})
	}
}

func TestStreakAcrossMonthBoundary(t *testing.T) {
	t.Parallel()
	today := core.Day{Year: 2024, Month: time.March, Day: 1}
	days := map[core.Day]struct{}{}
	for _, d := range []core.Day{today, {Year: 2024, Month: time.February, Day: 29}, {Year: 2024, Month: time.February, Day: 28}} {
		days[d] = struct{}{}
	}
	require.Equal(t, 3, ComputeStreak(days, today))
}

func TestMarkSolvedTwice(t *testing.T) {
	t.Parallel()
	l, c := newLedger(t, day0)
	ctx := context.Background()

	_, err := l.MarkSolved(ctx, "two-sum", core.SiteLeetCode, map[string]string{"lang": "go"})
	require.NoError(t, err)
	c.t = c.t.Add(time.Hour)
	r, err := l.MarkSolved(ctx, "two-sum", core.SiteLeetCode, nil)
	require.NoError(t, err)

	require.True(t, r.Solved)
	require.Len(t, r.Solves, 2)
	require.Equal(t, "go", r.Solves[0].Meta["lang"])
	require.True(t, r.Solves[1].At.Equal(day0.Add(time.Hour)))
}

func TestUpsertNeverTouchesSolves(t *testing.T) {
	t.Parallel()
	l, _ := newLedger(t, day0)
	ctx := context.Background()

	_, err := l.MarkSolved(ctx, "4-A", core.SiteCodeforces, nil)
	require.NoError(t, err)

	r, err := l.Upsert(ctx, "4-A", Patch{Title: ptr("Watermelon"), Notes: ptr("parity")})
	require.NoError(t, err)
	require.True(t, r.Solved)
	require.Len(t, r.Solves, 1)
	require.Equal(t, core.SiteCodeforces, r.Site)

	r, err = l.Upsert(ctx, "4-A", Patch{Difficulty: ptr("800")})
	require.NoError(t, err)
	require.Equal(t, "Watermelon", r.Title)
	require.Equal(t, "800", r.Difficulty)

	fresh, err := l.Upsert(ctx, "new", Patch{Site: ptr(core.SiteLeetCode)})
	require.NoError(t, err)
	require.False(t, fresh.Solved)
	require.Empty(t, fresh.Solves)

	_, err = l.Upsert(ctx, "  ", Patch{})
	require.ErrorIs(t, err, ErrInvalidSlug)
}

func TestStats(t *testing.T) {
	t.Parallel()
	l, c := newLedger(t, day0.Add(-48*time.Hour))
	ctx := context.Background()

	for _, step := range []struct {
		slug string
		site core.Site
	}{
		{"a", core.SiteLeetCode},
		{"b", core.SiteLeetCode},
		{"c", core.SiteCodeforces},
	} {
		_, err := l.MarkSolved(ctx, step.slug, step.site, nil)
		require.NoError(t, err)
		c.t = c.t.Add(24 * time.Hour)
	}
	c.t = day0
	_, err := l.Upsert(ctx, "todo", Patch{Site: ptr(core.SiteCodeforces)})
	require.NoError(t, err)

	st, err := l.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, st.Tracked)
	require.Equal(t, 3, st.Solved)
	require.Equal(t, map[core.Site]int{core.SiteLeetCode: 2, core.SiteCodeforces: 2}, st.PerSite)
	require.Equal(t, map[core.Site]int{core.SiteLeetCode: 2, core.SiteCodeforces: 1}, st.PerSiteSolved)
	require.Equal(t, 3, st.Streak)

	c.t = c.t.Add(24 * time.Hour)
	st, err = l.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, st.Streak)
}

func TestExportImportRoundTrip(t *testing.T) {
	t.Parallel()
	l, _ := newLedger(t, day0)
	ctx := context.Background()

	_, err := l.MarkSolved(ctx, "two-sum", core.SiteLeetCode, nil)
	require.NoError(t, err)
	data, err := l.Export(ctx)
	require.NoError(t, err)
	require.Contains(t, string(data), "\n  \"two-sum\"")

	other, _ := newLedger(t, day0)
	_, err = other.MarkSolved(ctx, "to-be-replaced", core.SiteCodeforces, nil)
	require.NoError(t, err)
	n, err := other.Import(ctx, data)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	all, err := other.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.True(t, all["two-sum"].Solved)
}

func TestImportRejectsBadShape(t *testing.T) {
	t.Parallel()
	l, _ := newLedger(t, day0)
	ctx := context.Background()
	_, err := l.MarkSolved(ctx, "keep", core.SiteLeetCode, nil)
	require.NoError(t, err)

	for _, in := range []string{`[1,2]`, `null`, `{"x": 5}`, `not json`} {
		_, err := l.Import(ctx, []byte(in))
		require.Error(t, err, in)
	}
	_, ok, err := l.Get(ctx, "keep")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDedupe(t *testing.T) {
	t.Parallel()
	in := map[string]ProblemRecord{
		"a": {Slug: "a", Solved: true, Solves: []SolveEvent{
			{At: day0.Add(2 * time.Hour)},
			{At: day0},
			{At: day0.Add(24 * time.Hour)},
			{At: day0},
		}},
	}

	byDay := Dedupe(in, ByDay, time.UTC)
	require.Len(t, byDay["a"].Solves, 2)
	require.True(t, byDay["a"].Solves[0].At.Equal(day0))

	byInstant := Dedupe(in, ByInstant, time.UTC)
	require.Len(t, byInstant["a"].Solves, 3)
	require.Len(t, in["a"].Solves, 4)
}
