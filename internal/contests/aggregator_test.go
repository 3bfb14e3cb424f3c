package contests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cpbot/internal/core"
	"cpbot/internal/judge"
	"cpbot/internal/storage"
	"cpbot/internal/triggers"
	logx "cpbot/pkg/logx"
)

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

type cfFeed struct {
	list []judge.CFContest
	err  error
}

func (f cfFeed) Contests(context.Context) ([]judge.CFContest, error) { return f.list, f.err }

type lcFeed struct {
	list  []judge.LCContest
	err   error
	block bool
}

func (f lcFeed) Contests(ctx context.Context) ([]judge.LCContest, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.list, f.err
}

func newSink(t *testing.T) *triggers.Store {
	t.Helper()
	return triggers.New(storage.NewMemory(), core.Settings{ReminderTime: "20:00"}, logx.Nop())
}

func TestMergeDedupesByIdentity(t *testing.T) {
	t.Parallel()
	items := []core.Contest{
		{Site: core.SiteCodeforces, Name: "X", StartAt: t0.Add(2 * time.Hour)},
		{Site: core.SiteLeetCode, Name: "Y", StartAt: t0.Add(time.Hour)},
		{Site: core.SiteCodeforces, Name: "X", StartAt: t0.Add(3 * time.Hour)},
	}
	got := Merge(items, MaxStored)
	require.Len(t, got, 2)
	require.Equal(t, "Y", got[0].Name)
	require.Equal(t, "X", got[1].Name)
	require.Equal(t, t0.Add(2*time.Hour), got[1].StartAt)
}

func TestMergeTruncatesAndBreaksTies(t *testing.T) {
	t.Parallel()
	items := []core.Contest{
		{Site: core.SiteLeetCode, Name: "B", StartAt: t0},
		{Site: core.SiteCodeforces, Name: "Z", StartAt: t0},
		{Site: core.SiteLeetCode, Name: "A", StartAt: t0},
		{Site: core.SiteLeetCode, Name: "Late", StartAt: t0.Add(time.Hour)},
		{Site: core.SiteLeetCode, Name: "", StartAt: t0},
	}
	got := Merge(items, MaxStored)
	require.Len(t, got, 3)
	require.Equal(t, []string{"Z", "A", "B"}, []string{got[0].Name, got[1].Name, got[2].Name})
	require.Len(t, Merge(items, 0), 4)
}

func TestFromCodeforcesKeepsUpcoming(t *testing.T) {
	t.Parallel()
	got := FromCodeforces([]judge.CFContest{
		{ID: 10, Name: " Div. 2 ", Phase: "BEFORE", StartTimeSeconds: t0.Unix()},
		{ID: 9, Name: "Old", Phase: "FINISHED", StartTimeSeconds: t0.Unix() - 100},
		{ID: 8, Name: "Running", Phase: "CODING", StartTimeSeconds: t0.Unix() - 10},
	})
	require.Equal(t, []core.Contest{{Site: core.SiteCodeforces, Name: "Div. 2", StartAt: t0, URL: "https://codeforces.com/contests/10"}}, got)
}

func TestMergeFeeds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cf   []judge.CFContest
		lc   []judge.LCContest
		want []string
	}{
		{
			name: "leetcode earlier than codeforces",
			cf:   []judge.CFContest{{ID: 1, Name: "Div2", StartTimeSeconds: 1000, Phase: "BEFORE"}},
			lc:   []judge.LCContest{{Name: "Weekly1", StartTime: "1970-01-01T00:00:02Z", URL: "u"}},
			want: []string{"Weekly1", "Div2"},
		},
		{
			name: "finished and malformed entries dropped",
			cf: []judge.CFContest{
				{ID: 1, Name: "Div2", StartTimeSeconds: 1000, Phase: "BEFORE"},
				{ID: 2, Name: "Div1", StartTimeSeconds: 10, Phase: "FINISHED"},
			},
			lc:   []judge.LCContest{{Name: "Biweekly", StartTime: "soon"}},
			want: []string{"Div2"},
		},
		{name: "both empty", want: []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			items := append(FromCodeforces(tc.cf), FromLeetCode(tc.lc, logx.Nop())...)
			got := Merge(items, MaxStored)
			names := make([]string, 0, len(got))
			for _, c := range got {
				names = append(names, c.Name)
			}
			require.Equal(t, tc.want, names)
		})
	}
}

func TestRefreshIsolatesFailingFeed(t *testing.T) {
	t.Parallel()
	sink := newSink(t)
	a := New(
		cfFeed{list: []judge.CFContest{
			{ID: 1, Name: "CF 1", Phase: "BEFORE", StartTimeSeconds: t0.Add(time.Hour).Unix()},
			{ID: 2, Name: "CF 2", Phase: "BEFORE", StartTimeSeconds: t0.Add(2 * time.Hour).Unix()},
		}},
		lcFeed{err: errors.New("feed down")},
		sink, time.Second, func() time.Time { return t0 }, nil, logx.Nop(),
	)

	got, err := a.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	stored, err := a.Contests(context.Background())
	require.NoError(t, err)
	require.Equal(t, got, stored.Contests)
	require.Equal(t, t0, stored.RefreshedAt)
}

func TestRefreshBoundsSlowFeed(t *testing.T) {
	t.Parallel()
	a := New(
		cfFeed{list: []judge.CFContest{{ID: 1, Name: "CF 1", Phase: "BEFORE", StartTimeSeconds: t0.Unix()}}},
		lcFeed{block: true},
		newSink(t), 50*time.Millisecond, nil, nil, logx.Nop(),
	)
	start := time.Now()
	got, err := a.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestRefreshBothFeedsEmptyStoresEmptyList(t *testing.T) {
	t.Parallel()
	sink := newSink(t)
	require.NoError(t, sink.PutContests(context.Background(), []core.Contest{{Site: core.SiteLeetCode, Name: "stale", StartAt: t0}}, t0))

	a := New(cfFeed{err: errors.New("x")}, lcFeed{err: errors.New("y")}, sink, time.Second, nil, nil, logx.Nop())
	got, err := a.Refresh(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)

	stored, err := sink.Contests(context.Background())
	require.NoError(t, err)
	require.Empty(t, stored.Contests)
}

type failingSink struct{}

func (*failingSink) PutContests(context.Context, []core.Contest, time.Time) error {
	return errors.New("disk full")
}
func (*failingSink) Contests(context.Context) (triggers.ContestList, error) {
	return triggers.ContestList{}, nil
}

func TestRefreshReportsWriteFailure(t *testing.T) {
	t.Parallel()
	a := New(cfFeed{}, lcFeed{}, &failingSink{}, time.Second, nil, nil, logx.Nop())
	_, err := a.Refresh(context.Background())
	require.ErrorContains(t, err, "disk full")
}
