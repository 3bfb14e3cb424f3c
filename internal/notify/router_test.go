package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"cpbot/internal/core"
	"cpbot/internal/judge"
	"cpbot/internal/storage"
	"cpbot/internal/triggers"
	logx "cpbot/pkg/logx"
)

type shown struct{ id, title, body string }

type fakeChat struct {
	mu      sync.Mutex
	shown   []shown
	opened  []string
	showErr error
}

func (f *fakeChat) Show(_ context.Context, id, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.showErr != nil {
		return f.showErr
	}
	f.shown = append(f.shown, shown{id, title, body})
	return nil
}

func (f *fakeChat) OpenURL(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, url)
	return nil
}

type problems struct {
	list []judge.CFProblem
	err  error
}

func (p problems) Problems(context.Context) ([]judge.CFProblem, error) { return p.list, p.err }

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newRouter(t *testing.T, d Deps) (*Router, *fakeChat, *clock) {
	t.Helper()
	chat := &fakeChat{}
	c := &clock{t: time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)}
	if d.Store == nil {
		d.Store = storage.NewMemory()
	}
	d.Surface, d.Nav, d.Now, d.Log = chat, chat, c.now, logx.Nop()
	return New(Config{}, d), chat, c
}

func TestPresentThenClickOpensOnce(t *testing.T) {
	t.Parallel()
	r, chat, _ := newRouter(t, Deps{})
	ctx := context.Background()

	id, err := r.Present(ctx, KindDaily, r.DailyContent(ctx, true))
	require.NoError(t, err)
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	require.EqualValues(t, 7, parsed.Version())
	require.Equal(t, []shown{{id, "Daily LC Suggestion", "Time to solve one! Open today's problem set."}}, chat.shown)

	require.True(t, r.ResolveClick(ctx, id))
	require.False(t, r.ResolveClick(ctx, id))
	require.Equal(t, []string{LeetCodeProblemset}, chat.opened)
}

func TestClickOnUnknownIDIsNoop(t *testing.T) {
	t.Parallel()
	r, chat, _ := newRouter(t, Deps{})
	require.False(t, r.ResolveClick(context.Background(), "nope"))
	require.Empty(t, chat.opened)
}

func TestFailedShowLeavesNoBinding(t *testing.T) {
	t.Parallel()
	r, chat, _ := newRouter(t, Deps{})
	chat.showErr = errors.New("telegram down")
	ctx := context.Background()

	_, err := r.Present(ctx, KindDaily, Content{Title: "x", URL: "https://example.com"})
	require.Error(t, err)
	pending, err := r.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestBindingsExpireAndAreCapped(t *testing.T) {
	t.Parallel()
	r, chat, c := newRouter(t, Deps{})
	r.cfg.Cap = 3
	ctx := context.Background()

	old, err := r.Present(ctx, KindDaily, Content{URL: "https://old"})
	require.NoError(t, err)
	c.t = c.t.Add(8 * 24 * time.Hour)
	require.False(t, r.ResolveClick(ctx, old))

	var ids []string
	for i := 0; i < 5; i++ {
		c.t = c.t.Add(time.Minute)
		id, err := r.Present(ctx, KindDaily, Content{URL: "https://x"})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	pending, err := r.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	require.Equal(t, ids[4], pending[0].ID)

	require.False(t, r.ResolveClick(ctx, ids[0]))
	require.True(t, r.ResolveClick(ctx, ids[4]))
	require.Equal(t, []string{"https://x"}, chat.opened)
}

func TestDailyCodeforcesContent(t *testing.T) {
	t.Parallel()
	list := []judge.CFProblem{{ContestID: 4, Index: "A", Name: "Watermelon"}, {ContestID: 71, Index: "A", Name: "Way Too Long Words"}}

	tests := []struct {
		name    string
		src     ProblemSource
		wantURL string
	}{
		{"picked problem", problems{list: list}, "https://codeforces.com/problemset/problem/71/A"},
		{"fetch error", problems{err: errors.New("timeout")}, CodeforcesProblemset},
		{"empty set", problems{}, CodeforcesProblemset},
		{"no source", nil, CodeforcesProblemset},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, _, _ := newRouter(t, Deps{Problems: tc.src})
			r.pick = func(n int) int { return n - 1 }
			got := r.DailyContent(context.Background(), false)
			require.Equal(t, "Daily CF Suggestion", got.Title)
			require.Equal(t, tc.wantURL, got.URL)
		})
	}
}

func TestContestContentUsesStoredURL(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	tr := triggers.New(st, core.Settings{}, logx.Nop())
	r, _, c := newRouter(t, Deps{Store: st, Contests: tr})
	ctx := context.Background()
	require.NoError(t, tr.PutContests(ctx, []core.Contest{
		{Site: core.SiteLeetCode, Name: "Weekly Contest 400", StartAt: c.t.Add(10 * time.Minute), URL: "https://leetcode.com/contest/weekly-contest-400"},
		{Site: core.SiteLeetCode, Name: "Biweekly 1", StartAt: c.t.Add(10 * time.Minute)},
	}, c.t))

	got := r.ContestContent(ctx, "Weekly Contest 400")
	require.Equal(t, Content{
		Title: "Contest starting soon",
		Body:  "Weekly Contest 400 starts in 10 minutes",
		URL:   "https://leetcode.com/contest/weekly-contest-400",
	}, got)

	require.Equal(t, "https://leetcode.com/contest/", r.ContestContent(ctx, "Biweekly 1").URL)
	require.Equal(t, "https://codeforces.com/contests", r.ContestContent(ctx, "Gone").URL)
}

func TestContestContentCountsDownFromStart(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		start time.Duration
		want  string
	}{
		{"full lead", 10 * time.Minute, "R starts in 10 minutes"},
		{"armed late", 3 * time.Minute, "R starts in 3 minutes"},
		{"partial minute", 90 * time.Second, "R starts in 2 minutes"},
		{"under a minute", 30 * time.Second, "R starts in 1 minute"},
		{"already due", -time.Second, "R is starting now"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			st := storage.NewMemory()
			tr := triggers.New(st, core.Settings{}, logx.Nop())
			r, _, c := newRouter(t, Deps{Store: st, Contests: tr})
			ctx := context.Background()
			require.NoError(t, tr.PutContests(ctx, []core.Contest{{Site: core.SiteCodeforces, Name: "R", StartAt: c.t.Add(tc.start)}}, c.t))
			require.Equal(t, tc.want, r.ContestContent(ctx, "R").Body)
		})
	}

	r, _, _ := newRouter(t, Deps{Store: storage.NewMemory(), Contests: triggers.New(storage.NewMemory(), core.Settings{}, logx.Nop())})
	require.Equal(t, "Gone starts in 10 minutes", r.ContestContent(context.Background(), "Gone").Body)
}

func TestPrune(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	m := map[string]Binding{
		"a": {ID: "a", CreatedAt: now.Add(-10 * 24 * time.Hour)},
		"b": {ID: "b", CreatedAt: now.Add(-3 * time.Hour)},
		"c": {ID: "c", CreatedAt: now.Add(-2 * time.Hour)},
		"d": {ID: "d", CreatedAt: now.Add(-1 * time.Hour)},
	}
	require.Equal(t, 2, prune(m, now, 7*24*time.Hour, 2))
	require.Contains(t, m, "c")
	require.Contains(t, m, "d")
}
