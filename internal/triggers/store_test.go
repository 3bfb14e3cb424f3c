package triggers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cpbot/internal/core"
	"cpbot/internal/storage"
	logx "cpbot/pkg/logx"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	st := storage.NewMemory()
	t.Cleanup(func() { _ = st.Close() })
	return New(st, core.Settings{ReminderTime: "20:00", PreferLeetCode: true}, logx.Nop())
}

func ptr[T any](v T) *T { return &v }

func TestSettingsDefaultsAndPatch(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	got, err := s.Settings(ctx)
	require.NoError(t, err)
	require.Equal(t, core.Settings{ReminderTime: "20:00", PreferLeetCode: true}, got)

	got, err = s.UpdateSettings(ctx, core.SettingsPatch{PreferLeetCode: ptr(false)})
	require.NoError(t, err)
	require.Equal(t, "20:00", got.ReminderTime)
	require.False(t, got.PreferLeetCode)

	got, err = s.UpdateSettings(ctx, core.SettingsPatch{ReminderTime: ptr("07:30"), CodeforcesHandle: ptr(" tourist ")})
	require.NoError(t, err)
	require.Equal(t, core.Settings{ReminderTime: "07:30", CodeforcesHandle: "tourist"}, got)

	_, err = s.UpdateSettings(ctx, core.SettingsPatch{ReminderTime: ptr("25:00")})
	require.Error(t, err)

	got, err = s.Settings(ctx)
	require.NoError(t, err)
	require.Equal(t, "07:30", got.ReminderTime)
}

func TestTriggerPersistence(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveTrigger(ctx, core.Trigger{Name: "dailyReminder", DueAt: now.Add(8 * time.Hour), Period: 24 * time.Hour}))
	require.NoError(t, s.SaveTrigger(ctx, core.Trigger{Name: "contest-A", DueAt: now.Add(time.Hour)}))
	require.NoError(t, s.SaveTrigger(ctx, core.Trigger{Name: "contest-A", DueAt: now.Add(2 * time.Hour)}))

	list, err := s.LoadTriggers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "contest-A", list[0].Name)
	require.True(t, list[0].DueAt.Equal(now.Add(2*time.Hour)))
	require.Equal(t, 24*time.Hour, list[1].Period)

	require.NoError(t, s.DeleteTrigger(ctx, "contest-A"))
	require.NoError(t, s.DeleteTrigger(ctx, "missing"))
	list, err = s.LoadTriggers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestContestsReplacedWholesale(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	empty, err := s.Contests(ctx)
	require.NoError(t, err)
	require.Empty(t, empty.Contests)

	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	first := []core.Contest{{Site: core.SiteCodeforces, Name: "Round 1", StartAt: at.Add(time.Hour)}}
	require.NoError(t, s.PutContests(ctx, first, at))
	require.NoError(t, s.PutContests(ctx, nil, at.Add(time.Minute)))

	got, err := s.Contests(ctx)
	require.NoError(t, err)
	require.Empty(t, got.Contests)
	require.True(t, got.RefreshedAt.Equal(at.Add(time.Minute)))
}

func TestUpdateSerializesWriters(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := Update(ctx, s.Backend(), s.Locks(), storage.ScopeLocal, "counter", func(n *int) error {
				*n++
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	var n int
	found, err := storage.GetJSON(ctx, s.Backend(), storage.ScopeLocal, "counter", &n)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 50, n)
	require.Zero(t, s.Locks().held())
}

func TestUpdateAbortsOnError(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := Update(ctx, s.Backend(), s.Locks(), storage.ScopeLocal, "k", func(v *string) error {
		*v = "written"
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Backend().Get(ctx, storage.ScopeLocal, "k")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
