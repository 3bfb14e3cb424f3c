package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cpbot/internal/core"
	"cpbot/internal/eventbus"
	"cpbot/internal/task/engine"
	logx "cpbot/pkg/logx"
)

type memPersist struct {
	mu sync.Mutex
	m  map[string]core.Trigger
}

func newMemPersist(seed ...core.Trigger) *memPersist {
	p := &memPersist{m: map[string]core.Trigger{}}
	for _, t := range seed {
		p.m[t.Name] = t
	}
	return p
}

func (p *memPersist) SaveTrigger(_ context.Context, t core.Trigger) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[t.Name] = t
	return nil
}

func (p *memPersist) DeleteTrigger(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, name)
	return nil
}

func (p *memPersist) LoadTriggers(context.Context) ([]core.Trigger, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.Trigger, 0, len(p.m))
	for _, t := range p.m {
		out = append(out, t)
	}
	return out, nil
}

func (p *memPersist) get(name string) (core.Trigger, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.m[name]
	return t, ok
}

type fixture struct {
	svc     *Service
	persist *memPersist
	fired   chan string
}

func start(t *testing.T, persist *memPersist) fixture {
	t.Helper()
	bus := eventbus.New()
	eng := engine.New(engine.Config{Workers: 1, QueueSize: 8}, logx.Nop(), bus)
	eng.Start(context.Background())

	fired := make(chan string, 8)
	svc := New(Config{Location: time.UTC}, eng, persist, logx.Nop(), bus)
	svc.SetHandler(func(_ context.Context, name string) error {
		fired <- name
		return nil
	})
	require.NoError(t, svc.Start(context.Background()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		svc.Stop(ctx)
		eng.Stop(ctx)
	})
	return fixture{svc: svc, persist: persist, fired: fired}
}

func expectFire(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		require.Equal(t, want, got)
	case <-time.After(3 * time.Second):
		t.Fatalf("trigger %s did not fire", want)
	}
}

func expectQuiet(t *testing.T, ch <-chan string, d time.Duration) {
	t.Helper()
	select {
	case got := <-ch:
		t.Fatalf("unexpected fire %s", got)
	case <-time.After(d):
	}
}

func TestOneShotFiresOnceAndIsForgotten(t *testing.T) {
	t.Parallel()
	f := start(t, newMemPersist())

	require.NoError(t, f.svc.Arm(context.Background(), core.Trigger{Name: "contest-A", DueAt: time.Now().Add(50 * time.Millisecond)}))
	_, persisted := f.persist.get("contest-A")
	require.True(t, persisted)

	expectFire(t, f.fired, "contest-A")
	expectQuiet(t, f.fired, 150*time.Millisecond)

	_, persisted = f.persist.get("contest-A")
	require.False(t, persisted)
	_, live := f.svc.Get("contest-A")
	require.False(t, live)
}

func TestCancelPreventsFire(t *testing.T) {
	t.Parallel()
	f := start(t, newMemPersist())
	ctx := context.Background()

	require.NoError(t, f.svc.Arm(ctx, core.Trigger{Name: "dailyReminder", DueAt: time.Now().Add(80 * time.Millisecond)}))
	existed, err := f.svc.Cancel(ctx, "dailyReminder")
	require.NoError(t, err)
	require.True(t, existed)

	existed, err = f.svc.Cancel(ctx, "dailyReminder")
	require.NoError(t, err)
	require.False(t, existed)

	expectQuiet(t, f.fired, 200*time.Millisecond)
	_, persisted := f.persist.get("dailyReminder")
	require.False(t, persisted)
}

func TestRearmReplacesPreviousTrigger(t *testing.T) {
	t.Parallel()
	f := start(t, newMemPersist())
	ctx := context.Background()

	require.NoError(t, f.svc.Arm(ctx, core.Trigger{Name: "dailyReminder", DueAt: time.Now().Add(time.Hour), Period: 24 * time.Hour}))
	require.NoError(t, f.svc.Arm(ctx, core.Trigger{Name: "dailyReminder", DueAt: time.Now().Add(50 * time.Millisecond)}))
	require.Len(t, f.svc.Armed(), 1)

	expectFire(t, f.fired, "dailyReminder")
	expectQuiet(t, f.fired, 150*time.Millisecond)
}

func TestPeriodicFireAdvancesPersistedDueTime(t *testing.T) {
	t.Parallel()
	f := start(t, newMemPersist())

	due := time.Now().Add(50 * time.Millisecond)
	require.NoError(t, f.svc.Arm(context.Background(), core.Trigger{Name: "contestRefresh", DueAt: due, Period: time.Hour}))
	expectFire(t, f.fired, "contestRefresh")

	require.Eventually(t, func() bool {
		got, ok := f.persist.get("contestRefresh")
		return ok && got.DueAt.Equal(due.Add(time.Hour))
	}, 2*time.Second, 10*time.Millisecond)

	info, ok := f.svc.Get("contestRefresh")
	require.True(t, ok)
	require.True(t, info.Next.After(time.Now()))
}

func TestRestoreFiresOverdueOneShot(t *testing.T) {
	t.Parallel()
	persist := newMemPersist(
		core.Trigger{Name: "contest-Late", DueAt: time.Now().Add(-time.Minute)},
		core.Trigger{Name: "dailyReminder", DueAt: time.Now().Add(-time.Hour), Period: 24 * time.Hour},
	)
	f := start(t, persist)

	expectFire(t, f.fired, "contest-Late")
	expectQuiet(t, f.fired, 150*time.Millisecond)

	info, ok := f.svc.Get("dailyReminder")
	require.True(t, ok)
	require.True(t, info.Next.After(time.Now()))
}

func TestArmValidation(t *testing.T) {
	t.Parallel()
	f := start(t, newMemPersist())
	ctx := context.Background()

	require.Error(t, f.svc.Arm(ctx, core.Trigger{DueAt: time.Now()}))
	require.Error(t, f.svc.Arm(ctx, core.Trigger{Name: "x"}))
	require.Error(t, f.svc.Arm(ctx, core.Trigger{Name: "x", DueAt: time.Now(), Period: -time.Second}))

	idle := New(Config{}, nil, nil, logx.Nop(), nil)
	require.ErrorIs(t, idle.Arm(ctx, core.Trigger{Name: "x", DueAt: time.Now()}), ErrNotStarted)
}

func TestAlignedScheduleNext(t *testing.T) {
	t.Parallel()
	first := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	s := alignedSchedule{first: first, period: 24 * time.Hour}

	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"before first", first.Add(-time.Hour), first},
		{"at first", first, first.Add(24 * time.Hour)},
		{"mid period", first.Add(30 * time.Hour), first.Add(48 * time.Hour)},
		{"far future", first.Add(10*24*time.Hour + time.Minute), first.Add(11 * 24 * time.Hour)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, s.Next(tc.at))
		})
	}
}
