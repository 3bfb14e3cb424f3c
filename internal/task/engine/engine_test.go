package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cpbot/internal/eventbus"
	logx "cpbot/pkg/logx"
)

func startEngine(t *testing.T, cfg Config) (*Service, eventbus.Bus) {
	t.Helper()
	bus := eventbus.New()
	s := New(cfg, logx.Nop(), bus)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s, bus
}

func waitEvent(t *testing.T, ch <-chan eventbus.Event, typ string) eventbus.Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
		}
	}
}

func TestRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	s, bus := startEngine(t, Config{Workers: 1, RetryMax: 3})
	events, unsub := bus.Subscribe(16)
	defer unsub()

	var calls atomic.Int32
	require.NoError(t, s.Enqueue(Task{
		Name: "flaky",
		Opt:  TaskOptions{RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond},
		Run: func(ctx context.Context) error {
			if calls.Add(1) < 3 {
				return errors.New("try again")
			}
			return nil
		},
	}))

	ev := waitEvent(t, events, "task.finished")
	require.Equal(t, 3, ev.Data.(TaskEvent).Attempts)
}

func TestNoRetryStopsImmediately(t *testing.T) {
	t.Parallel()

	s, bus := startEngine(t, Config{Workers: 1, RetryMax: 5})
	events, unsub := bus.Subscribe(16)
	defer unsub()

	var calls atomic.Int32
	require.NoError(t, s.Enqueue(Task{
		Name: "permanent",
		Run: func(ctx context.Context) error {
			calls.Add(1)
			return NoRetry(errors.New("bad input"))
		},
	}))

	ev := waitEvent(t, events, "task.failed")
	require.Equal(t, "bad input", ev.Data.(TaskEvent).Error)
	require.Equal(t, int32(1), calls.Load())
}

func TestOverlapSkipWhileRunning(t *testing.T) {
	t.Parallel()

	s, _ := startEngine(t, Config{Workers: 2})
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Enqueue(Task{Name: "contestRefresh", Run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started

	err := s.Enqueue(Task{Name: "contestRefresh", Run: func(ctx context.Context) error { return nil }})
	require.ErrorIs(t, err, ErrOverlapSkip)

	require.NoError(t, s.Enqueue(Task{Name: "other", Opt: TaskOptions{Overlap: OverlapAllow}, Run: func(ctx context.Context) error { return nil }}))
	close(release)
}

func TestTimeoutAndPanicAreFailures(t *testing.T) {
	t.Parallel()

	s, bus := startEngine(t, Config{Workers: 1})
	events, unsub := bus.Subscribe(16)
	defer unsub()

	require.NoError(t, s.Enqueue(Task{Name: "slow", Timeout: 10 * time.Millisecond, Opt: TaskOptions{RetryMax: -1}, Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}))
	ev := waitEvent(t, events, "task.failed")
	require.Contains(t, ev.Data.(TaskEvent).Error, "deadline exceeded")

	require.NoError(t, s.Enqueue(Task{Name: "boom", Opt: TaskOptions{RetryMax: -1}, Run: func(ctx context.Context) error {
		panic("kaput")
	}}))
	ev = waitEvent(t, events, "task.failed")
	require.Contains(t, ev.Data.(TaskEvent).Error, "panic: kaput")
}

func TestEnqueueAfterStop(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop(), nil)
	err := s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }})
	require.ErrorIs(t, err, ErrStopped)
	require.False(t, s.Snapshot().Running)
}
