package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"cpbot/internal/core"
	"cpbot/internal/eventbus"
	"cpbot/internal/task/engine"
	logx "cpbot/pkg/logx"
)

var ErrNotStarted = errors.New("scheduler not started")

const persistTimeout = 5 * time.Second

// Arm creates or replaces the trigger with t.Name. Re-arming with the same
// due time and period is a no-op.
func (s *Service) Arm(ctx context.Context, t core.Trigger) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return errors.New("trigger name required")
	}
	if t.DueAt.IsZero() {
		return errors.New("trigger due time required")
	}
	if t.Period < 0 {
		return fmt.Errorf("trigger %s: negative period", t.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return ErrNotStarted
	}
	if cur, ok := s.live[t.Name]; ok && cur.trig.DueAt.Equal(t.DueAt) && cur.trig.Period == t.Period {
		return nil
	}
	if s.persist != nil {
		if err := s.persist.SaveTrigger(ctx, t); err != nil {
			return fmt.Errorf("persist trigger %s: %w", t.Name, err)
		}
	}
	s.armLocked(t)
	s.log.Debug("trigger armed", logx.String("name", t.Name), logx.Time("due", t.DueAt), logx.Duration("period", t.Period))
	s.bus.Publish(eventbus.Event{Type: eventbus.TriggerArmed, Data: t})
	return nil
}

// Cancel removes the trigger. Once Cancel returns the trigger cannot fire.
// It reports whether a live trigger existed.
func (s *Service) Cancel(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existed := s.clearLocked(name)
	if s.persist != nil {
		if err := s.persist.DeleteTrigger(ctx, name); err != nil {
			return existed, fmt.Errorf("delete trigger %s: %w", name, err)
		}
	}
	if existed {
		s.log.Debug("trigger cancelled", logx.String("name", name))
		s.bus.Publish(eventbus.Event{Type: eventbus.TriggerCancelled, Data: name})
	}
	return existed, nil
}

// Get returns the live trigger with name.
func (s *Service) Get(name string) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.live[name]
	if !ok {
		return Info{}, false
	}
	return s.infoLocked(a), true
}

// Armed lists live triggers ordered by next fire time.
func (s *Service) Armed() []Info {
	s.mu.Lock()
	out := make([]Info, 0, len(s.live))
	for _, a := range s.live {
		out = append(out, s.infoLocked(a))
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Next.Equal(out[j].Next) {
			return out[i].Next.Before(out[j].Next)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *Service) infoLocked(a *armed) Info {
	info := Info{Trigger: a.trig, Next: a.trig.DueAt}
	if a.trig.Period > 0 {
		info.Next = alignedSchedule{first: a.trig.DueAt, period: a.trig.Period}.Next(s.now.Now().Add(-time.Nanosecond))
	}
	return info
}

// armLocked replaces any live trigger with the same name. Call with s.mu held.
func (s *Service) armLocked(t core.Trigger) {
	s.clearLocked(t.Name)
	s.ver++
	a := &armed{trig: t, ver: s.ver}
	ver := a.ver
	name := t.Name

	if t.Period > 0 {
		a.entryID = s.c.Schedule(alignedSchedule{first: t.DueAt, period: t.Period}, cron.FuncJob(func() {
			s.fire(name, ver)
		}))
	} else {
		delay := max(t.DueAt.Sub(s.now.Now()), 0)
		a.timer = time.AfterFunc(delay, func() { s.fire(name, ver) })
	}
	s.live[name] = a
}

// clearLocked stops the runtime timer for name. Call with s.mu held.
func (s *Service) clearLocked(name string) bool {
	a, ok := s.live[name]
	if !ok {
		return false
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	if a.entryID != 0 && s.c != nil {
		s.c.Remove(a.entryID)
	}
	delete(s.live, name)
	return true
}

func (s *Service) fire(name string, ver uint64) {
	s.mu.Lock()
	a, ok := s.live[name]
	if !ok || a.ver != ver {
		s.mu.Unlock()
		return
	}
	handler := s.handler
	now := s.now.Now()

	pctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	var perr error
	if a.trig.Period == 0 {
		// Drop the definition before running so a restart cannot fire it twice.
		delete(s.live, name)
		if s.persist != nil {
			perr = s.persist.DeleteTrigger(pctx, name)
		}
	} else if s.persist != nil {
		next := a.trig
		next.DueAt = alignedSchedule{first: a.trig.DueAt, period: a.trig.Period}.Next(now)
		perr = s.persist.SaveTrigger(pctx, next)
	}
	cancel()
	fireTimeout := s.cfg.FireTimeout
	s.mu.Unlock()

	if perr != nil {
		s.log.Warn("persist fired trigger failed", logx.String("name", name), logx.Err(perr))
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TriggerFired, Time: now, Data: name})
	if handler == nil {
		s.log.Warn("trigger fired without handler", logx.String("name", name))
		return
	}

	task := engine.Task{
		Name:    "trigger:" + name,
		Timeout: fireTimeout,
		Opt:     engine.TaskOptions{Overlap: engine.OverlapSkipIfRunning, RetryMax: -1},
		Run:     func(ctx context.Context) error { return handler(ctx, name) },
	}
	if s.engine == nil {
		go func() {
			if err := task.Run(context.Background()); err != nil {
				s.log.Warn("trigger handler failed", logx.String("name", name), logx.Err(err))
			}
		}()
		return
	}
	if err := s.engine.Enqueue(task); err != nil {
		s.reportEnqueueError(name, err)
	}
}
