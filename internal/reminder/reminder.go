// Package reminder computes trigger due times and arms them on the timer.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cpbot/internal/core"
	"cpbot/internal/triggers"
	logx "cpbot/pkg/logx"
)

// Trigger names.
const (
	DailyTrigger          = "dailyReminder"
	ContestTriggerPrefix  = "contest-"
	ContestRefreshTrigger = "contestRefresh"
)

var (
	ErrAlreadyStarted = errors.New("contest already started")
	ErrUnknownTrigger = errors.New("unknown trigger")
)

// Timer arms and cancels named triggers. Arming an existing name replaces it.
type Timer interface {
	Arm(ctx context.Context, t core.Trigger) error
	Cancel(ctx context.Context, name string) (bool, error)
}

// SettingsSource reads the current reminder settings.
type SettingsSource interface {
	Settings(ctx context.Context) (core.Settings, error)
}

type Config struct {
	Location        *time.Location
	ContestLead     time.Duration
	RefreshInterval time.Duration
	// Locks serializes re-arming per trigger name. Share the trigger
	// store's table so settings writers and re-armers agree on keys.
	Locks *triggers.KeyedMutex
}

type Scheduler struct {
	timer    Timer
	settings SettingsSource
	cfg      Config
	now      core.Clock
	log      logx.Logger
}

func New(cfg Config, timer Timer, settings SettingsSource, now core.Clock, log logx.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.ContestLead <= 0 {
		cfg.ContestLead = 10 * time.Minute
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 6 * time.Hour
	}
	if cfg.Locks == nil {
		cfg.Locks = triggers.NewKeyedMutex()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		timer:    timer,
		settings: settings,
		cfg:      cfg,
		now:      now,
		log:      log.With(logx.String("comp", "reminder")),
	}
}

func (s *Scheduler) lock(name string) func() {
	return s.cfg.Locks.Lock("trigger/" + name)
}

// ScheduleDaily arms the daily reminder at the next occurrence of the
// configured wall-clock time. Calling it repeatedly leaves one trigger.
// The settings read and the arm happen under the trigger's lock, so the
// last caller always arms from the newest settings.
func (s *Scheduler) ScheduleDaily(ctx context.Context) (time.Time, error) {
	unlock := s.lock(DailyTrigger)
	defer unlock()

	set, err := s.settings.Settings(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("read settings: %w", err)
	}
	h, m, err := core.ParseHHMM(set.ReminderTime)
	if err != nil {
		return time.Time{}, err
	}
	due := core.NextAt(s.now.Now(), h, m, s.cfg.Location)
	if err := s.timer.Arm(ctx, core.Trigger{Name: DailyTrigger, DueAt: due, Period: 24 * time.Hour}); err != nil {
		return time.Time{}, fmt.Errorf("arm daily reminder: %w", err)
	}
	s.log.Debug("daily reminder armed", logx.Time("due", due))
	return due, nil
}

// ScheduleContest arms a one-shot reminder ContestLead before c starts.
// A contest that already started is rejected. When the lead mark has passed
// but the contest has not started, the reminder is due immediately.
func (s *Scheduler) ScheduleContest(ctx context.Context, c core.Contest) (time.Time, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return time.Time{}, errors.New("contest name required")
	}
	now := s.now.Now()
	if !c.StartAt.After(now) {
		return time.Time{}, fmt.Errorf("%s: %w", name, ErrAlreadyStarted)
	}
	due := c.StartAt.Add(-s.cfg.ContestLead)
	if due.Before(now) {
		due = now
	}
	unlock := s.lock(ContestTriggerPrefix + name)
	defer unlock()
	if err := s.timer.Arm(ctx, core.Trigger{Name: ContestTriggerPrefix + name, DueAt: due}); err != nil {
		return time.Time{}, fmt.Errorf("arm contest reminder: %w", err)
	}
	s.log.Debug("contest reminder armed", logx.String("contest", name), logx.Time("due", due))
	return due, nil
}

// ScheduleRefresh arms the periodic contest refresh, first due one interval
// from now.
func (s *Scheduler) ScheduleRefresh(ctx context.Context) error {
	due := s.now.Now().Add(s.cfg.RefreshInterval)
	return s.timer.Arm(ctx, core.Trigger{Name: ContestRefreshTrigger, DueAt: due, Period: s.cfg.RefreshInterval})
}

// CancelContest removes a pending contest reminder.
func (s *Scheduler) CancelContest(ctx context.Context, name string) (bool, error) {
	trigger := ContestTriggerPrefix + strings.TrimSpace(name)
	unlock := s.lock(trigger)
	defer unlock()
	return s.timer.Cancel(ctx, trigger)
}

// FireKind says what a fired trigger means.
type FireKind int

const (
	FireUnknown FireKind = iota
	FireDaily
	FireContest
	FireRefresh
)

func (k FireKind) String() string {
	switch k {
	case FireDaily:
		return "daily"
	case FireContest:
		return "contest"
	case FireRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Fire is a classified trigger. Contest is set for FireContest.
type Fire struct {
	Kind    FireKind
	Contest string
}

// Classify maps a trigger name to its meaning.
func Classify(name string) Fire {
	switch {
	case name == DailyTrigger:
		return Fire{Kind: FireDaily}
	case name == ContestRefreshTrigger:
		return Fire{Kind: FireRefresh}
	case strings.HasPrefix(name, ContestTriggerPrefix) && len(name) > len(ContestTriggerPrefix):
		return Fire{Kind: FireContest, Contest: strings.TrimPrefix(name, ContestTriggerPrefix)}
	default:
		return Fire{Kind: FireUnknown}
	}
}
