// Package tracker glues the reminder, contest, ledger and notification
// components together and exposes the operations the chat and CLI use.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cpbot/internal/contests"
	"cpbot/internal/core"
	"cpbot/internal/ledger"
	"cpbot/internal/notify"
	"cpbot/internal/reminder"
	"cpbot/internal/triggers"
	logx "cpbot/pkg/logx"
)

var ErrNoSuchContest = errors.New("no such contest")

// SolvedCounter reports a judge-side solved count for a handle.
type SolvedCounter interface {
	SolvedCount(ctx context.Context, handle string) (int, error)
}

type Deps struct {
	Store     *triggers.Store
	Reminders *reminder.Scheduler
	Contests  *contests.Aggregator
	Ledger    *ledger.Ledger
	Notify    *notify.Router
	// Codeforces is optional; without it stats carry no live count.
	Codeforces SolvedCounter
	Log        logx.Logger
}

type Tracker struct {
	store     *triggers.Store
	reminders *reminder.Scheduler
	contests  *contests.Aggregator
	ledger    *ledger.Ledger
	notify    *notify.Router
	cf        SolvedCounter
	log       logx.Logger
}

func New(d Deps) *Tracker {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	return &Tracker{
		store:     d.Store,
		reminders: d.Reminders,
		contests:  d.Contests,
		ledger:    d.Ledger,
		notify:    d.Notify,
		cf:        d.Codeforces,
		log:       d.Log.With(logx.String("comp", "tracker")),
	}
}

// Start arms the daily reminder and the contest refresh, then refreshes the
// contest list once. Only a failure to arm the daily reminder is returned.
func (t *Tracker) Start(ctx context.Context) error {
	due, err := t.reminders.ScheduleDaily(ctx)
	if err != nil {
		return fmt.Errorf("schedule daily reminder: %w", err)
	}
	if err := t.reminders.ScheduleRefresh(ctx); err != nil {
		t.log.Warn("schedule contest refresh failed", logx.Err(err))
	}
	if _, err := t.contests.Refresh(ctx); err != nil {
		t.log.Warn("initial contest refresh failed", logx.Err(err))
	}
	t.log.Info("tracker started", logx.Time("next_reminder", due))
	return nil
}

// OnFire handles a fired trigger.
func (t *Tracker) OnFire(ctx context.Context, name string) error {
	fire := reminder.Classify(name)
	switch fire.Kind {
	case reminder.FireDaily:
		if _, err := t.reminders.ScheduleDaily(ctx); err != nil {
			t.log.Warn("re-arm daily reminder failed", logx.Err(err))
		}
		set, err := t.store.Settings(ctx)
		if err != nil {
			return fmt.Errorf("read settings: %w", err)
		}
		_, err = t.notify.Present(ctx, notify.KindDaily, t.notify.DailyContent(ctx, set.PreferLeetCode))
		return err
	case reminder.FireContest:
		_, err := t.notify.Present(ctx, notify.KindContest, t.notify.ContestContent(ctx, fire.Contest))
		return err
	case reminder.FireRefresh:
		_, err := t.contests.Refresh(ctx)
		return err
	default:
		t.log.Warn("ignoring fired trigger", logx.String("name", name), logx.Err(reminder.ErrUnknownTrigger))
		return nil
	}
}

// Stats is the ledger summary plus the live Codeforces count when known.
type Stats struct {
	ledger.Stats
	CodeforcesHandle string `json:"codeforces_handle,omitempty"`
	CodeforcesSolved *int   `json:"codeforces_solved,omitempty"`
}

// GetStats never fails because of the judge; the live count is best effort.
func (t *Tracker) GetStats(ctx context.Context) (Stats, error) {
	ls, err := t.ledger.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	out := Stats{Stats: ls}
	if t.cf == nil {
		return out, nil
	}
	set, err := t.store.Settings(ctx)
	if err != nil || set.CodeforcesHandle == "" {
		return out, nil
	}
	out.CodeforcesHandle = set.CodeforcesHandle
	n, err := t.cf.SolvedCount(ctx, set.CodeforcesHandle)
	if err != nil {
		t.log.Warn("codeforces solved count failed", logx.String("handle", set.CodeforcesHandle), logx.Err(err))
		return out, nil
	}
	out.CodeforcesSolved = &n
	return out, nil
}

func (t *Tracker) GetContests(ctx context.Context) (triggers.ContestList, error) {
	return t.contests.Contests(ctx)
}

// RefreshContests runs a refresh outside the periodic trigger.
func (t *Tracker) RefreshContests(ctx context.Context) ([]core.Contest, error) {
	return t.contests.Refresh(ctx)
}

func (t *Tracker) Settings(ctx context.Context) (core.Settings, error) {
	return t.store.Settings(ctx)
}

// SetSettings persists patch and re-arms the daily reminder.
func (t *Tracker) SetSettings(ctx context.Context, patch core.SettingsPatch) (core.Settings, time.Time, error) {
	set, err := t.store.UpdateSettings(ctx, patch)
	if err != nil {
		return core.Settings{}, time.Time{}, err
	}
	due, err := t.reminders.ScheduleDaily(ctx)
	if err != nil {
		return set, time.Time{}, fmt.Errorf("re-arm daily reminder: %w", err)
	}
	return set, due, nil
}

// ScheduleContestReminder arms a countdown for a stored contest. ref is
// either the 1-based position shown by /contests or the contest name.
func (t *Tracker) ScheduleContestReminder(ctx context.Context, ref string) (core.Contest, time.Time, error) {
	c, err := t.findContest(ctx, ref)
	if err != nil {
		return core.Contest{}, time.Time{}, err
	}
	due, err := t.reminders.ScheduleContest(ctx, c)
	if err != nil {
		return c, time.Time{}, err
	}
	return c, due, nil
}

func (t *Tracker) findContest(ctx context.Context, ref string) (core.Contest, error) {
	ref = strings.TrimSpace(ref)
	list, err := t.contests.Contests(ctx)
	if err != nil {
		return core.Contest{}, err
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(list.Contests) {
			return core.Contest{}, fmt.Errorf("%w: #%d", ErrNoSuchContest, n)
		}
		return list.Contests[n-1], nil
	}
	for _, c := range list.Contests {
		if strings.EqualFold(c.Name, ref) {
			return c, nil
		}
	}
	return core.Contest{}, fmt.Errorf("%w: %q", ErrNoSuchContest, ref)
}

func (t *Tracker) CancelContestReminder(ctx context.Context, name string) (bool, error) {
	return t.reminders.CancelContest(ctx, name)
}

func (t *Tracker) MarkSolved(ctx context.Context, slug string, site core.Site, meta map[string]string) (ledger.ProblemRecord, error) {
	return t.ledger.MarkSolved(ctx, slug, site, meta)
}

func (t *Tracker) SetNotes(ctx context.Context, slug, notes string) (ledger.ProblemRecord, error) {
	return t.ledger.Upsert(ctx, slug, ledger.Patch{Notes: &notes})
}

func (t *Tracker) ExportLedger(ctx context.Context) ([]byte, error) {
	return t.ledger.Export(ctx)
}

func (t *Tracker) ImportLedger(ctx context.Context, data []byte) (int, error) {
	return t.ledger.Import(ctx, data)
}

// ResolveClick forwards a notification click.
func (t *Tracker) ResolveClick(ctx context.Context, id string) bool {
	return t.notify.ResolveClick(ctx, id)
}
