package app

import (
	"context"
	"fmt"

	"cpbot/internal/config"
	"cpbot/internal/contests"
	"cpbot/internal/eventbus"
	"cpbot/internal/judge"
	"cpbot/internal/ledger"
	"cpbot/internal/notify"
	"cpbot/internal/reminder"
	"cpbot/internal/storage"
	"cpbot/internal/task/engine"
	"cpbot/internal/task/scheduler"
	"cpbot/internal/tracker"
	"cpbot/internal/triggers"
	logx "cpbot/pkg/logx"
)

// Core is everything except the chat transport. The CLI subcommands use it
// directly; App adds Telegram on top.
type Core struct {
	Config   *config.Config
	Resolved config.Resolved

	Log   logx.Logger
	Bus   eventbus.Bus
	Store storage.Store

	Triggers   *triggers.Store
	Engine     *engine.Service
	Scheduler  *scheduler.Service
	Codeforces *judge.Codeforces
	Contests   *contests.Aggregator
	Ledger     *ledger.Ledger
	Notify     *notify.Router
	Tracker    *tracker.Tracker
}

// OpenCore opens storage and builds the tracker graph. Nothing is started.
func OpenCore(ctx context.Context, cfg *config.Config, log logx.Logger, bus eventbus.Bus) (*Core, error) {
	r, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.New()
	}

	st, err := storage.Open(ctx, mapStorageConfig(cfg, r), log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", cfg.Storage.Driver))

	ts := triggers.New(st, defaultSettings(cfg), log)
	eng := engine.New(mapEngineConfig(cfg, r), log.With(logx.String("comp", "taskengine")), bus)
	sched := scheduler.New(scheduler.Config{
		Location:    r.Location,
		FireTimeout: r.TaskTimeout,
	}, eng, ts, log, bus)

	cf := judge.NewCodeforces(mapJudgeOptions(cfg.Feeds.CodeforcesAPI, cfg, r, log))
	lc := judge.NewLeetCode(mapJudgeOptions(cfg.Feeds.LeetCodeFeed, cfg, r, log))
	agg := contests.New(cf, lc, ts, r.FeedTimeout, nil, bus, log)

	led := ledger.New(st, ts.Locks(), r.Location, nil, bus, log)
	rem := reminder.New(reminder.Config{
		Location:        r.Location,
		ContestLead:     r.ContestLead,
		RefreshInterval: r.RefreshInterval,
		Locks:           ts.Locks(),
	}, sched, ts, nil, log)

	nr := notify.New(notify.Config{
		TTL:         r.BindingTTL,
		Cap:         cfg.Reminder.BindingCap,
		ContestLead: r.ContestLead,
	}, notify.Deps{
		Store:    st,
		Locks:    ts.Locks(),
		Problems: cf,
		Contests: agg,
		Bus:      bus,
		Log:      log,
	})

	tr := tracker.New(tracker.Deps{
		Store:      ts,
		Reminders:  rem,
		Contests:   agg,
		Ledger:     led,
		Notify:     nr,
		Codeforces: cf,
		Log:        log,
	})

	return &Core{
		Config:     cfg,
		Resolved:   r,
		Log:        log,
		Bus:        bus,
		Store:      st,
		Triggers:   ts,
		Engine:     eng,
		Scheduler:  sched,
		Codeforces: cf,
		Contests:   agg,
		Ledger:     led,
		Notify:     nr,
		Tracker:    tr,
	}, nil
}

// Close releases storage.
func (c *Core) Close() error {
	if c == nil || c.Store == nil {
		return nil
	}
	return c.Store.Close()
}
