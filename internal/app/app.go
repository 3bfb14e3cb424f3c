// Package app assembles the daemon: config, logging, storage, the tracker
// components and the Telegram transport.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cpbot/internal/config"
	"cpbot/internal/eventbus"
	"cpbot/internal/notify"
	rtsup "cpbot/internal/runtime/supervisor"
	kit "cpbot/internal/transport"
	telegram "cpbot/internal/transport/telegram/adapter"
	tgr "cpbot/internal/transport/telegram/router"
	logx "cpbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	core    *Core
	adapter *telegram.Adapter
	cmdm    *tgr.CommandManager
	// chatID is fixed for the process lifetime; the surface is bound to it.
	chatID int64

	updates chan kit.Update
}

func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	r, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: r.PollTimeout,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	if cfg.Telegram.ChatID == 0 {
		log.Warn("telegram.chat_id is not set; reminders cannot be delivered")
	}

	c, err := OpenCore(ctx, cfg, log, eventbus.New())
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	surface := kit.NewChatSurface(ad, kit.ChatTarget{ChatID: cfg.Telegram.ChatID}, notify.CallbackRoute)
	c.Notify.SetOutputs(surface, surface)

	cmdm := tgr.NewCommandManager(log, ad, cfg.Telegram.ChatID, cfg.Telegram.OwnerUserIDs)
	cmdm.SetRegistry(commands(c.Tracker, r.Location))

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		core:    c,
		adapter: ad,
		cmdm:    cmdm,
		chatID:  cfg.Telegram.ChatID,
		updates: make(chan kit.Update, 256),
	}, nil
}

// Core exposes the tracker graph, mainly for tests.
func (a *App) Core() *Core { return a.core }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			return errors.New("telegram.token is required")
		}
		_, err := config.Resolve(cfg)
		return err
	})

	c := a.core
	c.Engine.Start(runCtx)
	c.Scheduler.SetHandler(c.Tracker.OnFire)
	if err := c.Scheduler.Start(runCtx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return fmt.Errorf("start telegram: %w", err)
	}
	a.cmdm.SyncMenu(runCtx)
	if err := c.Tracker.Start(runCtx); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(ctx context.Context) error {
		return a.cmdm.DispatchLoop(ctx, a.updates)
	})

	events, unsub := c.Bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(ctx context.Context) {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(ctx context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-ctx.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				next = drainNewest(sub, next)
				a.applyConfig(last, next)
				last = next
			}
		}
	})

	a.sup.Go("config.watch", func(ctx context.Context) error {
		return a.cfgm.Watch(ctx)
	})

	a.log.Info("app started", logx.String("config", a.cfgm.Path()))
	return nil
}

// drainNewest coalesces a burst of reloads to the latest one.
func drainNewest(ch <-chan *config.Config, cur *config.Config) *config.Config {
	for {
		select {
		case newer := <-ch:
			if newer != nil {
				cur = newer
			}
		default:
			return cur
		}
	}
}

// applyConfig applies the parts of a reload that can change live.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if pending := config.RequiresRestart(prev, next); len(pending) > 0 {
		a.log.Warn("config change needs a restart to take effect", logx.Strs("fields", pending))
	}
	a.logs.Apply(mapLogConfig(next))
	a.cmdm.SetAccess(a.chatID, next.Telegram.OwnerUserIDs)

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	a.core.Bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: sections})
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.core.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			limit = min(limit, time.Until(dl))
		}
		if limit <= 0 {
			a.log.Warn("stop step skipped (no time left)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Scheduler first so nothing new is queued, then drain the engine while
	// the adapter can still deliver.
	step("scheduler", 2*time.Second, func(c context.Context) error { a.core.Scheduler.Stop(c); return nil })
	step("taskengine", 3*time.Second, func(c context.Context) error { a.core.Engine.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", time.Second, func(context.Context) error { return a.core.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return a.logs.Close()
}
