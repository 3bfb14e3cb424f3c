package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"cpbot/internal/core"
	"cpbot/internal/eventbus"
	"cpbot/internal/task/engine"
	logx "cpbot/pkg/logx"
)

func New(cfg Config, eng *engine.Service, persist Persister, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Service{
		cfg:         cfg,
		log:         log.With(logx.String("comp", "scheduler")),
		bus:         bus,
		engine:      eng,
		persist:     persist,
		live:        map[string]*armed{},
		lastEnqWarn: map[string]time.Time{},
	}
}

// WithClock replaces the time source. Call before Start.
func (s *Service) WithClock(now core.Clock) *Service {
	s.now = now
	return s
}

// SetHandler installs the single fire handler. Fires before a handler is set
// are dropped with a warning.
func (s *Service) SetHandler(fn FireFunc) {
	s.mu.Lock()
	s.handler = fn
	s.mu.Unlock()
}

func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Location
}

// Start starts cron and re-arms every persisted trigger. Overdue one-shots
// fire immediately; overdue periodic triggers resume at their next aligned
// occurrence.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.c = cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithLogger(cronLogger{log: s.log}),
		cron.WithChain(cron.Recover(cronLogger{log: s.log})),
	)
	s.c.Start()

	var restored int
	if s.persist != nil {
		list, err := s.persist.LoadTriggers(ctx)
		if err != nil {
			s.log.Warn("restore triggers failed", logx.Err(err))
		}
		for _, t := range list {
			if t.Name == "" || t.DueAt.IsZero() {
				continue
			}
			s.armLocked(t)
			restored++
		}
	}
	s.log.Info("service started", logx.String("tz", s.cfg.Location.String()), logx.Int("restored", restored))
	return nil
}

// Stop halts cron and all runtime timers. Persisted triggers stay so they
// resume on the next Start.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	for name, a := range s.live {
		if a.timer != nil {
			a.timer.Stop()
		}
		delete(s.live, name)
	}
	s.ver++
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	s.log.Info("service stopped")
}
