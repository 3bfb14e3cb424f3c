package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"cpbot/internal/core"
	"cpbot/internal/eventbus"
	"cpbot/internal/task/engine"
	logx "cpbot/pkg/logx"
)

// Persister stores armed triggers. Implemented by the trigger store.
type Persister interface {
	SaveTrigger(ctx context.Context, t core.Trigger) error
	DeleteTrigger(ctx context.Context, name string) error
	LoadTriggers(ctx context.Context) ([]core.Trigger, error)
}

// FireFunc handles a fired trigger by name.
type FireFunc func(ctx context.Context, name string) error

type Config struct {
	Location *time.Location
	// FireTimeout bounds one handler run; 0 uses the engine default.
	FireTimeout time.Duration
}

type armed struct {
	trig    core.Trigger
	ver     uint64
	entryID cron.EntryID
	timer   *time.Timer
}

type Service struct {
	mu sync.Mutex

	log     logx.Logger
	cfg     Config
	bus     eventbus.Bus
	engine  *engine.Service
	persist Persister
	now     core.Clock

	handler FireFunc
	c       *cron.Cron
	live    map[string]*armed
	ver     uint64

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

// Info is a read-only view of an armed trigger.
type Info struct {
	core.Trigger
	Next time.Time
}
