package scheduler

import (
	"errors"
	"time"

	"cpbot/internal/task/engine"
	logx "cpbot/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

// reportEnqueueError logs enqueue failures, at most once per trigger every
// enqueueWarnThrottle. Overlap skips are routine and logged at debug.
func (s *Service) reportEnqueueError(name string, err error) {
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Debug("trigger skipped: previous run in flight", logx.String("name", name))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[name]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[name] = now
	s.enqMu.Unlock()

	s.log.Warn("trigger failed to enqueue", logx.String("name", name), logx.Err(err))
}
