package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	logx "cpbot/pkg/logx"
)

// alignedSchedule fires at first, then every period after it. Unlike
// cron.Every it keeps the cadence anchored at first instead of drifting with
// each run's start time.
type alignedSchedule struct {
	first  time.Time
	period time.Duration
}

var _ cron.Schedule = alignedSchedule{}

func (s alignedSchedule) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	n := t.Sub(s.first)/s.period + 1
	return s.first.Add(n * s.period)
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
