// Package scheduler is the timer source: it arms named triggers (one-shot
// or periodic), persists them so they survive restarts, and hands each fire
// to a single handler through the task engine.
//
// Periodic triggers run on robfig/cron with an aligned schedule; one-shots
// use time.AfterFunc. Every arm or cancel bumps a per-name version and fire
// callbacks compare versions under the service lock, so a cancelled or
// replaced trigger never fires late.
package scheduler
