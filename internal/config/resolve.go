package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultCodeforcesAPI   = "https://codeforces.com/api"
	DefaultLeetCodeFeed    = "https://kontests.net/api/v1/leet_code"
	DefaultReminderTime    = "20:00"
	DefaultStoragePath     = "./data/cpbot.json"
	DefaultFeedTimeout     = 8 * time.Second
	DefaultRefreshInterval = 6 * time.Hour
	DefaultContestLead     = 10 * time.Minute
	DefaultBindingTTL      = 7 * 24 * time.Hour
	DefaultBindingCap      = 500
)

// Resolved carries parsed durations and locations so the rest of the
// program never re-parses strings.
type Resolved struct {
	Location        *time.Location
	PollTimeout     time.Duration
	TaskTimeout     time.Duration
	BusyTimeout     time.Duration
	FeedTimeout     time.Duration
	RefreshInterval time.Duration
	ContestLead     time.Duration
	BindingTTL      time.Duration
}

// ApplyDefaults fills zero values in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if !cfg.Logging.Console && !cfg.Logging.File.Enabled {
		cfg.Logging.Console = true
	}
	if cfg.Telegram.RatePerSec <= 0 {
		cfg.Telegram.RatePerSec = 1
	}
	if cfg.TaskEngine.Workers <= 0 {
		cfg.TaskEngine.Workers = 2
	}
	if cfg.TaskEngine.QueueSize <= 0 {
		cfg.TaskEngine.QueueSize = 64
	}
	if cfg.TaskEngine.RetryMax < 0 {
		cfg.TaskEngine.RetryMax = 0
	}
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "file"
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Feeds.CodeforcesAPI == "" {
		cfg.Feeds.CodeforcesAPI = DefaultCodeforcesAPI
	}
	if cfg.Feeds.LeetCodeFeed == "" {
		cfg.Feeds.LeetCodeFeed = DefaultLeetCodeFeed
	}
	if cfg.Feeds.RetryAttempts <= 0 {
		cfg.Feeds.RetryAttempts = 2
	}
	if cfg.Reminder.DefaultTime == "" {
		cfg.Reminder.DefaultTime = DefaultReminderTime
	}
	if cfg.Reminder.PreferLeetCode == nil {
		v := true
		cfg.Reminder.PreferLeetCode = &v
	}
	if cfg.Reminder.BindingCap <= 0 {
		cfg.Reminder.BindingCap = DefaultBindingCap
	}
}

// Resolve validates cfg and parses every duration and location field.
func Resolve(cfg *Config) (Resolved, error) {
	if cfg == nil {
		return Resolved{}, errors.New("config is nil")
	}
	var (
		r    Resolved
		errs []error
	)
	dur := func(dst *time.Duration, path, raw string, def time.Duration) {
		d, err := ParseDurationOrDefault(path, raw, def)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = d
	}

	dur(&r.PollTimeout, "telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	dur(&r.TaskTimeout, "task_engine.default_timeout", cfg.TaskEngine.DefaultTimeout, 30*time.Second)
	dur(&r.BusyTimeout, "storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	dur(&r.FeedTimeout, "feeds.timeout", cfg.Feeds.Timeout, DefaultFeedTimeout)
	dur(&r.RefreshInterval, "feeds.refresh_interval", cfg.Feeds.RefreshInterval, DefaultRefreshInterval)
	dur(&r.ContestLead, "reminder.contest_lead", cfg.Reminder.ContestLead, DefaultContestLead)
	dur(&r.BindingTTL, "reminder.binding_ttl", cfg.Reminder.BindingTTL, DefaultBindingTTL)

	r.Location = time.Local
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		} else {
			r.Location = loc
		}
	}

	if t := strings.TrimSpace(cfg.Reminder.DefaultTime); t != "" {
		if _, err := time.Parse("15:04", t); err != nil {
			errs = append(errs, fmt.Errorf("reminder.default_time: want HH:MM, got %q", t))
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "file", "sqlite", "sqlite3", "memory", "mem":
	case "gcs":
		if strings.TrimSpace(cfg.Storage.Bucket) == "" {
			errs = append(errs, errors.New("storage.bucket is required for gcs"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown %q", cfg.Storage.Driver))
	}
	return r, errors.Join(errs...)
}
