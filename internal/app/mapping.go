package app

import (
	"strings"

	"cpbot/internal/config"
	"cpbot/internal/core"
	"cpbot/internal/judge"
	"cpbot/internal/storage"
	"cpbot/internal/task/engine"
	logx "cpbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config, r config.Resolved) storage.Config {
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        cfg.Storage.Path,
		BusyTimeout: r.BusyTimeout,
		Bucket:      cfg.Storage.Bucket,
		Prefix:      cfg.Storage.Prefix,
	}
}

func mapEngineConfig(cfg *config.Config, r config.Resolved) engine.Config {
	return engine.Config{
		Workers:        cfg.TaskEngine.Workers,
		QueueSize:      cfg.TaskEngine.QueueSize,
		DefaultTimeout: r.TaskTimeout,
		RetryMax:       cfg.TaskEngine.RetryMax,
	}
}

func mapJudgeOptions(base string, cfg *config.Config, r config.Resolved, log logx.Logger) judge.Options {
	return judge.Options{
		BaseURL:  base,
		Timeout:  r.FeedTimeout,
		Attempts: uint(max(cfg.Feeds.RetryAttempts, 1)),
		Log:      log,
	}
}

// defaultSettings are used until the user changes anything.
func defaultSettings(cfg *config.Config) core.Settings {
	s := core.Settings{ReminderTime: cfg.Reminder.DefaultTime, PreferLeetCode: true}
	if cfg.Reminder.PreferLeetCode != nil {
		s.PreferLeetCode = *cfg.Reminder.PreferLeetCode
	}
	return s
}
