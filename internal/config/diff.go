package config

import (
	"reflect"

	logx "cpbot/pkg/logx"
)

// SummarizeConfigChange lists changed sections and safe attrs for logging.
// Secrets (telegram token) are reported only as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var (
		changed []string
		attrs   []logx.Field
	)
	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", newCfg.Telegram.Token != ""),
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
			logx.Int64("telegram.chat_id", newCfg.Telegram.ChatID),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs, logx.String("scheduler.timezone", newCfg.Scheduler.Timezone))
	}
	if oldCfg.TaskEngine != newCfg.TaskEngine {
		changed = append(changed, "task_engine")
		attrs = append(attrs, logx.Int("task_engine.workers", newCfg.TaskEngine.Workers))
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.Feeds != newCfg.Feeds {
		changed = append(changed, "feeds")
		attrs = append(attrs,
			logx.String("feeds.timeout", newCfg.Feeds.Timeout),
			logx.String("feeds.refresh_interval", newCfg.Feeds.RefreshInterval),
		)
	}
	if !reflect.DeepEqual(oldCfg.Reminder, newCfg.Reminder) {
		changed = append(changed, "reminder")
		attrs = append(attrs, logx.String("reminder.default_time", newCfg.Reminder.DefaultTime))
	}
	return changed, attrs
}

// RequiresRestart reports changes the running daemon cannot apply live.
// Only logging and the owner list are applied in place.
func RequiresRestart(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if oldCfg.Telegram.Token != newCfg.Telegram.Token {
		out = append(out, "telegram.token")
	}
	if oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID {
		out = append(out, "telegram.chat_id")
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		out = append(out, "scheduler")
	}
	if oldCfg.Storage != newCfg.Storage {
		out = append(out, "storage")
	}
	if oldCfg.TaskEngine != newCfg.TaskEngine {
		out = append(out, "task_engine")
	}
	if oldCfg.Feeds != newCfg.Feeds {
		out = append(out, "feeds")
	}
	if !reflect.DeepEqual(oldCfg.Reminder, newCfg.Reminder) {
		out = append(out, "reminder")
	}
	return out
}
