package config

// Config is the on-disk daemon configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "6h").
// Fields tagged with env can be overridden from the environment; secrets
// such as the bot token are usually supplied that way.
type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Logging    LoggingConfig    `json:"logging"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	TaskEngine TaskEngineConfig `json:"task_engine"`
	Storage    StorageConfig    `json:"storage"`
	Feeds      FeedsConfig      `json:"feeds"`
	Reminder   ReminderConfig   `json:"reminder"`
}

type TelegramConfig struct {
	Token string `json:"token" env:"CPBOT_TELEGRAM_TOKEN" env-description:"Telegram bot token"`
	// ChatID receives notifications and is the only chat allowed to use commands.
	ChatID       int64   `json:"chat_id" env:"CPBOT_TELEGRAM_CHAT_ID" env-description:"chat that receives reminders"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	PollTimeout  string  `json:"poll_timeout,omitempty"`
	RatePerSec   int     `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level" env:"CPBOT_LOG_LEVEL" env-description:"debug, info, warn or error"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls how trigger due times are computed.
type SchedulerConfig struct {
	// Timezone is an IANA name; reminder times are wall-clock in this zone.
	// Empty means the host's local zone.
	Timezone string `json:"timezone,omitempty" env:"CPBOT_TIMEZONE" env-description:"IANA timezone for reminder times"`
}

// TaskEngineConfig controls execution of fired triggers.
//
// Defaults: workers 2, queue_size 64, default_timeout "30s", retry_max 1.
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
}

// StorageConfig selects the durable store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/cpbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver" env:"CPBOT_STORAGE_DRIVER" env-description:"file, sqlite, gcs or memory"`
	Path        string `json:"path,omitempty" env:"CPBOT_STORAGE_PATH" env-description:"file or sqlite path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	Bucket      string `json:"bucket,omitempty" env:"CPBOT_STORAGE_BUCKET" env-description:"GCS bucket for the gcs driver"`
	Prefix      string `json:"prefix,omitempty"`
}

// FeedsConfig points at the judge APIs.
type FeedsConfig struct {
	CodeforcesAPI   string `json:"codeforces_api,omitempty"`
	LeetCodeFeed    string `json:"leetcode_feed,omitempty" env:"CPBOT_LEETCODE_FEED" env-description:"JSON feed of upcoming LeetCode contests"`
	Timeout         string `json:"timeout,omitempty"`
	RefreshInterval string `json:"refresh_interval,omitempty"`
	RetryAttempts   int    `json:"retry_attempts,omitempty"`
}

// ReminderConfig holds defaults applied before the user changes settings.
type ReminderConfig struct {
	DefaultTime    string `json:"default_time,omitempty"`
	PreferLeetCode *bool  `json:"prefer_leetcode,omitempty"`
	ContestLead    string `json:"contest_lead,omitempty"`
	BindingTTL     string `json:"binding_ttl,omitempty"`
	BindingCap     int    `json:"binding_cap,omitempty"`
}
