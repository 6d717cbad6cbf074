package config

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("10s", "1m").
type Config struct {
	Telegram   TelegramConfig    `json:"telegram"`
	Gateway    GatewayConfig     `json:"gateway"`
	Storage    StorageConfig     `json:"storage"`
	Scheduler  SchedulerConfig   `json:"scheduler"`
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`
	Dialog     DialogConfig      `json:"dialog"`
	Auth       AuthConfig        `json:"auth"`
	Logging    LoggingConfig     `json:"logging"`
	Debug      DebugConfig       `json:"debug"`
}

type TelegramConfig struct {
	Token       string `json:"token"`
	PollTimeout string `json:"poll_timeout,omitempty"`
	// AllowedUserIDs restricts who may use the bot. Empty allows everyone.
	AllowedUserIDs []int64 `json:"allowed_user_ids,omitempty"`
}

// GatewayConfig configures the user-account client (MTProto).
type GatewayConfig struct {
	AppID         int    `json:"app_id"`
	AppHash       string `json:"app_hash"`
	DeviceModel   string `json:"device_model,omitempty"`
	SystemVersion string `json:"system_version,omitempty"`
	Debug         bool   `json:"debug,omitempty"`
}

// StorageConfig locates the schedule database and the session blob.
//
// Example:
//
//	"storage": { "path": "./data/relaybot.db", "sessions_path": "./data/sessions.json" }
type StorageConfig struct {
	Path         string `json:"path"`
	SessionsPath string `json:"sessions_path"`
	BusyTimeout  string `json:"busy_timeout,omitempty"`
}

type SchedulerConfig struct {
	// Timezone is an IANA zone; all schedule times are local to it.
	Timezone string `json:"timezone,omitempty"`
	// Jitter is the upper bound of the random delay added to every firing.
	Jitter string `json:"jitter,omitempty"`
	// ReconcileAt is the daily HH:MM when jobs are rebuilt from storage.
	ReconcileAt string `json:"reconcile_at,omitempty"`
}

// TaskEngineConfig controls dispatch execution.
//
// Defaults: workers 4, queue_size 256, history_size 200.
type TaskEngineConfig struct {
	Workers     int `json:"workers,omitempty"`
	QueueSize   int `json:"queue_size,omitempty"`
	HistorySize int `json:"history_size,omitempty"`
}

type DialogConfig struct {
	ChatsPerPage     int `json:"chats_per_page,omitempty"`
	SchedulesPerPage int `json:"schedules_per_page,omitempty"`
}

// AuthConfig overrides the letter to digit table used to enter login codes.
type AuthConfig struct {
	Codebook map[string]string `json:"codebook,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat mirrors warnings to an admin chat through the bot.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// DebugConfig enables the pprof and status HTTP endpoint. Empty Addr
// disables it; a non-loopback Addr requires Token.
type DebugConfig struct {
	Addr  string `json:"addr,omitempty"`
	Token string `json:"token,omitempty"`
}
