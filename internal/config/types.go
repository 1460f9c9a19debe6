package config

type Config struct {
	Logging      LoggingConfig      `json:"logging"`
	Scheduler    SchedulerConfig    `json:"scheduler"`
	Confirmation ConfirmationConfig `json:"confirmation"`
	Proxmox      ProxmoxConfig      `json:"proxmox"`
	Transport    TransportConfig    `json:"transport"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	API      *APIConfig      `json:"api,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the deletion lifecycle engine and its poll loop.
//
// All durations are Go duration strings (e.g. "30s", "5m", "48h"). Poll also
// accepts a cron expression ("cron:*/5 * * * *", "@hourly").
type SchedulerConfig struct {
	Enabled bool   `json:"enabled"`
	Poll    string `json:"poll,omitempty"`

	// DeleteAfter is how long after the request the target is deleted.
	DeleteAfter string `json:"delete_after,omitempty"`
	// ReminderLead is how long before the deadline the reminder goes out.
	ReminderLead string `json:"reminder_lead,omitempty"`

	AdapterTimeout string `json:"adapter_timeout,omitempty"`

	RetryInterval    string `json:"retry_interval,omitempty"`
	RetryMaxAttempts int    `json:"retry_max_attempts,omitempty"`
}

// ConfirmationConfig controls the pre-execution confirmation gate.
// A zero or omitted grace window means deletions run unattended.
type ConfirmationConfig struct {
	GraceWindow string `json:"grace_window,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
//
// All durations are Go duration strings. If the whole section is omitted,
// the notifier defaults to enabled=true.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	SendTimeout     string `json:"send_timeout"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./reaperd_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type ProxmoxConfig struct {
	BaseURL     string `json:"base_url"`
	TokenID     string `json:"token_id"`
	TokenSecret string `json:"token_secret"`
	Node        string `json:"node"`
	// Timeout is a Go duration string (e.g. "10s").
	Timeout            string `json:"timeout,omitempty"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify,omitempty"`
}

// TransportConfig selects and configures the chat transport used for
// notifications. Driver is "slack" or "telegram".
type TransportConfig struct {
	Driver   string          `json:"driver"`
	Slack    *SlackConfig    `json:"slack,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

type SlackConfig struct {
	BotToken       string `json:"bot_token"`
	DefaultChannel string `json:"default_channel,omitempty"`
}

type TelegramConfig struct {
	Token         string `json:"token"`
	DefaultChatID int64  `json:"default_chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// APIConfig controls the optional management HTTP API.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8080").
//   - If you bind to a non-loopback address, set a token.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`  // default: "127.0.0.1:8080"
	Token   string `json:"token,omitempty"` // optional bearer token (do not log)

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
