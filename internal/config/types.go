package config

// Config is the whole file. The reply keys sit at the top level; the
// sections below them are runtime knobs.
//
// Durations are Go duration strings ("500ms", "10s", "1m").
type Config struct {
	Token             string `json:"token" validate:"required"`
	StartMessage      string `json:"start_message" validate:"required"`
	CommandNotAllowed string `json:"command_not_allowed" validate:"required"`

	AddIgnore    string `json:"add_ignore" validate:"required"`
	RemoveIgnore string `json:"remove_ignore" validate:"required"`
	ErrorIgnore  string `json:"error_ignore" validate:"required"`

	AddListener    string `json:"add_listener" validate:"required"`
	RemoveListener string `json:"remove_listener" validate:"required"`
	ErrorListener  string `json:"error_listener" validate:"required"`

	// ProxyActivateCode must be present; an empty value disables /listening.
	ProxyActivateCode *string `json:"proxy_activate_code" validate:"required"`

	MessageNotTextError       *string `json:"message_not_text_error,omitempty"`
	AnswerAfterMessage        *string `json:"answer_after_message,omitempty"`
	AnswerAfterMessageIgnored *string `json:"answer_after_message_ignored,omitempty"`

	SpamControl *SpamControlConfig `json:"spam_control,omitempty"`

	Telegram TelegramConfig `json:"telegram"`
	Stores   StoresConfig   `json:"stores"`
	Dispatch DispatchConfig `json:"dispatch"`
	Logging  LoggingConfig  `json:"logging"`
	Audit    AuditConfig    `json:"audit"`
	Ops      OpsConfig      `json:"ops"`
}

type SpamControlConfig struct {
	// Delay is in seconds.
	Delay          int64  `json:"delay" validate:"gte=0"`
	DelayedMessage string `json:"delayed_message" validate:"required"`
}

type TelegramConfig struct {
	PollTimeout string `json:"poll_timeout,omitempty"`
	// RatePerSec caps outbound messages. Default 25; negative disables the cap.
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
}

// StoresConfig locates the listener and ignore lists.
//
// Checkpoint is an optional schedule ("*/10 * * * *", "30m", or "00:30" for
// every half hour) that re-saves both lists even without changes, so a file
// deleted or truncated by hand comes back.
type StoresConfig struct {
	ListenersPath     string `json:"listeners_path,omitempty"`
	IgnoredPath       string `json:"ignored_path,omitempty"`
	Checkpoint        string `json:"checkpoint,omitempty"`
	CheckpointTimeout string `json:"checkpoint_timeout,omitempty"`
}

type DispatchConfig struct {
	Workers   int    `json:"workers,omitempty" validate:"gte=0,lte=256"`
	QueueSize int    `json:"queue_size,omitempty" validate:"gte=0"`
	Timeout   string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// AuditConfig controls the membership audit trail.
//
//	"audit": { "driver": "sqlite", "path": "./relaybot_audit.db" }
type AuditConfig struct {
	Driver      string `json:"driver,omitempty" validate:"omitempty,oneof=none file sqlite"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// OpsConfig controls the HTTP ops server (health, stats, pprof).
// Bind to loopback or set a token.
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`   // default 127.0.0.1:6060
	Token   string `json:"token,omitempty"`  // bearer token, never logged
	Prefix  string `json:"prefix,omitempty"` // default /debug/pprof/
}

const (
	DefaultListenersPath = "listening_clients.txt"
	DefaultIgnoredPath   = "ignored_clients.txt"
	DefaultRatePerSec    = 25
	DefaultOpsAddr       = "127.0.0.1:6060"
)

// ApplyDefaults fills the zero values that have a non-zero default.
func (c *Config) ApplyDefaults() {
	if c.Stores.ListenersPath == "" {
		c.Stores.ListenersPath = DefaultListenersPath
	}
	if c.Stores.IgnoredPath == "" {
		c.Stores.IgnoredPath = DefaultIgnoredPath
	}
	if c.Telegram.RatePerSec == 0 {
		c.Telegram.RatePerSec = DefaultRatePerSec
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Audit.Driver == "" {
		c.Audit.Driver = "none"
	}
	if c.Audit.Path == "" {
		switch c.Audit.Driver {
		case "file":
			c.Audit.Path = "./relaybot_audit"
		case "sqlite":
			c.Audit.Path = "./relaybot_audit.db"
		}
	}
	if c.Ops.Addr == "" {
		c.Ops.Addr = DefaultOpsAddr
	}
}
