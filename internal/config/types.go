package config

// Config is the on-disk configuration. Files ending in .yaml or .yml are
// decoded as YAML, anything else as JSON. Both reject unknown keys.
//
// Durations are Go duration strings ("500ms", "10s", "30m") or bare seconds.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram" yaml:"telegram"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Session   SessionConfig   `json:"session" yaml:"session"`
	Content   ContentConfig   `json:"content" yaml:"content"`
	Admin     AdminConfig     `json:"admin" yaml:"admin"`
}

type TelegramConfig struct {
	// Token may be left empty and supplied via WIRDBOT_TELEGRAM_TOKEN.
	Token string `json:"token" yaml:"token"`
	// GroupLog is the chat id of the operator log group (log sink target).
	GroupLog    string `json:"group_log" yaml:"group_log"`
	PollTimeout string `json:"poll_timeout" yaml:"poll_timeout"`
	// SendRatePerSec caps outbound Telegram calls. Default 25.
	SendRatePerSec float64 `json:"send_rate_per_sec,omitempty" yaml:"send_rate_per_sec,omitempty"`
	SendBurst      int     `json:"send_burst,omitempty" yaml:"send_burst,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level" yaml:"level"`
	Console  bool            `json:"console" yaml:"console"`
	File     LoggingFile     `json:"file" yaml:"file"`
	Telegram LoggingTelegram `json:"telegram" yaml:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	ThreadID   int    `json:"thread_id" yaml:"thread_id"`
	MinLevel   string `json:"min_level" yaml:"min_level"`
	RatePerSec int    `json:"rate_per_sec" yaml:"rate_per_sec"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/wirdbot.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://..." }
type StorageConfig struct {
	Driver      string `json:"driver" yaml:"driver"`
	Path        string `json:"path,omitempty" yaml:"path,omitempty"`
	DSN         string `json:"dsn,omitempty" yaml:"dsn,omitempty"` // overridden by DATABASE_URL (do not log)
	BusyTimeout string `json:"busy_timeout,omitempty" yaml:"busy_timeout,omitempty"`
}

type SchedulerConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Timezone is an IANA name, e.g. "Africa/Casablanca". Empty means Local.
	Timezone        string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	PageDelay       string `json:"page_delay,omitempty" yaml:"page_delay,omitempty"`       // default "1s"
	DeliveryTimeout string `json:"delivery_timeout,omitempty" yaml:"delivery_timeout,omitempty"` // default "5m"
}

type SessionConfig struct {
	Timeout        string `json:"timeout,omitempty" yaml:"timeout,omitempty"`         // default "30m"
	SweepInterval  string `json:"sweep_interval,omitempty" yaml:"sweep_interval,omitempty"`  // default "10m"
	HandlerTimeout string `json:"handler_timeout,omitempty" yaml:"handler_timeout,omitempty"` // default "30s"
}

type ContentConfig struct {
	PagesDir string `json:"pages_dir" yaml:"pages_dir"`
	// CaptionQuotes appends a random quote under each page caption. Default true.
	CaptionQuotes *bool `json:"caption_quotes,omitempty" yaml:"caption_quotes,omitempty"`
}

// QuotesEnabled reports the effective caption_quotes value.
func (c ContentConfig) QuotesEnabled() bool {
	return c.CaptionQuotes == nil || *c.CaptionQuotes
}

// AdminConfig controls the operator HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8088").
//   - If you bind to a non-loopback address, set a token.
type AdminConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr,omitempty" yaml:"addr,omitempty"`  // default "127.0.0.1:8088"
	Token   string `json:"token,omitempty" yaml:"token,omitempty"` // optional bearer token (do not log)
	Pprof   bool   `json:"pprof,omitempty" yaml:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty" yaml:"write_timeout,omitempty"`
}
