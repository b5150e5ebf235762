package config

// Config is the root configuration for the alert daemon.
//
// All durations are Go duration strings (e.g. "30s", "5m"). The file may
// be JSON or YAML; unknown fields are rejected so typos fail loudly at
// load time instead of silently disabling features.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Database DatabaseConfig `json:"database"`
	Engine   EngineConfig   `json:"engine"`

	// Storage persists the alert set across restarts. If omitted, the
	// engine runs memory-only and read/delete state lasts one session.
	Storage *StorageConfig `json:"storage,omitempty"`

	// Notifier pushes high-severity alerts to an external channel.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	HTTP HTTPConfig `json:"http"`

	// SystemEvents are static operator-facing notices surfaced on every
	// tick. Slugs must be stable: they become alert identities.
	SystemEvents []SystemEventConfig `json:"system_events,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"`
	Console *bool             `json:"console,omitempty"` // default true
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// DatabaseConfig points at the pharmacy POS database the snapshot
// provider reads (products and sales tables). Read-only.
type DatabaseConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// EngineConfig tunes the evaluation pipeline.
//
// Defaults (when fields are omitted/zero):
//   - interval: "5m"
//   - fetch_timeout: "30s"
//   - retention: "720h" (30 days)
//   - expiry_horizon_days: 30
//   - recent_sales: 5
//   - high_value_threshold: 10000
//   - refresh_per_minute: 6
type EngineConfig struct {
	Interval     string `json:"interval,omitempty"`
	FetchTimeout string `json:"fetch_timeout,omitempty"`
	Retention    string `json:"retention,omitempty"`

	ExpiryHorizonDays  int     `json:"expiry_horizon_days,omitempty"`
	RecentSales        int     `json:"recent_sales,omitempty"`
	HighValueThreshold float64 `json:"high_value_threshold,omitempty"`

	RefreshPerMinute int `json:"refresh_per_minute,omitempty"`
}

// StorageConfig controls the durable alert store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./alerts.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type NotifierConfig struct {
	Enabled     bool                   `json:"enabled"`
	MinSeverity string                 `json:"min_severity,omitempty"`
	RatePerSec  int                    `json:"rate_per_sec,omitempty"`
	QueueSize   int                    `json:"queue_size,omitempty"`
	Telegram    NotifierTelegramConfig `json:"telegram"`
}

type NotifierTelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

// HTTPConfig controls the JSON API consumed by the UI.
//
// Prefer binding to localhost; the API has no authentication layer of
// its own.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:8787"

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

type SystemEventConfig struct {
	Slug     string `json:"slug"`
	Severity string `json:"severity,omitempty"`
	Title    string `json:"title"`
	Message  string `json:"message"`
}

// ConsoleEnabled resolves the tri-state console flag.
func (l LoggingConfig) ConsoleEnabled() bool {
	return l.Console == nil || *l.Console
}
