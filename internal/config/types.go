package config

// Config is the root of the bot configuration file (YAML or JSON).
//
// All duration fields are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Reminders RemindersConfig `json:"reminders"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// RatePerSec caps outgoing sends (Telegram flood limits). Default 20.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the SQLite reminder store.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// RemindersConfig controls the scheduling engine.
type RemindersConfig struct {
	// Timezone is the IANA zone all schedules are evaluated in,
	// e.g. "Asia/Jakarta". Empty means the process-local zone.
	Timezone string `json:"timezone,omitempty"`
	// SendTimeout bounds a single delivery attempt at fire time.
	SendTimeout string `json:"send_timeout,omitempty"`
}
