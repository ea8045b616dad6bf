package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`

	// Timezone is the IANA zone used for event timestamps shown to users
	// and for janitor schedules (e.g. "Europe/Moscow"). Empty means Local.
	Timezone string `json:"timezone,omitempty"`

	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Fanout  FanoutConfig  `json:"fanout,omitempty"`
	Janitor JanitorConfig `json:"janitor,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// AdminIDs may create, edit and delete events.
	AdminIDs []int64 `json:"admin_ids"`

	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
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

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./remindbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// FanoutConfig controls reminder delivery.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - queue_size: 64
//   - rate_per_sec: 20
type FanoutConfig struct {
	Workers    int `json:"workers,omitempty"`
	QueueSize  int `json:"queue_size,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// JanitorConfig controls pruning of long-past events.
type JanitorConfig struct {
	Enabled bool `json:"enabled"`

	// Schedule is a cron spec or descriptor (default "@daily").
	Schedule string `json:"schedule,omitempty"`

	// Retention is how long past events are kept before pruning
	// (Go duration string, default "168h").
	Retention string `json:"retention,omitempty"`
}

// Validate checks the fields the app cannot start without.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	return nil
}

// Location resolves the configured timezone, falling back to Local.
func (c *Config) Location() *time.Location {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}

// ParseDuration parses an optional Go duration string config field,
// returning def when the field is empty.
func ParseDuration(name, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}
