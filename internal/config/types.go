package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Guard    GuardConfig    `json:"guard,omitempty"`
	Notify   NotifyConfig   `json:"notify,omitempty"`

	// DisplayTimezone is the IANA zone used to parse operator-supplied times
	// and to render reminder times back to operators. Stored times are UTC.
	DisplayTimezone string `json:"display_timezone,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"`

	// ChannelID is the broadcast destination for reminder notifications.
	ChannelID int64 `json:"channel_id,omitempty"`

	// SuperadminID is seeded into the role store at startup if absent.
	SuperadminID int64 `json:"superadmin_id,omitempty"`

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

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// GuardConfig controls the abuse guard. Zero values fall back to the
// defaults used by the original deployment (5 requests per 10s window).
type GuardConfig struct {
	Limit      int    `json:"limit,omitempty"`
	Window     string `json:"window,omitempty"`      // Go duration string
	PruneEvery string `json:"prune_every,omitempty"` // Go duration string
}

// NotifyConfig controls the outbound send throttle.
type NotifyConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// Validate checks fields that would otherwise only fail deep inside startup.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required (config or BOT_TOKEN)")
	}
	if c.Telegram.ChannelID == 0 {
		return errors.New("telegram.channel_id is required (config or CHANNEL_ID)")
	}
	if c.Telegram.SuperadminID == 0 {
		return errors.New("telegram.superadmin_id is required (config or SUPERADMIN_ID)")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if tz := strings.TrimSpace(c.DisplayTimezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("display_timezone: %w", err)
		}
	}
	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"guard.window", c.Guard.Window},
		{"guard.prune_every", c.Guard.PruneEvery},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if c.Guard.Limit < 0 {
		return errors.New("guard.limit must be >= 0")
	}
	if c.Notify.RatePerSec < 0 {
		return errors.New("notify.rate_per_sec must be >= 0")
	}
	return nil
}

// DisplayLocation resolves the configured display timezone.
// Invalid or empty zones fall back to Asia/Kolkata (the original audience).
func (c *Config) DisplayLocation() *time.Location {
	tz := strings.TrimSpace(c.DisplayTimezone)
	if tz == "" {
		tz = "Asia/Kolkata"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
