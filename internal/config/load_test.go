package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, "config.yaml", `
telegram:
  token: "123:abc"
  channel_id: -100200300
  superadmin_id: 42
  poll_timeout: "15s"
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
storage:
  path: "./remindbot.db"
  busy_timeout: "5s"
guard:
  limit: 5
  window: "10s"
display_timezone: "Asia/Kolkata"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.ChannelID != -100200300 {
		t.Fatalf("ChannelID = %d", cfg.Telegram.ChannelID)
	}
	if cfg.Telegram.SuperadminID != 42 {
		t.Fatalf("SuperadminID = %d", cfg.Telegram.SuperadminID)
	}
	if got := cfg.DisplayLocation().String(); got != "Asia/Kolkata" {
		t.Fatalf("DisplayLocation = %s", got)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	p := writeFile(t, "config.yaml", `
telegram:
  token: "123:abc"
  channel_id: 1
  superadmin_id: 2
storage:
  path: "db"
liveness_probe: true
`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "env-token")
	t.Setenv("CHANNEL_ID", "-77")
	t.Setenv("SUPERADMIN_ID", "9")

	p := writeFile(t, "config.yaml", `
telegram:
  token: "file-token"
  channel_id: 1
  superadmin_id: 2
storage:
  path: "db"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("Token = %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.ChannelID != -77 || cfg.Telegram.SuperadminID != 9 {
		t.Fatalf("ids = %d/%d", cfg.Telegram.ChannelID, cfg.Telegram.SuperadminID)
	}
}

func TestValidateMissingToken(t *testing.T) {
	cfg := &Config{
		Telegram: TelegramConfig{ChannelID: 1, SuperadminID: 2},
		Storage:  StorageConfig{Path: "db"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{name: "empty", raw: "", want: 0},
		{name: "simple", raw: "10s", want: 10 * time.Second},
		{name: "compound", raw: "2h30m", want: 2*time.Hour + 30*time.Minute},
		{name: "negative", raw: "-5s", wantErr: true},
		{name: "garbage", raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDurationField("x", tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDurationField(%q): expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDurationField(%q): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}
