package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
telegram:
  token: "123:abc"
  admin_ids: [42, 99]
  poll_timeout: "15s"
timezone: "Europe/Moscow"
logging:
  level: "debug"
  console: true
  file:
    enabled: false
    path: ""
storage:
  driver: "sqlite"
  path: "./events.db"
fanout:
  workers: 2
  rate_per_sec: 5
janitor:
  enabled: true
  retention: "72h"
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.AdminIDs) != 2 || cfg.Telegram.AdminIDs[0] != 42 {
		t.Fatalf("admin_ids = %v", cfg.Telegram.AdminIDs)
	}
	if cfg.Fanout.Workers != 2 {
		t.Fatalf("fanout.workers = %d", cfg.Fanout.Workers)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := cfg.Location().String(); got != "Europe/Moscow" {
		t.Fatalf("Location = %s", got)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"telegram":{"token":"t"},"bogus":1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"telegram":{"token":"t"}}{"again":true}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "ok",
			cfg: Config{
				Telegram: TelegramConfig{Token: "t"},
				Storage:  StorageConfig{Path: "./db"},
			},
		},
		{
			name:    "missing token",
			cfg:     Config{Storage: StorageConfig{Path: "./db"}},
			wantErr: true,
		},
		{
			name:    "missing storage path",
			cfg:     Config{Telegram: TelegramConfig{Token: "t"}},
			wantErr: true,
		},
		{
			name: "bad timezone",
			cfg: Config{
				Telegram: TelegramConfig{Token: "t"},
				Storage:  StorageConfig{Path: "./db"},
				Timezone: "Mars/Olympus",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	t.Parallel()
	d, err := ParseDuration("x", "", 10*time.Second)
	if err != nil || d != 10*time.Second {
		t.Fatalf("default: %v %v", d, err)
	}
	d, err = ParseDuration("x", "2m", 0)
	if err != nil || d != 2*time.Minute {
		t.Fatalf("parsed: %v %v", d, err)
	}
	if _, err = ParseDuration("x", "nope", 0); err == nil {
		t.Fatal("expected error")
	}
}
