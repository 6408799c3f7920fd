package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
telegram:
  token: "file-token"
  poll_timeout: 15s
  group_log: "-1001"
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./data/wirdbot.db
scheduler:
  enabled: true
  timezone: Africa/Casablanca
  page_delay: 1s
session:
  timeout: 30m
content:
  pages_dir: ./pages
  caption_quotes: false
admin:
  enabled: true
  addr: 127.0.0.1:0
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func noEnv(string) string { return "" }

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "config.yaml", sampleYAML))
	m.getenv = noEnv

	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Telegram.Token != "file-token" || cfg.Scheduler.Timezone != "Africa/Casablanca" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Content.QuotesEnabled() {
		t.Fatalf("caption_quotes=false not honored")
	}
	if err := Validate(context.Background(), cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "config.json", `{"telegram":{"token":"x"},"plugins":{}}`))
	m.getenv = noEnv
	if _, err := m.Parse(); err == nil {
		t.Fatal("unknown section accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "config.json", `{"telegram":{"token":"x"}}{}`))
	m.getenv = noEnv
	if _, err := m.Parse(); err == nil || !strings.Contains(err.Error(), "trailing") {
		t.Fatalf("err=%v", err)
	}
}

func TestEnvOverridesSecrets(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "config.json", `{"telegram":{"token":"file"},"storage":{}}`))
	m.getenv = func(k string) string {
		switch k {
		case EnvTelegramToken:
			return "env-token"
		case EnvDatabaseURL:
			return "postgres://u:p@db/wird"
		}
		return ""
	}
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("token=%q", cfg.Telegram.Token)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.DSN != "postgres://u:p@db/wird" {
		t.Fatalf("storage=%+v", cfg.Storage)
	}
}

func TestLoadDotEnv(t *testing.T) {
	p := writeFile(t, ".env", "WIRDBOT_TEST_DOTENV=loaded\n")
	t.Setenv("WIRDBOT_TEST_DOTENV", "")
	os.Unsetenv("WIRDBOT_TEST_DOTENV")
	if err := LoadDotEnv(p); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("WIRDBOT_TEST_DOTENV"); got != "loaded" {
		t.Fatalf("env=%q", got)
	}
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file: %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "t"},
			Storage:  StorageConfig{Driver: "memory"},
		}
	}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.Telegram.Token = "" }, wantErr: "telegram.token"},
		{name: "bad poll timeout", mutate: func(c *Config) { c.Telegram.PollTimeout = "soon" }, wantErr: "telegram.poll_timeout"},
		{name: "bad group log", mutate: func(c *Config) { c.Telegram.GroupLog = "ops" }, wantErr: "telegram.group_log"},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "redis" }, wantErr: "storage.driver"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage.Driver = "sqlite" }, wantErr: "storage.path"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Driver = "postgres" }, wantErr: "storage.dsn"},
		{name: "bad timezone", mutate: func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, wantErr: "scheduler.timezone"},
		{name: "negative delay", mutate: func(c *Config) { c.Scheduler.PageDelay = "-1s" }, wantErr: "scheduler.page_delay"},
		{name: "scheduler without pages", mutate: func(c *Config) { c.Scheduler.Enabled = true }, wantErr: "content.pages_dir"},
		{name: "bad session timeout", mutate: func(c *Config) { c.Session.Timeout = "1 hour" }, wantErr: "session.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base()
			tt.mutate(c)
			err := Validate(context.Background(), c)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err=%v want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 3*time.Second)
	if err != nil || d != 3*time.Second {
		t.Fatalf("d=%v err=%v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "250ms", time.Second)
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("d=%v err=%v", d, err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	off := false
	oldCfg := &Config{Telegram: TelegramConfig{Token: "a"}, Admin: AdminConfig{Token: "s1"}}
	newCfg := &Config{
		Telegram:  TelegramConfig{Token: "a"},
		Admin:     AdminConfig{Token: "s2"},
		Scheduler: SchedulerConfig{Timezone: "UTC"},
		Content:   ContentConfig{CaptionQuotes: &off},
	}
	sections, attrs := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"scheduler", "content", "admin"}
	if !slices.Equal(sections, want) {
		t.Fatalf("sections=%v want %v", sections, want)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}
	if got := RestartRequired(sections); !slices.Equal(got, []string{"content"}) {
		t.Fatalf("restart=%v", got)
	}

	if s, _ := SummarizeConfigChange(newCfg, newCfg); len(s) != 0 {
		t.Fatalf("identical configs reported %v", s)
	}
}

func TestWatchPublishesValidatedChanges(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "config.json", `{"telegram":{"token":"a"},"storage":{"driver":"memory"}}`)
	m := NewConfigManager(p)
	m.getenv = noEnv
	m.debounce = 20 * time.Millisecond
	m.SetValidator(Validate)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	sub := m.Subscribe(2)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// invalid: rejected by the validator, never published
	if err := os.WriteFile(p, []byte(`{"telegram":{"token":""},"storage":{"driver":"memory"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	if err := os.WriteFile(p, []byte(`{"telegram":{"token":"b"},"storage":{"driver":"memory"}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-sub:
		if cfg.Telegram.Token != "b" {
			t.Fatalf("published token=%q", cfg.Telegram.Token)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no config published")
	}
	if got := m.Get().Telegram.Token; got != "b" {
		t.Fatalf("committed token=%q", got)
	}
}

func TestParseYAMLStrictness(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "unknown key", body: "telegram:\n  token: x\n  tokn: y\n", wantErr: "tokn"},
		{name: "second document", body: "telegram:\n  token: x\n---\nadmin:\n  enabled: true\n", wantErr: "trailing"},
		{name: "bare seconds", body: "scheduler:\n  page_delay: 2\n"},
		{name: "empty file", body: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewConfigManager(writeFile(t, "config.yml", tt.body))
			m.getenv = noEnv
			cfg, err := m.Parse()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err=%v want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if tt.name == "bare seconds" {
				d, err := ParseDurationField("scheduler.page_delay", cfg.Scheduler.PageDelay)
				if err != nil || d != 2*time.Second {
					t.Fatalf("d=%v err=%v", d, err)
				}
			}
		})
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()
	b := &backoff{base: 100 * time.Millisecond, max: 400 * time.Millisecond}
	for i, lo := range []time.Duration{100, 200, 400, 400} {
		lo *= time.Millisecond
		if got := b.next(); got < lo || got > lo+lo/2 {
			t.Fatalf("step %d: wait=%v want [%v, %v]", i, got, lo, lo+lo/2)
		}
	}
	b.reset()
	if got := b.next(); got > 150*time.Millisecond {
		t.Fatalf("after reset wait=%v", got)
	}
}
