package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Validate rejects configs that would fail at startup or on hot reload.
// It is safe to use as the ConfigManager validator.
func Validate(_ context.Context, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required (or set %s)", EnvTelegramToken)
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if cfg.Telegram.SendRatePerSec < 0 {
		return fmt.Errorf("telegram.send_rate_per_sec must be >= 0")
	}
	if _, err := ParseGroupLog(cfg.Telegram.GroupLog); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn is required when storage.driver=postgres (or set %s)", EnvDatabaseURL)
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.driver: %s", cfg.Storage.Driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	for path, raw := range map[string]string{
		"scheduler.page_delay":       cfg.Scheduler.PageDelay,
		"scheduler.delivery_timeout": cfg.Scheduler.DeliveryTimeout,
		"session.timeout":            cfg.Session.Timeout,
		"session.sweep_interval":     cfg.Session.SweepInterval,
		"session.handler_timeout":    cfg.Session.HandlerTimeout,
		"admin.read_timeout":         cfg.Admin.ReadTimeout,
		"admin.write_timeout":        cfg.Admin.WriteTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}

	if cfg.Scheduler.Enabled && strings.TrimSpace(cfg.Content.PagesDir) == "" {
		return fmt.Errorf("content.pages_dir is required when scheduler.enabled is true")
	}
	return nil
}

// ParseGroupLog parses telegram.group_log. Empty means no log group.
func ParseGroupLog(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram.group_log: invalid chat id %q", raw)
	}
	return id, nil
}
