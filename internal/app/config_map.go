package app

import (
	"strings"
	"time"

	"wirdbot/internal/admin"
	"wirdbot/internal/config"
	"wirdbot/internal/scheduler"
	"wirdbot/internal/session"
	"wirdbot/internal/storage"
	telegram "wirdbot/internal/transport/telegram/adapter"
	logx "wirdbot/pkg/logx"
)

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       strings.TrimSpace(cfg.Telegram.Token),
		PollTimeout: poll,
		SendRate:    cfg.Telegram.SendRatePerSec,
		SendBurst:   cfg.Telegram.SendBurst,
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "sqlite3":
		driver = "sqlite"
	case "postgresql", "pgx":
		driver = "postgres"
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: busy,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	delay, err := config.ParseDurationOrDefault("scheduler.page_delay", cfg.Scheduler.PageDelay, time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	timeout, err := config.ParseDurationOrDefault("scheduler.delivery_timeout", cfg.Scheduler.DeliveryTimeout, 5*time.Minute)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:         cfg.Scheduler.Enabled,
		Timezone:        strings.TrimSpace(cfg.Scheduler.Timezone),
		PageDelay:       delay,
		DeliveryTimeout: timeout,
		NoQuotes:        !cfg.Content.QuotesEnabled(),
	}, nil
}

func mapSessionConfig(cfg *config.Config) (session.Config, error) {
	timeout, err := config.ParseDurationOrDefault("session.timeout", cfg.Session.Timeout, 30*time.Minute)
	if err != nil {
		return session.Config{}, err
	}
	sweep, err := config.ParseDurationOrDefault("session.sweep_interval", cfg.Session.SweepInterval, 10*time.Minute)
	if err != nil {
		return session.Config{}, err
	}
	handler, err := config.ParseDurationOrDefault("session.handler_timeout", cfg.Session.HandlerTimeout, 30*time.Second)
	if err != nil {
		return session.Config{}, err
	}
	return session.Config{Timeout: timeout, SweepInterval: sweep, HandlerTimeout: handler}, nil
}

func mapAdminConfig(cfg *config.Config) (admin.Config, error) {
	read, err := config.ParseDurationOrDefault("admin.read_timeout", cfg.Admin.ReadTimeout, 10*time.Second)
	if err != nil {
		return admin.Config{}, err
	}
	// WriteTimeout defaults to 0 so /debug/pprof/profile (30s+) works.
	write, err := config.ParseDurationField("admin.write_timeout", cfg.Admin.WriteTimeout)
	if err != nil {
		return admin.Config{}, err
	}
	return admin.Config{
		Enabled:      cfg.Admin.Enabled,
		Addr:         strings.TrimSpace(cfg.Admin.Addr),
		Token:        strings.TrimSpace(cfg.Admin.Token),
		Pprof:        cfg.Admin.Pprof,
		ReadTimeout:  read,
		WriteTimeout: write,
	}, nil
}
