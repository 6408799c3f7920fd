package config

import (
	"hash/fnv"
	"strings"

	logx "wirdbot/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging. Secrets (tokens, DSN) are never included;
// only whether they are set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	o, n := oldCfg.Telegram, newCfg.Telegram
	if trimNe(o.PollTimeout, n.PollTimeout) || trimNe(o.GroupLog, n.GroupLog) ||
		o.SendRatePerSec != n.SendRatePerSec || o.SendBurst != n.SendBurst || trimNe(o.Token, n.Token) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(n.PollTimeout)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(n.GroupLog) != ""),
			logx.Any("telegram.send_rate_per_sec", n.SendRatePerSec),
			logx.Bool("telegram.token_changed", trimNe(o.Token, n.Token)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.page_delay", strings.TrimSpace(newCfg.Scheduler.PageDelay)),
		)
	}

	if oldCfg.Session != newCfg.Session {
		changed = append(changed, "session")
		attrs = append(attrs,
			logx.String("session.timeout", strings.TrimSpace(newCfg.Session.Timeout)),
			logx.String("session.handler_timeout", strings.TrimSpace(newCfg.Session.HandlerTimeout)),
		)
	}

	if trimNe(oldCfg.Content.PagesDir, newCfg.Content.PagesDir) ||
		oldCfg.Content.QuotesEnabled() != newCfg.Content.QuotesEnabled() {
		changed = append(changed, "content")
		attrs = append(attrs,
			logx.String("content.pages_dir", strings.TrimSpace(newCfg.Content.PagesDir)),
			logx.Bool("content.caption_quotes", newCfg.Content.QuotesEnabled()),
		)
	}

	if oldCfg.Admin != newCfg.Admin {
		changed = append(changed, "admin")
		attrs = append(attrs,
			logx.Bool("admin.enabled", newCfg.Admin.Enabled),
			logx.String("admin.addr", strings.TrimSpace(newCfg.Admin.Addr)),
			logx.Bool("admin.token_set", strings.TrimSpace(newCfg.Admin.Token) != ""),
			logx.Bool("admin.pprof", newCfg.Admin.Pprof),
		)
	}
	return changed, attrs
}

// RestartRequired lists changed sections that only take effect after a restart.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "storage", "content":
			out = append(out, s)
		}
	}
	return out
}

func trimNe(a, b string) bool { return strings.TrimSpace(a) != strings.TrimSpace(b) }

func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
