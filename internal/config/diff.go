package config

import (
	"sort"
	"strings"

	logx "remindd/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	// Reminder schedule defaults
	if oldCfg.Reminder != newCfg.Reminder {
		changed = append(changed, "reminder")
		attrs = append(attrs,
			logx.String("reminder.url", strings.TrimSpace(newCfg.Reminder.URL)),
			logx.Int("reminder.total_minutes", newCfg.Reminder.TotalMinutes),
			logx.Int("reminder.first_minutes", newCfg.Reminder.FirstMinutes),
			logx.Int("reminder.second_minutes", newCfg.Reminder.SecondMinutes),
			logx.Int("reminder.subsequent_minutes", newCfg.Reminder.SubsequentMinutes),
			logx.Bool("reminder.sound_set", strings.TrimSpace(newCfg.Reminder.SoundPath) != ""),
			logx.Bool("reminder.autostart", newCfg.Reminder.Autostart),
		)
	}

	// Dispatch workers
	if oldCfg.Dispatch != newCfg.Dispatch {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.Int("dispatch.workers", newCfg.Dispatch.Workers),
			logx.Int("dispatch.queue_size", newCfg.Dispatch.QueueSize),
			logx.Int("dispatch.launches_per_minute", newCfg.Dispatch.LaunchesPerMinute),
			logx.String("dispatch.sound_timeout", strings.TrimSpace(newCfg.Dispatch.SoundTimeout)),
		)
	}

	// History persistence
	if oldCfg.History != newCfg.History {
		changed = append(changed, "history")
		attrs = append(attrs,
			logx.String("history.driver", strings.TrimSpace(newCfg.History.Driver)),
			logx.Bool("history.path_set", strings.TrimSpace(newCfg.History.Path) != ""),
			logx.Int("history.retention_days", newCfg.History.RetentionDays),
			logx.String("history.compact_schedule", strings.TrimSpace(newCfg.History.CompactSchedule)),
		)
	}

	// HTTP control API (never log token)
	if oldCfg.HTTP.Enabled != newCfg.HTTP.Enabled ||
		strings.TrimSpace(oldCfg.HTTP.Addr) != strings.TrimSpace(newCfg.HTTP.Addr) ||
		oldCfg.HTTP.AllowInsecure != newCfg.HTTP.AllowInsecure ||
		strings.TrimSpace(oldCfg.HTTP.ReadTimeout) != strings.TrimSpace(newCfg.HTTP.ReadTimeout) ||
		strings.TrimSpace(oldCfg.HTTP.WriteTimeout) != strings.TrimSpace(newCfg.HTTP.WriteTimeout) ||
		strings.TrimSpace(oldCfg.HTTP.IdleTimeout) != strings.TrimSpace(newCfg.HTTP.IdleTimeout) ||
		(strings.TrimSpace(oldCfg.HTTP.Token) != "") != (strings.TrimSpace(newCfg.HTTP.Token) != "") {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)),
			logx.Bool("http.token_set", strings.TrimSpace(newCfg.HTTP.Token) != ""),
			logx.Bool("http.allow_insecure", newCfg.HTTP.AllowInsecure),
		)
	}

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
