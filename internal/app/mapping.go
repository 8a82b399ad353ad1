package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"remindd/internal/config"
	"remindd/internal/dispatch"
	"remindd/internal/httpapi"
	"remindd/internal/maintenance"
	"remindd/internal/reminder"
	"remindd/internal/store"
)

// Environment overrides, loaded from the process env (or a .env file by
// cmd/remindd) before the config file is mapped. They keep the API token and
// host-specific bind address out of config.yaml.
const (
	envHTTPAddr  = "REMINDD_HTTP_ADDR"
	envHTTPToken = "REMINDD_HTTP_TOKEN"
)

// mapBootSettings turns the reminder section into engine settings. An empty
// section means "no boot defaults" (the engine falls back to its stock
// schedule); anything else must validate.
func mapBootSettings(cfg *config.Config) (reminder.Settings, error) {
	if cfg == nil || cfg.Reminder == (config.ReminderConfig{}) {
		return reminder.Settings{}, nil
	}
	r := cfg.Reminder
	set := reminder.Settings{
		URL:               strings.TrimSpace(r.URL),
		TotalMinutes:      r.TotalMinutes,
		FirstMinutes:      r.FirstMinutes,
		SecondMinutes:     r.SecondMinutes,
		SubsequentMinutes: r.SubsequentMinutes,
		BrowserPath:       strings.TrimSpace(r.BrowserPath),
		SoundPath:         strings.TrimSpace(r.SoundPath),
	}
	if err := set.Validate(); err != nil {
		return reminder.Settings{}, fmt.Errorf("reminder: %w", err)
	}
	return set, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	if cfg == nil {
		return dispatch.Config{}, nil
	}
	d := cfg.Dispatch
	if d.Workers < 0 {
		return dispatch.Config{}, fmt.Errorf("dispatch.workers must be >= 0")
	}
	if d.QueueSize < 0 {
		return dispatch.Config{}, fmt.Errorf("dispatch.queue_size must be >= 0")
	}
	if d.LaunchesPerMinute < 0 {
		return dispatch.Config{}, fmt.Errorf("dispatch.launches_per_minute must be >= 0")
	}
	st, err := config.ParseDurationField("dispatch.sound_timeout", d.SoundTimeout)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		Workers:           d.Workers,
		QueueSize:         d.QueueSize,
		LaunchesPerMinute: d.LaunchesPerMinute,
		SoundTimeout:      st,
	}, nil
}

func mapStoreConfig(cfg *config.Config) (store.Config, error) {
	if cfg == nil {
		return store.Config{Driver: "file", Path: "./remindd_data"}, nil
	}
	h := cfg.History
	driver := strings.ToLower(strings.TrimSpace(h.Driver))
	path := strings.TrimSpace(h.Path)

	switch driver {
	case "":
		driver = "file"
	case "file":
	case "sqlite", "sqlite3":
		if path == "" {
			return store.Config{}, fmt.Errorf("history.path is required when history.driver=sqlite")
		}
	default:
		return store.Config{}, fmt.Errorf("unknown history.driver: %s", h.Driver)
	}
	if path == "" {
		path = "./remindd_data"
	}

	busy, err := config.ParseDurationOrDefault("history.busy_timeout", h.BusyTimeout, time.Second)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
}

func mapMaintenanceConfig(cfg *config.Config) (maintenance.Config, error) {
	if cfg == nil {
		return maintenance.Config{}, nil
	}
	h := cfg.History
	if h.RetentionDays < 0 {
		return maintenance.Config{}, fmt.Errorf("history.retention_days must be >= 0")
	}
	return maintenance.Config{
		RetentionDays: h.RetentionDays,
		Schedule:      strings.TrimSpace(h.CompactSchedule),
	}, nil
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	if cfg == nil {
		return httpapi.Config{}, nil
	}
	h := cfg.HTTP
	read, err := config.ParseDurationField("http.read_timeout", h.ReadTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	write, err := config.ParseDurationField("http.write_timeout", h.WriteTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	idle, err := config.ParseDurationField("http.idle_timeout", h.IdleTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}

	hc := httpapi.Config{
		Enabled:       h.Enabled,
		Addr:          strings.TrimSpace(h.Addr),
		Token:         strings.TrimSpace(h.Token),
		AllowInsecure: h.AllowInsecure,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}
	if v := strings.TrimSpace(os.Getenv(envHTTPAddr)); v != "" {
		hc.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(envHTTPToken)); v != "" {
		hc.Token = v
	}
	return hc, nil
}
