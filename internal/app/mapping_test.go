package app

import (
	"testing"
	"time"

	"remindd/internal/config"
)

func TestMapBootSettings(t *testing.T) {
	if set, err := mapBootSettings(&config.Config{}); err != nil || set.URL != "" {
		t.Fatalf("empty section: set=%+v err=%v", set, err)
	}

	cfg := &config.Config{Reminder: config.ReminderConfig{
		URL:               "https://example.com",
		TotalMinutes:      30,
		FirstMinutes:      1,
		SecondMinutes:     2,
		SubsequentMinutes: 3,
	}}
	set, err := mapBootSettings(cfg)
	if err != nil {
		t.Fatalf("valid section: %v", err)
	}
	if set.TotalMinutes != 30 || set.SubsequentMinutes != 3 {
		t.Fatalf("mapped settings = %+v", set)
	}

	bad := &config.Config{Reminder: config.ReminderConfig{URL: "ftp://x", TotalMinutes: 1, FirstMinutes: 1, SecondMinutes: 1, SubsequentMinutes: 1}}
	if _, err := mapBootSettings(bad); err == nil {
		t.Fatal("bad scheme accepted")
	}
}

func TestMapStoreConfig(t *testing.T) {
	sc, err := mapStoreConfig(&config.Config{})
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if sc.Driver != "file" || sc.Path != "./remindd_data" {
		t.Fatalf("defaults = %+v", sc)
	}

	if _, err := mapStoreConfig(&config.Config{History: config.HistoryConfig{Driver: "redis"}}); err == nil {
		t.Fatal("unknown driver accepted")
	}
	if _, err := mapStoreConfig(&config.Config{History: config.HistoryConfig{Driver: "sqlite"}}); err == nil {
		t.Fatal("sqlite without path accepted")
	}

	sc, err = mapStoreConfig(&config.Config{History: config.HistoryConfig{
		Driver: "sqlite", Path: "/tmp/r.db", BusyTimeout: "250ms",
	}})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	if sc.BusyTimeout != 250*time.Millisecond {
		t.Fatalf("busy timeout = %v", sc.BusyTimeout)
	}
}

func TestMapHTTPConfigEnvOverrides(t *testing.T) {
	cfg := &config.Config{HTTP: config.HTTPConfig{
		Enabled: true, Addr: "127.0.0.1:8787", Token: "from-file",
	}}

	hc, err := mapHTTPConfig(cfg)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if hc.Addr != "127.0.0.1:8787" || hc.Token != "from-file" {
		t.Fatalf("file values = %+v", hc)
	}

	t.Setenv(envHTTPAddr, "127.0.0.1:9999")
	t.Setenv(envHTTPToken, "from-env")
	hc, err = mapHTTPConfig(cfg)
	if err != nil {
		t.Fatalf("map with env: %v", err)
	}
	if hc.Addr != "127.0.0.1:9999" || hc.Token != "from-env" {
		t.Fatalf("env overrides = %+v", hc)
	}

	if _, err := mapHTTPConfig(&config.Config{HTTP: config.HTTPConfig{ReadTimeout: "soon"}}); err == nil {
		t.Fatal("bad duration accepted")
	}
}

func TestMapDispatchConfig(t *testing.T) {
	dc, err := mapDispatchConfig(&config.Config{Dispatch: config.DispatchConfig{
		Workers: 4, QueueSize: 32, LaunchesPerMinute: 10, SoundTimeout: "3s",
	}})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if dc.Workers != 4 || dc.SoundTimeout != 3*time.Second {
		t.Fatalf("mapped = %+v", dc)
	}

	if _, err := mapDispatchConfig(&config.Config{Dispatch: config.DispatchConfig{Workers: -1}}); err == nil {
		t.Fatal("negative workers accepted")
	}
}
