package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"remindd/internal/app"
)

func main() {
	var (
		cfgPath string
		envPath string
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml/json")
	flag.StringVar(&envPath, "env", "", "optional .env file (default ./.env when present)")
	flag.Parse()

	loadEnvFile(envPath)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(ctx, cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}
	// No-op outside a systemd unit with Type=notify.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	// a.Done() is a child of ctx, so both fire on a signal; the supervisor
	// error, not the woken branch, decides whether this stop is fatal.
	reason := app.StopSignal
	if ctx.Err() == nil && a.Err() != nil {
		reason = app.StopFatal
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	_ = a.Stop(stopCtx, reason)
	stopCancel()

	if reason == app.StopFatal {
		if err := a.Err(); err != nil {
			fmt.Println("fatal:", err)
		}
		os.Exit(1)
	}
}

// loadEnvFile loads variables from a dotenv file before the config is read,
// so REMINDD_* overrides reach the config mapping. A missing default file is
// fine; an explicitly named one that fails to load is reported.
func loadEnvFile(path string) {
	explicit := path != ""
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if explicit {
			fmt.Println("warn: env file not found:", path)
		}
		return
	}
	if err := godotenv.Load(path); err != nil {
		fmt.Println("warn: env file not loaded:", err)
	}
}
