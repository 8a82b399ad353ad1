// Package app wires the reminder daemon: config manager, logging, store,
// dispatch workers, the reminder engine facade, the maintenance sweep and
// the HTTP control surface, plus config hot-reload fanout across them.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"remindd/internal/config"
	"remindd/internal/dispatch"
	"remindd/internal/eventbus"
	"remindd/internal/httpapi"
	"remindd/internal/maintenance"
	"remindd/internal/reminder"
	"remindd/internal/store"
	logx "remindd/pkg/logx"

	rtsup "remindd/internal/runtime/supervisor"
)

// StopReason says why the daemon is shutting down; it only affects logging.
type StopReason string

const (
	StopSignal StopReason = "signal"
	StopFatal  StopReason = "fatal_error"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store reminder.Store
	disp  *dispatch.Service
	rem   *reminder.Service
	maint *maintenance.Service
	api   *httpapi.Service
}

// NewApp loads the config file and constructs every component. ctx bounds
// the load phase and any reminder session started later: when it is
// canceled, the active session's heartbeat halts on its own.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStoreConfig(cfg)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	st, err := store.Open(ctx, sc, log.With(logx.String("comp", "store")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	log.Info("history store opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		_ = st.Close()
		logSvc.Close()
		return nil, err
	}
	disp := dispatch.New(dcfg, nil, st, bus, log.With(logx.String("comp", "dispatch")))

	boot, err := mapBootSettings(cfg)
	if err != nil {
		_ = st.Close()
		logSvc.Close()
		return nil, err
	}
	rem, err := reminder.NewService(ctx, reminder.Deps{
		Store:      st,
		Dispatcher: disp,
		Bus:        bus,
		Log:        log.With(logx.String("comp", "reminder")),
	}, boot)
	if err != nil {
		_ = st.Close()
		logSvc.Close()
		return nil, err
	}

	mcfg, err := mapMaintenanceConfig(cfg)
	if err != nil {
		_ = st.Close()
		logSvc.Close()
		return nil, err
	}
	maint := maintenance.New(mcfg, st, log.With(logx.String("comp", "maintenance")))

	hcfg, err := mapHTTPConfig(cfg)
	if err != nil {
		_ = st.Close()
		logSvc.Close()
		return nil, err
	}
	api := httpapi.New(hcfg, rem, log.With(logx.String("comp", "httpapi")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   st,
		disp:    disp,
		rem:     rem,
		maint:   maint,
		api:     api,
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if _, err := mapBootSettings(cfg); err != nil {
			return err
		}
		if _, err := mapDispatchConfig(cfg); err != nil {
			return err
		}
		if _, err := mapStoreConfig(cfg); err != nil {
			return err
		}
		if _, err := mapMaintenanceConfig(cfg); err != nil {
			return err
		}
		if _, err := mapHTTPConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	a.disp.Start(a.sup.Context())
	a.maint.Start(a.sup.Context())
	if a.api.Enabled() {
		a.api.Start(a.sup.Context())
	}

	if cfg := a.cfgm.Get(); cfg != nil && cfg.Reminder.Autostart {
		if err := a.rem.Start(a.sup.Context(), nil); err != nil {
			a.log.Warn("autostart session failed", logx.Err(err))
		} else {
			a.log.Info("autostart session begun")
		}
	}

	// Debug-log bus events (components can also subscribe themselves).
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// Hot reload config fanout.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("daemon started")
	return nil
}

// applyConfig fans a validated config out to the running services. The
// watcher's validator already rejected bad configs, so per-section mapping
// errors here only happen on races; they keep the previous section config.
func (a *App) applyConfig(ctx context.Context, old, newCfg *config.Config) {
	// The summary shapes logging only; every section is re-applied so
	// changes it cannot see (a rotated token value) still take effect.
	sections, attrs := config.SummarizeConfigChange(old, newCfg)
	var fields []logx.Field
	if len(sections) > 0 {
		fields = append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		a.log.Debug("config change summary", fields...)
	}

	// Logging first so the remaining steps log at the new level.
	a.logs.Apply(logx.Config{
		Level:   newCfg.Logging.Level,
		Console: newCfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: newCfg.Logging.File.Enabled,
			Path:    newCfg.Logging.File.Path,
		},
	})

	if dcfg, err := mapDispatchConfig(newCfg); err != nil {
		a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
	} else {
		a.disp.Apply(dcfg)
	}

	if mcfg, err := mapMaintenanceConfig(newCfg); err != nil {
		a.log.Warn("invalid history config; keeping previous", logx.Err(err))
	} else {
		a.maint.Apply(ctx, mcfg)
	}

	if hcfg, err := mapHTTPConfig(newCfg); err != nil {
		a.log.Warn("invalid http config; keeping previous", logx.Err(err))
	} else {
		a.api.Reconfigure(ctx, hcfg)
	}

	if boot, err := mapBootSettings(newCfg); err != nil {
		a.log.Warn("invalid reminder config; keeping previous", logx.Err(err))
	} else {
		// Only refreshes boot defaults; settings saved through the API win.
		a.rem.SetBootDefaults(boot)
	}

	// The storage driver binds at open; only a restart can change it.
	if old != nil && storageChanged(old.History, newCfg.History) {
		a.log.Warn("history storage config changed; restart required for changes to take effect")
	}

	if len(sections) > 0 {
		a.log.Info("config reloaded", fields...)
	} else {
		a.log.Info("config reloaded (no changes)")
	}
}

// storageChanged reports a change that cannot be hot-applied. Retention and
// schedule are excluded: the maintenance sweep picks those up live.
func storageChanged(a, b config.HistoryConfig) bool {
	return a.Driver != b.Driver || a.Path != b.Path || a.BusyTimeout != b.BusyTimeout
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding immediately.
	a.sup.Cancel()

	// step runs one shutdown stage with an upper bound so a single component
	// can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// Respect the caller's deadline; never extend it.
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			// Contract: fn MUST honor stepCtx and return promptly. If it
			// doesn't, log the leak when it eventually finishes.
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", time.Since(start)))
				}
			}()
		}
	}

	// Session first so no further triggers are produced, then the surfaces
	// and workers, then the store they write through.
	step("session", 2*time.Second, func(c context.Context) error { a.rem.Shutdown(c); return nil })
	step("httpapi", 2*time.Second, func(c context.Context) error { a.api.Stop(c); return nil })
	step("maintenance", time.Second, func(c context.Context) error { a.maint.Stop(c); return nil })
	step("dispatch", 2*time.Second, func(c context.Context) error { a.disp.Stop(c); return nil })
	step("store", time.Second, func(c context.Context) error { return a.store.Close() })

	// Finally, wait for supervised goroutines (config watch/reload, event log).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
