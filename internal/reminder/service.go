package reminder

import (
	"context"
	"sync"
	"time"

	"remindd/internal/eventbus"
	logx "remindd/pkg/logx"
)

const (
	recentStatusEntries = 20
	defaultHistoryLimit = 200
)

// Deps wires the facade's collaborators.
type Deps struct {
	Store      Store
	Dispatcher Dispatcher
	Bus        eventbus.Bus
	Log        logx.Logger
}

// Service is the thread-safe control surface over the engine and the store:
// configure, start, stop, status, history.
type Service struct {
	log logx.Logger
	st  Store
	eng *Engine

	// base bounds session lifetimes. Sessions belong to the daemon, not to
	// whichever request started them.
	base context.Context

	mu        sync.Mutex
	defaults  Settings
	fromStore bool // defaults were saved through the API, not the config file
}

// NewService builds the facade. Boot settings come from the service config
// file; settings previously saved through the API take precedence. ctx also
// bounds every session started later: when it is canceled, the active
// session halts.
func NewService(ctx context.Context, d Deps, boot Settings) (*Service, error) {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Service{
		log:      log,
		st:       d.Store,
		eng:      NewEngine(d.Dispatcher, d.Bus, log),
		base:     ctx,
		defaults: boot,
	}
	if s.defaults == (Settings{}) {
		s.defaults = DefaultSettings()
	}
	if d.Store != nil {
		saved, ok, err := d.Store.LoadSettings(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			s.defaults = saved
			s.fromStore = true
		}
	}
	return s, nil
}

// Configure validates and saves new default settings. An active session is
// not affected; it keeps the snapshot it started with.
func (s *Service) Configure(ctx context.Context, set Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.defaults = set
	s.fromStore = true
	s.mu.Unlock()

	s.persist(ctx, set)
	return nil
}

// Start begins a session. A nil override uses the saved defaults; a non-nil
// override is validated, used for this session, and on success becomes the
// new saved defaults.
func (s *Service) Start(ctx context.Context, override *Settings) error {
	s.mu.Lock()
	set := s.defaults
	s.mu.Unlock()
	if override != nil {
		if err := override.Validate(); err != nil {
			return err
		}
		set = *override
	}

	if err := s.eng.Start(s.base, set); err != nil {
		return err
	}

	if override != nil {
		s.mu.Lock()
		s.defaults = set
		s.fromStore = true
		s.mu.Unlock()
		s.persist(ctx, set)
	}
	return nil
}

// Stop ends the active session. Safe in any state.
func (s *Service) Stop(ctx context.Context) { s.eng.Stop(ctx) }

// Shutdown stops any active session as part of process teardown.
func (s *Service) Shutdown(ctx context.Context) { s.eng.stop(ctx, StopReasonShutdown) }

// Snapshot returns the engine state without touching the store. Status adds
// recent history and the heatmap on top of it.
func (s *Service) Snapshot() Status {
	return s.eng.Status()
}

// Status assembles the engine snapshot, the most recent history entries and
// today's heatmap.
func (s *Service) Status(ctx context.Context) StatusReport {
	rep := StatusReport{Status: s.eng.Status()}
	rep.Recent = []Entry{}
	if s.st == nil {
		return rep
	}
	entries, err := s.st.History(ctx, 0)
	if err != nil {
		s.log.Warn("history read failed", logx.Err(err))
		return rep
	}
	if len(entries) > recentStatusEntries {
		rep.Recent = entries[:recentStatusEntries]
	} else {
		rep.Recent = entries
	}
	rep.Heatmap = Heatmap(entries, time.Now())
	return rep
}

// History returns the newest entries first. limit <= 0 uses the default
// page of 200.
func (s *Service) History(ctx context.Context, limit int) ([]Entry, error) {
	if s.st == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.st.History(ctx, limit)
}

func (s *Service) ClearHistory(ctx context.Context) error {
	if s.st == nil {
		return nil
	}
	return s.st.Clear(ctx)
}

// Annotate attaches a note to the entry at the given time (zero time = most
// recent entry).
func (s *Service) Annotate(ctx context.Context, at time.Time, note string) error {
	if s.st == nil {
		return ErrNoEntry
	}
	return s.st.Annotate(ctx, at, note)
}

// Heatmap returns today's hourly trigger counts.
func (s *Service) Heatmap(ctx context.Context) ([24]int, error) {
	var hours [24]int
	if s.st == nil {
		return hours, nil
	}
	entries, err := s.st.History(ctx, 0)
	if err != nil {
		return hours, err
	}
	return Heatmap(entries, time.Now()), nil
}

// Defaults returns the settings the next session will run with.
func (s *Service) Defaults() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaults
}

// SetBootDefaults refreshes the config-file defaults on hot reload. Ignored
// once settings have been saved through the API.
func (s *Service) SetBootDefaults(set Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fromStore || set == (Settings{}) {
		return
	}
	s.defaults = set
}

// persist best-effort saves settings; the in-memory defaults stay
// authoritative when the store is degraded.
func (s *Service) persist(ctx context.Context, set Settings) {
	if s.st == nil {
		return
	}
	if err := s.st.SaveSettings(ctx, set); err != nil {
		s.log.Warn("settings not persisted; keeping in-memory value", logx.Err(err))
	}
}
