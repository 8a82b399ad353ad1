// Package maintenance runs the periodic history retention sweep.
package maintenance

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "remindd/pkg/logx"
)

const defaultSchedule = "@daily"

// Compactor prunes history entries older than the given age; the store
// implements it.
type Compactor interface {
	Compact(ctx context.Context, olderThan time.Duration) (int, error)
}

// Config controls the sweep. RetentionDays <= 0 disables age pruning
// entirely (the history cap still bounds growth on append).
type Config struct {
	RetentionDays int
	Schedule      string
}

type Service struct {
	log  logx.Logger
	comp Compactor

	mu  sync.Mutex
	cfg Config
	c   *cron.Cron

	parser cron.Parser
}

func New(cfg Config, comp Compactor, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:  log,
		comp: comp,
		cfg:  cfg,
		parser: cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	if s.cfg.RetentionDays <= 0 {
		s.log.Debug("history retention disabled")
		return
	}

	spec := strings.TrimSpace(s.cfg.Schedule)
	if spec == "" {
		spec = defaultSchedule
	}
	c := cron.New(cron.WithParser(s.parser))
	if _, err := c.AddFunc(spec, func() { s.sweep() }); err != nil {
		s.log.Warn("invalid compact schedule, using default", logx.String("schedule", spec), logx.Err(err))
		spec = defaultSchedule
		if _, err := c.AddFunc(spec, func() { s.sweep() }); err != nil {
			s.log.Error("compact schedule unusable", logx.Err(err))
			return
		}
	}
	c.Start()
	s.c = c
	s.log.Info("maintenance started", logx.String("schedule", spec), logx.Int("retention_days", s.cfg.RetentionDays))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		// running sweep continues in background
	}
	s.log.Info("maintenance stopped")
}

// Apply restarts the cron when retention or schedule changed. A service
// that was never started stays stopped; Start decides whether the new
// config enables it.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	s.mu.Lock()
	changed := cfg != s.cfg
	s.cfg = cfg
	running := s.c != nil
	s.mu.Unlock()
	if !changed || !running {
		return
	}
	s.Stop(ctx)
	s.Start(ctx)
}

func (s *Service) sweep() {
	s.mu.Lock()
	days := s.cfg.RetentionDays
	s.mu.Unlock()
	if days <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := s.comp.Compact(ctx, time.Duration(days)*24*time.Hour)
	if err != nil {
		s.log.Warn("history compact failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("history compacted", logx.Int("removed", n), logx.Int("retention_days", days))
	}
}
