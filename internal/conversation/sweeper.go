package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically drops sessions that sat idle longer than the
// configured timeout. With a zero timeout it never schedules anything.
type Sweeper struct {
	sessions *SessionTable
	idle     time.Duration
	cron     *cron.Cron
	logger   *slog.Logger
}

func NewSweeper(log *slog.Logger, sessions *SessionTable, idle time.Duration, schedule string) (*Sweeper, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Sweeper{
		sessions: sessions,
		idle:     idle,
		logger:   log.With(slog.String("component", "session_sweeper")),
	}
	if idle <= 0 {
		return s, nil
	}
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := s.cron.AddFunc(schedule, s.Sweep); err != nil {
		return nil, fmt.Errorf("session sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Enabled reports whether a timeout is configured.
func (s *Sweeper) Enabled() bool {
	return s.cron != nil
}

func (s *Sweeper) Start() {
	if s.cron == nil {
		return
	}
	s.logger.Info("start", slog.Duration("idle_timeout", s.idle))
	s.cron.Start()
}

// Stop waits for a running sweep or until ctx is done.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep runs one pass.
func (s *Sweeper) Sweep() {
	if removed := s.sessions.Sweep(s.idle); removed > 0 {
		s.logger.Info("idle sessions dropped", slog.Int("count", removed), slog.Int("remaining", s.sessions.Len()))
	}
}
