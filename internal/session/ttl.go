package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/ashureev/mailsmith/internal/metrics"
	"github.com/ashureev/mailsmith/internal/store"
)

const endedSessionRetention = 7 * 24 * time.Hour

// CleanupCallback is called for every session torn down by the sweeper.
type CleanupCallback func(key Key)

// Sweeper tears down idle sessions on a fixed interval.
type Sweeper struct {
	repo      store.Repository
	arena     *Arena
	ttl       time.Duration
	onCleanup CleanupCallback
	logger    *slog.Logger
	scheduler gocron.Scheduler
	stopOnce  sync.Once
	stopErr   error
}

// NewSweeper creates a sweeper. Start schedules it.
func NewSweeper(repo store.Repository, arena *Arena, ttl time.Duration, onCleanup CleanupCallback, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		repo:      repo,
		arena:     arena,
		ttl:       ttl,
		onCleanup: onCleanup,
		logger:    logger.With("component", "session_sweeper"),
	}
}

// Start runs the sweep every interval until ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) error {
	sched, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(gocronLogger{logger: s.logger}),
	)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.SweepOnce(ctx) }),
		gocron.WithName("session-ttl-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule session sweep: %w", err)
	}

	sched.Start()
	s.scheduler = sched
	s.logger.Info("session sweeper started", "interval", interval, "ttl", s.ttl)

	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			s.logger.Warn("session sweeper shutdown failed", "error", err)
		}
	}()
	return nil
}

// Stop shuts the scheduler down. Safe to call more than once.
func (s *Sweeper) Stop() error {
	if s.scheduler == nil {
		return nil
	}
	s.stopOnce.Do(func() {
		err := s.scheduler.Shutdown()
		if err != nil && !errors.Is(err, gocron.ErrStopSchedulerTimedOut) {
			s.stopErr = fmt.Errorf("shutdown scheduler: %w", err)
		}
	})
	return s.stopErr
}

// SweepOnce tears down the sessions idle for longer than the TTL, in the
// registry and in the arena.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	cleaned := 0
	now := time.Now()

	expired, err := s.repo.GetExpiredSessions(ctx, s.ttl)
	if err != nil {
		s.logger.Error("failed to get expired sessions", "error", err)
	}
	for _, rec := range expired {
		key := Key{UserID: rec.UserID, SessionID: rec.SessionID}
		s.arena.Close(key.UserID, key.SessionID)
		s.cleanup(key)

		if err := s.repo.EndSession(ctx, rec.UserID, rec.SessionID, now); err != nil {
			s.logger.Warn("failed to end expired session",
				"error", err,
				"user_id", rec.UserID,
				"session_id", rec.SessionID)
		}
		cleaned++
	}

	// Sessions that never reached the registry still age out of memory.
	for _, key := range s.arena.Sweep(s.ttl) {
		s.cleanup(key)
		cleaned++
	}

	if cleaned > 0 {
		metrics.Get().SessionsSwept.Add(float64(cleaned))
		s.logger.Info("session sweep completed", "cleaned", cleaned)
	}

	if deleted, err := s.repo.CleanupEndedSessions(ctx, endedSessionRetention); err != nil {
		s.logger.Error("failed to cleanup ended sessions", "error", err)
	} else if deleted > 0 {
		s.logger.Info("cleaned up ended sessions", "count", deleted)
	}
	return cleaned
}

func (s *Sweeper) cleanup(key Key) {
	if s.onCleanup != nil {
		s.onCleanup(key)
	}
}

// gocronLogger adapts slog to gocron.Logger.
type gocronLogger struct {
	logger *slog.Logger
}

func (l gocronLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l gocronLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l gocronLogger) Info(msg string, args ...any)  { l.logger.Debug(msg, args...) }
func (l gocronLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
