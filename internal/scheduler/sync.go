// Package scheduler runs scheduled passes for mappings that declare a cron
// schedule, and optionally sweeps runs left running by a crash.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/cardsync/internal/entities"
	"github.com/mrlokans/cardsync/internal/services"
	"github.com/mrlokans/cardsync/internal/syncengine"
)

// Runner is the part of the sync service the scheduler drives.
type Runner interface {
	ListScheduledMappings(ctx context.Context) ([]entities.Mapping, error)
	Pull(ctx context.Context, mappingID uint, autoApply bool) (*syncengine.PullResult, error)
	Push(ctx context.Context, mappingID uint) (*entities.SyncRun, error)
	FailStaleRuns(ctx context.Context, timeout time.Duration) (int64, error)
}

type Options struct {
	// StaleRunTimeout enables the stale run sweep when positive.
	StaleRunTimeout time.Duration
	// RunTimeout bounds a single scheduled pass. Defaults to 30 minutes.
	RunTimeout time.Duration
	Logger     *slog.Logger
}

// SyncScheduler keeps one cron entry per scheduled mapping.
type SyncScheduler struct {
	runner       Runner
	logger       *slog.Logger
	staleTimeout time.Duration
	runTimeout   time.Duration

	mu         sync.RWMutex
	cron       *cron.Cron
	entries    map[uint]cron.EntryID
	isRunning  bool
	cancelFunc context.CancelFunc
}

func NewSyncScheduler(runner Runner, opts Options) *SyncScheduler {
	s := &SyncScheduler{
		runner:       runner,
		logger:       opts.Logger,
		staleTimeout: opts.StaleRunTimeout,
		runTimeout:   opts.RunTimeout,
		entries:      make(map[uint]cron.EntryID),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.runTimeout <= 0 {
		s.runTimeout = 30 * time.Minute
	}
	return s
}

// Start registers every scheduled mapping and starts the cron loop. Mappings
// with an invalid schedule are logged and skipped.
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	mappings, err := s.runner.ListScheduledMappings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load scheduled mappings: %w", err)
	}

	s.cron = cron.New(cron.WithParser(cronParser))
	s.entries = make(map[uint]cron.EntryID, len(mappings))

	for _, m := range mappings {
		mapping := m
		if err := ValidateCronSchedule(mapping.Schedule); err != nil {
			s.logger.Warn("invalid mapping schedule, skipping",
				slog.Uint64("mapping_id", uint64(mapping.ID)),
				slog.String("schedule", mapping.Schedule),
				slog.Any("error", err),
			)
			continue
		}
		entryID, err := s.cron.AddFunc(mapping.Schedule, func() {
			s.RunMapping(context.Background(), &mapping)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule mapping %d: %w", mapping.ID, err)
		}
		s.entries[mapping.ID] = entryID
	}

	if s.staleTimeout > 0 {
		if _, err := s.cron.AddFunc(staleSweepSchedule, func() {
			s.SweepStaleRuns(context.Background())
		}); err != nil {
			return fmt.Errorf("failed to schedule stale run sweep: %w", err)
		}
	}

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true
	s.logger.Info("sync scheduler started",
		slog.Int("mappings", len(s.entries)),
		slog.Duration("stale_run_timeout", s.staleTimeout),
	)

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop stops accepting new jobs and waits for running ones to complete.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	done := s.cron.Stop()
	<-done.Done()

	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}
	s.isRunning = false
	s.logger.Info("sync scheduler stopped")
}

// Reschedule reloads mappings, typically after a mapping file was applied.
func (s *SyncScheduler) Reschedule(ctx context.Context) error {
	s.Stop()
	return s.Start(ctx)
}

func (s *SyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRuns returns the next activation per scheduled mapping.
func (s *SyncScheduler) NextRuns() map[uint]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	next := make(map[uint]time.Time, len(s.entries))
	if !s.isRunning {
		return next
	}
	for mappingID, entryID := range s.entries {
		next[mappingID] = s.cron.Entry(entryID).Next
	}
	return next
}

// RunMapping performs the scheduled passes of one mapping: a pull when the
// direction allows it, then a push when the direction allows it. A mapping
// that is already running is skipped.
func (s *SyncScheduler) RunMapping(ctx context.Context, mapping *entities.Mapping) {
	ctx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	logger := s.logger.With(slog.Uint64("mapping_id", uint64(mapping.ID)), slog.String("mapping", mapping.Name))

	if mapping.SyncDirection.AllowsPull() {
		if _, err := s.runner.Pull(ctx, mapping.ID, false); err != nil {
			if errors.Is(err, services.ErrRunActive) {
				logger.Info("scheduled sync skipped, already running")
				return
			}
			logger.Error("scheduled pull failed", slog.Any("error", err))
			return
		}
	}

	if mapping.SyncDirection.AllowsPush() {
		if _, err := s.runner.Push(ctx, mapping.ID); err != nil {
			if errors.Is(err, services.ErrRunActive) {
				logger.Info("scheduled push skipped, already running")
				return
			}
			logger.Error("scheduled push failed", slog.Any("error", err))
		}
	}
}

// SweepStaleRuns marks runs older than the stale timeout as failed.
func (s *SyncScheduler) SweepStaleRuns(ctx context.Context) {
	if s.staleTimeout <= 0 {
		return
	}
	if _, err := s.runner.FailStaleRuns(ctx, s.staleTimeout); err != nil {
		s.logger.Error("stale run sweep failed", slog.Any("error", err))
	}
}
