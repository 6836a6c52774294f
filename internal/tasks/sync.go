package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/cardsync/internal/entities"
	"github.com/mrlokans/cardsync/internal/services"
	"github.com/mrlokans/cardsync/internal/syncengine"
)

const (
	QueueSyncPull  = "sync_pull"
	QueueSyncPush  = "sync_push"
	QueueSyncApply = "sync_apply"
)

// SyncRunner runs sync passes. *services.SyncService implements it.
type SyncRunner interface {
	Pull(ctx context.Context, mappingID uint, autoApply bool) (*syncengine.PullResult, error)
	Push(ctx context.Context, mappingID uint) (*entities.SyncRun, error)
	ApplyRun(ctx context.Context, runID uint) (*syncengine.ApplySummary, error)
}

func syncRetention() *backlite.Retention {
	return &backlite.Retention{
		Duration:   72 * time.Hour,
		OnlyFailed: false,
		Data:       &backlite.RetainData{OnlyFailed: true},
	}
}

// SyncPullTask runs a pull for one mapping. A failed pass is retried as a new run.
type SyncPullTask struct {
	MappingID uint `json:"mapping_id"`
	AutoApply bool `json:"auto_apply"`
}

func (t SyncPullTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        QueueSyncPull,
		MaxAttempts: 3,
		Backoff:     time.Minute,
		Timeout:     30 * time.Minute,
		Retention:   syncRetention(),
	}
}

// SyncPushTask runs a push for one mapping.
type SyncPushTask struct {
	MappingID uint `json:"mapping_id"`
}

func (t SyncPushTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        QueueSyncPush,
		MaxAttempts: 3,
		Backoff:     time.Minute,
		Timeout:     30 * time.Minute,
		Retention:   syncRetention(),
	}
}

// SyncApplyTask applies the staged records of a finished pull run. It is
// attempted once.
type SyncApplyTask struct {
	RunID uint `json:"run_id"`
}

func (t SyncApplyTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        QueueSyncApply,
		MaxAttempts: 1,
		Timeout:     30 * time.Minute,
		Retention:   syncRetention(),
	}
}

// SyncPullProcessor creates a processor for SyncPullTask. A mapping that is
// already running completes the task without retry.
func SyncPullProcessor(runner SyncRunner, logger *slog.Logger) backlite.QueueProcessor[SyncPullTask] {
	return func(ctx context.Context, task SyncPullTask) error {
		result, err := runner.Pull(ctx, task.MappingID, task.AutoApply)
		if errors.Is(err, services.ErrRunActive) {
			logger.Info("pull task skipped, mapping already running", slog.Uint64("mapping_id", uint64(task.MappingID)))
			return nil
		}
		if err != nil {
			return fmt.Errorf("pull mapping %d: %w", task.MappingID, err)
		}
		logger.Info("pull task finished",
			slog.Uint64("mapping_id", uint64(task.MappingID)),
			slog.Uint64("run_id", uint64(result.Run.ID)),
		)
		return nil
	}
}

// SyncPushProcessor creates a processor for SyncPushTask.
func SyncPushProcessor(runner SyncRunner, logger *slog.Logger) backlite.QueueProcessor[SyncPushTask] {
	return func(ctx context.Context, task SyncPushTask) error {
		run, err := runner.Push(ctx, task.MappingID)
		if errors.Is(err, services.ErrRunActive) {
			logger.Info("push task skipped, mapping already running", slog.Uint64("mapping_id", uint64(task.MappingID)))
			return nil
		}
		if err != nil {
			return fmt.Errorf("push mapping %d: %w", task.MappingID, err)
		}
		logger.Info("push task finished",
			slog.Uint64("mapping_id", uint64(task.MappingID)),
			slog.Uint64("run_id", uint64(run.ID)),
		)
		return nil
	}
}

// SyncApplyProcessor creates a processor for SyncApplyTask.
func SyncApplyProcessor(runner SyncRunner, logger *slog.Logger) backlite.QueueProcessor[SyncApplyTask] {
	return func(ctx context.Context, task SyncApplyTask) error {
		summary, err := runner.ApplyRun(ctx, task.RunID)
		if err != nil {
			return fmt.Errorf("apply run %d: %w", task.RunID, err)
		}
		logger.Info("apply task finished",
			slog.Uint64("run_id", uint64(task.RunID)),
			slog.Int("created", summary.Created),
			slog.Int("updated", summary.Updated),
			slog.Int("deleted", summary.Deleted),
			slog.Int("errors", summary.Errors),
		)
		return nil
	}
}

// NewSyncQueues creates the pull, push and apply queues.
func NewSyncQueues(runner SyncRunner, logger *slog.Logger) []backlite.Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return []backlite.Queue{
		backlite.NewQueue(SyncPullProcessor(runner, logger)),
		backlite.NewQueue(SyncPushProcessor(runner, logger)),
		backlite.NewQueue(SyncApplyProcessor(runner, logger)),
	}
}
