package tasks

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/cardsync/internal/entities"
	"github.com/mrlokans/cardsync/internal/services"
	"github.com/mrlokans/cardsync/internal/syncengine"
)

type fakeRunner struct {
	pullErr    error
	pulled     []SyncPullTask
	pushed     []uint
	applied    []uint
	applyError error
}

func (f *fakeRunner) Pull(_ context.Context, mappingID uint, autoApply bool) (*syncengine.PullResult, error) {
	f.pulled = append(f.pulled, SyncPullTask{MappingID: mappingID, AutoApply: autoApply})
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return &syncengine.PullResult{Run: &entities.SyncRun{ID: 7, MappingID: mappingID}}, nil
}

func (f *fakeRunner) Push(_ context.Context, mappingID uint) (*entities.SyncRun, error) {
	f.pushed = append(f.pushed, mappingID)
	return &entities.SyncRun{ID: 8, MappingID: mappingID}, nil
}

func (f *fakeRunner) ApplyRun(_ context.Context, runID uint) (*syncengine.ApplySummary, error) {
	f.applied = append(f.applied, runID)
	if f.applyError != nil {
		return nil, f.applyError
	}
	return &syncengine.ApplySummary{Created: 1}, nil
}

func TestSyncTaskConfigs(t *testing.T) {
	pull := SyncPullTask{MappingID: 1}.Config()
	assert.Equal(t, QueueSyncPull, pull.Name)
	assert.Equal(t, 3, pull.MaxAttempts)
	assert.Equal(t, 30*time.Minute, pull.Timeout)
	assert.NotNil(t, pull.Retention)

	assert.Equal(t, QueueSyncPush, SyncPushTask{}.Config().Name)

	apply := SyncApplyTask{RunID: 1}.Config()
	assert.Equal(t, QueueSyncApply, apply.Name)
	assert.Equal(t, 1, apply.MaxAttempts)
}

func TestSyncPullProcessor(t *testing.T) {
	runner := &fakeRunner{}
	process := SyncPullProcessor(runner, slog.Default())

	require.NoError(t, process(context.Background(), SyncPullTask{MappingID: 3, AutoApply: true}))
	assert.Equal(t, []SyncPullTask{{MappingID: 3, AutoApply: true}}, runner.pulled)
}

func TestSyncPullProcessor_SkipsActiveMapping(t *testing.T) {
	runner := &fakeRunner{pullErr: services.ErrRunActive}
	process := SyncPullProcessor(runner, slog.Default())

	assert.NoError(t, process(context.Background(), SyncPullTask{MappingID: 3}))
}

func TestSyncPullProcessor_FailureIsRetryable(t *testing.T) {
	boom := errors.New("connection reset")
	runner := &fakeRunner{pullErr: boom}
	process := SyncPullProcessor(runner, slog.Default())

	err := process(context.Background(), SyncPullTask{MappingID: 3})
	assert.ErrorIs(t, err, boom)
}

func TestSyncPushAndApplyProcessors(t *testing.T) {
	runner := &fakeRunner{}

	require.NoError(t, SyncPushProcessor(runner, slog.Default())(context.Background(), SyncPushTask{MappingID: 4}))
	assert.Equal(t, []uint{4}, runner.pushed)

	require.NoError(t, SyncApplyProcessor(runner, slog.Default())(context.Background(), SyncApplyTask{RunID: 9}))
	assert.Equal(t, []uint{9}, runner.applied)

	runner.applyError = syncengine.ErrRunInProgress
	err := SyncApplyProcessor(runner, slog.Default())(context.Background(), SyncApplyTask{RunID: 9})
	assert.ErrorIs(t, err, syncengine.ErrRunInProgress)
}

type fakeCleaner struct {
	retention time.Duration
}

func (f *fakeCleaner) DeleteOldEvents(_ context.Context, retention time.Duration) (int64, error) {
	f.retention = retention
	return 4, nil
}

func TestCleanupAuditEventsProcessor(t *testing.T) {
	cleaner := &fakeCleaner{}
	process := CleanupAuditEventsProcessor(cleaner, slog.Default())

	require.NoError(t, process(context.Background(), CleanupAuditEventsTask{}))
	assert.Equal(t, 30*24*time.Hour, cleaner.retention)

	require.NoError(t, process(context.Background(), CleanupAuditEventsTask{RetentionDays: 7}))
	assert.Equal(t, 7*24*time.Hour, cleaner.retention)

	assert.Error(t, CleanupAuditEventsProcessor(nil, slog.Default())(context.Background(), CleanupAuditEventsTask{}))
}
