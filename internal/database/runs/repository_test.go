package runs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/mrlokans/cardsync/internal/database/dbtest"
	"github.com/mrlokans/cardsync/internal/entities"
)

func newRun(mappingID uint, status entities.SyncStatus, started time.Time) *entities.SyncRun {
	return &entities.SyncRun{
		ConnectionID: 1,
		MappingID:    mappingID,
		Status:       status,
		Direction:    entities.RunDirectionPull,
		Stats:        datatypes.NewJSONType(entities.NewRunStats()),
		StartedAt:    started,
	}
}

func TestRepository_RunLifecycle(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	run := newRun(7, entities.SyncStatusRunning, time.Time{})
	require.NoError(t, repo.CreateRun(ctx, run))
	assert.NotZero(t, run.ID)
	assert.False(t, run.StartedAt.IsZero())

	active, err := repo.HasActiveRun(ctx, 7)
	require.NoError(t, err)
	assert.True(t, active)

	stats := run.Stats.Data()
	stats[entities.StatFetched] = 3
	stats[entities.StatCreated] = 3
	run.Stats = datatypes.NewJSONType(stats)
	run.Status = entities.SyncStatusCompleted
	now := time.Now()
	run.CompletedAt = &now
	require.NoError(t, repo.SaveRun(ctx, run))

	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusCompleted, got.Status)
	assert.Equal(t, 3, got.Stats.Data()[entities.StatFetched])
	assert.Equal(t, 0, got.Stats.Data()[entities.StatErrors])
	assert.True(t, got.IsTerminal())

	active, err = repo.HasActiveRun(ctx, 7)
	require.NoError(t, err)
	assert.False(t, active)

	_, err = repo.GetRun(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_ListRuns(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	require.NoError(t, repo.CreateRun(ctx, newRun(1, entities.SyncStatusCompleted, base)))
	require.NoError(t, repo.CreateRun(ctx, newRun(1, entities.SyncStatusFailed, base.Add(time.Minute))))
	require.NoError(t, repo.CreateRun(ctx, newRun(2, entities.SyncStatusCompleted, base.Add(2*time.Minute))))

	all, total, err := repo.ListRuns(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, uint(2), all[0].MappingID)

	byMapping, total, err := repo.ListRuns(ctx, ListFilter{MappingID: 1, Status: entities.SyncStatusFailed})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, entities.SyncStatusFailed, byMapping[0].Status)
}

func TestRepository_FailStaleRuns(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	stale := newRun(1, entities.SyncStatusRunning, time.Now().Add(-2*time.Hour))
	fresh := newRun(2, entities.SyncStatusRunning, time.Now())
	require.NoError(t, repo.CreateRun(ctx, stale))
	require.NoError(t, repo.CreateRun(ctx, fresh))

	n, err := repo.FailStaleRuns(ctx, time.Now().Add(-time.Hour), "run abandoned")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetRun(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusFailed, got.Status)
	assert.Equal(t, "run abandoned", got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)

	got, err = repo.GetRun(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusRunning, got.Status)
}

func TestRepository_StagedRecords(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	run := newRun(1, entities.SyncStatusRunning, time.Now())
	require.NoError(t, repo.CreateRun(ctx, run))

	create := &entities.StagedRecord{
		SyncRunID:      run.ID,
		MappingID:      1,
		RemoteRecordID: "r1",
		RemoteData:     map[string]any{"sys_id": "r1", "name": "CRM"},
		Payload:        map[string]any{"name": "CRM"},
		Action:         entities.StagedActionCreate,
		Diff:           datatypes.NewJSONType(entities.FieldDiff{}),
		Status:         entities.StagedStatusPending,
	}
	skip := &entities.StagedRecord{
		SyncRunID:      run.ID,
		MappingID:      1,
		RemoteRecordID: "r2",
		Action:         entities.StagedActionSkip,
		Diff:           datatypes.NewJSONType(entities.FieldDiff{"name": {Old: "a", New: "b"}}),
		Status:         entities.StagedStatusPending,
	}
	require.NoError(t, repo.CreateStaged(ctx, create))
	require.NoError(t, repo.CreateStaged(ctx, skip))

	skip.Status = entities.StagedStatusApplied
	require.NoError(t, repo.SaveStaged(ctx, skip))

	pending, err := repo.ListStaged(ctx, run.ID, entities.StagedStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "r1", pending[0].RemoteRecordID)
	assert.Equal(t, "CRM", pending[0].Payload["name"])

	all, err := repo.ListStaged(ctx, run.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[1].Diff.Data()["name"].New)

	counts, err := repo.CountStaged(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[entities.StagedStatusPending])
	assert.Equal(t, int64(1), counts[entities.StagedStatusApplied])
}
