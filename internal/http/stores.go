package http

import (
	"context"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/cardsync/internal/database/runs"
	"github.com/mrlokans/cardsync/internal/entities"
	"github.com/mrlokans/cardsync/internal/remote"
	"github.com/mrlokans/cardsync/internal/services"
	"github.com/mrlokans/cardsync/internal/syncengine"
)

// Each controller depends on the narrow slice of the sync service it uses.
// *services.SyncService implements all of them.

// ConnectionService tests and introspects remote connections.
type ConnectionService interface {
	ListConnections(ctx context.Context) ([]entities.Connection, error)
	TestConnection(ctx context.Context, connectionID uint) (*services.ConnectionTestResult, error)
	ListTables(ctx context.Context, connectionID uint, search string) ([]remote.Table, error)
	ListTableFields(ctx context.Context, connectionID uint, table string) ([]remote.TableField, error)
}

// MappingService runs sync passes for a mapping.
type MappingService interface {
	ListMappings(ctx context.Context, activeOnly bool) ([]entities.Mapping, error)
	Pull(ctx context.Context, mappingID uint, autoApply bool) (*syncengine.PullResult, error)
	Push(ctx context.Context, mappingID uint) (*entities.SyncRun, error)
	Preview(ctx context.Context, mappingID uint, limit int) ([]entities.StagedRecord, error)
}

// RunService reads runs and applies staged records.
type RunService interface {
	GetRun(ctx context.Context, runID uint) (*entities.SyncRun, error)
	ListRuns(ctx context.Context, filter runs.ListFilter) ([]entities.SyncRun, int64, error)
	ListStaged(ctx context.Context, runID uint, status entities.StagedStatus) ([]entities.StagedRecord, error)
	ApplyRun(ctx context.Context, runID uint) (*syncengine.ApplySummary, error)
}

// TaskQueue enqueues background tasks and reports their status.
// *tasks.Client implements it.
type TaskQueue interface {
	Enqueue(ctx context.Context, task backlite.Task) (string, error)
	Status(ctx context.Context, taskID string) (backlite.TaskStatus, error)
}
