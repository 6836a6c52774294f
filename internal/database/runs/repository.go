// Package runs provides database operations for sync runs and the staged
// records a pull produces.
package runs

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/cardsync/internal/entities"
)

// ErrNotFound is returned when no run has the requested id.
var ErrNotFound = errors.New("sync run not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListFilter narrows ListRuns. Zero values match everything.
type ListFilter struct {
	MappingID uint
	Status    entities.SyncStatus
	Limit     int
	Offset    int
}

func (r *Repository) CreateRun(ctx context.Context, run *entities.SyncRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *Repository) SaveRun(ctx context.Context, run *entities.SyncRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

func (r *Repository) GetRun(ctx context.Context, id uint) (*entities.SyncRun, error) {
	var run entities.SyncRun
	err := r.db.WithContext(ctx).First(&run, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns runs, most recent first.
func (r *Repository) ListRuns(ctx context.Context, filter ListFilter) ([]entities.SyncRun, int64, error) {
	var runs []entities.SyncRun
	var total int64

	query := r.db.WithContext(ctx).Model(&entities.SyncRun{})
	if filter.MappingID > 0 {
		query = query.Where("mapping_id = ?", filter.MappingID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	err := query.Order("started_at DESC, id DESC").Limit(limit).Offset(offset).Find(&runs).Error
	return runs, total, err
}

// HasActiveRun reports whether the mapping has a run still marked running.
func (r *Repository) HasActiveRun(ctx context.Context, mappingID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.SyncRun{}).
		Where("mapping_id = ? AND status = ?", mappingID, entities.SyncStatusRunning).
		Count(&count).Error
	return count > 0, err
}

// FailStaleRuns marks runs that have been running since before cutoff as
// failed. Returns the number of runs changed.
func (r *Repository) FailStaleRuns(ctx context.Context, cutoff time.Time, message string) (int64, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&entities.SyncRun{}).
		Where("status = ? AND started_at < ?", entities.SyncStatusRunning, cutoff).
		Updates(map[string]any{
			"status":        entities.SyncStatusFailed,
			"error_message": message,
			"completed_at":  now,
		})
	return result.RowsAffected, result.Error
}

func (r *Repository) CreateStaged(ctx context.Context, record *entities.StagedRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *Repository) SaveStaged(ctx context.Context, record *entities.StagedRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

// ListStaged returns the staged records of a run in creation order. An empty
// status lists all of them.
func (r *Repository) ListStaged(ctx context.Context, runID uint, status entities.StagedStatus) ([]entities.StagedRecord, error) {
	var records []entities.StagedRecord
	query := r.db.WithContext(ctx).Where("sync_run_id = ?", runID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("id ASC").Find(&records).Error
	return records, err
}

// CountStaged groups a run's staged records by status.
func (r *Repository) CountStaged(ctx context.Context, runID uint) (map[entities.StagedStatus]int64, error) {
	var rows []struct {
		Status entities.StagedStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&entities.StagedRecord{}).
		Select("status, COUNT(*) AS count").
		Where("sync_run_id = ?", runID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[entities.StagedStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
