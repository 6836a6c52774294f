package entities

import (
	"time"

	"gorm.io/datatypes"
)

type RunDirection string

const (
	RunDirectionPull RunDirection = "pull"
	RunDirectionPush RunDirection = "push"
)

type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// Stat counter keys shared by pull and push runs.
const (
	StatFetched = "fetched"
	StatCreated = "created"
	StatUpdated = "updated"
	StatDeleted = "deleted"
	StatSkipped = "skipped"
	StatErrors  = "errors"

	// StatDeleteErrors counts deletions that could not be staged or applied.
	// It is kept apart from StatErrors, which only covers fetched records.
	StatDeleteErrors = "delete_errors"
)

// RunStats is the aggregate counter map of one run.
type RunStats map[string]int

// NewRunStats returns a counter map with every known key zeroed.
func NewRunStats() RunStats {
	return RunStats{
		StatFetched: 0,
		StatCreated: 0,
		StatUpdated: 0,
		StatDeleted: 0,
		StatSkipped: 0,
		StatErrors:  0,
	}
}

// SyncRun is one execution of a pull or push pass.
type SyncRun struct {
	ID           uint                         `gorm:"primaryKey" json:"id"`
	ConnectionID uint                         `gorm:"index" json:"connection_id"`
	MappingID    uint                         `gorm:"index" json:"mapping_id"`
	Status       SyncStatus                   `gorm:"size:20;index" json:"status"`
	Direction    RunDirection                 `gorm:"size:10" json:"direction"`
	Stats        datatypes.JSONType[RunStats] `json:"stats"`
	ErrorMessage string                       `gorm:"size:500" json:"error_message,omitempty"`
	StartedAt    time.Time                    `json:"started_at"`
	CompletedAt  *time.Time                   `json:"completed_at,omitempty"`
}

func (SyncRun) TableName() string {
	return "sync_runs"
}

// IsTerminal reports whether the run reached completed or failed.
func (r *SyncRun) IsTerminal() bool {
	return r.Status == SyncStatusCompleted || r.Status == SyncStatusFailed
}

type StagedAction string

const (
	StagedActionCreate StagedAction = "create"
	StagedActionUpdate StagedAction = "update"
	StagedActionDelete StagedAction = "delete"
	StagedActionSkip   StagedAction = "skip"
)

type StagedStatus string

const (
	StagedStatusPending StagedStatus = "pending"
	StagedStatusApplied StagedStatus = "applied"
	StagedStatusError   StagedStatus = "error"
)

// FieldChange is one leaf-level difference between the card and the remote candidate.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// FieldDiff maps dotted card paths to their proposed change.
type FieldDiff map[string]FieldChange

// StagedRecord is one proposed mutation produced by a pull, pending review.
type StagedRecord struct {
	ID             uint                          `gorm:"primaryKey" json:"id"`
	SyncRunID      uint                          `gorm:"index" json:"sync_run_id"`
	MappingID      uint                          `gorm:"index" json:"mapping_id"`
	RemoteRecordID string                        `gorm:"size:64;index" json:"remote_record_id"`
	RemoteData     datatypes.JSONMap             `json:"remote_data,omitempty"`
	Payload        datatypes.JSONMap             `json:"payload,omitempty"`
	LocalEntityID  *string                       `gorm:"size:36" json:"local_entity_id,omitempty"`
	Action         StagedAction                  `gorm:"size:10" json:"action"`
	Diff           datatypes.JSONType[FieldDiff] `json:"diff"`
	Status         StagedStatus                  `gorm:"size:10;index" json:"status"`
	ErrorMessage   string                        `gorm:"size:500" json:"error_message,omitempty"`
	CreatedAt      time.Time                     `json:"created_at"`
	UpdatedAt      time.Time                     `json:"updated_at"`
}

func (StagedRecord) TableName() string {
	return "sync_staged_records"
}
