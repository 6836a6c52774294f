package entities

import "time"

// IdentityMapping correlates one remote record with one local card. It is the
// only cross-system key and makes repeated pulls idempotent.
type IdentityMapping struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConnectionID   uint      `gorm:"index" json:"connection_id"`
	MappingID      uint      `gorm:"uniqueIndex:idx_identity_mapping_remote;index:idx_identity_mapping_local" json:"mapping_id"`
	LocalEntityID  string    `gorm:"size:36;not null;index:idx_identity_mapping_local" json:"local_entity_id"`
	RemoteRecordID string    `gorm:"size:64;not null;uniqueIndex:idx_identity_mapping_remote" json:"remote_record_id"`
	RemoteTable    string    `gorm:"size:100" json:"remote_table"`
	CreatedBySync  bool      `json:"created_by_sync"`
	LastSyncedAt   time.Time `json:"last_synced_at"`
	CreatedAt      time.Time `json:"created_at"`
}

func (IdentityMapping) TableName() string {
	return "sync_identity_map"
}
