package entities

import (
	"time"

	"gorm.io/datatypes"
)

type SyncDirection string

const (
	SyncDirectionPull          SyncDirection = "pull"
	SyncDirectionPush          SyncDirection = "push"
	SyncDirectionBidirectional SyncDirection = "bidirectional"
)

// AllowsPull reports whether a pull pass may run for this direction.
func (d SyncDirection) AllowsPull() bool {
	return d == SyncDirectionPull || d == SyncDirectionBidirectional
}

// AllowsPush reports whether a push pass may run for this direction.
func (d SyncDirection) AllowsPush() bool {
	return d == SyncDirectionPush || d == SyncDirectionBidirectional
}

// SyncMode governs how records that vanished remotely are treated.
type SyncMode string

const (
	SyncModeAdditive     SyncMode = "additive"     // never delete
	SyncModeConservative SyncMode = "conservative" // delete only cards the sync created
	SyncModeStrict       SyncMode = "strict"       // delete any linked card
)

type FieldDirection string

const (
	FieldDirectionRemoteLeads FieldDirection = "remote_leads"
	FieldDirectionLocalLeads  FieldDirection = "local_leads"
)

type TransformType string

const (
	TransformDirect     TransformType = "direct"
	TransformValueMap   TransformType = "value_map"
	TransformDateFormat TransformType = "date_format"
	TransformBoolean    TransformType = "boolean"
)

// DefaultMaxDeletionRatio is the deletion ratio applied when a mapping does not set one.
const DefaultMaxDeletionRatio = 0.1

// Mapping binds one remote table on a connection to one local card type.
type Mapping struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Name             string         `gorm:"size:100" json:"name"`
	ConnectionID     uint           `gorm:"index;not null" json:"connection_id"`
	Connection       *Connection    `json:"connection,omitempty"`
	CardType         string         `gorm:"size:100;not null" json:"card_type"`
	RemoteTable      string         `gorm:"size:100;not null" json:"remote_table"`
	SyncDirection    SyncDirection  `gorm:"size:20;default:pull" json:"sync_direction"`
	SyncMode         SyncMode       `gorm:"size:20;default:additive" json:"sync_mode"`
	MaxDeletionRatio float64        `json:"max_deletion_ratio"`
	RemoteFilter     string         `gorm:"type:text" json:"remote_filter,omitempty"`
	SkipStaging      bool           `json:"skip_staging"`
	AutoApply        bool           `json:"auto_apply"`
	Schedule         string         `gorm:"size:100" json:"schedule,omitempty"`
	IsActive         bool           `gorm:"index" json:"is_active"`
	FieldMappings    []FieldMapping `gorm:"constraint:OnDelete:CASCADE" json:"field_mappings"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (Mapping) TableName() string {
	return "sync_mappings"
}

// HasIdentityFields reports whether any field mapping is flagged for identity matching.
func (m *Mapping) HasIdentityFields() bool {
	for _, fm := range m.FieldMappings {
		if fm.IsIdentity {
			return true
		}
	}
	return false
}

// RemoteFields returns the distinct remote field names referenced by the mapping.
func (m *Mapping) RemoteFields() []string {
	seen := make(map[string]bool, len(m.FieldMappings))
	fields := make([]string, 0, len(m.FieldMappings))
	for _, fm := range m.FieldMappings {
		if fm.RemoteField == "" || seen[fm.RemoteField] {
			continue
		}
		seen[fm.RemoteField] = true
		fields = append(fields, fm.RemoteField)
	}
	return fields
}

// FieldMapping is one declarative rule between a flat remote field and a
// dotted path in the card tree.
type FieldMapping struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	MappingID       uint              `gorm:"index;not null" json:"mapping_id"`
	Position        int               `json:"position"`
	RemoteField     string            `gorm:"size:100;not null" json:"remote_field"`
	LocalFieldPath  string            `gorm:"size:255;not null" json:"local_field_path"`
	Direction       FieldDirection    `gorm:"size:20;default:remote_leads" json:"direction"`
	TransformType   TransformType     `gorm:"size:30" json:"transform_type,omitempty"`
	TransformConfig datatypes.JSONMap `json:"transform_config,omitempty"`
	IsIdentity      bool              `json:"is_identity"`
}

func (FieldMapping) TableName() string {
	return "sync_field_mappings"
}
