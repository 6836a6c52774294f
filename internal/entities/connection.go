package entities

import (
	"time"

	"gorm.io/datatypes"
)

type AuthKind string

const (
	AuthKindBasic  AuthKind = "basic"
	AuthKindOAuth2 AuthKind = "oauth2"
)

// Connection describes how to reach one remote instance.
type Connection struct {
	ID       uint     `gorm:"primaryKey" json:"id"`
	Name     string   `gorm:"size:100;uniqueIndex" json:"name"`
	URL      string   `gorm:"size:512;not null" json:"url"`
	AuthKind AuthKind `gorm:"size:20;not null" json:"auth_kind"`

	// Credentials holds the encrypted credential blob produced by the
	// credential codec. Never serialized to API responses.
	Credentials datatypes.JSONMap `json:"-"`

	IsActive        bool       `json:"is_active"`
	LastTestedAt    *time.Time `json:"last_tested_at,omitempty"`
	LastTestOK      *bool      `json:"last_test_ok,omitempty"`
	LastTestMessage string     `gorm:"size:500" json:"last_test_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Connection) TableName() string {
	return "sync_connections"
}
