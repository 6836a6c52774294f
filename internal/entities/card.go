package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CardStatus string

const (
	CardStatusActive   CardStatus = "active"
	CardStatusArchived CardStatus = "archived"
)

// Card is a local entity. Lifecycle and Attributes are free-form nested trees
// addressed by dotted paths such as "attributes.businessCriticality".
type Card struct {
	ID          string            `gorm:"primaryKey;size:36" json:"id"`
	Type        string            `gorm:"size:100;index" json:"type"`
	Name        string            `gorm:"size:255;index" json:"name"`
	Description string            `gorm:"type:text" json:"description,omitempty"`
	Status      CardStatus        `gorm:"size:20;default:active;index" json:"status"`
	Lifecycle   datatypes.JSONMap `json:"lifecycle,omitempty"`
	Attributes  datatypes.JSONMap `json:"attributes,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (Card) TableName() string {
	return "cards"
}

// BeforeCreate assigns a UUID when the caller left the ID empty.
func (c *Card) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = CardStatusActive
	}
	return nil
}

func (c *Card) IsArchived() bool {
	return c.Status == CardStatusArchived
}

// Tree returns the card as a nested map, the shape field mappings address.
func (c *Card) Tree() map[string]any {
	tree := map[string]any{
		"id":          c.ID,
		"type":        c.Type,
		"name":        c.Name,
		"description": c.Description,
		"status":      string(c.Status),
	}
	if c.Lifecycle != nil {
		tree["lifecycle"] = map[string]any(c.Lifecycle)
	}
	if c.Attributes != nil {
		tree["attributes"] = map[string]any(c.Attributes)
	}
	return tree
}
