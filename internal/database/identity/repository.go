// Package identity provides database operations for the identity map, the
// table correlating remote record ids with local card ids.
package identity

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/cardsync/internal/entities"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListForMapping returns every identity row of a mapping on a connection.
func (r *Repository) ListForMapping(ctx context.Context, mappingID, connectionID uint) ([]entities.IdentityMapping, error) {
	var rows []entities.IdentityMapping
	err := r.db.WithContext(ctx).
		Where("mapping_id = ? AND connection_id = ?", mappingID, connectionID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// GetByRemote returns the identity row for a remote record, or nil when the
// record was never linked.
func (r *Repository) GetByRemote(ctx context.Context, mappingID uint, remoteRecordID string) (*entities.IdentityMapping, error) {
	var row entities.IdentityMapping
	err := r.db.WithContext(ctx).
		Where("mapping_id = ? AND remote_record_id = ?", mappingID, remoteRecordID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetByLocal returns the identity row pointing at a card, or nil.
func (r *Repository) GetByLocal(ctx context.Context, mappingID uint, localEntityID string) (*entities.IdentityMapping, error) {
	var row entities.IdentityMapping
	err := r.db.WithContext(ctx).
		Where("mapping_id = ? AND local_entity_id = ?", mappingID, localEntityID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Save inserts or updates a row. LastSyncedAt defaults to now.
func (r *Repository) Save(ctx context.Context, row *entities.IdentityMapping) error {
	if row.LastSyncedAt.IsZero() {
		row.LastSyncedAt = time.Now()
	}
	return r.db.WithContext(ctx).Save(row).Error
}

// Touch refreshes last_synced_at.
func (r *Repository) Touch(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&entities.IdentityMapping{}).
		Where("id = ?", id).
		Update("last_synced_at", at).Error
}

// DeleteByRemote removes the row for a remote record. Deleting a missing row is not an error.
func (r *Repository) DeleteByRemote(ctx context.Context, mappingID uint, remoteRecordID string) error {
	return r.db.WithContext(ctx).
		Where("mapping_id = ? AND remote_record_id = ?", mappingID, remoteRecordID).
		Delete(&entities.IdentityMapping{}).Error
}
