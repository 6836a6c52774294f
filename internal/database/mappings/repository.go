// Package mappings provides database operations for mappings and their
// ordered field mappings.
package mappings

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mrlokans/cardsync/internal/entities"
)

// ErrNotFound is returned when no mapping matches.
var ErrNotFound = errors.New("mapping not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) withFieldMappings(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Connection").
		Preload("FieldMappings", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		})
}

// GetMapping loads a mapping with its connection and ordered field mappings.
func (r *Repository) GetMapping(ctx context.Context, id uint) (*entities.Mapping, error) {
	var mapping entities.Mapping
	err := r.withFieldMappings(ctx).First(&mapping, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

func (r *Repository) GetMappingByName(ctx context.Context, connectionID uint, name string) (*entities.Mapping, error) {
	var mapping entities.Mapping
	err := r.withFieldMappings(ctx).
		Where("connection_id = ? AND name = ?", connectionID, name).
		First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// ListMappings returns all mappings, optionally only active ones.
func (r *Repository) ListMappings(ctx context.Context, activeOnly bool) ([]entities.Mapping, error) {
	var mappings []entities.Mapping
	query := r.withFieldMappings(ctx)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	err := query.Order("id ASC").Find(&mappings).Error
	return mappings, err
}

// ListScheduledMappings returns active mappings with a cron schedule.
func (r *Repository) ListScheduledMappings(ctx context.Context) ([]entities.Mapping, error) {
	var mappings []entities.Mapping
	err := r.withFieldMappings(ctx).
		Where("is_active = ? AND schedule <> ''", true).
		Order("id ASC").
		Find(&mappings).Error
	return mappings, err
}

// SaveMapping inserts or updates a mapping and replaces its field mappings.
// Field mapping positions follow slice order.
func (r *Repository) SaveMapping(ctx context.Context, mapping *entities.Mapping) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := mapping.FieldMappings
		mapping.FieldMappings = nil

		if err := tx.Omit("Connection").Save(mapping).Error; err != nil {
			return fmt.Errorf("failed to save mapping: %w", err)
		}
		if err := tx.Where("mapping_id = ?", mapping.ID).Delete(&entities.FieldMapping{}).Error; err != nil {
			return fmt.Errorf("failed to clear field mappings: %w", err)
		}

		for i := range fields {
			fields[i].ID = 0
			fields[i].MappingID = mapping.ID
			fields[i].Position = i
		}
		if len(fields) > 0 {
			if err := tx.Create(&fields).Error; err != nil {
				return fmt.Errorf("failed to save field mappings: %w", err)
			}
		}

		mapping.FieldMappings = fields
		return nil
	})
}
