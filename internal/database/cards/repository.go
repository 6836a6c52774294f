// Package cards provides database operations for local card entities.
package cards

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mrlokans/cardsync/internal/entities"
)

// ErrNotFound is returned when no card has the requested id.
var ErrNotFound = errors.New("card not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, card *entities.Card) error {
	return r.db.WithContext(ctx).Create(card).Error
}

func (r *Repository) Save(ctx context.Context, card *entities.Card) error {
	return r.db.WithContext(ctx).Save(card).Error
}

func (r *Repository) GetByID(ctx context.Context, id string) (*entities.Card, error) {
	var card entities.Card
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// ListActiveByType returns active cards of one type ordered by creation time,
// which keeps fuzzy-match tie breaking stable across runs.
func (r *Repository) ListActiveByType(ctx context.Context, cardType string) ([]entities.Card, error) {
	var cards []entities.Card
	err := r.db.WithContext(ctx).
		Where("type = ? AND status = ?", cardType, entities.CardStatusActive).
		Order("created_at ASC, id ASC").
		Find(&cards).Error
	return cards, err
}

// List returns cards of a type regardless of status. An empty type lists all cards.
func (r *Repository) List(ctx context.Context, cardType string, limit, offset int) ([]entities.Card, int64, error) {
	var cards []entities.Card
	var total int64

	query := r.db.WithContext(ctx).Model(&entities.Card{})
	if cardType != "" {
		query = query.Where("type = ?", cardType)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	err := query.Order("name ASC").Limit(limit).Offset(offset).Find(&cards).Error
	return cards, total, err
}

// Archive moves a card to archived status. It reports false when the card was
// already archived.
func (r *Repository) Archive(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entities.Card{}).
		Where("id = ? AND status <> ?", id, entities.CardStatusArchived).
		Update("status", entities.CardStatusArchived)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
