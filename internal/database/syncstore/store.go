// Package syncstore composes the card, identity, run and mapping
// repositories into the transactional store the sync engine works against.
package syncstore

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mrlokans/cardsync/internal/database/cards"
	"github.com/mrlokans/cardsync/internal/database/identity"
	"github.com/mrlokans/cardsync/internal/database/mappings"
	"github.com/mrlokans/cardsync/internal/database/runs"
	"github.com/mrlokans/cardsync/internal/entities"
	"github.com/mrlokans/cardsync/internal/syncengine"
)

type Store struct {
	db       *gorm.DB
	cards    *cards.Repository
	identity *identity.Repository
	runs     *runs.Repository
	mappings *mappings.Repository
}

func New(db *gorm.DB) *Store {
	return &Store{
		db:       db,
		cards:    cards.NewRepository(db),
		identity: identity.NewRepository(db),
		runs:     runs.NewRepository(db),
		mappings: mappings.NewRepository(db),
	}
}

// Transaction runs fn with a store whose repositories share one transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx syncengine.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

func (s *Store) GetCard(ctx context.Context, id string) (*entities.Card, error) {
	card, err := s.cards.GetByID(ctx, id)
	if errors.Is(err, cards.ErrNotFound) {
		return nil, nil
	}
	return card, err
}

func (s *Store) CreateCard(ctx context.Context, card *entities.Card) error {
	return s.cards.Create(ctx, card)
}

func (s *Store) SaveCard(ctx context.Context, card *entities.Card) error {
	return s.cards.Save(ctx, card)
}

func (s *Store) ArchiveCard(ctx context.Context, id string) (bool, error) {
	return s.cards.Archive(ctx, id)
}

func (s *Store) ListActiveCards(ctx context.Context, cardType string) ([]entities.Card, error) {
	return s.cards.ListActiveByType(ctx, cardType)
}

func (s *Store) ListIdentities(ctx context.Context, mappingID, connectionID uint) ([]entities.IdentityMapping, error) {
	return s.identity.ListForMapping(ctx, mappingID, connectionID)
}

func (s *Store) GetIdentity(ctx context.Context, mappingID uint, remoteRecordID string) (*entities.IdentityMapping, error) {
	return s.identity.GetByRemote(ctx, mappingID, remoteRecordID)
}

func (s *Store) GetIdentityByLocal(ctx context.Context, mappingID uint, localEntityID string) (*entities.IdentityMapping, error) {
	return s.identity.GetByLocal(ctx, mappingID, localEntityID)
}

func (s *Store) SaveIdentity(ctx context.Context, row *entities.IdentityMapping) error {
	return s.identity.Save(ctx, row)
}

func (s *Store) DeleteIdentity(ctx context.Context, mappingID uint, remoteRecordID string) error {
	return s.identity.DeleteByRemote(ctx, mappingID, remoteRecordID)
}

func (s *Store) CreateRun(ctx context.Context, run *entities.SyncRun) error {
	return s.runs.CreateRun(ctx, run)
}

func (s *Store) SaveRun(ctx context.Context, run *entities.SyncRun) error {
	return s.runs.SaveRun(ctx, run)
}

func (s *Store) GetRun(ctx context.Context, id uint) (*entities.SyncRun, error) {
	return s.runs.GetRun(ctx, id)
}

func (s *Store) CreateStaged(ctx context.Context, record *entities.StagedRecord) error {
	return s.runs.CreateStaged(ctx, record)
}

func (s *Store) SaveStaged(ctx context.Context, record *entities.StagedRecord) error {
	return s.runs.SaveStaged(ctx, record)
}

func (s *Store) ListStaged(ctx context.Context, runID uint, status entities.StagedStatus) ([]entities.StagedRecord, error) {
	return s.runs.ListStaged(ctx, runID, status)
}

func (s *Store) GetMapping(ctx context.Context, id uint) (*entities.Mapping, error) {
	return s.mappings.GetMapping(ctx, id)
}
