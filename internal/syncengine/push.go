package syncengine

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/datatypes"

	"github.com/mrlokans/cardsync/internal/entities"
	"github.com/mrlokans/cardsync/internal/transform"
)

// Push writes the local_leads fields of every active card of the mapping's
// type to the remote table. Linked cards update their remote record; unlinked
// cards create one and get an identity row. Push never stages.
func (e *Engine) Push(ctx context.Context, mapping *entities.Mapping) (*entities.SyncRun, error) {
	if err := checkMapping(mapping, entities.RunDirectionPush); err != nil {
		return nil, err
	}

	run := &entities.SyncRun{
		ConnectionID: mapping.ConnectionID,
		MappingID:    mapping.ID,
		Status:       entities.SyncStatusRunning,
		Direction:    entities.RunDirectionPush,
		Stats:        datatypes.NewJSONType(entities.NewRunStats()),
		StartedAt:    e.now(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create sync run: %w", err)
	}

	logger := e.logger.With(
		slog.Uint64("run_id", uint64(run.ID)),
		slog.Uint64("mapping_id", uint64(mapping.ID)),
		slog.String("remote_table", mapping.RemoteTable),
	)
	logger.Info("push started")

	stats := entities.NewRunStats()
	err := e.push(ctx, logger, mapping, stats)
	e.finish(ctx, logger, mapping, run, stats, err)

	return run, err
}

func (e *Engine) push(ctx context.Context, logger *slog.Logger, mapping *entities.Mapping, stats entities.RunStats) error {
	fieldMappings := localLeading(mapping.FieldMappings)
	if len(fieldMappings) == 0 {
		logger.Info("no local_leads field mappings, nothing to push")
		return nil
	}

	cards, err := e.store.ListActiveCards(ctx, mapping.CardType)
	if err != nil {
		return fmt.Errorf("failed to load %s cards: %w", mapping.CardType, err)
	}
	stats[entities.StatFetched] = len(cards)

	client, err := e.clients(mapping.Connection)
	if err != nil {
		return fmt.Errorf("failed to open remote client: %w", err)
	}
	defer client.Close()

	for i := range cards {
		if err := ctx.Err(); err != nil {
			return err
		}

		action, err := e.pushCard(ctx, client, mapping, fieldMappings, &cards[i])
		if err != nil {
			stats[entities.StatErrors]++
			logger.Warn("card push failed", slog.String("card_id", cards[i].ID), slog.Any("error", err))
			continue
		}
		stats[statFor(action)]++
	}
	return nil
}

func (e *Engine) pushCard(ctx context.Context, client RemoteTable, mapping *entities.Mapping, fieldMappings []entities.FieldMapping, card *entities.Card) (action entities.StagedAction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while pushing card: %v", r)
		}
	}()

	payload := transform.ApplyMappings(card.Tree(), fieldMappings, transform.LocalToRemote)
	if len(payload) == 0 {
		return entities.StagedActionSkip, nil
	}

	row, err := e.store.GetIdentityByLocal(ctx, mapping.ID, card.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load identity: %w", err)
	}

	if row != nil {
		if _, err := client.UpdateRecord(ctx, mapping.RemoteTable, row.RemoteRecordID, payload); err != nil {
			return "", err
		}
		row.LastSyncedAt = e.now()
		if err := e.store.SaveIdentity(ctx, row); err != nil {
			return "", fmt.Errorf("failed to refresh identity: %w", err)
		}
		return entities.StagedActionUpdate, nil
	}

	created, err := client.CreateRecord(ctx, mapping.RemoteTable, payload)
	if err != nil {
		return "", err
	}
	remoteID := recordID(created)
	if remoteID == "" {
		return "", ErrMissingRecordID
	}

	row = &entities.IdentityMapping{
		ConnectionID:   mapping.ConnectionID,
		MappingID:      mapping.ID,
		LocalEntityID:  card.ID,
		RemoteRecordID: remoteID,
		RemoteTable:    mapping.RemoteTable,
		CreatedBySync:  false,
		LastSyncedAt:   e.now(),
	}
	if err := e.store.SaveIdentity(ctx, row); err != nil {
		return "", fmt.Errorf("failed to save identity for remote %s: %w", remoteID, err)
	}
	return entities.StagedActionCreate, nil
}

func localLeading(mappings []entities.FieldMapping) []entities.FieldMapping {
	var out []entities.FieldMapping
	for _, fm := range mappings {
		if fm.Direction == entities.FieldDirectionLocalLeads {
			out = append(out, fm)
		}
	}
	return out
}
