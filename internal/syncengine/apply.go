package syncengine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mrlokans/cardsync/internal/entities"
)

// ApplySummary counts what an apply phase committed.
type ApplySummary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// pendingEvent is a domain event held back until its transaction commits.
type pendingEvent struct {
	eventType entities.AuditEventType
	card      entities.Card
}

// ApplyRun commits the pending staged records of a finished pull run. Each
// record is applied in its own transaction; a failing record is marked as
// error and the rest continue.
func (e *Engine) ApplyRun(ctx context.Context, runID uint) (*ApplySummary, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Direction != entities.RunDirectionPull {
		return nil, ErrNotPullRun
	}
	if !run.IsTerminal() {
		return nil, ErrRunInProgress
	}

	mapping, err := e.store.GetMapping(ctx, run.MappingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping %d: %w", run.MappingID, err)
	}
	return e.applyRun(ctx, run, mapping)
}

func (e *Engine) applyRun(ctx context.Context, run *entities.SyncRun, mapping *entities.Mapping) (*ApplySummary, error) {
	pending, err := e.store.ListStaged(ctx, run.ID, entities.StagedStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list staged records: %w", err)
	}

	logger := e.logger.With(slog.Uint64("run_id", uint64(run.ID)), slog.Uint64("mapping_id", uint64(mapping.ID)))
	summary := &ApplySummary{}

	for i := range pending {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		record := &pending[i]
		if err := e.applyStaged(ctx, mapping, record); err != nil {
			summary.Errors++
			logger.Warn("staged record failed",
				slog.Uint64("staged_id", uint64(record.ID)),
				slog.String("action", string(record.Action)),
				slog.Any("error", err),
			)

			record.Status = entities.StagedStatusError
			record.ErrorMessage = truncate(err.Error(), maxErrorMessageLen)
			if saveErr := e.store.SaveStaged(context.WithoutCancel(ctx), record); saveErr != nil {
				logger.Error("failed to mark staged record as error", slog.Any("error", saveErr))
			}
			continue
		}

		switch record.Action {
		case entities.StagedActionCreate:
			summary.Created++
		case entities.StagedActionUpdate:
			summary.Updated++
		case entities.StagedActionDelete:
			summary.Deleted++
		default:
			summary.Skipped++
		}
	}

	logger.Info("apply finished",
		slog.Int("created", summary.Created),
		slog.Int("updated", summary.Updated),
		slog.Int("deleted", summary.Deleted),
		slog.Int("skipped", summary.Skipped),
		slog.Int("errors", summary.Errors),
	)
	return summary, nil
}

// applyStaged applies one persisted staged record and marks it applied, in
// one transaction.
func (e *Engine) applyStaged(ctx context.Context, mapping *entities.Mapping, record *entities.StagedRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while applying record: %v", r)
		}
	}()

	var event *pendingEvent
	err = e.store.Transaction(ctx, func(tx Store) error {
		ev, err := e.mutate(ctx, tx, mapping, record)
		if err != nil {
			return err
		}
		record.Status = entities.StagedStatusApplied
		record.ErrorMessage = ""
		if err := tx.SaveStaged(ctx, record); err != nil {
			return fmt.Errorf("failed to mark staged record applied: %w", err)
		}
		event = ev
		return nil
	})
	if err != nil {
		record.Status = entities.StagedStatusPending
		return err
	}

	e.emit(ctx, event)
	return nil
}

// applyRecord applies an in-memory staged record without persisting it, as
// a pull with staging disabled does.
func (e *Engine) applyRecord(ctx context.Context, mapping *entities.Mapping, record *entities.StagedRecord) (*entities.Card, error) {
	var event *pendingEvent
	err := e.store.Transaction(ctx, func(tx Store) error {
		ev, err := e.mutate(ctx, tx, mapping, record)
		event = ev
		return err
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, event)
	if event == nil {
		return nil, nil
	}
	return &event.card, nil
}

func (e *Engine) emit(ctx context.Context, event *pendingEvent) {
	if event == nil {
		return
	}
	e.events.RecordEntityEvent(ctx, event.eventType, &event.card)
}

// mutate performs the card and identity changes of one staged record.
func (e *Engine) mutate(ctx context.Context, tx Store, mapping *entities.Mapping, record *entities.StagedRecord) (*pendingEvent, error) {
	switch record.Action {
	case entities.StagedActionCreate:
		return e.applyCreate(ctx, tx, mapping, record)
	case entities.StagedActionUpdate:
		return e.applyUpdate(ctx, tx, mapping, record)
	case entities.StagedActionDelete:
		return e.applyDelete(ctx, tx, mapping, record)
	case entities.StagedActionSkip:
		return nil, e.linkSkipped(ctx, tx, mapping, record)
	default:
		return nil, fmt.Errorf("unknown staged action %q", record.Action)
	}
}

// linkSkipped records the identity of an unchanged record that was matched
// by name. Skips of already linked records touch nothing.
func (e *Engine) linkSkipped(ctx context.Context, tx Store, mapping *entities.Mapping, record *entities.StagedRecord) error {
	if record.LocalEntityID == nil {
		return nil
	}
	row, err := tx.GetIdentity(ctx, mapping.ID, record.RemoteRecordID)
	if err != nil {
		return fmt.Errorf("failed to load identity: %w", err)
	}
	if row != nil {
		return nil
	}
	return tx.SaveIdentity(ctx, &entities.IdentityMapping{
		ConnectionID:   mapping.ConnectionID,
		MappingID:      mapping.ID,
		LocalEntityID:  *record.LocalEntityID,
		RemoteRecordID: record.RemoteRecordID,
		RemoteTable:    mapping.RemoteTable,
		CreatedBySync:  false,
		LastSyncedAt:   e.now(),
	})
}

func (e *Engine) applyCreate(ctx context.Context, tx Store, mapping *entities.Mapping, record *entities.StagedRecord) (*pendingEvent, error) {
	payload := PayloadFromTree(record.Payload)

	card := &entities.Card{
		Type:        mapping.CardType,
		Name:        payload.Name,
		Description: payload.Description,
		Status:      entities.CardStatusActive,
		Lifecycle:   payload.Lifecycle,
		Attributes:  payload.Attributes,
	}
	if card.Name == "" {
		card.Name = fmt.Sprintf("%s %s", mapping.RemoteTable, record.RemoteRecordID)
	}
	if err := tx.CreateCard(ctx, card); err != nil {
		return nil, fmt.Errorf("failed to create card: %w", err)
	}

	row, err := tx.GetIdentity(ctx, mapping.ID, record.RemoteRecordID)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}
	if row == nil {
		row = &entities.IdentityMapping{
			ConnectionID:   mapping.ConnectionID,
			MappingID:      mapping.ID,
			RemoteRecordID: record.RemoteRecordID,
			RemoteTable:    mapping.RemoteTable,
		}
	}
	row.LocalEntityID = card.ID
	row.CreatedBySync = true
	row.LastSyncedAt = e.now()
	if err := tx.SaveIdentity(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to save identity: %w", err)
	}

	cardID := card.ID
	record.LocalEntityID = &cardID
	return &pendingEvent{eventType: entities.AuditEventEntityCreated, card: *card}, nil
}

func (e *Engine) applyUpdate(ctx context.Context, tx Store, mapping *entities.Mapping, record *entities.StagedRecord) (*pendingEvent, error) {
	card, err := e.referencedCard(ctx, tx, record)
	if err != nil {
		return nil, err
	}

	ApplyDiff(card, record.Diff.Data())
	if err := tx.SaveCard(ctx, card); err != nil {
		return nil, fmt.Errorf("failed to save card: %w", err)
	}

	row, err := tx.GetIdentity(ctx, mapping.ID, record.RemoteRecordID)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}
	if row == nil {
		row = &entities.IdentityMapping{
			ConnectionID:   mapping.ConnectionID,
			MappingID:      mapping.ID,
			LocalEntityID:  card.ID,
			RemoteRecordID: record.RemoteRecordID,
			RemoteTable:    mapping.RemoteTable,
			CreatedBySync:  false,
		}
	}
	row.LastSyncedAt = e.now()
	if err := tx.SaveIdentity(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to save identity: %w", err)
	}

	return &pendingEvent{eventType: entities.AuditEventEntityUpdated, card: *card}, nil
}

func (e *Engine) applyDelete(ctx context.Context, tx Store, mapping *entities.Mapping, record *entities.StagedRecord) (*pendingEvent, error) {
	var event *pendingEvent

	if record.LocalEntityID != nil {
		card, err := tx.GetCard(ctx, *record.LocalEntityID)
		if err != nil {
			return nil, fmt.Errorf("failed to load card: %w", err)
		}
		if card != nil && !card.IsArchived() {
			archived, err := tx.ArchiveCard(ctx, card.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to archive card: %w", err)
			}
			if archived {
				card.Status = entities.CardStatusArchived
				event = &pendingEvent{eventType: entities.AuditEventEntityArchived, card: *card}
			}
		}
	}

	if err := tx.DeleteIdentity(ctx, mapping.ID, record.RemoteRecordID); err != nil {
		return nil, fmt.Errorf("failed to remove identity: %w", err)
	}
	return event, nil
}

func (e *Engine) referencedCard(ctx context.Context, tx Store, record *entities.StagedRecord) (*entities.Card, error) {
	if record.LocalEntityID == nil {
		return nil, fmt.Errorf("%w: staged %s has no local entity", ErrCardNotFound, record.Action)
	}
	card, err := tx.GetCard(ctx, *record.LocalEntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load card: %w", err)
	}
	if card == nil {
		return nil, fmt.Errorf("%w: %s", ErrCardNotFound, *record.LocalEntityID)
	}
	return card, nil
}
