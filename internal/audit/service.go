package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mrlokans/cardsync/internal/database/audit"
	"github.com/mrlokans/cardsync/internal/entities"
)

// EventSource tags events raised by the sync engine.
const EventSource = "sync"

// Service provides high-level audit logging functionality.
type Service struct {
	repo   *audit.Repository
	logger *slog.Logger
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Log records a generic audit event.
func (s *Service) Log(ctx context.Context, event *entities.AuditEvent) error {
	return s.repo.LogEvent(ctx, event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	go func() {
		if err := s.repo.LogEvent(context.Background(), event); err != nil {
			s.logger.Error("failed to log audit event", slog.String("action", event.Action), slog.Any("error", err))
		}
	}()
}

// RecordEntityEvent records a card lifecycle event raised by a sync. Failures
// are logged and never reach the caller.
func (s *Service) RecordEntityEvent(ctx context.Context, eventType entities.AuditEventType, card *entities.Card) {
	event := &entities.AuditEvent{
		EventType:   eventType,
		Action:      actionFor(eventType),
		Description: fmt.Sprintf("%s %s", card.Type, card.Name),
		EntityType:  card.Type,
		EntityID:    card.ID,
		Metadata:    encodeMetadata(map[string]any{"name": card.Name, "type": card.Type, "source": EventSource}),
		Status:      entities.AuditStatusSuccess,
	}

	if err := s.repo.LogEvent(ctx, event); err != nil {
		s.logger.Error("failed to record entity event",
			slog.String("event", string(eventType)),
			slog.String("entity_id", card.ID),
			slog.Any("error", err),
		)
	}
}

// LogSync records the completion of a sync run.
func (s *Service) LogSync(ctx context.Context, run *entities.SyncRun, mapping *entities.Mapping, err error) {
	event := &entities.AuditEvent{
		EventType:   entities.AuditEventSync,
		Action:      string(run.Direction),
		Description: fmt.Sprintf("%s of mapping %q (%s)", run.Direction, mapping.Name, run.Status),
		EntityType:  "sync_run",
		EntityID:    fmt.Sprint(run.ID),
		Metadata: encodeMetadata(map[string]any{
			"mapping_id":    mapping.ID,
			"connection_id": mapping.ConnectionID,
			"remote_table":  mapping.RemoteTable,
			"stats":         run.Stats.Data(),
		}),
		Status: entities.AuditStatusSuccess,
	}

	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}

	if logErr := s.repo.LogEvent(ctx, event); logErr != nil {
		s.logger.Error("failed to record sync event", slog.Uint64("run_id", uint64(run.ID)), slog.Any("error", logErr))
	}
}

// LogConnectionTest records the outcome of a connection test.
func (s *Service) LogConnectionTest(conn *entities.Connection, ok bool, message string) {
	event := &entities.AuditEvent{
		EventType:   entities.AuditEventConnectionTest,
		Action:      "test",
		Description: "Tested connection " + conn.Name,
		EntityType:  "connection",
		EntityID:    fmt.Sprint(conn.ID),
		Status:      entities.AuditStatusSuccess,
	}

	if !ok {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(message, 500)
	}

	s.LogAsync(event)
}

// GetEvents retrieves paginated audit events.
func (s *Service) GetEvents(ctx context.Context, filter audit.EventFilter) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(ctx, filter)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	return s.repo.DeleteOldEvents(ctx, cutoff)
}

func actionFor(eventType entities.AuditEventType) string {
	switch eventType {
	case entities.AuditEventEntityCreated:
		return "create"
	case entities.AuditEventEntityUpdated:
		return "update"
	case entities.AuditEventEntityArchived:
		return "archive"
	default:
		return string(eventType)
	}
}

func encodeMetadata(metadata map[string]any) string {
	data, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}
	return string(data)
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
