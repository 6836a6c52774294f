package syncengine

import (
	"context"
	"fmt"

	"github.com/mrlokans/cardsync/internal/entities"
)

const defaultPreviewLimit = 20

// Preview plans the first records of a pull without writing anything, so a
// mapping can be checked before its first run. Records that cannot be
// planned come back with status error.
func (e *Engine) Preview(ctx context.Context, mapping *entities.Mapping, limit int) ([]entities.StagedRecord, error) {
	if err := checkMapping(mapping, entities.RunDirectionPull); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPreviewLimit
	}

	client, err := e.clients(mapping.Connection)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote client: %w", err)
	}
	defer client.Close()

	records, _, err := client.FetchRecords(ctx, mapping.RemoteTable, requestFields(mapping), mapping.RemoteFilter, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records: %w", err)
	}

	rows, err := e.store.ListIdentities(ctx, mapping.ID, mapping.ConnectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity map: %w", err)
	}
	res := newResolver(e.store, e.matcher, mapping, rows)

	planned := make([]entities.StagedRecord, 0, len(records))
	for _, record := range records {
		staged, _, err := e.plan(ctx, mapping, res, record)
		if err != nil {
			planned = append(planned, entities.StagedRecord{
				MappingID:      mapping.ID,
				RemoteRecordID: recordID(record),
				RemoteData:     map[string]any(record),
				Status:         entities.StagedStatusError,
				ErrorMessage:   truncate(err.Error(), maxErrorMessageLen),
			})
			continue
		}
		planned = append(planned, *staged)
	}
	return planned, nil
}
