package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/datatypes"

	"github.com/mrlokans/cardsync/internal/entities"
	"github.com/mrlokans/cardsync/internal/remote"
	"github.com/mrlokans/cardsync/internal/transform"
)

// PullOptions tune a single pull.
type PullOptions struct {
	// AutoApply runs the apply phase right after staging.
	AutoApply bool
}

// PullResult is the outcome of a pull. Applied is set only when the apply
// phase ran as part of the pull.
type PullResult struct {
	Run     *entities.SyncRun `json:"run"`
	Applied *ApplySummary     `json:"applied,omitempty"`
}

// recordOutcome is what happened to one remote record.
type recordOutcome struct {
	action entities.StagedAction
	cardID string
	match  matchKind
}

// Pull reconciles the mapping's remote table into local cards. The returned
// run is always terminal; a non-nil error means the run failed as a whole.
// Failures of single records are counted in the run stats instead.
func (e *Engine) Pull(ctx context.Context, mapping *entities.Mapping, opts PullOptions) (*PullResult, error) {
	if err := checkMapping(mapping, entities.RunDirectionPull); err != nil {
		return nil, err
	}

	run := &entities.SyncRun{
		ConnectionID: mapping.ConnectionID,
		MappingID:    mapping.ID,
		Status:       entities.SyncStatusRunning,
		Direction:    entities.RunDirectionPull,
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
	logger.Info("pull started")

	stats := entities.NewRunStats()
	result := &PullResult{Run: run}
	err := e.pull(ctx, logger, mapping, run, stats, opts, result)
	e.finish(ctx, logger, mapping, run, stats, err)

	return result, err
}

func (e *Engine) pull(ctx context.Context, logger *slog.Logger, mapping *entities.Mapping, run *entities.SyncRun, stats entities.RunStats, opts PullOptions, result *PullResult) error {
	client, err := e.clients(mapping.Connection)
	if err != nil {
		return fmt.Errorf("failed to open remote client: %w", err)
	}
	defer client.Close()

	records, err := e.fetchAll(ctx, client, mapping)
	if err != nil {
		return err
	}
	stats[entities.StatFetched] = len(records)
	e.snapshot(logger, mapping, run, records)

	rows, err := e.store.ListIdentities(ctx, mapping.ID, mapping.ConnectionID)
	if err != nil {
		return fmt.Errorf("failed to load identity map: %w", err)
	}

	res := newResolver(e.store, e.matcher, mapping, rows)
	seen := make(map[string]bool, len(records))
	for _, record := range records {
		if id := recordID(record); id != "" {
			seen[id] = true
		}
	}

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}

		outcome, err := e.processRecord(ctx, mapping, run, res, record)
		if err != nil {
			stats[entities.StatErrors]++
			logger.Warn("record failed", slog.String("remote_id", recordID(record)), slog.Any("error", err))
			continue
		}
		stats[statFor(outcome.action)]++
		logger.Debug("record planned",
			slog.String("remote_id", recordID(record)),
			slog.String("action", string(outcome.action)),
			slog.String("match", string(outcome.match)),
			slog.String("card_id", outcome.cardID),
		)
	}

	if mapping.SyncMode == entities.SyncModeConservative || mapping.SyncMode == entities.SyncModeStrict {
		if err := e.detectDeletions(ctx, logger, mapping, run, rows, seen, stats); err != nil {
			return err
		}
	}

	if opts.AutoApply && !mapping.SkipStaging {
		summary, err := e.applyRun(ctx, run, mapping)
		if err != nil {
			return fmt.Errorf("auto-apply failed: %w", err)
		}
		result.Applied = summary
	}

	return nil
}

// fetchAll pages through the remote table until an empty page or the
// declared total is reached.
func (e *Engine) fetchAll(ctx context.Context, client RemoteTable, mapping *entities.Mapping) ([]remote.Record, error) {
	fields := requestFields(mapping)

	var records []remote.Record
	offset := 0
	for {
		page, total, err := client.FetchRecords(ctx, mapping.RemoteTable, fields, mapping.RemoteFilter, e.pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch records at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}
		records = append(records, page...)
		offset += len(page)
		if total > 0 && offset >= total {
			break
		}
	}
	return records, nil
}

// processRecord plans one record and stages or applies it. Panics are
// turned into errors so one bad record cannot abort the batch.
func (e *Engine) processRecord(ctx context.Context, mapping *entities.Mapping, run *entities.SyncRun, res *resolver, record remote.Record) (outcome recordOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing record: %v", r)
		}
	}()

	staged, match, err := e.plan(ctx, mapping, res, record)
	if err != nil {
		return outcome, err
	}
	staged.SyncRunID = run.ID
	outcome = recordOutcome{action: staged.Action, match: match}
	if staged.LocalEntityID != nil {
		outcome.cardID = *staged.LocalEntityID
	}

	if mapping.SkipStaging {
		card, err := e.applyRecord(ctx, mapping, staged)
		if err != nil {
			return outcome, err
		}
		if card != nil {
			outcome.cardID = card.ID
		}
		return outcome, nil
	}

	if err := e.store.CreateStaged(ctx, staged); err != nil {
		return outcome, fmt.Errorf("failed to stage record: %w", err)
	}
	return outcome, nil
}

// plan builds the staged proposal for one record without persisting anything.
func (e *Engine) plan(ctx context.Context, mapping *entities.Mapping, res *resolver, record remote.Record) (*entities.StagedRecord, matchKind, error) {
	remoteID := recordID(record)
	if remoteID == "" {
		return nil, matchNone, ErrMissingRecordID
	}

	payload := PayloadFromTree(transform.ApplyMappings(record, mapping.FieldMappings, transform.RemoteToLocal))

	card, match, err := res.resolve(ctx, remoteID, record)
	if err != nil {
		return nil, matchNone, err
	}

	staged := &entities.StagedRecord{
		MappingID:      mapping.ID,
		RemoteRecordID: remoteID,
		RemoteData:     datatypes.JSONMap(record),
		Payload:        datatypes.JSONMap(payload.Tree()),
		Status:         entities.StagedStatusPending,
	}

	if card == nil {
		staged.Action = entities.StagedActionCreate
		staged.Diff = datatypes.NewJSONType(entities.FieldDiff{})
		return staged, match, nil
	}

	cardID := card.ID
	staged.LocalEntityID = &cardID
	diff := Diff(card, payload)
	staged.Diff = datatypes.NewJSONType(diff)
	if len(diff) == 0 {
		staged.Action = entities.StagedActionSkip
	} else {
		staged.Action = entities.StagedActionUpdate
	}
	return staged, match, nil
}

// detectDeletions proposes deleting cards whose remote record was not
// fetched. Nothing is deleted when the share of vanished records exceeds the
// mapping's max deletion ratio.
func (e *Engine) detectDeletions(ctx context.Context, logger *slog.Logger, mapping *entities.Mapping, run *entities.SyncRun, rows []entities.IdentityMapping, seen map[string]bool, stats entities.RunStats) error {
	if len(rows) == 0 {
		return nil
	}

	var orphans []entities.IdentityMapping
	for _, row := range rows {
		if seen[row.RemoteRecordID] {
			continue
		}
		if mapping.SyncMode == entities.SyncModeConservative && !row.CreatedBySync {
			continue
		}
		orphans = append(orphans, row)
	}
	if len(orphans) == 0 {
		return nil
	}

	ratio := float64(len(orphans)) / float64(len(rows))
	if ratio > mapping.MaxDeletionRatio {
		logger.Warn("deletion ratio exceeded, skipping deletions",
			slog.Int("candidates", len(orphans)),
			slog.Int("linked", len(rows)),
			slog.Float64("ratio", ratio),
			slog.Float64("max_ratio", mapping.MaxDeletionRatio),
		)
		return nil
	}

	for _, row := range orphans {
		if err := ctx.Err(); err != nil {
			return err
		}

		localID := row.LocalEntityID
		staged := &entities.StagedRecord{
			SyncRunID:      run.ID,
			MappingID:      mapping.ID,
			RemoteRecordID: row.RemoteRecordID,
			LocalEntityID:  &localID,
			Action:         entities.StagedActionDelete,
			Diff:           datatypes.NewJSONType(entities.FieldDiff{}),
			Status:         entities.StagedStatusPending,
		}

		var err error
		if mapping.SkipStaging {
			_, err = e.applyRecord(ctx, mapping, staged)
		} else {
			err = e.store.CreateStaged(ctx, staged)
		}
		if err != nil {
			stats[entities.StatDeleteErrors]++
			logger.Warn("deletion failed", slog.String("remote_id", row.RemoteRecordID), slog.Any("error", err))
			continue
		}
		stats[entities.StatDeleted]++
	}
	return nil
}

func (e *Engine) snapshot(logger *slog.Logger, mapping *entities.Mapping, run *entities.SyncRun, records []remote.Record) {
	if e.snapshots == nil {
		return
	}
	name, err := e.snapshots.SaveJSON(map[string]any{
		"run_id":       run.ID,
		"mapping_id":   mapping.ID,
		"remote_table": mapping.RemoteTable,
		"records":      records,
	})
	if err != nil {
		logger.Warn("failed to save fetch snapshot", slog.Any("error", err))
		return
	}
	logger.Debug("saved fetch snapshot", slog.String("file", name))
}

// finish moves the run to its terminal state. It ignores cancellation of the
// caller's context so a run is never left running after a pass returns.
func (e *Engine) finish(ctx context.Context, logger *slog.Logger, mapping *entities.Mapping, run *entities.SyncRun, stats entities.RunStats, runErr error) {
	ctx = context.WithoutCancel(ctx)

	completed := e.now()
	run.CompletedAt = &completed
	run.Stats = datatypes.NewJSONType(stats)
	if runErr != nil {
		run.Status = entities.SyncStatusFailed
		run.ErrorMessage = truncate(runErr.Error(), maxErrorMessageLen)
	} else {
		run.Status = entities.SyncStatusCompleted
	}

	if err := e.store.SaveRun(ctx, run); err != nil {
		logger.Error("failed to finalize sync run", slog.Any("error", err))
	}
	e.events.LogSync(ctx, run, mapping, runErr)

	attrs := []any{slog.String("status", string(run.Status)), slog.Any("stats", map[string]int(stats))}
	if runErr != nil {
		logger.Error("sync run failed", append(attrs, slog.Any("error", runErr))...)
		return
	}
	logger.Info("sync run completed", attrs...)
}

func checkMapping(mapping *entities.Mapping, direction entities.RunDirection) error {
	if mapping == nil {
		return errors.New("mapping is nil")
	}
	if !mapping.IsActive {
		return fmt.Errorf("%w: %s", ErrMappingInactive, mapping.Name)
	}
	if mapping.Connection == nil {
		return ErrMissingConnection
	}
	if !mapping.Connection.IsActive {
		return fmt.Errorf("%w: %s", ErrConnectionInactive, mapping.Connection.Name)
	}

	allowed := mapping.SyncDirection.AllowsPull()
	if direction == entities.RunDirectionPush {
		allowed = mapping.SyncDirection.AllowsPush()
	}
	if !allowed {
		return fmt.Errorf("%w: mapping %s is %s", ErrDirectionNotAllowed, mapping.Name, mapping.SyncDirection)
	}
	return nil
}

// requestFields lists the remote fields to request, always including sys_id.
// No field mappings means every field.
func requestFields(mapping *entities.Mapping) []string {
	fields := mapping.RemoteFields()
	if len(fields) == 0 {
		return nil
	}
	for _, f := range fields {
		if f == RecordIDField {
			return fields
		}
	}
	return append([]string{RecordIDField}, fields...)
}

func recordID(record map[string]any) string {
	switch v := record[RecordIDField].(type) {
	case string:
		return v
	case map[string]any:
		return scalarString(v["value"])
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func statFor(action entities.StagedAction) string {
	switch action {
	case entities.StagedActionCreate:
		return entities.StatCreated
	case entities.StagedActionUpdate:
		return entities.StatUpdated
	case entities.StagedActionDelete:
		return entities.StatDeleted
	default:
		return entities.StatSkipped
	}
}
