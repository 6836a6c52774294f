package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/cardsync/internal/audit"
	"github.com/mrlokans/cardsync/internal/crypto"
	"github.com/mrlokans/cardsync/internal/database/connections"
	"github.com/mrlokans/cardsync/internal/database/mappings"
	"github.com/mrlokans/cardsync/internal/database/runs"
	"github.com/mrlokans/cardsync/internal/database/syncstore"
	"github.com/mrlokans/cardsync/internal/entities"
	"github.com/mrlokans/cardsync/internal/remote"
	"github.com/mrlokans/cardsync/internal/syncengine"
)

const staleRunMessage = "run exceeded the stale run timeout"

// SyncServiceConfig carries the tunables of a SyncService. Zero values pick defaults.
type SyncServiceConfig struct {
	RemoteTimeout  time.Duration
	PageSize       int
	FuzzyThreshold float64
	Snapshots      syncengine.SnapshotWriter
	Logger         *slog.Logger
	// Opener replaces the HTTP client, mostly for tests.
	Opener ClientOpener
}

// SyncService is the entry point used by the HTTP API, the CLI, the
// scheduler and the task queue. It resolves ids to loaded entities and
// serializes passes per mapping.
type SyncService struct {
	connections *connections.Repository
	mappings    *mappings.Repository
	runs        *runs.Repository
	audit       *audit.Service
	engine      *syncengine.Engine
	open        ClientOpener
	logger      *slog.Logger
}

// NewSyncService wires the repositories and the sync engine over db.
// Credentials are decrypted with codec each time a client is opened.
func NewSyncService(db *gorm.DB, codec *crypto.CredentialCodec, auditService *audit.Service, cfg SyncServiceConfig) *SyncService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	open := cfg.Opener
	if open == nil {
		timeout := cfg.RemoteTimeout
		open = func(conn *entities.Connection, creds crypto.Credentials) (RemoteClient, error) {
			return remote.NewClientForConnection(conn, creds, timeout)
		}
	}

	s := &SyncService{
		connections: connections.NewRepository(db, codec),
		mappings:    mappings.NewRepository(db),
		runs:        runs.NewRepository(db),
		audit:       auditService,
		open:        open,
		logger:      logger,
	}

	opts := syncengine.Options{
		PageSize:       cfg.PageSize,
		FuzzyThreshold: cfg.FuzzyThreshold,
		Snapshots:      cfg.Snapshots,
		Logger:         logger,
	}
	if auditService != nil {
		opts.Events = auditService
	}
	s.engine = syncengine.New(syncstore.New(db), s.clientFor, opts)
	return s
}

func (s *SyncService) clientFor(conn *entities.Connection) (syncengine.RemoteTable, error) {
	return s.openClient(conn)
}

func (s *SyncService) openClient(conn *entities.Connection) (RemoteClient, error) {
	if conn == nil {
		return nil, syncengine.ErrMissingConnection
	}
	return s.open(conn, s.connections.Credentials(conn))
}

func (s *SyncService) withConnection(ctx context.Context, connectionID uint) (*entities.Connection, RemoteClient, error) {
	conn, err := s.connections.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, nil, err
	}
	client, err := s.openClient(conn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open client for %s: %w", conn.Name, err)
	}
	return conn, client, nil
}

// TestConnection checks that the connection's credentials are accepted and
// records the outcome on the connection.
func (s *SyncService) TestConnection(ctx context.Context, connectionID uint) (*ConnectionTestResult, error) {
	conn, client, err := s.withConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	ok, message := client.TestConnection(ctx)
	if err := s.connections.RecordTestResult(ctx, conn.ID, ok, message); err != nil {
		s.logger.Warn("failed to record connection test", slog.Uint64("connection_id", uint64(conn.ID)), slog.Any("error", err))
	}
	if s.audit != nil {
		s.audit.LogConnectionTest(conn, ok, message)
	}

	return &ConnectionTestResult{ConnectionID: conn.ID, OK: ok, Message: message}, nil
}

func (s *SyncService) ListTables(ctx context.Context, connectionID uint, search string) ([]remote.Table, error) {
	_, client, err := s.withConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return client.ListTables(ctx, search)
}

func (s *SyncService) ListTableFields(ctx context.Context, connectionID uint, table string) ([]remote.TableField, error) {
	_, client, err := s.withConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return client.ListTableFields(ctx, table)
}

func (s *SyncService) ListConnections(ctx context.Context) ([]entities.Connection, error) {
	return s.connections.ListConnections(ctx)
}

func (s *SyncService) ListMappings(ctx context.Context, activeOnly bool) ([]entities.Mapping, error) {
	return s.mappings.ListMappings(ctx, activeOnly)
}

func (s *SyncService) ListScheduledMappings(ctx context.Context) ([]entities.Mapping, error) {
	return s.mappings.ListScheduledMappings(ctx)
}

func (s *SyncService) HasActiveRun(ctx context.Context, mappingID uint) (bool, error) {
	return s.runs.HasActiveRun(ctx, mappingID)
}

// runnableMapping loads a mapping and refuses it while another run of the
// same mapping is still running.
func (s *SyncService) runnableMapping(ctx context.Context, mappingID uint) (*entities.Mapping, error) {
	mapping, err := s.mappings.GetMapping(ctx, mappingID)
	if err != nil {
		return nil, err
	}
	active, err := s.runs.HasActiveRun(ctx, mappingID)
	if err != nil {
		return nil, fmt.Errorf("failed to check running syncs: %w", err)
	}
	if active {
		return nil, fmt.Errorf("%w: %s", ErrRunActive, mapping.Name)
	}
	return mapping, nil
}

// Pull runs a pull for the mapping. The mapping's auto_apply flag is honored
// in addition to autoApply.
func (s *SyncService) Pull(ctx context.Context, mappingID uint, autoApply bool) (*syncengine.PullResult, error) {
	mapping, err := s.runnableMapping(ctx, mappingID)
	if err != nil {
		return nil, err
	}
	return s.engine.Pull(ctx, mapping, syncengine.PullOptions{AutoApply: autoApply || mapping.AutoApply})
}

func (s *SyncService) Push(ctx context.Context, mappingID uint) (*entities.SyncRun, error) {
	mapping, err := s.runnableMapping(ctx, mappingID)
	if err != nil {
		return nil, err
	}
	return s.engine.Push(ctx, mapping)
}

func (s *SyncService) Preview(ctx context.Context, mappingID uint, limit int) ([]entities.StagedRecord, error) {
	mapping, err := s.mappings.GetMapping(ctx, mappingID)
	if err != nil {
		return nil, err
	}
	return s.engine.Preview(ctx, mapping, limit)
}

func (s *SyncService) ApplyRun(ctx context.Context, runID uint) (*syncengine.ApplySummary, error) {
	return s.engine.ApplyRun(ctx, runID)
}

func (s *SyncService) GetRun(ctx context.Context, runID uint) (*entities.SyncRun, error) {
	return s.runs.GetRun(ctx, runID)
}

func (s *SyncService) ListRuns(ctx context.Context, filter runs.ListFilter) ([]entities.SyncRun, int64, error) {
	return s.runs.ListRuns(ctx, filter)
}

// ListStaged returns the staged records of a run. An empty status lists all.
func (s *SyncService) ListStaged(ctx context.Context, runID uint, status entities.StagedStatus) ([]entities.StagedRecord, error) {
	if _, err := s.runs.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return s.runs.ListStaged(ctx, runID, status)
}

// FailStaleRuns marks runs still running after timeout as failed.
func (s *SyncService) FailStaleRuns(ctx context.Context, timeout time.Duration) (int64, error) {
	if timeout <= 0 {
		return 0, nil
	}
	count, err := s.runs.FailStaleRuns(ctx, time.Now().Add(-timeout), staleRunMessage)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Warn("marked stale sync runs as failed", slog.Int64("count", count), slog.Duration("timeout", timeout))
	}
	return count, nil
}
