// Package syncengine reconciles records of a remote table with local cards.
//
// A pull fetches the remote table, resolves every record to a card (identity
// map first, then exact name, then fuzzy name), and either stages the
// resulting create/update/delete/skip proposals for review or applies them
// immediately. ApplyRun commits staged proposals one record per transaction.
// A push writes local_leads fields of every active card back to the remote
// table.
package syncengine

import (
	"context"
	"log/slog"
	"time"

	"github.com/mrlokans/cardsync/internal/entities"
	"github.com/mrlokans/cardsync/internal/remote"
	"github.com/mrlokans/cardsync/internal/similarity"
)

const (
	// RecordIDField is the remote field holding a record's stable id.
	RecordIDField = "sys_id"

	defaultPageSize    = 100
	maxErrorMessageLen = 500
)

// RemoteTable is the slice of the remote client the engine needs.
type RemoteTable interface {
	FetchRecords(ctx context.Context, table string, fields []string, query string, limit, offset int) ([]remote.Record, int, error)
	CreateRecord(ctx context.Context, table string, data map[string]any) (remote.Record, error)
	UpdateRecord(ctx context.Context, table, id string, data map[string]any) (remote.Record, error)
	Close()
}

// ClientFactory opens a remote client for a connection.
type ClientFactory func(conn *entities.Connection) (RemoteTable, error)

// CardStore reads and writes local cards. GetCard returns nil, nil for a
// missing card.
type CardStore interface {
	GetCard(ctx context.Context, id string) (*entities.Card, error)
	CreateCard(ctx context.Context, card *entities.Card) error
	SaveCard(ctx context.Context, card *entities.Card) error
	ArchiveCard(ctx context.Context, id string) (bool, error)
	ListActiveCards(ctx context.Context, cardType string) ([]entities.Card, error)
}

// IdentityStore manages the identity map. Lookups return nil, nil when no row exists.
type IdentityStore interface {
	ListIdentities(ctx context.Context, mappingID, connectionID uint) ([]entities.IdentityMapping, error)
	GetIdentity(ctx context.Context, mappingID uint, remoteRecordID string) (*entities.IdentityMapping, error)
	GetIdentityByLocal(ctx context.Context, mappingID uint, localEntityID string) (*entities.IdentityMapping, error)
	SaveIdentity(ctx context.Context, row *entities.IdentityMapping) error
	DeleteIdentity(ctx context.Context, mappingID uint, remoteRecordID string) error
}

// RunStore persists runs and staged records.
type RunStore interface {
	CreateRun(ctx context.Context, run *entities.SyncRun) error
	SaveRun(ctx context.Context, run *entities.SyncRun) error
	GetRun(ctx context.Context, id uint) (*entities.SyncRun, error)
	CreateStaged(ctx context.Context, record *entities.StagedRecord) error
	SaveStaged(ctx context.Context, record *entities.StagedRecord) error
	ListStaged(ctx context.Context, runID uint, status entities.StagedStatus) ([]entities.StagedRecord, error)
}

// MappingStore loads mappings with their connection and ordered field mappings.
type MappingStore interface {
	GetMapping(ctx context.Context, id uint) (*entities.Mapping, error)
}

// Store is everything the engine persists. Transaction runs fn against a
// store bound to one database transaction.
type Store interface {
	CardStore
	IdentityStore
	RunStore
	MappingStore
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// EventSink receives domain events. Implementations must not fail the caller.
type EventSink interface {
	RecordEntityEvent(ctx context.Context, eventType entities.AuditEventType, card *entities.Card)
	LogSync(ctx context.Context, run *entities.SyncRun, mapping *entities.Mapping, err error)
}

// SnapshotWriter stores a JSON copy of fetched remote records.
type SnapshotWriter interface {
	SaveJSON(data any) (string, error)
}

// Options tune an Engine. Zero values pick defaults.
type Options struct {
	PageSize       int
	FuzzyThreshold float64
	Events         EventSink
	Snapshots      SnapshotWriter
	Logger         *slog.Logger
	Now            func() time.Time
}

// Engine runs pull, apply and push passes. It is safe for concurrent use by
// runs of different mappings.
type Engine struct {
	store     Store
	clients   ClientFactory
	matcher   *similarity.Matcher
	events    EventSink
	snapshots SnapshotWriter
	logger    *slog.Logger
	pageSize  int
	now       func() time.Time
}

// New creates an engine over store. clients opens a remote table client per
// run; the engine closes it when the run ends.
func New(store Store, clients ClientFactory, opts Options) *Engine {
	e := &Engine{
		store:     store,
		clients:   clients,
		matcher:   similarity.NewMatcher(opts.FuzzyThreshold),
		events:    opts.Events,
		snapshots: opts.Snapshots,
		logger:    opts.Logger,
		pageSize:  opts.PageSize,
		now:       opts.Now,
	}
	if e.events == nil {
		e.events = noopEvents{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.pageSize <= 0 {
		e.pageSize = defaultPageSize
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

type noopEvents struct{}

func (noopEvents) RecordEntityEvent(context.Context, entities.AuditEventType, *entities.Card) {}

func (noopEvents) LogSync(context.Context, *entities.SyncRun, *entities.Mapping, error) {}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
