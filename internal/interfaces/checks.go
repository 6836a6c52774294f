package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/cardsync/internal/audit"
	"github.com/mrlokans/cardsync/internal/database/syncstore"
	"github.com/mrlokans/cardsync/internal/http"
	"github.com/mrlokans/cardsync/internal/remote"
	"github.com/mrlokans/cardsync/internal/scheduler"
	"github.com/mrlokans/cardsync/internal/services"
	"github.com/mrlokans/cardsync/internal/syncengine"
	"github.com/mrlokans/cardsync/internal/tasks"
)

// =============================================================================
// Data Access Layer
// =============================================================================

var _ syncengine.Store = (*syncstore.Store)(nil)

// =============================================================================
// External Services
// =============================================================================

var _ services.RemoteClient = (*remote.Client)(nil)
var _ syncengine.RemoteTable = (*remote.Client)(nil)

// =============================================================================
// Audit
// =============================================================================

var _ syncengine.EventSink = (*audit.Service)(nil)
var _ syncengine.SnapshotWriter = (*audit.Auditor)(nil)
var _ tasks.AuditEventCleaner = (*audit.Service)(nil)

// =============================================================================
// Sync Service Consumers
// =============================================================================

var _ scheduler.Runner = (*services.SyncService)(nil)
var _ tasks.SyncRunner = (*services.SyncService)(nil)
var _ http.ConnectionService = (*services.SyncService)(nil)
var _ http.MappingService = (*services.SyncService)(nil)
var _ http.RunService = (*services.SyncService)(nil)

// =============================================================================
// Background Work
// =============================================================================

var _ http.TaskQueue = (*tasks.Client)(nil)
var _ http.SchedulerStatus = (*scheduler.SyncScheduler)(nil)
