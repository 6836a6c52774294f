// Package interfaces documents the core abstractions used throughout the application.
//
// # Interface Categories
//
// ## Sync Engine
//
//   - syncengine.Store: cards, identity map, runs and mappings, with transactions
//     (internal/syncengine/engine.go). Implemented by syncstore.Store.
//   - syncengine.RemoteTable: paged fetch, create and update against a remote
//     table. Implemented by remote.Client.
//   - syncengine.EventSink: entity.created/updated/archived and sync events.
//     Implemented by audit.Service.
//   - syncengine.SnapshotWriter: JSON copies of fetched pages. Implemented by
//     audit.Auditor.
//
// ## Service Layer
//
//   - services.RemoteClient: RemoteTable plus connection test and table
//     introspection (internal/services/interfaces.go).
//
// ## Consumers of the Sync Service
//
//   - scheduler.Runner: scheduled pull/push passes and stale run sweeps.
//   - tasks.SyncRunner: backlite queue processors for pull, push and apply.
//   - http.ConnectionService, http.MappingService, http.RunService: the
//     operator API controllers (internal/http/stores.go).
//
// ## Background Work
//
//   - http.TaskQueue: enqueue and inspect tasks. Implemented by tasks.Client.
//   - http.SchedulerStatus: reported by /health. Implemented by
//     scheduler.SyncScheduler.
//   - tasks.AuditEventCleaner: audit retention. Implemented by audit.Service.
//
// # Compile-Time Checks
//
// checks.go holds a var _ assertion for every implementation listed above.
package interfaces
