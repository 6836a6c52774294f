// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup and migrations
//	├── cards/           # Local card entities
//	├── connections/     # Remote connections and encrypted credentials
//	├── mappings/        # Table mappings and their field mappings
//	├── identity/        # Remote record id <-> card id correlation
//	├── runs/            # Sync runs and staged records
//	├── audit/           # Audit and domain event log
//	├── syncstore/       # Transactional composition used by the sync engine
//	└── dbtest/          # Throwaway databases for tests
//
// # Using Sub-packages
//
// Each sub-package provides a Repository type with domain-specific operations:
//
//	db, err := database.NewDatabase("./cardsync.db", logger.Warn)
//
//	cardsRepo := cards.NewRepository(db.DB)
//	runsRepo := runs.NewRepository(db.DB)
//
//	active, err := cardsRepo.ListActiveByType(ctx, "application")
//	run, err := runsRepo.GetRun(ctx, 42)
//
// All repository methods take a context and run their queries with
// db.WithContext(ctx).
//
// # Interface Implementations
//
//   - syncstore.Store: implements syncengine.Store
//   - audit.Repository: backs audit.Service, which implements syncengine.EventSink
//
// # Adding a New Domain
//
//  1. Create a new sub-package: internal/database/<domain>/
//  2. Define a Repository struct with a *gorm.DB field
//  3. Add NewRepository(db *gorm.DB) constructor
//  4. Register new models in database.Models
//  5. Add compile-time interface check in internal/interfaces
package database
