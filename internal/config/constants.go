package config

// Default paths for databases
const (
	// DefaultDatabasePath is the default path for the application database
	DefaultDatabasePath = "./cardsync.db"

	// DefaultTasksDatabasePath is the default path for the task queue database
	DefaultTasksDatabasePath = "./cardsync-tasks.db"
)
