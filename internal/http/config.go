package http

import (
	"github.com/mrlokans/cardsync/internal/database"
)

// RouterConfig contains all dependencies needed to create the HTTP router.
type RouterConfig struct {
	Database  *database.Database
	Scheduler SchedulerStatus

	Connections ConnectionService
	Mappings    MappingService
	Runs        RunService

	// Task queue (optional). Without it async requests get 503 and the
	// task endpoints are not registered.
	TaskQueue TaskQueue

	// Application info
	Version string
}
