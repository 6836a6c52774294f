package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/cardsync/internal/database"
)

type HealthResponse struct {
	Status  string            `json:"status"`
	Time    string            `json:"time"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
}

// SchedulerStatus reports whether the cron scheduler is running.
type SchedulerStatus interface {
	IsRunning() bool
}

type HealthController struct {
	db        *database.Database
	scheduler SchedulerStatus
	version   string
}

// NewHealthController builds the controller. scheduler may be nil when the
// scheduler is disabled.
func NewHealthController(db *database.Database, scheduler SchedulerStatus, version string) *HealthController {
	return &HealthController{
		db:        db,
		scheduler: scheduler,
		version:   version,
	}
}

// Status handles GET /health.
func (h *HealthController) Status(c *gin.Context) {
	checks := make(map[string]string)
	status := "healthy"

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		sqlDB, err := h.db.DB.DB()
		if err != nil {
			checks["database"] = "error: " + err.Error()
			status = "unhealthy"
		} else if err := sqlDB.PingContext(ctx); err != nil {
			checks["database"] = "error: " + err.Error()
			status = "unhealthy"
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not configured"
	}

	switch {
	case h.scheduler == nil:
		checks["scheduler"] = "disabled"
	case h.scheduler.IsRunning():
		checks["scheduler"] = "running"
	default:
		checks["scheduler"] = "stopped"
	}

	health := HealthResponse{
		Status:  status,
		Time:    time.Now().Format(time.RFC3339),
		Version: h.version,
		Checks:  checks,
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.IndentedJSON(statusCode, health)
}
