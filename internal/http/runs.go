package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/cardsync/internal/database/runs"
	"github.com/mrlokans/cardsync/internal/entities"
	"github.com/mrlokans/cardsync/internal/tasks"
)

const (
	defaultRunsLimit = 25
	maxRunsLimit     = 100
)

type RunsController struct {
	service RunService
	queue   TaskQueue
}

func NewRunsController(service RunService, queue TaskQueue) *RunsController {
	return &RunsController{service: service, queue: queue}
}

// ListRuns handles GET /api/runs?mapping_id=&status=&limit=&offset=
func (rc *RunsController) ListRuns(c *gin.Context) {
	mappingID, ok := parseOptionalQueryUint(c, "mapping_id", 0)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultRunsLimit)))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > maxRunsLimit {
		limit = defaultRunsLimit
	}
	if offset < 0 {
		offset = 0
	}

	status := entities.SyncStatus(c.Query("status"))
	switch status {
	case "", entities.SyncStatusRunning, entities.SyncStatusCompleted, entities.SyncStatusFailed:
	default:
		respondBadRequest(c, "invalid status")
		return
	}

	list, total, err := rc.service.ListRuns(c.Request.Context(), runs.ListFilter{
		MappingID: mappingID,
		Status:    status,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		respondInternalError(c, err, "list runs")
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:    list,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+len(list)) < total,
	})
}

// GetRun handles GET /api/runs/:id
func (rc *RunsController) GetRun(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	run, err := rc.service.GetRun(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "get run")
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListStaged handles GET /api/runs/:id/staged?status=pending
func (rc *RunsController) ListStaged(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	status := entities.StagedStatus(c.Query("status"))
	switch status {
	case "", entities.StagedStatusPending, entities.StagedStatusApplied, entities.StagedStatusError:
	default:
		respondBadRequest(c, "invalid status")
		return
	}

	records, err := rc.service.ListStaged(c.Request.Context(), id, status)
	if err != nil {
		respondServiceError(c, err, "list staged records")
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "records": records})
}

// ApplyRun handles POST /api/runs/:id/apply?async=true
func (rc *RunsController) ApplyRun(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if parseBoolQuery(c, "async") {
		if rc.queue == nil {
			respondError(c, http.StatusServiceUnavailable, "queue_disabled", "task queue is not enabled")
			return
		}
		taskID, err := rc.queue.Enqueue(c.Request.Context(), tasks.SyncApplyTask{RunID: id})
		if err != nil {
			respondInternalError(c, err, "enqueue apply")
			return
		}
		respondAccepted(c, "task enqueued", gin.H{"task_id": taskID, "queue": tasks.QueueSyncApply})
		return
	}

	summary, err := rc.service.ApplyRun(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "apply run")
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "summary": summary})
}
