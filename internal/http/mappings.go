package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/cardsync/internal/tasks"
)

const (
	defaultPreviewLimit = 10
	maxPreviewLimit     = 100
)

// MappingsController triggers sync passes. Passes run inline unless
// ?async=true is given and a task queue is configured.
type MappingsController struct {
	service MappingService
	queue   TaskQueue
}

// NewMappingsController builds the controller. queue may be nil, in which
// case async requests are rejected.
func NewMappingsController(service MappingService, queue TaskQueue) *MappingsController {
	return &MappingsController{service: service, queue: queue}
}

// ListMappings handles GET /api/mappings?active=true
func (mc *MappingsController) ListMappings(c *gin.Context) {
	list, err := mc.service.ListMappings(c.Request.Context(), parseBoolQuery(c, "active"))
	if err != nil {
		respondInternalError(c, err, "list mappings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"mappings": list})
}

// Pull handles POST /api/mappings/:id/pull?auto_apply=true&async=true
//
// A run that fails as a whole is still returned with 200; its status and
// error message describe the failure.
func (mc *MappingsController) Pull(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	autoApply := parseBoolQuery(c, "auto_apply")

	if parseBoolQuery(c, "async") {
		mc.enqueue(c, tasks.SyncPullTask{MappingID: id, AutoApply: autoApply}, tasks.QueueSyncPull)
		return
	}

	result, err := mc.service.Pull(c.Request.Context(), id, autoApply)
	if err != nil && (result == nil || result.Run == nil) {
		respondServiceError(c, err, "pull")
		return
	}
	c.JSON(http.StatusOK, result)
}

// Push handles POST /api/mappings/:id/push?async=true
func (mc *MappingsController) Push(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if parseBoolQuery(c, "async") {
		mc.enqueue(c, tasks.SyncPushTask{MappingID: id}, tasks.QueueSyncPush)
		return
	}

	run, err := mc.service.Push(c.Request.Context(), id)
	if err != nil && run == nil {
		respondServiceError(c, err, "push")
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

// Preview handles POST /api/mappings/:id/preview?limit=10
// Nothing is persisted.
func (mc *MappingsController) Preview(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	limit := defaultPreviewLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondBadRequest(c, "invalid limit")
			return
		}
		limit = min(n, maxPreviewLimit)
	}

	records, err := mc.service.Preview(c.Request.Context(), id, limit)
	if err != nil {
		respondServiceError(c, err, "preview")
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (mc *MappingsController) enqueue(c *gin.Context, task backlite.Task, queue string) {
	if mc.queue == nil {
		respondError(c, http.StatusServiceUnavailable, "queue_disabled", "task queue is not enabled")
		return
	}
	taskID, err := mc.queue.Enqueue(c.Request.Context(), task)
	if err != nil {
		respondInternalError(c, err, "enqueue "+queue)
		return
	}
	respondAccepted(c, "task enqueued", gin.H{"task_id": taskID, "queue": queue})
}
