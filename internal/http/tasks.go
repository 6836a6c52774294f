package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/cardsync/internal/tasks"
)

// TasksController handles task queue endpoints.
type TasksController struct {
	queue TaskQueue
}

func NewTasksController(queue TaskQueue) *TasksController {
	return &TasksController{queue: queue}
}

// TaskTypeInfo describes an available task type.
type TaskTypeInfo struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// ListTaskTypes handles GET /api/tasks/types
func (tc *TasksController) ListTaskTypes(c *gin.Context) {
	types := []TaskTypeInfo{
		{Type: tasks.QueueSyncPull, Description: "Pull a mapping's remote table into staged records"},
		{Type: tasks.QueueSyncPush, Description: "Push local_leads fields of a mapping's cards to the remote table"},
		{Type: tasks.QueueSyncApply, Description: "Apply the pending staged records of a pull run"},
	}
	c.JSON(http.StatusOK, gin.H{"task_types": types})
}

// GetTaskStatus handles GET /api/tasks/:id
func (tc *TasksController) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("id")
	if taskID == "" {
		respondBadRequest(c, "task ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status, err := tc.queue.Status(ctx, taskID)
	if err != nil {
		respondInternalError(c, err, "task status")
		return
	}
	if status == backlite.TaskStatusNotFound {
		respondNotFound(c, "task")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     taskID,
		"status": taskStatusToString(status),
	})
}

// RunTaskRequest is the request body for running a task.
type RunTaskRequest struct {
	MappingID uint `json:"mapping_id,omitempty"`
	RunID     uint `json:"run_id,omitempty"`
	AutoApply bool `json:"auto_apply,omitempty"`
}

// RunTask handles POST /api/tasks/:type/run
func (tc *TasksController) RunTask(c *gin.Context) {
	taskType := c.Param("type")

	var req RunTaskRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid request body")
			return
		}
	}

	var task backlite.Task
	switch taskType {
	case tasks.QueueSyncPull:
		if req.MappingID == 0 {
			respondBadRequest(c, "mapping_id is required for "+taskType)
			return
		}
		task = tasks.SyncPullTask{MappingID: req.MappingID, AutoApply: req.AutoApply}

	case tasks.QueueSyncPush:
		if req.MappingID == 0 {
			respondBadRequest(c, "mapping_id is required for "+taskType)
			return
		}
		task = tasks.SyncPushTask{MappingID: req.MappingID}

	case tasks.QueueSyncApply:
		if req.RunID == 0 {
			respondBadRequest(c, "run_id is required for "+taskType)
			return
		}
		task = tasks.SyncApplyTask{RunID: req.RunID}

	default:
		respondBadRequest(c, fmt.Sprintf("unknown task type: %s", taskType))
		return
	}

	taskID, err := tc.queue.Enqueue(c.Request.Context(), task)
	if err != nil {
		respondInternalError(c, err, "enqueue "+taskType)
		return
	}

	respondAccepted(c, "task enqueued", gin.H{"task_id": taskID, "type": taskType})
}

func taskStatusToString(status backlite.TaskStatus) string {
	switch status {
	case backlite.TaskStatusPending:
		return "pending"
	case backlite.TaskStatusRunning:
		return "running"
	case backlite.TaskStatusSuccess:
		return "success"
	case backlite.TaskStatusFailure:
		return "failure"
	case backlite.TaskStatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}
