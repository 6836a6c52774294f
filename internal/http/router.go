package http

import (
	"github.com/gin-gonic/gin"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	health := NewHealthController(cfg.Database, cfg.Scheduler, cfg.Version)

	// Health endpoints
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	api := router.Group("/api")

	if cfg.Connections != nil {
		connections := NewConnectionsController(cfg.Connections)
		api.GET("/connections", connections.ListConnections)
		api.POST("/connections/:id/test", connections.TestConnection)
		api.GET("/connections/:id/tables", connections.ListTables)
		api.GET("/connections/:id/tables/:table/fields", connections.ListTableFields)
	}

	if cfg.Mappings != nil {
		mappings := NewMappingsController(cfg.Mappings, cfg.TaskQueue)
		api.GET("/mappings", mappings.ListMappings)
		api.POST("/mappings/:id/pull", mappings.Pull)
		api.POST("/mappings/:id/push", mappings.Push)
		api.POST("/mappings/:id/preview", mappings.Preview)
	}

	if cfg.Runs != nil {
		runs := NewRunsController(cfg.Runs, cfg.TaskQueue)
		api.GET("/runs", runs.ListRuns)
		api.GET("/runs/:id", runs.GetRun)
		api.GET("/runs/:id/staged", runs.ListStaged)
		api.POST("/runs/:id/apply", runs.ApplyRun)
	}

	// Task management endpoints
	if cfg.TaskQueue != nil {
		tasksController := NewTasksController(cfg.TaskQueue)
		api.GET("/tasks/types", tasksController.ListTaskTypes)
		api.GET("/tasks/:id", tasksController.GetTaskStatus)
		api.POST("/tasks/:type/run", tasksController.RunTask)
	}

	return router
}
