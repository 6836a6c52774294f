package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type ConnectionsController struct {
	service ConnectionService
}

func NewConnectionsController(service ConnectionService) *ConnectionsController {
	return &ConnectionsController{service: service}
}

// ListConnections handles GET /api/connections.
// Credentials are never serialized.
func (cc *ConnectionsController) ListConnections(c *gin.Context) {
	conns, err := cc.service.ListConnections(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "list connections")
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": conns})
}

// TestConnection handles POST /api/connections/:id/test.
// A failed test is a successful request: the outcome is in the body.
func (cc *ConnectionsController) TestConnection(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	result, err := cc.service.TestConnection(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "test connection")
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListTables handles GET /api/connections/:id/tables?search=
func (cc *ConnectionsController) ListTables(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	search := strings.TrimSpace(c.Query("search"))
	tables, err := cc.service.ListTables(c.Request.Context(), id, search)
	if err != nil {
		respondServiceError(c, err, "list remote tables")
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

// ListTableFields handles GET /api/connections/:id/tables/:table/fields
func (cc *ConnectionsController) ListTableFields(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	table := c.Param("table")
	fields, err := cc.service.ListTableFields(c.Request.Context(), id, table)
	if err != nil {
		respondServiceError(c, err, "list remote table fields")
		return
	}
	c.JSON(http.StatusOK, gin.H{"table": table, "fields": fields})
}
