package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/cardsync/internal/database/connections"
	"github.com/mrlokans/cardsync/internal/database/mappings"
	"github.com/mrlokans/cardsync/internal/database/runs"
	"github.com/mrlokans/cardsync/internal/remote"
	"github.com/mrlokans/cardsync/internal/services"
	"github.com/mrlokans/cardsync/internal/syncengine"
)

// respondServiceError maps sync service errors to HTTP responses.
func respondServiceError(c *gin.Context, err error, context string) {
	switch {
	case errors.Is(err, connections.ErrConnectionNotFound):
		respondNotFound(c, "connection")
	case errors.Is(err, mappings.ErrNotFound):
		respondNotFound(c, "mapping")
	case errors.Is(err, runs.ErrNotFound):
		respondNotFound(c, "sync run")
	case errors.Is(err, services.ErrRunActive):
		respondError(c, http.StatusConflict, "run_active", err.Error())
	case errors.Is(err, syncengine.ErrRunInProgress):
		respondError(c, http.StatusConflict, "run_in_progress", err.Error())
	case errors.Is(err, syncengine.ErrMappingInactive),
		errors.Is(err, syncengine.ErrConnectionInactive):
		respondError(c, http.StatusConflict, "inactive", err.Error())
	case errors.Is(err, syncengine.ErrDirectionNotAllowed),
		errors.Is(err, syncengine.ErrNotPullRun):
		respondError(c, http.StatusBadRequest, "not_allowed", err.Error())
	case errors.Is(err, remote.ErrInvalidTable):
		respondBadRequest(c, err.Error())
	case errors.Is(err, remote.ErrUnauthorized):
		respondError(c, http.StatusBadGateway, "remote_unauthorized", err.Error())
	default:
		respondInternalError(c, err, context)
	}
}
