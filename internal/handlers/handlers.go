// Package handlers exposes the REST and WebSocket surface of the fleet API.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleetwatch/internal/analytics"
	"fleetwatch/internal/store"
	"fleetwatch/pkg/logging"
	"fleetwatch/pkg/models"
)

// Broadcaster is the push surface handlers notify after accepted writes
type Broadcaster interface {
	BroadcastEvent(event *models.Event)
	BroadcastDeviceStatus(deviceID, status string)
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// Handlers holds the dependencies shared by all route handlers
type Handlers struct {
	store     *store.Store
	analytics *analytics.Service
	hub       Broadcaster
	logger    logging.Logger
	jwtSecret []byte
}

// New creates the handler set
func New(s *store.Store, a *analytics.Service, hub Broadcaster, logger logging.Logger, jwtSecret []byte) *Handlers {
	return &Handlers{
		store:     s,
		analytics: a,
		hub:       hub,
		logger:    logger,
		jwtSecret: jwtSecret,
	}
}

// ServeWS upgrades the request to a WebSocket session on the hub
func (h *Handlers) ServeWS(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: message})
}

func notFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, models.ErrorResponse{Error: message})
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
}
