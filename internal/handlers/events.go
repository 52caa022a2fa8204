package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fleetwatch/pkg/database"
	"fleetwatch/pkg/models"
)

const maxListLimit = 1000

// CreateEvent stores an event submitted over HTTP and broadcasts it
func (h *Handlers) CreateEvent(c *gin.Context) {
	var req models.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	event, err := h.store.CreateEvent(c.Request.Context(), req)
	if err != nil {
		h.logger.WithError(err).WithField("device_id", req.DeviceID).Error("Failed to create event")
		internalError(c)
		return
	}

	h.hub.BroadcastEvent(event)
	c.JSON(http.StatusCreated, event)
}

// ListEvents returns events matching the query filters, newest first
func (h *Handlers) ListEvents(c *gin.Context) {
	filter, err := parseEventFilter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	events, err := h.store.ListEvents(c.Request.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list events")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, events)
}

// GetEvent returns one event by id
func (h *Handlers) GetEvent(c *gin.Context) {
	event, err := h.store.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			notFound(c, "Event not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get event")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, event)
}

// GetEventCounts returns the hourly per-object-type histogram
func (h *Handlers) GetEventCounts(c *gin.Context) {
	hours, err := parseOptionalInt(c, "hours")
	if err != nil {
		badRequest(c, "hours must be an integer")
		return
	}

	result := h.analytics.HourlyStats(c.Request.Context(), c.Query("device_id"), hours)
	c.JSON(http.StatusOK, gin.H{
		"counts":   result.Counts,
		"degraded": result.Degraded(),
	})
}

func parseEventFilter(c *gin.Context) (models.EventFilter, error) {
	filter := models.EventFilter{
		DeviceID:  c.Query("device_id"),
		EventType: c.Query("event_type"),
	}

	limit, err := parseOptionalInt(c, "limit")
	if err != nil {
		return filter, errors.New("limit must be an integer")
	}
	if limit < 0 {
		return filter, errors.New("limit must not be negative")
	}
	if limit > maxListLimit {
		return filter, errors.New("limit must not exceed 1000")
	}
	filter.Limit = limit

	offset, err := parseOptionalInt(c, "offset")
	if err != nil {
		return filter, errors.New("offset must be an integer")
	}
	if offset < 0 {
		return filter, errors.New("offset must not be negative")
	}
	filter.Offset = offset

	start, err := parseOptionalTime(c, "start_date")
	if err != nil {
		return filter, errors.New("start_date must be RFC3339")
	}
	end, err := parseOptionalTime(c, "end_date")
	if err != nil {
		return filter, errors.New("end_date must be RFC3339")
	}
	if start != nil && end != nil && end.Before(*start) {
		return filter, errors.New("end_date must not precede start_date")
	}
	filter.StartDate = start
	filter.EndDate = end

	return filter, nil
}

func parseOptionalInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func parseOptionalTime(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
