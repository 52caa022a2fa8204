package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	"fleetwatch/pkg/database"
	"fleetwatch/pkg/models"
	"fleetwatch/pkg/validation"
)

// CreateDevice registers a new edge device
func (h *Handlers) CreateDevice(c *gin.Context) {
	var req models.CreateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	device, err := h.store.CreateDevice(c.Request.Context(), req)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			c.JSON(http.StatusConflict, models.ErrorResponse{Error: "Device ID already registered"})
			return
		}
		h.logger.WithError(err).WithField("device_id", req.DeviceID).Error("Failed to create device")
		internalError(c)
		return
	}

	c.JSON(http.StatusCreated, device)
}

// ListDevices returns all registered devices
func (h *Handlers) ListDevices(c *gin.Context) {
	devices, err := h.store.ListDevices(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list devices")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, devices)
}

// GetDevice returns a device by its internal id
func (h *Handlers) GetDevice(c *gin.Context) {
	device, err := h.store.GetDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			notFound(c, "Device not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get device")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, device)
}

// GetDeviceByDeviceID returns a device by its external device id
func (h *Handlers) GetDeviceByDeviceID(c *gin.Context) {
	device, err := h.store.GetDeviceByDeviceID(c.Request.Context(), c.Param("deviceId"))
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			notFound(c, "Device not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get device")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, device)
}

// UpdateDevice applies a partial update to a device
func (h *Handlers) UpdateDevice(c *gin.Context) {
	var req models.UpdateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	device, err := h.store.UpdateDevice(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			notFound(c, "Device not found")
			return
		}
		h.logger.WithError(err).Error("Failed to update device")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, device)
}

// UpdateDeviceStatus sets a device's status by its external device id
func (h *Handlers) UpdateDeviceStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !validation.ValidDeviceStatus(req.Status) {
		badRequest(c, "status must be one of online, offline, error")
		return
	}

	deviceID := c.Param("deviceId")
	if err := h.store.UpdateDeviceStatus(c.Request.Context(), deviceID, req.Status); err != nil {
		h.logger.WithError(err).WithField("device_id", deviceID).Error("Failed to update device status")
		internalError(c)
		return
	}

	h.hub.BroadcastDeviceStatus(deviceID, req.Status)
	c.JSON(http.StatusOK, gin.H{"device_id": deviceID, "status": req.Status})
}

// DeleteDevice removes a device by its internal id
func (h *Handlers) DeleteDevice(c *gin.Context) {
	if err := h.store.DeleteDevice(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, database.ErrNoRows) {
			notFound(c, "Device not found")
			return
		}
		h.logger.WithError(err).Error("Failed to delete device")
		internalError(c)
		return
	}
	c.Status(http.StatusNoContent)
}
