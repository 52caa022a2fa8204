package handlers

import (
	"github.com/gin-gonic/gin"

	"fleetwatch/pkg/middleware"
)

// RegisterRoutes mounts the API routes on the router. Auth endpoints are
// public; everything else requires a valid token. The WebSocket endpoint
// accepts the token via query parameter as well as header.
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
	}

	protected := api.Group("")
	protected.Use(middleware.JWTAuthMiddleware(h.jwtSecret))
	{
		protected.POST("/devices", h.CreateDevice)
		protected.GET("/devices", h.ListDevices)
		protected.GET("/devices/:id", h.GetDevice)
		protected.GET("/devices/device/:deviceId", h.GetDeviceByDeviceID)
		protected.PATCH("/devices/:id", h.UpdateDevice)
		protected.PATCH("/devices/device/:deviceId/status", h.UpdateDeviceStatus)
		protected.DELETE("/devices/:id", h.DeleteDevice)

		protected.POST("/events", h.CreateEvent)
		protected.GET("/events", h.ListEvents)
		protected.GET("/events/counts", h.GetEventCounts)
		protected.GET("/events/:id", h.GetEvent)

		protected.GET("/analytics/dashboard", h.GetDashboard)
		protected.GET("/analytics/hourly", h.GetHourlyStats)
	}

	router.GET("/ws", middleware.JWTAuthMiddleware(h.jwtSecret), h.ServeWS)
}
