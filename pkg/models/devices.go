package models

import (
	"time"
)

// Device statuses
const (
	DeviceStatusOnline  = "online"
	DeviceStatusOffline = "offline"
	DeviceStatusError   = "error"
)

// Device represents a registered edge sensor
type Device struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Name      string    `json:"name"`
	Location  *string   `json:"location,omitempty"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	IsActive  bool      `json:"is_active"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateDeviceRequest represents the device registration request
type CreateDeviceRequest struct {
	DeviceID  string   `json:"device_id" binding:"required,min=3,max=50"`
	Name      string   `json:"name" binding:"required,min=2,max=100"`
	Location  *string  `json:"location,omitempty" binding:"omitempty,max=200"`
	Latitude  *float64 `json:"latitude,omitempty" binding:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude,omitempty" binding:"omitempty,gte=-180,lte=180"`
	IsActive  *bool    `json:"is_active,omitempty"`
	Status    *string  `json:"status,omitempty" binding:"omitempty,oneof=online offline error"`
}

// UpdateDeviceRequest represents a partial device update
type UpdateDeviceRequest struct {
	Name      *string  `json:"name,omitempty" binding:"omitempty,min=2,max=100"`
	Location  *string  `json:"location,omitempty" binding:"omitempty,max=200"`
	Latitude  *float64 `json:"latitude,omitempty" binding:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude,omitempty" binding:"omitempty,gte=-180,lte=180"`
	IsActive  *bool    `json:"is_active,omitempty"`
	Status    *string  `json:"status,omitempty" binding:"omitempty,oneof=online offline error"`
}
