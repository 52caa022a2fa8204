package models

import (
	"time"
)

// Event types
const (
	EventTypeDetection   = "detection"
	EventTypeEntry       = "entry"
	EventTypeExit        = "exit"
	EventTypeCountUpdate = "count_update"
)

// BoundingBox represents a detection region within a frame
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Event represents an immutable detection fact attributed to a device.
// The id and timestamp are assigned by the server at write time.
type Event struct {
	ID          string                 `json:"id"`
	DeviceID    string                 `json:"device_id"`
	ObjectType  string                 `json:"object_type"`
	EventType   string                 `json:"event_type"`
	BoundingBox *BoundingBox           `json:"bounding_box,omitempty"`
	Confidence  float64                `json:"confidence"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Count       int                    `json:"count"`
	Timestamp   time.Time              `json:"timestamp"`
}

// CreateEventRequest represents an event creation request. DeviceID is set
// by the caller (HTTP body) or derived from the broker topic on ingestion.
type CreateEventRequest struct {
	DeviceID    string                 `json:"device_id" binding:"required"`
	ObjectType  string                 `json:"object_type" binding:"required"`
	EventType   string                 `json:"event_type" binding:"required,oneof=detection entry exit count_update"`
	BoundingBox *BoundingBox           `json:"bounding_box,omitempty"`
	Confidence  *float64               `json:"confidence,omitempty" binding:"omitempty,gte=0,lte=1"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Count       *int                   `json:"count,omitempty" binding:"omitempty,gte=1"`
}

// EventFilter narrows event listings
type EventFilter struct {
	DeviceID  string
	EventType string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// HourlyCount is one (hour bucket, object type) row of the hourly histogram
type HourlyCount struct {
	Hour       time.Time `json:"hour"`
	ObjectType string    `json:"object_type"`
	Count      int64     `json:"count"`
}
