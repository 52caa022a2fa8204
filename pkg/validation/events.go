package validation

import (
	"encoding/json"
	"fmt"

	"fleetwatch/pkg/models"
)

// DevicePayload is the raw JSON body published by a device on
// devices/{deviceId}/events. Any device identifier embedded in the payload
// is ignored; identity comes from the topic path.
type DevicePayload struct {
	ObjectType  string                 `json:"objectType"`
	EventType   string                 `json:"eventType"`
	BoundingBox *models.BoundingBox    `json:"boundingBox,omitempty"`
	Confidence  *float64               `json:"confidence,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Count       *int                   `json:"count,omitempty"`
}

// StatusPayload is the raw JSON body published on devices/{deviceId}/status
type StatusPayload struct {
	Status string `json:"status"`
}

var validEventTypes = map[string]bool{
	models.EventTypeDetection:   true,
	models.EventTypeEntry:       true,
	models.EventTypeExit:        true,
	models.EventTypeCountUpdate: true,
}

var validDeviceStatuses = map[string]bool{
	models.DeviceStatusOnline:  true,
	models.DeviceStatusOffline: true,
	models.DeviceStatusError:   true,
}

// ParseDevicePayload decodes and validates a device event payload
func ParseDevicePayload(data []byte) (*DevicePayload, error) {
	var payload DevicePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("malformed event payload: %w", err)
	}
	if err := ValidateDevicePayload(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ValidateDevicePayload checks the semantic constraints of an event payload
func ValidateDevicePayload(p *DevicePayload) error {
	if p.ObjectType == "" {
		return fmt.Errorf("objectType is required")
	}
	if p.EventType == "" {
		return fmt.Errorf("eventType is required")
	}
	if !validEventTypes[p.EventType] {
		return fmt.Errorf("unknown eventType %q", p.EventType)
	}
	if p.Confidence != nil && (*p.Confidence < 0 || *p.Confidence > 1) {
		return fmt.Errorf("confidence %v out of range [0,1]", *p.Confidence)
	}
	if p.Count != nil && *p.Count < 1 {
		return fmt.Errorf("count %d must be >= 1", *p.Count)
	}
	return nil
}

// ParseStatusPayload decodes and validates a device status payload
func ParseStatusPayload(data []byte) (*StatusPayload, error) {
	var payload StatusPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("malformed status payload: %w", err)
	}
	if !ValidDeviceStatus(payload.Status) {
		return nil, fmt.Errorf("unknown device status %q", payload.Status)
	}
	return &payload, nil
}

// ValidDeviceStatus reports whether s is a recognized device status
func ValidDeviceStatus(s string) bool {
	return validDeviceStatuses[s]
}
