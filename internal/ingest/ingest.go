// Package ingest translates inbound device messages into stored events.
// Device identity comes from the topic path alone; identifiers embedded in
// payloads are ignored.
package ingest

import (
	"context"
	"strings"
	"time"

	"fleetwatch/internal/metrics"
	"fleetwatch/pkg/logging"
	"fleetwatch/pkg/models"
	"fleetwatch/pkg/mqtt"
	"fleetwatch/pkg/validation"
)

// Topic filters consumed by the adapter
const (
	EventTopicFilter  = "devices/+/events"
	StatusTopicFilter = "devices/+/status"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 100 * time.Millisecond
)

// EventStore is the persistence surface the adapter writes through
type EventStore interface {
	CreateEvent(ctx context.Context, req models.CreateEventRequest) (*models.Event, error)
	UpdateDeviceStatus(ctx context.Context, deviceID, status string) error
}

// Broadcaster pushes accepted records to connected dashboard sessions
type Broadcaster interface {
	BroadcastEvent(event *models.Event)
	BroadcastDeviceStatus(deviceID, status string)
}

// Publisher is the dead-letter sink for messages that exhaust their retries
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Subscriber registers topic handlers on the broker connection
type Subscriber interface {
	Subscribe(filter string, handler mqtt.MessageHandler) error
}

// Adapter consumes device messages and turns them into stored events and
// status updates. One message in yields at most one insert and one broadcast.
type Adapter struct {
	store       EventStore
	broadcaster Broadcaster
	deadLetter  Publisher
	logger      logging.Logger
	metrics     *metrics.Metrics

	maxAttempts int
	retryDelay  time.Duration
}

// New creates an ingestion adapter
func New(store EventStore, broadcaster Broadcaster, deadLetter Publisher, logger logging.Logger, m *metrics.Metrics) *Adapter {
	return &Adapter{
		store:       store,
		broadcaster: broadcaster,
		deadLetter:  deadLetter,
		logger:      logger,
		metrics:     m,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
	}
}

// Start subscribes the adapter to the device topics on the given connection
func (a *Adapter) Start(conn Subscriber) error {
	if err := conn.Subscribe(EventTopicFilter, a.HandleEventMessage); err != nil {
		return err
	}
	return conn.Subscribe(StatusTopicFilter, a.HandleStatusMessage)
}

// HandleEventMessage processes one message from devices/{deviceId}/events.
// Malformed payloads are logged and dropped. Persistence failures are
// retried a bounded number of times and then dead-lettered; no broadcast
// is sent for a message that was not persisted.
func (a *Adapter) HandleEventMessage(topic string, payload []byte) {
	start := time.Now()

	deviceID, ok := deviceIDFromTopic(topic)
	if !ok {
		a.logger.WithField("topic", topic).Warn("Dropping message with malformed topic")
		a.countIngest("events", "malformed_topic")
		return
	}

	parsed, err := validation.ParseDevicePayload(payload)
	if err != nil {
		a.logger.WithError(err).WithFields(logging.Fields{
			"topic":     topic,
			"device_id": deviceID,
		}).Warn("Dropping malformed event payload")
		a.countIngest("events", "malformed_payload")
		return
	}

	req := models.CreateEventRequest{
		DeviceID:    deviceID,
		ObjectType:  parsed.ObjectType,
		EventType:   parsed.EventType,
		BoundingBox: parsed.BoundingBox,
		Confidence:  parsed.Confidence,
		Metadata:    parsed.Metadata,
		Count:       parsed.Count,
	}

	event, err := a.persistWithRetry(req)
	if err != nil {
		a.logger.WithError(err).WithFields(logging.Fields{
			"device_id": deviceID,
			"attempts":  a.maxAttempts,
		}).Error("Persisting event failed, sending to dead letter")
		a.sendToDeadLetter(topic, payload, err)
		a.countIngest("events", "persist_failed")
		return
	}

	a.broadcaster.BroadcastEvent(event)

	a.logger.WithFields(logging.Fields{
		"device_id":  deviceID,
		"event_type": event.EventType,
		"event_id":   event.ID,
	}).Info("Processed device event")
	a.countIngest("events", "processed")
	a.observeDuration("events", time.Since(start))
}

// HandleStatusMessage processes one message from devices/{deviceId}/status.
// The update is a keyed overwrite; racing messages are last-writer-wins.
func (a *Adapter) HandleStatusMessage(topic string, payload []byte) {
	deviceID, ok := deviceIDFromTopic(topic)
	if !ok {
		a.logger.WithField("topic", topic).Warn("Dropping message with malformed topic")
		a.countIngest("status", "malformed_topic")
		return
	}

	parsed, err := validation.ParseStatusPayload(payload)
	if err != nil {
		a.logger.WithError(err).WithField("device_id", deviceID).Warn("Dropping malformed status payload")
		a.countIngest("status", "malformed_payload")
		return
	}

	if err := a.store.UpdateDeviceStatus(context.Background(), deviceID, parsed.Status); err != nil {
		a.logger.WithError(err).WithField("device_id", deviceID).Error("Updating device status failed")
		a.countIngest("status", "persist_failed")
		return
	}

	a.broadcaster.BroadcastDeviceStatus(deviceID, parsed.Status)

	a.logger.WithFields(logging.Fields{
		"device_id": deviceID,
		"status":    parsed.Status,
	}).Info("Updated device status")
	a.countIngest("status", "processed")
}

func (a *Adapter) persistWithRetry(req models.CreateEventRequest) (*models.Event, error) {
	var event *models.Event
	var err error

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		event, err = a.store.CreateEvent(context.Background(), req)
		if err == nil {
			return event, nil
		}
		if attempt < a.maxAttempts {
			if a.metrics != nil {
				a.metrics.IngestRetries.Inc()
			}
			time.Sleep(a.retryDelay)
		}
	}
	return nil, err
}

func (a *Adapter) sendToDeadLetter(topic string, payload []byte, cause error) {
	encoded, err := mqtt.EncodeDeadLetter(topic, payload, cause, "ingest", a.maxAttempts)
	if err != nil {
		a.logger.WithError(err).Error("Failed to encode dead-letter payload")
		return
	}
	if err := a.deadLetter.Publish(mqtt.DeadLetterTopic, encoded); err != nil {
		a.logger.WithError(err).Error("Failed to publish dead-letter payload")
		return
	}
	if a.metrics != nil {
		a.metrics.DeadLetters.Inc()
	}
}

func (a *Adapter) countIngest(kind, result string) {
	if a.metrics != nil {
		a.metrics.IngestMessages.WithLabelValues(kind, result).Inc()
	}
}

func (a *Adapter) observeDuration(kind string, d time.Duration) {
	if a.metrics != nil {
		a.metrics.IngestDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// deviceIDFromTopic extracts the device id from devices/{deviceId}/{leaf}
func deviceIDFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "devices" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
