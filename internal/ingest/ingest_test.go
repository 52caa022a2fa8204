package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetwatch/internal/analytics"
	"fleetwatch/pkg/logging"
	"fleetwatch/pkg/models"
	"fleetwatch/pkg/mqtt"
)

type fakeStore struct {
	mu            sync.Mutex
	createCalls   []models.CreateEventRequest
	createErr     error
	failCount     int
	statusUpdates map[string]string
	statusErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{statusUpdates: make(map[string]string)}
}

func (f *fakeStore) CreateEvent(_ context.Context, req models.CreateEventRequest) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls = append(f.createCalls, req)
	if f.createErr != nil && (f.failCount == 0 || len(f.createCalls) <= f.failCount) {
		return nil, f.createErr
	}
	count := 1
	if req.Count != nil {
		count = *req.Count
	}
	confidence := 0.0
	if req.Confidence != nil {
		confidence = *req.Confidence
	}
	return &models.Event{
		ID:         "evt-1",
		DeviceID:   req.DeviceID,
		ObjectType: req.ObjectType,
		EventType:  req.EventType,
		Confidence: confidence,
		Count:      count,
		Timestamp:  time.Now(),
	}, nil
}

func (f *fakeStore) UpdateDeviceStatus(_ context.Context, deviceID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statusUpdates[deviceID] = status
	return nil
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	events   []*models.Event
	statuses []string
}

func (f *fakeBroadcaster) BroadcastEvent(event *models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeBroadcaster) BroadcastDeviceStatus(deviceID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, deviceID+":"+status)
}

type fakePublisher struct {
	mu       sync.Mutex
	messages map[string][][]byte
	err      error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{messages: make(map[string][][]byte)}
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages[topic] = append(f.messages[topic], payload)
	return nil
}

func newTestAdapter(store *fakeStore, broadcaster *fakeBroadcaster, publisher *fakePublisher) *Adapter {
	a := New(store, broadcaster, publisher, logging.NewLogger(), nil)
	a.retryDelay = time.Millisecond
	return a
}

func TestHandleEventMessage_PersistsAndBroadcasts(t *testing.T) {
	store := newFakeStore()
	broadcaster := &fakeBroadcaster{}
	adapter := newTestAdapter(store, broadcaster, newFakePublisher())

	payload := []byte(`{"objectType":"person","eventType":"detection","confidence":0.92,"count":2}`)
	adapter.HandleEventMessage("devices/jetson-001/events", payload)

	require.Len(t, store.createCalls, 1)
	req := store.createCalls[0]
	assert.Equal(t, "jetson-001", req.DeviceID)
	assert.Equal(t, "person", req.ObjectType)
	assert.Equal(t, "detection", req.EventType)
	require.NotNil(t, req.Count)
	assert.Equal(t, 2, *req.Count)

	require.Len(t, broadcaster.events, 1)
	assert.Equal(t, "jetson-001", broadcaster.events[0].DeviceID)
	assert.Equal(t, 2, broadcaster.events[0].Count)
}

func TestHandleEventMessage_IdentityFromTopicOnly(t *testing.T) {
	store := newFakeStore()
	adapter := newTestAdapter(store, &fakeBroadcaster{}, newFakePublisher())

	// A deviceId in the payload must not override the topic segment
	payload := []byte(`{"objectType":"car","eventType":"entry","deviceId":"spoofed"}`)
	adapter.HandleEventMessage("devices/cam-42/events", payload)

	require.Len(t, store.createCalls, 1)
	assert.Equal(t, "cam-42", store.createCalls[0].DeviceID)
}

func TestHandleEventMessage_DropsMalformedPayload(t *testing.T) {
	store := newFakeStore()
	broadcaster := &fakeBroadcaster{}
	publisher := newFakePublisher()
	adapter := newTestAdapter(store, broadcaster, publisher)

	for _, payload := range []string{
		`not json`,
		`{"eventType":"detection"}`,
		`{"objectType":"person","eventType":"bogus"}`,
		`{"objectType":"person","eventType":"detection","confidence":1.5}`,
		`{"objectType":"person","eventType":"detection","count":0}`,
	} {
		adapter.HandleEventMessage("devices/jetson-001/events", []byte(payload))
	}

	assert.Empty(t, store.createCalls)
	assert.Empty(t, broadcaster.events)
	assert.Empty(t, publisher.messages)
}

func TestHandleEventMessage_DropsMalformedTopic(t *testing.T) {
	store := newFakeStore()
	adapter := newTestAdapter(store, &fakeBroadcaster{}, newFakePublisher())

	payload := []byte(`{"objectType":"person","eventType":"detection"}`)
	for _, topic := range []string{"devices/events", "other/jetson-001/events", "devices//events", "devices/a/b/events"} {
		adapter.HandleEventMessage(topic, payload)
	}

	assert.Empty(t, store.createCalls)
}

func TestHandleEventMessage_RetriesThenSucceeds(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("connection reset")
	store.failCount = 2
	broadcaster := &fakeBroadcaster{}
	publisher := newFakePublisher()
	adapter := newTestAdapter(store, broadcaster, publisher)

	payload := []byte(`{"objectType":"person","eventType":"detection"}`)
	adapter.HandleEventMessage("devices/jetson-001/events", payload)

	assert.Len(t, store.createCalls, 3)
	assert.Len(t, broadcaster.events, 1)
	assert.Empty(t, publisher.messages)
}

func TestHandleEventMessage_DeadLettersAfterExhaustedRetries(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("database is down")
	broadcaster := &fakeBroadcaster{}
	publisher := newFakePublisher()
	adapter := newTestAdapter(store, broadcaster, publisher)

	payload := []byte(`{"objectType":"person","eventType":"detection","count":2}`)
	adapter.HandleEventMessage("devices/jetson-001/events", payload)

	assert.Len(t, store.createCalls, 3)
	assert.Empty(t, broadcaster.events, "failed message must not be broadcast")

	messages := publisher.messages[mqtt.DeadLetterTopic]
	require.Len(t, messages, 1)

	var dead mqtt.DeadLetterPayload
	require.NoError(t, json.Unmarshal(messages[0], &dead))
	assert.Equal(t, "devices/jetson-001/events", dead.Topic)
	assert.Equal(t, "database is down", dead.Error)
	assert.Equal(t, 3, dead.Attempts)

	original, err := base64.StdEncoding.DecodeString(dead.PayloadBase64)
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(original))
}

func TestHandleStatusMessage_UpdatesAndBroadcasts(t *testing.T) {
	store := newFakeStore()
	broadcaster := &fakeBroadcaster{}
	adapter := newTestAdapter(store, broadcaster, newFakePublisher())

	adapter.HandleStatusMessage("devices/jetson-001/status", []byte(`{"status":"online"}`))

	assert.Equal(t, "online", store.statusUpdates["jetson-001"])
	require.Len(t, broadcaster.statuses, 1)
	assert.Equal(t, "jetson-001:online", broadcaster.statuses[0])
}

func TestHandleStatusMessage_RejectsUnknownStatus(t *testing.T) {
	store := newFakeStore()
	broadcaster := &fakeBroadcaster{}
	adapter := newTestAdapter(store, broadcaster, newFakePublisher())

	adapter.HandleStatusMessage("devices/jetson-001/status", []byte(`{"status":"rebooting"}`))

	assert.Empty(t, store.statusUpdates)
	assert.Empty(t, broadcaster.statuses)
}

func TestHandleStatusMessage_NoBroadcastOnStoreError(t *testing.T) {
	store := newFakeStore()
	store.statusErr = errors.New("database is down")
	broadcaster := &fakeBroadcaster{}
	adapter := newTestAdapter(store, broadcaster, newFakePublisher())

	adapter.HandleStatusMessage("devices/jetson-001/status", []byte(`{"status":"offline"}`))

	assert.Empty(t, broadcaster.statuses)
}

// aggregatingStore lets the analytics service read back what the adapter
// stored, so the full consume-store-aggregate path can be checked.
type aggregatingStore struct {
	fakeStore
}

func (a *aggregatingStore) ListDevices(context.Context) ([]models.Device, error) {
	return []models.Device{{DeviceID: "jetson-001", Status: models.DeviceStatusOnline}}, nil
}

func (a *aggregatingStore) GetRecentEvents(_ context.Context, _ int) ([]models.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	events := make([]models.Event, 0, len(a.createCalls))
	for _, req := range a.createCalls {
		count := 1
		if req.Count != nil {
			count = *req.Count
		}
		events = append(events, models.Event{
			DeviceID:   req.DeviceID,
			ObjectType: req.ObjectType,
			EventType:  req.EventType,
			Count:      count,
		})
	}
	return events, nil
}

func (a *aggregatingStore) GetHourlyCounts(context.Context, string, int) ([]models.HourlyCount, error) {
	return []models.HourlyCount{}, nil
}

func TestIngestedEventReachesDashboardSnapshot(t *testing.T) {
	combined := &aggregatingStore{fakeStore: fakeStore{statusUpdates: make(map[string]string)}}
	broadcaster := &fakeBroadcaster{}
	adapter := newTestAdapter(&combined.fakeStore, broadcaster, newFakePublisher())
	service := analytics.New(combined, logging.NewLogger(), nil)

	before := service.DashboardSnapshot(context.Background())
	require.Equal(t, 0, before.Snapshot.TotalEvents)

	payload := []byte(`{"objectType":"person","eventType":"detection","count":2}`)
	adapter.HandleEventMessage("devices/jetson-001/events", payload)

	require.Len(t, broadcaster.events, 1)

	after := service.DashboardSnapshot(context.Background())
	require.False(t, after.Degraded())
	assert.Equal(t, 1, after.Snapshot.TotalEvents)
	assert.Equal(t, 2, after.Snapshot.ObjectTypeCounts["person"], "object counts sum event counts")
	assert.Equal(t, 1, after.Snapshot.EventTypeCounts["detection"], "event counts count rows")
	assert.Equal(t, 1, after.Snapshot.ActiveDevices)
}

func TestDeviceIDFromTopic(t *testing.T) {
	tests := []struct {
		topic string
		id    string
		ok    bool
	}{
		{"devices/jetson-001/events", "jetson-001", true},
		{"devices/cam-42/status", "cam-42", true},
		{"devices//events", "", false},
		{"devices/events", "", false},
		{"fleet/jetson-001/events", "", false},
		{"devices/a/b/events", "", false},
	}
	for _, tt := range tests {
		id, ok := deviceIDFromTopic(tt.topic)
		assert.Equal(t, tt.ok, ok, tt.topic)
		assert.Equal(t, tt.id, id, tt.topic)
	}
}
