package dashboard

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetwatch/pkg/models"
)

func seededState() *State {
	s := NewState()
	s.Replace(
		models.DashboardStats{
			TotalDevices:     2,
			ActiveDevices:    1,
			TotalEvents:      5,
			ObjectTypeCounts: map[string]int{"person": 4},
			EventTypeCounts:  map[string]int{"detection": 5},
			RecentEvents:     []models.Event{{ID: "evt-5"}},
		},
		[]models.Device{
			{DeviceID: "jetson-001", Status: models.DeviceStatusOnline},
			{DeviceID: "cam-42", Status: models.DeviceStatusOffline},
		},
		[]models.HourlyCount{{ObjectType: "person", Count: 4}},
	)
	return s
}

func TestApplyEvent_PatchesAggregates(t *testing.T) {
	s := seededState()

	s.ApplyEvent(models.Event{
		ID:         "evt-6",
		DeviceID:   "jetson-001",
		ObjectType: "car",
		EventType:  models.EventTypeEntry,
		Count:      3,
	})

	stats := s.Stats()
	assert.Equal(t, 6, stats.TotalEvents)
	assert.Equal(t, 3, stats.ObjectTypeCounts["car"])
	assert.Equal(t, 4, stats.ObjectTypeCounts["person"])
	assert.Equal(t, 1, stats.EventTypeCounts["entry"])
	require.Len(t, stats.RecentEvents, 2)
	assert.Equal(t, "evt-6", stats.RecentEvents[0].ID, "newest event is prepended")
}

func TestApplyEvent_CapsRecentEvents(t *testing.T) {
	s := NewState()
	for i := 0; i < 15; i++ {
		s.ApplyEvent(models.Event{
			ID:         fmt.Sprintf("evt-%d", i),
			ObjectType: "person",
			EventType:  models.EventTypeDetection,
			Count:      1,
		})
	}

	stats := s.Stats()
	assert.Equal(t, 15, stats.TotalEvents)
	require.Len(t, stats.RecentEvents, 10)
	assert.Equal(t, "evt-14", stats.RecentEvents[0].ID)
	assert.Equal(t, "evt-5", stats.RecentEvents[9].ID)
}

func TestApplyDeviceStatus_ReplacesMatchingDevice(t *testing.T) {
	s := seededState()

	s.ApplyDeviceStatus("cam-42", models.DeviceStatusOnline)

	devices := s.Devices()
	require.Len(t, devices, 2)
	for _, device := range devices {
		assert.Equal(t, models.DeviceStatusOnline, device.Status)
	}
	assert.Equal(t, 2, s.Stats().ActiveDevices)
}

func TestApplyDeviceStatus_UnknownDeviceIsNoOp(t *testing.T) {
	s := seededState()
	before := s.Devices()

	s.ApplyDeviceStatus("never-seen", models.DeviceStatusError)

	assert.Equal(t, before, s.Devices())
	assert.Equal(t, 1, s.Stats().ActiveDevices)
}

func TestReplace_DiscardsAccumulatedPatches(t *testing.T) {
	s := seededState()
	s.ApplyEvent(models.Event{ObjectType: "car", EventType: models.EventTypeEntry, Count: 9})

	s.Replace(models.DashboardStats{
		TotalEvents:      1,
		ObjectTypeCounts: map[string]int{"bike": 1},
		EventTypeCounts:  map[string]int{"exit": 1},
	}, nil, nil)

	stats := s.Stats()
	assert.Equal(t, 1, stats.TotalEvents)
	assert.Equal(t, map[string]int{"bike": 1}, stats.ObjectTypeCounts)
	assert.Empty(t, s.Devices())
	assert.Empty(t, s.Hourly())
}

func TestStats_ReturnsIndependentCopy(t *testing.T) {
	s := seededState()

	stats := s.Stats()
	stats.ObjectTypeCounts["person"] = 999
	stats.RecentEvents[0].ID = "mutated"

	fresh := s.Stats()
	assert.Equal(t, 4, fresh.ObjectTypeCounts["person"])
	assert.Equal(t, "evt-5", fresh.RecentEvents[0].ID)
}
