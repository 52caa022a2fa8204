package dashboard

import (
	"sync"

	"fleetwatch/pkg/models"
)

// recentEventsCap bounds the recent-events list kept by the projection
const recentEventsCap = 10

// State is the client-side dashboard projection. It is seeded from a REST
// snapshot and then patched incrementally from pushed messages; a periodic
// resync replaces it wholesale to bound drift.
type State struct {
	mutex   sync.RWMutex
	stats   models.DashboardStats
	devices []models.Device
	hourly  []models.HourlyCount
}

// NewState creates an empty projection
func NewState() *State {
	return &State{
		stats:   models.EmptyDashboardStats(),
		devices: []models.Device{},
		hourly:  []models.HourlyCount{},
	}
}

// Replace swaps in a freshly fetched snapshot, discarding accumulated patches
func (s *State) Replace(stats models.DashboardStats, devices []models.Device, hourly []models.HourlyCount) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if stats.ObjectTypeCounts == nil {
		stats.ObjectTypeCounts = map[string]int{}
	}
	if stats.EventTypeCounts == nil {
		stats.EventTypeCounts = map[string]int{}
	}
	if stats.RecentEvents == nil {
		stats.RecentEvents = []models.Event{}
	}
	if devices == nil {
		devices = []models.Device{}
	}
	if hourly == nil {
		hourly = []models.HourlyCount{}
	}

	s.stats = stats
	s.devices = devices
	s.hourly = hourly
}

// ApplyEvent folds one pushed event into the projection
func (s *State) ApplyEvent(event models.Event) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.stats.TotalEvents++
	s.stats.ObjectTypeCounts[event.ObjectType] += event.Count
	s.stats.EventTypeCounts[event.EventType]++

	recent := append([]models.Event{event}, s.stats.RecentEvents...)
	if len(recent) > recentEventsCap {
		recent = recent[:recentEventsCap]
	}
	s.stats.RecentEvents = recent
}

// ApplyDeviceStatus updates the matching device in place. A status change
// for a device the projection has never seen is ignored; the next resync
// picks it up.
func (s *State) ApplyDeviceStatus(deviceID, status string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	active := 0
	found := false
	for i := range s.devices {
		if s.devices[i].DeviceID == deviceID {
			s.devices[i].Status = status
			found = true
		}
		if s.devices[i].Status == models.DeviceStatusOnline {
			active++
		}
	}
	if found {
		s.stats.ActiveDevices = active
	}
}

// Stats returns a copy of the current aggregate figures
func (s *State) Stats() models.DashboardStats {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stats := s.stats
	stats.ObjectTypeCounts = copyCounts(s.stats.ObjectTypeCounts)
	stats.EventTypeCounts = copyCounts(s.stats.EventTypeCounts)
	stats.RecentEvents = append([]models.Event(nil), s.stats.RecentEvents...)
	return stats
}

// Devices returns a copy of the device list
func (s *State) Devices() []models.Device {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]models.Device(nil), s.devices...)
}

// Hourly returns a copy of the hourly histogram
func (s *State) Hourly() []models.HourlyCount {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]models.HourlyCount(nil), s.hourly...)
}

func copyCounts(src map[string]int) map[string]int {
	dst := make(map[string]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
