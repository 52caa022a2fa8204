package models

// DashboardStats is the derived dashboard summary. It is recomputed on
// request, never persisted.
type DashboardStats struct {
	TotalDevices     int            `json:"total_devices"`
	ActiveDevices    int            `json:"active_devices"`
	TotalEvents      int            `json:"total_events"`
	ObjectTypeCounts map[string]int `json:"object_type_counts"`
	EventTypeCounts  map[string]int `json:"event_type_counts"`
	RecentEvents     []Event        `json:"recent_events"`
}

// EmptyDashboardStats returns the documented zero-value snapshot
func EmptyDashboardStats() DashboardStats {
	return DashboardStats{
		ObjectTypeCounts: map[string]int{},
		EventTypeCounts:  map[string]int{},
		RecentEvents:     []Event{},
	}
}
