// Package analytics computes dashboard aggregates over the event store.
// Reads degrade gracefully: a failed query contributes its empty value and a
// recorded cause instead of failing the whole snapshot.
package analytics

import (
	"context"
	"fmt"
	"sync"

	"fleetwatch/internal/metrics"
	"fleetwatch/pkg/logging"
	"fleetwatch/pkg/models"
)

const (
	// recentWindow is how many events back the dashboard aggregates look
	recentWindow = 100
	// recentDisplayed is how many of those are returned for display
	recentDisplayed = 10

	defaultHours = 24
	maxHours     = 8760 // one year
)

// Reader is the store surface the aggregation service depends on
type Reader interface {
	ListDevices(ctx context.Context) ([]models.Device, error)
	GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error)
	GetHourlyCounts(ctx context.Context, deviceID string, hours int) ([]models.HourlyCount, error)
}

// SnapshotResult carries a dashboard snapshot together with the causes of any
// partial failures. Callers can serve Snapshot as-is and surface Degraded.
type SnapshotResult struct {
	Snapshot models.DashboardStats
	Causes   []error
}

// Degraded reports whether any underlying read failed
func (r SnapshotResult) Degraded() bool {
	return len(r.Causes) > 0
}

// HourlyResult carries hourly histogram rows plus any read failure cause
type HourlyResult struct {
	Counts []models.HourlyCount
	Causes []error
}

// Degraded reports whether the underlying read failed
func (r HourlyResult) Degraded() bool {
	return len(r.Causes) > 0
}

// Service answers dashboard aggregate queries
type Service struct {
	reader  Reader
	logger  logging.Logger
	metrics *metrics.Metrics
}

// New creates an aggregation service
func New(reader Reader, logger logging.Logger, m *metrics.Metrics) *Service {
	return &Service{reader: reader, logger: logger, metrics: m}
}

// DashboardSnapshot aggregates fleet-wide stats from the device list and the
// most recent event window. Device and event reads run concurrently; either
// side failing degrades that side to its empty value.
func (s *Service) DashboardSnapshot(ctx context.Context) SnapshotResult {
	var (
		devices []models.Device
		events  []models.Event
		devErr  error
		evErr   error
		wg      sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		devices, devErr = s.reader.ListDevices(ctx)
	}()
	go func() {
		defer wg.Done()
		events, evErr = s.reader.GetRecentEvents(ctx, recentWindow)
	}()
	wg.Wait()

	result := SnapshotResult{Snapshot: models.EmptyDashboardStats()}

	if devErr != nil {
		s.logger.WithError(devErr).Error("Dashboard snapshot device read failed")
		result.Causes = append(result.Causes, fmt.Errorf("listing devices: %w", devErr))
		s.countQuery("dashboard_devices", "error")
	} else {
		result.Snapshot.TotalDevices = len(devices)
		for _, device := range devices {
			if device.Status == models.DeviceStatusOnline {
				result.Snapshot.ActiveDevices++
			}
		}
		s.countQuery("dashboard_devices", "ok")
	}

	if evErr != nil {
		s.logger.WithError(evErr).Error("Dashboard snapshot event read failed")
		result.Causes = append(result.Causes, fmt.Errorf("reading recent events: %w", evErr))
		s.countQuery("dashboard_events", "error")
	} else {
		result.Snapshot.TotalEvents = len(events)
		for _, event := range events {
			result.Snapshot.ObjectTypeCounts[event.ObjectType] += event.Count
			result.Snapshot.EventTypeCounts[event.EventType]++
		}
		if len(events) > recentDisplayed {
			events = events[:recentDisplayed]
		}
		result.Snapshot.RecentEvents = events
		s.countQuery("dashboard_events", "ok")
	}

	return result
}

// HourlyStats returns per-hour, per-object-type event counts over the given
// lookback. Out-of-range lookbacks fall back to 24 hours.
func (s *Service) HourlyStats(ctx context.Context, deviceID string, hours int) HourlyResult {
	if hours <= 0 || hours > maxHours {
		hours = defaultHours
	}

	counts, err := s.reader.GetHourlyCounts(ctx, deviceID, hours)
	if err != nil {
		s.logger.WithError(err).WithField("hours", hours).Error("Hourly stats read failed")
		s.countQuery("hourly", "error")
		return HourlyResult{
			Counts: []models.HourlyCount{},
			Causes: []error{fmt.Errorf("reading hourly counts: %w", err)},
		}
	}
	if counts == nil {
		counts = []models.HourlyCount{}
	}
	s.countQuery("hourly", "ok")
	return HourlyResult{Counts: counts}
}

func (s *Service) countQuery(query, result string) {
	if s.metrics != nil {
		s.metrics.AnalyticsQueries.WithLabelValues(query, result).Inc()
	}
}
