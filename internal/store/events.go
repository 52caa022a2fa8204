package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fleetwatch/pkg/database"
	"fleetwatch/pkg/models"
)

const defaultListLimit = 100

const eventColumns = `id, device_id, object_type, event_type, bounding_box, COALESCE(confidence, 0), metadata, count, timestamp`

// CreateEvent persists a new event. The id and timestamp are assigned here:
// ingestion-supplied timestamps are ignored, which fixes ordering to
// insertion order rather than detection order.
func (s *Store) CreateEvent(ctx context.Context, req models.CreateEventRequest) (*models.Event, error) {
	event := &models.Event{
		ID:          uuid.New().String(),
		DeviceID:    req.DeviceID,
		ObjectType:  req.ObjectType,
		EventType:   req.EventType,
		BoundingBox: req.BoundingBox,
		Metadata:    req.Metadata,
		Count:       1,
	}
	if req.Confidence != nil {
		event.Confidence = *req.Confidence
	}
	if req.Count != nil {
		event.Count = *req.Count
	}

	boundingBox, err := marshalNullable(req.BoundingBox)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bounding box: %w", err)
	}
	metadata, err := marshalNullable(req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO events (id, device_id, object_type, event_type, bounding_box, confidence, metadata, count, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING timestamp
	`, event.ID, event.DeviceID, event.ObjectType, event.EventType, boundingBox, event.Confidence, metadata, event.Count).Scan(&event.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}

	return event, nil
}

// ListEvents returns events newest-first, narrowed by the filter. A
// non-positive limit falls back to the default window of 100.
func (s *Store) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	args := []interface{}{}
	where := ""

	appendClause := func(clause string, value interface{}) {
		args = append(args, value)
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(clause, len(args))
	}

	if filter.DeviceID != "" {
		appendClause("device_id = $%d", filter.DeviceID)
	}
	if filter.EventType != "" {
		appendClause("event_type = $%d", filter.EventType)
	}
	if filter.StartDate != nil {
		appendClause("timestamp >= $%d", *filter.StartDate)
	}
	if filter.EndDate != nil {
		appendClause("timestamp <= $%d", *filter.EndDate)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	limitClause := fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	limitClause += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query+where+limitClause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

// GetRecentEvents returns the most recent events, newest-first
func (s *Store) GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	return s.ListEvents(ctx, models.EventFilter{Limit: limit})
}

// GetEvent returns a single event by id
func (s *Store) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	event, err := scanEvent(row)
	if err == database.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// GetHourlyCounts buckets events by hour and object type over the lookback
// window [now - hours, now]. Non-positive hours silently falls back to 24.
func (s *Store) GetHourlyCounts(ctx context.Context, deviceID string, hours int) ([]models.HourlyCount, error) {
	if hours <= 0 {
		hours = 24
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	query := `
		SELECT date_trunc('hour', timestamp) AS hour, object_type, COUNT(*)
		FROM events
		WHERE timestamp >= $1`
	args := []interface{}{since}

	if deviceID != "" {
		args = append(args, deviceID)
		query += fmt.Sprintf(" AND device_id = $%d", len(args))
	}
	query += `
		GROUP BY date_trunc('hour', timestamp), object_type
		ORDER BY hour ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly counts: %w", err)
	}
	defer rows.Close()

	counts := []models.HourlyCount{}
	for rows.Next() {
		var hc models.HourlyCount
		if err := rows.Scan(&hc.Hour, &hc.ObjectType, &hc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan hourly count: %w", err)
		}
		counts = append(counts, hc)
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var event models.Event
	var boundingBox, metadata []byte

	err := row.Scan(&event.ID, &event.DeviceID, &event.ObjectType, &event.EventType,
		&boundingBox, &event.Confidence, &metadata, &event.Count, &event.Timestamp)
	if err != nil {
		return nil, err
	}

	if len(boundingBox) > 0 {
		if err := json.Unmarshal(boundingBox, &event.BoundingBox); err != nil {
			return nil, fmt.Errorf("failed to decode bounding box: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return &event, nil
}

func marshalNullable(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case *models.BoundingBox:
		if val == nil {
			return nil, nil
		}
	case map[string]interface{}:
		if val == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}
