package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"fleetwatch/pkg/database"
	"fleetwatch/pkg/models"
)

const deviceColumns = `id, device_id, name, location, latitude, longitude, is_active, status, created_at, updated_at`

// CreateDevice registers a new device
func (s *Store) CreateDevice(ctx context.Context, req models.CreateDeviceRequest) (*models.Device, error) {
	device := &models.Device{
		ID:        uuid.New().String(),
		DeviceID:  req.DeviceID,
		Name:      req.Name,
		Location:  req.Location,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		IsActive:  true,
		Status:    models.DeviceStatusOffline,
	}
	if req.IsActive != nil {
		device.IsActive = *req.IsActive
	}
	if req.Status != nil {
		device.Status = *req.Status
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO devices (id, device_id, name, location, latitude, longitude, is_active, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING created_at, updated_at
	`, device.ID, device.DeviceID, device.Name, device.Location, device.Latitude,
		device.Longitude, device.IsActive, device.Status).Scan(&device.CreatedAt, &device.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert device: %w", err)
	}

	return device, nil
}

// ListDevices returns all devices, newest-first
func (s *Store) ListDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+deviceColumns+` FROM devices ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	devices := []models.Device{}
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, *device)
	}
	return devices, rows.Err()
}

// GetDevice returns a device by surrogate id
func (s *Store) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	return s.getDeviceBy(ctx, "id", id)
}

// GetDeviceByDeviceID returns a device by its external device id
func (s *Store) GetDeviceByDeviceID(ctx context.Context, deviceID string) (*models.Device, error) {
	return s.getDeviceBy(ctx, "device_id", deviceID)
}

func (s *Store) getDeviceBy(ctx context.Context, column, value string) (*models.Device, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+deviceColumns+` FROM devices WHERE `+column+` = $1`, value)
	device, err := scanDevice(row)
	if err == database.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return device, nil
}

// UpdateDevice applies a partial update and returns the updated device
func (s *Store) UpdateDevice(ctx context.Context, id string, req models.UpdateDeviceRequest) (*models.Device, error) {
	set := ""
	args := []interface{}{}

	appendSet := func(column string, value interface{}) {
		args = append(args, value)
		if set != "" {
			set += ", "
		}
		set += fmt.Sprintf("%s = $%d", column, len(args))
	}

	if req.Name != nil {
		appendSet("name", *req.Name)
	}
	if req.Location != nil {
		appendSet("location", *req.Location)
	}
	if req.Latitude != nil {
		appendSet("latitude", *req.Latitude)
	}
	if req.Longitude != nil {
		appendSet("longitude", *req.Longitude)
	}
	if req.IsActive != nil {
		appendSet("is_active", *req.IsActive)
	}
	if req.Status != nil {
		appendSet("status", *req.Status)
	}

	if set == "" {
		return s.GetDevice(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE devices SET %s, updated_at = now() WHERE id = $%d", set, len(args))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update device: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return nil, database.ErrNoRows
	}

	return s.GetDevice(ctx, id)
}

// UpdateDeviceStatus overwrites a device's status keyed on the external
// device id. Racing updates are last-writer-wins; updating an unknown
// device is a no-op.
func (s *Store) UpdateDeviceStatus(ctx context.Context, deviceID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE devices SET status = $1, updated_at = now() WHERE device_id = $2`, status, deviceID)
	if err != nil {
		return fmt.Errorf("failed to update device status: %w", err)
	}
	return nil
}

// DeleteDevice removes a device by surrogate id
func (s *Store) DeleteDevice(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return database.ErrNoRows
	}
	return nil
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var device models.Device
	err := row.Scan(&device.ID, &device.DeviceID, &device.Name, &device.Location,
		&device.Latitude, &device.Longitude, &device.IsActive, &device.Status,
		&device.CreatedAt, &device.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &device, nil
}
