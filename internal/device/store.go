package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
//
// The collection is ordered: List returns records in insertion order, and
// Replace keeps a record's position even when its ID changes. Every call is
// single-shot and synchronous; callers must treat the store as stateless
// per call and serialise read-modify-write sequences themselves.
type Store interface {
	// List retrieves all devices in insertion order. Never fails on an
	// empty collection.
	List(ctx context.Context) ([]Device, error)

	// GetByID retrieves a device by its unique identifier.
	// Returns ErrNotFound if the device does not exist, and
	// ErrStoreInconsistent if more than one record shares the ID.
	GetByID(ctx context.Context, id string) (*Device, error)

	// Insert appends a new device to the end of the collection.
	// Returns ErrExists if a device with the same ID is already present.
	Insert(ctx context.Context, device *Device) error

	// Replace overwrites the record currently stored under originalID,
	// keeping its position in the collection. The replacement may carry a
	// different ID. Returns ErrNotFound if originalID is absent and
	// ErrExists if the new ID collides with another record.
	Replace(ctx context.Context, originalID string, device *Device) error

	// Delete removes a device by ID and returns the removed record for
	// confirmation. Returns ErrNotFound if the ID is absent.
	Delete(ctx context.Context, id string) (*Device, error)
}

// SQLiteStore implements Store using SQLite.
//
// Insertion order is preserved through the autoincrement position column;
// device_id carries a UNIQUE constraint so duplicate IDs are rejected at
// the database level as well as detected on read.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store.
// The db parameter should be an open SQLite connection.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const deviceColumns = `device_id, device_name, device_type, controller_address, device_data, created_at, updated_at`

// List retrieves all devices in insertion order.
func (s *SQLiteStore) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY position`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		device, scanErr := scanDevice(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning device: %w", scanErr)
		}
		devices = append(devices, *device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// GetByID retrieves a device by its unique identifier.
//
// A duplicate ID is a store invariant violation: it is reported as
// ErrStoreInconsistent rather than silently resolved by picking the
// first match.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE device_id = ? ORDER BY position`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	defer rows.Close()

	var matches []*Device
	for rows.Next() {
		device, scanErr := scanDevice(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning device: %w", scanErr)
		}
		matches = append(matches, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %d records share device_id %q", ErrStoreInconsistent, len(matches), id)
	}
}

// Insert appends a new device to the end of the collection.
func (s *SQLiteStore) Insert(ctx context.Context, device *Device) error {
	dataJSON, err := json.Marshal(device.Data)
	if err != nil {
		return fmt.Errorf("marshalling device_data: %w", err)
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (
			device_id, device_name, device_type, controller_address,
			device_data, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		device.ID,
		device.Name,
		device.Type,
		device.ControllerAddress,
		string(dataJSON),
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %q", ErrExists, device.ID)
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// Replace overwrites the record stored under originalID in place.
//
// The row is keyed by the ID the record had before the caller's
// read-modify-write cycle, so renaming a device keeps its position.
func (s *SQLiteStore) Replace(ctx context.Context, originalID string, device *Device) error {
	dataJSON, err := json.Marshal(device.Data)
	if err != nil {
		return fmt.Errorf("marshalling device_data: %w", err)
	}

	device.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices SET
			device_id = ?, device_name = ?, device_type = ?,
			controller_address = ?, device_data = ?, updated_at = ?
		WHERE device_id = ?`

	result, err := s.db.ExecContext(ctx, query,
		device.ID,
		device.Name,
		device.Type,
		device.ControllerAddress,
		string(dataJSON),
		device.UpdatedAt.Format(time.RFC3339),
		originalID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %q", ErrExists, device.ID)
		}
		return fmt.Errorf("replacing device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a device by ID and returns the removed record.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (*Device, error) {
	removed, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM devices WHERE device_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("deleting device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrNotFound
	}

	return removed, nil
}

// scanDevice scans the current row of a result set into a Device.
func scanDevice(rows *sql.Rows) (*Device, error) {
	var d Device
	var dataJSON string
	var createdAt, updatedAt string

	err := rows.Scan(
		&d.ID,
		&d.Name,
		&d.Type,
		&d.ControllerAddress,
		&dataJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(dataJSON), &d.Data); err != nil {
		return nil, fmt.Errorf("unmarshalling device_data: %w", err)
	}

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &d, nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
