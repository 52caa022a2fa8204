// Package store owns all persisted state: users, devices and events.
// Aggregation only ever reads through it; events are append-only and never
// mutated once written.
package store

import (
	"fleetwatch/pkg/database"
	"fleetwatch/pkg/logging"
)

// Store provides relational persistence for devices, events and users
type Store struct {
	db     database.PostgresConn
	logger logging.Logger
}

// New creates a Store backed by the given database connection
func New(db database.PostgresConn, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}
