package database

import (
	"fmt"
	"path"

	dbsql "fleetwatch/pkg/database/sql"
	"fleetwatch/pkg/logging"
)

// ApplySchema executes the embedded schema files in lexical order. The
// statements are idempotent (CREATE TABLE IF NOT EXISTS), so running this on
// every startup is safe.
func ApplySchema(db PostgresConn, logger logging.Logger) error {
	entries, err := dbsql.Content.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("failed to read embedded schema: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		content, err := dbsql.Content.ReadFile(path.Join("schema", name))
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", name, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to apply schema file %s: %w", name, err)
		}
		logger.WithField("file", name).Info("Applied schema file")
	}
	return nil
}
