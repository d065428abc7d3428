package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Detections table - one row per completed still capture
		`CREATE TABLE IF NOT EXISTS detections (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			object_count INTEGER NOT NULL DEFAULT 0,
			confidence_threshold REAL NOT NULL,
			slice_count INTEGER NOT NULL,
			image_filename TEXT NOT NULL,
			latitude REAL,
			longitude REAL
		)`,

		// History is always read newest-first
		`CREATE INDEX IF NOT EXISTS idx_detections_timestamp ON detections(timestamp DESC)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
