package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// GetSyncConfig returns the singleton sweeper configuration, creating it
// with defaults on first read.
func (s *Store) GetSyncConfig() (SyncConfig, error) {
	var cfg SyncConfig
	var lastModified string
	err := s.db.QueryRow(`SELECT sync_interval_minutes, last_modified FROM sync_config WHERE id = 1`).
		Scan(&cfg.SyncIntervalMinutes, &lastModified)
	if err == sql.ErrNoRows {
		now := time.Now().UTC()
		if _, err := s.db.Exec(`
			INSERT INTO sync_config (id, sync_interval_minutes, last_modified) VALUES (1, ?, ?)`,
			DefaultSyncIntervalMinutes, now.Format(time.RFC3339),
		); err != nil {
			return SyncConfig{}, fmt.Errorf("creating default sync config: %w", err)
		}
		return SyncConfig{SyncIntervalMinutes: DefaultSyncIntervalMinutes, LastModified: now}, nil
	}
	if err != nil {
		return SyncConfig{}, err
	}
	if cfg.LastModified, err = time.Parse(time.RFC3339, lastModified); err != nil {
		return SyncConfig{}, fmt.Errorf("parsing last_modified: %w", err)
	}
	return cfg, nil
}

// UpdateSyncConfig sets the sweep interval and stamps last_modified.
func (s *Store) UpdateSyncConfig(intervalMinutes int) error {
	if intervalMinutes <= 0 {
		return fmt.Errorf("sync interval must be positive, got %d", intervalMinutes)
	}
	_, err := s.db.Exec(`
		INSERT INTO sync_config (id, sync_interval_minutes, last_modified) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sync_interval_minutes = excluded.sync_interval_minutes,
			last_modified = excluded.last_modified`,
		intervalMinutes, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}
