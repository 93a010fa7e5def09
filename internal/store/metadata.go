package store

import (
	"context"
	"database/sql"
	"time"
)

// SetMetadata upserts a key-value pair in the store_metadata table.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO store_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

const lastExportKey = "last_export_at"

// MarkExported records the time of the latest history export.
func (s *Store) MarkExported(ctx context.Context, at time.Time) error {
	return s.SetMetadata(ctx, lastExportKey, at.UTC().Format(time.RFC3339Nano))
}

// LastExport returns the time of the latest history export, or the zero
// time if history was never exported.
func (s *Store) LastExport(ctx context.Context) (time.Time, error) {
	v, err := s.GetMetadata(ctx, lastExportKey)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, v)
}
