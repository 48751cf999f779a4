package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// TrackedFile is one row of the tracked_files table.
type TrackedFile struct {
	Path    string
	Hash    string
	Size    int64
	ModTime time.Time
}

// TrackedFileRepository provides access to the tracked_files and scan_meta tables
type TrackedFileRepository struct {
	db *DB
}

// NewTrackedFileRepository creates a new tracked file repository
func NewTrackedFileRepository(db *DB) *TrackedFileRepository {
	return &TrackedFileRepository{db: db}
}

// ReplaceAll swaps the stored snapshot for files in one transaction.
func (r *TrackedFileRepository) ReplaceAll(files []TrackedFile) error {
	return r.db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM tracked_files"); err != nil {
			return fmt.Errorf("failed to clear tracked files: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO tracked_files (path, hash, size, mod_time)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, f := range files {
			if _, err := stmt.Exec(f.Path, f.Hash, f.Size, f.ModTime.UnixNano()); err != nil {
				return fmt.Errorf("failed to insert tracked file %s: %w", f.Path, err)
			}
		}
		return nil
	})
}

// ListAll returns every tracked file ordered by path.
func (r *TrackedFileRepository) ListAll() ([]TrackedFile, error) {
	rows, err := r.db.Query(`
		SELECT path, hash, size, mod_time
		FROM tracked_files
		ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []TrackedFile
	for rows.Next() {
		var f TrackedFile
		var modTime int64
		if err := rows.Scan(&f.Path, &f.Hash, &f.Size, &modTime); err != nil {
			return nil, fmt.Errorf("failed to scan tracked file: %w", err)
		}
		f.ModTime = time.Unix(0, modTime)
		files = append(files, f)
	}
	return files, rows.Err()
}

// Count returns the number of tracked files.
func (r *TrackedFileRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM tracked_files").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tracked files: %w", err)
	}
	return n, nil
}

// SetMeta stores a scan metadata value.
func (r *TrackedFileRepository) SetMeta(key, value string) error {
	_, err := r.db.Exec(`
		INSERT INTO scan_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set scan meta %s: %w", key, err)
	}
	return nil
}

// GetMeta returns a scan metadata value; ok is false when the key is unset.
func (r *TrackedFileRepository) GetMeta(key string) (value string, ok bool, err error) {
	err = r.db.QueryRow("SELECT value FROM scan_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get scan meta %s: %w", key, err)
	}
	return value, true, nil
}
