package watcher

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"bslanalyzer/internal/paths"
	"bslanalyzer/internal/storage"
)

// Scan metadata keys stored in the scan_meta table
const (
	metaKeyRoot         = "root"
	metaKeyHashMode     = "hash_mode"
	metaKeyLastFullScan = "last_full_scan" // Unix nanoseconds
)

// StateStore persists the tracked-file snapshot of a watcher so change
// detection survives restarts.
type StateStore struct {
	db   *storage.DB
	repo *storage.TrackedFileRepository
}

// OpenStateStore opens or creates watcher.db inside dir.
func OpenStateStore(dir string, logger *slog.Logger) (*StateStore, error) {
	db, err := storage.Open(filepath.Join(dir, storage.DBFileName), logger)
	if err != nil {
		return nil, err
	}
	return &StateStore{db: db, repo: storage.NewTrackedFileRepository(db)}, nil
}

// Close closes the underlying database.
func (s *StateStore) Close() error {
	return s.db.Close()
}

// Snapshot is the persisted state of one watcher.
type Snapshot struct {
	Root         string
	HashMode     HashMode
	LastFullScan time.Time
	Files        []storage.TrackedFile
}

// SaveSnapshot replaces the stored snapshot.
func (s *StateStore) SaveSnapshot(snap Snapshot) error {
	if err := s.repo.ReplaceAll(snap.Files); err != nil {
		return err
	}
	lastFullScan := ""
	if !snap.LastFullScan.IsZero() {
		lastFullScan = strconv.FormatInt(snap.LastFullScan.UnixNano(), 10)
	}
	meta := map[string]string{
		metaKeyRoot:         snap.Root,
		metaKeyHashMode:     string(snap.HashMode),
		metaKeyLastFullScan: lastFullScan,
	}
	for k, v := range meta {
		if err := s.repo.SetMeta(k, v); err != nil {
			return err
		}
	}
	return nil
}

// LoadSnapshot returns the stored snapshot, or nil if none was saved.
func (s *StateStore) LoadSnapshot() (*Snapshot, error) {
	root, ok, err := s.repo.GetMeta(metaKeyRoot)
	if err != nil || !ok {
		return nil, err
	}
	mode, _, err := s.repo.GetMeta(metaKeyHashMode)
	if err != nil {
		return nil, err
	}
	raw, _, err := s.repo.GetMeta(metaKeyLastFullScan)
	if err != nil {
		return nil, err
	}
	var last time.Time
	if raw != "" {
		ns, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", metaKeyLastFullScan, raw, err)
		}
		last = time.Unix(0, ns)
	}

	files, err := s.repo.ListAll()
	if err != nil {
		return nil, err
	}
	return &Snapshot{Root: root, HashMode: HashMode(mode), LastFullScan: last, Files: files}, nil
}

// Persist saves the watcher's tracked set to store.
func (w *Watcher) Persist(store *StateStore) error {
	return store.SaveSnapshot(Snapshot{
		Root:         paths.CanonicalRoot(w.root),
		HashMode:     w.hashMode,
		LastFullScan: w.LastFullScan(),
		Files:        w.Snapshot(),
	})
}

// Restore loads the tracked set from store. It reports false, leaving the
// watcher untouched, when nothing was saved or the snapshot belongs to a
// different root or hash mode.
func (w *Watcher) Restore(store *StateStore) (bool, error) {
	snap, err := store.LoadSnapshot()
	if err != nil || snap == nil {
		return false, err
	}
	if snap.Root != paths.CanonicalRoot(w.root) || snap.HashMode != w.hashMode {
		w.logger.Debug("Ignoring watcher snapshot",
			"root", snap.Root,
			"hashMode", snap.HashMode,
		)
		return false, nil
	}
	w.restore(snap.Files, snap.LastFullScan)
	w.logger.Debug("Watcher state restored", "files", len(snap.Files))
	return true, nil
}
