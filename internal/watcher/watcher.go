// Package watcher tracks the files of a configuration dump and classifies
// the changes found between scans.
package watcher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"bslanalyzer/internal/entity"
	bslerrors "bslanalyzer/internal/errors"
	"bslanalyzer/internal/slogutil"
	"bslanalyzer/internal/storage"
)

// HashMode selects how a file's content proxy is computed.
type HashMode string

const (
	// HashStat hashes modification time and size. Fast, misses same-size
	// edits that preserve mtime.
	HashStat HashMode = "stat"
	// HashContent hashes file bytes with SHA-256.
	HashContent HashMode = "content"
)

// DefaultRescanInterval is how often CheckForChanges walks the whole tree.
const DefaultRescanInterval = 5 * time.Minute

// trackedExtensions are the file types recorded under metadata directories.
var trackedExtensions = map[string]bool{
	".xml": true,
	".bsl": true,
}

// rootFiles are the descriptors tracked at the configuration root.
var rootFiles = []string{ConfigurationFile, DumpInfoFile}

// ChangeReport lists the tracked files that changed since the previous scan.
// Paths are slash-separated and relative to the configuration root.
type ChangeReport struct {
	Modified []string `json:"modified,omitempty"`
	Added    []string `json:"added,omitempty"`
	Removed  []string `json:"removed,omitempty"`

	// StructureChanged is set when a full rescan found a different number
	// of tracked files.
	StructureChanged bool `json:"structureChanged"`
	// FullRescan is set when the whole tree was walked for this report.
	FullRescan bool `json:"fullRescan"`

	PreviousCount int `json:"previousCount"`
	CurrentCount  int `json:"currentCount"`
}

// Empty reports whether nothing changed.
func (r *ChangeReport) Empty() bool {
	return r == nil || (len(r.Modified) == 0 && len(r.Added) == 0 && len(r.Removed) == 0 && !r.StructureChanged)
}

// Paths returns every changed path, sorted and deduplicated.
func (r *ChangeReport) Paths() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{r.Modified, r.Added, r.Removed} {
		for _, p := range list {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Merge folds a later report into r. A file added then removed cancels out;
// a file removed then added counts as modified.
func (r *ChangeReport) Merge(later *ChangeReport) {
	if later == nil {
		return
	}
	added := toSet(r.Added)
	removed := toSet(r.Removed)
	modified := toSet(r.Modified)

	for _, p := range later.Added {
		if removed[p] {
			delete(removed, p)
			modified[p] = true
			continue
		}
		added[p] = true
	}
	for _, p := range later.Removed {
		delete(modified, p)
		if added[p] {
			delete(added, p)
			continue
		}
		removed[p] = true
	}
	for _, p := range later.Modified {
		if !added[p] {
			modified[p] = true
		}
	}

	r.Added = fromSet(added)
	r.Removed = fromSet(removed)
	r.Modified = fromSet(modified)
	r.StructureChanged = r.StructureChanged || later.StructureChanged
	r.FullRescan = r.FullRescan || later.FullRescan
	r.CurrentCount = later.CurrentCount
}

func toSet(list []string) map[string]bool {
	s := make(map[string]bool, len(list))
	for _, p := range list {
		s[p] = true
	}
	return s
}

func fromSet(s map[string]bool) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Options configures a Watcher.
type Options struct {
	Root           string
	HashMode       HashMode      // HashStat when empty
	RescanInterval time.Duration // DefaultRescanInterval when zero
	Now            func() time.Time
	Logger         *slog.Logger
}

type fileState struct {
	hash    string
	size    int64
	modTime time.Time
}

// Watcher maps each tracked file of one configuration to its hash.
type Watcher struct {
	root           string
	hashMode       HashMode
	rescanInterval time.Duration
	now            func() time.Time
	logger         *slog.Logger

	mu           sync.Mutex
	tracked      map[string]fileState
	lastFullScan time.Time
}

// New creates a watcher for the configuration dump at opts.Root.
func New(opts Options) (*Watcher, error) {
	info, err := os.Stat(opts.Root)
	if err != nil || !info.IsDir() {
		return nil, bslerrors.New(bslerrors.ConfigNotFound,
			fmt.Sprintf("configuration directory %s not found", opts.Root), err)
	}

	mode := opts.HashMode
	switch mode {
	case "":
		mode = HashStat
	case HashStat, HashContent:
	default:
		return nil, bslerrors.New(bslerrors.ConfigInvalid, fmt.Sprintf("unknown hash mode %q", mode), nil)
	}

	interval := opts.RescanInterval
	if interval <= 0 {
		interval = DefaultRescanInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Watcher{
		root:           opts.Root,
		hashMode:       mode,
		rescanInterval: interval,
		now:            now,
		logger:         slogutil.Component(slogutil.OrDiscard(opts.Logger), "watcher"),
		tracked:        make(map[string]fileState),
	}, nil
}

// Root returns the configuration directory being watched.
func (w *Watcher) Root() string {
	return w.root
}

// HashMode returns the hashing mode in use.
func (w *Watcher) HashMode() HashMode {
	return w.hashMode
}

// ScanConfigurationFiles walks the root descriptors and every metadata
// directory, replacing the tracked set. It returns the number of files tracked.
func (w *Watcher) ScanConfigurationFiles() (int, error) {
	current, err := w.collect()
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracked = current
	w.lastFullScan = w.now()

	w.logger.Debug("Configuration scanned", "root", w.root, "files", len(current))
	return len(current), nil
}

// CheckForChanges re-hashes the tracked files and reports what differs. When
// the rescan interval has elapsed, or no scan has happened yet, the whole
// tree is walked instead so that new and deleted files are noticed.
func (w *Watcher) CheckForChanges() (*ChangeReport, error) {
	w.mu.Lock()
	due := w.lastFullScan.IsZero() || w.now().Sub(w.lastFullScan) >= w.rescanInterval
	w.mu.Unlock()

	if due {
		return w.Rescan()
	}
	return w.checkTracked(), nil
}

// Rescan forces a full walk and diffs it against the tracked set. A change
// in the number of tracked files marks the report StructureChanged.
func (w *Watcher) Rescan() (*ChangeReport, error) {
	current, err := w.collect()
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	report := &ChangeReport{
		FullRescan:    true,
		PreviousCount: len(w.tracked),
		CurrentCount:  len(current),
	}
	for p, cur := range current {
		prev, ok := w.tracked[p]
		switch {
		case !ok:
			report.Added = append(report.Added, p)
		case prev.hash != cur.hash:
			report.Modified = append(report.Modified, p)
		}
	}
	for p := range w.tracked {
		if _, ok := current[p]; !ok {
			report.Removed = append(report.Removed, p)
		}
	}
	sort.Strings(report.Added)
	sort.Strings(report.Modified)
	sort.Strings(report.Removed)

	report.StructureChanged = w.lastFullScan.IsZero() || report.PreviousCount != report.CurrentCount

	w.tracked = current
	w.lastFullScan = w.now()

	w.logger.Debug("Full rescan",
		"root", w.root,
		"previous", report.PreviousCount,
		"current", report.CurrentCount,
		"modified", len(report.Modified),
		"added", len(report.Added),
		"removed", len(report.Removed),
	)
	return report, nil
}

// checkTracked re-hashes only the files already tracked.
func (w *Watcher) checkTracked() *ChangeReport {
	w.mu.Lock()
	defer w.mu.Unlock()

	report := &ChangeReport{PreviousCount: len(w.tracked)}
	for _, p := range sortedKeys(w.tracked) {
		prev := w.tracked[p]
		info, err := os.Stat(filepath.Join(w.root, filepath.FromSlash(p)))
		if err != nil {
			report.Removed = append(report.Removed, p)
			delete(w.tracked, p)
			continue
		}
		cur, err := w.hashFile(filepath.Join(w.root, filepath.FromSlash(p)), info)
		if err != nil {
			w.logger.Debug("Skipping unreadable file", "path", p, "error", err)
			continue
		}
		if cur.hash != prev.hash {
			report.Modified = append(report.Modified, p)
			w.tracked[p] = cur
		}
	}
	report.CurrentCount = len(w.tracked)
	return report
}

// Requeue rolls the tracked set back over a report that could not be applied,
// so the next check reports the same files again. Modified and removed files
// lose their stored hash. Added files are forgotten and the next check walks
// the whole tree, which marks its report StructureChanged.
func (w *Watcher) Requeue(report *ChangeReport) {
	if report.Empty() {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range report.Modified {
		if st, ok := w.tracked[p]; ok {
			st.hash = ""
			w.tracked[p] = st
		}
	}
	for _, p := range report.Removed {
		w.tracked[p] = fileState{}
	}
	if len(report.Added) > 0 || report.StructureChanged {
		for _, p := range report.Added {
			delete(w.tracked, p)
		}
		w.lastFullScan = time.Time{}
	}
	w.logger.Debug("Changes requeued", "root", w.root, "files", len(report.Paths()))
}

// AnalyzeChangeImpact classifies a report. A structural change always
// requires a full rebuild.
func (w *Watcher) AnalyzeChangeImpact(report *ChangeReport) ChangeImpact {
	if report.Empty() {
		return ImpactNone
	}
	if report.StructureChanged {
		return ImpactFullRebuild
	}
	return AnalyzeChangeImpact(report.Paths())
}

// TrackedCount returns the number of tracked files.
func (w *Watcher) TrackedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tracked)
}

// TrackedFiles returns the tracked paths, sorted.
func (w *Watcher) TrackedFiles() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedKeys(w.tracked)
}

// LastFullScan returns when the tree was last walked.
func (w *Watcher) LastFullScan() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastFullScan
}

// collect walks the tracked part of the configuration tree.
func (w *Watcher) collect() (map[string]fileState, error) {
	out := make(map[string]fileState)

	for _, name := range rootFiles {
		full := filepath.Join(w.root, name)
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		st, err := w.hashFile(full, info)
		if err != nil {
			return nil, bslerrors.New(bslerrors.CacheIO, fmt.Sprintf("hashing %s", name), err)
		}
		out[name] = st
	}

	for _, dir := range entity.DumpDirs() {
		base := filepath.Join(w.root, dir)
		if info, err := os.Stat(base); err != nil || !info.IsDir() {
			continue
		}
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil //nolint:nilerr // skip inaccessible entries
			}
			if d.IsDir() || !trackedExtensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil //nolint:nilerr // removed during the walk
			}
			st, err := w.hashFile(path, info)
			if err != nil {
				return nil //nolint:nilerr // unreadable files are picked up on the next scan
			}
			rel, err := filepath.Rel(w.root, path)
			if err != nil {
				return nil //nolint:nilerr
			}
			out[filepath.ToSlash(rel)] = st
			return nil
		})
		if err != nil {
			return nil, bslerrors.New(bslerrors.CacheIO, fmt.Sprintf("walking %s", base), err)
		}
	}
	return out, nil
}

func (w *Watcher) hashFile(path string, info os.FileInfo) (fileState, error) {
	st := fileState{size: info.Size(), modTime: info.ModTime()}
	if w.hashMode == HashContent {
		f, err := os.Open(path)
		if err != nil {
			return fileState{}, err
		}
		defer f.Close() //nolint:errcheck // read-only

		h := sha256.New()
		if _, err := io.Copy(h, f); err != nil {
			return fileState{}, err
		}
		st.hash = hex.EncodeToString(h.Sum(nil))
		return st, nil
	}
	st.hash = fmt.Sprintf("%d:%d", info.ModTime().UnixNano(), info.Size())
	return st, nil
}

func sortedKeys(m map[string]fileState) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns the tracked set in storable form.
func (w *Watcher) Snapshot() []storage.TrackedFile {
	w.mu.Lock()
	defer w.mu.Unlock()

	files := make([]storage.TrackedFile, 0, len(w.tracked))
	for _, p := range sortedKeys(w.tracked) {
		st := w.tracked[p]
		files = append(files, storage.TrackedFile{Path: p, Hash: st.hash, Size: st.size, ModTime: st.modTime})
	}
	return files
}

// restore replaces the tracked set with a stored snapshot.
func (w *Watcher) restore(files []storage.TrackedFile, lastFullScan time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.tracked = make(map[string]fileState, len(files))
	for _, f := range files {
		w.tracked[f.Path] = fileState{hash: f.Hash, size: f.Size, modTime: f.ModTime}
	}
	w.lastFullScan = lastFullScan
}
