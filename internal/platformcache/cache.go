// Package platformcache stores platform-builtin entities per platform
// version, shared read-only by every project on the machine.
package platformcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bslanalyzer/internal/entity"
	bslerrors "bslanalyzer/internal/errors"
	"bslanalyzer/internal/filelock"
	"bslanalyzer/internal/paths"
	"bslanalyzer/internal/slogutil"
)

const (
	fileExt = ".jsonl"
	lockExt = ".lock"
)

// lockName is the lock file serializing writers of one version.
func lockName(version string) string {
	return NormalizeVersion(version) + lockExt
}

// Options configures a Cache. Empty directories resolve under the analyzer home.
type Options struct {
	CacheDir string // <home>/platform_cache
	DocsDir  string // <home>/platform_docs
	Logger   *slog.Logger
}

// Cache is the version-keyed platform entity store.
type Cache struct {
	cacheDir string
	docsDir  string
	logger   *slog.Logger
}

// New creates a platform cache.
func New(opts Options) (*Cache, error) {
	c := &Cache{
		cacheDir: opts.CacheDir,
		docsDir:  opts.DocsDir,
		logger:   slogutil.Component(slogutil.OrDiscard(opts.Logger), "platform-cache"),
	}
	var err error
	if c.cacheDir == "" {
		if c.cacheDir, err = paths.GetPlatformCacheDir(); err != nil {
			return nil, err
		}
	}
	if c.docsDir == "" {
		if c.docsDir, err = paths.GetPlatformDocsDir(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NormalizeVersion strips surrounding whitespace and a leading "v".
func NormalizeVersion(version string) string {
	v := strings.TrimSpace(version)
	v = strings.TrimPrefix(v, "v")
	return strings.TrimPrefix(v, "V")
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.cacheDir
}

// Path returns the record file for a version.
func (c *Cache) Path(version string) string {
	return filepath.Join(c.cacheDir, NormalizeVersion(version)+fileExt)
}

// DocsPath returns the documentation tree for a version.
func (c *Cache) DocsPath(version string) string {
	return filepath.Join(c.docsDir, NormalizeVersion(version))
}

// Exists reports whether a record file exists for version.
func (c *Cache) Exists(version string) bool {
	info, err := os.Stat(c.Path(version))
	return err == nil && info.Mode().IsRegular()
}

// Versions lists cached platform versions, sorted.
func (c *Cache) Versions() ([]string, error) {
	entries, err := os.ReadDir(c.cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, bslerrors.New(bslerrors.CacheIO, "listing platform cache", err)
	}
	var versions []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), fileExt) {
			versions = append(versions, strings.TrimSuffix(e.Name(), fileExt))
		}
	}
	sort.Strings(versions)
	return versions, nil
}

// Remove deletes the record file for version. Missing files are not an error.
func (c *Cache) Remove(version string) error {
	if err := os.Remove(c.Path(version)); err != nil && !os.IsNotExist(err) {
		return bslerrors.New(bslerrors.CacheIO, "removing platform cache", err)
	}
	return nil
}

// Load reads the entities cached for version. A missing file yields
// PLATFORM_CACHE_MISSING with the import command to run; an undecodable
// record yields PLATFORM_CACHE_CORRUPT naming the line.
func (c *Cache) Load(version string) ([]*entity.Entity, error) {
	v := NormalizeVersion(version)
	f, err := os.Open(c.Path(v))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, missingError(v)
		}
		return nil, bslerrors.New(bslerrors.CacheIO, "opening platform cache", err)
	}
	defer func() { _ = f.Close() }()

	entities, err := decodeRecords(f, v)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Platform cache loaded", "version", v, "entities", len(entities))
	return entities, nil
}

// Save overwrites the record file for version atomically.
func (c *Cache) Save(version string, entities []*entity.Entity) error {
	lock, err := filelock.Acquire(context.Background(), c.cacheDir, lockName(version))
	if err != nil {
		return err
	}
	defer lock.Release()
	return c.saveLocked(NormalizeVersion(version), entities)
}

func (c *Cache) saveLocked(version string, entities []*entity.Entity) error {
	data, err := encodeRecords(entities)
	if err != nil {
		return bslerrors.New(bslerrors.InternalError, "encoding platform entities", err)
	}
	if err := paths.WriteFileAtomic(c.Path(version), data, 0644); err != nil {
		return bslerrors.New(bslerrors.CacheIO, "writing platform cache", err)
	}
	c.logger.Info("Platform cache written", "version", version, "entities", len(entities))
	return nil
}

// GetOrCreate returns the platform entities for version, reading the cache
// when present and otherwise deriving them from the documentation tree and
// persisting the result. Writers for one version are serialized; a writer
// that loses the race reads what the winner wrote.
func (c *Cache) GetOrCreate(ctx context.Context, version string) ([]*entity.Entity, error) {
	v := NormalizeVersion(version)
	if c.Exists(v) {
		return c.Load(v)
	}

	lock, err := filelock.Acquire(ctx, c.cacheDir, lockName(v))
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	if c.Exists(v) {
		c.logger.Debug("Platform cache created by another writer", "version", v)
		return c.Load(v)
	}

	entities, err := c.loadDocs(v)
	if err != nil {
		return nil, err
	}
	if err := c.saveLocked(v, entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// Import derives entities for version from the documentation tree at
// docsDir (or the default tree when empty) and overwrites the cache.
func (c *Cache) Import(ctx context.Context, version, docsDir string) (int, error) {
	v := NormalizeVersion(version)
	if docsDir == "" {
		docsDir = c.DocsPath(v)
	}

	lock, err := filelock.Acquire(ctx, c.cacheDir, lockName(v))
	if err != nil {
		return 0, err
	}
	defer lock.Release()

	entities, err := LoadDocsTree(docsDir, v)
	if err != nil {
		return 0, err
	}
	if err := c.saveLocked(v, entities); err != nil {
		return 0, err
	}
	return len(entities), nil
}

func (c *Cache) loadDocs(version string) ([]*entity.Entity, error) {
	dir := c.DocsPath(version)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, missingError(version)
	}
	c.logger.Info("Deriving platform entities from documentation", "version", version, "dir", dir)
	return LoadDocsTree(dir, version)
}

func fixesFor(code bslerrors.ErrorCode, version string) []bslerrors.FixAction {
	fixes := bslerrors.GetSuggestedFixes(code)
	for i := range fixes {
		fixes[i].Command = strings.ReplaceAll(fixes[i].Command, "${version}", version)
	}
	return fixes
}

func missingError(version string) error {
	return bslerrors.NewBslError(
		bslerrors.PlatformCacheMissing,
		fmt.Sprintf("no platform cache or documentation for version %s", version),
		nil,
		fixesFor(bslerrors.PlatformCacheMissing, version),
	).WithDetails(map[string]string{"version": version})
}

func encodeRecords(entities []*entity.Entity) ([]byte, error) {
	return entity.EncodeJSONL(entities)
}

func decodeRecords(r io.Reader, version string) ([]*entity.Entity, error) {
	entities, err := entity.DecodeJSONL(r)
	if err != nil {
		line := 0
		var le *entity.LineError
		if errors.As(err, &le) {
			line, err = le.Line, le.Err
		}
		return nil, corruptError(version, line, err)
	}
	for _, e := range entities {
		e.Category = entity.CategoryPlatform
	}
	return entities, nil
}

func corruptError(version string, line int, cause error) error {
	return bslerrors.NewBslError(
		bslerrors.PlatformCacheCorrupt,
		fmt.Sprintf("platform cache %s: bad record at line %d", version, line),
		cause,
		fixesFor(bslerrors.PlatformCacheCorrupt, version),
	).WithDetails(map[string]interface{}{"version": version, "line": line})
}
