// Package projectcache persists the configuration-side entities of one
// project per platform version, plus a manifest used to decide freshness.
// Platform entities are never stored here; they are reloaded from the
// platform cache on every load.
package projectcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"bslanalyzer/internal/entity"
	bslerrors "bslanalyzer/internal/errors"
	"bslanalyzer/internal/filelock"
	"bslanalyzer/internal/paths"
	"bslanalyzer/internal/platformcache"
	"bslanalyzer/internal/slogutil"
	"bslanalyzer/internal/typeindex"
)

const (
	projectLock  = ".lock"
	registryLock = ".registry.lock"
)

// PlatformSource supplies platform entities for a version.
type PlatformSource interface {
	GetOrCreate(ctx context.Context, version string) ([]*entity.Entity, error)
}

// BuildFunc produces a ready index when the cache is stale.
type BuildFunc func(ctx context.Context) (*typeindex.Index, error)

// BuildInfo describes the build whose result is being saved.
type BuildInfo struct {
	ProjectName string
	// StartedAt becomes the manifest creation time. It must precede the
	// configuration read so edits made during the build invalidate the cache.
	StartedAt time.Time
	Duration  time.Duration
}

// Options configures a Cache.
type Options struct {
	IndicesDir string // <home>/project_indices when empty
	Platform   PlatformSource
	Logger     *slog.Logger
}

// Cache manages per-project caches under one project_indices directory.
type Cache struct {
	root     string
	platform PlatformSource
	logger   *slog.Logger
}

// New creates a project cache.
func New(opts Options) (*Cache, error) {
	if opts.Platform == nil {
		return nil, errors.New("projectcache: platform source is required")
	}
	root := opts.IndicesDir
	if root == "" {
		var err error
		if root, err = paths.GetProjectIndicesDir(); err != nil {
			return nil, err
		}
	}
	return &Cache{
		root:     root,
		platform: opts.Platform,
		logger:   slogutil.Component(slogutil.OrDiscard(opts.Logger), "project-cache"),
	}, nil
}

// ProjectDir returns <root>/<project>_<hash> for a configuration path.
func (c *Cache) ProjectDir(configPath string) string {
	return filepath.Join(c.root, paths.ProjectDirName(configPath))
}

// VersionDir returns <root>/<project>_<hash>/v<version>.
func (c *Cache) VersionDir(configPath, version string) string {
	return filepath.Join(c.ProjectDir(configPath), "v"+platformcache.NormalizeVersion(version))
}

// RegistryPath returns the projects.toml path.
func (c *Cache) RegistryPath() string {
	return filepath.Join(c.root, paths.RegistryFile)
}

// Manifest returns the manifest for a project and version, or nil.
func (c *Cache) Manifest(configPath, version string) (*Manifest, error) {
	return LoadManifest(c.VersionDir(configPath, version))
}

// CheckFreshness loads the manifest and checks it against the configuration.
func (c *Cache) CheckFreshness(configPath, version string) (FreshnessResult, error) {
	m, err := c.Manifest(configPath, version)
	if err != nil {
		return FreshnessResult{}, err
	}
	return m.CheckFreshness(paths.CanonicalRoot(configPath), platformcache.NormalizeVersion(version)), nil
}

// GetOrCreate returns a ready index for the project. A fresh cache is loaded
// from disk and merged with platform entities; otherwise build runs and its
// result is persisted. fromCache reports which path was taken.
func (c *Cache) GetOrCreate(ctx context.Context, configPath, version string, build BuildFunc) (idx *typeindex.Index, fromCache bool, err error) {
	configPath = paths.CanonicalRoot(configPath)
	version = platformcache.NormalizeVersion(version)

	fresh, err := c.CheckFreshness(configPath, version)
	switch {
	case err != nil && bslerrors.HasCode(err, bslerrors.ProjectCacheCorrupt):
		c.logger.Warn("Project manifest unreadable, rebuilding", "config", configPath, "error", err)
	case err != nil:
		return nil, false, err
	case fresh.Fresh:
		loaded, _, loadErr := c.Load(ctx, configPath, version)
		if loadErr == nil {
			c.logger.Info("Project cache hit", "config", configPath, "version", version)
			return loaded, true, nil
		}
		if !bslerrors.HasCode(loadErr, bslerrors.ProjectCacheCorrupt) {
			return nil, false, loadErr
		}
		c.logger.Warn("Project cache unreadable, rebuilding", "config", configPath, "error", loadErr)
	default:
		c.logger.Info("Project cache stale", "config", configPath, "version", version, "reason", fresh.Reason)
	}

	started := time.Now()
	idx, err = build(ctx)
	if err != nil {
		return nil, false, err
	}
	if _, err := c.Save(configPath, version, idx, BuildInfo{StartedAt: started, Duration: time.Since(started)}); err != nil {
		return nil, false, err
	}
	return idx, false, nil
}

// Load reads the cached configuration entities, merges them with platform
// entities and links the inheritance graph.
func (c *Cache) Load(ctx context.Context, configPath, version string) (*typeindex.Index, *Manifest, error) {
	dir := c.VersionDir(configPath, version)

	m, err := LoadManifest(dir)
	if err != nil {
		return nil, nil, err
	}
	if m == nil {
		return nil, nil, bslerrors.New(bslerrors.ProjectCacheCorrupt, "project manifest is missing", nil)
	}

	data, err := os.ReadFile(filepath.Join(dir, entitiesFile))
	if err != nil {
		return nil, nil, bslerrors.New(bslerrors.ProjectCacheCorrupt, "reading cached configuration entities", err)
	}
	configEntities, err := entity.DecodeJSONL(bytes.NewReader(data))
	if err != nil {
		return nil, nil, bslerrors.New(bslerrors.ProjectCacheCorrupt, "decoding cached configuration entities", err)
	}

	platformEntities, err := c.platform.GetOrCreate(ctx, version)
	if err != nil {
		return nil, nil, err
	}

	idx := typeindex.New()
	if err := idx.AddEntities(platformEntities); err != nil {
		return nil, nil, bslerrors.New(bslerrors.InternalError, "indexing platform entities", err)
	}
	for _, e := range configEntities {
		if e.Category == entity.CategoryPlatform {
			continue
		}
		if err := idx.AddEntity(e); err != nil {
			return nil, nil, bslerrors.New(bslerrors.InternalError, "indexing configuration entities", err)
		}
	}
	idx.BuildInheritanceRelationships()

	c.logger.Debug("Project cache loaded",
		"config", configPath,
		"configEntities", len(configEntities),
		"platformEntities", len(platformEntities),
	)
	return idx, m, nil
}

// Save persists every non-platform entity of idx and writes the manifest.
func (c *Cache) Save(configPath, version string, idx *typeindex.Index, info BuildInfo) (*Manifest, error) {
	configPath = paths.CanonicalRoot(configPath)
	version = platformcache.NormalizeVersion(version)
	dir := c.VersionDir(configPath, version)

	lock, err := filelock.Acquire(context.Background(), c.ProjectDir(configPath), projectLock)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	if info.ProjectName == "" {
		info.ProjectName = filepath.Base(configPath)
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}

	m := &Manifest{
		ProjectName:     info.ProjectName,
		ConfigPath:      configPath,
		PlatformVersion: version,
		CreatedAt:       info.StartedAt.UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	if info.Duration > 0 {
		m.BuildDuration = info.Duration.Round(time.Millisecond).String()
	}

	var stored []*entity.Entity
	for _, e := range idx.Entities() {
		switch e.Category {
		case entity.CategoryPlatform:
			m.PlatformEntityCount++
			continue
		case entity.CategoryForm:
			m.FormEntityCount++
		case entity.CategoryModule:
			m.ModuleEntityCount++
		default:
			m.ConfigEntityCount++
		}
		stored = append(stored, e)
	}
	m.EntityCount = len(stored)

	data, err := entity.EncodeJSONL(stored)
	if err != nil {
		return nil, bslerrors.New(bslerrors.InternalError, "encoding configuration entities", err)
	}
	if err := paths.WriteFileAtomic(filepath.Join(dir, entitiesFile), data, 0644); err != nil {
		return nil, bslerrors.New(bslerrors.CacheIO, "writing configuration entities", err)
	}

	entry, err := c.register(info.ProjectName, configPath, version)
	if err != nil {
		c.logger.Warn("Failed to update project registry", "error", err)
	} else {
		m.UID = entry.UID
	}

	// Manifest last: a reader that sees it also sees the entity file.
	if err := m.Save(dir); err != nil {
		return nil, err
	}

	c.logger.Info("Project cache written",
		"config", configPath,
		"version", version,
		"entities", m.EntityCount,
	)
	return m, nil
}

func (c *Cache) register(name, configPath, version string) (ProjectEntry, error) {
	lock, err := filelock.Acquire(context.Background(), c.root, registryLock)
	if err != nil {
		return ProjectEntry{}, err
	}
	defer lock.Release()

	reg, err := LoadRegistry(c.RegistryPath())
	if err != nil {
		return ProjectEntry{}, err
	}
	entry := reg.Register(name, configPath, paths.ProjectDirName(configPath), version)
	return entry, reg.Save(c.RegistryPath())
}

// List returns the registered projects.
func (c *Cache) List() ([]ProjectEntry, error) {
	reg, err := LoadRegistry(c.RegistryPath())
	if err != nil {
		return nil, err
	}
	return reg.List(), nil
}

// Forget deletes every cached version of a project and drops it from the
// registry. It reports whether anything was removed.
func (c *Cache) Forget(configPath string) (bool, error) {
	configPath = paths.CanonicalRoot(configPath)
	dir := c.ProjectDir(configPath)

	removed := false
	if _, err := os.Stat(dir); err == nil {
		if err := os.RemoveAll(dir); err != nil {
			return false, bslerrors.New(bslerrors.CacheIO, fmt.Sprintf("removing %s", dir), err)
		}
		removed = true
	}

	lock, err := filelock.Acquire(context.Background(), c.root, registryLock)
	if err != nil {
		return removed, err
	}
	defer lock.Release()

	reg, err := LoadRegistry(c.RegistryPath())
	if err != nil {
		return removed, err
	}
	if reg.Forget(configPath) {
		removed = true
		if err := reg.Save(c.RegistryPath()); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
