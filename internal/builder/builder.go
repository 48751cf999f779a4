// Package builder assembles the unified type index: platform entities from
// the platform cache, configuration entities from the dump, and optional
// legacy JSON exports. It also patches an existing index in place when the
// watcher reports a change set small enough to apply incrementally.
package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bslanalyzer/internal/configparser"
	"bslanalyzer/internal/entity"
	bslerrors "bslanalyzer/internal/errors"
	"bslanalyzer/internal/legacy"
	"bslanalyzer/internal/platformcache"
	"bslanalyzer/internal/projectcache"
	"bslanalyzer/internal/slogutil"
	"bslanalyzer/internal/typeindex"
)

// DefaultIncrementalThreshold is the changed-file percentage above which an
// incremental update is refused.
const DefaultIncrementalThreshold = 50

// BuildRequest names what to build.
type BuildRequest struct {
	ConfigPath        string
	PlatformVersion   string
	LegacyMetadataDir string
	LegacyFormsDir    string
}

// BuildStats describes a completed build.
type BuildStats struct {
	ConfigurationName string        `json:"configurationName"`
	PlatformVersion   string        `json:"platformVersion"`
	Objects           int           `json:"objects"`
	PlatformEntities  int           `json:"platformEntities"`
	ConfigEntities    int           `json:"configEntities"`
	LegacyEntities    int           `json:"legacyEntities"`
	LegacyMerged      int           `json:"legacyMerged"`
	LegacyFailures    int           `json:"legacyFailures"`
	StartedAt         time.Time     `json:"startedAt"`
	Duration          time.Duration `json:"duration"`
}

// Options configures a Builder.
type Options struct {
	Platform projectcache.PlatformSource
	// Parser defaults to the XML dump parser.
	Parser configparser.Parser
	// Cache enables LoadOrBuild and persisting refreshed indexes.
	Cache *projectcache.Cache
	// IncrementalThreshold is a percentage of tracked files; 0 means the default.
	IncrementalThreshold int
	// NoIncremental forces every refresh to rebuild.
	NoIncremental bool
	Logger        *slog.Logger
}

// Builder builds and refreshes type indexes.
type Builder struct {
	platform      projectcache.PlatformSource
	parser        configparser.Parser
	legacy        *legacy.Loader
	cache         *projectcache.Cache
	threshold     int
	noIncremental bool
	logger        *slog.Logger
}

// New creates a builder.
func New(opts Options) (*Builder, error) {
	if opts.Platform == nil {
		return nil, errors.New("builder: platform source is required")
	}
	logger := slogutil.OrDiscard(opts.Logger)
	b := &Builder{
		platform:      opts.Platform,
		parser:        opts.Parser,
		legacy:        legacy.NewLoader(logger),
		cache:         opts.Cache,
		threshold:     opts.IncrementalThreshold,
		noIncremental: opts.NoIncremental,
		logger:        slogutil.Component(logger, "builder"),
	}
	if b.parser == nil {
		b.parser = configparser.NewXMLParser(logger)
	}
	if b.threshold <= 0 {
		b.threshold = DefaultIncrementalThreshold
	}
	return b, nil
}

func (req BuildRequest) validate() (BuildRequest, error) {
	if strings.TrimSpace(req.ConfigPath) == "" {
		return req, bslerrors.New(bslerrors.ConfigInvalid, "configuration path is required", nil)
	}
	abs, err := filepath.Abs(req.ConfigPath)
	if err != nil {
		return req, bslerrors.New(bslerrors.ConfigInvalid, fmt.Sprintf("invalid configuration path %s", req.ConfigPath), err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return req, bslerrors.New(bslerrors.ConfigNotFound,
			fmt.Sprintf("configuration directory not found: %s", req.ConfigPath), err)
	}
	req.ConfigPath = abs
	req.PlatformVersion = platformcache.NormalizeVersion(req.PlatformVersion)
	if req.PlatformVersion == "" {
		return req, bslerrors.New(bslerrors.ConfigInvalid, "platform version is required", nil)
	}
	return req, nil
}

// Build runs a full build. Platform and configuration failures abort the
// build; legacy export failures are logged and skipped.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (*typeindex.Index, *BuildStats, error) {
	req, err := req.validate()
	if err != nil {
		return nil, nil, err
	}
	stats := &BuildStats{StartedAt: time.Now(), PlatformVersion: req.PlatformVersion}

	b.logger.Info("Building type index",
		"config", req.ConfigPath,
		"platform", req.PlatformVersion,
	)

	// 1. Platform entities
	platformEntities, err := b.platform.GetOrCreate(ctx, req.PlatformVersion)
	if err != nil {
		return nil, nil, err
	}
	stats.PlatformEntities = len(platformEntities)

	// 2. Configuration entities
	cfg, configEntities, err := b.parseConfiguration(ctx, req.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	stats.ConfigurationName = cfg.Name
	stats.Objects = len(cfg.Objects)

	// 3. Legacy exports
	legacyEntities, failures := b.loadLegacy(req)
	stats.LegacyEntities = len(legacyEntities)
	stats.LegacyFailures = failures
	configEntities, stats.LegacyMerged = mergeLegacy(configEntities, legacyEntities)
	stats.ConfigEntities = len(configEntities)

	// 4. Insert, 5. link
	idx := typeindex.New()
	if err := idx.AddEntities(platformEntities); err != nil {
		return nil, nil, bslerrors.New(bslerrors.InternalError, "indexing platform entities", err)
	}
	if err := idx.AddEntities(configEntities); err != nil {
		return nil, nil, bslerrors.New(bslerrors.InternalError, "indexing configuration entities", err)
	}
	idx.BuildInheritanceRelationships()

	stats.Duration = time.Since(stats.StartedAt)
	b.logger.Info("Type index built",
		"configuration", stats.ConfigurationName,
		"objects", stats.Objects,
		"platformEntities", stats.PlatformEntities,
		"configEntities", stats.ConfigEntities,
		"legacyMerged", stats.LegacyMerged,
		"duration", stats.Duration.String(),
	)
	return idx, stats, nil
}

// parseConfiguration parses every object listed in Configuration.xml.
func (b *Builder) parseConfiguration(ctx context.Context, root string) (*configparser.Configuration, []*entity.Entity, error) {
	cfg, err := b.parser.ParseConfiguration(root)
	if err != nil {
		return nil, nil, err
	}
	var out []*entity.Entity
	for _, ref := range cfg.Objects {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		entities, err := b.parser.ParseObject(root, ref)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, entities...)
	}
	return cfg, out, nil
}

// loadLegacy reads the configured export directories. Nothing here fails the build.
func (b *Builder) loadLegacy(req BuildRequest) ([]*entity.Entity, int) {
	var out []*entity.Entity
	failures := 0
	load := func(dir string, fn func(string) (*legacy.ImportReport, error)) {
		if dir == "" {
			return
		}
		report, err := fn(dir)
		if err != nil {
			b.logger.Warn("Legacy export directory skipped", "path", dir, "error", err.Error())
			failures++
			return
		}
		out = append(out, report.Entities...)
		failures += len(report.Failures)
	}
	load(req.LegacyMetadataDir, b.legacy.LoadMetadataExports)
	load(req.LegacyFormsDir, b.legacy.LoadFormExports)
	return out, failures
}

// mergeLegacy folds legacy entities into the parsed ones. An entity whose
// qualified name already exists is merged into a copy of the existing one,
// whose members and links win; other legacy entities are appended.
func mergeLegacy(parsed, legacyEntities []*entity.Entity) ([]*entity.Entity, int) {
	if len(legacyEntities) == 0 {
		return parsed, 0
	}
	out := make([]*entity.Entity, len(parsed), len(parsed)+len(legacyEntities))
	copy(out, parsed)
	byName := make(map[string]int, len(out))
	for i, e := range out {
		byName[e.QualifiedName] = i
	}

	merged := 0
	for _, le := range legacyEntities {
		i, ok := byName[le.QualifiedName]
		if !ok {
			byName[le.QualifiedName] = len(out)
			out = append(out, le)
			continue
		}
		e := out[i].Clone()
		e.Interface.MergeMissing(le.Interface)
		e.Constraints.ParentTypes = entity.AppendUnique(e.Constraints.ParentTypes, le.Constraints.ParentTypes...)
		e.Relationships.Attributes = entity.AppendUnique(e.Relationships.Attributes, le.Relationships.Attributes...)
		e.Relationships.TabularSections = entity.AppendUnique(e.Relationships.TabularSections, le.Relationships.TabularSections...)
		e.Relationships.Forms = entity.AppendUnique(e.Relationships.Forms, le.Relationships.Forms...)
		e.Relationships.References = entity.AppendUnique(e.Relationships.References, le.Relationships.References...)
		if e.Documentation == "" {
			e.Documentation = le.Documentation
		}
		if e.Relationships.Owner == "" {
			e.Relationships.Owner = le.Relationships.Owner
		}
		out[i] = e
		merged++
	}
	return out, merged
}

// LoadOrBuild returns the cached index when it is fresh, building and
// caching it otherwise.
func (b *Builder) LoadOrBuild(ctx context.Context, req BuildRequest) (*typeindex.Index, bool, error) {
	if b.cache == nil {
		idx, _, err := b.Build(ctx, req)
		return idx, false, err
	}
	req, err := req.validate()
	if err != nil {
		return nil, false, err
	}
	return b.cache.GetOrCreate(ctx, req.ConfigPath, req.PlatformVersion, func(ctx context.Context) (*typeindex.Index, error) {
		idx, _, err := b.Build(ctx, req)
		return idx, err
	})
}
