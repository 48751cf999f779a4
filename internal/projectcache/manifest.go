package projectcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	bslerrors "bslanalyzer/internal/errors"
	"bslanalyzer/internal/paths"
	"bslanalyzer/internal/version"
)

const (
	manifestFile = "manifest.json"
	entitiesFile = "config_entities.jsonl"

	// descriptorFile is the root configuration descriptor whose mtime gates freshness.
	descriptorFile = "Configuration.xml"
)

// Manifest records what a project cache holds and when it was written.
type Manifest struct {
	FormatVersion       int       `json:"formatVersion"`
	UID                 string    `json:"uid,omitempty"`
	ProjectName         string    `json:"projectName"`
	ConfigPath          string    `json:"configPath"`
	PlatformVersion     string    `json:"platformVersion"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
	EntityCount         int       `json:"entityCount"`
	ConfigEntityCount   int       `json:"configEntityCount"`
	FormEntityCount     int       `json:"formEntityCount"`
	ModuleEntityCount   int       `json:"moduleEntityCount"`
	PlatformEntityCount int       `json:"platformEntityCount"`
	BuildDuration       string    `json:"buildDuration,omitempty"`
}

// FreshnessResult describes project cache freshness status.
type FreshnessResult struct {
	Fresh  bool
	Reason string
	Age    time.Duration
}

// LoadManifest loads the manifest from a version directory.
// Returns nil without error if no manifest exists or its format is outdated.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, bslerrors.New(bslerrors.CacheIO, "reading project manifest", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, bslerrors.New(bslerrors.ProjectCacheCorrupt, "parsing project manifest", err)
	}

	// Format mismatch - treat as no manifest
	if m.FormatVersion != version.CacheFormatVersion {
		return nil, nil
	}

	return &m, nil
}

// Save writes the manifest into dir atomically.
func (m *Manifest) Save(dir string) error {
	m.FormatVersion = version.CacheFormatVersion

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return bslerrors.New(bslerrors.InternalError, "marshaling project manifest", err)
	}
	if err := paths.WriteFileAtomic(filepath.Join(dir, manifestFile), data, 0644); err != nil {
		return bslerrors.New(bslerrors.CacheIO, "writing project manifest", err)
	}
	return nil
}

// CheckFreshness reports whether the cache can be used for configPath at
// platformVersion: the versions must match and Configuration.xml must not be
// newer than the manifest's creation time.
func (m *Manifest) CheckFreshness(configPath, platformVersion string) FreshnessResult {
	if m == nil {
		return FreshnessResult{Reason: "no project manifest found"}
	}

	result := FreshnessResult{Age: time.Since(m.CreatedAt)}

	if m.PlatformVersion != platformVersion {
		result.Reason = fmt.Sprintf("platform version changed (%s -> %s)", m.PlatformVersion, platformVersion)
		return result
	}

	info, err := os.Stat(filepath.Join(configPath, descriptorFile))
	if err != nil {
		result.Reason = fmt.Sprintf("cannot stat %s: %v", descriptorFile, err)
		return result
	}
	if info.ModTime().After(m.CreatedAt) {
		result.Reason = fmt.Sprintf("%s modified after the cache was written (%s)",
			descriptorFile, humanize.RelTime(m.CreatedAt, info.ModTime(), "later", "earlier"))
		return result
	}

	result.Fresh = true
	return result
}
