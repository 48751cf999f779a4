package projectcache

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	bslerrors "bslanalyzer/internal/errors"
	"bslanalyzer/internal/paths"
)

// Registry lists the projects that have a cache, stored in projects.toml.
type Registry struct {
	// UpdatedAt is when the registry was last modified
	UpdatedAt time.Time `toml:"updated_at"`

	// Projects is the list of known projects
	Projects []ProjectEntry `toml:"projects"`
}

// ProjectEntry represents one cached project in the registry
type ProjectEntry struct {
	// UID is the immutable UUID for this project
	UID string `toml:"uid" json:"uid"`

	// Name is the human-friendly project name
	Name string `toml:"name" json:"name"`

	// ConfigPath is the canonical configuration dump directory
	ConfigPath string `toml:"config_path" json:"configPath"`

	// Dir is the cache directory name under project_indices
	Dir string `toml:"dir" json:"dir"`

	// PlatformVersions lists versions with a cache
	PlatformVersions []string `toml:"platform_versions,omitempty" json:"platformVersions,omitempty"`

	// RegisteredAt is when the project was first cached
	RegisteredAt time.Time `toml:"registered_at" json:"registeredAt"`

	// LastBuiltAt is when a cache for this project was last written
	LastBuiltAt time.Time `toml:"last_built_at" json:"lastBuiltAt"`
}

// LoadRegistry reads the registry at path. A missing file is an empty registry.
func LoadRegistry(path string) (*Registry, error) {
	var reg Registry
	if _, err := toml.DecodeFile(path, &reg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Registry{}, nil
		}
		return nil, bslerrors.New(bslerrors.ProjectCacheCorrupt, fmt.Sprintf("failed to parse %s", path), err)
	}
	return &reg, nil
}

// Save writes the registry to path atomically.
func (r *Registry) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(r); err != nil {
		return bslerrors.New(bslerrors.InternalError, "failed to encode registry", err)
	}
	if err := paths.WriteFileAtomic(path, buf.Bytes(), 0644); err != nil {
		return bslerrors.New(bslerrors.CacheIO, "failed to write registry", err)
	}
	return nil
}

// Register records a build of configPath at platformVersion and returns the
// project entry. Existing entries keep their UID.
func (r *Registry) Register(name, configPath, dir, platformVersion string) ProjectEntry {
	now := time.Now().UTC()
	r.UpdatedAt = now

	for i := range r.Projects {
		p := &r.Projects[i]
		if p.ConfigPath == configPath {
			p.Name = name
			p.Dir = dir
			p.LastBuiltAt = now
			p.PlatformVersions = addVersion(p.PlatformVersions, platformVersion)
			return *p
		}
	}

	entry := ProjectEntry{
		UID:              uuid.New().String(),
		Name:             name,
		ConfigPath:       configPath,
		Dir:              dir,
		PlatformVersions: []string{platformVersion},
		RegisteredAt:     now,
		LastBuiltAt:      now,
	}
	r.Projects = append(r.Projects, entry)
	return entry
}

// Get returns the entry for configPath, or nil.
func (r *Registry) Get(configPath string) *ProjectEntry {
	for i := range r.Projects {
		if r.Projects[i].ConfigPath == configPath {
			return &r.Projects[i]
		}
	}
	return nil
}

// List returns the entries sorted by name.
func (r *Registry) List() []ProjectEntry {
	out := make([]ProjectEntry, len(r.Projects))
	copy(out, r.Projects)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ConfigPath < out[j].ConfigPath
	})
	return out
}

// Forget removes the entry for configPath. It reports whether one existed.
func (r *Registry) Forget(configPath string) bool {
	for i, p := range r.Projects {
		if p.ConfigPath == configPath {
			r.Projects = append(r.Projects[:i], r.Projects[i+1:]...)
			r.UpdatedAt = time.Now().UTC()
			return true
		}
	}
	return false
}

func addVersion(versions []string, v string) []string {
	for _, x := range versions {
		if x == v {
			return versions
		}
	}
	versions = append(versions, v)
	sort.Strings(versions)
	return versions
}
