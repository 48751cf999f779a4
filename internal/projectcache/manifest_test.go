package projectcache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	bslerrors "bslanalyzer/internal/errors"
)

func TestManifestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{
		ProjectName:     "Торговля",
		ConfigPath:      "/src/cfg",
		PlatformVersion: "8.3.24",
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
		EntityCount:     42,
	}
	if err := m.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := LoadManifest(dir)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if got == nil {
		t.Fatal("manifest not found after Save")
	}
	if got.ProjectName != m.ProjectName || got.EntityCount != 42 || !got.CreatedAt.Equal(m.CreatedAt) {
		t.Errorf("loaded manifest = %+v", got)
	}
}

func TestLoadManifestMissing(t *testing.T) {
	m, err := LoadManifest(t.TempDir())
	if err != nil || m != nil {
		t.Errorf("LoadManifest(empty) = %v, %v, want nil, nil", m, err)
	}
}

func TestLoadManifestFormatMismatch(t *testing.T) {
	dir := t.TempDir()
	data := []byte(`{"formatVersion": 999, "projectName": "x"}`)
	if err := os.WriteFile(filepath.Join(dir, manifestFile), data, 0644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadManifest(dir)
	if err != nil || m != nil {
		t.Errorf("LoadManifest(old format) = %v, %v, want nil, nil", m, err)
	}
}

func TestLoadManifestCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, manifestFile), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadManifest(dir)
	if !bslerrors.HasCode(err, bslerrors.ProjectCacheCorrupt) {
		t.Errorf("err = %v, want PROJECT_CACHE_CORRUPT", err)
	}
}

func TestCheckFreshness(t *testing.T) {
	configDir := t.TempDir()
	descriptor := filepath.Join(configDir, descriptorFile)
	if err := os.WriteFile(descriptor, []byte("<x/>"), 0644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(descriptor, past, past); err != nil {
		t.Fatal(err)
	}

	m := &Manifest{PlatformVersion: "8.3.24", CreatedAt: time.Now()}

	tests := []struct {
		name       string
		manifest   *Manifest
		configPath string
		version    string
		fresh      bool
		reason     string
	}{
		{"nil manifest", nil, configDir, "8.3.24", false, "no project manifest"},
		{"fresh", m, configDir, "8.3.24", true, ""},
		{"version changed", m, configDir, "8.3.25", false, "platform version changed"},
		{"descriptor missing", m, t.TempDir(), "8.3.24", false, "cannot stat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.manifest.CheckFreshness(tt.configPath, tt.version)
			if got.Fresh != tt.fresh {
				t.Errorf("Fresh = %v, want %v (%s)", got.Fresh, tt.fresh, got.Reason)
			}
			if tt.reason != "" && !strings.Contains(got.Reason, tt.reason) {
				t.Errorf("Reason = %q, want it to contain %q", got.Reason, tt.reason)
			}
		})
	}

	t.Run("descriptor newer", func(t *testing.T) {
		future := time.Now().Add(2 * time.Hour)
		if err := os.Chtimes(descriptor, future, future); err != nil {
			t.Fatal(err)
		}
		got := m.CheckFreshness(configDir, "8.3.24")
		if got.Fresh {
			t.Fatal("manifest older than Configuration.xml reported fresh")
		}
		if !strings.Contains(got.Reason, "after the cache was written") || !strings.Contains(got.Reason, "hour") {
			t.Errorf("Reason = %q", got.Reason)
		}
	})
}
