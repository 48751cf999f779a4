package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetHome(t *testing.T) {
	customHome := "/custom/bsl/home"
	t.Setenv(HomeEnvVar, customHome)

	home, err := GetHome()
	if err != nil {
		t.Fatalf("GetHome failed: %v", err)
	}
	if home != customHome {
		t.Errorf("Expected %s, got %s", customHome, home)
	}

	t.Setenv(HomeEnvVar, "")
	home, err = GetHome()
	if err != nil {
		t.Fatalf("GetHome failed: %v", err)
	}
	if !strings.HasSuffix(home, DefaultHome) {
		t.Errorf("Expected path to end with %s, got %s", DefaultHome, home)
	}
}

func TestCacheDirs(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(HomeEnvVar, tempDir)

	tests := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{"platform cache", GetPlatformCacheDir, filepath.Join(tempDir, PlatformCacheSubdir)},
		{"platform docs", GetPlatformDocsDir, filepath.Join(tempDir, PlatformDocsSubdir)},
		{"project indices", GetProjectIndicesDir, filepath.Join(tempDir, ProjectIndicesSubdir)},
		{"log", GetLogPath, filepath.Join(tempDir, LogsSubdir, "index.log")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestComputeProjectHash(t *testing.T) {
	hash1 := ComputeProjectHash("/some/config/path")
	hash2 := ComputeProjectHash("/some/config/path")
	if hash1 != hash2 {
		t.Errorf("Expected same hash for same path, got %s != %s", hash1, hash2)
	}

	hash3 := ComputeProjectHash("/different/config/path")
	if hash1 == hash3 {
		t.Errorf("Expected different hash for different path, got %s == %s", hash1, hash3)
	}

	if len(hash1) != 16 {
		t.Errorf("Expected 16 character hash, got %d: %s", len(hash1), hash1)
	}

	// Trailing separators and dot segments canonicalize to the same root.
	if ComputeProjectHash("/some/config/path/") != ComputeProjectHash("/some/config/./path") {
		t.Error("equivalent spellings should hash identically")
	}
}

func TestProjectDirName(t *testing.T) {
	name := ProjectDirName("/work/My Config")
	if !strings.HasPrefix(name, "My_Config_") {
		t.Errorf("unexpected dir name %q", name)
	}
	if !strings.HasSuffix(name, ComputeProjectHash("/work/My Config")) {
		t.Errorf("dir name %q should end with project hash", name)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "file.json")

	if err := WriteFileAtomic(path, []byte("first"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("second"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic overwrite failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("got %q, want second", data)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected temp files to be cleaned up, found %d entries", len(entries))
	}
}
