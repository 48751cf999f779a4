// Package paths resolves the on-disk layout used by the analyzer caches.
package paths

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// HomeEnvVar overrides the analyzer home directory.
	HomeEnvVar = "BSL_ANALYZER_HOME"

	// DefaultHome is the directory name created under the user's home.
	DefaultHome = ".bsl_analyzer"

	// PlatformCacheSubdir holds one <version>.jsonl file per platform version.
	PlatformCacheSubdir = "platform_cache"

	// PlatformDocsSubdir holds pre-extracted documentation trees per version.
	PlatformDocsSubdir = "platform_docs"

	// ProjectIndicesSubdir holds per-project caches.
	ProjectIndicesSubdir = "project_indices"

	// LogsSubdir holds analyzer log files.
	LogsSubdir = "logs"

	// RegistryFile lists known projects under ProjectIndicesSubdir.
	RegistryFile = "projects.toml"
)

// GetHome returns the analyzer home directory.
// BSL_ANALYZER_HOME wins over ~/.bsl_analyzer.
func GetHome() (string, error) {
	if env := os.Getenv(HomeEnvVar); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving user home: %w", err)
	}
	return filepath.Join(home, DefaultHome), nil
}

// GetPlatformCacheDir returns <home>/platform_cache.
func GetPlatformCacheDir() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, PlatformCacheSubdir), nil
}

// GetPlatformDocsDir returns <home>/platform_docs.
func GetPlatformDocsDir() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, PlatformDocsSubdir), nil
}

// GetProjectIndicesDir returns <home>/project_indices.
func GetProjectIndicesDir() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ProjectIndicesSubdir), nil
}

// GetLogPath returns <home>/logs/index.log.
func GetLogPath() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, LogsSubdir, "index.log"), nil
}

// EnsureDir creates dir (and parents) if it does not exist.
func EnsureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return dir, nil
}

// ComputeProjectHash returns a stable 16-char hex hash of a configuration path.
// The path is canonicalized first so that equivalent spellings collide.
func ComputeProjectHash(configPath string) string {
	sum := sha256.Sum256([]byte(CanonicalRoot(configPath)))
	return hex.EncodeToString(sum[:8])
}

// ProjectDirName returns "<project>_<hash>" for a configuration path.
func ProjectDirName(configPath string) string {
	name := SanitizeName(filepath.Base(CanonicalRoot(configPath)))
	if name == "" {
		name = "project"
	}
	return name + "_" + ComputeProjectHash(configPath)
}

// SanitizeName replaces characters that are awkward in directory names.
func SanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
}

// CanonicalRoot returns an absolute, symlink-resolved, slash-normalized path.
// Paths that do not exist are returned absolute and cleaned.
func CanonicalRoot(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return filepath.ToSlash(filepath.Clean(abs))
}

// WriteFileAtomic writes data to a temp file next to path and renames it over
// path, so readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
