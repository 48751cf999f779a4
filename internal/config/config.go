package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// CurrentVersion is the config schema version understood by this build.
const CurrentVersion = 1

// DirName is the per-project directory holding config.json.
const DirName = ".bsl-analyzer"

// Config represents the complete analyzer configuration
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	// Home overrides the cache home (~/.bsl_analyzer). Empty means default.
	Home string `json:"home,omitempty" mapstructure:"home"`

	Platform    PlatformConfig    `json:"platform" mapstructure:"platform"`
	Watcher     WatcherConfig     `json:"watcher" mapstructure:"watcher"`
	Incremental IncrementalConfig `json:"incremental" mapstructure:"incremental"`
	Legacy      LegacyConfig      `json:"legacy" mapstructure:"legacy"`
	Logging     LoggingConfig     `json:"logging" mapstructure:"logging"`
}

// PlatformConfig selects the platform catalog version and its sources
type PlatformConfig struct {
	DefaultVersion string `json:"defaultVersion" mapstructure:"defaultVersion"`
	// DocsRoot overrides <home>/platform_docs.
	DocsRoot string `json:"docsRoot,omitempty" mapstructure:"docsRoot"`
}

// WatcherConfig contains configuration watcher settings
type WatcherConfig struct {
	RescanIntervalSeconds int    `json:"rescanIntervalSeconds" mapstructure:"rescanIntervalSeconds"`
	PollIntervalMs        int    `json:"pollIntervalMs" mapstructure:"pollIntervalMs"`
	DebounceMs            int    `json:"debounceMs" mapstructure:"debounceMs"`
	HashMode              string `json:"hashMode" mapstructure:"hashMode"` // "stat" or "content"
	PersistState          bool   `json:"persistState" mapstructure:"persistState"`
}

// IncrementalConfig controls the full-rebuild fallback
type IncrementalConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	// Threshold is the percentage of tracked files changed before falling back to a full rebuild.
	Threshold int `json:"threshold" mapstructure:"threshold"`
}

// LegacyConfig points at pre-computed JSON exports
type LegacyConfig struct {
	MetadataDir string `json:"metadataDir,omitempty" mapstructure:"metadataDir"`
	FormsDir    string `json:"formsDir,omitempty" mapstructure:"formsDir"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format     string `json:"format" mapstructure:"format"`
	Level      string `json:"level" mapstructure:"level"`
	File       bool   `json:"file" mapstructure:"file"`
	MaxSize    string `json:"maxSize,omitempty" mapstructure:"maxSize"`
	MaxBackups int    `json:"maxBackups,omitempty" mapstructure:"maxBackups"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Platform: PlatformConfig{
			DefaultVersion: "8.3.24",
		},
		Watcher: WatcherConfig{
			RescanIntervalSeconds: 300,
			PollIntervalMs:        2000,
			DebounceMs:            500,
			HashMode:              "stat",
			PersistState:          true,
		},
		Incremental: IncrementalConfig{
			Enabled:   true,
			Threshold: 50,
		},
		Logging: LoggingConfig{
			Format:     "human",
			Level:      "info",
			File:       false,
			MaxSize:    "10MB",
			MaxBackups: 3,
		},
	}
}

// RescanInterval returns the forced full rescan interval.
func (w WatcherConfig) RescanInterval() time.Duration {
	return time.Duration(w.RescanIntervalSeconds) * time.Second
}

// PollInterval returns the polling interval for background watching.
func (w WatcherConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalMs) * time.Millisecond
}

// Debounce returns the quiet period before a batch of changes is reported.
func (w WatcherConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMs) * time.Millisecond
}

// LoadConfig loads configuration from <projectRoot>/.bsl-analyzer/config.json.
// Environment variables prefixed BSL_ANALYZER_ override file values
// (e.g. BSL_ANALYZER_PLATFORM_DEFAULTVERSION).
func LoadConfig(projectRoot string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(projectRoot, DirName))

	v.SetEnvPrefix("BSL_ANALYZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("home", d.Home)
	v.SetDefault("platform.defaultVersion", d.Platform.DefaultVersion)
	v.SetDefault("platform.docsRoot", d.Platform.DocsRoot)
	v.SetDefault("watcher.rescanIntervalSeconds", d.Watcher.RescanIntervalSeconds)
	v.SetDefault("watcher.pollIntervalMs", d.Watcher.PollIntervalMs)
	v.SetDefault("watcher.debounceMs", d.Watcher.DebounceMs)
	v.SetDefault("watcher.hashMode", d.Watcher.HashMode)
	v.SetDefault("watcher.persistState", d.Watcher.PersistState)
	v.SetDefault("incremental.enabled", d.Incremental.Enabled)
	v.SetDefault("incremental.threshold", d.Incremental.Threshold)
	v.SetDefault("legacy.metadataDir", d.Legacy.MetadataDir)
	v.SetDefault("legacy.formsDir", d.Legacy.FormsDir)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.maxSize", d.Logging.MaxSize)
	v.SetDefault("logging.maxBackups", d.Logging.MaxBackups)
}

// Save writes the configuration to <projectRoot>/.bsl-analyzer/config.json
func (c *Config) Save(projectRoot string) error {
	dir := filepath.Join(projectRoot, DirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Watcher.HashMode != "stat" && c.Watcher.HashMode != "content" {
		return &ConfigError{Field: "watcher.hashMode", Message: "must be 'stat' or 'content'"}
	}
	if c.Watcher.RescanIntervalSeconds <= 0 {
		return &ConfigError{Field: "watcher.rescanIntervalSeconds", Message: "must be positive"}
	}
	if c.Incremental.Threshold < 0 || c.Incremental.Threshold > 100 {
		return &ConfigError{Field: "incremental.threshold", Message: "must be between 0 and 100"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
