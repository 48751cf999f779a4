package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"bslanalyzer/internal/builder"
	"bslanalyzer/internal/config"
	"bslanalyzer/internal/paths"
	"bslanalyzer/internal/platformcache"
	"bslanalyzer/internal/projectcache"
	"bslanalyzer/internal/slogutil"
	"bslanalyzer/internal/storage"
	"bslanalyzer/internal/watcher"
)

// env holds what every command needs: the resolved configuration path,
// settings, logger and caches.
type env struct {
	configPath string
	version    string
	cfg        *config.Config
	logger     *slog.Logger
	factory    *slogutil.LoggerFactory
	platform   *platformcache.Cache
	projects   *projectcache.Cache
}

// newEnv resolves --config, loads its settings and opens the caches.
func newEnv() (*env, error) {
	configPath := configFlag
	if configPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		configPath = wd
	}
	configPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Home != "" && os.Getenv(paths.HomeEnvVar) == "" {
		if err := os.Setenv(paths.HomeEnvVar, cfg.Home); err != nil {
			return nil, err
		}
	}

	var cliLevel *slog.Level
	if verboseFlag > 0 || quietFlag {
		level := slogutil.LevelFromVerbosity(verboseFlag, quietFlag)
		cliLevel = &level
	}
	factory := slogutil.NewLoggerFactory(cfg, cliLevel)
	logger := factory.Logger(os.Stderr)

	platform, err := platformcache.New(platformcache.Options{DocsDir: cfg.Platform.DocsRoot, Logger: logger})
	if err != nil {
		return nil, err
	}
	projects, err := projectcache.New(projectcache.Options{Platform: platform, Logger: logger})
	if err != nil {
		return nil, err
	}

	ver := platformFlag
	if ver == "" {
		ver = cfg.Platform.DefaultVersion
	}

	return &env{
		configPath: paths.CanonicalRoot(configPath),
		version:    platformcache.NormalizeVersion(ver),
		cfg:        cfg,
		logger:     logger,
		factory:    factory,
		platform:   platform,
		projects:   projects,
	}, nil
}

func (e *env) Close() {
	_ = e.factory.Close()
}

func (e *env) builder() (*builder.Builder, error) {
	return builder.New(builder.Options{
		Platform:             e.platform,
		Cache:                e.projects,
		IncrementalThreshold: e.cfg.Incremental.Threshold,
		NoIncremental:        !e.cfg.Incremental.Enabled,
		Logger:               e.logger,
	})
}

func (e *env) request() builder.BuildRequest {
	return builder.BuildRequest{
		ConfigPath:        e.configPath,
		PlatformVersion:   e.version,
		LegacyMetadataDir: e.cfg.Legacy.MetadataDir,
		LegacyFormsDir:    e.cfg.Legacy.FormsDir,
	}
}

func (e *env) watcher() (*watcher.Watcher, error) {
	return watcher.New(watcher.Options{
		Root:           e.configPath,
		HashMode:       watcher.HashMode(e.cfg.Watcher.HashMode),
		RescanInterval: e.cfg.Watcher.RescanInterval(),
		Logger:         e.logger,
	})
}

// openState opens the watcher state database for this project and version,
// or returns nil when state persistence is disabled.
func (e *env) openState() (*watcher.StateStore, error) {
	if !e.cfg.Watcher.PersistState {
		return nil, nil
	}
	dir := e.projects.VersionDir(e.configPath, e.version)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return watcher.OpenStateStore(dir, e.logger)
}

// hasState reports whether a watcher state database exists for this project.
func (e *env) hasState() bool {
	_, err := os.Stat(filepath.Join(e.projects.VersionDir(e.configPath, e.version), storage.DBFileName))
	return err == nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
