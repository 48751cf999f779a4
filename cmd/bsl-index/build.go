package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bslanalyzer/internal/builder"
	"bslanalyzer/internal/projectcache"
	"bslanalyzer/internal/typeindex"
	"bslanalyzer/internal/version"
)

var buildForce bool

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build or load the type index for a configuration",
	Long: `Build the type index for a configuration dump.

A fresh project cache is loaded instead of rebuilding; --force always rebuilds
and rewrites the cache.

Examples:
  bsl-index build --config ./src/cf --platform 8.3.24
  bsl-index build --force --format json`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&buildForce, "force", false, "Rebuild even when the project cache is fresh")
	rootCmd.AddCommand(buildCmd)
}

// BuildResponseCLI is the build command output.
type BuildResponseCLI struct {
	Version         string          `json:"version"`
	ConfigPath      string          `json:"configPath"`
	PlatformVersion string          `json:"platformVersion"`
	FromCache       bool            `json:"fromCache"`
	Index           typeindex.Stats `json:"index"`
	Duration        string          `json:"duration"`
}

func runBuild(cmd *cobra.Command, args []string) error {
	start := time.Now()
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	b, err := e.builder()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	var (
		idx       *typeindex.Index
		fromCache bool
	)
	if buildForce {
		var stats *builder.BuildStats
		idx, stats, err = b.Build(ctx, e.request())
		if err != nil {
			return err
		}
		info := projectcache.BuildInfo{ProjectName: stats.ConfigurationName, StartedAt: stats.StartedAt, Duration: stats.Duration}
		if _, err := e.projects.Save(e.configPath, e.version, idx, info); err != nil {
			return err
		}
	} else {
		idx, fromCache, err = b.LoadOrBuild(ctx, e.request())
		if err != nil {
			return err
		}
	}

	return printResponse(&BuildResponseCLI{
		Version:         version.Version,
		ConfigPath:      e.configPath,
		PlatformVersion: e.version,
		FromCache:       fromCache,
		Index:           idx.Stats(),
		Duration:        time.Since(start).Round(time.Millisecond).String(),
	})
}

// Human implements humanFormatter.
func (r *BuildResponseCLI) Human() string {
	var b strings.Builder
	source := "built"
	if r.FromCache {
		source = "loaded from cache"
	}
	fmt.Fprintf(&b, "Type index %s in %s\n", source, r.Duration)
	fmt.Fprintf(&b, "  Configuration: %s\n", r.ConfigPath)
	fmt.Fprintf(&b, "  Platform:      %s\n", r.PlatformVersion)
	writeIndexStats(&b, r.Index)
	return strings.TrimRight(b.String(), "\n")
}

func writeIndexStats(b *strings.Builder, s typeindex.Stats) {
	fmt.Fprintf(b, "  Entities:      %d (platform %d, configuration %d, forms %d, modules %d)\n",
		s.TotalEntities,
		s.ByCategory["platform"],
		s.ByCategory["configuration"],
		s.ByCategory["form"],
		s.ByCategory["module"],
	)
	fmt.Fprintf(b, "  Members:       %d method names, %d property names\n", s.MethodNames, s.PropertyNames)
	fmt.Fprintf(b, "  Graph edges:   %d inheritance, %d reference\n", s.InheritanceEdges, s.ReferenceEdges)
}
