package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"bslanalyzer/internal/paths"
	"bslanalyzer/internal/projectcache"
	"bslanalyzer/internal/version"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache status for a configuration",
	Long:  "Display the analyzer home, cached platform versions, and the project cache and watcher state for --config",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// StatusResponseCLI contains the cache status for CLI output
type StatusResponseCLI struct {
	Version          string                 `json:"version"`
	Home             string                 `json:"home"`
	ConfigPath       string                 `json:"configPath"`
	PlatformVersion  string                 `json:"platformVersion"`
	PlatformCached   bool                   `json:"platformCached"`
	PlatformVersions []string               `json:"platformVersions"`
	Manifest         *projectcache.Manifest `json:"manifest,omitempty"`
	Fresh            bool                   `json:"fresh"`
	Reason           string                 `json:"reason"`
	Watcher          *WatcherStatusCLI      `json:"watcher,omitempty"`
}

// WatcherStatusCLI describes the persisted watcher baseline
type WatcherStatusCLI struct {
	HashMode     string    `json:"hashMode"`
	TrackedFiles int       `json:"trackedFiles"`
	LastFullScan time.Time `json:"lastFullScan"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	home, err := paths.GetHome()
	if err != nil {
		return err
	}
	versions, err := e.platform.Versions()
	if err != nil {
		return err
	}
	resp := &StatusResponseCLI{
		Version:          version.Version,
		Home:             home,
		ConfigPath:       e.configPath,
		PlatformVersion:  e.version,
		PlatformCached:   e.platform.Exists(e.version),
		PlatformVersions: versions,
	}

	if resp.Manifest, err = e.projects.Manifest(e.configPath, e.version); err != nil {
		resp.Reason = err.Error()
	} else {
		fresh, err := e.projects.CheckFreshness(e.configPath, e.version)
		if err != nil {
			return err
		}
		resp.Fresh, resp.Reason = fresh.Fresh, fresh.Reason
	}

	if !e.hasState() {
		return printResponse(resp)
	}
	if store, err := e.openState(); err != nil {
		e.logger.Warn("Watcher state unavailable", "error", err.Error())
	} else if store != nil {
		defer store.Close() //nolint:errcheck // read-only use
		snap, err := store.LoadSnapshot()
		if err != nil {
			return err
		}
		if snap != nil {
			resp.Watcher = &WatcherStatusCLI{
				HashMode:     string(snap.HashMode),
				TrackedFiles: len(snap.Files),
				LastFullScan: snap.LastFullScan,
			}
		}
	}

	return printResponse(resp)
}

// Human implements humanFormatter.
func (r *StatusResponseCLI) Human() string {
	var b strings.Builder
	fmt.Fprintf(&b, "bsl-index v%s\n", r.Version)
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	fmt.Fprintf(&b, "Home:          %s\n", r.Home)
	fmt.Fprintf(&b, "Configuration: %s\n", r.ConfigPath)
	cached := "missing"
	if r.PlatformCached {
		cached = "cached"
	}
	fmt.Fprintf(&b, "Platform:      %s (%s)\n", r.PlatformVersion, cached)
	if len(r.PlatformVersions) > 0 {
		fmt.Fprintf(&b, "Cached platform versions: %s\n", strings.Join(r.PlatformVersions, ", "))
	}
	b.WriteString("\nProject cache:\n")
	if r.Manifest == nil {
		fmt.Fprintf(&b, "  none (%s)\n", r.Reason)
	} else {
		state := "stale"
		if r.Fresh {
			state = "fresh"
		}
		fmt.Fprintf(&b, "  %s: %s\n", state, r.Reason)
		fmt.Fprintf(&b, "  Project:  %s (%s)\n", r.Manifest.ProjectName, r.Manifest.UID)
		fmt.Fprintf(&b, "  Entities: %d configuration, %d forms, %d modules\n",
			r.Manifest.ConfigEntityCount, r.Manifest.FormEntityCount, r.Manifest.ModuleEntityCount)
		fmt.Fprintf(&b, "  Built:    %s, %s (took %s)\n",
			r.Manifest.CreatedAt.Format(time.RFC3339), humanize.Time(r.Manifest.CreatedAt), r.Manifest.BuildDuration)
	}
	if r.Watcher != nil {
		b.WriteString("\nWatcher baseline:\n")
		fmt.Fprintf(&b, "  %d files tracked (%s hashes), last full scan %s\n",
			r.Watcher.TrackedFiles, r.Watcher.HashMode, r.Watcher.LastFullScan.Format(time.RFC3339))
	}
	return strings.TrimRight(b.String(), "\n")
}
