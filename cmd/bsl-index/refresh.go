package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bslanalyzer/internal/typeindex"
	"bslanalyzer/internal/watcher"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Apply configuration changes to the cached index",
	Long: `Compare the configuration dump with the watcher baseline and bring the
project cache up to date: incrementally when the change set allows it, by a
full rebuild otherwise. Without a baseline the index is loaded or built and a
baseline is recorded.`,
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

// RefreshResponseCLI is the refresh command output.
type RefreshResponseCLI struct {
	Baseline    bool                  `json:"baseline"`
	Report      *watcher.ChangeReport `json:"report,omitempty"`
	Impact      string                `json:"impact"`
	Incremental bool                  `json:"incremental"`
	Rebuilt     bool                  `json:"rebuilt"`
	Reason      string                `json:"reason"`
	Added       int                   `json:"added"`
	Updated     int                   `json:"updated"`
	Removed     int                   `json:"removed"`
	Index       typeindex.Stats       `json:"index"`
}

func runRefresh(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext()
	defer cancel()

	resp, err := refreshIndex(ctx, e)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

// refreshIndex applies the changes since the stored baseline to the project
// cache, recording a baseline first when there is none.
func refreshIndex(ctx context.Context, e *env) (*RefreshResponseCLI, error) {
	b, err := e.builder()
	if err != nil {
		return nil, err
	}
	w, err := e.watcher()
	if err != nil {
		return nil, err
	}

	store, err := e.openState()
	if err != nil {
		return nil, err
	}
	if store != nil {
		defer store.Close() //nolint:errcheck // best effort
	}
	restored := false
	if store != nil {
		if restored, err = w.Restore(store); err != nil {
			return nil, err
		}
	}

	resp := &RefreshResponseCLI{}
	if !restored {
		if _, err := w.ScanConfigurationFiles(); err != nil {
			return nil, err
		}
		idx, fromCache, err := b.LoadOrBuild(ctx, e.request())
		if err != nil {
			return nil, err
		}
		resp.Baseline = true
		resp.Rebuilt = !fromCache
		resp.Impact = watcher.ImpactNone.String()
		resp.Reason = "no watcher baseline"
		resp.Index = idx.Stats()
	} else {
		idx, _, err := e.projects.Load(ctx, e.configPath, e.version)
		if err != nil {
			e.logger.Info("Project cache unavailable, rebuilding", "reason", err.Error())
			idx = nil
		}
		res, err := b.Refresh(ctx, idx, e.request(), w)
		if err != nil {
			return nil, err
		}
		resp.Report = res.Report
		resp.Impact = res.Impact.String()
		resp.Incremental = res.Incremental
		resp.Rebuilt = res.Rebuilt
		resp.Reason = res.Reason
		if res.Update != nil {
			resp.Added, resp.Updated, resp.Removed = len(res.Update.Added), len(res.Update.Updated), len(res.Update.Removed)
		}
		resp.Index = res.Index.Stats()
	}

	if store != nil {
		if err := w.Persist(store); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// Human implements humanFormatter.
func (r *RefreshResponseCLI) Human() string {
	var b strings.Builder
	switch {
	case r.Baseline:
		fmt.Fprintf(&b, "Baseline recorded (%s).\n", r.Reason)
	case r.Incremental:
		fmt.Fprintf(&b, "Updated incrementally: %d added, %d updated, %d removed\n", r.Added, r.Updated, r.Removed)
	case r.Rebuilt:
		fmt.Fprintf(&b, "Rebuilt: %s\n", r.Reason)
	default:
		fmt.Fprintf(&b, "Up to date: %s\n", r.Reason)
	}
	if r.Report != nil && !r.Report.Empty() {
		writeReport(&b, r.Report)
		fmt.Fprintf(&b, "Impact: %s\n", r.Impact)
	}
	writeIndexStats(&b, r.Index)
	return strings.TrimRight(b.String(), "\n")
}
