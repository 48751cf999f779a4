package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"bslanalyzer/internal/projectcache"
	"bslanalyzer/internal/typeindex"
	"bslanalyzer/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the type index up to date while the configuration changes",
	Long: `Load or build the type index, then poll the configuration dump. Each
debounced batch of changes is applied incrementally when feasible and by a
full rebuild otherwise. The project cache is rewritten after every batch.

Stop with Ctrl-C.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	req := e.request()
	idx, fromCache, err := b.LoadOrBuild(ctx, req)
	if err != nil {
		return err
	}
	e.logger.Info("Index ready", "fromCache", fromCache, "entities", idx.Len())

	w, err := e.watcher()
	if err != nil {
		return err
	}
	if _, err := w.ScanConfigurationFiles(); err != nil {
		return err
	}
	store, err := e.openState()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close() //nolint:errcheck // best effort
	}

	// The last batch is flushed after ctx is cancelled.
	work := context.WithoutCancel(ctx)
	var mu sync.Mutex
	handler := func(report *watcher.ChangeReport, impact watcher.ChangeImpact) error {
		mu.Lock()
		defer mu.Unlock()

		var out strings.Builder
		writeReport(&out, report)
		fmt.Fprintf(&out, "Impact: %s\n", impact)

		if feas := b.CanUpdateIncrementally(report); feas.OK {
			res, err := b.UpdateIncremental(work, idx, e.configPath, report)
			if err == nil {
				fmt.Fprintf(&out, "Updated incrementally: %d added, %d updated, %d removed\n",
					len(res.Added), len(res.Updated), len(res.Removed))
				fmt.Print(out.String())
				return saveIndex(e, idx)
			}
			e.logger.Warn("Incremental update failed, rebuilding", "error", err.Error())
		} else {
			fmt.Fprintf(&out, "Rebuilding: %s\n", feas.Reason)
		}

		rebuilt, stats, err := b.Build(work, req)
		if err != nil {
			fmt.Print(out.String())
			fmt.Fprintf(os.Stderr, "Rebuild failed, will retry on the next poll: %v\n", err)
			return err
		}
		idx = rebuilt
		fmt.Fprintf(&out, "Rebuilt in %s: %d entities\n", stats.Duration.Round(time.Millisecond), idx.Len())
		fmt.Print(out.String())
		return saveIndex(e, idx)
	}

	poller := watcher.NewPoller(w, e.cfg.Watcher.PollInterval(), e.cfg.Watcher.Debounce(), handler)
	if err := poller.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("Watching %s (%d files). Press Ctrl-C to stop.\n", e.configPath, w.TrackedCount())

	<-ctx.Done()
	poller.Stop()

	if store != nil {
		if err := w.Persist(store); err != nil {
			return err
		}
	}
	return nil
}

func saveIndex(e *env, idx *typeindex.Index) error {
	_, err := e.projects.Save(e.configPath, e.version, idx, projectcache.BuildInfo{StartedAt: time.Now()})
	if err != nil {
		e.logger.Warn("Saving project cache failed", "error", err.Error())
	}
	return err
}
