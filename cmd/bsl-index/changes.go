package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bslanalyzer/internal/builder"
	"bslanalyzer/internal/watcher"
)

var (
	changesRescan     bool
	changesRebaseline bool
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Report configuration files changed since the last check",
	Long: `Compare the configuration dump with the persisted watcher baseline and
classify the changes. The first run only records the baseline. Later runs
leave the baseline alone so refresh still applies what they report; pass
--rebaseline to accept the current files as the new baseline.

Examples:
  bsl-index changes --config ./src/cf
  bsl-index changes --rescan --format json
  bsl-index changes --rebaseline`,
	RunE: runChanges,
}

func init() {
	changesCmd.Flags().BoolVar(&changesRescan, "rescan", false, "Walk the whole tree instead of re-hashing tracked files")
	changesCmd.Flags().BoolVar(&changesRebaseline, "rebaseline", false, "Record the current files as the new baseline")
	rootCmd.AddCommand(changesCmd)
}

// ChangesResponseCLI is the changes command output.
type ChangesResponseCLI struct {
	Baseline     bool                  `json:"baseline"`
	TrackedFiles int                   `json:"trackedFiles"`
	Report       *watcher.ChangeReport `json:"report,omitempty"`
	Impact       string                `json:"impact"`
	Feasibility  *builder.Feasibility  `json:"feasibility,omitempty"`
	Rebaselined  bool                  `json:"rebaselined,omitempty"`
}

func runChanges(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	resp, err := collectChanges(e, changesRescan, changesRebaseline)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

// collectChanges compares the dump with the stored baseline. The baseline is
// only written when none existed or rebaseline is set.
func collectChanges(e *env, rescan, rebaseline bool) (*ChangesResponseCLI, error) {
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

	resp := &ChangesResponseCLI{}
	if !restored {
		n, err := w.ScanConfigurationFiles()
		if err != nil {
			return nil, err
		}
		resp.Baseline = true
		resp.TrackedFiles = n
		resp.Impact = watcher.ImpactNone.String()
	} else {
		var report *watcher.ChangeReport
		if rescan {
			report, err = w.Rescan()
		} else {
			report, err = w.CheckForChanges()
		}
		if err != nil {
			return nil, err
		}
		b, err := e.builder()
		if err != nil {
			return nil, err
		}
		feas := b.CanUpdateIncrementally(report)
		resp.Report = report
		resp.TrackedFiles = w.TrackedCount()
		resp.Impact = w.AnalyzeChangeImpact(report).String()
		resp.Feasibility = &feas
		resp.Rebaselined = rebaseline
	}

	if store != nil && (resp.Baseline || resp.Rebaselined) {
		if err := w.Persist(store); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// Human implements humanFormatter.
func (r *ChangesResponseCLI) Human() string {
	if r.Baseline {
		return fmt.Sprintf("Baseline recorded: %d files tracked.", r.TrackedFiles)
	}
	if r.Report.Empty() {
		return fmt.Sprintf("No changes (%d files tracked).", r.TrackedFiles)
	}
	var b strings.Builder
	writeReport(&b, r.Report)
	fmt.Fprintf(&b, "Impact: %s\n", r.Impact)
	if r.Feasibility != nil {
		mode := "full rebuild"
		if r.Feasibility.OK {
			mode = "incremental update"
		}
		fmt.Fprintf(&b, "Next build: %s (%s)\n", mode, r.Feasibility.Reason)
	}
	if r.Rebaselined {
		b.WriteString("Baseline updated; refresh will not apply these changes.\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeReport(b *strings.Builder, report *watcher.ChangeReport) {
	for _, group := range []struct {
		mark  string
		paths []string
	}{
		{"M", report.Modified},
		{"A", report.Added},
		{"D", report.Removed},
	} {
		for _, p := range group.paths {
			fmt.Fprintf(b, "  %s %s\n", group.mark, p)
		}
	}
	if report.StructureChanged {
		fmt.Fprintf(b, "  file set changed: %d -> %d\n", report.PreviousCount, report.CurrentCount)
	}
}
