package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bslanalyzer/internal/projectcache"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage cached project indexes",
	Long: `List or drop the per-project type index caches.

Examples:
  bsl-index projects list
  bsl-index projects forget --config ./src/cf`,
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached projects",
	Args:  cobra.NoArgs,
	RunE:  runProjectsList,
}

var projectsForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete the cache of the project at --config",
	Args:  cobra.NoArgs,
	RunE:  runProjectsForget,
}

func init() {
	projectsCmd.AddCommand(projectsListCmd, projectsForgetCmd)
	rootCmd.AddCommand(projectsCmd)
}

// ProjectsListResponseCLI lists registered projects.
type ProjectsListResponseCLI struct {
	Projects []projectcache.ProjectEntry `json:"projects"`
}

// ProjectsForgetResponseCLI reports a forget.
type ProjectsForgetResponseCLI struct {
	ConfigPath string `json:"configPath"`
	Removed    bool   `json:"removed"`
}

func runProjectsList(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	projects, err := e.projects.List()
	if err != nil {
		return err
	}
	return printResponse(&ProjectsListResponseCLI{Projects: projects})
}

func runProjectsForget(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	removed, err := e.projects.Forget(e.configPath)
	if err != nil {
		return err
	}
	return printResponse(&ProjectsForgetResponseCLI{ConfigPath: e.configPath, Removed: removed})
}

// Human implements humanFormatter.
func (r *ProjectsListResponseCLI) Human() string {
	if len(r.Projects) == 0 {
		return "No cached projects."
	}
	var b strings.Builder
	for _, p := range r.Projects {
		fmt.Fprintf(&b, "%s\n", p.Name)
		fmt.Fprintf(&b, "  Path:      %s\n", p.ConfigPath)
		fmt.Fprintf(&b, "  Cache:     %s\n", p.Dir)
		if len(p.PlatformVersions) > 0 {
			fmt.Fprintf(&b, "  Platforms: %s\n", strings.Join(p.PlatformVersions, ", "))
		}
		if !p.LastBuiltAt.IsZero() {
			fmt.Fprintf(&b, "  Built:     %s\n", p.LastBuiltAt.Format(time.RFC3339))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Human implements humanFormatter.
func (r *ProjectsForgetResponseCLI) Human() string {
	if !r.Removed {
		return fmt.Sprintf("No cache registered for %s.", r.ConfigPath)
	}
	return fmt.Sprintf("Removed cache for %s.", r.ConfigPath)
}
