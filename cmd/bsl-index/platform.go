package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	bslerrors "bslanalyzer/internal/errors"
)

var (
	platformImportDocs    string
	platformImportArchive string
	platformImportForce   bool
	platformExportOut     string
)

var platformCmd = &cobra.Command{
	Use:   "platform",
	Short: "Manage cached platform type definitions",
	Long: `Manage the per-version platform caches shared by every project.

Examples:
  bsl-index platform list
  bsl-index platform import --platform 8.3.24 --docs ./hbk-extracted
  bsl-index platform export --platform 8.3.24 --out platform-8.3.24.zst
  bsl-index platform import --archive platform-8.3.24.zst`,
}

var platformListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached platform versions",
	Args:  cobra.NoArgs,
	RunE:  runPlatformList,
}

var platformImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Create a platform cache from documentation or an archive",
	Args:  cobra.NoArgs,
	RunE:  runPlatformImport,
}

var platformExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a platform cache to a compressed archive",
	Args:  cobra.NoArgs,
	RunE:  runPlatformExport,
}

func init() {
	platformImportCmd.Flags().StringVar(&platformImportDocs, "docs", "", "Extracted documentation tree (default: <home>/platform_docs/<version>)")
	platformImportCmd.Flags().StringVar(&platformImportArchive, "archive", "", "Archive written by 'platform export'")
	platformImportCmd.Flags().BoolVar(&platformImportForce, "force", false, "Overwrite an existing cache")
	platformImportCmd.MarkFlagsMutuallyExclusive("docs", "archive")

	platformExportCmd.Flags().StringVar(&platformExportOut, "out", "", "Archive path")
	_ = platformExportCmd.MarkFlagRequired("out")

	platformCmd.AddCommand(platformListCmd, platformImportCmd, platformExportCmd)
	rootCmd.AddCommand(platformCmd)
}

// PlatformListResponseCLI lists cached versions.
type PlatformListResponseCLI struct {
	CacheDir string   `json:"cacheDir"`
	Versions []string `json:"versions"`
}

// PlatformTransferResponseCLI reports an import or export.
type PlatformTransferResponseCLI struct {
	Action   string `json:"action"`
	Version  string `json:"version"`
	Source   string `json:"source,omitempty"`
	Target   string `json:"target,omitempty"`
	Entities int    `json:"entities"`
}

func runPlatformList(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	versions, err := e.platform.Versions()
	if err != nil {
		return err
	}
	return printResponse(&PlatformListResponseCLI{CacheDir: e.platform.Dir(), Versions: versions})
}

func runPlatformImport(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if platformImportArchive != "" {
		ver := ""
		if platformFlag != "" {
			ver = e.version
		}
		if ver != "" && e.platform.Exists(ver) && !platformImportForce {
			return existsError(ver)
		}
		f, err := os.Open(platformImportArchive)
		if err != nil {
			return bslerrors.New(bslerrors.CacheIO, "opening archive", err)
		}
		defer f.Close()
		written, n, err := e.platform.ImportArchive(ctx, ver, f)
		if err != nil {
			return err
		}
		return printResponse(&PlatformTransferResponseCLI{Action: "import", Version: written, Source: platformImportArchive, Entities: n})
	}

	if e.platform.Exists(e.version) && !platformImportForce {
		return existsError(e.version)
	}
	source := platformImportDocs
	if source == "" {
		source = e.platform.DocsPath(e.version)
	}
	n, err := e.platform.Import(ctx, e.version, source)
	if err != nil {
		return err
	}
	return printResponse(&PlatformTransferResponseCLI{Action: "import", Version: e.version, Source: source, Entities: n})
}

func runPlatformExport(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	n, err := e.platform.ExportArchiveFile(e.version, platformExportOut)
	if err != nil {
		return err
	}
	return printResponse(&PlatformTransferResponseCLI{Action: "export", Version: e.version, Target: platformExportOut, Entities: n})
}

func existsError(ver string) error {
	return bslerrors.NewBslError(bslerrors.ConfigInvalid,
		fmt.Sprintf("platform cache for %s already exists", ver), nil,
		[]bslerrors.FixAction{{
			Type:        bslerrors.RunCommand,
			Command:     fmt.Sprintf("bsl-index platform import --platform %s --force", ver),
			Description: "Overwrite the existing cache",
		}})
}

// Human implements humanFormatter.
func (r *PlatformListResponseCLI) Human() string {
	if len(r.Versions) == 0 {
		return fmt.Sprintf("No platform caches in %s.", r.CacheDir)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Platform caches (%s):\n", r.CacheDir)
	for _, v := range r.Versions {
		fmt.Fprintf(&b, "  %s\n", v)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Human implements humanFormatter.
func (r *PlatformTransferResponseCLI) Human() string {
	if r.Action == "export" {
		return fmt.Sprintf("Exported %d entities for %s to %s", r.Entities, r.Version, r.Target)
	}
	return fmt.Sprintf("Imported %d entities for %s from %s", r.Entities, r.Version, r.Source)
}
