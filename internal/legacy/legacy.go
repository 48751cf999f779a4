// Package legacy converts pre-computed JSON exports of configuration metadata
// and forms into entities. Import is best-effort: a file that fails to read or
// convert is recorded in the ImportReport and skipped.
package legacy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bslanalyzer/internal/configparser"
	"bslanalyzer/internal/entity"
	bslerrors "bslanalyzer/internal/errors"
	"bslanalyzer/internal/slogutil"
)

const maxExportSize = 16 << 20

// FileError records one export file that could not be imported.
type FileError struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// ImportReport summarizes one export directory.
type ImportReport struct {
	Dir      string           `json:"dir"`
	Files    int              `json:"files"`
	Entities []*entity.Entity `json:"-"`
	Failures []FileError      `json:"failures,omitempty"`
	Duration time.Duration    `json:"duration"`
}

// Imported returns the number of files converted without error.
func (r *ImportReport) Imported() int {
	return r.Files - len(r.Failures)
}

// Loader reads export directories.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a loader. A nil logger discards output.
func NewLoader(logger *slog.Logger) *Loader {
	return &Loader{logger: slogutil.Component(slogutil.OrDiscard(logger), "legacy")}
}

// LoadMetadataExports converts every *.json metadata export under dir.
func (l *Loader) LoadMetadataExports(dir string) (*ImportReport, error) {
	return l.load(dir, "metadata", convertMetadata)
}

// LoadFormExports converts every *.json form export under dir.
func (l *Loader) LoadFormExports(dir string) (*ImportReport, error) {
	return l.load(dir, "forms", convertForms)
}

type converter func(data []byte, rel string) ([]*entity.Entity, error)

func (l *Loader) load(dir, what string, convert converter) (*ImportReport, error) {
	start := time.Now()
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, bslerrors.New(bslerrors.ConfigNotFound,
			fmt.Sprintf("%s export directory not found: %s", what, dir), err)
	}

	report := &ImportReport{Dir: dir}
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)
		report.Files++

		entities, err := readAndConvert(path, rel, convert)
		if err != nil {
			report.Failures = append(report.Failures, FileError{Path: rel, Err: err.Error()})
			l.logger.Warn("Skipping legacy export", "path", rel, "error", err.Error())
			return nil
		}
		report.Entities = append(report.Entities, entities...)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, walkErr)
	}

	report.Duration = time.Since(start)
	l.logger.Info("Legacy exports loaded",
		"kind", what,
		"files", report.Files,
		"entities", len(report.Entities),
		"failed", len(report.Failures),
	)
	return report, nil
}

func readAndConvert(path, rel string, convert converter) ([]*entity.Entity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only

	data, err := io.ReadAll(io.LimitReader(f, maxExportSize))
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	return convert(data, rel)
}

// decodeList accepts either a single JSON object or an array of them.
func decodeList[T any](data []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	if trimmed[0] == '[' {
		var out []T
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var one T
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}

// typeList is a type declaration given either as "A" or ["A", "B"].
type typeList []string

func (t *typeList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one != "" {
			*t = typeList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("type must be a string or a list of strings")
	}
	*t = many
	return nil
}

func (t typeList) platformName() string {
	names := make([]string, 0, len(t))
	for _, raw := range t {
		names = append(names, configparser.PlatformTypeName(raw))
	}
	return strings.Join(names, ", ")
}

func (t typeList) references() []string {
	var out []string
	for _, raw := range t {
		if target, ok := entity.ReferenceTarget(strings.TrimSpace(raw)); ok {
			out = entity.AppendUnique(out, target)
		}
	}
	return out
}

// resolveKind accepts a dump tag (Catalog), a dump directory (Catalogs) or a
// qualified-name prefix (Справочники).
func resolveKind(s string) (entity.Kind, bool) {
	s = strings.TrimSpace(s)
	if k, ok := entity.KindForXMLTag(s); ok {
		return k, true
	}
	if k, ok := entity.KindForDir(s); ok {
		return k, true
	}
	return entity.KindForPrefix(s)
}

// splitQualified splits "Справочники.Товары" into its kind and name.
func splitQualified(qn string) (entity.Kind, string, bool) {
	prefix, name, ok := strings.Cut(strings.TrimSpace(qn), ".")
	if !ok || name == "" {
		return "", "", false
	}
	kind, ok := resolveKind(prefix)
	return kind, name, ok
}

func joinDoc(synonym, comment string) string {
	synonym, comment = strings.TrimSpace(synonym), strings.TrimSpace(comment)
	switch {
	case synonym == "":
		return comment
	case comment == "":
		return synonym
	default:
		return synonym + "\n" + comment
	}
}
