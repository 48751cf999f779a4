package watcher

import (
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	bslerrors "bslanalyzer/internal/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// touch rewrites a file with new content and pushes its mtime forward so the
// stat hash changes even on coarse-grained filesystems.
func touch(t *testing.T, root, rel, content string) {
	t.Helper()
	writeFile(t, root, rel, content)
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(filepath.Join(root, filepath.FromSlash(rel)), later, later); err != nil {
		t.Fatal(err)
	}
}

func newConfigTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "Configuration.xml", "<Configuration/>")
	writeFile(t, root, "ConfigDumpInfo.xml", "<ConfigDumpInfo/>")
	writeFile(t, root, "Catalogs/Товары.xml", "<Catalog/>")
	writeFile(t, root, "Catalogs/Товары/Ext/ObjectModule.bsl", "Процедура А() КонецПроцедуры")
	writeFile(t, root, "CommonModules/Сервер.xml", "<CommonModule/>")
	writeFile(t, root, "CommonModules/Сервер/Ext/Module.bsl", "")
	writeFile(t, root, "Catalogs/Товары/Ext/Help/ru.html", "<html/>")
	writeFile(t, root, "Untracked/Other.xml", "<x/>")
	return root
}

func newTestWatcher(t *testing.T, root string, clock *fakeClock, mode HashMode) *Watcher {
	t.Helper()
	w, err := New(Options{Root: root, HashMode: mode, Now: clock.Now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func TestNewWatcher(t *testing.T) {
	root := t.TempDir()

	t.Run("defaults", func(t *testing.T) {
		w, err := New(Options{Root: root})
		if err != nil {
			t.Fatal(err)
		}
		if w.HashMode() != HashStat {
			t.Errorf("HashMode = %q, want stat", w.HashMode())
		}
		if w.rescanInterval != DefaultRescanInterval {
			t.Errorf("rescanInterval = %v, want %v", w.rescanInterval, DefaultRescanInterval)
		}
	})

	t.Run("missing root", func(t *testing.T) {
		_, err := New(Options{Root: filepath.Join(root, "nope")})
		if !bslerrors.HasCode(err, bslerrors.ConfigNotFound) {
			t.Errorf("err = %v, want CONFIG_NOT_FOUND", err)
		}
	})

	t.Run("bad hash mode", func(t *testing.T) {
		_, err := New(Options{Root: root, HashMode: "md5"})
		if !bslerrors.HasCode(err, bslerrors.ConfigInvalid) {
			t.Errorf("err = %v, want CONFIG_INVALID", err)
		}
	})
}

func TestScanConfigurationFiles(t *testing.T) {
	root := newConfigTree(t)
	w := newTestWatcher(t, root, newFakeClock(), HashStat)

	n, err := w.ScanConfigurationFiles()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"Catalogs/Товары.xml",
		"Catalogs/Товары/Ext/ObjectModule.bsl",
		"CommonModules/Сервер.xml",
		"CommonModules/Сервер/Ext/Module.bsl",
		"ConfigDumpInfo.xml",
		"Configuration.xml",
	}
	if n != len(want) {
		t.Errorf("tracked %d files, want %d", n, len(want))
	}
	if got := w.TrackedFiles(); !reflect.DeepEqual(got, want) {
		t.Errorf("TrackedFiles = %v\nwant %v", got, want)
	}
}

func TestCheckForChangesWithoutBaseline(t *testing.T) {
	root := newConfigTree(t)
	w := newTestWatcher(t, root, newFakeClock(), HashStat)

	report, err := w.CheckForChanges()
	if err != nil {
		t.Fatal(err)
	}
	if !report.FullRescan || !report.StructureChanged {
		t.Errorf("first check should be a structural full rescan: %+v", report)
	}
	if len(report.Added) != 6 {
		t.Errorf("Added = %v, want every tracked file", report.Added)
	}
	if w.AnalyzeChangeImpact(report) != ImpactFullRebuild {
		t.Error("no baseline should require a full rebuild")
	}
}

func TestCheckForChangesModified(t *testing.T) {
	root := newConfigTree(t)
	clock := newFakeClock()
	w := newTestWatcher(t, root, clock, HashStat)
	if _, err := w.ScanConfigurationFiles(); err != nil {
		t.Fatal(err)
	}

	report, err := w.CheckForChanges()
	if err != nil {
		t.Fatal(err)
	}
	if !report.Empty() || report.FullRescan {
		t.Fatalf("unchanged tree reported %+v", report)
	}
	if w.AnalyzeChangeImpact(report) != ImpactNone {
		t.Error("empty report should be ImpactNone")
	}

	touch(t, root, "CommonModules/Сервер/Ext/Module.bsl", "Процедура Б() КонецПроцедуры")
	report, err = w.CheckForChanges()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(report.Modified, []string{"CommonModules/Сервер/Ext/Module.bsl"}) {
		t.Errorf("Modified = %v", report.Modified)
	}
	if got := w.AnalyzeChangeImpact(report); got != ImpactModuleUpdate {
		t.Errorf("impact = %v, want module_update", got)
	}

	report, err = w.CheckForChanges()
	if err != nil {
		t.Fatal(err)
	}
	if !report.Empty() {
		t.Errorf("a reported change should not be reported twice: %+v", report)
	}
}

func TestCheckForChangesClassificationOrdering(t *testing.T) {
	root := newConfigTree(t)
	w := newTestWatcher(t, root, newFakeClock(), HashStat)
	if _, err := w.ScanConfigurationFiles(); err != nil {
		t.Fatal(err)
	}

	touch(t, root, "Configuration.xml", "<Configuration version=\"2\"/>")
	touch(t, root, "CommonModules/Сервер/Ext/Module.bsl", "// changed")

	report, err := w.CheckForChanges()
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Modified) != 2 {
		t.Fatalf("Modified = %v, want two files", report.Modified)
	}
	if got := w.AnalyzeChangeImpact(report); got != ImpactFullRebuild {
		t.Errorf("impact = %v, want full_rebuild", got)
	}
}

func TestCheckForChangesRemovedBetweenRescans(t *testing.T) {
	root := newConfigTree(t)
	w := newTestWatcher(t, root, newFakeClock(), HashStat)
	if _, err := w.ScanConfigurationFiles(); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(root, "Catalogs", "Товары", "Ext", "ObjectModule.bsl")); err != nil {
		t.Fatal(err)
	}
	report, err := w.CheckForChanges()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(report.Removed, []string{"Catalogs/Товары/Ext/ObjectModule.bsl"}) {
		t.Errorf("Removed = %v", report.Removed)
	}
	if report.StructureChanged {
		t.Error("removal seen without a rescan is not structural")
	}
	if w.TrackedCount() != 5 {
		t.Errorf("TrackedCount = %d, want 5", w.TrackedCount())
	}
}

func TestCheckForChangesNewFileNeedsRescan(t *testing.T) {
	root := newConfigTree(t)
	clock := newFakeClock()
	w := newTestWatcher(t, root, clock, HashStat)
	if _, err := w.ScanConfigurationFiles(); err != nil {
		t.Fatal(err)
	}

	writeFile(t, root, "Documents/Заказ.xml", "<Document/>")

	report, err := w.CheckForChanges()
	if err != nil {
		t.Fatal(err)
	}
	if !report.Empty() {
		t.Fatalf("new files are only seen by a rescan, got %+v", report)
	}

	clock.Advance(DefaultRescanInterval)
	report, err = w.CheckForChanges()
	if err != nil {
		t.Fatal(err)
	}
	if !report.FullRescan {
		t.Fatal("rescan interval elapsed, expected a full rescan")
	}
	if !reflect.DeepEqual(report.Added, []string{"Documents/Заказ.xml"}) {
		t.Errorf("Added = %v", report.Added)
	}
	if !report.StructureChanged || report.PreviousCount != 6 || report.CurrentCount != 7 {
		t.Errorf("structure: changed=%v %d -> %d", report.StructureChanged, report.PreviousCount, report.CurrentCount)
	}
	if got := w.AnalyzeChangeImpact(report); got != ImpactFullRebuild {
		t.Errorf("impact = %v, want full_rebuild", got)
	}
	if !w.LastFullScan().Equal(clock.Now()) {
		t.Errorf("LastFullScan = %v, want %v", w.LastFullScan(), clock.Now())
	}
}

func TestRescanSameCountIsNotStructural(t *testing.T) {
	root := newConfigTree(t)
	w := newTestWatcher(t, root, newFakeClock(), HashStat)
	if _, err := w.ScanConfigurationFiles(); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(root, "CommonModules", "Сервер.xml")); err != nil {
		t.Fatal(err)
	}
	writeFile(t, root, "Enums/Статусы.xml", "<Enum/>")

	report, err := w.Rescan()
	if err != nil {
		t.Fatal(err)
	}
	if report.StructureChanged {
		t.Error("equal counts should not be structural")
	}
	if len(report.Added) != 1 || len(report.Removed) != 1 {
		t.Errorf("Added = %v Removed = %v", report.Added, report.Removed)
	}
	if got := w.AnalyzeChangeImpact(report); got != ImpactMetadataUpdate {
		t.Errorf("impact = %v, want metadata_update", got)
	}
}

func TestContentHashMode(t *testing.T) {
	root := newConfigTree(t)
	w := newTestWatcher(t, root, newFakeClock(), HashContent)
	if _, err := w.ScanConfigurationFiles(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(root, "Catalogs", "Товары.xml")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	// Same size and mtime, different bytes.
	if err := os.WriteFile(path, []byte("<Xatalog/>"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, info.ModTime(), info.ModTime()); err != nil {
		t.Fatal(err)
	}

	report, err := w.CheckForChanges()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(report.Modified, []string{"Catalogs/Товары.xml"}) {
		t.Errorf("content mode should catch same-size edits, Modified = %v", report.Modified)
	}
}

func TestChangeReportMerge(t *testing.T) {
	tests := []struct {
		name          string
		first, second ChangeReport
		want          ChangeReport
	}{
		{
			name:   "union of modifications",
			first:  ChangeReport{Modified: []string{"a.xml"}},
			second: ChangeReport{Modified: []string{"b.bsl", "a.xml"}},
			want:   ChangeReport{Modified: []string{"a.xml", "b.bsl"}},
		},
		{
			name:   "added then removed cancels",
			first:  ChangeReport{Added: []string{"a.xml"}},
			second: ChangeReport{Removed: []string{"a.xml"}},
			want:   ChangeReport{},
		},
		{
			name:   "removed then added is modified",
			first:  ChangeReport{Removed: []string{"a.xml"}},
			second: ChangeReport{Added: []string{"a.xml"}},
			want:   ChangeReport{Modified: []string{"a.xml"}},
		},
		{
			name:   "added then modified stays added",
			first:  ChangeReport{Added: []string{"a.xml"}},
			second: ChangeReport{Modified: []string{"a.xml"}},
			want:   ChangeReport{Added: []string{"a.xml"}},
		},
		{
			name:   "structure flag sticks",
			first:  ChangeReport{StructureChanged: true, FullRescan: true},
			second: ChangeReport{Modified: []string{"a.xml"}, CurrentCount: 3},
			want:   ChangeReport{Modified: []string{"a.xml"}, StructureChanged: true, FullRescan: true, CurrentCount: 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.first
			got.Merge(&tt.second)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Merge = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestChangeReportPaths(t *testing.T) {
	r := &ChangeReport{
		Modified: []string{"b.xml"},
		Added:    []string{"a.xml", "b.xml"},
		Removed:  []string{"c.bsl"},
	}
	want := []string{"a.xml", "b.xml", "c.bsl"}
	if got := r.Paths(); !reflect.DeepEqual(got, want) {
		t.Errorf("Paths = %v, want %v", got, want)
	}
	var nilReport *ChangeReport
	if !nilReport.Empty() || nilReport.Paths() != nil {
		t.Error("nil report should be empty")
	}
}

func TestRequeueReportsChangesAgain(t *testing.T) {
	root := newConfigTree(t)
	clock := newFakeClock()
	w := newTestWatcher(t, root, clock, HashStat)
	if _, err := w.ScanConfigurationFiles(); err != nil {
		t.Fatal(err)
	}

	touch(t, root, "Catalogs/Товары.xml", "<Catalog v=\"2\"/>")
	if err := os.Remove(filepath.Join(root, "CommonModules", "Сервер", "Ext", "Module.bsl")); err != nil {
		t.Fatal(err)
	}
	first, err := w.CheckForChanges()
	if err != nil {
		t.Fatal(err)
	}
	if again, _ := w.CheckForChanges(); !again.Empty() {
		t.Fatalf("a consumed report should not repeat, got %+v", again)
	}

	w.Requeue(first)
	second, err := w.CheckForChanges()
	if err != nil {
		t.Fatal(err)
	}
	if second.FullRescan {
		t.Error("requeued modifications should not force a rescan")
	}
	if !reflect.DeepEqual(second.Modified, first.Modified) || !reflect.DeepEqual(second.Removed, first.Removed) {
		t.Errorf("requeued report = %+v, want %+v", second, first)
	}
	if again, _ := w.CheckForChanges(); !again.Empty() {
		t.Errorf("requeued report should be consumed once, got %+v", again)
	}
}

func TestRequeueAddedForcesStructuralRescan(t *testing.T) {
	root := newConfigTree(t)
	clock := newFakeClock()
	w := newTestWatcher(t, root, clock, HashStat)
	if _, err := w.ScanConfigurationFiles(); err != nil {
		t.Fatal(err)
	}

	writeFile(t, root, "Documents/Заказ.xml", "<Document/>")
	report, err := w.Rescan()
	if err != nil {
		t.Fatal(err)
	}
	w.Requeue(report)
	w.Requeue(nil)

	again, err := w.CheckForChanges()
	if err != nil {
		t.Fatal(err)
	}
	if !again.FullRescan || !again.StructureChanged {
		t.Errorf("requeued addition should trigger a structural rescan, got %+v", again)
	}
	if !reflect.DeepEqual(again.Added, []string{"Documents/Заказ.xml"}) {
		t.Errorf("Added = %v", again.Added)
	}
}
