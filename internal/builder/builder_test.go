package builder

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"bslanalyzer/internal/entity"
	bslerrors "bslanalyzer/internal/errors"
	"bslanalyzer/internal/projectcache"
)

const fixture = "../configparser/testdata/trade"

// fixtureEntities is the number of entities the trade fixture parses into.
const fixtureEntities = 13

type fakePlatform struct {
	calls atomic.Int32
	err   error
}

func (f *fakePlatform) GetOrCreate(_ context.Context, _ string) ([]*entity.Entity, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	catalog := entity.New(entity.CategoryPlatform, entity.KindPlatformType, "СправочникОбъект")
	catalog.Interface.AddMethod(entity.Method{Name: "Записать"})
	catalog.Interface.AddProperty(entity.Property{Name: "Ссылка"})
	document := entity.New(entity.CategoryPlatform, entity.KindPlatformType, "ДокументОбъект")
	document.Interface.AddMethod(entity.Method{Name: "Провести"})
	form := entity.New(entity.CategoryPlatform, entity.KindPlatformType, "ФормаКлиентскогоПриложения")
	form.Interface.AddMethod(entity.Method{Name: "Закрыть"})
	records := entity.New(entity.CategoryPlatform, entity.KindPlatformType, "РегистрСведенийНаборЗаписей")
	return []*entity.Entity{catalog, document, form, records}, nil
}

// copyFixture copies the trade dump into a temp dir and returns its path.
func copyFixture(t *testing.T) string {
	t.Helper()
	dst := filepath.Join(t.TempDir(), "trade")
	err := filepath.WalkDir(fixture, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(fixture, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0644)
	})
	if err != nil {
		t.Fatalf("copy fixture: %v", err)
	}
	return dst
}

func newTestBuilder(t *testing.T, opts Options) (*Builder, *fakePlatform) {
	t.Helper()
	platform := &fakePlatform{}
	if opts.Platform == nil {
		opts.Platform = platform
	}
	b, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b, platform
}

func TestNewRequiresPlatform(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without platform source")
	}
}

func TestBuild(t *testing.T) {
	b, platform := newTestBuilder(t, Options{})
	root := copyFixture(t)

	idx, stats, err := b.Build(context.Background(), BuildRequest{ConfigPath: root, PlatformVersion: "v8.3.24"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !idx.IsReady() {
		t.Error("built index should be ready")
	}
	if platform.calls.Load() != 1 {
		t.Errorf("platform called %d times", platform.calls.Load())
	}
	if stats.ConfigurationName != "Торговля" || stats.Objects != 7 || stats.PlatformVersion != "8.3.24" {
		t.Errorf("stats = %+v", stats)
	}
	if stats.PlatformEntities != 4 || stats.ConfigEntities != fixtureEntities || idx.Len() != 4+fixtureEntities {
		t.Errorf("platform %d, config %d, total %d", stats.PlatformEntities, stats.ConfigEntities, idx.Len())
	}

	methods := idx.GetAllMethods("Справочники.Товары")
	if _, ok := methods["Записать"]; !ok {
		t.Errorf("catalog should inherit Записать, got %v", methods)
	}
	if !idx.IsAssignable("Документы.Заказ", "ДокументОбъект") {
		t.Error("document should be assignable to ДокументОбъект")
	}
	if _, ok := idx.GetAllMethods("Справочники.Товары.Формы.ФормаЭлемента")["Закрыть"]; !ok {
		t.Error("form should inherit from the managed form type")
	}

	var refs []string
	for _, e := range idx.GetReferences("Документы.Заказ") {
		refs = append(refs, e.QualifiedName)
	}
	if len(refs) != 3 {
		t.Errorf("order references = %v, want three objects", refs)
	}
	if by := idx.GetReferencedBy("Справочники.Товары"); len(by) != 2 {
		t.Errorf("Товары referenced by %d entities, want order and price register", len(by))
	}
}

func TestBuild_Errors(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t, Options{})
	root := copyFixture(t)

	_, _, err := b.Build(ctx, BuildRequest{ConfigPath: filepath.Join(root, "absent"), PlatformVersion: "8.3.24"})
	if !bslerrors.HasCode(err, bslerrors.ConfigNotFound) {
		t.Errorf("missing dir: err = %v", err)
	}
	_, _, err = b.Build(ctx, BuildRequest{ConfigPath: root})
	if !bslerrors.HasCode(err, bslerrors.ConfigInvalid) {
		t.Errorf("missing version: err = %v", err)
	}
	_, _, err = b.Build(ctx, BuildRequest{PlatformVersion: "8.3.24"})
	if !bslerrors.HasCode(err, bslerrors.ConfigInvalid) {
		t.Errorf("missing path: err = %v", err)
	}

	platformErr := bslerrors.New(bslerrors.PlatformCacheMissing, "no cache", nil)
	failing, _ := newTestBuilder(t, Options{Platform: &fakePlatform{err: platformErr}})
	idx, _, err := failing.Build(ctx, BuildRequest{ConfigPath: root, PlatformVersion: "8.3.24"})
	if !errors.Is(err, platformErr) || idx != nil {
		t.Errorf("platform failure: idx = %v, err = %v", idx, err)
	}

	if err := os.WriteFile(filepath.Join(root, "Enums", "Статусы.xml"), []byte("<MetaDataObject><Enum>"), 0644); err != nil {
		t.Fatal(err)
	}
	idx, _, err = b.Build(ctx, BuildRequest{ConfigPath: root, PlatformVersion: "8.3.24"})
	if !bslerrors.HasCode(err, bslerrors.ConfigInvalid) || idx != nil {
		t.Errorf("broken object: idx = %v, err = %v", idx, err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, _, err := b.Build(cancelled, BuildRequest{ConfigPath: copyFixture(t), PlatformVersion: "8.3.24"}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled build: err = %v", err)
	}
}

func TestBuild_LegacyMerge(t *testing.T) {
	b, _ := newTestBuilder(t, Options{})
	root := copyFixture(t)
	legacyDir := t.TempDir()
	exports := map[string]string{
		"items.json": `{"full_name": "Справочники.Товары",
			"attributes": [{"name": "Артикул", "type": "xs:decimal"}, {"name": "Вес", "type": "xs:decimal"}],
			"methods": [{"name": "ЗаполнитьПоУмолчанию"}]}`,
		"stores.json": `{"type": "Catalog", "name": "Склады"}`,
		"broken.json": `{`,
	}
	for name, content := range exports {
		if err := os.WriteFile(filepath.Join(legacyDir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	idx, stats, err := b.Build(context.Background(), BuildRequest{
		ConfigPath:        root,
		PlatformVersion:   "8.3.24",
		LegacyMetadataDir: legacyDir,
		LegacyFormsDir:    filepath.Join(legacyDir, "absent"),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if stats.LegacyEntities != 2 || stats.LegacyMerged != 1 || stats.LegacyFailures != 2 {
		t.Errorf("legacy stats = %d entities, %d merged, %d failures", stats.LegacyEntities, stats.LegacyMerged, stats.LegacyFailures)
	}
	if stats.ConfigEntities != fixtureEntities+1 {
		t.Errorf("ConfigEntities = %d", stats.ConfigEntities)
	}

	if all := idx.FindAllByName("Справочники.Товары"); len(all) != 1 {
		t.Fatalf("merged catalog indexed %d times", len(all))
	}
	items := idx.FindEntity("Справочники.Товары")
	if items.Interface.Properties["Артикул"].Type != "Строка" {
		t.Errorf("parsed declaration should win, got %+v", items.Interface.Properties["Артикул"])
	}
	if _, ok := items.Interface.Properties["Вес"]; !ok {
		t.Error("legacy-only property missing")
	}
	if _, ok := items.Interface.Methods["ЗаполнитьПоУмолчанию"]; !ok {
		t.Error("legacy-only method missing")
	}
	if items.Source.Kind != entity.SourceConfigXML {
		t.Errorf("merged entity keeps its parsed source, got %+v", items.Source)
	}
	if idx.FindEntity("Справочники.Склады") == nil {
		t.Error("legacy-only object missing")
	}
	if _, ok := idx.GetAllMethods("Справочники.Склады")["Записать"]; !ok {
		t.Error("legacy object should link to its platform parent")
	}
}

func TestMergeLegacy_DoesNotMutateParsed(t *testing.T) {
	parsed := entity.New(entity.CategoryConfiguration, entity.KindCatalog, "Справочники.Валюты")
	parsed.Interface.AddProperty(entity.Property{Name: "Код", Type: "Строка"})
	extra := entity.New(entity.CategoryConfiguration, entity.KindCatalog, "Справочники.Валюты")
	extra.Interface.AddProperty(entity.Property{Name: "Код", Type: "Число"})
	extra.Interface.AddProperty(entity.Property{Name: "Курс", Type: "Число"})
	extra.Documentation = "Валюты"

	out, merged := mergeLegacy([]*entity.Entity{parsed}, []*entity.Entity{extra})
	if merged != 1 || len(out) != 1 {
		t.Fatalf("merged = %d, len = %d", merged, len(out))
	}
	if out[0] == parsed {
		t.Error("merge should work on a copy")
	}
	if len(parsed.Interface.Properties) != 1 {
		t.Error("parsed entity was mutated")
	}
	if out[0].Interface.Properties["Код"].Type != "Строка" || out[0].Documentation != "Валюты" {
		t.Errorf("merged = %+v", out[0])
	}
}

func TestLoadOrBuild(t *testing.T) {
	platform := &fakePlatform{}
	cache, err := projectcache.New(projectcache.Options{IndicesDir: filepath.Join(t.TempDir(), "project_indices"), Platform: platform})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := newTestBuilder(t, Options{Platform: platform, Cache: cache})
	root := copyFixture(t)
	req := BuildRequest{ConfigPath: root, PlatformVersion: "8.3.24"}

	first, fromCache, err := b.LoadOrBuild(context.Background(), req)
	if err != nil || fromCache {
		t.Fatalf("first LoadOrBuild: fromCache = %v, err = %v", fromCache, err)
	}
	second, fromCache, err := b.LoadOrBuild(context.Background(), req)
	if err != nil || !fromCache {
		t.Fatalf("second LoadOrBuild: fromCache = %v, err = %v", fromCache, err)
	}
	if first.Len() != second.Len() {
		t.Errorf("cached index has %d entities, built had %d", second.Len(), first.Len())
	}
	if _, ok := second.GetAllMethods("Справочники.Товары")["Записать"]; !ok {
		t.Error("cached index should be linked")
	}

	noCache, _ := newTestBuilder(t, Options{})
	if _, fromCache, err := noCache.LoadOrBuild(context.Background(), req); err != nil || fromCache {
		t.Errorf("without cache: fromCache = %v, err = %v", fromCache, err)
	}
}
