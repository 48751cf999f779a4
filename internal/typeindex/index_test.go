package typeindex

import (
	"sort"
	"sync"
	"testing"

	"bslanalyzer/internal/entity"
	bslerrors "bslanalyzer/internal/errors"
)

func newEntity(category entity.Category, kind entity.Kind, name string, parents []string, methods ...string) *entity.Entity {
	e := entity.New(category, kind, name)
	e.Constraints.ParentTypes = parents
	for _, m := range methods {
		e.Interface.AddMethod(entity.Method{Name: m, ReturnType: name})
	}
	return e
}

// buildABC creates A <- B <- C where A and B are platform types and C is a
// configuration type.
func buildABC(t *testing.T) *Index {
	t.Helper()
	idx := New()
	entities := []*entity.Entity{
		newEntity(entity.CategoryPlatform, entity.KindType, "A", nil),
		newEntity(entity.CategoryPlatform, entity.KindType, "B", []string{"A"}, "M1"),
		newEntity(entity.CategoryConfiguration, entity.KindCatalog, "C", []string{"B"}, "M2"),
	}
	if err := idx.AddEntities(entities); err != nil {
		t.Fatalf("AddEntities: %v", err)
	}
	idx.BuildInheritanceRelationships()
	return idx
}

func methodNames(m map[string]entity.Method) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func TestEndToEndScenario(t *testing.T) {
	idx := buildABC(t)

	got := methodNames(idx.GetAllMethods("C"))
	if len(got) != 2 || got[0] != "M1" || got[1] != "M2" {
		t.Errorf("GetAllMethods(C) = %v, want [M1 M2]", got)
	}
	if !idx.IsAssignable("C", "A") {
		t.Error("C should be assignable to A")
	}
	if idx.IsAssignable("A", "C") {
		t.Error("A should not be assignable to C")
	}
}

func TestAddEntity_Errors(t *testing.T) {
	idx := New()
	if err := idx.AddEntity(nil); err != ErrNilEntity {
		t.Errorf("AddEntity(nil) = %v, want ErrNilEntity", err)
	}
	if err := idx.AddEntity(&entity.Entity{QualifiedName: "X"}); err != ErrEmptyID {
		t.Errorf("AddEntity(no id) = %v, want ErrEmptyID", err)
	}
}

func TestAddEntity_Idempotent(t *testing.T) {
	idx := New()
	e := newEntity(entity.CategoryPlatform, entity.KindArray, "Массив", nil, "Добавить")

	for i := 0; i < 3; i++ {
		if err := idx.AddEntity(e); err != nil {
			t.Fatal(err)
		}
	}

	if idx.Len() != 1 {
		t.Errorf("Len = %d, want 1", idx.Len())
	}
	if n := len(idx.FindTypesWithMethod("Добавить")); n != 1 {
		t.Errorf("method index has %d entries, want 1", n)
	}
	if n := len(idx.GetEntitiesByKind(entity.KindArray)); n != 1 {
		t.Errorf("kind index has %d entries, want 1", n)
	}
	if n := len(idx.GetEntitiesByType(entity.CategoryPlatform)); n != 1 {
		t.Errorf("category index has %d entries, want 1", n)
	}
}

func TestAddEntity_ReplaceDropsStaleMembers(t *testing.T) {
	idx := New()
	old := newEntity(entity.CategoryConfiguration, entity.KindCatalog, "Справочники.Товары", nil, "Старый")
	if err := idx.AddEntity(old); err != nil {
		t.Fatal(err)
	}

	updated := newEntity(entity.CategoryConfiguration, entity.KindCatalog, "Справочники.Товары", nil, "Новый")
	if err := idx.ReplaceEntity(updated); err != nil {
		t.Fatal(err)
	}

	if len(idx.FindTypesWithMethod("Старый")) != 0 {
		t.Error("stale method still indexed")
	}
	if len(idx.FindTypesWithMethod("Новый")) != 1 {
		t.Error("new method not indexed")
	}
	if idx.FindEntity("Товары") != updated {
		t.Error("display-name lookup should return the replacement")
	}
}

func TestFindEntity_QualifiedThenDisplay(t *testing.T) {
	idx := New()
	catalog := newEntity(entity.CategoryConfiguration, entity.KindCatalog, "Справочники.Номенклатура", nil)
	if err := idx.AddEntity(catalog); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		want *entity.Entity
	}{
		{"Справочники.Номенклатура", catalog},
		{"Номенклатура", catalog},
		{"Отсутствует", nil},
	}
	for _, tt := range tests {
		if got := idx.FindEntity(tt.name); got != tt.want {
			t.Errorf("FindEntity(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}

	if got := idx.FindEntityByID(catalog.ID); got != catalog {
		t.Error("FindEntityByID failed")
	}
	if n := len(idx.FindAllByName("Номенклатура")); n != 1 {
		t.Errorf("FindAllByName = %d entries", n)
	}
}

func TestLookup_NotFound(t *testing.T) {
	idx := New()
	_, err := idx.Lookup("Нет")
	if !bslerrors.HasCode(err, bslerrors.EntityNotFound) {
		t.Errorf("Lookup error = %v, want ENTITY_NOT_FOUND", err)
	}
}

func TestGetAllMethods_OverridePrecedence(t *testing.T) {
	idx := New()
	parent := entity.New(entity.CategoryPlatform, entity.KindType, "Base")
	parent.Interface.AddMethod(entity.Method{Name: "Записать", ReturnType: "parent"})
	parent.Interface.AddProperty(entity.Property{Name: "Ссылка", Type: "parent"})

	child := entity.New(entity.CategoryConfiguration, entity.KindCatalog, "Child")
	child.Constraints.ParentTypes = []string{"Base"}
	child.Interface.AddMethod(entity.Method{Name: "Записать", ReturnType: "child"})
	child.Interface.AddProperty(entity.Property{Name: "Ссылка", Type: "child"})

	// Insert the child first so insertion order cannot mask the rule.
	if err := idx.AddEntities([]*entity.Entity{child, parent}); err != nil {
		t.Fatal(err)
	}
	idx.BuildInheritanceRelationships()

	if got := idx.GetAllMethods("Child")["Записать"].ReturnType; got != "child" {
		t.Errorf("method override: got %q, want child", got)
	}
	if got := idx.GetAllProperties("Child")["Ссылка"].Type; got != "child" {
		t.Errorf("property override: got %q, want child", got)
	}
	if got := idx.GetAllMethods("Base")["Записать"].ReturnType; got != "parent" {
		t.Errorf("parent view: got %q, want parent", got)
	}
	if idx.GetAllMethods("missing") != nil {
		t.Error("unknown name should give nil")
	}
}

func TestGetAllMethods_MultiLevelOverride(t *testing.T) {
	idx := New()
	root := newEntity(entity.CategoryPlatform, entity.KindType, "Root", nil, "M")
	mid := newEntity(entity.CategoryPlatform, entity.KindType, "Mid", []string{"Root"}, "M")
	leaf := newEntity(entity.CategoryPlatform, entity.KindType, "Leaf", []string{"Mid"})
	if err := idx.AddEntities([]*entity.Entity{leaf, mid, root}); err != nil {
		t.Fatal(err)
	}
	idx.BuildInheritanceRelationships()

	// Mid's declaration is closer than Root's.
	if got := idx.GetAllMethods("Leaf")["M"].ReturnType; got != "Mid" {
		t.Errorf("got %q, want Mid", got)
	}
}

func TestIsAssignable_Properties(t *testing.T) {
	idx := buildABC(t)
	extra := newEntity(entity.CategoryPlatform, entity.KindType, "Unrelated", nil)
	if err := idx.AddEntity(extra); err != nil {
		t.Fatal(err)
	}
	idx.BuildInheritanceRelationships()

	names := []string{"A", "B", "C", "Unrelated"}

	t.Run("identity", func(t *testing.T) {
		for _, n := range append(names, "НеизвестныйТип") {
			if !idx.IsAssignable(n, n) {
				t.Errorf("IsAssignable(%s, %s) = false", n, n)
			}
		}
	})

	t.Run("antisymmetry", func(t *testing.T) {
		for _, a := range names {
			for _, b := range names {
				if a != b && idx.IsAssignable(a, b) && idx.IsAssignable(b, a) {
					t.Errorf("%s and %s assignable both ways", a, b)
				}
			}
		}
	})

	t.Run("transitivity", func(t *testing.T) {
		for _, a := range names {
			for _, b := range names {
				for _, c := range names {
					if idx.IsAssignable(a, b) && idx.IsAssignable(b, c) && !idx.IsAssignable(a, c) {
						t.Errorf("%s->%s and %s->%s but not %s->%s", a, b, b, c, a, c)
					}
				}
			}
		}
	})

	t.Run("unrelated", func(t *testing.T) {
		if idx.IsAssignable("Unrelated", "A") || idx.IsAssignable("A", "Unrelated") {
			t.Error("unrelated types should not be assignable")
		}
	})
}

func TestIsAssignable_DirectParentWithoutGraph(t *testing.T) {
	idx := New()
	// Parent is declared but never loaded: the direct-parent rule still applies.
	e := newEntity(entity.CategoryConfiguration, entity.KindCatalog, "Справочники.Товары", []string{"СправочникОбъект"})
	e.Constraints.Implements = []string{"ИнтерфейсЗаписи"}
	if err := idx.AddEntity(e); err != nil {
		t.Fatal(err)
	}
	idx.BuildInheritanceRelationships()

	if !idx.IsAssignable("Товары", "СправочникОбъект") {
		t.Error("declared parent should be assignable")
	}
	if !idx.IsAssignable("Товары", "ИнтерфейсЗаписи") {
		t.Error("implemented interface should be assignable")
	}
	if s := idx.Stats(); s.InheritanceEdges != 0 {
		t.Errorf("unresolved parents should add no edges, got %d", s.InheritanceEdges)
	}
}

func TestIsAssignable_ViaImplements(t *testing.T) {
	idx := New()
	iface := newEntity(entity.CategoryPlatform, entity.KindType, "Коллекция", nil, "Количество")
	arr := newEntity(entity.CategoryPlatform, entity.KindArray, "Массив", nil)
	arr.Constraints.Implements = []string{"Коллекция"}
	fixed := newEntity(entity.CategoryPlatform, entity.KindFixedArray, "ФиксированныйМассив", []string{"Массив"})
	if err := idx.AddEntities([]*entity.Entity{iface, arr, fixed}); err != nil {
		t.Fatal(err)
	}
	idx.BuildInheritanceRelationships()

	if !idx.IsAssignable("ФиксированныйМассив", "Коллекция") {
		t.Error("implements edge should be transitive")
	}
	if _, ok := idx.GetAllMethods("ФиксированныйМассив")["Количество"]; !ok {
		t.Error("interface method should be inherited")
	}
}

func TestBuildInheritanceRelationships_ReadyState(t *testing.T) {
	idx := New()
	if idx.IsReady() {
		t.Error("new index should be building")
	}
	idx.BuildInheritanceRelationships()
	if !idx.IsReady() {
		t.Error("index should be ready after linking")
	}
	if err := idx.AddEntity(newEntity(entity.CategoryPlatform, entity.KindType, "X", nil)); err != nil {
		t.Fatal(err)
	}
	if idx.IsReady() {
		t.Error("mutation should return the index to building")
	}
}

func TestBuildInheritanceRelationships_Relink(t *testing.T) {
	idx := buildABC(t)

	b := idx.FindEntity("B")
	if !idx.RemoveEntity(b.ID) {
		t.Fatal("RemoveEntity(B) = false")
	}
	if idx.RemoveEntity(b.ID) {
		t.Error("second removal should report false")
	}
	idx.BuildInheritanceRelationships()

	if idx.IsAssignable("C", "A") {
		t.Error("C should no longer reach A once B is gone")
	}
	if _, ok := idx.GetAllMethods("C")["M1"]; ok {
		t.Error("M1 came from B and should be gone")
	}

	// Putting B back and re-linking restores the chain.
	if err := idx.AddEntity(newEntity(entity.CategoryPlatform, entity.KindType, "B", []string{"A"}, "M1")); err != nil {
		t.Fatal(err)
	}
	idx.BuildInheritanceRelationships()
	if !idx.IsAssignable("C", "A") {
		t.Error("re-link should restore C -> A")
	}
	if s := idx.Stats(); s.InheritanceEdges != 2 {
		t.Errorf("InheritanceEdges = %d, want 2", s.InheritanceEdges)
	}
}

func TestAncestorsAndDescendants(t *testing.T) {
	idx := buildABC(t)

	anc := idx.GetAncestors("C")
	if len(anc) != 2 || anc[0].Name != "B" || anc[1].Name != "A" {
		t.Errorf("GetAncestors(C) = %v", anc)
	}
	desc := idx.GetDescendants("A")
	if len(desc) != 2 || desc[0].Name != "B" || desc[1].Name != "C" {
		t.Errorf("GetDescendants(A) = %v", desc)
	}
}

func TestReferenceGraph(t *testing.T) {
	idx := New()
	order := entity.New(entity.CategoryConfiguration, entity.KindDocument, "Документы.Заказ")
	order.Relationships.References = []string{"Справочники.Контрагенты", "Справочники.Нет"}
	partner := entity.New(entity.CategoryConfiguration, entity.KindCatalog, "Справочники.Контрагенты")
	if err := idx.AddEntities([]*entity.Entity{order, partner}); err != nil {
		t.Fatal(err)
	}
	idx.BuildInheritanceRelationships()

	refs := idx.GetReferences("Заказ")
	if len(refs) != 1 || refs[0] != partner {
		t.Errorf("GetReferences = %v", refs)
	}
	back := idx.GetReferencedBy("Контрагенты")
	if len(back) != 1 || back[0] != order {
		t.Errorf("GetReferencedBy = %v", back)
	}
	// Reference edges never affect assignability.
	if idx.IsAssignable("Заказ", "Контрагенты") {
		t.Error("reference must not imply assignability")
	}
}

func TestStats(t *testing.T) {
	idx := buildABC(t)
	s := idx.Stats()

	if s.TotalEntities != 3 {
		t.Errorf("TotalEntities = %d", s.TotalEntities)
	}
	if s.ByCategory[entity.CategoryPlatform] != 2 || s.ByCategory[entity.CategoryConfiguration] != 1 {
		t.Errorf("ByCategory = %v", s.ByCategory)
	}
	if s.MethodNames != 2 {
		t.Errorf("MethodNames = %d", s.MethodNames)
	}
	if s.InheritanceEdges != 2 || !s.Ready {
		t.Errorf("edges=%d ready=%v", s.InheritanceEdges, s.Ready)
	}

	all := idx.Entities()
	if len(all) != 3 || all[0].QualifiedName != "A" || all[2].QualifiedName != "C" {
		t.Errorf("Entities() order wrong: %v", all)
	}
}

func TestConcurrentQueries(t *testing.T) {
	idx := buildABC(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = idx.GetAllMethods("C")
				_ = idx.IsAssignable("C", "A")
				_ = idx.FindTypesWithMethod("M1")
			}
		}()
	}
	wg.Wait()
}
