// Package typeindex holds the unified in-memory type index: entities from
// the platform and the project configuration, multi-key lookups over them,
// and the inheritance and reference graphs used for member resolution and
// assignability checks.
package typeindex

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"bslanalyzer/internal/entity"
	bslerrors "bslanalyzer/internal/errors"
	"bslanalyzer/internal/graph"
)

var (
	// ErrNilEntity is returned when AddEntity is called with nil.
	ErrNilEntity = errors.New("typeindex: nil entity")
	// ErrEmptyID is returned when an entity has no identifier.
	ErrEmptyID = errors.New("typeindex: entity has empty id")
)

// Index is the unified type index.
//
// The index has two implicit states: building (entities being added,
// inheritance edges not yet resolved) and ready (after
// BuildInheritanceRelationships). Inheritance-dependent queries before the
// transition see only the edges of the previous link pass.
//
// Index is safe for concurrent use. Entities stored in the index must not be
// mutated after AddEntity.
type Index struct {
	mu sync.RWMutex

	// Primary store: ID -> entity
	entities map[string]*entity.Entity

	// Derived indices: key -> IDs in insertion order
	byName      map[string][]string
	byQualified map[string][]string
	byCategory  map[entity.Category][]string
	byKind      map[entity.Kind][]string
	byMethod    map[string][]string
	byProperty  map[string][]string

	inheritance *graph.Graph // parent -> child
	references  *graph.Graph // referrer -> referenced

	ready bool
}

// New creates an empty index in the building state.
func New() *Index {
	return &Index{
		entities:    make(map[string]*entity.Entity),
		byName:      make(map[string][]string),
		byQualified: make(map[string][]string),
		byCategory:  make(map[entity.Category][]string),
		byKind:      make(map[entity.Kind][]string),
		byMethod:    make(map[string][]string),
		byProperty:  make(map[string][]string),
		inheritance: graph.NewGraph(),
		references:  graph.NewGraph(),
	}
}

// AddEntity inserts e into the primary store and every derived index.
// Re-adding an ID replaces the previous entity everywhere.
func (idx *Index) AddEntity(e *entity.Entity) error {
	if e == nil {
		return ErrNilEntity
	}
	if e.ID == "" {
		return ErrEmptyID
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(e.ID)
	idx.insertLocked(e)
	idx.ready = false
	return nil
}

// AddEntities inserts every entity, stopping at the first error.
func (idx *Index) AddEntities(entities []*entity.Entity) error {
	for _, e := range entities {
		if err := idx.AddEntity(e); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceEntity is AddEntity under the name the incremental path uses.
func (idx *Index) ReplaceEntity(e *entity.Entity) error {
	return idx.AddEntity(e)
}

// RemoveEntity deletes an entity and its graph nodes. It reports whether
// the ID was present.
func (idx *Index) RemoveEntity(id string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if !idx.removeLocked(id) {
		return false
	}
	idx.ready = false
	return true
}

func (idx *Index) insertLocked(e *entity.Entity) {
	idx.entities[e.ID] = e
	idx.byName[e.Name] = append(idx.byName[e.Name], e.ID)
	idx.byQualified[e.QualifiedName] = append(idx.byQualified[e.QualifiedName], e.ID)
	idx.byCategory[e.Category] = append(idx.byCategory[e.Category], e.ID)
	idx.byKind[e.Kind] = append(idx.byKind[e.Kind], e.ID)
	for name := range e.Interface.Methods {
		idx.byMethod[name] = append(idx.byMethod[name], e.ID)
	}
	for name := range e.Interface.Properties {
		idx.byProperty[name] = append(idx.byProperty[name], e.ID)
	}
	idx.inheritance.AddNode(e.ID)
	idx.references.AddNode(e.ID)
}

func (idx *Index) removeLocked(id string) bool {
	old, ok := idx.entities[id]
	if !ok {
		return false
	}
	delete(idx.entities, id)
	removeID(idx.byName, old.Name, id)
	removeID(idx.byQualified, old.QualifiedName, id)
	removeID(idx.byCategory, old.Category, id)
	removeID(idx.byKind, old.Kind, id)
	for name := range old.Interface.Methods {
		removeID(idx.byMethod, name, id)
	}
	for name := range old.Interface.Properties {
		removeID(idx.byProperty, name, id)
	}
	idx.inheritance.RemoveNode(id)
	idx.references.RemoveNode(id)
	return true
}

func removeID[K comparable](m map[K][]string, key K, id string) {
	ids := m[key]
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	if len(out) == 0 {
		delete(m, key)
		return
	}
	m[key] = out
}

// BuildInheritanceRelationships resolves every declared parent type and
// implemented interface to an entity and adds a parent -> child edge. It also
// links the reference graph. Names that do not resolve are skipped. Both
// graphs are rebuilt from scratch, so calling it again after an incremental
// patch re-links the whole index. The index is ready afterwards.
func (idx *Index) BuildInheritanceRelationships() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.inheritance.Clear()
	idx.references.Clear()
	for _, id := range idx.sortedIDsLocked() {
		idx.inheritance.AddNode(id)
		idx.references.AddNode(id)
	}

	for _, id := range idx.sortedIDsLocked() {
		e := idx.entities[id]
		for _, parent := range e.Constraints.ParentTypes {
			idx.linkLocked(idx.inheritance, parent, e.ID)
		}
		for _, iface := range e.Constraints.Implements {
			idx.linkLocked(idx.inheritance, iface, e.ID)
		}
		for _, ref := range e.Relationships.References {
			if target := idx.findLocked(ref); target != nil && target.ID != e.ID {
				idx.references.AddEdge(e.ID, target.ID)
			}
		}
		for _, ref := range e.Relationships.ReferencedBy {
			if src := idx.findLocked(ref); src != nil && src.ID != e.ID {
				idx.references.AddEdge(src.ID, e.ID)
			}
		}
	}
	idx.ready = true
}

func (idx *Index) linkLocked(g *graph.Graph, parentName, childID string) {
	parent := idx.findLocked(parentName)
	if parent == nil || parent.ID == childID {
		return
	}
	g.AddEdge(parent.ID, childID)
}

// IsReady reports whether inheritance relationships reflect the current
// entity set.
func (idx *Index) IsReady() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.ready
}

// Len returns the number of entities.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entities)
}

// Entities returns every entity ordered by qualified name, then ID.
func (idx *Index) Entities() []*entity.Entity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]*entity.Entity, 0, len(idx.entities))
	for _, e := range idx.entities {
		out = append(out, e)
	}
	sortEntities(out)
	return out
}

// FindEntity looks name up as a qualified name, falling back to the display
// name. The first match wins. Returns nil when nothing matches.
func (idx *Index) FindEntity(name string) *entity.Entity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.findLocked(name)
}

// Lookup is FindEntity with an ENTITY_NOT_FOUND error for misses.
func (idx *Index) Lookup(name string) (*entity.Entity, error) {
	if e := idx.FindEntity(name); e != nil {
		return e, nil
	}
	return nil, bslerrors.New(bslerrors.EntityNotFound, fmt.Sprintf("entity %q not found", name), nil)
}

func (idx *Index) findLocked(name string) *entity.Entity {
	if ids := idx.byQualified[name]; len(ids) > 0 {
		return idx.entities[ids[0]]
	}
	if ids := idx.byName[name]; len(ids) > 0 {
		return idx.entities[ids[0]]
	}
	return nil
}

// FindEntityByID returns the entity with the given ID, or nil.
func (idx *Index) FindEntityByID(id string) *entity.Entity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.entities[id]
}

// FindAllByName returns every entity whose qualified or display name is name.
func (idx *Index) FindAllByName(name string) []*entity.Entity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[string]bool)
	var out []*entity.Entity
	for _, ids := range [][]string{idx.byQualified[name], idx.byName[name]} {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, idx.entities[id])
			}
		}
	}
	return out
}

// FindTypesWithMethod returns the entities that declare a method named name.
func (idx *Index) FindTypesWithMethod(name string) []*entity.Entity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.resolveLocked(idx.byMethod[name])
}

// FindTypesWithProperty returns the entities that declare a property named name.
func (idx *Index) FindTypesWithProperty(name string) []*entity.Entity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.resolveLocked(idx.byProperty[name])
}

// GetEntitiesByType returns the entities of a category.
func (idx *Index) GetEntitiesByType(category entity.Category) []*entity.Entity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.resolveLocked(idx.byCategory[category])
}

// GetEntitiesByKind returns the entities of a kind.
func (idx *Index) GetEntitiesByKind(kind entity.Kind) []*entity.Entity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.resolveLocked(idx.byKind[kind])
}

func (idx *Index) resolveLocked(ids []string) []*entity.Entity {
	if len(ids) == 0 {
		return nil
	}
	out := make([]*entity.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, idx.entities[id])
	}
	return out
}

func (idx *Index) sortedIDsLocked() []string {
	ids := make([]string, 0, len(idx.entities))
	for id := range idx.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortEntities(es []*entity.Entity) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].QualifiedName != es[j].QualifiedName {
			return es[i].QualifiedName < es[j].QualifiedName
		}
		return es[i].ID < es[j].ID
	})
}
