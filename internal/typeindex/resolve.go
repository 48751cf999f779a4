package typeindex

import "bslanalyzer/internal/entity"

// GetAllMethods returns the methods of the named entity together with every
// inherited method. Ancestors are applied before the entity itself, so a
// child's own declaration overrides an ancestor's method of the same name.
// Returns nil when name does not resolve.
func (idx *Index) GetAllMethods(name string) map[string]entity.Method {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	e := idx.findLocked(name)
	if e == nil {
		return nil
	}
	out := make(map[string]entity.Method)
	idx.visitAncestorsFirst(e.ID, make(map[string]bool), func(cur *entity.Entity) {
		for n, m := range cur.Interface.Methods {
			out[n] = m
		}
	})
	return out
}

// GetAllProperties is the property counterpart of GetAllMethods.
func (idx *Index) GetAllProperties(name string) map[string]entity.Property {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	e := idx.findLocked(name)
	if e == nil {
		return nil
	}
	out := make(map[string]entity.Property)
	idx.visitAncestorsFirst(e.ID, make(map[string]bool), func(cur *entity.Entity) {
		for n, p := range cur.Interface.Properties {
			out[n] = p
		}
	})
	return out
}

// visitAncestorsFirst walks incoming inheritance edges depth-first and calls
// fn on each ancestor before its descendants.
func (idx *Index) visitAncestorsFirst(id string, visited map[string]bool, fn func(*entity.Entity)) {
	if visited[id] {
		return
	}
	visited[id] = true
	for _, parent := range idx.inheritance.Predecessors(id) {
		idx.visitAncestorsFirst(parent, visited, fn)
	}
	if e := idx.entities[id]; e != nil {
		fn(e)
	}
}

// IsAssignable reports whether a value of type from may be stored in a slot
// of type to: identical names, a direct parent or implemented interface, or
// to being a transitive ancestor of from in the inheritance graph.
func (idx *Index) IsAssignable(from, to string) bool {
	if from == to {
		return true
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	fe := idx.findLocked(from)
	if fe == nil {
		return false
	}
	if fe.HasParent(to) {
		return true
	}
	te := idx.findLocked(to)
	if te == nil {
		return false
	}
	if te.ID == fe.ID {
		return true
	}
	if fe.HasParent(te.QualifiedName) || fe.HasParent(te.Name) {
		return true
	}
	return idx.inheritance.HasPath(te.ID, fe.ID)
}

// GetAncestors returns the transitive ancestors of name, nearest first.
func (idx *Index) GetAncestors(name string) []*entity.Entity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	e := idx.findLocked(name)
	if e == nil {
		return nil
	}
	return idx.resolveLocked(idx.inheritance.Ancestors(e.ID))
}

// GetDescendants returns the transitive descendants of name, nearest first.
func (idx *Index) GetDescendants(name string) []*entity.Entity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	e := idx.findLocked(name)
	if e == nil {
		return nil
	}
	return idx.resolveLocked(idx.inheritance.Descendants(e.ID))
}

// GetReferences returns the entities name refers to.
func (idx *Index) GetReferences(name string) []*entity.Entity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	e := idx.findLocked(name)
	if e == nil {
		return nil
	}
	return idx.resolveLocked(idx.references.Successors(e.ID))
}

// GetReferencedBy returns the entities that refer to name.
func (idx *Index) GetReferencedBy(name string) []*entity.Entity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	e := idx.findLocked(name)
	if e == nil {
		return nil
	}
	return idx.resolveLocked(idx.references.Predecessors(e.ID))
}

// Stats summarizes the index contents.
type Stats struct {
	TotalEntities    int                     `json:"totalEntities"`
	ByCategory       map[entity.Category]int `json:"byCategory"`
	ByKind           map[entity.Kind]int     `json:"byKind"`
	MethodNames      int                     `json:"methodNames"`
	PropertyNames    int                     `json:"propertyNames"`
	InheritanceEdges int                     `json:"inheritanceEdges"`
	ReferenceEdges   int                     `json:"referenceEdges"`
	Ready            bool                    `json:"ready"`
}

// Stats returns counts per category and kind plus graph sizes.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	s := Stats{
		TotalEntities:    len(idx.entities),
		ByCategory:       make(map[entity.Category]int, len(idx.byCategory)),
		ByKind:           make(map[entity.Kind]int, len(idx.byKind)),
		MethodNames:      len(idx.byMethod),
		PropertyNames:    len(idx.byProperty),
		InheritanceEdges: idx.inheritance.NumEdges(),
		ReferenceEdges:   idx.references.NumEdges(),
		Ready:            idx.ready,
	}
	for c, ids := range idx.byCategory {
		s.ByCategory[c] = len(ids)
	}
	for k, ids := range idx.byKind {
		s.ByKind[k] = len(ids)
	}
	return s
}
