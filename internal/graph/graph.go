// Package graph provides the directed graphs used for type navigation.
package graph

// Edge represents a directed edge between two node IDs.
type Edge struct {
	From string
	To   string
}

// Graph is a sparse directed graph keyed by node ID. Adjacency lists keep
// insertion order so traversals are deterministic. Graph is not safe for
// concurrent mutation; callers guard it with their own lock.
type Graph struct {
	out   map[string][]string
	in    map[string][]string
	edges map[Edge]struct{}
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		out:   make(map[string][]string),
		in:    make(map[string][]string),
		edges: make(map[Edge]struct{}),
	}
}

// AddNode adds a node if it doesn't exist.
func (g *Graph) AddNode(id string) {
	if _, ok := g.out[id]; !ok {
		g.out[id] = nil
	}
	if _, ok := g.in[id]; !ok {
		g.in[id] = nil
	}
}

// AddEdge adds a directed edge from src to dst. Duplicate edges are ignored.
// It reports whether the edge was new.
func (g *Graph) AddEdge(src, dst string) bool {
	e := Edge{From: src, To: dst}
	if _, ok := g.edges[e]; ok {
		return false
	}
	g.AddNode(src)
	g.AddNode(dst)
	g.edges[e] = struct{}{}
	g.out[src] = append(g.out[src], dst)
	g.in[dst] = append(g.in[dst], src)
	return true
}

// RemoveNode deletes a node and every edge touching it.
func (g *Graph) RemoveNode(id string) {
	if !g.HasNode(id) {
		return
	}
	for _, dst := range g.out[id] {
		delete(g.edges, Edge{From: id, To: dst})
		g.in[dst] = without(g.in[dst], id)
	}
	for _, src := range g.in[id] {
		delete(g.edges, Edge{From: src, To: id})
		g.out[src] = without(g.out[src], id)
	}
	delete(g.out, id)
	delete(g.in, id)
}

// Clear removes all nodes and edges.
func (g *Graph) Clear() {
	g.out = make(map[string][]string)
	g.in = make(map[string][]string)
	g.edges = make(map[Edge]struct{})
}

// HasNode reports whether id is a node of the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.out[id]
	return ok
}

// HasEdge reports whether the edge src -> dst exists.
func (g *Graph) HasEdge(src, dst string) bool {
	_, ok := g.edges[Edge{From: src, To: dst}]
	return ok
}

// Successors returns the targets of outgoing edges of id.
func (g *Graph) Successors(id string) []string {
	return copySlice(g.out[id])
}

// Predecessors returns the sources of incoming edges of id.
func (g *Graph) Predecessors(id string) []string {
	return copySlice(g.in[id])
}

// HasPath reports whether dst is reachable from src following edge
// direction. A node always reaches itself.
func (g *Graph) HasPath(src, dst string) bool {
	if !g.HasNode(src) || !g.HasNode(dst) {
		return false
	}
	if src == dst {
		return true
	}
	visited := map[string]bool{src: true}
	queue := []string{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.out[cur] {
			if next == dst {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// Ancestors walks incoming edges breadth-first from id and returns every
// node reached, nearest first. id itself is not included.
func (g *Graph) Ancestors(id string) []string {
	return g.walk(id, g.in)
}

// Descendants walks outgoing edges breadth-first from id.
func (g *Graph) Descendants(id string) []string {
	return g.walk(id, g.out)
}

func (g *Graph) walk(id string, adj map[string][]string) []string {
	if !g.HasNode(id) {
		return nil
	}
	visited := map[string]bool{id: true}
	queue := []string{id}
	var result []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if visited[next] {
				continue
			}
			visited[next] = true
			result = append(result, next)
			queue = append(queue, next)
		}
	}
	return result
}

// NumNodes returns the number of nodes in the graph.
func (g *Graph) NumNodes() int {
	return len(g.out)
}

// NumEdges returns the total number of edges.
func (g *Graph) NumEdges() int {
	return len(g.edges)
}

func without(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func copySlice(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
