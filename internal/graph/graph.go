// Package graph models workspace packages as an immutable dependency graph and
// derives affected sets, topological orders and execution batches from it.
package graph

// PackageDescriptor describes one workspace package as read from its manifest.
type PackageDescriptor struct {
	ID           string   // Workspace-relative slash path, unique.
	Name         string   // Logical package name used in dependency references.
	Dependencies []string // Internal dependency names; external ones are filtered at read time.
	TestFiles    []string // Discovered test files, informational only.
	TestCommand  string   // Shell command that runs the package tests (empty = no test script).
	Dir          string   // Directory the test command runs in.
}

// Graph is a read-only dependency graph keyed by package ID.
//
// It is safe for concurrent read access.
type Graph struct {
	nodes      map[string]PackageDescriptor
	ids        []string // insertion order
	nameToID   map[string]string
	deps       map[string][]string // id -> dependency ids, declared order
	dependents map[string][]string // id -> dependent ids, insertion order
}

// Build converts descriptors into a Graph.
//
// Dependency names that do not resolve to a workspace package are dropped:
// they denote external packages. When two packages share a Name, the first one
// owns it. Two descriptors with the same ID fail with *DuplicatePackageError.
func Build(descriptors []PackageDescriptor) (*Graph, error) {
	g := &Graph{
		nodes:      make(map[string]PackageDescriptor, len(descriptors)),
		ids:        make([]string, 0, len(descriptors)),
		nameToID:   make(map[string]string, len(descriptors)),
		deps:       make(map[string][]string, len(descriptors)),
		dependents: make(map[string][]string, len(descriptors)),
	}

	for _, d := range descriptors {
		if _, exists := g.nodes[d.ID]; exists {
			return nil, &DuplicatePackageError{ID: d.ID}
		}
		g.nodes[d.ID] = d
		g.ids = append(g.ids, d.ID)
		if _, taken := g.nameToID[d.Name]; !taken && d.Name != "" {
			g.nameToID[d.Name] = d.ID
		}
	}

	for _, id := range g.ids {
		seen := make(map[string]struct{})
		for _, name := range g.nodes[id].Dependencies {
			depID, ok := g.nameToID[name]
			if !ok {
				continue
			}
			if _, dup := seen[depID]; dup {
				continue
			}
			seen[depID] = struct{}{}
			g.deps[id] = append(g.deps[id], depID)
			g.dependents[depID] = append(g.dependents[depID], id)
		}
	}

	return g, nil
}

// Len returns the number of packages in the graph.
func (g *Graph) Len() int { return len(g.ids) }

// IDs returns package IDs in insertion order.
func (g *Graph) IDs() []string {
	out := make([]string, len(g.ids))
	copy(out, g.ids)
	return out
}

// Package returns the descriptor for id.
func (g *Graph) Package(id string) (PackageDescriptor, bool) {
	d, ok := g.nodes[id]
	return d, ok
}

// Lookup resolves a logical package name to its ID.
func (g *Graph) Lookup(name string) (string, bool) {
	id, ok := g.nameToID[name]
	return id, ok
}

// Dependencies returns the resolved dependency IDs of id in declared order.
func (g *Graph) Dependencies(id string) []string {
	return append([]string(nil), g.deps[id]...)
}

// Dependents returns the IDs of packages that directly depend on id.
func (g *Graph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// All returns a Set containing every package ID.
func (g *Graph) All() Set {
	s := make(Set, len(g.ids))
	for _, id := range g.ids {
		s.Add(id)
	}
	return s
}
