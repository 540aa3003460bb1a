package graph

// DefaultBatchSize is the chunk size used when none is configured.
const DefaultBatchSize = 4

// Chunk splits order into consecutive windows of at most size IDs.
//
// Chunking a flat topological order does not guarantee that a package and one
// of its dependents land in different windows. Use Waves when dependencies must
// finish before dependents start.
func Chunk(order []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	batches := make([][]string, 0, (len(order)+size-1)/size)
	for start := 0; start < len(order); start += size {
		end := min(start+size, len(order))
		batches = append(batches, append([]string(nil), order[start:end]...))
	}
	return batches
}

// Waves groups order by longest-path depth within the induced subgraph, so
// every member of wave k has all of its in-order dependencies in waves < k.
// Each wave is then split into windows of at most size IDs.
//
// order must be topologically sorted, as returned by Order.
func Waves(g *Graph, order []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}

	inOrder := NewSet(order...)
	depth := make(map[string]int, len(order))
	maxDepth := 0
	for _, id := range order {
		d := 0
		for _, dep := range g.deps[id] {
			if !inOrder.Has(dep) {
				continue
			}
			if cand := depth[dep] + 1; cand > d {
				d = cand
			}
		}
		depth[id] = d
		maxDepth = max(maxDepth, d)
	}

	if len(order) == 0 {
		return [][]string{}
	}
	layers := make([][]string, maxDepth+1)
	for _, id := range order {
		layers[depth[id]] = append(layers[depth[id]], id)
	}

	var batches [][]string
	for _, layer := range layers {
		batches = append(batches, Chunk(layer, size)...)
	}
	return batches
}
