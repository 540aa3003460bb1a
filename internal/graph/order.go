package graph

type visitState int

const (
	unvisited visitState = iota
	inProgress
	done
)

type frame struct {
	id   string
	next int // index of the next dependency to examine
}

// Order returns targets in an order where every dependency precedes its
// dependents. Only edges between targets are considered.
//
// Roots are visited in graph insertion order and dependencies in declared
// order, so the result is stable across runs. A cycle among targets returns
// *CycleError and no order.
func Order(g *Graph, targets Set) ([]string, error) {
	state := make(map[string]visitState, len(targets))
	order := make([]string, 0, len(targets))

	for _, root := range g.ids {
		if !targets.Has(root) || state[root] != unvisited {
			continue
		}

		state[root] = inProgress
		stack := []frame{{id: root}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := g.deps[top.id]
			pushed := false

			for top.next < len(deps) {
				dep := deps[top.next]
				top.next++
				if !targets.Has(dep) {
					continue
				}
				switch state[dep] {
				case unvisited:
					state[dep] = inProgress
					stack = append(stack, frame{id: dep})
					pushed = true
				case inProgress:
					return nil, &CycleError{Path: cyclePath(stack, dep)}
				}
				if pushed {
					break
				}
			}
			if pushed {
				continue
			}

			state[top.id] = done
			order = append(order, top.id)
			stack = stack[:len(stack)-1]
		}
	}

	return order, nil
}

// cyclePath extracts the stack segment from repeated back to the top, closed
// with repeated again.
func cyclePath(stack []frame, repeated string) []string {
	start := 0
	for i, f := range stack {
		if f.id == repeated {
			start = i
			break
		}
	}
	path := make([]string, 0, len(stack)-start+1)
	for _, f := range stack[start:] {
		path = append(path, f.id)
	}
	return append(path, repeated)
}
