package registry

// Plan returns the target task plus all of its transitive dependencies in a
// deterministic topological order (dependencies before dependents).
//
// An unknown target returns ErrUnknownTask before any command could execute.
func (r *Registry) Plan(target string) ([]string, error) {
	node, ok := r.nodesByName[target]
	if !ok {
		return nil, unknownTaskError(target)
	}

	// Reverse reachability: everything the target transitively needs.
	wanted := make([]bool, len(r.nodes))
	stack := []int{node.canonicalIndex}
	wanted[node.canonicalIndex] = true
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range r.incoming[u] {
			if !wanted[p] {
				wanted[p] = true
				stack = append(stack, p)
			}
		}
	}

	// Filter the registry-wide topological order down to the wanted set so
	// the plan order is stable regardless of how the target was reached.
	plan := make([]string, 0)
	for _, idx := range r.topoOrderIndices() {
		if wanted[idx] {
			plan = append(plan, r.nodes[idx].Name)
		}
	}
	return plan, nil
}
