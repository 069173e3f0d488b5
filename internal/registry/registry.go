// Package registry implements the explicit command registry: an immutable,
// validated mapping from task name to task definition plus the declared
// dependency structure between entries.
//
// It is intentionally split into:
//   - Immutable registry definition (Registry): tasks + dependency edges
//   - Mutable execution state (ExecutionState): per-run task statuses
package registry

import (
	"sort"

	"flexrun/internal/task"
)

// Edge represents a dependency relation: To depends on From.
//
// A directed edge From -> To means To can only run after From completed
// successfully (or was skipped by its guard).
type Edge struct {
	From string
	To   string
}

// Node is an immutable entry in the Registry.
type Node struct {
	Name           string
	Task           task.Task
	canonicalIndex int
}

// CanonicalIndex returns the node's deterministic position in the registry's
// canonical ordering.
func (n *Node) CanonicalIndex() int { return n.canonicalIndex }

type edgeIndex struct {
	from int
	to   int
}

// Registry is an immutable, validated command registry.
//
// It is safe for concurrent read access.
type Registry struct {
	nodesByName map[string]*Node
	nodes       []*Node // canonical order (sorted by name)

	edges []edgeIndex // sorted

	outgoing [][]int // by canonical index, sorted ascending
	incoming [][]int // by canonical index, sorted ascending
	indeg    []int   // by canonical index
	depth    []int   // by canonical index (topological depth)
}

// New builds and validates a Registry from task definitions.
//
// Dependency edges are derived from each task's Needs list. Validation runs
// immediately and rejects:
//   - empty or duplicate task names
//   - structurally invalid tasks (no commands, empty command strings)
//   - dependencies referencing unknown tasks
//   - duplicate dependency declarations
//   - self-loops
//   - any cycle (direct or indirect)
func New(tasks []task.Task) (*Registry, error) {
	if len(tasks) == 0 {
		return nil, invalidf("no tasks")
	}

	nodesByName := make(map[string]*Node, len(tasks))
	nodes := make([]*Node, 0, len(tasks))

	for _, t := range tasks {
		t := t
		if err := t.Validate(); err != nil {
			return nil, invalidf("%v", err)
		}
		if _, exists := nodesByName[t.Name]; exists {
			return nil, invalidf("duplicate task name: %q", t.Name)
		}
		node := &Node{Name: t.Name, Task: t}
		nodesByName[t.Name] = node
		nodes = append(nodes, node)
	}

	// Canonicalize nodes by name so nothing depends on declaration order.
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	for i, n := range nodes {
		n.canonicalIndex = i
	}

	nameToIndex := make(map[string]int, len(nodes))
	for _, n := range nodes {
		nameToIndex[n.Name] = n.canonicalIndex
	}

	// Derive edges from Needs: map to indices, reject invalid, sort, reject duplicates.
	mapped := make([]edgeIndex, 0)
	seen := make(map[edgeIndex]struct{})
	for _, n := range nodes {
		for _, need := range n.Task.Needs {
			fromIdx, ok := nameToIndex[need]
			if !ok {
				return nil, invalidf("task %q needs unknown task %q", n.Name, need)
			}
			pair := edgeIndex{from: fromIdx, to: n.canonicalIndex}
			if pair.from == pair.to {
				return nil, invalidf("self-loop: %q -> %q", need, n.Name)
			}
			if _, exists := seen[pair]; exists {
				return nil, invalidf("duplicate dependency: %q -> %q", need, n.Name)
			}
			seen[pair] = struct{}{}
			mapped = append(mapped, pair)
		}
	}

	sort.Slice(mapped, func(i, j int) bool {
		a, b := mapped[i], mapped[j]
		if a.from != b.from {
			return a.from < b.from
		}
		return a.to < b.to
	})

	outgoing := make([][]int, len(nodes))
	incoming := make([][]int, len(nodes))
	indeg := make([]int, len(nodes))
	for _, e := range mapped {
		outgoing[e.from] = append(outgoing[e.from], e.to)
		incoming[e.to] = append(incoming[e.to], e.from)
		indeg[e.to]++
	}
	for i := range outgoing {
		sort.Ints(outgoing[i])
	}
	for i := range incoming {
		sort.Ints(incoming[i])
	}

	r := &Registry{
		nodesByName: nodesByName,
		nodes:       nodes,
		edges:       mapped,
		outgoing:    outgoing,
		incoming:    incoming,
		indeg:       indeg,
	}

	if err := r.validateAcyclic(); err != nil {
		return nil, err
	}

	r.depth = r.computeDepth()
	return r, nil
}

// Node returns a registry entry by name.
func (r *Registry) Node(name string) (*Node, bool) {
	n, ok := r.nodesByName[name]
	return n, ok
}

// Nodes returns the entries in canonical order.
func (r *Registry) Nodes() []*Node {
	out := make([]*Node, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// Edges returns the dependency edges as stable (From, To) name pairs in
// canonical order.
func (r *Registry) Edges() []Edge {
	out := make([]Edge, 0, len(r.edges))
	for _, e := range r.edges {
		out = append(out, Edge{From: r.nodes[e.from].Name, To: r.nodes[e.to].Name})
	}
	return out
}

// Depth returns the deterministic topological depth of the given task name.
//
// Depth is the length of the longest path from any root to the node.
func (r *Registry) Depth(name string) (int, bool) {
	n, ok := r.nodesByName[name]
	if !ok {
		return 0, false
	}
	return r.depth[n.canonicalIndex], true
}

// TopologicalOrder returns a deterministic topological ordering of task names.
//
// Since the registry is validated on construction, this method must not fail.
func (r *Registry) TopologicalOrder() []string {
	order := r.topoOrderIndices()
	names := make([]string, 0, len(order))
	for _, idx := range order {
		names = append(names, r.nodes[idx].Name)
	}
	return names
}

func (r *Registry) computeDepth() []int {
	depth := make([]int, len(r.nodes))
	order := r.topoOrderIndices()
	for _, u := range order {
		maxParent := 0
		for _, p := range r.incoming[u] {
			cand := depth[p] + 1
			if cand > maxParent {
				maxParent = cand
			}
		}
		depth[u] = maxParent
	}
	return depth
}
