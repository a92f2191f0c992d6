// Package runner implements the shared ordered-step-with-dependencies pattern
// used by account setup, compliance approval, and progress tracking.
//
// Dependencies are matched by human-readable step name, not by id: names must
// therefore be unique within one graph. The graph is validated up front
// (duplicates, unknown references, self references, cycles) so the engines'
// eligibility scans can assume a well-formed dependency structure.
package runner

import (
	"github.com/meridianfs/onboard/pkg/schema"
)

// Node is the minimal view of a dependency-gated step. Engine step types
// (setup steps, approval steps, progress steps) satisfy this interface.
type Node interface {
	StepName() string
	StepDependencies() []string
}

// Graph is a validated name-keyed dependency graph over a fixed node list.
// The original slice order is preserved for eligibility scans, so callers
// control scan priority by pre-sorting their steps.
type Graph struct {
	nodes  []Node
	index  map[string]Node
	deps   map[string][]string
	sorted []string
}

// New validates the node list and builds a Graph.
// Validation rejects empty names, duplicate names, self dependencies,
// references to unknown steps, and dependency cycles.
func New(nodes []Node) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "dependency graph has no steps")
	}

	g := &Graph{
		nodes: nodes,
		index: make(map[string]Node, len(nodes)),
		deps:  make(map[string][]string, len(nodes)),
	}

	// First pass: register names and check duplicates.
	for _, n := range nodes {
		name := n.StepName()
		if name == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "step has empty name")
		}
		if _, exists := g.index[name]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate step name: %s", name)
		}
		g.index[name] = n
	}

	// Second pass: validate dependency references.
	reverse := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		name := n.StepName()
		seen := make(map[string]bool, len(n.StepDependencies()))
		deps := make([]string, 0, len(n.StepDependencies()))
		for _, dep := range n.StepDependencies() {
			if _, exists := g.index[dep]; !exists {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"step %q depends on non-existent step %q", name, dep)
			}
			if dep == name {
				return nil, schema.NewErrorf(schema.ErrCodeCycleDetected, "step %q depends on itself", name)
			}
			if seen[dep] {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"step %q has duplicate dependency %q", name, dep)
			}
			seen[dep] = true
			deps = append(deps, dep)
			reverse[dep] = append(reverse[dep], name)
		}
		g.deps[name] = deps
	}

	// Kahn's algorithm: topological sort + cycle detection. Ties are broken
	// by original slice position so the order is deterministic.
	position := make(map[string]int, len(nodes))
	for i, n := range nodes {
		position[n.StepName()] = i
	}

	inDegree := make(map[string]int, len(nodes))
	for name, deps := range g.deps {
		inDegree[name] = len(deps)
	}

	var queue []string
	for _, n := range nodes {
		if inDegree[n.StepName()] == 0 {
			queue = append(queue, n.StepName())
		}
	}

	sorted := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		dependents := append([]string(nil), reverse[node]...)
		sortByPosition(dependents, position)

		for _, dep := range dependents {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(sorted) != len(nodes) {
		return nil, schema.NewError(schema.ErrCodeCycleDetected, "dependency graph contains a cycle")
	}
	g.sorted = sorted

	return g, nil
}

// Sorted returns the step names in topological order.
func (g *Graph) Sorted() []string {
	out := make([]string, len(g.sorted))
	copy(out, g.sorted)
	return out
}

// Dependencies returns the validated dependency list for a step name.
func (g *Graph) Dependencies(name string) []string {
	return g.deps[name]
}

// Satisfied reports whether every named dependency of the step is in the
// completed set.
func (g *Graph) Satisfied(name string, completed map[string]bool) bool {
	for _, dep := range g.deps[name] {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// Ready returns, in original slice order, every node accepted by the
// candidate predicate whose dependencies are all completed. Multiple nodes
// may become eligible simultaneously and all are returned.
func (g *Graph) Ready(completed map[string]bool, candidate func(Node) bool) []Node {
	var out []Node
	for _, n := range g.nodes {
		if !candidate(n) {
			continue
		}
		if g.Satisfied(n.StepName(), completed) {
			out = append(out, n)
		}
	}
	return out
}

// Next returns the first node in slice order accepted by the candidate
// predicate whose dependencies are all completed, or false if none is
// eligible. This is the work-finding scan of the step runners.
func (g *Graph) Next(completed map[string]bool, candidate func(Node) bool) (Node, bool) {
	for _, n := range g.nodes {
		if !candidate(n) {
			continue
		}
		if g.Satisfied(n.StepName(), completed) {
			return n, true
		}
	}
	return nil, false
}

// sortByPosition sorts names in-place by their original slice position using
// insertion sort. Slices here are small.
func sortByPosition(names []string, position map[string]int) {
	for i := 1; i < len(names); i++ {
		key := names[i]
		j := i - 1
		for j >= 0 && position[names[j]] > position[key] {
			names[j+1] = names[j]
			j--
		}
		names[j+1] = key
	}
}
