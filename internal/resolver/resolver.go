// Package resolver orders node materialization over the depends-on
// subgraph of a frozen topology.
package resolver

import (
	"sort"

	stackplan "github.com/stackwire/stackplan-go"
	"github.com/stackwire/stackplan-go/internal/topology"
)

// Order returns a total materialization order: for every depends-on edge
// (A, B), B precedes A. Ties are broken by declaration order, so runs
// with identical input produce identical output. It fails with
// stackplan.ErrCyclicDependency (via CycleError, naming the cycle's
// members) if no topological order exists.
func Order(t *topology.Topology) ([]string, error) {
	deps := dependsOn(t)

	// Kahn's algorithm. dependents is the reverse adjacency: for edge
	// (A, B), where A depends on B, finishing B unblocks A.
	dependents := make(map[string][]string)
	inDegree := make(map[string]int)
	for _, n := range t.Nodes() {
		inDegree[n.ID] = 0
	}
	for from, tos := range deps {
		for to := range tos {
			dependents[to] = append(dependents[to], from)
			inDegree[from]++
		}
	}

	var ready []string
	for _, n := range t.Nodes() {
		if inDegree[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}
	sortByDeclaration(t, ready)

	var order []string
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, dep := range dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
				sortByDeclaration(t, ready)
			}
		}
	}

	if len(order) != t.Len() {
		return nil, findCycle(t, deps)
	}
	return order, nil
}

// dependsOn collapses the depends-on edges into a deduplicated
// adjacency set: deps[A] holds every B that A depends on.
func dependsOn(t *topology.Topology) map[string]map[string]bool {
	deps := make(map[string]map[string]bool)
	for _, e := range t.Edges(topology.EdgeDependsOn) {
		if deps[e.From] == nil {
			deps[e.From] = make(map[string]bool)
		}
		deps[e.From][e.To] = true
	}
	return deps
}

func sortByDeclaration(t *topology.Topology, ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		return t.DeclarationIndex(ids[i]) < t.DeclarationIndex(ids[j])
	})
}

// findCycle walks the depends-on subgraph depth-first and reports the
// first cycle encountered, members in traversal order with the entry
// node repeated at the end.
func findCycle(t *topology.Topology, deps map[string]map[string]bool) error {
	visited := make(map[string]bool)
	onPath := make(map[string]bool)

	var path []string
	var cycle []string
	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = true
		onPath[id] = true
		path = append(path, id)

		for _, dep := range sortedKeys(t, deps[id]) {
			if onPath[dep] {
				// Slice the current path from dep onward and close the
				// loop by repeating dep.
				for i, p := range path {
					if p == dep {
						cycle = append(append(cycle, path[i:]...), dep)
						return true
					}
				}
			}
			if !visited[dep] && visit(dep) {
				return true
			}
		}

		path = path[:len(path)-1]
		onPath[id] = false
		return false
	}

	for _, n := range t.Nodes() {
		if !visited[n.ID] && visit(n.ID) {
			break
		}
	}

	return &stackplan.CycleError{Nodes: cycle}
}

func sortedKeys(t *topology.Topology, set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sortByDeclaration(t, keys)
	return keys
}
