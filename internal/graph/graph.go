// Package graph implements the package dependency graph (C1): a directed
// graph of packages with labeled edges, cycle detection, and the
// topological orderings the task scheduler relies on.
//
// Grounded on original_source/cangjie-language-server/.../DependencyGraph.h
// (UpdateDependencies/GetDependencies/GetDependents/FindMayDependents/
// TopologicalSort/PartialTopologicalSort/FindCycles) and, for the
// locking discipline, saibing-bingo's internal/cache.GlobalCache.
package graph

import (
	"sort"
	"sync"

	"github.com/saibing/cjlscore/internal/model"
)

// Graph is a directed, edge-labeled dependency graph over packages. All
// mutators and readers take a single RWMutex for the duration of the call;
// per the concurrency model (spec §5) callers must not hold any other
// component's lock while calling into Graph.
type Graph struct {
	mu sync.RWMutex

	// deps[d] is the set of packages d imports.
	deps map[model.PackageID]map[model.PackageID]struct{}
	// rdeps[u] is the set of packages that import u.
	rdeps map[model.PackageID]map[model.PackageID]struct{}
	// edgeLabel[d][u] is the weakest visibility used by d's imports of u.
	edgeLabel map[model.PackageID]map[model.PackageID]model.EdgeLabel
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		deps:      map[model.PackageID]map[model.PackageID]struct{}{},
		rdeps:     map[model.PackageID]map[model.PackageID]struct{}{},
		edgeLabel: map[model.PackageID]map[model.PackageID]model.EdgeLabel{},
	}
}

// UpdateDependencies atomically replaces all outgoing edges of pkg.
// edgeLabels maps each upstream in upstreams to the weakest import
// visibility pkg used to reach it; an upstream missing from edgeLabels
// keeps no label recorded, and MayDependents does not walk through such
// an edge (the source's behavior of skipping unlabeled edges).
func (g *Graph) UpdateDependencies(pkg model.PackageID, upstreams []model.PackageID, edgeLabels map[model.PackageID]model.EdgeLabel) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.deps[pkg]; ok {
		for u := range old {
			delete(g.rdeps[u], pkg)
			delete(g.edgeLabel[u], pkg)
		}
	}

	next := make(map[model.PackageID]struct{}, len(upstreams))
	for _, u := range upstreams {
		next[u] = struct{}{}
		if g.rdeps[u] == nil {
			g.rdeps[u] = map[model.PackageID]struct{}{}
		}
		g.rdeps[u][pkg] = struct{}{}

		if label, ok := edgeLabels[u]; ok {
			if g.edgeLabel[u] == nil {
				g.edgeLabel[u] = map[model.PackageID]model.EdgeLabel{}
			}
			g.edgeLabel[u][pkg] = label
		}
	}
	g.deps[pkg] = next
}

// RenamePackage re-keys every edge touching old to new in place: old's
// outgoing edges, old's incoming edges (every dependent's upstream set),
// and the edge labels recorded in both directions. Used by package-
// identity reconciliation (§4.6.4) so a rename preserves the graph
// edges every downstream package already has to it, rather than leaving
// them pointing at a name nothing compiles to anymore.
func (g *Graph) RenamePackage(old, new model.PackageID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if old == new {
		return
	}

	if outgoing, ok := g.deps[old]; ok {
		delete(g.deps, old)
		g.deps[new] = outgoing
		for u := range outgoing {
			if _, ok := g.rdeps[u][old]; ok {
				delete(g.rdeps[u], old)
				g.rdeps[u][new] = struct{}{}
			}
			if label, ok := g.edgeLabel[u][old]; ok {
				delete(g.edgeLabel[u], old)
				g.edgeLabel[u][new] = label
			}
		}
	}

	if incoming, ok := g.rdeps[old]; ok {
		delete(g.rdeps, old)
		g.rdeps[new] = incoming
		for d := range incoming {
			if _, ok := g.deps[d][old]; ok {
				delete(g.deps[d], old)
				g.deps[d][new] = struct{}{}
			}
		}
	}

	if labels, ok := g.edgeLabel[old]; ok {
		delete(g.edgeLabel, old)
		g.edgeLabel[new] = labels
	}
}

// Dependencies returns the packages pkg directly imports.
func (g *Graph) Dependencies(pkg model.PackageID) []model.PackageID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return setKeys(g.deps[pkg])
}

// Dependents returns the packages that directly import pkg.
func (g *Graph) Dependents(pkg model.PackageID) []model.PackageID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return setKeys(g.rdeps[pkg])
}

// AllDependencies returns the transitive closure of Dependencies.
func (g *Graph) AllDependencies(pkg model.PackageID) []model.PackageID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	visited := map[model.PackageID]struct{}{}
	var walk func(model.PackageID)
	walk = func(p model.PackageID) {
		for u := range g.deps[p] {
			if _, ok := visited[u]; ok {
				continue
			}
			visited[u] = struct{}{}
			walk(u)
		}
	}
	walk(pkg)
	return setKeys(visited)
}

// AllDependents returns the transitive closure of Dependents.
func (g *Graph) AllDependents(pkg model.PackageID) []model.PackageID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	visited := map[model.PackageID]struct{}{}
	var walk func(model.PackageID)
	walk = func(p model.PackageID) {
		for d := range g.rdeps[p] {
			if _, ok := visited[d]; ok {
				continue
			}
			visited[d] = struct{}{}
			walk(d)
		}
	}
	walk(pkg)
	return setKeys(visited)
}

// MayDependents returns the transitive dependents of pkg reachable across
// edges whose label is not PRIVATE. A PRIVATE edge stops propagation past
// the package it targets (it is still included itself), mirroring
// DependencyGraph::FindMayDependents's "insert then stop" behavior.
func (g *Graph) MayDependents(pkg model.PackageID) []model.PackageID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[model.PackageID]struct{}{}
	result := map[model.PackageID]struct{}{}

	var dfs func(up, down model.PackageID)
	dfs = func(up, down model.PackageID) {
		if _, ok := visited[down]; ok {
			return
		}
		visited[down] = struct{}{}

		label, ok := g.edgeLabel[up][down]
		if !ok {
			return
		}
		result[down] = struct{}{}
		if label == model.Private {
			return
		}
		for next := range g.rdeps[down] {
			dfs(down, next)
		}
	}

	for down := range g.rdeps[pkg] {
		dfs(pkg, down)
	}

	return setKeys(result)
}

// TopologicalSort returns a linear order consistent with every edge
// (upstream before downstream), or (nil, ErrCycle) if a cycle exists. With
// reverse=true the order is downstream-before-upstream.
func (g *Graph) TopologicalSort(reverse bool) ([]model.PackageID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[model.PackageID]int{} // 0=unvisited,1=in-progress,2=done
	var order []model.PackageID

	nodes := g.allNodesLocked()

	var visit func(model.PackageID) error
	visit = func(p model.PackageID) error {
		switch visited[p] {
		case 2:
			return nil
		case 1:
			return model.ErrCycle
		}
		visited[p] = 1
		deps := sortedKeys(g.deps[p])
		for _, u := range deps {
			if err := visit(u); err != nil {
				return err
			}
		}
		visited[p] = 2
		order = append(order, p)
		return nil
	}

	for _, n := range nodes {
		if err := visit(n); err != nil {
			return nil, err
		}
	}

	if reverse {
		for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}
	return order, nil
}

// PartialTopologicalSort restricts TopologicalSort's output to the
// selected subset, preserving relative order.
func (g *Graph) PartialTopologicalSort(selected map[model.PackageID]struct{}, reverse bool) ([]model.PackageID, error) {
	full, err := g.TopologicalSort(reverse)
	if err != nil {
		return nil, err
	}
	result := make([]model.PackageID, 0, len(selected))
	for _, p := range full {
		if _, ok := selected[p]; ok {
			result = append(result, p)
		}
	}
	return result, nil
}

// FindCycles walks the graph depth-first and returns one cycle per back
// edge found: the part of the current path from the edge's target to
// the end. A node is entered only once, so a cycle that reaches an
// already-visited node by another route is not reported (with a->b,
// a->c, b->d, c->d, d->a only [a b d] is returned, not [a c d]). It never
// fails; an empty result means the graph is acyclic.
func (g *Graph) FindCycles() [][]model.PackageID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var cycles [][]model.PackageID
	visited := map[model.PackageID]struct{}{}
	inPath := map[model.PackageID]struct{}{}
	var path []model.PackageID

	var dfs func(model.PackageID)
	dfs = func(p model.PackageID) {
		visited[p] = struct{}{}
		inPath[p] = struct{}{}
		path = append(path, p)

		for _, u := range sortedKeys(g.deps[p]) {
			if _, onPath := inPath[u]; onPath {
				// found a cycle: the slice of path from u's first
				// occurrence to the end is one simple cycle.
				for i, n := range path {
					if n == u {
						cycle := append([]model.PackageID(nil), path[i:]...)
						cycles = append(cycles, cycle)
						break
					}
				}
				continue
			}
			if _, seen := visited[u]; !seen {
				dfs(u)
			}
		}

		path = path[:len(path)-1]
		delete(inPath, p)
	}

	for _, n := range g.allNodesLocked() {
		if _, ok := visited[n]; !ok {
			dfs(n)
		}
	}
	return cycles
}

func (g *Graph) allNodesLocked() []model.PackageID {
	set := map[model.PackageID]struct{}{}
	for p := range g.deps {
		set[p] = struct{}{}
	}
	for p := range g.rdeps {
		set[p] = struct{}{}
	}
	return sortedKeys(set)
}

func setKeys(m map[model.PackageID]struct{}) []model.PackageID {
	out := make([]model.PackageID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func sortedKeys(m map[model.PackageID]struct{}) []model.PackageID {
	out := setKeys(m)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
