// Package callgraph converts an extracted call graph to lattice form for
// rendering, and summarizes it.
package callgraph

import (
	"sort"

	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"

	"decompgraph/internal/extract"
)

// ToLattice constructs a lattice.Graph from g. Nodes and edges are emitted in
// sorted order so the rendered DOT is stable across runs.
func ToLattice(g extract.CallGraph) *lattice.Graph {
	lg := &lattice.Graph{}
	for _, caller := range sortedKeys(g) {
		lg.Nodes = append(lg.Nodes, caller)
		callees := append([]string(nil), g[caller]...)
		sort.Strings(callees)
		for _, callee := range callees {
			lg.Edges = append(lg.Edges, lattice.Edge{
				Caller: caller,
				Callee: callee,
			})
		}
	}
	lg.Dedup()
	return lg
}

// DOT renders g as Graphviz DOT.
func DOT(g extract.CallGraph, title string) string {
	return render.DOT(ToLattice(g), title)
}

func sortedKeys(g extract.CallGraph) []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
