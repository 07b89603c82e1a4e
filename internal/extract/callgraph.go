// Package extract builds the call graph and decompilation map for one binary
// and keeps them consistent when the engine fails to decompile some functions.
package extract

import (
	"fmt"

	"decompgraph/internal/engine"
)

// CallGraph maps a function name to the names of the functions it calls.
// Keys are non-thunk functions; callee lists never contain the key itself
// or a thunk.
type CallGraph map[string][]string

// Decompilations maps a function name to its decompiled source text.
type Decompilations map[string]string

// Edges returns the total number of caller→callee edges.
func (g CallGraph) Edges() int {
	n := 0
	for _, callees := range g {
		n += len(callees)
	}
	return n
}

// BuildCallGraph queries eng for the direct callees of every non-thunk
// function in funcs.
//
// Functions sharing a name collapse into one node and the last one
// enumerated wins. The number of such collisions is returned so callers can
// report it; it does not change the graph.
func BuildCallGraph(eng engine.Engine, funcs []engine.Function, rep *Reporter) (CallGraph, int, error) {
	g := make(CallGraph, len(funcs))
	seen := make(map[string]bool, len(funcs))
	collisions := 0

	for i, fn := range funcs {
		rep.progress("call graph", i, len(funcs))

		name := fn.Name()
		// Every enumerated entry is a distinct function, so a repeated name is
		// a collision. Handles are not compared; they need not be comparable.
		if seen[name] {
			collisions++
			rep.verbosef("name collision: %s\n", name)
		}
		seen[name] = true

		if eng.IsThunk(fn) {
			continue
		}

		called, err := eng.CalledFunctions(fn)
		if err != nil {
			return nil, 0, fmt.Errorf("extract: called functions of %s: %w", name, err)
		}

		callees := make([]string, 0, len(called))
		seen := make(map[string]bool, len(called))
		for _, c := range called {
			if eng.IsThunk(c) {
				continue
			}
			cn := c.Name()
			if cn == name || seen[cn] {
				continue
			}
			seen[cn] = true
			callees = append(callees, cn)
		}
		g[name] = callees
	}
	rep.progress("call graph", len(funcs), len(funcs))

	return g, collisions, nil
}
