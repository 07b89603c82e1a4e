package extract

import (
	"errors"
	"fmt"

	"decompgraph/internal/engine"
)

// ErrInconsistent is returned by Result.Check when the call graph references
// a function without a decompilation.
var ErrInconsistent = errors.New("extract: call graph references undecompiled function")

// Options controls a Run.
type Options struct {
	Reporter *Reporter
}

// Result holds the reconciled artifacts of one run.
type Result struct {
	CallGraph      CallGraph
	Decompilations Decompilations
	Missing        []string // decompile failures, enumeration order

	Functions  int
	Collisions int
}

// Run enumerates eng's functions once, builds the call graph, decompiles
// every function and prunes the graph of functions that failed to decompile.
func Run(eng engine.Engine, opts Options) (*Result, error) {
	rep := opts.Reporter

	funcs, err := eng.Functions()
	if err != nil {
		return nil, fmt.Errorf("extract: enumerate functions: %w", err)
	}
	rep.printf("enumerated %d functions\n", len(funcs))

	g, collisions, err := BuildCallGraph(eng, funcs, rep)
	if err != nil {
		return nil, err
	}
	if collisions > 0 {
		rep.printf("warning: %d functions share a name with an earlier function; later entries replace earlier ones\n", collisions)
	}

	decomps, missing, err := Decompile(eng, funcs, rep)
	if err != nil {
		return nil, err
	}

	Reconcile(g, missing)

	rep.printf("missing %d functions:\n", len(missing))
	for _, name := range missing {
		rep.printf("  %s\n", name)
	}

	return &Result{
		CallGraph:      g,
		Decompilations: decomps,
		Missing:        missing,
		Functions:      len(funcs),
		Collisions:     collisions,
	}, nil
}

// Check verifies that every call graph key and callee has a decompilation
// and that none of them failed to decompile.
func (r *Result) Check() error {
	missing := make(map[string]bool, len(r.Missing))
	for _, name := range r.Missing {
		missing[name] = true
	}
	known := func(name string) bool {
		_, ok := r.Decompilations[name]
		return ok && !missing[name]
	}
	for caller, callees := range r.CallGraph {
		if !known(caller) {
			return fmt.Errorf("%w: key %s", ErrInconsistent, caller)
		}
		for _, c := range callees {
			if !known(c) {
				return fmt.Errorf("%w: %s calls %s", ErrInconsistent, caller, c)
			}
		}
	}
	return nil
}
