// Package engine defines the capabilities decompgraph needs from an external
// disassembly/decompilation engine. Implementations live in internal/ghidra
// (Ghidra headless export) and internal/native (built-in ELF decoder).
package engine

import "errors"

// ErrSessionClosed is returned by engines when a decompiler is used after Close.
var ErrSessionClosed = errors.New("engine: decompiler session closed")

// Function is an opaque handle to a function defined in the analyzed binary.
// Only its name leaves the engine; the handle itself is never serialized.
type Function interface {
	Name() string
}

// Engine enumerates functions and answers per-function queries.
type Engine interface {
	// Functions returns every defined function in engine order.
	// It is called once per run.
	Functions() ([]Function, error)

	// IsThunk reports whether fn is a trampoline with no body of its own.
	IsThunk(fn Function) bool

	// CalledFunctions returns the direct callees of fn. Every returned
	// function is also part of Functions.
	CalledFunctions(fn Function) ([]Function, error)

	// OpenDecompiler starts a decompilation session.
	OpenDecompiler() (Decompiler, error)
}

// Decompiler is an open decompilation session. Close must be called exactly
// once, whatever happened to individual Decompile calls.
type Decompiler interface {
	// Decompile returns source text for fn, or ok=false when the engine
	// could not produce any.
	Decompile(fn Function) (text string, ok bool)

	Close() error
}
