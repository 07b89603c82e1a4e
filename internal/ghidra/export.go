// Package ghidra drives Ghidra's headless analyzer and serves its export as
// a decompiler engine.
//
// Ghidra runs once per binary: the embedded post-script walks every function
// and writes a JSONL export (a header line, then one record per function
// with its thunk flag, direct callees by entry address and decompiled C).
// Export replays that file through the engine interface.
package ghidra

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"decompgraph/internal/engine"
)

// ExportVersion is the export format written by the embedded script.
const ExportVersion = 1

var (
	ErrNoHeader       = errors.New("ghidra: export has no header")
	ErrVersion        = errors.New("ghidra: unsupported export version")
	ErrNotDecompiled  = errors.New("ghidra: export has no decompile pass")
	ErrDuplicateEntry = errors.New("ghidra: duplicate function entry")
)

// Header is the first line of an export.
type Header struct {
	Version    int    `json:"version"`
	Program    string `json:"program"`
	Decompiled bool   `json:"decompiled"`
	Functions  int    `json:"functions"`
}

// Record is one function line of an export.
type Record struct {
	Name  string   `json:"name"`
	Entry string   `json:"entry"`
	Thunk bool     `json:"thunk"`
	Calls []string `json:"calls"`
	C     *string  `json:"c,omitempty"`
	Error string   `json:"error,omitempty"`
}

// Func is a function handle from an export. Handles are distinct per entry
// address, so two functions sharing a name stay distinguishable.
type Func struct {
	rec   Record
	calls []engine.Function
}

// Name returns the Ghidra function name.
func (f *Func) Name() string { return f.rec.Name }

// Entry returns the entry address as printed by Ghidra.
func (f *Func) Entry() string { return f.rec.Entry }

// Error returns the decompiler's message for a function it could not
// decompile.
func (f *Func) Error() string { return f.rec.Error }

// Export implements engine.Engine over a loaded export.
type Export struct {
	Header Header
	funcs  []*Func
}

// LoadExport reads an export file.
func LoadExport(path string) (*Export, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ghidra: open export: %w", err)
	}
	defer f.Close()
	return ReadExport(f)
}

// ReadExport parses an export stream and resolves call edges. Callees whose
// entry is not a function of the export are dropped.
func ReadExport(r io.Reader) (*Export, error) {
	dec := json.NewDecoder(r)

	var hdr Header
	if !dec.More() {
		return nil, ErrNoHeader
	}
	if err := dec.Decode(&hdr); err != nil {
		return nil, fmt.Errorf("ghidra: export header: %w", err)
	}
	if hdr.Version == 0 {
		return nil, ErrNoHeader
	}
	if hdr.Version != ExportVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, hdr.Version)
	}

	ex := &Export{Header: hdr, funcs: make([]*Func, 0, hdr.Functions)}
	byEntry := make(map[string]*Func, hdr.Functions)
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("ghidra: export line %d: %w", len(ex.funcs)+2, err)
		}
		if _, dup := byEntry[rec.Entry]; dup {
			return nil, fmt.Errorf("%w: %s (%s)", ErrDuplicateEntry, rec.Entry, rec.Name)
		}
		fn := &Func{rec: rec}
		byEntry[rec.Entry] = fn
		ex.funcs = append(ex.funcs, fn)
	}

	for _, fn := range ex.funcs {
		for _, entry := range fn.rec.Calls {
			if callee, ok := byEntry[entry]; ok {
				fn.calls = append(fn.calls, callee)
			}
		}
	}
	return ex, nil
}

// Functions returns the functions in the order Ghidra enumerated them.
func (e *Export) Functions() ([]engine.Function, error) {
	out := make([]engine.Function, len(e.funcs))
	for i, f := range e.funcs {
		out[i] = f
	}
	return out, nil
}

// Failures returns the functions the decompiler could not handle, in
// enumeration order.
func (e *Export) Failures() []*Func {
	if !e.Header.Decompiled {
		return nil
	}
	var out []*Func
	for _, f := range e.funcs {
		if f.rec.C == nil {
			out = append(out, f)
		}
	}
	return out
}

func (e *Export) IsThunk(fn engine.Function) bool {
	f, ok := fn.(*Func)
	return ok && f.rec.Thunk
}

func (e *Export) CalledFunctions(fn engine.Function) ([]engine.Function, error) {
	f, ok := fn.(*Func)
	if !ok {
		return nil, fmt.Errorf("ghidra: foreign function %T", fn)
	}
	return f.calls, nil
}

// OpenDecompiler fails when the export was written without a decompile
// pass.
func (e *Export) OpenDecompiler() (engine.Decompiler, error) {
	if !e.Header.Decompiled {
		return nil, ErrNotDecompiled
	}
	return &session{}, nil
}

type session struct {
	closed bool
}

func (s *session) Decompile(fn engine.Function) (string, bool) {
	f, ok := fn.(*Func)
	if !ok || s.closed || f.rec.C == nil {
		return "", false
	}
	return *f.rec.C, true
}

func (s *session) Close() error {
	if s.closed {
		return engine.ErrSessionClosed
	}
	s.closed = true
	return nil
}
