// Package native is a decompiler engine that needs nothing but the binary.
//
// Functions come from the ELF symbol table. Call edges and thunks are found by
// decoding each function body with golang.org/x/arch, and the "decompiled"
// text is an annotated disassembly listing. It trades the quality of a real
// decompiler for zero setup.
package native

import (
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ianlancetaylor/demangle"

	"decompgraph/internal/disasm"
	"decompgraph/internal/elfx"
	"decompgraph/internal/engine"
)

// ErrUndecodable is returned for function bodies whose entry instruction does
// not decode.
var ErrUndecodable = errors.New("native: entry instruction does not decode")

const (
	// DefaultCacheSize is the number of decoded function bodies kept in memory.
	DefaultCacheSize = 4096
	// DefaultMaxFuncSize caps how many bytes of one function are decoded.
	DefaultMaxFuncSize = 1 << 20
)

// Func is a function defined in the ELF symbol table.
type Func struct {
	name string
	addr uint64
	size uint64
}

// Name returns the symbol name.
func (f *Func) Name() string { return f.name }

// Addr returns the entry address.
func (f *Func) Addr() uint64 { return f.addr }

// Size returns the symbol size in bytes.
func (f *Func) Size() uint64 { return f.size }

// Options tunes an Engine. Zero values select the defaults.
type Options struct {
	CacheSize   int
	MaxFuncSize uint64
}

// Engine implements engine.Engine over an ELF binary.
type Engine struct {
	path    string
	ef      *elfx.File
	arch    disasm.Arch
	funcs   []*Func
	byAddr  map[uint64]*Func
	cache   *lru.Cache[uint64, []disasm.Inst]
	maxSize uint64
}

// Open loads the symbol table of the ELF at path. The file stays open until
// Close.
func Open(path string, opts Options) (*Engine, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.MaxFuncSize == 0 {
		opts.MaxFuncSize = DefaultMaxFuncSize
	}

	ef, err := elfx.Open(path)
	if err != nil {
		return nil, fmt.Errorf("native: %w", err)
	}
	syms, err := ef.FuncSymbols()
	if err != nil {
		ef.Close()
		return nil, fmt.Errorf("native: %w", err)
	}
	cache, err := lru.New[uint64, []disasm.Inst](opts.CacheSize)
	if err != nil {
		ef.Close()
		return nil, fmt.Errorf("native: cache: %w", err)
	}

	e := &Engine{
		path:    path,
		ef:      ef,
		arch:    ef.Arch(),
		funcs:   make([]*Func, 0, len(syms)),
		byAddr:  make(map[uint64]*Func, len(syms)),
		cache:   cache,
		maxSize: opts.MaxFuncSize,
	}
	for _, s := range syms {
		f := &Func{name: s.Name, addr: s.Addr, size: s.Size}
		e.funcs = append(e.funcs, f)
		e.byAddr[s.Addr] = f
	}
	return e, nil
}

// Close releases the binary.
func (e *Engine) Close() error {
	return e.ef.Close()
}

// Arch returns the instruction set of the binary.
func (e *Engine) Arch() disasm.Arch { return e.arch }

// Functions returns every function, ordered by entry address.
func (e *Engine) Functions() ([]engine.Function, error) {
	out := make([]engine.Function, len(e.funcs))
	for i, f := range e.funcs {
		out[i] = f
	}
	return out, nil
}

// IsThunk reports whether fn is a trampoline. Functions that cannot be
// decoded are not thunks.
func (e *Engine) IsThunk(fn engine.Function) bool {
	f, ok := fn.(*Func)
	if !ok {
		return false
	}
	insts, err := e.decode(e.ef, f)
	if err != nil {
		return false
	}
	return disasm.IsThunk(e.arch, insts)
}

// CalledFunctions returns the functions whose entry is the target of a
// direct call in fn, in call order. A function whose bytes are not in the
// file calls nothing.
func (e *Engine) CalledFunctions(fn engine.Function) ([]engine.Function, error) {
	f, ok := fn.(*Func)
	if !ok {
		return nil, fmt.Errorf("native: foreign function %T", fn)
	}
	insts, err := e.decode(e.ef, f)
	if err != nil {
		if errors.Is(err, elfx.ErrNoSegment) || errors.Is(err, ErrUndecodable) {
			return nil, nil
		}
		return nil, err
	}

	var out []engine.Function
	for _, target := range disasm.CallTargets(insts) {
		if callee, ok := e.byAddr[target]; ok {
			out = append(out, callee)
		}
	}
	return out, nil
}

// OpenDecompiler opens a second handle on the binary for the decompile pass.
func (e *Engine) OpenDecompiler() (engine.Decompiler, error) {
	ef, err := elfx.Open(e.path)
	if err != nil {
		return nil, fmt.Errorf("native: open decompiler: %w", err)
	}
	return &session{eng: e, ef: ef}, nil
}

// decode returns the instructions of f, reading through ef on a cache miss.
func (e *Engine) decode(ef *elfx.File, f *Func) ([]disasm.Inst, error) {
	if insts, ok := e.cache.Get(f.addr); ok {
		return insts, nil
	}
	n := f.size
	if n > e.maxSize {
		n = e.maxSize
	}
	data, err := ef.ReadBytesAtVA(f.addr, int(n))
	if err != nil {
		return nil, err
	}
	insts := disasm.Disassemble(data, disasm.Options{
		Arch:     e.arch,
		BaseAddr: f.addr,
		Symbols:  e.lookup,
	})
	if len(insts) == 0 || insts[0].Kind == disasm.KindInvalid {
		return nil, fmt.Errorf("%w: %s at 0x%x", ErrUndecodable, f.name, f.addr)
	}
	e.cache.Add(f.addr, insts)
	return insts, nil
}

func (e *Engine) lookup(addr uint64) (string, bool) {
	if f, ok := e.byAddr[addr]; ok {
		return f.name, true
	}
	return "", false
}

type session struct {
	eng    *Engine
	ef     *elfx.File
	closed bool
}

// Decompile renders fn as a listing headed by its demangled name.
func (s *session) Decompile(fn engine.Function) (string, bool) {
	f, ok := fn.(*Func)
	if !ok || s.closed {
		return "", false
	}
	insts, err := s.eng.decode(s.ef, f)
	if err != nil {
		return "", false
	}
	return listing(f, insts, s.eng.lookup), true
}

func (s *session) Close() error {
	if s.closed {
		return engine.ErrSessionClosed
	}
	s.closed = true
	return s.ef.Close()
}

func listing(f *Func, insts []disasm.Inst, lookup disasm.SymbolLookup) string {
	var b strings.Builder
	pretty := demangle.Filter(f.name)
	fmt.Fprintf(&b, "// %s\n", pretty)
	if pretty != f.name {
		fmt.Fprintf(&b, "// symbol: %s\n", f.name)
	}
	fmt.Fprintf(&b, "// entry: 0x%x size: %d\n", f.addr, f.size)
	b.WriteString(disasm.Format(insts, nil, disasm.TargetAnnotator(lookup)))
	return b.String()
}
