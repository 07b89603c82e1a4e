// Package elfx provides ELF loading helpers for ARM64 and x86-64 binaries.
package elfx

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"decompgraph/internal/disasm"
)

var (
	ErrNotELF          = errors.New("elfx: not an ELF file")
	ErrNot64Bit        = errors.New("elfx: not 64-bit ELF")
	ErrUnsupportedArch = errors.New("elfx: unsupported machine (want AArch64 or x86-64)")
	ErrNotLoadable     = errors.New("elfx: not an executable or shared object")
	ErrNoSymbols       = errors.New("elfx: no function symbols")
	ErrNoSegment       = errors.New("elfx: no file-backed PT_LOAD segment covers address")
)

// File wraps a debug/elf.File with the helpers the native engine needs.
type File struct {
	ELF  *elf.File
	raw  *os.File
	size int64
	arch disasm.Arch
}

// FuncSymbol is a defined function symbol.
type FuncSymbol struct {
	Name  string
	Addr  uint64
	Size  uint64
	Local bool
}

// Open opens an ELF file and validates it is a 64-bit ARM64 or x86-64
// executable or shared object.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfx: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("elfx: stat: %w", err)
	}

	ef, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotELF, err)
	}

	fail := func(err error) (*File, error) {
		ef.Close()
		f.Close()
		return nil, err
	}
	if ef.Class != elf.ELFCLASS64 {
		return fail(ErrNot64Bit)
	}
	var arch disasm.Arch
	switch ef.Machine {
	case elf.EM_AARCH64:
		arch = disasm.ARM64
	case elf.EM_X86_64:
		arch = disasm.AMD64
	default:
		return fail(fmt.Errorf("%w: %s", ErrUnsupportedArch, ef.Machine))
	}
	if ef.Type != elf.ET_EXEC && ef.Type != elf.ET_DYN {
		return fail(fmt.Errorf("%w: %s", ErrNotLoadable, ef.Type))
	}

	return &File{ELF: ef, raw: f, size: info.Size(), arch: arch}, nil
}

// Close releases resources.
func (f *File) Close() error {
	f.ELF.Close()
	return f.raw.Close()
}

// Arch returns the instruction set of the file.
func (f *File) Arch() disasm.Arch { return f.arch }

// FileSize returns the size of the underlying file.
func (f *File) FileSize() int64 { return f.size }

// FuncSymbols returns one symbol per function entry, sorted by address.
// The static symbol table is used when present, the dynamic one otherwise.
// Aliases at the same address collapse to one symbol, preferring global
// binding, then the lexically smallest name.
func (f *File) FuncSymbols() ([]FuncSymbol, error) {
	funcs := funcSymbols(f.ELF.Symbols)
	if len(funcs) == 0 {
		funcs = funcSymbols(f.ELF.DynamicSymbols)
	}
	if len(funcs) == 0 {
		return nil, ErrNoSymbols
	}
	return funcs, nil
}

func funcSymbols(read func() ([]elf.Symbol, error)) []FuncSymbol {
	syms, err := read()
	if err != nil {
		return nil
	}
	byAddr := make(map[uint64]FuncSymbol)
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC {
			continue
		}
		if s.Section == elf.SHN_UNDEF || s.Value == 0 || s.Size == 0 || s.Name == "" {
			continue
		}
		fs := FuncSymbol{
			Name:  s.Name,
			Addr:  s.Value,
			Size:  s.Size,
			Local: elf.ST_BIND(s.Info) == elf.STB_LOCAL,
		}
		if prev, ok := byAddr[s.Value]; ok && !preferSymbol(fs, prev) {
			continue
		}
		byAddr[s.Value] = fs
	}

	out := make([]FuncSymbol, 0, len(byAddr))
	for _, fs := range byAddr {
		out = append(out, fs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

func preferSymbol(a, b FuncSymbol) bool {
	if a.Local != b.Local {
		return !a.Local
	}
	return a.Name < b.Name
}

// VAToFileOffset converts a virtual address to a file offset using the
// file-backed part of PT_LOAD segments.
func (f *File) VAToFileOffset(va uint64) (uint64, error) {
	for _, p := range f.ELF.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if va >= p.Vaddr && va < p.Vaddr+p.Filesz {
			offset := va - p.Vaddr + p.Off
			if offset >= uint64(f.size) {
				return 0, fmt.Errorf("elfx: VA 0x%x maps to offset 0x%x beyond file size 0x%x", va, offset, f.size)
			}
			return offset, nil
		}
	}
	return 0, fmt.Errorf("%w: VA 0x%x", ErrNoSegment, va)
}

// ReadBytesAtVA reads n bytes starting at the given virtual address,
// clamped to the end of the file.
func (f *File) ReadBytesAtVA(va uint64, n int) ([]byte, error) {
	off, err := f.VAToFileOffset(va)
	if err != nil {
		return nil, err
	}
	avail := f.size - int64(off)
	if avail <= 0 {
		return nil, fmt.Errorf("elfx: offset 0x%x at or past end of file", off)
	}
	if int64(n) > avail {
		n = int(avail)
	}
	buf := make([]byte, n)
	_, err = f.raw.ReadAt(buf, int64(off))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("elfx: read at 0x%x: %w", off, err)
	}
	return buf, nil
}
