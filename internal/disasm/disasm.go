// Package disasm decodes ARM64 and x86-64 machine code into instructions
// classified by control flow, and renders them as listings.
package disasm

import (
	"fmt"
	"strings"
)

// Arch selects the instruction set.
type Arch int

const (
	ARM64 Arch = iota
	AMD64
)

func (a Arch) String() string {
	switch a {
	case ARM64:
		return "arm64"
	case AMD64:
		return "amd64"
	}
	return fmt.Sprintf("Arch(%d)", int(a))
}

// Kind classifies an instruction by its effect on control flow.
type Kind uint8

const (
	KindOther        Kind = iota
	KindCall              // direct call; Target is set
	KindIndirectCall      // call through a register or memory
	KindJump              // unconditional direct jump; Target is set
	KindIndirectJump      // jump through a register or memory
	KindCondJump          // conditional direct branch; Target is set
	KindRet
	KindInvalid // bytes that do not decode
)

// Inst is a decoded instruction with address and raw bytes.
type Inst struct {
	Addr     uint64
	Raw      uint32 // ARM64 encoding; zero for AMD64
	Bytes    []byte
	Size     int
	Mnemonic string
	Operands string
	Text     string // full disassembly line
	Kind     Kind
	Target   uint64 // absolute target for direct calls and branches
}

// SymbolLookup resolves an address to a symbolic name. Returns ("", false) if unknown.
type SymbolLookup func(addr uint64) (name string, ok bool)

// Annotator returns an optional inline comment for an instruction.
// Empty string means no annotation.
type Annotator func(inst Inst) string

// Options controls disassembly behavior.
type Options struct {
	Arch     Arch
	BaseAddr uint64       // VA of the first byte in Data
	MaxSteps int          // maximum instructions to decode; 0 = 10M
	Symbols  SymbolLookup // optional; names direct targets in AMD64 text
}

const defaultMaxSteps = 10_000_000

func (o Options) effectiveMax() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return defaultMaxSteps
}

// Disassemble decodes instructions from a byte region.
// Returns decoded instructions up to MaxSteps or end of data.
func Disassemble(data []byte, opts Options) []Inst {
	switch opts.Arch {
	case AMD64:
		return disassembleAMD64(data, opts)
	default:
		return disassembleARM64(data, opts)
	}
}

// CallTargets returns the targets of all direct calls, in instruction order.
func CallTargets(insts []Inst) []uint64 {
	var out []uint64
	for _, inst := range insts {
		if inst.Kind == KindCall && inst.Target != 0 {
			out = append(out, inst.Target)
		}
	}
	return out
}

// IsThunk reports whether insts form a trampoline: after an optional
// landing pad, the first control transfer is an unconditional jump and
// nothing but address materialization precedes it. A direct jump that lands
// inside the decoded body (a loop entered at its condition) is not a thunk.
func IsThunk(arch Arch, insts []Inst) bool {
	switch arch {
	case AMD64:
		return isThunkAMD64(insts)
	default:
		return isThunkARM64(insts)
	}
}

// Format renders a slice of instructions as stable text output.
// Each line: <addr>  <hex bytes>  <disasm>  ; <comments>
// Annotators are checked in order; first non-empty result is used.
func Format(insts []Inst, lookup SymbolLookup, annotators ...Annotator) string {
	var b strings.Builder
	for _, inst := range insts {
		fmt.Fprintf(&b, "0x%08x  ", inst.Addr)
		fmt.Fprintf(&b, "%-20s  ", fmt.Sprintf("% x", inst.Bytes))
		b.WriteString(inst.Text)
		commented := false
		if lookup != nil {
			if name, ok := lookup(inst.Addr); ok {
				fmt.Fprintf(&b, "  ; <%s>", name)
				commented = true
			}
		}
		if !commented {
			for _, ann := range annotators {
				if s := ann(inst); s != "" {
					fmt.Fprintf(&b, "  ; %s", s)
					break
				}
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// TargetAnnotator names the target of direct calls and jumps.
func TargetAnnotator(lookup SymbolLookup) Annotator {
	return func(inst Inst) string {
		switch inst.Kind {
		case KindCall, KindJump, KindCondJump:
		default:
			return ""
		}
		if name, ok := lookup(inst.Target); ok {
			return "-> " + name
		}
		return ""
	}
}

// PlaceholderLookup returns a SymbolLookup backed by a map of known
// function entry points.
func PlaceholderLookup(entryPoints map[uint64]string) SymbolLookup {
	return func(addr uint64) (string, bool) {
		if name, ok := entryPoints[addr]; ok {
			return name, true
		}
		return "", false
	}
}

// jumpsOutside reports whether the direct jump inst leaves the span
// covered by insts.
func jumpsOutside(inst Inst, insts []Inst) bool {
	start := insts[0].Addr
	last := insts[len(insts)-1]
	end := last.Addr + uint64(last.Size)
	return inst.Target < start || inst.Target >= end
}
