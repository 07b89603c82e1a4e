package disasm

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

var endbr64 = []byte{0xF3, 0x0F, 0x1E, 0xFA}

func disassembleAMD64(data []byte, opts Options) []Inst {
	maxSteps := opts.effectiveMax()

	var symname x86asm.SymLookup
	if opts.Symbols != nil {
		symname = func(addr uint64) (string, uint64) {
			if name, ok := opts.Symbols(addr); ok {
				return name, addr
			}
			return "", 0
		}
	}

	var result []Inst
	for off := 0; off < len(data) && len(result) < maxSteps; {
		addr := opts.BaseAddr + uint64(off)

		if bytes.HasPrefix(data[off:], endbr64) {
			result = append(result, Inst{
				Addr:     addr,
				Bytes:    data[off : off+4],
				Size:     4,
				Mnemonic: "endbr64",
				Text:     "endbr64",
			})
			off += 4
			continue
		}

		decoded, err := x86asm.Decode(data[off:], 64)
		if err != nil || decoded.Len == 0 {
			result = append(result, Inst{
				Addr:     addr,
				Bytes:    data[off : off+1],
				Size:     1,
				Mnemonic: ".byte",
				Operands: fmt.Sprintf("0x%02x", data[off]),
				Text:     fmt.Sprintf(".byte 0x%02x", data[off]),
				Kind:     KindInvalid,
			})
			off++
			continue
		}

		inst := Inst{
			Addr:  addr,
			Bytes: data[off : off+decoded.Len],
			Size:  decoded.Len,
			Text:  x86asm.GNUSyntax(decoded, addr, symname),
		}
		parts := strings.SplitN(inst.Text, " ", 2)
		inst.Mnemonic = parts[0]
		if len(parts) > 1 {
			inst.Operands = parts[1]
		}
		inst.Kind, inst.Target = classifyAMD64(decoded, addr)
		result = append(result, inst)
		off += decoded.Len
	}
	return result
}

func classifyAMD64(inst x86asm.Inst, pc uint64) (Kind, uint64) {
	rel, isRel := inst.Args[0].(x86asm.Rel)
	target := uint64(int64(pc) + int64(inst.Len) + int64(rel))

	switch inst.Op {
	case x86asm.CALL:
		if isRel {
			return KindCall, target
		}
		return KindIndirectCall, 0
	case x86asm.JMP:
		if isRel {
			return KindJump, target
		}
		return KindIndirectJump, 0
	case x86asm.RET:
		return KindRet, 0
	case x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JCXZ, x86asm.JE,
		x86asm.JECXZ, x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE, x86asm.JNE,
		x86asm.JNO, x86asm.JNP, x86asm.JNS, x86asm.JO, x86asm.JP, x86asm.JRCXZ,
		x86asm.JS, x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE:
		if isRel {
			return KindCondJump, target
		}
	}
	return KindOther, 0
}

func isThunkAMD64(insts []Inst) bool {
	i := 0
	for i < len(insts) && insts[i].Mnemonic == "endbr64" {
		i++
	}
	if i >= len(insts) {
		return false
	}
	switch insts[i].Kind {
	case KindJump:
		return jumpsOutside(insts[i], insts)
	case KindIndirectJump:
		return true
	}
	return false
}
