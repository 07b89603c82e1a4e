package disasm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
)

func disassembleARM64(data []byte, opts Options) []Inst {
	maxSteps := opts.effectiveMax()
	n := len(data) / 4
	if n > maxSteps {
		n = maxSteps
	}

	result := make([]Inst, 0, n)
	for i := 0; i < n; i++ {
		off := i * 4
		raw := binary.LittleEndian.Uint32(data[off : off+4])
		addr := opts.BaseAddr + uint64(off)

		inst := Inst{
			Addr:  addr,
			Raw:   raw,
			Bytes: data[off : off+4],
			Size:  4,
		}
		decoded, err := arm64asm.Decode(data[off : off+4])
		if err != nil {
			inst.Mnemonic = ".word"
			inst.Operands = fmt.Sprintf("0x%08x", raw)
			inst.Text = fmt.Sprintf(".word 0x%08x", raw)
			inst.Kind = KindInvalid
		} else {
			inst.Text = decoded.String()
			parts := strings.SplitN(inst.Text, " ", 2)
			inst.Mnemonic = parts[0]
			if len(parts) > 1 {
				inst.Operands = parts[1]
			}
			inst.Kind, inst.Target = classifyARM64(raw, addr)
		}
		result = append(result, inst)
	}
	return result
}

func classifyARM64(raw uint32, pc uint64) (Kind, uint64) {
	if target, ok := isBL(raw, pc); ok {
		return KindCall, target
	}
	if _, ok := isBLR(raw); ok {
		return KindIndirectCall, 0
	}
	if _, ok := isBR(raw); ok {
		return KindIndirectJump, 0
	}
	bi := DecodeBranch(raw, pc)
	switch {
	case bi == nil:
		return KindOther, 0
	case bi.IsRet:
		return KindRet, 0
	case bi.Cond:
		return KindCondJump, bi.Target
	default:
		return KindJump, bi.Target
	}
}

// BranchInfo describes a decoded branch instruction.
type BranchInfo struct {
	Target uint64 // absolute target address (0 if RET)
	Cond   bool   // true if conditional (has fallthrough)
	IsRet  bool   // true if RET
}

// DecodeBranch attempts to decode a branch instruction from raw encoding at the given PC.
// Returns nil if the instruction is not a branch/ret. Calls (BL, BLR) are not branches.
func DecodeBranch(raw uint32, pc uint64) *BranchInfo {
	// RET (0xD65F03C0 exactly, or RET Xn = 0xD65F0000 | Rn<<5)
	if raw&0xFFFFFC1F == 0xD65F0000 {
		return &BranchInfo{IsRet: true}
	}

	// B (unconditional): 000101 imm26
	if raw&0xFC000000 == 0x14000000 {
		offset := signExtend(raw&0x03FFFFFF, 26) * 4
		return &BranchInfo{Target: uint64(int64(pc) + int64(offset))}
	}

	// B.cond: 01010100 imm19 0 cond
	if raw&0xFF000010 == 0x54000000 {
		offset := signExtend((raw>>5)&0x7FFFF, 19) * 4
		return &BranchInfo{Target: uint64(int64(pc) + int64(offset)), Cond: true}
	}

	// CBZ / CBNZ: sf 011010 op imm19 Rt
	if raw&0x7E000000 == 0x34000000 {
		offset := signExtend((raw>>5)&0x7FFFF, 19) * 4
		return &BranchInfo{Target: uint64(int64(pc) + int64(offset)), Cond: true}
	}

	// TBZ / TBNZ: b5 011011 op b40 imm14 Rt
	if raw&0x7E000000 == 0x36000000 {
		offset := signExtend((raw>>5)&0x3FFF, 14) * 4
		return &BranchInfo{Target: uint64(int64(pc) + int64(offset)), Cond: true}
	}

	return nil
}

// signExtend sign-extends a value from the given bit width to int32.
func signExtend(val uint32, bits int) int32 {
	sign := uint32(1) << (bits - 1)
	mask := sign - 1
	if val&sign != 0 {
		return int32(val | ^mask)
	}
	return int32(val & mask)
}

// isBL detects BL: 1 00101 imm26. Returns the absolute target.
func isBL(raw uint32, pc uint64) (target uint64, ok bool) {
	if raw&0xFC000000 != 0x94000000 {
		return 0, false
	}
	offset := signExtend(raw&0x03FFFFFF, 26) * 4
	return uint64(int64(pc) + int64(offset)), true
}

// isBLR detects BLR Xn. Mask 0xFFFFFC1F, value 0xD63F0000.
func isBLR(raw uint32) (rn int, ok bool) {
	if raw&0xFFFFFC1F != 0xD63F0000 {
		return 0, false
	}
	return int((raw >> 5) & 0x1F), true
}

// isBR detects BR Xn. Mask 0xFFFFFC1F, value 0xD61F0000.
func isBR(raw uint32) (rn int, ok bool) {
	if raw&0xFFFFFC1F != 0xD61F0000 {
		return 0, false
	}
	return int((raw >> 5) & 0x1F), true
}

// isLandingPadARM64 matches NOP, BTI and PACIASP/PACIBSP.
func isLandingPadARM64(raw uint32) bool {
	switch {
	case raw == 0xD503201F: // NOP
		return true
	case raw&0xFFFFFF3F == 0xD503241F: // BTI {c,j,jc}
		return true
	case raw == 0xD503233F, raw == 0xD503237F: // PACIASP, PACIBSP
		return true
	}
	return false
}

// isAddrMaterialization matches the ADRP / LDR Xt,[Xn,#imm] / ADD Xd,Xn,#imm
// instructions that PLT-style stubs use to load a jump target.
func isAddrMaterialization(raw uint32) bool {
	return raw&0x9F000000 == 0x90000000 || // ADRP
		raw&0xFFC00000 == 0xF9400000 || // LDR X, unsigned offset
		raw&0xFF000000 == 0x91000000 // ADD X, immediate
}

func isThunkARM64(insts []Inst) bool {
	i := 0
	for i < len(insts) && isLandingPadARM64(insts[i].Raw) {
		i++
	}
	prefix := 0
	for i < len(insts) && prefix < 3 && isAddrMaterialization(insts[i].Raw) {
		i++
		prefix++
	}
	if i >= len(insts) {
		return false
	}
	switch insts[i].Kind {
	case KindJump:
		return prefix == 0 && jumpsOutside(insts[i], insts)
	case KindIndirectJump:
		return prefix > 0
	}
	return false
}
