/*
 * T64 - Instruction word field layout and opcode constants
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package opcode is the single source of truth for instruction word field
// positions and opcode numbering, imported by the assembler, disassembler,
// and CPU dispatch table so none of the three can drift from the others.
package opcode

import "github.com/t64sim/t64/internal/bitfield"

// Instruction groups, bits 30..31.
const (
	GrpALU = 0
	GrpMEM = 1
	GrpBR  = 2
	GrpSYS = 3
)

// Opcode families within a group, bits 26..29.
const (
	OpADD = 0x0
	OpSUB = 0x1
	OpAND = 0x2
	OpOR  = 0x3
	OpXOR = 0x4
	OpCMPA = 0x5
	OpCMPB = 0x6
	OpBITOP = 0x7
	OpSHAOP = 0x8
	OpIMMOP = 0x9
	OpLDO   = 0xA
	// OpLD through OpSTC are MEM-group-only opcodes; the MEM group also
	// redispatches OpADD..OpCMPB (same numeric values as the ALU family)
	// for its ADD/SUB/AND/OR/XOR/CMP memory forms, so OpLD..OpSTC must
	// avoid the 0x0..0x6 range to stay distinct within execMEM's switch.
	OpLD  = 0xE
	OpLDR = 0xB
	OpST  = 0xC
	OpSTC = 0xD
	OpNOP = 0xF

	OpB   = 0x0
	OpBE  = 0x1
	OpBR  = 0x2
	OpBB  = 0x3
	OpABR = 0x4
	OpCBR = 0x5
	OpMBR = 0x6

	OpMR   = 0x0
	OpLPA  = 0x1
	OpPRB  = 0x2
	OpTLB  = 0x3
	OpCA   = 0x4
	OpMST  = 0x5
	OpRFI  = 0x6
	OpDIAG = 0x7
	OpTRAP = 0x8
)

// DispatchKey packs (group<<4)|opCode the way the CPU's flat dispatch table
// and the original source's switch statement both key on.
func DispatchKey(group, opCode int) int {
	return (group << 4) | opCode
}

// Condition codes, opt1 field values 0..7.
const (
	CondEQ = 0
	CondLT = 1
	CondGT = 2
	CondEV = 3
	CondNE = 4
	CondGE = 5
	CondLE = 6
	CondOD = 7
)

var condName = map[int]string{
	CondEQ: "EQ", CondLT: "LT", CondGT: "GT", CondEV: "EV",
	CondNE: "NE", CondGE: "GE", CondLE: "LE", CondOD: "OD",
}

var condByName = map[string]int{
	"EQ": CondEQ, "LT": CondLT, "GT": CondGT, "EV": CondEV,
	"NE": CondNE, "GE": CondGE, "LE": CondLE, "OD": CondOD,
}

func CondName(c int) (string, bool) {
	n, ok := condName[c]
	return n, ok
}

func CondByName(name string) (int, bool) {
	c, ok := condByName[name]
	return c, ok
}

// EvalCond evaluates the compare/branch condition table from §4.5.
func EvalCond(cond int, a, b int64) bool {
	switch cond {
	case CondEQ:
		return a == b
	case CondLT:
		return a < b
	case CondGT:
		return a > b
	case CondEV:
		return a&1 == 0
	case CondNE:
		return a != b
	case CondGE:
		return a >= b
	case CondLE:
		return a <= b
	case CondOD:
		return a&1 != 0
	default:
		return false
	}
}

// Data-width selector, bits 13..14: field value IS the shift exponent, so
// DW{0,1,2,3} map to byte lengths {1,2,4,8} ("B","H","W","D").
const (
	DwB = 0
	DwH = 1
	DwW = 2
	DwD = 3
)

var dwLen = map[int]int{DwB: 1, DwH: 2, DwW: 4, DwD: 8}
var dwName = map[int]string{DwB: "B", DwH: "H", DwW: "W", DwD: "D"}
var dwByName = map[string]int{"B": DwB, "H": DwH, "W": DwW, "D": DwD}

// DwLen returns the byte length encoded by a dw field value.
func DwLen(dw int) int { return dwLen[dw] }

// DwName returns the mnemonic letter for a dw field value; "D" is the
// default width and the disassembler does not print it.
func DwName(dw int) string { return dwName[dw] }

func DwByName(s string) (int, bool) {
	v, ok := dwByName[s]
	return v, ok
}

// Field positions within the 32-bit instruction word.
const (
	posGroup = 30
	lenGroup = 2
	posOp    = 26
	lenOp    = 4
	posOpt1  = 19
	lenOpt1  = 3
	posRegR  = 22
	lenRegR  = 4
	posRegB  = 15
	lenRegB  = 4
	posRegA  = 9
	lenRegA  = 4
	posDw    = 13
	lenDw    = 2
)

func word64(instr uint32) uint64 { return uint64(instr) }

func Group(instr uint32) int { return int(bitfield.ExtractField64(word64(instr), posGroup, lenGroup)) }
func OpCode(instr uint32) int { return int(bitfield.ExtractField64(word64(instr), posOp, lenOp)) }
func Opt1(instr uint32) int   { return int(bitfield.ExtractField64(word64(instr), posOpt1, lenOpt1)) }
func RegR(instr uint32) int   { return int(bitfield.ExtractField64(word64(instr), posRegR, lenRegR)) }
func RegB(instr uint32) int   { return int(bitfield.ExtractField64(word64(instr), posRegB, lenRegB)) }
func RegA(instr uint32) int   { return int(bitfield.ExtractField64(word64(instr), posRegA, lenRegA)) }
func Dw(instr uint32) int     { return int(bitfield.ExtractField64(word64(instr), posDw, lenDw)) }

// Key returns the CPU dispatch table index for instr: (group<<4)|opCode.
func Key(instr uint32) int { return DispatchKey(Group(instr), OpCode(instr)) }

// Bit returns whether bit pos of instr is set.
func Bit(instr uint32, pos int) bool { return bitfield.ExtractBit64(word64(instr), pos) != 0 }

// FieldU extracts an unsigned field from the instruction word.
func FieldU(instr uint32, pos, length int) uint64 { return bitfield.ExtractField64(word64(instr), pos, length) }

// Imm13 extracts the signed 13-bit immediate (bits 0..12).
func Imm13(instr uint32) int64 { return bitfield.ExtractSignedField64(word64(instr), 0, 13) }

// ScaledImm13 extracts signExtend(imm13) << dw, per §4.1.
func ScaledImm13(instr uint32) int64 { return Imm13(instr) << Dw(instr) }

// Imm15 extracts the signed 15-bit immediate (bits 0..14).
func Imm15(instr uint32) int64 { return bitfield.ExtractSignedField64(word64(instr), 0, 15) }

// Imm19 extracts the signed 19-bit immediate (bits 0..18).
func Imm19(instr uint32) int64 { return bitfield.ExtractSignedField64(word64(instr), 0, 19) }

// Imm20 extracts the unsigned 20-bit immediate (bits 0..19).
func Imm20(instr uint32) uint64 { return bitfield.ExtractField64(word64(instr), 0, 20) }

// Build assembles an instruction word from its fixed fields; used by the
// assembler once option/operand parsing has resolved every field value.
func Build(group, opCode, opt1, regR, regB, regA, dw int, immField uint64, immLen int) uint32 {
	var w uint64
	w = bitfield.DepositField(w, posGroup, lenGroup, uint64(group))
	w = bitfield.DepositField(w, posOp, lenOp, uint64(opCode))
	w = bitfield.DepositField(w, posOpt1, lenOpt1, uint64(opt1))
	w = bitfield.DepositField(w, posRegR, lenRegR, uint64(regR))
	w = bitfield.DepositField(w, posRegB, lenRegB, uint64(regB))
	w = bitfield.DepositField(w, posRegA, lenRegA, uint64(regA))
	w = bitfield.DepositField(w, posDw, lenDw, uint64(dw))
	if immLen > 0 {
		w = bitfield.DepositField(w, 0, immLen, immField)
	}
	return uint32(w)
}

// ToBigEndian32 swaps a 32-bit instruction word to big-endian byte order for
// the wire, per §6 ("stored big-endian on the bus").
func ToBigEndian32(v uint32) uint32 {
	return (v&0x000000FF)<<24 | (v&0x0000FF00)<<8 | (v&0x00FF0000)>>8 | (v&0xFF000000)>>24
}
