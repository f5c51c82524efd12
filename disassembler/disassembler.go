/*
 * T64 - Disassembler
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

// Package disassembler turns a 32-bit instruction word back into text, the
// mirror image of package assembler. Unrecognized encodings render as
// "**OPC:n**" rather than erroring, per §4.2 — disassembly of arbitrary
// memory must always produce something printable.
package disassembler

import (
	"fmt"

	"github.com/t64sim/t64/internal/bitfield"
	"github.com/t64sim/t64/internal/opcode"
)

type entry struct {
	name string
	form opForm
}

type opForm int

const (
	formALU opForm = iota
	formMEM
	formBR
	formSYS
	formIMM
	formBIT
	formSHA
	formMemALU
	formNone
)

var aluTable = map[int]entry{
	opcode.OpADD:   {"ADD", formALU},
	opcode.OpSUB:   {"SUB", formALU},
	opcode.OpAND:   {"AND", formALU},
	opcode.OpOR:    {"OR", formALU},
	opcode.OpXOR:   {"XOR", formALU},
	opcode.OpCMPA:  {"CMP", formALU},
	opcode.OpCMPB:  {"CMP", formALU},
	opcode.OpBITOP: {"", formBIT},
	opcode.OpSHAOP: {"SHAOP", formSHA},
	opcode.OpLDO:   {"LDO", formALU},
	opcode.OpIMMOP: {"LDIL", formIMM},
}

var memTable = map[int]entry{
	opcode.OpADD:  {"ADD", formMemALU},
	opcode.OpSUB:  {"SUB", formMemALU},
	opcode.OpAND:  {"AND", formMemALU},
	opcode.OpOR:   {"OR", formMemALU},
	opcode.OpXOR:  {"XOR", formMemALU},
	opcode.OpCMPA: {"CMP", formMemALU},
	opcode.OpCMPB: {"CMP", formMemALU},
	opcode.OpLD:   {"LD", formMEM},
	opcode.OpST:   {"ST", formMEM},
	opcode.OpLDR:  {"LDR", formMEM},
	opcode.OpSTC:  {"STC", formMEM},
}

var brTable = map[int]entry{
	opcode.OpB:   {"B", formBR},
	opcode.OpBE:  {"BE", formBR},
	opcode.OpBR:  {"BV", formBR},
	opcode.OpBB:  {"BB", formBR},
	opcode.OpABR: {"ABR", formBR},
	opcode.OpCBR: {"CBR", formBR},
	opcode.OpMBR: {"MBR", formBR},
}

var sysTable = map[int]entry{
	opcode.OpLPA:  {"LPA", formSYS},
	opcode.OpPRB:  {"PRB", formSYS},
	opcode.OpTLB:  {"TLB", formSYS},
	opcode.OpCA:   {"CA", formSYS},
	opcode.OpMST:  {"MST", formSYS},
	opcode.OpRFI:  {"RFI", formNone},
	opcode.OpDIAG: {"DIAG", formSYS},
	opcode.OpTRAP: {"TRAP", formSYS},
	opcode.OpNOP:  {"NOP", formNone},
}

// Disassemble renders a single instruction word as text.
func Disassemble(instr uint32) string {
	group := opcode.Group(instr)
	op := opcode.OpCode(instr)
	if group == opcode.GrpSYS && op == opcode.OpMR {
		return disMR(instr)
	}
	var table map[int]entry
	switch group {
	case opcode.GrpALU:
		table = aluTable
	case opcode.GrpMEM:
		table = memTable
	case opcode.GrpBR:
		table = brTable
	case opcode.GrpSYS:
		table = sysTable
	}
	e, ok := table[op]
	if !ok {
		return fmt.Sprintf("**OPC:%d**", opcode.Key(instr))
	}
	name := e.name
	if group == opcode.GrpSYS && op == opcode.OpTLB {
		name = tlbName(opcode.Opt1(instr))
	}
	if group == opcode.GrpSYS && op == opcode.OpCA {
		name = caName(opcode.Opt1(instr))
	}
	if group == opcode.GrpSYS && op == opcode.OpMST {
		name = mstName(opcode.Opt1(instr))
	}

	switch e.form {
	case formNone:
		return name
	case formALU:
		return disALU(instr, name)
	case formMEM:
		return disMEM(instr, name)
	case formMemALU:
		return disMemALU(instr, name)
	case formBR:
		return disBR(instr, name)
	case formSYS:
		return disSYS(instr, name)
	case formIMM:
		return disIMM(instr)
	case formBIT:
		return disBit(instr)
	case formSHA:
		return disSha(instr, name)
	default:
		return fmt.Sprintf("**OPC:%d**", opcode.Key(instr))
	}
}

func reg(n int) string { return fmt.Sprintf("R%d", n) }

func dwSuffix(dw int) string {
	if dw == opcode.DwD {
		return ""
	}
	return "." + opcode.DwName(dw)
}

func condSuffix(op int) string {
	n, ok := opcode.CondName(op)
	if !ok {
		return ""
	}
	return "." + n
}

// disALU mirrors the CPU's operand decoding. ADD/SUB: opt1==0 is a register
// third operand, else a 13-bit immediate. AND/OR/XOR: bit19 selects a
// register (Ra) vs a 15-bit immediate, bit20/21 render as .CI/.CO. CMP's
// opt1 is purely the condition code; OpCMPA takes a register operand,
// OpCMPB a 15-bit immediate.
func disALU(instr uint32, name string) string {
	r, b, a := opcode.RegR(instr), opcode.RegB(instr), opcode.RegA(instr)
	if name == "LDO" {
		return fmt.Sprintf("%s %s,%d(%s)", name, reg(r), opcode.ScaledImm13(instr), reg(b))
	}
	op := opcode.OpCode(instr)
	if op == opcode.OpCMPA || op == opcode.OpCMPB {
		suffix := condSuffix(opcode.Opt1(instr))
		if op == opcode.OpCMPA {
			return fmt.Sprintf("CMP%s %s,%s,%s", suffix, reg(r), reg(b), reg(a))
		}
		return fmt.Sprintf("CMP%s %s,%s,%d", suffix, reg(r), reg(b), opcode.Imm15(instr))
	}
	if op == opcode.OpAND || op == opcode.OpOR || op == opcode.OpXOR {
		suffix := complementSuffix(instr)
		if bitfield.ExtractBit64(uint64(instr), 19) != 0 {
			return fmt.Sprintf("%s%s %s,%s,%s", name, suffix, reg(r), reg(b), reg(a))
		}
		return fmt.Sprintf("%s%s %s,%s,%d", name, suffix, reg(r), reg(b), opcode.Imm15(instr))
	}
	// ADD, SUB
	if opcode.Opt1(instr) == 0 {
		return fmt.Sprintf("%s %s,%s,%s", name, reg(r), reg(b), reg(a))
	}
	return fmt.Sprintf("%s %s,%s,%d", name, reg(r), reg(b), opcode.Imm13(instr))
}

func complementSuffix(instr uint32) string {
	s := ""
	if bitfield.ExtractBit64(uint64(instr), 20) != 0 {
		s += ".CI"
	}
	if bitfield.ExtractBit64(uint64(instr), 21) != 0 {
		s += ".CO"
	}
	return s
}

func disIMM(instr uint32) string {
	r := opcode.RegR(instr)
	sel := (instr >> 20) & 0x3
	val := instr & 0xFFFFF
	switch sel {
	case 0:
		return fmt.Sprintf("ADDIL %s,%d", reg(r), int32(val))
	case 1:
		return fmt.Sprintf("LDIL.L %s,%#x", reg(r), val)
	case 2:
		return fmt.Sprintf("LDIL.M %s,%#x", reg(r), val)
	case 3:
		return fmt.Sprintf("LDIL.U %s,%#x", reg(r), val)
	default:
		return fmt.Sprintf("**OPC:%d**", opcode.Key(instr))
	}
}

// disMemALU renders the MEM group's ADD/SUB/AND/OR/XOR/CMP forms, mirroring
// assembleMemALU/effectiveAddr: ADD/SUB's opt1==0 is a bare register operand
// (no memory access), opt1==1 a scaled-imm13 load off Rb. AND/OR/XOR
// always address memory, bit19 choosing a register-indexed Ra(Rb) or a
// scaled-imm13(Rb) operand; CMP's opcode makes that choice instead (OpCMPA
// scaled-imm13(Rb), OpCMPB Ra(Rb)). The loaded value is combined with Rb, the same
// register supplying the address base.
func disMemALU(instr uint32, name string) string {
	r, b, a := opcode.RegR(instr), opcode.RegB(instr), opcode.RegA(instr)
	op := opcode.OpCode(instr)
	suffix := dwSuffix(opcode.Dw(instr))
	switch op {
	case opcode.OpADD, opcode.OpSUB:
		if opcode.Opt1(instr) == 0 {
			return fmt.Sprintf("%s %s,%s", name, reg(r), reg(a))
		}
		return fmt.Sprintf("%s%s %s,%d(%s)", name, suffix, reg(r), opcode.ScaledImm13(instr), reg(b))
	case opcode.OpCMPA:
		cond := condSuffix(opcode.Opt1(instr))
		return fmt.Sprintf("CMP%s%s %s,%d(%s)", cond, suffix, reg(r), opcode.ScaledImm13(instr), reg(b))
	case opcode.OpCMPB:
		cond := condSuffix(opcode.Opt1(instr))
		return fmt.Sprintf("CMP%s%s %s,%s(%s)", cond, suffix, reg(r), reg(a), reg(b))
	default: // AND, OR, XOR
		cs := complementSuffix(instr)
		if bitfield.ExtractBit64(uint64(instr), 19) != 0 {
			return fmt.Sprintf("%s%s%s %s,%s(%s)", name, cs, suffix, reg(r), reg(a), reg(b))
		}
		return fmt.Sprintf("%s%s%s %s,%d(%s)", name, cs, suffix, reg(r), opcode.ScaledImm13(instr), reg(b))
	}
}

// disBit renders EXTR/DEP/DSR, selected by the BITOP opt1 field.
func disBit(instr uint32) string {
	r, b, a := opcode.RegR(instr), opcode.RegB(instr), opcode.RegA(instr)
	pos := int(opcode.FieldU(instr, 6, 6))
	length := int(opcode.FieldU(instr, 0, 6)) + 1
	switch opcode.Opt1(instr) {
	case 0: // EXTR
		suffix := ""
		if bitfield.ExtractBit64(uint64(instr), 12) != 0 {
			suffix = ".S"
		}
		return fmt.Sprintf("EXTR%s %s,%s,%d,%d", suffix, reg(r), reg(b), pos, length)
	case 1: // DEP
		suffix := ""
		if bitfield.ExtractBit64(uint64(instr), 12) != 0 {
			suffix = ".Z"
		}
		operand := reg(b)
		if bitfield.ExtractBit64(uint64(instr), 14) != 0 {
			operand = fmt.Sprintf("%d", opcode.FieldU(instr, 15, 4))
		}
		return fmt.Sprintf("DEP%s %s,%s,%d,%d", suffix, reg(r), operand, pos, length)
	case 3: // DSR
		shamt := int(opcode.FieldU(instr, 0, 6))
		return fmt.Sprintf("DSR %s,%s,%s,%d", reg(r), reg(b), reg(a), shamt)
	default:
		return fmt.Sprintf("**OPC:%d**", opcode.Key(instr))
	}
}

// disSha renders SHAOP: opt1 bit0 selects register-vs-immediate, bit1
// selects shift direction, the shift amount comes from the dw field.
func disSha(instr uint32, name string) string {
	r, b, a := opcode.RegR(instr), opcode.RegB(instr), opcode.RegA(instr)
	opt1 := opcode.Opt1(instr)
	dir := "L"
	if opt1&0x2 != 0 {
		dir = "R"
	}
	shamt := opcode.Dw(instr)
	if opt1&0x1 != 0 {
		return fmt.Sprintf("%s.%s.%d %s,%s,%d", name, dir, shamt, reg(r), reg(b), opcode.Imm13(instr))
	}
	return fmt.Sprintf("%s.%s.%d %s,%s,%s", name, dir, shamt, reg(r), reg(b), reg(a))
}

func disMEM(instr uint32, name string) string {
	r, b, a := opcode.RegR(instr), opcode.RegB(instr), opcode.RegA(instr)
	suffix := dwSuffix(opcode.Dw(instr))
	if opcode.Opt1(instr) == 1 {
		return fmt.Sprintf("%s%s %s,%s(%s)", name, suffix, reg(r), reg(a), reg(b))
	}
	return fmt.Sprintf("%s%s %s,%d(%s)", name, suffix, reg(r), opcode.ScaledImm13(instr), reg(b))
}

func disBR(instr uint32, name string) string {
	switch opcode.OpCode(instr) {
	case opcode.OpB:
		gate := ""
		if opcode.Bit(instr, 19) {
			gate = ".G"
		}
		return fmt.Sprintf("B%s %d", gate, opcode.Imm19(instr)<<2)
	case opcode.OpBE, opcode.OpBR:
		return fmt.Sprintf("%s %s", name, reg(opcode.RegB(instr)))
	default: // BB, ABR, CBR, MBR — the assembler encodes all four as
		// Rb, Ra, target; see assembleBR's default case and DESIGN.md for
		// the caveat this leaves on BB's real bit-test fields.
		suffix := condSuffix(opcode.Opt1(instr))
		return fmt.Sprintf("%s%s %s,%s,%d", name, suffix, reg(opcode.RegB(instr)), reg(opcode.RegA(instr)), opcode.Imm13(instr)<<2)
	}
}

func disSYS(instr uint32, name string) string {
	r, b, a := opcode.RegR(instr), opcode.RegB(instr), opcode.RegA(instr)
	switch opcode.OpCode(instr) {
	case opcode.OpLPA, opcode.OpPRB:
		return fmt.Sprintf("%s %s,%s", name, reg(r), reg(b))
	case opcode.OpTLB, opcode.OpCA, opcode.OpMST:
		return fmt.Sprintf("%s %s,%s", name, reg(r), reg(b))
	case opcode.OpDIAG, opcode.OpTRAP:
		return fmt.Sprintf("%s %s,%s,%s", name, reg(r), reg(b), reg(a))
	default:
		return fmt.Sprintf("%s %s", name, reg(r))
	}
}

func disMR(instr uint32) string {
	r, b := opcode.RegR(instr), opcode.RegB(instr)
	switch opcode.Opt1(instr) {
	case 0:
		return fmt.Sprintf("MFCR %s,C%d", reg(r), b)
	case 1:
		return fmt.Sprintf("MTCR C%d,%s", b, reg(r))
	case 4:
		return fmt.Sprintf("MFIA %s", reg(r))
	case 5:
		return fmt.Sprintf("MFIA.IA %s", reg(r))
	case 6:
		return fmt.Sprintf("MFIA.M %s", reg(r))
	case 7:
		return fmt.Sprintf("MFIA.U %s", reg(r))
	default:
		return fmt.Sprintf("**OPC:%d**", opcode.Key(instr))
	}
}

func tlbName(opt1 int) string {
	switch opt1 {
	case 0:
		return "IITLB"
	case 1:
		return "IDTLB"
	case 2:
		return "PITLB"
	case 3:
		return "PDTLB"
	default:
		return "TLB"
	}
}

func caName(opt1 int) string {
	switch opt1 {
	case 0:
		return "FICA"
	case 1:
		return "FDCA"
	case 2:
		return "PICA"
	case 3:
		return "PDCA"
	default:
		return "CA"
	}
}

func mstName(opt1 int) string {
	switch opt1 {
	case 0:
		return "RSM"
	case 1:
		return "SSM"
	default:
		return "MST"
	}
}
