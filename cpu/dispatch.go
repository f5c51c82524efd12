/*
 * T64 - Instruction dispatch and execution
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

package cpu

import (
	"github.com/t64sim/t64/internal/bitfield"
	"github.com/t64sim/t64/internal/opcode"
	"github.com/t64sim/t64/internal/trap"
	"github.com/t64sim/t64/tlb"
)

// Step fetches and executes one instruction, returning the trap raised, if
// any. On success PSR has already been advanced (or overwritten by a
// branch); on trap, IPSR/IINSTR/IARG_0/IARG_1 are populated (IPSR with the
// unadvanced PSR) and PSR's IA is set to the trap vector control register,
// per §4.6.
func (c *CPU) Step() *trap.Trap {
	fetchAdr := IA(c.psr)
	instr, t := c.instrRead(fetchAdr)
	if t != nil {
		c.enterTrap(t)
		return t
	}
	t = c.execute(instr, fetchAdr)
	if t != nil {
		c.enterTrap(t)
		return t
	}
	return nil
}

func (c *CPU) enterTrap(t *trap.Trap) {
	c.cReg[CtlIPSR] = c.psr
	c.cReg[CtlIINSTR] = uint64(t.InstrWord)
	c.cReg[CtlIARG0] = t.Arg0
	c.cReg[CtlIARG1] = t.Arg1
	c.psr = SetIA(c.psr, c.cReg[CtlTrapVector])
}

// execute dispatches instr, fetched from fetchAdr, to its handler. Handlers
// advance PSR themselves on success (nextInstr for the common case,
// direct assignment for branches); a returned trap leaves PSR untouched.
func (c *CPU) execute(instr uint32, fetchAdr uint64) *trap.Trap {
	switch opcode.Group(instr) {
	case opcode.GrpALU:
		return c.execALU(instr, fetchAdr)
	case opcode.GrpMEM:
		return c.execMEM(instr, fetchAdr)
	case opcode.GrpBR:
		return c.execBR(instr, fetchAdr)
	case opcode.GrpSYS:
		return c.execSYS(instr, fetchAdr)
	default:
		return trap.New(trap.IllegalInstr, fetchAdr, instr, 0, 0)
	}
}

func (c *CPU) advance() { c.psr = NextInstr(c.psr) }

// ---- ALU group: ADD/SUB/AND/OR/XOR/CMP/BITOP/SHAOP/IMMOP/LDO ----

func (c *CPU) execALU(instr uint32, fetchAdr uint64) *trap.Trap {
	r, b, a := opcode.RegR(instr), opcode.RegB(instr), opcode.RegA(instr)
	opt1 := opcode.Opt1(instr)

	aluOperand := func() int64 {
		if opt1 == 0 {
			return c.GReg(a)
		}
		return opcode.Imm13(instr)
	}

	// logicOperand2 picks AND/OR/XOR's second operand: bit19 set means a
	// register (Ra), clear means the 15-bit signed immediate.
	logicOperand2 := func() int64 {
		if bitfield.ExtractBit64(uint64(instr), 19) != 0 {
			return c.GReg(a)
		}
		return opcode.Imm15(instr)
	}

	switch opcode.OpCode(instr) {
	case opcode.OpADD:
		val2 := aluOperand()
		res := c.GReg(b) + val2
		if bitfield.WillAddOverflow(c.GReg(b), val2) {
			return trap.New(trap.Overflow, fetchAdr, instr, uint64(c.GReg(b)), uint64(val2))
		}
		c.SetGReg(r, res)
		c.advance()
		return nil
	case opcode.OpSUB:
		val2 := aluOperand()
		res := c.GReg(b) - val2
		if bitfield.WillSubOverflow(c.GReg(b), val2) {
			return trap.New(trap.Overflow, fetchAdr, instr, uint64(c.GReg(b)), uint64(val2))
		}
		c.SetGReg(r, res)
		c.advance()
		return nil
	case opcode.OpAND:
		val1 := uint64(c.GReg(b))
		if bitfield.ExtractBit64(uint64(instr), 20) != 0 { // input complement
			val1 = ^val1
		}
		res := val1 & uint64(logicOperand2())
		if bitfield.ExtractBit64(uint64(instr), 21) != 0 { // output complement
			res = ^res
		}
		c.SetGReg(r, int64(res))
		c.advance()
		return nil
	case opcode.OpOR:
		val1 := uint64(c.GReg(b))
		if bitfield.ExtractBit64(uint64(instr), 20) != 0 {
			val1 = ^val1
		}
		res := val1 | uint64(logicOperand2())
		if bitfield.ExtractBit64(uint64(instr), 21) != 0 {
			res = ^res
		}
		c.SetGReg(r, int64(res))
		c.advance()
		return nil
	case opcode.OpXOR:
		if bitfield.ExtractBit64(uint64(instr), 20) != 0 { // XOR has no input complement
			return trap.New(trap.IllegalInstr, fetchAdr, instr, 0, 0)
		}
		res := uint64(c.GReg(b)) ^ uint64(logicOperand2())
		if bitfield.ExtractBit64(uint64(instr), 21) != 0 {
			res = ^res
		}
		c.SetGReg(r, int64(res))
		c.advance()
		return nil
	case opcode.OpCMPA: // register operand, opt1 is purely the condition code
		c.SetGReg(r, boolToWord(opcode.EvalCond(opt1, c.GReg(b), c.GReg(a))))
		c.advance()
		return nil
	case opcode.OpCMPB: // 15-bit immediate operand, opt1 is purely the condition code
		c.SetGReg(r, boolToWord(opcode.EvalCond(opt1, c.GReg(b), opcode.Imm15(instr))))
		c.advance()
		return nil
	case opcode.OpBITOP:
		return c.execBitOp(instr, fetchAdr)
	case opcode.OpSHAOP:
		return c.execShaOp(instr, fetchAdr)
	case opcode.OpIMMOP:
		return c.execImmOp(instr, fetchAdr)
	case opcode.OpLDO:
		c.SetGReg(r, c.GReg(b)+opcode.ScaledImm13(instr))
		c.advance()
		return nil
	default:
		return trap.New(trap.IllegalInstr, fetchAdr, instr, 0, 0)
	}
}

func boolToWord(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func (c *CPU) execBitOp(instr uint32, fetchAdr uint64) *trap.Trap {
	r, b, a := opcode.RegR(instr), opcode.RegB(instr), opcode.RegA(instr)
	useShamtReg := bitfield.ExtractBit64(uint64(instr), 18) != 0
	switch opcode.Opt1(instr) {
	case 0: // EXTR (signed if bit 12)
		pos := int(opcode.FieldU(instr, 6, 6))
		length := int(opcode.FieldU(instr, 0, 6))
		if useShamtReg {
			pos = c.shamt()
		}
		var res uint64
		if bitfield.ExtractBit64(uint64(instr), 12) != 0 {
			res = uint64(bitfield.ExtractSignedField64(uint64(c.GReg(b)), pos, length+1))
		} else {
			res = bitfield.ExtractField64(uint64(c.GReg(b)), pos, length+1)
		}
		c.SetGReg(r, int64(res))
		c.advance()
		return nil
	case 1: // DEP (zero-fill if bit 12, else deposit into the existing Rr)
		pos := int(opcode.FieldU(instr, 6, 6))
		length := int(opcode.FieldU(instr, 0, 6))
		if useShamtReg {
			pos = c.shamt()
		}
		var val1 uint64
		if bitfield.ExtractBit64(uint64(instr), 12) == 0 {
			val1 = uint64(c.GReg(r))
		}
		var val2 uint64
		if bitfield.ExtractBit64(uint64(instr), 14) != 0 {
			val2 = opcode.FieldU(instr, 15, 4)
		} else {
			val2 = uint64(c.GReg(b))
		}
		res := bitfield.DepositField(val1, pos, length+1, val2)
		c.SetGReg(r, int64(res))
		c.advance()
		return nil
	case 3: // DSR
		shamt := int(opcode.FieldU(instr, 0, 6))
		if useShamtReg {
			shamt = c.shamt()
		}
		res := bitfield.ShiftRight128(uint64(c.GReg(b)), uint64(c.GReg(a)), shamt)
		c.SetGReg(r, int64(res))
		c.advance()
		return nil
	default:
		return trap.New(trap.IllegalInstr, fetchAdr, instr, 0, 0)
	}
}

func (c *CPU) execShaOp(instr uint32, fetchAdr uint64) *trap.Trap {
	r, b, a := opcode.RegR(instr), opcode.RegB(instr), opcode.RegA(instr)
	opt1 := opcode.Opt1(instr)
	shamt := opcode.Dw(instr) // bits 13..14, 2-bit shift amount
	var val2 int64
	if opt1 == 0 || opt1 == 2 {
		val2 = c.GReg(a)
	} else {
		val2 = opcode.Imm13(instr)
	}
	switch opt1 {
	case 0, 1: // shift-left
		if bitfield.WillShiftLeftOverflow(c.GReg(b), shamt) {
			return trap.New(trap.Overflow, fetchAdr, instr, uint64(c.GReg(b)), uint64(shamt))
		}
		res := c.GReg(b) << shamt
		if bitfield.WillAddOverflow(res, val2) {
			return trap.New(trap.Overflow, fetchAdr, instr, uint64(res), uint64(val2))
		}
		c.SetGReg(r, res+val2)
		c.advance()
		return nil
	case 2, 3: // shift-right: the shift cannot overflow, the add is checked
		res := c.GReg(b) >> shamt
		if bitfield.WillAddOverflow(res, val2) {
			return trap.New(trap.Overflow, fetchAdr, instr, uint64(res), uint64(val2))
		}
		c.SetGReg(r, res+val2)
		c.advance()
		return nil
	default:
		return trap.New(trap.IllegalInstr, fetchAdr, instr, 0, 0)
	}
}

func (c *CPU) execImmOp(instr uint32, fetchAdr uint64) *trap.Trap {
	r := opcode.RegR(instr)
	val := opcode.Imm20(instr)
	res := uint64(c.GReg(r))
	switch bitfield.ExtractField64(uint64(instr), 20, 2) {
	case 0: // ADDIL
		res = bitfield.AddAdrOfs32(res, int64(val))
	case 1: // LDIL.L
		res = val << 12
	case 2: // LDIL.M
		res = bitfield.DepositField(res, 32, 20, val)
	case 3: // LDIL.U
		res = bitfield.DepositField(res, 52, 12, val)
	}
	c.SetGReg(r, int64(res))
	c.advance()
	return nil
}

// ---- MEM group: ADD/SUB/AND/OR/XOR/CMP memory forms, LD/ST/LDR/STC ----

func (c *CPU) execMEM(instr uint32, fetchAdr uint64) *trap.Trap {
	switch opcode.OpCode(instr) {
	case opcode.OpADD:
		return c.execMemAdd(instr, fetchAdr)
	case opcode.OpSUB:
		return c.execMemSub(instr, fetchAdr)
	case opcode.OpAND:
		return c.execMemAnd(instr, fetchAdr)
	case opcode.OpOR:
		return c.execMemOr(instr, fetchAdr)
	case opcode.OpXOR:
		return c.execMemXor(instr, fetchAdr)
	case opcode.OpCMPA:
		return c.execMemCmpA(instr, fetchAdr)
	case opcode.OpCMPB:
		return c.execMemCmpB(instr, fetchAdr)
	case opcode.OpLD:
		return c.execLd(instr, fetchAdr)
	case opcode.OpST:
		return c.execSt(instr, fetchAdr)
	case opcode.OpLDR:
		return c.execLdr(instr, fetchAdr)
	case opcode.OpSTC:
		return c.execStc(instr, fetchAdr)
	default:
		return trap.New(trap.IllegalInstr, fetchAdr, instr, 0, 0)
	}
}

// memAluOperand2 is ADD/SUB's MEM-form second operand: opt1 0 selects Ra,
// opt1 1 selects a scaled-imm13 memory load off Rb.
func (c *CPU) memAluOperand2(instr uint32, fetchAdr uint64) (int64, *trap.Trap) {
	switch opcode.Opt1(instr) {
	case 0:
		return c.GReg(opcode.RegA(instr)), nil
	case 1:
		adr := uint64(c.GReg(opcode.RegB(instr))) + uint64(opcode.ScaledImm13(instr))
		val, t := c.dataRead(adr, opcode.DwLen(opcode.Dw(instr)), true)
		return val, t
	default:
		return 0, trap.New(trap.IllegalInstr, fetchAdr, instr, 0, 0)
	}
}

// execMemAdd/execMemSub accumulate into Rr itself (unlike the ALU forms,
// which read Rb), per the original's instrMemAddOp/instrMemSubOp.
func (c *CPU) execMemAdd(instr uint32, fetchAdr uint64) *trap.Trap {
	r := opcode.RegR(instr)
	val2, t := c.memAluOperand2(instr, fetchAdr)
	if t != nil {
		return t
	}
	val1 := c.GReg(r)
	if bitfield.WillAddOverflow(val1, val2) {
		return trap.New(trap.Overflow, fetchAdr, instr, uint64(val1), uint64(val2))
	}
	c.SetGReg(r, val1+val2)
	c.advance()
	return nil
}

func (c *CPU) execMemSub(instr uint32, fetchAdr uint64) *trap.Trap {
	r := opcode.RegR(instr)
	val2, t := c.memAluOperand2(instr, fetchAdr)
	if t != nil {
		return t
	}
	val1 := c.GReg(r)
	if bitfield.WillSubOverflow(val1, val2) {
		return trap.New(trap.Overflow, fetchAdr, instr, uint64(val1), uint64(val2))
	}
	c.SetGReg(r, val1-val2)
	c.advance()
	return nil
}

// memLogicOperand2 is AND/OR/XOR's MEM-form second operand: always a memory
// load, at the address effectiveAddr picks via bit 19 (scaled-imm13 or
// register-indexed).
func (c *CPU) memLogicOperand2(instr uint32) (int64, *trap.Trap) {
	adr := c.effectiveAddr(instr)
	return c.dataRead(adr, opcode.DwLen(opcode.Dw(instr)), true)
}

func (c *CPU) execMemAnd(instr uint32, fetchAdr uint64) *trap.Trap {
	val2, t := c.memLogicOperand2(instr)
	if t != nil {
		return t
	}
	r, b := opcode.RegR(instr), opcode.RegB(instr)
	val1 := uint64(c.GReg(b))
	if bitfield.ExtractBit64(uint64(instr), 20) != 0 {
		val1 = ^val1
	}
	res := val1 & uint64(val2)
	if bitfield.ExtractBit64(uint64(instr), 21) != 0 {
		res = ^res
	}
	c.SetGReg(r, int64(res))
	c.advance()
	return nil
}

func (c *CPU) execMemOr(instr uint32, fetchAdr uint64) *trap.Trap {
	val2, t := c.memLogicOperand2(instr)
	if t != nil {
		return t
	}
	r, b := opcode.RegR(instr), opcode.RegB(instr)
	val1 := uint64(c.GReg(b))
	if bitfield.ExtractBit64(uint64(instr), 20) != 0 {
		val1 = ^val1
	}
	res := val1 | uint64(val2)
	if bitfield.ExtractBit64(uint64(instr), 21) != 0 {
		res = ^res
	}
	c.SetGReg(r, int64(res))
	c.advance()
	return nil
}

func (c *CPU) execMemXor(instr uint32, fetchAdr uint64) *trap.Trap {
	if bitfield.ExtractBit64(uint64(instr), 20) != 0 { // XOR has no input complement
		return trap.New(trap.IllegalInstr, fetchAdr, instr, 0, 0)
	}
	val2, t := c.memLogicOperand2(instr)
	if t != nil {
		return t
	}
	r, b := opcode.RegR(instr), opcode.RegB(instr)
	res := uint64(c.GReg(b)) ^ uint64(val2)
	if bitfield.ExtractBit64(uint64(instr), 21) != 0 {
		res = ^res
	}
	c.SetGReg(r, int64(res))
	c.advance()
	return nil
}

// execMemCmpA compares Rb against a scaled-imm13 memory load off Rb; opt1
// is purely the condition code, matching the ALU form.
func (c *CPU) execMemCmpA(instr uint32, fetchAdr uint64) *trap.Trap {
	b := opcode.RegB(instr)
	adr := uint64(c.GReg(b)) + uint64(opcode.ScaledImm13(instr))
	val2, t := c.dataRead(adr, opcode.DwLen(opcode.Dw(instr)), true)
	if t != nil {
		return t
	}
	c.SetGReg(opcode.RegR(instr), boolToWord(opcode.EvalCond(opcode.Opt1(instr), c.GReg(b), val2)))
	c.advance()
	return nil
}

// execMemCmpB compares Rb against a register-indexed memory load (Rb+Ra<<dw).
func (c *CPU) execMemCmpB(instr uint32, fetchAdr uint64) *trap.Trap {
	b, a, dw := opcode.RegB(instr), opcode.RegA(instr), opcode.Dw(instr)
	adr := uint64(c.GReg(b) + (c.GReg(a) << dw))
	val2, t := c.dataRead(adr, opcode.DwLen(dw), true)
	if t != nil {
		return t
	}
	c.SetGReg(opcode.RegR(instr), boolToWord(opcode.EvalCond(opcode.Opt1(instr), c.GReg(b), val2)))
	c.advance()
	return nil
}

// effectiveAddr computes Rb plus the offset selected by bit 19: a
// register-indexed offset (Ra scaled by dw) when set, a scaled 13-bit
// immediate offset when clear. Checking bit 19 alone, rather than the full
// opt1 field, leaves bits 20/21 free for the MEM-form ALU family's
// complement flags.
func (c *CPU) effectiveAddr(instr uint32) uint64 {
	b := opcode.RegB(instr)
	dw := opcode.Dw(instr)
	var ofs int64
	if bitfield.ExtractBit64(uint64(instr), 19) != 0 {
		ofs = c.GReg(opcode.RegA(instr)) << dw
	} else {
		ofs = opcode.ScaledImm13(instr)
	}
	return uint64(c.GReg(b) + ofs)
}

func (c *CPU) execLd(instr uint32, fetchAdr uint64) *trap.Trap {
	opt1 := opcode.Opt1(instr)
	if opt1 != 0 && opt1 != 1 {
		return trap.New(trap.IllegalInstr, fetchAdr, instr, 0, 0)
	}
	adr := c.effectiveAddr(instr)
	length := opcode.DwLen(opcode.Dw(instr))
	val, t := c.dataRead(adr, length, true)
	if t != nil {
		return t
	}
	c.SetGReg(opcode.RegR(instr), val)
	c.advance()
	return nil
}

func (c *CPU) execSt(instr uint32, fetchAdr uint64) *trap.Trap {
	opt1 := opcode.Opt1(instr)
	if opt1 != 0 && opt1 != 1 {
		return trap.New(trap.IllegalInstr, fetchAdr, instr, 0, 0)
	}
	adr := c.effectiveAddr(instr)
	length := opcode.DwLen(opcode.Dw(instr))
	t := c.dataWrite(adr, uint64(c.GReg(opcode.RegR(instr))), length)
	if t != nil {
		return t
	}
	c.advance()
	return nil
}

func (c *CPU) execLdr(instr uint32, fetchAdr uint64) *trap.Trap {
	if opcode.Opt1(instr) != 0 {
		return trap.New(trap.IllegalInstr, fetchAdr, instr, 0, 0)
	}
	adr := c.effectiveAddr(instr)
	length := opcode.DwLen(opcode.Dw(instr))
	val, t := c.dataRead(adr, length, true)
	if t != nil {
		return t
	}
	c.SetGReg(opcode.RegR(instr), val)
	c.setReservation(adr)
	c.advance()
	return nil
}

func (c *CPU) execStc(instr uint32, fetchAdr uint64) *trap.Trap {
	if opcode.Opt1(instr) != 0 {
		return trap.New(trap.IllegalInstr, fetchAdr, instr, 0, 0)
	}
	adr := c.effectiveAddr(instr)
	length := opcode.DwLen(opcode.Dw(instr))
	ok := c.checkAndClearReservation(adr)
	r := opcode.RegR(instr)
	if !ok {
		c.SetGReg(r, 0)
		c.advance()
		return nil
	}
	if t := c.dataWrite(adr, uint64(c.GReg(r)), length); t != nil {
		return t
	}
	c.SetGReg(r, 1)
	c.advance()
	return nil
}

// ---- BR group: B/BE/BR/BV/BB/CBR/MBR/ABR ----

func (c *CPU) execBR(instr uint32, fetchAdr uint64) *trap.Trap {
	switch opcode.OpCode(instr) {
	case opcode.OpB:
		return c.execB(instr, fetchAdr)
	case opcode.OpBE:
		return c.execBe(instr, fetchAdr)
	case opcode.OpBR:
		return c.execBrReg(instr, fetchAdr)
	case opcode.OpBB:
		return c.execBb(instr, fetchAdr)
	case opcode.OpABR:
		return c.execAbr(instr, fetchAdr)
	case opcode.OpCBR:
		return c.execCbr(instr, fetchAdr)
	case opcode.OpMBR:
		return c.execMbr(instr, fetchAdr)
	default:
		return trap.New(trap.IllegalInstr, fetchAdr, instr, 0, 0)
	}
}

// execB implements B/B.G: an unconditional PC-relative branch. The gate
// bit (19) is decoded and round-trips through the disassembler but causes
// no privilege transition, per SPEC_FULL.md §12(a).
func (c *CPU) execB(instr uint32, fetchAdr uint64) *trap.Trap {
	target := bitfield.AddAdrOfs32(c.psr, opcode.Imm19(instr)<<2)
	if !instrAlignmentOK(IA(target)) {
		return trap.New(trap.InstrAlign, fetchAdr, instr, IA(target), 0)
	}
	c.psr = target
	return nil
}

// execBe is the branch-external form: target is an absolute IA taken from
// RegB plus a scaled offset, used for cross-region control transfer.
func (c *CPU) execBe(instr uint32, fetchAdr uint64) *trap.Trap {
	target := uint64(c.GReg(opcode.RegB(instr))) + uint64(opcode.ScaledImm13(instr))
	if !instrAlignmentOK(target) {
		return trap.New(trap.InstrAlign, fetchAdr, instr, target, 0)
	}
	c.psr = SetIA(c.psr, target)
	return nil
}

// execBrReg (BV) branches to the absolute address held in RegB.
func (c *CPU) execBrReg(instr uint32, fetchAdr uint64) *trap.Trap {
	target := uint64(c.GReg(opcode.RegB(instr)))
	if !instrAlignmentOK(target) {
		return trap.New(trap.InstrAlign, fetchAdr, instr, target, 0)
	}
	c.psr = SetIA(c.psr, target)
	return nil
}

func (c *CPU) execBb(instr uint32, fetchAdr uint64) *trap.Trap {
	if bitfield.ExtractBit64(uint64(instr), 21) != 0 {
		return trap.New(trap.IllegalInstr, fetchAdr, instr, 0, 0)
	}
	pos := int(opcode.FieldU(instr, 13, 6))
	if bitfield.ExtractBit64(uint64(instr), 18) != 0 {
		pos = c.shamt()
	}
	test := bitfield.ExtractBit64(uint64(instr), 19) != 0
	bit := bitfield.ExtractBit64(uint64(c.GReg(opcode.RegB(instr))), pos) != 0
	if bit == test {
		target := bitfield.AddAdrOfs32(c.psr, opcode.Imm13(instr)<<2)
		c.psr = target
		return nil
	}
	c.advance()
	return nil
}

func (c *CPU) execAbr(instr uint32, fetchAdr uint64) *trap.Trap {
	r, b, a := opcode.RegR(instr), opcode.RegB(instr), opcode.RegA(instr)
	sum := c.GReg(b) + c.GReg(a)
	c.SetGReg(r, sum)
	if opcode.EvalCond(opcode.Opt1(instr), sum, 0) {
		c.psr = bitfield.AddAdrOfs32(c.psr, opcode.Imm13(instr)<<2)
		return nil
	}
	c.advance()
	return nil
}

func (c *CPU) execCbr(instr uint32, fetchAdr uint64) *trap.Trap {
	b, a := opcode.RegB(instr), opcode.RegA(instr)
	if opcode.EvalCond(opcode.Opt1(instr), c.GReg(b), c.GReg(a)) {
		c.psr = bitfield.AddAdrOfs32(c.psr, opcode.Imm13(instr)<<2)
		return nil
	}
	c.advance()
	return nil
}

func (c *CPU) execMbr(instr uint32, fetchAdr uint64) *trap.Trap {
	r, b := opcode.RegR(instr), opcode.RegB(instr)
	val := c.GReg(b)
	c.SetGReg(r, val)
	if opcode.EvalCond(opcode.Opt1(instr), val, 0) {
		c.psr = bitfield.AddAdrOfs32(c.psr, opcode.Imm13(instr)<<2)
		return nil
	}
	c.advance()
	return nil
}

// ---- SYS group: MFCR/MTCR/MFIA, LPA, PRB, TLB, CA, MST, RFI, DIAG/TRAP, NOP ----

func (c *CPU) execSYS(instr uint32, fetchAdr uint64) *trap.Trap {
	switch opcode.OpCode(instr) {
	case opcode.OpMR:
		return c.execMr(instr, fetchAdr)
	case opcode.OpLPA:
		return c.execLpa(instr, fetchAdr)
	case opcode.OpPRB:
		return c.execPrb(instr, fetchAdr)
	case opcode.OpTLB:
		return c.execTlbOp(instr, fetchAdr)
	case opcode.OpCA:
		return c.execCaOp(instr, fetchAdr)
	case opcode.OpMST:
		return c.execMst(instr, fetchAdr)
	case opcode.OpRFI:
		return c.execRfi(instr, fetchAdr)
	case opcode.OpDIAG:
		return c.execDiag(instr, fetchAdr)
	case opcode.OpTRAP:
		return c.execTrap(instr, fetchAdr)
	case opcode.OpNOP:
		c.advance()
		return nil
	default:
		return trap.New(trap.IllegalInstr, fetchAdr, instr, 0, 0)
	}
}

func (c *CPU) execMr(instr uint32, fetchAdr uint64) *trap.Trap {
	if !c.privModeCheck() {
		return trap.New(trap.PrivOp, fetchAdr, instr, 0, 0)
	}
	r, b := opcode.RegR(instr), opcode.RegB(instr)
	switch opcode.Opt1(instr) {
	case 0: // MFCR
		c.SetGReg(r, int64(c.CReg(b)))
	case 1: // MTCR
		c.SetCReg(b, uint64(c.GReg(r)))
	case 4: // MFIA (full PSR)
		c.SetGReg(r, int64(c.psr))
	case 5: // MFIA (IA slice only)
		c.SetGReg(r, int64(IA(c.psr)))
	case 6: // MFIA: PSR bits 32..51
		c.SetGReg(r, int64(bitfield.ExtractField64(c.psr, 32, 20)))
	case 7: // MFIA: PSR bits 52..63
		c.SetGReg(r, int64(bitfield.ExtractField64(c.psr, 52, 12)))
	default:
		return trap.New(trap.IllegalInstr, fetchAdr, instr, 0, 0)
	}
	c.advance()
	return nil
}

func (c *CPU) execLpa(instr uint32, fetchAdr uint64) *trap.Trap {
	if !c.privModeCheck() {
		return trap.New(trap.PrivOp, fetchAdr, instr, 0, 0)
	}
	vAdr := uint64(c.GReg(opcode.RegB(instr)))
	entry, ok := c.dTLB.Lookup(tlb.VPNOf(vAdr))
	r := opcode.RegR(instr)
	if !ok {
		c.SetGReg(r, 0)
	} else {
		c.SetGReg(r, int64(entry.PAdr|tlb.PageOffsetOf(vAdr)))
	}
	c.advance()
	return nil
}

func (c *CPU) execPrb(instr uint32, fetchAdr uint64) *trap.Trap {
	vAdr := uint64(c.GReg(opcode.RegB(instr)))
	mode := opcode.Dw(instr)
	if mode == 3 {
		mode = int(c.GReg(opcode.RegA(instr)) & 0x3)
	}
	entry, ok := c.dTLB.Lookup(tlb.VPNOf(vAdr))
	r := opcode.RegR(instr)
	if !ok {
		c.SetGReg(r, 0)
		c.advance()
		return nil
	}
	if !X(c.psr) {
		c.SetGReg(r, 1)
		c.advance()
		return nil
	}
	allowed := false
	switch mode {
	case 0:
		allowed = entry.PageType == tlb.PageReadOnly || entry.PageType == tlb.PageReadWrite
	case 1:
		allowed = entry.PageType == tlb.PageReadWrite
	case 2:
		allowed = entry.PageType == tlb.PageExecute
	}
	c.SetGReg(r, boolToWord(allowed))
	c.advance()
	return nil
}

func (c *CPU) execTlbOp(instr uint32, fetchAdr uint64) *trap.Trap {
	if !c.privModeCheck() {
		return trap.New(trap.PrivOp, fetchAdr, instr, 0, 0)
	}
	r, b, a := opcode.RegR(instr), opcode.RegB(instr), opcode.RegA(instr)
	switch opcode.Opt1(instr) {
	case 0: // IITLB
		c.iTLB.Insert(entryFromRegs(c.GReg(b), c.GReg(a)))
	case 1: // IDTLB
		c.dTLB.Insert(entryFromRegs(c.GReg(b), c.GReg(a)))
	case 2: // PITLB
		c.iTLB.Purge(tlb.VPNOf(uint64(c.GReg(b))))
	case 3: // PDTLB
		c.dTLB.Purge(tlb.VPNOf(uint64(c.GReg(b))))
	default:
		return trap.New(trap.IllegalInstr, fetchAdr, instr, 0, 0)
	}
	c.SetGReg(r, 1)
	c.advance()
	return nil
}

// entryFromRegs builds a TLB entry from the IITLB/IDTLB info word: pAdr>>12
// at bits 12..35, acc at bits 40..43, lock bits at 56..57, user bits at
// 58..59 (per §4.4). The lock and page-size bits (36..39) have no matching
// field on Entry and are not extracted.
func entryFromRegs(vAdr, info int64) tlb.Entry {
	infoU := uint64(info)
	return tlb.Entry{
		VPN:       tlb.VPNOf(uint64(vAdr)),
		PAdr:      bitfield.ExtractField64(infoU, 12, 24) << 12,
		PageType:  tlb.PageType(bitfield.ExtractField64(infoU, 40, 4)),
		PrivLevel: int(bitfield.ExtractField64(infoU, 58, 2)),
	}
}

func (c *CPU) execCaOp(instr uint32, fetchAdr uint64) *trap.Trap {
	if !c.privModeCheck() {
		return trap.New(trap.PrivOp, fetchAdr, instr, 0, 0)
	}
	r, b := opcode.RegR(instr), opcode.RegB(instr)
	switch opcode.Opt1(instr) {
	case 0: // FICA
		c.iCache.FlushAll()
	case 1: // FDCA
		c.dCache.FlushAll()
	case 2: // PICA
		c.iCache.Purge(uint64(c.GReg(b)))
	case 3: // PDCA
		if c.dCache.Purge(uint64(c.GReg(b))) {
			c.clearReservationIfCovers(uint64(c.GReg(b)))
		}
	default:
		return trap.New(trap.IllegalInstr, fetchAdr, instr, 0, 0)
	}
	c.SetGReg(r, 1)
	c.advance()
	return nil
}

// execMst implements RSM/SSM against the status-mask bits of the PSR
// (M and X), per SPEC_FULL.md §12(d): opt1 selects exactly one of the two
// operations, so there is no overlap case to resolve.
func (c *CPU) execMst(instr uint32, fetchAdr uint64) *trap.Trap {
	if !c.privModeCheck() {
		return trap.New(trap.PrivOp, fetchAdr, instr, 0, 0)
	}
	mask := uint64(c.GReg(opcode.RegB(instr))) & 0xFF
	switch opcode.Opt1(instr) {
	case 0: // RSM
		if mask&0x1 != 0 {
			c.psr = SetX(c.psr, false)
		}
		if mask&0x2 != 0 {
			c.psr = SetM(c.psr, false)
		}
	case 1: // SSM
		if mask&0x1 != 0 {
			c.psr = SetX(c.psr, true)
		}
		if mask&0x2 != 0 {
			c.psr = SetM(c.psr, true)
		}
	default:
		return trap.New(trap.IllegalInstr, fetchAdr, instr, 0, 0)
	}
	c.advance()
	return nil
}

func (c *CPU) execRfi(instr uint32, fetchAdr uint64) *trap.Trap {
	if !c.privModeCheck() {
		return trap.New(trap.PrivOp, fetchAdr, instr, 0, 0)
	}
	if opcode.Opt1(instr) != 0 {
		return trap.New(trap.IllegalInstr, fetchAdr, instr, 0, 0)
	}
	c.SetGReg(opcode.RegR(instr), int64(c.psr)+4)
	c.psr = c.cReg[CtlIPSR]
	return nil
}

func (c *CPU) execDiag(instr uint32, fetchAdr uint64) *trap.Trap {
	opt1, dw := opcode.Opt1(instr), opcode.Dw(instr)
	diagOpt := opt1*4 + dw
	if c.diag == nil {
		return trap.New(trap.Diag, fetchAdr, instr, uint64(diagOpt), 0)
	}
	r, b, a := opcode.RegR(instr), opcode.RegB(instr), opcode.RegA(instr)
	c.SetGReg(r, c.diag(diagOpt, c.GReg(b), c.GReg(a)))
	c.advance()
	return nil
}

func (c *CPU) execTrap(instr uint32, fetchAdr uint64) *trap.Trap {
	opt1, dw := opcode.Opt1(instr), opcode.Dw(instr)
	n := opt1*4 + dw
	return trap.NewGeneric(n, fetchAdr, instr, uint64(c.GReg(opcode.RegB(instr))), uint64(c.GReg(opcode.RegA(instr))))
}
