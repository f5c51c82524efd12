/*
 * T64 - One-line recursive-descent assembler
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

// Package assembler implements the one-line instruction assembler from
// §4.3: a single source line in, one 32-bit instruction word out. The
// scanning style (skipSpace/getName/getNumber/peek-by-byte) follows the
// teacher's emu/assemble hand-rolled character scanner rather than a
// generated lexer.
package assembler

import (
	"strconv"
	"strings"

	"github.com/t64sim/t64/internal/asmerr"
	"github.com/t64sim/t64/internal/bitfield"
	"github.com/t64sim/t64/internal/opcode"
)

type opForm int

const (
	formALU opForm = iota // Rr,Rb,Ra|imm15 (ALU) or Rr,Ra(Rb)|imm13(Rb) (MEM)
	formMEM                // Rr, imm13(Rb) | Rr, Ra(Rb)
	formBR                 // target (PC-relative word count) [, Rb, Ra]
	formSYS                 // Rr, Rb[, Ra]
	formIMM                 // Rr, qualified-constant (ADDIL/LDIL)
	formBIT                 // EXTR/DEP/DSR: Rr,Rb,pos,len | Rr,Rb|imm4,pos,len | Rr,Rb,Ra,shamt
	formSHA                 // SHAOP: Rr,Rb,Ra|imm13, shift amount and direction from options
	formNone
)

type mnemonicDef struct {
	group, opCode int
	form          opForm
	defaultOpt1   int
	allowedOpt1   map[string]int // suffix -> opt1 value, when the mnemonic takes a condition/suffix
	complement    bool           // AND/OR/XOR: recognize .CI/.CO input/output-complement options
}

var mnemonics = buildMnemonicTable()

func buildMnemonicTable() map[string]mnemonicDef {
	m := map[string]mnemonicDef{
		"ADD":  {opcode.GrpALU, opcode.OpADD, formALU, 0, nil, false},
		"SUB":  {opcode.GrpALU, opcode.OpSUB, formALU, 0, nil, false},
		"AND":  {opcode.GrpALU, opcode.OpAND, formALU, 0, nil, true},
		"OR":   {opcode.GrpALU, opcode.OpOR, formALU, 0, nil, true},
		"XOR":  {opcode.GrpALU, opcode.OpXOR, formALU, 0, nil, true},
		"CMP":  {opcode.GrpALU, opcode.OpCMPA, formALU, 0, condSuffixes, false},
		"LDO":  {opcode.GrpALU, opcode.OpLDO, formALU, 0, nil, false},
		"EXTR": {opcode.GrpALU, opcode.OpBITOP, formBIT, 0, nil, false},
		"DEP":  {opcode.GrpALU, opcode.OpBITOP, formBIT, 1, nil, false},
		"DSR":  {opcode.GrpALU, opcode.OpBITOP, formBIT, 3, nil, false},
		"SHAOP": {opcode.GrpALU, opcode.OpSHAOP, formSHA, 0, nil, false},
		"ADDIL": {opcode.GrpALU, opcode.OpIMMOP, formIMM, 0, nil, false},
		"LDIL":  {opcode.GrpALU, opcode.OpIMMOP, formIMM, 1, map[string]int{"L": 1, "M": 2, "U": 3}, false},
		"LD":   {opcode.GrpMEM, opcode.OpLD, formMEM, 0, nil, false},
		"ST":   {opcode.GrpMEM, opcode.OpST, formMEM, 0, nil, false},
		"LDR":  {opcode.GrpMEM, opcode.OpLDR, formMEM, 0, nil, false},
		"STC":  {opcode.GrpMEM, opcode.OpSTC, formMEM, 0, nil, false},
		"B":    {opcode.GrpBR, opcode.OpB, formBR, 0, nil, false},
		"BE":   {opcode.GrpBR, opcode.OpBE, formBR, 0, nil, false},
		"BV":   {opcode.GrpBR, opcode.OpBR, formBR, 0, nil, false},
		"BB":   {opcode.GrpBR, opcode.OpBB, formBR, 0, nil, false},
		"ABR":  {opcode.GrpBR, opcode.OpABR, formBR, 0, condSuffixes, false},
		"CBR":  {opcode.GrpBR, opcode.OpCBR, formBR, 0, condSuffixes, false},
		"MBR":  {opcode.GrpBR, opcode.OpMBR, formBR, 0, condSuffixes, false},
		"MFCR": {opcode.GrpSYS, opcode.OpMR, formSYS, 0, nil, false},
		"MTCR": {opcode.GrpSYS, opcode.OpMR, formSYS, 1, nil, false},
		"MFIA": {opcode.GrpSYS, opcode.OpMR, formSYS, 4, map[string]int{"IA": 5, "M": 6, "U": 7}, false},
		"LPA":  {opcode.GrpSYS, opcode.OpLPA, formSYS, 0, nil, false},
		"PRB":  {opcode.GrpSYS, opcode.OpPRB, formSYS, 0, nil, false},
		"IITLB": {opcode.GrpSYS, opcode.OpTLB, formSYS, 0, nil, false},
		"IDTLB": {opcode.GrpSYS, opcode.OpTLB, formSYS, 1, nil, false},
		"PITLB": {opcode.GrpSYS, opcode.OpTLB, formSYS, 2, nil, false},
		"PDTLB": {opcode.GrpSYS, opcode.OpTLB, formSYS, 3, nil, false},
		"FICA":  {opcode.GrpSYS, opcode.OpCA, formSYS, 0, nil, false},
		"FDCA":  {opcode.GrpSYS, opcode.OpCA, formSYS, 1, nil, false},
		"PICA":  {opcode.GrpSYS, opcode.OpCA, formSYS, 2, nil, false},
		"PDCA":  {opcode.GrpSYS, opcode.OpCA, formSYS, 3, nil, false},
		"RSM":   {opcode.GrpSYS, opcode.OpMST, formSYS, 0, nil, false},
		"SSM":   {opcode.GrpSYS, opcode.OpMST, formSYS, 1, nil, false},
		"RFI":   {opcode.GrpSYS, opcode.OpRFI, formSYS, 0, nil, false},
		"DIAG":  {opcode.GrpSYS, opcode.OpDIAG, formSYS, 0, nil, false},
		"TRAP":  {opcode.GrpSYS, opcode.OpTRAP, formSYS, 0, nil, false},
		"NOP":   {opcode.GrpSYS, opcode.OpNOP, formNone, 0, nil, false},
	}
	return m
}

var condSuffixes = map[string]int{
	"EQ": opcode.CondEQ, "LT": opcode.CondLT, "GT": opcode.CondGT, "EV": opcode.CondEV,
	"NE": opcode.CondNE, "GE": opcode.CondGE, "LE": opcode.CondLE, "OD": opcode.CondOD,
}

// line is the scanner state, styled directly on the teacher's
// skipSpace/getName/getNumber helpers: a string plus a byte cursor.
type line struct {
	text string
	pos  int
}

func (l *line) eof() bool { return l.pos >= len(l.text) }

func (l *line) peek() byte {
	if l.eof() {
		return 0
	}
	return l.text[l.pos]
}

func (l *line) skipSpace() {
	for !l.eof() && (l.peek() == ' ' || l.peek() == '\t') {
		l.pos++
	}
}

func isNameChar(b byte) bool {
	return b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_' || b == '.'
}

func (l *line) getName() string {
	start := l.pos
	for !l.eof() && isNameChar(l.peek()) {
		l.pos++
	}
	return l.text[start:l.pos]
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// Assemble parses one source line into a 32-bit instruction word.
func Assemble(src string) (uint32, error) {
	l := &line{text: src}
	l.skipSpace()
	if l.eof() {
		return 0, asmerr.New(asmerr.ExpectedToken, l.pos, "empty line")
	}
	nameStart := l.pos
	full := l.getName()
	if full == "" {
		return 0, asmerr.New(asmerr.InvalidChar, l.pos, string(l.peek()))
	}
	parts := strings.Split(full, ".")
	mnemonic := strings.ToUpper(parts[0])
	opts := parts[1:]

	def, ok := mnemonics[mnemonic]
	if !ok {
		return 0, asmerr.New(asmerr.UnknownMnemonic, nameStart, mnemonic)
	}

	// EXTR/DEP/DSR and SHAOP each have their own option vocabulary (signed,
	// zero-fill, shift direction/amount) that doesn't fit the dw/gate/cond
	// loop below, so they parse opts themselves.
	l.skipSpace()
	switch def.form {
	case formBIT:
		return assembleBIT(l, def, opts)
	case formSHA:
		return assembleSHA(l, def, opts)
	}

	opt1 := def.defaultOpt1
	dw := opcode.DwD
	gate := false
	inputComplement, outputComplement := false, false
	seenCond, seenDw := false, false
	for _, opt := range opts {
		u := strings.ToUpper(opt)
		if v, ok := dwByName(u); ok {
			if seenDw {
				return 0, asmerr.New(asmerr.DupOption, l.pos, opt)
			}
			dw = v
			seenDw = true
			continue
		}
		if u == "G" {
			gate = true
			continue
		}
		if def.complement && u == "CI" {
			inputComplement = true
			continue
		}
		if def.complement && u == "CO" {
			outputComplement = true
			continue
		}
		if def.allowedOpt1 != nil {
			if v, ok := def.allowedOpt1[u]; ok {
				if seenCond {
					return 0, asmerr.New(asmerr.DupOption, l.pos, opt)
				}
				opt1 = v
				seenCond = true
				continue
			}
		}
		return 0, asmerr.New(asmerr.InvalidOption, l.pos, opt)
	}

	l.skipSpace()

	switch def.form {
	case formNone:
		return opcode.Build(def.group, def.opCode, opt1, 0, 0, 0, dw, 0, 0), nil
	case formALU:
		return assembleALU(l, def, opt1, dw, inputComplement, outputComplement)
	case formMEM:
		return assembleMEM(l, def, dw)
	case formBR:
		return assembleBR(l, def, opt1, gate)
	case formSYS:
		return assembleSYS(l, def, opt1)
	case formIMM:
		return assembleIMM(l, def, opt1)
	default:
		return 0, asmerr.New(asmerr.InvalidExpr, l.pos, "unhandled form")
	}
}

func dwByName(s string) (int, bool) { return opcode.DwByName(s) }

func (l *line) expect(b byte) error {
	l.skipSpace()
	if l.eof() || l.peek() != b {
		return asmerr.Newf(asmerr.ExpectedToken, l.pos, "expected %q", b)
	}
	l.pos++
	return nil
}

func (l *line) parseReg(prefix byte) (int, error) {
	l.skipSpace()
	if l.eof() || (l.peek() != prefix && l.peek() != prefix+32) {
		return 0, asmerr.Newf(asmerr.UnknownRegister, l.pos, "expected register prefix %q", prefix)
	}
	l.pos++
	start := l.pos
	for !l.eof() && isDigit(l.peek()) {
		l.pos++
	}
	if start == l.pos {
		return 0, asmerr.New(asmerr.UnknownRegister, l.pos, "missing register number")
	}
	n, _ := strconv.Atoi(l.text[start:l.pos])
	if n < 0 || n > 15 {
		return 0, asmerr.Newf(asmerr.UnknownRegister, start, "register number %d out of range", n)
	}
	return n, nil
}

// qualifier applies an L%/R%/M%/U% mask to an already-evaluated constant,
// per §4.3's exact bitmask formulas.
func qualifier(q byte, v int64) uint64 {
	u := uint64(v)
	switch q {
	case 'L':
		return (u & 0xFFFFF000) >> 12
	case 'R':
		return u & 0xFFF
	case 'M':
		return (u & 0x000FFFFF00000000) >> 32
	case 'U':
		return (u & 0xFFF0000000000000) >> 52
	default:
		return u
	}
}

// expr is the LL(1) expression grammar's entry point:
// term ((+|-|'|'|'^') term)*.
func (l *line) expr() (int64, error) {
	v, err := l.term()
	if err != nil {
		return 0, err
	}
	for {
		l.skipSpace()
		if l.eof() {
			return v, nil
		}
		switch l.peek() {
		case '+':
			l.pos++
			t, err := l.term()
			if err != nil {
				return 0, err
			}
			v += t
		case '-':
			l.pos++
			t, err := l.term()
			if err != nil {
				return 0, err
			}
			v -= t
		case '|':
			l.pos++
			t, err := l.term()
			if err != nil {
				return 0, err
			}
			v |= t
		case '^':
			l.pos++
			t, err := l.term()
			if err != nil {
				return 0, err
			}
			v ^= t
		default:
			return v, nil
		}
	}
}

// term: factor ((*|/|%|&) factor)*.
func (l *line) term() (int64, error) {
	v, err := l.factor()
	if err != nil {
		return 0, err
	}
	for {
		l.skipSpace()
		if l.eof() {
			return v, nil
		}
		switch l.peek() {
		case '*':
			l.pos++
			f, err := l.factor()
			if err != nil {
				return 0, err
			}
			v *= f
		case '/':
			l.pos++
			f, err := l.factor()
			if err != nil {
				return 0, err
			}
			if f == 0 {
				return 0, asmerr.New(asmerr.InvalidExpr, l.pos, "division by zero")
			}
			v /= f
		case '%':
			l.pos++
			f, err := l.factor()
			if err != nil {
				return 0, err
			}
			if f == 0 {
				return 0, asmerr.New(asmerr.InvalidExpr, l.pos, "division by zero")
			}
			v %= f
		case '&':
			l.pos++
			f, err := l.factor()
			if err != nil {
				return 0, err
			}
			v &= f
		default:
			return v, nil
		}
	}
}

func (l *line) factor() (int64, error) {
	l.skipSpace()
	if l.eof() {
		return 0, asmerr.New(asmerr.InvalidExpr, l.pos, "expected expression")
	}
	if l.peek() == '-' {
		l.pos++
		v, err := l.factor()
		return -v, err
	}
	if isDigit(l.peek()) {
		return l.number()
	}
	return 0, asmerr.New(asmerr.InvalidNumber, l.pos, "expected number")
}

func (l *line) number() (int64, error) {
	start := l.pos
	base := 10
	if l.peek() == '0' && l.pos+1 < len(l.text) && (l.text[l.pos+1] == 'x' || l.text[l.pos+1] == 'X') {
		l.pos += 2
		base = 16
		start = l.pos
	}
	for !l.eof() && isHexOrDigit(l.peek(), base) {
		l.pos++
	}
	if start == l.pos {
		return 0, asmerr.New(asmerr.InvalidNumber, l.pos, "empty numeric literal")
	}
	v, err := strconv.ParseInt(l.text[start:l.pos], base, 64)
	if err != nil {
		return 0, asmerr.New(asmerr.NumericOverflow, start, err.Error())
	}
	return v, nil
}

func isHexOrDigit(b byte, base int) bool {
	if base == 16 {
		return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
	}
	return isDigit(b)
}

// assembleALU handles ADD/SUB/AND/OR/XOR/CMP, which share one mnemonic
// across the ALU and MEM groups. "Rr,Rb,Ra" or "Rr,Rb,imm" assembles the
// ALU form (Rb followed by a second comma). "Rr,Ra(Rb)" or "Rr,imm(Rb)"
// assembles the MEM form, a memory operand replacing the third operand;
// ADD/SUB additionally accept a bare "Rr,Ra" (no parens), their MEM form's
// pure-register sub-case. CMP's opt1 is always the condition code: the
// register operand selects OpCMPA, the immediate operand OpCMPB, in both
// groups.
func assembleALU(l *line, def mnemonicDef, opt1, dw int, inputComplement, outputComplement bool) (uint32, error) {
	r, err := l.parseReg('R')
	if err != nil {
		return 0, err
	}
	if err := l.expect(','); err != nil {
		return 0, err
	}
	l.skipSpace()

	var regOperand int
	var immOperand int64
	isReg := false
	if !l.eof() && (l.peek() == 'R' || l.peek() == 'r') {
		regOperand, err = l.parseReg('R')
		if err != nil {
			return 0, err
		}
		isReg = true
	} else {
		immOperand, err = l.expr()
		if err != nil {
			return 0, err
		}
	}

	l.skipSpace()
	switch {
	case !l.eof() && l.peek() == '(':
		l.pos++
		b, err := l.parseReg('R')
		if err != nil {
			return 0, err
		}
		if err := l.expect(')'); err != nil {
			return 0, err
		}
		return assembleMemALU(l, def, opt1, r, b, regOperand, immOperand, isReg, dw, inputComplement, outputComplement)
	case !l.eof() && l.peek() == ',':
		if !isReg {
			return 0, asmerr.New(asmerr.UnknownRegister, l.pos, "expected register operand")
		}
		l.pos++
		return assembleAluTail(l, def, regOperand, r, opt1, dw, inputComplement, outputComplement)
	default:
		if isReg && (def.opCode == opcode.OpADD || def.opCode == opcode.OpSUB) {
			return opcode.Build(opcode.GrpMEM, def.opCode, 0, r, 0, regOperand, dw, 0, 0), nil
		}
		return 0, asmerr.New(asmerr.ExpectedToken, l.pos, "incomplete operand list")
	}
}

// complementOpt1 packs AND/OR/XOR's three independent opt1 bits: bit0
// selects register-vs-immediate (ALU form) or scaled-imm-vs-indexed
// addressing (MEM form), bit1 is the input complement, bit2 the output
// complement.
func complementOpt1(bit0, inputComplement, outputComplement bool) int {
	v := 0
	if bit0 {
		v |= 1
	}
	if inputComplement {
		v |= 2
	}
	if outputComplement {
		v |= 4
	}
	return v
}

// assembleAluTail parses the ALU form's third operand once Rr and Rb are
// known: a register (Ra) or an immediate (15 bits for AND/OR/XOR/CMPB, 13
// for ADD/SUB).
func assembleAluTail(l *line, def mnemonicDef, b, r, opt1, dw int, inputComplement, outputComplement bool) (uint32, error) {
	l.skipSpace()
	if def.opCode == opcode.OpXOR && inputComplement {
		return 0, asmerr.New(asmerr.InvalidOption, l.pos, "XOR forbids an input complement")
	}
	if !l.eof() && (l.peek() == 'R' || l.peek() == 'r') {
		a, err := l.parseReg('R')
		if err != nil {
			return 0, err
		}
		switch {
		case def.complement:
			return opcode.Build(opcode.GrpALU, def.opCode, complementOpt1(true, inputComplement, outputComplement), r, b, a, dw, 0, 0), nil
		case def.opCode == opcode.OpCMPA:
			return opcode.Build(opcode.GrpALU, opcode.OpCMPA, opt1, r, b, a, dw, 0, 0), nil
		default: // ADD, SUB
			return opcode.Build(opcode.GrpALU, def.opCode, 0, r, b, a, dw, 0, 0), nil
		}
	}
	imm, err := l.expr()
	if err != nil {
		return 0, err
	}
	switch {
	case def.complement:
		if imm < -16384 || imm > 16383 {
			return 0, asmerr.Newf(asmerr.ImmRange, l.pos, "immediate %d out of 15-bit signed range", imm)
		}
		return opcode.Build(opcode.GrpALU, def.opCode, complementOpt1(false, inputComplement, outputComplement), r, b, 0, dw, uint64(imm)&0x7FFF, 15), nil
	case def.opCode == opcode.OpCMPA:
		if imm < -16384 || imm > 16383 {
			return 0, asmerr.Newf(asmerr.ImmRange, l.pos, "immediate %d out of 15-bit signed range", imm)
		}
		return opcode.Build(opcode.GrpALU, opcode.OpCMPB, opt1, r, b, 0, dw, uint64(imm)&0x7FFF, 15), nil
	default: // ADD, SUB
		if imm < -4096 || imm > 4095 {
			return 0, asmerr.Newf(asmerr.ImmRange, l.pos, "immediate %d out of 13-bit signed range", imm)
		}
		return opcode.Build(opcode.GrpALU, def.opCode, 1, r, b, 0, dw, uint64(imm)&0x1FFF, 13), nil
	}
}

// scaleImm13 turns a byte offset into a dw-scaled 13-bit signed field,
// matching assembleMEM's existing scaled-immediate check.
func scaleImm13(l *line, ofs int64, dw int) (int64, error) {
	length := opcode.DwLen(dw)
	if ofs%int64(length) != 0 {
		return 0, asmerr.Newf(asmerr.ImmRange, l.pos, "offset %d not a multiple of dw length %d", ofs, length)
	}
	scaled := ofs / int64(length)
	if scaled < -4096 || scaled > 4095 {
		return 0, asmerr.Newf(asmerr.ImmRange, l.pos, "scaled offset %d out of 13-bit signed range", scaled)
	}
	return scaled, nil
}

// assembleMemALU builds the MEM-group form once "Rr,<operand>(Rb)" has been
// parsed: ADD/SUB take a scaled-imm13 memory load (instrMemAddOp's case 1);
// AND/OR/XOR always read memory, bit19 choosing scaled-imm13 vs indexed
// addressing; CMP's imm(Rb) form is CMPA (scaled-imm13), its Ra(Rb) form is
// CMPB (indexed), opt1 carrying the condition code in both. LDO's imm(Rb)
// form is the ALU-group LDO word with the same scaled-imm13 offset.
func assembleMemALU(l *line, def mnemonicDef, opt1, r, b, regOperand int, immOperand int64, isReg bool, dw int, inputComplement, outputComplement bool) (uint32, error) {
	switch def.opCode {
	case opcode.OpLDO:
		if isReg {
			return 0, asmerr.New(asmerr.InvalidExpr, l.pos, "LDO takes a scaled immediate offset, not a register")
		}
		scaled, err := scaleImm13(l, immOperand, dw)
		if err != nil {
			return 0, err
		}
		return opcode.Build(opcode.GrpALU, opcode.OpLDO, 0, r, b, 0, dw, uint64(scaled)&0x1FFF, 13), nil
	case opcode.OpADD, opcode.OpSUB:
		if isReg {
			return 0, asmerr.New(asmerr.InvalidExpr, l.pos, "ADD/SUB's memory form takes a scaled immediate, not a register")
		}
		scaled, err := scaleImm13(l, immOperand, dw)
		if err != nil {
			return 0, err
		}
		return opcode.Build(opcode.GrpMEM, def.opCode, 1, r, b, 0, dw, uint64(scaled)&0x1FFF, 13), nil
	case opcode.OpCMPA:
		if isReg {
			return opcode.Build(opcode.GrpMEM, opcode.OpCMPB, opt1, r, b, regOperand, dw, 0, 0), nil
		}
		scaled, err := scaleImm13(l, immOperand, dw)
		if err != nil {
			return 0, err
		}
		return opcode.Build(opcode.GrpMEM, opcode.OpCMPA, opt1, r, b, 0, dw, uint64(scaled)&0x1FFF, 13), nil
	default: // AND, OR, XOR
		if def.opCode == opcode.OpXOR && inputComplement {
			return 0, asmerr.New(asmerr.InvalidOption, l.pos, "XOR forbids an input complement")
		}
		if isReg {
			opt1 := complementOpt1(true, inputComplement, outputComplement)
			return opcode.Build(opcode.GrpMEM, def.opCode, opt1, r, b, regOperand, dw, 0, 0), nil
		}
		scaled, err := scaleImm13(l, immOperand, dw)
		if err != nil {
			return 0, err
		}
		opt1 := complementOpt1(false, inputComplement, outputComplement)
		return opcode.Build(opcode.GrpMEM, def.opCode, opt1, r, b, 0, dw, uint64(scaled)&0x1FFF, 13), nil
	}
}

func setField(w uint32, pos, length int, val uint64) uint32 {
	return uint32(bitfield.DepositField(uint64(w), pos, length, val))
}

// assembleBIT handles EXTR ("Rr,Rb,pos,len"), DEP ("Rr,Rb|imm4,pos,len"),
// and DSR ("Rr,Rb,Ra,shamt"), selected by def.defaultOpt1.
func assembleBIT(l *line, def mnemonicDef, opts []string) (uint32, error) {
	signed, zeroFill := false, false
	for _, opt := range opts {
		switch strings.ToUpper(opt) {
		case "S":
			signed = true
		case "Z":
			zeroFill = true
		default:
			return 0, asmerr.New(asmerr.InvalidOption, l.pos, opt)
		}
	}

	parsePosLen := func() (int64, int64, error) {
		pos, err := l.expr()
		if err != nil {
			return 0, 0, err
		}
		if err := l.expect(','); err != nil {
			return 0, 0, err
		}
		length, err := l.expr()
		if err != nil {
			return 0, 0, err
		}
		if pos < 0 || pos > 63 {
			return 0, 0, asmerr.New(asmerr.ImmRange, l.pos, "position out of range")
		}
		if length < 1 || length > 64 {
			return 0, 0, asmerr.New(asmerr.ImmRange, l.pos, "length out of range")
		}
		return pos, length, nil
	}

	switch def.defaultOpt1 {
	case 0: // EXTR
		r, err := l.parseReg('R')
		if err != nil {
			return 0, err
		}
		if err := l.expect(','); err != nil {
			return 0, err
		}
		b, err := l.parseReg('R')
		if err != nil {
			return 0, err
		}
		if err := l.expect(','); err != nil {
			return 0, err
		}
		pos, length, err := parsePosLen()
		if err != nil {
			return 0, err
		}
		w := opcode.Build(opcode.GrpALU, opcode.OpBITOP, 0, r, b, 0, 0, 0, 0)
		w = setField(w, 6, 6, uint64(pos))
		w = setField(w, 0, 6, uint64(length-1))
		if signed {
			w = setField(w, 12, 1, 1)
		}
		return w, nil
	case 1: // DEP
		r, err := l.parseReg('R')
		if err != nil {
			return 0, err
		}
		if err := l.expect(','); err != nil {
			return 0, err
		}
		l.skipSpace()
		var val2 int64
		literal := false
		if !l.eof() && (l.peek() == 'R' || l.peek() == 'r') {
			b, err := l.parseReg('R')
			if err != nil {
				return 0, err
			}
			val2 = int64(b)
		} else {
			literal = true
			val2, err = l.expr()
			if err != nil {
				return 0, err
			}
			if val2 < 0 || val2 > 15 {
				return 0, asmerr.New(asmerr.ImmRange, l.pos, "DEP literal operand out of 4-bit range")
			}
		}
		if err := l.expect(','); err != nil {
			return 0, err
		}
		pos, length, err := parsePosLen()
		if err != nil {
			return 0, err
		}
		w := opcode.Build(opcode.GrpALU, opcode.OpBITOP, 1, r, int(val2), 0, 0, 0, 0)
		w = setField(w, 6, 6, uint64(pos))
		w = setField(w, 0, 6, uint64(length-1))
		if zeroFill {
			w = setField(w, 12, 1, 1)
		}
		if literal {
			w = setField(w, 14, 1, 1)
		}
		return w, nil
	default: // DSR
		r, err := l.parseReg('R')
		if err != nil {
			return 0, err
		}
		if err := l.expect(','); err != nil {
			return 0, err
		}
		b, err := l.parseReg('R')
		if err != nil {
			return 0, err
		}
		if err := l.expect(','); err != nil {
			return 0, err
		}
		a, err := l.parseReg('R')
		if err != nil {
			return 0, err
		}
		if err := l.expect(','); err != nil {
			return 0, err
		}
		shamt, err := l.expr()
		if err != nil {
			return 0, err
		}
		if shamt < 0 || shamt > 63 {
			return 0, asmerr.New(asmerr.ImmRange, l.pos, "shift amount out of range")
		}
		w := opcode.Build(opcode.GrpALU, opcode.OpBITOP, 3, r, b, a, 0, 0, 0)
		w = setField(w, 0, 6, uint64(shamt))
		return w, nil
	}
}

// assembleSHA handles SHAOP: a .1/.2/.3 shift amount and an optional .R for
// shift-right (default shift-left), then "Rr,Rb,Ra" or "Rr,Rb,imm13".
func assembleSHA(l *line, def mnemonicDef, opts []string) (uint32, error) {
	right := false
	shamt := -1
	for _, opt := range opts {
		u := strings.ToUpper(opt)
		switch u {
		case "L":
			right = false
		case "R":
			right = true
		case "1", "2", "3":
			n, _ := strconv.Atoi(u)
			shamt = n
		default:
			return 0, asmerr.New(asmerr.InvalidOption, l.pos, opt)
		}
	}
	if shamt < 0 {
		return 0, asmerr.New(asmerr.InvalidOption, l.pos, "SHAOP requires a .1/.2/.3 shift amount")
	}
	r, err := l.parseReg('R')
	if err != nil {
		return 0, err
	}
	if err := l.expect(','); err != nil {
		return 0, err
	}
	b, err := l.parseReg('R')
	if err != nil {
		return 0, err
	}
	if err := l.expect(','); err != nil {
		return 0, err
	}
	l.skipSpace()
	opt1 := 0
	if right {
		opt1 |= 2
	}
	if !l.eof() && (l.peek() == 'R' || l.peek() == 'r') {
		a, err := l.parseReg('R')
		if err != nil {
			return 0, err
		}
		return opcode.Build(def.group, def.opCode, opt1, r, b, a, shamt, 0, 0), nil
	}
	opt1 |= 1
	imm, err := l.expr()
	if err != nil {
		return 0, err
	}
	if imm < -4096 || imm > 4095 {
		return 0, asmerr.Newf(asmerr.ImmRange, l.pos, "immediate %d out of 13-bit signed range", imm)
	}
	return opcode.Build(def.group, def.opCode, opt1, r, b, 0, shamt, uint64(imm)&0x1FFF, 13), nil
}

func assembleMEM(l *line, def mnemonicDef, dw int) (uint32, error) {
	r, err := l.parseReg('R')
	if err != nil {
		return 0, err
	}
	if err := l.expect(','); err != nil {
		return 0, err
	}
	l.skipSpace()
	length := opcode.DwLen(dw)
	if !l.eof() && (l.peek() == 'R' || l.peek() == 'r') {
		a, err := l.parseReg('R')
		if err != nil {
			return 0, err
		}
		if err := l.expect('('); err != nil {
			return 0, err
		}
		b, err := l.parseReg('R')
		if err != nil {
			return 0, err
		}
		if err := l.expect(')'); err != nil {
			return 0, err
		}
		return opcode.Build(def.group, def.opCode, 1, r, b, a, dw, 0, 0), nil
	}
	ofs, err := l.expr()
	if err != nil {
		return 0, err
	}
	if ofs%int64(length) != 0 {
		return 0, asmerr.Newf(asmerr.ImmRange, l.pos, "offset %d not a multiple of dw length %d", ofs, length)
	}
	scaled := ofs / int64(length)
	if scaled < -4096 || scaled > 4095 {
		return 0, asmerr.Newf(asmerr.ImmRange, l.pos, "scaled offset %d out of 13-bit signed range", scaled)
	}
	if err := l.expect('('); err != nil {
		return 0, err
	}
	b, err := l.parseReg('R')
	if err != nil {
		return 0, err
	}
	if err := l.expect(')'); err != nil {
		return 0, err
	}
	return opcode.Build(def.group, def.opCode, 0, r, b, 0, dw, uint64(scaled)&0x1FFF, 13), nil
}

func assembleBR(l *line, def mnemonicDef, opt1 int, gate bool) (uint32, error) {
	l.skipSpace()
	switch def.opCode {
	case opcode.OpBR, opcode.OpBE:
		b, err := l.parseReg('R')
		if err != nil {
			return 0, err
		}
		return opcode.Build(def.group, def.opCode, opt1, 0, b, 0, 0, 0, 0), nil
	case opcode.OpB:
		target, err := l.expr()
		if err != nil {
			return 0, err
		}
		if target%4 != 0 {
			return 0, asmerr.New(asmerr.ImmRange, l.pos, "branch target must be 4-aligned")
		}
		scaled := target / 4
		if scaled < -(1<<18) || scaled > (1<<18)-1 {
			return 0, asmerr.New(asmerr.ImmRange, l.pos, "branch target out of range")
		}
		w := opcode.Build(def.group, def.opCode, 0, 0, 0, 0, 0, uint64(scaled)&0x7FFFF, 19)
		if gate {
			w |= 1 << 19
		}
		return w, nil
	default: // BB, ABR, CBR, MBR
		r, err := l.parseReg('R')
		if err != nil {
			return 0, err
		}
		if err := l.expect(','); err != nil {
			return 0, err
		}
		a, err := l.parseReg('R')
		if err != nil {
			return 0, err
		}
		if err := l.expect(','); err != nil {
			return 0, err
		}
		target, err := l.expr()
		if err != nil {
			return 0, err
		}
		if target%4 != 0 {
			return 0, asmerr.New(asmerr.ImmRange, l.pos, "branch target must be 4-aligned")
		}
		scaled := target / 4
		if scaled < -4096 || scaled > 4095 {
			return 0, asmerr.New(asmerr.ImmRange, l.pos, "branch target out of 13-bit range")
		}
		return opcode.Build(def.group, def.opCode, opt1, r, r, a, 0, uint64(scaled)&0x1FFF, 13), nil
	}
}

func assembleSYS(l *line, def mnemonicDef, opt1 int) (uint32, error) {
	switch def.opCode {
	case opcode.OpRFI, opcode.OpNOP:
		l.skipSpace()
		if l.eof() {
			return opcode.Build(def.group, def.opCode, opt1, 0, 0, 0, 0, 0, 0), nil
		}
		r, err := l.parseReg('R')
		if err != nil {
			return 0, err
		}
		return opcode.Build(def.group, def.opCode, opt1, r, 0, 0, 0, 0, 0), nil
	case opcode.OpDIAG, opcode.OpTRAP:
		r, err := l.parseReg('R')
		if err != nil {
			return 0, err
		}
		if err := l.expect(','); err != nil {
			return 0, err
		}
		b, err := l.parseReg('R')
		if err != nil {
			return 0, err
		}
		if err := l.expect(','); err != nil {
			return 0, err
		}
		a, err := l.parseReg('R')
		if err != nil {
			return 0, err
		}
		return opcode.Build(def.group, def.opCode, opt1, r, b, a, 0, 0, 0), nil
	default:
		if def.opCode == opcode.OpMR && opt1 == 1 {
			// MTCR Cn,Rr: the control register comes first and goes in RegB.
			b, err := l.parseReg('C')
			if err != nil {
				return 0, err
			}
			if err := l.expect(','); err != nil {
				return 0, err
			}
			r, err := l.parseReg('R')
			if err != nil {
				return 0, err
			}
			return opcode.Build(def.group, def.opCode, opt1, r, b, 0, 0, 0, 0), nil
		}
		r, err := l.parseReg('R')
		if err != nil {
			return 0, err
		}
		l.skipSpace()
		if l.eof() || l.peek() != ',' {
			return opcode.Build(def.group, def.opCode, opt1, r, 0, 0, 0, 0, 0), nil
		}
		l.pos++
		prefix := byte('R')
		if def.opCode == opcode.OpMR && opt1 == 0 {
			prefix = 'C'
		}
		b, err := l.parseReg(prefix)
		if err != nil {
			return 0, err
		}
		return opcode.Build(def.group, def.opCode, opt1, r, b, 0, 0, 0, 0), nil
	}
}

func assembleIMM(l *line, def mnemonicDef, opt1 int) (uint32, error) {
	r, err := l.parseReg('R')
	if err != nil {
		return 0, err
	}
	if err := l.expect(','); err != nil {
		return 0, err
	}
	val, err := l.qualifierExpr()
	if err != nil {
		return 0, err
	}
	if !bitfieldInRangeU(val, 20) {
		return 0, asmerr.New(asmerr.ImmRange, l.pos, "immediate does not fit in 20 bits")
	}
	// IMMOP has its own field layout: group(30:2) opCode(26:4) regR(22:4)
	// case-selector(20:2) imm20(0:20) — it carries no regB/regA/dw/opt1,
	// so it cannot go through the shared opcode.Build layout.
	w := uint32(def.group)<<30 | uint32(def.opCode)<<26 | uint32(r)<<22 | uint32(opt1&0x3)<<20 | uint32(val&0xFFFFF)
	return w, nil
}

func bitfieldInRangeU(v uint64, bits int) bool {
	return v <= (uint64(1)<<bits)-1
}

// qualifierExpr parses a L%/R%/M%/U% qualified constant as an expr prefix;
// exposed for the assembler's ADDIL/LDIL forms.
func (l *line) qualifierExpr() (uint64, error) {
	l.skipSpace()
	if l.eof() {
		return 0, asmerr.New(asmerr.InvalidExpr, l.pos, "expected qualifier")
	}
	q := l.peek()
	if q == 'L' || q == 'R' || q == 'M' || q == 'U' {
		save := l.pos
		l.pos++
		if !l.eof() && l.peek() == '%' {
			l.pos++
			v, err := l.expr()
			if err != nil {
				return 0, err
			}
			return qualifier(q, v), nil
		}
		l.pos = save
	}
	v, err := l.expr()
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}
