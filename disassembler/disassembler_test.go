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

package disassembler

import (
	"strings"
	"testing"

	"github.com/t64sim/t64/assembler"
	"github.com/t64sim/t64/internal/opcode"
)

func TestDisassembleALURegisterForm(t *testing.T) {
	w := opcode.Build(opcode.GrpALU, opcode.OpADD, 0, 1, 2, 3, opcode.DwD, 0, 0)
	got := Disassemble(w)
	if got != "ADD R1,R2,R3" {
		t.Errorf("Disassemble() = %q, want %q", got, "ADD R1,R2,R3")
	}
}

func TestDisassembleALUImmediateForm(t *testing.T) {
	w := opcode.Build(opcode.GrpALU, opcode.OpADD, 1, 1, 2, 0, opcode.DwD, 5, 13)
	got := Disassemble(w)
	if got != "ADD R1,R2,5" {
		t.Errorf("Disassemble() = %q, want %q", got, "ADD R1,R2,5")
	}
}

func TestDisassembleCMPConditionSuffix(t *testing.T) {
	w := opcode.Build(opcode.GrpALU, opcode.OpCMPA, opcode.CondLT, 1, 2, 0, opcode.DwD, 7, 13)
	got := Disassemble(w)
	if !strings.HasPrefix(got, "CMP.LT") {
		t.Errorf("Disassemble() = %q, want CMP.LT prefix", got)
	}
}

func TestDisassembleCMPEqIsRegisterForm(t *testing.T) {
	w := opcode.Build(opcode.GrpALU, opcode.OpCMPA, opcode.CondEQ, 1, 2, 3, opcode.DwD, 0, 0)
	got := Disassemble(w)
	if got != "CMP.EQ R1,R2,R3" {
		t.Errorf("Disassemble() = %q, want %q", got, "CMP.EQ R1,R2,R3")
	}
}

func TestDisassembleCMPBImmediateForm(t *testing.T) {
	w := opcode.Build(opcode.GrpALU, opcode.OpCMPB, opcode.CondGT, 1, 2, 0, opcode.DwD, uint64(9)&0x7FFF, 15)
	got := Disassemble(w)
	if got != "CMP.GT R1,R2,9" {
		t.Errorf("Disassemble() = %q, want %q", got, "CMP.GT R1,R2,9")
	}
}

func TestDisassembleAndComplementSuffix(t *testing.T) {
	w := opcode.Build(opcode.GrpALU, opcode.OpAND, 0x7, 1, 2, 3, opcode.DwD, 0, 0)
	got := Disassemble(w)
	if got != "AND.CI.CO R1,R2,R3" {
		t.Errorf("Disassemble() = %q, want %q", got, "AND.CI.CO R1,R2,R3")
	}
}

func TestDisassembleMemALUBareRegisterAdd(t *testing.T) {
	w := opcode.Build(opcode.GrpMEM, opcode.OpADD, 0, 1, 0, 2, opcode.DwD, 0, 0)
	got := Disassemble(w)
	if got != "ADD R1,R2" {
		t.Errorf("Disassemble() = %q, want %q", got, "ADD R1,R2")
	}
}

func TestDisassembleMemALUIndexedAnd(t *testing.T) {
	w := opcode.Build(opcode.GrpMEM, opcode.OpAND, 1, 1, 2, 3, opcode.DwD, 0, 0)
	got := Disassemble(w)
	if got != "AND R1,R3(R2)" {
		t.Errorf("Disassemble() = %q, want %q", got, "AND R1,R3(R2)")
	}
}

func TestDisassembleExtrSigned(t *testing.T) {
	w := opcode.Build(opcode.GrpALU, opcode.OpBITOP, 0, 1, 2, 0, 0, 0, 0)
	w = uint32(bitfieldForTest(uint64(w), 6, 6, 4))
	w = uint32(bitfieldForTest(uint64(w), 0, 6, 7))
	w = uint32(bitfieldForTest(uint64(w), 12, 1, 1))
	got := Disassemble(w)
	if got != "EXTR.S R1,R2,4,8" {
		t.Errorf("Disassemble() = %q, want %q", got, "EXTR.S R1,R2,4,8")
	}
}

func TestDisassembleDepLiteralOperand(t *testing.T) {
	w := opcode.Build(opcode.GrpALU, opcode.OpBITOP, 1, 1, 5, 0, 0, 0, 0)
	w = uint32(bitfieldForTest(uint64(w), 14, 1, 1))
	got := Disassemble(w)
	if got != "DEP R1,5,0,1" {
		t.Errorf("Disassemble() = %q, want %q", got, "DEP R1,5,0,1")
	}
}

func TestDisassembleSHAOP(t *testing.T) {
	w := opcode.Build(opcode.GrpALU, opcode.OpSHAOP, 2, 1, 2, 3, 2, 0, 0)
	got := Disassemble(w)
	if got != "SHAOP.R.2 R1,R2,R3" {
		t.Errorf("Disassemble() = %q, want %q", got, "SHAOP.R.2 R1,R2,R3")
	}
}

func bitfieldForTest(w uint64, pos, length int, val uint64) uint64 {
	mask := ((uint64(1) << uint(length)) - 1) << uint(pos)
	return (w &^ mask) | ((val << uint(pos)) & mask)
}

func TestDisassembleUnknownEncoding(t *testing.T) {
	w := opcode.Build(opcode.GrpALU, 0xB, 0, 0, 0, 0, 0, 0, 0)
	got := Disassemble(w)
	if !strings.HasPrefix(got, "**OPC:") {
		t.Errorf("Disassemble() = %q, want an **OPC: placeholder for an unassigned ALU opcode", got)
	}
}

func TestDisassembleMFCR(t *testing.T) {
	w := opcode.Build(opcode.GrpSYS, opcode.OpMR, 0, 1, 5, 0, 0, 0, 0)
	got := Disassemble(w)
	if got != "MFCR R1,C5" {
		t.Errorf("Disassemble() = %q, want %q", got, "MFCR R1,C5")
	}
}

func TestDisassembleMTCR(t *testing.T) {
	w := opcode.Build(opcode.GrpSYS, opcode.OpMR, 1, 1, 5, 0, 0, 0, 0)
	got := Disassemble(w)
	if got != "MTCR C5,R1" {
		t.Errorf("Disassemble() = %q, want %q", got, "MTCR C5,R1")
	}
}

func TestDisassembleTLBVariants(t *testing.T) {
	cases := map[int]string{0: "IITLB", 1: "IDTLB", 2: "PITLB", 3: "PDTLB"}
	for opt1, name := range cases {
		w := opcode.Build(opcode.GrpSYS, opcode.OpTLB, opt1, 1, 2, 0, 0, 0, 0)
		got := Disassemble(w)
		if !strings.HasPrefix(got, name) {
			t.Errorf("Disassemble(opt1=%d) = %q, want %s prefix", opt1, got, name)
		}
	}
}

func TestDisassembleNOP(t *testing.T) {
	w := opcode.Build(opcode.GrpSYS, opcode.OpNOP, 0, 0, 0, 0, 0, 0, 0)
	if got := Disassemble(w); got != "NOP" {
		t.Errorf("Disassemble() = %q, want NOP", got)
	}
}

func TestDisassembleBranchUnconditional(t *testing.T) {
	w := opcode.Build(opcode.GrpBR, opcode.OpB, 0, 0, 0, 0, 0, uint64(4)&0x7FFFF, 19)
	got := Disassemble(w)
	if got != "B 16" {
		t.Errorf("Disassemble() = %q, want %q", got, "B 16")
	}
}

func TestRoundTripAssembleDisassemble(t *testing.T) {
	texts := []string{
		"ADD R1,R2,R3",
		"ADD R1,R2,5",
		"CMP R1,R2,R3",
		"CMP.LT R1,R2,5",
		"ST.W R5,16(R6)",
		"LD.D R1,R2(R3)",
		"MFCR R1,C5",
		"MTCR C5,R1",
		"NOP",
	}
	for _, text := range texts {
		w, err := assembler.Assemble(text)
		if err != nil {
			t.Fatalf("Assemble(%q): unexpected error: %v", text, err)
		}
		// Re-assembling the disassembled text must reproduce the same
		// instruction word; this is the invariant that matters, since the
		// textual rendering does not have to be byte-identical to the
		// original source line (e.g. canonicalized operand order).
		got := Disassemble(w)
		w2, err := assembler.Assemble(got)
		if err != nil {
			t.Fatalf("Assemble(%q) (disassembled from %q): unexpected error: %v", got, text, err)
		}
		if w2 != w {
			t.Errorf("round trip mismatch for %q: disassembled to %q, reassembled to %#x, want %#x", text, got, w2, w)
		}
	}
}
