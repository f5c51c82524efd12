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

package assembler

import (
	"testing"

	"github.com/t64sim/t64/internal/opcode"
)

func TestAssembleALURegisterForm(t *testing.T) {
	w, err := Assemble("ADD R1,R2,R3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := w >> 30; got != 0 {
		t.Errorf("group = %d, want 0 (ALU)", got)
	}
	if got := (w >> 22) & 0xF; got != 1 {
		t.Errorf("regR = %d, want 1", got)
	}
}

func TestAssembleALUImmediateForm(t *testing.T) {
	w, err := Assemble("ADD R1,R2,5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := w & 0x1FFF; got != 5 {
		t.Errorf("imm13 = %d, want 5", got)
	}
}

func TestAssembleCMPRegisterIsCMPAAnyCondition(t *testing.T) {
	w, err := Assemble("CMP.LT R1,R2,R3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := w >> 26 & 0xF; got != opcode.OpCMPA {
		t.Errorf("opCode = %d, want OpCMPA", got)
	}
	if got := (w >> 19) & 0x7; got != 1 {
		t.Errorf("opt1 (cond) = %d, want 1 (LT)", got)
	}
}

func TestAssembleCMPImmediateIsCMPBAnyCondition(t *testing.T) {
	w, err := Assemble("CMP R1,R2,5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := w >> 26 & 0xF; got != opcode.OpCMPB {
		t.Errorf("opCode = %d, want OpCMPB", got)
	}
	if got := w & 0x7FFF; got != 5 {
		t.Errorf("imm15 = %d, want 5", got)
	}

	w, err = Assemble("CMP.LT R1,R2,5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (w >> 19) & 0x7; got != 1 {
		t.Errorf("opt1 (cond) = %d, want 1 (LT)", got)
	}
}

func TestAssembleAndComplementOptions(t *testing.T) {
	w, err := Assemble("AND.CI.CO R1,R2,R3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (w >> 19) & 0x7; got != 0x7 {
		t.Errorf("opt1 = %#x, want 0x7 (register, CI, CO)", got)
	}
}

func TestAssembleXorRejectsInputComplement(t *testing.T) {
	if _, err := Assemble("XOR.CI R1,R2,R3"); err == nil {
		t.Error("expected error for XOR with an input complement")
	}
}

func TestAssembleMemALUBareRegisterForm(t *testing.T) {
	w, err := Assemble("ADD R1,R2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (w >> 30) & 0x3; got != 1 {
		t.Errorf("group = %d, want 1 (MEM)", got)
	}
	if got := (w >> 9) & 0xF; got != 2 {
		t.Errorf("regA = %d, want 2", got)
	}
}

func TestAssembleMemALUScaledImmediateForm(t *testing.T) {
	w, err := Assemble("ADD.W R1,16(R6)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (w >> 30) & 0x3; got != 1 {
		t.Errorf("group = %d, want 1 (MEM)", got)
	}
	if got := w & 0x1FFF; got != 4 {
		t.Errorf("imm13 = %d, want 4", got)
	}
}

func TestAssembleMemALUIndexedForm(t *testing.T) {
	w, err := Assemble("AND R1,R3(R2)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (w >> 19) & 0x1; got != 1 {
		t.Errorf("bit19 = %d, want 1 (register-indexed)", got)
	}
}

func TestAssembleEXTRSigned(t *testing.T) {
	w, err := Assemble("EXTR.S R1,R2,4,8")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (w >> 12) & 0x1; got != 1 {
		t.Errorf("signed bit = %d, want 1", got)
	}
	if got := (w >> 6) & 0x3F; got != 4 {
		t.Errorf("pos = %d, want 4", got)
	}
	if got := w & 0x3F; got != 7 {
		t.Errorf("length-1 = %d, want 7", got)
	}
}

func TestAssembleDEPRegisterAndLiteral(t *testing.T) {
	w, err := Assemble("DEP R1,R2,0,4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (w >> 14) & 0x1; got != 0 {
		t.Errorf("literal-select bit = %d, want 0 (register)", got)
	}

	w, err = Assemble("DEP.Z R1,5,0,4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (w >> 14) & 0x1; got != 1 {
		t.Errorf("literal-select bit = %d, want 1 (literal)", got)
	}
	if got := (w >> 15) & 0xF; got != 5 {
		t.Errorf("literal = %d, want 5", got)
	}
	if got := (w >> 12) & 0x1; got != 1 {
		t.Errorf("zero-fill bit = %d, want 1", got)
	}
}

func TestAssembleDSR(t *testing.T) {
	w, err := Assemble("DSR R1,R2,R3,5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := w & 0x3F; got != 5 {
		t.Errorf("shamt = %d, want 5", got)
	}
}

func TestAssembleSHAOP(t *testing.T) {
	w, err := Assemble("SHAOP.R.2 R1,R2,R3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (w >> 19) & 0x7; got != 0x2 {
		t.Errorf("opt1 = %#x, want 0x2 (right, register)", got)
	}
	if got := (w >> 13) & 0x3; got != 2 {
		t.Errorf("shamt field = %d, want 2", got)
	}

	w, err = Assemble("SHAOP.L.1 R1,R2,7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (w >> 19) & 0x7; got != 0x1 {
		t.Errorf("opt1 = %#x, want 0x1 (left, immediate)", got)
	}
}

func TestAssembleSHAOPRequiresShiftAmount(t *testing.T) {
	if _, err := Assemble("SHAOP R1,R2,R3"); err == nil {
		t.Error("expected error when no .1/.2/.3 shift amount is given")
	}
}

func TestAssembleUnknownMnemonic(t *testing.T) {
	if _, err := Assemble("FROB R1,R2,R3"); err == nil {
		t.Error("expected error for unknown mnemonic")
	}
}

func TestAssembleImmRangeError(t *testing.T) {
	if _, err := Assemble("ADD R1,R2,100000"); err == nil {
		t.Error("expected immediate-range error")
	}
}

func TestAssembleMemImmediateForm(t *testing.T) {
	w, err := Assemble("ST.W R5,16(R6)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (w >> 30) & 0x3; got != 1 {
		t.Errorf("group = %d, want 1 (MEM)", got)
	}
	// offset 16 scaled by dw=W (<<2) is imm13 field value 4.
	if got := w & 0x1FFF; got != 4 {
		t.Errorf("imm13 = %d, want 4", got)
	}
}

func TestAssembleMemIndexedForm(t *testing.T) {
	w, err := Assemble("LD.D R1,R2(R3)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (w >> 19) & 0x7; got != 1 {
		t.Errorf("opt1 = %d, want 1 (indexed)", got)
	}
}

func TestAssembleMemOffsetMustBeAligned(t *testing.T) {
	if _, err := Assemble("ST.W R5,3(R6)"); err == nil {
		t.Error("expected alignment error for non-multiple-of-dw offset")
	}
}

func TestAssembleBranchUnconditional(t *testing.T) {
	w, err := Assemble("B 16")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := int32(w<<13) >> 13; got != 4 { // imm19 sign-extended, scaled value is 16/4
		t.Errorf("imm19 = %d, want 4", got)
	}
}

func TestAssembleBranchGate(t *testing.T) {
	w, err := Assemble("B.G 0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w&(1<<19) == 0 {
		t.Error("expected gate bit set for B.G")
	}
}

func TestAssembleBranchTargetMustBeAligned(t *testing.T) {
	if _, err := Assemble("B 3"); err == nil {
		t.Error("expected alignment error for branch target")
	}
}

func TestAssembleBV(t *testing.T) {
	w, err := Assemble("BV R4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (w >> 15) & 0xF; got != 4 {
		t.Errorf("regB = %d, want 4", got)
	}
}

func TestAssembleMFCRAndMTCR(t *testing.T) {
	w, err := Assemble("MFCR R1,C5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (w >> 19) & 0x7; got != 0 {
		t.Errorf("opt1 = %d, want 0 (MFCR)", got)
	}
	w, err = Assemble("MTCR C5,R1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (w >> 19) & 0x7; got != 1 {
		t.Errorf("opt1 = %d, want 1 (MTCR)", got)
	}
}

func TestAssembleADDIL(t *testing.T) {
	w, err := Assemble("ADDIL R1,100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (w >> 20) & 0x3; got != 0 {
		t.Errorf("case selector = %d, want 0 (ADDIL)", got)
	}
	if got := w & 0xFFFFF; got != 100 {
		t.Errorf("imm20 = %d, want 100", got)
	}
}

func TestAssembleLDILQualifiers(t *testing.T) {
	w, err := Assemble("LDIL.U R2,U%0x1000000000000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (w >> 20) & 0x3; got != 3 {
		t.Errorf("case selector = %d, want 3 (LDIL.U)", got)
	}
}

func TestAssembleImmOutOfRange(t *testing.T) {
	if _, err := Assemble("ADDIL R1,0x1FFFFF"); err == nil {
		t.Error("expected range error for a 20-bit immediate overflow")
	}
}

func TestAssembleNOP(t *testing.T) {
	w, err := Assemble("NOP")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w>>30 != 3 {
		t.Errorf("group = %d, want 3 (SYS)", w>>30)
	}
}

func TestAssembleEmptyLine(t *testing.T) {
	if _, err := Assemble("   "); err == nil {
		t.Error("expected error for an empty line")
	}
}

func TestAssembleRegisterOutOfRange(t *testing.T) {
	if _, err := Assemble("ADD R16,R0,R0"); err == nil {
		t.Error("expected error for register number out of range")
	}
}
