package cpu

import (
	"testing"

	"github.com/t64sim/t64/bus"
	"github.com/t64sim/t64/internal/opcode"
	"github.com/t64sim/t64/memory"
	"github.com/t64sim/t64/tlb"
)

func newTestCPU(t *testing.T) *CPU {
	t.Helper()
	b := bus.New()
	mem := memory.New(0x10000)
	if err := b.AddModule(&bus.Module{ModNum: 0, Kind: bus.KindMemory, SPAAdr: 0, SPALen: 0x10000, Backend: mem}); err != nil {
		t.Fatal(err)
	}
	c := New(1, b, 8, 0x10000)
	c.psr = SetX(c.psr, true)
	return c
}

func TestImmediateAdd(t *testing.T) {
	c := newTestCPU(t)
	c.SetGReg(2, 7)
	w := opcode.Build(opcode.GrpALU, opcode.OpADD, 1, 1, 2, 0, 0, uint64(5)&0x1FFF, 13)
	before := c.psr
	if tr := c.execute(w, IA(c.psr)); tr != nil {
		t.Fatalf("unexpected trap: %v", tr)
	}
	if c.GReg(1) != 12 {
		t.Errorf("R1 = %d, want 12", c.GReg(1))
	}
	if c.psr != NextInstr(before) {
		t.Errorf("PSR not advanced by 4")
	}
}

func TestOverflowTrapLeavesStateUnchanged(t *testing.T) {
	c := newTestCPU(t)
	c.SetGReg(2, 9223372036854775807)
	c.SetGReg(3, 1)
	w := opcode.Build(opcode.GrpALU, opcode.OpADD, 0, 1, 2, 3, 0, 0, 0)
	beforePSR := c.psr
	tr := c.execute(w, IA(c.psr))
	if tr == nil {
		t.Fatal("expected overflow trap")
	}
	if tr.Kind.String() != "overflow" {
		t.Errorf("got trap kind %v", tr.Kind)
	}
	if c.GReg(1) != 0 {
		t.Errorf("R1 should be unchanged on trap, got %d", c.GReg(1))
	}
	// A vector other than the pre-trap IA (0) makes the move observable.
	c.cReg[CtlTrapVector] = 0x100
	c.enterTrap(tr)
	if c.cReg[CtlIPSR] != beforePSR {
		t.Errorf("IPSR should capture pre-trap PSR")
	}
	if c.psr == beforePSR {
		t.Errorf("PSR should move to the trap vector on entry")
	}
}

func TestLoadStoreRoundTrip(t *testing.T) {
	c := newTestCPU(t)
	c.SetGReg(5, 0xDEADBEEF)
	c.SetGReg(6, 0x1000)
	// imm13 is pre-scaled: field value 4, dw=W(<<2), yields a byte offset of 16.
	st := opcode.Build(opcode.GrpMEM, opcode.OpST, 0, 5, 6, 0, opcode.DwW, uint64(4)&0x1FFF, 13)
	if tr := c.execute(st, IA(c.psr)); tr != nil {
		t.Fatalf("store trapped: %v", tr)
	}
	ld := opcode.Build(opcode.GrpMEM, opcode.OpLD, 0, 7, 6, 0, opcode.DwW, uint64(4)&0x1FFF, 13)
	if tr := c.execute(ld, IA(c.psr)); tr != nil {
		t.Fatalf("load trapped: %v", tr)
	}
	if uint32(c.GReg(7)) != 0xDEADBEEF {
		t.Errorf("R7 = %#x, want 0xDEADBEEF", uint32(c.GReg(7)))
	}
}

func TestTLBMissThenInsert(t *testing.T) {
	c := newTestCPU(t)
	vAdr := uint64(0x0000_0001_0000_0000)
	_, tr := c.dataRead(vAdr, 8, false)
	if tr == nil || tr.Kind.String() != "data-tlb-miss" {
		t.Fatalf("expected data-tlb-miss, got %v", tr)
	}
	c.dTLB.Insert(tlb.Entry{VPN: tlb.VPNOf(vAdr), PAdr: 0x2000, PageType: tlb.PageReadWrite})
	if _, tr := c.dataRead(vAdr, 8, false); tr != nil {
		t.Fatalf("expected success after insert, got %v", tr)
	}
}

func TestAndInputAndOutputComplement(t *testing.T) {
	c := newTestCPU(t)
	c.SetGReg(2, 0x0F)
	c.SetGReg(3, 0xFF)
	// opt1 bit19=1 (register operand Ra), bit20=1 (input complement), bit21=1 (output complement).
	w := opcode.Build(opcode.GrpALU, opcode.OpAND, 0x7, 1, 2, 3, 0, 0, 0)
	if tr := c.execute(w, IA(c.psr)); tr != nil {
		t.Fatalf("unexpected trap: %v", tr)
	}
	inVal, maskVal := uint64(0x0F), uint64(0xFF)
	want := int64(^(^inVal & maskVal))
	if c.GReg(1) != want {
		t.Errorf("R1 = %#x, want %#x", c.GReg(1), want)
	}
}

func TestXorRejectsInputComplement(t *testing.T) {
	c := newTestCPU(t)
	// opt1 bit19=1 (register operand), bit20=1 (input complement) -> illegal.
	w := opcode.Build(opcode.GrpALU, opcode.OpXOR, 0x3, 1, 2, 3, 0, 0, 0)
	tr := c.execute(w, IA(c.psr))
	if tr == nil || tr.Kind.String() != "illegal-instr" {
		t.Fatalf("expected illegal-instr trap, got %v", tr)
	}
}

func TestCmpaRegisterAndCmpbImmediate(t *testing.T) {
	c := newTestCPU(t)
	c.SetGReg(2, 5)
	c.SetGReg(3, 5)
	cmpa := opcode.Build(opcode.GrpALU, opcode.OpCMPA, opcode.CondEQ, 1, 2, 3, 0, 0, 0)
	if tr := c.execute(cmpa, IA(c.psr)); tr != nil {
		t.Fatalf("unexpected trap: %v", tr)
	}
	if c.GReg(1) != 1 {
		t.Errorf("CMPA.EQ register match: R1 = %d, want 1", c.GReg(1))
	}

	cmpb := opcode.Build(opcode.GrpALU, opcode.OpCMPB, opcode.CondEQ, 4, 2, 0, 0, uint64(5)&0x7FFF, 15)
	if tr := c.execute(cmpb, IA(c.psr)); tr != nil {
		t.Fatalf("unexpected trap: %v", tr)
	}
	if c.GReg(4) != 1 {
		t.Errorf("CMPB.EQ immediate match: R4 = %d, want 1", c.GReg(4))
	}
}

func TestExtrSignedVsUnsigned(t *testing.T) {
	c := newTestCPU(t)
	c.SetGReg(2, 0xFF)
	// pos=0, length-1=3 (4-bit field), bit12 unset: unsigned extraction.
	unsigned := opcode.Build(opcode.GrpALU, opcode.OpBITOP, 0, 1, 2, 0, 0, 0, 0)
	unsigned = setFieldForTest(unsigned, 6, 6, 0)
	unsigned = setFieldForTest(unsigned, 0, 6, 3)
	if tr := c.execute(unsigned, IA(c.psr)); tr != nil {
		t.Fatalf("unexpected trap: %v", tr)
	}
	if c.GReg(1) != 0xF {
		t.Errorf("unsigned EXTR: R1 = %#x, want 0xF", c.GReg(1))
	}

	signed := opcode.Build(opcode.GrpALU, opcode.OpBITOP, 0, 3, 2, 0, 0, 0, 0)
	signed = setFieldForTest(signed, 6, 6, 0)
	signed = setFieldForTest(signed, 0, 6, 3)
	signed = setFieldForTest(signed, 12, 1, 1)
	if tr := c.execute(signed, IA(c.psr)); tr != nil {
		t.Fatalf("unexpected trap: %v", tr)
	}
	if c.GReg(3) != -1 {
		t.Errorf("signed EXTR: R3 = %d, want -1", c.GReg(3))
	}
}

func TestDepZeroFillAndRegisterOperand(t *testing.T) {
	c := newTestCPU(t)
	c.SetGReg(1, -1) // all-ones, to show zero-fill clears the untouched bits
	c.SetGReg(2, 0xA)
	// pos=0, length-1=3 (4-bit field), register operand Rb=2, zero-fill set.
	w := opcode.Build(opcode.GrpALU, opcode.OpBITOP, 1, 1, 2, 0, 0, 0, 0)
	w = setFieldForTest(w, 6, 6, 0)
	w = setFieldForTest(w, 0, 6, 3)
	w = setFieldForTest(w, 12, 1, 1) // zero-fill
	if tr := c.execute(w, IA(c.psr)); tr != nil {
		t.Fatalf("unexpected trap: %v", tr)
	}
	if c.GReg(1) != 0xA {
		t.Errorf("zero-fill DEP: R1 = %#x, want 0xA", c.GReg(1))
	}

	c.SetGReg(1, -1)
	// Same field, but no zero-fill: only the field's bits change.
	noZeroFill := opcode.Build(opcode.GrpALU, opcode.OpBITOP, 1, 1, 2, 0, 0, 0, 0)
	noZeroFill = setFieldForTest(noZeroFill, 6, 6, 0)
	noZeroFill = setFieldForTest(noZeroFill, 0, 6, 3)
	if tr := c.execute(noZeroFill, IA(c.psr)); tr != nil {
		t.Fatalf("unexpected trap: %v", tr)
	}
	if c.GReg(1) != -6 { // low nibble of all-ones (0xF) replaced by 0xA, rest untouched
		t.Errorf("non-zero-fill DEP: R1 = %#x, want -6", c.GReg(1))
	}

	c.SetGReg(1, 0)
	// Literal operand: bit14 set, 4-bit literal at bits 15..18.
	literal := opcode.Build(opcode.GrpALU, opcode.OpBITOP, 1, 1, 0, 0, 0, 0, 0)
	literal = setFieldForTest(literal, 6, 6, 0)
	literal = setFieldForTest(literal, 0, 6, 3)
	literal = setFieldForTest(literal, 14, 1, 1)
	literal = setFieldForTest(literal, 15, 4, 0x5)
	if tr := c.execute(literal, IA(c.psr)); tr != nil {
		t.Fatalf("unexpected trap: %v", tr)
	}
	if c.GReg(1) != 0x5 {
		t.Errorf("literal DEP: R1 = %#x, want 0x5", c.GReg(1))
	}
}

func setFieldForTest(w uint32, pos, length int, val uint64) uint32 {
	mask := uint64((1<<uint(length))-1) << uint(pos)
	return uint32((uint64(w) &^ mask) | ((val << uint(pos)) & mask))
}

func TestRegisterZeroAlwaysReadsZero(t *testing.T) {
	c := newTestCPU(t)
	c.SetGReg(0, 42)
	if c.GReg(0) != 0 {
		t.Error("register 0 must always read as zero")
	}
}

func TestHPAReadWriteGeneralAndControlRegs(t *testing.T) {
	c := newTestCPU(t)
	if err := c.WriteHPA(8*3, 8, 99); err != nil {
		t.Fatalf("WriteHPA: %v", err)
	}
	if got := c.GReg(3); got != 99 {
		t.Errorf("GReg(3) = %d, want 99", got)
	}
	if got, err := c.ReadHPA(8*3, 8); err != nil || got != 99 {
		t.Errorf("ReadHPA(general) = %d, %v, want 99, nil", got, err)
	}

	if err := c.WriteHPA(128+8*2, 8, 7); err != nil {
		t.Fatalf("WriteHPA: %v", err)
	}
	if got := c.CReg(2); got != 7 {
		t.Errorf("CReg(2) = %d, want 7", got)
	}

	if _, err := c.ReadHPA(1000, 8); err == nil {
		t.Error("expected an error for an out-of-range HPA offset")
	}
}
