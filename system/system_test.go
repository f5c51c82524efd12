/*
 * T64 - Core simulator loop
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

package system

import (
	"testing"
	"time"
)

func wordBytes(w uint32) []byte {
	return []byte{byte(w >> 24), byte(w >> 16), byte(w >> 8), byte(w)}
}

func TestSystemStepWithNoProcessorsErrors(t *testing.T) {
	s := New()
	if _, err := s.SystemStep(1); err == nil {
		t.Error("expected an error stepping a system with no processors")
	}
}

func TestReadWriteMem(t *testing.T) {
	s := New()
	if _, err := s.AddMemory(0, 0, 0x1000); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	want := []byte{1, 2, 3, 4}
	if err := s.WriteMem(0x10, want); err != nil {
		t.Fatalf("WriteMem: %v", err)
	}
	got, err := s.ReadMem(0x10, 4)
	if err != nil {
		t.Fatalf("ReadMem: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ReadMem()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestReadMemUnmappedAddress(t *testing.T) {
	s := New()
	if _, err := s.AddMemory(0, 0, 0x1000); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	if _, err := s.ReadMem(0x2000, 1); err == nil {
		t.Error("expected an error reading an address no module maps")
	}
}

func TestSystemStepExecutesNOPAndAdvancesPC(t *testing.T) {
	s := New()
	if _, err := s.AddMemory(0, 0, 0x1000); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	w, err := Assemble("NOP")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if err := s.WriteMem(0, wordBytes(w)); err != nil {
		t.Fatalf("WriteMem: %v", err)
	}

	c := s.AddCPU(1, 4, 0x1000)
	c.SetPSR(0x2000_0000_0000_0000) // X (privileged) bit set, IA = 0

	if modNum, err := s.SystemStep(1); err != nil {
		t.Fatalf("SystemStep: unexpected trap on module %d: %v", modNum, err)
	}
	if got := c.PSR() & 0x000F_FFFF_FFFF_FFFC; got != 4 {
		t.Errorf("PSR IA after one NOP = %#x, want 4", got)
	}
}

func TestSystemStepRoundRobinsAcrossProcessors(t *testing.T) {
	s := New()
	if _, err := s.AddMemory(0, 0, 0x1000); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	w, err := Assemble("NOP")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if err := s.WriteMem(0, wordBytes(w)); err != nil {
		t.Fatalf("WriteMem: %v", err)
	}

	c0 := s.AddCPU(1, 4, 0x1000)
	c1 := s.AddCPU(2, 4, 0x1000)
	c0.SetPSR(0x2000_0000_0000_0000)
	c1.SetPSR(0x2000_0000_0000_0000)

	if _, err := s.SystemStep(2); err != nil {
		t.Fatalf("SystemStep: %v", err)
	}
	if got := c0.PSR() & 0x000F_FFFF_FFFF_FFFC; got != 4 {
		t.Errorf("cpu 0 IA = %#x, want 4", got)
	}
	if got := c1.PSR() & 0x000F_FFFF_FFFF_FFFC; got != 4 {
		t.Errorf("cpu 1 IA = %#x, want 4", got)
	}
}

func TestSystemResetClearsProcessors(t *testing.T) {
	s := New()
	c := s.AddCPU(1, 4, 0x1000)
	c.SetGReg(1, 42)
	s.SystemReset()
	if got := c.GReg(1); got != 0 {
		t.Errorf("GReg(1) after reset = %d, want 0", got)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	s := New()
	s.Start()
	s.Halt()
	s.Stop()
	select {
	case <-s.done:
	default:
		t.Error("done channel should be closed after Stop")
	}
}

func TestRunAndStepControlMessages(t *testing.T) {
	s := New()
	if _, err := s.AddMemory(0, 0, 0x1000); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	w, err := Assemble("NOP")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if err := s.WriteMem(0, wordBytes(w)); err != nil {
		t.Fatalf("WriteMem: %v", err)
	}
	c := s.AddCPU(1, 4, 0x1000)
	c.SetPSR(0x2000_0000_0000_0000)

	s.Start()
	defer s.Stop()

	s.StepN(1)
	time.Sleep(50 * time.Millisecond)
	s.Halt()

	if got := c.PSR() & 0x000F_FFFF_FFFF_FFFC; got == 0 {
		t.Error("expected PC to have advanced after StepN(1)")
	}
}
