/*
 * T64 - Execution trap model
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

// Package trap carries execution faults as explicit values instead of
// exceptions. The original source throws a C++ T64Trap object and catches it
// at the instruction-execute boundary; every instruction handler here
// returns a *Trap instead, and the CPU's step loop is the only place that
// ever looks at one.
package trap

import "fmt"

// Kind enumerates the trap causes from §4.6.
type Kind int

const (
	InstrTLBMiss Kind = iota
	DataTLBMiss
	InstrAlign
	DataAlign
	InstrProtection
	DataProtection
	PrivOp
	Overflow
	IllegalInstr
	Diag
	Generic // TRAP n
)

func (k Kind) String() string {
	switch k {
	case InstrTLBMiss:
		return "instr-tlb-miss"
	case DataTLBMiss:
		return "data-tlb-miss"
	case InstrAlign:
		return "instr-align"
	case DataAlign:
		return "data-align"
	case InstrProtection:
		return "instr-protection"
	case DataProtection:
		return "data-protection"
	case PrivOp:
		return "priv-op"
	case Overflow:
		return "overflow"
	case IllegalInstr:
		return "illegal-instr"
	case Diag:
		return "diag"
	case Generic:
		return "trap"
	default:
		return "unknown-trap"
	}
}

// Trap carries the state a handler populates into the control registers
// (IPSR/IINSTR/IARG_0/IARG_1) before the CPU resumes at the trap vector.
type Trap struct {
	Kind        Kind
	InstrAddr   uint64
	InstrWord   uint32
	Arg0        uint64
	Arg1        uint64
	TrapNum     int // only meaningful for Generic
}

func (t *Trap) Error() string {
	if t.Kind == Generic {
		return fmt.Sprintf("trap %d at %#x (instr %#08x)", t.TrapNum, t.InstrAddr, t.InstrWord)
	}
	return fmt.Sprintf("%s at %#x (instr %#08x, arg0=%#x, arg1=%#x)", t.Kind, t.InstrAddr, t.InstrWord, t.Arg0, t.Arg1)
}

func New(kind Kind, instrAddr uint64, instrWord uint32, arg0, arg1 uint64) *Trap {
	return &Trap{Kind: kind, InstrAddr: instrAddr, InstrWord: instrWord, Arg0: arg0, Arg1: arg1}
}

func NewGeneric(n int, instrAddr uint64, instrWord uint32, arg0, arg1 uint64) *Trap {
	return &Trap{Kind: Generic, TrapNum: n, InstrAddr: instrAddr, InstrWord: instrWord, Arg0: arg0, Arg1: arg1}
}

// Result is the outcome of executing one instruction: either normal
// continuation or a trap to be resolved by the CPU's step loop. It replaces
// the original's throw/catch control flow per the design notes' explicit
// instruction to convert exceptions into an explicit sum type.
type Result struct {
	Trap *Trap
}

// Continue is the zero Result: no trap, keep executing.
var Continue = Result{}

// Trapped wraps t into a Result.
func Trapped(t *Trap) Result { return Result{Trap: t} }

// Ok reports whether the result is a normal continuation.
func (r Result) Ok() bool { return r.Trap == nil }
