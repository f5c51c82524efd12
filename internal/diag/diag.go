/*
 * T64 - Diagnostic opcode registry
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

// Package diag is the DIAG instruction's dispatch seam: a small registry of
// diagnostic opcodes a CPU's DiagHandler can be wired to, giving the core
// the same extension point the original reserved (and left as a stub)
// for diagOpHandler.
package diag

// Handler computes a diagnostic's result from its two argument registers.
type Handler func(arg1, arg2 int64) int64

var registry = map[int64]Handler{}

// Register attaches a diagnostic opcode's handler. Call during init().
func Register(opt int64, h Handler) { registry[opt] = h }

// Dispatch looks opt up in the registry and invokes it; unregistered
// diagnostics return 0, matching the original's diagOpHandler stub.
func Dispatch(opt int64, arg1, arg2 int64) int64 {
	h, ok := registry[opt]
	if !ok {
		return 0
	}
	return h(arg1, arg2)
}

// BuildVersion is diag 0's payload: a packed build/version word. The CLI's
// --version does not read it; it prints its own version string.
const BuildVersion = 0x0001_0000 // major 1, minor 0

func init() {
	Register(0, func(arg1, arg2 int64) int64 { return BuildVersion })
}
