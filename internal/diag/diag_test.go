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

package diag

import "testing"

func TestDispatchBuildVersion(t *testing.T) {
	if got := Dispatch(0, 0, 0); got != BuildVersion {
		t.Errorf("Dispatch(0) = %#x, want %#x", got, BuildVersion)
	}
}

func TestDispatchUnregisteredReturnsZero(t *testing.T) {
	if got := Dispatch(999, 1, 2); got != 0 {
		t.Errorf("Dispatch(999) = %d, want 0", got)
	}
}

func TestRegisterCustomHandler(t *testing.T) {
	Register(42, func(arg1, arg2 int64) int64 { return arg1 + arg2 })
	if got := Dispatch(42, 3, 4); got != 7 {
		t.Errorf("Dispatch(42, 3, 4) = %d, want 7", got)
	}
}
