/*
 * T64 - Program state register helpers
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

import "github.com/t64sim/t64/internal/bitfield"

// PSR bit positions. Bit 0 doubles as the region-match-enforce flag and as
// the low bit of the instruction address range; this never collides in
// practice because every instruction address is 4-aligned, so adding a
// multiple of 4 (nextInstr's PSR += 4) never disturbs bit 0 or bit 1 — see
// DESIGN.md for the full argument.
const (
	PsrBitM              = 63
	PsrBitX              = 61
	PsrBitRegionEnforce  = 0
	iaMask       uint64  = 0x000F_FFFF_FFFF_FFFC // bits 2..51
)

// IA extracts the instruction address: bits 2..51 of the PSR, with the
// region-enforce and alignment-reserved low bits cleared so the result is
// always usable directly as a 4-aligned fetch address.
func IA(psr uint64) uint64 { return psr & iaMask }

// SetIA replaces the address portion of psr, leaving M/X/region-enforce
// untouched. ia's low two bits are dropped (instruction addresses are
// always 4-aligned).
func SetIA(psr, ia uint64) uint64 {
	return (psr &^ iaMask) | (ia & iaMask)
}

// NextInstr advances PSR by 4 the same way the original's nextInstr() does:
// a low-32-bit-only add, so the upper 32 bits (including M and X) are never
// touched regardless of how big IA's high bits are.
func NextInstr(psr uint64) uint64 {
	return bitfield.AddAdrOfs32(psr, 4)
}

func M(psr uint64) bool { return bitfield.ExtractBit64(psr, PsrBitM) != 0 }
func X(psr uint64) bool { return bitfield.ExtractBit64(psr, PsrBitX) != 0 }
func RegionEnforce(psr uint64) bool { return bitfield.ExtractBit64(psr, PsrBitRegionEnforce) != 0 }

func SetM(psr uint64, v bool) uint64 { return bitfield.DepositBit(psr, PsrBitM, v) }
func SetX(psr uint64, v bool) uint64 { return bitfield.DepositBit(psr, PsrBitX, v) }
func SetRegionEnforce(psr uint64, v bool) uint64 { return bitfield.DepositBit(psr, PsrBitRegionEnforce, v) }
