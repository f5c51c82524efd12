/*
 * T64 - Bitfield extract/deposit/sign-extension primitives
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

// Package bitfield centralizes every extract/deposit/sign-extension helper
// used by the instruction encoder, CPU dispatch table, and assembler. No
// instruction handler is allowed to inline its own bit-twiddling; it goes
// through here instead.
package bitfield

// ExtractBit64 returns bit pos of val, 0 or 1. Out of range positions read 0.
func ExtractBit64(val uint64, pos int) uint64 {
	if pos < 0 || pos > 63 {
		return 0
	}
	return (val >> pos) & 1
}

// ExtractField64 extracts a len-bit unsigned field starting at bit pos,
// counting from the least-significant bit. pos+len must not exceed 64.
func ExtractField64(val uint64, pos, length int) uint64 {
	if length <= 0 || pos < 0 || pos+length > 64 {
		return 0
	}
	if length == 64 {
		return val
	}
	mask := uint64(1)<<length - 1
	return (val >> pos) & mask
}

// ExtractSignedField64 extracts a len-bit field and sign-extends it to 64 bits.
func ExtractSignedField64(val uint64, pos, length int) int64 {
	field := ExtractField64(val, pos, length)
	return SignExtend(field, length)
}

// SignExtend treats data as a signed value of width bits (bit width-1 is the
// sign bit) and sign-extends it to a full int64.
func SignExtend(data uint64, width int) int64 {
	if width <= 0 || width >= 64 {
		return int64(data)
	}
	shift := 64 - width
	return int64(data<<shift) >> shift
}

// DepositField writes a len-bit field, taken from the low len bits of value,
// into word at bit position pos. Non-overlapping deposits followed by an
// extract at the same (pos, len) always recover the deposited value.
func DepositField(word uint64, pos, length int, value uint64) uint64 {
	if length <= 0 || pos < 0 || pos+length > 64 {
		return word
	}
	mask := uint64(1)<<length - 1
	if length == 64 {
		mask = ^uint64(0)
	}
	word &^= mask << pos
	word |= (value & mask) << pos
	return word
}

// DepositBit writes a single bit at pos.
func DepositBit(word uint64, pos int, bit bool) uint64 {
	v := uint64(0)
	if bit {
		v = 1
	}
	return DepositField(word, pos, 1, v)
}

// InRangeForFieldS reports whether val fits in a signed field of bitLen bits.
func InRangeForFieldS(val int64, bitLen int) bool {
	if bitLen <= 0 || bitLen > 64 {
		return false
	}
	if bitLen == 64 {
		return true
	}
	min := -(int64(1) << (bitLen - 1))
	max := int64(1)<<(bitLen-1) - 1
	return val >= min && val <= max
}

// InRangeForFieldU reports whether val fits in an unsigned field of bitLen bits.
func InRangeForFieldU(val uint64, bitLen int) bool {
	if bitLen <= 0 || bitLen >= 64 {
		return bitLen > 0
	}
	max := uint64(1)<<bitLen - 1
	return val <= max
}

// AddAdrOfs32 replaces the low 32 bits of a with (a.low32 + ofs.low32); the
// high 32 bits of a are preserved untouched. This is the only addition used
// for PC advance and effective-address computation.
func AddAdrOfs32(a uint64, ofs int64) uint64 {
	lo := uint32(a)
	newLo := lo + uint32(ofs)
	return (a & 0xFFFFFFFF00000000) | uint64(newLo)
}

// ShiftRight128 computes a 128-bit logical right shift of (hi:lo) by shift
// bits (0..63 significant), returning the low 64 bits of the result.
func ShiftRight128(hi, lo uint64, shift int) uint64 {
	shift &= 0x3f
	switch {
	case shift == 0:
		return lo
	default:
		return (hi << (64 - shift)) | (lo >> shift)
	}
}

// WillAddOverflow reports whether a+b overflows a signed 64-bit addition.
func WillAddOverflow(a, b int64) bool {
	sum := a + b
	return ((a ^ sum) & (b ^ sum)) < 0
}

// WillSubOverflow reports whether a-b overflows a signed 64-bit subtraction.
func WillSubOverflow(a, b int64) bool {
	diff := a - b
	return ((a ^ b) & (a ^ diff)) < 0
}

// WillShiftLeftOverflow reports whether val<<shift loses significant bits,
// detected by shifting the result back down and comparing to val.
func WillShiftLeftOverflow(val int64, shift int) bool {
	if shift < 0 || shift >= 63 {
		return true
	}
	shifted := val << shift
	return (shifted >> shift) != val
}
