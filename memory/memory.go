/*
 * T64 - Physical memory module
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

// Package memory is the backing store behind a MEM module's SPA range. The
// bus holds bytes big-endian per §6; callers read/write multi-byte values
// through Read/Write, which do the big-endian packing themselves so every
// other module sees the same byte order.
package memory

import "fmt"

// Memory is one module's flat physical store, addressed 0..Len-1 relative
// to its SPA base (the bus/module layer adds the base).
type Memory struct {
	data []byte
}

// New allocates a Memory of the given length in bytes.
func New(length int) *Memory {
	return &Memory{data: make([]byte, length)}
}

// Len returns the store's size in bytes.
func (m *Memory) Len() int { return len(m.data) }

func (m *Memory) bounds(off, length int) error {
	if off < 0 || length < 0 || off+length > len(m.data) {
		return fmt.Errorf("memory: offset %#x length %d out of range (size %#x)", off, length, len(m.data))
	}
	return nil
}

// Read copies length bytes starting at off and returns them as a big-endian
// unsigned integer. length must be 1, 2, 4, or 8.
func (m *Memory) Read(off, length int) (uint64, error) {
	if err := m.bounds(off, length); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < length; i++ {
		v = v<<8 | uint64(m.data[off+i])
	}
	return v, nil
}

// Write stores the low length bytes of val at off, big-endian.
func (m *Memory) Write(off, length int, val uint64) error {
	if err := m.bounds(off, length); err != nil {
		return err
	}
	for i := 0; i < length; i++ {
		shift := 8 * (length - 1 - i)
		m.data[off+i] = byte(val >> shift)
	}
	return nil
}

// ReadBytes copies length raw bytes starting at off.
func (m *Memory) ReadBytes(off, length int) ([]byte, error) {
	if err := m.bounds(off, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, m.data[off:off+length])
	return out, nil
}

// WriteBytes stores data verbatim starting at off.
func (m *Memory) WriteBytes(off int, data []byte) error {
	if err := m.bounds(off, len(data)); err != nil {
		return err
	}
	copy(m.data[off:], data)
	return nil
}

// ReadSPA implements bus.Backend.
func (m *Memory) ReadSPA(off, length int) (uint64, error) { return m.Read(off, length) }

// WriteSPA implements bus.Backend.
func (m *Memory) WriteSPA(off, length int, val uint64) error { return m.Write(off, length, val) }

// ReadSPABytes lets the bus pull a whole coherence block in one call
// instead of reading it in scalar word-sized pieces.
func (m *Memory) ReadSPABytes(off, length int) ([]byte, error) { return m.ReadBytes(off, length) }

// WriteSPABytes is the bulk counterpart of WriteSPA.
func (m *Memory) WriteSPABytes(off int, data []byte) error { return m.WriteBytes(off, data) }

// Load copies an assembled program/data image into memory starting at off,
// used by the system module's configuration-time image loading.
func (m *Memory) Load(off int, image []byte) error {
	return m.WriteBytes(off, image)
}

// Clear zeroes the entire store, used by systemReset.
func (m *Memory) Clear() {
	for i := range m.data {
		m.data[i] = 0
	}
}
