/*
 * T64 - Instruction and data cache with bus coherence
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

// Package cache implements the split instruction/data cache described in
// §4.4, including the four-message bus coherence protocol. A Cache never
// raises a trap; address legality is the CPU's job before it ever calls in
// here.
package cache

// BlockSize is the coherence unit: every bus message and every cache line
// moves exactly one block.
const BlockSize = 64

// State is the MESI-lite state of a resident line, per §3.
type State int

const (
	Invalid State = iota
	Shared
	ExclusiveClean
	ExclusiveModified
)

func (s State) String() string {
	switch s {
	case Invalid:
		return "invalid"
	case Shared:
		return "shared"
	case ExclusiveClean:
		return "exclusive-clean"
	case ExclusiveModified:
		return "exclusive-modified"
	default:
		return "unknown"
	}
}

// Line is one resident cache block.
type Line struct {
	Tag   uint64
	State State
	Data  [BlockSize]byte
}

func blockAddr(pAdr uint64) uint64 {
	return pAdr &^ (BlockSize - 1)
}

// Bus is the coherence fabric a Cache issues messages to and is called back
// on for incoming messages from other modules' caches, per §4.4's table.
type Bus interface {
	// IssueReadSharedBlock fetches a block for read, possibly downgrading
	// another module's exclusive copy to shared.
	IssueReadSharedBlock(pAdr uint64) [BlockSize]byte
	// IssueReadPrivateBlock fetches a block for write, invalidating any
	// other module's copy.
	IssueReadPrivateBlock(pAdr uint64) [BlockSize]byte
	// IssueWriteBlock announces that the issuing module now holds pAdr
	// exclusive-modified; by invariant no other module may also hold it.
	IssueWriteBlock(pAdr uint64, data [BlockSize]byte)
}

// Cache is a fully-associative set of Lines backed by a coherence Bus.
type Cache struct {
	lines []Line
	bus   Bus
	next  int
}

// New returns a Cache with the given number of resident lines.
func New(numLines int, bus Bus) *Cache {
	return &Cache{lines: make([]Line, numLines), bus: bus}
}

func (c *Cache) find(tag uint64) int {
	for i := range c.lines {
		if c.lines[i].State != Invalid && c.lines[i].Tag == tag {
			return i
		}
	}
	return -1
}

func (c *Cache) allocate(tag uint64) int {
	for i := range c.lines {
		if c.lines[i].State == Invalid {
			return i
		}
	}
	idx := c.next
	c.next = (c.next + 1) % len(c.lines)
	c.lines[idx] = Line{}
	return idx
}

// Read returns length bytes at pAdr, pulling the owning block in as Shared
// on a miss.
func (c *Cache) Read(pAdr uint64, length int) []byte {
	tag := blockAddr(pAdr)
	idx := c.find(tag)
	if idx < 0 {
		idx = c.allocate(tag)
		c.lines[idx] = Line{Tag: tag, State: Shared, Data: c.bus.IssueReadSharedBlock(tag)}
	}
	off := pAdr - tag
	out := make([]byte, length)
	copy(out, c.lines[idx].Data[off:])
	return out
}

// Write stores data at pAdr, acquiring exclusive ownership of the block
// first if this cache does not already hold it exclusive.
func (c *Cache) Write(pAdr uint64, data []byte) {
	tag := blockAddr(pAdr)
	idx := c.find(tag)
	if idx < 0 || c.lines[idx].State == Shared {
		block := c.bus.IssueReadPrivateBlock(tag)
		if idx < 0 {
			idx = c.allocate(tag)
		}
		c.lines[idx] = Line{Tag: tag, State: ExclusiveClean, Data: block}
	}
	off := pAdr - tag
	copy(c.lines[idx].Data[off:], data)
	c.lines[idx].State = ExclusiveModified
	c.bus.IssueWriteBlock(tag, c.lines[idx].Data)
}

// Flush demotes the line containing pAdr to Shared, per the observer action
// for an incoming read-shared-block message. A modified line is written
// back to the bus first, so the demotion never silently drops dirty data.
func (c *Cache) Flush(pAdr uint64) {
	idx := c.find(blockAddr(pAdr))
	if idx < 0 {
		return
	}
	if c.lines[idx].State == ExclusiveModified {
		c.bus.IssueWriteBlock(c.lines[idx].Tag, c.lines[idx].Data)
	}
	if c.lines[idx].State == ExclusiveClean || c.lines[idx].State == ExclusiveModified {
		c.lines[idx].State = Shared
	}
}

// Purge invalidates the line containing pAdr entirely, per the observer
// action for an incoming read-private-block message, or for an explicit
// PICA/PDCA instruction. An exclusive-modified line is written back first.
// It reports whether a resident line was removed; the CPU's PDCA handler
// uses that to clear an LDR reservation on the block. A purge driven by a
// bus coherence message leaves the reservation as it is.
func (c *Cache) Purge(pAdr uint64) bool {
	idx := c.find(blockAddr(pAdr))
	if idx < 0 {
		return false
	}
	if c.lines[idx].State == ExclusiveModified {
		c.bus.IssueWriteBlock(c.lines[idx].Tag, c.lines[idx].Data)
	}
	c.lines[idx] = Line{}
	return true
}

// FlushAll demotes every exclusive line to Shared (FICA/FDCA with no
// address operand), writing back any exclusive-modified line first.
func (c *Cache) FlushAll() {
	for i := range c.lines {
		if c.lines[i].State == ExclusiveModified {
			c.bus.IssueWriteBlock(c.lines[i].Tag, c.lines[i].Data)
		}
		if c.lines[i].State == ExclusiveClean || c.lines[i].State == ExclusiveModified {
			c.lines[i].State = Shared
		}
	}
}

// PurgeAll invalidates every resident line, writing back any
// exclusive-modified line first.
func (c *Cache) PurgeAll() {
	for i := range c.lines {
		if c.lines[i].State == ExclusiveModified {
			c.bus.IssueWriteBlock(c.lines[i].Tag, c.lines[i].Data)
		}
		c.lines[i] = Line{}
	}
}

// Holds reports whether this cache currently holds the block containing
// pAdr in any valid state, and returns that state.
func (c *Cache) Holds(pAdr uint64) (State, bool) {
	idx := c.find(blockAddr(pAdr))
	if idx < 0 {
		return Invalid, false
	}
	return c.lines[idx].State, true
}
