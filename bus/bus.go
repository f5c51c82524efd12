/*
 * T64 - Module registry and coherence bus
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

// Package bus owns every module by number, routes physical address ranges
// to the module that backs them, and fans coherence messages out to the
// cache of every other module per §4.4's table. The system never lets a
// module reach another module directly; everything crosses the bus.
package bus

import (
	"fmt"
	"sort"

	"github.com/t64sim/t64/cache"
)

// Kind is a module's role, the T64 analog of the teacher's device models.
type Kind int

const (
	KindProcessor Kind = iota
	KindMemory
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindProcessor:
		return "PROC"
	case KindMemory:
		return "MEM"
	case KindIO:
		return "IO"
	default:
		return "?"
	}
}

// MaxModules is the number of module numbers the bus accepts (0 through
// MaxModules-1), per §6.
const MaxModules = 32

// Backend is the storage a module exposes through its SPA range. A memory
// module's byte array implements it; a processor module implements it too
// but answers every SPA access with an error, its registers being reached
// by registerGet/Set (§6) through HPABackend.
type Backend interface {
	ReadSPA(off int, length int) (uint64, error)
	WriteSPA(off int, length int, val uint64) error
}

// HPABackend is implemented by modules that also expose a hard physical
// address register window distinct from their SPA range (§13).
type HPABackend interface {
	ReadHPA(off int, length int) (uint64, error)
	WriteHPA(off int, length int, val uint64) error
}

// Module describes one bus participant's identity and address ranges,
// matching §3's Module type.
type Module struct {
	ModNum  int
	Kind    Kind
	HPAAdr  uint64
	SPAAdr  uint64
	SPALen  uint64
	Backend Backend
}

func (m *Module) contains(pAdr uint64) bool {
	return pAdr >= m.SPAAdr && pAdr < m.SPAAdr+m.SPALen
}

// CoherenceParticipant is the observer side of the four bus messages; a
// CPU's instruction and data caches both register as participants.
type CoherenceParticipant interface {
	Flush(pAdr uint64)
	Purge(pAdr uint64) bool
	FlushAll()
	PurgeAll()
}

type participant struct {
	modNum int
	p      CoherenceParticipant
}

// Bus is the shared fabric every module is registered on.
type Bus struct {
	modules      map[int]*Module
	participants []participant
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{modules: make(map[int]*Module)}
}

// AddModule registers a module by number. It errors if the number is
// already taken, exceeds MaxModules, or its SPA range overlaps another
// module's — the system owns modules by number and address is never
// shared, per the design notes' re-architecture of the original's cyclic
// module ownership.
func (b *Bus) AddModule(m *Module) error {
	if m.ModNum < 0 || m.ModNum >= MaxModules {
		return fmt.Errorf("bus: module number %d out of range 0..%d", m.ModNum, MaxModules-1)
	}
	if _, exists := b.modules[m.ModNum]; exists {
		return fmt.Errorf("bus: module number %d already in use", m.ModNum)
	}
	for _, other := range b.modules {
		if overlaps(m.SPAAdr, m.SPALen, other.SPAAdr, other.SPALen) {
			return fmt.Errorf("bus: module %d SPA range overlaps module %d", m.ModNum, other.ModNum)
		}
	}
	b.modules[m.ModNum] = m
	return nil
}

func overlaps(a0, aLen, b0, bLen uint64) bool {
	if aLen == 0 || bLen == 0 {
		return false
	}
	return a0 < b0+bLen && b0 < a0+aLen
}

// RemoveModule unregisters a module number.
func (b *Bus) RemoveModule(modNum int) error {
	if _, ok := b.modules[modNum]; !ok {
		return fmt.Errorf("bus: module number %d not present", modNum)
	}
	delete(b.modules, modNum)
	for i := range b.participants {
		if b.participants[i].modNum == modNum {
			b.participants = append(b.participants[:i], b.participants[i+1:]...)
			break
		}
	}
	return nil
}

// Module returns the module registered under modNum.
func (b *Bus) Module(modNum int) (*Module, bool) {
	m, ok := b.modules[modNum]
	return m, ok
}

// ReadHPA and WriteHPA reach a module's hard-physical-address window
// (§13), the path registerGet/Set uses to inspect a processor's registers
// from another module or the interactive layer without going through the
// SPA/virtual-address machinery at all.
func (b *Bus) ReadHPA(modNum, off, length int) (uint64, error) {
	m, ok := b.modules[modNum]
	if !ok {
		return 0, fmt.Errorf("bus: no module %d", modNum)
	}
	hb, ok := m.Backend.(HPABackend)
	if !ok {
		return 0, fmt.Errorf("bus: module %d exposes no HPA window", modNum)
	}
	return hb.ReadHPA(off, length)
}

func (b *Bus) WriteHPA(modNum, off, length int, val uint64) error {
	m, ok := b.modules[modNum]
	if !ok {
		return fmt.Errorf("bus: no module %d", modNum)
	}
	hb, ok := m.Backend.(HPABackend)
	if !ok {
		return fmt.Errorf("bus: module %d exposes no HPA window", modNum)
	}
	return hb.WriteHPA(off, length, val)
}

// Modules returns every registered module, ordered by module number, for
// deterministic iteration (config listing, diagnostics).
func (b *Bus) Modules() []*Module {
	out := make([]*Module, 0, len(b.modules))
	for _, m := range b.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModNum < out[j].ModNum })
	return out
}

// LookupByAdr returns the module whose SPA range contains pAdr.
func (b *Bus) LookupByAdr(pAdr uint64) (*Module, bool) {
	for _, m := range b.modules {
		if m.contains(pAdr) {
			return m, true
		}
	}
	return nil, false
}

// RegisterCache attaches a CPU's cache (instruction or data) as a
// coherence participant under the CPU's own module number. reqModNum
// identifies the issuer on outgoing bus ops so self-issued traffic is
// skipped when fanning out, mirroring T64Processor's busOp self-checks.
func (b *Bus) RegisterCache(modNum int, p CoherenceParticipant) {
	b.participants = append(b.participants, participant{modNum: modNum, p: p})
}

func (b *Bus) fanOut(reqModNum int, f func(CoherenceParticipant)) {
	for _, part := range b.participants {
		if part.modNum == reqModNum {
			continue
		}
		f(part.p)
	}
}

// CacheIssuer adapts the bus to one CPU's cache.Bus interface, fulfilling
// the outgoing half of §4.4's four messages for a given requesting module.
type CacheIssuer struct {
	bus       *Bus
	reqModNum int
}

// NewCacheIssuer returns a cache.Bus usable by reqModNum's instruction or
// data cache.
func (b *Bus) NewCacheIssuer(reqModNum int) *CacheIssuer {
	return &CacheIssuer{bus: b, reqModNum: reqModNum}
}

func (ci *CacheIssuer) fetchBlock(pAdr uint64) [cache.BlockSize]byte {
	var block [cache.BlockSize]byte
	m, ok := ci.bus.LookupByAdr(pAdr)
	if !ok {
		return block
	}
	off := int(pAdr - m.SPAAdr)
	// Backends that only implement scalar ReadSPA are read word-at-a-time.
	if bulk, ok := m.Backend.(bulkBackend); ok {
		data, err := bulk.ReadSPABytes(off, cache.BlockSize)
		if err == nil {
			copy(block[:], data)
		}
		return block
	}
	for i := 0; i < cache.BlockSize; i += 8 {
		v, err := m.Backend.ReadSPA(off+i, 8)
		if err != nil {
			break
		}
		for j := 0; j < 8; j++ {
			block[i+j] = byte(v >> (8 * (7 - j)))
		}
	}
	return block
}

// bulkBackend lets a memory-backed module serve a whole coherence block in
// one call instead of eight scalar reads.
type bulkBackend interface {
	ReadSPABytes(off, length int) ([]byte, error)
	WriteSPABytes(off int, data []byte) error
}

// IssueReadSharedBlock implements cache.Bus: read-shared-block observers
// downgrade any exclusive copy to shared via Flush.
func (ci *CacheIssuer) IssueReadSharedBlock(pAdr uint64) [cache.BlockSize]byte {
	ci.bus.fanOut(ci.reqModNum, func(p CoherenceParticipant) { p.Flush(pAdr) })
	return ci.fetchBlock(pAdr)
}

// IssueReadPrivateBlock implements cache.Bus: read-private-block observers
// invalidate any copy entirely via Purge.
func (ci *CacheIssuer) IssueReadPrivateBlock(pAdr uint64) [cache.BlockSize]byte {
	ci.bus.fanOut(ci.reqModNum, func(p CoherenceParticipant) { p.Purge(pAdr) })
	return ci.fetchBlock(pAdr)
}

// IssueWriteBlock implements cache.Bus: write-block is a no-op for
// observers, since by invariant the issuer already holds the only
// exclusive copy before it may write.
func (ci *CacheIssuer) IssueWriteBlock(pAdr uint64, data [cache.BlockSize]byte) {
	m, ok := ci.bus.LookupByAdr(pAdr)
	if !ok {
		return
	}
	off := int(pAdr - m.SPAAdr)
	if bulk, ok := m.Backend.(bulkBackend); ok {
		_ = bulk.WriteSPABytes(off, data[:])
		return
	}
	for i := 0; i < cache.BlockSize; i += 8 {
		var v uint64
		for j := 0; j < 8; j++ {
			v = v<<8 | uint64(data[i+j])
		}
		_ = m.Backend.WriteSPA(off+i, 8, v)
	}
}

// IssueReadUncached and IssueWriteUncached implement the two uncached
// messages: both flush AND purge every observer's copy of the block,
// matching T64Processor's busOpReadUncached/busOpWriteUncached, which
// invalidate both caches unconditionally rather than picking one action.
func (ci *CacheIssuer) IssueReadUncached(pAdr uint64, length int) []byte {
	ci.bus.fanOut(ci.reqModNum, func(p CoherenceParticipant) {
		p.Flush(pAdr)
		p.Purge(pAdr)
	})
	m, ok := ci.bus.LookupByAdr(pAdr)
	if !ok {
		return make([]byte, length)
	}
	off := int(pAdr - m.SPAAdr)
	v, err := m.Backend.ReadSPA(off, length)
	if err != nil {
		return make([]byte, length)
	}
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		out[i] = byte(v >> (8 * (length - 1 - i)))
	}
	return out
}

func (ci *CacheIssuer) IssueWriteUncached(pAdr uint64, data []byte) {
	ci.bus.fanOut(ci.reqModNum, func(p CoherenceParticipant) {
		p.Flush(pAdr)
		p.Purge(pAdr)
	})
	m, ok := ci.bus.LookupByAdr(pAdr)
	if !ok {
		return
	}
	off := int(pAdr - m.SPAAdr)
	var v uint64
	for _, b := range data {
		v = v<<8 | uint64(b)
	}
	_ = m.Backend.WriteSPA(off, len(data), v)
}
