/*
 * T64 - Translation lookaside buffer
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

// Package tlb implements the split instruction/data translation lookaside
// buffers described in §4.4. A CPU owns one instance of each; there is no
// sharing across CPUs.
package tlb

const (
	// MaxEntries is the maximum number of resident translations, per §6.
	MaxEntries = 32

	pageOffsetBits = 12
	vpnBits        = 40
	regionIDBits   = 20
)

// PageType distinguishes access rights recorded for a translation.
type PageType int

const (
	PageReadWrite PageType = iota
	PageReadOnly
	PageExecute
)

// Entry is one resident translation, matching §3's exact field layout.
type Entry struct {
	Valid    bool
	VPN      uint64 // 40-bit virtual page number
	PAdr     uint64 // physical page address this VPN maps to
	PageType PageType
	PrivLevel int
	RegionID uint32 // 20-bit
	Uncached bool
}

// Info packs an entry's metadata into the 64-bit control-register format
// used when software reads a translation back via MFCR-style access.
func (e Entry) Info() uint64 {
	var w uint64
	if e.Valid {
		w |= 1 << 63
	}
	if e.Uncached {
		w |= 1 << 62
	}
	w |= uint64(e.PageType&0x3) << 60
	w |= uint64(e.PrivLevel&0x3) << 58
	w |= uint64(e.RegionID&0xFFFFF) << 32
	w |= uint64(e.PAdr) & 0xFFFFFFFF
	return w
}

// TLB is a small fully-associative translation cache. Replacement is
// least-recently-used on lookup, per §4.4: a free slot is always preferred,
// but once the TLB is full the slot with the oldest use wins eviction.
type TLB struct {
	entries [MaxEntries]Entry
	useSeq  [MaxEntries]uint64
	clock   uint64
}

// New returns an empty TLB.
func New() *TLB {
	return &TLB{}
}

// Reset invalidates every entry.
func (t *TLB) Reset() {
	for i := range t.entries {
		t.entries[i] = Entry{}
		t.useSeq[i] = 0
	}
	t.clock = 0
}

// touch marks slot i as the most recently used.
func (t *TLB) touch(i int) {
	t.clock++
	t.useSeq[i] = t.clock
}

// lru returns the index of the least recently used slot.
func (t *TLB) lru() int {
	victim := 0
	for i := 1; i < MaxEntries; i++ {
		if t.useSeq[i] < t.useSeq[victim] {
			victim = i
		}
	}
	return victim
}

// VPNOf returns the 40-bit virtual page number for a virtual address.
func VPNOf(vAdr uint64) uint64 {
	return (vAdr >> pageOffsetBits) & ((1 << vpnBits) - 1)
}

// PageOffsetOf returns the 12-bit page offset of a virtual address.
func PageOffsetOf(vAdr uint64) uint64 {
	return vAdr & ((1 << pageOffsetBits) - 1)
}

// Lookup searches for a valid translation of vpn, touching its slot so it
// is not the next LRU victim. ok is false on a miss.
func (t *TLB) Lookup(vpn uint64) (Entry, bool) {
	for i := range t.entries {
		if t.entries[i].Valid && t.entries[i].VPN == vpn {
			t.touch(i)
			return t.entries[i], true
		}
	}
	return Entry{}, false
}

// Insert installs e, replacing any existing translation for the same VPN if
// present, else taking a free slot, else evicting the least recently used
// one.
func (t *TLB) Insert(e Entry) {
	e.Valid = true
	e.VPN &= (1 << vpnBits) - 1
	e.RegionID &= (1 << regionIDBits) - 1
	for i := range t.entries {
		if t.entries[i].Valid && t.entries[i].VPN == e.VPN {
			t.entries[i] = e
			t.touch(i)
			return
		}
	}
	for i := range t.entries {
		if !t.entries[i].Valid {
			t.entries[i] = e
			t.touch(i)
			return
		}
	}
	i := t.lru()
	t.entries[i] = e
	t.touch(i)
}

// Purge invalidates the translation for vpn, if resident. It reports
// whether an entry was actually removed, since a purge can also be the
// signal that clears an outstanding LDR reservation on that page.
func (t *TLB) Purge(vpn uint64) bool {
	for i := range t.entries {
		if t.entries[i].Valid && t.entries[i].VPN == vpn {
			t.entries[i] = Entry{}
			t.useSeq[i] = 0
			return true
		}
	}
	return false
}

// PurgeAll invalidates every resident translation (IITLB/IDTLB with no
// argument, or a full flush from configuration reload).
func (t *TLB) PurgeAll() {
	t.Reset()
}
