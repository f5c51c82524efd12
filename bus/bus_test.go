package bus

import (
	"testing"

	"github.com/t64sim/t64/cache"
	"github.com/t64sim/t64/memory"
)

func TestAddModuleRejectsOverlap(t *testing.T) {
	b := New()
	mem := memory.New(0x1000)
	if err := b.AddModule(&Module{ModNum: 1, Kind: KindMemory, SPAAdr: 0, SPALen: 0x1000, Backend: mem}); err != nil {
		t.Fatal(err)
	}
	mem2 := memory.New(0x1000)
	if err := b.AddModule(&Module{ModNum: 2, Kind: KindMemory, SPAAdr: 0x800, SPALen: 0x1000, Backend: mem2}); err == nil {
		t.Error("expected overlap rejection")
	}
}

func TestLookupByAdrFindsOwningModule(t *testing.T) {
	b := New()
	mem := memory.New(0x1000)
	_ = b.AddModule(&Module{ModNum: 3, Kind: KindMemory, SPAAdr: 0x4000, SPALen: 0x1000, Backend: mem})
	m, ok := b.LookupByAdr(0x4010)
	if !ok || m.ModNum != 3 {
		t.Errorf("got %+v ok=%v", m, ok)
	}
	if _, ok := b.LookupByAdr(0x9000); ok {
		t.Error("expected no module at unmapped address")
	}
}

func TestCacheIssuerRoundTripsThroughMemory(t *testing.T) {
	b := New()
	mem := memory.New(0x10000)
	_ = b.AddModule(&Module{ModNum: 0, Kind: KindMemory, SPAAdr: 0, SPALen: 0x10000, Backend: mem})
	issuer := b.NewCacheIssuer(1)
	c := cache.New(4, issuer)
	c.Write(0x100, []byte{0xAA, 0xBB})
	got := c.Read(0x100, 2)
	if got[0] != 0xAA || got[1] != 0xBB {
		t.Errorf("got %x", got)
	}
	// the write-block message must have landed in the backing memory too.
	raw, err := mem.ReadBytes(0x100, 2)
	if err != nil {
		t.Fatal(err)
	}
	if raw[0] != 0xAA || raw[1] != 0xBB {
		t.Errorf("expected write-block to reach backing memory, got %x", raw)
	}
}

func TestFanOutSkipsIssuerAndReachesObservers(t *testing.T) {
	b := New()
	mem := memory.New(0x10000)
	_ = b.AddModule(&Module{ModNum: 0, Kind: KindMemory, SPAAdr: 0, SPALen: 0x10000, Backend: mem})

	issuerA := b.NewCacheIssuer(1)
	cacheA := cache.New(4, issuerA)
	b.RegisterCache(1, cacheA)

	issuerB := b.NewCacheIssuer(2)
	cacheB := cache.New(4, issuerB)
	b.RegisterCache(2, cacheB)

	cacheA.Read(0x200, 8)
	cacheB.Write(0x200, []byte{1, 2, 3, 4})

	if _, ok := cacheA.Holds(0x200); ok {
		t.Error("expected cacheA's copy to be purged by cacheB's read-private-block")
	}
}

type fakeRegisters struct {
	regs [4]uint64
}

func (f *fakeRegisters) ReadSPA(off, length int) (uint64, error) {
	return 0, nil
}

func (f *fakeRegisters) WriteSPA(off, length int, val uint64) error {
	return nil
}

func (f *fakeRegisters) ReadHPA(off, length int) (uint64, error) {
	return f.regs[off/8], nil
}

func (f *fakeRegisters) WriteHPA(off, length int, val uint64) error {
	f.regs[off/8] = val
	return nil
}

func TestBusReadWriteHPA(t *testing.T) {
	b := New()
	regs := &fakeRegisters{}
	_ = b.AddModule(&Module{ModNum: 5, Kind: KindProcessor, Backend: regs})

	if err := b.WriteHPA(5, 8, 8, 0x1234); err != nil {
		t.Fatal(err)
	}
	got, err := b.ReadHPA(5, 8, 8)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x1234 {
		t.Errorf("ReadHPA = %#x, want %#x", got, 0x1234)
	}
}

func TestBusReadHPAOnNonHPAModule(t *testing.T) {
	b := New()
	mem := memory.New(0x1000)
	_ = b.AddModule(&Module{ModNum: 6, Kind: KindMemory, SPAAdr: 0, SPALen: 0x1000, Backend: mem})
	if _, err := b.ReadHPA(6, 0, 8); err == nil {
		t.Error("expected an error reading HPA from a module with no HPA window")
	}
}
