package bitfield

import "testing"

func TestExtractDepositRoundTrip(t *testing.T) {
	cases := []struct {
		pos, length int
	}{
		{0, 1}, {0, 13}, {13, 2}, {19, 3}, {32, 20}, {52, 12}, {0, 64}, {63, 1},
	}
	for _, c := range cases {
		v := uint64(0x0123456789ABCDEF)
		field := ExtractField64(v, c.pos, c.length)
		result := DepositField(v, c.pos, c.length, field)
		if result != v {
			t.Errorf("round trip failed for pos=%d len=%d: got %x want %x", c.pos, c.length, result, v)
		}
	}
}

func TestSignExtend(t *testing.T) {
	if SignExtend(0x1FFF, 13) != -1 {
		t.Error("expected all-ones 13-bit field to sign extend to -1")
	}
	if SignExtend(0x0FFF, 13) != 0x0FFF {
		t.Error("expected positive 13-bit field to extend unchanged")
	}
}

func TestInRangeForFieldS(t *testing.T) {
	if !InRangeForFieldS(-4096, 13) || !InRangeForFieldS(4095, 13) {
		t.Error("boundary values of signed 13-bit field should be in range")
	}
	if InRangeForFieldS(4096, 13) || InRangeForFieldS(-4097, 13) {
		t.Error("out of range signed 13-bit values should fail")
	}
}

func TestAddAdrOfs32PreservesHigh(t *testing.T) {
	a := uint64(0xDEADBEEF00000010)
	result := AddAdrOfs32(a, 4)
	if result&0xFFFFFFFF00000000 != a&0xFFFFFFFF00000000 {
		t.Error("AddAdrOfs32 must not touch the high 32 bits")
	}
	if uint32(result) != 0x14 {
		t.Errorf("got low32 %x want 0x14", uint32(result))
	}
}

func TestWillAddOverflow(t *testing.T) {
	if !WillAddOverflow(1<<63-1, 1) {
		t.Error("INT64_MAX+1 should overflow")
	}
	if WillAddOverflow(1, 1) {
		t.Error("1+1 should not overflow")
	}
}

func TestWillShiftLeftOverflow(t *testing.T) {
	if !WillShiftLeftOverflow(1<<62, 2) {
		t.Error("shifting a high bit out should overflow")
	}
	if WillShiftLeftOverflow(1, 2) {
		t.Error("small shift should not overflow")
	}
}

func TestShiftRight128(t *testing.T) {
	if ShiftRight128(0, 0xFF, 0) != 0xFF {
		t.Error("shift by zero should return lo unchanged")
	}
	got := ShiftRight128(1, 0, 1)
	want := uint64(1) << 63
	if got != want {
		t.Errorf("got %x want %x", got, want)
	}
}
