package main

import "testing"

// REX is only latched when it is the byte immediately preceding the
// opcode; a legacy prefix byte seen afterward invalidates it.
func TestScanPrefixes_RexSupersededByLaterLegacyPrefix(t *testing.T) {
	c := newTestCPU()
	c.Is64BitMode = true
	c.beginDecode()
	c.d.addrBits = 64
	code := []byte{0x48, 0x66, 0x01, 0xD8} // REX.W, then 0x66, then ADD EAX,EBX (0x66 wins, REX.W lost)
	c.mem.LoadBytes(0x1000, code)
	c.RIP = 0x1000

	c.scanPrefixes()

	if c.d.rex.Present {
		t.Error("REX.W should be superseded by the later 0x66 prefix")
	}
	if !c.d.prefix.opSize {
		t.Error("expected the 0x66 operand-size override to be latched")
	}
	if c.d.opcode != 0x01 {
		t.Errorf("opcode: got 0x%X, want 0x01", c.d.opcode)
	}
}

// Six redundant LOCK prefixes ahead of a two-byte instruction must still
// reach the opcode byte, per the tolerance boundary scenario.
func TestScanPrefixes_ToleratesRedundantPrefixes(t *testing.T) {
	c := newTestCPU()
	c.beginDecode()
	code := []byte{0xF0, 0xF0, 0xF0, 0xF0, 0xF0, 0xF0, 0x21, 0xD8}
	c.mem.LoadBytes(0x1000, code)
	c.RIP = 0x1000

	c.scanPrefixes()

	if !c.d.prefix.lock {
		t.Error("expected LOCK prefix latched")
	}
	if c.d.opcode != 0x21 {
		t.Errorf("opcode: got 0x%X, want 0x21", c.d.opcode)
	}
	if c.RIP != 0x1007 {
		t.Errorf("RIP after prefix scan: got 0x%X, want 0x1007 (6 prefixes + opcode)", c.RIP)
	}
}

// mod=00,rm=101 in 64-bit addressing is RIP-relative, not a bare disp32.
func TestEffectiveAddress_RIPRelative(t *testing.T) {
	c := newTestCPU()
	c.Is64BitMode = true
	c.beginDecode()
	c.d.addrBits = 64
	// ModR/M 0x05 = mod00,reg000,rm101, followed by disp32 = 0x10.
	code := []byte{0x05, 0x10, 0x00, 0x00, 0x00}
	c.mem.LoadBytes(0x2000, code)
	c.RIP = 0x2000 // points at the ModR/M byte; fetching it and disp32 advances RIP to 0x2005

	off, seg := c.effectiveAddress32or64(64)
	off = c.ripRelativeFixup(off)

	if seg != SegDS {
		t.Errorf("seg: got %v, want SegDS", seg)
	}
	if off != 0x2015 {
		t.Errorf("RIP-relative address: got 0x%X, want 0x2015", off)
	}
}

// SIB byte with base=101,mod=0 means "no base, disp32 only".
func TestEffectiveAddress_SIBNoBaseDisp32(t *testing.T) {
	c := newTestCPU()
	c.beginDecode()
	c.d.addrBits = 32
	// ModR/M 0x04 = mod00,reg000,rm100 (SIB follows).
	// SIB 0x05 = scale00,index100(none),base101.
	code := []byte{0x04, 0x05, 0x78, 0x56, 0x34, 0x12}
	c.mem.LoadBytes(0x3000, code)
	c.RIP = 0x3000

	off, seg := c.effectiveAddress32or64(32)

	if seg != SegDS {
		t.Errorf("seg: got %v, want SegDS", seg)
	}
	if off != 0x12345678 {
		t.Errorf("disp32-only SIB address: got 0x%X, want 0x12345678", off)
	}
}

// 16-bit addressing mode mod=00,rm=110 is a disp16-only encoding, not
// [BP].
func TestEffectiveAddress16_Disp16Only(t *testing.T) {
	c := newTestCPU()
	c.beginDecode()
	c.d.addrBits = 16
	code := []byte{0x06, 0x34, 0x12} // ModR/M 0x06 = mod00,reg000,rm110
	c.mem.LoadBytes(0x4000, code)
	c.RIP = 0x4000

	off, seg := c.effectiveAddress16()

	if seg != SegDS {
		t.Errorf("seg: got %v, want SegDS", seg)
	}
	if off != 0x1234 {
		t.Errorf("disp16 address: got 0x%X, want 0x1234", off)
	}
}

// A segment override prefix wins over the addressing mode's implicit
// default segment (e.g. SS for [BP+...]).
func TestEffectiveAddress16_SegmentOverrideWins(t *testing.T) {
	c := newTestCPU()
	c.beginDecode()
	c.d.addrBits = 16
	c.d.prefix.segOverride = int(SegES)
	code := []byte{0x46, 0x05} // mod01,reg000,rm110 = [BP+disp8], normally SS
	c.mem.LoadBytes(0x5000, code)
	c.RIP = 0x5000
	c.Regs.Write(RegRBP, W16, 0x100)

	_, seg := c.effectiveAddress16()

	if seg != SegES {
		t.Errorf("seg: got %v, want SegES (override must win over implicit SS)", seg)
	}
}

func TestResolveSizes_RexWWinsOver66Prefix(t *testing.T) {
	c := newTestCPU()
	c.Is64BitMode = true
	c.d.rex.W = true
	c.d.prefix.opSize = true
	c.resolveSizes()
	if c.d.opSize != W64 {
		t.Errorf("opSize: got %v, want W64 (REX.W always wins in 64-bit mode)", c.d.opSize)
	}
}

func TestResolveSizes_16BitDefaultToggledBy66(t *testing.T) {
	c := newTestCPU()
	c.DefaultOperandSize = 16
	c.d.prefix.opSize = true
	c.resolveSizes()
	if c.d.opSize != W32 {
		t.Errorf("opSize: got %v, want W32 (0x66 toggles a 16-bit default up to 32)", c.d.opSize)
	}
}
