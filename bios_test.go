package main

import "testing"

// A disk image backing a FileBlockDevice, used by both the CHS and LBA
// INT 13h tests: 64 sectors of 512 bytes, sector N filled with byte N.
type fakeDiskImage struct {
	sectors int
}

func (f *fakeDiskImage) ReadAt(p []byte, off int64) (int, error) {
	n := 0
	for i := range p {
		sector := (off + int64(i)) / 512
		p[i] = byte(sector)
		n++
	}
	return n, nil
}

func newTestDisk(c *CPU) {
	bd := NewFileBlockDevice(&fakeDiskImage{sectors: 64}, 4, 16, 16) // 4 cyl * 16 heads * 16 spt = 1024 sectors
	c.bios.SetBlockDevice(bd)
}

// INT 13h AH=02 (CHS read) reads the requested sector count into ES:DI
// using the CHS-to-LBA geometry conversion.
func TestInt13CHSRead(t *testing.T) {
	c := newTestCPU()
	newTestDisk(c)
	c.Seg[SegES].LoadReal(0x0000)

	c.Regs.Write(RegRAX, W16, 0x0201) // AH=02 read, AL=1 sector
	c.Regs.Write(RegRCX, W16, 0x0002) // CH=0 cyl, CL=sector 2 (1-based)
	c.Regs.Write(RegRDX, W16, 0x0000) // DH=0 head
	c.Regs.Write(RegRDI, W16, 0x8000)

	c.bios.int13CHSRead(c)

	if c.RFlags.CF() {
		t.Fatal("expected CF=0 on success")
	}
	if got := c.Regs.Read(RegRAX, W16); got != 1 {
		t.Errorf("AL (sectors read): got %d, want 1", got)
	}
	// CHS(cyl=0,head=0,sector=2) -> LBA 1.
	want := byte(1)
	got := byte(c.mem.Read8(0x8000))
	if got != want {
		t.Errorf("sector data: got %d, want %d (LBA 1's fill byte)", got, want)
	}
}

// INT 13h AH=02 with no attached disk reports failure via AH=0x01/CF=1,
// never panicking.
func TestInt13CHSRead_NoDiskFails(t *testing.T) {
	c := newTestCPU()
	c.Regs.Write(RegRAX, W16, 0x0201)
	c.bios.int13CHSRead(c)
	if !c.RFlags.CF() {
		t.Error("expected CF=1 with no disk attached")
	}
	if got := c.Regs.Read(RegRAX, W16); got != 0x0100 {
		t.Errorf("AH: got 0x%X, want 0x0100", got)
	}
}

// INT 13h AH=42 (LBA read) reads the 0x10-byte Disk Address Packet
// layout and honors its LBA/count/buffer fields.
func TestInt13LBARead_Standard16ByteDAP(t *testing.T) {
	c := newTestCPU()
	newTestDisk(c)
	c.Seg[SegDS].LoadReal(0x0000)

	// Standard DAP at DS:0x600: size=0x10, reserved, count=1,
	// bufferOff/bufferSeg, lba (8 bytes).
	dapOff := uint64(0x600)
	c.mem.Write8(dapOff, 0x10)
	c.mem.Write8(dapOff+1, 0)
	c.mem.Write16(dapOff+2, 1)
	c.mem.Write16(dapOff+4, 0x9000) // buffer offset
	c.mem.Write16(dapOff+6, 0x0000) // buffer segment
	c.mem.Write64(dapOff+8, 5) // LBA 5

	c.Regs.Write(RegRSI, W16, uint64(dapOff))
	c.Regs.Write(RegRAX, W16, 0x4200)

	c.bios.int13LBARead(c)

	if c.RFlags.CF() {
		t.Fatal("expected CF=0 on success")
	}
	got := byte(c.mem.Read8(0x9000))
	if got != 5 {
		t.Errorf("sector data: got %d, want 5 (LBA 5's fill byte)", got)
	}
}

// A DAP with size>=0x18 selects the extended (EDD) layout with a flat
// 64-bit buffer pointer instead of segment:offset.
func TestInt13LBARead_Extended24ByteDAP(t *testing.T) {
	c := NewCPU(NewMemory(2<<20), nil) // buffer at 1 MiB needs more than newTestCPU's 1 MiB
	newTestDisk(c)
	c.Seg[SegDS].LoadReal(0x0000)

	dapOff := uint64(0x600)
	c.mem.Write8(dapOff, 0x18)
	c.mem.Write16(dapOff+2, 2)          // count=2
	c.mem.Write64(dapOff+4, 0x100000)   // flat 64-bit buffer
	c.mem.Write64(dapOff+0x0C, 9)       // LBA 9

	c.Regs.Write(RegRSI, W16, uint64(dapOff))
	c.bios.int13LBARead(c)

	if c.RFlags.CF() {
		t.Fatal("expected CF=0 on success")
	}
	if got := c.mem.Read8(0x100000); got != 9 {
		t.Errorf("first sector byte: got %d, want 9", got)
	}
	if got := c.mem.Read8(0x100000 + 512); got != 10 {
		t.Errorf("second sector byte: got %d, want 10", got)
	}
}

// INT 10h AX=4F00 writes a VESA info block signed "VESA" at ES:DI.
func TestInt10VBE_ControllerInfo(t *testing.T) {
	c := newTestCPU()
	c.Seg[SegES].LoadReal(0x0000)
	c.Regs.Write(RegRDI, W16, 0x7000)
	c.Regs.Write(RegRAX, W16, 0x4F00)

	c.bios.int10VBE(c)

	sig := []byte{byte(c.mem.Read8(0x7000)), byte(c.mem.Read8(0x7001)), byte(c.mem.Read8(0x7002)), byte(c.mem.Read8(0x7003))}
	if string(sig) != "VESA" {
		t.Errorf("signature: got %q, want \"VESA\"", sig)
	}
	if got := c.Regs.Read(RegRAX, W16); got != 0x004F {
		t.Errorf("AX: got 0x%X, want 0x004F (success)", got)
	}
}

// INT 10h AX=4F01 writes a mode-info block with the requested mode's
// width/height/bpp and the video device's frame-buffer address.
func TestInt10VBE_ModeInfo(t *testing.T) {
	c := newTestCPU()
	c.Seg[SegES].LoadReal(0x0000)
	c.Regs.Write(RegRDI, W16, 0x7000)
	c.Regs.Write(RegRAX, W16, 0x4F01)
	c.Regs.Write(RegRCX, W16, 0x141)

	c.bios.int10VBE(c)

	width := uint16(c.mem.Read16(0x7000 + 18))
	height := uint16(c.mem.Read16(0x7000 + 20))
	bpp := byte(c.mem.Read8(0x7000 + 25))
	fb := uint32(c.mem.Read32(0x7000 + 40))

	if width != 1024 || height != 768 {
		t.Errorf("dims: got %dx%d, want 1024x768", width, height)
	}
	if bpp != 32 {
		t.Errorf("bpp: got %d, want 32", bpp)
	}
	if fb != 0xFD000000 {
		t.Errorf("framebuffer: got 0x%X, want 0xFD000000", fb)
	}
}

// INT 15h EAX=0xE820 writes one 20-byte SMAP entry and advances EBX,
// wrapping back to 0 after the single synthesized "all of RAM" entry.
func TestInt15E820_SingleEntryWraps(t *testing.T) {
	c := newTestCPU()
	c.Seg[SegES].LoadReal(0x0000)
	c.Regs.Write(RegRAX, W32, 0xE820)
	c.Regs.Write(RegRBX, W32, 0)
	c.Regs.Write(RegRDI, W32, 0x8000)

	c.bios.int15Dispatch(c)

	if c.RFlags.CF() {
		t.Fatal("expected CF=0 on success")
	}
	if got := c.Regs.Read(RegRAX, W32); got != smapSignature {
		t.Errorf("EAX (SMAP signature): got 0x%X, want 0x%X", got, smapSignature)
	}
	if got := c.Regs.Read(RegRCX, W32); got != 20 {
		t.Errorf("ECX (entry size): got %d, want 20", got)
	}
	if got := c.Regs.Read(RegRBX, W32); got != 0 {
		t.Errorf("EBX continuation: got %d, want 0 (wrapped, last entry)", got)
	}
	length := c.mem.Read64(0x8000 + 8)
	if length != uint64(c.mem.Size()) {
		t.Errorf("entry length: got 0x%X, want 0x%X (full RAM size)", length, c.mem.Size())
	}
}

// INT 15h AH=87 copies 2*CX bytes between the source/destination base
// addresses named by the two GDT-shaped descriptors at ES:SI+0x10/+0x18.
func TestInt15CopyExtended(t *testing.T) {
	c := newTestCPU()
	c.Seg[SegES].LoadReal(0x0000)

	srcDesc := Descriptor{Base: 0x20000, Limit: 0xFFFF, Present: true}
	dstDesc := Descriptor{Base: 0x30000, Limit: 0xFFFF, Present: true}
	si := uint64(0x600)
	copy_ := func(off uint64, d Descriptor) {
		b := encodeDescriptor(d)
		for i, v := range b {
			c.mem.Write8(off+uint64(i), v)
		}
	}
	copy_(si+0x10, srcDesc)
	copy_(si+0x18, dstDesc)
	c.mem.Write8(0x20000, 0xAB)
	c.mem.Write8(0x20001, 0xCD)

	c.Regs.Write(RegRSI, W16, si)
	c.Regs.Write(RegRCX, W16, 1) // 2*1 = 2 bytes
	c.Regs.Write(RegRAX, W16, 0x8700)

	c.bios.int15Dispatch(c)

	if c.RFlags.CF() {
		t.Fatal("expected CF=0 on success")
	}
	if got := c.mem.Read8(0x30000); got != 0xAB {
		t.Errorf("dst[0]: got 0x%X, want 0xAB", got)
	}
	if got := c.mem.Read8(0x30001); got != 0xCD {
		t.Errorf("dst[1]: got 0x%X, want 0xCD", got)
	}
}

// An unrecognized INT 15h function reports failure (AH=0x86, CF=1)
// rather than silently no-opping.
func TestInt15Dispatch_UnknownFunctionFails(t *testing.T) {
	c := newTestCPU()
	c.Regs.Write(RegRAX, W32, 0x12345678) // neither E820 nor AH=87
	c.bios.int15Dispatch(c)
	if !c.RFlags.CF() {
		t.Error("expected CF=1 for an unrecognized function")
	}
}
