// memory.go - linear memory, fetch cursor, and stack access
//
// Cursor-fetch and bus-indirection idiom ported from IntuitionEngine's
// cpu_x86.go fetch8/16/32, read8/16/32/write8/16/32 and
// push16/32/pop16/32, generalized to 64-bit widths and routed through
// segment translation (segmentation.go) instead of a flat address mask.

package main

import (
	"encoding/binary"
	"io"
)

// Memory is a single linear byte array, owned by the emulator per
// spec.md §5 ("Memory is owned by the emulator; no other party writes
// to it during execution").
type Memory struct {
	data []byte
}

// NewMemory allocates size bytes of linear address space.
func NewMemory(size int) *Memory {
	return &Memory{data: make([]byte, size)}
}

func (m *Memory) Size() int { return len(m.data) }

func (m *Memory) Read8(addr uint64) byte {
	if addr >= uint64(len(m.data)) {
		return 0
	}
	return m.data[addr]
}

func (m *Memory) Write8(addr uint64, v byte) {
	if addr >= uint64(len(m.data)) {
		return
	}
	m.data[addr] = v
}

func (m *Memory) Read16(addr uint64) uint16 {
	if addr+2 > uint64(len(m.data)) {
		return 0
	}
	return binary.LittleEndian.Uint16(m.data[addr:])
}

func (m *Memory) Write16(addr uint64, v uint16) {
	if addr+2 > uint64(len(m.data)) {
		return
	}
	binary.LittleEndian.PutUint16(m.data[addr:], v)
}

func (m *Memory) Read32(addr uint64) uint32 {
	if addr+4 > uint64(len(m.data)) {
		return 0
	}
	return binary.LittleEndian.Uint32(m.data[addr:])
}

func (m *Memory) Write32(addr uint64, v uint32) {
	if addr+4 > uint64(len(m.data)) {
		return
	}
	binary.LittleEndian.PutUint32(m.data[addr:], v)
}

func (m *Memory) Read64(addr uint64) uint64 {
	if addr+8 > uint64(len(m.data)) {
		return 0
	}
	return binary.LittleEndian.Uint64(m.data[addr:])
}

func (m *Memory) Write64(addr uint64, v uint64) {
	if addr+8 > uint64(len(m.data)) {
		return
	}
	binary.LittleEndian.PutUint64(m.data[addr:], v)
}

// LoadBytes copies data into memory at addr, used to place the boot
// sector (spec.md §6) and test fixtures.
func (m *Memory) LoadBytes(addr uint64, data []byte) {
	copy(m.data[addr:], data)
}

// LoadBootSector reads up to 512 bytes from r and places them at the
// conventional real-mode boot address 0000:7C00, per spec.md §6's
// boot-input contract.
func (m *Memory) LoadBootSector(r io.Reader) error {
	buf := make([]byte, 512)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return err
	}
	m.LoadBytes(0x7C00, buf[:n])
	return nil
}

// --- CPU-level segment-aware access -----------------------------------

// ReadMem/WriteMem read or write through a segment at the given
// width, applying the segmentation unit's linear-address translation
// (segmentation.go) ahead of the raw Memory access.
func (c *CPU) ReadMem(seg SegIndex, offset uint64, w Width) uint64 {
	lin := c.LinearAddress(seg, offset)
	switch w {
	case W8, W8H:
		return uint64(c.mem.Read8(lin))
	case W16:
		return uint64(c.mem.Read16(lin))
	case W32:
		return uint64(c.mem.Read32(lin))
	default:
		return c.mem.Read64(lin)
	}
}

func (c *CPU) WriteMem(seg SegIndex, offset uint64, w Width, v uint64) {
	lin := c.LinearAddress(seg, offset)
	switch w {
	case W8, W8H:
		c.mem.Write8(lin, byte(v))
	case W16:
		c.mem.Write16(lin, uint16(v))
	case W32:
		c.mem.Write32(lin, uint32(v))
	default:
		c.mem.Write64(lin, v)
	}
}

// fetch8/16/32/64 read from CS:RIP-relative linear code space (flat in
// the sense that code fetch always uses CS base, never an override)
// and advance the cursor, mirroring the teacher's fetch8/16/32.
func (c *CPU) fetch8() byte {
	v := c.ReadMem(SegCS, c.RIP, W8)
	c.RIP++
	return byte(v)
}

func (c *CPU) fetch16() uint16 {
	v := c.ReadMem(SegCS, c.RIP, W16)
	c.RIP += 2
	return uint16(v)
}

func (c *CPU) fetch32() uint32 {
	v := c.ReadMem(SegCS, c.RIP, W32)
	c.RIP += 4
	return uint32(v)
}

func (c *CPU) fetch64() uint64 {
	v := c.ReadMem(SegCS, c.RIP, W64)
	c.RIP += 8
	return v
}

// stackWidth returns the width of one push/pop unit: 64-bit sub-mode
// defaults PUSH/POP to 64 bits; legacy modes follow SS.D (32 if set,
// else 16).
func (c *CPU) stackWidth() Width {
	if c.Is64BitMode {
		return W64
	}
	if c.Seg[SegSS].CacheValid && c.Seg[SegSS].D {
		return W32
	}
	return W16
}

func (c *CPU) spRead() uint64 {
	switch c.stackWidth() {
	case W64:
		return c.Regs.Read(RegRSP, W64)
	case W32:
		return c.Regs.Read(RegRSP, W32)
	default:
		return c.Regs.Read(RegRSP, W16)
	}
}

func (c *CPU) spAdjust(delta int64) {
	w := c.stackWidth()
	cur := c.spRead()
	next := uint64(int64(cur) + delta)
	c.Regs.Write(RegRSP, w, next)
}

// push pushes v using the current stack width (truncating as needed).
func (c *CPU) push(v uint64) {
	w := c.stackWidth()
	c.spAdjust(-int64(w.bits() / 8))
	c.WriteMem(SegSS, c.spRead(), w, v)
}

// pop reads one stack-width unit and advances RSP/ESP/SP.
func (c *CPU) pop() uint64 {
	w := c.stackWidth()
	v := c.ReadMem(SegSS, c.spRead(), w)
	c.spAdjust(int64(w.bits() / 8))
	return v
}

// pushWidth/popWidth push or pop an explicitly-sized unit regardless
// of the default stack width (used by IRET/CALL FAR's mixed-size
// frames).
func (c *CPU) pushWidth(w Width, v uint64) {
	c.spAdjust(-int64(w.bits() / 8))
	c.WriteMem(SegSS, c.spRead(), w, v)
}

func (c *CPU) popWidth(w Width) uint64 {
	v := c.ReadMem(SegSS, c.spRead(), w)
	c.spAdjust(int64(w.bits() / 8))
	return v
}
