// bios.go - BIOS software-interrupt service intercepts
//
// New relative to the teacher: IntuitionEngine never models a BIOS,
// only an Amiga ROM/chipset surface. The registry dispatch idiom is
// grounded on the teacher's opcode-table pattern in cpu_x86_ops.go
// (initBaseOps building a [256]func(*CPU) table keyed by opcode byte);
// here the table is keyed by (vector, AH) per spec.md §4.6.

package main

import "encoding/binary"

// biosKey identifies one (interrupt vector, AH) intercept slot.
type biosKey struct {
	vector byte
	ah     byte
}

// BIOSRegistry maps (vector, AH) to intercept handlers, consulted by
// the INT dispatcher (interrupts.go) before falling through to a
// guest-supplied IVT/IDT handler, per spec.md §4.6.
type BIOSRegistry struct {
	cpu      *CPU
	handlers map[biosKey]func(c *CPU)
	disk     BlockDevice
	video    VideoDevice
}

// NewBIOSRegistry builds the registry and registers the INT 10h/13h/15h
// handlers spec.md §4.6 names.
func NewBIOSRegistry(c *CPU) *BIOSRegistry {
	r := &BIOSRegistry{cpu: c, handlers: make(map[biosKey]func(c *CPU)), video: nullVideoDevice{}}
	r.register(0x10, 0x4F, r.int10VBE)
	r.register(0x13, 0x02, r.int13CHSRead)
	r.register(0x13, 0x42, r.int13LBARead)
	r.register(0x15, 0x00, r.int15Dispatch) // AH-independent entry; int15Dispatch re-checks EAX/AH itself
	return r
}

func (r *BIOSRegistry) register(vector, ah byte, fn func(c *CPU)) {
	r.handlers[biosKey{vector, ah}] = fn
}

// SetBlockDevice attaches the disk collaborator INT 13h reads through.
func (r *BIOSRegistry) SetBlockDevice(d BlockDevice) { r.disk = d }

// SetVideoDevice attaches the video collaborator INT 10h consults.
func (r *BIOSRegistry) SetVideoDevice(d VideoDevice) { r.video = d }

// Lookup reports whether a registered intercept exists for vector with
// the CPU's current AH (and, for INT 15h, also tolerates an AH=0x00
// registration standing in for "dispatch on EAX instead").
func (r *BIOSRegistry) Lookup(vector byte) (func(c *CPU), bool) {
	ah := byte(r.cpu.Regs.Read(RegRAX, W16) >> 8)
	if fn, ok := r.handlers[biosKey{vector, ah}]; ok {
		return fn, true
	}
	if vector == 0x15 {
		if fn, ok := r.handlers[biosKey{0x15, 0x00}]; ok {
			return fn, true
		}
	}
	return nil, false
}

// setCF sets or clears RFLAGS.CF, the universal BIOS success/failure
// signal per spec.md §7.
func setCF(c *CPU, fail bool) {
	c.RFlags.set(FlagCF, fail)
}

// --- INT 10h: VESA BIOS Extensions ------------------------------------

const vbeInfoBlockSize = 512

// int10VBE implements AX=4F00 (get controller info) and AX=4F01 (get
// mode info), per spec.md §4.6: AX=4F00 writes a VESA info block at
// ES:DI with signature "VESA" and version 0x0300; AX=4F01 writes the
// mode-info block of the mode in CX (width, height, bpp, frame buffer)
// at the architectural offsets, with zero geometry for a mode the video
// device does not list.
func (r *BIOSRegistry) int10VBE(c *CPU) {
	al := byte(c.Regs.Read(RegRAX, W8))
	di := c.Regs.Read(RegRDI, W16)
	seg := SegES

	switch al {
	case 0x00:
		buf := make([]byte, vbeInfoBlockSize)
		copy(buf[0:4], []byte("VESA"))
		binary.LittleEndian.PutUint16(buf[4:], 0x0300)
		modes := r.video.Modes()
		videoModePtr := uint32(0) // offset:segment packed pointer to the mode list, omitted (no guest-visible mode enumeration consumer in this core)
		binary.LittleEndian.PutUint32(buf[14:], videoModePtr)
		for i := 0; i < len(buf); i++ {
			c.WriteMem(seg, di+uint64(i), W8, uint64(buf[i]))
		}
		_ = modes
		c.Regs.Write(RegRAX, W16, 0x004F)
	case 0x01:
		info := r.videoModeInfo(uint16(c.Regs.Read(RegRCX, W16)))
		buf := make([]byte, 256)
		binary.LittleEndian.PutUint16(buf[0:], info.Attributes)
		binary.LittleEndian.PutUint16(buf[18:], info.Width)
		binary.LittleEndian.PutUint16(buf[20:], info.Height)
		buf[25] = info.BitsPerPixel
		binary.LittleEndian.PutUint32(buf[40:], r.video.FrameBufferAddress())
		for i := 0; i < len(buf); i++ {
			c.WriteMem(seg, di+uint64(i), W8, uint64(buf[i]))
		}
		c.Regs.Write(RegRAX, W16, 0x004F)
	default:
		c.Regs.Write(RegRAX, W16, 0x014F)
	}
	setCF(c, false)
}

func (r *BIOSRegistry) videoModeInfo(mode uint16) VideoModeInfo {
	for _, m := range r.video.Modes() {
		if m.Mode == mode {
			return m
		}
	}
	return VideoModeInfo{Mode: mode}
}

// --- INT 13h: disk services --------------------------------------------

// int13CHSRead implements AH=02 per spec.md §4.6: reads count sectors
// starting at CHS (CH=cylinder low8, CL[7:6]=cylinder hi2/CL[5:0]=sector,
// DH=head) into ES:DI, using the unreal-mode-aware segment base.
func (r *BIOSRegistry) int13CHSRead(c *CPU) {
	if r.disk == nil {
		c.Regs.Write(RegRAX, W16, 0x0100)
		setCF(c, true)
		return
	}
	al := byte(c.Regs.Read(RegRAX, W8))
	ch := byte(c.Regs.Read(RegRCX, W16) >> 8)
	cl := byte(c.Regs.Read(RegRCX, W8))
	dh := byte(c.Regs.Read(RegRDX, W16) >> 8)
	di := c.Regs.Read(RegRDI, W16)

	cyl := uint32(ch) | uint32(cl&0xC0)<<2
	sector := uint32(cl & 0x3F)
	head := uint32(dh)

	fbd, ok := r.disk.(*FileBlockDevice)
	var lba uint64
	if ok {
		lba = fbd.CHSToLBA(cyl, head, sector)
	} else {
		cylinders, heads, spt := r.disk.Geometry()
		_ = cylinders
		lba = uint64(cyl)*uint64(heads)*uint64(spt) + uint64(head)*uint64(spt) + uint64(sector-1)
	}

	data, err := r.disk.ReadSectors(lba, uint16(al))
	if err != nil {
		c.Regs.Write(RegRAX, W16, 0x0400)
		setCF(c, true)
		return
	}
	for i, b := range data {
		c.WriteMem(SegES, di+uint64(i), W8, uint64(b))
	}
	c.Regs.Write(RegRAX, W16, uint64(al))
	setCF(c, false)
}

// dap holds either of the two Disk Address Packet layouts spec.md §4.6
// specifies for INT 13h AH=42: the 0x10-byte form with a segment:offset
// buffer, or the 0x18-byte form with a flat 64-bit buffer (extended).
type dap struct {
	count     uint16
	bufferOff uint16
	bufferSeg uint16
	lba       uint64
	buffer64  uint64
	extended  bool
}

func readDAP(c *CPU, seg SegIndex, off uint64) dap {
	size := byte(c.ReadMem(seg, off, W8))
	count := uint16(c.ReadMem(seg, off+2, W16))
	if size >= 0x18 {
		buf64 := c.ReadMem(seg, off+4, W64)
		lba := c.ReadMem(seg, off+0x0C, W64)
		return dap{count: count, buffer64: buf64, lba: lba, extended: true}
	}
	bufOff := uint16(c.ReadMem(seg, off+4, W16))
	bufSeg := uint16(c.ReadMem(seg, off+6, W16))
	lba := c.ReadMem(seg, off+8, W64)
	return dap{count: count, bufferOff: bufOff, bufferSeg: bufSeg, lba: lba}
}

// int13LBARead implements AH=42 per spec.md §4.6: reads the DAP at
// DS:SI and selects the 0x10/0x18 layout by the DAP's own size field.
func (r *BIOSRegistry) int13LBARead(c *CPU) {
	if r.disk == nil {
		c.Regs.Write(RegRAX, W16, 0x0100)
		setCF(c, true)
		return
	}
	si := c.Regs.Read(RegRSI, W16)
	d := readDAP(c, SegDS, si)

	data, err := r.disk.ReadSectors(d.lba, d.count)
	if err != nil {
		c.Regs.Write(RegRAX, W16, 0x0400)
		setCF(c, true)
		return
	}

	if d.extended {
		for i, b := range data {
			c.mem.Write8(d.buffer64+uint64(i), b)
		}
	} else {
		base := uint64(d.bufferSeg)<<4 + uint64(d.bufferOff)
		for i, b := range data {
			c.mem.Write8(base+uint64(i), b)
		}
	}
	c.Regs.Write(RegRAX, W16, 0)
	setCF(c, false)
}

// --- INT 15h: memory services -------------------------------------------

const smapSignature = 0x534D4150 // 'SMAP'

// int15Dispatch implements EAX=0xE820 (memory map enumeration) and
// AH=87 (extended-memory block move), per spec.md §4.6.
func (r *BIOSRegistry) int15Dispatch(c *CPU) {
	eax := uint32(c.Regs.Read(RegRAX, W32))
	ah := byte(c.Regs.Read(RegRAX, W8H))
	switch {
	case eax == 0xE820:
		r.int15E820(c)
	case ah == 0x87:
		r.int15CopyExtended(c)
	default:
		setCF(c, true)
		c.Regs.Write(RegRAX, W16, 0x8600)
	}
}

// int15E820 writes one 20-byte E820 entry at ES:EDI (base, length,
// type) and advances the guest's EBX continuation cursor; the
// continuation cursor's mapping to an actual backing store is the
// caller's concern (a single-entry "all of RAM" map here is
// sufficient to satisfy boot loaders probing for the map size).
func (r *BIOSRegistry) int15E820(c *CPU) {
	edi := c.Regs.Read(RegRDI, W32)
	ebx := uint32(c.Regs.Read(RegRBX, W32))

	type entry struct {
		base, length uint64
		typ          uint32
	}
	memSize := uint64(c.mem.Size())
	entries := []entry{{base: 0, length: memSize, typ: 1}}

	if int(ebx) >= len(entries) {
		setCF(c, true)
		return
	}
	e := entries[ebx]
	buf := make([]byte, 20)
	binary.LittleEndian.PutUint64(buf[0:], e.base)
	binary.LittleEndian.PutUint64(buf[8:], e.length)
	binary.LittleEndian.PutUint32(buf[16:], e.typ)
	for i, b := range buf {
		c.WriteMem(SegES, edi+uint64(i), W8, uint64(b))
	}

	next := ebx + 1
	if int(next) >= len(entries) {
		next = 0
	}
	c.Regs.Write(RegRBX, W32, uint64(next))
	c.Regs.Write(RegRAX, W32, smapSignature)
	c.Regs.Write(RegRCX, W32, 20)
	setCF(c, false)
}

// int15CopyExtended implements AH=87: ES:SI points to a block of
// GDT-shaped descriptors; entries at +0x10 (source) and +0x18
// (destination) carry base addresses per spec.md §4.6. Copies 2*CX
// bytes from src_base to dst_base.
func (r *BIOSRegistry) int15CopyExtended(c *CPU) {
	si := c.Regs.Read(RegRSI, W16)
	cx := uint16(c.Regs.Read(RegRCX, W16))

	readDescBase := func(off uint64) uint64 {
		var raw [8]byte
		for i := range raw {
			raw[i] = byte(c.ReadMem(SegES, off+uint64(i), W8))
		}
		d := ParseDescriptor(raw)
		return d.Base
	}

	srcBase := readDescBase(si + 0x10)
	dstBase := readDescBase(si + 0x18)

	n := uint64(cx) * 2
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = c.mem.Read8(srcBase + uint64(i))
	}
	for i, b := range buf {
		c.mem.Write8(dstBase+uint64(i), b)
	}
	c.Regs.Write(RegRAX, W16, 0)
	setCF(c, false)
}
