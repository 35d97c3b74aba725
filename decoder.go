// decoder.go - prefix scan, REX latch, ModR/M + SIB parsing
//
// The prefix loop and the fetchModRM/fetchSIB/getModRMReg/getModRMRM/
// getModRMMod/calcEffectiveAddress16/calcEffectiveAddress32 idioms
// below are ported from IntuitionEngine's cpu_x86.go Step() and the
// same-named helpers, generalized with REX latching, the long-prefix
// tolerance and RIP-relative addressing spec.md §4.1 requires, and a
// 64-bit SIB/ModR/M path the flat teacher model never needed.

package main

// prefixState is scoped to a single instruction, cleared at the start
// of every Step() per spec.md §3's REX-latch invariant and §5's "REX
// latch is strictly per-instruction scoped" rule (prefixes more
// generally share that scoping).
type prefixState struct {
	segOverride int // -1 = none, else a SegIndex
	rep         int // 0 none, 1 REP/REPE, 2 REPNE
	lock        bool
	opSize      bool // 0x66 toggles operand size
	addrSize    bool // 0x67 toggles address size
}

// modrmState caches the fetched ModR/M and SIB bytes for the duration
// of one instruction, exactly like the teacher's modrmLoaded/sibLoaded
// flags.
type modrmState struct {
	loaded bool
	byte_  byte
	sib    byte
	sibLoaded bool
}

// instrDecode carries the per-instruction scratch state the decoder
// and the opcode handlers share. It is rebuilt at the top of every
// Step().
type instrDecode struct {
	prefix prefixState
	rex    REX
	modrm  modrmState

	opSize  Width // effective operand width for this instruction
	addrBits int  // effective address size: 16, 32, or 64

	opcode   byte
	is0F     bool
	opcode2  byte // second opcode byte when is0F

	pendingRIPRelative bool  // set when a mod=00,rm=101 RIP-relative address was computed
	pendingRIPRelDisp  int64 // the disp32 to re-apply once the full instruction length is known
}

// beginDecode resets the scoped decode state; called once per Step()
// before the prefix scan, matching the teacher's "Reset prefix state"
// block at the top of Step().
func (c *CPU) beginDecode() {
	c.d = instrDecode{}
	c.d.prefix.segOverride = -1
	c.decodeStart = c.RIP
}

// scanPrefixes consumes prefix and REX bytes until it reaches the
// opcode byte, tolerating arbitrarily many redundant prefixes (spec.md
// §4.1: six LOCK prefixes ahead of a 2-byte AND must still decode).
// REX is only latched when it is the prefix byte immediately preceding
// the opcode; any prefix byte after a REX byte makes that REX
// ineffective, per spec.md §4.1.
func (c *CPU) scanPrefixes() {
	for {
		b := c.fetch8()
		switch {
		case b == 0x26:
			c.d.prefix.segOverride = int(SegES)
			c.d.rex = REX{}
		case b == 0x2E:
			c.d.prefix.segOverride = int(SegCS)
			c.d.rex = REX{}
		case b == 0x36:
			c.d.prefix.segOverride = int(SegSS)
			c.d.rex = REX{}
		case b == 0x3E:
			c.d.prefix.segOverride = int(SegDS)
			c.d.rex = REX{}
		case b == 0x64:
			c.d.prefix.segOverride = int(SegFS)
			c.d.rex = REX{}
		case b == 0x65:
			c.d.prefix.segOverride = int(SegGS)
			c.d.rex = REX{}
		case b == 0x66:
			c.d.prefix.opSize = true
			c.d.rex = REX{}
		case b == 0x67:
			c.d.prefix.addrSize = true
			c.d.rex = REX{}
		case b == 0xF0:
			c.d.prefix.lock = true
			c.d.rex = REX{}
		case b == 0xF2:
			c.d.prefix.rep = 2
			c.d.rex = REX{}
		case b == 0xF3:
			c.d.prefix.rep = 1
			c.d.rex = REX{}
		case c.Is64BitMode && b >= 0x40 && b <= 0x4F:
			// REX is only meaningful as the last prefix byte; a
			// further REX-class byte supersedes (last wins), and any
			// legacy prefix byte seen beforehand stays valid.
			c.d.rex = REX{
				Present: true,
				W:       b&0x8 != 0,
				R:       b&0x4 != 0,
				X:       b&0x2 != 0,
				B:       b&0x1 != 0,
			}
		default:
			c.d.opcode = b
			return
		}
	}
}

// resolveSizes computes effective operand/address size per spec.md
// §4.1: 0x66 toggles operand size unless REX.W=1 in 64-bit mode (which
// always wins and is not itself toggled by 0x66); 0x67 toggles address
// size.
func (c *CPU) resolveSizes() {
	// Operand size.
	switch {
	case c.Is64BitMode && c.d.rex.W:
		c.d.opSize = W64
	case c.d.prefix.opSize:
		if c.DefaultOperandSize == 16 {
			c.d.opSize = W32
		} else {
			c.d.opSize = W16
		}
	default:
		if c.Is64BitMode {
			c.d.opSize = W32
		} else if c.DefaultOperandSize == 32 {
			c.d.opSize = W32
		} else {
			c.d.opSize = W16
		}
	}

	// Address size.
	def := c.DefaultAddressSize
	if def == 0 {
		def = 16
	}
	switch {
	case c.d.prefix.addrSize:
		switch def {
		case 64:
			c.d.addrBits = 32
		case 32:
			c.d.addrBits = 16
		default:
			c.d.addrBits = 32
		}
	default:
		c.d.addrBits = def
	}
}

func (c *CPU) effectiveSeg() SegIndex {
	if c.d.prefix.segOverride >= 0 {
		return SegIndex(c.d.prefix.segOverride)
	}
	return SegDS
}

// fetchModRM lazily fetches and caches the ModR/M byte, like the
// teacher's fetchModRM/modrmLoaded pair.
func (c *CPU) fetchModRM() byte {
	if !c.d.modrm.loaded {
		c.d.modrm.byte_ = c.fetch8()
		c.d.modrm.loaded = true
	}
	return c.d.modrm.byte_
}

func (c *CPU) modrmMod() byte { return (c.fetchModRM() >> 6) & 3 }
func (c *CPU) modrmRM() byte  { return c.fetchModRM() & 7 }
func (c *CPU) modrmRegRaw() byte { return (c.fetchModRM() >> 3) & 7 }

// modrmReg returns the ModR/M reg field extended by REX.R.
func (c *CPU) modrmReg() RegID {
	r := c.modrmRegRaw()
	if c.d.rex.R {
		r |= 8
	}
	return RegID(r)
}

// modrmRMExtended returns the ModR/M rm field extended by REX.B, valid
// only when mod==3 (register-direct addressing).
func (c *CPU) modrmRMExtended() RegID {
	r := c.modrmRM()
	if c.d.rex.B {
		r |= 8
	}
	return RegID(r)
}

func (c *CPU) fetchSIB() byte {
	if !c.d.modrm.sibLoaded {
		c.d.modrm.sib = c.fetch8()
		c.d.modrm.sibLoaded = true
	}
	return c.d.modrm.sib
}

func (c *CPU) sibScale() byte { return (c.fetchSIB() >> 6) & 3 }
func (c *CPU) sibIndexRaw() byte { return (c.fetchSIB() >> 3) & 7 }
func (c *CPU) sibBaseRaw() byte { return c.fetchSIB() & 7 }

// gpr64 reads a general register at full 64-bit width, used internally
// by address computation regardless of operand size.
func (c *CPU) gpr64(id RegID) uint64 { return c.Regs.Read(id, W64) }

// effectiveAddress16 computes a 16-bit-addressing-mode effective
// address, ported from the teacher's calcEffectiveAddress16.
func (c *CPU) effectiveAddress16() (offset uint64, seg SegIndex) {
	mod := c.modrmMod()
	rm := c.modrmRM()
	seg = SegDS
	var base uint16

	switch rm {
	case 0:
		base = uint16(c.Regs.Read(RegRBX, W16)) + uint16(c.Regs.Read(RegRSI, W16))
	case 1:
		base = uint16(c.Regs.Read(RegRBX, W16)) + uint16(c.Regs.Read(RegRDI, W16))
	case 2:
		base = uint16(c.Regs.Read(RegRBP, W16)) + uint16(c.Regs.Read(RegRSI, W16))
		seg = SegSS
	case 3:
		base = uint16(c.Regs.Read(RegRBP, W16)) + uint16(c.Regs.Read(RegRDI, W16))
		seg = SegSS
	case 4:
		base = uint16(c.Regs.Read(RegRSI, W16))
	case 5:
		base = uint16(c.Regs.Read(RegRDI, W16))
	case 6:
		if mod == 0 {
			base = c.fetch16()
		} else {
			base = uint16(c.Regs.Read(RegRBP, W16))
			seg = SegSS
		}
	case 7:
		base = uint16(c.Regs.Read(RegRBX, W16))
	}

	switch mod {
	case 1:
		disp := int8(c.fetch8())
		base = uint16(int32(int16(base)) + int32(disp))
	case 2:
		base += c.fetch16()
	}

	if c.d.prefix.segOverride >= 0 {
		seg = SegIndex(c.d.prefix.segOverride)
	}
	return uint64(base), seg
}

// effectiveAddress32or64 computes the effective address for 32-bit or
// 64-bit addressing (SIB-capable) modes, ported from the teacher's
// calcEffectiveAddress32 and extended with REX.X/B register extension
// and RIP-relative mod=00,rm=101 addressing for 64-bit mode per
// spec.md §4.1.
func (c *CPU) effectiveAddress32or64(bits int) (offset uint64, seg SegIndex) {
	mod := c.modrmMod()
	rm := c.modrmRM()
	seg = SegDS
	var addr uint64
	isRIPRelative := false

	regWidth := W32
	if bits == 64 {
		regWidth = W64
	}

	if rm == 4 {
		scale := c.sibScale()
		indexRaw := c.sibIndexRaw()
		baseRaw := c.sibBaseRaw()
		index := indexRaw
		if c.d.rex.X {
			index |= 8
		}
		base := baseRaw
		if c.d.rex.B {
			base |= 8
		}

		if baseRaw == 5 && mod == 0 {
			addr = uint64(c.fetch32())
			if bits == 64 {
				addr = uint64(int64(int32(addr)))
			}
		} else {
			addr = c.Regs.Read(RegID(base), regWidth)
			if baseRaw == 4 || baseRaw == 5 {
				seg = SegSS
			}
		}
		if indexRaw != 4 {
			addr += c.Regs.Read(RegID(index), regWidth) << scale
		}
	} else if rm == 5 && mod == 0 {
		if bits == 64 {
			disp := int32(c.fetch32())
			isRIPRelative = true
			addr = uint64(int64(disp)) // resolved against next-instruction RIP below
		} else {
			addr = uint64(c.fetch32())
		}
	} else {
		rmExt := rm
		if c.d.rex.B {
			rmExt |= 8
		}
		addr = c.Regs.Read(RegID(rmExt), regWidth)
		if rm == 4 || rm == 5 {
			seg = SegSS
		}
	}

	switch mod {
	case 1:
		disp := int8(c.fetch8())
		addr = uint64(int64(addr) + int64(disp))
	case 2:
		addr = uint64(int64(addr) + int64(int32(c.fetch32())))
	}

	if isRIPRelative {
		// The displacement is relative to the address of the NEXT
		// instruction, i.e. RIP after all remaining operand bytes
		// (including any trailing immediate) have been consumed.
		// rmOperand captures pendingRIPRelDisp into the Operand itself
		// and resolves against RIP lazily at Read/Write time, once any
		// immediate fetch has already advanced it; callers that use
		// the address immediately, like LEA, call ripRelativeFixup
		// right away instead since there is no later fetch to wait for.
		c.d.pendingRIPRelDisp = int64(int32(addr))
		c.d.pendingRIPRelative = true
		addr = c.RIP + uint64(int64(int32(addr)))
	}

	if c.d.prefix.segOverride >= 0 {
		seg = SegIndex(c.d.prefix.segOverride)
	}
	return addr, seg
}

// getEffectiveAddress dispatches to the 16-bit or 32/64-bit effective
// address calculators based on the decoded address size.
func (c *CPU) getEffectiveAddress() (offset uint64, seg SegIndex) {
	switch c.d.addrBits {
	case 16:
		return c.effectiveAddress16()
	case 64:
		return c.effectiveAddress32or64(64)
	default:
		return c.effectiveAddress32or64(32)
	}
}

// ripRelativeFixup re-bases a RIP-relative effective address once the
// instruction's trailing immediate (if any) has been consumed, so the
// displacement lands relative to the true address of the next
// instruction as spec.md §4.1 requires.
func (c *CPU) ripRelativeFixup(addr uint64) uint64 {
	if !c.d.pendingRIPRelative {
		return addr
	}
	c.d.pendingRIPRelative = false
	return c.RIP + uint64(c.d.pendingRIPRelDisp)
}
