// operand.go - ModR/M operand resolution
//
// The teacher duplicates every Group1/Group2/Group3 handler three
// times (opGrp1_Eb_Ib/opGrp1_Ev_Iv/... each hand-rolled per width in
// cpu_x86_grp.go). spec.md §9 calls that out directly ("sub-width
// register views via accessor methods" / static dispatch tables): this
// file replaces the duplication with one width-parameterized rm/reg
// operand resolver that every ops_*.go handler shares.

package main

// Operand is a resolved ModR/M operand: either a register slot or a
// memory location, read and written through its Read/Write methods so
// handlers don't need to know which.
type Operand struct {
	IsMem bool
	Width Width

	// register form
	reg RegID

	// memory form
	seg    SegIndex
	offset uint64

	// ripRelative defers the final address computation to Read/Write
	// time: a RIP-relative operand (mod=00,rm=101 in 64-bit addressing)
	// must resolve against the address of the NEXT instruction, which
	// isn't known until any trailing immediate has also been fetched
	// (§4.1). offset is ignored when this is set.
	ripRelative bool
	ripRelDisp  int64

	c *CPU
}

// MemOffset returns a memory operand's resolved linear offset,
// finalizing a deferred RIP-relative address against the CPU's current
// RIP. Callers that read a memory operand's bytes directly instead of
// through Read/Write (far pointers, LGDT/LIDT) must use this instead of
// the zero-value offset field.
func (o Operand) MemOffset() uint64 { return o.resolvedOffset() }

func (o Operand) resolvedOffset() uint64 {
	if o.ripRelative {
		return uint64(int64(o.c.RIP) + o.ripRelDisp)
	}
	return o.offset
}

func (o Operand) Read() uint64 {
	if o.IsMem {
		return o.c.ReadMem(o.seg, o.resolvedOffset(), o.Width)
	}
	return o.c.Regs.Read(o.reg, o.Width)
}

func (o Operand) Write(v uint64) {
	if o.IsMem {
		o.c.WriteMem(o.seg, o.resolvedOffset(), o.Width, v)
		return
	}
	o.c.Regs.Write(o.reg, o.Width, v)
}

// rmOperand resolves the ModR/M rm field to a register or memory
// operand at width w, generalizing the teacher's getModRMRM-plus-
// calcEffectiveAddress pairing across all operand widths.
func (c *CPU) rmOperand(w Width) Operand {
	if c.modrmMod() == 3 {
		id := c.modrmRMExtended()
		if w == W8 {
			rid, rw := reg8Encoding(id, c.d.rex.Present)
			return Operand{c: c, Width: rw, reg: rid}
		}
		return Operand{c: c, Width: w, reg: id}
	}
	off, seg := c.getEffectiveAddress()
	if c.d.pendingRIPRelative {
		c.d.pendingRIPRelative = false
		return Operand{c: c, IsMem: true, Width: w, seg: seg, ripRelative: true, ripRelDisp: c.d.pendingRIPRelDisp}
	}
	return Operand{c: c, IsMem: true, Width: w, seg: seg, offset: off}
}

// regOperand resolves the ModR/M reg field to a register operand at
// width w.
func (c *CPU) regOperand(w Width) Operand {
	id := c.modrmReg()
	if w == W8 {
		rid, rw := reg8Encoding(id, c.d.rex.Present)
		return Operand{c: c, Width: rw, reg: rid}
	}
	return Operand{c: c, Width: w, reg: id}
}

// signExtend sign-extends a value of width w to 64 bits.
func signExtend(v uint64, w Width) uint64 {
	switch w {
	case W8, W8H:
		return uint64(int64(int8(v)))
	case W16:
		return uint64(int64(int16(v)))
	case W32:
		return uint64(int64(int32(v)))
	default:
		return v
	}
}
