// ops_data.go - data movement instructions
//
// Grounded on cpu_x86_ops.go's opMOV_* family and cpu_x86_grp.go's
// opMOVZX_Gv_Eb/opMOVZX_Gv_Ew/opMOVSX_Gv_Eb/opMOVSX_Gv_Ew, generalized
// onto Operand (operand.go) instead of one function per width pair.

package main

// opMOVRmReg implements MOV Eb,Gb / Ev,Gv (0x88/0x89) and MOV Gb,Eb /
// Gv,Ev (0x8A/0x8B).
func (c *CPU) opMOVRmReg(w Width, toRM bool) {
	rm := c.rmOperand(w)
	reg := c.regOperand(w)
	if toRM {
		rm.Write(reg.Read())
	} else {
		reg.Write(rm.Read())
	}
}

// opMOVImmToReg implements the B0-BF short form: MOV reg, imm.
func (c *CPU) opMOVImmToReg(regField RegID, w Width) {
	var imm uint64
	switch w {
	case W8:
		imm = uint64(c.fetch8())
	case W16:
		imm = uint64(c.fetch16())
	case W32:
		imm = uint64(c.fetch32())
	default:
		imm = c.fetch64()
	}
	id, rw := regField, w
	if w == W8 {
		id, rw = reg8Encoding(regField, c.d.rex.Present)
	}
	c.Regs.Write(id, rw, imm)
}

// opMOVImmToRM implements C6 /0 and C7 /0: MOV Eb/Ev, imm.
func (c *CPU) opMOVImmToRM(w Width) {
	rm := c.rmOperand(w)
	var imm uint64
	switch w {
	case W8:
		imm = uint64(c.fetch8())
	case W16:
		imm = uint64(c.fetch16())
	default:
		imm = uint64(c.fetch32())
		if w == W64 {
			imm = signExtend(imm, W32)
		}
	}
	rm.Write(imm & w.Mask())
}

// opMOVSegRm implements 8C (MOV Ew,Sw) and 8E (MOV Sw,Ew). rm=6,7 is an
// invalid segment encoding for the reg field and raises #UD per
// spec.md §4.4.
func (c *CPU) opMOVSegRm(toRM bool) {
	segField := c.modrmRegRaw()
	if segField > 5 {
		c.raiseFault(FaultUD, 0, "invalid segment register encoding")
	}
	rm := c.rmOperand(W16)
	seg := SegIndex(segField)
	if toRM {
		rm.Write(uint64(c.Seg[seg].Selector))
	} else {
		c.LoadSegment(seg, uint16(rm.Read()))
	}
}

// opLEA implements 8D: compute the effective address without touching
// memory; destination width follows operand size (a 32-bit destination
// zero-extends to 64, per spec.md §4.4).
func (c *CPU) opLEA(w Width) {
	reg := c.regOperand(w)
	if c.modrmMod() == 3 {
		c.raiseFault(FaultUD, 0, "LEA with register operand")
	}
	off, _ := c.getEffectiveAddress()
	off = c.ripRelativeFixup(off)
	reg.Write(off & w.Mask())
}

// opXCHG implements 86/87 (Eb,Gb / Ev,Gv) and the 90-97 short forms.
// XCHG leaves all flags unchanged, per spec.md §8.
func (c *CPU) opXCHG(rm, reg Operand) {
	a, b := rm.Read(), reg.Read()
	rm.Write(b)
	reg.Write(a)
}

// opXCHGShort implements 90-97: XCHG eAX, reg. 0x90 with no REX.B is
// the NOP because it exchanges RAX with itself, per spec.md §4.4.
func (c *CPU) opXCHGShort(regField RegID, w Width) {
	id := regField
	if c.d.rex.B {
		id |= 8
	}
	if id == RegRAX {
		return
	}
	acc := Operand{c: c, Width: w, reg: RegRAX}
	other := Operand{c: c, Width: w, reg: id}
	c.opXCHG(acc, other)
}

// opMOVZX implements 0F B6/B7: zero-extend Eb/Ew into Gv.
func (c *CPU) opMOVZX(srcWidth, dstWidth Width) {
	reg := c.regOperand(dstWidth)
	src := c.rmOperand(srcWidth)
	reg.Write(src.Read() & srcWidth.Mask())
}

// opMOVSX implements 0F BE/BF: sign-extend Eb/Ew into Gv.
func (c *CPU) opMOVSX(srcWidth, dstWidth Width) {
	reg := c.regOperand(dstWidth)
	src := c.rmOperand(srcWidth)
	reg.Write(signExtend(src.Read(), srcWidth) & dstWidth.Mask())
}

// opMOVSXD implements 63 (MOVSXD Gv,Ed): sign-extend a 32-bit rm into a
// 64-bit register, the long-mode counterpart of the legacy ARPL
// opcode slot.
func (c *CPU) opMOVSXD() {
	reg := c.regOperand(W64)
	src := c.rmOperand(W32)
	reg.Write(signExtend(src.Read(), W32))
}
