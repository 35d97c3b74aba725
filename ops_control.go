// ops_control.go - control-flow instructions
//
// Grounded on cpu_x86_grp.go's opGrp5_Ev/opSETcc family and
// cpu_x86_ops.go's opCALL/opRET/opJMP handlers, generalized to the
// mode-correct stack widths (§4.4) the flat teacher model never needed.

package main

// ripWidth returns the width a near CALL/RET/JMP pushes/reads RIP at:
// 64 in long mode, else the current operand size (32 or 16).
func (c *CPU) ripWidth() Width {
	if c.Is64BitMode {
		return W64
	}
	if c.d.opSize == W16 {
		return W16
	}
	return W32
}

// opCALLRel implements E8: CALL rel32 (or rel16 under a 0x66 prefix in
// legacy modes). Pushes the return RIP at the mode's natural call-stack
// width.
func (c *CPU) opCALLRel() {
	var rel int64
	if c.d.opSize == W16 {
		rel = int64(int16(c.fetch16()))
	} else {
		rel = int64(int32(c.fetch32()))
	}
	ret := c.RIP
	c.pushWidth(c.ripWidth(), ret)
	c.RIP = uint64(int64(c.RIP) + rel)
}

// opCALLNear implements FF /2: CALL r/m (near, indirect).
func (c *CPU) opCALLNear(target Operand) {
	ret := c.RIP
	c.pushWidth(c.ripWidth(), ret)
	c.RIP = target.Read() & target.Width.Mask()
}

// opRETNear implements C3.
func (c *CPU) opRETNear() {
	c.RIP = c.popWidth(c.ripWidth())
}

// opRETNearImm implements C2: RET imm16, popping imm16 extra bytes of
// arguments after the return address.
func (c *CPU) opRETNearImm() {
	imm := c.fetch16()
	c.RIP = c.popWidth(c.ripWidth())
	c.spAdjust(int64(imm))
}

// opRETFar implements CB/CA: RET far (and CA's imm16 variant). In long
// mode RETF pops a qword for each of RIP and CS, per spec.md §4.4.
func (c *CPU) opRETFar(hasImm bool) {
	var imm uint16
	if hasImm {
		imm = c.fetch16()
	}
	w := c.ripWidth()
	rip := c.popWidth(w)
	cs := c.popWidth(w)
	c.RIP = rip
	if c.IsProtectedMode() {
		d := c.LookupDescriptor(uint16(cs))
		c.EnterViaFarTransfer(uint16(cs), d)
	} else {
		c.Seg[SegCS].LoadReal(uint16(cs))
	}
	if hasImm {
		c.spAdjust(int64(imm))
	}
}

// opJMPRel implements EB (rel8) and E9 (rel32/rel16).
func (c *CPU) opJMPRel(rel int64) {
	c.RIP = uint64(int64(c.RIP) + rel)
}

// opJMPNear implements FF /4: JMP r/m (near, indirect).
func (c *CPU) opJMPNear(target Operand) {
	c.RIP = target.Read() & target.Width.Mask()
}

// FarPointer is a decoded {offset, selector} far pointer, read either
// from memory (FF /3, FF /5) or the immediate encoding of EA.
type FarPointer struct {
	Offset   uint64
	Selector uint16
}

// opJMPFar implements EA and FF /5: far JMP, switching CS and
// potentially the active IA-32e sub-mode (compatibility vs 64-bit) per
// spec.md §4.3/§8 boundary scenario 6.
func (c *CPU) opJMPFar(ptr FarPointer) {
	c.RIP = ptr.Offset
	if c.IsProtectedMode() {
		d := c.LookupDescriptor(ptr.Selector)
		c.EnterViaFarTransfer(ptr.Selector, d)
	} else {
		c.Seg[SegCS].LoadReal(ptr.Selector)
	}
}

// opCALLFar implements FF /3: far CALL, pushing CS then return RIP at
// the mode's natural width before transferring control. The direct
// 9A form is not decoded and raises #UD.
func (c *CPU) opCALLFar(ptr FarPointer) {
	w := c.ripWidth()
	c.pushWidth(w, uint64(c.Seg[SegCS].Selector))
	c.pushWidth(w, c.RIP)
	c.opJMPFar(ptr)
}

// condTrue evaluates one of the 16 Jcc/SETcc flag conditions (0x0-0xF).
func (c *CPU) condTrue(cond byte) bool {
	switch cond & 0xF {
	case 0x0:
		return c.RFlags.OF()
	case 0x1:
		return !c.RFlags.OF()
	case 0x2:
		return c.RFlags.CF()
	case 0x3:
		return !c.RFlags.CF()
	case 0x4:
		return c.RFlags.ZF()
	case 0x5:
		return !c.RFlags.ZF()
	case 0x6:
		return c.RFlags.CF() || c.RFlags.ZF()
	case 0x7:
		return !c.RFlags.CF() && !c.RFlags.ZF()
	case 0x8:
		return c.RFlags.SF()
	case 0x9:
		return !c.RFlags.SF()
	case 0xA:
		return c.RFlags.PF()
	case 0xB:
		return !c.RFlags.PF()
	case 0xC:
		return c.RFlags.SF() != c.RFlags.OF()
	case 0xD:
		return c.RFlags.SF() == c.RFlags.OF()
	case 0xE:
		return c.RFlags.ZF() || c.RFlags.SF() != c.RFlags.OF()
	default: // 0xF
		return !c.RFlags.ZF() && c.RFlags.SF() == c.RFlags.OF()
	}
}

func (c *CPU) opJcc(cond byte, rel int64) {
	if c.condTrue(cond) {
		c.RIP = uint64(int64(c.RIP) + rel)
	}
}

func (c *CPU) opSETcc(cond byte, o Operand) {
	if c.condTrue(cond) {
		o.Write(1)
	} else {
		o.Write(0)
	}
}

// opGroup5 implements FF /digit: INC, DEC, CALL near, CALL far, JMP
// near, JMP far, PUSH, generalizing opGrp5_Ev.
func (c *CPU) opGroup5(w Width) {
	digit := c.modrmRegRaw()
	o := c.rmOperand(w)
	switch digit {
	case 0:
		c.opINC(o)
	case 1:
		c.opDEC(o)
	case 2:
		c.opCALLNear(o)
	case 3:
		c.opCALLFar(c.readFarPointerFromMem(o))
	case 4:
		c.opJMPNear(o)
	case 5:
		c.opJMPFar(c.readFarPointerFromMem(o))
	case 6:
		c.opPUSH(o)
	default:
		c.raiseFault(FaultUD, 0, "FF /7 is not a valid Group 5 encoding")
	}
}

// readFarPointerFromMem reads a {offset, selector} pair from the
// memory location o resolves to; far CALL/JMP through FF /3 and FF /5
// require a memory operand (register-direct is architecturally
// invalid and surfaces as #UD).
func (c *CPU) readFarPointerFromMem(o Operand) FarPointer {
	if !o.IsMem {
		c.raiseFault(FaultUD, 0, "far CALL/JMP through a register operand")
	}
	memOff := o.MemOffset()
	off := c.ReadMem(o.seg, memOff, o.Width)
	sel := c.ReadMem(o.seg, memOff+uint64(o.Width.bits()/8), W16)
	return FarPointer{Offset: off, Selector: uint16(sel)}
}

// opPUSH implements PUSH r/m (FF /6); the 50-57 short forms go through
// opPUSHShort. In
// long mode PUSH r/m defaults to 64-bit width; a 0x66 prefix forces a
// 16-bit push, per spec.md §9's pinned open question.
func (c *CPU) opPUSH(o Operand) {
	w := o.Width
	if c.Is64BitMode {
		if c.d.prefix.opSize {
			w = W16
		} else {
			w = W64
		}
	}
	c.pushWidth(w, o.Read())
}

func (c *CPU) opPUSHShort(regField RegID) {
	id := regField
	if c.d.rex.B {
		id |= 8
	}
	w := c.ripWidth()
	if c.Is64BitMode && c.d.prefix.opSize {
		w = W16
	}
	c.pushWidth(w, c.Regs.Read(id, w))
}

// opPOP implements POP r/m (8F /0); the 58-5F short forms go through
// opPOPShort.
func (c *CPU) opPOP(o Operand) {
	w := o.Width
	if c.Is64BitMode {
		if c.d.prefix.opSize {
			w = W16
		} else {
			w = W64
		}
	}
	o.Write(c.popWidth(w))
}

func (c *CPU) opPOPShort(regField RegID) {
	id := regField
	if c.d.rex.B {
		id |= 8
	}
	w := c.ripWidth()
	if c.Is64BitMode && c.d.prefix.opSize {
		w = W16
	}
	c.Regs.Write(id, w, c.popWidth(w))
}

// --- INT-family opcodes --------------------------------------------------

func (c *CPU) opINT(vector byte) { c.deliverInterrupt(vector, false, 0, false) }

func (c *CPU) opINT3() { c.deliverInterrupt(3, false, 0, false) }

func (c *CPU) opINT1() { c.deliverInterrupt(1, false, 0, false) }

// opINTO implements CE: raise vector 4 iff OF=1; in long mode INTO is
// #UD, per spec.md §4.4.
func (c *CPU) opINTO() {
	if c.Is64BitMode {
		c.raiseFault(FaultUD, 0, "INTO is invalid in 64-bit mode")
	}
	if c.RFlags.OF() {
		c.deliverInterrupt(4, false, 0, false)
	}
}
