// ops_arith.go - arithmetic, logic and shift instruction families
//
// Grounded on cpu_x86_grp.go's opGrp1_*/opGrp2_*/opGrp3_*/shiftRotate*
// and cpu_x86_ops.go's opADD_*/opSUB_*/opCMP_* families, generalized
// from the teacher's per-width duplication onto the single
// width-parameterized Operand (operand.go) per spec.md §9's guidance.

package main

import "math/bits"

// aluOp names one Group-1-style ALU operation.
type aluOp int

const (
	aluADD aluOp = iota
	aluOR
	aluADC
	aluSBB
	aluAND
	aluSUB
	aluXOR
	aluCMP
)

// applyALU performs op on dst/src at width w, updating flags, and
// writes the result back to dst unless op is CMP/TEST-like (CMP never
// writes).
func (c *CPU) applyALU(op aluOp, dst Operand, src uint64) {
	a := dst.Read()
	w := dst.Width
	switch op {
	case aluADD:
		r := a + src
		c.setFlagsArith(w, r, a, src, false)
		dst.Write(r)
	case aluADC:
		carryIn := uint64(0)
		if c.RFlags.CF() {
			carryIn = 1
		}
		r, cf := addWithCarry(w, a, src, carryIn)
		c.setFlagsArith(w, r, a, src+carryIn, false)
		c.RFlags.set(FlagCF, cf)
		// AF must include the carry-in per spec.md §9's pinned
		// resolution: bit3->bit4 carry of the full three-operand sum.
		c.RFlags.set(FlagAF, (a&0xF)+(src&0xF)+carryIn > 0xF)
		dst.Write(r)
	case aluSUB:
		r := a - src
		c.setFlagsArith(w, r, a, src, true)
		dst.Write(r)
	case aluSBB:
		borrowIn := uint64(0)
		if c.RFlags.CF() {
			borrowIn = 1
		}
		r, cf := subWithBorrow(w, a, src, borrowIn)
		c.setFlagsArith(w, r, a, src+borrowIn, true)
		c.RFlags.set(FlagCF, cf)
		c.RFlags.set(FlagAF, (a&0xF) < (src&0xF)+borrowIn)
		dst.Write(r)
	case aluAND:
		r := a & src
		c.setFlagsLogic(w, r)
		dst.Write(r)
	case aluOR:
		r := a | src
		c.setFlagsLogic(w, r)
		dst.Write(r)
	case aluXOR:
		r := a ^ src
		c.setFlagsLogic(w, r)
		dst.Write(r)
	case aluCMP:
		r := a - src
		c.setFlagsArith(w, r, a, src, true)
	}
}

// addWithCarry adds a+src+carryIn at width w, reporting the masked
// result and the carry out of the top bit of that width.
func addWithCarry(w Width, a, src, carryIn uint64) (result uint64, cf bool) {
	if w == W64 {
		sum, c1 := bits.Add64(a, src, 0)
		sum, c2 := bits.Add64(sum, carryIn, c1)
		return sum, c2 != 0 || c1 != 0
	}
	mask := w.Mask()
	full := (a & mask) + (src & mask) + carryIn
	return full & mask, full&^mask != 0
}

// subWithBorrow subtracts a-src-borrowIn at width w, reporting the
// masked result and whether a borrow was needed.
func subWithBorrow(w Width, a, src, borrowIn uint64) (result uint64, cf bool) {
	if w == W64 {
		diff, b1 := bits.Sub64(a, src, 0)
		diff, b2 := bits.Sub64(diff, borrowIn, b1)
		return diff, b2 != 0 || b1 != 0
	}
	mask := w.Mask()
	cf = (a & mask) < (src&mask)+borrowIn
	return (a - src - borrowIn) & mask, cf
}

// groupDigit returns the /digit ALU op selected by the ModR/M reg
// field, for Group 1 opcodes (80/81/83).
func groupDigit(digit byte) aluOp { return aluOp(digit) }

// opGroup1 implements 80 (Eb,Ib), 81 (Ev,Iv), 83 (Ev,Ib sign-extended),
// generalizing opGrp1_Eb_Ib/opGrp1_Ev_Iv/opGrp1_Ev_Ib.
func (c *CPU) opGroup1(w Width, signExtendImm bool, immWidth Width) {
	digit := c.modrmRegRaw()
	dst := c.rmOperand(w)
	var imm uint64
	switch immWidth {
	case W8:
		imm = uint64(c.fetch8())
		if signExtendImm {
			imm = signExtend(imm, W8) & w.Mask()
		}
	case W16:
		imm = uint64(c.fetch16())
	default:
		imm = uint64(c.fetch32())
		if w == W64 {
			imm = signExtend(imm, W32)
		}
	}
	c.applyALU(groupDigit(digit), dst, imm&w.Mask())
}

// opALURmReg implements the rm,reg and reg,rm forms (e.g. 00/01 ADD
// Eb,Gb / Ev,Gv and 02/03 ADD Gb,Eb / Gv,Ev), shared by every
// ADD/OR/ADC/SBB/AND/SUB/XOR/CMP opcode pair.
func (c *CPU) opALURmReg(op aluOp, w Width, toRM bool) {
	rm := c.rmOperand(w)
	reg := c.regOperand(w)
	if toRM {
		c.applyALU(op, rm, reg.Read())
	} else {
		c.applyALU(op, reg, rm.Read())
	}
}

// opALUAccImm implements the AL/eAX,imm short forms (e.g. 04/05 ADD,
// 3C/3D CMP).
func (c *CPU) opALUAccImm(op aluOp, w Width) {
	var imm uint64
	if w == W8 {
		imm = uint64(c.fetch8())
	} else if w == W16 {
		imm = uint64(c.fetch16())
	} else {
		imm = uint64(c.fetch32())
		if w == W64 {
			imm = signExtend(imm, W32)
		}
	}
	acc := Operand{c: c, Width: w, reg: RegRAX}
	if w == W8 {
		acc.reg = RegRAX
	}
	c.applyALU(op, acc, imm&w.Mask())
}

// --- INC/DEC/NEG/NOT ----------------------------------------------------

func (c *CPU) opINC(o Operand) {
	a := o.Read()
	r := a + 1
	cf := c.RFlags.CF()
	c.setFlagsArith(o.Width, r, a, 1, false)
	c.RFlags.set(FlagCF, cf) // INC/DEC do not affect CF
	o.Write(r)
}

func (c *CPU) opDEC(o Operand) {
	a := o.Read()
	r := a - 1
	cf := c.RFlags.CF()
	c.setFlagsArith(o.Width, r, a, 1, true)
	c.RFlags.set(FlagCF, cf)
	o.Write(r)
}

func (c *CPU) opNEG(o Operand) {
	a := o.Read()
	r := (^a + 1) & o.Width.Mask()
	c.setFlagsArith(o.Width, r, 0, a, true)
	c.RFlags.set(FlagCF, a != 0)
	// NEG sets OF iff the operand equals the signed minimum for its
	// width, per spec.md §9's pinned open question.
	minVal := signBit(o.Width)
	c.RFlags.set(FlagOF, a&o.Width.Mask() == minVal)
	o.Write(r)
}

func (c *CPU) opNOT(o Operand) {
	o.Write(^o.Read() & o.Width.Mask())
}

// --- Group 3: TEST/NOT/NEG/MUL/IMUL/DIV/IDIV ----------------------------

// opGroup3 implements F6/F7 /digit, generalizing opGrp3_Eb/opGrp3_Ev.
func (c *CPU) opGroup3(w Width) {
	digit := c.modrmRegRaw()
	o := c.rmOperand(w)
	switch digit {
	case 0, 1: // TEST Eb/Ev, imm
		var imm uint64
		if w == W8 {
			imm = uint64(c.fetch8())
		} else if w == W16 {
			imm = uint64(c.fetch16())
		} else {
			imm = uint64(c.fetch32())
		}
		c.setFlagsLogic(w, o.Read()&imm&w.Mask())
	case 2:
		c.opNOT(o)
	case 3:
		c.opNEG(o)
	case 4:
		c.opMUL(o)
	case 5:
		c.opIMULUnary(o)
	case 6:
		c.opDIV(o)
	case 7:
		c.opIDIV(o)
	}
}

func (c *CPU) opMUL(src Operand) {
	w := src.Width
	a := c.Regs.Read(RegRAX, w)
	b := src.Read()
	switch w {
	case W8:
		r := uint16(byte(a)) * uint16(byte(b))
		c.Regs.Write(RegRAX, W16, uint64(r))
		of := r>>8 != 0
		c.RFlags.set(FlagCF, of)
		c.RFlags.set(FlagOF, of)
	case W16:
		r := uint32(uint16(a)) * uint32(uint16(b))
		c.Regs.Write(RegRAX, W16, uint64(r))
		c.Regs.Write(RegRDX, W16, uint64(r>>16))
		of := r>>16 != 0
		c.RFlags.set(FlagCF, of)
		c.RFlags.set(FlagOF, of)
	case W32:
		r := uint64(uint32(a)) * uint64(uint32(b))
		c.Regs.Write(RegRAX, W32, r&0xFFFFFFFF)
		c.Regs.Write(RegRDX, W32, r>>32)
		of := r>>32 != 0
		c.RFlags.set(FlagCF, of)
		c.RFlags.set(FlagOF, of)
	default: // W64: RDX:RAX = RAX * src
		hi, lo := mul64(a, b)
		c.Regs.Write(RegRAX, W64, lo)
		c.Regs.Write(RegRDX, W64, hi)
		of := hi != 0
		c.RFlags.set(FlagCF, of)
		c.RFlags.set(FlagOF, of)
	}
}

// mul64 computes the 128-bit product of two uint64s as (hi, lo).
func mul64(a, b uint64) (hi, lo uint64) {
	const mask32 = 0xFFFFFFFF
	aLo, aHi := a&mask32, a>>32
	bLo, bHi := b&mask32, b>>32

	lo32lo32 := aLo * bLo
	hi32lo32 := aHi * bLo
	lo32hi32 := aLo * bHi
	hi32hi32 := aHi * bHi

	mid := hi32lo32 + (lo32lo32 >> 32) + (lo32hi32 & mask32)
	lo = (lo32lo32 & mask32) | (mid << 32)
	hi = hi32hi32 + (mid >> 32) + (lo32hi32 >> 32)
	return hi, lo
}

func (c *CPU) opIMULUnary(src Operand) {
	w := src.Width
	a := int64(signExtend(c.Regs.Read(RegRAX, w), w))
	b := int64(signExtend(src.Read(), w))
	switch w {
	case W8:
		r := int16(a) * int16(b)
		c.Regs.Write(RegRAX, W16, uint64(uint16(r)))
		ext := int16(int8(r))
		of := r != ext
		c.RFlags.set(FlagCF, of)
		c.RFlags.set(FlagOF, of)
	case W16:
		r := int32(a) * int32(b)
		c.Regs.Write(RegRAX, W16, uint64(uint16(r)))
		c.Regs.Write(RegRDX, W16, uint64(uint16(r>>16)))
		ext := int32(int16(r))
		of := r != ext
		c.RFlags.set(FlagCF, of)
		c.RFlags.set(FlagOF, of)
	case W32:
		r := int64(a) * int64(b)
		c.Regs.Write(RegRAX, W32, uint64(uint32(r)))
		c.Regs.Write(RegRDX, W32, uint64(uint32(r>>32)))
		ext := int64(int32(r))
		of := r != ext
		c.RFlags.set(FlagCF, of)
		c.RFlags.set(FlagOF, of)
	default:
		hi, lo := imul64(a, b)
		c.Regs.Write(RegRAX, W64, lo)
		c.Regs.Write(RegRDX, W64, hi)
		// CF=OF=1 iff the signed high half is not the sign extension
		// of the low half, per spec.md §4.4.
		signExt := uint64(0)
		if int64(lo) < 0 {
			signExt = ^uint64(0)
		}
		of := hi != signExt
		c.RFlags.set(FlagCF, of)
		c.RFlags.set(FlagOF, of)
	}
}

// imul64 computes the signed 128-bit product of two int64s as (hi, lo).
func imul64(a, b int64) (hi, lo uint64) {
	neg := false
	ua, ub := uint64(a), uint64(b)
	if a < 0 {
		ua = uint64(-a)
		neg = !neg
	}
	if b < 0 {
		ub = uint64(-b)
		neg = !neg
	}
	h, l := mul64(ua, ub)
	if neg {
		l = ^l + 1
		h = ^h
		if l == 0 {
			h++
		}
	}
	return h, l
}

func (c *CPU) opDIV(src Operand) {
	w := src.Width
	divisor := src.Read()
	if divisor == 0 {
		c.raiseFault(FaultDE, 0, "divide by zero")
	}
	switch w {
	case W8:
		dividend := c.Regs.Read(RegRAX, W16)
		q, r := dividend/divisor, dividend%divisor
		if q > 0xFF {
			c.raiseFault(FaultDE, 0, "quotient overflow")
		}
		c.Regs.Write(RegRAX, W8, q)
		c.Regs.Write(RegRAX, W8H, r)
	case W16:
		dividend := c.Regs.Read(RegRDX, W16)<<16 | c.Regs.Read(RegRAX, W16)
		q, r := dividend/divisor, dividend%divisor
		if q > 0xFFFF {
			c.raiseFault(FaultDE, 0, "quotient overflow")
		}
		c.Regs.Write(RegRAX, W16, q)
		c.Regs.Write(RegRDX, W16, r)
	case W32:
		dividend := c.Regs.Read(RegRDX, W32)<<32 | c.Regs.Read(RegRAX, W32)
		q, r := dividend/divisor, dividend%divisor
		if q > 0xFFFFFFFF {
			c.raiseFault(FaultDE, 0, "quotient overflow")
		}
		c.Regs.Write(RegRAX, W32, q)
		c.Regs.Write(RegRDX, W32, r)
	default:
		hi := c.Regs.Read(RegRDX, W64)
		lo := c.Regs.Read(RegRAX, W64)
		q, r, ok := divmod128(hi, lo, divisor)
		if !ok {
			c.raiseFault(FaultDE, 0, "quotient overflow")
		}
		c.Regs.Write(RegRAX, W64, q)
		c.Regs.Write(RegRDX, W64, r)
	}
}

// divmod128 divides the 128-bit (hi,lo) dividend by a 64-bit divisor,
// reporting overflow via ok=false when the quotient does not fit in 64
// bits, per spec.md §4.4's #DE-on-overflow requirement for 64-bit DIV.
func divmod128(hi, lo, divisor uint64) (q, r uint64, ok bool) {
	if hi == 0 {
		return lo / divisor, lo % divisor, true
	}
	if hi >= divisor {
		return 0, 0, false
	}
	// Long division, one bit at a time: exact and adequate since this
	// path is only hit by 64-bit DIV/IDIV, not a hot loop.
	var quotient, remainder uint64
	for i := 127; i >= 0; i-- {
		remainder <<= 1
		var bit uint64
		if i >= 64 {
			bit = (hi >> uint(i-64)) & 1
		} else {
			bit = (lo >> uint(i)) & 1
		}
		remainder |= bit
		if remainder >= divisor {
			remainder -= divisor
			if i < 64 {
				quotient |= 1 << uint(i)
			} else {
				return 0, 0, false
			}
		}
	}
	return quotient, remainder, true
}

func (c *CPU) opIDIV(src Operand) {
	w := src.Width
	divisor := int64(signExtend(src.Read(), w))
	if divisor == 0 {
		c.raiseFault(FaultDE, 0, "divide by zero")
	}
	switch w {
	case W8:
		dividend := int64(int16(c.Regs.Read(RegRAX, W16)))
		q, r := dividend/divisor, dividend%divisor
		if q > 127 || q < -128 {
			c.raiseFault(FaultDE, 0, "quotient overflow")
		}
		c.Regs.Write(RegRAX, W8, uint64(uint8(int8(q))))
		c.Regs.Write(RegRAX, W8H, uint64(uint8(int8(r))))
	case W16:
		dividend := int64(int32(uint32(c.Regs.Read(RegRDX, W16))<<16 | uint32(c.Regs.Read(RegRAX, W16))))
		q, r := dividend/divisor, dividend%divisor
		if q > 32767 || q < -32768 {
			c.raiseFault(FaultDE, 0, "quotient overflow")
		}
		c.Regs.Write(RegRAX, W16, uint64(uint16(int16(q))))
		c.Regs.Write(RegRDX, W16, uint64(uint16(int16(r))))
	case W32:
		dividend := int64(c.Regs.Read(RegRDX, W32))<<32 | int64(c.Regs.Read(RegRAX, W32))
		q, r := dividend/divisor, dividend%divisor
		if q > 0x7FFFFFFF || q < -0x80000000 {
			c.raiseFault(FaultDE, 0, "quotient overflow")
		}
		c.Regs.Write(RegRAX, W32, uint64(uint32(int32(q))))
		c.Regs.Write(RegRDX, W32, uint64(uint32(int32(r))))
	default:
		hi := c.Regs.Read(RegRDX, W64)
		lo := c.Regs.Read(RegRAX, W64)
		q, r, ok := idivmod128(int64(hi), lo, divisor)
		if !ok {
			c.raiseFault(FaultDE, 0, "quotient overflow")
		}
		c.Regs.Write(RegRAX, W64, uint64(q))
		c.Regs.Write(RegRDX, W64, uint64(r))
	}
}

func idivmod128(hi int64, lo uint64, divisor int64) (q, r int64, ok bool) {
	negDividend := hi < 0
	var uhi, ulo uint64
	if negDividend {
		ulo = ^lo + 1
		uhi = uint64(^hi)
		if ulo == 0 {
			uhi++
		}
	} else {
		uhi, ulo = uint64(hi), lo
	}
	negDivisor := divisor < 0
	udiv := uint64(divisor)
	if negDivisor {
		udiv = uint64(-divisor)
	}
	uq, ur, divOk := divmod128(uhi, ulo, udiv)
	if !divOk {
		return 0, 0, false
	}
	q = int64(uq)
	if negDividend != negDivisor {
		q = -q
	}
	r = int64(ur)
	if negDividend {
		r = -r
	}
	if (q < 0) != (negDividend != negDivisor) && q != 0 {
		return 0, 0, false
	}
	return q, r, true
}

// --- Group 2: shift/rotate -----------------------------------------------

type shiftOp int

const (
	shROL shiftOp = iota
	shROR
	shRCL
	shRCR
	shSHL
	shSHR
	shSAL         = shSHL
	shSAR shiftOp = iota
)

// opGroup2 implements D0/D1/D2/D3/C0/C1 /digit, generalizing
// shiftRotate8/16/32 into one width-parameterized routine and adding
// the 64-bit case the teacher never had.
func (c *CPU) opGroup2(o Operand, count byte) {
	w := o.Width
	bits := w.bits()
	mask := byte(0x1F)
	if bits == 64 {
		mask = 0x3F
	}
	count &= mask
	if count == 0 {
		return
	}
	digit := c.modrmRegRaw()
	v := o.Read() & w.Mask()

	switch shiftOp(digit) {
	case shROL:
		n := count % byte(bits)
		r := ((v << n) | (v >> uint(bits-int(n)))) & w.Mask()
		o.Write(r)
		c.RFlags.set(FlagCF, r&1 != 0)
		if count == 1 {
			c.RFlags.set(FlagOF, (r&1 != 0) != (r&signBit(w) != 0))
		}
	case shROR:
		n := count % byte(bits)
		r := ((v >> n) | (v << uint(bits-int(n)))) & w.Mask()
		o.Write(r)
		c.RFlags.set(FlagCF, r&signBit(w) != 0)
		if count == 1 {
			top := r & signBit(w)
			second := (r << 1) & signBit(w)
			c.RFlags.set(FlagOF, (top != 0) != (second != 0))
		}
	case shRCL:
		cf := uint64(0)
		if c.RFlags.CF() {
			cf = 1
		}
		r := v
		var lastOut uint64
		for i := byte(0); i < count; i++ {
			lastOut = (r >> uint(bits-1)) & 1
			r = ((r << 1) | cf) & w.Mask()
			cf = lastOut
		}
		o.Write(r)
		c.RFlags.set(FlagCF, cf != 0)
		if count == 1 {
			c.RFlags.set(FlagOF, (r&signBit(w) != 0) != (cf != 0))
		}
	case shRCR:
		cf := uint64(0)
		if c.RFlags.CF() {
			cf = 1
		}
		r := v
		var lastOut uint64
		if count == 1 {
			c.RFlags.set(FlagOF, (r&signBit(w) != 0) != (cf != 0))
		}
		for i := byte(0); i < count; i++ {
			lastOut = r & 1
			r = (r >> 1) | (cf << uint(bits-1))
			cf = lastOut
		}
		o.Write(r & w.Mask())
		c.RFlags.set(FlagCF, cf != 0)
	case shSHL:
		r := (v << count) & w.Mask()
		cf := (v<<(count-1))&signBit(w) != 0
		o.Write(r)
		c.setFlagsLogic(w, r)
		c.RFlags.set(FlagCF, cf)
		if count == 1 {
			c.RFlags.set(FlagOF, (v^(v<<1))&signBit(w) != 0)
		}
	case shSHR:
		r := (v & w.Mask()) >> count
		o.Write(r)
		c.setFlagsLogic(w, r)
		if count >= 1 {
			cf := (v>>(count-1))&1 != 0
			c.RFlags.set(FlagCF, cf)
		}
		if count == 1 {
			c.RFlags.set(FlagOF, v&signBit(w) != 0)
		}
	case shSAR:
		sv := int64(signExtend(v, w))
		r := uint64(sv>>count) & w.Mask()
		o.Write(r)
		c.setFlagsLogic(w, r)
		if count >= 1 {
			cf := (v>>(count-1))&1 != 0
			c.RFlags.set(FlagCF, cf)
		}
		if count == 1 {
			c.RFlags.set(FlagOF, false)
		}
	}
}
