// dispatch.go - opcode dispatch tables
//
// Static per-byte dispatch table, generalizing cpu_x86_ops.go's
// initBaseOps [256]func(*CPU) construction (itself built once at CPU
// construction time rather than as a runtime map lookup) to a
// decode-then-execute split: decodeAndExecute reads the already-
// latched prefix/REX/opcode state (decoder.go) and calls straight into
// the ops_*.go handlers, raising #UD for unmapped or long-mode-invalid
// rows per spec.md §9's "static 256-entry dispatch table... faults for
// unmapped entries in the active mode".

package main

// decodeAndExecute reads one full instruction (prefixes already
// scanned into c.d) and dispatches it. Returns after the instruction's
// side effects (including RIP advancement) are complete.
func (c *CPU) decodeAndExecute() {
	op := c.d.opcode
	if op == 0x0F {
		c.d.is0F = true
		c.d.opcode2 = c.fetch8()
		c.execute0F()
		return
	}
	c.execute1Byte(op)
}

func (c *CPU) execute1Byte(op byte) {
	w := c.d.opSize

	switch {
	// ADD/OR/ADC/SBB/AND/SUB/XOR/CMP families: each spans an 8-opcode
	// block (Eb,Gb / Ev,Gv / Gb,Eb / Gv,Ev / AL,ib / eAX,iz) plus a
	// segment-override/irrelevant pair at +6/+7 for some rows. We key
	// off the low 3 bits of the block and the ALU op selects by
	// (op>>3)&7.
	case op < 0x40 && op&0x7 < 6 && (op&0xC0) == 0:
		aop := aluOp((op >> 3) & 0x7)
		switch op & 0x7 {
		case 0x0:
			c.opALURmReg(aop, W8, true)
		case 0x1:
			c.opALURmReg(aop, w, true)
		case 0x2:
			c.opALURmReg(aop, W8, false)
		case 0x3:
			c.opALURmReg(aop, w, false)
		case 0x4:
			c.opALUAccImm(aop, W8)
		case 0x5:
			c.opALUAccImm(aop, w)
		}
		return
	}

	switch op {
	case 0x40, 0x41, 0x42, 0x43, 0x44, 0x45, 0x46, 0x47:
		c.opINC(Operand{c: c, Width: w, reg: RegID(op - 0x40)})
	case 0x48, 0x49, 0x4A, 0x4B, 0x4C, 0x4D, 0x4E, 0x4F:
		c.opDEC(Operand{c: c, Width: w, reg: RegID(op - 0x48)})

	case 0x50, 0x51, 0x52, 0x53, 0x54, 0x55, 0x56, 0x57:
		c.opPUSHShort(RegID(op - 0x50))
	case 0x58, 0x59, 0x5A, 0x5B, 0x5C, 0x5D, 0x5E, 0x5F:
		c.opPOPShort(RegID(op - 0x58))

	case 0x63:
		c.opMOVSXD()

	case 0x68:
		var imm uint64
		if w == W16 {
			imm = uint64(c.fetch16())
		} else {
			imm = signExtend(uint64(c.fetch32()), W32)
		}
		c.pushWidth(c.ripWidth(), imm)
	case 0x6A:
		imm := signExtend(uint64(c.fetch8()), W8)
		c.pushWidth(c.ripWidth(), imm)

	case 0x70, 0x71, 0x72, 0x73, 0x74, 0x75, 0x76, 0x77,
		0x78, 0x79, 0x7A, 0x7B, 0x7C, 0x7D, 0x7E, 0x7F:
		rel := int64(int8(c.fetch8()))
		c.opJcc(op-0x70, rel)

	case 0x80:
		c.opGroup1(W8, false, W8)
	case 0x81:
		c.opGroup1(w, false, w)
	case 0x83:
		c.opGroup1(w, true, W8)

	case 0x84:
		rm := c.rmOperand(W8)
		reg := c.regOperand(W8)
		c.setFlagsLogic(W8, rm.Read()&reg.Read())
	case 0x85:
		rm := c.rmOperand(w)
		reg := c.regOperand(w)
		c.setFlagsLogic(w, rm.Read()&reg.Read())

	case 0x86:
		c.opXCHG(c.rmOperand(W8), c.regOperand(W8))
	case 0x87:
		c.opXCHG(c.rmOperand(w), c.regOperand(w))

	case 0x88:
		c.opMOVRmReg(W8, true)
	case 0x89:
		c.opMOVRmReg(w, true)
	case 0x8A:
		c.opMOVRmReg(W8, false)
	case 0x8B:
		c.opMOVRmReg(w, false)
	case 0x8C:
		c.opMOVSegRm(true)
	case 0x8D:
		c.opLEA(w)
	case 0x8E:
		c.opMOVSegRm(false)
	case 0x8F:
		c.opPOP(c.rmOperand(w))

	case 0x90:
		// NOP, or XCHG R8,rAX under REX.B.
		c.opXCHGShort(RegRAX, w)
	case 0x91, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97:
		c.opXCHGShort(RegID(op-0x90), w)

	case 0xA4:
		c.execStringOp(c.opMOVS, W8, false)
	case 0xA5:
		c.execStringOp(c.opMOVS, w, false)
	case 0xAA:
		c.execStringOp(c.opSTOS, W8, false)
	case 0xAB:
		c.execStringOp(c.opSTOS, w, false)
	case 0xAC:
		c.execStringOp(c.opLODS, W8, false)
	case 0xAD:
		c.execStringOp(c.opLODS, w, false)
	case 0xAE:
		c.execStringOp(c.opSCAS, W8, true)
	case 0xAF:
		c.execStringOp(c.opSCAS, w, true)
	case 0xA6:
		c.execStringOp(c.opCMPS, W8, true)
	case 0xA7:
		c.execStringOp(c.opCMPS, w, true)

	case 0xB0, 0xB1, 0xB2, 0xB3, 0xB4, 0xB5, 0xB6, 0xB7:
		c.opMOVImmToReg(RegID(op-0xB0), W8)
	case 0xB8, 0xB9, 0xBA, 0xBB, 0xBC, 0xBD, 0xBE, 0xBF:
		rw := w
		if c.d.rex.W {
			rw = W64
		}
		id := RegID(op - 0xB8)
		if c.d.rex.B {
			id |= 8
		}
		c.opMOVImmToReg(id, rw)

	case 0xC0:
		o := c.rmOperand(W8)
		count := c.fetch8()
		c.opGroup2(o, count)
	case 0xC1:
		o := c.rmOperand(w)
		count := c.fetch8()
		c.opGroup2(o, count)
	case 0xD0:
		o := c.rmOperand(W8)
		c.opGroup2(o, 1)
	case 0xD1:
		o := c.rmOperand(w)
		c.opGroup2(o, 1)
	case 0xD2:
		o := c.rmOperand(W8)
		c.opGroup2(o, byte(c.Regs.Read(RegRCX, W8)))
	case 0xD3:
		o := c.rmOperand(w)
		c.opGroup2(o, byte(c.Regs.Read(RegRCX, W8)))

	case 0xC2:
		c.opRETNearImm()
	case 0xC3:
		c.opRETNear()
	case 0xC6:
		c.opMOVImmToRM(W8)
	case 0xC7:
		c.opMOVImmToRM(w)
	case 0xCA:
		c.opRETFar(true)
	case 0xCB:
		c.opRETFar(false)
	case 0xCC:
		c.opINT3()
	case 0xCD:
		v := c.fetch8()
		c.opINT(v)
	case 0xCE:
		c.opINTO()
	case 0xCF:
		c.IRET()

	case 0xE8:
		c.opCALLRel()
	case 0xE9:
		var rel int64
		if w == W16 {
			rel = int64(int16(c.fetch16()))
		} else {
			rel = int64(int32(c.fetch32()))
		}
		c.opJMPRel(rel)
	case 0xEA:
		off := uint64(c.fetch32())
		sel := c.fetch16()
		c.opJMPFar(FarPointer{Offset: off, Selector: sel})
	case 0xEB:
		rel := int64(int8(c.fetch8()))
		c.opJMPRel(rel)

	case 0xF1:
		c.opINT1()

	case 0xF4:
		c.Halted = true

	case 0xF6:
		c.opGroup3(W8)
	case 0xF7:
		c.opGroup3(w)

	case 0xF8:
		c.RFlags.set(FlagCF, false)
	case 0xF9:
		c.RFlags.set(FlagCF, true)
	case 0xFA:
		c.RFlags.set(FlagIF, false)
	case 0xFB:
		c.RFlags.set(FlagIF, true)
	case 0xFC:
		c.RFlags.set(FlagDF, false)
	case 0xFD:
		c.RFlags.set(FlagDF, true)

	case 0xFE:
		digit := c.modrmRegRaw()
		o := c.rmOperand(W8)
		if digit == 0 {
			c.opINC(o)
		} else if digit == 1 {
			c.opDEC(o)
		} else {
			c.raiseFault(FaultUD, 0, "invalid FE /digit")
		}
	case 0xFF:
		c.opGroup5(w)

	default:
		c.raiseFault(FaultUD, 0, "unmapped opcode")
	}
}

// execute0F dispatches the 0F-escape two-byte opcode map.
func (c *CPU) execute0F() {
	op := c.d.opcode2
	w := c.d.opSize

	switch {
	case op >= 0x80 && op <= 0x8F:
		var rel int64
		if w == W16 {
			rel = int64(int16(c.fetch16()))
		} else {
			rel = int64(int32(c.fetch32()))
		}
		c.opJcc(op-0x80, rel)
		return
	case op >= 0x90 && op <= 0x9F:
		o := c.rmOperand(W8)
		c.opSETcc(op-0x90, o)
		return
	}

	switch op {
	case 0x00:
		digit := c.modrmRegRaw()
		if digit == 2 {
			c.opLLDT(uint16(c.rmOperand(W16).Read()))
		} else {
			c.raiseFault(FaultUD, 0, "unsupported 0F 00 /digit")
		}
	case 0x01:
		digit := c.modrmRegRaw()
		o := c.rmOperand(W32)
		switch digit {
		case 0:
			c.opLGDT(o)
		case 1:
			c.opLIDT(o)
		default:
			c.raiseFault(FaultUD, 0, "unsupported 0F 01 /digit")
		}
	case 0x06:
		// CLTS: clear CR0.TS -- not modeled (no FPU lazy-switch path);
		// treated as a no-op, matching the teacher's pattern of
		// accepting but not acting on chipset-adjacent opcodes it
		// doesn't model.
	case 0x0B:
		c.raiseFault(FaultUD, 0, "UD2")
	case 0x20:
		reg := c.modrmRMExtended()
		n := c.modrmRegRaw()
		c.Regs.Write(reg, W64, c.opMOVFromCR(n))
	case 0x22:
		reg := c.modrmRMExtended()
		n := c.modrmRegRaw()
		c.opMOVToCR(n, c.Regs.Read(reg, W64))
	case 0x30:
		c.opWRMSR()
	case 0x32:
		c.opRDMSR()
	case 0xA2:
		c.opCPUID()
	case 0xB6:
		c.opMOVZX(W8, w)
	case 0xB7:
		c.opMOVZX(W16, w)
	case 0xBE:
		c.opMOVSX(W8, w)
	case 0xBF:
		c.opMOVSX(W16, w)
	default:
		c.raiseFault(FaultUD, 0, "unmapped 0F opcode")
	}
}

// opCPUID is a minimal CPUID: leaf 0 reports a vendor string and max
// leaf 1, leaf 1 reports a feature bit set with PAE and LM advertised
// so guest firmware probing for long-mode support succeeds.
func (c *CPU) opCPUID() {
	leaf := uint32(c.Regs.Read(RegRAX, W32))
	switch leaf {
	case 0:
		c.Regs.Write(RegRAX, W32, 1)
		c.Regs.Write(RegRBX, W32, 0x756E6547) // "Genu"
		c.Regs.Write(RegRDX, W32, 0x49656E69) // "ineI"
		c.Regs.Write(RegRCX, W32, 0x6C65746E) // "ntel"
	default:
		const paeBit = 1 << 6
		const lmBit = 1 << 29
		c.Regs.Write(RegRAX, W32, 0)
		c.Regs.Write(RegRBX, W32, 0)
		c.Regs.Write(RegRCX, W32, 0)
		c.Regs.Write(RegRDX, W32, paeBit|lmBit)
	}
}
