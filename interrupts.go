// interrupts.go - software interrupt dispatch and fault frame delivery
//
// The teacher has no interrupt unit at all (IntuitionEngine's x86 core
// never models INT/IRET). This is grounded directly on spec.md §4.5's
// per-mode frame formats, using the same dispatch-table idiom as
// cpu_x86_ops.go's initBaseOps for the opcode-level INT/INT3/INTO/IRET
// handlers in ops_control.go, with this file holding the shared
// vectoring logic both the opcode handlers and the outer fault-catch
// loop (execloop.go) call into.

package main

// deliverInterrupt vectors into the IVT (real mode) or IDT
// (protected/long mode), pushing the architecturally-correct frame per
// spec.md §4.5. isException distinguishes a CPU-raised fault (no
// intercept dispatch, no IF side effect beyond the gate type) from a
// guest-executed INT instruction (which may hit a BIOS intercept).
func (c *CPU) deliverInterrupt(vector byte, isException bool, errorCode uint16, hasErrorCode bool) {
	if !isException && c.bios != nil {
		if fn, ok := c.bios.Lookup(vector); ok {
			fn(c)
			return
		}
	}

	switch {
	case c.IsLongModeActive:
		c.deliverLongModeInterrupt(vector, errorCode, hasErrorCode)
	case c.IsProtectedMode():
		c.deliverProtectedModeInterrupt(vector, errorCode, hasErrorCode)
	default:
		c.deliverRealModeInterrupt(vector)
	}
}

// deliverRealModeInterrupt implements spec.md §4.5's real-mode INT:
// push FLAGS, CS, IP; clear IF and TF; load CS:IP from the IVT entry
// at vector*4.
func (c *CPU) deliverRealModeInterrupt(vector byte) {
	c.push(uint64(uint16(c.RFlags)))
	c.push(uint64(c.Seg[SegCS].Selector))
	c.push(c.RIP & 0xFFFF)

	c.RFlags.set(FlagIF, false)
	c.RFlags.set(FlagTF, false)

	entry := uint64(vector) * 4
	offset := c.mem.Read16(entry)
	segment := c.mem.Read16(entry + 2)
	c.Seg[SegCS].LoadReal(segment)
	c.RIP = uint64(offset)
}

// deliverProtectedModeInterrupt implements spec.md §4.5's 16/32-bit
// protected-mode INT: read the 8-byte IDT gate, push FLAGS/CS/return-IP
// (no stack switch -- this core does not model the DPL<CPL
// inter-privilege path beyond what spec.md calls out as "not required
// by this core's tests"), clear IF for interrupt gates.
func (c *CPU) deliverProtectedModeInterrupt(vector byte, errorCode uint16, hasErrorCode bool) {
	entryOff := uint64(vector) * 8
	if entryOff+7 > uint64(c.IDTR.Limit) {
		c.raiseFault(FaultGP, uint16(vector)*8+2, "interrupt vector exceeds IDT limit")
	}
	var raw [8]byte
	for i := range raw {
		raw[i] = c.mem.Read8(c.IDTR.Base + entryOff + uint64(i))
	}
	gate := ParseGate16(raw)
	if !gate.Present {
		c.raiseFault(FaultGP, uint16(vector)*8+2, "interrupt gate not present")
	}

	if hasErrorCode {
		c.push(uint64(errorCode))
	}
	c.push(uint64(uint32(c.RFlags)))
	c.push(uint64(c.Seg[SegCS].Selector))
	c.push(c.RIP & 0xFFFFFFFF)

	// GateTypeInterrupt64 (0xE) is also the 32-bit interrupt-gate encoding
	// here; only its numeric value is reused, not the long-mode gate shape.
	if gate.Type == GateTypeInterrupt16 || gate.Type == GateTypeInterrupt64 {
		c.RFlags.set(FlagIF, false)
	}
	c.RFlags.set(FlagTF, false)

	d := c.LookupDescriptor(gate.Selector)
	c.Seg[SegCS].LoadDescriptor(gate.Selector, d)
	c.RIP = uint64(gate.Offset)
	c.recomputeModes()
}

// deliverLongModeInterrupt implements spec.md §4.5's long-mode INT:
// 16-byte IDT gates, a 5-qword frame {RIP, CS, RFLAGS, RSP, SS} pushed
// below RSP aligned down to 16 bytes, so an aligned RSP ends 40 bytes
// lower (48 with an error code).
func (c *CPU) deliverLongModeInterrupt(vector byte, errorCode uint16, hasErrorCode bool) {
	entryOff := uint64(vector) * 16
	if entryOff+15 > uint64(c.IDTR.Limit) {
		c.raiseFault(FaultGP, uint16(vector)*16+2, "interrupt vector exceeds IDT limit")
	}
	var raw [16]byte
	for i := range raw {
		raw[i] = c.mem.Read8(c.IDTR.Base + entryOff + uint64(i))
	}
	gate := ParseGate64(raw)
	if !gate.Present {
		c.raiseFault(FaultGP, uint16(vector)*16+2, "interrupt gate not present")
	}

	oldSS := c.Seg[SegSS].Selector
	oldRSP := c.Regs.Read(RegRSP, W64)

	frame := []uint64{
		c.RIP,
		uint64(c.Seg[SegCS].Selector),
		uint64(c.RFlags),
		oldRSP,
		uint64(oldSS),
	}
	frameBytes := uint64(len(frame) * 8)
	if hasErrorCode {
		frameBytes += 8
	}
	// Align RSP down to 16 bytes, then place the frame directly below
	// it. An error code, when present, sits below the standard 5-qword
	// frame so software can `add rsp,8` before IRETQ, matching the
	// architectural convention.
	base := (oldRSP &^ 0xF) - frameBytes
	sp := base
	if hasErrorCode {
		c.WriteMem(SegSS, sp, W64, uint64(errorCode))
		sp += 8
	}
	for _, v := range frame {
		c.WriteMem(SegSS, sp, W64, v)
		sp += 8
	}
	c.Regs.Write(RegRSP, W64, base)

	if gate.Type == GateTypeInterrupt64 {
		c.RFlags.set(FlagIF, false)
	}
	c.RFlags.set(FlagTF, false)

	d := c.LookupDescriptor(gate.Selector)
	c.EnterViaFarTransfer(gate.Selector, d)
	c.RIP = gate.Offset
}

// iretReal pops the FLAGS/CS/IP frame pushed by deliverRealModeInterrupt.
func (c *CPU) iretReal() {
	ip := c.pop()
	cs := c.pop()
	flags := c.pop()
	c.RIP = ip & 0xFFFF
	c.Seg[SegCS].LoadReal(uint16(cs))
	c.RFlags = (RFlags(flags) & 0xFFFF).Normalize()
}

// iretProtected pops the 32-bit protected-mode interrupt frame.
func (c *CPU) iretProtected() {
	ip := c.pop()
	cs := c.pop()
	flags := c.pop()
	c.RIP = ip & 0xFFFFFFFF
	d := c.LookupDescriptor(uint16(cs))
	c.Seg[SegCS].LoadDescriptor(uint16(cs), d)
	c.RFlags = RFlags(flags).Normalize()
	c.recomputeModes()
}

// iretq pops the 5-qword long-mode interrupt frame per spec.md §4.5:
// restores RIP, CS (refreshing its cache; staying in 64-bit sub-mode
// if the new CS is a 64-bit code segment), RFLAGS, RSP, SS.
func (c *CPU) iretq() {
	sp := c.Regs.Read(RegRSP, W64)
	rip := c.ReadMem(SegSS, sp, W64)
	cs := c.ReadMem(SegSS, sp+8, W64)
	rflags := c.ReadMem(SegSS, sp+16, W64)
	rsp := c.ReadMem(SegSS, sp+24, W64)
	ss := c.ReadMem(SegSS, sp+32, W64)

	c.RIP = rip
	d := c.LookupDescriptor(uint16(cs))
	c.EnterViaFarTransfer(uint16(cs), d)
	c.RFlags = RFlags(rflags).Normalize()
	c.Regs.Write(RegRSP, W64, rsp)
	sd := c.LookupDescriptor(uint16(ss))
	c.Seg[SegSS].LoadDescriptor(uint16(ss), sd)
}

// IRET dispatches to the mode-correct pop sequence.
func (c *CPU) IRET() {
	switch {
	case c.Is64BitMode:
		c.iretq()
	case c.IsProtectedMode():
		c.iretProtected()
	default:
		c.iretReal()
	}
}
