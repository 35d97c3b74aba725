// ops_string.go - string instruction family
//
// IntuitionEngine's x86 core has no string opcodes at all; this is
// grounded on spec.md §4.4's MOVS/STOS/LODS/SCAS/CMPS description,
// following the same width-parameterized Operand style as the rest of
// the ops_*.go files so the four widths (b/w/d/q) share one body
// instead of four near-duplicate functions, per spec.md §9's
// anti-duplication guidance.

package main

// stringStep returns the per-element step in bytes: +width when the
// direction flag is clear, -width when it is set.
func (c *CPU) stringStep(w Width) int64 {
	n := int64(w.bits() / 8)
	if c.RFlags.DF() {
		return -n
	}
	return n
}

func (c *CPU) opMOVS(w Width) {
	rsi := c.Regs.Read(RegRSI, c.addrWidth())
	rdi := c.Regs.Read(RegRDI, c.addrWidth())
	v := c.ReadMem(c.effectiveSeg(), rsi, w)
	c.WriteMem(SegES, rdi, w, v)
	step := c.stringStep(w)
	c.Regs.Write(RegRSI, c.addrWidth(), uint64(int64(rsi)+step))
	c.Regs.Write(RegRDI, c.addrWidth(), uint64(int64(rdi)+step))
}

func (c *CPU) opSTOS(w Width) {
	rdi := c.Regs.Read(RegRDI, c.addrWidth())
	v := c.Regs.Read(RegRAX, w)
	c.WriteMem(SegES, rdi, w, v)
	step := c.stringStep(w)
	c.Regs.Write(RegRDI, c.addrWidth(), uint64(int64(rdi)+step))
}

func (c *CPU) opLODS(w Width) {
	rsi := c.Regs.Read(RegRSI, c.addrWidth())
	v := c.ReadMem(c.effectiveSeg(), rsi, w)
	c.Regs.Write(RegRAX, w, v)
	step := c.stringStep(w)
	c.Regs.Write(RegRSI, c.addrWidth(), uint64(int64(rsi)+step))
}

// opSCAS compares AL/AX/EAX/RAX against mem[RDI], updating flags with
// unsigned comparison semantics for CF, per spec.md §4.4's pinned
// SCASQ test (RAX=~0, mem=0, DF=0 => CF=0, ZF=0, SF=1, RDI += 8).
func (c *CPU) opSCAS(w Width) {
	rdi := c.Regs.Read(RegRDI, c.addrWidth())
	a := c.Regs.Read(RegRAX, w)
	m := c.ReadMem(SegES, rdi, w)
	r := a - m
	c.setFlagsArith(w, r, a, m, true)
	step := c.stringStep(w)
	c.Regs.Write(RegRDI, c.addrWidth(), uint64(int64(rdi)+step))
}

func (c *CPU) opCMPS(w Width) {
	rsi := c.Regs.Read(RegRSI, c.addrWidth())
	rdi := c.Regs.Read(RegRDI, c.addrWidth())
	a := c.ReadMem(c.effectiveSeg(), rsi, w)
	b := c.ReadMem(SegES, rdi, w)
	r := a - b
	c.setFlagsArith(w, r, a, b, true)
	step := c.stringStep(w)
	c.Regs.Write(RegRSI, c.addrWidth(), uint64(int64(rsi)+step))
	c.Regs.Write(RegRDI, c.addrWidth(), uint64(int64(rdi)+step))
}

// addrWidth returns the width used for RSI/RDI advancement, matching
// the current effective address size.
func (c *CPU) addrWidth() Width {
	switch c.d.addrBits {
	case 16:
		return W16
	case 64:
		return W64
	default:
		return W32
	}
}

// repPrefixMode reports whether a REP-class prefix is active and, if
// so, whether it is the "while equal" (REPE/REPZ) or "while not equal"
// (REPNE/REPNZ) variant, used only by SCAS/CMPS's loop termination.
func (c *CPU) repPrefixMode() (active bool, whileEqual bool) {
	switch c.d.prefix.rep {
	case 1:
		return true, true
	case 2:
		return true, false
	default:
		return false, false
	}
}

// execStringOp runs one string opcode under its REP/REPE/REPNE prefix,
// if any, honoring RCX as the repeat counter per the architectural
// REP-prefix semantics (zero-count REP executes the body zero times).
func (c *CPU) execStringOp(body func(w Width), w Width, usesZF bool) {
	active, whileEqual := c.repPrefixMode()
	if !active {
		body(w)
		return
	}
	cx := c.addrWidth()
	for c.Regs.Read(RegRCX, cx) != 0 {
		body(w)
		n := c.Regs.Read(RegRCX, cx) - 1
		c.Regs.Write(RegRCX, cx, n)
		if usesZF {
			if whileEqual && !c.RFlags.ZF() {
				break
			}
			if !whileEqual && c.RFlags.ZF() {
				break
			}
		}
		if n == 0 {
			break
		}
	}
}
