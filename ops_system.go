// ops_system.go - system/privileged instructions
//
// New relative to the teacher (no descriptor tables, no control
// registers in the flat model). Grounded on spec.md §4.3's mode-switch
// boundary scenario 5 (MOV CR4,EAX / WRMSR EFER / MOV CR0) and §4.6's
// LGDT/LIDT-style descriptor-table loads implied by the BIOS/boot
// contract.

package main

// opMOVToCR implements MOV CRn, r (a restricted two-operand form since
// this core exposes CR0/CR2/CR3/CR4 but not the full control-register
// file): writes v through the mode-recomputing setter so IA-32e
// activation derives immediately, per spec.md §4.3.
func (c *CPU) opMOVToCR(n byte, v uint64) {
	switch n {
	case 0:
		c.WriteCR0(v)
	case 2:
		c.CR2 = v
	case 3:
		c.CR3 = v
	case 4:
		c.WriteCR4(v)
	default:
		c.raiseFault(FaultUD, 0, "unsupported control register")
	}
}

func (c *CPU) opMOVFromCR(n byte) uint64 {
	switch n {
	case 0:
		return c.CR0
	case 2:
		return c.CR2
	case 3:
		return c.CR3
	case 4:
		return c.CR4
	default:
		c.raiseFault(FaultUD, 0, "unsupported control register")
		return 0
	}
}

// msrEFER is the only MSR this core models, per spec.md §4.3's boot
// sequence (WRMSR EFER,0x100 to set LME before enabling paging).
const msrEFER = 0xC0000080

// opWRMSR implements WRMSR: ECX selects the MSR, EDX:EAX holds the
// 64-bit value.
func (c *CPU) opWRMSR() {
	msr := uint32(c.Regs.Read(RegRCX, W32))
	v := c.Regs.Read(RegRDX, W32)<<32 | c.Regs.Read(RegRAX, W32)
	if msr == msrEFER {
		c.WriteEFER(v)
	}
}

func (c *CPU) opRDMSR() {
	msr := uint32(c.Regs.Read(RegRCX, W32))
	var v uint64
	if msr == msrEFER {
		v = c.EFER
	}
	c.Regs.Write(RegRAX, W32, v&0xFFFFFFFF)
	c.Regs.Write(RegRDX, W32, v>>32)
}

// opLGDT/opLIDT load GDTR/IDTR from a 6-byte (legacy) or 10-byte
// (long-mode) pseudo-descriptor at the resolved memory operand:
// {limit16, base32/64}.
func (c *CPU) opLGDT(o Operand) {
	c.GDTR = c.readPseudoDescriptor(o)
}

func (c *CPU) opLIDT(o Operand) {
	c.IDTR = c.readPseudoDescriptor(o)
}

func (c *CPU) readPseudoDescriptor(o Operand) DescriptorTableReg {
	if !o.IsMem {
		c.raiseFault(FaultUD, 0, "LGDT/LIDT require a memory operand")
	}
	off := o.MemOffset()
	limit := uint16(c.ReadMem(o.seg, off, W16))
	var base uint64
	if c.Is64BitMode {
		base = c.ReadMem(o.seg, off+2, W64)
	} else {
		base = c.ReadMem(o.seg, off+2, W32)
	}
	return DescriptorTableReg{Base: base, Limit: limit}
}

// opLLDT loads LDTR's selector and refreshes its descriptor cache from
// the GDT.
func (c *CPU) opLLDT(selector uint16) {
	if selector&0xFFFC == 0 {
		c.LDTR = SegmentRegister{Selector: selector}
		return
	}
	d := c.LookupDescriptor(selector)
	c.LDTR.LoadDescriptor(selector, d)
}
