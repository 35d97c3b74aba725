package main

import "testing"

// Real-mode INT pushes FLAGS/CS/IP, clears IF and TF, and vectors
// through the 4-byte IVT entry at vector*4.
func TestDeliverRealModeInterrupt_PushesFrameAndVectors(t *testing.T) {
	c := newTestCPU()
	c.Seg[SegCS].LoadReal(0x2000)
	c.RIP = 0x100
	c.RFlags.set(FlagIF, true)
	c.RFlags.set(FlagTF, true)
	c.Regs.Write(RegRSP, W16, 0x1000)
	c.Seg[SegSS].LoadReal(0)

	// IVT entry for vector 0x21: offset=0x5000, segment=0x3000.
	c.mem.Write16(0x21*4, 0x5000)
	c.mem.Write16(0x21*4+2, 0x3000)

	c.deliverRealModeInterrupt(0x21)

	if c.RIP != 0x5000 {
		t.Errorf("RIP: got 0x%X, want 0x5000", c.RIP)
	}
	if c.Seg[SegCS].Selector != 0x3000 {
		t.Errorf("CS: got 0x%X, want 0x3000", c.Seg[SegCS].Selector)
	}
	if c.RFlags.IF() {
		t.Error("expected IF cleared after INT")
	}
	if c.RFlags.TF() {
		t.Error("expected TF cleared after INT")
	}
	if got := c.Regs.Read(RegRSP, W16); got != 0x1000-6 {
		t.Errorf("RSP: got 0x%X, want 0x%X", got, 0x1000-6)
	}
}

// iretReal pops exactly the frame deliverRealModeInterrupt pushed,
// restoring IP, CS and FLAGS.
func TestIretReal_RestoresFrame(t *testing.T) {
	c := newTestCPU()
	c.Seg[SegCS].LoadReal(0x2000)
	c.Seg[SegSS].LoadReal(0)
	c.Regs.Write(RegRSP, W16, 0x1000)
	c.RIP = 0x1234
	c.RFlags.set(FlagCF, true)
	origFlags := c.RFlags

	c.mem.Write16(0x21*4, 0x5000)
	c.mem.Write16(0x21*4+2, 0x3000)
	c.deliverRealModeInterrupt(0x21)
	c.iretReal()

	if c.RIP != 0x1234 {
		t.Errorf("RIP: got 0x%X, want 0x1234", c.RIP)
	}
	if c.Seg[SegCS].Selector != 0x2000 {
		t.Errorf("CS: got 0x%X, want 0x2000", c.Seg[SegCS].Selector)
	}
	if c.RFlags.Normalize() != origFlags.Normalize() {
		t.Errorf("RFLAGS: got 0x%X, want 0x%X", uint64(c.RFlags), uint64(origFlags))
	}
	if got := c.Regs.Read(RegRSP, W16); got != 0x1000 {
		t.Errorf("RSP: got 0x%X, want 0x1000 (fully unwound)", got)
	}
}

// Protected-mode INT reads an 8-byte IDT gate and pushes a 3-dword
// frame; an interrupt gate (type 0xE) clears IF.
func TestDeliverProtectedModeInterrupt_InterruptGateClearsIF(t *testing.T) {
	c := newTestCPU()
	c.WriteCR0(c.CR0 | 1)
	flatCode := Descriptor{Base: 0, Limit: 0xFFFFFFFF, Present: true, D: true, Type: 0xA, System: true}
	flatData := Descriptor{Base: 0, Limit: 0xFFFFFFFF, Present: true, D: true, Type: 0x2, System: true}
	c.Seg[SegCS].LoadDescriptor(0x08, flatCode)
	c.Seg[SegSS].LoadDescriptor(0x10, flatData)
	c.Regs.Write(RegRSP, W32, 0x2000)
	c.RIP = 0x500
	c.RFlags.set(FlagIF, true)

	gdt := make([]byte, 0x18)
	copy(gdt[8:16], encodeDescriptor(flatCode))
	copy(gdt[16:24], encodeDescriptor(flatData))
	c.mem.LoadBytes(0x3000, gdt)
	c.GDTR = DescriptorTableReg{Base: 0x3000, Limit: uint16(len(gdt) - 1)}

	idt := make([]byte, 0x21*8)
	gate := []byte{0x00, 0x60, 0x08, 0x00, 0x00, 0x8E, 0x00, 0x00} // offset=0x6000, sel=0x08, P=1, type=0xE
	copy(idt[0x20*8:], gate)
	c.mem.LoadBytes(0x4000, idt)
	c.IDTR = DescriptorTableReg{Base: 0x4000, Limit: uint16(len(idt) - 1)}

	c.deliverProtectedModeInterrupt(0x20, 0, false)

	if c.RIP != 0x6000 {
		t.Errorf("RIP: got 0x%X, want 0x6000", c.RIP)
	}
	if c.RFlags.IF() {
		t.Error("expected IF cleared for an interrupt gate")
	}
	if got := c.Regs.Read(RegRSP, W32); got != 0x2000-12 {
		t.Errorf("RSP: got 0x%X, want 0x%X", got, 0x2000-12)
	}
}

// A vector whose IDT slot exceeds IDTR.Limit raises #GP rather than
// reading out of bounds.
func TestDeliverProtectedModeInterrupt_VectorBeyondLimitFaults(t *testing.T) {
	c := newTestCPU()
	c.WriteCR0(c.CR0 | 1)
	c.IDTR = DescriptorTableReg{Base: 0x4000, Limit: 0x07} // room for vector 0 only

	defer func() {
		r := recover()
		f, ok := r.(*Fault)
		if !ok {
			t.Fatalf("expected a *Fault panic, got %v", r)
		}
		if f.Kind != FaultGP {
			t.Errorf("expected #GP, got %v", f.Kind)
		}
	}()
	c.deliverProtectedModeInterrupt(1, 0, false)
	t.Fatal("expected an IDT-limit #GP")
}

// A guest-executed INT through opINT consults a registered BIOS
// intercept before any mode-based vectoring, but a CPU-raised
// exception (isException=true) must never be redirected there.
func TestDeliverInterrupt_BIOSInterceptOnlyForNonExceptions(t *testing.T) {
	c := newTestCPU()
	called := false
	c.bios = &BIOSRegistry{cpu: c, handlers: map[biosKey]func(c *CPU){
		{vector: 0x21, ah: 0x00}: func(c *CPU) { called = true },
	}}
	c.Regs.Write(RegRAX, W16, 0x0000)

	c.opINT(0x21)
	if !called {
		t.Error("expected the guest INT to hit the registered BIOS intercept")
	}

	called = false
	c.Seg[SegCS].LoadReal(0)
	c.mem.Write16(0x21*4, 0)
	c.mem.Write16(0x21*4+2, 0)
	c.deliverInterrupt(0x21, true, 0, false)
	if called {
		t.Error("a CPU exception must not be redirected to a BIOS intercept")
	}
}
