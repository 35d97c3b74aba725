// modes.go - mode-transition state machine
//
// New relative to the teacher: IntuitionEngine's x86 core has exactly
// one mode. This implements spec.md §3/§4.3's IA-32e activation rule
// and the real/protected/compatibility/64-bit sub-mode derivation.

package main

// recomputeModes derives IsLongModeActive/IsCompatibilityMode/
// Is64BitMode/DefaultOperandSize/DefaultAddressSize from CR0/CR4/EFER
// and the current CS cache, per spec.md §3's derived invariant:
//
//	IA-32e is ACTIVE iff CR4.PAE ∧ EFER.LME ∧ CR0.PG ∧ CR0.PE
//
// and enters 64-bit sub-mode only on a far control transfer into a
// descriptor with L=1, D=0 (handled by EnterViaFarTransfer, not here).
func (c *CPU) recomputeModes() {
	wasLong := c.IsLongModeActive
	active := c.IsPAE() && c.IsLME() && c.IsPaging() && c.IsProtectedMode()

	if active {
		c.EFER |= eferLMA
	} else {
		c.EFER &^= eferLMA
	}
	c.IsLongModeActive = active

	if !active {
		c.IsCompatibilityMode = false
		c.Is64BitMode = false
		if c.IsProtectedMode() {
			c.DefaultAddressSize = 32
		} else {
			c.DefaultAddressSize = 16
		}
		c.DefaultOperandSize = c.legacyOperandSizeDefault()
		return
	}

	if !wasLong {
		// IA-32e has just activated: enter compatibility mode
		// running the current legacy code descriptor until a far
		// transfer loads a 64-bit (L=1) code segment.
		c.IsCompatibilityMode = true
		c.Is64BitMode = false
		c.DefaultAddressSize = 32
		c.DefaultOperandSize = 32
	}
}

// legacyOperandSizeDefault derives the 16/32 default operand size from
// CS.D when running outside long mode (real mode has no descriptor
// cache to consult and is always 16-bit by default).
func (c *CPU) legacyOperandSizeDefault() int {
	if c.IsProtectedMode() && c.Seg[SegCS].CacheValid && c.Seg[SegCS].D {
		return 32
	}
	if c.IsProtectedMode() && c.Seg[SegCS].CacheValid {
		return 16
	}
	return 16
}

// EnterViaFarTransfer reloads CS from a far control transfer (far
// JMP/CALL/RET/IRET) and re-derives the active sub-mode: a descriptor
// with L=1,D=0 switches to 64-bit sub-mode; any other descriptor
// (while IA-32e is active) runs compatibility mode.
func (c *CPU) EnterViaFarTransfer(selector uint16, d Descriptor) {
	c.Seg[SegCS].LoadDescriptor(selector, d)
	if !c.IsLongModeActive {
		return
	}
	if d.L && !d.D {
		c.Is64BitMode = true
		c.IsCompatibilityMode = false
		c.DefaultAddressSize = 64
		c.DefaultOperandSize = 32
	} else {
		c.Is64BitMode = false
		c.IsCompatibilityMode = true
		c.DefaultAddressSize = 32
		c.DefaultOperandSize = 32
	}
}

// WriteCR0 applies a new CR0 value and re-derives mode state. Setting
// PE=1 while CR4.PAE/EFER.LME/CR0.PG (about to become 1) are already
// staged activates IA-32e per spec.md §4.3's boundary scenario 5.
func (c *CPU) WriteCR0(v uint64) {
	c.CR0 = v
	c.recomputeModes()
}

func (c *CPU) WriteCR4(v uint64) {
	c.CR4 = v
	c.recomputeModes()
}

// EnterProtectedModeFlat is a CLI/test convenience that brings the CPU
// up in 32-bit protected mode with flat 4GB code/data segments, without
// requiring a guest-supplied GDT: it installs descriptor caches
// directly via LoadDescriptor, then sets CR0.PE.
func (c *CPU) EnterProtectedModeFlat() {
	flatCode := Descriptor{Base: 0, Limit: 0xFFFFFFFF, Present: true, D: true, Type: 0xA, System: true}
	flatData := Descriptor{Base: 0, Limit: 0xFFFFFFFF, Present: true, D: true, Type: 0x2, System: true}
	c.Seg[SegCS].LoadDescriptor(0x08, flatCode)
	for _, s := range []SegIndex{SegDS, SegES, SegSS, SegFS, SegGS} {
		c.Seg[s].LoadDescriptor(0x10, flatData)
	}
	c.WriteCR0(c.CR0 | 1)
}

// EnterLongModeFlat brings the CPU up in 64-bit mode with flat code/data
// segments, staging CR4.PAE, EFER.LME and CR0.PG/PE in the architectural
// order spec.md §4.3's boundary scenario 5 requires before the far
// transfer that actually activates the 64-bit code segment.
func (c *CPU) EnterLongModeFlat() {
	c.CR3 = 0x1000
	c.WriteCR4(c.CR4 | (1 << 5)) // PAE
	c.WriteEFER(c.EFER | eferLME)
	c.WriteCR0(c.CR0 | 1 | (1 << 31)) // PE | PG

	flatCode64 := Descriptor{Base: 0, Limit: 0xFFFFFFFF, Present: true, L: true, Type: 0xA, System: true}
	flatData := Descriptor{Base: 0, Limit: 0xFFFFFFFF, Present: true, D: true, Type: 0x2, System: true}
	c.EnterViaFarTransfer(0x08, flatCode64)
	for _, s := range []SegIndex{SegDS, SegES, SegSS, SegFS, SegGS} {
		c.Seg[s].LoadDescriptor(0x10, flatData)
	}
}

func (c *CPU) WriteEFER(v uint64) {
	// LMA is hardware-derived, never guest-writable directly.
	c.EFER = (v &^ uint64(eferLMA)) | (c.EFER & eferLMA)
	c.recomputeModes()
}
