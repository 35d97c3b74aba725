// segmentation.go - selector:offset to linear address translation
//
// New relative to the teacher, grounded directly on spec.md §4.3. The
// real-mode and unreal-mode formulas and the "prefer the cached base"
// rule are pinned literally by spec.md §9's Open Questions.

package main

// a20Mask clears bit 20 of a linear address when the A20 gate is
// disabled, per spec.md §3.
func (c *CPU) a20Mask(addr uint64) uint64 {
	if c.A20Enabled {
		return addr
	}
	return addr &^ (1 << 20)
}

// LinearAddress translates seg:offset to a linear address for the
// CPU's current mode.
func (c *CPU) LinearAddress(seg SegIndex, offset uint64) uint64 {
	if !c.IsProtectedMode() {
		return c.a20Mask(c.linearAddressRealOrUnreal(seg, offset))
	}
	return c.linearAddressProtectedOrLong(seg, offset)
}

// linearAddressRealOrUnreal implements spec.md §4.3's real-mode and
// unreal-mode rules: prefer a previously-cached descriptor base over
// selector<<4 once that cache has been explicitly populated (by a
// prior protected/long-mode load or an explicit
// CacheSegmentDescriptor call); otherwise fall back to the classic
// 20-bit formula.
func (c *CPU) linearAddressRealOrUnreal(seg SegIndex, offset uint64) uint64 {
	s := &c.Seg[seg]
	if s.CacheValid {
		return s.Base + offset
	}
	return uint64(s.Selector)<<4 + offset
}

// linearAddressProtectedOrLong forms base+offset for a protected- or
// long-mode access; outside 64-bit sub-mode a loaded descriptor's
// present bit and limit are checked and raise #GP.
func (c *CPU) linearAddressProtectedOrLong(seg SegIndex, offset uint64) uint64 {
	s := &c.Seg[seg]
	// In 64-bit sub-mode every segment's cached base is added and no
	// present/limit check is made.
	if c.Is64BitMode {
		return s.Base + offset
	}
	if s.CacheValid {
		if !s.Present {
			c.raiseFault(FaultGP, 0, "segment not present")
		}
		if offset > uint64(s.Limit) {
			c.raiseFault(FaultGP, 0, "segment limit exceeded")
		}
	}
	return s.Base + offset
}

// LookupDescriptor resolves a selector against the GDT or the current
// LDT, per spec.md §4.3: "Look up descriptor at
// (GDTR.base | LDTR.base) + index*8".
func (c *CPU) LookupDescriptor(sel uint16) Descriptor {
	decoded := DecodeSelector(sel)
	var base uint64
	var limit uint16
	if decoded.TI {
		base = c.LDTR.Base
		limit = uint16(c.LDTR.Limit)
	} else {
		base = c.GDTR.Base
		limit = c.GDTR.Limit
	}
	entryOff := uint64(decoded.Index) * 8
	if entryOff+7 > uint64(limit) {
		c.raiseFault(FaultGP, sel, "selector index exceeds descriptor table limit")
	}
	var raw [8]byte
	for i := range raw {
		raw[i] = c.mem.Read8(base + entryOff + uint64(i))
	}
	return ParseDescriptor(raw)
}

// LoadSegment loads selector into seg, refreshing the descriptor cache
// in protected/long mode and leaving it untouched in real mode (so
// unreal mode can exist), per spec.md §3/§4.3.
func (c *CPU) LoadSegment(seg SegIndex, selector uint16) {
	if !c.IsProtectedMode() {
		c.Seg[seg].LoadReal(selector)
		return
	}
	if selector&0xFFFC == 0 {
		// Null selector: valid to load into DS/ES/FS/GS, not SS/CS
		// (SS may hold a null selector in 64-bit sub-mode).
		if seg == SegCS || (seg == SegSS && !c.Is64BitMode) {
			c.raiseFault(FaultGP, 0, "null selector load into CS/SS")
		}
		c.Seg[seg] = SegmentRegister{Selector: selector}
		return
	}
	d := c.LookupDescriptor(selector)
	if !d.Present {
		c.raiseFault(FaultGP, selector, "segment not present")
	}
	c.Seg[seg].LoadDescriptor(selector, d)
	if seg == SegCS {
		c.recomputeModes()
	}
}
