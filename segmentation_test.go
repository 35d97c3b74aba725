package main

import "testing"

// Real mode with no descriptor cache populated uses the classic
// selector<<4 + offset formula.
func TestLinearAddress_RealMode(t *testing.T) {
	c := newTestCPU()
	c.Seg[SegDS].LoadReal(0x1000)
	got := c.LinearAddress(SegDS, 0x234)
	want := uint64(0x1000)<<4 + 0x234
	if got != want {
		t.Errorf("got 0x%X, want 0x%X", got, want)
	}
}

// Unreal mode: once a descriptor cache has been populated (e.g. by a
// prior protected-mode load), a subsequent real-mode selector reload
// must NOT clear the cached base -- LoadReal only touches Selector, so
// the cached flat base keeps being used for addressing.
func TestLinearAddress_UnrealModeCacheSurvivesReload(t *testing.T) {
	c := newTestCPU()
	flat := Descriptor{Base: 0x10000000, Limit: 0xFFFFFFFF, Present: true, D: true, Type: 0x2, System: true}
	c.Seg[SegDS].LoadDescriptor(0x08, flat)
	c.Seg[SegDS].LoadReal(0x2000) // back in real mode, reload the selector

	got := c.LinearAddress(SegDS, 0x10)
	want := flat.Base + 0x10
	if got != want {
		t.Errorf("unreal-mode address should still use the cached flat base: got 0x%X, want 0x%X", got, want)
	}
}

// A20 gating clears bit 20 of the linear address when disabled.
func TestLinearAddress_A20Gating(t *testing.T) {
	c := newTestCPU()
	c.A20Enabled = false
	c.Seg[SegDS].LoadReal(0xFFFF)
	got := c.LinearAddress(SegDS, 0x10)
	want := (uint64(0xFFFF)<<4 + 0x10) &^ (1 << 20)
	if got != want {
		t.Errorf("A20 should be masked: got 0x%X, want 0x%X", got, want)
	}

	c.A20Enabled = true
	got = c.LinearAddress(SegDS, 0x10)
	want = uint64(0xFFFF)<<4 + 0x10
	if got != want {
		t.Errorf("A20 enabled should pass bit 20 through: got 0x%X, want 0x%X", got, want)
	}
}

// Protected mode enforces the cached descriptor's limit.
func TestLinearAddress_ProtectedModeLimitFault(t *testing.T) {
	c := newTestCPU()
	c.WriteCR0(c.CR0 | 1)
	small := Descriptor{Base: 0x1000, Limit: 0xFF, Present: true, D: true, Type: 0x2, System: true}
	c.Seg[SegDS].LoadDescriptor(0x08, small)

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
	c.LinearAddress(SegDS, 0x100)
	t.Fatal("expected a limit-exceeded #GP")
}

// LookupDescriptor must raise #GP for a selector whose index lies past
// the GDT limit.
func TestLookupDescriptor_IndexExceedsLimitFaults(t *testing.T) {
	c := newTestCPU()
	c.GDTR = DescriptorTableReg{Base: 0x3000, Limit: 0x0F} // room for 2 entries only

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
	c.LookupDescriptor(0x20) // index 4, past the 2-entry limit
	t.Fatal("expected a GDT-limit #GP")
}

// LoadSegment with a null selector into DS succeeds without a descriptor
// lookup.
func TestLoadSegment_NullSelectorIntoDS(t *testing.T) {
	c := newTestCPU()
	c.WriteCR0(c.CR0 | 1)
	c.LoadSegment(SegDS, 0)
	if c.Seg[SegDS].Selector != 0 {
		t.Errorf("selector: got 0x%X, want 0", c.Seg[SegDS].Selector)
	}
	if c.Seg[SegDS].CacheValid {
		t.Error("a null selector load should not populate a descriptor cache")
	}
}
