// segments.go - segment registers and segment-cache invariants
//
// New relative to the teacher (see descriptors.go): a segment register
// here is the selector plus the "hidden" descriptor cache spec.md §3
// requires, with the unreal-mode rule from spec.md §4.3/§9 that a
// previously-cached base survives a reload in real mode.

package main

// SegIndex names one of the six segment registers.
type SegIndex int

const (
	SegES SegIndex = iota
	SegCS
	SegSS
	SegDS
	SegFS
	SegGS
)

var segNames = [6]string{"ES", "CS", "SS", "DS", "FS", "GS"}

func (s SegIndex) String() string { return segNames[s] }

// SegmentRegister is a selector paired with its cached descriptor
// fields. In real mode the cache is not recomputed from the selector
// (Base/Limit/etc. are left as-is), which is what lets "unreal mode"
// exist: a 32-bit base survives a transition back to real mode.
type SegmentRegister struct {
	Selector   uint16
	Base       uint64
	Limit      uint32
	Present    bool
	L          bool
	D          bool
	DPL        byte
	Type       byte
	CacheValid bool // true once Base/Limit/etc. reflect a real descriptor
}

// LoadReal sets only the visible selector, per spec.md §3: "loading a
// selector ... in real mode leaves the cache untouched".
func (s *SegmentRegister) LoadReal(selector uint16) {
	s.Selector = selector
}

// LoadDescriptor refreshes the cache from a looked-up descriptor, used
// for protected-mode and long-mode selector loads.
func (s *SegmentRegister) LoadDescriptor(selector uint16, d Descriptor) {
	s.Selector = selector
	s.Base = d.Base
	s.Limit = d.Limit
	s.Present = d.Present
	s.L = d.L
	s.D = d.D
	s.DPL = d.DPL
	s.Type = d.Type
	s.CacheValid = true
}

// CacheSegmentDescriptor explicitly writes the hidden cache without
// going through a selector load, mirroring the
// cacheSegmentDescriptor(seg, base/limit/present) entry point spec.md
// §3 calls out for tests/boot code simulating unreal mode.
func (c *CPU) CacheSegmentDescriptor(seg SegIndex, base uint64, limit uint32, present bool) {
	s := &c.Seg[seg]
	s.Base = base
	s.Limit = limit
	s.Present = present
	s.CacheValid = true
}
