// registers.go - general-purpose register file
//
// Sixteen architectural 64-bit slots (RAX..R15) with width-sliced
// read/write views, generalized from IntuitionEngine's cpu_x86.go
// AX()/SetAX()/AL()/SetAL()-style accessors into a single
// (register-id, width) indexed API that also covers the REX-extended
// registers and the long-mode zero-extension rule.

package main

// RegID identifies one of the sixteen general-purpose register slots.
type RegID byte

const (
	RegRAX RegID = iota
	RegRCX
	RegRDX
	RegRBX
	RegRSP
	RegRBP
	RegRSI
	RegRDI
	RegR8
	RegR9
	RegR10
	RegR11
	RegR12
	RegR13
	RegR14
	RegR15
)

// Width selects which slice of a 64-bit slot an access touches.
type Width int

const (
	W8 Width = iota
	W8H       // high byte of AX/CX/DX/BX only (AH/CH/DH/BH)
	W16
	W32
	W64
)

func (w Width) bits() int {
	switch w {
	case W8, W8H:
		return 8
	case W16:
		return 16
	case W32:
		return 32
	default:
		return 64
	}
}

// Mask returns a bitmask covering the low w.bits() bits.
func (w Width) Mask() uint64 {
	switch w {
	case W8, W8H:
		return 0xFF
	case W16:
		return 0xFFFF
	case W32:
		return 0xFFFFFFFF
	default:
		return ^uint64(0)
	}
}

// RegisterFile holds the sixteen general-purpose registers.
type RegisterFile struct {
	slot [16]uint64
}

// Read returns the value held at id under the given width.
func (r *RegisterFile) Read(id RegID, w Width) uint64 {
	switch w {
	case W8:
		return r.slot[id] & 0xFF
	case W8H:
		return (r.slot[id&3] >> 8) & 0xFF
	case W16:
		return r.slot[id] & 0xFFFF
	case W32:
		return r.slot[id] & 0xFFFFFFFF
	default:
		return r.slot[id]
	}
}

// Write stores v into id at the given width.
//
// Writes at width 8 and 16 preserve the untouched higher bits of the
// slot; a write at width 32 always zero-extends to 64 bits, which is
// architecturally visible only once long mode exposes the upper half
// but is harmless to apply universally since legacy modes never read
// bits 63:32.
func (r *RegisterFile) Write(id RegID, w Width, v uint64) {
	switch w {
	case W8:
		r.slot[id] = (r.slot[id] &^ 0xFF) | (v & 0xFF)
	case W8H:
		idx := id & 3
		r.slot[idx] = (r.slot[idx] &^ 0xFF00) | ((v & 0xFF) << 8)
	case W16:
		r.slot[id] = (r.slot[id] &^ 0xFFFF) | (v & 0xFFFF)
	case W32:
		r.slot[id] = v & 0xFFFFFFFF
	default:
		r.slot[id] = v
	}
}

// Reset clears every slot to zero (architectural power-on default).
func (r *RegisterFile) Reset() {
	for i := range r.slot {
		r.slot[i] = 0
	}
}

// reg8Encoding resolves a 3-4 bit register field used in an 8-bit
// context to the (slot, width) pair it actually addresses. Without a
// REX prefix, encodings 4-7 select the legacy high-byte aliases
// AH/CH/DH/BH (bits 15:8 of EAX/ECX/EDX/EBX); with any REX prefix
// present, the same bit pattern instead selects the low byte of
// SPL/BPL/SIL/DIL (and, extended by REX.R/B/X, R8B-R15B).
func reg8Encoding(id RegID, rexPresent bool) (RegID, Width) {
	if id < 4 || rexPresent {
		return id, W8
	}
	return id - 4, W8H
}

// names used by the disassembler and fault snapshots.
var reg64Names = [16]string{
	"RAX", "RCX", "RDX", "RBX", "RSP", "RBP", "RSI", "RDI",
	"R8", "R9", "R10", "R11", "R12", "R13", "R14", "R15",
}

var reg32Names = [16]string{
	"EAX", "ECX", "EDX", "EBX", "ESP", "EBP", "ESI", "EDI",
	"R8D", "R9D", "R10D", "R11D", "R12D", "R13D", "R14D", "R15D",
}

var reg16Names = [16]string{
	"AX", "CX", "DX", "BX", "SP", "BP", "SI", "DI",
	"R8W", "R9W", "R10W", "R11W", "R12W", "R13W", "R14W", "R15W",
}

var reg8Names = [16]string{
	"AL", "CL", "DL", "BL", "SPL", "BPL", "SIL", "DIL",
	"R8B", "R9B", "R10B", "R11B", "R12B", "R13B", "R14B", "R15B",
}

var reg8HighNames = [4]string{"AH", "CH", "DH", "BH"}

// regName returns the assembly mnemonic for id at width w, honoring the
// REX-dependent 8-bit aliasing rule.
func regName(id RegID, w Width, rexPresent bool) string {
	switch w {
	case W8:
		if id >= 4 && id < 8 && !rexPresent {
			return reg8HighNames[id-4] // legacy AH/CH/DH/BH encoding
		}
		return reg8Names[id]
	case W8H:
		return reg8HighNames[id&3]
	case W16:
		return reg16Names[id]
	case W32:
		return reg32Names[id]
	default:
		return reg64Names[id]
	}
}
