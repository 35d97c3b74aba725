package main

import "testing"

func newTestCPU() *CPU {
	mem := NewMemory(1 << 20)
	return NewCPU(mem, nil)
}

func TestSetFlagsArith_AddOverflow(t *testing.T) {
	c := newTestCPU()
	// 0x7F + 0x01 = 0x80 at W8: signed overflow, no carry.
	c.setFlagsArith(W8, 0x80, 0x7F, 0x01, false)
	if !c.RFlags.OF() {
		t.Error("expected OF set on signed 8-bit overflow")
	}
	if c.RFlags.CF() {
		t.Error("expected CF clear, no unsigned carry")
	}
	if !c.RFlags.SF() {
		t.Error("expected SF set, result is negative")
	}
}

func TestSetFlagsArith_Sub64Carry(t *testing.T) {
	c := newTestCPU()
	// 0 - 1 at W64 borrows.
	c.setFlagsArith(W64, ^uint64(0), 0, 1, true)
	if !c.RFlags.CF() {
		t.Error("expected CF set on 0-1 borrow")
	}
}

func TestRFlagsNormalize(t *testing.T) {
	f := RFlags(0).Normalize()
	if !f.has(flagRes1) {
		t.Error("bit 1 must always read as 1 after Normalize")
	}
	if f.has(1 << 3) {
		t.Error("reserved bit 3 must be forced to 0")
	}
}

func TestParity(t *testing.T) {
	if !parity(0x03) { // two bits set: even parity
		t.Error("0x03 should have even parity")
	}
	if parity(0x07) { // three bits set: odd parity
		t.Error("0x07 should have odd parity")
	}
}
