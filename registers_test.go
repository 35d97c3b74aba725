package main

import "testing"

func TestRegisterFile_WidthSlices(t *testing.T) {
	var r RegisterFile
	r.Write(RegRAX, W64, 0x1122334455667788)

	if got := r.Read(RegRAX, W32); got != 0x55667788 {
		t.Errorf("EAX: got 0x%X, want 0x55667788", got)
	}
	if got := r.Read(RegRAX, W16); got != 0x7788 {
		t.Errorf("AX: got 0x%X, want 0x7788", got)
	}
	if got := r.Read(RegRAX, W8); got != 0x88 {
		t.Errorf("AL: got 0x%X, want 0x88", got)
	}
	if got := r.Read(RegRAX, W8H); got != 0x77 {
		t.Errorf("AH: got 0x%X, want 0x77", got)
	}

	r.Write(RegRAX, W8H, 0xCD)
	if got := r.Read(RegRAX, W64); got != 0x112233445566CD88 {
		t.Errorf("after AH write: got 0x%X, want 0x112233445566CD88", got)
	}
}

func TestRegisterFile_Write32ZeroExtends(t *testing.T) {
	var r RegisterFile
	r.Write(RegRAX, W64, 0xFFFFFFFFFFFFFFFF)
	r.Write(RegRAX, W32, 0x1)
	if got := r.Read(RegRAX, W64); got != 1 {
		t.Errorf("32-bit write should zero-extend to 64 bits: got 0x%X, want 0x1", got)
	}
}

func TestReg8Encoding(t *testing.T) {
	id, w := reg8Encoding(4, false) // encoding 4 without REX: AH
	if id != 0 || w != W8H {
		t.Errorf("no-REX encoding 4: got (%d,%d), want (0,W8H)", id, w)
	}
	id, w = reg8Encoding(4, true) // same bit pattern with REX: SPL
	if id != 4 || w != W8 {
		t.Errorf("REX-present encoding 4: got (%d,%d), want (4,W8)", id, w)
	}
}
