// cpu.go - CPU context aggregate
//
// Struct-of-registers-plus-mode-state shape ported from
// IntuitionEngine's cpu_x86.go CPU_X86 struct and NewCPU_X86/Reset,
// widened with the mode-transition state (CR0/CR4/EFER, GDTR/IDTR,
// CPL, A20, REX latch) spec.md §3 requires and the flat teacher model
// never carried.

package main

// Bus is the I/O port side-channel a CPU talks to, analogous to the
// teacher's X86Bus.In/Out. Memory access goes through Memory instead
// (see memory.go) since spec.md treats linear memory as owned by the
// emulator, not a collaborator.
type Bus interface {
	In(port uint16) byte
	Out(port uint16, value byte)
}

// nullBus discards port I/O; used when a CPU is built without a bus.
type nullBus struct{}

func (nullBus) In(uint16) byte   { return 0xFF }
func (nullBus) Out(uint16, byte) {}

// REX holds the decoded bits of one REX prefix, latched for the
// duration of a single instruction per spec.md §3/§9.
type REX struct {
	Present bool
	W       bool
	R       bool
	X       bool
	B       bool
}

// CPU is the complete architectural state of one logical core.
type CPU struct {
	Regs   RegisterFile
	Seg    [6]SegmentRegister
	RIP    uint64
	RFlags RFlags

	CR0  uint64
	CR2  uint64
	CR3  uint64
	CR4  uint64
	EFER uint64

	GDTR DescriptorTableReg
	IDTR DescriptorTableReg
	LDTR SegmentRegister

	CPL byte

	A20Enabled bool

	// Mode-derived state, recomputed whenever CR0/CR4/EFER or CS
	// change (see modes.go).
	IsLongModeActive    bool // EFER.LMA
	IsCompatibilityMode bool
	Is64BitMode         bool // CS.L=1, CS.D=0
	DefaultOperandSize  int  // 16, 32 (64-bit sub-mode default operand size is 32 unless REX.W)
	DefaultAddressSize  int  // 16, 32, 64

	rex REX

	Halted               bool
	RetiredInstructions  uint64
	PendingIRQ           bool
	PendingIRQVector     byte
	inFaultDelivery      bool

	mem  *Memory
	bus  Bus
	bios *BIOSRegistry
	log  *Logger

	decodeStart uint64      // RIP at the start of the instruction being decoded
	d           instrDecode // per-instruction decode scratch state (decoder.go)
}

// NewCPU constructs a CPU wired to mem and bus, reset to power-on
// defaults (real mode, A20 disabled, CS=0/IP=0x7C00 per spec.md §6
// boot-input contract -- callers that want a bare reset-vector CPU
// instead of a booted one should call Reset() again and set RIP
// themselves).
func NewCPU(mem *Memory, bus Bus) *CPU {
	if bus == nil {
		bus = nullBus{}
	}
	c := &CPU{mem: mem, bus: bus, log: NewLogger()}
	c.bios = NewBIOSRegistry(c)
	c.Reset()
	return c
}

// Reset restores architectural power-on defaults and places RIP at the
// boot sector per spec.md §6.
func (c *CPU) Reset() {
	c.Regs.Reset()
	for i := range c.Seg {
		c.Seg[i] = SegmentRegister{}
	}
	c.Seg[SegCS].Selector = 0
	c.RIP = 0x7C00
	c.RFlags = RFlags(0).Normalize()
	c.RFlags.set(FlagIF, false)

	c.CR0 = 0
	c.CR2 = 0
	c.CR3 = 0
	c.CR4 = 0
	c.EFER = 0
	c.GDTR = DescriptorTableReg{}
	c.IDTR = DescriptorTableReg{}
	c.LDTR = SegmentRegister{}
	c.CPL = 0
	c.A20Enabled = false

	c.IsLongModeActive = false
	c.IsCompatibilityMode = false
	c.Is64BitMode = false
	c.DefaultOperandSize = 16
	c.DefaultAddressSize = 16

	c.rex = REX{}
	c.Halted = false
	c.RetiredInstructions = 0
	c.PendingIRQ = false
	c.inFaultDelivery = false
}

// IsProtectedMode reports CR0.PE.
func (c *CPU) IsProtectedMode() bool { return c.CR0&1 != 0 }

// IsPaging reports CR0.PG.
func (c *CPU) IsPaging() bool { return c.CR0&(1<<31) != 0 }

// IsPAE reports CR4.PAE.
func (c *CPU) IsPAE() bool { return c.CR4&(1<<5) != 0 }

// EFER bit positions relevant to this core.
const (
	eferLME = 1 << 8 // Long Mode Enable
	eferLMA = 1 << 10
)

// IsLME reports EFER.LME.
func (c *CPU) IsLME() bool { return c.EFER&eferLME != 0 }

// SetIRQ raises a pending hardware interrupt request, serviced by the
// execution loop between instructions when IF is set.
func (c *CPU) SetIRQ(vector byte) {
	c.PendingIRQ = true
	c.PendingIRQVector = vector
}
