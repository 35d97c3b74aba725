// execloop.go - fetch-decode-execute cycle
//
// Grounded on cpu_x86.go's Step(): prefix loop, opcode dispatch,
// undefined-opcode handling. The teacher halts-and-prints on fault;
// per spec.md §4.7/§9 this recovers a typed Fault, vectors it through
// the interrupt unit, and keeps running (a double fault if vectoring
// itself faults).

package main

// Snapshot is a point-in-time dump of the general-purpose registers,
// RIP, RFLAGS, CR0/CR3/CR4 and EFER (segment and descriptor-table state
// is not included), grounded on the teacher's full-register-dump debug
// helpers.
type Snapshot struct {
	Regs   [16]uint64
	RIP    uint64
	RFlags uint64
	CR0    uint64
	CR3    uint64
	CR4    uint64
	EFER   uint64
}

// Snapshot captures the CPU's current architectural state.
func (c *CPU) Snapshot() Snapshot {
	s := Snapshot{RIP: c.RIP, RFlags: uint64(c.RFlags), CR0: c.CR0, CR3: c.CR3, CR4: c.CR4, EFER: c.EFER}
	for i := 0; i < 16; i++ {
		s.Regs[i] = c.Regs.Read(RegID(i), W64)
	}
	return s
}

// StepResult reports the outcome of one Step call.
type StepResult struct {
	Fault *Fault // non-nil if the instruction raised an architectural exception
}

// Step executes exactly one instruction: prefix scan, opcode dispatch,
// REX-latch clearance on exit (even under fault unwind), per spec.md
// §4.7 and §9's "scoped acquisition on the decoder, guaranteed cleared
// on dispatch exit even under fault unwind".
func (c *CPU) Step() (result StepResult) {
	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(*Fault)
			if !ok {
				panic(r)
			}
			result.Fault = f
			c.handleFault(f)
		}
		c.d = instrDecode{}
	}()

	if c.Halted {
		return StepResult{}
	}

	c.beginDecode()
	c.scanPrefixes()
	c.resolveSizes()
	c.decodeAndExecute()
	c.RetiredInstructions++

	c.serviceIRQ()
	return StepResult{}
}

// handleFault vectors a caught Fault through the interrupt unit. A
// fault raised while already vectoring the previous one escalates to a
// double fault per spec.md §4.5's fault taxonomy; a fault while
// vectoring a double fault is unrecoverable and halts the CPU (there
// is no triple-fault/reset path modeled).
func (c *CPU) handleFault(f *Fault) {
	if c.inFaultDelivery {
		if f.Kind == FaultDF {
			c.Halted = true
			return
		}
		c.RIP = f.RIP
		c.deliverFaultVector(&Fault{Kind: FaultDF, RIP: f.RIP})
		return
	}

	c.inFaultDelivery = true
	defer func() { c.inFaultDelivery = false }()

	c.RIP = f.RIP
	c.deliverFaultVector(f)
}

func (c *CPU) deliverFaultVector(f *Fault) {
	defer func() {
		if r := recover(); r != nil {
			inner, ok := r.(*Fault)
			if !ok {
				panic(r)
			}
			if f.Kind == FaultDF {
				c.Halted = true
				return
			}
			c.handleFault(inner)
		}
	}()
	c.deliverInterrupt(f.Kind.Vector(), true, f.Code, hasErrorCode(f.Kind))
}

// hasErrorCode reports whether the architectural exception pushes an
// error code as part of its frame (this core's fault taxonomy has only
// #GP and #DF carry one; #UD and #DE do not).
func hasErrorCode(k FaultKind) bool {
	return k == FaultGP || k == FaultDF
}

// serviceIRQ delivers a pending hardware interrupt between
// instructions when IF is set, per spec.md §4.7's "service pending
// software interrupts that the handler raised" suspension point.
func (c *CPU) serviceIRQ() {
	if !c.PendingIRQ || !c.RFlags.IF() {
		return
	}
	c.PendingIRQ = false
	c.deliverInterrupt(c.PendingIRQVector, false, 0, false)
}

// Run executes instructions until Halted is set or RetiredInstructions
// reaches limit (0 = unbounded). It returns no result: faults are
// vectored inside Step, so callers that want per-instruction fault
// visibility call Step directly instead.
func (c *CPU) Run(limit uint64) {
	for !c.Halted {
		c.Step()
		if limit != 0 && c.RetiredInstructions >= limit {
			return
		}
	}
}
