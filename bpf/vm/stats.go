package vm

import (
	"errors"
	"sync/atomic"

	"github.com/tcassar-diss/bpfvm/bpf"
)

// Stats counts invocations of a VM and the faults they ended in.
type Stats struct {
	Interpreted       uint64
	Compiled          uint64
	OutOfBounds       uint64
	DivisionByZero    uint64
	UnknownHelper     uint64
	InstructionLimit  uint64
	IllegalOpcode     uint64
	InvalidJumpTarget uint64
}

type counters struct {
	interpreted       atomic.Uint64
	compiled          atomic.Uint64
	outOfBounds       atomic.Uint64
	divisionByZero    atomic.Uint64
	unknownHelper     atomic.Uint64
	instructionLimit  atomic.Uint64
	illegalOpcode     atomic.Uint64
	invalidJumpTarget atomic.Uint64
}

func (c *counters) record(path *atomic.Uint64, err error) {
	path.Add(1)

	if err == nil {
		return
	}

	faults := []struct {
		err     error
		counter *atomic.Uint64
	}{
		{bpf.ErrOutOfBounds, &c.outOfBounds},
		{bpf.ErrDivisionByZero, &c.divisionByZero},
		{bpf.ErrUnknownHelper, &c.unknownHelper},
		{bpf.ErrInstructionLimit, &c.instructionLimit},
		{bpf.ErrIllegalOpcode, &c.illegalOpcode},
		{bpf.ErrInvalidJumpTarget, &c.invalidJumpTarget},
	}

	for _, f := range faults {
		if errors.Is(err, f.err) {
			f.counter.Add(1)
			return
		}
	}
}

// Stats reports what the VM has run so far.
func (v *VM) Stats() *Stats {
	c := &v.stats

	return &Stats{
		Interpreted:       c.interpreted.Load(),
		Compiled:          c.compiled.Load(),
		OutOfBounds:       c.outOfBounds.Load(),
		DivisionByZero:    c.divisionByZero.Load(),
		UnknownHelper:     c.unknownHelper.Load(),
		InstructionLimit:  c.instructionLimit.Load(),
		IllegalOpcode:     c.illegalOpcode.Load(),
		InvalidJumpTarget: c.invalidJumpTarget.Load(),
	}
}
