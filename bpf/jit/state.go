package jit

import (
	"unsafe"

	"github.com/tcassar-diss/bpfvm/bpf"
)

// Reasons native code hands control back to Go, stored in machineState.status.
const (
	statusNone uint64 = iota
	statusExit
	statusCallHelper
	statusOutOfBounds
	statusDivideByZero
)

// machineState is the memory native code works on. rbx points at it for the
// whole run; BPF registers live in regs rather than in host registers.
//
// Every field read by native code is a uint64 so that its offset can be used
// directly as a disp32.
type machineState struct {
	regs      [bpf.NumRegisters]uint64
	status    uint64
	helper    uint64
	resume    uint64
	faultPC   uint64
	dataStart uint64
	dataEnd   uint64
	arg       uint64
	stackTop  uint64
	regionPtr [bpf.NumRegions]uint64
	regionLen [bpf.NumRegions]uint64
	stack     [bpf.StackSize]byte

	// regions keeps the buffers behind regionPtr reachable.
	regions bpf.RegionTable
}

const (
	offRegs      = int32(unsafe.Offsetof(machineState{}.regs))
	offStatus    = int32(unsafe.Offsetof(machineState{}.status))
	offHelper    = int32(unsafe.Offsetof(machineState{}.helper))
	offResume    = int32(unsafe.Offsetof(machineState{}.resume))
	offFaultPC   = int32(unsafe.Offsetof(machineState{}.faultPC))
	offDataStart = int32(unsafe.Offsetof(machineState{}.dataStart))
	offDataEnd   = int32(unsafe.Offsetof(machineState{}.dataEnd))
	offArg       = int32(unsafe.Offsetof(machineState{}.arg))
	offStackTop  = int32(unsafe.Offsetof(machineState{}.stackTop))
	offRegionPtr = int32(unsafe.Offsetof(machineState{}.regionPtr))
	offRegionLen = int32(unsafe.Offsetof(machineState{}.regionLen))
)

func regDisp(r uint8) int32 {
	return offRegs + int32(r)*8
}

func newMachineState(mem bpf.Memory) *machineState {
	st := &machineState{
		dataStart: mem.DataStart(),
		dataEnd:   mem.DataEnd(),
		arg:       mem.Base(),
		stackTop:  bpf.StackAddr + bpf.StackSize,
		regions:   mem.Regions(),
	}

	st.regions[bpf.StackAddr>>32] = st.stack[:]

	for i, region := range st.regions {
		if len(region) == 0 {
			continue
		}

		st.regionPtr[i] = uint64(uintptr(unsafe.Pointer(&region[0])))
		st.regionLen[i] = uint64(len(region))
	}

	return st
}
