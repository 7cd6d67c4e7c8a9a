package bpf

import (
	"encoding/binary"
)

// Context is the mutable state of one invocation. It is never shared between
// invocations.
type Context struct {
	Regs  [NumRegisters]uint64
	PC    int
	Stack [StackSize]byte

	mem       Memory
	helpers   *HelperRegistry
	regions   RegionTable
	dataStart uint64
	dataEnd   uint64

	// hits counts executions per slot when profiling.
	hits []uint64
}

// NewContext prepares a fresh invocation over mem: r1 holds mem.Base(), r10
// the top of the stack and every other register is zero.
func NewContext(mem Memory, helpers *HelperRegistry) *Context {
	c := &Context{
		mem:       mem,
		helpers:   helpers,
		regions:   mem.Regions(),
		dataStart: mem.DataStart(),
		dataEnd:   mem.DataEnd(),
	}

	c.regions[regionStack] = c.Stack[:]
	c.Regs[1] = mem.Base()
	c.Regs[FramePointer] = StackAddr + StackSize

	return c
}

// Load reads size bytes at addr, zero-extended.
func (c *Context) Load(addr uint64, size int) (uint64, error) {
	b, ok := c.regions.Translate(addr, size)
	if !ok {
		return 0, Fault(ErrOutOfBounds, c.PC)
	}

	switch size {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	default:
		return binary.LittleEndian.Uint64(b), nil
	}
}

// Store writes the low size bytes of v at addr.
func (c *Context) Store(addr uint64, size int, v uint64) error {
	b, ok := c.regions.Translate(addr, size)
	if !ok {
		return Fault(ErrOutOfBounds, c.PC)
	}

	switch size {
	case 1:
		b[0] = uint8(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}

	return nil
}

// LoadPacket reads size bytes at addr, which must lie within the packet
// bounds of the memory model.
func (c *Context) LoadPacket(addr uint64, size int) (uint64, error) {
	if addr < c.dataStart || addr > c.dataEnd || c.dataEnd-addr < uint64(size) {
		return 0, Fault(ErrOutOfBounds, c.PC)
	}

	return c.Load(addr, size)
}

// Call runs helper idx with r1 to r5 and stores its result in r0.
func (c *Context) Call(idx uint32) error {
	fn, ok := c.helpers.Lookup(idx)
	if !ok {
		return Fault(ErrUnknownHelper, c.PC)
	}

	c.Regs[0] = fn(c.Regs[1], c.Regs[2], c.Regs[3], c.Regs[4], c.Regs[5])

	return nil
}
