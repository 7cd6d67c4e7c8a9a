package bpf

import (
	"math/bits"
)

// DefaultInstructionLimit bounds the number of instructions one interpreted
// invocation may execute.
const DefaultInstructionLimit = 1_000_000

// Interpreter executes a validated Program one instruction at a time. It holds
// no per-invocation state and may be shared between goroutines.
type Interpreter struct {
	prog    *Program
	helpers *HelperRegistry
	limit   uint64
}

// NewInterpreter returns an interpreter for p. A zero limit selects
// DefaultInstructionLimit.
func NewInterpreter(p *Program, helpers *HelperRegistry, limit uint64) *Interpreter {
	if limit == 0 {
		limit = DefaultInstructionLimit
	}

	return &Interpreter{
		prog:    p,
		helpers: helpers,
		limit:   limit,
	}
}

// Run executes the program against mem and returns r0.
func (ip *Interpreter) Run(mem Memory) (uint64, error) {
	return ip.RunContext(NewContext(mem, ip.helpers))
}

// RunProfiled is Run that also adds the executed slots to prof.
func (ip *Interpreter) RunProfiled(mem Memory, prof *Profile) (uint64, error) {
	c := NewContext(mem, ip.helpers)
	c.hits = make([]uint64, ip.prog.Len())

	defer prof.merge(c.hits)

	return ip.RunContext(c)
}

// RunContext executes the program on a prepared context.
func (ip *Interpreter) RunContext(c *Context) (uint64, error) {
	insns := ip.prog.insns
	regs := &c.Regs

	for executed := uint64(0); ; executed++ {
		if executed >= ip.limit {
			return 0, Fault(ErrInstructionLimit, c.PC)
		}

		if c.PC < 0 || c.PC >= len(insns) {
			return 0, Fault(ErrInvalidJumpTarget, c.PC)
		}

		if c.hits != nil {
			c.hits[c.PC]++
		}

		ins := insns[c.PC]
		op := ins.Op
		next := c.PC + 1

		switch op.Class() {
		case ClassAlu:
			if op == OpLe || op == OpBe {
				regs[ins.Dst] = swap(op, ins.Imm, regs[ins.Dst])
				break
			}

			src := uint32(ins.Imm)
			if op.Source() == SrcX {
				src = uint32(regs[ins.Src])
			}

			v, err := alu32(op.Operation(), uint32(regs[ins.Dst]), src)
			if err != nil {
				return 0, Fault(err, c.PC)
			}

			regs[ins.Dst] = uint64(v)

		case ClassAlu64:
			src := uint64(int64(ins.Imm))
			if op.Source() == SrcX {
				src = regs[ins.Src]
			}

			v, err := alu64(op.Operation(), regs[ins.Dst], src)
			if err != nil {
				return 0, Fault(err, c.PC)
			}

			regs[ins.Dst] = v

		case ClassJmp:
			switch op {
			case OpExit:
				return regs[0], nil
			case OpCall:
				if err := c.Call(uint32(ins.Imm)); err != nil {
					return 0, err
				}
			default:
				src := uint64(int64(ins.Imm))
				if op.Source() == SrcX {
					src = regs[ins.Src]
				}

				taken, err := branch(op.Operation(), regs[ins.Dst], src)
				if err != nil {
					return 0, Fault(err, c.PC)
				}

				if taken {
					next = c.PC + 1 + int(ins.Off)
				}
			}

		case ClassLdx:
			v, err := c.Load(regs[ins.Src]+uint64(int64(ins.Off)), op.Size())
			if err != nil {
				return 0, err
			}

			regs[ins.Dst] = v

		case ClassSt:
			if err := c.Store(regs[ins.Dst]+uint64(int64(ins.Off)), op.Size(), uint64(int64(ins.Imm))); err != nil {
				return 0, err
			}

		case ClassStx:
			if err := c.Store(regs[ins.Dst]+uint64(int64(ins.Off)), op.Size(), regs[ins.Src]); err != nil {
				return 0, err
			}

		case ClassLd:
			switch op.Mode() {
			case ModeImm:
				if op != OpLdDW {
					return 0, Fault(ErrIllegalOpcode, c.PC)
				}

				regs[ins.Dst] = ins.Wide
				next = c.PC + 2
			case ModeAbs:
				v, err := c.LoadPacket(c.dataStart+uint64(uint32(ins.Imm)), op.Size())
				if err != nil {
					return 0, err
				}

				regs[0] = v
			case ModeInd:
				v, err := c.LoadPacket(c.dataStart+regs[ins.Src]+uint64(int64(ins.Imm)), op.Size())
				if err != nil {
					return 0, err
				}

				regs[0] = v
			default:
				return 0, Fault(ErrIllegalOpcode, c.PC)
			}

		default:
			return 0, Fault(ErrIllegalOpcode, c.PC)
		}

		c.PC = next
	}
}

func alu64(op uint8, dst, src uint64) (uint64, error) {
	switch op {
	case AluAdd:
		return dst + src, nil
	case AluSub:
		return dst - src, nil
	case AluMul:
		return dst * src, nil
	case AluDiv:
		if src == 0 {
			return 0, ErrDivisionByZero
		}
		return dst / src, nil
	case AluMod:
		if src == 0 {
			return 0, ErrDivisionByZero
		}
		return dst % src, nil
	case AluOr:
		return dst | src, nil
	case AluAnd:
		return dst & src, nil
	case AluXor:
		return dst ^ src, nil
	case AluLsh:
		return dst << (src & 63), nil
	case AluRsh:
		return dst >> (src & 63), nil
	case AluArsh:
		return uint64(int64(dst) >> (src & 63)), nil
	case AluNeg:
		return -dst, nil
	case AluMov:
		return src, nil
	}

	return 0, ErrIllegalOpcode
}

func alu32(op uint8, dst, src uint32) (uint32, error) {
	switch op {
	case AluAdd:
		return dst + src, nil
	case AluSub:
		return dst - src, nil
	case AluMul:
		return dst * src, nil
	case AluDiv:
		if src == 0 {
			return 0, ErrDivisionByZero
		}
		return dst / src, nil
	case AluMod:
		if src == 0 {
			return 0, ErrDivisionByZero
		}
		return dst % src, nil
	case AluOr:
		return dst | src, nil
	case AluAnd:
		return dst & src, nil
	case AluXor:
		return dst ^ src, nil
	case AluLsh:
		return dst << (src & 31), nil
	case AluRsh:
		return dst >> (src & 31), nil
	case AluArsh:
		return uint32(int32(dst) >> (src & 31)), nil
	case AluNeg:
		return -dst, nil
	case AluMov:
		return src, nil
	}

	return 0, ErrIllegalOpcode
}

func branch(op uint8, dst, src uint64) (bool, error) {
	switch op {
	case JmpJa:
		return true, nil
	case JmpJeq:
		return dst == src, nil
	case JmpJne:
		return dst != src, nil
	case JmpJgt:
		return dst > src, nil
	case JmpJge:
		return dst >= src, nil
	case JmpJlt:
		return dst < src, nil
	case JmpJle:
		return dst <= src, nil
	case JmpJsgt:
		return int64(dst) > int64(src), nil
	case JmpJsge:
		return int64(dst) >= int64(src), nil
	case JmpJslt:
		return int64(dst) < int64(src), nil
	case JmpJsle:
		return int64(dst) <= int64(src), nil
	case JmpJset:
		return dst&src != 0, nil
	}

	return false, ErrIllegalOpcode
}

// swap converts v to the byte order selected by op, keeping the low width
// bits. The VM is little-endian, so le only truncates.
func swap(op Opcode, width int32, v uint64) uint64 {
	switch width {
	case 16:
		if op == OpBe {
			return uint64(bits.ReverseBytes16(uint16(v)))
		}
		return uint64(uint16(v))
	case 32:
		if op == OpBe {
			return uint64(bits.ReverseBytes32(uint32(v)))
		}
		return uint64(uint32(v))
	default:
		if op == OpBe {
			return bits.ReverseBytes64(v)
		}
		return v
	}
}
