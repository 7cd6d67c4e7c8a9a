package bpf

import "fmt"

// Validate checks the structural safety of p. It rejects the whole program on
// the first violation:
//
//   - unknown opcodes and register fields above r10;
//   - non-store instructions writing r10;
//   - an lddw in the last slot or with non-zero reserved tail fields;
//   - byte-swap widths other than 16, 32 and 64;
//   - branches leaving the program or landing on an lddw tail;
//   - a final slot that can fall through past the end.
//
// Validate does not type registers or prove termination.
func Validate(p *Program) error {
	n := p.Len()

	for pc := 0; pc < n; pc++ {
		ins := p.insns[pc]

		if err := validateInsn(p, pc, ins); err != nil {
			return err
		}

		if ins.Op == OpLdDW {
			pc++
		}
	}

	last := p.insns[n-1]
	if last.Tail || (last.Op != OpExit && last.Op != OpJa) {
		return fmt.Errorf("%w: program does not end with exit or ja", ErrMalformedProgram)
	}

	return nil
}

func validateInsn(p *Program, pc int, ins Instruction) error {
	if !ins.Op.Known() {
		return fmt.Errorf("%w: unknown opcode %#02x at pc %d", ErrMalformedProgram, uint8(ins.Op), pc)
	}

	if ins.Dst >= NumRegisters || ins.Src >= NumRegisters {
		return fmt.Errorf("%w: invalid register at pc %d", ErrMalformedProgram, pc)
	}

	if ins.Dst == FramePointer && writesDst(ins.Op) {
		return fmt.Errorf("%w: write to r10 at pc %d", ErrMalformedProgram, pc)
	}

	switch {
	case ins.Op == OpLdDW:
		if pc+1 >= p.Len() {
			return fmt.Errorf("%w: lddw at pc %d has no second slot", ErrMalformedProgram, pc)
		}

		tail := p.insns[pc+1]
		if tail.Op != 0 || tail.Dst != 0 || tail.Src != 0 || tail.Off != 0 {
			return fmt.Errorf("%w: lddw at pc %d has non-zero reserved fields", ErrMalformedProgram, pc)
		}
	case ins.Op == OpLe || ins.Op == OpBe:
		switch ins.Imm {
		case 16, 32, 64:
		default:
			return fmt.Errorf("%w: unsupported byte swap width %d at pc %d", ErrMalformedProgram, ins.Imm, pc)
		}
	case ins.Op.IsBranch():
		target := pc + 1 + int(ins.Off)
		if target < 0 || target >= p.Len() {
			return fmt.Errorf("%w: jump from pc %d to %d is out of range", ErrInvalidJumpTarget, pc, target)
		}

		if p.insns[target].Tail {
			return fmt.Errorf("%w: jump from pc %d into the middle of lddw at %d", ErrInvalidJumpTarget, pc, target-1)
		}
	}

	return nil
}

// writesDst reports whether op assigns dst. Stores, branches and legacy
// packet loads only read it.
func writesDst(op Opcode) bool {
	switch {
	case op.IsStore(), op.Class() == ClassJmp:
		return false
	case op.Class() == ClassLd:
		return op == OpLdDW
	default:
		return true
	}
}
