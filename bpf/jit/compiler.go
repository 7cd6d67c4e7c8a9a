package jit

import (
	"fmt"

	"github.com/tcassar-diss/bpfvm/bpf"
)

// label names a shared block emitted after the program body.
type label int

const (
	labelEpilogue label = iota
	labelOutOfBounds
	labelDivideByZero
	numLabels
)

// branchFixup is a rel32 waiting for the code offset of a slot.
type branchFixup struct {
	field  int
	target int
}

// compiler lowers a program into x86-64. Slots are translated in order into
// one append-only buffer; forward references are recorded and patched once
// every offset is known.
type compiler struct {
	asm      assembler
	prog     *bpf.Program
	offsets  []int
	branches []branchFixup
	fixups   [numLabels][]int
	labels   [numLabels]int
	resumes  []int
}

// translation is the position-independent result of lowering a program.
type translation struct {
	code    []byte
	offsets []int
	labels  [numLabels]int
	resumes []int
}

func translate(p *bpf.Program) (*translation, error) {
	if err := bpf.Validate(p); err != nil {
		return nil, fmt.Errorf("%w: %w", bpf.ErrCompile, err)
	}

	c := &compiler{
		prog:    p,
		offsets: make([]int, p.Len()),
	}

	c.prologue()

	for pc := 0; pc < p.Len(); pc++ {
		ins := p.At(pc)

		if ins.Tail {
			c.offsets[pc] = -1
			continue
		}

		c.offsets[pc] = c.asm.pos()

		if err := c.emit(pc, ins); err != nil {
			return nil, fmt.Errorf("%w: %w", bpf.ErrCompile, err)
		}
	}

	c.bind(labelEpilogue)
	c.asm.storeImm(offStatus, int32(statusExit))
	c.asm.ret()

	c.bind(labelOutOfBounds)
	c.asm.storeImm(offStatus, int32(statusOutOfBounds))
	c.asm.ret()

	c.bind(labelDivideByZero)
	c.asm.storeImm(offStatus, int32(statusDivideByZero))
	c.asm.ret()

	for _, b := range c.branches {
		c.asm.patch32(b.field, c.offsets[b.target])
	}

	for l, fields := range c.fixups {
		for _, field := range fields {
			c.asm.patch32(field, c.labels[l])
		}
	}

	return &translation{
		code:    c.asm.buf,
		offsets: c.offsets,
		labels:  c.labels,
		resumes: c.resumes,
	}, nil
}

func (c *compiler) bind(l label) {
	c.labels[l] = c.asm.pos()
}

func (c *compiler) jumpTo(l label, cc byte, conditional bool) {
	var field int
	if conditional {
		field = c.asm.jcc(cc)
	} else {
		field = c.asm.jmp()
	}

	c.fixups[l] = append(c.fixups[l], field)
}

// prologue seeds the register file the same way bpf.NewContext does.
func (c *compiler) prologue() {
	c.asm.regOp(opXorRM, rax, rax, false)

	for r := uint8(0); r < bpf.NumRegisters; r++ {
		c.asm.store(regDisp(r), rax)
	}

	c.asm.load(rax, offArg)
	c.asm.store(regDisp(1), rax)
	c.asm.load(rax, offStackTop)
	c.asm.store(regDisp(bpf.FramePointer), rax)
}

// faultAt records pc as the slot to blame if the next guard fails.
func (c *compiler) faultAt(pc int) {
	c.asm.storeImm(offFaultPC, int32(pc))
}

func (c *compiler) emit(pc int, ins bpf.Instruction) error {
	op := ins.Op

	switch op.Class() {
	case bpf.ClassAlu, bpf.ClassAlu64:
		if op == bpf.OpLe || op == bpf.OpBe {
			c.emitSwap(ins)
			return nil
		}

		return c.emitALU(pc, ins, op.Class() == bpf.ClassAlu64)
	case bpf.ClassJmp:
		return c.emitJump(pc, ins)
	case bpf.ClassLdx:
		c.faultAt(pc)
		c.asm.load(rax, regDisp(ins.Src))
		c.addOffset(int32(ins.Off))
		c.translateAddr(op.Size())
		c.asm.loadPtr(op.Size())
		c.asm.store(regDisp(ins.Dst), rax)
	case bpf.ClassSt:
		c.faultAt(pc)
		c.asm.load(rax, regDisp(ins.Dst))
		c.addOffset(int32(ins.Off))
		c.translateAddr(op.Size())
		c.asm.movImmSigned(rax, ins.Imm)
		c.asm.storePtr(op.Size())
	case bpf.ClassStx:
		c.faultAt(pc)
		c.asm.load(rax, regDisp(ins.Dst))
		c.addOffset(int32(ins.Off))
		c.translateAddr(op.Size())
		c.asm.load(rax, regDisp(ins.Src))
		c.asm.storePtr(op.Size())
	case bpf.ClassLd:
		return c.emitLd(pc, ins)
	default:
		return fmt.Errorf("unsupported opcode %s at pc %d", op, pc)
	}

	return nil
}

func (c *compiler) addOffset(off int32) {
	if off != 0 {
		c.asm.immAX(opAddAX, off, true)
	}
}

// translateAddr turns the virtual address in rax into a host pointer in rdx,
// leaving through the out-of-bounds block unless all size bytes lie inside
// one mapped region. It mirrors bpf.RegionTable.Translate.
func (c *compiler) translateAddr(size int) {
	c.asm.regOp(opMovRM, rcx, rax, true)
	c.asm.shiftImm(extShr, rcx, 32, true)
	c.asm.group1Imm8(7, rcx, bpf.NumRegions-1)
	c.jumpTo(labelOutOfBounds, ccA, true)

	c.asm.regOp(opMovRM, rdx, rax, false)
	c.asm.group1Imm8(0, rdx, int8(size))
	c.asm.sibOp(opCmpR, rdx, rcx, offRegionLen)
	c.jumpTo(labelOutOfBounds, ccA, true)

	c.asm.regOp(opMovRM, rdx, rax, false)
	c.asm.sibOp(opAddR, rdx, rcx, offRegionPtr)
}

func (c *compiler) emitLd(pc int, ins bpf.Instruction) error {
	op := ins.Op

	switch op.Mode() {
	case bpf.ModeImm:
		if op != bpf.OpLdDW {
			return fmt.Errorf("unsupported opcode %s at pc %d", op, pc)
		}

		c.asm.movImm64(rax, ins.Wide)
		c.asm.store(regDisp(ins.Dst), rax)

		return nil
	case bpf.ModeAbs:
		c.faultAt(pc)
		c.asm.load(rax, offDataStart)
		c.asm.movImm32(rcx, uint32(ins.Imm))
		c.asm.regOp(opAddRM, rax, rcx, true)
	case bpf.ModeInd:
		c.faultAt(pc)
		c.asm.load(rax, offDataStart)
		c.asm.memOp(opAddR, rax, regDisp(ins.Src), true)
		c.asm.immAX(opAddAX, ins.Imm, true)
	default:
		return fmt.Errorf("unsupported opcode %s at pc %d", op, pc)
	}

	size := op.Size()

	// data_start <= addr && addr <= data_end && data_end-addr >= size
	c.asm.memOp(opCmpR, rax, offDataStart, true)
	c.jumpTo(labelOutOfBounds, ccB, true)
	c.asm.load(rcx, offDataEnd)
	c.asm.regOp(opSubRM, rcx, rax, true)
	c.jumpTo(labelOutOfBounds, ccB, true)
	c.asm.group1Imm8(7, rcx, int8(size))
	c.jumpTo(labelOutOfBounds, ccB, true)

	c.translateAddr(size)
	c.asm.loadPtr(size)
	c.asm.store(regDisp(0), rax)

	return nil
}

var aluRegOps = map[uint8]byte{
	bpf.AluAdd: opAddR,
	bpf.AluSub: opSubR,
	bpf.AluOr:  opOrR,
	bpf.AluAnd: opAndR,
	bpf.AluXor: opXorR,
}

var aluImmOps = map[uint8]byte{
	bpf.AluAdd: opAddAX,
	bpf.AluSub: opSubAX,
	bpf.AluOr:  opOrAX,
	bpf.AluAnd: opAndAX,
	bpf.AluXor: opXorAX,
}

var shiftExts = map[uint8]byte{
	bpf.AluLsh:  extShl,
	bpf.AluRsh:  extShr,
	bpf.AluArsh: extSar,
}

// emitALU computes in rax. 32-bit forms use 32-bit x86 operations, which
// clear the upper half of the destination register, so storing rax back
// zero-extends the result.
func (c *compiler) emitALU(pc int, ins bpf.Instruction, wide bool) error {
	a := &c.asm
	op := ins.Op
	fromReg := op.Source() == bpf.SrcX
	dst := regDisp(ins.Dst)
	src := regDisp(ins.Src)

	loadDst := func() {
		if wide {
			a.load(rax, dst)
		} else {
			a.load32(rax, dst)
		}
	}

	switch aluOp := op.Operation(); aluOp {
	case bpf.AluMov:
		switch {
		case fromReg && wide:
			a.load(rax, src)
		case fromReg:
			a.load32(rax, src)
		case wide:
			a.movImmSigned(rax, ins.Imm)
		default:
			a.movImm32(rax, uint32(ins.Imm))
		}
	case bpf.AluAdd, bpf.AluSub, bpf.AluOr, bpf.AluAnd, bpf.AluXor:
		loadDst()

		if fromReg {
			a.memOp(aluRegOps[aluOp], rax, src, wide)
		} else {
			a.immAX(aluImmOps[aluOp], ins.Imm, wide)
		}
	case bpf.AluMul:
		loadDst()

		if fromReg {
			a.imulMem(rax, src, wide)
		} else {
			a.imulImm(rax, ins.Imm, wide)
		}
	case bpf.AluDiv, bpf.AluMod:
		c.faultAt(pc)

		switch {
		case fromReg:
			a.memOp(opMovR, rcx, src, wide)
		case wide:
			a.movImmSigned(rcx, ins.Imm)
		default:
			a.movImm32(rcx, uint32(ins.Imm))
		}

		a.regOp(opTestRM, rcx, rcx, wide)
		c.jumpTo(labelDivideByZero, ccE, true)
		loadDst()
		a.regOp(opXorRM, rdx, rdx, false)
		a.group3(extDiv, rcx, wide)

		if aluOp == bpf.AluMod {
			a.store(dst, rdx)
			return nil
		}
	case bpf.AluLsh, bpf.AluRsh, bpf.AluArsh:
		loadDst()

		if fromReg {
			a.load(rcx, src)
			a.shiftCL(shiftExts[aluOp], rax, wide)
		} else {
			mask := int32(31)
			if wide {
				mask = 63
			}

			a.shiftImm(shiftExts[aluOp], rax, uint8(ins.Imm&mask), wide)
		}
	case bpf.AluNeg:
		loadDst()
		a.group3(extNeg, rax, wide)
	default:
		return fmt.Errorf("unsupported opcode %s at pc %d", op, pc)
	}

	a.store(dst, rax)

	return nil
}

func (c *compiler) emitSwap(ins bpf.Instruction) {
	a := &c.asm
	dst := regDisp(ins.Dst)

	switch {
	case ins.Imm == 64 && ins.Op == bpf.OpLe:
		return
	case ins.Imm == 64:
		a.load(rax, dst)
		a.bswap(rax, true)
	case ins.Imm == 32:
		a.load32(rax, dst)
		if ins.Op == bpf.OpBe {
			a.bswap(rax, false)
		}
	default:
		a.load32(rax, dst)
		if ins.Op == bpf.OpBe {
			a.bswap(rax, false)
			a.shiftImm(extShr, rax, 16, false)
		} else {
			a.movzx16(rax)
		}
	}

	a.store(dst, rax)
}

var branchConds = map[uint8]byte{
	bpf.JmpJeq:  ccE,
	bpf.JmpJne:  ccNE,
	bpf.JmpJgt:  ccA,
	bpf.JmpJge:  ccAE,
	bpf.JmpJlt:  ccB,
	bpf.JmpJle:  ccBE,
	bpf.JmpJsgt: ccG,
	bpf.JmpJsge: ccGE,
	bpf.JmpJslt: ccL,
	bpf.JmpJsle: ccLE,
	bpf.JmpJset: ccNE,
}

func (c *compiler) emitJump(pc int, ins bpf.Instruction) error {
	a := &c.asm
	op := ins.Op

	switch op {
	case bpf.OpExit:
		c.jumpTo(labelEpilogue, 0, false)
		return nil
	case bpf.OpCall:
		// Leave native code; the driver runs the helper, stores r0 and
		// re-enters right after the ret.
		c.faultAt(pc)
		a.storeImm(offStatus, int32(statusCallHelper))
		a.storeImm(offHelper, ins.Imm)

		const storeImmLen, retLen = 11, 1
		resume := a.pos() + storeImmLen + retLen

		a.storeImm(offResume, int32(resume))
		a.ret()
		c.resumes = append(c.resumes, resume)

		return nil
	case bpf.OpJa:
		c.branchTo(a.jmp(), pc+1+int(ins.Off))
		return nil
	}

	cc, ok := branchConds[op.Operation()]
	if !ok {
		return fmt.Errorf("unsupported opcode %s at pc %d", op, pc)
	}

	a.load(rax, regDisp(ins.Dst))

	test := op.Operation() == bpf.JmpJset

	switch {
	case op.Source() == bpf.SrcX && test:
		a.memOp(opTestRM, rax, regDisp(ins.Src), true)
	case op.Source() == bpf.SrcX:
		a.memOp(opCmpR, rax, regDisp(ins.Src), true)
	case test:
		a.immAX(opTestAX, ins.Imm, true)
	default:
		a.immAX(opCmpAX, ins.Imm, true)
	}

	c.branchTo(a.jcc(cc), pc+1+int(ins.Off))

	return nil
}

func (c *compiler) branchTo(field, target int) {
	c.branches = append(c.branches, branchFixup{field: field, target: target})
}
