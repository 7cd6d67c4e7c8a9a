package jit

import "encoding/binary"

// reg is an x86-64 general purpose register number. Only registers below r8
// are used, so no REX.R/B bits are ever needed.
type reg uint8

const (
	rax reg = 0
	rcx reg = 1
	rdx reg = 2
	rbx reg = 3
)

// Condition codes for the two byte form of jcc (0F 80+cc).
const (
	ccB  = 0x2 // unsigned <
	ccAE = 0x3 // unsigned >=
	ccE  = 0x4
	ccNE = 0x5
	ccBE = 0x6 // unsigned <=
	ccA  = 0x7 // unsigned >
	ccL  = 0xc // signed <
	ccGE = 0xd // signed >=
	ccLE = 0xe // signed <=
	ccG  = 0xf // signed >
)

// Opcodes of the "op r, r/m" and "op r/m, r" forms.
const (
	opAddRM  = 0x01 // add r/m, r
	opSubRM  = 0x29 // sub r/m, r
	opXorRM  = 0x31 // xor r/m, r
	opTestRM = 0x85 // test r/m, r
	opMovRM  = 0x89 // mov r/m, r
	opAddR   = 0x03 // add r, r/m
	opSubR   = 0x2b // sub r, r/m
	opOrR    = 0x0b // or r, r/m
	opAndR   = 0x23 // and r, r/m
	opXorR   = 0x33 // xor r, r/m
	opCmpR   = 0x3b // cmp r, r/m
	opMovR   = 0x8b // mov r, r/m
)

// Opcodes of the "op rax, imm32" short forms.
const (
	opAddAX  = 0x05
	opOrAX   = 0x0d
	opAndAX  = 0x25
	opSubAX  = 0x2d
	opXorAX  = 0x35
	opCmpAX  = 0x3d
	opTestAX = 0xa9
)

// Opcode extensions for the F7, D3 and C1 groups.
const (
	extNeg = 3
	extDiv = 6
	extShl = 4
	extShr = 5
	extSar = 7
)

const rexW = 0x48

// assembler is an append-only x86-64 code buffer. All memory operands are
// addressed off rbx, which holds the machine state for the whole run.
type assembler struct {
	buf []byte
}

func (a *assembler) pos() int { return len(a.buf) }

func (a *assembler) emit(b ...byte) {
	a.buf = append(a.buf, b...)
}

func (a *assembler) emit32(v uint32) {
	a.buf = binary.LittleEndian.AppendUint32(a.buf, v)
}

func (a *assembler) emit64(v uint64) {
	a.buf = binary.LittleEndian.AppendUint64(a.buf, v)
}

func (a *assembler) rex(wide bool) {
	if wide {
		a.emit(rexW)
	}
}

// patch32 writes the rel32 at field so that it lands on target.
func (a *assembler) patch32(field, target int) {
	binary.LittleEndian.PutUint32(a.buf[field:], uint32(int32(target-(field+4))))
}

// modrmDisp emits ModRM for [rbx+disp32] with r in the reg field.
func (a *assembler) modrmDisp(r reg, disp int32) {
	a.emit(0x80 | byte(r)<<3 | byte(rbx))
	a.emit32(uint32(disp))
}

func modrmReg(r, rm reg) byte {
	return 0xc0 | byte(r)<<3 | byte(rm)
}

// memOp emits "op r, [rbx+disp]" (or "op [rbx+disp], r" for the RM forms).
func (a *assembler) memOp(op byte, r reg, disp int32, wide bool) {
	a.rex(wide)
	a.emit(op)
	a.modrmDisp(r, disp)
}

func (a *assembler) load(r reg, disp int32) { a.memOp(opMovR, r, disp, true) }

// load32 loads the low half of a slot, zeroing the upper half of r.
func (a *assembler) load32(r reg, disp int32) { a.memOp(opMovR, r, disp, false) }

func (a *assembler) store(disp int32, r reg) { a.memOp(opMovRM, r, disp, true) }

// storeImm writes the sign-extended imm to the qword at [rbx+disp].
func (a *assembler) storeImm(disp int32, imm int32) {
	a.emit(rexW, 0xc7)
	a.modrmDisp(0, disp)
	a.emit32(uint32(imm))
}

// sibOp emits "op r, [rbx+index*8+disp]" with a 64-bit operand.
func (a *assembler) sibOp(op byte, r, index reg, disp int32) {
	a.emit(rexW, op, 0x80|byte(r)<<3|0x04, 0xc0|byte(index)<<3|byte(rbx))
	a.emit32(uint32(disp))
}

// regOp emits "op rm, r" or "op r, rm" depending on op's form.
func (a *assembler) regOp(op byte, rm, r reg, wide bool) {
	a.rex(wide)
	a.emit(op, modrmReg(r, rm))
}

func (a *assembler) immAX(op byte, imm int32, wide bool) {
	a.rex(wide)
	a.emit(op)
	a.emit32(uint32(imm))
}

// movImm32 loads imm zero-extended.
func (a *assembler) movImm32(r reg, imm uint32) {
	a.emit(0xb8 + byte(r))
	a.emit32(imm)
}

// movImmSigned loads imm sign-extended to 64 bits.
func (a *assembler) movImmSigned(r reg, imm int32) {
	a.emit(rexW, 0xc7, modrmReg(0, r))
	a.emit32(uint32(imm))
}

func (a *assembler) movImm64(r reg, v uint64) {
	a.emit(rexW, 0xb8+byte(r))
	a.emit64(v)
}

func (a *assembler) group3(ext byte, r reg, wide bool) {
	a.rex(wide)
	a.emit(0xf7, modrmReg(reg(ext), r))
}

func (a *assembler) shiftCL(ext byte, r reg, wide bool) {
	a.rex(wide)
	a.emit(0xd3, modrmReg(reg(ext), r))
}

func (a *assembler) shiftImm(ext byte, r reg, n uint8, wide bool) {
	a.rex(wide)
	a.emit(0xc1, modrmReg(reg(ext), r), n)
}

// imm8 group 0x83: ext 0 is add, ext 7 is cmp.
func (a *assembler) group1Imm8(ext byte, r reg, v int8) {
	a.emit(rexW, 0x83, modrmReg(reg(ext), r), byte(v))
}

func (a *assembler) imulMem(r reg, disp int32, wide bool) {
	a.rex(wide)
	a.emit(0x0f, 0xaf)
	a.modrmDisp(r, disp)
}

func (a *assembler) imulImm(r reg, imm int32, wide bool) {
	a.rex(wide)
	a.emit(0x69, modrmReg(r, r))
	a.emit32(uint32(imm))
}

func (a *assembler) bswap(r reg, wide bool) {
	a.rex(wide)
	a.emit(0x0f, 0xc8+byte(r))
}

// movzx16 zero-extends the low 16 bits of r.
func (a *assembler) movzx16(r reg) {
	a.emit(0x0f, 0xb7, modrmReg(r, r))
}

// loadPtr loads size bytes at [rdx] into rax, zero-extended.
func (a *assembler) loadPtr(size int) {
	switch size {
	case 1:
		a.emit(rexW, 0x0f, 0xb6, 0x02)
	case 2:
		a.emit(rexW, 0x0f, 0xb7, 0x02)
	case 4:
		a.emit(0x8b, 0x02)
	default:
		a.emit(rexW, 0x8b, 0x02)
	}
}

// storePtr stores the low size bytes of rax at [rdx].
func (a *assembler) storePtr(size int) {
	switch size {
	case 1:
		a.emit(0x88, 0x02)
	case 2:
		a.emit(0x66, 0x89, 0x02)
	case 4:
		a.emit(0x89, 0x02)
	default:
		a.emit(rexW, 0x89, 0x02)
	}
}

// jcc emits a conditional jump and returns the position of its rel32.
func (a *assembler) jcc(cc byte) int {
	a.emit(0x0f, 0x80|cc)
	a.emit32(0)

	return a.pos() - 4
}

// jmp emits an unconditional jump and returns the position of its rel32.
func (a *assembler) jmp() int {
	a.emit(0xe9)
	a.emit32(0)

	return a.pos() - 4
}

func (a *assembler) ret() { a.emit(0xc3) }
