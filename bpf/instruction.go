package bpf

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	// SlotSize is the size in bytes of one encoded instruction slot.
	SlotSize = 8
	// NumRegisters counts r0 through r10.
	NumRegisters = 11
	// FramePointer is the read-only register holding the stack top.
	FramePointer = 10
)

// Instruction is one decoded slot.
//
// For lddw, Wide holds the full 64-bit constant and the following slot is
// decoded as a tail entry (Tail set) that keeps its raw fields so the
// validator can check that they are zero.
type Instruction struct {
	Op   Opcode
	Dst  uint8
	Src  uint8
	Off  int16
	Imm  int32
	Wide uint64
	Tail bool
}

// Encode writes the slot in its little-endian wire form.
func (ins Instruction) Encode() [SlotSize]byte {
	var b [SlotSize]byte

	b[0] = uint8(ins.Op)
	b[1] = ins.Dst&0x0f | ins.Src<<4
	binary.LittleEndian.PutUint16(b[2:], uint16(ins.Off))
	binary.LittleEndian.PutUint32(b[4:], uint32(ins.Imm))

	return b
}

func (ins Instruction) String() string {
	if ins.Tail {
		return "(lddw tail)"
	}

	op := ins.Op

	switch {
	case op == OpLdDW:
		return fmt.Sprintf("lddw r%d, %#x", ins.Dst, ins.Wide)
	case op == OpLe || op == OpBe:
		return fmt.Sprintf("%s%d r%d", op, ins.Imm, ins.Dst)
	case op == OpExit:
		return "exit"
	case op == OpCall:
		return fmt.Sprintf("call %d", uint32(ins.Imm))
	case op == OpJa:
		return fmt.Sprintf("ja %+d", ins.Off)
	case !op.Known():
		return fmt.Sprintf("%s dst=r%d src=r%d off=%d imm=%d", op, ins.Dst, ins.Src, ins.Off, ins.Imm)
	case op.IsBranch():
		if op.Source() == SrcX {
			return fmt.Sprintf("%s r%d, r%d, %+d", op, ins.Dst, ins.Src, ins.Off)
		}
		return fmt.Sprintf("%s r%d, %#x, %+d", op, ins.Dst, ins.Imm, ins.Off)
	case op.IsALU():
		if op.Operation() == AluNeg {
			return fmt.Sprintf("%s r%d", op, ins.Dst)
		}
		if op.Source() == SrcX {
			return fmt.Sprintf("%s r%d, r%d", op, ins.Dst, ins.Src)
		}
		return fmt.Sprintf("%s r%d, %#x", op, ins.Dst, ins.Imm)
	}

	switch op.Class() {
	case ClassLdx:
		return fmt.Sprintf("%s r%d, [r%d%+d]", op, ins.Dst, ins.Src, ins.Off)
	case ClassSt:
		return fmt.Sprintf("%s [r%d%+d], %#x", op, ins.Dst, ins.Off, ins.Imm)
	case ClassStx:
		return fmt.Sprintf("%s [r%d%+d], r%d", op, ins.Dst, ins.Off, ins.Src)
	}

	if op.Mode() == ModeInd {
		return fmt.Sprintf("%s [r%d%+d]", op, ins.Src, ins.Imm)
	}

	return fmt.Sprintf("%s [%#x]", op, uint32(ins.Imm))
}

// Program is an immutable, slot-indexed sequence of decoded instructions.
type Program struct {
	insns []Instruction
	raw   []byte
}

// Decode splits code into instruction slots. It only checks the framing;
// use Validate (or Load) before running the result.
func Decode(code []byte) (*Program, error) {
	if len(code) == 0 || len(code)%SlotSize != 0 {
		return nil, fmt.Errorf("%w: length %d is not a positive multiple of %d", ErrMalformedProgram, len(code), SlotSize)
	}

	n := len(code) / SlotSize
	insns := make([]Instruction, n)

	for pc := 0; pc < n; pc++ {
		insns[pc] = decodeSlot(code[pc*SlotSize:])

		if insns[pc].Op != OpLdDW {
			continue
		}

		insns[pc].Wide = uint64(uint32(insns[pc].Imm))

		if pc+1 == n {
			break
		}

		pc++
		insns[pc] = decodeSlot(code[pc*SlotSize:])
		insns[pc].Tail = true
		insns[pc-1].Wide |= uint64(uint32(insns[pc].Imm)) << 32
	}

	raw := make([]byte, len(code))
	copy(raw, code)

	return &Program{insns: insns, raw: raw}, nil
}

// Load decodes and validates code.
func Load(code []byte) (*Program, error) {
	p, err := Decode(code)
	if err != nil {
		return nil, err
	}

	if err := Validate(p); err != nil {
		return nil, err
	}

	return p, nil
}

func decodeSlot(b []byte) Instruction {
	return Instruction{
		Op:  Opcode(b[0]),
		Dst: b[1] & 0x0f,
		Src: b[1] >> 4,
		Off: int16(binary.LittleEndian.Uint16(b[2:])),
		Imm: int32(binary.LittleEndian.Uint32(b[4:])),
	}
}

// Encode is the inverse of Decode for a sequence of slots.
func Encode(insns ...Instruction) []byte {
	out := make([]byte, 0, len(insns)*SlotSize)

	for _, ins := range insns {
		b := ins.Encode()
		out = append(out, b[:]...)
	}

	return out
}

// LoadImm64 returns the two slots of an lddw loading v into dst.
func LoadImm64(dst uint8, v uint64) []Instruction {
	return []Instruction{
		{Op: OpLdDW, Dst: dst, Imm: int32(uint32(v)), Wide: v},
		{Imm: int32(uint32(v >> 32)), Tail: true},
	}
}

// Len returns the number of slots.
func (p *Program) Len() int { return len(p.insns) }

// At returns the instruction in slot pc.
func (p *Program) At(pc int) Instruction { return p.insns[pc] }

// Bytes returns a copy of the encoded program.
func (p *Program) Bytes() []byte {
	out := make([]byte, len(p.raw))
	copy(out, p.raw)

	return out
}

// String disassembles the program, one slot per line.
func (p *Program) String() string {
	var sb strings.Builder

	for pc, ins := range p.insns {
		if ins.Tail {
			continue
		}

		fmt.Fprintf(&sb, "%4d: %s\n", pc, ins)
	}

	return sb.String()
}
