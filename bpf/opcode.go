package bpf

import "fmt"

// Instruction classes (bits 0-2).
const (
	ClassLd    = 0x00
	ClassLdx   = 0x01
	ClassSt    = 0x02
	ClassStx   = 0x03
	ClassAlu   = 0x04
	ClassJmp   = 0x05
	ClassAlu64 = 0x07
)

// Operand source (bit 3) for ALU and jump classes.
const (
	SrcK = 0x00
	SrcX = 0x08
)

// Access size (bits 3-4) for load and store classes.
const (
	SizeW  = 0x00
	SizeH  = 0x08
	SizeB  = 0x10
	SizeDW = 0x18
)

// Addressing mode (bits 5-7) for load and store classes.
const (
	ModeImm = 0x00
	ModeAbs = 0x20
	ModeInd = 0x40
	ModeMem = 0x60
)

// ALU operations (bits 4-7).
const (
	AluAdd  = 0x00
	AluSub  = 0x10
	AluMul  = 0x20
	AluDiv  = 0x30
	AluOr   = 0x40
	AluAnd  = 0x50
	AluLsh  = 0x60
	AluRsh  = 0x70
	AluNeg  = 0x80
	AluMod  = 0x90
	AluXor  = 0xa0
	AluMov  = 0xb0
	AluArsh = 0xc0
	AluEnd  = 0xd0
)

// Jump operations (bits 4-7).
const (
	JmpJa   = 0x00
	JmpJeq  = 0x10
	JmpJgt  = 0x20
	JmpJge  = 0x30
	JmpJset = 0x40
	JmpJne  = 0x50
	JmpJsgt = 0x60
	JmpJsge = 0x70
	JmpCall = 0x80
	JmpExit = 0x90
	JmpJlt  = 0xa0
	JmpJle  = 0xb0
	JmpJslt = 0xc0
	JmpJsle = 0xd0
)

// Opcode is the first byte of an instruction slot.
type Opcode uint8

// Opcodes that get special treatment outside of the class tables.
const (
	OpLdDW Opcode = ClassLd | ModeImm | SizeDW

	OpLdAbsB  Opcode = ClassLd | ModeAbs | SizeB
	OpLdAbsH  Opcode = ClassLd | ModeAbs | SizeH
	OpLdAbsW  Opcode = ClassLd | ModeAbs | SizeW
	OpLdAbsDW Opcode = ClassLd | ModeAbs | SizeDW
	OpLdIndB  Opcode = ClassLd | ModeInd | SizeB
	OpLdIndH  Opcode = ClassLd | ModeInd | SizeH
	OpLdIndW  Opcode = ClassLd | ModeInd | SizeW
	OpLdIndDW Opcode = ClassLd | ModeInd | SizeDW

	OpLdxB  Opcode = ClassLdx | ModeMem | SizeB
	OpLdxH  Opcode = ClassLdx | ModeMem | SizeH
	OpLdxW  Opcode = ClassLdx | ModeMem | SizeW
	OpLdxDW Opcode = ClassLdx | ModeMem | SizeDW

	OpStB  Opcode = ClassSt | ModeMem | SizeB
	OpStH  Opcode = ClassSt | ModeMem | SizeH
	OpStW  Opcode = ClassSt | ModeMem | SizeW
	OpStDW Opcode = ClassSt | ModeMem | SizeDW

	OpStxB  Opcode = ClassStx | ModeMem | SizeB
	OpStxH  Opcode = ClassStx | ModeMem | SizeH
	OpStxW  Opcode = ClassStx | ModeMem | SizeW
	OpStxDW Opcode = ClassStx | ModeMem | SizeDW

	OpLe Opcode = ClassAlu | SrcK | AluEnd
	OpBe Opcode = ClassAlu | SrcX | AluEnd

	OpJa   Opcode = ClassJmp | SrcK | JmpJa
	OpCall Opcode = ClassJmp | SrcK | JmpCall
	OpExit Opcode = ClassJmp | SrcK | JmpExit
)

// Class returns the instruction class.
func (op Opcode) Class() uint8 { return uint8(op) & 0x07 }

// Source returns SrcK or SrcX.
func (op Opcode) Source() uint8 { return uint8(op) & 0x08 }

// Operation returns the ALU or jump operation.
func (op Opcode) Operation() uint8 { return uint8(op) & 0xf0 }

// Mode returns the addressing mode of a load or store.
func (op Opcode) Mode() uint8 { return uint8(op) & 0xe0 }

// Size returns the access width in bytes of a load or store.
func (op Opcode) Size() int {
	switch uint8(op) & 0x18 {
	case SizeB:
		return 1
	case SizeH:
		return 2
	case SizeW:
		return 4
	default:
		return 8
	}
}

// IsALU reports whether op belongs to one of the two ALU classes.
func (op Opcode) IsALU() bool {
	return op.Class() == ClassAlu || op.Class() == ClassAlu64
}

// IsBranch reports whether op transfers control to pc+1+off.
func (op Opcode) IsBranch() bool {
	if op.Class() != ClassJmp {
		return false
	}

	return op.Operation() != JmpCall && op.Operation() != JmpExit
}

// IsStore reports whether op writes memory through dst.
func (op Opcode) IsStore() bool {
	return op.Class() == ClassSt || op.Class() == ClassStx
}

// Known reports whether op is part of the supported instruction set.
func (op Opcode) Known() bool {
	return opNames[op] != ""
}

func (op Opcode) String() string {
	if name := opNames[op]; name != "" {
		return name
	}

	return fmt.Sprintf("op(%#02x)", uint8(op))
}

var opNames [256]string

func init() {
	aluOps := map[uint8]string{
		AluAdd: "add", AluSub: "sub", AluMul: "mul", AluDiv: "div",
		AluOr: "or", AluAnd: "and", AluLsh: "lsh", AluRsh: "rsh",
		AluNeg: "neg", AluMod: "mod", AluXor: "xor", AluMov: "mov",
		AluArsh: "arsh",
	}

	for op, name := range aluOps {
		opNames[ClassAlu|SrcK|op] = name + "32"
		opNames[ClassAlu64|SrcK|op] = name + "64"

		if op != AluNeg {
			opNames[ClassAlu|SrcX|op] = name + "32"
			opNames[ClassAlu64|SrcX|op] = name + "64"
		}
	}

	opNames[OpLe] = "le"
	opNames[OpBe] = "be"

	jmpOps := map[uint8]string{
		JmpJeq: "jeq", JmpJgt: "jgt", JmpJge: "jge", JmpJset: "jset",
		JmpJne: "jne", JmpJsgt: "jsgt", JmpJsge: "jsge", JmpJlt: "jlt",
		JmpJle: "jle", JmpJslt: "jslt", JmpJsle: "jsle",
	}

	for op, name := range jmpOps {
		opNames[ClassJmp|SrcK|op] = name
		opNames[ClassJmp|SrcX|op] = name
	}

	opNames[OpJa] = "ja"
	opNames[OpCall] = "call"
	opNames[OpExit] = "exit"

	sizes := map[uint8]string{SizeB: "b", SizeH: "h", SizeW: "w", SizeDW: "dw"}

	for size, suffix := range sizes {
		opNames[ClassLd|ModeAbs|size] = "ldabs" + suffix
		opNames[ClassLd|ModeInd|size] = "ldind" + suffix
		opNames[ClassLdx|ModeMem|size] = "ldx" + suffix
		opNames[ClassSt|ModeMem|size] = "st" + suffix
		opNames[ClassStx|ModeMem|size] = "stx" + suffix
	}

	opNames[OpLdDW] = "lddw"
}
