// Package bpftest holds programs with known results shared by the
// interpreter, JIT and VM tests.
package bpftest

import (
	"encoding/binary"
	"errors"

	"github.com/tcassar-diss/bpfvm/bpf"
)

// Layout selects the memory model a Case runs under.
type Layout int

const (
	// Buffer runs with Mem as the single buffer.
	Buffer Layout = iota
	// FixedMetadata runs with Mem as the packet and a VM-built metadata
	// buffer with the bounds at DataOffset and DataEndOffset.
	FixedMetadata
	// Metadata runs with Mem as the packet and Meta as the caller-built
	// metadata buffer.
	Metadata
)

// Case is a program with its input and expected outcome.
type Case struct {
	Name          string
	Code          []byte
	Layout        Layout
	Mem           []byte
	Meta          []byte
	DataOffset    int
	DataEndOffset int
	Helpers       map[uint32]bpf.HelperFunc

	Want    uint64
	WantErr error
	WantPC  int
}

// Memory builds a fresh memory model for c. Buffers are copied so a Case can
// be run more than once.
func (c Case) Memory() (bpf.Memory, error) {
	mem := append([]byte(nil), c.Mem...)

	switch c.Layout {
	case FixedMetadata:
		return bpf.NewFixedMetadataMemory(mem, c.DataOffset, c.DataEndOffset)
	case Metadata:
		return bpf.NewMetadataMemory(mem, append([]byte(nil), c.Meta...), c.DataOffset, c.DataEndOffset)
	default:
		return bpf.NewBufferMemory(mem)
	}
}

// Registry returns a registry holding c's helpers.
func (c Case) Registry() *bpf.HelperRegistry {
	r := bpf.NewHelperRegistry()
	for idx, fn := range c.Helpers {
		r.Register(idx, fn)
	}

	return r
}

// CheckResult reports whether a run of c returned what c expects.
func (c Case) CheckResult(got uint64, err error) bool {
	if c.WantErr == nil {
		return err == nil && got == c.Want
	}

	var execErr *bpf.ExecError
	if !errors.As(err, &execErr) {
		return false
	}

	return errors.Is(err, c.WantErr) && execErr.PC == c.WantPC
}

func ins(op bpf.Opcode, dst, src uint8, off int16, imm int32) bpf.Instruction {
	return bpf.Instruction{Op: op, Dst: dst, Src: src, Off: off, Imm: imm}
}

func alu64(op uint8, dst uint8, imm int32) bpf.Instruction {
	return ins(bpf.Opcode(bpf.ClassAlu64|bpf.SrcK|op), dst, 0, 0, imm)
}

func alu64X(op uint8, dst, src uint8) bpf.Instruction {
	return ins(bpf.Opcode(bpf.ClassAlu64|bpf.SrcX|op), dst, src, 0, 0)
}

func alu32(op uint8, dst uint8, imm int32) bpf.Instruction {
	return ins(bpf.Opcode(bpf.ClassAlu|bpf.SrcK|op), dst, 0, 0, imm)
}

func alu32X(op uint8, dst, src uint8) bpf.Instruction {
	return ins(bpf.Opcode(bpf.ClassAlu|bpf.SrcX|op), dst, src, 0, 0)
}

func jmp(op uint8, dst uint8, imm int32, off int16) bpf.Instruction {
	return ins(bpf.Opcode(bpf.ClassJmp|bpf.SrcK|op), dst, 0, off, imm)
}

func jmpX(op uint8, dst, src uint8, off int16) bpf.Instruction {
	return ins(bpf.Opcode(bpf.ClassJmp|bpf.SrcX|op), dst, src, off, 0)
}

func exit() bpf.Instruction {
	return ins(bpf.OpExit, 0, 0, 0, 0)
}

func call(idx int32) bpf.Instruction {
	return ins(bpf.OpCall, 0, 0, 0, idx)
}

func program(parts ...any) []byte {
	var insns []bpf.Instruction

	for _, p := range parts {
		switch v := p.(type) {
		case bpf.Instruction:
			insns = append(insns, v)
		case []bpf.Instruction:
			insns = append(insns, v...)
		}
	}

	return bpf.Encode(insns...)
}

// TCPPortFilter is a classifier that returns 0xffffffff for TCP packets with
// source or destination port 0x9999 and 0 otherwise. It reads the packet
// bounds from a metadata buffer at 0x40 and 0x50.
var TCPPortFilter = []byte{
	0xb7, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x79, 0x12, 0x50, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x79, 0x11, 0x40, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xbf, 0x13, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x07, 0x03, 0x00, 0x00, 0x36, 0x00, 0x00, 0x00,
	0x2d, 0x23, 0x12, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x69, 0x12, 0x0c, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x55, 0x02, 0x10, 0x00, 0x08, 0x00, 0x00, 0x00,
	0x71, 0x12, 0x17, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x55, 0x02, 0x0e, 0x00, 0x06, 0x00, 0x00, 0x00,
	0x18, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x79, 0x11, 0x22, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xbf, 0x12, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x57, 0x02, 0x00, 0x00, 0xff, 0xff, 0x00, 0x00,
	0x15, 0x02, 0x08, 0x00, 0x99, 0x99, 0x00, 0x00,
	0x18, 0x02, 0x00, 0x00, 0x00, 0x00, 0xff, 0xff,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x5f, 0x21, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xb7, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff,
	0x18, 0x02, 0x00, 0x00, 0x00, 0x00, 0x99, 0x99,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x1d, 0x21, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xb7, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x95, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// TCPPacket is an Ethernet/IPv4/TCP frame whose source port is 0x9999.
var TCPPacket = []byte{
	0x01, 0x23, 0x45, 0x67, 0x89, 0xab,
	0xfe, 0xdc, 0xba, 0x98, 0x76, 0x54,
	0x08, 0x00,
	0x45, 0x00, 0x00, 0x3b,
	0xa6, 0xab, 0x40, 0x00,
	0x40, 0x06, 0x96, 0x0f,
	0x7f, 0x00, 0x00, 0x01,
	0x7f, 0x00, 0x00, 0x01,
	0x99, 0x99, 0xc6, 0xcc,
	0xd1, 0xe5, 0xc4, 0x9d,
	0xd4, 0x30, 0xb5, 0xd2,
	0x80, 0x18, 0x01, 0x56,
	0xfe, 0x2f, 0x00, 0x00,
	0x01, 0x01, 0x08, 0x0a,
	0x00, 0x23, 0x75, 0x89,
	0x00, 0x23, 0x63, 0x2d,
	0x71, 0x64, 0x66, 0x73,
	0x64, 0x66, 0x0a,
}

// TCPPacketWithPorts returns TCPPacket with its ports replaced.
func TCPPacketWithPorts(src, dst uint16) []byte {
	p := append([]byte(nil), TCPPacket...)
	binary.BigEndian.PutUint16(p[34:], src)
	binary.BigEndian.PutUint16(p[36:], dst)

	return p
}

// MetadataHalfWord loads the packet start from metadata offset 8 and reads
// the half-word at packet offset 2.
var MetadataHalfWord = []byte{
	0x79, 0x11, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x69, 0x10, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x95, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// MetadataFor returns a size byte metadata buffer describing a packetLen
// byte packet at dataOff and dataEndOff.
func MetadataFor(size, dataOff, dataEndOff, packetLen int) []byte {
	meta := make([]byte, size)
	bpf.PutPacketBounds(meta, dataOff, dataEndOff, packetLen)

	return meta
}

// Cases is the shared corpus. Every case terminates, so each one is
// expected to give the same outcome on every engine.
func Cases() []Case {
	return []Case{
		{
			Name: "mov and exit",
			Code: program(alu64(bpf.AluMov, 0, 42), exit()),
			Want: 42,
		},
		{
			Name: "alu64 arithmetic",
			Code: program(
				alu64(bpf.AluMov, 0, 7),
				alu64(bpf.AluMov, 1, 3),
				alu64X(bpf.AluMul, 0, 1),
				alu64(bpf.AluAdd, 0, -1),
				alu64(bpf.AluSub, 0, 4),
				alu64(bpf.AluDiv, 0, 4),
				alu64(bpf.AluMod, 0, 3),
				alu64(bpf.AluXor, 0, 0xff),
				alu64(bpf.AluOr, 0, 0x100),
				alu64(bpf.AluAnd, 0, 0x1f0),
				exit(),
			),
			// ((7*3-1-4)/4)%3 = 1; 1^0xff = 0xfe; |0x100 = 0x1fe; &0x1f0 = 0x1f0
			Want: 0x1f0,
		},
		{
			Name: "alu32 truncates and zero-extends",
			Code: program(
				bpf.LoadImm64(0, 0xffffffff_fffffff0),
				alu32(bpf.AluAdd, 0, 0x20),
				exit(),
			),
			Want: 0x10,
		},
		{
			Name: "mov32 clears upper half",
			Code: program(
				bpf.LoadImm64(1, 0x12345678_9abcdef0),
				alu32X(bpf.AluMov, 0, 1),
				exit(),
			),
			Want: 0x9abcdef0,
		},
		{
			Name: "mov64 sign-extends immediate",
			Code: program(alu64(bpf.AluMov, 0, -1), exit()),
			Want: 0xffffffff_ffffffff,
		},
		{
			Name: "mov32 does not sign-extend immediate",
			Code: program(alu32(bpf.AluMov, 0, -1), exit()),
			Want: 0xffffffff,
		},
		{
			Name: "neg",
			Code: program(
				alu64(bpf.AluMov, 0, 5),
				alu64(bpf.AluNeg, 0, 0),
				alu64(bpf.AluMov, 1, 5),
				alu32(bpf.AluNeg, 1, 0),
				alu64X(bpf.AluXor, 0, 1),
				exit(),
			),
			// -5 (64) ^ uint32(-5)
			Want: 0xffffffff_fffffffb ^ 0xfffffffb,
		},
		{
			Name: "shifts mask their count",
			Code: program(
				alu64(bpf.AluMov, 0, 1),
				alu64(bpf.AluLsh, 0, 65),
				alu64(bpf.AluMov, 1, 33),
				alu32X(bpf.AluLsh, 0, 1),
				exit(),
			),
			Want: 4,
		},
		{
			Name: "arithmetic shift right",
			Code: program(
				alu64(bpf.AluMov, 0, -16),
				alu64(bpf.AluArsh, 0, 2),
				alu64(bpf.AluMov, 1, -16),
				alu32(bpf.AluArsh, 1, 2),
				alu64(bpf.AluMov, 2, 32),
				alu64X(bpf.AluRsh, 1, 2),
				alu64X(bpf.AluAdd, 0, 1),
				exit(),
			),
			// -4 + (0xfffffffc >> 32 = 0)
			Want: 0xffffffff_fffffffc,
		},
		{
			Name: "division by zero register",
			Code: program(
				alu64(bpf.AluMov, 0, 1),
				alu64(bpf.AluMov, 1, 0),
				alu64X(bpf.AluDiv, 0, 1),
				exit(),
			),
			WantErr: bpf.ErrDivisionByZero,
			WantPC:  2,
		},
		{
			Name: "modulo by zero immediate",
			Code: program(
				alu64(bpf.AluMov, 0, 1),
				alu32(bpf.AluMod, 0, 0),
				exit(),
			),
			WantErr: bpf.ErrDivisionByZero,
			WantPC:  1,
		},
		{
			Name: "div32 uses low halves",
			Code: program(
				bpf.LoadImm64(0, 0x1_00000064),
				alu64(bpf.AluMov, 1, 10),
				alu32X(bpf.AluDiv, 0, 1),
				exit(),
			),
			Want: 10,
		},
		{
			Name: "byte swaps",
			Code: program(
				bpf.LoadImm64(0, 0x11223344_55667788),
				ins(bpf.OpBe, 0, 0, 0, 16),
				bpf.LoadImm64(1, 0x11223344_55667788),
				ins(bpf.OpBe, 1, 0, 0, 64),
				alu64X(bpf.AluXor, 0, 1),
				bpf.LoadImm64(2, 0x11223344_55667788),
				ins(bpf.OpLe, 2, 0, 0, 32),
				alu64X(bpf.AluXor, 0, 2),
				exit(),
			),
			Want: 0x8877 ^ 0x88776655_44332211 ^ 0x55667788,
		},
		{
			Name: "signed and unsigned comparisons",
			Code: program(
				alu64(bpf.AluMov, 0, 0),
				alu64(bpf.AluMov, 1, -1),
				jmp(bpf.JmpJsgt, 1, 0, 1), // not taken: -1 > 0 signed
				alu64(bpf.AluOr, 0, 1),
				jmp(bpf.JmpJgt, 1, 0, 1), // taken: 2^64-1 > 0 unsigned
				alu64(bpf.AluOr, 0, 2),
				jmp(bpf.JmpJslt, 1, 0, 1), // taken
				alu64(bpf.AluOr, 0, 4),
				jmp(bpf.JmpJle, 1, 5, 1), // not taken
				alu64(bpf.AluOr, 0, 8),
				jmp(bpf.JmpJset, 1, 0x10, 1), // taken
				alu64(bpf.AluOr, 0, 16),
				alu64(bpf.AluMov, 2, 3),
				jmpX(bpf.JmpJge, 2, 2, 1), // taken
				alu64(bpf.AluOr, 0, 32),
				jmpX(bpf.JmpJne, 2, 1, 1), // taken
				alu64(bpf.AluOr, 0, 64),
				jmpX(bpf.JmpJsle, 1, 2, 1), // taken
				alu64(bpf.AluOr, 0, 128),
				jmp(bpf.JmpJsge, 1, -1, 1), // taken
				alu64(bpf.AluOr, 0, 256),
				jmp(bpf.JmpJlt, 2, 3, 1), // not taken
				alu64(bpf.AluOr, 0, 512),
				jmp(bpf.JmpJeq, 2, 3, 1), // taken
				alu64(bpf.AluOr, 0, 1024),
				exit(),
			),
			Want: 1 | 8 | 512,
		},
		{
			Name: "loop with backward jump",
			Code: program(
				alu64(bpf.AluMov, 0, 0),
				alu64(bpf.AluMov, 1, 10),
				alu64X(bpf.AluAdd, 0, 1),
				alu64(bpf.AluSub, 1, 1),
				jmp(bpf.JmpJne, 1, 0, -3),
				exit(),
			),
			Want: 55,
		},
		{
			Name: "ja skips",
			Code: program(
				alu64(bpf.AluMov, 0, 1),
				ins(bpf.OpJa, 0, 0, 1, 0),
				alu64(bpf.AluMov, 0, 2),
				exit(),
			),
			Want: 1,
		},
		{
			Name: "stack round trip",
			Code: program(
				ins(bpf.OpStDW, 10, 0, -8, -2),
				ins(bpf.OpStB, 10, 0, -9, 0x7f),
				alu64(bpf.AluMov, 1, 0x1234),
				ins(bpf.OpStxH, 10, 1, -12, 0),
				ins(bpf.OpLdxDW, 0, 10, -8, 0),
				ins(bpf.OpLdxB, 2, 10, -9, 0),
				alu64X(bpf.AluAdd, 0, 2),
				ins(bpf.OpLdxH, 3, 10, -12, 0),
				alu64X(bpf.AluAdd, 0, 3),
				exit(),
			),
			Want: 0x1234 + 0x7f - 2,
		},
		{
			Name: "stack underflow",
			Code: program(
				ins(bpf.OpLdxDW, 0, 10, -(bpf.StackSize + 8), 0),
				exit(),
			),
			WantErr: bpf.ErrOutOfBounds,
			WantPC:  0,
		},
		{
			Name: "stack overflow past top",
			Code: program(
				ins(bpf.OpStxW, 10, 1, -2, 0),
				exit(),
			),
			WantErr: bpf.ErrOutOfBounds,
			WantPC:  0,
		},
		{
			Name: "memory load and store",
			Code: program(
				ins(bpf.OpLdxW, 0, 1, 0, 0),
				ins(bpf.OpStxW, 1, 0, 4, 0),
				ins(bpf.OpLdxDW, 0, 1, 0, 0),
				exit(),
			),
			Mem:  []byte{0x01, 0x02, 0x03, 0x04, 0, 0, 0, 0},
			Want: 0x04030201_04030201,
		},
		{
			Name: "memory straddling end",
			Code: program(
				ins(bpf.OpLdxW, 0, 1, 6, 0),
				exit(),
			),
			Mem:     make([]byte, 8),
			WantErr: bpf.ErrOutOfBounds,
			WantPC:  0,
		},
		{
			Name: "memory last byte",
			Code: program(
				ins(bpf.OpLdxB, 0, 1, 7, 0),
				exit(),
			),
			Mem:  []byte{0, 0, 0, 0, 0, 0, 0, 0x5a},
			Want: 0x5a,
		},
		{
			Name: "null pointer",
			Code: program(
				alu64(bpf.AluMov, 1, 0),
				ins(bpf.OpLdxB, 0, 1, 0, 0),
				exit(),
			),
			WantErr: bpf.ErrOutOfBounds,
			WantPC:  1,
		},
		{
			Name: "unmapped region",
			Code: program(
				bpf.LoadImm64(1, 7<<32),
				ins(bpf.OpStB, 1, 0, 0, 1),
				exit(),
			),
			WantErr: bpf.ErrOutOfBounds,
			WantPC:  2,
		},
		{
			Name: "legacy absolute loads",
			Code: program(
				ins(bpf.OpLdAbsH, 0, 0, 0, 2),
				alu64X(bpf.AluMov, 6, 0),
				ins(bpf.OpLdAbsB, 0, 0, 0, 5),
				alu64X(bpf.AluAdd, 0, 6),
				exit(),
			),
			Mem:  []byte{0xaa, 0xbb, 0x11, 0x22, 0xcc, 0xdd},
			Want: 0x2211 + 0xdd,
		},
		{
			Name: "legacy indirect load",
			Code: program(
				alu64(bpf.AluMov, 2, 1),
				ins(bpf.OpLdIndW, 0, 2, 0, 1),
				exit(),
			),
			Mem:  []byte{0xaa, 0xbb, 0x11, 0x22, 0xcc, 0xdd},
			Want: 0xdd_cc_22_11,
		},
		{
			Name: "legacy load past data end",
			Code: program(
				ins(bpf.OpLdAbsW, 0, 0, 0, 3),
				exit(),
			),
			Mem:     []byte{0xaa, 0xbb, 0x11, 0x22, 0xcc, 0xdd},
			WantErr: bpf.ErrOutOfBounds,
			WantPC:  0,
		},
		{
			Name: "legacy load inside data end",
			Code: program(
				ins(bpf.OpLdAbsH, 0, 0, 0, 2),
				exit(),
			),
			Layout: Metadata,
			Mem:    []byte{0xaa, 0xbb, 0x11, 0x22, 0xcc, 0xdd, 0xee, 0xff},
			// data_end sits 4 bytes into an 8 byte packet
			Meta:          MetadataFor(16, 0, 8, 4),
			DataOffset:    0,
			DataEndOffset: 8,
			Want:          0x2211,
		},
		{
			Name: "legacy load straddling data end",
			Code: program(
				ins(bpf.OpLdAbsH, 0, 0, 0, 3),
				exit(),
			),
			Layout:        Metadata,
			Mem:           []byte{0xaa, 0xbb, 0x11, 0x22, 0xcc, 0xdd, 0xee, 0xff},
			Meta:          MetadataFor(16, 0, 8, 4),
			DataOffset:    0,
			DataEndOffset: 8,
			WantErr:       bpf.ErrOutOfBounds,
			WantPC:        0,
		},
		{
			Name: "legacy indirect load past data end",
			Code: program(
				alu64(bpf.AluMov, 2, 4),
				ins(bpf.OpLdIndB, 0, 2, 0, 0),
				exit(),
			),
			Layout:        Metadata,
			Mem:           []byte{0xaa, 0xbb, 0x11, 0x22, 0xcc, 0xdd, 0xee, 0xff},
			Meta:          MetadataFor(16, 0, 8, 4),
			DataOffset:    0,
			DataEndOffset: 8,
			WantErr:       bpf.ErrOutOfBounds,
			WantPC:        1,
		},
		{
			Name: "legacy load before data start",
			Code: program(
				alu64(bpf.AluMov, 2, -1),
				ins(bpf.OpLdIndB, 0, 2, 0, 0),
				exit(),
			),
			Mem:     []byte{0xaa, 0xbb},
			WantErr: bpf.ErrOutOfBounds,
			WantPC:  1,
		},
		{
			Name: "helper call",
			Code: program(
				alu64(bpf.AluMov, 1, 1),
				alu64(bpf.AluMov, 2, 2),
				alu64(bpf.AluMov, 3, 3),
				alu64(bpf.AluMov, 4, 4),
				alu64(bpf.AluMov, 5, 5),
				call(int32(bpf.HelperGatherBytes)),
				alu64(bpf.AluAdd, 0, 1),
				exit(),
			),
			Helpers: map[uint32]bpf.HelperFunc{bpf.HelperGatherBytes: bpf.GatherBytes},
			Want:    0x0102030405 + 1,
		},
		{
			Name: "helper called in a loop",
			Code: program(
				alu64(bpf.AluMov, 6, 0),
				alu64(bpf.AluMov, 7, 4),
				alu64X(bpf.AluMov, 1, 7),
				call(9),
				alu64X(bpf.AluAdd, 6, 0),
				alu64(bpf.AluSub, 7, 1),
				jmp(bpf.JmpJne, 7, 0, -5),
				alu64X(bpf.AluMov, 0, 6),
				exit(),
			),
			Helpers: map[uint32]bpf.HelperFunc{
				9: func(r1, _, _, _, _ uint64) uint64 { return r1 * r1 },
			},
			Want: 16 + 9 + 4 + 1,
		},
		{
			Name: "unknown helper",
			Code: program(
				alu64(bpf.AluMov, 0, 0),
				call(77),
				exit(),
			),
			WantErr: bpf.ErrUnknownHelper,
			WantPC:  1,
		},
		{
			Name: "unknown helper on untaken path",
			Code: program(
				alu64(bpf.AluMov, 0, 3),
				jmp(bpf.JmpJeq, 0, 3, 1),
				call(77),
				exit(),
			),
			Want: 3,
		},
		{
			Name:          "tcp port filter blocks port",
			Code:          TCPPortFilter,
			Layout:        FixedMetadata,
			Mem:           TCPPacket,
			DataOffset:    0x40,
			DataEndOffset: 0x50,
			Want:          0xffffffff,
		},
		{
			Name:          "tcp port filter passes other ports",
			Code:          TCPPortFilter,
			Layout:        FixedMetadata,
			Mem:           TCPPacketWithPorts(0x1234, 0x0050),
			DataOffset:    0x40,
			DataEndOffset: 0x50,
			Want:          0,
		},
		{
			Name:          "tcp port filter short packet",
			Code:          TCPPortFilter,
			Layout:        FixedMetadata,
			Mem:           TCPPacket[:40],
			DataOffset:    0x40,
			DataEndOffset: 0x50,
			Want:          0,
		},
		{
			Name:          "half-word through metadata",
			Code:          MetadataHalfWord,
			Layout:        Metadata,
			Mem:           []byte{0xaa, 0xbb, 0x11, 0x22, 0xcc, 0xdd},
			Meta:          MetadataFor(32, 8, 24, 6),
			DataOffset:    8,
			DataEndOffset: 24,
			Want:          0x2211,
		},
	}
}
