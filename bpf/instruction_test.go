package bpf_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/cilium/ebpf/asm"
	"github.com/stretchr/testify/require"

	"github.com/tcassar-diss/bpfvm/bpf"
)

func assemble(t *testing.T, insns ...asm.Instruction) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, asm.Instructions(insns).Marshal(&buf, binary.LittleEndian))

	return buf.Bytes()
}

func TestDecode_Framing(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		err  error
	}{
		{name: "empty", code: nil, err: bpf.ErrMalformedProgram},
		{name: "short slot", code: make([]byte, 7), err: bpf.ErrMalformedProgram},
		{name: "trailing bytes", code: make([]byte, 12), err: bpf.ErrMalformedProgram},
		{name: "one slot", code: make([]byte, 8), err: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bpf.Decode(tt.code)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestDecode_Fields(t *testing.T) {
	code := []byte{0x6b, 0x3a, 0xfe, 0xff, 0x78, 0x56, 0x34, 0x12}

	p, err := bpf.Decode(code)
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())

	ins := p.At(0)
	require.Equal(t, bpf.OpStxH, ins.Op)
	require.Equal(t, uint8(10), ins.Dst)
	require.Equal(t, uint8(3), ins.Src)
	require.Equal(t, int16(-2), ins.Off)
	require.Equal(t, int32(0x12345678), ins.Imm)
	require.Equal(t, code, bpf.Encode(ins))
}

func TestDecode_UnknownOpcodePreserved(t *testing.T) {
	p, err := bpf.Decode([]byte{0xff, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	require.Equal(t, bpf.Opcode(0xff), p.At(0).Op)
	require.False(t, p.At(0).Op.Known())
}

func TestDecode_WideImmediate(t *testing.T) {
	values := []uint64{
		0,
		1,
		0xffffffff,
		0x1_00000000,
		0x11223344_55667788,
		0xffffffff_ffffffff,
		0x80000000_80000000,
	}

	for _, v := range values {
		code := assemble(t, asm.LoadImm(asm.R3, int64(v), asm.DWord), asm.Return())

		p, err := bpf.Load(code)
		require.NoError(t, err)
		require.Equal(t, 3, p.Len())

		ins := p.At(0)
		require.Equal(t, bpf.OpLdDW, ins.Op)
		require.Equal(t, uint8(3), ins.Dst)
		require.Equal(t, v, ins.Wide)
		require.True(t, p.At(1).Tail)
		require.Equal(t, code[:16], bpf.Encode(bpf.LoadImm64(3, v)...), "encoding of %#x", v)
		require.Equal(t, code, p.Bytes())
	}
}

func TestDecode_WideImmediateLastSlot(t *testing.T) {
	p, err := bpf.Decode([]byte{0x18, 0x01, 0, 0, 1, 0, 0, 0})
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())
	require.Equal(t, uint64(1), p.At(0).Wide)

	require.ErrorIs(t, bpf.Validate(p), bpf.ErrMalformedProgram)
}

func TestInstruction_String(t *testing.T) {
	tests := []struct {
		ins  bpf.Instruction
		want string
	}{
		{bpf.Instruction{Op: bpf.OpExit}, "exit"},
		{bpf.Instruction{Op: bpf.OpCall, Imm: 6}, "call 6"},
		{bpf.Instruction{Op: bpf.OpLdxH, Dst: 0, Src: 1, Off: 2}, "ldxh r0, [r1+2]"},
		{bpf.Instruction{Op: bpf.OpStxDW, Dst: 10, Src: 1, Off: -8}, "stxdw [r10-8], r1"},
		{bpf.Instruction{Op: bpf.ClassAlu64 | bpf.SrcK | bpf.AluAdd, Dst: 3, Imm: 0x36}, "add64 r3, 0x36"},
		{bpf.Instruction{Op: bpf.ClassJmp | bpf.SrcX | bpf.JmpJgt, Dst: 3, Src: 2, Off: 18}, "jgt r3, r2, +18"},
		{bpf.Instruction{Op: bpf.OpBe, Dst: 2, Imm: 16}, "be16 r2"},
		{bpf.Instruction{Op: bpf.OpLdDW, Dst: 2, Wide: 0xffff0000}, "lddw r2, 0xffff0000"},
		{bpf.Instruction{Op: bpf.OpLdAbsB, Imm: 23}, "ldabsb [0x17]"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, tt.ins.String())
		})
	}
}

func TestProgram_Tag(t *testing.T) {
	a, err := bpf.Decode(assemble(t, asm.Mov.Imm(asm.R0, 1), asm.Return()))
	require.NoError(t, err)

	b, err := bpf.Decode(assemble(t, asm.Mov.Imm(asm.R0, 2), asm.Return()))
	require.NoError(t, err)

	require.NotEmpty(t, a.Tag())
	require.NotEqual(t, a.Tag(), b.Tag())
	require.Equal(t, a.Tag(), bpf.CodeTag(a.Bytes()))
}
