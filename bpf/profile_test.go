package bpf_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cilium/ebpf/asm"
	"github.com/stretchr/testify/require"

	"github.com/tcassar-diss/bpfvm/bpf"
)

func TestProfile(t *testing.T) {
	code := assemble(t,
		asm.Mov.Imm(asm.R0, 0),
		asm.LoadImm(asm.R2, 3, asm.DWord),
		asm.Add.Imm(asm.R0, 1).WithSymbol("loop"),
		asm.JLT.Reg(asm.R0, asm.R2, "loop"),
		asm.Return(),
	)

	p, err := bpf.Load(code)
	require.NoError(t, err)

	prof := bpf.NewProfile(p)
	ip := bpf.NewInterpreter(p, bpf.NewHelperRegistry(), 0)

	for i := 0; i < 2; i++ {
		mem, err := bpf.NewBufferMemory(nil)
		require.NoError(t, err)

		got, err := ip.RunProfiled(mem, prof)
		require.NoError(t, err)
		require.Equal(t, uint64(3), got)
	}

	require.Equal(t, uint64(2), prof.Runs())
	require.Equal(t, []uint64{2, 2, 0, 6, 6, 2}, prof.Hits())

	var out bytes.Buffer
	require.NoError(t, prof.WriteCSV(&out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Equal(t, "pc,instruction,hits", lines[0])
	require.Len(t, lines, 6)
	require.Equal(t, "5,exit,2", lines[5])
}

func TestProfile_CountsFaultingRuns(t *testing.T) {
	p, err := bpf.Load(bpf.Encode(
		bpf.Instruction{Op: bpf.OpLdxB, Dst: 0, Src: 1},
		bpf.Instruction{Op: bpf.OpExit},
	))
	require.NoError(t, err)

	mem, err := bpf.NewBufferMemory(nil)
	require.NoError(t, err)

	prof := bpf.NewProfile(p)

	_, err = bpf.NewInterpreter(p, bpf.NewHelperRegistry(), 0).RunProfiled(mem, prof)
	require.ErrorIs(t, err, bpf.ErrOutOfBounds)
	require.Equal(t, []uint64{1, 0}, prof.Hits())
}
