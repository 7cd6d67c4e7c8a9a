package bpf_test

import (
	"testing"

	"github.com/cilium/ebpf/asm"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tcassar-diss/bpfvm/bpf"
	"github.com/tcassar-diss/bpfvm/internal/bpftest"
)

func run(t *testing.T, c bpftest.Case) (uint64, error) {
	t.Helper()

	p, err := bpf.Load(c.Code)
	require.NoError(t, err)

	mem, err := c.Memory()
	require.NoError(t, err)

	return bpf.NewInterpreter(p, c.Registry(), 0).Run(mem)
}

func TestInterpreter_Corpus(t *testing.T) {
	for _, c := range bpftest.Cases() {
		t.Run(c.Name, func(t *testing.T) {
			got, err := run(t, c)

			if c.WantErr != nil {
				require.ErrorIs(t, err, c.WantErr)
				require.Equal(t, &bpf.ExecError{Err: c.WantErr, PC: c.WantPC}, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, c.Want, got, "got %#x, want %#x", got, c.Want)
		})
	}
}

func TestInterpreter_Deterministic(t *testing.T) {
	for _, c := range bpftest.Cases() {
		first, firstErr := run(t, c)
		second, secondErr := run(t, c)

		require.Equal(t, first, second, c.Name)
		require.Equal(t, firstErr, secondErr, c.Name)
	}
}

func TestInterpreter_InstructionLimit(t *testing.T) {
	code := assemble(t,
		asm.Mov.Imm(asm.R0, 0).WithSymbol("loop"),
		asm.Ja.Label("loop"),
	)

	p, err := bpf.Load(code)
	require.NoError(t, err)

	mem, err := bpf.NewBufferMemory(nil)
	require.NoError(t, err)

	_, err = bpf.NewInterpreter(p, bpf.NewHelperRegistry(), 1000).Run(mem)
	require.ErrorIs(t, err, bpf.ErrInstructionLimit)
}

func TestInterpreter_AssembledProgram(t *testing.T) {
	// Sums the bytes of the buffer through the stack.
	code := assemble(t,
		asm.Mov.Imm(asm.R0, 0),
		asm.Mov.Imm(asm.R2, 0),
		asm.StoreMem(asm.RFP, -8, asm.R0, asm.DWord),
		asm.LoadMem(asm.R3, asm.R1, 0, asm.Byte).WithSymbol("loop"),
		asm.LoadMem(asm.R4, asm.RFP, -8, asm.DWord),
		asm.Add.Reg(asm.R4, asm.R3),
		asm.StoreMem(asm.RFP, -8, asm.R4, asm.DWord),
		asm.Add.Imm(asm.R1, 1),
		asm.Add.Imm(asm.R2, 1),
		asm.JLT.Imm(asm.R2, 4, "loop"),
		asm.LoadMem(asm.R0, asm.RFP, -8, asm.DWord),
		asm.Return(),
	)

	p, err := bpf.Load(code)
	require.NoError(t, err)

	mem, err := bpf.NewBufferMemory([]byte{1, 2, 3, 250})
	require.NoError(t, err)

	got, err := bpf.NewInterpreter(p, bpf.NewHelperRegistry(), 0).Run(mem)
	require.NoError(t, err)
	require.Equal(t, uint64(256), got)
}

func TestInterpreter_RegistersAtEntry(t *testing.T) {
	code := assemble(t,
		asm.Mov.Reg(asm.R0, asm.RFP),
		asm.Sub.Reg(asm.R0, asm.R1),
		asm.Return(),
	)

	p, err := bpf.Load(code)
	require.NoError(t, err)

	mem, err := bpf.NewBufferMemory(nil)
	require.NoError(t, err)

	got, err := bpf.NewInterpreter(p, bpf.NewHelperRegistry(), 0).Run(mem)
	require.NoError(t, err)
	want := bpf.StackAddr + bpf.StackSize
	want -= bpf.MemAddr
	require.Equal(t, want, got)
}

func TestInterpreter_DefaultHelpers(t *testing.T) {
	reg := bpf.NewHelperRegistry()
	bpf.RegisterDefaultHelpers(reg, zap.NewNop().Sugar())

	code := assemble(t,
		asm.Mov.Imm(asm.R1, 144),
		asm.BuiltinFunc(bpf.HelperSqrti).Call(),
		asm.Mov.Reg(asm.R6, asm.R0),
		asm.Mov.Imm(asm.R3, 0),
		asm.Mov.Imm(asm.R4, 0x10),
		asm.Mov.Imm(asm.R5, 0xabc),
		asm.FnTracePrintk.Call(),
		asm.Add.Reg(asm.R0, asm.R6),
		asm.Return(),
	)

	p, err := bpf.Load(code)
	require.NoError(t, err)

	mem, err := bpf.NewBufferMemory(nil)
	require.NoError(t, err)

	got, err := bpf.NewInterpreter(p, reg, 0).Run(mem)
	require.NoError(t, err)
	// sqrt(144) plus the length of "bpf_trace_printk: 0x0, 0x10, 0xabc\n"
	require.Equal(t, uint64(12+len("bpf_trace_printk: 0x, 0x, 0x\n")+1+2+3), got)
}

func TestNewContext(t *testing.T) {
	mem, err := bpf.NewBufferMemory(make([]byte, 16))
	require.NoError(t, err)

	c := bpf.NewContext(mem, bpf.NewHelperRegistry())
	require.Equal(t, bpf.MemAddr, c.Regs[1])
	require.Equal(t, bpf.StackAddr+bpf.StackSize, c.Regs[bpf.FramePointer])
	require.Zero(t, c.Regs[0])
	require.Zero(t, c.PC)

	require.NoError(t, c.Store(bpf.StackAddr+bpf.StackSize-8, 8, 0x1122334455667788))

	got, err := c.Load(bpf.StackAddr+bpf.StackSize-8, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(0x55667788), got)

	_, err = c.Load(bpf.StackAddr+bpf.StackSize-4, 8)
	require.ErrorIs(t, err, bpf.ErrOutOfBounds)
}
