package vm_test

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tcassar-diss/bpfvm/bpf"
	"github.com/tcassar-diss/bpfvm/bpf/vm"
	"github.com/tcassar-diss/bpfvm/internal/bpftest"
)

func native() bool {
	return runtime.GOOS == "linux" && runtime.GOARCH == "amd64"
}

func newVM(t *testing.T, code []byte, cfg *vm.Config) *vm.VM {
	t.Helper()

	v, err := vm.New(zaptest.NewLogger(t).Sugar(), code, cfg)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, v.Close()) })

	return v
}

// caseVM builds a VM configured for c and the buffers to run it with.
func caseVM(t *testing.T, c bpftest.Case) (*vm.VM, [][]byte) {
	t.Helper()

	cfg := &vm.Config{
		Mode:          vm.ModeBuffer,
		DataOffset:    c.DataOffset,
		DataEndOffset: c.DataEndOffset,
	}
	buffers := [][]byte{c.Mem}

	switch c.Layout {
	case bpftest.FixedMetadata:
		cfg.Mode = vm.ModeFixedMetadata
	case bpftest.Metadata:
		cfg.Mode = vm.ModeMetadata
		buffers = append(buffers, c.Meta)
	}

	v := newVM(t, c.Code, cfg)
	for idx, fn := range c.Helpers {
		v.RegisterHelper(idx, fn)
	}

	return v, buffers
}

func copyBuffers(buffers [][]byte) [][]byte {
	out := make([][]byte, len(buffers))
	for i, b := range buffers {
		out[i] = append([]byte(nil), b...)
	}

	return out
}

func TestVM_Corpus(t *testing.T) {
	for _, c := range bpftest.Cases() {
		t.Run(c.Name, func(t *testing.T) {
			v, buffers := caseVM(t, c)

			got, err := v.Execute(copyBuffers(buffers)...)
			require.True(t, c.CheckResult(got, err), "execute: %#x, %v", got, err)

			if !native() {
				return
			}

			require.NoError(t, v.Compile())

			gotJIT, errJIT := v.ExecuteCompiled(copyBuffers(buffers)...)
			require.Equal(t, err, errJIT)
			require.Equal(t, got, gotJIT)
		})
	}
}

func TestVM_TCPPortFilter(t *testing.T) {
	v := newVM(t, bpftest.TCPPortFilter, &vm.Config{
		Mode:          vm.ModeFixedMetadata,
		DataOffset:    0x40,
		DataEndOffset: 0x50,
	})

	got, err := v.Execute(append([]byte(nil), bpftest.TCPPacket...))
	require.NoError(t, err)
	require.Equal(t, uint64(0xffffffff), got)

	got, err = v.Execute(bpftest.TCPPacketWithPorts(0x0050, 0x1f90))
	require.NoError(t, err)
	require.Zero(t, got)
}

func TestVM_MetadataHalfWord(t *testing.T) {
	v := newVM(t, bpftest.MetadataHalfWord, &vm.Config{
		Mode:          vm.ModeMetadata,
		DataOffset:    8,
		DataEndOffset: 24,
	})

	packet := []byte{0xaa, 0xbb, 0x11, 0x22, 0xcc, 0xdd}

	got, err := v.Execute(packet, bpftest.MetadataFor(32, 8, 24, len(packet)))
	require.NoError(t, err)
	require.Equal(t, uint64(0x2211), got)
}

func TestVM_BufferCount(t *testing.T) {
	tests := []struct {
		name    string
		mode    vm.Mode
		buffers [][]byte
	}{
		{name: "buffer without memory", mode: vm.ModeBuffer},
		{name: "buffer with two", mode: vm.ModeBuffer, buffers: [][]byte{nil, nil}},
		{name: "metadata without meta", mode: vm.ModeMetadata, buffers: [][]byte{nil}},
		{name: "fixed metadata with meta", mode: vm.ModeFixedMetadata, buffers: [][]byte{nil, nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newVM(t, bpf.Encode(bpf.Instruction{Op: bpf.OpExit}), &vm.Config{Mode: tt.mode})

			_, err := v.Execute(tt.buffers...)
			require.ErrorIs(t, err, vm.ErrBufferCount)
		})
	}
}

func TestVM_NotCompiled(t *testing.T) {
	v := newVM(t, bpf.Encode(bpf.Instruction{Op: bpf.OpExit}), nil)

	_, err := v.ExecuteCompiled(nil)
	require.ErrorIs(t, err, vm.ErrNotCompiled)

	_, err = v.Disassemble()
	require.ErrorIs(t, err, vm.ErrNotCompiled)
}

func TestVM_RejectsInvalidProgram(t *testing.T) {
	_, err := vm.New(zaptest.NewLogger(t).Sugar(), []byte{0x95, 0, 0}, nil)
	require.ErrorIs(t, err, bpf.ErrMalformedProgram)

	_, err = vm.New(zaptest.NewLogger(t).Sugar(), bpf.Encode(bpf.Instruction{Op: bpf.OpExit}), &vm.Config{Mode: "ring"})
	require.ErrorIs(t, err, vm.ErrCfgInvalid)
}

func TestVM_HelperRegisteredAfterCompile(t *testing.T) {
	code := bpf.Encode(
		bpf.Instruction{Op: bpf.OpCall, Imm: 42},
		bpf.Instruction{Op: bpf.OpExit},
	)

	v := newVM(t, code, nil)

	if native() {
		require.NoError(t, v.Compile())
		require.NoError(t, v.Compile())

		_, err := v.ExecuteCompiled(nil)
		require.Equal(t, &bpf.ExecError{Err: bpf.ErrUnknownHelper, PC: 0}, err)
	}

	_, err := v.Execute(nil)
	require.Equal(t, &bpf.ExecError{Err: bpf.ErrUnknownHelper, PC: 0}, err)

	v.RegisterHelper(42, func(a1, _, _, _, _ uint64) uint64 { return a1 + 1 })

	got, err := v.Execute(nil)
	require.NoError(t, err)
	require.Equal(t, uint64(bpf.MemAddr+1), got)

	if native() {
		got, err = v.ExecuteCompiled(nil)
		require.NoError(t, err)
		require.Equal(t, uint64(bpf.MemAddr+1), got)
	}
}

func TestVM_Stats(t *testing.T) {
	code := bpf.Encode(
		bpf.Instruction{Op: bpf.OpLdxDW, Dst: 0, Src: 1},
		bpf.Instruction{Op: bpf.OpExit},
	)

	v := newVM(t, code, nil)

	_, err := v.Execute(make([]byte, 8))
	require.NoError(t, err)

	_, err = v.Execute(make([]byte, 4))
	require.ErrorIs(t, err, bpf.ErrOutOfBounds)

	stats := v.Stats()
	require.Equal(t, uint64(2), stats.Interpreted)
	require.Equal(t, uint64(1), stats.OutOfBounds)
	require.Zero(t, stats.Compiled)
}

func TestVM_CloseKeepsInterpreter(t *testing.T) {
	v := newVM(t, bpf.Encode(bpf.Instruction{Op: bpf.OpExit}), nil)

	if native() {
		require.NoError(t, v.Compile())

		listing, err := v.Disassemble()
		require.NoError(t, err)
		require.Contains(t, listing, "ret")
	}

	require.NoError(t, v.Close())

	_, err := v.ExecuteCompiled(nil)
	require.ErrorIs(t, err, vm.ErrNotCompiled)

	got, err := v.Execute(nil)
	require.NoError(t, err)
	require.Zero(t, got)
}

func TestVM_Profile(t *testing.T) {
	v := newVM(t, bpftest.TCPPortFilter, &vm.Config{
		Mode:          vm.ModeFixedMetadata,
		DataOffset:    0x40,
		DataEndOffset: 0x50,
		Profile:       true,
	})

	for i := 0; i < 2; i++ {
		_, err := v.Execute(append([]byte(nil), bpftest.TCPPacket...))
		require.NoError(t, err)
	}

	prof := v.Profile()
	require.NotNil(t, prof)
	require.Equal(t, uint64(2), prof.Runs())
	require.Equal(t, uint64(2), prof.Hits()[0])

	require.Nil(t, newVM(t, bpftest.TCPPortFilter, nil).Profile())
}
