package jit

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tcassar-diss/bpfvm/bpf"
	"github.com/tcassar-diss/bpfvm/internal/bpftest"
)

func skipUnlessNative(t *testing.T) {
	t.Helper()

	if runtime.GOOS != "linux" || runtime.GOARCH != "amd64" {
		t.Skipf("native code does not run on %s/%s", runtime.GOOS, runtime.GOARCH)
	}
}

func compile(t *testing.T, code []byte) *Artifact {
	t.Helper()

	a, err := Compile(mustLoad(t, code))
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, a.Close()) })

	return a
}

func TestArtifact_MatchesInterpreter(t *testing.T) {
	skipUnlessNative(t)

	for _, c := range bpftest.Cases() {
		t.Run(c.Name, func(t *testing.T) {
			p := mustLoad(t, c.Code)

			mem, err := c.Memory()
			require.NoError(t, err)

			want, wantErr := bpf.NewInterpreter(p, c.Registry(), 0).Run(mem)
			require.True(t, c.CheckResult(want, wantErr), "interpreter: %#x, %v", want, wantErr)

			mem, err = c.Memory()
			require.NoError(t, err)

			got, err := compile(t, c.Code).Run(mem, c.Registry())
			require.Equal(t, wantErr, err)
			require.Equal(t, want, got, "got %#x, want %#x", got, want)
		})
	}
}

func TestArtifact_TCPPortFilter(t *testing.T) {
	skipUnlessNative(t)

	a := compile(t, bpftest.TCPPortFilter)

	tests := []struct {
		name   string
		packet []byte
		want   uint64
	}{
		{name: "blocked destination", packet: bpftest.TCPPacketWithPorts(0x1234, 0x9999), want: ^uint64(0)},
		{name: "blocked source", packet: bpftest.TCPPacketWithPorts(0x9999, 0x1234), want: 0xffffffff},
		{name: "allowed", packet: bpftest.TCPPacketWithPorts(0x1234, 0x4321), want: 0},
		{name: "truncated", packet: bpftest.TCPPacket[:20], want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem, err := bpf.NewFixedMetadataMemory(tt.packet, 0x40, 0x50)
			require.NoError(t, err)

			got, err := a.Run(mem, bpf.NewHelperRegistry())
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestArtifact_ConcurrentRuns(t *testing.T) {
	skipUnlessNative(t)

	reg := bpf.NewHelperRegistry()
	bpf.RegisterDefaultHelpers(reg, zap.NewNop().Sugar())

	a := compile(t, bpftest.TCPPortFilter)
	errs := make(chan error, 8)

	for i := 0; i < cap(errs); i++ {
		go func() {
			for j := 0; j < 100; j++ {
				mem, err := bpf.NewFixedMetadataMemory(bpftest.TCPPacket, 0x40, 0x50)
				if err != nil {
					errs <- err
					return
				}

				if _, err := a.Run(mem, reg); err != nil {
					errs <- err
					return
				}
			}

			errs <- nil
		}()
	}

	for i := 0; i < cap(errs); i++ {
		require.NoError(t, <-errs)
	}
}

func TestArtifact_Disassemble(t *testing.T) {
	skipUnlessNative(t)

	p := mustLoad(t, bpftest.TCPPortFilter)

	listing, err := Listing(p)
	require.NoError(t, err)

	a := compile(t, bpftest.TCPPortFilter)
	require.Equal(t, listing, a.Disassemble())
	require.Positive(t, a.Size())
	require.Positive(t, a.Offset(0))
}

func TestArtifact_CloseTwice(t *testing.T) {
	skipUnlessNative(t)

	a, err := Compile(mustLoad(t, bpftest.TCPPortFilter))
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
