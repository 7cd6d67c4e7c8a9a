package bpf_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tcassar-diss/bpfvm/bpf"
)

func TestHelperRegistry(t *testing.T) {
	r := bpf.NewHelperRegistry()

	_, ok := r.Lookup(1)
	require.False(t, ok)

	r.Register(1, func(_, _, _, _, _ uint64) uint64 { return 1 })
	r.Register(1, func(_, _, _, _, _ uint64) uint64 { return 2 })

	fn, ok := r.Lookup(1)
	require.True(t, ok)
	require.Equal(t, uint64(2), fn(0, 0, 0, 0, 0))
	require.Equal(t, 1, r.Len())
}

func TestHelperRegistry_Concurrent(t *testing.T) {
	r := bpf.NewHelperRegistry()

	var wg sync.WaitGroup

	for i := uint32(0); i < 16; i++ {
		i := i
		wg.Add(2)

		go func() {
			defer wg.Done()
			r.Register(i, bpf.Sqrti)
		}()

		go func() {
			defer wg.Done()
			r.Lookup(i)
		}()
	}

	wg.Wait()
	require.Equal(t, 16, r.Len())
}

func TestBuiltinHelpers(t *testing.T) {
	require.Equal(t, uint64(0x0102030405), bpf.GatherBytes(1, 2, 3, 4, 5))
	require.Equal(t, uint64(9), bpf.Sqrti(81, 0, 0, 0, 0))
	require.Equal(t, uint64(9), bpf.Sqrti(99, 0, 0, 0, 0))

	before := bpf.KtimeGetNs(0, 0, 0, 0, 0)
	require.GreaterOrEqual(t, bpf.KtimeGetNs(0, 0, 0, 0, 0), before)

	printk := bpf.TracePrintk(zap.NewNop().Sugar())
	require.Equal(t, uint64(len("bpf_trace_printk: 0x0, 0x0, 0x0\n")), printk(0, 0, 0, 0, 0))
	require.Equal(t, uint64(len("bpf_trace_printk: 0xff, 0x0, 0xffffffffffffffff\n")), printk(0, 0, 0xff, 0, ^uint64(0)))
}
