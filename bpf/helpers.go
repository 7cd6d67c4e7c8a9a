package bpf

import (
	"math"
	"math/bits"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HelperFunc is a host function callable from a program with `call idx`.
// It receives r1 to r5 and its result is written to r0.
type HelperFunc func(r1, r2, r3, r4, r5 uint64) uint64

// HelperRegistry maps helper indices to host functions. It is safe for
// concurrent use; registering while programs run is allowed.
type HelperRegistry struct {
	mu      sync.RWMutex
	helpers map[uint32]HelperFunc
}

func NewHelperRegistry() *HelperRegistry {
	return &HelperRegistry{helpers: make(map[uint32]HelperFunc)}
}

// Register binds fn to idx, replacing any previous binding.
func (r *HelperRegistry) Register(idx uint32, fn HelperFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.helpers[idx] = fn
}

// Lookup returns the helper bound to idx.
func (r *HelperRegistry) Lookup(idx uint32) (HelperFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.helpers[idx]

	return fn, ok
}

// Len returns the number of registered helpers.
func (r *HelperRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.helpers)
}

// Indices of the built-in helpers that match kernel helper numbers.
const (
	HelperKtimeGetNs  uint32 = 5
	HelperTracePrintk uint32 = 6
)

// Indices of the remaining built-in helpers. They have no kernel
// counterpart, so they sit well above the kernel's numbering.
const (
	HelperGatherBytes uint32 = 0x10000 + iota
	HelperSqrti
)

var bootTime = time.Now()

// RegisterDefaultHelpers binds the built-in helpers into r.
func RegisterDefaultHelpers(r *HelperRegistry, logger *zap.SugaredLogger) {
	r.Register(HelperKtimeGetNs, KtimeGetNs)
	r.Register(HelperTracePrintk, TracePrintk(logger))
	r.Register(HelperGatherBytes, GatherBytes)
	r.Register(HelperSqrti, Sqrti)
}

// KtimeGetNs returns the nanoseconds elapsed since the process started.
func KtimeGetNs(_, _, _, _, _ uint64) uint64 {
	return uint64(time.Since(bootTime).Nanoseconds())
}

// TracePrintk logs its last three arguments and returns the length of the
// line it would have printed. The first two arguments (format string pointer
// and length in the kernel helper) are ignored.
func TracePrintk(logger *zap.SugaredLogger) HelperFunc {
	return func(_, _, a3, a4, a5 uint64) uint64 {
		logger.Infow("bpf_trace_printk", "arg3", a3, "arg4", a4, "arg5", a5)

		const frame = len("bpf_trace_printk: 0x, 0x, 0x\n")

		return uint64(frame + hexDigits(a3) + hexDigits(a4) + hexDigits(a5))
	}
}

func hexDigits(v uint64) int {
	if v == 0 {
		return 1
	}

	return (bits.Len64(v) + 3) / 4
}

// GatherBytes shifts its arguments into one value, r1 being the most
// significant.
func GatherBytes(a1, a2, a3, a4, a5 uint64) uint64 {
	return a1<<32 | a2<<24 | a3<<16 | a4<<8 | a5
}

// Sqrti returns the square root of r1, truncated. Precision is that of
// float64.
func Sqrti(a1, _, _, _, _ uint64) uint64 {
	return uint64(math.Sqrt(float64(a1)))
}
