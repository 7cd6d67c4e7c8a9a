package vm

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tcassar-diss/bpfvm/bpf"
	"github.com/tcassar-diss/bpfvm/bpf/jit"
)

var (
	ErrCfgInvalid  = errors.New("invalid vm config")
	ErrBufferCount = errors.New("wrong number of buffers for memory mode")
	ErrNotCompiled = errors.New("program has not been compiled")
)

// Mode selects how the buffers passed to Execute are laid out in memory.
type Mode string

const (
	// ModeBuffer runs the program over a single buffer; r1 points at it.
	ModeBuffer Mode = "buffer"
	// ModeMetadata takes a packet and a caller-built metadata buffer holding
	// the packet bounds at DataOffset and DataEndOffset; r1 points at the
	// metadata.
	ModeMetadata Mode = "metadata"
	// ModeFixedMetadata takes a packet only. The VM builds the metadata
	// buffer itself on every invocation.
	ModeFixedMetadata Mode = "fixed-metadata"
)

// Config configures a VM.
//
// DataOffset and DataEndOffset are only read in the metadata modes. A zero
// InstructionLimit selects bpf.DefaultInstructionLimit; the limit applies to
// interpreted runs only, as does Profile.
type Config struct {
	Mode             Mode
	DataOffset       int
	DataEndOffset    int
	InstructionLimit uint64
	Profile          bool
}

// DefaultConfig is a single buffer VM with the default instruction limit.
func DefaultConfig() *Config {
	return &Config{
		Mode:             ModeBuffer,
		InstructionLimit: bpf.DefaultInstructionLimit,
	}
}

// VM owns a validated program, its helpers and, once compiled, its native
// code.
//
// Using a VM takes two steps: New validates the bytecode and sets up the
// interpreter, then Execute runs it. Calling Compile first makes
// ExecuteCompiled available as well. Execute and ExecuteCompiled may be
// called concurrently; Close must not race with them.
type VM struct {
	logger  *zap.SugaredLogger
	cfg     *Config
	prog    *bpf.Program
	helpers *bpf.HelperRegistry
	interp  *bpf.Interpreter
	profile *bpf.Profile
	stats   counters

	mu       sync.RWMutex
	artifact *jit.Artifact
}

// New decodes and validates code. A nil cfg selects DefaultConfig.
func New(logger *zap.SugaredLogger, code []byte, cfg *Config) (*VM, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	prog, err := bpf.Load(code)
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}

	helpers := bpf.NewHelperRegistry()

	v := &VM{
		logger:  logger,
		cfg:     cfg,
		prog:    prog,
		helpers: helpers,
		interp:  bpf.NewInterpreter(prog, helpers, cfg.InstructionLimit),
	}

	if cfg.Profile {
		v.profile = bpf.NewProfile(prog)
	}

	logger.Infow("program loaded",
		"tag", prog.Tag(),
		"slots", prog.Len(),
		"mode", cfg.Mode,
	)

	return v, nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeBuffer:
		return nil
	case ModeMetadata, ModeFixedMetadata:
		if c.DataOffset < 0 || c.DataEndOffset < 0 {
			return fmt.Errorf("%w: negative metadata offset", ErrCfgInvalid)
		}

		return nil
	default:
		return fmt.Errorf("%w: mode %q unsupported", ErrCfgInvalid, c.Mode)
	}
}

// Program returns the validated program.
func (v *VM) Program() *bpf.Program { return v.prog }

// RegisterHelper installs fn at idx, replacing any previous helper. Helpers
// are looked up when a call executes, so they may be registered after
// Compile.
func (v *VM) RegisterHelper(idx uint32, fn bpf.HelperFunc) {
	v.logger.Debugw("registering helper", "idx", idx)
	v.helpers.Register(idx, fn)
}

// Profile returns the per-slot execution counts of interpreted runs, or nil
// unless Config.Profile was set.
func (v *VM) Profile() *bpf.Profile { return v.profile }

// Helpers returns the registry shared by both execution paths.
func (v *VM) Helpers() *bpf.HelperRegistry { return v.helpers }

// Compile translates the program to native code. Compiling twice is a no-op.
func (v *VM) Compile() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.artifact != nil {
		return nil
	}

	a, err := jit.Compile(v.prog)
	if err != nil {
		return fmt.Errorf("failed to compile program %s: %w", v.prog.Tag(), err)
	}

	v.artifact = a
	v.logger.Infow("program compiled", "tag", v.prog.Tag(), "bytes", a.Size())

	return nil
}

// Execute interprets the program over buffers, laid out as the VM's Mode
// requires.
func (v *VM) Execute(buffers ...[]byte) (uint64, error) {
	mem, err := v.memory(buffers)
	if err != nil {
		return 0, err
	}

	var ret uint64

	if v.profile != nil {
		ret, err = v.interp.RunProfiled(mem, v.profile)
	} else {
		ret, err = v.interp.Run(mem)
	}

	v.stats.record(&v.stats.interpreted, err)

	return ret, err
}

// ExecuteCompiled runs the native code over buffers. It returns the same
// value or *bpf.ExecError as Execute for every program that terminates within
// the instruction limit.
func (v *VM) ExecuteCompiled(buffers ...[]byte) (uint64, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.artifact == nil {
		return 0, ErrNotCompiled
	}

	mem, err := v.memory(buffers)
	if err != nil {
		return 0, err
	}

	ret, err := v.artifact.Run(mem, v.helpers)
	v.stats.record(&v.stats.compiled, err)

	return ret, err
}

// Disassemble renders the native code, or ErrNotCompiled.
func (v *VM) Disassemble() (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.artifact == nil {
		return "", ErrNotCompiled
	}

	return v.artifact.Disassemble(), nil
}

// Close releases the native code. The VM can still interpret afterwards.
func (v *VM) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.artifact == nil {
		return nil
	}

	err := v.artifact.Close()
	v.artifact = nil

	if err != nil {
		return fmt.Errorf("failed to release native code: %w", err)
	}

	return nil
}

func (v *VM) memory(buffers [][]byte) (bpf.Memory, error) {
	want := 1
	if v.cfg.Mode == ModeMetadata {
		want = 2
	}

	if len(buffers) != want {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", ErrBufferCount, v.cfg.Mode, want, len(buffers))
	}

	var (
		mem bpf.Memory
		err error
	)

	switch v.cfg.Mode {
	case ModeMetadata:
		mem, err = bpf.NewMetadataMemory(buffers[0], buffers[1], v.cfg.DataOffset, v.cfg.DataEndOffset)
	case ModeFixedMetadata:
		mem, err = bpf.NewFixedMetadataMemory(buffers[0], v.cfg.DataOffset, v.cfg.DataEndOffset)
	default:
		mem, err = bpf.NewBufferMemory(buffers[0])
	}

	if err != nil {
		return nil, fmt.Errorf("failed to map buffers: %w", err)
	}

	return mem, nil
}
