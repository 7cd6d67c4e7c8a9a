package frontend

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/tcassar-diss/bpfvm/bpf"
	"github.com/tcassar-diss/bpfvm/bpf/loader"
	"github.com/tcassar-diss/bpfvm/bpf/vm"
)

var ErrCfgInvalid = errors.New("invalid config")

// Config describes a program and the inputs to run it over. It is usually
// read from a TOML file with ParseConfig and then patched by CLI flags.
type Config struct {
	Program ProgramCfg `toml:"program"`
	Memory  MemoryCfg  `toml:"memory"`
	Engine  EngineCfg  `toml:"engine"`
	Inputs  []InputCfg `toml:"input"`
}

// ProgramCfg says where the bytecode comes from. Exactly one of Object,
// Bytecode and Tag must be set.
type ProgramCfg struct {
	Object   string `toml:"object"`   // ELF object compiled by clang
	Section  string `toml:"section"`  // section of Object holding the program
	Bytecode string `toml:"bytecode"` // raw little-endian bytecode file
	Tag      string `toml:"tag"`      // tag of a program in Store
	Store    string `toml:"store"`
}

type MemoryCfg struct {
	Mode          string `toml:"mode"`
	DataOffset    int    `toml:"data_offset"`
	DataEndOffset int    `toml:"data_end_offset"`
}

type EngineCfg struct {
	JIT              bool   `toml:"jit"`
	Compare          bool   `toml:"compare"`
	InstructionLimit uint64 `toml:"instruction_limit"`
	Profile          string `toml:"profile"` // CSV of per-slot hits, interpreter only
}

// InputCfg is one invocation. Packet and Meta are hex strings; PacketFile
// takes precedence over Packet. Without Meta, metadata mode inputs get a
// MetaSize byte buffer holding the packet bounds.
type InputCfg struct {
	Name       string `toml:"name"`
	Packet     string `toml:"packet"`
	PacketFile string `toml:"packet_file"`
	Meta       string `toml:"meta"`
	MetaSize   int    `toml:"meta_size"`
}

// DefaultConfig interprets a single buffer program from the default section.
func DefaultConfig() *Config {
	return &Config{
		Program: ProgramCfg{Section: loader.DefaultSection},
		Memory:  MemoryCfg{Mode: string(vm.ModeBuffer)},
		Engine:  EngineCfg{InstructionLimit: bpf.DefaultInstructionLimit},
	}
}

// ParseConfig reads a TOML config over DefaultConfig.
func ParseConfig(filepath string) (*Config, error) {
	cfg := DefaultConfig()

	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	md, err := toml.NewDecoder(file).Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", filepath, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}

		return nil, fmt.Errorf("%w: unknown keys %s", ErrCfgInvalid, strings.Join(keys, ", "))
	}

	return cfg, nil
}

// Validate checks the config without touching the filesystem.
func (c *Config) Validate() error {
	sources := 0
	for _, s := range []string{c.Program.Object, c.Program.Bytecode, c.Program.Tag} {
		if s != "" {
			sources++
		}
	}

	if sources != 1 {
		return fmt.Errorf("%w: need exactly one of object, bytecode or tag, got %d", ErrCfgInvalid, sources)
	}

	if c.Program.Tag != "" && c.Program.Store == "" {
		return fmt.Errorf("%w: tag %s given without a store", ErrCfgInvalid, c.Program.Tag)
	}

	switch vm.Mode(c.Memory.Mode) {
	case vm.ModeBuffer, vm.ModeMetadata, vm.ModeFixedMetadata:
	default:
		return fmt.Errorf("%w: unknown memory mode %q", ErrCfgInvalid, c.Memory.Mode)
	}

	for i, in := range c.Inputs {
		if _, err := hex.DecodeString(in.Packet); err != nil {
			return fmt.Errorf("%w: input %d: packet: %w", ErrCfgInvalid, i, err)
		}

		if _, err := hex.DecodeString(in.Meta); err != nil {
			return fmt.Errorf("%w: input %d: meta: %w", ErrCfgInvalid, i, err)
		}
	}

	return nil
}

// VMConfig is the VM side of the config.
func (c *Config) VMConfig() *vm.Config {
	return &vm.Config{
		Mode:             vm.Mode(c.Memory.Mode),
		DataOffset:       c.Memory.DataOffset,
		DataEndOffset:    c.Memory.DataEndOffset,
		InstructionLimit: c.Engine.InstructionLimit,
		Profile:          c.Engine.Profile != "",
	}
}

// buffers returns the buffers an input is passed to the VM as.
func (in *InputCfg) buffers(mem *MemoryCfg) ([][]byte, error) {
	packet, err := hex.DecodeString(in.Packet)
	if err != nil {
		return nil, fmt.Errorf("failed to decode packet: %w", err)
	}

	if in.PacketFile != "" {
		packet, err = os.ReadFile(in.PacketFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read packet: %w", err)
		}
	}

	if vm.Mode(mem.Mode) != vm.ModeMetadata {
		return [][]byte{packet}, nil
	}

	meta, err := hex.DecodeString(in.Meta)
	if err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	if len(meta) == 0 {
		size := in.MetaSize
		if size == 0 {
			size = max(mem.DataOffset, mem.DataEndOffset) + 8
		}

		if size < max(mem.DataOffset, mem.DataEndOffset)+8 {
			return nil, fmt.Errorf("%w: meta_size %d too small for offsets", ErrCfgInvalid, size)
		}

		meta = make([]byte, size)
		bpf.PutPacketBounds(meta, mem.DataOffset, mem.DataEndOffset, len(packet))
	}

	return [][]byte{packet, meta}, nil
}
