// Package loader extracts BPF bytecode from compiled ELF objects and renders
// bytecode in the cilium/ebpf assembler syntax.
package loader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
)

// DefaultSection is where clang puts tc classifiers.
const DefaultSection = ".classifier"

var (
	ErrSectionNotFound = errors.New("no program in section")
	ErrAmbiguous       = errors.New("more than one program matches")
)

// LoadFile reads the ELF object at path and returns the bytecode of the
// program in section.
func LoadFile(path, section string) ([]byte, error) {
	spec, err := ebpf.LoadCollectionSpec(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", path, err)
	}

	return Bytecode(spec, section)
}

// LoadReader is LoadFile for an object already in memory.
func LoadReader(rd io.ReaderAt, section string) ([]byte, error) {
	spec, err := ebpf.LoadCollectionSpecFromReader(rd)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}

	return Bytecode(spec, section)
}

// Bytecode finds the program whose section or name is section and encodes
// it. The leading dot of the section name is optional.
func Bytecode(spec *ebpf.CollectionSpec, section string) ([]byte, error) {
	want := strings.TrimPrefix(section, ".")

	var found []*ebpf.ProgramSpec

	for _, p := range spec.Programs {
		if strings.TrimPrefix(p.SectionName, ".") == want || p.Name == section {
			found = append(found, p)
		}
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s (have %s)", ErrSectionNotFound, section, strings.Join(sections(spec), ", "))
	case 1:
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguous, section)
	}

	code, err := Marshal(found[0].Instructions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode program %s: %w", found[0].Name, err)
	}

	return code, nil
}

// Marshal encodes insns as little-endian bytecode.
func Marshal(insns asm.Instructions) ([]byte, error) {
	var buf bytes.Buffer

	if err := insns.Marshal(&buf, binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("failed to marshal instructions: %w", err)
	}

	return buf.Bytes(), nil
}

// Disassemble decodes little-endian bytecode and renders one instruction per
// line.
func Disassemble(code []byte) (string, error) {
	var insns asm.Instructions

	if err := insns.Unmarshal(bytes.NewReader(code), binary.LittleEndian); err != nil {
		return "", fmt.Errorf("failed to unmarshal bytecode: %w", err)
	}

	return fmt.Sprint(insns), nil
}

func sections(spec *ebpf.CollectionSpec) []string {
	var names []string
	for _, p := range spec.Programs {
		names = append(names, p.SectionName)
	}

	sort.Strings(names)

	return names
}
