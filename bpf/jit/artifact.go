// Package jit compiles validated BPF programs into x86-64 machine code.
//
// Compiled code keeps the BPF register file in memory, addressed off rbx, and
// never calls back into Go. Helper calls and faults are reported by storing a
// status code and returning to the driver loop in Artifact.Run, which runs the
// helper and re-enters the code at the recorded resume offset.
package jit

import (
	"fmt"
	"runtime"
	"strings"
	"unsafe"

	"golang.org/x/arch/x86/x86asm"

	"github.com/tcassar-diss/bpfvm/bpf"
)

// Artifact is compiled code in an executable mapping. It is immutable and may
// be run concurrently; Close must not race with Run.
type Artifact struct {
	code    []byte
	offsets []int
	labels  [numLabels]int
	resumes []int
}

// Compile translates p and maps the result executable.
func Compile(p *bpf.Program) (*Artifact, error) {
	t, err := translate(p)
	if err != nil {
		return nil, err
	}

	code, err := mapExecutable(t.code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bpf.ErrCompile, err)
	}

	return &Artifact{
		code:    code,
		offsets: t.offsets,
		labels:  t.labels,
		resumes: t.resumes,
	}, nil
}

// Size returns the number of bytes of machine code.
func (a *Artifact) Size() int { return len(a.code) }

// Offset returns where slot pc starts in the machine code, or -1 for the
// second slot of an lddw.
func (a *Artifact) Offset(pc int) int { return a.offsets[pc] }

// Run executes the compiled program against mem and returns r0. Helpers are
// looked up in helpers when a call executes, so a missing helper is only an
// error if the call is reached.
func (a *Artifact) Run(mem bpf.Memory, helpers *bpf.HelperRegistry) (uint64, error) {
	st := newMachineState(mem)
	defer runtime.KeepAlive(st)

	entry := 0

	for {
		st.status = statusNone
		jitcall(unsafe.Pointer(&a.code[entry]), unsafe.Pointer(st))

		pc := int(st.faultPC)

		switch st.status {
		case statusExit:
			return st.regs[0], nil
		case statusCallHelper:
			fn, ok := helpers.Lookup(uint32(st.helper))
			if !ok {
				return 0, bpf.Fault(bpf.ErrUnknownHelper, pc)
			}

			r := &st.regs
			r[0] = fn(r[1], r[2], r[3], r[4], r[5])
			entry = int(st.resume)
		case statusOutOfBounds:
			return 0, bpf.Fault(bpf.ErrOutOfBounds, pc)
		case statusDivideByZero:
			return 0, bpf.Fault(bpf.ErrDivisionByZero, pc)
		default:
			return 0, fmt.Errorf("%w: native code returned unknown status %d", bpf.ErrIllegalOpcode, st.status)
		}
	}
}

// Close unmaps the code.
func (a *Artifact) Close() error {
	if a.code == nil {
		return nil
	}

	err := unmapExecutable(a.code)
	a.code = nil

	return err
}

// Disassemble renders the artifact's machine code.
func (a *Artifact) Disassemble() string {
	return disassemble(&translation{
		code:    a.code,
		offsets: a.offsets,
		labels:  a.labels,
		resumes: a.resumes,
	})
}

// Listing translates p without mapping it and disassembles the result. It
// works on every platform.
func Listing(p *bpf.Program) (string, error) {
	t, err := translate(p)
	if err != nil {
		return "", err
	}

	return disassemble(t), nil
}

func disassemble(t *translation) string {
	marks := make(map[int]string)

	for pc, off := range t.offsets {
		if off >= 0 {
			marks[off] = fmt.Sprintf("slot %d", pc)
		}
	}

	marks[t.labels[labelEpilogue]] = "exit"
	marks[t.labels[labelOutOfBounds]] = "out of bounds"
	marks[t.labels[labelDivideByZero]] = "divide by zero"

	for _, off := range t.resumes {
		marks[off] = strings.TrimPrefix(marks[off]+", resume", ", ")
	}

	var sb strings.Builder

	for off := 0; off < len(t.code); {
		if mark, ok := marks[off]; ok {
			fmt.Fprintf(&sb, "; %s\n", mark)
		}

		inst, err := x86asm.Decode(t.code[off:], 64)
		if err != nil {
			fmt.Fprintf(&sb, "%6x: .byte %#02x\n", off, t.code[off])
			off++

			continue
		}

		fmt.Fprintf(&sb, "%6x: %s\n", off, x86asm.IntelSyntax(inst, uint64(off), nil))
		off += inst.Len
	}

	return sb.String()
}
