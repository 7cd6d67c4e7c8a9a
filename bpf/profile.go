package bpf

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"
)

// Profile counts how often each slot of a program executed, summed over
// every interpreted run it is passed to. It is safe for concurrent use.
//
// The JIT does not count; only Interpreter.RunProfiled feeds a Profile.
type Profile struct {
	mu   sync.Mutex
	prog *Program
	hits []uint64
	runs uint64
}

func NewProfile(p *Program) *Profile {
	return &Profile{
		prog: p,
		hits: make([]uint64, p.Len()),
	}
}

func (p *Profile) merge(hits []uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, h := range hits {
		p.hits[i] += h
	}

	p.runs++
}

// Hits returns a copy of the per-slot counts.
func (p *Profile) Hits() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]uint64(nil), p.hits...)
}

// Runs returns the number of runs merged so far.
func (p *Profile) Runs() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.runs
}

// WriteCSV writes one row per executable slot: pc, instruction, hits.
func (p *Profile) WriteCSV(w io.Writer) error {
	out := csv.NewWriter(w)

	if err := out.Write([]string{"pc", "instruction", "hits"}); err != nil {
		return fmt.Errorf("failed to write profile header: %w", err)
	}

	for pc, h := range p.Hits() {
		ins := p.prog.At(pc)
		if ins.Tail {
			continue
		}

		if err := out.Write([]string{strconv.Itoa(pc), ins.String(), strconv.FormatUint(h, 10)}); err != nil {
			return fmt.Errorf("failed to write profile row: %w", err)
		}
	}

	out.Flush()

	return out.Error()
}
