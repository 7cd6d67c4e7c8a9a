package frontend

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/tcassar-diss/bpfvm/bpf"
	"github.com/tcassar-diss/bpfvm/bpf/vm"
)

type Engine string

const (
	EngineInterpreter Engine = "interpreter"
	EngineJIT         Engine = "jit"
)

// Result is the outcome of one input on one engine.
type Result struct {
	Input  string `json:"input"`
	Engine Engine `json:"engine"`
	Value  uint64 `json:"value"`
	Err    error  `json:"-"`
	Fault  string `json:"fault,omitempty"`
	PC     int    `json:"pc,omitempty"`
}

func newResult(engine Engine, value uint64, err error) *Result {
	r := &Result{Engine: engine, Value: value, Err: err}

	var execErr *bpf.ExecError
	if errors.As(err, &execErr) {
		r.Fault = execErr.Err.Error()
		r.PC = execErr.PC
	} else if err != nil {
		r.Fault = err.Error()
	}

	return r
}

// Agrees reports whether r and other returned the same value or failed at
// the same slot for the same reason.
func (r *Result) Agrees(other *Result) bool {
	if r.Err == nil || other.Err == nil {
		return r.Err == nil && other.Err == nil && r.Value == other.Value
	}

	return r.Fault == other.Fault && r.PC == other.PC
}

func (r *Result) String() string {
	if r.Err != nil {
		return r.Err.Error()
	}

	return fmt.Sprintf("%#x", r.Value)
}

// Report collects the results of a run.
type Report struct {
	Tag     string
	Results []*Result
	Stats   *vm.Stats
}

// Mismatches counts inputs on which the two engines disagreed.
func (r *Report) Mismatches() int {
	n := 0

	for i := 0; i+1 < len(r.Results); i++ {
		a, b := r.Results[i], r.Results[i+1]
		if a.Input != b.Input || a.Engine == b.Engine {
			continue
		}

		if !a.Agrees(b) {
			n++
		}

		i++
	}

	return n
}

// Write prints one line per result.
func (r *Report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)

	fmt.Fprintf(tw, "program %s\n", r.Tag)
	fmt.Fprintln(tw, "INPUT\tENGINE\tRESULT")

	for _, res := range r.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", res.Input, res.Engine, res)
	}

	return tw.Flush()
}
