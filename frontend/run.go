package frontend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tcassar-diss/bpfvm/bpf"
	"github.com/tcassar-diss/bpfvm/bpf/loader"
	"github.com/tcassar-diss/bpfvm/bpf/progstore"
	"github.com/tcassar-diss/bpfvm/bpf/vm"
)

// ErrMismatch is returned when the interpreter and the JIT disagree.
var ErrMismatch = errors.New("interpreter and jit disagree")

type GlobalFlags struct {
	Verbose bool // log VM stats when done
}

type RunCfg struct {
	Config  *Config
	Options *GlobalFlags
	Out     io.Writer
}

// RunBPFVM is the CLI entry point: it runs every input, prints the report to
// cfg.Out and fails if the engines disagreed on any input.
func RunBPFVM(ctx context.Context, cfg *RunCfg) error {
	logger, err := initLogger()
	if err != nil {
		return fmt.Errorf("failed to get a logger: %w", err)
	}
	defer logger.Sync()

	report, err := Run(ctx, logger, cfg.Config)
	if err != nil {
		return err
	}

	if err := report.Write(cfg.Out); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if cfg.Options.Verbose {
		logStats(logger, report.Stats)
	}

	if n := report.Mismatches(); n > 0 {
		return fmt.Errorf("%w on %d input(s)", ErrMismatch, n)
	}

	return nil
}

func initLogger() (*zap.SugaredLogger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to get production zap logger: %w", err)
	}

	return l.Sugar(), nil
}

// Run loads the configured program and runs it over every input. With
// compare set, each input goes through the interpreter and the JIT
// concurrently and both results are reported.
func Run(ctx context.Context, logger *zap.SugaredLogger, cfg *Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	code, err := LoadProgram(cfg.Program)
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}

	v, err := vm.New(logger, code, cfg.VMConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create vm: %w", err)
	}
	defer v.Close()

	bpf.RegisterDefaultHelpers(v.Helpers(), logger)

	if cfg.Engine.JIT || cfg.Engine.Compare {
		if err := v.Compile(); err != nil {
			return nil, fmt.Errorf("failed to compile: %w", err)
		}
	}

	report := &Report{Tag: v.Program().Tag()}

	for i, in := range cfg.Inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := in.Name
		if name == "" {
			name = fmt.Sprintf("input-%d", i)
		}

		buffers, err := in.buffers(&cfg.Memory)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare %s: %w", name, err)
		}

		results, err := runInput(ctx, v, &cfg.Engine, buffers)
		if err != nil {
			return nil, fmt.Errorf("failed to run %s: %w", name, err)
		}

		for _, r := range results {
			r.Input = name
		}

		if len(results) == 2 && !results[0].Agrees(results[1]) {
			logger.Warnw("engines disagree",
				"input", name,
				"interpreter", results[0].String(),
				"jit", results[1].String(),
			)
		}

		report.Results = append(report.Results, results...)
	}

	report.Stats = v.Stats()

	if prof := v.Profile(); prof != nil {
		if err := writeProfile(cfg.Engine.Profile, prof); err != nil {
			return nil, err
		}

		logger.Infow("wrote profile", "path", cfg.Engine.Profile, "runs", prof.Runs())
	}

	return report, nil
}

func writeProfile(path string, prof *bpf.Profile) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create an output file for profiler data: %w", err)
	}
	defer f.Close()

	if err := prof.WriteCSV(f); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}

	return nil
}

// runInput runs one input on the selected engines. Each engine gets its own
// copy of the buffers since programs may write to them.
func runInput(ctx context.Context, v *vm.VM, engine *EngineCfg, buffers [][]byte) ([]*Result, error) {
	switch {
	case engine.Compare:
	case engine.JIT:
		ret, err := v.ExecuteCompiled(copyBuffers(buffers)...)
		return []*Result{newResult(EngineJIT, ret, err)}, nil
	default:
		ret, err := v.Execute(copyBuffers(buffers)...)
		return []*Result{newResult(EngineInterpreter, ret, err)}, nil
	}

	results := make([]*Result, 2)

	eg, _ := errgroup.WithContext(ctx)

	eg.Go(func() error {
		ret, err := v.Execute(copyBuffers(buffers)...)
		results[0] = newResult(EngineInterpreter, ret, err)

		return nil
	})

	eg.Go(func() error {
		ret, err := v.ExecuteCompiled(copyBuffers(buffers)...)
		if errors.Is(err, vm.ErrNotCompiled) {
			return err
		}

		results[1] = newResult(EngineJIT, ret, err)

		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func copyBuffers(buffers [][]byte) [][]byte {
	out := make([][]byte, len(buffers))
	for i, b := range buffers {
		out[i] = append([]byte(nil), b...)
	}

	return out
}

// LoadProgram fetches the bytecode cfg points at.
func LoadProgram(cfg ProgramCfg) ([]byte, error) {
	switch {
	case cfg.Object != "":
		section := cfg.Section
		if section == "" {
			section = loader.DefaultSection
		}

		return loader.LoadFile(cfg.Object, section)
	case cfg.Bytecode != "":
		code, err := os.ReadFile(cfg.Bytecode)
		if err != nil {
			return nil, fmt.Errorf("failed to read bytecode: %w", err)
		}

		return code, nil
	default:
		store, err := progstore.Open(cfg.Store)
		if err != nil {
			return nil, err
		}
		defer store.Close()

		return store.Get(cfg.Tag)
	}
}

func logStats(logger *zap.SugaredLogger, stats *vm.Stats) {
	bts, err := json.Marshal(stats)
	if err != nil {
		logger.Warnw("failed to marshal stats", "err", err)
		return
	}

	logger.Infoln(string(bts))
}
