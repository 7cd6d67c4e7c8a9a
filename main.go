package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/tcassar-diss/bpfvm/bpf"
	"github.com/tcassar-diss/bpfvm/bpf/jit"
	"github.com/tcassar-diss/bpfvm/bpf/loader"
	"github.com/tcassar-diss/bpfvm/bpf/progstore"
	"github.com/tcassar-diss/bpfvm/frontend"
)

func defaultStorePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}

	return filepath.Join(dir, "bpfvm", "programs.db")
}

func main() {
	if err := newApp().RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	var (
		configPath string
		flags      frontend.GlobalFlags
		override   frontend.Config
		native     bool
		cilium     bool
	)

	storeFlag := &cli.StringFlag{
		Name:        "store",
		Usage:       "program store database",
		Value:       defaultStorePath(),
		Destination: &override.Program.Store,
	}

	sectionFlag := &cli.StringFlag{
		Name:        "section",
		Usage:       "ELF section holding the program",
		Value:       loader.DefaultSection,
		Destination: &override.Program.Section,
	}

	return &cli.App{
		Name:  "bpfvm",
		Usage: "run eBPF programs in user space, interpreted or compiled to x86-64",
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "run a program over packets",
				ArgsUsage: "[packet files...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "config",
						Aliases:     []string{"c"},
						Usage:       "TOML config; flags below override it",
						Destination: &configPath,
					},
					&cli.StringFlag{
						Name:        "object",
						Usage:       "ELF object holding the program",
						Destination: &override.Program.Object,
					},
					&cli.StringFlag{
						Name:        "bytecode",
						Usage:       "raw little-endian bytecode file",
						Destination: &override.Program.Bytecode,
					},
					&cli.StringFlag{
						Name:        "tag",
						Usage:       "tag of a program in the store",
						Destination: &override.Program.Tag,
					},
					storeFlag,
					sectionFlag,
					&cli.StringFlag{
						Name:        "mode",
						Usage:       "memory mode: buffer, metadata or fixed-metadata",
						Destination: &override.Memory.Mode,
					},
					&cli.IntFlag{
						Name:        "data-offset",
						Usage:       "metadata offset of the packet start pointer",
						Destination: &override.Memory.DataOffset,
					},
					&cli.IntFlag{
						Name:        "data-end-offset",
						Usage:       "metadata offset of the packet end pointer",
						Destination: &override.Memory.DataEndOffset,
					},
					&cli.BoolFlag{
						Name:        "jit",
						Usage:       "run compiled code instead of the interpreter",
						Destination: &override.Engine.JIT,
					},
					&cli.BoolFlag{
						Name:        "compare",
						Usage:       "run both engines and fail if they disagree",
						Destination: &override.Engine.Compare,
					},
					&cli.StringFlag{
						Name:        "profile",
						Usage:       "write per-slot execution counts of interpreted runs to this CSV file",
						Destination: &override.Engine.Profile,
					},
					&cli.BoolFlag{
						Name:        "verbose",
						Aliases:     []string{"v"},
						Usage:       "log VM statistics when done",
						Destination: &flags.Verbose,
					},
				},
				Action: func(cCtx *cli.Context) error {
					cfg, err := buildConfig(cCtx, configPath, &override)
					if err != nil {
						return cli.Exit(fmt.Sprintf("ERROR: %v", err), 1)
					}

					ctx, cancel := signal.NotifyContext(cCtx.Context, os.Interrupt)
					defer cancel()

					if err := frontend.RunBPFVM(ctx, &frontend.RunCfg{
						Config:  cfg,
						Options: &flags,
						Out:     os.Stdout,
					}); err != nil {
						return cli.Exit(fmt.Sprintf("bpfvm failed: %v", err), 2)
					}

					return nil
				},
			},
			{
				Name:      "disasm",
				Usage:     "disassemble a bytecode file, or an ELF object with --object",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "object", Usage: "the file is an ELF object"},
					sectionFlag,
					&cli.BoolFlag{
						Name:        "native",
						Usage:       "print the x86-64 code the JIT emits",
						Destination: &native,
					},
					&cli.BoolFlag{
						Name:        "cilium",
						Usage:       "print the program in cilium/ebpf assembler syntax",
						Destination: &cilium,
					},
				},
				Action: func(cCtx *cli.Context) error {
					if nArgs := cCtx.Args().Len(); nArgs != 1 {
						_ = cli.ShowSubcommandHelp(cCtx)

						return cli.Exit(fmt.Sprintf("\nERROR: expected 1 argument, got %d", nArgs), 1)
					}

					code, err := readProgram(cCtx.Args().First(), cCtx.Bool("object"), override.Program.Section)
					if err != nil {
						return cli.Exit(fmt.Sprintf("ERROR: %v", err), 1)
					}

					out, err := disassemble(code, native, cilium)
					if err != nil {
						return cli.Exit(fmt.Sprintf("ERROR: %v", err), 2)
					}

					fmt.Print(out)

					return nil
				},
			},
			{
				Name:  "store",
				Usage: "manage the program store",
				Subcommands: []*cli.Command{
					{
						Name:      "put",
						Usage:     "validate and store a program",
						ArgsUsage: "<name> <file>",
						Flags: []cli.Flag{
							storeFlag,
							sectionFlag,
							&cli.BoolFlag{Name: "object", Usage: "the file is an ELF object"},
						},
						Action: func(cCtx *cli.Context) error {
							if nArgs := cCtx.Args().Len(); nArgs != 2 {
								_ = cli.ShowSubcommandHelp(cCtx)

								return cli.Exit(fmt.Sprintf("\nERROR: expected 2 arguments, got %d", nArgs), 1)
							}

							code, err := readProgram(cCtx.Args().Get(1), cCtx.Bool("object"), override.Program.Section)
							if err != nil {
								return cli.Exit(fmt.Sprintf("ERROR: %v", err), 1)
							}

							return withStore(override.Program.Store, func(s *progstore.Store) error {
								entry, err := s.Put(cCtx.Args().First(), code)
								if err != nil {
									return err
								}

								fmt.Println(entry.Tag)

								return nil
							})
						},
					},
					{
						Name:  "list",
						Usage: "list stored programs",
						Flags: []cli.Flag{storeFlag},
						Action: func(cCtx *cli.Context) error {
							return withStore(override.Program.Store, func(s *progstore.Store) error {
								entries, err := s.List()
								if err != nil {
									return err
								}

								tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
								fmt.Fprintln(tw, "TAG\tNAME\tBYTES\tSTORED")

								for _, e := range entries {
									fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", e.Tag, e.Name, e.Size, e.Stored.Format("2006-01-02 15:04:05"))
								}

								return tw.Flush()
							})
						},
					},
					{
						Name:      "delete",
						Usage:     "remove a stored program",
						ArgsUsage: "<tag>",
						Flags:     []cli.Flag{storeFlag},
						Action: func(cCtx *cli.Context) error {
							if nArgs := cCtx.Args().Len(); nArgs != 1 {
								_ = cli.ShowSubcommandHelp(cCtx)

								return cli.Exit(fmt.Sprintf("\nERROR: expected 1 argument, got %d", nArgs), 1)
							}

							return withStore(override.Program.Store, func(s *progstore.Store) error {
								return s.Delete(cCtx.Args().First())
							})
						},
					},
				},
			},
		},
	}
}

// buildConfig reads the config file, if any, and applies the flags the user
// set on top of it. Positional arguments become packet file inputs.
func buildConfig(cCtx *cli.Context, path string, override *frontend.Config) (*frontend.Config, error) {
	cfg := frontend.DefaultConfig()

	if path != "" {
		var err error

		cfg, err = frontend.ParseConfig(path)
		if err != nil {
			return nil, err
		}
	}

	if cCtx.IsSet("object") || cCtx.IsSet("bytecode") || cCtx.IsSet("tag") {
		cfg.Program.Object = override.Program.Object
		cfg.Program.Bytecode = override.Program.Bytecode
		cfg.Program.Tag = override.Program.Tag
	}

	if cCtx.IsSet("section") || cfg.Program.Section == "" {
		cfg.Program.Section = override.Program.Section
	}

	if cCtx.IsSet("store") || cfg.Program.Store == "" {
		cfg.Program.Store = override.Program.Store
	}

	if cCtx.IsSet("mode") {
		cfg.Memory.Mode = override.Memory.Mode
	}

	if cCtx.IsSet("profile") {
		cfg.Engine.Profile = override.Engine.Profile
	}

	if cCtx.IsSet("data-offset") {
		cfg.Memory.DataOffset = override.Memory.DataOffset
	}

	if cCtx.IsSet("data-end-offset") {
		cfg.Memory.DataEndOffset = override.Memory.DataEndOffset
	}

	cfg.Engine.JIT = cfg.Engine.JIT || override.Engine.JIT
	cfg.Engine.Compare = cfg.Engine.Compare || override.Engine.Compare

	for _, path := range cCtx.Args().Slice() {
		cfg.Inputs = append(cfg.Inputs, frontend.InputCfg{
			Name:       filepath.Base(path),
			PacketFile: path,
		})
	}

	if len(cfg.Inputs) == 0 {
		return nil, fmt.Errorf("no inputs: pass packet files or [[input]] tables in the config")
	}

	return cfg, nil
}

func readProgram(path string, object bool, section string) ([]byte, error) {
	if object {
		return loader.LoadFile(path, section)
	}

	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return code, nil
}

func disassemble(code []byte, native, cilium bool) (string, error) {
	if cilium {
		return loader.Disassemble(code)
	}

	if !native {
		p, err := bpf.Decode(code)
		if err != nil {
			return "", err
		}

		return p.String(), nil
	}

	p, err := bpf.Load(code)
	if err != nil {
		return "", err
	}

	return jit.Listing(p)
}

func withStore(path string, fn func(*progstore.Store) error) error {
	s, err := progstore.Open(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("ERROR: %v", err), 1)
	}
	defer s.Close()

	if err := fn(s); err != nil {
		return cli.Exit(fmt.Sprintf("ERROR: %v", err), 2)
	}

	return nil
}
