package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"

	"github.com/born-ml/modelio/internal/executor"
	"github.com/born-ml/modelio/internal/framework"
	"github.com/born-ml/modelio/internal/persist"
)

func cmdInspect(cfg config) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "inspect [options] [dir]",
		ShortDesc: "describe the inference program in a model directory",
		LongDesc: `Describe the inference program stored in dir/__model__.

Prints the program fingerprint, the feed and fetch targets, the operators
of the global block and its persistable variables. With -load, every
persistable variable is also loaded through the executor to check that
the directory is complete.`,
		CommandRun: func() subcommands.CommandRun {
			r := &inspectRun{}
			r.init(cfg)
			r.Flags.BoolVar(&r.load, "load", false, "Load the model's persistable variables.")
			return r
		},
	}
}

type inspectRun struct {
	baseRun
	load bool
}

func (r *inspectRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	dir, err := r.dir(args)
	if err != nil {
		return errToCode(a, err)
	}
	return errToCode(a, r.inspect(ctx, a.GetOut(), dir))
}

func (r *inspectRun) inspect(ctx context.Context, out io.Writer, dir string) error {
	var (
		program *framework.Program
		err     error
	)
	if r.load {
		exe := executor.NewCPUExecutor(nil, executor.Config{SkipChecksumValidation: r.skipChecksum})
		model, err := persist.LoadInferenceModel(ctx, dir, exe)
		if err != nil {
			return err
		}
		program = model.Program
		defer fmt.Fprintf(out, "loaded %d variables\n", len(exe.Scope().Names()))
	} else {
		program, err = readProgram(dir)
		if err != nil {
			return err
		}
	}

	fp, err := program.Fingerprint()
	if err != nil {
		return err
	}
	gb := program.GlobalBlock()
	fmt.Fprintf(out, "model:       %s\n", filepath.Join(dir, persist.ModelFileName))
	fmt.Fprintf(out, "fingerprint: %016x\n", fp)
	fmt.Fprintf(out, "blocks:      %d\n", program.NumBlocks())
	fmt.Fprintf(out, "feed:        %v\n", persist.GetFeedTargetNames(program))
	fmt.Fprintf(out, "fetch:       %v\n", persist.GetFetchTargetNames(program))

	fmt.Fprintf(out, "\nops (%d):\n", gb.NumOps())
	for i, op := range gb.Ops() {
		fmt.Fprintf(out, "  %3d  %s\n", i, op)
	}

	fmt.Fprintln(out, "\npersistable variables:")
	for _, v := range gb.Vars() {
		if persist.IsPersistable(v) {
			fmt.Fprintf(out, "  %s\n", v)
		}
	}
	return nil
}

func readProgram(dir string) (*framework.Program, error) {
	path := filepath.Join(dir, persist.ModelFileName)
	//nolint:gosec // G304: reading the model file of a user-chosen directory
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	program, err := framework.ParseProgram(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return program, nil
}
