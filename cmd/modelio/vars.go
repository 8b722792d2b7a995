package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/logging"

	"github.com/born-ml/modelio/internal/persist"
	"github.com/born-ml/modelio/internal/serialization"
)

func cmdVars(cfg config) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "vars [options] [dir]",
		ShortDesc: "list the variable files in a model directory",
		LongDesc: `List every variable file in dir with its data type, shape and size.

Only headers are read unless -verify is given, in which case each file is
read in full and its checksum checked. Without -verify unreadable files are
logged and skipped; with it the first one fails the command.`,
		CommandRun: func() subcommands.CommandRun {
			r := &varsRun{}
			r.init(cfg)
			r.Flags.BoolVar(&r.verify, "verify", false, "Read each file in full and validate it.")
			return r
		},
	}
}

type varsRun struct {
	baseRun
	verify bool
}

func (r *varsRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	dir, err := r.dir(args)
	if err != nil {
		return errToCode(a, err)
	}
	return errToCode(a, r.list(ctx, a.GetOut(), dir))
}

func (r *varsRun) list(ctx context.Context, out io.Writer, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDTYPE\tSHAPE\tBYTES\tLOD")
	bad := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || e.Name() == persist.ModelFileName {
			continue
		}
		path := filepath.Join(dir, e.Name())
		h, err := r.header(path)
		switch {
		case err != nil && r.verify:
			if ferr := tw.Flush(); ferr != nil {
				return ferr
			}
			return fmt.Errorf("invalid variable file: %w", err)
		case err != nil:
			logging.Warningf(ctx, "%s: %s", path, err)
			bad++
			continue
		}
		meta := h.Tensors[0]
		fmt.Fprintf(tw, "%s\t%s\t%v\t%d\t%s\n", meta.Name, meta.DType, meta.Shape, meta.Size, h.Metadata[serialization.MetaLoDLevel])
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if bad > 0 {
		logging.Warningf(ctx, "%d of the files in %s are not valid variable files", bad, dir)
	}
	return nil
}

func (r *varsRun) header(path string) (*serialization.Header, error) {
	if !r.verify {
		return serialization.ReadHeaderFile(path)
	}
	f, err := serialization.ReadTensorFile(path, serialization.ReaderOptions{SkipChecksumValidation: r.skipChecksum})
	if err != nil {
		return nil, err
	}
	return &f.Header, nil
}
