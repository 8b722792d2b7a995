// Package main provides the modelio CLI for inspecting model directories.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/logging/gologger"
)

const version = "v0.1.0-dev"

var logCfg = gologger.LoggerConfig{
	Out: os.Stderr,
}

func application(cfg config) *cli.Application {
	return &cli.Application{
		Name:  "modelio",
		Title: "Inspect model directories: inference programs and variable files.",
		Context: func(ctx context.Context) context.Context {
			return logging.SetLevel(logCfg.Use(ctx), cfg.level)
		},
		Commands: []*subcommands.Command{
			cmdInspect(cfg),
			cmdVars(cfg),
			cmdVersion(),

			subcommands.CmdHelp,
		},
	}
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "modelio: %s\n", err)
		os.Exit(1)
	}
	os.Exit(subcommands.Run(application(cfg), nil))
}

func errToCode(a subcommands.Application, err error) int {
	if err != nil {
		fmt.Fprintf(a.GetErr(), "%s: %s\n", a.GetName(), err)
		return 1
	}
	return 0
}

func cmdVersion() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "version",
		ShortDesc: "print the version",
		LongDesc:  "Print the modelio version.",
		CommandRun: func() subcommands.CommandRun {
			return &versionRun{}
		},
	}
}

type versionRun struct {
	subcommands.CommandRunBase
}

func (r *versionRun) Run(a subcommands.Application, _ []string, _ subcommands.Env) int {
	fmt.Fprintf(a.GetOut(), "modelio %s\n", version)
	return 0
}
