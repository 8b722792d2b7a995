package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/logging"
)

// config holds defaults read from the environment.
type config struct {
	Dir          string `env:"MODELIO_DIR" envDefault:"."`
	SkipChecksum bool   `env:"MODELIO_SKIP_CHECKSUM" envDefault:"false"`
	LogLevel     string `env:"MODELIO_LOG_LEVEL" envDefault:"info"`

	level logging.Level
}

func loadConfig() (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.level.Set(cfg.LogLevel); err != nil {
		return config{}, fmt.Errorf("MODELIO_LOG_LEVEL: %w", err)
	}
	return cfg, nil
}

// baseRun carries the flags shared by commands that read a model directory.
type baseRun struct {
	subcommands.CommandRunBase
	cfg          config
	skipChecksum bool
}

func (r *baseRun) init(cfg config) {
	r.cfg = cfg
	r.Flags.BoolVar(&r.skipChecksum, "skip-checksum", cfg.SkipChecksum,
		"Skip SHA-256 validation of variable files. Defaults to $MODELIO_SKIP_CHECKSUM.")
}

// dir returns the model directory named by args, or the configured default.
func (r *baseRun) dir(args []string) (string, error) {
	switch len(args) {
	case 0:
		return r.cfg.Dir, nil
	case 1:
		return args[0], nil
	default:
		return "", fmt.Errorf("expected at most one model directory, got %d arguments", len(args))
	}
}
