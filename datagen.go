package main

import (
	"context"
	"os"
	"os/exec"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DataGenerator produces the input CSV files.
type DataGenerator interface {
	Generate(ctx context.Context) error
}

// CommandGenerator runs an external command, inheriting stdout and stderr.
type CommandGenerator struct {
	Argv []string
	Dir  string
}

// Generate runs the command to completion.
func (g CommandGenerator) Generate(ctx context.Context) error {
	if len(g.Argv) == 0 {
		return errors.New("empty generate command")
	}
	cmd := exec.CommandContext(ctx, g.Argv[0], g.Argv[1:]...)
	cmd.Dir = g.Dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "running %v", g.Argv)
	}
	return nil
}

func missingPaths(fs afero.Fs, paths []string) ([]string, error) {
	var missing []string
	for _, p := range paths {
		ok, err := afero.Exists(fs, p)
		if err != nil {
			return nil, errors.Wrapf(err, "checking %s", p)
		}
		if !ok {
			missing = append(missing, p)
		}
	}
	return missing, nil
}

// EnsureData invokes gen once if any input file is missing. A nil gen, a
// failed generation, or files still missing afterwards are all fatal.
func EnsureData(ctx context.Context, fs afero.Fs, cfg DataConfig, gen DataGenerator, logger *zap.Logger) error {
	missing, err := missingPaths(fs, dataPaths(cfg))
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}
	if gen == nil {
		return errors.Wrapf(ErrMissingData, "%v (no generate command configured)", missing)
	}

	logger.Info("input files missing, generating", zap.Strings("missing", missing))
	if err := gen.Generate(ctx); err != nil {
		return errors.Wrap(err, "generating data")
	}

	if missing, err = missingPaths(fs, dataPaths(cfg)); err != nil {
		return err
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrMissingData, "%v after generation", missing)
	}
	return nil
}

// generatorFor returns the configured generator, or nil when none is set.
func generatorFor(cfg DataConfig) DataGenerator {
	if len(cfg.GenerateCommand) == 0 {
		return nil
	}
	return CommandGenerator{Argv: cfg.GenerateCommand}
}
