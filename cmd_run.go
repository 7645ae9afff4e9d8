package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	arg "github.com/alexflint/go-arg"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ===========================================================================
// TRAINING CLI
// ===========================================================================
//
//   siamese run <output_folder> <model_name>
//
// Hyperparameters and paths come from the YAML config (SIAMESE_CONFIG or
// ./siamese.yaml); the two positionals only name where checkpoints go.
//
// Setup order: config → logger → device → input files (generated once when
// missing) → datasets → tokenizer → model → trainer.
// ===========================================================================

type runArgs struct {
	OutputFolder string `arg:"positional,required" help:"folder under the models root for this run's checkpoints"`
	ModelName    string `arg:"positional,required" help:"checkpoint file name prefix"`
}

func (runArgs) Description() string {
	return "Train a Siamese title-pair classifier and write one checkpoint per epoch."
}

// RunRunCommand implements "siamese run".
func RunRunCommand(args []string) error {
	var a runArgs
	parser, err := arg.NewParser(arg.Config{Program: "siamese run"}, &a)
	if err != nil {
		return err
	}
	if err := parser.Parse(args); err != nil {
		if err == arg.ErrHelp {
			parser.WriteHelp(os.Stdout)
			return nil
		}
		parser.WriteUsage(os.Stderr)
		return err
	}

	fs := afero.NewOsFs()
	cfg, err := LoadConfig(fs, configPath(fs))
	if err != nil {
		return err
	}
	cfg.OutputFolder = a.OutputFolder
	cfg.ModelName = a.ModelName
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := NewLogger(cfg.Log, newRunID())
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = runTraining(ctx, fs, cfg, generatorFor(cfg.Data), nil, logger)
	if err != nil {
		logger.Error("training failed", zap.Error(err))
	}
	return err
}

// runTraining performs a full training run. A nil probe reads host memory.
func runTraining(ctx context.Context, fs afero.Fs, cfg *Config, gen DataGenerator, probe MemoryProbe, logger *zap.Logger) ([]EpochSummary, error) {
	device, err := NewDevice(cfg.Device, probe)
	if err != nil {
		return nil, err
	}
	logger.Info("device", device.Describe()...)

	if err := EnsureData(ctx, fs, cfg.Data, gen, logger); err != nil {
		return nil, err
	}
	train, evals, err := LoadDatasets(fs, cfg)
	if err != nil {
		return nil, err
	}
	if len(train) == 0 {
		return nil, errors.Wrap(ErrMissingData, "training split is empty")
	}
	logger.Info("loaded datasets", zap.Int("train", len(train)), zap.Int("validation", len(evals[0].Pairs)), zap.Int("test_sets", len(evals)-1))

	enc, err := NewPairEncoder(fs, cfg, VocabPath(cfg.ModelsRoot, cfg.OutputFolder, cfg.ModelName), train, logger)
	if err != nil {
		return nil, err
	}
	model, err := BuildModel(fs, cfg, enc, logger)
	if err != nil {
		return nil, err
	}

	src := NewSliceBatcher(train, cfg.Train.BatchSize)
	trainer := NewTrainer(cfg, fs, model, device, src, evals, logger)
	return trainer.Run(ctx)
}
