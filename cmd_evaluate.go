package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	arg "github.com/alexflint/go-arg"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type evaluateArgs struct {
	Checkpoint string `arg:"positional,required" help:"checkpoint written by siamese run"`
}

func (evaluateArgs) Description() string {
	return "Evaluate a saved checkpoint on the configured test sets."
}

// RunEvaluateCommand implements "siamese evaluate".
func RunEvaluateCommand(args []string) error {
	var a evaluateArgs
	parser, err := arg.NewParser(arg.Config{Program: "siamese evaluate"}, &a)
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
	logger, err := NewLogger(cfg.Log, newRunID())
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = evaluateCheckpoint(ctx, fs, cfg, a.Checkpoint, generatorFor(cfg.Data), nil, logger)
	if err != nil {
		logger.Error("evaluation failed", zap.Error(err))
	}
	return err
}

// checkpointVocabPath maps <dir>/<model>_epoch<N>.ckpt to the vocabulary
// saved next to it.
func checkpointVocabPath(path string) string {
	dir, base := filepath.Split(path)
	model := strings.TrimSuffix(base, CheckpointExt)
	if i := strings.LastIndex(model, "_epoch"); i >= 0 {
		model = model[:i]
	}
	return VocabPath(dir, "", model)
}

// evaluateCheckpoint restores the model stored at path and evaluates it on
// every configured test set. The architecture and model settings come from
// the checkpoint, not from cfg.
func evaluateCheckpoint(ctx context.Context, fs afero.Fs, cfg *Config, path string, gen DataGenerator, probe MemoryProbe, logger *zap.Logger) ([]EvalResult, error) {
	ckpt, err := LoadCheckpoint(fs, path)
	if err != nil {
		return nil, err
	}
	arch, err := ParseArchitecture(ckpt.Header.Architecture)
	if err != nil {
		return nil, err
	}
	cfg.Architecture = arch
	cfg.Model = ckpt.Header.Model
	cfg.Model.Pretrained = ""
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Info("loaded checkpoint",
		zap.String("path", path),
		zap.Stringer("architecture", arch),
		zap.Int("epoch", ckpt.Header.Epoch))

	device, err := NewDevice(cfg.Device, probe)
	if err != nil {
		return nil, err
	}
	if err := EnsureData(ctx, fs, cfg.Data, gen, logger); err != nil {
		return nil, err
	}
	_, evals, err := LoadDatasets(fs, cfg)
	if err != nil {
		return nil, err
	}

	vocab := checkpointVocabPath(path)
	if arch.Spec(cfg.Model).Encoder == SubwordEncoder {
		if ok, _ := afero.Exists(fs, vocab); !ok {
			return nil, errors.Errorf("vocabulary %s not found for %s", vocab, path)
		}
	}
	enc, err := NewPairEncoder(fs, cfg, vocab, nil, logger)
	if err != nil {
		return nil, err
	}
	model, err := NewSiameseModel(arch, cfg.Model, enc)
	if err != nil {
		return nil, err
	}
	if err := ckpt.Restore(model); err != nil {
		return nil, err
	}

	evaluator := NewEvaluator(model, cfg.Train, device, logger)
	return evaluator.EvaluateAll(ctx, evals[1:])
}
