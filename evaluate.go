package main

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// EvalResult summarizes one pass over an evaluation set.
type EvalResult struct {
	Name      string
	Confusion Confusion
	Processed int
	Skipped   int
	// MeanLoss averages over processed batches.
	MeanLoss float64
}

// Evaluator runs the model forward over held-out sets without touching its
// parameters.
type Evaluator struct {
	model     Model
	loss      LossFunc
	device    *Device
	batchSize int
	period    int
	logger    *zap.Logger
}

// NewEvaluator returns an evaluator batching by cfg.ValBatchSize. device may
// be nil, in which case no batch is refused up front.
func NewEvaluator(model Model, cfg TrainConfig, device *Device, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		model:     model,
		loss:      CrossEntropyLoss,
		device:    device,
		batchSize: cfg.ValBatchSize,
		period:    cfg.Period,
		logger:    logger,
	}
}

// Evaluate runs one evaluation pass over ds. Every batch logs its loss,
// accuracy, running averages and batch precision/recall/F1; the summary line
// reports precision/recall/F1 over the confusion counts of the whole pass.
func (e *Evaluator) Evaluate(ctx context.Context, ds NamedDataset) (EvalResult, error) {
	res := EvalResult{Name: ds.Name}
	logger := e.logger.With(zap.String("dataset", ds.Name))
	running := NewRunningMetrics(e.period)
	src := NewSliceBatcher(ds.Pairs, e.batchSize)

	var guard MemoryGuard
	if e.device != nil {
		guard = e.device
	}

	lossSum := 0.0
	for batchIdx := 1; ; batchIdx++ {
		if err := ctx.Err(); err != nil {
			return res, errors.Wrapf(err, "evaluating %s", ds.Name)
		}
		pairs, ok := src.Next()
		if !ok {
			break
		}

		labels := Labels(pairs)
		step, err := ForwardProp(pairs, labels, e.model, e.loss, EvalMode, guard)
		if isResourceExhausted(err) {
			logger.Warn("skipping batch",
				zap.Int("batch", batchIdx),
				zap.Int("size", len(pairs)),
				zap.Stringer("status", SkippedResourceExhausted),
				zap.Error(err))
			if e.device != nil {
				e.device.Reclaim()
			}
			res.Skipped++
			continue
		}
		if err != nil {
			return res, errors.Wrapf(err, "%s batch %d", ds.Name, batchIdx)
		}

		batch := NewConfusion(labels, step.Predictions)
		res.Confusion.Merge(batch)
		res.Processed++
		lossSum += step.Loss

		acc := step.Accuracy(labels)
		runningLoss, runningAcc, _ := running.Add(step.Loss, acc)
		logger.Info("evaluation batch",
			zap.Int("batch", batchIdx),
			zap.Float64("loss", step.Loss),
			zap.Float64("accuracy", acc),
			zap.Float64("running_loss", runningLoss),
			zap.Float64("running_accuracy", runningAcc),
			zap.Float64("precision", batch.Precision()),
			zap.Float64("recall", batch.Recall()),
			zap.Float64("f1", batch.F1()))
	}

	res.MeanLoss = ratio(lossSum, float64(res.Processed))
	c := res.Confusion
	logger.Info("evaluation summary",
		zap.Float64("precision", c.Precision()),
		zap.Float64("recall", c.Recall()),
		zap.Float64("f1", c.F1()),
		zap.Float64("accuracy", c.Accuracy()),
		zap.Float64("mean_loss", res.MeanLoss),
		zap.Int("tp", c.TP),
		zap.Int("fp", c.FP),
		zap.Int("fn", c.FN),
		zap.Int("tn", c.TN),
		zap.Int("skipped_batches", res.Skipped))
	return res, nil
}

// EvaluateAll runs Evaluate over every set in order.
func (e *Evaluator) EvaluateAll(ctx context.Context, sets []NamedDataset) ([]EvalResult, error) {
	results := make([]EvalResult, 0, len(sets))
	for _, ds := range sets {
		r, err := e.Evaluate(ctx, ds)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}
