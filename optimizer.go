package main

import (
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// Optimizer applies clipped Adam updates to a ParamSet.
//
// Update rule (gorgonia's AdamSolver):
//   m_t = beta1 * m_{t-1} + (1 - beta1) * grad
//   v_t = beta2 * v_{t-1} + (1 - beta2) * grad²
//   param -= lr * m_hat / (sqrt(v_hat) + epsilon)
//
// Before each step the gradients are rescaled so their global L2 norm is at
// most clipNorm.
type Optimizer struct {
	params   *ParamSet
	solver   *gorgonia.AdamSolver
	clipNorm float64
	steps    int
}

// NewOptimizer creates an Adam optimizer with a fixed learning rate and
// optional L2 weight decay.
func NewOptimizer(params *ParamSet, cfg TrainConfig) *Optimizer {
	opts := []gorgonia.SolverOpt{gorgonia.WithLearnRate(cfg.LearningRate)}
	if cfg.WeightDecay > 0 {
		opts = append(opts, gorgonia.WithL2Reg(cfg.WeightDecay))
	}
	return &Optimizer{
		params:   params,
		solver:   gorgonia.NewAdamSolver(opts...),
		clipNorm: cfg.ClipNorm,
	}
}

// ZeroGrad clears all gradients.
func (o *Optimizer) ZeroGrad() {
	o.params.ZeroGrad()
}

// Step clips the gradients and updates the parameters in place. It returns
// the gradient norm before clipping.
func (o *Optimizer) Step() (float64, error) {
	norm := clipGradients(o.params.All(), o.clipNorm)
	if err := o.solver.Step(o.params.ValueGrads()); err != nil {
		return norm, errors.Wrap(err, "optimizer step")
	}
	o.steps++
	return norm, nil
}

// Steps is the number of updates applied so far.
func (o *Optimizer) Steps() int { return o.steps }

// clipGradients clips gradients by global norm and returns the norm before
// clipping.
func clipGradients(params []*Param, maxNorm float64) float64 {
	globalNorm := 0.0
	for _, p := range params {
		for _, g := range p.GradData() {
			globalNorm += g * g
		}
	}
	globalNorm = math.Sqrt(globalNorm)

	if globalNorm > maxNorm {
		scale := maxNorm / globalNorm
		for _, p := range params {
			g := p.GradData()
			for i := range g {
				g[i] *= scale
			}
		}
	}
	return globalNorm
}
