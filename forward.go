package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// PropMode selects whether ForwardProp computes gradients.
type PropMode int

const (
	// EvalMode runs the forward pass only.
	EvalMode PropMode = iota
	// TrainMode also differentiates the loss and stores the gradients on the
	// model's parameters.
	TrainMode
)

// BatchStatus is the outcome of one batch.
type BatchStatus int

const (
	Processed BatchStatus = iota
	SkippedResourceExhausted
)

func (s BatchStatus) String() string {
	if s == SkippedResourceExhausted {
		return "skipped (resource exhausted)"
	}
	return "processed"
}

// LossFunc builds a scalar loss node from (batch, classes) logits.
type LossFunc func(b *graphBuilder, logits *gorgonia.Node, labels []int) *gorgonia.Node

// MemoryGuard admits or refuses a batch given its estimated working set.
type MemoryGuard interface {
	Admit(bytes uint64) error
}

// StepResult is what ForwardProp returns for a processed batch.
type StepResult struct {
	Loss        float64
	Logits      []float64 // row-major (batch, 2)
	Predictions []int
}

// Accuracy is the fraction of predictions equal to labels.
func (r StepResult) Accuracy(labels []int) float64 {
	return Accuracy(labels, r.Predictions)
}

// CrossEntropyLoss is the mean negative log-likelihood of the labels under
// softmax(logits).
func CrossEntropyLoss(b *graphBuilder, logits *gorgonia.Node, labels []int) *gorgonia.Node {
	batch, classes := logits.Shape()[0], logits.Shape()[1]
	onehot := make([]float64, batch*classes)
	for i, l := range labels {
		onehot[i*classes+l] = 1
	}
	targets := b.input("targets", onehot, batch, classes)

	logp := logSoftmaxRows(logits)
	picked := gorgonia.Must(gorgonia.HadamardProd(logp, targets))
	total := gorgonia.Must(gorgonia.Sum(picked))
	mean := gorgonia.Must(gorgonia.HadamardDiv(total, scalar(float64(batch))))
	return gorgonia.Must(gorgonia.Neg(mean))
}

// ForwardProp tokenizes pairs, runs model and computes loss against labels.
// In TrainMode the parameter gradients are left on model.Params() for the
// optimizer. A batch refused by guard, or one whose graph allocation fails,
// returns an error whose cause is ErrResourceExhausted; nothing is written
// to the parameters in that case.
func ForwardProp(pairs []TitlePair, labels []int, model Model, loss LossFunc, mode PropMode, guard MemoryGuard) (res StepResult, err error) {
	if len(pairs) != len(labels) {
		return res, errors.Errorf("%d pairs but %d labels", len(pairs), len(labels))
	}
	if len(pairs) == 0 {
		return res, errors.New("empty batch")
	}

	in1, in2 := TokenizePairBatch(pairs, model.Encoder())
	if guard != nil {
		if err := guard.Admit(estimateBatchBytes(in1, in2, model, mode)); err != nil {
			return res, err
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = classifyPanic(r)
		}
	}()

	b := newGraphBuilder(model.Params())
	logits := model.Logits(b, in1, in2)
	cost := loss(b, logits, labels)

	params, nodes := b.boundNodes()
	var vm gorgonia.VM
	if mode == TrainMode {
		if _, err := gorgonia.Grad(cost, nodes...); err != nil {
			return res, errors.Wrap(err, "building gradient graph")
		}
		vm = gorgonia.NewTapeMachine(b.g, gorgonia.BindDualValues(nodes...))
	} else {
		vm = gorgonia.NewTapeMachine(b.g)
	}
	defer vm.Close()

	if err := vm.RunAll(); err != nil {
		if isAllocationFailure(err.Error()) {
			return res, errors.Wrap(ErrResourceExhausted, err.Error())
		}
		return res, errors.Wrap(err, "running graph")
	}

	if mode == TrainMode {
		for i, p := range params {
			g, err := nodes[i].Grad()
			if err != nil {
				return res, errors.Wrapf(err, "reading gradient of %s", p.name)
			}
			copy(p.GradData(), g.Data().([]float64))
		}
	}

	res.Loss = cost.Value().Data().(float64)
	res.Logits = append([]float64(nil), logits.Value().Data().([]float64)...)
	res.Predictions = argmaxRows(res.Logits, numClasses)
	return res, nil
}

func argmaxRows(data []float64, width int) []int {
	out := make([]int, len(data)/width)
	for i := range out {
		row := data[i*width : (i+1)*width]
		best := 0
		for j, v := range row {
			if v > row[best] {
				best = j
			}
		}
		out[i] = best
	}
	return out
}

func isAllocationFailure(msg string) bool {
	msg = strings.ToLower(msg)
	for _, s := range []string{"out of memory", "cannot allocate", "makeslice: len out of range", "makeslice: cap out of range"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// classifyPanic turns a recovered panic from graph construction or
// execution into an error. Allocation failures become ErrResourceExhausted;
// anything else (shape errors, bugs) is returned as a plain error.
func classifyPanic(r interface{}) error {
	msg := fmt.Sprint(r)
	if err, ok := r.(error); ok {
		msg = err.Error()
	}
	if isAllocationFailure(msg) {
		return errors.Wrap(ErrResourceExhausted, msg)
	}
	return errors.Errorf("graph panic: %s", msg)
}

// estimateBatchBytes approximates the float64 working set of one batch:
// features, per-layer activations and attention maps for both towers,
// doubled for gradients in TrainMode.
func estimateBatchBytes(in1, in2 EncodedBatch, model Model, mode PropMode) uint64 {
	params := model.Params()
	feat := params.Get("encoder.embed").Shape()
	featWidth, dim := feat[0], feat[1]
	layers := 0
	for _, p := range params.All() {
		if strings.HasSuffix(p.name, ".attn.q.w") {
			layers++
		}
	}

	var floats uint64
	for _, in := range []EncodedBatch{in1, in2} {
		tokens := uint64(in.Batch * in.SeqLen)
		floats += tokens * uint64(featWidth)
		floats += tokens * uint64(dim) * uint64(4+16*layers)
		floats += uint64(in.Batch*in.SeqLen*in.SeqLen) * uint64(3*layers)
	}
	if mode == TrainMode {
		floats *= 2
		floats += uint64(params.Count())
	}
	return floats * 8
}
