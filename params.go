package main

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Param is a named trainable tensor. Params outlive the per-batch
// expression graphs: every batch binds them into a fresh graph, and the
// optimizer updates them in place. Param implements gorgonia.ValueGrad.
type Param struct {
	name  string
	value *tensor.Dense
	grad  *tensor.Dense
}

func newParam(name string, shape ...int) *Param {
	return &Param{
		name:  name,
		value: tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(shape...)),
		grad:  tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(shape...)),
	}
}

// Name returns the parameter's unique name.
func (p *Param) Name() string { return p.name }

// Shape returns the tensor shape.
func (p *Param) Shape() tensor.Shape { return p.value.Shape() }

// Value implements gorgonia.Valuer.
func (p *Param) Value() gorgonia.Value { return p.value }

// Grad implements gorgonia.ValueGrad.
func (p *Param) Grad() (gorgonia.Value, error) { return p.grad, nil }

// Data exposes the backing slice.
func (p *Param) Data() []float64 { return p.value.Data().([]float64) }

// GradData exposes the gradient backing slice.
func (p *Param) GradData() []float64 { return p.grad.Data().([]float64) }

// ZeroGrad clears the gradient.
func (p *Param) ZeroGrad() {
	g := p.GradData()
	for i := range g {
		g[i] = 0
	}
}

// ParamSet holds a model's parameters, iterated in name order so optimizer
// state lines up between steps.
type ParamSet struct {
	byName map[string]*Param
	sorted []*Param
}

// NewParamSet returns an empty set.
func NewParamSet() *ParamSet {
	return &ParamSet{byName: make(map[string]*Param)}
}

// Add registers a parameter filled by init. Adding a duplicate name panics.
func (s *ParamSet) Add(name string, init func([]float64), shape ...int) *Param {
	if _, ok := s.byName[name]; ok {
		panic("duplicate parameter " + name)
	}
	p := newParam(name, shape...)
	if init != nil {
		init(p.Data())
	}
	s.byName[name] = p
	s.sorted = append(s.sorted, p)
	sort.Slice(s.sorted, func(i, j int) bool { return s.sorted[i].name < s.sorted[j].name })
	return p
}

// Get returns the named parameter or nil.
func (s *ParamSet) Get(name string) *Param { return s.byName[name] }

// All returns every parameter in name order.
func (s *ParamSet) All() []*Param { return s.sorted }

// Count returns the total number of scalar weights.
func (s *ParamSet) Count() int {
	n := 0
	for _, p := range s.sorted {
		n += p.value.Shape().TotalSize()
	}
	return n
}

// ZeroGrad clears every gradient.
func (s *ParamSet) ZeroGrad() {
	for _, p := range s.sorted {
		p.ZeroGrad()
	}
}

// ValueGrads adapts the set for gorgonia solvers.
func (s *ParamSet) ValueGrads() []gorgonia.ValueGrad {
	vgs := make([]gorgonia.ValueGrad, len(s.sorted))
	for i, p := range s.sorted {
		vgs[i] = p
	}
	return vgs
}

// CopyFrom overwrites the parameters whose names start with prefix with the
// values in src. Every matching destination parameter must exist in src with
// the same shape.
func (s *ParamSet) CopyFrom(src map[string]*tensor.Dense, prefix string) error {
	copied := 0
	for _, p := range s.sorted {
		if len(p.name) < len(prefix) || p.name[:len(prefix)] != prefix {
			continue
		}
		t, ok := src[p.name]
		if !ok {
			return errors.Errorf("parameter %s missing from source", p.name)
		}
		if !t.Shape().Eq(p.value.Shape()) {
			return errors.Wrapf(ErrWidthMismatch, "%s: have %v, source %v", p.name, p.value.Shape(), t.Shape())
		}
		copy(p.Data(), t.Data().([]float64))
		copied++
	}
	if copied == 0 {
		return errors.Errorf("no parameters match prefix %q", prefix)
	}
	return nil
}

func normalInit(rng *rand.Rand, std float64) func([]float64) {
	return func(data []float64) {
		for i := range data {
			data[i] = rng.NormFloat64() * std
		}
	}
}

// xavierInit scales by the fan-in and fan-out of a (in, out) matrix.
func xavierInit(rng *rand.Rand, in, out int) func([]float64) {
	return normalInit(rng, math.Sqrt(2/float64(in+out)))
}

func constInit(v float64) func([]float64) {
	return func(data []float64) {
		for i := range data {
			data[i] = v
		}
	}
}
