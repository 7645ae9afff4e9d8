package main

// ===========================================================================
// WHAT'S GOING ON HERE
// ===========================================================================
//
// The shared tower of the Siamese model: a small bidirectional transformer
// encoder expressed as gorgonia graph operations.
//
// Both towers call Encode with the same parameters, so whatever the encoder
// learns from one presentation order applies to the other.
//
// DATA FLOW (B = batch, L = tokens, F = feature width, D = embedding width):
//
//   token features (B*L, F)  --project-->  (B*L, D)
//   + sinusoidal positions, layer norm
//   N x [ masked self-attention, residual, layer norm,
//         ReLU feed-forward, residual, layer norm ]
//   token states (B, L, D)  --masked mean-->  pooled (B, D)
//
// Padding is handled twice: attention adds a large negative bias to padded
// keys, and pooling averages only over real tokens. Padded query rows are
// still computed but never reach the pooled output.
//
// Every batch builds a new graph. Parameters are bound by name through a
// graphBuilder, which creates one node per parameter on first use.
//
// ===========================================================================

import (
	"fmt"
	"math"
	"math/rand"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const (
	layerNormEps = 1e-5
	maskedBias   = -1e9
)

// graphBuilder owns one expression graph and the parameter nodes bound
// into it. Its methods panic on shape errors (via gorgonia.Must); callers
// recover at the graph boundary.
type graphBuilder struct {
	g      *gorgonia.ExprGraph
	params *ParamSet
	nodes  map[string]*gorgonia.Node
	bound  []*Param
}

func newGraphBuilder(params *ParamSet) *graphBuilder {
	return &graphBuilder{
		g:      gorgonia.NewGraph(),
		params: params,
		nodes:  make(map[string]*gorgonia.Node),
	}
}

// param returns the node bound to the named parameter.
func (b *graphBuilder) param(name string) *gorgonia.Node {
	if n, ok := b.nodes[name]; ok {
		return n
	}
	p := b.params.Get(name)
	if p == nil {
		panic(fmt.Sprintf("unknown parameter %s", name))
	}
	n := gorgonia.NewTensor(b.g, tensor.Float64, p.value.Dims(),
		gorgonia.WithShape(p.value.Shape()...),
		gorgonia.WithName(name),
		gorgonia.WithValue(p.value))
	b.nodes[name] = n
	b.bound = append(b.bound, p)
	return n
}

// boundNodes returns the bound parameters and their nodes in bind order.
func (b *graphBuilder) boundNodes() ([]*Param, gorgonia.Nodes) {
	nodes := make(gorgonia.Nodes, len(b.bound))
	for i, p := range b.bound {
		nodes[i] = b.nodes[p.name]
	}
	return b.bound, nodes
}

// input adds a non-trainable tensor holding data.
func (b *graphBuilder) input(name string, data []float64, shape ...int) *gorgonia.Node {
	t := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
	return gorgonia.NewTensor(b.g, tensor.Float64, len(shape),
		gorgonia.WithShape(shape...),
		gorgonia.WithName(name),
		gorgonia.WithValue(t))
}

func scalar(v float64) *gorgonia.Node {
	return gorgonia.NewConstant(v)
}

// linear computes x·W + b for x of shape (N, in).
func (b *graphBuilder) linear(x *gorgonia.Node, prefix string) *gorgonia.Node {
	xw := gorgonia.Must(gorgonia.Mul(x, b.param(prefix+".w")))
	return gorgonia.Must(gorgonia.BroadcastAdd(xw, b.param(prefix+".b"), nil, []byte{0}))
}

// layerNorm normalizes each row of x (N, D).
func (b *graphBuilder) layerNorm(x *gorgonia.Node, prefix string) *gorgonia.Node {
	n := x.Shape()[0]
	mean := gorgonia.Must(gorgonia.Reshape(gorgonia.Must(gorgonia.Mean(x, 1)), tensor.Shape{n, 1}))
	centered := gorgonia.Must(gorgonia.BroadcastSub(x, mean, nil, []byte{1}))
	variance := gorgonia.Must(gorgonia.Mean(gorgonia.Must(gorgonia.Square(centered)), 1))
	variance = gorgonia.Must(gorgonia.Reshape(variance, tensor.Shape{n, 1}))
	std := gorgonia.Must(gorgonia.Sqrt(gorgonia.Must(gorgonia.Add(variance, scalar(layerNormEps)))))
	normed := gorgonia.Must(gorgonia.BroadcastHadamardDiv(centered, std, nil, []byte{1}))

	scaled := gorgonia.Must(gorgonia.BroadcastHadamardProd(normed, b.param(prefix+".gamma"), nil, []byte{0}))
	return gorgonia.Must(gorgonia.BroadcastAdd(scaled, b.param(prefix+".beta"), nil, []byte{0}))
}

// shiftRows subtracts each row's max from x (N, C). Softmax and
// log-softmax are invariant to the shift, so no gradient reaches the max.
func shiftRows(x *gorgonia.Node) *gorgonia.Node {
	n := x.Shape()[0]
	mx := gorgonia.Must(gorgonia.Reshape(gorgonia.Must(gorgonia.Max(x, 1)), tensor.Shape{n, 1}))
	return gorgonia.Must(gorgonia.BroadcastSub(x, mx, nil, []byte{1}))
}

// rowSums sums x (N, C) along its rows into (N, 1).
func rowSums(x *gorgonia.Node) *gorgonia.Node {
	n := x.Shape()[0]
	return gorgonia.Must(gorgonia.Reshape(gorgonia.Must(gorgonia.Sum(x, 1)), tensor.Shape{n, 1}))
}

// softmaxRows normalizes every row of x (N, C) into a distribution.
// Built from Exp and Sum rather than gorgonia.SoftMax, whose gradient is
// wrong in this release.
func softmaxRows(x *gorgonia.Node) *gorgonia.Node {
	e := gorgonia.Must(gorgonia.Exp(shiftRows(x)))
	return gorgonia.Must(gorgonia.BroadcastHadamardDiv(e, rowSums(e), nil, []byte{1}))
}

// logSoftmaxRows is log(softmaxRows(x)) without the round trip through
// probabilities.
func logSoftmaxRows(x *gorgonia.Node) *gorgonia.Node {
	s := shiftRows(x)
	lse := gorgonia.Must(gorgonia.Log(rowSums(gorgonia.Must(gorgonia.Exp(s)))))
	return gorgonia.Must(gorgonia.BroadcastSub(s, lse, nil, []byte{1}))
}

// seqMask holds the host-side padding tensors for one tower.
type seqMask struct {
	batch, seqLen int
	bias          *gorgonia.Node // (B, 1, L): 0 for tokens, maskedBias for padding
	poolWeights   *gorgonia.Node // (B, 1, L): 1/len for tokens, 0 for padding
}

func (b *graphBuilder) newSeqMask(name string, mask []float64, batch, seqLen int) seqMask {
	bias := make([]float64, len(mask))
	weights := make([]float64, len(mask))
	for i := 0; i < batch; i++ {
		row := mask[i*seqLen : (i+1)*seqLen]
		n := 0.0
		for _, m := range row {
			n += m
		}
		for j, m := range row {
			if m == 0 {
				bias[i*seqLen+j] = maskedBias
				continue
			}
			weights[i*seqLen+j] = 1 / n
		}
	}
	return seqMask{
		batch:       batch,
		seqLen:      seqLen,
		bias:        b.input(name+".bias", bias, batch, 1, seqLen),
		poolWeights: b.input(name+".pool", weights, batch, 1, seqLen),
	}
}

// attention is single-head scaled dot-product self-attention over x
// (B*L, D) with padded keys masked out.
func (b *graphBuilder) attention(x *gorgonia.Node, m seqMask, prefix string) *gorgonia.Node {
	d := x.Shape()[1]
	shape3 := tensor.Shape{m.batch, m.seqLen, d}
	q := gorgonia.Must(gorgonia.Reshape(b.linear(x, prefix+".q"), shape3))
	k := gorgonia.Must(gorgonia.Reshape(b.linear(x, prefix+".k"), shape3))
	v := gorgonia.Must(gorgonia.Reshape(b.linear(x, prefix+".v"), shape3))

	scores := gorgonia.Must(gorgonia.BatchedMatMul(q, k, false, true))
	scores = gorgonia.Must(gorgonia.Mul(scores, scalar(1/math.Sqrt(float64(d)))))
	scores = gorgonia.Must(gorgonia.BroadcastAdd(scores, m.bias, nil, []byte{1}))

	flat := gorgonia.Must(gorgonia.Reshape(scores, tensor.Shape{m.batch * m.seqLen, m.seqLen}))
	weights := softmaxRows(flat)
	weights = gorgonia.Must(gorgonia.Reshape(weights, tensor.Shape{m.batch, m.seqLen, m.seqLen}))

	ctx := gorgonia.Must(gorgonia.BatchedMatMul(weights, v))
	ctx = gorgonia.Must(gorgonia.Reshape(ctx, tensor.Shape{m.batch * m.seqLen, d}))
	return b.linear(ctx, prefix+".o")
}

// transformerLayer is a post-norm encoder block over x (B*L, D).
func (b *graphBuilder) transformerLayer(x *gorgonia.Node, m seqMask, prefix string) *gorgonia.Node {
	h := gorgonia.Must(gorgonia.Add(x, b.attention(x, m, prefix+".attn")))
	h = b.layerNorm(h, prefix+".ln1")

	ff := gorgonia.Must(gorgonia.Rectify(b.linear(h, prefix+".ff1")))
	ff = b.linear(ff, prefix+".ff2")
	out := gorgonia.Must(gorgonia.Add(h, ff))
	return b.layerNorm(out, prefix+".ln2")
}

// meanPool averages the token states (B*L, D) over real tokens.
func (b *graphBuilder) meanPool(states *gorgonia.Node, m seqMask) *gorgonia.Node {
	d := states.Shape()[1]
	s3 := gorgonia.Must(gorgonia.Reshape(states, tensor.Shape{m.batch, m.seqLen, d}))
	pooled := gorgonia.Must(gorgonia.BatchedMatMul(m.poolWeights, s3))
	return gorgonia.Must(gorgonia.Reshape(pooled, tensor.Shape{m.batch, d}))
}

// Encoder is the shared tower.
type Encoder struct {
	featurizer Featurizer
	dim        int
	layers     int
}

// TowerOutput is what Encode returns for one tower.
type TowerOutput struct {
	States *gorgonia.Node // (B*L, D)
	Pooled *gorgonia.Node // (B, D)
	Mask   seqMask
}

func addLinear(ps *ParamSet, rng *rand.Rand, prefix string, in, out int) {
	ps.Add(prefix+".w", xavierInit(rng, in, out), in, out)
	ps.Add(prefix+".b", nil, 1, out)
}

func addLayerNorm(ps *ParamSet, prefix string, dim int) {
	ps.Add(prefix+".gamma", constInit(1), 1, dim)
	ps.Add(prefix+".beta", nil, 1, dim)
}

func addTransformerLayer(ps *ParamSet, rng *rand.Rand, prefix string, dim, ffHidden int) {
	for _, proj := range []string{"q", "k", "v", "o"} {
		addLinear(ps, rng, prefix+".attn."+proj, dim, dim)
	}
	addLayerNorm(ps, prefix+".ln1", dim)
	addLinear(ps, rng, prefix+".ff1", dim, ffHidden)
	addLinear(ps, rng, prefix+".ff2", ffHidden, dim)
	addLayerNorm(ps, prefix+".ln2", dim)
}

// NewEncoder registers the encoder parameters under "encoder." in ps.
func NewEncoder(ps *ParamSet, rng *rand.Rand, f Featurizer, m ModelConfig) *Encoder {
	ps.Add("encoder.embed", normalInit(rng, m.InitScale), f.Width(), m.EmbedDim)
	addLayerNorm(ps, "encoder.ln0", m.EmbedDim)
	for i := 0; i < m.NumLayers; i++ {
		addTransformerLayer(ps, rng, fmt.Sprintf("encoder.layer%d", i), m.EmbedDim, m.FFHidden)
	}
	return &Encoder{featurizer: f, dim: m.EmbedDim, layers: m.NumLayers}
}

// Width is the output embedding width.
func (e *Encoder) Width() int { return e.dim }

// Encode builds the tower graph for one encoded batch.
func (e *Encoder) Encode(b *graphBuilder, in EncodedBatch, name string) TowerOutput {
	rows := in.Batch * in.SeqLen
	feats := b.input(name+".features", e.featurizer.Featurize(in), rows, e.featurizer.Width())
	pos := b.input(name+".positions", positionalEncoding(in.Batch, in.SeqLen, e.dim), rows, e.dim)
	m := b.newSeqMask(name+".mask", in.Mask, in.Batch, in.SeqLen)

	h := gorgonia.Must(gorgonia.Mul(feats, b.param("encoder.embed")))
	h = gorgonia.Must(gorgonia.Add(h, pos))
	h = b.layerNorm(h, "encoder.ln0")
	for i := 0; i < e.layers; i++ {
		h = b.transformerLayer(h, m, fmt.Sprintf("encoder.layer%d", i))
	}
	return TowerOutput{States: h, Pooled: b.meanPool(h, m), Mask: m}
}

// positionalEncoding returns the sinusoidal table repeated for every
// sequence of the batch, shape (batch*seqLen, dim).
func positionalEncoding(batch, seqLen, dim int) []float64 {
	table := make([]float64, seqLen*dim)
	for pos := 0; pos < seqLen; pos++ {
		for i := 0; i < dim; i += 2 {
			angle := float64(pos) / math.Pow(10000, float64(i)/float64(dim))
			table[pos*dim+i] = math.Sin(angle)
			if i+1 < dim {
				table[pos*dim+i+1] = math.Cos(angle)
			}
		}
	}
	out := make([]float64, 0, batch*len(table))
	for b := 0; b < batch; b++ {
		out = append(out, table...)
	}
	return out
}
