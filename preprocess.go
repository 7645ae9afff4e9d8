package main

import (
	"strings"
)

// PairEncoder turns whitespace-split word sequences into a padded id tensor.
type PairEncoder interface {
	EncodeWords(rows [][]string) EncodedBatch
	Kind() EncoderKind
	// VocabSize bounds the ids the encoder emits.
	VocabSize() int
}

// EncodedBatch is a (Batch, SeqLen, Width) id tensor plus a (Batch, SeqLen)
// mask holding 1 for real tokens and 0 for padding. Width is the number of
// characters per word for the character encoder and 1 for sub-words.
type EncodedBatch struct {
	Batch  int
	SeqLen int
	Width  int
	IDs    []int
	Mask   []float64
}

func newEncodedBatch(batch, seqLen, width int) EncodedBatch {
	return EncodedBatch{
		Batch:  batch,
		SeqLen: seqLen,
		Width:  width,
		IDs:    make([]int, batch*seqLen*width),
		Mask:   make([]float64, batch*seqLen),
	}
}

func (e EncodedBatch) offset(b, l int) int {
	return (b*e.SeqLen + l) * e.Width
}

// Token returns the ids of token l in sequence b.
func (e EncodedBatch) Token(b, l int) []int {
	off := e.offset(b, l)
	return e.IDs[off : off+e.Width]
}

// Lengths returns the number of unmasked tokens per sequence.
func (e EncodedBatch) Lengths() []int {
	lengths := make([]int, e.Batch)
	for b := range lengths {
		for l := 0; l < e.SeqLen; l++ {
			if e.Mask[b*e.SeqLen+l] > 0 {
				lengths[b]++
			}
		}
	}
	return lengths
}

// TagPair joins two titles with the sequence markers.
func TagPair(first, second string) string {
	return clsToken + " " + first + " " + sepToken + " " + second + " " + sepToken
}

// TokenizePairBatch encodes both presentation orders of every pair. in1
// holds title_one followed by title_two; in2 holds the swapped order.
func TokenizePairBatch(pairs []TitlePair, enc PairEncoder) (in1, in2 EncodedBatch) {
	forward := make([][]string, len(pairs))
	swapped := make([][]string, len(pairs))
	for i, p := range pairs {
		forward[i] = strings.Fields(TagPair(p.TitleOne, p.TitleTwo))
		swapped[i] = strings.Fields(TagPair(p.TitleTwo, p.TitleOne))
	}
	return enc.EncodeWords(forward), enc.EncodeWords(swapped)
}
