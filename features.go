package main

import (
	"encoding/binary"

	spooky "github.com/dgryski/go-spooky"
)

// Featurizer turns an EncodedBatch into a dense (Batch*SeqLen, Width) row
// matrix that the encoder projects into embedding space. Padded tokens
// produce zero rows.
type Featurizer interface {
	Width() int
	Featurize(e EncodedBatch) []float64
}

// NewFeaturizer picks the featurizer matching the encoder backend.
func NewFeaturizer(enc PairEncoder, buckets int) Featurizer {
	if enc.Kind() == SubwordEncoder {
		return oneHotFeaturizer{vocab: enc.VocabSize()}
	}
	return charNGramFeaturizer{buckets: buckets}
}

// oneHotFeaturizer emits one-hot rows over the sub-word vocabulary, which
// makes the projection an embedding lookup.
type oneHotFeaturizer struct {
	vocab int
}

func (f oneHotFeaturizer) Width() int { return f.vocab }

func (f oneHotFeaturizer) Featurize(e EncodedBatch) []float64 {
	out := make([]float64, e.Batch*e.SeqLen*f.vocab)
	for t := 0; t < e.Batch*e.SeqLen; t++ {
		if e.Mask[t] == 0 {
			continue
		}
		id := e.IDs[t*e.Width]
		if id < 0 || id >= f.vocab {
			id = subwordUnkID
		}
		out[t*f.vocab+id] = 1
	}
	return out
}

// charNGramFeaturizer hashes the character 1-, 2- and 3-grams of every word
// (including the word markers) into a fixed number of buckets. Each row is
// scaled by the number of n-grams so long and short words have comparable
// magnitude.
type charNGramFeaturizer struct {
	buckets int
}

const maxCharNGram = 3

func (f charNGramFeaturizer) Width() int { return f.buckets }

func (f charNGramFeaturizer) Featurize(e EncodedBatch) []float64 {
	out := make([]float64, e.Batch*e.SeqLen*f.buckets)
	buf := make([]byte, 1+2*maxCharNGram)
	for t := 0; t < e.Batch*e.SeqLen; t++ {
		if e.Mask[t] == 0 {
			continue
		}
		chars := e.IDs[t*e.Width : (t+1)*e.Width]
		end := len(chars)
		for i, c := range chars {
			if c == charEOW {
				end = i + 1
				break
			}
		}
		chars = chars[:end]

		row := out[t*f.buckets : (t+1)*f.buckets]
		total := 0
		for n := 1; n <= maxCharNGram; n++ {
			for i := 0; i+n <= len(chars); i++ {
				buf[0] = byte(n)
				for k := 0; k < n; k++ {
					binary.LittleEndian.PutUint16(buf[1+2*k:], uint16(chars[i+k]))
				}
				row[spooky.Hash64(buf[:1+2*n])%uint64(f.buckets)]++
				total++
			}
		}
		if total > 0 {
			for i := range row {
				row[i] /= float64(total)
			}
		}
	}
	return out
}
