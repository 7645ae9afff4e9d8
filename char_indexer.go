package main

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// Character ids. Byte b maps to b+1 so that 0 is free for padded words.
const (
	charPaddedWord = 0
	charBOW        = 257
	charEOW        = 258
	charPad        = 259
	charCLS        = 260
	charSEP        = 261
	charVocabSize  = 262
)

const (
	clsToken = "[CLS]"
	sepToken = "[SEP]"
)

const wordCacheSize = 1 << 14

// CharacterIndexer maps each word to a fixed-width row of character ids:
// a begin-of-word marker, the word's bytes, an end-of-word marker and
// padding. Rows are padded to the longest sequence in the batch; nothing is
// truncated unless maxWords is set.
type CharacterIndexer struct {
	width    int
	maxWords int
	cache    *lru.Cache
}

// NewCharacterIndexer returns an indexer with width characters per word. A
// maxWords of zero means unbounded sequences.
func NewCharacterIndexer(width, maxWords int) (*CharacterIndexer, error) {
	if width < 3 {
		return nil, errors.Errorf("character width %d leaves no room for the word markers", width)
	}
	cache, err := lru.New(wordCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating word cache")
	}
	return &CharacterIndexer{width: width, maxWords: maxWords, cache: cache}, nil
}

// Kind implements PairEncoder.
func (c *CharacterIndexer) Kind() EncoderKind { return CharacterEncoder }

// VocabSize implements PairEncoder.
func (c *CharacterIndexer) VocabSize() int { return charVocabSize }

// encodeWord returns the id row for a single word. The returned slice is
// shared through the cache and must not be modified.
func (c *CharacterIndexer) encodeWord(word string) []int {
	if v, ok := c.cache.Get(word); ok {
		return v.([]int)
	}
	row := make([]int, c.width)
	row[0] = charBOW
	n := 1
	switch word {
	case clsToken:
		row[n] = charCLS
		n++
	case sepToken:
		row[n] = charSEP
		n++
	default:
		for i := 0; i < len(word) && n < c.width-1; i++ {
			row[n] = int(word[i]) + 1
			n++
		}
	}
	row[n] = charEOW
	for n++; n < c.width; n++ {
		row[n] = charPad
	}
	c.cache.Add(word, row)
	return row
}

// EncodeWords implements PairEncoder.
func (c *CharacterIndexer) EncodeWords(rows [][]string) EncodedBatch {
	rows = truncateRows(rows, c.maxWords)
	seqLen := 0
	for _, r := range rows {
		if len(r) > seqLen {
			seqLen = len(r)
		}
	}

	out := newEncodedBatch(len(rows), seqLen, c.width)
	for b, words := range rows {
		for l, w := range words {
			copy(out.IDs[out.offset(b, l):], c.encodeWord(w))
			out.Mask[b*seqLen+l] = 1
		}
	}
	return out
}

// truncateRows caps every row at max words, keeping the closing [SEP].
func truncateRows(rows [][]string, max int) [][]string {
	if max <= 0 {
		return rows
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		if len(r) <= max {
			out[i] = r
			continue
		}
		cut := append([]string(nil), r[:max]...)
		cut[max-1] = sepToken
		out[i] = cut
	}
	return out
}
