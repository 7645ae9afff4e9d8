package main

// BatchSource yields consecutive mini-batches of a dataset in file order.
// Next returns false once the pass is exhausted; Reset rewinds to the start
// for the next epoch.
type BatchSource interface {
	Next() ([]TitlePair, bool)
	Reset()
}

// SliceBatcher is a BatchSource over an in-memory dataset. The final batch
// holds len(data) - size*floor(len(data)/size) records when that remainder is
// non-zero, so every record is visited exactly once per pass.
type SliceBatcher struct {
	data []TitlePair
	size int
	pos  int
}

// NewSliceBatcher panics if size is not positive.
func NewSliceBatcher(data []TitlePair, size int) *SliceBatcher {
	if size <= 0 {
		panic("batch size must be positive")
	}
	return &SliceBatcher{data: data, size: size}
}

// Next returns the next batch. The returned slice aliases the dataset.
func (b *SliceBatcher) Next() ([]TitlePair, bool) {
	if b.pos >= len(b.data) {
		return nil, false
	}
	end := b.pos + b.size
	if end > len(b.data) {
		end = len(b.data)
	}
	batch := b.data[b.pos:end:end]
	b.pos = end
	return batch, true
}

// Reset rewinds to the first batch.
func (b *SliceBatcher) Reset() {
	b.pos = 0
}

// NumBatches is the number of batches in one pass.
func (b *SliceBatcher) NumBatches() int {
	return (len(b.data) + b.size - 1) / b.size
}
