package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedPairs(n int) []TitlePair {
	pairs := make([]TitlePair, n)
	for i := range pairs {
		pairs[i] = TitlePair{TitleOne: fmt.Sprintf("title %d", i), TitleTwo: "other", Label: Label(i % 2)}
	}
	return pairs
}

func batchSizes(src BatchSource) []int {
	var sizes []int
	for {
		batch, ok := src.Next()
		if !ok {
			return sizes
		}
		sizes = append(sizes, len(batch))
	}
}

func TestSliceBatcherSizes(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int
	}{
		{100, 32, []int{32, 32, 32, 4}},
		{96, 32, []int{32, 32, 32}},
		{5, 8, []int{5}},
		{0, 8, nil},
		{17, 8, []int{8, 8, 1}},
	}
	for _, tt := range tests {
		b := NewSliceBatcher(numberedPairs(tt.n), tt.size)
		assert.Equal(t, tt.want, batchSizes(b), "n=%d size=%d", tt.n, tt.size)
		assert.Equal(t, len(tt.want), b.NumBatches())
	}
}

func TestSliceBatcherVisitsEveryRecordOnce(t *testing.T) {
	data := numberedPairs(77)
	b := NewSliceBatcher(data, 10)

	for pass := 0; pass < 2; pass++ {
		var seen []string
		for {
			batch, ok := b.Next()
			if !ok {
				break
			}
			for _, p := range batch {
				seen = append(seen, p.TitleOne)
			}
		}
		require.Len(t, seen, len(data))
		for i, title := range seen {
			assert.Equal(t, data[i].TitleOne, title)
		}
		b.Reset()
	}
}

func TestSliceBatcherBatchesDoNotShareCapacity(t *testing.T) {
	b := NewSliceBatcher(numberedPairs(4), 2)
	first, ok := b.Next()
	require.True(t, ok)
	first = append(first, TitlePair{TitleOne: "appended"})
	second, ok := b.Next()
	require.True(t, ok)
	assert.Equal(t, "title 2", second[0].TitleOne)
	assert.Len(t, first, 3)
}
