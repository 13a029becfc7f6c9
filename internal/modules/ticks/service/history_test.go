package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryKeepsLastN(t *testing.T) {
	const n, k = 30, 7
	h := NewHistory(n)

	var all []int
	for i := 0; i < n+k; i++ {
		d := (i * 7) % 10
		all = append(all, d)
		h.Push(d)
	}

	require.Equal(t, n, h.Len())
	assert.Equal(t, all[k:], h.Digits())

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, all[len(all)-1], last)
}

func TestHistoryFrequenciesFollowEviction(t *testing.T) {
	h := NewHistory(3)
	for _, d := range []int{1, 1, 2, 3, 3} {
		h.Push(d)
	}
	// окно [2 3 3]
	f := h.Frequencies()
	assert.Equal(t, 0, f[1])
	assert.Equal(t, 1, f[2])
	assert.Equal(t, 2, f[3])

	sum := 0
	for _, n := range f {
		sum += n
	}
	assert.Equal(t, h.Len(), sum)

	p := h.Percentages()
	assert.InDelta(t, 66.666, p[3], 0.01)
}

func TestHistoryEmptyAndReset(t *testing.T) {
	h := NewHistory(5)
	_, ok := h.Last()
	assert.False(t, ok)
	assert.Equal(t, [10]float64{}, h.Percentages())

	h.Push(4)
	h.Reset()
	assert.Equal(t, 0, h.Len())
	assert.Empty(t, h.Digits())
	assert.Equal(t, [10]int{}, h.Frequencies())
}
