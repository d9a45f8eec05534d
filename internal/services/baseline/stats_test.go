package baseline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize_TooFewSamplesFails(t *testing.T) {
	_, ok := summarize([]float64{1.0})
	assert.False(t, ok)
}

func TestSummarize_MonotonicOrdering(t *testing.T) {
	values := make([]float64, 50)
	for i := range values {
		values[i] = float64(i + 1)
	}
	s, ok := summarize(values)
	require.True(t, ok)
	assert.LessOrEqual(t, s.min, s.p50)
	assert.LessOrEqual(t, s.p50, s.p95)
	assert.LessOrEqual(t, s.p95, s.p99)
	assert.LessOrEqual(t, s.p99, s.max)
	assert.Equal(t, 50, s.sampleCount)
}

func TestSummarize_SmallSampleUsesLastAsP95(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	s, ok := summarize(values)
	require.True(t, ok)
	assert.Equal(t, float64(10), s.p95, "n<=20 uses last value as p95")
	assert.Equal(t, float64(10), s.p99, "n<=100 uses last value as p99")
}

func TestSummarize_MeanAndStddev(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	s, ok := summarize(values)
	require.True(t, ok)
	assert.InDelta(t, 5.0, s.mean, 0.001)
	assert.InDelta(t, 2.0, s.stddev, 0.001)
}
