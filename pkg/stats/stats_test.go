package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjustBH(t *testing.T) {
	// Reference values from R: p.adjust(c(0.01, 0.04, 0.03, 0.5), "BH")
	got := AdjustBH([]float64{0.01, 0.04, 0.03, 0.5})
	want := []float64{0.04, 0.05333333, 0.05333333, 0.5}
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-6, "index %d", i)
	}
}

func TestAdjustBHNaN(t *testing.T) {
	got := AdjustBH([]float64{0.01, math.NaN(), 0.02})
	require.Len(t, got, 3)
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 0.02, got[0], 1e-12)
	assert.InDelta(t, 0.02, got[2], 1e-12)

	all := AdjustBH([]float64{math.NaN(), math.NaN()})
	assert.True(t, math.IsNaN(all[0]) && math.IsNaN(all[1]))
	assert.Empty(t, AdjustBH(nil))
}

func TestAdjustBHMonotoneAndCapped(t *testing.T) {
	p := []float64{0.9, 0.8, 0.95, 0.99}
	for _, v := range AdjustBH(p) {
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestQuantileAndMedian(t *testing.T) {
	xs := []float64{3, 1, math.NaN(), 2, math.Inf(1), 4}
	assert.Equal(t, 2.5, Median(xs))
	assert.Equal(t, 2.0, Median([]float64{2, 1, 3}))
	assert.True(t, math.IsNaN(Median(nil)))

	assert.Equal(t, 4.0, Quantile(1, xs))
	assert.Equal(t, 1.0, Quantile(0, xs))
	assert.True(t, math.IsNaN(Quantile(0.5, []float64{math.NaN()})))
}

func TestHypergeomUpper(t *testing.T) {
	// sum_{i>=3} C(10,i) C(90,10-i) / C(100,10)
	assert.InDelta(t, 0.0600186, HypergeomUpper(3, 100, 10, 10), 1e-6)

	assert.Equal(t, 1.0, HypergeomUpper(0, 100, 10, 10))
	assert.Equal(t, 0.0, HypergeomUpper(11, 100, 10, 10))

	// Drawing the whole population always hits every success.
	assert.InDelta(t, 1.0, HypergeomUpper(5, 20, 5, 20), 1e-12)
}
