package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
)

func vals(xs ...float64) []models.Value {
	out := make([]models.Value, len(xs))
	for i, x := range xs {
		out[i] = models.Some(x)
	}
	return out
}

func TestPctChange(t *testing.T) {
	got := PctChange(vals(100, 101, 102, 103, 104, 105, 110), 5)
	require.Len(t, got, 7)
	for i := 0; i < 5; i++ {
		assert.False(t, got[i].OK, "row %d should be warm-up", i)
	}
	assert.InDelta(t, 5.0, got[5].V, 1e-9)
	assert.InDelta(t, (110.0-101.0)/101.0*100, got[6].V, 1e-9)
}

func TestPctChangeZeroAndMissingBase(t *testing.T) {
	x := vals(0, 1, 2)
	x[1] = models.None
	got := PctChange(x, 1)
	assert.False(t, got[1].OK)
	assert.False(t, got[2].OK)

	got = PctChange(vals(0, 5), 1)
	assert.False(t, got[1].OK, "zero base is undefined")
}

func TestRSI(t *testing.T) {
	t.Run("all gains is 100", func(t *testing.T) {
		got := RSI(vals(1, 2, 3, 4, 5), 3)
		assert.False(t, got[2].OK)
		assert.Equal(t, 100.0, got[3].V)
		assert.Equal(t, 100.0, got[4].V)
	})
	t.Run("flat window is undefined", func(t *testing.T) {
		got := RSI(vals(5, 5, 5, 5), 3)
		assert.False(t, got[3].OK)
	})
	t.Run("mixed", func(t *testing.T) {
		// deltas +2 -1 +1 -> gain 3/3, loss 1/3, rs 3
		got := RSI(vals(10, 12, 11, 12), 3)
		require.True(t, got[3].OK)
		assert.InDelta(t, 75.0, got[3].V, 1e-9)
	})
	t.Run("all losses is 0", func(t *testing.T) {
		got := RSI(vals(5, 4, 3, 2), 3)
		assert.InDelta(t, 0.0, got[3].V, 1e-9)
	})
	t.Run("first window rows undefined", func(t *testing.T) {
		got := RSI(vals(1, 3, 2, 4, 3, 5, 4, 6, 5, 7, 6, 8, 7, 9, 8, 10, 9), 14)
		for i := 0; i < 14; i++ {
			assert.False(t, got[i].OK)
		}
		assert.True(t, got[14].OK)
	})
}

func TestSlopeExcludesCurrentRow(t *testing.T) {
	x := vals(1, 2, 3, 4, 100)
	got := Slope(x, 4)
	for i := 0; i < 4; i++ {
		assert.False(t, got[i].OK)
	}
	require.True(t, got[4].OK)
	assert.InDelta(t, 1.0, got[4].V, 1e-9, "row 4 only sees rows 0..3")
}

func TestSlopeLinearSeries(t *testing.T) {
	x := make([]float64, 30)
	for i := range x {
		x[i] = 50 + 0.5*float64(i)
	}
	got := Slope(vals(x...), 20)
	for i := 20; i < 30; i++ {
		assert.InDelta(t, 0.5, got[i].V, 1e-9)
	}
}

func TestSlopeMissingInWindow(t *testing.T) {
	x := vals(1, 2, 3, 4, 5, 6)
	x[2] = models.None
	got := Slope(x, 3)
	assert.False(t, got[3].OK)
	assert.False(t, got[4].OK)
	assert.False(t, got[5].OK)
	got = Slope(x, 2)
	assert.True(t, got[5].OK)
}

func TestSMA(t *testing.T) {
	got := SMA(vals(1, 2, 3, 4), 3)
	assert.False(t, got[0].OK)
	assert.False(t, got[1].OK)
	assert.InDelta(t, 2.0, got[2].V, 1e-9)
	assert.InDelta(t, 3.0, got[3].V, 1e-9)
}

func TestBandWidthUsesSampleStdDev(t *testing.T) {
	got := BandWidth(vals(1, 2, 3), 3)
	require.True(t, got[2].OK)
	// sample std of 1,2,3 is 1, mean 2
	assert.InDelta(t, 2.0, got[2].V, 1e-9)
	assert.False(t, got[1].OK)

	got = BandWidth(vals(-1, 0, 1), 3)
	assert.False(t, got[2].OK, "zero mean is undefined")
}

func TestRatio(t *testing.T) {
	got := Ratio(vals(2, 3, 4), vals(1, 0, math.NaN()))
	assert.InDelta(t, 2.0, got[0].V, 1e-9)
	assert.False(t, got[1].OK)
	assert.False(t, got[2].OK)
}
