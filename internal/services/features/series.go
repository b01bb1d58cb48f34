package features

import (
	"gonum.org/v1/gonum/stat"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
)

// Rolling helpers over a column. Every helper returns a slice aligned with its
// input; an index whose window is incomplete or contains a missing value is None.

// PctChange computes (x[t]/x[t-n] - 1) * 100. Undefined for t < n.
func PctChange(x []models.Value, n int) []models.Value {
	out := make([]models.Value, len(x))
	for i := n; i < len(x); i++ {
		prev, cur := x[i-n], x[i]
		if !prev.OK || !cur.OK || prev.V == 0 {
			continue
		}
		out[i] = models.Some((cur.V - prev.V) / prev.V * 100)
	}
	return out
}

// RSI computes the relative strength index with simple averages of the last n
// close-to-close gains and losses. Undefined for t < n. A window without losses
// scores 100; a window without any movement is undefined.
func RSI(x []models.Value, n int) []models.Value {
	out := make([]models.Value, len(x))
	if n <= 0 {
		return out
	}
	for i := n; i < len(x); i++ {
		var gain, loss float64
		complete := true
		for j := i - n + 1; j <= i; j++ {
			if !x[j].OK || !x[j-1].OK {
				complete = false
				break
			}
			d := x[j].V - x[j-1].V
			if d > 0 {
				gain += d
			} else {
				loss -= d
			}
		}
		if !complete {
			continue
		}
		avgGain, avgLoss := gain/float64(n), loss/float64(n)
		switch {
		case avgLoss == 0 && avgGain == 0:
			continue
		case avgLoss == 0:
			out[i] = models.Some(100)
		default:
			rs := avgGain / avgLoss
			out[i] = models.Some(100 - 100/(1+rs))
		}
	}
	return out
}

// Slope fits an OLS line through the n observations before t against the
// index 0..n-1. The row at t is not part of its own window, so the first n
// rows are undefined.
func Slope(x []models.Value, n int) []models.Value {
	out := make([]models.Value, len(x))
	if n < 2 {
		return out
	}
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	ys := make([]float64, n)
	for i := n; i < len(x); i++ {
		if !fill(ys, x[i-n:i]) {
			continue
		}
		_, beta := stat.LinearRegression(xs, ys, nil, false)
		out[i] = models.Some(beta)
	}
	return out
}

// SMA is the simple moving average of the last n values including t.
func SMA(x []models.Value, n int) []models.Value {
	out := make([]models.Value, len(x))
	if n <= 0 {
		return out
	}
	buf := make([]float64, n)
	for i := n - 1; i < len(x); i++ {
		if !fill(buf, x[i-n+1:i+1]) {
			continue
		}
		out[i] = models.Some(stat.Mean(buf, nil))
	}
	return out
}

// BandWidth is the Bollinger band width (4 * sample std dev) / SMA over the last n values.
func BandWidth(x []models.Value, n int) []models.Value {
	out := make([]models.Value, len(x))
	if n < 2 {
		return out
	}
	buf := make([]float64, n)
	for i := n - 1; i < len(x); i++ {
		if !fill(buf, x[i-n+1:i+1]) {
			continue
		}
		mean, std := stat.MeanStdDev(buf, nil)
		if mean == 0 {
			continue
		}
		out[i] = models.Some(4 * std / mean)
	}
	return out
}

// Ratio divides a by b element-wise.
func Ratio(a, b []models.Value) []models.Value {
	out := make([]models.Value, len(a))
	for i := range a {
		if i >= len(b) || !a[i].OK || !b[i].OK || b[i].V == 0 {
			continue
		}
		out[i] = models.Some(a[i].V / b[i].V)
	}
	return out
}

func fill(dst []float64, src []models.Value) bool {
	for i, v := range src {
		if !v.OK {
			return false
		}
		dst[i] = v.V
	}
	return true
}
