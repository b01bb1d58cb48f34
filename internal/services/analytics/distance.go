package analytics

import (
	"fmt"
	"math"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
	domsvc "github.com/carolinacraus/market-state-api/internal/domain/service"
)

const (
	SteadyClimb    models.Regime = "Steady Climb"
	TrendPullback  models.Regime = "Trend Pullback"
	OrderlyDecline models.Regime = "Orderly Decline"
	SharpDecline   models.Regime = "Sharp Decline"
	VolatileChop   models.Regime = "Volatile Chop"
)

// ScoreVector is the (trend, momentum, volatility) summary of a row.
type ScoreVector [3]int

func (v ScoreVector) String() string {
	return fmt.Sprintf("[%d, %d, %d]", v[0], v[1], v[2])
}

type profile struct {
	regime models.Regime
	ref    [3]float64
}

// Reference vectors in tie-break order.
var profiles = []profile{
	{SteadyClimb, [3]float64{2, 1, 2}},
	{TrendPullback, [3]float64{-1, 1, 0}},
	{OrderlyDecline, [3]float64{-2, -1, 1}},
	{SharpDecline, [3]float64{-3, -2, -2}},
	{VolatileChop, [3]float64{0, 0, -2}},
}

var (
	trend5dLadder = Ladder{
		{Gt(2), 2},
		{Closed(0.5, 2), 1},
		{ClosedOpen(-0.5, 0.5), 0},
		{ClosedOpen(-2, -0.5), -1},
		{Lt(-2), -2},
	}
	trendSlopeLadder = Ladder{
		{Gt(0.5), 2},
		{Closed(0.2, 0.5), 1},
		{ClosedOpen(-0.2, 0.2), 0},
		{ClosedOpen(-0.5, -0.2), -1},
		{Lt(-0.5), -2},
	}
	momentumLadder = Ladder{
		{Gt(65), 2},
		{Closed(50, 65), 1},
		{ClosedOpen(40, 50), 0},
		{Any(), -2},
	}
	vixLadder = Ladder{
		{Lt(16), 1},
		{Closed(16, 20), 0},
		{OpenClosed(20, 25), -1},
		{Any(), -2},
	}
	atrLadder = Ladder{
		{Lt(0.01), 1},
		{Closed(0.01, 0.015), 0},
		{Any(), -1},
	}
	bbwLadder = Ladder{
		{Lt(3), 1},
		{Closed(3, 5), 0},
		{Any(), -1},
	}
)

// Distance labels each row with the reference profile nearest to its score
// vector. Missing inputs contribute 0 to their component.
type Distance struct {
	sp5, slope, rsi, vix, atr, bbw input
}

func NewDistance(in Inputs) *Distance {
	return &Distance{
		sp5:   in.pct(models.SymbolSP500),
		slope: in.slope(),
		rsi:   in.rsi(),
		vix:   closeOf(models.SymbolVIX),
		atr:   indicator(models.NormalizedATRKey),
		bbw:   indicator(models.BBWKey),
	}
}

func (c *Distance) Name() string        { return "distance" }
func (c *Distance) ScoreColumn() string { return "EuclideanDist" }

// Score computes the row's score vector.
func (c *Distance) Score(r models.Row) ScoreVector {
	return ScoreVector{
		trend5dLadder.Score(c.sp5.get(r)) + trendSlopeLadder.Score(c.slope.get(r)),
		momentumLadder.Score(c.rsi.get(r)),
		vixLadder.Score(c.vix.get(r)) + atrLadder.Score(c.atr.get(r)) + bbwLadder.Score(c.bbw.get(r)),
	}
}

// Nearest returns the closest profile and its distance. Equal distances
// resolve to the earlier profile.
func Nearest(v ScoreVector) (models.Regime, float64) {
	best, bestDist := profiles[0].regime, math.Inf(1)
	for _, p := range profiles {
		var sum float64
		for i := range v {
			d := float64(v[i]) - p.ref[i]
			sum += d * d
		}
		if d := math.Sqrt(sum); d < bestDist {
			best, bestDist = p.regime, d
		}
	}
	return best, bestDist
}

func (c *Distance) ClassifyRow(r models.Row) models.Label {
	v := c.Score(r)
	regime, dist := Nearest(v)
	diag := fmt.Sprintf("5d%%: %s%%, MA20: %s, RSI: %s, VIX: %s, ATR: %s, BBW: %s, Score: %s, Dist: %.2f",
		fmtv("%+.2f", c.sp5.get(r)), fmtv("%+.2f", c.slope.get(r)), fmtv("%.1f", c.rsi.get(r)),
		fmtv("%.2f", c.vix.get(r)), fmtv("%.4f", c.atr.get(r)), fmtv("%.2f", c.bbw.get(r)), v, dist)
	return models.Label{Date: r.Date, Regime: regime, Confidence: dist, Diagnostic: diag}
}

func (c *Distance) Classify(rows []models.Row, _ models.Regime) []models.Label {
	out := make([]models.Label, len(rows))
	for i, r := range rows {
		out[i] = c.ClassifyRow(r)
	}
	return out
}

var _ domsvc.Classifier = (*Distance)(nil)
