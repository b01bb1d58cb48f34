package analytics

import (
	"fmt"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
	domsvc "github.com/carolinacraus/market-state-api/internal/domain/service"
)

const (
	BullishBreakout models.Regime = "Bullish Breakout"
	RiskOffRotation models.Regime = "Risk-Off Rotation"
)

// Threshold inputs, by name.
const (
	inSP500  = "sp500"
	inYield  = "yield"
	inDXY    = "dxy"
	inOil    = "oil"
	inCopper = "copper"
	inGold   = "gold"
	inVIX    = "vix"
	inSlope  = "slope"
	inRSI    = "rsi"
	inATR    = "atr"
	inBBW    = "bbw"
	inNYAD   = "nyad"
	inNYMO   = "nymo"
)

type thresholdRegime struct {
	regime models.Regime
	// one ladder per input; an input appears at most once
	rules map[string]Ladder
}

// Regimes in tie-break order. Percent changes are 5-day; ATR is the
// normalized 5-day slope (signed); BBW is a width ratio.
var thresholdRegimes = []thresholdRegime{
	{BullishBreakout, map[string]Ladder{
		inSP500:  {{Gt(3), 4}, {OpenClosed(2, 3), 2}},
		inSlope:  {{Gt(0.5), 4}},
		inRSI:    {{Gt(65), 2}},
		inVIX:    {{Lt(15), 2}},
		inNYMO:   {{Gt(50), 2}},
		inNYAD:   {{Gt(0), 2}},
		inCopper: {{Gt(2), 2}},
		inYield:  {{Gt(0), 2}},
	}},
	{SteadyClimb, map[string]Ladder{
		inSP500: {{Closed(0.5, 3), 4}},
		inSlope: {{Closed(0.2, 0.5), 4}, {Gt(0.5), 2}},
		inRSI:   {{Closed(50, 65), 2}},
		inVIX:   {{Lt(18), 2}},
		inATR:   {{ClosedOpen(0, 0.01), 2}},
		inBBW:   {{Lt(0.05), 2}},
		inDXY:   {{Closed(-1, 1), 2}},
		inNYAD:  {{Gt(0), 2}},
	}},
	{TrendPullback, map[string]Ladder{
		inSP500: {{ClosedOpen(-2, -0.5), 4}},
		inSlope: {{Gt(0.2), 4}},
		inRSI:   {{ClosedOpen(40, 50), 2}},
		inVIX:   {{Closed(16, 22), 2}},
		inNYMO:  {{ClosedOpen(-40, 0), 2}},
		inGold:  {{Gt(0), 2}},
	}},
	{VolatileChop, map[string]Ladder{
		inSP500: {{Closed(-1, 1), 4}},
		inSlope: {{Closed(-0.2, 0.2), 4}},
		inVIX:   {{Closed(20, 28), 2}},
		inBBW:   {{Gt(0.08), 2}},
		inATR:   {{Gt(0.012), 2}},
		inRSI:   {{Closed(40, 60), 2}},
	}},
	{OrderlyDecline, map[string]Ladder{
		inSP500: {{Closed(-3.5, -1), 4}},
		inSlope: {{Closed(-0.5, -0.2), 4}, {Lt(-0.5), 2}},
		inRSI:   {{Closed(30, 45), 2}},
		inVIX:   {{Closed(18, 28), 2}},
		inNYAD:  {{Lt(0), 2}},
		inYield: {{Lt(0), 2}},
		inOil:   {{Lt(0), 2}},
	}},
	{SharpDecline, map[string]Ladder{
		inSP500:  {{Lt(-3.5), 4}, {Closed(-3.5, -2), 2}},
		inSlope:  {{Lt(-0.5), 4}},
		inVIX:    {{Gt(28), 4}, {OpenClosed(22, 28), 2}},
		inRSI:    {{Lt(30), 2}},
		inATR:    {{Lt(-0.01), 2}},
		inBBW:    {{Gt(0.1), 2}},
		inNYMO:   {{Lt(-50), 2}},
		inGold:   {{Gt(1), 2}},
		inDXY:    {{Gt(1), 2}},
		inCopper: {{Lt(-2), 2}},
	}},
	{RiskOffRotation, map[string]Ladder{
		inYield:  {{Lt(-3), 4}},
		inGold:   {{Gt(2), 4}},
		inDXY:    {{Gt(1), 2}},
		inOil:    {{Lt(-3), 2}},
		inCopper: {{Lt(-2), 2}},
		inVIX:    {{Closed(18, 30), 2}},
		inSP500:  {{Closed(-2, 0.5), 2}},
		inNYAD:   {{Lt(0), 2}},
	}},
}

// Threshold sums bucket points per regime and picks the highest total.
// Confidence is the winning score; the diagnostic reports it against the
// largest total any regime can reach.
type Threshold struct {
	inputs   map[string]input
	maxScore int
}

func NewThreshold(in Inputs) *Threshold {
	return &Threshold{
		inputs: map[string]input{
			inSP500:  in.pct(models.SymbolSP500),
			inYield:  in.pct(models.SymbolYield),
			inDXY:    in.pct(models.SymbolDXY),
			inOil:    in.pct(models.SymbolOil),
			inCopper: in.pct(models.SymbolCopper),
			inGold:   in.pct(models.SymbolGold),
			inVIX:    closeOf(models.SymbolVIX),
			inSlope:  in.slope(),
			inRSI:    in.rsi(),
			inATR:    indicator(models.NormalizedATRKey),
			inBBW:    indicator(models.BBWKey),
			inNYAD:   closeOf(models.SymbolNYAD),
			inNYMO:   closeOf(models.SymbolNYMO),
		},
		maxScore: MaxThresholdScore(),
	}
}

func (c *Threshold) Name() string        { return "threshold" }
func (c *Threshold) ScoreColumn() string { return "Score" }

// MaxScore is the diagnostic denominator.
func (c *Threshold) MaxScore() int { return c.maxScore }

// RegimeMax returns the best total a regime can reach: the sum over its
// inputs of each ladder's maximum. Inputs are scored independently.
func RegimeMax(regime models.Regime) int {
	for _, tr := range thresholdRegimes {
		if tr.regime != regime {
			continue
		}
		total := 0
		for _, l := range tr.rules {
			total += l.Max()
		}
		return total
	}
	return 0
}

// MaxThresholdScore is the largest RegimeMax over all regimes.
func MaxThresholdScore() int {
	best := 0
	for _, tr := range thresholdRegimes {
		if m := RegimeMax(tr.regime); m > best {
			best = m
		}
	}
	return best
}

// Scores returns every regime's total for the row in tie-break order.
func (c *Threshold) Scores(r models.Row) []RegimeScore {
	values := make(map[string]models.Value, len(c.inputs))
	for name, in := range c.inputs {
		values[name] = in.get(r)
	}
	out := make([]RegimeScore, len(thresholdRegimes))
	for i, tr := range thresholdRegimes {
		total := 0
		for name, l := range tr.rules {
			total += l.Score(values[name])
		}
		out[i] = RegimeScore{Regime: tr.regime, Score: total}
	}
	return out
}

func (c *Threshold) ClassifyRow(r models.Row) models.Label {
	scores := c.Scores(r)
	best := scores[0]
	for _, s := range scores[1:] {
		if s.Score > best.Score {
			best = s
		}
	}

	v := func(name string) models.Value { return c.inputs[name].get(r) }
	diag := fmt.Sprintf("SP500: %s%%, Yield: %s%%, DXY: %s%%, Oil: %s%%, Copper: %s%%, Gold: %s%%, "+
		"VIX: %s, MA20: %s, RSI: %s, ATR: %s, BBW: %s, NYAD: %s, NYMO: %s, Score: %d/%d",
		fmtv("%+.2f", v(inSP500)), fmtv("%+.2f", v(inYield)), fmtv("%+.2f", v(inDXY)), fmtv("%+.2f", v(inOil)),
		fmtv("%+.2f", v(inCopper)), fmtv("%+.2f", v(inGold)), fmtv("%.2f", v(inVIX)), fmtv("%+.2f", v(inSlope)),
		fmtv("%.1f", v(inRSI)), fmtv("%.4f", v(inATR)), fmtv("%.2f", v(inBBW)), fmtv("%.0f", v(inNYAD)),
		fmtv("%.2f", v(inNYMO)), best.Score, c.maxScore)

	return models.Label{Date: r.Date, Regime: best.Regime, Confidence: float64(best.Score), Diagnostic: diag}
}

func (c *Threshold) Classify(rows []models.Row, _ models.Regime) []models.Label {
	out := make([]models.Label, len(rows))
	for i, r := range rows {
		out[i] = c.ClassifyRow(r)
	}
	return out
}

var _ domsvc.Classifier = (*Threshold)(nil)
