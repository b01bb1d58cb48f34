package analytics

import (
	"fmt"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
	domsvc "github.com/carolinacraus/market-state-api/internal/domain/service"
)

// SwitchGap is the score margin a challenger needs over the sustained regime.
const SwitchGap = 2

// hysteresisRule scores one regime. ATR is read in percent (Normalized_ATR * 100).
type hysteresisRule struct {
	regime models.Regime
	// requires gates the regime on the currently sustained one; empty means always scored.
	requires                models.Regime
	sp5, rsi, vix, atr, bbw Ladder
}

// Rules in tie-break order.
var hysteresisRules = []hysteresisRule{
	{
		regime: SteadyClimb,
		sp5:    Ladder{{Gt(1.5), 4}, {OpenClosed(0.5, 1.5), 2}},
		rsi:    Ladder{{Closed(50, 70), 2}},
		vix:    Ladder{{Lt(16), 2}},
		atr:    Ladder{{Lt(1.2), 2}},
		bbw:    Ladder{{Lt(4), 2}},
	},
	{
		regime:   TrendPullback,
		requires: SteadyClimb,
		sp5:      Ladder{{Closed(-2, -0.2), 4}, {OpenClosed(-0.2, 0.5), 2}},
		rsi:      Ladder{{Closed(45, 60), 2}},
		vix:      Ladder{{Le(20), 2}},
		atr:      Ladder{{Lt(1.6), 2}},
		bbw:      Ladder{{Lt(5.5), 2}},
	},
	{
		regime: OrderlyDecline,
		sp5:    Ladder{{Closed(-3.5, -0.5), 4}, {ClosedOpen(-5, -3.5), 2}},
		rsi:    Ladder{{Closed(35, 50), 2}},
		vix:    Ladder{{Closed(15, 22), 2}},
		atr:    Ladder{{Gt(1), 2}},
		bbw:    Ladder{{Ge(4), 2}},
	},
	{
		regime: SharpDecline,
		sp5:    Ladder{{Lt(-3.5), 4}, {Closed(-3.5, -2), 2}},
		rsi:    Ladder{{Lt(40), 2}},
		vix:    Ladder{{Gt(22), 2}},
		atr:    Ladder{{Gt(1.5), 2}},
		bbw:    Ladder{{Gt(5), 2}},
	},
	{
		regime: VolatileChop,
		sp5:    Ladder{{Closed(-1, 1), 4}},
		rsi:    Ladder{{Closed(45, 55), 2}},
		vix:    Ladder{{Closed(16, 24), 2}},
		atr:    Ladder{{Closed(1, 1.7), 2}},
		bbw:    Ladder{{Closed(4, 6), 2}},
	},
}

// RegimeScore is one regime's point total for a row.
type RegimeScore struct {
	Regime models.Regime
	Score  int
}

// Hysteresis keeps the sustained regime unless a challenger outscores it by
// at least SwitchGap. It is a fold over rows; the only state is the
// sustained regime, passed in and returned explicitly.
type Hysteresis struct {
	sp5, rsi, vix, atr, bbw input
}

func NewHysteresis(in Inputs) *Hysteresis {
	return &Hysteresis{
		sp5: in.pct(models.SymbolSP500),
		rsi: in.rsi(),
		vix: closeOf(models.SymbolVIX),
		atr: indicator(models.NormalizedATRKey),
		bbw: indicator(models.BBWKey),
	}
}

func (c *Hysteresis) Name() string        { return "hysteresis" }
func (c *Hysteresis) ScoreColumn() string { return "Score" }

// Scores evaluates every regime eligible under the sustained one.
func (c *Hysteresis) Scores(r models.Row, sustained models.Regime) []RegimeScore {
	atr := c.atr.get(r)
	if atr.OK {
		atr.V *= 100
	}
	sp5, rsi, vix, bbw := c.sp5.get(r), c.rsi.get(r), c.vix.get(r), c.bbw.get(r)

	out := make([]RegimeScore, 0, len(hysteresisRules))
	for _, rule := range hysteresisRules {
		if rule.requires != "" && rule.requires != sustained {
			continue
		}
		out = append(out, RegimeScore{
			Regime: rule.regime,
			Score: rule.sp5.Score(sp5) + rule.rsi.Score(rsi) + rule.vix.Score(vix) +
				rule.atr.Score(atr) + rule.bbw.Score(bbw),
		})
	}
	return out
}

// Step classifies one row given the sustained regime and returns the label
// together with the new sustained regime.
func (c *Hysteresis) Step(r models.Row, sustained models.Regime) (models.Label, models.Regime) {
	scores := c.Scores(r, sustained)

	best := scores[0]
	for _, s := range scores[1:] {
		if s.Score > best.Score {
			best = s
		}
	}

	if sustained != "" {
		current := 0
		for _, s := range scores {
			if s.Regime == sustained {
				current = s.Score
			}
		}
		if best.Score-current < SwitchGap {
			best = RegimeScore{Regime: sustained, Score: current}
		}
	}

	prev := string(sustained)
	if prev == "" {
		prev = "None"
	}
	diag := fmt.Sprintf("SP500: %s%%, RSI: %s, VIX: %s, ATR: %s, BBW: %s, PrevState: %s, Score: %d",
		fmtv("%+.2f", c.sp5.get(r)), fmtv("%.1f", c.rsi.get(r)), fmtv("%.2f", c.vix.get(r)),
		fmtv("%.4f", c.atr.get(r)), fmtv("%.2f", c.bbw.get(r)), prev, best.Score)

	return models.Label{
		Date:       r.Date,
		Regime:     best.Regime,
		Confidence: float64(best.Score),
		Diagnostic: diag,
	}, best.Regime
}

// Classify folds Step over rows starting from prior.
func (c *Hysteresis) Classify(rows []models.Row, prior models.Regime) []models.Label {
	out := make([]models.Label, len(rows))
	state := prior
	if !isHysteresisRegime(state) {
		state = ""
	}
	for i, r := range rows {
		out[i], state = c.Step(r, state)
	}
	return out
}

var _ domsvc.Classifier = (*Hysteresis)(nil)

func isHysteresisRegime(r models.Regime) bool {
	for _, rule := range hysteresisRules {
		if rule.regime == r {
			return true
		}
	}
	return false
}
