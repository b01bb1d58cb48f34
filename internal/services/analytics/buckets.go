package analytics

import (
	"fmt"
	"math"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
)

// Range is an interval on the real line. Infinite ends are written as ±Inf.
type Range struct {
	Lo, Hi         float64
	LoOpen, HiOpen bool
}

func (r Range) Contains(x float64) bool {
	if r.LoOpen {
		if !(x > r.Lo) {
			return false
		}
	} else if !(x >= r.Lo) {
		return false
	}
	if r.HiOpen {
		return x < r.Hi
	}
	return x <= r.Hi
}

func (r Range) String() string {
	lb, rb := "[", "]"
	if r.LoOpen {
		lb = "("
	}
	if r.HiOpen {
		rb = ")"
	}
	return fmt.Sprintf("%s%g, %g%s", lb, r.Lo, r.Hi, rb)
}

var inf = math.Inf(1)

// Gt is (x, +Inf).
func Gt(x float64) Range { return Range{Lo: x, Hi: inf, LoOpen: true, HiOpen: true} }

// Ge is [x, +Inf).
func Ge(x float64) Range { return Range{Lo: x, Hi: inf, HiOpen: true} }

// Lt is (-Inf, x).
func Lt(x float64) Range { return Range{Lo: -inf, Hi: x, LoOpen: true, HiOpen: true} }

// Le is (-Inf, x].
func Le(x float64) Range { return Range{Lo: -inf, Hi: x, LoOpen: true} }

// Closed is [lo, hi].
func Closed(lo, hi float64) Range { return Range{Lo: lo, Hi: hi} }

// OpenClosed is (lo, hi].
func OpenClosed(lo, hi float64) Range { return Range{Lo: lo, Hi: hi, LoOpen: true} }

// ClosedOpen is [lo, hi).
func ClosedOpen(lo, hi float64) Range { return Range{Lo: lo, Hi: hi, HiOpen: true} }

// Any matches every defined value.
func Any() Range { return Range{Lo: -inf, Hi: inf, LoOpen: true, HiOpen: true} }

type tier struct {
	r   Range
	pts int
}

// Ladder is an ordered bucket list; the first tier containing the value
// scores. A missing value or a value outside every tier scores 0.
type Ladder []tier

func (l Ladder) Score(v models.Value) int {
	if !v.OK {
		return 0
	}
	return l.at(v.V)
}

func (l Ladder) at(x float64) int {
	for _, t := range l {
		if t.r.Contains(x) {
			return t.pts
		}
	}
	return 0
}

// Max is the highest score any real input can reach on this ladder.
// Every interval boundary and its immediate neighbours are sampled, which
// covers every region the tiers partition the line into.
func (l Ladder) Max() int {
	samples := []float64{-math.MaxFloat64, math.MaxFloat64}
	for _, t := range l {
		for _, b := range []float64{t.r.Lo, t.r.Hi} {
			if math.IsInf(b, 0) {
				continue
			}
			samples = append(samples, b, math.Nextafter(b, -inf), math.Nextafter(b, inf))
		}
	}
	best := 0
	for _, x := range samples {
		if s := l.at(x); s > best {
			best = s
		}
	}
	return best
}

// input extracts one scored quantity from a row.
type input struct {
	name string
	get  func(models.Row) models.Value
}

// Inputs names the indicator windows the classifiers read.
type Inputs struct {
	PctWindow   int
	RSIWindow   int
	SlopeWindow int
}

func DefaultInputs() Inputs {
	return Inputs{PctWindow: 5, RSIWindow: 14, SlopeWindow: 20}
}

func (in Inputs) pct(sym string) input {
	k := models.PctChangeKey(sym, in.PctWindow)
	return input{name: k.Column(), get: func(r models.Row) models.Value { return r.Indicator(k) }}
}

func (in Inputs) rsi() input {
	k := models.RSIKey(models.SymbolSP500, in.RSIWindow)
	return input{name: k.Column(), get: func(r models.Row) models.Value { return r.Indicator(k) }}
}

func (in Inputs) slope() input {
	k := models.SlopeKey(models.SymbolSP500, in.SlopeWindow)
	return input{name: k.Column(), get: func(r models.Row) models.Value { return r.Indicator(k) }}
}

func closeOf(sym string) input {
	name := models.CloseField(sym)
	return input{name: name, get: func(r models.Row) models.Value { return r.Field(name) }}
}

func indicator(k models.IndicatorKey) input {
	return input{name: k.Column(), get: func(r models.Row) models.Value { return r.Indicator(k) }}
}

// fmtv renders v with a printf verb, or n/a when missing.
func fmtv(verb string, v models.Value) string {
	if !v.OK {
		return "n/a"
	}
	return fmt.Sprintf(verb, v.V)
}
