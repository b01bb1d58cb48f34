package features

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
	applogger "github.com/carolinacraus/market-state-api/pkg/logger"
)

// Options holds the indicator windows in trading days.
type Options struct {
	PctWindow         int
	ROCWindow         int
	RSIWindow         int
	SlopeWindow       int
	SMAWindow         int
	IntermarketWindow int
	BBWWindow         int
}

func DefaultOptions() Options {
	return Options{
		PctWindow:         5,
		ROCWindow:         10,
		RSIWindow:         14,
		SlopeWindow:       20,
		SMAWindow:         3,
		IntermarketWindow: 5,
		BBWWindow:         20,
	}
}

// Engine derives the indicator panel from a raw panel. It is a pure function
// of its input; the logger only reports skipped indicators.
type Engine struct {
	opts Options
	l    *applogger.Logger
}

func NewEngine(opts Options, l *applogger.Logger) *Engine {
	if l == nil {
		l = applogger.Nop()
	}
	return &Engine{opts: opts, l: l}
}

func (e *Engine) Options() Options { return e.opts }

// Lookback is the number of preceding rows any indicator at t can depend on.
func (e *Engine) Lookback() int {
	m := 0
	for _, w := range []int{e.opts.PctWindow, e.opts.ROCWindow, e.opts.RSIWindow, e.opts.SlopeWindow,
		e.opts.SMAWindow, e.opts.IntermarketWindow, e.opts.BBWWindow} {
		if w > m {
			m = w
		}
	}
	return m
}

type symbolSeries struct {
	keys   []models.IndicatorKey
	values [][]models.Value
}

// Compute returns a copy of raw with every indicator column filled in.
// Per-instrument indicators are produced for every Close_<sym> column.
// Panel-level indicators needing a missing input are skipped with a warning.
func (e *Engine) Compute(ctx context.Context, raw *models.Panel) (*models.Panel, error) {
	if err := raw.Validate(); err != nil {
		return nil, err
	}
	out := models.MergeByDate(raw, nil)

	var symbols []string
	for _, f := range raw.Fields {
		if sym, ok := strings.CutPrefix(f, "Close_"); ok {
			symbols = append(symbols, sym)
		}
	}

	results := make([]symbolSeries, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	for i, sym := range symbols {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.perInstrument(column(out, sym), sym)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compute indicators: %w", err)
	}

	for _, res := range results {
		for j, k := range res.keys {
			put(out, k, res.values[j])
		}
	}

	if out.HasField(models.CloseField(models.SymbolSP500)) {
		spx := column(out, models.SymbolSP500)
		put(out, models.BBWKey, BandWidth(spx, e.opts.BBWWindow))
		slope := Slope(spx, e.opts.IntermarketWindow)
		put(out, models.NormalizedATRKey, Ratio(slope, spx))
	} else {
		e.l.Warn("Close_SP500 missing, skipping BBW and Normalized_ATR")
	}

	if out.HasField(models.CloseField(models.SymbolRSP)) && out.HasField(models.CloseField(models.SymbolSPY)) {
		put(out, models.RSPSPYRatioKey, Ratio(column(out, models.SymbolRSP), column(out, models.SymbolSPY)))
	} else {
		e.l.Debug("RSP/SPY pair incomplete, skipping ratio")
	}

	return out, nil
}

// ComputeDates computes indicators over raw and keeps only the rows whose
// date is in want. Only the rows needed as lookback context are evaluated.
func (e *Engine) ComputeDates(ctx context.Context, raw *models.Panel, want map[string]struct{}) (*models.Panel, error) {
	first := -1
	for i, r := range raw.Rows {
		if _, ok := want[models.DayKey(r.Date)]; ok {
			first = i
			break
		}
	}
	if first < 0 {
		return raw.Filter(func(models.Row) bool { return false }), nil
	}

	start := first - e.Lookback()
	if start < 0 {
		start = 0
	}
	window := &models.Panel{Fields: raw.Fields, Indicators: raw.Indicators, Rows: raw.Rows[start:]}
	full, err := e.Compute(ctx, window)
	if err != nil {
		return nil, err
	}
	return full.Filter(func(r models.Row) bool {
		_, ok := want[models.DayKey(r.Date)]
		return ok
	}), nil
}

func (e *Engine) perInstrument(close []models.Value, sym string) symbolSeries {
	o := e.opts
	keys := []models.IndicatorKey{
		models.PctChangeKey(sym, o.PctWindow),
		models.ROCKey(sym, o.ROCWindow),
		models.RSIKey(sym, o.RSIWindow),
		models.SlopeKey(sym, o.SlopeWindow),
		models.SMAKey(sym, o.SMAWindow),
		models.IntermarketSlopeKey(sym, o.IntermarketWindow),
	}
	values := [][]models.Value{
		PctChange(close, o.PctWindow),
		PctChange(close, o.ROCWindow),
		RSI(close, o.RSIWindow),
		Slope(close, o.SlopeWindow),
		SMA(close, o.SMAWindow),
		Slope(close, o.IntermarketWindow),
	}
	return symbolSeries{keys: keys, values: values}
}

func column(p *models.Panel, sym string) []models.Value {
	name := models.CloseField(sym)
	out := make([]models.Value, len(p.Rows))
	for i, r := range p.Rows {
		out[i] = r.Field(name)
	}
	return out
}

func put(p *models.Panel, k models.IndicatorKey, values []models.Value) {
	p.AddIndicator(k)
	for i := range p.Rows {
		if p.Rows[i].Indicators != nil {
			delete(p.Rows[i].Indicators, k)
		}
		p.Rows[i].SetIndicator(k, values[i])
	}
}
