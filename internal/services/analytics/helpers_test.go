package analytics

import (
	"time"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
)

var testDay = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

type rowInputs struct {
	sp5, slope, rsi, vix, atr, bbw *float64
	extra                          map[models.IndicatorKey]float64
	fields                         map[string]float64
}

func p(v float64) *float64 { return &v }

func makeRow(s rowInputs) models.Row {
	r := models.NewRow(testDay)
	set := func(k models.IndicatorKey, v *float64) {
		if v != nil {
			r.SetIndicator(k, models.Some(*v))
		}
	}
	set(models.PctChangeKey(models.SymbolSP500, 5), s.sp5)
	set(models.SlopeKey(models.SymbolSP500, 20), s.slope)
	set(models.RSIKey(models.SymbolSP500, 14), s.rsi)
	set(models.NormalizedATRKey, s.atr)
	set(models.BBWKey, s.bbw)
	if s.vix != nil {
		r.SetField(models.CloseField(models.SymbolVIX), *s.vix)
	}
	for k, v := range s.extra {
		r.SetIndicator(k, models.Some(v))
	}
	for k, v := range s.fields {
		r.SetField(k, v)
	}
	return r
}
