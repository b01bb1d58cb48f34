package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndicatorColumnRoundTrip(t *testing.T) {
	keys := []IndicatorKey{
		PctChangeKey("SP500", 5),
		ROCKey("Gold", 10),
		RSIKey("SP500", 14),
		SlopeKey("SP500", 20),
		SMAKey("VIX", 3),
		IntermarketSlopeKey("DXY", 5),
		BBWKey,
		NormalizedATRKey,
		RSPSPYRatioKey,
	}
	want := []string{
		"5d_pct_SP500", "10d_ROC_Gold", "RSI_14_SP500", "20d_slope_SP500", "SMA_3_VIX", "5d_Slope_DXY",
		"BBW", "Normalized_ATR", "RSP/SPY_Ratio",
	}
	for i, k := range keys {
		assert.Equal(t, want[i], k.Column())
		got, ok := ParseIndicatorColumn(want[i])
		assert.True(t, ok, want[i])
		assert.Equal(t, k, got)
	}
}

func TestParseIndicatorColumnRejectsRawColumns(t *testing.T) {
	for _, col := range []string{"Date", "Close_SP500", "Volume_VIX", "MarketState", "Diagnostics", "RSI_x_SP500", "0d_pct_SP500", "5d_foo_SP500", "5d_pct_"} {
		_, ok := ParseIndicatorColumn(col)
		assert.False(t, ok, col)
	}
}
