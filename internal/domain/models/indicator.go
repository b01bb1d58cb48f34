package models

import (
	"fmt"
	"strconv"
	"strings"
)

type IndicatorKind string

const (
	KindPctChange        IndicatorKind = "pct_change"
	KindROC              IndicatorKind = "roc"
	KindRSI              IndicatorKind = "rsi"
	KindSlope            IndicatorKind = "slope"
	KindSMA              IndicatorKind = "sma"
	KindIntermarketSlope IndicatorKind = "intermarket_slope"
	KindBBW              IndicatorKind = "bbw"
	KindNormalizedATR    IndicatorKind = "normalized_atr"
	KindRatio            IndicatorKind = "ratio"
)

// IndicatorKey identifies a derived column by what it measures, on which
// instrument, over how many trading days.
type IndicatorKey struct {
	Kind   IndicatorKind
	Base   string
	Window int
}

// Panel-level indicators have a fixed column name and no window in the key.
var (
	BBWKey           = IndicatorKey{Kind: KindBBW, Base: SymbolSP500}
	NormalizedATRKey = IndicatorKey{Kind: KindNormalizedATR, Base: SymbolSP500}
	RSPSPYRatioKey   = IndicatorKey{Kind: KindRatio, Base: SymbolRSP + "/" + SymbolSPY}
)

func PctChangeKey(base string, window int) IndicatorKey {
	return IndicatorKey{Kind: KindPctChange, Base: base, Window: window}
}

func ROCKey(base string, window int) IndicatorKey {
	return IndicatorKey{Kind: KindROC, Base: base, Window: window}
}

func RSIKey(base string, window int) IndicatorKey {
	return IndicatorKey{Kind: KindRSI, Base: base, Window: window}
}

func SlopeKey(base string, window int) IndicatorKey {
	return IndicatorKey{Kind: KindSlope, Base: base, Window: window}
}

func SMAKey(base string, window int) IndicatorKey {
	return IndicatorKey{Kind: KindSMA, Base: base, Window: window}
}

func IntermarketSlopeKey(base string, window int) IndicatorKey {
	return IndicatorKey{Kind: KindIntermarketSlope, Base: base, Window: window}
}

// Column renders the key as its CSV column header.
func (k IndicatorKey) Column() string {
	switch k.Kind {
	case KindPctChange:
		return fmt.Sprintf("%dd_pct_%s", k.Window, k.Base)
	case KindROC:
		return fmt.Sprintf("%dd_ROC_%s", k.Window, k.Base)
	case KindRSI:
		return fmt.Sprintf("RSI_%d_%s", k.Window, k.Base)
	case KindSlope:
		return fmt.Sprintf("%dd_slope_%s", k.Window, k.Base)
	case KindSMA:
		return fmt.Sprintf("SMA_%d_%s", k.Window, k.Base)
	case KindIntermarketSlope:
		return fmt.Sprintf("%dd_Slope_%s", k.Window, k.Base)
	case KindBBW:
		return "BBW"
	case KindNormalizedATR:
		return "Normalized_ATR"
	case KindRatio:
		return k.Base + "_Ratio"
	default:
		return fmt.Sprintf("%s_%d_%s", k.Kind, k.Window, k.Base)
	}
}

func (k IndicatorKey) String() string { return k.Column() }

// ParseIndicatorColumn is the inverse of Column. Raw price columns and label
// columns report ok == false.
func ParseIndicatorColumn(col string) (IndicatorKey, bool) {
	switch col {
	case "BBW":
		return BBWKey, true
	case "Normalized_ATR":
		return NormalizedATRKey, true
	}
	if base, ok := strings.CutSuffix(col, "_Ratio"); ok && strings.Contains(base, "/") {
		return IndicatorKey{Kind: KindRatio, Base: base}, true
	}

	for prefix, kind := range map[string]IndicatorKind{"RSI_": KindRSI, "SMA_": KindSMA} {
		rest, ok := strings.CutPrefix(col, prefix)
		if !ok {
			continue
		}
		w, base, ok := strings.Cut(rest, "_")
		n, err := strconv.Atoi(w)
		if !ok || err != nil || n <= 0 || base == "" {
			return IndicatorKey{}, false
		}
		return IndicatorKey{Kind: kind, Base: base, Window: n}, true
	}

	w, rest, ok := strings.Cut(col, "_")
	if !ok || !strings.HasSuffix(w, "d") {
		return IndicatorKey{}, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(w, "d"))
	if err != nil || n <= 0 {
		return IndicatorKey{}, false
	}
	tag, base, ok := strings.Cut(rest, "_")
	if !ok || base == "" {
		return IndicatorKey{}, false
	}
	var kind IndicatorKind
	switch tag {
	case "pct":
		kind = KindPctChange
	case "ROC":
		kind = KindROC
	case "slope":
		kind = KindSlope
	case "Slope":
		kind = KindIntermarketSlope
	default:
		return IndicatorKey{}, false
	}
	return IndicatorKey{Kind: kind, Base: base, Window: n}, true
}
