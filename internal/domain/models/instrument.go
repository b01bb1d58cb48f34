package models

// Instrument symbols as they appear in column names.
const (
	SymbolSP500  = "SP500"
	SymbolYield  = "Yield"
	SymbolDXY    = "DXY"
	SymbolOil    = "Oil"
	SymbolCopper = "Copper"
	SymbolGold   = "Gold"
	SymbolVIX    = "VIX"
	SymbolRSP    = "RSP"
	SymbolSPY    = "SPY"
	SymbolNYAD   = "NYAD"
	SymbolNYMO   = "NYMO"
)

// Bar attributes of the raw OHLCV quintuple.
var BarAttributes = []string{"Open", "High", "Low", "Close", "Volume"}

// FieldName builds a raw column name such as Close_SP500.
func FieldName(attr, symbol string) string {
	return attr + "_" + symbol
}

func CloseField(symbol string) string {
	return FieldName("Close", symbol)
}

// Bar is one OHLCV observation of an instrument.
type Bar struct {
	Open   Value
	High   Value
	Low    Value
	Close  Value
	Volume Value
}

func (b Bar) values() []Value {
	return []Value{b.Open, b.High, b.Low, b.Close, b.Volume}
}

// Set writes the bar's present values into row under the symbol's columns.
func (b Bar) Set(row *Row, symbol string) {
	for i, v := range b.values() {
		if v.OK {
			row.SetField(FieldName(BarAttributes[i], symbol), v.V)
		}
	}
}
