package models

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrUnsortedPanel reports rows that are not strictly increasing by date.
var ErrUnsortedPanel = errors.New("panel dates are not strictly increasing")

const dayLayout = "2006-01-02"

// DayKey is the map key used for trading-day lookups.
func DayKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// Row is one trading day: raw observations, derived indicators and an optional label.
// A missing map entry is a missing value.
type Row struct {
	Date       time.Time
	Fields     map[string]float64
	Indicators map[IndicatorKey]float64
	Label      *Label
}

func NewRow(date time.Time) Row {
	return Row{
		Date:       date,
		Fields:     make(map[string]float64),
		Indicators: make(map[IndicatorKey]float64),
	}
}

func (r Row) Field(name string) Value {
	v, ok := r.Fields[name]
	if !ok {
		return None
	}
	return Some(v)
}

func (r Row) Close(symbol string) Value {
	return r.Field(CloseField(symbol))
}

func (r Row) Indicator(k IndicatorKey) Value {
	v, ok := r.Indicators[k]
	if !ok {
		return None
	}
	return Some(v)
}

// SetField stores v; non-finite values are dropped.
func (r *Row) SetField(name string, v float64) {
	if r.Fields == nil {
		r.Fields = make(map[string]float64)
	}
	if val := Some(v); val.OK {
		r.Fields[name] = v
	}
}

// SetIndicator stores a defined value and ignores an undefined one.
func (r *Row) SetIndicator(k IndicatorKey, v Value) {
	if !v.OK {
		return
	}
	if r.Indicators == nil {
		r.Indicators = make(map[IndicatorKey]float64)
	}
	r.Indicators[k] = v.V
}

// Clone deep-copies the row.
func (r Row) Clone() Row {
	out := NewRow(r.Date)
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	for k, v := range r.Indicators {
		out.Indicators[k] = v
	}
	if r.Label != nil {
		l := *r.Label
		out.Label = &l
	}
	return out
}

// Panel is a date-indexed table, one row per trading day, ordered ascending.
// Fields and Indicators fix the column order used when the panel is persisted.
type Panel struct {
	Fields     []string
	Indicators []IndicatorKey
	Rows       []Row
}

func (p *Panel) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Rows)
}

// Validate checks the strictly-increasing date invariant.
func (p *Panel) Validate() error {
	for i := 1; i < p.Len(); i++ {
		if !p.Rows[i].Date.After(p.Rows[i-1].Date) {
			return fmt.Errorf("%w: %s after %s", ErrUnsortedPanel,
				DayKey(p.Rows[i].Date), DayKey(p.Rows[i-1].Date))
		}
	}
	return nil
}

// LastDate returns the last trading day of the panel.
func (p *Panel) LastDate() (time.Time, bool) {
	if p.Len() == 0 {
		return time.Time{}, false
	}
	return p.Rows[len(p.Rows)-1].Date, true
}

// Dates returns the set of trading days present.
func (p *Panel) Dates() map[string]struct{} {
	out := make(map[string]struct{}, p.Len())
	if p == nil {
		return out
	}
	for _, r := range p.Rows {
		out[DayKey(r.Date)] = struct{}{}
	}
	return out
}

// HasField reports whether any row carries the raw column.
func (p *Panel) HasField(name string) bool {
	for _, f := range p.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// AddField registers a raw column, keeping first-seen order.
func (p *Panel) AddField(name string) {
	if !p.HasField(name) {
		p.Fields = append(p.Fields, name)
	}
}

// AddIndicator registers a derived column, keeping first-seen order.
func (p *Panel) AddIndicator(k IndicatorKey) {
	for _, have := range p.Indicators {
		if have == k {
			return
		}
	}
	p.Indicators = append(p.Indicators, k)
}

// Filter returns a shallow copy holding only rows accepted by keep.
func (p *Panel) Filter(keep func(Row) bool) *Panel {
	out := &Panel{
		Fields:     append([]string(nil), p.Fields...),
		Indicators: append([]IndicatorKey(nil), p.Indicators...),
	}
	for _, r := range p.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// SortByDate orders rows ascending. Ties keep their relative order.
func (p *Panel) SortByDate() {
	sort.SliceStable(p.Rows, func(i, j int) bool {
		return p.Rows[i].Date.Before(p.Rows[j].Date)
	})
}

// MergeByDate combines two panels keyed by date. When both hold the same
// date the incoming row replaces the existing one. The result is sorted and
// carries the union of columns in first-seen order.
func MergeByDate(existing, incoming *Panel) *Panel {
	out := &Panel{}
	pos := make(map[string]int)
	for _, src := range []*Panel{existing, incoming} {
		if src == nil {
			continue
		}
		for _, f := range src.Fields {
			out.AddField(f)
		}
		for _, k := range src.Indicators {
			out.AddIndicator(k)
		}
		for _, r := range src.Rows {
			key := DayKey(r.Date)
			if i, ok := pos[key]; ok {
				out.Rows[i] = r.Clone()
				continue
			}
			pos[key] = len(out.Rows)
			out.Rows = append(out.Rows, r.Clone())
		}
	}
	out.SortByDate()
	return out
}

// JoinFields copies the raw columns of extra onto rows of base with the same
// date. Dates only present in extra are ignored, keeping base's trading days.
func JoinFields(base, extra *Panel) *Panel {
	out := MergeByDate(base, nil)
	if extra.Len() == 0 {
		return out
	}
	byDate := make(map[string]Row, extra.Len())
	for _, r := range extra.Rows {
		byDate[DayKey(r.Date)] = r
	}
	for _, f := range extra.Fields {
		out.AddField(f)
	}
	for i := range out.Rows {
		src, ok := byDate[DayKey(out.Rows[i].Date)]
		if !ok {
			continue
		}
		for k, v := range src.Fields {
			out.Rows[i].SetField(k, v)
		}
	}
	return out
}
