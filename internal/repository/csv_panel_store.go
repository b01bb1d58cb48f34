package repository

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
	domrepo "github.com/carolinacraus/market-state-api/internal/domain/repository"
	applogger "github.com/carolinacraus/market-state-api/pkg/logger"
	"github.com/carolinacraus/market-state-api/pkg/util"
)

// Label columns of a labeled panel.
const (
	ColDate        = "Date"
	ColMarketState = "MarketState"
	ColDiagnostics = "Diagnostics"
)

// CSVPanelStore persists a panel as a CSV file with a leading Date column.
// A labeled store additionally writes MarketState, the score column and
// Diagnostics after the indicator columns.
type CSVPanelStore struct {
	path     string
	scoreCol string
	l        *applogger.Logger
}

var _ domrepo.PanelStore = (*CSVPanelStore)(nil)

func NewCSVPanelStore(path string) *CSVPanelStore {
	return &CSVPanelStore{path: path}
}

// NewLabeledCSVPanelStore stores labels with scoreCol as the confidence header.
func NewLabeledCSVPanelStore(path, scoreCol string) *CSVPanelStore {
	return &CSVPanelStore{path: path, scoreCol: scoreCol}
}

// SetLogger injects a structured logger.
func (s *CSVPanelStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CSVPanelStore) Name() string { return filepath.Base(s.path) }

// Path is the file backing the store.
func (s *CSVPanelStore) Path() string { return s.path }

// Load reads the panel. Rows with an unparseable date are skipped; duplicate
// dates keep the last row. Returns ErrNotFound when the file does not exist.
func (s *CSVPanelStore) Load(ctx context.Context) (*models.Panel, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", s.Name(), domrepo.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Name(), err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return &models.Panel{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header %s: %w", s.Name(), err)
	}

	cols := s.classify(header)
	p := &models.Panel{}
	for _, c := range cols {
		switch c.kind {
		case colField:
			p.AddField(c.name)
		case colIndicator:
			p.AddIndicator(c.key)
		}
	}

	skipped := 0
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s line %d: %w", s.Name(), line, err)
		}
		row, ok := s.parseRow(cols, rec)
		if !ok {
			skipped++
			continue
		}
		p.Rows = append(p.Rows, row)
	}
	if skipped > 0 {
		s.l.Warn("panel rows with invalid date skipped",
			applogger.String("panel", s.Name()),
			applogger.Int("skipped", skipped),
		)
	}
	return models.MergeByDate(p, nil), nil
}

// Save writes the panel atomically: a temp file in the same directory is
// renamed over the target.
func (s *CSVPanelStore) Save(ctx context.Context, p *models.Panel) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("save %s: %w", s.Name(), err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+s.Name()+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", s.Name(), err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := s.write(ctx, bw, p); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush %s: %w", s.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.Name(), err)
	}
	s.l.Debug("panel saved",
		applogger.String("panel", s.Name()),
		applogger.Int("rows", p.Len()),
	)
	return nil
}

func (s *CSVPanelStore) write(ctx context.Context, w io.Writer, p *models.Panel) error {
	cw := csv.NewWriter(w)
	header := make([]string, 0, 1+len(p.Fields)+len(p.Indicators)+3)
	header = append(header, ColDate)
	header = append(header, p.Fields...)
	for _, k := range p.Indicators {
		header = append(header, k.Column())
	}
	if s.scoreCol != "" {
		header = append(header, ColMarketState, s.scoreCol, ColDiagnostics)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header %s: %w", s.Name(), err)
	}

	rec := make([]string, len(header))
	for _, row := range p.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec = rec[:0]
		rec = append(rec, util.FormatDay(row.Date))
		for _, f := range p.Fields {
			rec = append(rec, formatCell(row.Field(f)))
		}
		for _, k := range p.Indicators {
			rec = append(rec, formatCell(row.Indicator(k)))
		}
		if s.scoreCol != "" {
			if row.Label != nil {
				rec = append(rec, string(row.Label.Regime), formatCell(models.Some(row.Label.Confidence)), row.Label.Diagnostic)
			} else {
				rec = append(rec, "", "", "")
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write %s: %w", s.Name(), err)
		}
	}
	cw.Flush()
	return cw.Error()
}

type colKind int

const (
	colDate colKind = iota
	colField
	colIndicator
	colRegime
	colScore
	colDiagnostic
)

type column struct {
	kind colKind
	name string
	key  models.IndicatorKey
}

func (s *CSVPanelStore) classify(header []string) []column {
	out := make([]column, len(header))
	for i, h := range header {
		switch {
		case i == 0:
			out[i] = column{kind: colDate, name: h}
		case h == ColMarketState:
			out[i] = column{kind: colRegime, name: h}
		case h == ColDiagnostics:
			out[i] = column{kind: colDiagnostic, name: h}
		case s.scoreCol != "" && h == s.scoreCol:
			out[i] = column{kind: colScore, name: h}
		default:
			if k, ok := models.ParseIndicatorColumn(h); ok {
				out[i] = column{kind: colIndicator, name: h, key: k}
			} else {
				out[i] = column{kind: colField, name: h}
			}
		}
	}
	return out
}

func (s *CSVPanelStore) parseRow(cols []column, rec []string) (models.Row, bool) {
	if len(rec) == 0 {
		return models.Row{}, false
	}
	date, ok := util.ParseDay(rec[0])
	if !ok {
		return models.Row{}, false
	}
	row := models.NewRow(date)
	var label models.Label
	for i := 1; i < len(rec) && i < len(cols); i++ {
		cell := rec[i]
		switch cols[i].kind {
		case colField:
			if v, ok := parseCell(cell); ok {
				row.SetField(cols[i].name, v)
			}
		case colIndicator:
			if v, ok := parseCell(cell); ok {
				row.SetIndicator(cols[i].key, models.Some(v))
			}
		case colRegime:
			label.Regime = models.Regime(cell)
		case colScore:
			label.Confidence, _ = parseCell(cell)
		case colDiagnostic:
			label.Diagnostic = cell
		}
	}
	if label.Regime != "" {
		label.Date = date
		row.Label = &label
	}
	return row, true
}

func parseCell(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, models.Some(v).OK
}

// formatCell uses the shortest representation that round-trips exactly.
func formatCell(v models.Value) string {
	if !v.OK {
		return ""
	}
	return strconv.FormatFloat(v.V, 'g', -1, 64)
}
