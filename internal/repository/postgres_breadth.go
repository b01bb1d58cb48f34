package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
	domrepo "github.com/carolinacraus/market-state-api/internal/domain/repository"
	applogger "github.com/carolinacraus/market-state-api/pkg/logger"
)

type breadthRow struct {
	Symbol string          `db:"symbol"`
	Date   time.Time       `db:"date"`
	Open   sql.NullFloat64 `db:"open"`
	High   sql.NullFloat64 `db:"high"`
	Low    sql.NullFloat64 `db:"low"`
	Close  sql.NullFloat64 `db:"close"`
	Volume sql.NullFloat64 `db:"volume"`
}

// PGBreadthSource reads advance/decline and oscillator series from the
// custom_symbols table.
type PGBreadthSource struct {
	db      *sqlx.DB
	symbols map[string]string // source symbol -> column suffix
	timeout time.Duration
	l       *applogger.Logger
}

var _ domrepo.BreadthSource = (*PGBreadthSource)(nil)

// NewPGBreadthSource maps source symbols such as "$NYAD.N" to column suffixes such as "NYAD".
func NewPGBreadthSource(db *sqlx.DB, symbols map[string]string, timeout time.Duration) *PGBreadthSource {
	return &PGBreadthSource{db: db, symbols: symbols, timeout: timeout}
}

// SetLogger injects a structured logger.
func (s *PGBreadthSource) SetLogger(l *applogger.Logger) { s.l = l }

func (s *PGBreadthSource) FetchBreadth(ctx context.Context, from, to time.Time) (*models.Panel, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	srcSymbols := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		srcSymbols = append(srcSymbols, sym)
	}
	sort.Strings(srcSymbols)

	const q = `
		SELECT symbol, date::date AS date, open, high, low, close, volume
		FROM custom_symbols
		WHERE symbol = ANY($1) AND date >= $2 AND date <= $3
		ORDER BY date ASC`
	var rows []breadthRow
	if err := s.db.SelectContext(ctx, &rows, q, pq.Array(srcSymbols), from, to); err != nil {
		s.l.Error("breadth query error",
			applogger.Date("from", from),
			applogger.Date("to", to),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("fetch breadth: %w", err)
	}

	p := &models.Panel{}
	for _, sym := range srcSymbols {
		for _, attr := range models.BarAttributes {
			p.AddField(models.FieldName(attr, s.symbols[sym]))
		}
	}
	pos := make(map[string]int)
	for _, r := range rows {
		suffix, ok := s.symbols[r.Symbol]
		if !ok {
			continue
		}
		day := time.Date(r.Date.Year(), r.Date.Month(), r.Date.Day(), 0, 0, 0, 0, time.UTC)
		key := models.DayKey(day)
		i, ok := pos[key]
		if !ok {
			i = len(p.Rows)
			pos[key] = i
			p.Rows = append(p.Rows, models.NewRow(day))
		}
		models.Bar{
			Open:   nullValue(r.Open),
			High:   nullValue(r.High),
			Low:    nullValue(r.Low),
			Close:  nullValue(r.Close),
			Volume: nullValue(r.Volume),
		}.Set(&p.Rows[i], suffix)
	}
	p.SortByDate()

	s.l.Info("breadth fetched",
		applogger.Date("from", from),
		applogger.Date("to", to),
		applogger.Int("rows", p.Len()),
	)
	return p, nil
}

func nullValue(v sql.NullFloat64) models.Value {
	if !v.Valid {
		return models.None
	}
	return models.Some(v.Float64)
}
