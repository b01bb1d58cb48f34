package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
	domrepo "github.com/carolinacraus/market-state-api/internal/domain/repository"
	applogger "github.com/carolinacraus/market-state-api/pkg/logger"
)

const labelInsertChunk = 2000

// LabelSchema returns the DDL for the regime label table. ReplacingMergeTree
// keyed on (classifier, date) keeps the newest version of a relabeled day.
func LabelSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.market_regimes (
    classifier LowCardinality(String),
    date Date,
    regime LowCardinality(String),
    confidence Float64,
    diagnostic String,
    updated_at DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree(updated_at)
ORDER BY (classifier, date)`, database),
	}
}

// CHLabelStore implements LabelSink backed by ClickHouse.
type CHLabelStore struct {
	db    *sql.DB
	table string
	now   func() time.Time
	l     *applogger.Logger
}

var _ domrepo.LabelSink = (*CHLabelStore)(nil)

func NewCHLabelStore(db *sql.DB, database string) *CHLabelStore {
	return &CHLabelStore{
		db:    db,
		table: database + ".market_regimes",
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger injects a structured logger.
func (s *CHLabelStore) SetLogger(l *applogger.Logger) { s.l = l }

// StoreLabels upserts labels using multi-row inserts.
func (s *CHLabelStore) StoreLabels(ctx context.Context, classifier string, labels []models.Label) error {
	if len(labels) == 0 {
		return nil
	}
	start := time.Now()
	version := s.now()
	for lo := 0; lo < len(labels); lo += labelInsertChunk {
		hi := min(lo+labelInsertChunk, len(labels))
		values := make([]string, 0, hi-lo)
		args := make([]interface{}, 0, (hi-lo)*6)
		for _, l := range labels[lo:hi] {
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args, classifier, l.Date, string(l.Regime), l.Confidence, l.Diagnostic, version)
		}
		q := fmt.Sprintf("INSERT INTO %s (classifier, date, regime, confidence, diagnostic, updated_at) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse store_labels error",
				applogger.String("table", s.table),
				applogger.String("classifier", classifier),
				applogger.Int("rows", hi-lo),
				applogger.Error(err),
			)
			return fmt.Errorf("insert labels: %w", err)
		}
	}
	s.l.Info("clickhouse store_labels ok",
		applogger.String("classifier", classifier),
		applogger.Int("rows", len(labels)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

// LatestLabels returns the newest limit labels in ascending date order.
func (s *CHLabelStore) LatestLabels(ctx context.Context, classifier string, limit int) ([]models.Label, error) {
	q := fmt.Sprintf(`
        SELECT date, regime, confidence, diagnostic
        FROM %s FINAL
        WHERE classifier = ?
        ORDER BY date DESC
        LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, classifier, limit)
	if err != nil {
		s.l.Error("clickhouse latest_labels query error",
			applogger.String("classifier", classifier),
			applogger.Int("limit", limit),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("latest labels: %w", err)
	}
	defer rows.Close()

	out := make([]models.Label, 0, limit)
	for rows.Next() {
		var (
			l      models.Label
			regime string
		)
		if err := rows.Scan(&l.Date, &regime, &l.Confidence, &l.Diagnostic); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		l.Date = l.Date.UTC()
		l.Regime = models.Regime(regime)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
