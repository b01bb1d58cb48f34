package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
	domrepo "github.com/carolinacraus/market-state-api/internal/domain/repository"
	applogger "github.com/carolinacraus/market-state-api/pkg/logger"
)

// UploadList is the market_states row a classifier's ledger is stored under.
type UploadList struct {
	ID          int
	Name        string
	Description string
}

// PGUploader writes ledgers into market_state_direction, resolving regime
// names through market_state_categories.
type PGUploader struct {
	db      *sqlx.DB
	lists   map[string]UploadList
	timeout time.Duration
	l       *applogger.Logger
}

var _ domrepo.Uploader = (*PGUploader)(nil)

func NewPGUploader(db *sqlx.DB, lists map[string]UploadList, timeout time.Duration) *PGUploader {
	return &PGUploader{db: db, lists: lists, timeout: timeout}
}

// SetLogger injects a structured logger.
func (u *PGUploader) SetLogger(l *applogger.Logger) { u.l = l }

// Upload inserts entries whose date is not yet stored for the classifier's
// list, in one transaction. Entries with an unknown regime are skipped.
func (u *PGUploader) Upload(ctx context.Context, classifier string, entries []models.LogEntry) (int, error) {
	list, ok := u.lists[classifier]
	if !ok {
		return 0, fmt.Errorf("no upload list configured for %q", classifier)
	}
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	tx, err := u.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upload: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO market_states (id, name, description) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		list.ID, list.Name, list.Description); err != nil {
		return 0, fmt.Errorf("ensure list %d: %w", list.ID, err)
	}

	var cats []struct {
		ID       int    `db:"id"`
		Category string `db:"category"`
	}
	if err := tx.SelectContext(ctx, &cats, `SELECT id, category FROM market_state_categories`); err != nil {
		return 0, fmt.Errorf("load categories: %w", err)
	}
	direction := make(map[string]int, len(cats))
	for _, c := range cats {
		direction[strings.TrimSpace(c.Category)] = c.ID
	}

	var stored []time.Time
	if err := tx.SelectContext(ctx, &stored,
		`SELECT date FROM market_state_direction WHERE market_state_id = $1`, list.ID); err != nil {
		return 0, fmt.Errorf("load stored dates: %w", err)
	}
	seen := make(map[string]struct{}, len(stored))
	for _, d := range stored {
		seen[d.Format("2006-01-02")] = struct{}{}
	}

	stmt, err := tx.PreparexContext(ctx,
		`INSERT INTO market_state_direction (market_state_id, date, direction) VALUES ($1, $2, $3)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted, unknown := 0, 0
	for _, e := range entries {
		key := models.DayKey(e.Date)
		if _, dup := seen[key]; dup {
			continue
		}
		id, ok := direction[strings.TrimSpace(string(e.Regime))]
		if !ok {
			unknown++
			continue
		}
		if _, err := stmt.ExecContext(ctx, list.ID, key, id); err != nil {
			return 0, fmt.Errorf("insert %s: %w", key, err)
		}
		seen[key] = struct{}{}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upload: %w", err)
	}

	if unknown > 0 {
		u.l.Warn("upload skipped unknown regimes",
			applogger.String("classifier", classifier),
			applogger.Int("skipped", unknown),
		)
	}
	u.l.Info("ledger uploaded",
		applogger.String("classifier", classifier),
		applogger.Int("list_id", list.ID),
		applogger.Int("inserted", inserted),
	)
	return inserted, nil
}
