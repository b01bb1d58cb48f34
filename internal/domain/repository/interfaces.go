package repository

import (
	"context"
	"errors"
	"time"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
)

var (
	// ErrNotFound reports a persisted artifact that does not exist yet.
	ErrNotFound = errors.New("artifact not found")
	// ErrLocked reports another run holding the pipeline lock.
	ErrLocked = errors.New("pipeline run already in progress")
)

// PanelStore persists one date-indexed panel.
type PanelStore interface {
	Load(ctx context.Context) (*models.Panel, error)
	Save(ctx context.Context, p *models.Panel) error
	Name() string
}

// LabelLog is an append-only regime ledger. Existing dates always win.
type LabelLog interface {
	Entries(ctx context.Context) ([]models.LogEntry, error)
	// Append writes labels whose date is not yet recorded and returns how many were written.
	Append(ctx context.Context, labels []models.Label) (int, error)
	// Rewrite replaces the ledger; only an explicit full rebuild calls it.
	Rewrite(ctx context.Context, labels []models.Label) error
}

// LabelSink stores labels in an analytics database.
type LabelSink interface {
	StoreLabels(ctx context.Context, classifier string, labels []models.Label) error
	LatestLabels(ctx context.Context, classifier string, limit int) ([]models.Label, error)
}

// Publisher emits label events to downstream consumers.
type Publisher interface {
	PublishLabels(ctx context.Context, classifier string, labels []models.Label) error
	Close() error
}

// Uploader pushes a ledger to the relational store consumed by the dashboard.
type Uploader interface {
	Upload(ctx context.Context, classifier string, entries []models.LogEntry) (int, error)
}

// RunLock guards against concurrent pipeline runs.
type RunLock interface {
	Acquire(ctx context.Context, ttl time.Duration) (release func(), err error)
}

type Metrics interface {
	RecordStep(step string, seconds float64)
	RecordError(kind string)
	RecordRowsAppended(artifact string, n int)
	RecordRegime(classifier string, regime string)
	RecordRun(success bool)
}

// Watermark remembers the last trading day delivered to downstream sinks.
type Watermark interface {
	Get(ctx context.Context) (day time.Time, ok bool, err error)
	Set(ctx context.Context, day time.Time) error
}
