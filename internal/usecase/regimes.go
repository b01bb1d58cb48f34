package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
	"github.com/carolinacraus/market-state-api/pkg/cache"
	applogger "github.com/carolinacraus/market-state-api/pkg/logger"
)

// RegimesCacheKey is the cache key holding a classifier's ledger tail.
func RegimesCacheKey(classifier string) string {
	return "regimes:" + classifier
}

// RegimePoint is one ledger line as served to readers.
type RegimePoint struct {
	Date       string        `json:"date"`
	Regime     models.Regime `json:"regime"`
	Diagnostic string        `json:"diagnostic,omitempty"`
}

// RegimeReader serves recent ledger entries, cached between runs.
type RegimeReader struct {
	variants map[string]Variant
	cache    cache.Service
	ttl      time.Duration
	l        *applogger.Logger
}

// NewRegimeReader reads the ledgers owned by p's variants. c may be nil.
func NewRegimeReader(p *Pipeline, c cache.Service, ttl time.Duration, l *applogger.Logger) *RegimeReader {
	vs := make(map[string]Variant, len(p.d.Variants))
	for _, v := range p.d.Variants {
		vs[v.Classifier.Name()] = v
	}
	return &RegimeReader{variants: vs, cache: c, ttl: ttl, l: l}
}

// Latest returns up to limit of the most recent entries, oldest first.
func (r *RegimeReader) Latest(ctx context.Context, classifier string, limit int) ([]RegimePoint, error) {
	v, ok := r.variants[classifier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClassifier, classifier)
	}

	var all []RegimePoint
	key := RegimesCacheKey(classifier)
	if r.cache != nil {
		err := r.cache.Get(ctx, key, &all)
		if err == nil {
			return tail(all, limit), nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.l.Warn("regimes cache read failed", applogger.String("classifier", classifier), applogger.Error(err))
		}
	}

	entries, err := v.Log.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s ledger: %w", classifier, err)
	}
	all = make([]RegimePoint, len(entries))
	for i, e := range entries {
		all[i] = RegimePoint{Date: models.DayKey(e.Date), Regime: e.Regime, Diagnostic: e.Diagnostic}
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, key, all, r.ttl); err != nil {
			r.l.Warn("regimes cache write failed", applogger.String("classifier", classifier), applogger.Error(err))
		}
	}
	return tail(all, limit), nil
}

func tail(xs []RegimePoint, n int) []RegimePoint {
	if n <= 0 || n >= len(xs) {
		return xs
	}
	return xs[len(xs)-n:]
}
