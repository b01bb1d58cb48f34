package repository

import (
	"context"
	"time"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
)

// MarketSource returns daily OHLCV rows for all configured instruments between
// from and to inclusive. Rows are trading days only.
type MarketSource interface {
	FetchBars(ctx context.Context, from, to time.Time) (*models.Panel, error)
}

// BreadthSource returns daily NYAD/NYMO quintuples between from and to inclusive.
type BreadthSource interface {
	FetchBreadth(ctx context.Context, from, to time.Time) (*models.Panel, error)
}
