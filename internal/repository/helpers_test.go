package repository

import (
	"time"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func label(date time.Time, regime string, conf float64, diag string) models.Label {
	return models.Label{Date: date, Regime: models.Regime(regime), Confidence: conf, Diagnostic: diag}
}
