package service

import "github.com/carolinacraus/market-state-api/internal/domain/models"

// Classifier maps indicator rows to regime labels.
type Classifier interface {
	// Name is the variant identifier used in config and artifact names.
	Name() string
	// ScoreColumn is the labeled-panel header for Label.Confidence.
	ScoreColumn() string
	// Classify labels rows in date order. prior is the regime in force before
	// rows[0]; only stateful classifiers use it.
	Classify(rows []models.Row, prior models.Regime) []models.Label
}
