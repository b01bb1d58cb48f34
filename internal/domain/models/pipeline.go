package models

import "time"

// RunRequest bounds an updater run. Zero values mean "after the last
// indicator date" and "today".
type RunRequest struct {
	Start time.Time
	End   time.Time
}

// StepStat records what a single updater step did.
type StepStat struct {
	Step     string        `json:"step"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration_ms"`
}

// RunResult summarizes an updater run.
type RunResult struct {
	RunID         string            `json:"run_id"`
	From          time.Time         `json:"from"`
	To            time.Time         `json:"to"`
	FetchedRows   int               `json:"fetched_rows"`
	NewIndicators int               `json:"new_indicator_rows"`
	Appended      map[string]int    `json:"appended"`
	Latest        map[string]Regime `json:"latest"`
	Steps         []StepStat        `json:"steps"`
	NoOp          bool              `json:"no_op"`
}

// HTTP requests. Defined in domain for consistency and reuse.

type DailyRunRequest struct {
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

type ClassifyRequest struct {
	Classifier string `json:"classifier" validate:"required,oneof=threshold distance hysteresis"`
}

type RegimesRequest struct {
	Classifier string `query:"classifier" json:"classifier" default:"distance" validate:"oneof=threshold distance hysteresis"`
	Limit      int    `query:"limit" json:"limit" default:"30" validate:"gte=1,lte=5000"`
}
