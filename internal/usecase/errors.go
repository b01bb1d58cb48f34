package usecase

import (
	"errors"
	"fmt"
	"time"

	"github.com/carolinacraus/market-state-api/pkg/util"
)

var (
	// ErrInputMissing reports a required upstream artifact that does not exist yet.
	ErrInputMissing = errors.New("required input artifact missing")
	// ErrUnknownClassifier reports a classifier that is not enabled.
	ErrUnknownClassifier = errors.New("classifier not enabled")
)

// StepError is a failed pipeline step together with the date range it attempted.
type StepError struct {
	Step string
	From time.Time
	To   time.Time
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s [%s..%s]: %v", e.Step, util.FormatDay(e.From), util.FormatDay(e.To), e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
