package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
	domrepo "github.com/carolinacraus/market-state-api/internal/domain/repository"
	"github.com/carolinacraus/market-state-api/internal/usecase"
)

type fakeRunner struct {
	req        models.RunRequest
	classifier string
	err        error
}

func (f *fakeRunner) Run(_ context.Context, req models.RunRequest) (*models.RunResult, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.RunResult{RunID: "run-1", NoOp: true}, nil
}

func (f *fakeRunner) Rebuild(context.Context) (*models.RunResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.RunResult{RunID: "rebuild-1"}, nil
}

func (f *fakeRunner) Reclassify(_ context.Context, classifier string) (*models.RunResult, error) {
	f.classifier = classifier
	if f.err != nil {
		return nil, f.err
	}
	return &models.RunResult{RunID: "classify-1"}, nil
}

type fakeRegimes struct {
	classifier string
	limit      int
}

func (f *fakeRegimes) Latest(_ context.Context, classifier string, limit int) ([]usecase.RegimePoint, error) {
	f.classifier, f.limit = classifier, limit
	return []usecase.RegimePoint{{Date: "2024-01-02", Regime: "Steady Climb"}}, nil
}

func serve(h *PipelineHandler, method, target, body string) *httptest.ResponseRecorder {
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAlive(t *testing.T) {
	rec := serve(NewPipelineHandler(nil, &fakeRunner{}, &fakeRegimes{}), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "running")
}

func TestDailyParsesRange(t *testing.T) {
	runner := &fakeRunner{}
	h := NewPipelineHandler(nil, runner, &fakeRegimes{})

	rec := serve(h, http.MethodPost, "/api/pipeline/daily", `{"start_date":"2024-01-02","end_date":"2024-01-05"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), runner.req.Start)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), runner.req.End)

	var body struct {
		Status int              `json:"status"`
		Data   models.RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusOK, body.Status)
	assert.Equal(t, "run-1", body.Data.RunID)
	assert.True(t, body.Data.NoOp)
}

func TestDailyWithoutBodyRunsIncrementally(t *testing.T) {
	runner := &fakeRunner{}
	rec := serve(NewPipelineHandler(nil, runner, &fakeRegimes{}), http.MethodPost, "/api/pipeline/daily", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, runner.req.Start.IsZero())
	assert.True(t, runner.req.End.IsZero())
}

func TestDailyRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed date", `{"start_date":"01/02/2024"}`},
		{"inverted range", `{"start_date":"2024-02-01","end_date":"2024-01-01"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			rec := serve(NewPipelineHandler(nil, runner, &fakeRegimes{}), http.MethodPost, "/api/pipeline/daily", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.True(t, runner.req.Start.IsZero())
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"locked", domrepo.ErrLocked, http.StatusConflict},
		{"input missing", fmt.Errorf("%w: raw.csv", usecase.ErrInputMissing), http.StatusFailedDependency},
		{"unknown classifier", fmt.Errorf("%w: threshold", usecase.ErrUnknownClassifier), http.StatusBadRequest},
		{"step failure", &usecase.StepError{Step: usecase.StepFetch, Err: errors.New("timeout")}, http.StatusInternalServerError},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPipelineHandler(nil, &fakeRunner{err: tt.err}, &fakeRegimes{})
			rec := serve(h, http.MethodPost, "/api/pipeline/rebuild", "")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestClassifyValidatesName(t *testing.T) {
	runner := &fakeRunner{}
	h := NewPipelineHandler(nil, runner, &fakeRegimes{})

	rec := serve(h, http.MethodPost, "/api/classify", `{"classifier":"magic"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, runner.classifier)

	rec = serve(h, http.MethodPost, "/api/classify", `{"classifier":"hysteresis"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hysteresis", runner.classifier)
}

func TestRegimesDefaults(t *testing.T) {
	regimes := &fakeRegimes{}
	h := NewPipelineHandler(nil, &fakeRunner{}, regimes)

	rec := serve(h, http.MethodGet, "/api/regimes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "distance", regimes.classifier)
	assert.Equal(t, 30, regimes.limit)
	assert.Contains(t, rec.Body.String(), "Steady Climb")

	rec = serve(h, http.MethodGet, "/api/regimes?classifier=threshold&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "threshold", regimes.classifier)
	assert.Equal(t, 5, regimes.limit)

	rec = serve(h, http.MethodGet, "/api/regimes?limit=9999", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
