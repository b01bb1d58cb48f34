package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
	domrepo "github.com/carolinacraus/market-state-api/internal/domain/repository"
	"github.com/carolinacraus/market-state-api/internal/usecase"
	xhttp "github.com/carolinacraus/market-state-api/pkg/http"
	xlogger "github.com/carolinacraus/market-state-api/pkg/logger"
)

// Runner is the pipeline surface exposed over HTTP.
type Runner interface {
	Run(ctx context.Context, req models.RunRequest) (*models.RunResult, error)
	Rebuild(ctx context.Context) (*models.RunResult, error)
	Reclassify(ctx context.Context, classifier string) (*models.RunResult, error)
}

type RegimeLister interface {
	Latest(ctx context.Context, classifier string, limit int) ([]usecase.RegimePoint, error)
}

// PipelineHandler serves pipeline runs and ledger reads.
type PipelineHandler struct {
	logger  *xlogger.Logger
	runner  Runner
	regimes RegimeLister
}

func NewPipelineHandler(logger *xlogger.Logger, runner Runner, regimes RegimeLister) *PipelineHandler {
	return &PipelineHandler{logger: logger, runner: runner, regimes: regimes}
}

func (h *PipelineHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Alive)
	g := e.Group("/api")
	g.POST("/pipeline/daily", h.Daily)
	g.POST("/pipeline/rebuild", h.Rebuild)
	g.POST("/classify", h.Classify)
	g.GET("/regimes", h.Regimes)
}

func (h *PipelineHandler) Alive(c echo.Context) error {
	return c.String(http.StatusOK, "Market state pipeline is running")
}

func (h *PipelineHandler) Daily(c echo.Context) error {
	req := &models.DailyRunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	run := models.RunRequest{
		Start: xhttp.ParseDayDefault(req.StartDate, time.Time{}),
		End:   xhttp.ParseDayDefault(req.EndDate, time.Time{}),
	}
	if !run.Start.IsZero() && !run.End.IsZero() && run.Start.After(run.End) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("start_date must not be after end_date").
			WithParam("start_date", req.StartDate).WithParam("end_date", req.EndDate))
	}

	res, err := h.runner.Run(c.Request().Context(), run)
	if err != nil {
		return h.fail(c, "daily run", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PipelineHandler) Rebuild(c echo.Context) error {
	res, err := h.runner.Rebuild(c.Request().Context())
	if err != nil {
		return h.fail(c, "rebuild", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PipelineHandler) Classify(c echo.Context) error {
	req := &models.ClassifyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.runner.Reclassify(c.Request().Context(), req.Classifier)
	if err != nil {
		return h.fail(c, "classify", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PipelineHandler) Regimes(c echo.Context) error {
	req := &models.RegimesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.regimes.Latest(c.Request().Context(), req.Classifier, req.Limit)
	if err != nil {
		return h.fail(c, "regimes", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, res)
}

func (h *PipelineHandler) fail(c echo.Context, op string, err error) error {
	h.logger.Error(op+" usecase error", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, toAppError(err))
}

func toAppError(err error) error {
	switch {
	case errors.Is(err, domrepo.ErrLocked):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrInputMissing):
		return xhttp.FailedDependencyError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrUnknownClassifier):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	}
	var se *usecase.StepError
	if errors.As(err, &se) {
		return xhttp.InternalError(se.Error()).WithParam("step", se.Step).WithError(err)
	}
	return err
}
