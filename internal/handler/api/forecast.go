package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"StockCast/internal/checkpoint"
	"StockCast/internal/domain/models"
	domrepo "StockCast/internal/domain/repository"
	"StockCast/internal/forecast"
	"StockCast/internal/jobs"
	xhttp "StockCast/pkg/http"
	xlogger "StockCast/pkg/logger"
)

// ForecastHandler exposes the training pipeline over HTTP.
type ForecastHandler struct {
	logger  *xlogger.Logger
	ctrl    *jobs.Controller
	store   *checkpoint.FileStore
	catalog *checkpoint.Catalog
	runs    domrepo.RunStore
	started time.Time
}

func NewForecastHandler(logger *xlogger.Logger, ctrl *jobs.Controller,
	store *checkpoint.FileStore, catalog *checkpoint.Catalog, runs domrepo.RunStore) *ForecastHandler {
	return &ForecastHandler{
		logger:  logger,
		ctrl:    ctrl,
		store:   store,
		catalog: catalog,
		runs:    runs,
		started: time.Now(),
	}
}

func (h *ForecastHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/analyze", h.Analyze)
	g.GET("/status", h.Status)

	g.GET("/models", h.ListModels)
	g.GET("/models/:id", h.GetModel)
	g.DELETE("/models/:id", h.DeleteModel)
	g.POST("/models/:id/predict", h.PredictModel)

	g.GET("/jobs", h.ListJobs)
	g.GET("/jobs/:id", h.GetJob)
	g.DELETE("/jobs/:id", h.CancelJob)

	g.GET("/runs", h.ListRuns)

	e.GET("/ws", h.WS)
}

// Analyze trains a model (or reuses a checkpoint) and predicts. With
// wait=false the job id is returned immediately and progress streams over
// /ws.
func (h *ForecastHandler) Analyze(c echo.Context) error {
	req := &models.AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	job, err := h.ctrl.Start(req)
	if err != nil {
		return xhttp.AppErrorResponse(c, mapPipelineError(err))
	}

	if !req.Waiting() {
		return xhttp.AcceptedResponse(c, models.JobAccepted{
			JobID:       job.ID,
			Fingerprint: job.Fingerprint,
			Status:      string(job.Status()),
		})
	}

	result, err := h.ctrl.Wait(c.Request().Context(), job)
	if err != nil {
		if errors.Is(err, c.Request().Context().Err()) {
			// Client went away; the job keeps running and stays queryable.
			return err
		}
		h.logger.Error("analyze failed",
			xlogger.String("job_id", job.ID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapPipelineError(err))
	}
	if result == nil {
		// Cancelled before completion. Not an error: report the job state.
		return xhttp.SuccessResponse(c, job.View())
	}

	return xhttp.SuccessResponse(c, models.AnalyzeResponse{
		ModelData:   result.ModelData,
		Predictions: result.Predictions,
	})
}

// Status reports service liveness detail.
func (h *ForecastHandler) Status(c echo.Context) error {
	views := h.ctrl.List()
	active := 0
	for _, v := range views {
		if v.Status == string(jobs.StatusPending) || v.Status == string(jobs.StatusTraining) {
			active++
		}
	}
	return xhttp.SuccessResponse(c, map[string]any{
		"status":      "ok",
		"uptime":      time.Since(h.started).Round(time.Second).String(),
		"activeJobs":  active,
		"liveHandles": forecast.LiveHandles(),
	})
}

// ListModels lists all saved checkpoints.
func (h *ForecastHandler) ListModels(c echo.Context) error {
	metas, err := h.catalog.List(c.Request().Context())
	if err != nil {
		h.logger.Error("model listing failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	views := make([]models.ModelData, len(metas))
	for i, m := range metas {
		views[i] = m.View()
	}
	return xhttp.ListResponse(c, views, int64(len(views)))
}

// GetModel returns one checkpoint's metadata.
func (h *ForecastHandler) GetModel(c echo.Context) error {
	meta, err := h.catalog.Get(c.Param("id"))
	if err != nil {
		return xhttp.AppErrorResponse(c, mapPipelineError(err))
	}
	return xhttp.SuccessResponse(c, meta.View())
}

// DeleteModel removes a checkpoint.
func (h *ForecastHandler) DeleteModel(c echo.Context) error {
	if err := h.catalog.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return xhttp.AppErrorResponse(c, mapPipelineError(err))
	}
	return xhttp.NoContentResponse(c)
}

// PredictModel runs a saved model against a fresh series without retraining.
func (h *ForecastHandler) PredictModel(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := forecast.ValidateSeries(req.StockData.TimeSeries); err != nil {
		return xhttp.AppErrorResponse(c, mapPipelineError(err))
	}

	ctx := c.Request().Context()
	tm, err := h.store.Load(ctx, c.Param("id"))
	if err != nil {
		return xhttp.AppErrorResponse(c, mapPipelineError(err))
	}
	defer tm.Release()

	preds, err := forecast.Predict(ctx, tm, req.StockData.Closes(),
		req.StockData.LastDate(), req.DaysToPredict)
	if err != nil {
		return xhttp.AppErrorResponse(c, mapPipelineError(err))
	}
	return xhttp.SuccessResponse(c, map[string]any{
		"fingerprint": tm.Fingerprint,
		"symbol":      tm.Symbol,
		"predictions": preds,
	})
}

// ListJobs lists known jobs, including recently finished ones.
func (h *ForecastHandler) ListJobs(c echo.Context) error {
	views := h.ctrl.List()
	return xhttp.ListResponse(c, views, int64(len(views)))
}

// GetJob returns a job snapshot.
func (h *ForecastHandler) GetJob(c echo.Context) error {
	job, ok := h.ctrl.Get(c.Param("id"))
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("job %s not found", c.Param("id")))
	}
	return xhttp.SuccessResponse(c, job.View())
}

// CancelJob requests cancellation. Cancelling a finished job is a no-op.
func (h *ForecastHandler) CancelJob(c echo.Context) error {
	if !h.ctrl.Cancel(c.Param("id")) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("job %s not found", c.Param("id")))
	}
	return xhttp.NoContentResponse(c)
}

// ListRuns returns recent training runs from the run store.
func (h *ForecastHandler) ListRuns(c echo.Context) error {
	if h.runs == nil {
		return xhttp.ListResponse(c, []*models.TrainingRun{}, 0)
	}
	limit := 100
	if s := c.QueryParam("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := h.runs.Recent(c.Request().Context(), limit)
	if err != nil {
		h.logger.Error("run listing failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, runs, int64(len(runs)))
}

// mapPipelineError translates pipeline errors to HTTP statuses: invalid input
// 400, duplicate jobs 409, missing checkpoints 404, the rest 500.
func mapPipelineError(err error) error {
	var invalid *forecast.InvalidInputError
	var degenerate *forecast.DegenerateDataError
	var insufficient *forecast.InsufficientDataError
	var running *jobs.AlreadyRunningError

	switch {
	case errors.As(err, &invalid),
		errors.As(err, &degenerate),
		errors.As(err, &insufficient):
		return xhttp.BadRequestError(err.Error())
	case errors.As(err, &running):
		return xhttp.ConflictError(err.Error()).WithParam("jobId", running.JobID)
	case errors.Is(err, checkpoint.ErrNotFound):
		return xhttp.NotFoundError("model not found")
	default:
		return xhttp.InternalError(err.Error())
	}
}
