package api

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"StockCast/internal/checkpoint"
	"StockCast/internal/domain/models"
	"StockCast/internal/forecast"
	"StockCast/internal/jobs"
	applogger "StockCast/pkg/logger"
)

type testServer struct {
	echo  *echo.Echo
	ctrl  *jobs.Controller
	store *checkpoint.FileStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := checkpoint.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	catalog := checkpoint.NewCatalog(store, nil, time.Minute, nil)
	trainer := forecast.NewTrainer(store, false, nil)

	ctrl := jobs.NewController(jobs.Config{
		MaxConcurrent: 2,
		Training:      forecast.ModelConfig{HiddenUnits: 4, Layers: 1, Seed: 42},
	}, trainer, catalog, nil, nil, nil, nil)
	t.Cleanup(func() { _ = ctrl.Close() })

	h := NewForecastHandler(applogger.Default(), ctrl, store, catalog, nil)
	e := echo.New()
	h.RegisterRoutes(e)
	return &testServer{echo: e, ctrl: ctrl, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func seriesFixture(n int) []models.TimeSeriesPoint {
	points := make([]models.TimeSeriesPoint, n)
	day := time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC)
	for i := range points {
		points[i] = models.TimeSeriesPoint{
			Date:  day,
			Close: 100 + 10*math.Sin(float64(i)/8),
		}
		day = forecast.NextTradingDay(day)
	}
	return points
}

func analyzeBody(symbol string, wait bool) *models.AnalyzeRequest {
	return &models.AnalyzeRequest{
		StockData: models.StockData{
			Symbol:     symbol,
			TimeSeries: seriesFixture(200),
		},
		SequenceLength: 20,
		Epochs:         2,
		BatchSize:      16,
		DaysToPredict:  5,
		Wait:           &wait,
	}
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, rec.Code, env.Status)
	if dest != nil {
		require.NoError(t, json.Unmarshal(env.Data, dest))
	}
}

func TestAnalyzeSync(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/analyze", analyzeBody("AAPL", true))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.AnalyzeResponse
	decodeEnvelope(t, rec, &resp)
	require.Equal(t, "AAPL", resp.ModelData.Symbol)
	require.Len(t, resp.ModelData.Loss, 2)
	require.Len(t, resp.Predictions, 5)
	require.True(t, s.store.Exists(resp.ModelData.Fingerprint))
}

func TestAnalyzeAsync(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/analyze", analyzeBody("MSFT", false))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted models.JobAccepted
	decodeEnvelope(t, rec, &accepted)
	require.NotEmpty(t, accepted.JobID)
	require.NotEmpty(t, accepted.Fingerprint)

	job, ok := s.ctrl.Get(accepted.JobID)
	require.True(t, ok)
	select {
	case <-job.Done():
	case <-time.After(time.Minute):
		t.Fatal("job never finished")
	}
	require.Equal(t, jobs.StatusComplete, job.Status())
}

func TestAnalyzeRejectsMissingBody(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/analyze", map[string]any{"epochs": 2})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeRejectsShortSeries(t *testing.T) {
	s := newTestServer(t)
	body := analyzeBody("AAPL", true)
	body.StockData.TimeSeries = seriesFixture(10)

	rec := s.do(t, http.MethodPost, "/api/analyze", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "insufficient data")
}

func TestAnalyzeDuplicateConflicts(t *testing.T) {
	s := newTestServer(t)

	body := analyzeBody("AAPL", false)
	body.Epochs = 200
	rec := s.do(t, http.MethodPost, "/api/analyze", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/analyze", body)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "already running")
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]any
	decodeEnvelope(t, rec, &status)
	require.Equal(t, "ok", status["status"])
	require.Contains(t, status, "activeJobs")
	require.Contains(t, status, "liveHandles")
}

func TestModelLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/analyze", analyzeBody("AAPL", true))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.AnalyzeResponse
	decodeEnvelope(t, rec, &resp)
	fp := resp.ModelData.Fingerprint

	rec = s.do(t, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []models.ModelData `json:"rows"`
		Total int64              `json:"total"`
	}
	decodeEnvelope(t, rec, &list)
	require.Equal(t, int64(1), list.Total)
	require.Equal(t, fp, list.Rows[0].Fingerprint)

	rec = s.do(t, http.MethodGet, "/api/models/"+fp, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var model models.ModelData
	decodeEnvelope(t, rec, &model)
	require.Equal(t, "AAPL", model.Symbol)
	require.True(t, model.FromCheckpoint)

	rec = s.do(t, http.MethodDelete, "/api/models/"+fp, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/models/"+fp, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPredictModel(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/analyze", analyzeBody("AAPL", true))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.AnalyzeResponse
	decodeEnvelope(t, rec, &resp)

	predictReq := &models.PredictRequest{
		StockData: models.StockData{
			Symbol:     "AAPL",
			TimeSeries: seriesFixture(100),
		},
		DaysToPredict: 3,
	}
	rec = s.do(t, http.MethodPost, "/api/models/"+resp.ModelData.Fingerprint+"/predict", predictReq)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Fingerprint string                   `json:"fingerprint"`
		Predictions []models.PredictionPoint `json:"predictions"`
	}
	decodeEnvelope(t, rec, &out)
	require.Equal(t, resp.ModelData.Fingerprint, out.Fingerprint)
	require.Len(t, out.Predictions, 3)
}

func TestPredictUnknownModel(t *testing.T) {
	s := newTestServer(t)

	predictReq := &models.PredictRequest{
		StockData: models.StockData{
			Symbol:     "AAPL",
			TimeSeries: seriesFixture(100),
		},
		DaysToPredict: 3,
	}
	rec := s.do(t, http.MethodPost, "/api/models/deadbeef/predict", predictReq)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobEndpoints(t *testing.T) {
	s := newTestServer(t)

	body := analyzeBody("AAPL", false)
	body.Epochs = 200
	rec := s.do(t, http.MethodPost, "/api/analyze", body)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted models.JobAccepted
	decodeEnvelope(t, rec, &accepted)

	rec = s.do(t, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows []models.JobView `json:"rows"`
	}
	decodeEnvelope(t, rec, &list)
	require.Len(t, list.Rows, 1)

	rec = s.do(t, http.MethodGet, "/api/jobs/"+accepted.JobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/jobs/"+accepted.JobID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	job, ok := s.ctrl.Get(accepted.JobID)
	require.True(t, ok)
	select {
	case <-job.Done():
	case <-time.After(time.Minute):
		t.Fatal("cancelled job never reached a terminal state")
	}
	require.Equal(t, jobs.StatusCancelled, job.Status())

	rec = s.do(t, http.MethodGet, "/api/jobs/no-such-job", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodDelete, "/api/jobs/no-such-job", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRunsWithoutStore(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Total int64 `json:"total"`
	}
	decodeEnvelope(t, rec, &list)
	require.Equal(t, int64(0), list.Total)
}
