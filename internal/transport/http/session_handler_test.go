package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stocklab/internal/config"
	apierrors "stocklab/internal/errors"
	"stocklab/internal/services"
	"stocklab/internal/session"
)

type mockPipelineService struct {
	mock.Mock
}

func (m *mockPipelineService) CreateSession(ctx context.Context) *session.Session {
	args := m.Called(ctx)
	return args.Get(0).(*session.Session)
}

func (m *mockPipelineService) GetSession(ctx context.Context, id string) (*session.Session, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*session.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPipelineService) DeleteSession(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockPipelineService) Upload(ctx context.Context, id, filename string, r io.Reader) (services.UploadSummary, error) {
	args := m.Called(ctx, id, filename, r)
	return args.Get(0).(services.UploadSummary), args.Error(1)
}

func (m *mockPipelineService) Tickers(ctx context.Context, id string) ([]string, error) {
	args := m.Called(ctx, id)
	if t := args.Get(0); t != nil {
		return t.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPipelineService) Clean(ctx context.Context, id, ticker string) (services.CleanSummary, error) {
	args := m.Called(ctx, id, ticker)
	return args.Get(0).(services.CleanSummary), args.Error(1)
}

func (m *mockPipelineService) Train(ctx context.Context, id string, seed *int64) (services.TrainSummary, error) {
	args := m.Called(ctx, id, seed)
	return args.Get(0).(services.TrainSummary), args.Error(1)
}

func (m *mockPipelineService) Predict(ctx context.Context, id string) (*session.Result, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.(*session.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPipelineService) Result(ctx context.Context, id string) (*session.Result, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.(*session.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestHandler(svc PipelineServiceInterface) *SessionHandler {
	logger := slog.Default()
	return NewSessionHandler(svc, logger, apierrors.NewErrorHandler(logger, false), config.UploadConfig{
		MaxBytes:     1 << 20,
		AllowedTypes: []string{".csv", ".xlsx"},
	})
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreateSession(t *testing.T) {
	svc := new(mockPipelineService)
	svc.On("CreateSession", mock.Anything).Return(session.New())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	newTestHandler(svc).Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "success", body["status"])
	data := body["data"].(map[string]interface{})
	assert.NotEmpty(t, data["session_id"])
	assert.Equal(t, "no_data", data["stage"])
	svc.AssertExpectations(t)
}

func TestGetSessionNotFound(t *testing.T) {
	svc := new(mockPipelineService)
	svc.On("GetSession", mock.Anything, "missing").Return(nil, services.ErrSessionNotFound)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	newTestHandler(svc).Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
}

func TestUpload(t *testing.T) {
	svc := new(mockPipelineService)
	svc.On("Upload", mock.Anything, "sid", "prices.csv", mock.Anything).
		Return(services.UploadSummary{Rows: 10, Tickers: []string{"ACME"}}, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "prices.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("name,open,high,low,close,volume\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sid/data", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	newTestHandler(svc).Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	data := body["data"].(map[string]interface{})
	assert.InDelta(t, 10, data["rows"], 0)
	svc.AssertExpectations(t)
}

func TestUploadMissingFileField(t *testing.T) {
	svc := new(mockPipelineService)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "value"))
	require.NoError(t, mw.Close())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sid/data", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	newTestHandler(svc).Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "Upload")
}

func TestUploadRejectsDisallowedExtension(t *testing.T) {
	svc := new(mockPipelineService)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "prices.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("name,open,high,low,close,volume\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sid/data", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	newTestHandler(svc).Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	details, ok := problem["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, details["message"], ".txt")
	svc.AssertNotCalled(t, "Upload")
}

func TestUploadParseErrorMapsTo422(t *testing.T) {
	svc := new(mockPipelineService)
	svc.On("Upload", mock.Anything, "sid", "bad.csv", mock.Anything).
		Return(services.UploadSummary{}, &services.ParseError{
			Filename: "bad.csv",
			Err:      assert.AnError,
		})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "bad.csv")
	part.Write([]byte("junk"))
	mw.Close()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sid/data", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	newTestHandler(svc).Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "/errors/upload-parse", problem["type"])
}

func TestGetTickers(t *testing.T) {
	svc := new(mockPipelineService)
	svc.On("Tickers", mock.Anything, "sid").Return([]string{"AAL", "AAPL"}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sid/tickers", nil)
	newTestHandler(svc).Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.InDelta(t, 2, body["count"], 0)
}

func TestCleanValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"missing ticker", `{}`, http.StatusBadRequest},
		{"invalid json", `{not json`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockPipelineService)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/sid/clean", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			newTestHandler(svc).Routes().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			svc.AssertNotCalled(t, "Clean")
		})
	}
}

func TestCleanPreconditionMapsTo409(t *testing.T) {
	svc := new(mockPipelineService)
	svc.On("Clean", mock.Anything, "sid", "ACME").
		Return(services.CleanSummary{}, services.ErrNoDataset)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sid/clean", strings.NewReader(`{"ticker":"ACME"}`))
	req.Header.Set("Content-Type", "application/json")
	newTestHandler(svc).Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "/errors/precondition", problem["type"])
	assert.Contains(t, problem["detail"], "upload a dataset first")
}

func TestTrainWithSeed(t *testing.T) {
	svc := new(mockPipelineService)
	seed := int64(42)
	svc.On("Train", mock.Anything, "sid", &seed).
		Return(services.TrainSummary{TrainRows: 400, TestRows: 100}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sid/train", strings.NewReader(`{"seed":42}`))
	req.Header.Set("Content-Type", "application/json")
	newTestHandler(svc).Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestTrainWithoutBody(t *testing.T) {
	svc := new(mockPipelineService)
	svc.On("Train", mock.Anything, "sid", (*int64)(nil)).
		Return(services.TrainSummary{TrainRows: 8, TestRows: 2}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sid/train", nil)
	newTestHandler(svc).Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestTrainErrorMapsTo422(t *testing.T) {
	svc := new(mockPipelineService)
	svc.On("Train", mock.Anything, "sid", (*int64)(nil)).
		Return(services.TrainSummary{}, &services.TrainError{Err: assert.AnError})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sid/train", nil)
	newTestHandler(svc).Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "/errors/training", problem["type"])
}

func TestPredict(t *testing.T) {
	svc := new(mockPipelineService)
	svc.On("Predict", mock.Anything, "sid").Return(&session.Result{
		Pairs: []session.PredictionPair{{Actual: 10, Predicted: 10.5}},
		Score: 0.88,
	}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sid/predict", nil)
	newTestHandler(svc).Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	data := body["data"].(map[string]interface{})
	assert.InDelta(t, 0.88, data["score"], 1e-9)
}

func TestPredictBeforeTrainMapsTo409(t *testing.T) {
	svc := new(mockPipelineService)
	svc.On("Predict", mock.Anything, "sid").Return(nil, services.ErrNotTrained)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sid/predict", nil)
	newTestHandler(svc).Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Contains(t, problem["detail"], "train model first")
}

func TestDownloadResultsCSV(t *testing.T) {
	svc := new(mockPipelineService)
	svc.On("Result", mock.Anything, "sid").Return(&session.Result{
		Pairs: []session.PredictionPair{{Actual: 1.5, Predicted: 1.25}},
		Score: 1,
	}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sid/results/download", nil)
	newTestHandler(svc).Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "predictions.csv")
	assert.Contains(t, rec.Body.String(), "actual,predicted")
	assert.Contains(t, rec.Body.String(), "1.5,1.25")
}

func TestDownloadResultsUnsupportedFormat(t *testing.T) {
	svc := new(mockPipelineService)
	svc.On("Result", mock.Anything, "sid").Return(&session.Result{}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sid/results/download?format=pdf", nil)
	newTestHandler(svc).Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetChart(t *testing.T) {
	s := session.New()
	svc := new(mockPipelineService)
	svc.On("Result", mock.Anything, "sid").Return(&session.Result{
		Pairs: []session.PredictionPair{
			{Actual: 10, Predicted: 9.5},
			{Actual: 11, Predicted: 11.2},
		},
		Score: 0.91,
	}, nil)
	svc.On("GetSession", mock.Anything, "sid").Return(s, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sid/chart", nil)
	newTestHandler(svc).Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	data := body["data"].(map[string]interface{})
	assert.Len(t, data["actual"], 2)
	assert.Len(t, data["predicted"], 2)
	assert.InDelta(t, 0.91, data["score"], 1e-9)
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	NewHealthHandler("1.0.0").Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.0.0", body["version"])
}
