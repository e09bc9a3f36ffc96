package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"stocklab/internal/config"
	apierrors "stocklab/internal/errors"
	"stocklab/internal/exporter"
	"stocklab/internal/services"
)

// SessionHandler exposes the prediction pipeline over REST
type SessionHandler struct {
	service      PipelineServiceInterface
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	upload       config.UploadConfig
}

// NewSessionHandler creates a session handler
func NewSessionHandler(service PipelineServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler, upload config.UploadConfig) *SessionHandler {
	return &SessionHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "session_handler")),
		errorHandler: errorHandler,
		upload:       upload,
	}
}

// Routes returns the session routes
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateSession)

	r.Route("/{sessionID}", func(r chi.Router) {
		r.Use(h.SessionCtx)
		r.Get("/", h.GetSession)
		r.Delete("/", h.DeleteSession)
		r.Post("/data", h.Upload)
		r.Get("/tickers", h.GetTickers)
		r.Post("/clean", h.Clean)
		r.Post("/train", h.Train)
		r.Post("/predict", h.Predict)
		r.Get("/results", h.GetResults)
		r.Get("/results/download", h.DownloadResults)
		r.Get("/chart", h.GetChart)
	})

	return r
}

// SessionCtx validates the session ID parameter
func (h *SessionHandler) SessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "sessionID") == "" {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("sessionID", "Session ID is required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CreateSession handles POST /api/session
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.service.CreateSession(r.Context())

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"session_id": s.ID(),
			"stage":      s.Stage(),
		},
	})
}

// GetSession handles GET /api/session/{sessionID}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	_, ticker, _ := s.Cleaned()
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"session_id": s.ID(),
			"stage":      s.Stage(),
			"ticker":     ticker,
			"updated_at": s.UpdatedAt(),
		},
	})
}

// DeleteSession handles DELETE /api/session/{sessionID}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	render.Status(r, http.StatusNoContent)
	render.NoContent(w, r)
}

// Upload handles POST /api/session/{sessionID}/data with a multipart file
func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	r.Body = http.MaxBytesReader(w, r.Body, h.upload.MaxBytes)
	if err := r.ParseMultipartForm(h.upload.MaxBytes); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.UploadParseError(
			fmt.Errorf("invalid multipart request: %w", err)))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("file", "File field is required"))
		return
	}
	defer file.Close()

	if !h.allowedType(header.Filename) {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("file",
			fmt.Sprintf("Unsupported file type %q, allowed: %s",
				filepath.Ext(header.Filename), strings.Join(h.upload.AllowedTypes, ", "))))
		return
	}

	sum, err := h.service.Upload(r.Context(), sessionID, header.Filename, file)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   sum,
	})
}

// allowedType reports whether the upload's extension is on the allowlist
func (h *SessionHandler) allowedType(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range h.upload.AllowedTypes {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// GetTickers handles GET /api/session/{sessionID}/tickers
func (h *SessionHandler) GetTickers(w http.ResponseWriter, r *http.Request) {
	tickers, err := h.service.Tickers(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   tickers,
		"count":  len(tickers),
	})
}

type cleanRequest struct {
	Ticker string `json:"ticker"`
}

// Clean handles POST /api/session/{sessionID}/clean
func (h *SessionHandler) Clean(w http.ResponseWriter, r *http.Request) {
	var req cleanRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("body", "Request body must be valid JSON"))
		return
	}
	if req.Ticker == "" {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("ticker", "Ticker is required"))
		return
	}

	sum, err := h.service.Clean(r.Context(), chi.URLParam(r, "sessionID"), req.Ticker)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   sum,
	})
}

type trainRequest struct {
	Seed *int64 `json:"seed,omitempty"`
}

// Train handles POST /api/session/{sessionID}/train
func (h *SessionHandler) Train(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	if r.ContentLength > 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("body", "Request body must be valid JSON"))
			return
		}
	}

	sum, err := h.service.Train(r.Context(), chi.URLParam(r, "sessionID"), req.Seed)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   sum,
	})
}

// Predict handles POST /api/session/{sessionID}/predict
func (h *SessionHandler) Predict(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Predict(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   res,
	})
}

// GetResults handles GET /api/session/{sessionID}/results
func (h *SessionHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Result(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   res,
	})
}

// DownloadResults handles GET /api/session/{sessionID}/results/download.
// The format query parameter selects csv (default) or xlsx.
func (h *SessionHandler) DownloadResults(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Result(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="predictions.csv"`)
		if err := exporter.WriteResultCSV(w, res, exporter.WriteOptions{BOMPrefix: true}); err != nil {
			h.logger.ErrorContext(r.Context(), "csv export failed", slog.String("error", err.Error()))
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="predictions.xlsx"`)
		if err := exporter.WriteResultXLSX(w, res); err != nil {
			h.logger.ErrorContext(r.Context(), "xlsx export failed", slog.String("error", err.Error()))
		}
	default:
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("format",
			fmt.Sprintf("Unsupported format: %s", format)))
	}
}

// GetChart handles GET /api/session/{sessionID}/chart. It returns the
// actual and predicted series in index order for the front-end plot.
func (h *SessionHandler) GetChart(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	res, err := h.service.Result(r.Context(), sessionID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	s, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	_, ticker, _ := s.Cleaned()

	actual := make([]float64, len(res.Pairs))
	predicted := make([]float64, len(res.Pairs))
	for i, pair := range res.Pairs {
		actual[i] = pair.Actual
		predicted[i] = pair.Predicted
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"ticker":    ticker,
			"actual":    actual,
			"predicted": predicted,
			"score":     res.Score,
		},
	})
}

// handleServiceError maps pipeline errors onto the API error model
func (h *SessionHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WarnContext(r.Context(), "pipeline action failed",
		slog.String("error", err.Error()),
		slog.String("path", r.URL.Path))

	var parseErr *services.ParseError
	var trainErr *services.TrainError
	var predictErr *services.PredictError

	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		h.errorHandler.HandleError(w, r, apierrors.New(
			http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found"))
	case errors.Is(err, services.ErrNoDataset),
		errors.Is(err, services.ErrNotCleaned),
		errors.Is(err, services.ErrNotTrained),
		errors.Is(err, services.ErrNoResult),
		errors.Is(err, services.ErrTickerNotFound),
		errors.Is(err, services.ErrNoRowsForTicker):
		h.errorHandler.HandleError(w, r, apierrors.PreconditionError(err.Error()))
	case errors.As(err, &parseErr):
		h.errorHandler.HandleError(w, r, apierrors.UploadParseError(parseErr.Err))
	case errors.As(err, &trainErr):
		h.errorHandler.HandleError(w, r, apierrors.TrainingError(trainErr.Err))
	case errors.As(err, &predictErr):
		h.errorHandler.HandleError(w, r, apierrors.PredictionError(predictErr.Err))
	default:
		h.errorHandler.HandleError(w, r, err)
	}
}
