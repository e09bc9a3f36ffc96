package services

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"stocklab/internal/dataset"
	"stocklab/internal/regression"
	"stocklab/internal/session"
)

// WebSocketHub is the broadcast surface the pipeline needs. A nil hub
// disables broadcasting.
type WebSocketHub interface {
	Broadcast(messageType string, data interface{})
}

// UploadSummary describes an accepted upload
type UploadSummary struct {
	Rows    int      `json:"rows"`
	Tickers []string `json:"tickers"`
	Missing int      `json:"missing_values"`
}

// CleanSummary describes the outcome of a clean action
type CleanSummary struct {
	Ticker         string `json:"ticker"`
	Rows           int    `json:"rows"`
	MissingRemoved int    `json:"missing_removed"`
}

// TrainSummary describes a fitted model and its data partition
type TrainSummary struct {
	Ticker       string    `json:"ticker"`
	TrainRows    int       `json:"train_rows"`
	TestRows     int       `json:"test_rows"`
	TrainScore   float64   `json:"train_score"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

// PipelineService drives the upload, clean, train, predict pipeline over
// per-session state. Every action is serialized per session and leaves the
// session in a well-defined stage.
type PipelineService struct {
	sessions *session.Manager
	hub      WebSocketHub
	logger   *slog.Logger
}

// NewPipelineService creates a pipeline service
func NewPipelineService(sessions *session.Manager, hub WebSocketHub, logger *slog.Logger) *PipelineService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineService{
		sessions: sessions,
		hub:      hub,
		logger:   logger.With(slog.String("service", "pipeline")),
	}
}

// CreateSession registers a new empty session
func (p *PipelineService) CreateSession(ctx context.Context) *session.Session {
	s := p.sessions.Create()
	activeSessions.Set(float64(p.sessions.Count()))
	p.logger.InfoContext(ctx, "session created", slog.String("session_id", s.ID()))
	return s
}

// GetSession looks up a session by ID
func (p *PipelineService) GetSession(ctx context.Context, id string) (*session.Session, error) {
	s, ok := p.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// DeleteSession removes a session
func (p *PipelineService) DeleteSession(ctx context.Context, id string) error {
	if _, ok := p.sessions.Get(id); !ok {
		return ErrSessionNotFound
	}
	p.sessions.Delete(id)
	activeSessions.Set(float64(p.sessions.Count()))
	return nil
}

// Upload parses the uploaded file and installs it as the session's raw
// dataset, resetting any downstream artifacts. Re-uploading is always
// allowed and returns the session to the DataLoaded stage.
func (p *PipelineService) Upload(ctx context.Context, id, filename string, r io.Reader) (sum UploadSummary, err error) {
	defer func(start time.Time) { observeAction("upload", start, err) }(time.Now())

	s, err := p.GetSession(ctx, id)
	if err != nil {
		return UploadSummary{}, err
	}

	err = s.RunExclusive(func() error {
		ds, parseErr := dataset.Parse(r, filename)
		if parseErr != nil {
			return &ParseError{Filename: filename, Err: parseErr}
		}

		s.InstallRaw(ds)
		sum = UploadSummary{
			Rows:    ds.Len(),
			Tickers: ds.Tickers(),
			Missing: ds.MissingCount(),
		}

		p.logger.InfoContext(ctx, "dataset uploaded",
			slog.String("session_id", s.ID()),
			slog.String("filename", filename),
			slog.Int("rows", sum.Rows),
			slog.Int("tickers", len(sum.Tickers)))
		p.broadcastStage(s, map[string]interface{}{"rows": sum.Rows})
		return nil
	})
	if err != nil {
		return UploadSummary{}, err
	}
	return sum, nil
}

// Tickers returns the distinct tickers of the uploaded dataset
func (p *PipelineService) Tickers(ctx context.Context, id string) ([]string, error) {
	s, err := p.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	ds, ok := s.Raw()
	if !ok {
		return nil, ErrNoDataset
	}
	return ds.Tickers(), nil
}

// Clean filters the raw dataset to one ticker and drops rows with missing
// values, moving the session to the Cleaned stage.
func (p *PipelineService) Clean(ctx context.Context, id, ticker string) (sum CleanSummary, err error) {
	defer func(start time.Time) { observeAction("clean", start, err) }(time.Now())

	s, err := p.GetSession(ctx, id)
	if err != nil {
		return CleanSummary{}, err
	}

	err = s.RunExclusive(func() error {
		raw, ok := s.Raw()
		if !ok {
			return ErrNoDataset
		}

		filtered := raw.FilterTicker(ticker)
		if filtered.Len() == 0 {
			return ErrTickerNotFound
		}

		cleaned, missing := filtered.DropMissing()
		if cleaned.Len() == 0 {
			return ErrNoRowsForTicker
		}

		s.InstallCleaned(cleaned, ticker, missing)
		sum = CleanSummary{Ticker: ticker, Rows: cleaned.Len(), MissingRemoved: missing}

		p.logger.InfoContext(ctx, "dataset cleaned",
			slog.String("session_id", s.ID()),
			slog.String("ticker", ticker),
			slog.Int("rows", sum.Rows),
			slog.Int("missing_removed", missing))
		p.broadcastStage(s, map[string]interface{}{"ticker": ticker, "rows": sum.Rows})
		return nil
	})
	if err != nil {
		return CleanSummary{}, err
	}
	return sum, nil
}

// Train splits the cleaned dataset into train and test partitions, fits a
// least squares model on the train partition, and stores both. A non-nil
// seed makes the split reproducible; otherwise each call draws a fresh
// random partition.
func (p *PipelineService) Train(ctx context.Context, id string, seed *int64) (sum TrainSummary, err error) {
	defer func(start time.Time) { observeAction("train", start, err) }(time.Now())

	s, err := p.GetSession(ctx, id)
	if err != nil {
		return TrainSummary{}, err
	}

	err = s.RunExclusive(func() error {
		cleaned, ticker, ok := s.Cleaned()
		if !ok {
			return ErrNotCleaned
		}

		var rnd *rand.Rand
		if seed != nil {
			rnd = rand.New(rand.NewSource(*seed))
		}

		split, splitErr := regression.TrainTestSplit(
			cleaned.FeatureMatrix(), cleaned.Targets(), regression.DefaultTestFraction, rnd)
		if splitErr != nil {
			return &TrainError{Err: splitErr}
		}

		model, fitErr := regression.Fit(split.TrainX, split.TrainY)
		if fitErr != nil {
			return &TrainError{Err: fitErr}
		}

		trainScore, scoreErr := model.Score(split.TrainX, split.TrainY)
		if scoreErr != nil {
			return &TrainError{Err: scoreErr}
		}

		s.InstallModel(model, split)
		sum = TrainSummary{
			Ticker:       ticker,
			TrainRows:    len(split.TrainY),
			TestRows:     len(split.TestY),
			TrainScore:   trainScore,
			Intercept:    model.Intercept,
			Coefficients: model.Coefficients,
		}

		p.logger.InfoContext(ctx, "model trained",
			slog.String("session_id", s.ID()),
			slog.String("ticker", ticker),
			slog.Int("train_rows", sum.TrainRows),
			slog.Int("test_rows", sum.TestRows),
			slog.Float64("train_score", trainScore))
		p.broadcastStage(s, map[string]interface{}{
			"ticker":      ticker,
			"train_rows":  sum.TrainRows,
			"test_rows":   sum.TestRows,
			"train_score": trainScore,
		})
		return nil
	})
	if err != nil {
		return TrainSummary{}, err
	}
	return sum, nil
}

// Predict runs the stored model over the held-out test partition and
// records the predictions with their coefficient of determination.
func (p *PipelineService) Predict(ctx context.Context, id string) (res *session.Result, err error) {
	defer func(start time.Time) { observeAction("predict", start, err) }(time.Now())

	s, err := p.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.RunExclusive(func() error {
		model, split, ok := s.Model()
		if !ok {
			return ErrNotTrained
		}

		predicted, predErr := model.Predict(split.TestX)
		if predErr != nil {
			return &PredictError{Err: predErr}
		}

		pairs := make([]session.PredictionPair, len(predicted))
		for i, pred := range predicted {
			pairs[i] = session.PredictionPair{Actual: split.TestY[i], Predicted: pred}
		}

		res = &session.Result{
			Pairs: pairs,
			Score: regression.RSquared(split.TestY, predicted),
		}
		s.InstallResult(res)

		p.logger.InfoContext(ctx, "prediction complete",
			slog.String("session_id", s.ID()),
			slog.Int("pairs", len(pairs)),
			slog.Float64("score", res.Score))
		p.broadcastStage(s, map[string]interface{}{"pairs": len(pairs), "score": res.Score})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Result returns the stored prediction result
func (p *PipelineService) Result(ctx context.Context, id string) (*session.Result, error) {
	s, err := p.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	res, ok := s.Result()
	if !ok {
		return nil, ErrNoResult
	}
	return res, nil
}

func (p *PipelineService) broadcastStage(s *session.Session, data map[string]interface{}) {
	if p.hub == nil {
		return
	}
	payload := map[string]interface{}{
		"session_id": s.ID(),
		"stage":      string(s.Stage()),
	}
	for k, v := range data {
		payload[k] = v
	}
	p.hub.Broadcast("pipeline:stage", payload)
}
