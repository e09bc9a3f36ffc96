package http

import (
	"context"
	"io"

	"stocklab/internal/services"
	"stocklab/internal/session"
)

// PipelineServiceInterface defines the pipeline operations the handlers need
type PipelineServiceInterface interface {
	CreateSession(ctx context.Context) *session.Session
	GetSession(ctx context.Context, id string) (*session.Session, error)
	DeleteSession(ctx context.Context, id string) error
	Upload(ctx context.Context, id, filename string, r io.Reader) (services.UploadSummary, error)
	Tickers(ctx context.Context, id string) ([]string, error)
	Clean(ctx context.Context, id, ticker string) (services.CleanSummary, error)
	Train(ctx context.Context, id string, seed *int64) (services.TrainSummary, error)
	Predict(ctx context.Context, id string) (*session.Result, error)
	Result(ctx context.Context, id string) (*session.Result, error)
}
