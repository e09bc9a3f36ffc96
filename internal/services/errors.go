package services

import (
	"errors"
	"fmt"
)

// Pipeline precondition errors. Each one names the action the user must
// take before the attempted stage can run.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNoDataset       = errors.New("upload a dataset first")
	ErrNotCleaned      = errors.New("clean data first")
	ErrNotTrained      = errors.New("train model first")
	ErrNoResult        = errors.New("run prediction first")
	ErrTickerNotFound  = errors.New("ticker not found in dataset")
	ErrNoRowsForTicker = errors.New("no usable rows for ticker")
)

// ParseError wraps a failure to parse an uploaded file
type ParseError struct {
	Filename string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Filename, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TrainError wraps a model fitting failure
type TrainError struct {
	Err error
}

func (e *TrainError) Error() string {
	return fmt.Sprintf("train model: %v", e.Err)
}

func (e *TrainError) Unwrap() error { return e.Err }

// PredictError wraps a prediction failure
type PredictError struct {
	Err error
}

func (e *PredictError) Error() string {
	return fmt.Sprintf("predict: %v", e.Err)
}

func (e *PredictError) Unwrap() error { return e.Err }
