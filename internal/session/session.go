package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"stocklab/internal/dataset"
	"stocklab/internal/regression"
)

// Stage represents how far the session's pipeline has progressed
type Stage string

const (
	StageNoData     Stage = "no_data"
	StageDataLoaded Stage = "data_loaded"
	StageCleaned    Stage = "cleaned"
	StageTrained    Stage = "trained"
	StagePredicted  Stage = "predicted"
)

// AtLeast reports whether the stage has reached want in pipeline order
func (s Stage) AtLeast(want Stage) bool {
	return stageOrder[s] >= stageOrder[want]
}

var stageOrder = map[Stage]int{
	StageNoData:     0,
	StageDataLoaded: 1,
	StageCleaned:    2,
	StageTrained:    3,
	StagePredicted:  4,
}

// PredictionPair is one test row's actual and predicted target value
type PredictionPair struct {
	Actual    float64 `json:"actual"`
	Predicted float64 `json:"predicted"`
}

// Result holds the prediction output for the held-out test partition
type Result struct {
	Pairs []PredictionPair `json:"pairs"`
	Score float64          `json:"score"`
}

// Session holds all pipeline state for one interactive session. It is the
// sole owner of the raw and derived datasets, the fitted model, and the
// prediction result; every stage reads the current values and installs new
// derived entities through the Install* methods.
type Session struct {
	mu       sync.RWMutex
	actionMu sync.Mutex

	id        string
	createdAt time.Time
	updatedAt time.Time

	stage   Stage
	raw     *dataset.Dataset
	cleaned *dataset.Dataset
	ticker  string
	missing int
	model   *regression.Model
	split   *regression.Split
	result  *Result
}

// New creates an empty session in the NoData stage
func New() *Session {
	now := time.Now()
	return &Session{
		id:        uuid.New().String(),
		createdAt: now,
		updatedAt: now,
		stage:     StageNoData,
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Stage returns the current pipeline stage
func (s *Session) Stage() Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stage
}

// UpdatedAt returns the time of the last state change
func (s *Session) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// RunExclusive serializes pipeline actions on the session: one action runs
// to completion before the next begins, matching the interactive model.
func (s *Session) RunExclusive(fn func() error) error {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()
	return fn()
}

// InstallRaw replaces the raw dataset and resets the session to DataLoaded,
// discarding every downstream artifact.
func (s *Session) InstallRaw(ds *dataset.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = ds
	s.cleaned = nil
	s.ticker = ""
	s.missing = 0
	s.model = nil
	s.split = nil
	s.result = nil
	s.stage = StageDataLoaded
	s.updatedAt = time.Now()
}

// Raw returns the uploaded dataset, if any
func (s *Session) Raw() (*dataset.Dataset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.raw, s.raw != nil
}

// InstallCleaned records the cleaned dataset for a ticker and moves the
// session to Cleaned, discarding any model and result.
func (s *Session) InstallCleaned(ds *dataset.Dataset, ticker string, missingRemoved int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleaned = ds
	s.ticker = ticker
	s.missing = missingRemoved
	s.model = nil
	s.split = nil
	s.result = nil
	s.stage = StageCleaned
	s.updatedAt = time.Now()
}

// Cleaned returns the cleaned dataset and the ticker it was cleaned for
func (s *Session) Cleaned() (*dataset.Dataset, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cleaned, s.ticker, s.cleaned != nil
}

// MissingRemoved returns the missing value count reported by the last clean
func (s *Session) MissingRemoved() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.missing
}

// InstallModel records a fitted model and its split and moves the session
// to Trained, discarding any previous result.
func (s *Session) InstallModel(model *regression.Model, split *regression.Split) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
	s.split = split
	s.result = nil
	s.stage = StageTrained
	s.updatedAt = time.Now()
}

// Model returns the fitted model and held-out split, if any
func (s *Session) Model() (*regression.Model, *regression.Split, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model, s.split, s.model != nil
}

// InstallResult records a prediction result and moves the session to Predicted
func (s *Session) InstallResult(result *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = result
	s.stage = StagePredicted
	s.updatedAt = time.Now()
}

// Result returns the prediction result, if any
func (s *Session) Result() (*Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result, s.result != nil
}
