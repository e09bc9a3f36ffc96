package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocklab/internal/dataset"
	"stocklab/internal/regression"
)

func sampleDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	rows := []dataset.Row{
		{Ticker: "AAPL", Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
		{Ticker: "AAPL", Open: 2, High: 3, Low: 1.5, Close: 2.5, Volume: 200},
	}
	return dataset.New(rows)
}

func TestNewSession(t *testing.T) {
	s := New()

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, StageNoData, s.Stage())

	_, ok := s.Raw()
	assert.False(t, ok)
	_, _, ok = s.Cleaned()
	assert.False(t, ok)
	_, _, ok = s.Model()
	assert.False(t, ok)
	_, ok = s.Result()
	assert.False(t, ok)
}

func TestStageProgression(t *testing.T) {
	s := New()
	ds := sampleDataset(t)

	s.InstallRaw(ds)
	assert.Equal(t, StageDataLoaded, s.Stage())

	s.InstallCleaned(ds, "AAPL", 3)
	assert.Equal(t, StageCleaned, s.Stage())
	assert.Equal(t, 3, s.MissingRemoved())

	s.InstallModel(&regression.Model{}, &regression.Split{})
	assert.Equal(t, StageTrained, s.Stage())

	s.InstallResult(&Result{Score: 0.9})
	assert.Equal(t, StagePredicted, s.Stage())

	res, ok := s.Result()
	require.True(t, ok)
	assert.InDelta(t, 0.9, res.Score, 1e-12)
}

func TestInstallRawResetsDownstream(t *testing.T) {
	s := New()
	ds := sampleDataset(t)

	s.InstallRaw(ds)
	s.InstallCleaned(ds, "AAPL", 0)
	s.InstallModel(&regression.Model{}, &regression.Split{})
	s.InstallResult(&Result{})

	s.InstallRaw(ds)

	assert.Equal(t, StageDataLoaded, s.Stage())
	_, _, ok := s.Cleaned()
	assert.False(t, ok)
	_, _, ok = s.Model()
	assert.False(t, ok)
	_, ok = s.Result()
	assert.False(t, ok)
}

func TestInstallCleanedDiscardsModel(t *testing.T) {
	s := New()
	ds := sampleDataset(t)

	s.InstallRaw(ds)
	s.InstallCleaned(ds, "AAPL", 0)
	s.InstallModel(&regression.Model{}, &regression.Split{})
	s.InstallResult(&Result{})

	s.InstallCleaned(ds, "MSFT", 1)

	assert.Equal(t, StageCleaned, s.Stage())
	_, ticker, ok := s.Cleaned()
	require.True(t, ok)
	assert.Equal(t, "MSFT", ticker)
	_, _, ok = s.Model()
	assert.False(t, ok)
	_, ok = s.Result()
	assert.False(t, ok)
}

func TestStageAtLeast(t *testing.T) {
	tests := []struct {
		stage Stage
		want  Stage
		ok    bool
	}{
		{StageNoData, StageDataLoaded, false},
		{StageDataLoaded, StageDataLoaded, true},
		{StageCleaned, StageDataLoaded, true},
		{StageTrained, StagePredicted, false},
		{StagePredicted, StageCleaned, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.stage.AtLeast(tt.want), "%s >= %s", tt.stage, tt.want)
	}
}

func TestRunExclusiveSerializes(t *testing.T) {
	s := New()

	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.RunExclusive(func() error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}

func TestManager(t *testing.T) {
	m := NewManager()
	assert.Equal(t, 0, m.Count())

	s := m.Create()
	assert.Equal(t, 1, m.Count())

	got, ok := m.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = m.Get("missing")
	assert.False(t, ok)

	m.Delete(s.ID())
	assert.Equal(t, 0, m.Count())
}
