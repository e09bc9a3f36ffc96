package dataset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(ticker string, open, high, low, close, volume float64) Row {
	return Row{Ticker: ticker, Open: open, High: high, Low: low, Close: close, Volume: volume}
}

func TestTickersDistinctInOrder(t *testing.T) {
	d := New([]Row{
		row("AAPL", 1, 2, 1, 1.5, 100),
		row("MSFT", 1, 2, 1, 1.5, 100),
		row("AAPL", 1, 2, 1, 1.5, 100),
		row("", 1, 2, 1, 1.5, 100),
		row("GOOG", 1, 2, 1, 1.5, 100),
	})

	assert.Equal(t, []string{"AAPL", "MSFT", "GOOG"}, d.Tickers())
}

func TestFilterTicker(t *testing.T) {
	d := New([]Row{
		row("AAPL", 1, 2, 1, 1.5, 100),
		row("MSFT", 5, 6, 4, 5.5, 200),
		row("AAPL", 2, 3, 2, 2.5, 150),
	})

	filtered := d.FilterTicker("AAPL")
	require.Equal(t, 2, filtered.Len())
	for _, r := range filtered.Rows() {
		assert.Equal(t, "AAPL", r.Ticker)
	}

	assert.Equal(t, 0, d.FilterTicker("TSLA").Len())
	// Source dataset untouched
	assert.Equal(t, 3, d.Len())
}

func TestDropMissing(t *testing.T) {
	nan := math.NaN()
	d := New([]Row{
		row("AAPL", 1, 2, 1, 1.5, 100),
		row("AAPL", nan, 2, 1, 1.5, 100),      // one missing instance
		row("AAPL", nan, nan, 1, 1.5, 100),    // two missing instances
		row("AAPL", 2, 3, 2, 2.5, 150),
	})

	cleaned, missing := d.DropMissing()

	assert.Equal(t, 2, cleaned.Len())
	assert.Equal(t, 3, missing)
	assert.Equal(t, 0, cleaned.MissingCount())
}

func TestDropMissingCleanInput(t *testing.T) {
	d := New([]Row{
		row("AAPL", 1, 2, 1, 1.5, 100),
		row("AAPL", 2, 3, 2, 2.5, 150),
	})

	cleaned, missing := d.DropMissing()
	assert.Equal(t, d.Len(), cleaned.Len())
	assert.Zero(t, missing)
}

func TestCleanedIsSubsetOfFiltered(t *testing.T) {
	nan := math.NaN()
	d := New([]Row{
		row("ACME", 10, 11, 9, 10.5, 1000),
		row("ACME", 10, 11, 9, 10.5, nan),
		row("OTHER", 1, 2, 1, 1.5, 100),
	})

	filtered := d.FilterTicker("ACME")
	cleaned, _ := filtered.DropMissing()

	assert.LessOrEqual(t, cleaned.Len(), filtered.Len())
	for _, r := range cleaned.Rows() {
		assert.Equal(t, "ACME", r.Ticker)
		assert.False(t, r.HasMissing())
	}
}

func TestMissingTickerCounts(t *testing.T) {
	r := row("", 1, 2, 1, 1.5, 100)
	assert.Equal(t, 1, r.MissingCount())
	assert.True(t, r.HasMissing())
}

func TestFeatureMatrixAndTargets(t *testing.T) {
	d := New([]Row{
		row("AAPL", 1, 2, 0.5, 1.5, 100),
		row("AAPL", 3, 4, 2.5, 3.5, 200),
	})

	X := d.FeatureMatrix()
	y := d.Targets()

	require.Len(t, X, 2)
	assert.Equal(t, []float64{1, 2, 0.5, 100}, X[0])
	assert.Equal(t, []float64{3, 4, 2.5, 200}, X[1])
	assert.Equal(t, []float64{1.5, 3.5}, y)
}
