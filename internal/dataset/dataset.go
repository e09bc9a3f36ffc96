package dataset

import (
	"math"
)

// Feature column order used throughout the model pipeline.
var FeatureColumns = []string{"open", "high", "low", "volume"}

// TargetColumn is the value the model predicts.
const TargetColumn = "close"

// Row is a single daily observation for one ticker.
// Numeric fields use NaN to mark a missing value.
type Row struct {
	Ticker string
	Date   string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// numerics returns the numeric fields in column order open/high/low/close/volume
func (r Row) numerics() [5]float64 {
	return [5]float64{r.Open, r.High, r.Low, r.Close, r.Volume}
}

// MissingCount returns the number of missing value instances in the row
func (r Row) MissingCount() int {
	count := 0
	if r.Ticker == "" {
		count++
	}
	for _, v := range r.numerics() {
		if math.IsNaN(v) {
			count++
		}
	}
	return count
}

// HasMissing reports whether any field of the row is missing
func (r Row) HasMissing() bool {
	return r.MissingCount() > 0
}

// Features returns the model inputs (open, high, low, volume) in column order
func (r Row) Features() []float64 {
	return []float64{r.Open, r.High, r.Low, r.Volume}
}

// Dataset is an immutable table of daily observations.
// Derived datasets (filtered, cleaned) share no row storage with their source.
type Dataset struct {
	rows []Row
}

// New creates a dataset from rows
func New(rows []Row) *Dataset {
	return &Dataset{rows: rows}
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	return len(d.rows)
}

// Rows returns a copy of the underlying rows
func (d *Dataset) Rows() []Row {
	out := make([]Row, len(d.rows))
	copy(out, d.rows)
	return out
}

// Row returns the row at index i
func (d *Dataset) Row(i int) Row {
	return d.rows[i]
}

// Tickers returns the distinct ticker symbols in first-seen order
func (d *Dataset) Tickers() []string {
	seen := make(map[string]bool, 16)
	var out []string
	for _, r := range d.rows {
		if r.Ticker == "" || seen[r.Ticker] {
			continue
		}
		seen[r.Ticker] = true
		out = append(out, r.Ticker)
	}
	return out
}

// FilterTicker returns the subset of rows whose ticker equals name
func (d *Dataset) FilterTicker(name string) *Dataset {
	var rows []Row
	for _, r := range d.rows {
		if r.Ticker == name {
			rows = append(rows, r)
		}
	}
	return &Dataset{rows: rows}
}

// MissingCount returns the total number of missing value instances in the dataset
func (d *Dataset) MissingCount() int {
	total := 0
	for _, r := range d.rows {
		total += r.MissingCount()
	}
	return total
}

// DropMissing returns the dataset without rows containing any missing value,
// plus the count of missing value instances that were present.
func (d *Dataset) DropMissing() (*Dataset, int) {
	missing := 0
	rows := make([]Row, 0, len(d.rows))
	for _, r := range d.rows {
		if n := r.MissingCount(); n > 0 {
			missing += n
			continue
		}
		rows = append(rows, r)
	}
	return &Dataset{rows: rows}, missing
}

// FeatureMatrix returns the feature columns of every row, in row order
func (d *Dataset) FeatureMatrix() [][]float64 {
	out := make([][]float64, len(d.rows))
	for i, r := range d.rows {
		out[i] = r.Features()
	}
	return out
}

// Targets returns the target column of every row, in row order
func (d *Dataset) Targets() []float64 {
	out := make([]float64, len(d.rows))
	for i, r := range d.rows {
		out[i] = r.Close
	}
	return out
}
