package regression

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Model is a fitted ordinary least squares linear model
type Model struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

// Fit estimates an OLS model with intercept from the given feature rows and
// targets, solving the normal system through a QR factorization. A degenerate
// feature matrix (collinear columns, too few rows) returns an error and no model.
func Fit(X [][]float64, y []float64) (*Model, error) {
	n := len(X)
	if n == 0 {
		return nil, fmt.Errorf("no training rows")
	}
	if n != len(y) {
		return nil, fmt.Errorf("feature rows (%d) and targets (%d) differ in length", n, len(y))
	}
	p := len(X[0])
	if p == 0 {
		return nil, fmt.Errorf("no feature columns")
	}
	if n < p+1 {
		return nil, fmt.Errorf("need at least %d rows to fit %d features, got %d", p+1, p, n)
	}

	// Design matrix with a leading column of ones for the intercept
	a := mat.NewDense(n, p+1, nil)
	for i, row := range X {
		if len(row) != p {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), p)
		}
		a.Set(i, 0, 1)
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("non-finite feature value at row %d", i)
			}
			a.Set(i, j+1, v)
		}
	}

	b := mat.NewVecDense(n, nil)
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite target value at row %d", i)
		}
		b.SetVec(i, v)
	}

	var qr mat.QR
	qr.Factorize(a)

	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, b); err != nil {
		return nil, fmt.Errorf("least squares solve failed: %w", err)
	}

	coeffs := make([]float64, p)
	for j := 0; j < p; j++ {
		coeffs[j] = beta.AtVec(j + 1)
	}

	return &Model{
		Intercept:    beta.AtVec(0),
		Coefficients: coeffs,
	}, nil
}

// PredictRow applies the model to a single feature row
func (m *Model) PredictRow(x []float64) (float64, error) {
	if len(x) != len(m.Coefficients) {
		return 0, fmt.Errorf("row has %d features, model expects %d", len(x), len(m.Coefficients))
	}
	v := m.Intercept
	for j, c := range m.Coefficients {
		v += c * x[j]
	}
	return v, nil
}

// Predict applies the model to every feature row, preserving row order
func (m *Model) Predict(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		v, err := m.PredictRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Score returns the coefficient of determination of the model on X, y
func (m *Model) Score(X [][]float64, y []float64) (float64, error) {
	predicted, err := m.Predict(X)
	if err != nil {
		return 0, err
	}
	if len(predicted) != len(y) {
		return 0, fmt.Errorf("predictions (%d) and targets (%d) differ in length", len(predicted), len(y))
	}
	return RSquared(y, predicted), nil
}

// RSquared computes the coefficient of determination between actual and
// predicted sequences. Identical sequences score 1.0; a constant prediction
// over non-constant actuals scores at or below zero. Constant actuals make
// the usual ratio undefined: a perfect fit still scores 1.0, anything else -Inf.
func RSquared(actual, predicted []float64) float64 {
	ssRes := 0.0
	for i := range actual {
		d := actual[i] - predicted[i]
		ssRes += d * d
	}

	meanActual := stat.Mean(actual, nil)
	ssTot := 0.0
	for _, v := range actual {
		d := v - meanActual
		ssTot += d * d
	}

	if ssTot == 0 {
		if ssRes == 0 {
			return 1.0
		}
		return math.Inf(-1)
	}

	return 1 - ssRes/ssTot
}
