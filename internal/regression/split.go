package regression

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// DefaultTestFraction is the share of rows held out for evaluation
const DefaultTestFraction = 0.2

// Split is a randomized partition of feature rows and targets into a train
// set and a held-out test set. Train and test are disjoint and together
// cover every input row.
type Split struct {
	TrainX [][]float64
	TrainY []float64
	TestX  [][]float64
	TestY  []float64

	// TestIndices are the original row indices of the test partition,
	// in the partition's row order
	TestIndices []int
}

// TrainTestSplit randomly partitions the rows, holding out testFraction of
// them. rnd injects a deterministic source for tests; nil uses a time-seeded
// source, so repeated calls yield different partitions.
func TrainTestSplit(X [][]float64, y []float64, testFraction float64, rnd *rand.Rand) (*Split, error) {
	n := len(X)
	if n != len(y) {
		return nil, fmt.Errorf("feature rows (%d) and targets (%d) differ in length", n, len(y))
	}
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 rows to split, got %d", n)
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, fmt.Errorf("test fraction must be in (0, 1), got %v", testFraction)
	}

	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	testCount := int(math.Round(float64(n) * testFraction))
	if testCount == 0 {
		testCount = 1
	}
	if testCount == n {
		testCount = n - 1
	}

	indices := rnd.Perm(n)
	testIdx := indices[:testCount]
	trainIdx := indices[testCount:]

	s := &Split{
		TrainX:      make([][]float64, 0, len(trainIdx)),
		TrainY:      make([]float64, 0, len(trainIdx)),
		TestX:       make([][]float64, 0, len(testIdx)),
		TestY:       make([]float64, 0, len(testIdx)),
		TestIndices: make([]int, 0, len(testIdx)),
	}

	for _, i := range trainIdx {
		s.TrainX = append(s.TrainX, X[i])
		s.TrainY = append(s.TrainY, y[i])
	}
	for _, i := range testIdx {
		s.TestX = append(s.TestX, X[i])
		s.TestY = append(s.TestY, y[i])
		s.TestIndices = append(s.TestIndices, i)
	}

	return s, nil
}
