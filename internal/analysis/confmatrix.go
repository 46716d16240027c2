package analysis

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// NewConfusionMatrix builds an NxN confusion matrix from parallel
// expected/observed label slices, a convenience for ad hoc confusion
// matrices beyond the fixed 2x2 hit/miss/FA/CR shape.
func NewConfusionMatrix(expected, observed []int) (*mat.Dense, error) {
	if len(expected) != len(observed) {
		return nil, fmt.Errorf("analysis: expected/observed length mismatch (%d vs %d)", len(expected), len(observed))
	}
	n := 2
	for _, v := range expected {
		if v+1 > n {
			n = v + 1
		}
	}
	for _, v := range observed {
		if v+1 > n {
			n = v + 1
		}
	}
	m := mat.NewDense(n, n, nil)
	for i := range expected {
		r, c := expected[i], observed[i]
		m.Set(r, c, m.At(r, c)+1)
	}
	return m, nil
}
