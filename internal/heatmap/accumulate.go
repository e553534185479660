// Package heatmap sums normalized drawings into a per-pixel count field,
// then shifts, smooths and clips it to the anatomical region of interest.
package heatmap

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch is returned when a raster does not match the canvas.
var ErrShapeMismatch = errors.New("shape mismatch")

// Lookup returns the contribution raster of one (participant, trial).
type Lookup func(participant, trial int) (*mat.Dense, error)

// Accumulate sums the contribution raster of every selected trial into a
// fresh rows x cols count matrix. Participants are visited in ascending
// order; the sum does not depend on it.
func Accumulate(rows, cols int, selection map[int][]int, lookup Lookup) (*mat.Dense, int, error) {
	acc := mat.NewDense(rows, cols, nil)

	participants := make([]int, 0, len(selection))
	for p := range selection {
		participants = append(participants, p)
	}
	sort.Ints(participants)

	n := 0
	for _, p := range participants {
		for _, t := range selection[p] {
			contribution, err := lookup(p, t)
			if err != nil {
				return nil, n, err
			}
			if err := checkShape(contribution, rows, cols); err != nil {
				return nil, n, fmt.Errorf("participant %d trial %d: %w", p, t, err)
			}
			acc.Add(acc, contribution)
			n++
		}
	}
	return acc, n, nil
}

func checkShape(m mat.Matrix, rows, cols int) error {
	r, c := m.Dims()
	if r != rows || c != cols {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrShapeMismatch, r, c, rows, cols)
	}
	return nil
}

// Roll shifts m by k columns (negative k shifts left). Columns shifted past
// an edge are discarded and the vacated columns are zero. Roll(Roll(m, k), -k)
// equals m except for |k| zeroed columns at the edge k pointed to.
func Roll(m *mat.Dense, k int) *mat.Dense {
	rows, cols := m.Dims()
	out := mat.NewDense(rows, cols, nil)
	if k >= cols || -k >= cols {
		return out
	}

	srcStart, dstStart, width := 0, k, cols-k
	if k < 0 {
		srcStart, dstStart, width = -k, 0, cols+k
	}
	out.Slice(0, rows, dstStart, dstStart+width).(*mat.Dense).
		Copy(m.Slice(0, rows, srcStart, srcStart+width))
	return out
}
