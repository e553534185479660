package heatmap

import (
	"errors"
	"math/rand"
	"testing"

	"thermomap/internal/mask"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

type key struct{ p, t int }

func randomRasters(rows, cols int, keys []key, seed int64) map[key]*mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	out := make(map[key]*mat.Dense, len(keys))
	for _, k := range keys {
		d := mat.NewDense(rows, cols, nil)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				if rng.Intn(3) == 0 {
					d.Set(i, j, 1)
				}
			}
		}
		out[k] = d
	}
	return out
}

func lookupFrom(rasters map[key]*mat.Dense) Lookup {
	return func(p, t int) (*mat.Dense, error) {
		return rasters[key{p, t}], nil
	}
}

func TestAccumulateOrderIndependent(t *testing.T) {
	keys := []key{{1, 1}, {1, 2}, {1, 5}, {2, 3}, {2, 4}, {3, 1}}
	rasters := randomRasters(8, 10, keys, 1)

	base := map[int][]int{1: {1, 2, 5}, 2: {3, 4}, 3: {1}}
	want, n, err := Accumulate(8, 10, base, lookupFrom(rasters))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		perm := map[int][]int{}
		for p, trials := range base {
			shuffled := append([]int(nil), trials...)
			rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
			perm[p] = shuffled
		}
		got, _, err := Accumulate(8, 10, perm, lookupFrom(rasters))
		require.NoError(t, err)
		assert.True(t, mat.Equal(want, got))
	}

	// Counts are bounded by the number of trials.
	assert.LessOrEqual(t, mat.Max(want), 6.0)
	assert.GreaterOrEqual(t, mat.Min(want), 0.0)
}

func TestAccumulateEmptySelection(t *testing.T) {
	got, n, err := Accumulate(3, 4, map[int][]int{1: {}, 2: {}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0.0, mat.Sum(got))
}

func TestAccumulateErrors(t *testing.T) {
	t.Run("shape mismatch", func(t *testing.T) {
		lookup := func(int, int) (*mat.Dense, error) { return mat.NewDense(2, 2, nil), nil }
		_, _, err := Accumulate(3, 4, map[int][]int{1: {1}}, lookup)
		assert.True(t, errors.Is(err, ErrShapeMismatch))
	})
	t.Run("lookup failure", func(t *testing.T) {
		boom := errors.New("unreadable")
		lookup := func(int, int) (*mat.Dense, error) { return nil, boom }
		_, _, err := Accumulate(3, 4, map[int][]int{1: {1}}, lookup)
		assert.True(t, errors.Is(err, boom))
	})
}

func TestRoll(t *testing.T) {
	m := mat.NewDense(2, 5, []float64{
		1, 2, 3, 4, 5,
		6, 7, 8, 9, 10,
	})

	left := Roll(m, -2)
	assert.True(t, mat.Equal(mat.NewDense(2, 5, []float64{
		3, 4, 5, 0, 0,
		8, 9, 10, 0, 0,
	}), left))

	right := Roll(m, 2)
	assert.True(t, mat.Equal(mat.NewDense(2, 5, []float64{
		0, 0, 1, 2, 3,
		0, 0, 6, 7, 8,
	}), right))

	assert.True(t, mat.Equal(m, Roll(m, 0)))
	assert.Equal(t, 0.0, mat.Sum(Roll(m, 5)))
	assert.Equal(t, 0.0, mat.Sum(Roll(m, -7)))
}

func TestRollIsNotInvertible(t *testing.T) {
	m := mat.NewDense(3, 6, []float64{
		1, 2, 3, 4, 5, 6,
		1, 2, 3, 4, 5, 6,
		1, 2, 3, 4, 5, 6,
	})
	const k = -2
	back := Roll(Roll(m, k), -k)

	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if j < -k {
				assert.Equal(t, 0.0, back.At(i, j), "column %d should be zero-filled", j)
			} else {
				assert.Equal(t, m.At(i, j), back.At(i, j))
			}
		}
	}
}

func TestSmoothSigmaZeroIsIdentity(t *testing.T) {
	m := randomRasters(6, 7, []key{{1, 1}}, 3)[key{1, 1}]
	got, err := Smooth(m, 0)
	require.NoError(t, err)
	assert.True(t, mat.Equal(m, got))
	assert.NotSame(t, m, got)
}

func TestSmoothSpreadsWithoutRenormalizing(t *testing.T) {
	m := mat.NewDense(21, 21, nil)
	m.Set(10, 10, 4)

	got, err := Smooth(m, 1)
	require.NoError(t, err)

	r, c := got.Dims()
	assert.Equal(t, 21, r)
	assert.Equal(t, 21, c)
	assert.Less(t, got.At(10, 10), 4.0)
	assert.Greater(t, got.At(10, 11), 0.0)
	assert.InDelta(t, got.At(10, 11), got.At(11, 10), 1e-9)
	assert.InDelta(t, got.At(9, 10), got.At(10, 11), 1e-9)
	// Away from the borders the kernel preserves mass.
	assert.InDelta(t, 4.0, mat.Sum(got), 1e-6)
	assert.Equal(t, 4, KernelRadius(1))
	assert.Equal(t, 6, KernelRadius(1.5))
}

func TestApplyZeroesOutsideMask(t *testing.T) {
	roi := mask.New(mat.NewDense(3, 3, []float64{
		0, 1, 1,
		0, 1, 1,
		0, 0, 0,
	}))
	field := mat.NewDense(3, 3, []float64{
		5, 5, 5,
		5, 5, 5,
		5, 5, 5,
	})

	masked, alpha, err := Apply(field, roi)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if roi.Inside(i, j) {
				assert.Equal(t, 5.0, masked.At(i, j))
				assert.Equal(t, 1.0, alpha.At(i, j))
			} else {
				assert.Equal(t, 0.0, masked.At(i, j))
				assert.Equal(t, 0.0, alpha.At(i, j))
			}
		}
	}

	_, _, err = Apply(mat.NewDense(2, 2, nil), roi)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestBuildSmoothsBeforeMasking(t *testing.T) {
	// Signal sits just outside the region; smoothing first lets it bleed in.
	roiData := make([]float64, 9*9)
	for i := 0; i < 9; i++ {
		for j := 5; j < 9; j++ {
			roiData[i*9+j] = 1
		}
	}
	roi := mask.New(mat.NewDense(9, 9, roiData))

	counts := mat.NewDense(9, 9, nil)
	counts.Set(4, 4, 1)

	f, err := Build(counts, 1, DefaultParams(), roi)
	require.NoError(t, err)
	assert.Equal(t, 1, f.Trials)
	assert.Greater(t, f.Values.At(4, 5), 0.0)
	assert.Equal(t, 0.0, f.Values.At(4, 4))

	rows, cols := f.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if !roi.Inside(i, j) {
				assert.Equal(t, 0.0, f.Values.At(i, j))
			}
		}
	}
}

func TestBuildShift(t *testing.T) {
	roi := mask.New(mat.NewDense(1, 6, []float64{1, 1, 1, 1, 1, 1}))
	counts := mat.NewDense(1, 6, []float64{0, 0, 0, 0, 1, 0})

	f, err := Build(counts, 1, Params{Sigma: 0, Shift: -3}, roi)
	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(1, 6, []float64{0, 1, 0, 0, 0, 0}), f.Values))

	_, err = Build(mat.NewDense(2, 6, nil), 0, DefaultParams(), roi)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}
