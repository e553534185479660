package heatmap

import (
	"fmt"
	"image"
	"math"

	"thermomap/internal/mask"
	"thermomap/internal/raster"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// Params configures the field built from the raw counts.
type Params struct {
	// Sigma of the Gaussian kernel in pixels; 0 disables smoothing.
	Sigma float64 `yaml:"sigma"`
	// Shift rolls the counts along columns before smoothing to correct the
	// registration between drawing canvas and mask.
	Shift int `yaml:"shift"`
}

// DefaultParams returns sigma 1 and no shift.
func DefaultParams() Params {
	return Params{Sigma: 1}
}

// KernelRadius returns the Gaussian kernel radius for sigma: int(4*sigma+0.5).
func KernelRadius(sigma float64) int {
	return int(4*sigma + 0.5)
}

// Smooth convolves m with an isotropic Gaussian, reflecting at the borders.
// Total mass is not renormalized. sigma <= 0 returns a copy of m.
func Smooth(m *mat.Dense, sigma float64) (*mat.Dense, error) {
	if sigma <= 0 || math.IsNaN(sigma) {
		return mat.DenseCopyOf(m), nil
	}

	src, err := raster.DenseToMat(m)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	k := 2*KernelRadius(sigma) + 1
	gocv.GaussianBlur(src, &dst, image.Point{k, k}, sigma, sigma, gocv.BorderReflect)

	return raster.MatToDense(dst)
}

// Field is a smoothed, masked count field ready for rendering.
type Field struct {
	// Values is zero everywhere outside the mask.
	Values *mat.Dense
	// Alpha is 1 inside the mask and 0 outside.
	Alpha *mat.Dense
	// Trials is the number of contributions summed into the field.
	Trials int
}

// Dims returns the field shape.
func (f *Field) Dims() (rows, cols int) { return f.Values.Dims() }

// Apply clips field to the mask: values outside become zero.
func Apply(field *mat.Dense, m *mask.Mask) (masked, alpha *mat.Dense, err error) {
	rows, cols := m.Dims()
	if err := checkShape(field, rows, cols); err != nil {
		return nil, nil, err
	}
	masked = mat.NewDense(rows, cols, nil)
	masked.MulElem(field, m.Matrix())
	alpha = mat.DenseCopyOf(m.Matrix())
	return masked, alpha, nil
}

// Build shifts, smooths and masks the raw counts. Smoothing runs before
// masking so signal near the region boundary is not pulled toward zero.
func Build(counts *mat.Dense, trials int, p Params, m *mask.Mask) (*Field, error) {
	rows, cols := m.Dims()
	if err := checkShape(counts, rows, cols); err != nil {
		return nil, err
	}

	field := counts
	if p.Shift != 0 {
		field = Roll(field, p.Shift)
	}

	smoothed, err := Smooth(field, p.Sigma)
	if err != nil {
		return nil, fmt.Errorf("smooth: %w", err)
	}

	values, alpha, err := Apply(smoothed, m)
	if err != nil {
		return nil, err
	}
	return &Field{Values: values, Alpha: alpha, Trials: trials}, nil
}
