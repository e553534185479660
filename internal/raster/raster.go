// Package raster provides image loading and saving, and conversion between
// gocv matrices and gonum dense matrices.
package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	_ "image/jpeg"

	_ "golang.org/x/image/tiff"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// ErrDecode is returned when a file exists but cannot be decoded as an image.
var ErrDecode = errors.New("failed to decode image")

// Load decodes an image file (PNG, JPEG or TIFF).
func Load(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrDecode, path, err)
	}
	return img, nil
}

// ReadBGR reads an image file into a 3-channel BGR Mat. Alpha is dropped.
// A missing file yields an error wrapping os.ErrNotExist.
func ReadBGR(path string) (gocv.Mat, error) {
	return read(path, gocv.IMReadColor)
}

// ReadGray reads an image file into a single-channel 8-bit Mat.
func ReadGray(path string) (gocv.Mat, error) {
	return read(path, gocv.IMReadGrayScale)
}

func read(path string, flags gocv.IMReadFlag) (gocv.Mat, error) {
	if _, err := os.Stat(path); err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to open image: %w", err)
	}
	m := gocv.IMRead(path, flags)
	if m.Empty() {
		m.Close()
		return gocv.NewMat(), fmt.Errorf("%w %s", ErrDecode, path)
	}
	return m, nil
}

// WriteMat writes a Mat to path, creating parent directories.
func WriteMat(path string, m gocv.Mat) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if !gocv.IMWrite(path, m) {
		return fmt.Errorf("failed to write image %s", path)
	}
	return nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// SavePNG encodes img as PNG and writes it to path, creating parent
// directories. The encoded bytes are returned.
func SavePNG(path string, img image.Image) ([]byte, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return data, nil
}

// Binary converts a single-channel 8-bit Mat to a 0/1 dense matrix: 1 where
// the pixel value is strictly greater than threshold.
func Binary(m gocv.Mat, threshold uint8) (*mat.Dense, error) {
	if m.Empty() {
		return nil, errors.New("empty mat")
	}
	if m.Channels() != 1 {
		return nil, fmt.Errorf("expected single-channel mat, got %d channels", m.Channels())
	}
	rows, cols := m.Rows(), m.Cols()
	px := m.ToBytes()
	data := make([]float64, rows*cols)
	for i, v := range px[:rows*cols] {
		if v > threshold {
			data[i] = 1
		}
	}
	return mat.NewDense(rows, cols, data), nil
}

// DenseToMat copies a dense matrix into a CV_64F Mat.
func DenseToMat(d *mat.Dense) (gocv.Mat, error) {
	rows, cols := d.Dims()
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV64F)
	data, err := m.DataPtrFloat64()
	if err != nil {
		m.Close()
		return gocv.NewMat(), err
	}
	raw := d.RawMatrix()
	for y := 0; y < rows; y++ {
		copy(data[y*cols:(y+1)*cols], raw.Data[y*raw.Stride:y*raw.Stride+cols])
	}
	return m, nil
}

// MatToDense copies a CV_64F Mat into a new dense matrix.
func MatToDense(m gocv.Mat) (*mat.Dense, error) {
	if m.Type() != gocv.MatTypeCV64F {
		return nil, fmt.Errorf("expected CV_64F mat, got %v", m.Type())
	}
	data, err := m.DataPtrFloat64()
	if err != nil {
		return nil, err
	}
	rows, cols := m.Rows(), m.Cols()
	return mat.NewDense(rows, cols, append([]float64(nil), data[:rows*cols]...)), nil
}
