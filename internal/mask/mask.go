// Package mask loads the anatomical region-of-interest raster that bounds
// every rendered heatmap.
package mask

import (
	"fmt"
	"sync"

	"thermomap/internal/logging"
	"thermomap/internal/raster"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// DefaultThreshold is the gray level above which a mask pixel is inside the
// region of interest.
const DefaultThreshold = 128

// Mask is a binary region of interest: 1 inside, 0 outside. It is never
// mutated after loading and may be read concurrently.
type Mask struct {
	m *mat.Dense
}

// New wraps a 0/1 matrix. Nonzero entries are treated as inside.
func New(m *mat.Dense) *Mask {
	rows, cols := m.Dims()
	bin := mat.NewDense(rows, cols, nil)
	bin.Apply(func(_, _ int, v float64) float64 {
		if v != 0 {
			return 1
		}
		return 0
	}, m)
	return &Mask{m: bin}
}

// Load reads a grayscale mask image and binarizes it at threshold.
func Load(path string, threshold uint8) (*Mask, error) {
	gray, err := raster.ReadGray(path)
	if err != nil {
		return nil, fmt.Errorf("load mask: %w", err)
	}
	defer gray.Close()

	bin, err := raster.Binary(gray, threshold)
	if err != nil {
		return nil, fmt.Errorf("load mask %s: %w", path, err)
	}
	return &Mask{m: bin}, nil
}

// Dims returns the mask shape as rows, cols.
func (k *Mask) Dims() (rows, cols int) { return k.m.Dims() }

// Inside reports whether pixel (row, col) is inside the region.
func (k *Mask) Inside(row, col int) bool { return k.m.At(row, col) != 0 }

// Matrix returns the 0/1 mask. Callers must not modify it.
func (k *Mask) Matrix() mat.Matrix { return k.m }

// Area returns the number of pixels inside the region.
func (k *Mask) Area() int {
	return int(mat.Sum(k.m))
}

// Provider loads the mask once and hands the same instance to every caller.
type Provider struct {
	path      string
	threshold uint8
	logger    *zap.Logger

	once sync.Once
	mask *Mask
	err  error
}

// NewProvider creates a Provider for the mask at path.
func NewProvider(path string, threshold uint8, logger *zap.Logger) *Provider {
	return &Provider{path: path, threshold: threshold, logger: logging.OrNop(logger)}
}

// Get returns the loaded mask, loading it on first use.
func (p *Provider) Get() (*Mask, error) {
	p.once.Do(func() {
		p.mask, p.err = Load(p.path, p.threshold)
		if p.err != nil {
			return
		}
		rows, cols := p.mask.Dims()
		p.logger.Info("loaded anatomical mask",
			zap.String("path", p.path),
			zap.Int("rows", rows),
			zap.Int("cols", cols),
			zap.Int("area", p.mask.Area()))
	})
	return p.mask, p.err
}
