package drawing

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"thermomap/internal/logging"
	"thermomap/internal/raster"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// Store locates drawings on disk:
// <Root>/p<P>/p<P>_trial<T>_drawing.png.
type Store struct {
	Root string
}

// Name returns the file name of a drawing.
func Name(participant, trial int) string {
	return fmt.Sprintf("p%d_trial%d_drawing.png", participant, trial)
}

// Path returns the path of a drawing.
func (s Store) Path(participant, trial int) string {
	return filepath.Join(s.Root, fmt.Sprintf("p%d", participant), Name(participant, trial))
}

// Result holds a normalized drawing.
type Result struct {
	// Filled is the decoded image with marked regions painted solid.
	Filled gocv.Mat
	// Contribution is 1 where the drawing is inked, 0 elsewhere.
	Contribution *mat.Dense
	// Regions is the number of marked regions filled.
	Regions int
}

// Close releases the filled image.
func (r *Result) Close() error {
	return r.Filled.Close()
}

// Normalize segments the red ink of a BGR image, closes the marked mask,
// fills every marked region and binarizes the result by luminance.
func Normalize(img gocv.Mat, p Params) (*Result, error) {
	if img.Empty() {
		return nil, errors.New("empty image")
	}

	marked := SegmentRed(img, p.RedBands)
	defer marked.Close()

	closed := CloseMask(marked, p.KernelSize, p.CloseIterations)
	defer closed.Close()

	filled := img.Clone()
	regions := FillRegions(&filled, closed, Fill)

	gray := Gray(filled)
	defer gray.Close()

	contribution, err := raster.Binary(gray, p.InkThreshold)
	if err != nil {
		filled.Close()
		return nil, err
	}

	return &Result{Filled: filled, Contribution: contribution, Regions: regions}, nil
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(n *Normalizer) { n.logger = logging.OrNop(l) }
}

// WithPersistFilled writes each filled drawing under dir, mirroring the
// store layout. Pointing dir at the store root overwrites the sources.
func WithPersistFilled(dir string) Option {
	return func(n *Normalizer) { n.persist = dir }
}

// Normalizer produces contribution rasters for (participant, trial) pairs.
// It is safe for concurrent use.
type Normalizer struct {
	store      Store
	params     Params
	rows, cols int
	logger     *zap.Logger
	persist    string
}

// NewNormalizer creates a Normalizer for drawings on a rows x cols canvas.
func NewNormalizer(store Store, rows, cols int, params Params, opts ...Option) *Normalizer {
	n := &Normalizer{
		store:  store,
		params: params,
		rows:   rows,
		cols:   cols,
		logger: logging.OrNop(nil),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Contribution returns the contribution raster of one trial. A missing
// drawing yields an all-zero raster and a warning; a drawing that cannot be
// decoded is an error.
func (n *Normalizer) Contribution(participant, trial int) (*mat.Dense, error) {
	path := n.store.Path(participant, trial)

	img, err := raster.ReadBGR(path)
	if errors.Is(err, fs.ErrNotExist) {
		n.logger.Warn("drawing missing, contributing zeros",
			zap.Int("participant", participant),
			zap.Int("trial", trial),
			zap.String("path", path))
		return mat.NewDense(n.rows, n.cols, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("participant %d trial %d: %w", participant, trial, err)
	}
	defer img.Close()

	res, err := Normalize(img, n.params)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", path, err)
	}
	defer res.Close()

	if n.persist != "" {
		out := Store{Root: n.persist}.Path(participant, trial)
		if err := raster.WriteMat(out, res.Filled); err != nil {
			n.logger.Warn("failed to persist filled drawing", zap.String("path", out), zap.Error(err))
		}
	}

	n.logger.Debug("normalized drawing",
		zap.Int("participant", participant),
		zap.Int("trial", trial),
		zap.Int("regions", res.Regions),
		zap.Float64("inked", mat.Sum(res.Contribution)))

	return res.Contribution, nil
}

// NormalizeFile normalizes a single drawing file.
func NormalizeFile(path string, p Params) (*Result, error) {
	img, err := raster.ReadBGR(path)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	return Normalize(img, p)
}
