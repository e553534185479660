// Package render turns a masked heatmap field into the published asset:
// color ramp over white, landmarks, stimulus marker, crop and transparent
// border.
package render

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"strings"

	"thermomap/internal/condition"
	"thermomap/internal/heatmap"
	"thermomap/internal/logging"
	"thermomap/internal/raster"
	"thermomap/pkg/colorutil"
	"thermomap/pkg/geometry"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/mat"
)

// ErrCropOutOfBounds is returned when the crop box does not fit inside the
// composite.
var ErrCropOutOfBounds = errors.New("crop box out of bounds")

// Asset describes a written heatmap.
type Asset struct {
	Path        string
	Combination condition.Combination
	Width       int
	Height      int
	// SHA256 of the written file, hex encoded.
	SHA256 string
	Bytes  int
}

// Renderer composes and writes heatmap assets. It holds no mutable state
// and is safe for concurrent use.
type Renderer struct {
	params Params
	logger *zap.Logger
}

// New creates a Renderer.
func New(p Params, logger *zap.Logger) *Renderer {
	return &Renderer{params: p, logger: logging.OrNop(logger)}
}

// Params returns the renderer's parameters.
func (r *Renderer) Params() Params { return r.params }

// Ramp selects the warm ramp for positive temperatures and the cool ramp
// otherwise.
func (r *Renderer) Ramp(c condition.Combination) colorutil.ColorMap {
	name := r.params.CoolRamp
	if c.Warm() {
		name = r.params.WarmRamp
	}
	m, ok := colorutil.ColorMapByName(name)
	if !ok {
		return colorutil.Hot
	}
	return m
}

// Normalize maps values linearly onto [0, 1] using their min and max. A flat
// field maps to 0.
func Normalize(values *mat.Dense) *mat.Dense {
	lo, hi := mat.Min(values), mat.Max(values)
	rows, cols := values.Dims()
	out := mat.NewDense(rows, cols, nil)
	if hi <= lo {
		return out
	}
	span := hi - lo
	out.Apply(func(_, _ int, v float64) float64 { return (v - lo) / span }, values)
	return out
}

// Colorize paints the field with ramp over a white background, using the
// field's alpha as per-pixel opacity. The result has canvas dimensions.
func Colorize(f *heatmap.Field, ramp colorutil.ColorMap) *image.RGBA {
	norm := Normalize(f.Values)
	rows, cols := norm.Dims()
	white := colorutil.FromRGBA(colorutil.White)

	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			img.SetRGBA(x, y, colorutil.Over(ramp.At(norm.At(y, x)), f.Alpha.At(y, x), white))
		}
	}
	return img
}

// Compose builds the full-resolution composite: colorized field upscaled by
// Scale with landmarks and the stimulus marker on top.
func (r *Renderer) Compose(f *heatmap.Field, c condition.Combination) *image.RGBA {
	p := r.params
	base := Colorize(f, r.Ramp(c))

	scale := float64(p.Scale)
	b := base.Bounds()
	img := image.NewRGBA(image.Rect(0, 0, b.Dx()*p.Scale, b.Dy()*p.Scale))
	draw.BiLinear.Scale(img, img.Bounds(), base, b, draw.Src, nil)

	for _, l := range p.Landmarks {
		center := l.Center.Scale(scale)
		switch l.Shape {
		case ShapeSquare:
			fillSquare(img, center, l.Size*scale, colorutil.Gray, p.MarkerAlpha)
		default:
			fillCircle(img, center, l.Size*scale, colorutil.Gray, p.MarkerAlpha)
		}
	}

	r.drawStimulus(img, c)
	return img
}

func (r *Renderer) drawStimulus(img *image.RGBA, c condition.Combination) {
	p := r.params
	fraction, ok := c.MarkerFraction()
	if !ok {
		return
	}

	scale := float64(p.Scale)
	from := p.Stimulus.From.Scale(scale)
	to := p.Stimulus.To.Scale(scale)
	origin := from.Lerp(to, fraction)
	radius := p.Stimulus.Radius * scale
	edge := p.Stimulus.EdgeWidth * scale

	if c.Axis == condition.AxisDirection {
		target := from.Lerp(to, 1-fraction)
		width := max(1, int(math.Round(edge)))
		drawLine(img, origin.Round(), target.Round(), width, colorutil.Black, 1)
		drawArrowHead(img, origin.Round(), target.Round(), 3*radius, width, colorutil.Black, 1)
	}

	fill := colorutil.Blue
	if c.Warm() {
		fill = colorutil.Red
	}
	fillCircle(img, origin, radius-edge/2, fill, p.MarkerAlpha)
	ring(img, origin, radius-edge/2, radius+edge/2, colorutil.Black, p.MarkerAlpha)
}

// Crop copies box out of img. The box must lie inside the image bounds.
func Crop(img image.Image, box geometry.RectInt) (*image.NRGBA, error) {
	if !box.Within(img.Bounds()) {
		return nil, fmt.Errorf("%w: box %s, image %v", ErrCropOutOfBounds, box, img.Bounds())
	}
	out := image.NewNRGBA(image.Rect(0, 0, box.Width, box.Height))
	draw.Draw(out, out.Bounds(), img, box.Image().Min, draw.Src)
	return out, nil
}

// TrimBorder makes pixels transparent that lie within margin of any edge and
// whose R, G and B all exceed threshold. Interior pixels are untouched.
func TrimBorder(img *image.NRGBA, margin int, threshold uint8) int {
	b := img.Bounds()
	trimmed := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			near := x < b.Min.X+margin || x >= b.Max.X-margin ||
				y < b.Min.Y+margin || y >= b.Max.Y-margin
			if !near {
				continue
			}
			c := img.NRGBAAt(x, y)
			if c.R > threshold && c.G > threshold && c.B > threshold {
				img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 0})
				trimmed++
			}
		}
	}
	return trimmed
}

// RawPath returns the temporary path of the uncropped composite.
func RawPath(path string) string {
	return strings.TrimSuffix(path, ".png") + "_raw.png"
}

// Render composes the field, writes the raw composite, crops it, trims the
// border and writes the asset to path. The raw file is removed afterwards
// unless KeepRaw is set.
func (r *Renderer) Render(f *heatmap.Field, c condition.Combination, path string) (*Asset, error) {
	p := r.params
	raw := RawPath(path)

	if _, err := raster.SavePNG(raw, r.Compose(f, c)); err != nil {
		return nil, fmt.Errorf("write raw composite: %w", err)
	}
	if !p.KeepRaw {
		defer func() {
			if err := os.Remove(raw); err != nil && !errors.Is(err, os.ErrNotExist) {
				r.logger.Warn("failed to remove raw composite", zap.String("path", raw), zap.Error(err))
			}
		}()
	}

	composite, err := raster.Load(raw)
	if err != nil {
		return nil, fmt.Errorf("reload raw composite: %w", err)
	}

	cropped, err := Crop(composite, p.CropBox)
	if err != nil {
		return nil, err
	}
	trimmed := TrimBorder(cropped, p.BorderMargin, p.WhiteThreshold)

	data, err := raster.SavePNG(path, cropped)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)

	r.logger.Debug("rendered heatmap",
		zap.String("path", path),
		zap.Stringer("combination", c),
		zap.Int("trials", f.Trials),
		zap.Int("transparent", trimmed))

	b := cropped.Bounds()
	return &Asset{
		Path:        path,
		Combination: c,
		Width:       b.Dx(),
		Height:      b.Dy(),
		SHA256:      hex.EncodeToString(sum[:]),
		Bytes:       len(data),
	}, nil
}
