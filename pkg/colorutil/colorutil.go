// Package colorutil provides the overlay colors and color ramps used to
// render heatmaps.
package colorutil

import (
	"image/color"
	"math"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
)

// Common overlay colors used throughout the application.
var (
	Black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Gray  = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	Red   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	Blue  = color.RGBA{R: 0, G: 0, B: 255, A: 255}
)

// Stop is one control point of a color ramp channel: value V at position X.
type Stop struct {
	X float64
	V float64
}

// ColorMap is a piecewise-linear color ramp defined per channel, in the
// same segment form matplotlib uses for its built-in maps.
type ColorMap struct {
	Name    string
	R, G, B []Stop
}

// Hot runs black -> red -> yellow -> white.
var Hot = ColorMap{
	Name: "hot",
	R:    []Stop{{0, 0.0416}, {0.365079, 1}, {1, 1}},
	G:    []Stop{{0, 0}, {0.365079, 0}, {0.746032, 1}, {1, 1}},
	B:    []Stop{{0, 0}, {0.746032, 0}, {1, 1}},
}

// Bone runs black -> blue-gray -> white.
var Bone = ColorMap{
	Name: "bone",
	R:    []Stop{{0, 0}, {0.746032, 0.652778}, {1, 1}},
	G:    []Stop{{0, 0}, {0.365079, 0.319444}, {0.746032, 0.777778}, {1, 1}},
	B:    []Stop{{0, 0}, {0.365079, 0.444444}, {1, 1}},
}

// ColorMapByName looks up a built-in ramp.
func ColorMapByName(name string) (ColorMap, bool) {
	switch name {
	case Hot.Name:
		return Hot, true
	case Bone.Name:
		return Bone, true
	}
	return ColorMap{}, false
}

// At returns the ramp color at t, clamped to [0, 1].
func (m ColorMap) At(t float64) colorful.Color {
	if math.IsNaN(t) {
		t = 0
	}
	t = math.Max(0, math.Min(1, t))
	return colorful.Color{R: channelAt(m.R, t), G: channelAt(m.G, t), B: channelAt(m.B, t)}
}

func channelAt(stops []Stop, t float64) float64 {
	if len(stops) == 0 {
		return 0
	}
	i := sort.Search(len(stops), func(i int) bool { return stops[i].X >= t })
	if i == 0 {
		return stops[0].V
	}
	if i == len(stops) {
		return stops[len(stops)-1].V
	}
	lo, hi := stops[i-1], stops[i]
	if hi.X == lo.X {
		return hi.V
	}
	f := (t - lo.X) / (hi.X - lo.X)
	return lo.V + f*(hi.V-lo.V)
}

// Over composites fg with the given opacity onto an opaque bg.
func Over(fg colorful.Color, alpha float64, bg colorful.Color) color.RGBA {
	alpha = math.Max(0, math.Min(1, alpha))
	r, g, b := fg.BlendRgb(bg, 1-alpha).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// FromRGBA converts an 8-bit color to colorful's float representation.
func FromRGBA(c color.RGBA) colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}
