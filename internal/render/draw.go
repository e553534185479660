package render

import (
	"image"
	"image/color"
	"math"

	"thermomap/pkg/colorutil"
	"thermomap/pkg/geometry"
)

// blend paints c with opacity alpha over the pixel at (x, y).
func blend(img *image.RGBA, x, y int, c color.RGBA, alpha float64) {
	if !(image.Point{x, y}.In(img.Bounds())) {
		return
	}
	bg := img.RGBAAt(x, y)
	img.SetRGBA(x, y, colorutil.Over(colorutil.FromRGBA(c), alpha, colorutil.FromRGBA(bg)))
}

// fillCircle paints every pixel whose center lies within radius of center.
func fillCircle(img *image.RGBA, center geometry.Point2D, radius float64, c color.RGBA, alpha float64) {
	ring(img, center, -1, radius, c, alpha)
}

// ring paints pixels whose center distance d satisfies inner < d <= outer.
func ring(img *image.RGBA, center geometry.Point2D, inner, outer float64, c color.RGBA, alpha float64) {
	x0 := int(math.Floor(center.X - outer))
	x1 := int(math.Ceil(center.X + outer))
	y0 := int(math.Floor(center.Y - outer))
	y1 := int(math.Ceil(center.Y + outer))

	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			d := geometry.NewPoint2D(float64(x)+0.5, float64(y)+0.5).Distance(center)
			if d <= outer && d > inner {
				blend(img, x, y, c, alpha)
			}
		}
	}
}

// fillSquare paints an axis-aligned square of the given side around center.
func fillSquare(img *image.RGBA, center geometry.Point2D, side float64, c color.RGBA, alpha float64) {
	half := side / 2
	x0 := int(math.Round(center.X - half))
	y0 := int(math.Round(center.Y - half))
	x1 := int(math.Round(center.X + half))
	y1 := int(math.Round(center.Y + half))

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			blend(img, x, y, c, alpha)
		}
	}
}

// drawLine draws a line of the given width using Bresenham's algorithm.
func drawLine(img *image.RGBA, from, to image.Point, width int, c color.RGBA, alpha float64) {
	x0, y0, x1, y1 := from.X, from.Y, to.X, to.Y
	dx := intAbs(x1 - x0)
	dy := -intAbs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	half := width / 2

	for {
		for oy := -half; oy <= half; oy++ {
			for ox := -half; ox <= half; ox++ {
				blend(img, x0+ox, y0+oy, c, alpha)
			}
		}
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// drawArrowHead draws two wings of length size ending at tip.
func drawArrowHead(img *image.RGBA, from, tip image.Point, size float64, width int, c color.RGBA, alpha float64) {
	dx := float64(tip.X - from.X)
	dy := float64(tip.Y - from.Y)
	length := math.Hypot(dx, dy)
	if length < 1 {
		return
	}
	dx /= length
	dy /= length

	px := float64(tip.X) - dx*size
	py := float64(tip.Y) - dy*size

	w1 := image.Pt(int(px+dy*size*0.4), int(py-dx*size*0.4))
	w2 := image.Pt(int(px-dy*size*0.4), int(py+dx*size*0.4))

	drawLine(img, tip, w1, width, c, alpha)
	drawLine(img, tip, w2, width, c, alpha)
}

func intAbs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
