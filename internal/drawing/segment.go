// Package drawing turns freehand red-ink annotations into binary
// contribution rasters.
package drawing

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Fill is the color marked regions are painted with (BGR red).
var Fill = color.RGBA{R: 255, G: 0, B: 0, A: 255}

// SegmentRed returns a mask (255 = marked) of the pixels of a BGR image that
// fall in any of the HSV bands.
func SegmentRed(img gocv.Mat, bands []HSVBand) gocv.Mat {
	if img.Empty() {
		return gocv.NewMat()
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(img, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), img.Rows(), img.Cols(), gocv.MatTypeCV8U)
	band := gocv.NewMat()
	defer band.Close()

	for _, b := range bands {
		gocv.InRangeWithScalar(hsv,
			gocv.NewScalar(b.HueMin, b.SatMin, b.ValMin, 0),
			gocv.NewScalar(b.HueMax, b.SatMax, b.ValMax, 0),
			&band)
		gocv.BitwiseOr(mask, band, &mask)
	}

	return mask
}

// CloseMask applies a morphological closing: iterations dilations followed
// by as many erosions with a square kernel.
func CloseMask(mask gocv.Mat, kernelSize, iterations int) gocv.Mat {
	if mask.Empty() {
		return gocv.NewMat()
	}

	closed := mask.Clone()
	if kernelSize <= 0 || iterations <= 0 {
		return closed
	}

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{kernelSize, kernelSize})
	defer kernel.Close()

	// Bridge gaps
	for i := 0; i < iterations; i++ {
		gocv.Dilate(closed, &closed, kernel)
	}
	// Restore the outline
	for i := 0; i < iterations; i++ {
		gocv.Erode(closed, &closed, kernel)
	}

	return closed
}

// FillRegions paints the interior of every external contour of mask onto
// img with c and returns the number of regions filled.
func FillRegions(img *gocv.Mat, mask gocv.Mat, c color.RGBA) int {
	if mask.Empty() {
		return 0
	}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	for i := 0; i < contours.Size(); i++ {
		gocv.DrawContours(img, contours, i, c, -1)
	}

	return contours.Size()
}

// Gray converts a BGR image to single-channel luminance.
func Gray(img gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	return gray
}
