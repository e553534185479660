package drawing

import (
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"thermomap/internal/raster"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

var ink = color.RGBA{R: 230, G: 20, B: 20, A: 255}

func blank(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8UC3)
}

func inked(d *mat.Dense) int {
	return int(mat.Sum(d))
}

func TestNormalizeBlank(t *testing.T) {
	img := blank(60, 80)
	defer img.Close()

	res, err := Normalize(img, DefaultParams())
	require.NoError(t, err)
	defer res.Close()

	assert.Equal(t, 0, inked(res.Contribution))
	assert.Equal(t, 0, res.Regions)
	r, c := res.Contribution.Dims()
	assert.Equal(t, 60, r)
	assert.Equal(t, 80, c)
}

func TestNormalizeOutlineMatchesFill(t *testing.T) {
	const radius = 20
	center := image.Pt(50, 50)

	solid := blank(100, 100)
	defer solid.Close()
	gocv.Circle(&solid, center, radius, ink, -1)

	outline := blank(100, 100)
	defer outline.Close()
	gocv.Circle(&outline, center, radius, ink, 2)

	p := DefaultParams()
	a, err := Normalize(solid, p)
	require.NoError(t, err)
	defer a.Close()
	b, err := Normalize(outline, p)
	require.NoError(t, err)
	defer b.Close()

	area := math.Pi * radius * radius
	assert.InDelta(t, area, float64(inked(a.Contribution)), area*0.15)
	assert.InDelta(t, float64(inked(a.Contribution)), float64(inked(b.Contribution)), area*0.15)
	assert.Equal(t, 1, a.Regions)
	assert.Equal(t, 1, b.Regions)
}

func TestNormalizeBridgesSmallGaps(t *testing.T) {
	img := blank(100, 100)
	defer img.Close()
	gocv.Circle(&img, image.Pt(50, 50), 20, ink, 2)
	// Cut a 2px gap through the ring.
	gocv.Rectangle(&img, image.Rect(49, 25, 51, 35), color.RGBA{A: 255}, -1)

	res, err := Normalize(img, DefaultParams())
	require.NoError(t, err)
	defer res.Close()

	area := math.Pi * 20 * 20
	assert.Greater(t, float64(inked(res.Contribution)), area*0.8)
}

func TestSegmentRedWrapsHue(t *testing.T) {
	img := blank(1, 3)
	defer img.Close()
	// BGR: pure red (hue 0), magenta-red (hue ~175), green.
	img.SetUCharAt(0, 2, 255)
	img.SetUCharAt(0, 3, 40)
	img.SetUCharAt(0, 5, 255)
	img.SetUCharAt(0, 7, 255)

	mask := SegmentRed(img, DefaultParams().RedBands)
	defer mask.Close()

	assert.Equal(t, uint8(255), mask.GetUCharAt(0, 0))
	assert.Equal(t, uint8(255), mask.GetUCharAt(0, 1))
	assert.Equal(t, uint8(0), mask.GetUCharAt(0, 2))
}

func TestHSVBandValid(t *testing.T) {
	for _, b := range DefaultParams().RedBands {
		assert.True(t, b.Valid())
	}
	assert.False(t, HSVBand{HueMin: 20, HueMax: 10, SatMax: 255, ValMax: 255}.Valid())
	assert.False(t, HSVBand{HueMax: 190, SatMax: 255, ValMax: 255}.Valid())
	assert.False(t, HSVBand{HueMax: 10, SatMin: -1, SatMax: 255, ValMax: 255}.Valid())
}

func TestStorePath(t *testing.T) {
	s := Store{Root: "/data/drawings"}
	assert.Equal(t, filepath.Join("/data/drawings", "p3", "p3_trial12_drawing.png"), s.Path(3, 12))
}

func writeDrawing(t *testing.T, s Store, participant, trial int, img gocv.Mat) {
	t.Helper()
	require.NoError(t, raster.WriteMat(s.Path(participant, trial), img))
}

func TestNormalizerContribution(t *testing.T) {
	root := t.TempDir()
	store := Store{Root: root}

	img := blank(40, 60)
	defer img.Close()
	gocv.Circle(&img, image.Pt(30, 20), 8, ink, 2)
	writeDrawing(t, store, 1, 1, img)

	before, err := os.ReadFile(store.Path(1, 1))
	require.NoError(t, err)

	n := NewNormalizer(store, 40, 60, DefaultParams())

	t.Run("drawn", func(t *testing.T) {
		d, err := n.Contribution(1, 1)
		require.NoError(t, err)
		assert.Greater(t, inked(d), 150)
		assert.Equal(t, 1.0, d.At(20, 30))
	})

	t.Run("source untouched", func(t *testing.T) {
		after, err := os.ReadFile(store.Path(1, 1))
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("missing drawing is zeros", func(t *testing.T) {
		d, err := n.Contribution(1, 2)
		require.NoError(t, err)
		r, c := d.Dims()
		assert.Equal(t, 40, r)
		assert.Equal(t, 60, c)
		assert.Equal(t, 0, inked(d))
	})

	t.Run("corrupt drawing is an error", func(t *testing.T) {
		path := store.Path(2, 1)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))
		_, err := n.Contribution(2, 1)
		assert.Error(t, err)
	})
}

func TestNormalizerPersistFilled(t *testing.T) {
	store := Store{Root: t.TempDir()}
	out := t.TempDir()

	img := blank(40, 60)
	defer img.Close()
	gocv.Circle(&img, image.Pt(30, 20), 8, ink, 2)
	writeDrawing(t, store, 4, 7, img)

	n := NewNormalizer(store, 40, 60, DefaultParams(), WithPersistFilled(out))
	_, err := n.Contribution(4, 7)
	require.NoError(t, err)

	filled, err := raster.ReadBGR(Store{Root: out}.Path(4, 7))
	require.NoError(t, err)
	defer filled.Close()
	// Interior of the outline is painted red.
	assert.Equal(t, uint8(255), filled.GetUCharAt(20, 30*3+2))
	assert.Equal(t, uint8(0), filled.GetUCharAt(20, 30*3+1))
}
