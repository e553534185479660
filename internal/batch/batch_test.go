package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"thermomap/internal/catalog"
	"thermomap/internal/condition"
	"thermomap/internal/config"
	"thermomap/internal/drawing"
	"thermomap/internal/heatmap"
	"thermomap/internal/mask"
	"thermomap/internal/raster"
	"thermomap/internal/render"
	"thermomap/internal/trial"
	"thermomap/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

const (
	canvasRows = 60
	canvasCols = 80
)

var ink = color.RGBA{R: 230, G: 20, B: 20, A: 255}

// fixture lays out a two-participant study: participant 1 marks a disc
// around (40, 30), participant 2 submits an empty drawing.
type fixture struct {
	root string
	cfg  *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{root: root}

	cfg := config.Default()
	cfg.Paths = config.Paths{
		DataDir:     filepath.Join(root, "data"),
		DrawingsDir: filepath.Join(root, "drawings"),
		MaskPath:    filepath.Join(root, "arm_mask.png"),
		OutputDir:   filepath.Join(root, "heatmaps"),
	}
	cfg.Participants = []int{1, 2}
	cfg.PerParticipant = true
	cfg.Dimensions = config.Dimensions{
		Axis:         condition.AxisLocation,
		Temperatures: []float64{9},
		Durations:    []float64{1},
		Positions:    []float64{0.5},
	}
	cfg.Render.Scale = 2
	cfg.Render.Landmarks = []render.Landmark{
		{Shape: render.ShapeCircle, Center: geometry.NewPoint2D(60, 30), Size: 3},
		{Shape: render.ShapeSquare, Center: geometry.NewPoint2D(15, 30), Size: 4},
	}
	cfg.Render.Stimulus = render.Stimulus{
		From:      geometry.NewPoint2D(60, 30),
		To:        geometry.NewPoint2D(20, 30),
		Radius:    2,
		EdgeWidth: 1,
	}
	cfg.Render.CropBox = geometry.RectFromCorners(10, 10, 150, 110)
	cfg.Render.BorderMargin = 10
	f.cfg = cfg

	// Region of interest: rows 10..49, cols 10..69.
	roi := image.NewGray(image.Rect(0, 0, canvasCols, canvasRows))
	for y := 10; y < 50; y++ {
		for x := 10; x < 70; x++ {
			roi.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	_, err := raster.SavePNG(cfg.Paths.MaskPath, roi)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(cfg.Paths.DataDir, 0755))
	f.writeRecords(t, 1, "Trial,Temperature,Duration,Location,FeltThermal,FeltLocation\n"+
		"1,9,1,0.5,2,0.5\n"+
		"2,-15,1,0.5,-1,0.5\n"+
		"3,9,1,0.25,1,0.25\n")
	f.writeRecords(t, 2, "Trial,Temperature,Duration,Location,FeltThermal,FeltLocation\n"+
		"1,9,1,0.5,1,0.5\n"+
		"2,9,1,0.5,-1,0.5\n")

	disc := blankCanvas()
	defer disc.Close()
	gocv.Circle(&disc, image.Pt(40, 30), 5, ink, -1)
	f.writeDrawing(t, 1, 1, disc)

	empty := blankCanvas()
	defer empty.Close()
	f.writeDrawing(t, 2, 1, empty)

	return f
}

func blankCanvas() gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), canvasRows, canvasCols, gocv.MatTypeCV8UC3)
}

func (f *fixture) writeRecords(t *testing.T, participant int, body string) {
	t.Helper()
	path := filepath.Join(f.cfg.Paths.DataDir, fmt.Sprintf("p%d_data.csv", participant))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func (f *fixture) writeDrawing(t *testing.T, participant, trialNum int, img gocv.Mat) {
	t.Helper()
	store := drawing.Store{Root: f.cfg.Paths.DrawingsDir}
	require.NoError(t, raster.WriteMat(store.Path(participant, trialNum), img))
}

func TestPipelineScenario(t *testing.T) {
	f := newFixture(t)
	cfg := f.cfg

	m, err := mask.Load(cfg.Paths.MaskPath, cfg.MaskThreshold)
	require.NoError(t, err)
	rows, cols := m.Dims()

	records := trial.LoadDir(cfg.Paths.DataDir, cfg.Participants, nil)
	combo := condition.Combination{Axis: condition.AxisLocation, Temperature: 9, Duration: condition.At(1), Position: condition.At(0.5)}
	sel := trial.Select(records, cfg.Participants, trial.ForCombination(combo, cfg.Match))
	assert.Equal(t, trial.Selection{1: {1}, 2: {1}}, sel)

	norm := drawing.NewNormalizer(drawing.Store{Root: cfg.Paths.DrawingsDir}, rows, cols, cfg.Drawing)
	counts, n, err := heatmap.Accumulate(rows, cols, sel, norm.Contribution)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Only participant 1 contributes: values are 0 or 1, centered on the disc.
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := counts.At(i, j)
			assert.True(t, v == 0 || v == 1)
		}
	}
	assert.Equal(t, 1.0, counts.At(30, 40))
	assert.Equal(t, 0.0, counts.At(30, 50))
	assert.InDelta(t, 81, mat.Sum(counts), 15)

	field, err := heatmap.Build(counts, n, cfg.Heatmap, m)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, field.Values.At(30, 40), 0.05)
	// Smoothing spreads ink just past the disc edge.
	assert.Greater(t, field.Values.At(30, 46), 0.0)
	assert.Less(t, field.Values.At(30, 46), 1.0)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if !m.Inside(i, j) {
				assert.Equal(t, 0.0, field.Values.At(i, j))
			}
		}
	}

	path := filepath.Join(cfg.Paths.OutputDir, "scenario.png")
	asset, err := render.New(cfg.Render, nil).Render(field, combo, path)
	require.NoError(t, err)

	img, err := raster.Load(path)
	require.NoError(t, err)
	box := cfg.Render.CropBox
	assert.Equal(t, image.Rect(0, 0, box.Width, box.Height), img.Bounds())
	assert.Equal(t, box.Width, asset.Width)
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cat, err := catalog.Open(ctx, f.cfg.CatalogPath())
	require.NoError(t, err)
	defer cat.Close()

	o := New(f.cfg, nil, WithCatalog(cat), WithRunID("run-1"))
	s, err := o.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, 3, s.Total())
	assert.Equal(t, 3, s.Succeeded)
	assert.Zero(t, s.Failed)
	assert.Empty(t, s.Failures())

	out := f.cfg.Paths.OutputDir
	for _, name := range []string{
		"p1-2_temp-9_dur-1_loc-50.png",
		"p1_temp-9_dur-1_loc-50.png",
		"p2_temp-9_dur-1_loc-50.png",
	} {
		_, err := os.Stat(filepath.Join(out, "p1-2", name))
		assert.NoError(t, err, name)
		_, err = os.Stat(filepath.Join(out, "p1-2", render.RawPath(name)))
		assert.True(t, errors.Is(err, os.ErrNotExist))
	}

	entries, err := cat.List(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "p1-2/p1-2_temp-9_dur-1_loc-50.png", entries[0].Filename)
	assert.Equal(t, 2, entries[0].Trials)
	assert.Equal(t, "p1-2", entries[0].Participants)
	assert.Equal(t, 1, entries[1].Trials)
	assert.Equal(t, s.Results[0].Asset.SHA256, entries[0].SHA256)

	// A rerun overwrites the same files with identical bytes.
	again, err := New(f.cfg, nil, WithCatalog(cat), WithRunID("run-2")).Run(ctx)
	require.NoError(t, err)
	for i := range s.Results {
		assert.Equal(t, s.Results[i].Asset.SHA256, again.Results[i].Asset.SHA256)
		assert.Equal(t, s.Results[i].Asset.Path, again.Results[i].Asset.Path)
	}
	all, err := cat.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRunSplitsByIllusion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cfg.PerParticipant = false
	f.cfg.Dimensions.Illusions = []float64{1}
	f.cfg.Dimensions.AllIllusions = true
	f.writeRecords(t, 1, "Trial,Temperature,Duration,Location,FeltThermal,FeltLocation,FeltIllusion\n"+
		"1,9,1,0.5,2,0.5,1\n")
	f.writeRecords(t, 2, "Trial,Temperature,Duration,Location,FeltThermal,FeltLocation,FeltIllusion\n"+
		"1,9,1,0.5,1,0.5,0\n")

	cat, err := catalog.Open(ctx, f.cfg.CatalogPath())
	require.NoError(t, err)
	defer cat.Close()

	s, err := New(f.cfg, nil, WithCatalog(cat), WithRunID("run-ill")).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Succeeded)

	entries, err := cat.List(ctx, "run-ill")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "p1-2/p1-2_ill-1_temp-9_dur-1_loc-50.png", entries[0].Filename)
	assert.Equal(t, "1", entries[0].Illusion)
	assert.Equal(t, 1, entries[0].Trials)
	assert.Equal(t, "p1-2/p1-2_ill-all_temp-9_dur-1_loc-50.png", entries[1].Filename)
	assert.Equal(t, "all", entries[1].Illusion)
	assert.Equal(t, 2, entries[1].Trials)
}

func TestRunIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.cfg.Dimensions.Positions = []float64{0.5, 0.25}

	// Participant 1's only drawing at location 0.25 is unreadable.
	bad := drawing.Store{Root: f.cfg.Paths.DrawingsDir}.Path(1, 3)
	require.NoError(t, os.WriteFile(bad, []byte("not a png"), 0644))

	s, err := New(f.cfg, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, s.Total())
	assert.Equal(t, 4, s.Succeeded)
	assert.Equal(t, 2, s.Failed)
	for _, r := range s.Failures() {
		assert.Equal(t, 0.25, r.Job.Combination.Position.Value)
		assert.Contains(t, r.Job.Participants, 1)
		assert.Error(t, r.Err)
	}
}

func TestRunMissingDrawingContributesZeros(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(drawing.Store{Root: f.cfg.Paths.DrawingsDir}.Path(1, 1)))

	s, err := New(f.cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, s.Succeeded)
}

func TestRunCropOutOfBoundsFailsEveryJob(t *testing.T) {
	f := newFixture(t)
	f.cfg.Render.CropBox = geometry.RectFromCorners(0, 0, 1000, 1000)

	s, err := New(f.cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, s.Failed)
	for _, r := range s.Failures() {
		assert.True(t, errors.Is(r.Err, render.ErrCropOutOfBounds))
	}
}

func TestRunSkipEmpty(t *testing.T) {
	f := newFixture(t)
	f.cfg.Dimensions.Temperatures = []float64{9, -15}
	f.cfg.Match.LocationTolerance = 0.25
	f.cfg.SkipEmpty = true
	f.cfg.PerParticipant = false

	s, err := New(f.cfg, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, s.Total())
	assert.Equal(t, StatusSucceeded, s.Results[0].Status)
	// Participant 1's cold trial matches; participant 2 has none.
	assert.Equal(t, StatusSucceeded, s.Results[1].Status)
	assert.Equal(t, 1, s.Results[1].Trials)

	f.cfg.Dimensions.Temperatures = []float64{0}
	s, err = New(f.cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, StatusSkipped, s.Results[0].Status)
}

func TestRunParallelMatchesSequential(t *testing.T) {
	f := newFixture(t)
	f.cfg.Dimensions.Positions = []float64{0, 0.5, 1}
	f.cfg.Dimensions.AllPositions = true

	seq, err := New(f.cfg, nil).Run(context.Background())
	require.NoError(t, err)

	f.cfg.Workers = 4
	par, err := New(f.cfg, nil).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, seq.Total(), par.Total())
	for i := range seq.Results {
		require.NotNil(t, seq.Results[i].Asset)
		require.NotNil(t, par.Results[i].Asset)
		assert.Equal(t, seq.Results[i].Asset.SHA256, par.Results[i].Asset.SHA256)
	}
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := New(f.cfg, nil).Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, s)
	assert.Equal(t, 3, s.Skipped)
	assert.Zero(t, s.Succeeded)
}

func TestRunMissingMask(t *testing.T) {
	f := newFixture(t)
	f.cfg.Paths.MaskPath = filepath.Join(f.root, "nope.png")

	_, err := New(f.cfg, nil).Run(context.Background())
	assert.Error(t, err)
}

func TestJobs(t *testing.T) {
	f := newFixture(t)
	jobs := New(f.cfg, nil).Jobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, []int{1, 2}, jobs[0].Participants)
	assert.Equal(t, []int{1}, jobs[1].Participants)
	assert.Equal(t, []int{2}, jobs[2].Participants)
}
