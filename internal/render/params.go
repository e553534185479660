package render

import (
	"fmt"

	"thermomap/pkg/colorutil"
	"thermomap/pkg/geometry"
)

// Shape is the outline of a landmark marker.
type Shape string

const (
	ShapeCircle Shape = "circle"
	ShapeSquare Shape = "square"
)

// Landmark is a fixed reference point on the limb, in canvas pixels.
type Landmark struct {
	Shape  Shape            `yaml:"shape"`
	Center geometry.Point2D `yaml:"center"`
	// Size is the radius of a circle or the side of a square.
	Size float64 `yaml:"size"`
}

// Stimulus places the condition marker between two endpoints.
type Stimulus struct {
	// From is where a location fraction of 0 is drawn, To is fraction 1.
	From   geometry.Point2D `yaml:"from"`
	To     geometry.Point2D `yaml:"to"`
	Radius float64          `yaml:"radius"`
	// EdgeWidth is the black outline width in canvas pixels.
	EdgeWidth float64 `yaml:"edge_width"`
}

// Params configures rendering.
type Params struct {
	// Scale is the integer upscale factor from canvas to output pixels.
	Scale int `yaml:"scale"`

	// Ramps by temperature sign
	WarmRamp string `yaml:"warm_ramp"`
	CoolRamp string `yaml:"cool_ramp"`

	Landmarks []Landmark `yaml:"landmarks"`
	// MarkerAlpha is the opacity of landmarks and the stimulus marker.
	MarkerAlpha float64  `yaml:"marker_alpha"`
	Stimulus    Stimulus `yaml:"stimulus"`

	// CropBox is applied to the scaled composite.
	CropBox geometry.RectInt `yaml:"crop_box"`
	// Near-white pixels within BorderMargin of a crop edge become transparent.
	BorderMargin   int   `yaml:"border_margin"`
	WhiteThreshold uint8 `yaml:"white_threshold"`

	// KeepRaw leaves the uncropped composite next to the asset.
	KeepRaw bool `yaml:"keep_raw"`
}

// DefaultParams returns the layout of the forearm canvas.
func DefaultParams() Params {
	return Params{
		Scale:    3,
		WarmRamp: colorutil.Hot.Name,
		CoolRamp: colorutil.Bone.Name,
		Landmarks: []Landmark{
			{Shape: ShapeCircle, Center: geometry.NewPoint2D(330, 155), Size: 8},
			{Shape: ShapeCircle, Center: geometry.NewPoint2D(190, 155), Size: 8},
			{Shape: ShapeSquare, Center: geometry.NewPoint2D(106, 155), Size: 15},
		},
		MarkerAlpha: 0.8,
		Stimulus: Stimulus{
			From:      geometry.NewPoint2D(330, 155),
			To:        geometry.NewPoint2D(190, 155),
			Radius:    5,
			EdgeWidth: 1,
		},
		CropBox:        geometry.RectFromCorners(300, 275, 1300, 775),
		BorderMargin:   150,
		WhiteThreshold: 250,
	}
}

// Validate checks the parameters that do not depend on the canvas.
func (p Params) Validate() error {
	if p.Scale < 1 {
		return fmt.Errorf("scale must be >= 1, got %d", p.Scale)
	}
	for _, name := range []string{p.WarmRamp, p.CoolRamp} {
		if _, ok := colorutil.ColorMapByName(name); !ok {
			return fmt.Errorf("unknown color ramp %q", name)
		}
	}
	for i, l := range p.Landmarks {
		if l.Shape != ShapeCircle && l.Shape != ShapeSquare {
			return fmt.Errorf("landmark %d: unknown shape %q", i, l.Shape)
		}
		if l.Size <= 0 {
			return fmt.Errorf("landmark %d: size must be > 0", i)
		}
	}
	if p.MarkerAlpha < 0 || p.MarkerAlpha > 1 {
		return fmt.Errorf("marker_alpha must be between 0 and 1, got %v", p.MarkerAlpha)
	}
	if p.CropBox.Empty() {
		return fmt.Errorf("crop box %s is empty", p.CropBox)
	}
	if p.BorderMargin < 0 {
		return fmt.Errorf("border_margin must be >= 0, got %d", p.BorderMargin)
	}
	return nil
}
