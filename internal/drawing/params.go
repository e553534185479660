package drawing

// HSVBand is an inclusive HSV range on OpenCV's scale
// (H 0-180, S 0-255, V 0-255).
type HSVBand struct {
	HueMin float64 `yaml:"hue_min"`
	HueMax float64 `yaml:"hue_max"`
	SatMin float64 `yaml:"sat_min"`
	SatMax float64 `yaml:"sat_max"`
	ValMin float64 `yaml:"val_min"`
	ValMax float64 `yaml:"val_max"`
}

// Valid reports whether the band is a non-empty range on OpenCV's scale.
func (b HSVBand) Valid() bool {
	return b.HueMin >= 0 && b.HueMin <= b.HueMax && b.HueMax <= 180 &&
		b.SatMin >= 0 && b.SatMin <= b.SatMax && b.SatMax <= 255 &&
		b.ValMin >= 0 && b.ValMin <= b.ValMax && b.ValMax <= 255
}

// Params configures drawing normalization.
type Params struct {
	// RedBands are unioned; red wraps around hue 0 so it takes two.
	RedBands []HSVBand `yaml:"red_bands"`

	// Morphological closing of the marked mask
	KernelSize      int `yaml:"kernel_size"`
	CloseIterations int `yaml:"close_iterations"`

	// InkThreshold is the gray level above which a filled pixel counts as ink.
	InkThreshold uint8 `yaml:"ink_threshold"`
}

// DefaultParams returns the parameters the study drawings were tuned for.
func DefaultParams() Params {
	return Params{
		RedBands: []HSVBand{
			{HueMin: 0, HueMax: 10, SatMin: 70, SatMax: 255, ValMin: 50, ValMax: 255},
			{HueMin: 170, HueMax: 180, SatMin: 70, SatMax: 255, ValMin: 50, ValMax: 255},
		},
		KernelSize:      3,
		CloseIterations: 2,
		InkThreshold:    50,
	}
}
