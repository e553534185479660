package main

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"

	"thermomap/internal/drawing"
	"thermomap/internal/raster"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

func newNormalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize <drawing>",
		Short: "Fill one drawing and write its contribution raster",
		Long: `Segment the red marks of a single drawing, fill every enclosed region
and write the resulting contribution raster as a black and white PNG.

Examples:
  thermomap normalize drawings/p3/p3_trial12_drawing.png
  thermomap normalize d.png -o d_contribution.png --filled d_filled.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			in := args[0]
			out, _ := cmd.Flags().GetString("output")
			if out == "" {
				out = strings.TrimSuffix(in, filepath.Ext(in)) + "_contribution.png"
			}

			res, err := drawing.NormalizeFile(in, cfg.Drawing)
			if err != nil {
				return err
			}
			defer res.Close()

			if _, err := raster.SavePNG(out, contributionImage(res.Contribution)); err != nil {
				return err
			}
			if filled, _ := cmd.Flags().GetString("filled"); filled != "" {
				if err := raster.WriteMat(filled, res.Filled); err != nil {
					return err
				}
			}

			inked := int(mat.Sum(res.Contribution))
			logger.Debug("normalized drawing",
				zap.String("path", in),
				zap.Int("regions", res.Regions),
				zap.Int("inked", inked))

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"input":   in,
					"output":  out,
					"regions": res.Regions,
					"inked":   inked,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d regions, %d inked pixels -> %s\n", in, res.Regions, inked, out)
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Contribution raster path (default <drawing>_contribution.png)")
	cmd.Flags().String("filled", "", "Also write the filled drawing to this path")

	return cmd
}

// contributionImage renders a 0/1 raster as white ink on black.
func contributionImage(m *mat.Dense) *image.Gray {
	rows, cols := m.Dims()
	img := image.NewGray(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if m.At(y, x) != 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}
