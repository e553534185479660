package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"thermomap/internal/batch"
	"thermomap/internal/catalog"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Render the heatmap of every condition combination",
		Long: `Render one heatmap per condition combination and participant set.

A combination that fails is reported and the batch continues. The command
exits non-zero when any combination failed.

Examples:
  thermomap run -c study.yaml
  thermomap run -c study.yaml --workers 4 --per-participant`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cmd.Flags().Changed("workers") {
				cfg.Workers, _ = cmd.Flags().GetInt("workers")
			}
			if cmd.Flags().Changed("per-participant") {
				cfg.PerParticipant, _ = cmd.Flags().GetBool("per-participant")
			}
			if cmd.Flags().Changed("skip-empty") {
				cfg.SkipEmpty, _ = cmd.Flags().GetBool("skip-empty")
			}
			if out, _ := cmd.Flags().GetString("output"); out != "" {
				cfg.Paths.OutputDir = out
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var opts []batch.Option
			if runID, _ := cmd.Flags().GetString("run-id"); runID != "" {
				opts = append(opts, batch.WithRunID(runID))
			}
			if cfg.Catalog.Enabled {
				cat, err := catalog.Open(ctx, cfg.CatalogPath())
				if err != nil {
					return err
				}
				defer cat.Close()
				opts = append(opts, batch.WithCatalog(cat))
			}

			summary, err := batch.New(cfg, logger, opts...).Run(ctx)
			if summary == nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				writeSummaryJSON(cmd.OutOrStdout(), summary)
			} else {
				writeSummary(cmd.OutOrStdout(), summary)
			}

			if err != nil {
				logger.Warn("batch interrupted", zap.Error(err))
				return err
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d combinations failed", summary.Failed, summary.Total())
			}
			return nil
		},
	}

	cmd.Flags().Int("workers", 1, "Number of combinations rendered concurrently")
	cmd.Flags().Bool("per-participant", false, "Also render one heatmap per participant")
	cmd.Flags().Bool("skip-empty", false, "Skip combinations without matching trials")
	cmd.Flags().StringP("output", "o", "", "Override the output directory")
	cmd.Flags().String("run-id", "", "Run id recorded in the catalog (default random)")

	return cmd
}

func writeSummary(w io.Writer, s *batch.Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tTRIALS\tASSET")
	for _, r := range s.Results {
		target := r.Job.RelPath()
		if r.Err != nil && r.Status == batch.StatusFailed {
			target += "  (" + r.Err.Error() + ")"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", r.Status, r.Trials, target)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nrun %s: %d succeeded, %d skipped, %d failed in %s\n",
		s.RunID, s.Succeeded, s.Skipped, s.Failed, s.Elapsed.Round(time.Millisecond))
}

type resultJSON struct {
	Asset  string `json:"asset"`
	Status string `json:"status"`
	Trials int    `json:"trials"`
	SHA256 string `json:"sha256,omitempty"`
	Error  string `json:"error,omitempty"`
}

func writeSummaryJSON(w io.Writer, s *batch.Summary) {
	results := make([]resultJSON, 0, len(s.Results))
	for _, r := range s.Results {
		out := resultJSON{Asset: r.Job.RelPath(), Status: r.Status.String(), Trials: r.Trials}
		if r.Asset != nil {
			out.SHA256 = r.Asset.SHA256
		}
		if r.Err != nil {
			out.Error = r.Err.Error()
		}
		results = append(results, out)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"run_id":    s.RunID,
		"results":   results,
		"succeeded": s.Succeeded,
		"skipped":   s.Skipped,
		"failed":    s.Failed,
		"elapsed":   s.Elapsed.String(),
	})
}
