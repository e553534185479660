package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"thermomap/internal/batch"
	"thermomap/internal/trial"

	"github.com/spf13/cobra"
)

func newCombosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "combos",
		Short: "List condition combinations and their asset names",
		Long: `List every job a run would render, in dispatch order, with the asset
path it is written to. With --trials the record tables are read and the
number of matching trials is shown per job.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cmd.Flags().Changed("per-participant") {
				cfg.PerParticipant, _ = cmd.Flags().GetBool("per-participant")
			}
			withTrials, _ := cmd.Flags().GetBool("trials")

			var records []trial.Record
			if withTrials {
				records = trial.LoadDir(cfg.Paths.DataDir, cfg.Participants, logger.Named("trial"))
			}

			type comboJSON struct {
				Combination  string `json:"combination"`
				Participants []int  `json:"participants"`
				Asset        string `json:"asset"`
				Trials       *int   `json:"trials,omitempty"`
			}

			jobs := batch.New(cfg, logger).Jobs()
			rows := make([]comboJSON, 0, len(jobs))
			for _, j := range jobs {
				row := comboJSON{Combination: j.Combination.String(), Participants: j.Participants, Asset: j.RelPath()}
				if withTrials {
					n := trial.Select(records, j.Participants, trial.ForCombination(j.Combination, cfg.Match)).Count()
					row.Trials = &n
				}
				rows = append(rows, row)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(rows)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			if withTrials {
				fmt.Fprintln(tw, "COMBINATION\tTRIALS\tASSET")
			} else {
				fmt.Fprintln(tw, "COMBINATION\tASSET")
			}
			for _, r := range rows {
				if r.Trials != nil {
					fmt.Fprintf(tw, "%s\t%d\t%s\n", r.Combination, *r.Trials, r.Asset)
				} else {
					fmt.Fprintf(tw, "%s\t%s\n", r.Combination, r.Asset)
				}
			}
			tw.Flush()
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d jobs\n", len(rows))
			return nil
		},
	}

	cmd.Flags().Bool("per-participant", false, "Include one job per participant")
	cmd.Flags().Bool("trials", false, "Read the record tables and count matching trials")

	return cmd
}
