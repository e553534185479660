package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"thermomap/internal/catalog"

	"github.com/spf13/cobra"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the assets recorded in the output catalog",
		Long: `List the heatmap assets recorded in <output_dir>/catalog.db, ordered by
filename, with the run that last wrote them and their digest.

Examples:
  thermomap catalog -c study.yaml
  thermomap catalog -c study.yaml --run 5f0c...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			path := cfg.CatalogPath()
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("no catalog at %s: %w", path, err)
			}

			cat, err := catalog.Open(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer cat.Close()

			runID, _ := cmd.Flags().GetString("run")
			entries, err := cat.List(cmd.Context(), runID)
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				if entries == nil {
					entries = []catalog.Entry{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(entries)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ASSET\tTRIALS\tRUN\tSHA256\tCREATED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%.12s\t%s\n",
					e.Filename, e.Trials, e.RunID, e.SHA256, e.CreatedAt.Local().Format(time.DateTime))
			}
			tw.Flush()
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d assets\n", len(entries))
			return nil
		},
	}

	cmd.Flags().String("run", "", "Only list assets written by this run id")

	return cmd
}
