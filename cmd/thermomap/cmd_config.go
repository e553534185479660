package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate the effective configuration",
		Long: `Load the configuration the other commands would use (defaults, the
config file, then THERMOMAP_* overrides) and validate it. With --dump the
effective configuration is written as YAML, a starting point for a new study.

Examples:
  thermomap config -c study.yaml
  thermomap config --dump study.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if dump, _ := cmd.Flags().GetString("dump"); dump != "" {
				if err := cfg.Save(dump); err != nil {
					return fmt.Errorf("failed to write %s: %w", dump, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", dump)
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			space := cfg.Dimensions.Space()
			fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: %d participants, %d combinations, output %s\n",
				len(cfg.Participants), space.Size(), cfg.Paths.OutputDir)
			return nil
		},
	}

	cmd.Flags().String("dump", "", "Write the effective configuration as YAML to this path")

	return cmd
}
