package main

import (
	"fmt"
	"os"

	"thermomap/internal/config"
	"thermomap/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "thermomap",
		Short: "Perceived-sensation heatmaps from participant drawings",
		Long: `thermomap turns participants' drawings of where they felt a thermal
stimulus into smoothed, masked heatmaps, one per experimental condition.

Trial records select the drawings of each condition combination; the
drawings are filled, summed, smoothed, clipped to the limb outline and
rendered with the stimulus landmarks.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML configuration")
	rootCmd.PersistentFlags().StringSlice("env-file", nil, "Environment files to load (default .env)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newNormalizeCmd(),
		newCombosCmd(),
		newCatalogCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// setup loads the configuration and builds the logger from the global flags.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	envFiles, _ := cmd.Flags().GetStringSlice("env-file")
	if err := config.LoadEnvFiles(envFiles...); err != nil {
		return nil, nil, err
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.JSON)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}
