package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tsat-adcs/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tsat-adcs",
		Short:         "B-dot magnetic detumbling controller",
		Long:          `tsat-adcs drives magnetorquers from magnetometer readings to remove body rate after deployment, on hardware or in simulation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	// Persistent flags (available to all commands)
	root.PersistentFlags().String("config", "", "Path to YAML config (defaults when empty)")

	root.AddCommand(newRunCmd(), newSimCmd(), newSummaryCmd(), newCheckConfigCmd())
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config, or returns defaults when the flag is empty.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}
