package main

import (
	"github.com/spf13/cobra"

	"tsat-adcs/internal/telemetry"
)

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <file>",
		Short: "Summarize a telemetry log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := telemetry.ReadFile(args[0])
			if err != nil {
				return err
			}
			telemetry.Summarize(recs).Print(cmd.OutOrStdout())
			return nil
		},
	}
}
