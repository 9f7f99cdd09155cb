package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"epinet/pkg/epinet"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every replicate described by the run file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("replicates") {
				cfg.Replicates, _ = cmd.Flags().GetInt("replicates")
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed, _ = cmd.Flags().GetInt64("seed")
			}
			if cmd.Flags().Changed("steps") {
				cfg.Control.NumSteps, _ = cmd.Flags().GetInt("steps")
			}
			if cmd.Flags().Changed("workers") {
				cfg.Workers, _ = cmd.Flags().GetInt("workers")
			}
			batchID, _ := cmd.Flags().GetString("batch-id")

			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			// SIGINT or SIGTERM cancels cmd.Context, which stops the batch.
			defer func() {
				if cmd.Context().Err() != nil {
					_ = client.Shutdown()
					return
				}
				_ = client.Close()
			}()

			summary, err := client.Run(cmd.Context(), epinet.RunRequest{Config: cfg, ConfigPath: path, BatchID: batchID})
			if err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "batch %s: %d replicate(s)\n", summary.BatchID, len(summary.RunIDs))
			for i, runID := range summary.RunIDs {
				fmt.Fprintf(out, "  run %s -> %s\n", runID, summary.RunDirs[i])
			}
			if len(summary.Ensemble) == 0 {
				return nil
			}
			fmt.Fprintf(out, "ensemble summary: %s\n", summary.SummaryDir)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "step\tnetwork\tedges\tsd\tmean degree\tactive\tbase coef")
			for _, row := range summary.Ensemble {
				if row.At != cfg.Control.NumSteps {
					continue
				}
				fmt.Fprintf(tw, "%d\t%d\t%.1f\t%.2f\t%.3f\t%.1f\t%.4f\n",
					row.At, row.Network, row.MeanEdges, row.StdEdges, row.MeanDegree, row.MeanActive, row.MeanBaseCoef)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().String("batch-id", "", "Batch id (generated when empty)")
	cmd.Flags().Int("replicates", 0, "Override the number of replicates")
	cmd.Flags().Int64("seed", 0, "Override the base seed")
	cmd.Flags().Int("steps", 0, "Override the number of steps")
	cmd.Flags().Int("workers", 0, "Override the worker count")
	return cmd
}
