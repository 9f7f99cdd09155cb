package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"epinet/pkg/epinet"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List indexed runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")

			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			runs, err := client.Runs(cmd.Context(), epinet.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "run\tbatch\treplicate\tseed\tsteps\trepresentation\tactive\tedges\tcreated")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%d\t%s\t%s\n",
					r.RunID, r.BatchID, r.Replicate, r.Seed, r.Steps, r.Representation, r.FinalActive, joinInts(r.FinalEdges), r.CreatedAtUTC)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	return cmd
}

func newDiagnosticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Show per-step diagnostics for a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runID, _ := cmd.Flags().GetString("run-id")
			latest, _ := cmd.Flags().GetBool("latest")
			limit, _ := cmd.Flags().GetInt("limit")
			req := epinet.DiagnosticsRequest{RunID: runID, Latest: latest, Limit: limit}
			if cmd.Flags().Changed("network") {
				network, _ := cmd.Flags().GetInt("network")
				req.Network = &network
			}

			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			rows, err := client.Diagnostics(cmd.Context(), req)
			if err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "step\tnetwork\tactive\tactive g2\tedges\tmean degree\tbase coef\tresimulated")
			for _, d := range rows {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%.3f\t%.4f\t%t\n",
					d.At, d.Network, d.Active, d.ActiveG2, d.Edges, d.MeanDegree, d.BaseCoef, d.Resimulated)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("run-id", "", "Run id")
	cmd.Flags().Bool("latest", false, "Use the most recent run")
	cmd.Flags().Int("network", 0, "Only show this 0-based network")
	cmd.Flags().Int("limit", 0, "Maximum number of rows (0 for all)")
	return cmd
}

func newCumulativeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cumulative",
		Short: "Show a network's cumulative edgelist for a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runID, _ := cmd.Flags().GetString("run-id")
			latest, _ := cmd.Flags().GetBool("latest")
			network, _ := cmd.Flags().GetInt("network")

			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			edges, err := client.Cumulative(cmd.Context(), epinet.CumulativeRequest{RunID: runID, Latest: latest, Network: network})
			if err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return writeJSON(cmd.OutOrStdout(), edges)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "tail\thead\tstart\tstop")
			for _, e := range edges {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", e.Tail, e.Head, e.Start, e.Stop)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("run-id", "", "Run id")
	cmd.Flags().Bool("latest", false, "Use the most recent run")
	cmd.Flags().Int("network", 0, "0-based network index")
	return cmd
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a run's artifacts to an export directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			runID, _ := cmd.Flags().GetString("run-id")
			latest, _ := cmd.Flags().GetBool("latest")
			outDir, _ := cmd.Flags().GetString("out")

			client, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			exported, err := client.Export(cmd.Context(), epinet.ExportRequest{RunID: runID, Latest: latest, OutDir: outDir})
			if err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return writeJSON(cmd.OutOrStdout(), exported)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	cmd.Flags().String("run-id", "", "Run id")
	cmd.Flags().Bool("latest", false, "Use the most recent run")
	cmd.Flags().String("out", "", "Export directory (default exports)")
	return cmd
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}
