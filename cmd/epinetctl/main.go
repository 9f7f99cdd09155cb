package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"epinet/internal/config"
	"epinet/pkg/epinet"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "epinetctl",
		Short: "Resimulate temporal contact networks over a changing population",
		Long: `epinetctl runs replicated network resimulations from a YAML run file
and reads back their per-step diagnostics, cumulative edgelists and
artifacts.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML run file")
	rootCmd.PersistentFlags().String("store", "", "Store backend: memory or sqlite")
	rootCmd.PersistentFlags().String("db-path", "", "SQLite database path")
	rootCmd.PersistentFlags().String("artifacts-dir", "", "Directory holding run artifacts")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newRunsCmd(),
		newDiagnosticsCmd(),
		newCumulativeCmd(),
		newExportCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": version, "commit": commit})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "epinetctl version %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}

// loadConfig reads --config (or defaults), the environment, then the
// persistent flags that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	overrides := []struct {
		flag   string
		target *string
	}{
		{"store", &cfg.Store},
		{"db-path", &cfg.DBPath},
		{"artifacts-dir", &cfg.ArtifactsDir},
		{"log-level", &cfg.Logging.Level},
	}
	for _, o := range overrides {
		if cmd.Flags().Changed(o.flag) {
			v, _ := cmd.Flags().GetString(o.flag)
			*o.target = v
		}
	}
	return cfg, path, nil
}

func newClient(cmd *cobra.Command, cfg *config.Config) (*epinet.Client, error) {
	return epinet.New(epinet.Options{
		StoreKind:    cfg.Store,
		DBPath:       cfg.DBPath,
		ArtifactsDir: cfg.ArtifactsDir,
		Logger:       cfg.NewLogger(cmd.ErrOrStderr()),
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
