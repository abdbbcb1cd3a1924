// Package main provides the linkbench CLI entry point.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"

	"github.com/orneryd/linkbench/pkg/config"
	"github.com/orneryd/linkbench/pkg/harness"
	"github.com/orneryd/linkbench/pkg/report"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "linkbench",
		Short: "linkbench - link storage latency benchmarks",
		Long: `linkbench measures create, read-by-pattern, update and delete latency of
the same link operations on in-process engines and on a Neo4j server.

Only the operations under test are timed: backend preparation, background
links and cleanup are excluded from every measurement.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (default: search standard locations)")
	rootCmd.PersistentFlags().String("env-file", "", "Load environment variables from this file (default: ./.env if present)")
	rootCmd.PersistentFlags().IntP("verbose", "v", -1, "Log verbosity (overrides LINKBENCH_LOG_LEVEL)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "linkbench v%s (%s) built %s\n", version, commit, buildTime)
		},
	})

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run benchmarks",
		RunE:  runBench,
	}
	runCmd.Flags().StringSlice("groups", nil, "Benchmark groups to run (default: all)")
	runCmd.Flags().StringSlice("backends", nil, "Backends to run (default: all)")
	runCmd.Flags().Int("iterations", 0, "Iterations per group and backend")
	runCmd.Flags().Int("link-count", 0, "Links created, updated or deleted per iteration")
	runCmd.Flags().Int("background", 0, "Background links created by every fork")
	runCmd.Flags().String("data-dir", "", "Directory for mapped files and badger data")
	runCmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this file")
	runCmd.Flags().String("format", "", "Output format: table or bench")
	rootCmd.AddCommand(runCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "backends",
		Short: "List available backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			for _, b := range harness.Backends(cfg, logger) {
				kind := "local"
				if b.Remote {
					kind = "remote"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-28s %s\n", b.Name, kind)
			}
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete every link from the configured Neo4j database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			if err := harness.Purge(cmd.Context(), cfg, logger); err != nil {
				return fmt.Errorf("purge: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %s\n", cfg.Neo4j.URI)
			return nil
		},
	})

	return rootCmd
}

// setup loads configuration in precedence order and builds the logger.
func setup(cmd *cobra.Command) (*config.Config, logr.Logger, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	var err error
	if envFile != "" {
		err = config.LoadDotEnv(envFile)
	} else {
		err = config.LoadDotEnv()
	}
	if err != nil {
		return nil, logr.Discard(), err
	}

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, logr.Discard(), err
	}
	if v, _ := cmd.Flags().GetInt("verbose"); v >= 0 {
		cfg.Logging.Level = v
	}

	stdr.SetVerbosity(cfg.Logging.Level)
	logger := stdr.New(log.New(cmd.ErrOrStderr(), "", log.LstdFlags)).WithName("linkbench")
	return cfg, logger, nil
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("groups") {
		cfg.Benchmark.Groups, _ = flags.GetStringSlice("groups")
	}
	if flags.Changed("backends") {
		cfg.Benchmark.Backends, _ = flags.GetStringSlice("backends")
	}
	if flags.Changed("iterations") {
		cfg.Benchmark.Iterations, _ = flags.GetInt("iterations")
	}
	if flags.Changed("link-count") {
		cfg.Benchmark.LinkCount, _ = flags.GetInt("link-count")
	}
	if flags.Changed("background") {
		cfg.Benchmark.Background, _ = flags.GetInt("background")
	}
	if flags.Changed("data-dir") {
		cfg.Storage.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("metrics-file") {
		cfg.Report.MetricsFile, _ = flags.GetString("metrics-file")
	}
	if flags.Changed("format") {
		cfg.Report.Format, _ = flags.GetString("format")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	format, err := report.ParseFormat(cfg.Report.Format)
	if err != nil {
		return err
	}

	groups, err := harness.SelectGroups(cfg.Benchmark.Groups)
	if err != nil {
		return err
	}
	backends, err := harness.SelectBackends(harness.Backends(cfg, logger), cfg.Benchmark.Backends)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec := report.NewRecorder()
	logger.Info("starting run", "runID", rec.RunID(), "config", cfg.String(),
		"groups", len(groups), "backends", backendNames(backends))

	runErr := harness.NewRunner(cfg, rec, logger).Run(ctx, groups, backends)

	if err := report.Write(cmd.OutOrStdout(), format, rec.Summaries()); err != nil {
		return err
	}
	if cfg.Report.MetricsFile != "" {
		if err := rec.WriteMetrics(cfg.Report.MetricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
		logger.V(1).Info("metrics written", "path", cfg.Report.MetricsFile)
	}
	return runErr
}

func backendNames(bs []harness.Backend) string {
	names := make([]string, len(bs))
	for i, b := range bs {
		names[i] = b.Name
	}
	return strings.Join(names, ",")
}
