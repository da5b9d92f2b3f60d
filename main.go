package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	envFilePath string
	previewRows int
)

var rootCmd = &cobra.Command{
	Use:           "pgflatten [config.toml]",
	Short:         "Extract source tables to CSV, flatten them with joins and load them into PostgreSQL",
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConfig(cmd, args, runPipeline)
	},
}

var runCmd = &cobra.Command{
	Use:   "run [config.toml]",
	Short: "Run extract, transform, load and report in order",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConfig(cmd, args, runPipeline)
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract [config.toml]",
	Short: "Extract every source table to {output_path}/{table}.csv",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConfig(cmd, args, func(ctx context.Context, cfg *PipelineConfig, _ int) error {
			_, err := extract(ctx, cfg)
			return err
		})
	},
}

var transformCmd = &cobra.Command{
	Use:   "transform [config.toml]",
	Short: "Left-join the main table with its join tables into one CSV",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConfig(cmd, args, func(ctx context.Context, cfg *PipelineConfig, _ int) error {
			_, err := transform(ctx, cfg)
			return err
		})
	},
}

var loadCmd = &cobra.Command{
	Use:   "load [config.toml]",
	Short: "Replace the target tables in PostgreSQL from their CSV files",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConfig(cmd, args, func(ctx context.Context, cfg *PipelineConfig, preview int) error {
			_, err := load(ctx, cfg, preview)
			return err
		})
	},
}

var reportCmd = &cobra.Command{
	Use:   "report [config.toml]",
	Short: "Append a disk usage report to the run log",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConfig(cmd, args, func(_ context.Context, cfg *PipelineConfig, _ int) error {
			return report(cfg)
		})
	},
}

var checkCmd = &cobra.Command{
	Use:   "check [config.toml]",
	Short: "Verify connectivity and that every configured source table exists",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConfig(cmd, args, func(ctx context.Context, cfg *PipelineConfig, _ int) error {
			return check(ctx, cfg)
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pgflatten version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), versionString())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to pipeline TOML config file")
	rootCmd.PersistentFlags().StringVar(&envFilePath, "env-file", "", "dotenv file to load before expanding DSNs (default: .env next to the config)")
	rootCmd.PersistentFlags().IntVar(&previewRows, "preview", 0, "print the first N rows of each loaded table")
	rootCmd.AddCommand(runCmd, extractCmd, transformCmd, loadCmd, reportCmd, checkCmd, versionCmd)
	rootCmd.Version = versionString()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func withConfig(cmd *cobra.Command, args []string, fn func(context.Context, *PipelineConfig, int) error) error {
	// Positional arg takes precedence over --config
	cfgPath := configPath
	if len(args) > 0 {
		cfgPath = args[0]
	}
	if cfgPath == "" {
		return fmt.Errorf("config file required: pgflatten %s <config.toml> or --config <config.toml>", cmd.Name())
	}
	if previewRows < 0 {
		return fmt.Errorf("--preview must be >= 0")
	}

	cfg, err := loadConfig(cfgPath, envFilePath)
	if err != nil {
		return err
	}

	runID := uuid.New()
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix(runID.String()[:8] + " ")
	log.Printf("pgflatten %s run %s (%s)", versionString(), runID, cmd.Name())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, cfg, previewRows)
}
