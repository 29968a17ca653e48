package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jbweber/strata/internal/config"
	"github.com/jbweber/strata/internal/loader"
	"github.com/jbweber/strata/internal/logger"
	"github.com/jbweber/strata/internal/output"
)

var (
	version = "dev"
	commit  = "unknown"
)

// DefaultConfigPath is used when --config is not given.
const DefaultConfigPath = "/etc/strata/strata.yaml"

// Global flags
var (
	configPath   string
	outputFormat string
	noHeaders    bool
	debug        bool
	verbose      bool
)

// cfg is loaded once before any subcommand runs.
var cfg *config.File

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// skipConfig marks commands that run without a configuration file.
const skipConfig = "strata/skip-config"

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Strata - LVM thin volume manager for VM disks",
	Long: `Strata manages VM disks on LVM thin pools.

Each volume is declared in the configuration file as volatile (recreated on
every start), persistent (snapshotted on start and saved as a new revision on
stop) or a snapshot of another volume (discarded on stop). Older revisions are
kept for revert according to the pool's retention.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}
		if cmd.Annotations[skipConfig] == "true" {
			return logger.InitLogger("", verbose, debug)
		}

		f, err := loader.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = f

		return initLogging(f.Log)
	},
}

// initLogging honours --debug and --verbose first, then the configured level.
func initLogging(l config.LogConfig) error {
	v, d := verbose, debug
	if !v && !d && l.Level != "" {
		var err error
		v, d, err = logger.ParseLevel(l.Level)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
	}
	return logger.InitLogger(l.File, v, d)
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print the strata version",
	Annotations: map[string]string{skipConfig: "true"},
	Args:        cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("strata %s (commit: %s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", DefaultConfigPath, "Path to the strata configuration file")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, yaml, json)")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false, "Omit headers in table output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable informational logging")

	rootCmd.AddCommand(poolCmd)
	rootCmd.AddCommand(volumeCmd)
	rootCmd.AddCommand(vmCmd)
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(detachCmd)
	rootCmd.AddCommand(serveMetricsCmd)
	rootCmd.AddCommand(versionCmd)
}

// newFormatter returns the formatter selected by --output.
func newFormatter() (output.Formatter, error) {
	return output.NewFormatter(output.Options{
		Format:    output.Format(outputFormat),
		NoHeaders: noHeaders,
	})
}
