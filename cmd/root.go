package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "opsrelay",
	Short: "Alert dispatch and automated remediation for observability pipelines",
	Long: `opsrelay turns detection events into deduplicated, rate-limited,
multi-channel notifications, and can select and execute corrective actions
against running infrastructure with approval gating and rollback.

Get started:
  opsrelay dispatch    Render and send an alert through configured channels
  opsrelay remediate   Select and execute a corrective action for an issue
  opsrelay rollback    Reverse a previously recorded remediation
  opsrelay history     Show recorded alert or remediation history`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ~/.opsrelay/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug output")

	rootCmd.Version = Version
	rootCmd.AddCommand(
		dispatchCmd,
		remediateCmd,
		rollbackCmd,
		historyCmd,
	)
}

func initLogging() {
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("Verbose logging enabled")
	}
}
