// Package cli implements the fluptrack command-line surface: one process
// per invocation, one subcommand per operation, exit codes usable from
// scripts.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hexperiment-labs/fluptrack/internal/amendment"
	"github.com/hexperiment-labs/fluptrack/internal/config"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/hexperiment-labs/fluptrack/internal/cli.version=1.2.3"
	version = "1.3.0"
	logo    = "\n" +
		"   __ _             _                  _\n" +
		"  / _| |_   _ _ __ | |_ _ __ __ _  ___| | __\n" +
		" | |_| | | | | '_ \\| __| '__/ _` |/ __| |/ /\n" +
		" |  _| | |_| | |_) | |_| | | (_| | (__|   <\n" +
		" |_| |_|\\__,_| .__/ \\__|_|  \\__,_|\\___|_|\\_\\\n" +
		"             |_|\n"
)

// Exit codes distinguish scriptable outcomes (spec'd alongside the
// human-readable summaries every command prints).
const (
	exitOK         = 0
	exitFailure    = 1
	exitValidation = 2
	exitNothing    = 3
)

var rootCmd = &cobra.Command{
	Use:   "fluptrack",
	Short: "fluptrack - amendment log and archive manager",
	Long: color.CyanString(logo) +
		"\nRecords categorized change events to append-only logs, rotates them\n" +
		"by size, and exports/imports complete category histories.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServicePass()
	},
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		switch {
		case errors.Is(err, amendment.ErrNothingToExport):
			return exitNothing
		case errors.Is(err, amendment.ErrValidation):
			return exitValidation
		}
		return exitFailure
	}
	return exitOK
}

// setup loads config, applies verbosity, and rebuilds tracker state from
// the data directory's live logs.
func setup() (*config.Config, *amendment.Tracker, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Logging.Verbose {
		slog.SetLogLoggerLevel(slog.LevelWarn)
	}
	tr := amendment.New(cfg.Paths.DataDir, amendment.WithThreshold(cfg.Rotate.ThresholdBytes))
	if err := tr.Load(); err != nil {
		return nil, nil, err
	}
	return cfg, tr, nil
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(createCflupCmd)
	rootCmd.AddCommand(listCflupsCmd)
	rootCmd.AddCommand(loopStatusCmd)
	rootCmd.AddCommand(listArchivesCmd)
	rootCmd.AddCommand(exportArchiveCmd)
	rootCmd.AddCommand(importArchiveCmd)
	rootCmd.AddCommand(importMultipleCmd)
	rootCmd.AddCommand(validateArchiveCmd)
	rootCmd.AddCommand(archiveUsageCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(indexCmd)
}
