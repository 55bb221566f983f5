// Package cli implements the tracexec command-line interface using Cobra.
// It provides the logging and pty-session front ends over the trace engine.
package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/orhun/tracexec/internal/config"
	"github.com/orhun/tracexec/internal/log"
)

var (
	verbose   bool
	colorMode string
	debugLog  string

	cfg *config.Config

	// exitCode is the process exit code once a traced command has finished:
	// the root tracee's own code, 128+signal, or 130 after a detach.
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "tracexec",
	Short: "Trace the execs of a command and all of its descendants",
	Long: `tracexec runs a command under ptrace and reports every execve/execveat
in the resulting process tree: the full command line, environment changes,
working directory, file descriptors and interpreter chain, for successful
and failed attempts alike.

Run 'tracexec log -- <command>' to stream execs as reproducible one-liners.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		if !cmd.Flags().Changed("color") && cfg.Log.Color != "" {
			colorMode = cfg.Log.Color
		}
		switch colorMode {
		case "always":
			color.NoColor = false
		case "never":
			color.NoColor = true
		case "auto":
			color.NoColor = !term.IsTerminal(int(os.Stdout.Fd()))
		default:
			return fmt.Errorf("invalid color mode %q (want auto, always or never)", colorMode)
		}

		if debugLog == "" {
			debugLog = cfg.Log.File
		}
		return log.Init(log.Options{
			Verbose:     verbose,
			Interactive: cmd.Name() == "tui",
			File:        debugLog,
		})
	},
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	defer log.Close()
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return exitCode
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose diagnostic output")
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "auto", "colorize output: auto, always or never")
	rootCmd.PersistentFlags().StringVar(&debugLog, "log-file", "", "write a JSON diagnostic log to this file")
}
