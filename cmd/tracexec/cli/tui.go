package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orhun/tracexec/internal/event"
	"github.com/orhun/tracexec/internal/ptyrelay"
	"github.com/orhun/tracexec/internal/render"
	"github.com/orhun/tracexec/internal/tracer"
)

var tuiFlags struct {
	session sessionFlags

	tty             bool
	output          string
	terminateOnExit bool
	killOnExit      bool
}

var tuiCmd = &cobra.Command{
	Use:   "tui [flags] -- command [args...]",
	Short: "Run a command in a dedicated trace session",
	Long: `Run a command in its own trace session, detached from the current
terminal. With --tty the command gets a fresh pseudo-terminal relayed to
yours; without it, its standard streams go to /dev/null.

Events are not printed to the session terminal; use --output to record
them to a file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTui,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
	tuiFlags.session.register(tuiCmd)
	tuiCmd.Flags().BoolVarP(&tuiFlags.tty, "tty", "t", false, "allocate a pseudo-terminal and relay it")
	tuiCmd.Flags().StringVarP(&tuiFlags.output, "output", "o", "", "record events to this file")
	tuiCmd.Flags().BoolVar(&tuiFlags.terminateOnExit, "terminate-on-exit", false, "terminate surviving tracees when the session ends")
	tuiCmd.Flags().BoolVar(&tuiFlags.killOnExit, "kill-on-exit", false, "kill surviving tracees when the session ends")
}

func runTui(cmd *cobra.Command, args []string) error {
	stdio := tracer.StdioNull
	if tuiFlags.tty {
		stdio = tracer.StdioPty
	}

	tcfg, err := tuiFlags.session.tracerConfig(cmd, args, stdio)
	if err != nil {
		return err
	}
	tcfg.TerminateOnExit = tuiFlags.terminateOnExit
	tcfg.KillOnExit = tuiFlags.killOnExit

	s, err := tracer.New(tcfg)
	if err != nil {
		return err
	}

	if tuiFlags.output != "" {
		f, err := os.Create(tuiFlags.output)
		if err != nil {
			return fmt.Errorf("open output file: %w", err)
		}
		defer f.Close()
		printer := render.NewPrinter(f, render.Options{
			JSON:             cfg.Log.JSON,
			ShowCwd:          cfg.Log.ShowCwd,
			ShowInterpreters: cfg.Log.ShowInterpreters,
		})
		s.OnEvent(func(ev event.Event) {
			_ = printer.Print(ev)
		})
	}

	var relay *ptyrelay.Relay
	if tuiFlags.tty {
		relay = ptyrelay.New(s.Pty())
		if err := relay.Start(); err != nil {
			return err
		}
		defer relay.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status, err := s.Run(ctx)
	if relay != nil {
		// Closing the master wakes the relay's output pump.
		s.Pty().Close()
		relay.Wait()
		relay.Stop()
	}
	if err != nil {
		return err
	}
	exitCode = status.ExitCode()
	return nil
}
