package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orhun/tracexec/internal/event"
	"github.com/orhun/tracexec/internal/render"
	"github.com/orhun/tracexec/internal/tracer"
)

var logFlags struct {
	session sessionFlags

	output           string
	jsonOut          bool
	showCwd          bool
	showInterpreters bool
}

var logCmd = &cobra.Command{
	Use:   "log [flags] -- command [args...]",
	Short: "Run a command and print every exec as one line",
	Long: `Run a command under the tracer and print one line per exec in its
process tree. Environment changes are rendered as an env(1) prefix, so a
printed line can be pasted back into a shell to reproduce the exec.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLog,
}

func init() {
	rootCmd.AddCommand(logCmd)
	logFlags.session.register(logCmd)
	logCmd.Flags().StringVarP(&logFlags.output, "output", "o", "-", "write events to this file instead of stdout")
	logCmd.Flags().BoolVar(&logFlags.jsonOut, "json", false, "emit events as newline-delimited JSON")
	logCmd.Flags().BoolVar(&logFlags.showCwd, "show-cwd", false, "prefix each exec with its working directory")
	logCmd.Flags().BoolVar(&logFlags.showInterpreters, "show-interpreter", false, "append the resolved shebang chain")
}

func runLog(cmd *cobra.Command, args []string) error {
	out := os.Stdout
	if logFlags.output != "" && logFlags.output != "-" {
		f, err := os.Create(logFlags.output)
		if err != nil {
			return fmt.Errorf("open output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	tcfg, err := logFlags.session.tracerConfig(cmd, args, tracer.StdioInherit)
	if err != nil {
		return err
	}

	s, err := tracer.New(tcfg)
	if err != nil {
		return err
	}

	printer := render.NewPrinter(out, render.Options{
		JSON:             logFlags.jsonOut || cfg.Log.JSON,
		ShowCwd:          logFlags.showCwd || cfg.Log.ShowCwd,
		ShowInterpreters: logFlags.showInterpreters || cfg.Log.ShowInterpreters,
	})
	s.OnEvent(func(ev event.Event) {
		_ = printer.Print(ev)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status, err := s.Run(ctx)
	if err != nil {
		return err
	}
	exitCode = status.ExitCode()
	return nil
}
