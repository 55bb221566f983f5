// Package render formats trace events for the logging front end: one
// human-readable line per event, or newline-delimited JSON for machine
// consumption.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/orhun/tracexec/internal/event"
)

// Options controls what the line renderer includes.
type Options struct {
	// JSON switches to newline-delimited JSON output.
	JSON bool
	// ShowCwd includes the working directory as an env -C prefix.
	ShowCwd bool
	// ShowInterpreters appends the resolved shebang chain.
	ShowInterpreters bool
}

// Printer renders events to a writer. Safe for use from a single goroutine;
// the event stream is already serialized by the dispatcher.
type Printer struct {
	w    io.Writer
	opts Options
	enc  *json.Encoder
}

func NewPrinter(w io.Writer, opts Options) *Printer {
	p := &Printer{w: w, opts: opts}
	if opts.JSON {
		p.enc = json.NewEncoder(w)
	}
	return p
}

// Print writes one event.
func (p *Printer) Print(ev event.Event) error {
	if p.opts.JSON {
		return p.enc.Encode(ev)
	}

	switch ev.Category {
	case event.CategoryWarning:
		_, err := fmt.Fprintf(p.w, "%s %s\n", color.YellowString("warning:"), ev.Message)
		return err
	case event.CategoryError:
		_, err := fmt.Fprintf(p.w, "%s %s\n", color.RedString("error:"), ev.Message)
		return err
	case event.CategoryExecSuccess, event.CategoryExecFailure:
		return p.printExec(ev)
	case event.CategoryTraceeExit:
		status := 0
		if ev.ExitStatus != nil {
			status = *ev.ExitStatus
		}
		_, err := fmt.Fprintf(p.w, "%s exited with %d\n", p.subject(ev), status)
		return err
	case event.CategoryOtherSignal:
		_, err := fmt.Fprintf(p.w, "%s received %s\n", p.subject(ev), ev.Signal)
		return err
	}
	return nil
}

func (p *Printer) subject(ev event.Event) string {
	return fmt.Sprintf("%s<%s>", color.CyanString("%d", ev.Pid), color.GreenString(ev.Comm))
}

// printExec renders an exec attempt as a reproducible env(1) invocation:
// working directory and environment changes become env flags in front of the
// command line.
func (p *Printer) printExec(ev event.Event) error {
	e := ev.Exec
	var b strings.Builder
	b.WriteString(p.subject(ev))
	b.WriteString(": ")

	var envArgs []string
	if p.opts.ShowCwd && e.Cwd != "" {
		envArgs = append(envArgs, "-C", quote(e.Cwd))
	}
	if e.EnvDiff != nil {
		for _, k := range e.EnvDiff.Removed {
			envArgs = append(envArgs, "-u", k)
		}
		for _, kv := range sortedKV(e.EnvDiff.Added) {
			envArgs = append(envArgs, quote(kv))
		}
		for _, kv := range sortedKV(e.EnvDiff.Changed) {
			envArgs = append(envArgs, quote(kv))
		}
	}
	if len(envArgs) > 0 {
		b.WriteString("env ")
		b.WriteString(strings.Join(envArgs, " "))
		b.WriteString(" ")
	}

	argv := e.Argv
	if len(argv) == 0 {
		argv = []string{e.Filename}
	}
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = quote(a)
	}
	b.WriteString(strings.Join(quoted, " "))

	if !e.Success {
		b.WriteString(color.RedString(" (failed with %s)", e.Errno))
	}
	if p.opts.ShowInterpreters && len(e.Interpreters) > 0 {
		b.WriteString(color.New(color.Faint).Sprintf(" [interpreter: %s]", strings.Join(e.Interpreters, " -> ")))
	}

	_, err := fmt.Fprintln(p.w, b.String())
	return err
}

func sortedKV(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	kv := make([]string, 0, len(m))
	for k, v := range m {
		kv = append(kv, k+"="+v)
	}
	sort.Strings(kv)
	return kv
}

// quote makes a string safe to paste into a shell, single-quoting only when
// needed.
func quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'\\$&|;<>()*?[]#~%{}`!") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
