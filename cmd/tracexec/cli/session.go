package cli

import (
	"fmt"
	"os/user"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orhun/tracexec/internal/event"
	"github.com/orhun/tracexec/internal/tracer"
)

// sessionFlags are the tracer options shared by the log and tui commands.
type sessionFlags struct {
	user        string
	cwd         string
	seccompMode string

	showAll     bool
	include     []string
	exclude     []string
	successOnly bool
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.user, "user", "u", "", "run the command as this user (requires root, disables seccomp-bpf)")
	cmd.Flags().StringVarP(&f.cwd, "cwd", "C", "", "run the command in this directory")
	cmd.Flags().StringVar(&f.seccompMode, "seccomp-bpf", "", "seccomp-bpf optimization: auto, on or off")
	cmd.Flags().BoolVar(&f.showAll, "show-all-events", false, "emit every event category, including signal noise")
	cmd.Flags().StringSliceVar(&f.include, "include", nil, "event categories to add to the default set")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "event categories to drop (wins over include)")
	cmd.Flags().BoolVar(&f.successOnly, "successful-only", false, "only report execs that succeeded")
}

// tracerConfig merges the flags with the loaded defaults into an engine
// configuration. Flags win over the config file.
func (f *sessionFlags) tracerConfig(cmd *cobra.Command, args []string, stdio tracer.StdioMode) (tracer.Config, error) {
	rules, err := f.rules(cmd)
	if err != nil {
		return tracer.Config{}, err
	}

	modeStr := f.seccompMode
	if modeStr == "" {
		modeStr = cfg.SeccompBPF
	}
	mode, err := tracer.ParseSeccompMode(modeStr)
	if err != nil {
		return tracer.Config{}, err
	}

	cred, err := lookupCredential(f.user)
	if err != nil {
		return tracer.Config{}, err
	}

	return tracer.Config{
		Command:    args,
		WorkingDir: f.cwd,
		Credential: cred,
		Seccomp:    mode,
		Stdio:      stdio,
		Rules:      rules,
	}, nil
}

func (f *sessionFlags) rules(cmd *cobra.Command) (event.Rules, error) {
	var rules event.Rules
	flagged := cmd.Flags().Changed("show-all-events") ||
		cmd.Flags().Changed("include") ||
		cmd.Flags().Changed("exclude")
	if flagged {
		include, err := parseCategories(f.include)
		if err != nil {
			return event.Rules{}, err
		}
		exclude, err := parseCategories(f.exclude)
		if err != nil {
			return event.Rules{}, err
		}
		rules = event.NewRules(f.showAll, include, exclude)
	} else {
		var err error
		rules, err = cfg.Rules()
		if err != nil {
			return event.Rules{}, err
		}
	}
	if f.successOnly {
		rules = rules.SuccessOnly()
	}
	return rules, nil
}

func parseCategories(names []string) ([]event.Category, error) {
	var out []event.Category
	for _, name := range names {
		c, ok := event.ParseCategory(name)
		if !ok {
			return nil, fmt.Errorf("unknown event category %q", name)
		}
		out = append(out, c)
	}
	return out, nil
}

// lookupCredential resolves a user name into the credential the root tracee
// starts with, supplementary groups included.
func lookupCredential(name string) (*syscall.Credential, error) {
	if name == "" {
		return nil, nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		return nil, err
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("parse uid of %s: %w", name, err)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("parse gid of %s: %w", name, err)
	}

	var groups []uint32
	if ids, err := u.GroupIds(); err == nil {
		for _, id := range ids {
			g, err := strconv.ParseUint(id, 10, 32)
			if err != nil {
				continue
			}
			groups = append(groups, uint32(g))
		}
	}

	return &syscall.Credential{
		Uid:    uint32(uid),
		Gid:    uint32(gid),
		Groups: groups,
	}, nil
}
