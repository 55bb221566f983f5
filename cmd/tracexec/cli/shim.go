package cli

import (
	"github.com/spf13/cobra"

	"github.com/orhun/tracexec/internal/tracer"
)

// shimCmd is the hidden helper the engine re-executes as the root tracee.
// It installs the seccomp filter inside the tracee, where the kernel requires
// it to be, then execs the target command.
var shimCmd = &cobra.Command{
	Use:    "shim [--seccomp] -- command [args...]",
	Hidden: true,
	Args:   cobra.MinimumNArgs(1),
	// The root's PersistentPreRunE must not run here: the shim is already
	// under ptrace and must reach its exec with no side effects.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		seccomp, _ := cmd.Flags().GetBool("seccomp")
		err := tracer.RunShim(args, seccomp)
		// RunShim only returns when the exec failed; exit like a shell
		// that could not run the command.
		cmd.PrintErrln("tracexec:", err)
		exitCode = 127
		return nil
	},
}

func init() {
	rootCmd.AddCommand(shimCmd)
	shimCmd.Flags().Bool("seccomp", false, "install the exec trace filter before exec")
}
