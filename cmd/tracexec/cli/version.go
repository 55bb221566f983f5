package cli

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// buildString folds the build metadata into a single line, e.g.
// "0.3.1 (abc1234, 2026-08-31, go1.25.5)". Fields that were never
// injected are left out.
func buildString() string {
	var extras []string
	if commit != "none" {
		extras = append(extras, commit)
	}
	if date != "unknown" {
		extras = append(extras, date)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		extras = append(extras, info.GoVersion)
	}
	if len(extras) == 0 {
		return version
	}
	return fmt.Sprintf("%s (%s)", version, strings.Join(extras, ", "))
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of tracexec",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("tracexec", buildString())
	},
}
