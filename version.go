package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			if short, _ := cmd.Flags().GetBool("short"); short {
				fmt.Fprintln(out, version)
				return
			}
			rule := strings.Repeat("-", 40)
			fmt.Fprintln(out, "thoughtcap")
			fmt.Fprintln(out, rule)
			fmt.Fprintf(out, "Version:      %s\n", version)
			fmt.Fprintf(out, "Git Commit:   %s\n", commit)
			fmt.Fprintf(out, "Build Time:   %s\n", buildTime)
			fmt.Fprintf(out, "Go Version:   %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch:      %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Fprintln(out, rule)
		},
	}
	cmd.Flags().BoolP("short", "s", false, "print just the version number")
	return cmd
}
