package main

import (
	"github.com/spf13/cobra"

	"thoughtcap/config"
)

// newRootCmd builds the command tree around e. Running the root command
// without a subcommand opens the TUI.
func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "thoughtcap",
		Short: "Record voice notes and browse their transcripts",
		Long: `thoughtcap records audio from the microphone, uploads it to a
transcription backend and shows the recordings and their transcripts.

Press Ctrl+Shift+Space anywhere to record: tap to toggle, hold to talk.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !needsSetup(cmd) {
				return nil
			}
			return e.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd, e)
		},
	}
	config.RegisterFlags(root.PersistentFlags())
	addSessionFlags(root)

	root.SetIn(e.in)
	root.SetOut(e.out)
	root.SetErr(e.errOut)

	root.AddCommand(
		newTUICmd(e),
		newRecordCmd(e),
		newListCmd(e),
		newShowCmd(e),
		newDeleteCmd(e),
		newServeCmd(e),
		newDoctorCmd(e),
		newVersionCmd(),
	)
	return root
}

// addSessionFlags declares the flags of commands that open the microphone.
func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("setup", false, "pick the capture device interactively")
	cmd.Flags().Bool("hotkey", true, "listen for the global hotkey")
}

func needsSetup(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version", "help", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return false
	}
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "completion" {
			return false
		}
	}
	return true
}
