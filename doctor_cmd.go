package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"thoughtcap/clipboard"
	"thoughtcap/doctor"
	"thoughtcap/hotkey"
)

func newDoctorCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check microphone, backend, clipboard and hotkey",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			listen, _ := cmd.Flags().GetDuration("capture")
			useHotkey, _ := cmd.Flags().GetBool("hotkey")
			deps := doctor.Deps{
				Capture:    listen,
				Backend:    e.api,
				BackendURL: e.cfg.API.BaseURL,
			}
			if e.clipboard != nil && !clipboard.Unsupported() {
				deps.Clipboard = e.clipboard
			}
			if useHotkey {
				deps.Hotkey = hotkey.Diagnose
			}

			actx, dev, audioErr := e.openAudio(false)
			if audioErr == nil {
				defer actx.Close()
				deps.Audio, deps.Device = actx, dev
			}
			checks := doctor.Checks(deps)
			if audioErr != nil {
				checks[0].Run = func(context.Context) (string, error) { return "", audioErr }
			}

			if code := doctor.Run(ctx, cmd.OutOrStdout(), checks); code != 0 {
				return fmt.Errorf("doctor found problems")
			}
			return nil
		},
	}
	cmd.Flags().Duration("capture", time.Second, "how long the microphone check listens")
	cmd.Flags().Bool("hotkey", true, "check the global hotkey")
	return cmd
}
