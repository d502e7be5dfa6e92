package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"thoughtcap/clipboard"
	"thoughtcap/events"
	"thoughtcap/recording"
)

func newRecordCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record one note, upload it and print the transcript",
		Long: `Record from the microphone until Enter is pressed, the duration
elapses or the process is interrupted. The recording is uploaded and the
command waits for its transcript.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecord(cmd, e)
		},
	}
	cmd.Flags().Bool("setup", false, "pick the capture device interactively")
	cmd.Flags().DurationP("duration", "d", 0, "stop after this long (0 waits for Enter)")
	cmd.Flags().BoolP("timestamps", "t", false, "prefix each segment with its start time")
	cmd.Flags().BoolP("copy", "c", false, "copy the transcript to the clipboard")
	return cmd
}

func runRecord(cmd *cobra.Command, e *env) error {
	setup, _ := cmd.Flags().GetBool("setup")
	duration, _ := cmd.Flags().GetDuration("duration")
	timestamps, _ := cmd.Flags().GetBool("timestamps")
	cp, _ := cmd.Flags().GetBool("copy")
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	actx, dev, err := e.openAudio(setup)
	if err != nil {
		return err
	}
	defer actx.Close()

	ready := make(chan events.TranscriptionReadyData, 8)
	sink := events.PublisherFunc(func(ev events.Event) {
		if d, ok := ev.Data.(events.TranscriptionReadyData); ok && ev.Type == events.TranscriptionReady {
			select {
			case ready <- d:
			default:
			}
		}
	})
	ctrl, err := e.newController(actx, dev, controllerHooks{
		sink: sink,
		onTick: func(elapsed time.Duration) {
			fmt.Fprintf(errOut, "\rREC %s  (Enter to stop)", recording.FormatClock(elapsed))
		},
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()
	defer e.sessionLog(cmd, ctrl)()

	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(errOut, "REC 00:00  (Enter to stop)")

	var limit <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		limit = timer.C
	}
	select {
	case <-enterPressed(cmd):
	case <-limit:
	case <-ctx.Done():
	}
	fmt.Fprintln(errOut)

	// An interrupt stops the recording but still uploads it.
	upctx, upcancel := context.WithTimeout(context.Background(), e.cfg.API.Timeout)
	res, err := ctrl.Stop(upctx)
	upcancel()
	if err != nil {
		return err
	}
	if res.Filename == "" {
		return fmt.Errorf("nothing was recorded")
	}
	fmt.Fprintf(errOut, "Saved %s\n", res.Filename)

	polls := make(chan struct{})
	go func() {
		ctrl.Coordinator().Wait()
		close(polls)
	}()
	if res.Pending {
		fmt.Fprintln(errOut, "Waiting for transcription...")
	}

	for {
		select {
		case d := <-ready:
			if d.Filename != res.Filename {
				continue
			}
			if d.Transcription.Empty() {
				return notReady(errOut, res.Filename)
			}
			fmt.Fprintln(out, clipboard.Format(d.Transcription, timestamps))
			if cp {
				if err := clipboard.CopyTranscript(e.clipboard, d.Transcription, timestamps); err != nil {
					return err
				}
				fmt.Fprintln(errOut, "Copied to clipboard.")
			}
			return nil
		case <-polls:
			// The last poll may have resolved just before exiting.
			polls = nil
			select {
			case d := <-ready:
				ready <- d
			default:
				return notReady(errOut, res.Filename)
			}
		case <-ctx.Done():
			return notReady(errOut, res.Filename)
		}
	}
}

func notReady(w io.Writer, filename string) error {
	fmt.Fprintf(w, "Transcript not ready yet. Run `thoughtcap show %s` later.\n", filename)
	return nil
}

// enterPressed fires when a line is read from stdin. EOF never fires, so a
// closed stdin leaves the other stop conditions in charge.
func enterPressed(cmd *cobra.Command) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		if _, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n'); err == nil {
			close(ch)
		}
	}()
	return ch
}
