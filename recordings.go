package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"thoughtcap/app"
	"thoughtcap/catalog"
	"thoughtcap/clipboard"
	"thoughtcap/model"
)

var errBackendUnavailable = errors.New("recordings unavailable, check the backend")

// openCatalog builds a controller without audio and loads the recordings.
func (e *env) openCatalog(ctx context.Context) (*app.Controller, error) {
	ctrl, err := e.newController(nil, nil, controllerHooks{})
	if err != nil {
		return nil, err
	}
	ctrl.Reload(ctx)
	if !ctrl.Catalog().Authoritative() {
		ctrl.Close()
		return nil, fmt.Errorf("%w (%s)", errBackendUnavailable, e.cfg.API.BaseURL)
	}
	return ctrl, nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type listOutput struct {
	Files []model.Recording `json:"files"`
	Stats model.Stats       `json:"stats"`
}

func newListCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recordings, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			ctrl, err := e.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(listOutput{Files: ctrl.Catalog().Recordings(), Stats: ctrl.Catalog().Stats()})
			}

			vm := ctrl.View()
			if vm.Placeholder != "" {
				fmt.Fprintln(out, vm.Placeholder)
				return nil
			}
			fmt.Fprintln(out, renderTable(vm.Rows))
			fmt.Fprintln(out, dimStyle.Render(vm.Summary))
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "print the raw listing as JSON")
	return cmd
}

func renderTable(rows []catalog.Row) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("RECORDED", "DURATION", "SIZE", "TEXT", "FILENAME").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			if col == 3 {
				return cellStyle.Inherit(doneStyle)
			}
			return cellStyle
		})
	for _, r := range rows {
		mark := ""
		if r.Transcribed {
			mark = "✓"
		}
		t.Row(r.Time, r.Duration, r.Size, mark, r.Filename)
	}
	return t.String()
}

func newShowCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <filename>",
		Short: "Print the transcript of a recording, transcribing it if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			ctrl, err := e.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			detail, err := ctrl.Select(ctx, args[0])
			if err != nil {
				return err
			}
			dv := ctrl.View().Detail
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, headerStyle.Render(dv.Title))
			fmt.Fprintln(out, dimStyle.Render(dv.Meta))
			fmt.Fprintln(out)
			if dv.Kind != catalog.DetailReady {
				return errors.New(dv.Body)
			}

			timestamps, _ := cmd.Flags().GetBool("timestamps")
			fmt.Fprintln(out, clipboard.Format(detail.Transcription, timestamps))

			if cp, _ := cmd.Flags().GetBool("copy"); cp {
				if err := clipboard.CopyTranscript(e.clipboard, detail.Transcription, timestamps); err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Copied to clipboard.")
			}
			return nil
		},
	}
	cmd.Flags().BoolP("timestamps", "t", false, "prefix each segment with its start time")
	cmd.Flags().BoolP("copy", "c", false, "also copy the transcript to the clipboard")
	return cmd
}

func newDeleteCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <filename>",
		Aliases: []string{"rm"},
		Short:   "Delete a recording from the backend",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			ctrl, err := e.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			yes, _ := cmd.Flags().GetBool("yes")
			err = ctrl.Delete(ctx, args[0], func(rec model.Recording) bool {
				if yes {
					return true
				}
				q := fmt.Sprintf("Delete %s (%s, %s)?", rec.DisplayTime(), model.FormatDuration(rec.DurationSeconds), catalog.FormatSize(rec.SizeBytes))
				return confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), q)
			})
			if errors.Is(err, app.ErrNotConfirmed) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	return cmd
}
