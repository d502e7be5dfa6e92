package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"thoughtcap/app"
	"thoughtcap/events"
	"thoughtcap/hotkey"
)

// shutdownGrace bounds how long the event server drains on exit.
const shutdownGrace = 5 * time.Second

func newServeCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run headless, driven by the event channel and the global hotkey",
		Long: `Run the recorder without a UI. Subscribers connect to ws://ADDR/ws to
receive events and send start_recording, stop_recording and
transcription_ready commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, e)
		},
	}
	addSessionFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, e *env) error {
	if !e.cfg.Events.Enabled {
		return errors.New("serve needs the event channel, remove --events=false")
	}
	setup, _ := cmd.Flags().GetBool("setup")
	useHotkey, _ := cmd.Flags().GetBool("hotkey")

	ctx, cancel := commandContext(cmd)
	defer cancel()

	actx, dev, err := e.openAudio(setup)
	if err != nil {
		return err
	}
	defer actx.Close()

	hub := events.NewHub(e.log)
	ctrl, err := e.newController(actx, dev, controllerHooks{
		hub: hub,
		onNotice: func(n app.Notice) {
			fmt.Fprintln(cmd.ErrOrStderr(), n.Text)
		},
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()
	defer e.sessionLog(cmd, ctrl)()

	addr, served, err := startHub(ctx, e.cfg.Events.Addr, hub, e.log)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "listening on ws://%s/ws\n", addr)

	ctrl.Reload(ctx)
	go ctrl.Run(ctx, hub.Commands())
	if useHotkey {
		if commands := e.startHotkey(ctx); commands != nil {
			go ctrl.Run(ctx, commands)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: tap to toggle, hold to talk\n", hotkey.Label)
		}
	}

	select {
	case <-ctx.Done():
	case err := <-served:
		if err != nil {
			return fmt.Errorf("event server: %w", err)
		}
	}
	cancel()
	<-served
	return nil
}

// startHub serves the hub on addr until ctx is done. The returned channel
// yields the server's exit error once shutdown completes.
func startHub(ctx context.Context, addr string, hub *events.Hub, log zerolog.Logger) (net.Addr, <-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           events.NewRouter(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	served := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		served <- err
		close(served)
	}()
	go func() {
		<-ctx.Done()
		hub.Close()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("event server forced to shut down")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("event server listening")
	return ln.Addr(), served, nil
}

// startHotkey registers the global hotkey and returns its commands, or nil
// when the platform refuses it.
func (e *env) startHotkey(ctx context.Context) <-chan events.Command {
	hk := e.newHotkey()
	if err := hk.Register(); err != nil {
		e.log.Warn().Err(err).Msg("global hotkey unavailable")
		return nil
	}
	go func() {
		<-ctx.Done()
		hk.Unregister()
	}()
	return hotkey.NewHybrid(ctx, hk, hotkey.DefaultLongPress).Commands()
}
