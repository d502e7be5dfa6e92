package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"thoughtcap/app"
	"thoughtcap/audio"
	"thoughtcap/beep"
	"thoughtcap/clipboard"
	"thoughtcap/config"
	"thoughtcap/doctor"
	"thoughtcap/events"
	"thoughtcap/hotkey"
	"thoughtcap/log"
	"thoughtcap/shutdown"
	"thoughtcap/transcriber"
)

// env carries what every command needs once flags are parsed.
type env struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfg *config.Config
	log zerolog.Logger
	api *transcriber.Client

	// newAudio and newHotkey open the platform backends; tests replace
	// them with fakes.
	newAudio  func() (audio.Context, error)
	newHotkey func() hotkey.Hotkey
	newPlayer func() beep.Player
	clipboard doctor.Clipboard
	envFile   string

	crash *os.File
}

func newEnv(in io.Reader, out, errOut io.Writer) *env {
	return &env{
		in:        in,
		out:       out,
		errOut:    errOut,
		log:       zerolog.Nop(),
		newAudio:  audio.NewContext,
		newHotkey: hotkey.New,
		newPlayer: beep.System,
		clipboard: clipboard.System{},
		envFile:   ".env",
	}
}

// setup loads configuration and opens the logs. It runs before every
// command except version and help.
func (e *env) setup(cmd *cobra.Command) error {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(config.LoadOptions{File: file, EnvFile: e.envFile, Flags: cmd.Flags()})
	if err != nil {
		return err
	}
	e.cfg = cfg

	dir, err := log.ResolveDir(cfg.Log.Path)
	if err != nil {
		return fmt.Errorf("failed to resolve log directory: %w", err)
	}
	log.SetDir(dir)
	if err := log.SetLevel(cfg.Log.Level); err != nil {
		return err
	}
	if err := log.Init(); err != nil {
		fmt.Fprintf(e.errOut, "Warning: could not init logging: %v\n", err)
	} else {
		e.crashLog()
	}

	e.log = log.Logger()
	e.api = transcriber.NewClient(cfg.API.BaseURL, cfg.API.Timeout, e.log)
	e.log.Debug().Str("command", cmd.Name()).Str("config", cfg.File).Str("backend", cfg.API.BaseURL).Msg("configured")
	return nil
}

func (e *env) crashLog() {
	f, err := os.OpenFile(filepath.Join(log.Dir(), "crash_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(f, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(f, debug.CrashOptions{})
	e.crash = f
}

func (e *env) close() {
	log.Close()
	if e.crash != nil {
		e.crash.Close()
		e.crash = nil
	}
}

// openAudio opens the capture backend and resolves the configured device,
// or lets the user pick one when setup is set.
func (e *env) openAudio(setup bool) (audio.Context, *audio.DeviceInfo, error) {
	actx, err := e.newAudio()
	if err != nil {
		return nil, nil, fmt.Errorf("initializing audio: %w", err)
	}

	var dev *audio.DeviceInfo
	switch {
	case setup:
		dev, err = audio.SelectDevice(actx)
		if err != nil {
			e.log.Warn().Err(err).Msg("device selection failed")
			fmt.Fprintf(e.errOut, "Warning: device selection failed: %v\nFalling back to default device\n", err)
			dev, err = nil, nil
		}
	case e.cfg.Audio.Device != "":
		dev, err = audio.FindDevice(actx, e.cfg.Audio.Device)
	}
	if err != nil {
		actx.Close()
		return nil, nil, err
	}
	return actx, dev, nil
}

type controllerHooks struct {
	hub      *events.Hub
	sink     events.Publisher
	onTick   func(time.Duration)
	onNotice func(app.Notice)
	onChange func()
}

func (e *env) newController(actx audio.Context, dev *audio.DeviceInfo, hooks controllerHooks) (*app.Controller, error) {
	if actx != nil && e.cfg.Audio.Cues {
		cues := beep.NewCues(e.newPlayer())
		hooks.sink = events.Fanout{hooks.sink, cues}
		onNotice := hooks.onNotice
		hooks.onNotice = func(n app.Notice) {
			if n.Err != nil {
				cues.Failed()
			}
			if onNotice != nil {
				onNotice(n)
			}
		}
	}
	return app.New(app.Options{
		Config:   e.cfg,
		Audio:    actx,
		Device:   dev,
		API:      e.api,
		Hub:      hooks.hub,
		Events:   hooks.sink,
		Log:      e.log,
		OnTick:   hooks.onTick,
		OnNotice: hooks.onNotice,
		OnChange: hooks.onChange,
	})
}

// sessionLog records the start of an interactive session and returns the
// matching end record.
func (e *env) sessionLog(cmd *cobra.Command, ctrl *app.Controller) func() {
	log.SessionStart(cmd.Name(), e.cfg.API.BaseURL)
	return func() { log.SessionEnd(ctrl.Uploads()) }
}

// commandContext cancels on a stop signal as well as with cmd.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return shutdown.Context(ctx)
}
