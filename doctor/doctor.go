package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"thoughtcap/audio"
	"thoughtcap/catalog"
	"thoughtcap/model"
)

// Lister is the backend call used to prove reachability.
type Lister interface {
	List(ctx context.Context) ([]model.Recording, error)
}

type Clipboard interface {
	Copy(text string) error
	Read() (string, error)
}

type Deps struct {
	Audio  audio.Context
	Device *audio.DeviceInfo
	// Capture is how long the microphone check listens.
	Capture time.Duration

	Backend    Lister
	BackendURL string

	// Clipboard and Hotkey are skipped when nil.
	Clipboard Clipboard
	Hotkey    func() (string, error)
}

type Check struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

var errSkipped = errors.New("skipped")

// Checks lists the capability checks in the order they run.
func Checks(d Deps) []Check {
	return []Check{
		{Name: "Microphone", Run: d.checkMicrophone},
		{Name: "Transcription backend", Run: d.checkBackend},
		{Name: "Clipboard", Run: d.checkClipboard},
		{Name: "Global hotkey", Run: d.checkHotkey},
	}
}

// Run executes checks in order and returns an exit code (0 when nothing
// failed, 1 otherwise). Skipped checks do not fail the run.
func Run(ctx context.Context, w io.Writer, checks []Check) int {
	fmt.Fprintln(w, "thoughtcap doctor")
	fmt.Fprintln(w, "=================")

	failed := 0
	for i, c := range checks {
		fmt.Fprintf(w, "\n[%d/%d] %s\n", i+1, len(checks), c.Name)
		msg, err := c.Run(ctx)
		switch {
		case errors.Is(err, errSkipped):
			fmt.Fprintf(w, "  SKIP: %s\n", msg)
		case err != nil:
			failed++
			fmt.Fprintf(w, "  FAIL: %v\n", err)
		default:
			fmt.Fprintf(w, "  PASS: %s\n", msg)
		}
	}

	fmt.Fprintln(w)
	if failed > 0 {
		fmt.Fprintf(w, "%d check(s) failed. See details above.\n", failed)
		return 1
	}
	fmt.Fprintln(w, "All checks passed!")
	return 0
}

func (d Deps) checkMicrophone(ctx context.Context) (string, error) {
	if d.Audio == nil {
		return "no audio backend", errSkipped
	}
	if err := audio.CheckAccess(d.Audio); err != nil {
		return "", err
	}
	listen := d.Capture
	if listen <= 0 {
		listen = time.Second
	}

	pcm, name, err := capture(ctx, d.Audio, d.Device, listen)
	if err != nil {
		return "", fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
	}
	if len(pcm) == 0 {
		return "", fmt.Errorf("no audio captured from %s in %s", name, listen)
	}

	m := audio.Measure(pcm, audio.SampleRate)
	msg := fmt.Sprintf("%s: captured %s, level %d, peak %d Hz", name, catalog.FormatSize(int64(len(pcm))), m.Level, m.Frequency)
	if m.Level == 0 {
		msg += " (silent, check the input volume)"
	}
	return msg, nil
}

func capture(ctx context.Context, actx audio.Context, device *audio.DeviceInfo, listen time.Duration) ([]byte, string, error) {
	dev, err := actx.NewCapture(device, audio.DefaultCaptureConfig())
	if err != nil {
		return nil, "", err
	}
	defer dev.Close()

	var (
		mu  sync.Mutex
		pcm []byte
	)
	dev.SetCallback(func(data []byte, _ uint32) {
		mu.Lock()
		pcm = append(pcm, data...)
		mu.Unlock()
	})
	if err := dev.Start(); err != nil {
		return nil, "", err
	}

	timer := time.NewTimer(listen)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	dev.ClearCallback()
	dev.Stop()

	mu.Lock()
	defer mu.Unlock()
	return pcm, dev.DeviceName(), ctx.Err()
}

func (d Deps) checkBackend(ctx context.Context) (string, error) {
	if d.Backend == nil {
		return "no backend configured", errSkipped
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	recs, err := d.Backend.List(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", d.BackendURL, err)
	}
	s := model.ComputeStats(recs)
	return fmt.Sprintf("%s answered in %s, %d recording(s), %d transcribed",
		d.BackendURL, time.Since(start).Round(time.Millisecond), s.Count, s.TranscribedCount), nil
}

func (d Deps) checkClipboard(context.Context) (string, error) {
	if d.Clipboard == nil {
		return "clipboard unavailable", errSkipped
	}
	prev, _ := d.Clipboard.Read()

	const probe = "thoughtcap-doctor-test"
	if err := d.Clipboard.Copy(probe); err != nil {
		return "", fmt.Errorf("copy: %w", err)
	}
	got, err := d.Clipboard.Read()
	if err != nil {
		return "", fmt.Errorf("read back: %w", err)
	}
	if got != probe {
		return "", fmt.Errorf("read back %q, want %q", got, probe)
	}
	if err := d.Clipboard.Copy(prev); err != nil {
		return "", fmt.Errorf("restore: %w", err)
	}
	return "copy and read back verified, previous contents restored", nil
}

func (d Deps) checkHotkey(context.Context) (string, error) {
	if d.Hotkey == nil {
		return "hotkey disabled", errSkipped
	}
	return d.Hotkey()
}
