package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogPath = "THOUGHTCAP_LOG_PATH"

	diagnosticsFile = "diagnostics_log.txt"
	transcriptsFile = "transcribe_log.txt"
	timeFormat      = "2006-01-02 15:04:05"
)

var (
	diagLog        = zerolog.Nop()
	diagFile       *os.File
	transcribeFile *os.File
	logMu          sync.Mutex
	logReady       bool
	level          = zerolog.InfoLevel
	pid            int
	dir            string
)

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

// ResolveDir picks the log directory: the flag, then THOUGHTCAP_LOG_PATH,
// then the OS default.
func ResolveDir(flagPath string) (string, error) {
	if flagPath != "" {
		return absolute(flagPath)
	}
	if envPath := os.Getenv(EnvLogPath); envPath != "" {
		return absolute(envPath)
	}
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

// SetLevel accepts zerolog level names. Unknown names keep the current level.
func SetLevel(name string) error {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return fmt.Errorf("log level %q: %w", name, err)
	}
	logMu.Lock()
	level = l
	if logReady {
		diagLog = diagLog.Level(l)
	}
	logMu.Unlock()
	return nil
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

// Init opens both log files under Dir. Calling it again while open is a
// no-op.
func Init() error {
	logMu.Lock()
	defer logMu.Unlock()
	if logReady {
		return nil
	}

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	diagFile, err = os.OpenFile(filepath.Join(dir, diagnosticsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	transcribeFile, err = os.OpenFile(filepath.Join(dir, transcriptsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		diagFile = nil
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: timeFormat,
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).Level(level).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcribeFile != nil {
		transcribeFile.Close()
		transcribeFile = nil
	}
	diagLog = zerolog.Nop()
	logReady = false
}

// Logger returns the diagnostics logger, or a no-op logger before Init.
func Logger() zerolog.Logger {
	logMu.Lock()
	defer logMu.Unlock()
	return diagLog
}

// Transcript appends one resolved transcript to the transcript log.
func Transcript(filename, text string) {
	logMu.Lock()
	defer logMu.Unlock()
	if !logReady {
		return
	}
	text = strings.Join(strings.Fields(text), " ")
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\n", time.Now().Format(timeFormat), pid, filename, text)
	transcribeFile.WriteString(line)
}

func SessionStart(mode, backend string) {
	l := Logger()
	l.Info().
		Str("mode", mode).
		Str("backend", backend).
		Msg("session_start")
}

func SessionEnd(recordings int) {
	l := Logger()
	l.Info().
		Int("recordings", recordings).
		Msg("session_end")
}
