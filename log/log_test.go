package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/mylog")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/mylog", got)
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	require.NoError(t, err)
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "logs"), got)
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv(EnvLogPath, "/tmp/thoughtcap-env-log")
	got, err := ResolveDir("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/thoughtcap-env-log", got)
}

func TestResolveDirFlagBeatsEnv(t *testing.T) {
	t.Setenv(EnvLogPath, "/tmp/thoughtcap-env-log")
	got, err := ResolveDir("/tmp/flag-log")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/flag-log", got)
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv(EnvLogPath, "")
	got, err := ResolveDir("")
	require.NoError(t, err)
	assert.Contains(t, got, "thoughtcap")
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)
	require.NoError(t, Init())
	require.NoError(t, Init(), "second Init is a no-op")

	for _, name := range []string{diagnosticsFile, transcriptsFile} {
		_, err := os.Stat(filepath.Join(tmp, name))
		assert.NoError(t, err, name)
	}
}

func TestLoggerWritesDiagnostics(t *testing.T) {
	tmp := setupLogDir(t)
	require.NoError(t, Init())

	l := Logger()
	l.Info().Str("filename", "r1.flac").Msg("uploaded")
	SessionStart("tui", "http://localhost:8000")

	data, err := os.ReadFile(filepath.Join(tmp, diagnosticsFile))
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "uploaded")
	assert.Contains(t, out, "filename=r1.flac")
	assert.Contains(t, out, "session_start")
	assert.Contains(t, out, "pid=")
}

func TestSetLevel(t *testing.T) {
	tmp := setupLogDir(t)
	require.NoError(t, Init())
	t.Cleanup(func() { SetLevel("info") })

	require.NoError(t, SetLevel("warn"))
	l := Logger()
	l.Info().Msg("quiet")
	l.Warn().Msg("loud")

	data, err := os.ReadFile(filepath.Join(tmp, diagnosticsFile))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "quiet")
	assert.Contains(t, string(data), "loud")

	assert.Error(t, SetLevel("chatty"))
}

func TestLoggerBeforeInit(t *testing.T) {
	Close()
	l := Logger()
	l.Info().Msg("dropped")
	Transcript("r1.flac", "dropped")
}

func TestTranscript(t *testing.T) {
	tmp := setupLogDir(t)
	require.NoError(t, Init())

	Transcript("r1.flac", "hello\n  world")

	data, err := os.ReadFile(filepath.Join(tmp, transcriptsFile))
	require.NoError(t, err)
	line := string(data)
	assert.Contains(t, line, "r1.flac\thello world\n")
	// "2006-01-02 15:04:05\t[pid]\tfilename\ttext\n"
	assert.Len(t, strings.Split(strings.TrimSuffix(line, "\n"), "\t"), 4)
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)
	require.NoError(t, Init())
	Close()
	Close()
}
