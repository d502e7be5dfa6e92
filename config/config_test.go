package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the default config location at an empty temp dir and
// clears THOUGHTCAP_* variables for the duration of the test.
func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("XDG_CONFIG_HOME", tmp)
	for _, key := range []string{"API_BASE_URL", "API_TIMEOUT", "POLL_INTERVAL", "POLL_MAX_ATTEMPTS", "AUDIO_DEVICE", "AUDIO_CUES", "EVENTS_ADDR", "EVENTS_ENABLED", "LOG_LEVEL"} {
		unsetenv(t, EnvPrefix+"_"+key)
	}
	return tmp
}

// unsetenv removes key and restores it after the test.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, time.Second, cfg.Poll.Interval)
	assert.Equal(t, 30, cfg.Poll.MaxAttempts)
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.True(t, cfg.Events.Enabled)
	assert.True(t, cfg.Audio.Cues)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.File)
}

func TestLayering(t *testing.T) {
	tmp := isolate(t)

	file := writeFile(t, tmp, "custom.toml", `
[api]
base_url = "http://file:9000/"
timeout = "5s"

[poll]
interval = "2s"
max_attempts = 10

[audio]
device = "from-file"
`)
	envFile := writeFile(t, tmp, ".env", "THOUGHTCAP_POLL_MAX_ATTEMPTS=12\nTHOUGHTCAP_AUDIO_DEVICE=from-dotenv\n")
	t.Setenv("THOUGHTCAP_AUDIO_DEVICE", "from-env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse([]string{"--poll-interval", "250ms"}))

	cfg, err := Load(LoadOptions{File: file, EnvFile: envFile, Flags: flags})
	require.NoError(t, err)

	assert.Equal(t, file, cfg.File)
	assert.Equal(t, "http://file:9000", cfg.API.BaseURL, "trailing slash trimmed")
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, 12, cfg.Poll.MaxAttempts, ".env beats the config file")
	assert.Equal(t, "from-env", cfg.Audio.Device, "environment beats .env")
	assert.Equal(t, 250*time.Millisecond, cfg.Poll.Interval, "flags beat everything")
	assert.True(t, cfg.Events.Enabled, "unchanged flags keep lower layers")
}

func TestDefaultFileIsRead(t *testing.T) {
	tmp := isolate(t)
	path := DefaultFile()
	require.NotEmpty(t, path)
	rel, err := filepath.Rel(tmp, path)
	require.NoError(t, err)
	writeFile(t, tmp, rel, "[events]\nenabled = false\n")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)
	assert.False(t, cfg.Events.Enabled)
}

func TestExplicitFileMustExist(t *testing.T) {
	tmp := isolate(t)
	_, err := Load(LoadOptions{File: filepath.Join(tmp, "missing.toml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.toml")
}

func TestMissingEnvFileIgnored(t *testing.T) {
	tmp := isolate(t)
	_, err := Load(LoadOptions{EnvFile: filepath.Join(tmp, ".env")})
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	isolate(t)

	cases := map[string]string{
		"THOUGHTCAP_API_BASE_URL":      "localhost:8000",
		"THOUGHTCAP_POLL_MAX_ATTEMPTS": "0",
		"THOUGHTCAP_API_TIMEOUT":       "-1s",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load(LoadOptions{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}
