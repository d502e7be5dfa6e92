package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "THOUGHTCAP"
	configFileName = "config.toml"
)

type Config struct {
	API    APIConfig    `mapstructure:"api"`
	Poll   PollConfig   `mapstructure:"poll"`
	Audio  AudioConfig  `mapstructure:"audio"`
	Events EventsConfig `mapstructure:"events"`
	Level  LevelConfig  `mapstructure:"level"`
	Log    LogConfig    `mapstructure:"log"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PollConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type AudioConfig struct {
	Device     string `mapstructure:"device"`
	SampleRate int    `mapstructure:"sample_rate"`
	// Cues plays a sound when recording starts or stops.
	Cues bool `mapstructure:"cues"`
}

type EventsConfig struct {
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

type LevelConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type LogConfig struct {
	Path  string `mapstructure:"path"`
	Level string `mapstructure:"level"`
}

// flagKeys maps command line flag names to config keys.
var flagKeys = map[string]string{
	"api-url":       "api.base_url",
	"timeout":       "api.timeout",
	"poll-interval": "poll.interval",
	"poll-attempts": "poll.max_attempts",
	"device":        "audio.device",
	"sample-rate":   "audio.sample_rate",
	"cues":          "audio.cues",
	"events-addr":   "events.addr",
	"events":        "events.enabled",
	"logpath":       "log.path",
	"log-level":     "log.level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout", 30*time.Second)

	v.SetDefault("poll.interval", time.Second)
	v.SetDefault("poll.max_attempts", 30)

	v.SetDefault("audio.device", "")
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.cues", true)

	v.SetDefault("events.addr", "127.0.0.1:8765")
	v.SetDefault("events.enabled", true)

	v.SetDefault("level.interval", 100*time.Millisecond)

	v.SetDefault("log.path", "")
	v.SetDefault("log.level", "info")
}

// DefaultFile is $XDG_CONFIG_HOME/thoughtcap/config.toml or the OS
// equivalent.
func DefaultFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "thoughtcap", configFileName)
}

type LoadOptions struct {
	// File overrides DefaultFile. An explicit file must exist.
	File string
	// EnvFile is loaded into the process environment when present.
	// Variables already set are not overridden.
	EnvFile string
	Flags   *pflag.FlagSet
}

// Load layers defaults, the config file, the .env file, THOUGHTCAP_*
// environment variables and changed flags, in increasing priority.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", opts.EnvFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file := opts.File
	explicit := file != ""
	if !explicit {
		file = DefaultFile()
	}
	var used string
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("toml")
		err := v.ReadInConfig()
		switch {
		case err == nil:
			used = file
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = used

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url: %q is not an http(s) URL", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive, got %s", c.Poll.Interval)
	}
	if c.Poll.MaxAttempts <= 0 {
		return fmt.Errorf("poll.max_attempts must be positive, got %d", c.Poll.MaxAttempts)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Level.Interval <= 0 {
		return fmt.Errorf("level.interval must be positive, got %s", c.Level.Interval)
	}
	if c.Events.Enabled && c.Events.Addr == "" {
		return errors.New("events.addr is required when events are enabled")
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	return nil
}

// RegisterFlags declares every flag Load knows how to bind.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "config file (default "+DefaultFile()+")")
	flags.String("api-url", "", "transcription backend base URL")
	flags.Duration("timeout", 0, "HTTP request timeout")
	flags.Duration("poll-interval", 0, "delay between transcript polls")
	flags.Int("poll-attempts", 0, "transcript polls before giving up")
	flags.String("device", "", "capture device name")
	flags.Int("sample-rate", 0, "capture sample rate in Hz")
	flags.Bool("cues", true, "play a sound when recording starts and stops")
	flags.String("events-addr", "", "event hub listen address")
	flags.Bool("events", true, "serve the event hub")
	flags.String("logpath", "", "log directory")
	flags.String("log-level", "", "diagnostics log level")
}
