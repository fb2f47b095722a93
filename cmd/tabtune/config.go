package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the tabtune daemon.
//
// Layering is defaults -> file -> environment -> flags, then Validate. The rest
// of the code can assume a well-formed config.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Speed   SpeedConfig   `yaml:"speed"`
	Boost   BoostConfig   `yaml:"boost"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	Store   StoreConfig   `yaml:"store"`
	IPC     IPCConfig     `yaml:"ipc"`
	HTTP    HTTPConfig    `yaml:"http"`
	Input   InputConfig   `yaml:"input"`
	Local   LocalConfig   `yaml:"local"`
	Logging LoggingConfig `yaml:"logging"`
}

// Browser backends.
const (
	BackendChrome = "chrome"
	BackendLocal  = "local"
)

type BrowserConfig struct {
	Backend    string `yaml:"backend"`     // "chrome" or "local"
	CDPURL     string `yaml:"cdp_url"`     // attach to a running browser; empty launches one
	ChromePath string `yaml:"chrome_path"` // binary used when launching
	Headless   bool   `yaml:"headless"`
	TimeoutMS  int    `yaml:"timeout_ms"` // per page operation
}

type SpeedConfig struct {
	IntervalMS int       `yaml:"interval_ms"` // enforcement cadence
	Presets    []float64 `yaml:"presets"`     // multipliers
	Step       float64   `yaml:"step"`        // positions per nudge
}

type BoostConfig struct {
	MaxGain float64   `yaml:"max_gain"`
	Presets []float64 `yaml:"presets"` // percent
	Step    float64   `yaml:"step"`
}

type DaemonConfig struct {
	UpdateHz int `yaml:"update_hz"`
}

type StoreConfig struct {
	Path string `yaml:"path"` // sqlite file; empty keeps settings in memory
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	Port int `yaml:"port"` // 0 disables the UI listener
}

type InputConfig struct {
	Devices []string `yaml:"devices,omitempty"`

	VelocityWindowMS   int     `yaml:"velocity_window_ms"`
	VelocityMultiplier float64 `yaml:"velocity_multiplier"`
	VelocityThreshold  int     `yaml:"velocity_threshold"`
}

type LocalConfig struct {
	File string `yaml:"file"` // audio file played by the local backend
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Browser: BrowserConfig{
			Backend:   BackendChrome,
			TimeoutMS: int(defaultBrowserTimeout / time.Millisecond),
		},
		Speed: SpeedConfig{
			IntervalMS: int(defaultSpeedEnforceInterval / time.Millisecond),
			Presets:    slices.Clone(defaultSpeedPresets),
			Step:       defaultSpeedStep,
		},
		Boost: BoostConfig{
			MaxGain: defaultMaxGain,
			Presets: slices.Clone(defaultBoostPresets),
			Step:    defaultBoostStep,
		},
		Daemon: DaemonConfig{UpdateHz: defaultUpdateHz},
		IPC:    IPCConfig{SocketPath: defaultIPCSocket},
		HTTP:   HTTPConfig{Port: defaultHTTPPort},
		Input: InputConfig{
			VelocityWindowMS:   defaultRotaryVelocityWindowMS,
			VelocityMultiplier: defaultRotaryVelocityMultiplier,
			VelocityThreshold:  defaultRotaryVelocityThreshold,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the defaults.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// Environment variables consulted by ApplyEnv.
const (
	envBackend    = "TABTUNE_BROWSER"
	envCDPURL     = "TABTUNE_CDP_URL"
	envChromePath = "TABTUNE_CHROME_PATH"
	envHeadless   = "TABTUNE_HEADLESS"
	envMaxGain    = "TABTUNE_MAX_GAIN"
	envStorePath  = "TABTUNE_STORE_PATH"
	envIPCSocket  = "TABTUNE_IPC_SOCKET"
	envHTTPPort   = "TABTUNE_HTTP_PORT"
	envDevices    = "TABTUNE_INPUT_DEVICES" // comma separated
	envLocalFile  = "TABTUNE_LOCAL_FILE"
	envLogLevel   = "TABTUNE_LOG_LEVEL"
)

// EnvLookup resolves TABTUNE_* values. The process environment wins over a
// .env file.
type EnvLookup func(key string) (string, bool)

// NewEnvLookup reads dotenv (if it exists) and returns a lookup over it and
// the process environment.
func NewEnvLookup(dotenv string) (EnvLookup, error) {
	file := map[string]string{}
	if dotenv != "" {
		m, err := godotenv.Read(ExpandPath(dotenv))
		switch {
		case err == nil:
			file = m
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", dotenv, err)
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := file[key]
		return v, ok
	}, nil
}

// ApplyEnv overlays TABTUNE_* values onto cfg.
func (c *Config) ApplyEnv(lookup EnvLookup) error {
	if lookup == nil {
		return nil
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str(envBackend, &c.Browser.Backend)
	str(envCDPURL, &c.Browser.CDPURL)
	str(envChromePath, &c.Browser.ChromePath)
	str(envStorePath, &c.Store.Path)
	str(envIPCSocket, &c.IPC.SocketPath)
	str(envLocalFile, &c.Local.File)
	str(envLogLevel, &c.Logging.Level)

	if v, ok := lookup(envHeadless); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envHeadless, err)
		}
		c.Browser.Headless = b
	}
	if v, ok := lookup(envMaxGain); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", envMaxGain, err)
		}
		c.Boost.MaxGain = f
	}
	if v, ok := lookup(envHTTPPort); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envHTTPPort, err)
		}
		c.HTTP.Port = n
	}
	if v, ok := lookup(envDevices); ok {
		c.Input.Devices = nil
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				c.Input.Devices = append(c.Input.Devices, d)
			}
		}
	}
	return nil
}

// FlagOverrides applies overrides from flags on top of a loaded config.
//
// Flags pass pointers; each override is only applied when non-nil, even if it
// holds a zero value. main.go decides which flags exist.
type FlagOverrides struct {
	Backend    *string
	CDPURL     *string
	ChromePath *string
	Headless   *bool

	MaxGain *float64

	StorePath     *string
	IPCSocketPath *string
	HTTPPort      *int
	InputDevice   *string
	LocalFile     *string

	LogLevel *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Backend != nil {
		cfg.Browser.Backend = *o.Backend
	}
	if o.CDPURL != nil {
		cfg.Browser.CDPURL = *o.CDPURL
	}
	if o.ChromePath != nil {
		cfg.Browser.ChromePath = *o.ChromePath
	}
	if o.Headless != nil {
		cfg.Browser.Headless = *o.Headless
	}
	if o.MaxGain != nil {
		cfg.Boost.MaxGain = *o.MaxGain
	}
	if o.StorePath != nil {
		cfg.Store.Path = *o.StorePath
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPPort != nil {
		cfg.HTTP.Port = *o.HTTPPort
	}
	if o.InputDevice != nil {
		cfg.Input.Devices = []string{*o.InputDevice}
	}
	if o.LocalFile != nil {
		cfg.Local.File = *o.LocalFile
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults + file + env + overrides are applied.
func (c *Config) Validate() error {
	switch c.Browser.Backend {
	case BackendChrome:
	case BackendLocal:
		if c.Local.File == "" {
			return errors.New("browser.backend is \"local\" but local.file is empty")
		}
	default:
		return fmt.Errorf("browser.backend must be %q or %q", BackendChrome, BackendLocal)
	}
	if c.Browser.TimeoutMS <= 0 {
		return errors.New("browser.timeout_ms must be > 0")
	}

	if c.Speed.IntervalMS <= 0 {
		return errors.New("speed.interval_ms must be > 0")
	}
	if c.Speed.Step <= 0 {
		return errors.New("speed.step must be > 0")
	}
	for i, p := range c.Speed.Presets {
		if !(p > 0) || math.IsInf(p, 0) {
			return fmt.Errorf("speed.presets[%d] must be a positive number", i)
		}
	}

	if !(c.Boost.MaxGain >= 1) || math.IsInf(c.Boost.MaxGain, 0) {
		return errors.New("boost.max_gain must be a finite number >= 1")
	}
	if c.Boost.Step <= 0 {
		return errors.New("boost.step must be > 0")
	}
	for i, p := range c.Boost.Presets {
		if !(p >= 0) || math.IsInf(p, 0) {
			return fmt.Errorf("boost.presets[%d] must be >= 0", i)
		}
	}

	if c.Daemon.UpdateHz <= 0 || c.Daemon.UpdateHz > 1000 {
		return errors.New("daemon.update_hz must be between 1 and 1000")
	}
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 0 and 65535")
	}

	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}
	if c.Input.VelocityWindowMS < 0 {
		return errors.New("input.velocity_window_ms must be >= 0")
	}
	if c.Input.VelocityMultiplier < 1 {
		return errors.New("input.velocity_multiplier must be >= 1")
	}
	if c.Input.VelocityThreshold < 0 {
		return errors.New("input.velocity_threshold must be >= 0")
	}

	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// ToReducerConfig converts the file config into the reducer's policy.
func (c *Config) ToReducerConfig() ReducerConfig {
	cfg := DefaultReducerConfig()
	cfg.SpeedStep = c.Speed.Step
	cfg.BoostStep = c.Boost.Step
	cfg.SpeedPresets = slices.Clone(c.Speed.Presets)
	cfg.BoostPresets = slices.Clone(c.Boost.Presets)
	cfg.Rotary = RotaryConfig{
		VelocityWindowMS:   c.Input.VelocityWindowMS,
		VelocityThreshold:  c.Input.VelocityThreshold,
		VelocityMultiplier: c.Input.VelocityMultiplier,
	}
	cfg.MaxGain = c.Boost.MaxGain
	return cfg
}

func (c *Config) browserTimeout() time.Duration {
	return time.Duration(c.Browser.TimeoutMS) * time.Millisecond
}

func (c *Config) speedInterval() time.Duration {
	return time.Duration(c.Speed.IntervalMS) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
