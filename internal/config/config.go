package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Camera types accepted in CAMERA_TYPE / feed.camera_type. Matching is case-sensitive.
const (
	CameraHTTP = "HTTP"
	CameraRTSP = "RTSP"
)

// Error is returned for any malformed or missing startup configuration.
// It is always fatal: main aborts before the first cycle runs.
type Error struct {
	Field  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// FeedConfig describes the camera feed.
// CameraType selects a concrete frame source ("HTTP" or "RTSP").
type FeedConfig struct {
	URL        string `yaml:"url"`         // FEED_URL
	Name       string `yaml:"name"`        // FEED_NAME, metric label; defaults to URL
	CameraType string `yaml:"camera_type"` // CAMERA_TYPE
}

// OutputConfig describes where snapshots are written.
type OutputConfig struct {
	Folder string `yaml:"folder"` // OUTPUT_FOLDER, must already exist
}

// ScheduleConfig controls the acquisition loop.
type ScheduleConfig struct {
	SleepSecs          int  `yaml:"sleep_secs"`           // SLEEP_SECS, delay between cycles
	CaptureTimeoutSecs *int `yaml:"capture_timeout_secs"` // CAPTURE_TIMEOUT_SECS, 0 = no timeout
	MaxCycles          int  `yaml:"max_cycles"`           // MAX_CYCLES, 0 = run forever
}

// RTSPConfig configures the external single-frame extraction tool.
type RTSPConfig struct {
	Command   string `yaml:"command"`   // FFMPEG_BIN
	Transport string `yaml:"transport"` // RTSP_TRANSPORT
}

// MetricsConfig configures the Prometheus/status HTTP listener.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // METRICS_ADDR
}

// IndicatorConfig describes the optional capture LED.
type IndicatorConfig struct {
	Pin     int `yaml:"pin"`      // INDICATOR_PIN (BCM). 0 = disabled.
	PulseMs int `yaml:"pulse_ms"` // how long the LED stays on per snapshot
}

// DefaultsConfig contains generic runtime parameters.
type DefaultsConfig struct {
	DebugLevel *int  `yaml:"debug_level"` // DEBUG_LEVEL 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   *bool `yaml:"mock_gpio"`   // MOCK_GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Feed      FeedConfig      `yaml:"feed"`
	Output    OutputConfig    `yaml:"output"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	RTSP      RTSPConfig      `yaml:"rtsp"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Load reads the optional YAML file at path, overlays the process environment
// and returns a validated configuration. An empty path means env only.
func Load(path string) (*Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with an explicit environment lookup.
func LoadWith(path string, lookup LookupFunc) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &Error{Field: "file", Reason: "read config file", Err: err}
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, &Error{Field: "file", Reason: "unmarshal yaml", Err: err}
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays environment variables. Env always wins over the file.
func (c *Config) applyEnv(lookup LookupFunc) error {
	if lookup == nil {
		return nil
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return &Error{Field: key, Reason: "must be a valid number", Err: err}
		}
		*dst = n
		return nil
	}

	str("FEED_URL", &c.Feed.URL)
	str("FEED_NAME", &c.Feed.Name)
	str("CAMERA_TYPE", &c.Feed.CameraType)
	str("OUTPUT_FOLDER", &c.Output.Folder)
	str("FFMPEG_BIN", &c.RTSP.Command)
	str("RTSP_TRANSPORT", &c.RTSP.Transport)
	str("METRICS_ADDR", &c.Metrics.Addr)

	if err := num("SLEEP_SECS", &c.Schedule.SleepSecs); err != nil {
		return err
	}
	if err := num("MAX_CYCLES", &c.Schedule.MaxCycles); err != nil {
		return err
	}
	if err := num("INDICATOR_PIN", &c.Indicator.Pin); err != nil {
		return err
	}

	if _, ok := lookup("CAPTURE_TIMEOUT_SECS"); ok {
		var n int
		if err := num("CAPTURE_TIMEOUT_SECS", &n); err != nil {
			return err
		}
		c.Schedule.CaptureTimeoutSecs = &n
	}
	if _, ok := lookup("DEBUG_LEVEL"); ok {
		var n int
		if err := num("DEBUG_LEVEL", &n); err != nil {
			return err
		}
		c.Defaults.DebugLevel = &n
	}
	if v, ok := lookup("MOCK_GPIO"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &Error{Field: "MOCK_GPIO", Reason: "must be true or false", Err: err}
		}
		c.Defaults.MockGPIO = &b
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Feed.Name == "" {
		c.Feed.Name = c.Feed.URL
	}
	if c.Schedule.SleepSecs == 0 {
		c.Schedule.SleepSecs = 900 // 15 minutes
	}
	if c.Schedule.CaptureTimeoutSecs == nil {
		n := 60
		c.Schedule.CaptureTimeoutSecs = &n
	}
	if c.RTSP.Command == "" {
		c.RTSP.Command = "ffmpeg"
	}
	if c.RTSP.Transport == "" {
		c.RTSP.Transport = "tcp"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Indicator.PulseMs <= 0 {
		c.Indicator.PulseMs = 150
	}
	if c.Defaults.DebugLevel == nil {
		n := 1
		c.Defaults.DebugLevel = &n
	}
	if c.Defaults.MockGPIO == nil {
		b := true
		c.Defaults.MockGPIO = &b
	}
}

// Validate checks configuration correctness. It does not mutate c.
func (c *Config) Validate() error {
	if c.Feed.URL == "" {
		return &Error{Field: "FEED_URL", Reason: "is required"}
	}
	if c.Output.Folder == "" {
		return &Error{Field: "OUTPUT_FOLDER", Reason: "is required"}
	}

	if c.Feed.CameraType == "" {
		return &Error{Field: "CAMERA_TYPE", Reason: "is required"}
	}

	var schemes []string
	switch c.Feed.CameraType {
	case CameraHTTP:
		schemes = []string{"http", "https"}
	case CameraRTSP:
		schemes = []string{"rtsp", "rtsps"}
	default:
		return &Error{
			Field:  "CAMERA_TYPE",
			Reason: fmt.Sprintf("unsupported camera type %q (want %q or %q)", c.Feed.CameraType, CameraHTTP, CameraRTSP),
		}
	}

	u, err := url.Parse(c.Feed.URL)
	if err != nil {
		return &Error{Field: "FEED_URL", Reason: "not a valid URL", Err: err}
	}
	if !contains(schemes, u.Scheme) || u.Host == "" {
		return &Error{
			Field:  "FEED_URL",
			Reason: fmt.Sprintf("%s camera needs a %v URL with a host, got %q", c.Feed.CameraType, schemes, c.Feed.URL),
		}
	}

	if c.Schedule.SleepSecs < 0 {
		return &Error{Field: "SLEEP_SECS", Reason: fmt.Sprintf("must be > 0, got %d", c.Schedule.SleepSecs)}
	}
	if c.Schedule.CaptureTimeoutSecs != nil && *c.Schedule.CaptureTimeoutSecs < 0 {
		return &Error{Field: "CAPTURE_TIMEOUT_SECS", Reason: fmt.Sprintf("must be >= 0, got %d", *c.Schedule.CaptureTimeoutSecs)}
	}
	if c.Schedule.MaxCycles < 0 {
		return &Error{Field: "MAX_CYCLES", Reason: fmt.Sprintf("must be >= 0, got %d", c.Schedule.MaxCycles)}
	}
	if c.Feed.CameraType == CameraRTSP && !contains([]string{"tcp", "udp", "udp_multicast", "http", "https"}, c.RTSP.Transport) {
		return &Error{Field: "RTSP_TRANSPORT", Reason: fmt.Sprintf("unsupported transport %q", c.RTSP.Transport)}
	}
	if c.Indicator.Pin < 0 || c.Indicator.Pin > 27 {
		return &Error{Field: "INDICATOR_PIN", Reason: fmt.Sprintf("must be a BCM pin between 0 and 27, got %d", c.Indicator.Pin)}
	}
	if c.Defaults.DebugLevel != nil && (*c.Defaults.DebugLevel < 0 || *c.Defaults.DebugLevel > 4) {
		return &Error{Field: "DEBUG_LEVEL", Reason: fmt.Sprintf("must be between 0 and 4, got %d", *c.Defaults.DebugLevel)}
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Sleep returns the delay between the end of one cycle and the start of the next.
func (c *Config) Sleep() time.Duration {
	return time.Duration(c.Schedule.SleepSecs) * time.Second
}

// CaptureTimeout returns the per-attempt timeout. Zero means no timeout.
func (c *Config) CaptureTimeout() time.Duration {
	if c.Schedule.CaptureTimeoutSecs == nil {
		return 0
	}
	return time.Duration(*c.Schedule.CaptureTimeoutSecs) * time.Second
}

// FeedLabel returns the value used for the feed metric label.
func (c *Config) FeedLabel() string {
	if c.Feed.Name != "" {
		return c.Feed.Name
	}
	return c.Feed.URL
}

// IndicatorPulse returns how long the capture LED stays lit.
func (c *Config) IndicatorPulse() time.Duration {
	return time.Duration(c.Indicator.PulseMs) * time.Millisecond
}

// DebugLevel returns the configured debug level.
func (c *Config) DebugLevel() int {
	if c.Defaults.DebugLevel == nil {
		return 1
	}
	return *c.Defaults.DebugLevel
}

// MockGPIO reports whether the mock GPIO driver should be used.
func (c *Config) MockGPIO() bool {
	if c.Defaults.MockGPIO == nil {
		return true
	}
	return *c.Defaults.MockGPIO
}
