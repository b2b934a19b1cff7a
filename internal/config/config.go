package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Sink types
const (
	SinkRGBD    = "rgbd"
	SinkMQTT    = "mqtt"
	SinkRedis   = "redis"
	SinkSPI     = "spi"
	SinkConsole = "console"
)

// Config represents the application configuration
type Config struct {
	Hue             HueConfig         `yaml:"hue"`
	Strip           StripConfig       `yaml:"strip"`
	Sink            SinkConfig        `yaml:"sink"`
	History         HistoryConfig     `yaml:"history"`
	Log             LogConfig         `yaml:"log"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// HueConfig contains Hue bridge connection and polling settings
type HueConfig struct {
	Bridge    string   `yaml:"bridge"`
	Token     string   `yaml:"token"`
	TokenFile string   `yaml:"token_file"` // Read when token is empty, e.g. ~/.hue_username
	Timeout   Duration `yaml:"timeout"`    // Per-poll request timeout

	LeftLight    int      `yaml:"left_light"`
	RightLight   int      `yaml:"right_light"`
	PollDelay    Duration `yaml:"poll_delay"`     // Wait after each poll completes (default: 500ms)
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // Upper bound on bridge requests per second (default: 10)
}

// StripConfig describes the LED strip and the smoothing filter
type StripConfig struct {
	ID          int     `yaml:"id"`
	Name        string  `yaml:"name"`
	Pixels      int     `yaml:"pixels"`
	FPS         int     `yaml:"fps"`
	DecayBase   float64 `yaml:"decay_base"`    // Per-millisecond retention, in (0,1)
	FadeDepth   float64 `yaml:"fade_depth"`    // Brightness fade depth, 1 = black at brightness 0
	BlankOnExit *bool   `yaml:"blank_on_exit"` // Emit a black frame on shutdown (default: true)
}

// SinkConfig selects and configures frame sinks
type SinkConfig struct {
	Types   []string      `yaml:"types"`
	RGBD    RGBDConfig    `yaml:"rgbd"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Redis   RedisConfig   `yaml:"redis"`
	SPI     SPIConfig     `yaml:"spi"`
	Console ConsoleConfig `yaml:"console"`
}

// RGBDConfig contains the rgbd socket.io server settings
type RGBDConfig struct {
	URL             string   `yaml:"url"`
	EngineIO        int      `yaml:"engine_io"` // Engine.IO protocol revision, 3 or 4 (default: 4)
	MinRetryBackoff Duration `yaml:"min_retry_backoff"`
	MaxRetryBackoff Duration `yaml:"max_retry_backoff"`
	RetryMultiplier float64  `yaml:"retry_multiplier"`
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Retained bool   `yaml:"retained"`
}

// RedisConfig contains Redis pub/sub settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// SPIConfig contains settings for driving a WS281x strip over SPI
type SPIConfig struct {
	Port    string `yaml:"port"` // Empty selects the first available port
	FreqKHz int    `yaml:"freq_khz"`
}

// ConsoleConfig contains settings for the terminal preview
type ConsoleConfig struct {
	FPS int `yaml:"fps"` // Preview refresh cap, the terminal cannot keep up with the strip
}

// HistoryConfig contains settings for the SQLite colour history
type HistoryConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Path            string   `yaml:"path"`
	RetentionDays   int      `yaml:"retention_days"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// GetLevel returns the log level
func (c *LogConfig) GetLevel() string {
	return c.Level
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// GetHost returns the bind host
func (c *HealthcheckConfig) GetHost() string {
	return c.Host
}

// GetPort returns the bind port
func (c *HealthcheckConfig) GetPort() int {
	return c.Port
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 2)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 2
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// GetShutdownTimeout returns the shutdown timeout
func (c *Config) GetShutdownTimeout() time.Duration {
	return c.ShutdownTimeout.Duration()
}

// ShouldBlankOnExit reports whether a black frame is sent on shutdown
func (c *StripConfig) ShouldBlankOnExit() bool {
	return c.BlankOnExit == nil || *c.BlankOnExit
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, expands environment variables,
// applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.resolveToken(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Hue defaults
	if cfg.Hue.Timeout == 0 {
		cfg.Hue.Timeout = Duration(10 * time.Second)
	}
	if cfg.Hue.LeftLight == 0 {
		cfg.Hue.LeftLight = 2
	}
	if cfg.Hue.RightLight == 0 {
		cfg.Hue.RightLight = 1
	}
	if cfg.Hue.PollDelay == 0 {
		cfg.Hue.PollDelay = Duration(500 * time.Millisecond)
	}
	if cfg.Hue.RateLimitRPS == 0 {
		cfg.Hue.RateLimitRPS = 10.0
	}

	// Strip defaults
	if cfg.Strip.Name == "" {
		cfg.Strip.Name = "Hue"
	}
	if cfg.Strip.Pixels == 0 {
		cfg.Strip.Pixels = 89
	}
	if cfg.Strip.FPS == 0 {
		cfg.Strip.FPS = 60
	}
	if cfg.Strip.DecayBase == 0 {
		cfg.Strip.DecayBase = 0.995
	}
	if cfg.Strip.FadeDepth == 0 {
		cfg.Strip.FadeDepth = 1.0
	}

	// Sink defaults
	if len(cfg.Sink.Types) == 0 {
		cfg.Sink.Types = []string{SinkRGBD}
	}
	if cfg.Sink.RGBD.URL == "" {
		cfg.Sink.RGBD.URL = "http://localhost:9009"
	}
	if cfg.Sink.RGBD.EngineIO == 0 {
		cfg.Sink.RGBD.EngineIO = 4
	}
	if cfg.Sink.RGBD.MinRetryBackoff == 0 {
		cfg.Sink.RGBD.MinRetryBackoff = Duration(1 * time.Second)
	}
	if cfg.Sink.RGBD.MaxRetryBackoff == 0 {
		cfg.Sink.RGBD.MaxRetryBackoff = Duration(30 * time.Second)
	}
	if cfg.Sink.RGBD.RetryMultiplier == 0 {
		cfg.Sink.RGBD.RetryMultiplier = 2.0
	}
	if cfg.Sink.MQTT.Broker == "" {
		cfg.Sink.MQTT.Broker = "tcp://localhost:1883"
	}
	if cfg.Sink.MQTT.Topic == "" {
		cfg.Sink.MQTT.Topic = "huestrip/frame"
	}
	if cfg.Sink.Redis.Addr == "" {
		cfg.Sink.Redis.Addr = "localhost:6379"
	}
	if cfg.Sink.Redis.Channel == "" {
		cfg.Sink.Redis.Channel = "huestrip:frame"
	}
	if cfg.Sink.SPI.FreqKHz == 0 {
		cfg.Sink.SPI.FreqKHz = 2500
	}
	if cfg.Sink.Console.FPS == 0 {
		cfg.Sink.Console.FPS = 10
	}

	// History defaults
	if cfg.History.Path == "" {
		cfg.History.Path = "./huestrip.sqlite"
	}
	if cfg.History.RetentionDays == 0 {
		cfg.History.RetentionDays = 7
	}
	if cfg.History.CleanupInterval == 0 {
		cfg.History.CleanupInterval = Duration(1 * time.Hour)
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// resolveToken reads the bridge token from token_file when it is not set inline
func (cfg *Config) resolveToken() error {
	if cfg.Hue.Token != "" || cfg.Hue.TokenFile == "" {
		return nil
	}

	path := cfg.Hue.TokenFile
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read hue token file: %w", err)
	}
	cfg.Hue.Token = strings.TrimSpace(string(data))
	return nil
}

// Validate checks for values the daemon cannot run with
func (cfg *Config) Validate() error {
	var errs []error

	if cfg.Hue.Bridge == "" {
		errs = append(errs, errors.New("hue.bridge is required"))
	}
	if cfg.Hue.Token == "" {
		errs = append(errs, errors.New("hue.token or hue.token_file is required"))
	}
	if cfg.Hue.LeftLight < 0 || cfg.Hue.RightLight < 0 {
		errs = append(errs, errors.New("hue light ids must be positive"))
	}
	if cfg.Hue.RateLimitRPS < 0 {
		errs = append(errs, errors.New("hue.rate_limit_rps must not be negative"))
	}
	if cfg.Strip.Pixels < 0 {
		errs = append(errs, fmt.Errorf("strip.pixels must be positive, got %d", cfg.Strip.Pixels))
	}
	if cfg.Strip.FPS < 0 {
		errs = append(errs, fmt.Errorf("strip.fps must be positive, got %d", cfg.Strip.FPS))
	}
	if cfg.Strip.DecayBase <= 0 || cfg.Strip.DecayBase >= 1 {
		errs = append(errs, fmt.Errorf("strip.decay_base must be in (0,1), got %v", cfg.Strip.DecayBase))
	}
	if cfg.Strip.FadeDepth < 0 {
		errs = append(errs, fmt.Errorf("strip.fade_depth must not be negative, got %v", cfg.Strip.FadeDepth))
	}
	for _, t := range cfg.Sink.Types {
		switch t {
		case SinkRGBD, SinkMQTT, SinkRedis, SinkSPI, SinkConsole:
		default:
			errs = append(errs, fmt.Errorf("unknown sink type %q", t))
		}
	}
	if v := cfg.Sink.RGBD.EngineIO; v != 3 && v != 4 {
		errs = append(errs, fmt.Errorf("sink.rgbd.engine_io must be 3 or 4, got %d", v))
	}

	return errors.Join(errs...)
}

// HasSink reports whether a sink type is enabled
func (cfg *Config) HasSink(name string) bool {
	for _, t := range cfg.Sink.Types {
		if t == name {
			return true
		}
	}
	return false
}

// Dump returns the effective configuration as YAML with the token masked
func (cfg *Config) Dump() ([]byte, error) {
	masked := *cfg
	if masked.Hue.Token != "" {
		masked.Hue.Token = "***"
	}
	if masked.Sink.MQTT.Password != "" {
		masked.Sink.MQTT.Password = "***"
	}
	if masked.Sink.Redis.Password != "" {
		masked.Sink.Redis.Password = "***"
	}
	return yaml.Marshal(&masked)
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
