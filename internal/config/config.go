package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig         `yaml:"log"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	Streaming       StreamingConfig   `yaml:"streaming"`
	OpenSSL         OpenSSLConfig     `yaml:"openssl"`
	Yeelight        YeelightConfig    `yaml:"yeelight"`
	Lifx            LifxConfig        `yaml:"lifx"`
	MQTT            MQTTConfig        `yaml:"mqtt"`
	HomeAssistant   HassConfig        `yaml:"homeassistant"`
	Hue             HueConfig         `yaml:"hue"`
	Profile         ProfileConfig     `yaml:"profile"`
	UUIDMappingPath string            `yaml:"uuid_mapping_path"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"`
}

// Default top-level values
const (
	DefaultUUIDMappingPath = "./uuid_mappings.json"
	DefaultShutdownTimeout = 5 * time.Second
)

// GetUUIDMappingPath returns the UUID mapping file path with default
func (c *Config) GetUUIDMappingPath() string {
	if c.UUIDMappingPath == "" {
		return DefaultUUIDMappingPath
	}
	return c.UUIDMappingPath
}

// GetShutdownTimeout returns the shutdown timeout with default
func (c *Config) GetShutdownTimeout() time.Duration {
	if c.ShutdownTimeout == 0 {
		return DefaultShutdownTimeout
	}
	return c.ShutdownTimeout.Duration()
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"use_json"` // If true, use JSON output; if false (default), use text output
	Colors  bool   `yaml:"colors"`   // If true, colorize text output (ignored when use_json is true)
}

// GetLevel returns the configured log level. An empty value means "derive
// from the resource profile" at startup.
func (c *LogConfig) GetLevel() string {
	return c.Level
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Default healthcheck values
const (
	DefaultHealthcheckHost = "0.0.0.0"
	DefaultHealthcheckPort = 9090
)

// GetHost returns the host with default
func (c *HealthcheckConfig) GetHost() string {
	if c.Host == "" {
		return DefaultHealthcheckHost
	}
	return c.Host
}

// GetPort returns the port with default
func (c *HealthcheckConfig) GetPort() int {
	if c.Port == 0 {
		return DefaultHealthcheckPort
	}
	return c.Port
}

// StreamingConfig contains entertainment streaming settings
type StreamingConfig struct {
	MirrorHost string `yaml:"mirror_host"`
	MirrorPort int    `yaml:"mirror_port"`
}

// Default streaming values
const (
	DefaultMirrorHost = "127.0.0.1"
	DefaultMirrorPort = 2101
)

// GetMirrorHost returns the mirror host with default
func (c *StreamingConfig) GetMirrorHost() string {
	if c.MirrorHost == "" {
		return DefaultMirrorHost
	}
	return c.MirrorHost
}

// GetMirrorPort returns the mirror port with default
func (c *StreamingConfig) GetMirrorPort() int {
	if c.MirrorPort == 0 {
		return DefaultMirrorPort
	}
	return c.MirrorPort
}

// OpenSSLConfig names an external DTLS toolchain binary. The value is
// loaded from the config file but not read anywhere: the DTLS server and the
// splitter's upstream clients always use the built-in pion implementation.
type OpenSSLConfig struct {
	Bin string `yaml:"bin"`
}

// YeelightConfig contains yeelight settings
type YeelightConfig struct {
	Music YeelightMusicConfig `yaml:"music"`
}

// YeelightMusicConfig tunes the yeelight music-mode emitter
type YeelightMusicConfig struct {
	MaxFPS       int     `yaml:"max_fps"`
	SmoothMs     int     `yaml:"smooth_ms"`
	CieTolerance float64 `yaml:"cie_tolerance"`
	BriTolerance int     `yaml:"bri_tolerance"`
	HostIP       string  `yaml:"host_ip"`
	Port         int     `yaml:"port"`
	Require      bool    `yaml:"require"`
}

// Default yeelight music values
const (
	DefaultYeelightMaxFPS   = 60
	MinYeelightMaxFPS       = 10
	DefaultYeelightSmoothMs = 20
	DefaultYeelightPort     = 59000
)

// GetMaxFPS returns the music mode FPS cap with default and floor
func (c *YeelightMusicConfig) GetMaxFPS() int {
	if c.MaxFPS == 0 {
		return DefaultYeelightMaxFPS
	}
	if c.MaxFPS < MinYeelightMaxFPS {
		return MinYeelightMaxFPS
	}
	return c.MaxFPS
}

// GetSmoothMs returns the smooth transition duration with default
func (c *YeelightMusicConfig) GetSmoothMs() int {
	if c.SmoothMs == 0 {
		return DefaultYeelightSmoothMs
	}
	if c.SmoothMs < 0 {
		return 0
	}
	return c.SmoothMs
}

// GetPort returns the shared music server port with default
func (c *YeelightMusicConfig) GetPort() int {
	if c.Port == 0 {
		return DefaultYeelightPort
	}
	return c.Port
}

// LifxConfig tunes the LIFX emitter
type LifxConfig struct {
	MaxFPS int `yaml:"max_fps"`
}

// Default LIFX values
const (
	DefaultLifxMaxFPS = 120
	MinLifxMaxFPS     = 30
)

// GetMaxFPS returns the LIFX FPS cap with default and floor
func (c *LifxConfig) GetMaxFPS() int {
	if c.MaxFPS == 0 {
		return DefaultLifxMaxFPS
	}
	if c.MaxFPS < MinLifxMaxFPS {
		return MinLifxMaxFPS
	}
	return c.MaxFPS
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Default MQTT values
const DefaultMQTTPort = 1883

// GetPort returns the broker port with default
func (c *MQTTConfig) GetPort() int {
	if c.Port == 0 {
		return DefaultMQTTPort
	}
	return c.Port
}

// HassConfig contains Home Assistant websocket settings
type HassConfig struct {
	URL     string   `yaml:"url"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout"`
}

// Default Home Assistant values
const DefaultHassTimeout = 5 * time.Second

// GetTimeout returns the websocket timeout with default
func (c *HassConfig) GetTimeout() time.Duration {
	if c.Timeout == 0 {
		return DefaultHassTimeout
	}
	return c.Timeout.Duration()
}

// HueConfig contains upstream Hue bridge connection settings
type HueConfig struct {
	IP        string   `yaml:"ip"`
	User      string   `yaml:"user"`
	ClientKey string   `yaml:"client_key"`
	Key       string   `yaml:"key"`
	Timeout   Duration `yaml:"timeout"`
}

// Default upstream Hue values
const DefaultHueTimeout = 3 * time.Second

// GetTimeout returns the upstream HTTP timeout with default
func (c *HueConfig) GetTimeout() time.Duration {
	if c.Timeout == 0 {
		return DefaultHueTimeout
	}
	return c.Timeout.Duration()
}

// GetPSK returns the entertainment PSK for the upstream bridge. Some
// installations store it as client_key, some as key, some reuse the user.
func (c *HueConfig) GetPSK() string {
	if c.ClientKey != "" {
		return c.ClientKey
	}
	if c.Key != "" {
		return c.Key
	}
	return c.User
}

// ProfileConfig overrides resource-profile derived tunables
type ProfileConfig struct {
	MaxWorkers   int     `yaml:"max_workers"`
	CieTolerance float64 `yaml:"cie_tolerance"`
	BriTolerance int     `yaml:"bri_tolerance"`
	TargetFPS    int     `yaml:"target_fps"`
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

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
// Note: Defaults are handled by accessor methods (Get* functions), not here.
// This keeps defaults centralized in one place per config type.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
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

// ExpandEnvString expands a single string with environment variables
func ExpandEnvString(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return expandEnvVars(s)
	}
	return s
}
