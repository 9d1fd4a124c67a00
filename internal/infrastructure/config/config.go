package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/knx-monitor/internal/telegram"
)

// Transport names accepted by target.transport.
const (
	TransportTunnel = "tunnel"
	TransportKNXD   = "knxd"
)

// Access-port log levels accepted by log_level.
const (
	LogLevelFatal       = "fatal"
	LogLevelInformation = "information"
)

// Config is the root configuration structure for the KNX monitor.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Target       TargetConfig       `yaml:"target"`
	GroupAddress string             `yaml:"group_address"`
	PacketTrace  bool               `yaml:"packet_trace"`
	LogLevel     string             `yaml:"log_level"`
	StartupWrite StartupWriteConfig `yaml:"startup_write"`
	Logging      LoggingConfig      `yaml:"logging"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Database     DatabaseConfig     `yaml:"database"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Forward      ForwardConfig      `yaml:"forward"`
}

// TargetConfig identifies the KNX IP gateway.
type TargetConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`

	// Transport is "tunnel" (KNXnet/IP tunneling) or "knxd".
	Transport string `yaml:"transport"`

	// ConnectTimeout is the open timeout in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`

	// KNXDURL overrides the knxd endpoint, e.g. "unix:///run/knxd".
	// When empty, address:port is used over TCP.
	KNXDURL string `yaml:"knxd_url"`
}

// StartupWriteConfig configures the group write sent once after open.
type StartupWriteConfig struct {
	Enabled bool `yaml:"enabled"`

	// Payload is hex encoded, e.g. "01" or "0c66".
	Payload string `yaml:"payload"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DatabaseConfig contains SQLite database settings for the address recorder.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// ForwardConfig controls the queue in front of the telegram sinks.
type ForwardConfig struct {
	QueueSize int `yaml:"queue_size"`

	// Datapoints maps group addresses to datapoint types ("1/2/3": "9.001")
	// so forwarded telegrams carry a decoded value.
	Datapoints map[string]string `yaml:"datapoints"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: KNXMONITOR_SECTION_KEY
// For example: KNXMONITOR_TARGET_ADDRESS, KNXMONITOR_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			Address:        "192.168.1.47",
			Port:           3671,
			Transport:      TransportTunnel,
			ConnectTimeout: 10,
		},
		GroupAddress: "1/1/1",
		LogLevel:     LogLevelInformation,
		StartupWrite: StartupWriteConfig{
			Payload: "01",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:         1,
			TopicPrefix: "knx",
		},
		Database: DatabaseConfig{
			Path:        "./data/knxmonitor.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "knx",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Forward: ForwardConfig{
			QueueSize: 256,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: KNXMONITOR_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not an integer", name, v))
				return
			}
			*dst = n
		}
	}
	setBool := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not a boolean", name, v))
				return
			}
			*dst = b
		}
	}

	// Target
	setString("KNXMONITOR_TARGET_ADDRESS", &cfg.Target.Address)
	setInt("KNXMONITOR_TARGET_PORT", &cfg.Target.Port)
	setString("KNXMONITOR_TARGET_TRANSPORT", &cfg.Target.Transport)
	setString("KNXMONITOR_KNXD_URL", &cfg.Target.KNXDURL)
	setString("KNXMONITOR_GROUP_ADDRESS", &cfg.GroupAddress)
	setBool("KNXMONITOR_PACKET_TRACE", &cfg.PacketTrace)
	setString("KNXMONITOR_LOG_LEVEL", &cfg.LogLevel)

	// MQTT
	setBool("KNXMONITOR_MQTT_ENABLED", &cfg.MQTT.Enabled)
	setString("KNXMONITOR_MQTT_HOST", &cfg.MQTT.Broker.Host)
	setString("KNXMONITOR_MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	setString("KNXMONITOR_MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	// Database
	setBool("KNXMONITOR_DATABASE_ENABLED", &cfg.Database.Enabled)
	setString("KNXMONITOR_DATABASE_PATH", &cfg.Database.Path)

	// InfluxDB
	setBool("KNXMONITOR_INFLUXDB_ENABLED", &cfg.InfluxDB.Enabled)
	setString("KNXMONITOR_INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	if len(errs) > 0 {
		return fmt.Errorf("environment errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Target validation
	if c.Target.Address == "" {
		errs = append(errs, "target.address is required")
	}
	if c.Target.Port < 1 || c.Target.Port > 65535 {
		errs = append(errs, "target.port must be between 1 and 65535")
	}
	if c.Target.Transport != TransportTunnel && c.Target.Transport != TransportKNXD {
		errs = append(errs, "target.transport must be tunnel or knxd")
	}
	if c.Target.ConnectTimeout < 0 {
		errs = append(errs, "target.connect_timeout must not be negative")
	}

	if _, err := telegram.ParseGroupAddress(c.GroupAddress); err != nil {
		errs = append(errs, fmt.Sprintf("group_address: %v", err))
	}
	if c.LogLevel != LogLevelFatal && c.LogLevel != LogLevelInformation {
		errs = append(errs, "log_level must be fatal or information")
	}
	if c.StartupWrite.Enabled {
		if _, err := c.StartupPayload(); err != nil {
			errs = append(errs, fmt.Sprintf("startup_write.payload: %v", err))
		}
	}

	// Sink validation only applies to enabled sinks
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required")
		}
	}
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required")
		}
	}

	if c.Forward.QueueSize < 0 {
		errs = append(errs, "forward.queue_size must not be negative")
	}
	if _, err := c.GetDatapoints(); err != nil {
		errs = append(errs, fmt.Sprintf("forward.datapoints: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetConnectTimeout returns the open timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.Target.ConnectTimeout) * time.Second
}

// GetGroupAddress returns the parsed group address.
func (c *Config) GetGroupAddress() (telegram.GroupAddress, error) {
	return telegram.ParseGroupAddress(c.GroupAddress)
}

// StartupPayload decodes the startup write payload. An empty payload is valid.
func (c *Config) StartupPayload() ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(c.StartupWrite.Payload, "0x"))
}

// GetDatapoints parses the forward.datapoints table.
func (c *Config) GetDatapoints() (map[telegram.GroupAddress]telegram.DPT, error) {
	out := make(map[telegram.GroupAddress]telegram.DPT, len(c.Forward.Datapoints))
	for addr, dpt := range c.Forward.Datapoints {
		ga, err := telegram.ParseGroupAddress(addr)
		if err != nil {
			return nil, err
		}
		d := telegram.DPT(dpt)
		if !d.Valid() {
			return nil, fmt.Errorf("%w: %q for %s", telegram.ErrUnknownDPT, dpt, addr)
		}
		out[ga] = d
	}
	return out, nil
}
