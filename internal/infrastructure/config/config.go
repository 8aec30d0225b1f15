package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default resource paths, relative to the working directory.
const (
	DefaultConfigPath   = "config.json"
	DefaultDevicesPath  = "devices.json"
	DefaultTemplatePath = "template.txt"
)

// Environment toggles. Both are presence-based: any non-empty value enables them.
const (
	envDebug      = "DEBUG"
	envTuyaDebug  = "TINYTUYA_DEBUG"
	envTuyaDebug2 = "TUYA_DEBUG"
)

// Config is the root configuration structure for the bridge.
//
// The five top-level broker fields mirror the persisted record
// {host, port, topic, mqtt_user, mqtt_pass}; the nested sections are optional
// tuning knobs with defaults.
type Config struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Topic    string `yaml:"topic" json:"topic"`
	MQTTUser string `yaml:"mqtt_user" json:"mqtt_user"`
	MQTTPass string `yaml:"mqtt_pass" json:"mqtt_pass"`

	MQTT     MQTTConfig     `yaml:"mqtt" json:"mqtt"`
	Tuya     TuyaConfig     `yaml:"tuya" json:"tuya"`
	InfluxDB InfluxDBConfig `yaml:"influxdb" json:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// MQTTConfig contains broker client tuning.
type MQTTConfig struct {
	// KeepAlive is the keepalive interval in seconds. Default: 60.
	KeepAlive int `yaml:"keep_alive" json:"keep_alive"`

	// ConnectTimeout is the initial connect timeout in seconds. Default: 10.
	ConnectTimeout int `yaml:"connect_timeout" json:"connect_timeout"`

	// AutoReconnect lets the broker client reconnect (and re-subscribe) on its own.
	// When false, a lost connection terminates the session. Default: true.
	AutoReconnect bool `yaml:"auto_reconnect" json:"auto_reconnect"`

	// MaxReconnectDelay caps the client's reconnect backoff in seconds. Default: 60.
	MaxReconnectDelay int `yaml:"max_reconnect_delay" json:"max_reconnect_delay"`

	// TLS switches the broker URL scheme to ssl://.
	TLS bool `yaml:"tls" json:"tls"`
}

// TuyaConfig contains device connection settings shared by all devices.
type TuyaConfig struct {
	// Port is the Tuya local protocol TCP port. Default: 6668.
	Port int `yaml:"port" json:"port"`

	// ConnectTimeout is the dial timeout in seconds. Default: 5.
	ConnectTimeout int `yaml:"connect_timeout" json:"connect_timeout"`

	// SendTimeout bounds a single frame write in seconds. Default: 5.
	SendTimeout int `yaml:"send_timeout" json:"send_timeout"`

	// Persistent keeps the device socket open between commands. Default: false,
	// which opens a fresh connection per command.
	Persistent bool `yaml:"persistent" json:"persistent"`

	// Debug enables frame-level transport logging. Set by TINYTUYA_DEBUG.
	Debug bool `yaml:"debug" json:"debug"`
}

// InfluxDBConfig contains optional dispatch telemetry settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	URL           string `yaml:"url" json:"url"`
	Token         string `yaml:"token" json:"token"`
	Org           string `yaml:"org" json:"org"`
	Bucket        string `yaml:"bucket" json:"bucket"`
	BatchSize     int    `yaml:"batch_size" json:"batch_size"`
	FlushInterval int    `yaml:"flush_interval" json:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// Load reads the broker configuration from a JSON or YAML file and applies
// environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. File values (override defaults)
//  3. Environment variables (override file values)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: wrapping ErrResourceNotFound or ErrConfigInvalid
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := ReadResource(path)
	if err != nil {
		return nil, err
	}

	if err := Decode(path, data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	return cfg, nil
}

// ReadResource reads a persisted resource, mapping a missing file to ErrResourceNotFound.
func ReadResource(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// Decode unmarshals a structured record into v. Files ending in .yaml or .yml
// are parsed as YAML; anything else is parsed as JSON. An empty document is
// rejected rather than silently yielding defaults.
func Decode(path string, data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrConfigInvalid, path)
	}

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	default:
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		return fmt.Errorf("%w: parsing %s: %w", ErrConfigInvalid, path, err)
	}
	return nil
}

// defaultConfig returns a Config with the defaults of the persisted record.
func defaultConfig() *Config {
	return &Config{
		Host:  "localhost",
		Port:  1883,
		Topic: "topic/",
		MQTT: MQTTConfig{
			KeepAlive:         60,
			ConnectTimeout:    10,
			AutoReconnect:     true,
			MaxReconnectDelay: 60,
		},
		Tuya: TuyaConfig{
			Port:           6668,
			ConnectTimeout: 5,
			SendTimeout:    5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TUYAIR_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("TUYAIR_MQTT_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("TUYAIR_MQTT_USERNAME"); v != "" {
		cfg.MQTTUser = v
	}
	if v := os.Getenv("TUYAIR_MQTT_PASSWORD"); v != "" {
		cfg.MQTTPass = v
	}

	// InfluxDB
	if v := os.Getenv("TUYAIR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Presence toggles
	if os.Getenv(envDebug) != "" {
		cfg.Logging.Level = "debug"
	}
	if os.Getenv(envTuyaDebug) != "" || os.Getenv(envTuyaDebug2) != "" {
		cfg.Tuya.Debug = true
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Host == "" {
		errs = append(errs, "host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}
	if c.MQTT.KeepAlive < 0 {
		errs = append(errs, "mqtt.keep_alive must not be negative")
	}
	if c.Tuya.Port < 1 || c.Tuya.Port > 65535 {
		errs = append(errs, "tuya.port must be between 1 and 65535")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BrokerURL returns the paho broker URL for the configured host and port.
func (c *Config) BrokerURL() string {
	scheme := "tcp"
	if c.MQTT.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// String returns a string representation with the broker password masked.
func (c *Config) String() string {
	password := ""
	if c.MQTTPass != "" {
		password = "[REDACTED]"
	}
	return fmt.Sprintf("Config{Host:%q, Port:%d, Topic:%q, MQTTUser:%q, MQTTPass:%s}",
		c.Host, c.Port, c.Topic, c.MQTTUser, password)
}

// GetKeepAlive returns the MQTT keepalive as a Duration.
func (c *Config) GetKeepAlive() time.Duration {
	return time.Duration(c.MQTT.KeepAlive) * time.Second
}

// GetConnectTimeout returns the MQTT connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.MQTT.ConnectTimeout) * time.Second
}

// GetMaxReconnectDelay returns the MQTT reconnect backoff cap as a Duration.
func (c *Config) GetMaxReconnectDelay() time.Duration {
	return time.Duration(c.MQTT.MaxReconnectDelay) * time.Second
}

// GetTuyaConnectTimeout returns the device dial timeout as a Duration.
func (c *Config) GetTuyaConnectTimeout() time.Duration {
	return time.Duration(c.Tuya.ConnectTimeout) * time.Second
}

// GetTuyaSendTimeout returns the device write timeout as a Duration.
func (c *Config) GetTuyaSendTimeout() time.Duration {
	return time.Duration(c.Tuya.SendTimeout) * time.Second
}
