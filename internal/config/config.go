package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks a configuration that cannot be used
var ErrConfiguration = errors.New("invalid configuration")

// EnvPrefix is the prefix of environment overrides (NBE_DEVICE_PASSWORD, ...)
const EnvPrefix = "NBE"

// Config holds all configuration for our application
type Config struct {
	Device   DeviceConfig   `mapstructure:"device" yaml:"device"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	MQTT     MQTTConfig     `mapstructure:"mqtt" yaml:"mqtt"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

type DeviceConfig struct {
	Password               string `mapstructure:"password" yaml:"password"`
	IPAddress              string `mapstructure:"ip_address" yaml:"ip_address"`
	Port                   int    `mapstructure:"port" yaml:"port"`
	Serial                 string `mapstructure:"serial" yaml:"serial"`
	AppID                  string `mapstructure:"app_id" yaml:"app_id"`
	PollIntervalSeconds    int    `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	EndpointTimeoutSeconds int    `mapstructure:"endpoint_timeout_seconds" yaml:"endpoint_timeout_seconds"`
	CycleTimeoutSeconds    int    `mapstructure:"cycle_timeout_seconds" yaml:"cycle_timeout_seconds"`
	Timezone               string `mapstructure:"timezone" yaml:"timezone"`
	DiscoveryRetries       int    `mapstructure:"discovery_retries" yaml:"discovery_retries"`
}

func (d DeviceConfig) PollInterval() time.Duration {
	return time.Duration(d.PollIntervalSeconds) * time.Second
}

func (d DeviceConfig) EndpointTimeout() time.Duration {
	return time.Duration(d.EndpointTimeoutSeconds) * time.Second
}

func (d DeviceConfig) CycleTimeout() time.Duration {
	return time.Duration(d.CycleTimeoutSeconds) * time.Second
}

// Location resolves the boiler's timezone
func (d DeviceConfig) Location() (*time.Location, error) {
	if d.Timezone == "" || d.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(d.Timezone)
}

type ServerConfig struct {
	GRPCPort       int     `mapstructure:"grpc_port" yaml:"grpc_port"`
	HTTPPort       int     `mapstructure:"http_port" yaml:"http_port"`
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Name     string `mapstructure:"name" yaml:"name"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	SSLMode  string `mapstructure:"ssl_mode" yaml:"ssl_mode"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker      string `mapstructure:"broker" yaml:"broker"`
	ClientID    string `mapstructure:"client_id" yaml:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix" yaml:"topic_prefix"`
	Username    string `mapstructure:"username" yaml:"username"`
	Password    string `mapstructure:"password" yaml:"password"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load reads configuration from file and environment variables. $VAR
// references in the file are expanded first, then NBE_* variables override
// individual keys. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Round-trip through yaml so that the expansion sees normalised scalars
		var rawConfig map[string]interface{}
		if err := yaml.Unmarshal(data, &rawConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal raw config: %w", err)
		}
		data, err = yaml.Marshal(rawConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal raw config: %w", err)
		}

		expandedData := os.ExpandEnv(string(data))
		if err := v.ReadConfig(bytes.NewBufferString(expandedData)); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.password", "")
	v.SetDefault("device.ip_address", "")
	v.SetDefault("device.port", 8483)
	v.SetDefault("device.serial", "")
	v.SetDefault("device.app_id", "")
	v.SetDefault("device.poll_interval_seconds", 60)
	v.SetDefault("device.endpoint_timeout_seconds", 5)
	v.SetDefault("device.cycle_timeout_seconds", 45)
	v.SetDefault("device.timezone", "Local")
	v.SetDefault("device.discovery_retries", 5)

	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_limit_burst", 10)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "nbeconnect")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://127.0.0.1:1883")
	v.SetDefault("mqtt.client_id", "nbeconnect")
	v.SetDefault("mqtt.topic_prefix", "nbe")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks the configuration before anything is started
func (c *Config) Validate() error {
	d := c.Device
	switch {
	case d.Password == "":
		return fmt.Errorf("%w: device.password is required", ErrConfiguration)
	case d.PollIntervalSeconds <= 0:
		return fmt.Errorf("%w: device.poll_interval_seconds must be positive", ErrConfiguration)
	case d.EndpointTimeoutSeconds <= 0:
		return fmt.Errorf("%w: device.endpoint_timeout_seconds must be positive", ErrConfiguration)
	case d.CycleTimeoutSeconds <= 0 || d.CycleTimeoutSeconds > d.PollIntervalSeconds:
		return fmt.Errorf("%w: device.cycle_timeout_seconds must be positive and not exceed the poll interval", ErrConfiguration)
	case d.Port <= 0 || d.Port > 65535:
		return fmt.Errorf("%w: device.port %d out of range", ErrConfiguration, d.Port)
	case d.DiscoveryRetries <= 0:
		return fmt.Errorf("%w: device.discovery_retries must be positive", ErrConfiguration)
	}
	if _, err := d.Location(); err != nil {
		return fmt.Errorf("%w: device.timezone: %v", ErrConfiguration, err)
	}

	if c.Server.RateLimit <= 0 || c.Server.RateLimitBurst <= 0 {
		return fmt.Errorf("%w: server rate limit and burst must be positive", ErrConfiguration)
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %v", ErrConfiguration, err)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("%w: logging.format must be json or text", ErrConfiguration)
	}

	if c.Database.Enabled && (c.Database.Host == "" || c.Database.Name == "") {
		return fmt.Errorf("%w: database.host and database.name are required when the database is enabled", ErrConfiguration)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("%w: mqtt.broker is required when mqtt is enabled", ErrConfiguration)
	}

	return nil
}
