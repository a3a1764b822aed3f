package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// Database is the SMS store location: ":memory:", ":temporary:" or
	// a file path (the .sqlite3 suffix is appended automatically)
	Database string `yaml:"database"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`
	// IncomingTTL is the retention of unassembled incoming message
	// parts, in seconds
	IncomingTTL int `yaml:"incoming_ttl"`
	// OutgoingTTL is the validity period of outgoing messages, in
	// seconds; expired messages are purged and reported
	OutgoingTTL int `yaml:"outgoing_ttl"`
	// MQTTBroker is the broker URL for report publishing (e.g.
	// "tcp://broker:1883"); empty disables the publisher
	MQTTBroker string `yaml:"mqtt_broker"`
	// MQTTPrefix is the topic prefix for published reports
	MQTTPrefix string `yaml:"mqtt_prefix"`
	// Devices maps device identifiers to their modem settings
	Devices map[string]DeviceConfig `yaml:"devices"`
}

// DeviceConfig holds per-modem settings from the device file.
type DeviceConfig struct {
	// Port is the path to the modem's serial port (e.g. "/dev/ttyUSB0")
	Port string `yaml:"port"`
	// BaudRate is the baud rate for serial communication (e.g. 115200)
	BaudRate int `yaml:"baud_rate"`
	// Audio selects the audio health-check policy: "external", "tty"
	// or "alsa"
	Audio string `yaml:"audio"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.Database = "gsmbridge"
		c.LogLevel = "info"
		c.IncomingTTL = 600
		c.OutgoingTTL = 3600
		c.MQTTPrefix = "gsmbridge"
		return nil
	}
}

// WithFile loads configuration from a YAML file. An empty path is
// skipped so the flag may stay unset.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if db := os.Getenv("DATABASE"); db != "" {
			c.Database = db
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if broker := os.Getenv("MQTT_BROKER"); broker != "" {
			c.MQTTBroker = broker
		}

		if prefix := os.Getenv("MQTT_PREFIX"); prefix != "" {
			c.MQTTPrefix = prefix
		}

		if ttl := os.Getenv("INCOMING_TTL"); ttl != "" {
			if t, err := strconv.Atoi(ttl); err == nil {
				c.IncomingTTL = t
			}
		}

		if ttl := os.Getenv("OUTGOING_TTL"); ttl != "" {
			if t, err := strconv.Atoi(ttl); err == nil {
				c.OutgoingTTL = t
			}
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "database":
				c.Database = f.Value.String()
			case "log-level":
				c.LogLevel = f.Value.String()
			case "mqtt-broker":
				c.MQTTBroker = f.Value.String()
			case "mqtt-prefix":
				c.MQTTPrefix = f.Value.String()
			}
		})
		return nil
	}
}
