package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the light meter. It is loaded from YAML
// and can be overridden by environment variables.
type Config struct {
	Sensor   SensorConfig   `yaml:"sensor"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Timezone string         `yaml:"timezone"`
}

// SensorConfig selects how the VEML6040 is reached and how often it is read.
type SensorConfig struct {
	// Transport is one of "exp" (i2c-dev via golang.org/x/exp), "periph" or "simulated".
	Transport      string        `yaml:"transport"`
	Device         string        `yaml:"device"`          // i2c-dev path for the exp transport
	PeriphBus      string        `yaml:"periph_bus"`      // bus name for the periph transport, empty = first
	SimulatedLux   float64       `yaml:"simulated_lux"`   // ambient light for the simulated transport
	RecordInterval time.Duration `yaml:"record_interval"` // time between readings of a recording job
	MaxJobDuration time.Duration `yaml:"max_job_duration"`
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	SSL       bool   `yaml:"ssl"`
	CertFile  string `yaml:"cert_file"`
	KeyFile   string `yaml:"key_file"`
	LocalOnly bool   `yaml:"local_only"` // restrict the dashboard to private networks
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	File   string `yaml:"file"`   // appended to in addition to stdout, empty disables
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      int    `yaml:"qos"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type InfluxDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

const (
	TransportExp       = "exp"
	TransportPeriph    = "periph"
	TransportSimulated = "simulated"
)

// Load reads the configuration file at path. A missing file yields the defaults.
// Environment overrides are applied last, then the result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Sensor: SensorConfig{
			Transport:      TransportExp,
			Device:         "/dev/i2c-1",
			SimulatedLux:   500,
			RecordInterval: 30 * time.Second,
			MaxJobDuration: 8 * time.Hour,
		},
		Server: ServerConfig{
			Port:     80,
			CertFile: "cert.pem",
			KeyFile:  "key.pem",
		},
		Database: DatabaseConfig{
			Path: "lightmeter.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File:   "lightmeter.log",
		},
		MQTT: MQTTConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "lightmeter",
			Topic:    "lightmeter/readings",
			QoS:      1,
		},
		InfluxDB: InfluxDBConfig{
			URL:    "http://localhost:8086",
			Bucket: "lightmeter",
		},
		Timezone: "UTC",
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if os.Getenv("SSL") == "true" {
		cfg.Server.SSL = true
		if cfg.Server.Port == 80 {
			cfg.Server.Port = 443
		}
	}
	if v := os.Getenv("LIGHTMETER_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("LIGHTMETER_SENSOR_TRANSPORT"); v != "" {
		cfg.Sensor.Transport = v
	}
	if v := os.Getenv("LIGHTMETER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("LIGHTMETER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks that the configuration can be used to start the meter.
func (c *Config) Validate() error {
	switch c.Sensor.Transport {
	case TransportExp, TransportPeriph, TransportSimulated:
	default:
		return fmt.Errorf("unknown sensor transport %q", c.Sensor.Transport)
	}
	if c.Sensor.RecordInterval <= 0 {
		return errors.New("sensor.record_interval must be positive")
	}
	if c.Sensor.MaxJobDuration <= 0 {
		return errors.New("sensor.max_job_duration must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}
	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", c.MQTT.QoS)
		}
		if c.MQTT.Topic == "" {
			return errors.New("mqtt.topic is required")
		}
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		return errors.New("influxdb.url and influxdb.bucket are required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}
