// Package config loads flipper settings from defaults, an optional TOML
// file and FLIPPER_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/evelyndooley/flipper/codec"
	"github.com/evelyndooley/flipper/loadbalance"
)

// EnvPrefix prefixes environment overrides: device.port is FLIPPER_DEVICE_PORT.
const EnvPrefix = "FLIPPER"

type Config struct {
	Device   DeviceConfig   `mapstructure:"device"`
	Session  SessionConfig  `mapstructure:"session"`
	Registry RegistryConfig `mapstructure:"registry"`
	Serve    ServeConfig    `mapstructure:"serve"`
	Log      LogConfig      `mapstructure:"log"`
}

// DeviceConfig controls how hosts reach devices.
type DeviceConfig struct {
	Address     string        `mapstructure:"address"`
	Port        string        `mapstructure:"port"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Retries     int           `mapstructure:"retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	Balancer    string        `mapstructure:"balancer"`
}

type SessionConfig struct {
	Codec       string `mapstructure:"codec"`
	MaxArgsSize int    `mapstructure:"max_args_size"`
}

// RegistryConfig enables etcd discovery when Endpoints is non-empty.
type RegistryConfig struct {
	Endpoints []string `mapstructure:"endpoints"`
	Prefix    string   `mapstructure:"prefix"`
	TTL       int64    `mapstructure:"ttl"`
}

// ServeConfig configures the virtual device run by "flipper serve".
type ServeConfig struct {
	Listen    string        `mapstructure:"listen"`
	Advertise string        `mapstructure:"advertise"`
	Name      string        `mapstructure:"name"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Rate      float64       `mapstructure:"rate"` // Calls per second; zero disables limiting
	Burst     int           `mapstructure:"burst"`

	// Retries re-runs invocations that fail with a timeout or
	// communication status.
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Device: DeviceConfig{
			Address:     "localhost",
			Port:        "4000",
			DialTimeout: 5 * time.Second,
			Retries:     2,
			RetryDelay:  200 * time.Millisecond,
			Balancer:    "round_robin",
		},
		Session: SessionConfig{
			Codec:       codec.CodecTypeBinary.String(),
			MaxArgsSize: codec.DefaultMaxArgsSize,
		},
		Registry: RegistryConfig{
			Prefix: "/flipper",
			TTL:    10,
		},
		Serve: ServeConfig{
			Listen:     ":4000",
			Name:       "fvm",
			Timeout:    5 * time.Second,
			RetryDelay: 50 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the configuration. An empty path skips the file; a named file
// that does not exist is an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("device.address", d.Device.Address)
	v.SetDefault("device.port", d.Device.Port)
	v.SetDefault("device.dial_timeout", d.Device.DialTimeout)
	v.SetDefault("device.retries", d.Device.Retries)
	v.SetDefault("device.retry_delay", d.Device.RetryDelay)
	v.SetDefault("device.balancer", d.Device.Balancer)
	v.SetDefault("session.codec", d.Session.Codec)
	v.SetDefault("session.max_args_size", d.Session.MaxArgsSize)
	v.SetDefault("registry.endpoints", d.Registry.Endpoints)
	v.SetDefault("registry.prefix", d.Registry.Prefix)
	v.SetDefault("registry.ttl", d.Registry.TTL)
	v.SetDefault("serve.listen", d.Serve.Listen)
	v.SetDefault("serve.advertise", d.Serve.Advertise)
	v.SetDefault("serve.name", d.Serve.Name)
	v.SetDefault("serve.timeout", d.Serve.Timeout)
	v.SetDefault("serve.rate", d.Serve.Rate)
	v.SetDefault("serve.burst", d.Serve.Burst)
	v.SetDefault("serve.retries", d.Serve.Retries)
	v.SetDefault("serve.retry_delay", d.Serve.RetryDelay)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that have a closed set of choices.
func (c *Config) Validate() error {
	var errs []error
	if _, ok := codec.ParseCodecType(c.Session.Codec); !ok {
		errs = append(errs, fmt.Errorf("session.codec: unknown codec %q", c.Session.Codec))
	}
	if c.Session.MaxArgsSize <= 0 {
		errs = append(errs, fmt.Errorf("session.max_args_size: must be positive, got %d", c.Session.MaxArgsSize))
	}
	if _, err := loadbalance.New(c.Device.Balancer); err != nil {
		errs = append(errs, fmt.Errorf("device.balancer: %w", err))
	}
	if c.Device.Retries < 0 {
		errs = append(errs, fmt.Errorf("device.retries: must not be negative, got %d", c.Device.Retries))
	}
	if c.Serve.Rate < 0 {
		errs = append(errs, fmt.Errorf("serve.rate: must not be negative, got %g", c.Serve.Rate))
	}
	return errors.Join(errs...)
}
