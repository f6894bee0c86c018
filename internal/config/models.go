package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/muurk/aqualogic/internal/transport"
)

// CurrentVersion is the config file format version
const CurrentVersion = 1

// Config represents the entire configuration file
type Config struct {
	Version  int           `yaml:"version" toml:"version"`
	Source   SourceConfig  `yaml:"source" toml:"source"`
	Capture  CaptureConfig `yaml:"capture" toml:"capture"`
	API      APIConfig     `yaml:"api" toml:"api"`
	NATS     NATSConfig    `yaml:"nats" toml:"nats"`
	Redis    RedisConfig   `yaml:"redis" toml:"redis"`
	LogLevel string        `yaml:"log_level,omitempty" toml:"log_level"`
}

// SourceConfig selects the byte source
type SourceConfig struct {
	Type           string        `yaml:"type" toml:"type"`       // tcp, telnet, serial, file
	Address        string        `yaml:"address" toml:"address"` // host:port or device/file path
	BaudRate       int           `yaml:"baud_rate,omitempty" toml:"baud_rate"`
	DialTimeout    time.Duration `yaml:"dial_timeout,omitempty" toml:"dial_timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay,omitempty" toml:"reconnect_delay"` // 0 disables reconnecting
}

// CaptureConfig enables JSONL frame capture
type CaptureConfig struct {
	Dir string `yaml:"dir,omitempty" toml:"dir"` // Empty disables capture
}

// APIConfig controls the HTTP state API
type APIConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	Listen      string `yaml:"listen" toml:"listen"`
	Advertise   bool   `yaml:"advertise" toml:"advertise"` // Register via mDNS
	ServiceName string `yaml:"service_name,omitempty" toml:"service_name"`
}

// NATSConfig controls snapshot publishing to NATS
type NATSConfig struct {
	URL     string `yaml:"url,omitempty" toml:"url"` // Empty disables publishing
	Subject string `yaml:"subject,omitempty" toml:"subject"`
}

// RedisConfig controls the Redis state shadow
type RedisConfig struct {
	Addr     string        `yaml:"addr,omitempty" toml:"addr"` // Empty disables the shadow
	Password string        `yaml:"password,omitempty" toml:"password"`
	DB       int           `yaml:"db,omitempty" toml:"db"`
	Key      string        `yaml:"key,omitempty" toml:"key"`
	TTL      time.Duration `yaml:"ttl,omitempty" toml:"ttl"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Source: SourceConfig{
			Type:           string(transport.KindTCP),
			BaudRate:       transport.DefaultBaudRate,
			DialTimeout:    transport.DefaultDialTimeout,
			ReconnectDelay: 5 * time.Second,
		},
		API: APIConfig{
			Listen:      ":8080",
			ServiceName: "aqualogic",
		},
		NATS: NATSConfig{
			Subject: "aqualogic.state",
		},
		Redis: RedisConfig{
			Key: "aqualogic:state",
			TTL: 5 * time.Minute,
		},
	}
}

// applyDefaults fills fields a partial file left empty
func (c *Config) applyDefaults() {
	d := Default()
	if c.Source.Type == "" {
		c.Source.Type = d.Source.Type
	}
	if c.Source.BaudRate == 0 {
		c.Source.BaudRate = d.Source.BaudRate
	}
	if c.Source.DialTimeout == 0 {
		c.Source.DialTimeout = d.Source.DialTimeout
	}
	if c.API.Listen == "" {
		c.API.Listen = d.API.Listen
	}
	if c.API.ServiceName == "" {
		c.API.ServiceName = d.API.ServiceName
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = d.NATS.Subject
	}
	if c.Redis.Key == "" {
		c.Redis.Key = d.Redis.Key
	}
}

// SourceOptions converts the source section into transport options
func (c *Config) SourceOptions() transport.Options {
	return transport.Options{
		Kind:        transport.Kind(c.Source.Type),
		Address:     c.Source.Address,
		BaudRate:    c.Source.BaudRate,
		DialTimeout: c.Source.DialTimeout,
	}
}

// Validate checks the configuration and reports every problem found
func (c *Config) Validate() error {
	var errs []error

	if c.Version != CurrentVersion {
		errs = append(errs, fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion))
	}

	switch transport.Kind(c.Source.Type) {
	case transport.KindTCP, transport.KindTelnet:
		if c.Source.Address != "" {
			if _, _, err := net.SplitHostPort(c.Source.Address); err != nil {
				errs = append(errs, fmt.Errorf("source.address: %w", err))
			}
		}
	case transport.KindSerial:
		if c.Source.BaudRate <= 0 {
			errs = append(errs, fmt.Errorf("source.baud_rate must be positive, got %d", c.Source.BaudRate))
		}
	case transport.KindFile:
	default:
		errs = append(errs, fmt.Errorf("source.type %q is not one of tcp, telnet, serial, file", c.Source.Type))
	}
	if c.Source.DialTimeout < 0 || c.Source.ReconnectDelay < 0 {
		errs = append(errs, errors.New("source timeouts must not be negative"))
	}

	if c.API.Enabled {
		if _, _, err := net.SplitHostPort(c.API.Listen); err != nil {
			errs = append(errs, fmt.Errorf("api.listen: %w", err))
		}
	}
	if c.API.Advertise && !c.API.Enabled {
		errs = append(errs, errors.New("api.advertise requires api.enabled"))
	}

	if c.NATS.URL != "" && c.NATS.Subject == "" {
		errs = append(errs, errors.New("nats.subject is required when nats.url is set"))
	}
	if c.Redis.Addr != "" && c.Redis.Key == "" {
		errs = append(errs, errors.New("redis.key is required when redis.addr is set"))
	}
	if c.Redis.TTL < 0 {
		errs = append(errs, errors.New("redis.ttl must not be negative"))
	}

	return errors.Join(errs...)
}
