package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/aqualogic/internal/transport"
)

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout only applies on Linux")
	}
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	dir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if dir != filepath.Join("/tmp/xdg", "aqualogic") {
		t.Errorf("GetConfigDir() = %s", dir)
	}

	path, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", path)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Source.BaudRate != 19200 {
		t.Errorf("baud rate = %d, want 19200", cfg.Source.BaudRate)
	}
	if cfg.API.Enabled || cfg.NATS.URL != "" || cfg.Redis.Addr != "" {
		t.Error("outputs should be disabled by default")
	}
	opts := cfg.SourceOptions()
	if opts.Kind != transport.KindTCP || opts.DialTimeout != 10*time.Second {
		t.Errorf("SourceOptions() = %+v", opts)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults"},
		{
			name:    "bad version",
			mutate:  func(c *Config) { c.Version = 2 },
			wantErr: "unsupported config version",
		},
		{
			name:    "unknown source type",
			mutate:  func(c *Config) { c.Source.Type = "udp" },
			wantErr: "source.type",
		},
		{
			name:    "tcp address without port",
			mutate:  func(c *Config) { c.Source.Address = "bridge.local" },
			wantErr: "source.address",
		},
		{
			name:    "serial needs baud",
			mutate:  func(c *Config) { c.Source.Type = "serial"; c.Source.BaudRate = 0 },
			wantErr: "baud_rate",
		},
		{
			name:    "bad api listen",
			mutate:  func(c *Config) { c.API.Enabled = true; c.API.Listen = "8080" },
			wantErr: "api.listen",
		},
		{
			name:    "advertise without api",
			mutate:  func(c *Config) { c.API.Advertise = true },
			wantErr: "api.advertise",
		},
		{
			name:    "nats without subject",
			mutate:  func(c *Config) { c.NATS.URL = "nats://localhost:4222"; c.NATS.Subject = "" },
			wantErr: "nats.subject",
		},
		{
			name: "reports every problem",
			mutate: func(c *Config) {
				c.Version = 9
				c.Redis.Addr = "localhost:6379"
				c.Redis.Key = ""
			},
			wantErr: "redis.key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr bool
		verify  func(t *testing.T, cfg *Config)
	}{
		{
			name: "partial yaml takes defaults",
			file: "config.yaml",
			content: `source:
  address: 192.168.1.50:8899
  reconnect_delay: 3s
api:
  enabled: true
`,
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Version != 1 || cfg.Source.Type != "tcp" {
					t.Errorf("cfg = %+v", cfg)
				}
				if cfg.Source.ReconnectDelay != 3*time.Second {
					t.Errorf("reconnect_delay = %v", cfg.Source.ReconnectDelay)
				}
				if !cfg.API.Enabled || cfg.API.Listen != ":8080" {
					t.Errorf("api = %+v", cfg.API)
				}
			},
		},
		{
			name: "toml",
			file: "aqualogic.toml",
			content: `version = 1
log_level = "debug"

[source]
type = "serial"
address = "/dev/ttyUSB0"
baud_rate = 9600

[redis]
addr = "localhost:6379"
ttl = "90s"
`,
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Source.Type != "serial" || cfg.Source.BaudRate != 9600 {
					t.Errorf("source = %+v", cfg.Source)
				}
				if cfg.Redis.TTL != 90*time.Second || cfg.Redis.Key != "aqualogic:state" {
					t.Errorf("redis = %+v", cfg.Redis)
				}
				if cfg.LogLevel != "debug" {
					t.Errorf("log_level = %q", cfg.LogLevel)
				}
			},
		},
		{
			name:    "invalid yaml",
			file:    "bad.yaml",
			content: "source: [unclosed",
			wantErr: true,
		},
		{
			name:    "fails validation",
			file:    "config.yaml",
			content: "version: 3\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			cfg, err := LoadFile(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.verify != nil {
				tt.verify(t, cfg)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Source.Address = "10.0.0.9:4001"
	cfg.Source.Type = "telnet"
	cfg.Capture.Dir = "/var/lib/aqualogic"
	cfg.NATS.URL = "nats://nats:4222"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.HasPrefix(string(data), "# AquaLogic bridge configuration") {
		t.Errorf("missing header: %q", string(data[:40]))
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if loaded.Source != cfg.Source || loaded.Capture != cfg.Capture || loaded.NATS != cfg.NATS {
		t.Errorf("loaded = %+v, want %+v", loaded, cfg)
	}
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := loadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("loadOrDefault() error = %v", err)
	}
	if cfg.Version != CurrentVersion {
		t.Errorf("version = %d", cfg.Version)
	}
}
