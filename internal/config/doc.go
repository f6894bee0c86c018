// Package config provides configuration management for the AquaLogic bridge.
//
// The configuration selects the byte source (TCP or telnet bridge, serial
// port, capture file) and the optional outputs: JSONL capture, the HTTP
// state API with mDNS advertisement, NATS publishing and a Redis shadow.
//
// # Configuration File Location
//
// The default file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/aqualogic/config.yaml or $HOME/.config/aqualogic/config.yaml
//   - macOS: $HOME/.config/aqualogic/config.yaml
//   - Windows: %LOCALAPPDATA%\aqualogic\config.yaml
//
// Any path can be given with --config. Files ending in .toml are read as
// TOML, everything else as YAML.
//
// # Usage Example
//
//	cfg, err := config.LoadFile("/etc/aqualogic.toml")
//	if err != nil {
//	    return err
//	}
//	src, err := transport.Open(ctx, cfg.SourceOptions())
//
// # Example File
//
//	version: 1
//	source:
//	  type: tcp
//	  address: 192.168.1.50:8899
//	  reconnect_delay: 5s
//	api:
//	  enabled: true
//	  listen: :8080
//	  advertise: true
//	nats:
//	  url: nats://localhost:4222
//	  subject: aqualogic.state
//
// # Thread Safety
//
// Load uses sync.Once for safe initialization across goroutines.
// Save is protected by a mutex and writes atomically.
package config
