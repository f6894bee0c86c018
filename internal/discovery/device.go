package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Bridge is a running aqualogic state API found on the local network
type Bridge struct {
	// Instance is the mDNS instance name (e.g., "aqualogic-backyard")
	Instance string

	// Hostname is the mDNS hostname (e.g., "pi.local.")
	Hostname string

	// IP is the preferred address, IPv4 when one was announced
	IP string

	// Port is the HTTP port of the state API
	Port int

	// Metadata holds the TXT record (version, source, ws path)
	Metadata map[string]string

	// DiscoveredAt is when the announcement was received
	DiscoveredAt time.Time
}

// String returns a human-readable description of the bridge
func (b *Bridge) String() string {
	return fmt.Sprintf("AquaLogic bridge %s (%s) at %s", b.Instance, b.Hostname, b.hostPort())
}

// BaseURL returns the HTTP base URL of the state API
func (b *Bridge) BaseURL() string {
	return "http://" + b.hostPort()
}

// WebsocketURL returns the URL of the state stream
func (b *Bridge) WebsocketURL() string {
	path := b.GetMetadata("ws")
	if path == "" {
		path = "/ws"
	}
	return "ws://" + b.hostPort() + path
}

// GetMetadata retrieves a TXT value by key, or "" when absent
func (b *Bridge) GetMetadata(key string) string {
	if b.Metadata == nil {
		return ""
	}
	return b.Metadata[key]
}

func (b *Bridge) hostPort() string {
	return net.JoinHostPort(b.IP, strconv.Itoa(b.Port))
}
