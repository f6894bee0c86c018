package discovery

import (
	"context"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantIP   string
		wantPort int
	}{
		{
			name: "IPv4 bridge",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "aqualogic"},
				HostName:      "pi.local.",
				Port:          8080,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.1.20")},
			},
			wantIP:   "192.168.1.20",
			wantPort: 8080,
		},
		{
			name: "IPv6 only",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "spa"},
				HostName:      "spa.local.",
				Port:          9000,
				AddrIPv6:      []net.IP{net.ParseIP("fe80::1")},
			},
			wantIP:   "fe80::1",
			wantPort: 9000,
		},
		{
			name: "prefers IPv4",
			entry: &zeroconf.ServiceEntry{
				HostName: "pi.local.",
				Port:     8080,
				AddrIPv4: []net.IP{net.ParseIP("10.0.0.5")},
				AddrIPv6: []net.IP{net.ParseIP("fe80::2")},
			},
			wantIP:   "10.0.0.5",
			wantPort: 8080,
		},
		{
			name: "no address",
			entry: &zeroconf.ServiceEntry{
				HostName: "pi.local.",
				Port:     8080,
			},
			wantNil: true,
		},
		{
			name: "no port",
			entry: &zeroconf.ServiceEntry{
				HostName: "pi.local.",
				AddrIPv4: []net.IP{net.ParseIP("10.0.0.5")},
			},
			wantNil: true,
		},
		{
			name:    "nil entry",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bridge := parseServiceEntry(tt.entry)
			if tt.wantNil {
				if bridge != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", bridge)
				}
				return
			}
			if bridge == nil {
				t.Fatal("parseServiceEntry() = nil")
			}
			if bridge.IP != tt.wantIP || bridge.Port != tt.wantPort {
				t.Errorf("bridge = %s:%d, want %s:%d", bridge.IP, bridge.Port, tt.wantIP, tt.wantPort)
			}
			if bridge.Instance != tt.entry.Instance || bridge.Hostname != tt.entry.HostName {
				t.Errorf("bridge = %+v", bridge)
			}
			if time.Since(bridge.DiscoveredAt) > time.Second {
				t.Errorf("DiscoveredAt is not recent: %v", bridge.DiscoveredAt)
			}
		})
	}
}

func TestParseServiceEntryMetadata(t *testing.T) {
	bridge := parseServiceEntry(&zeroconf.ServiceEntry{
		HostName: "pi.local.",
		Port:     8080,
		AddrIPv4: []net.IP{net.ParseIP("192.168.1.20")},
		Text:     []string{"version=v0.3.0", "source=tcp://10.0.0.9:8899", "debug", "=orphan"},
	})
	if bridge == nil {
		t.Fatal("parseServiceEntry() = nil")
	}

	want := map[string]string{
		"version": "v0.3.0",
		"source":  "tcp://10.0.0.9:8899",
		"debug":   "",
	}
	if !reflect.DeepEqual(bridge.Metadata, want) {
		t.Errorf("Metadata = %v, want %v", bridge.Metadata, want)
	}
}

func TestTXTRecords(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]string
		want []string
	}{
		{
			name: "sorted by key",
			meta: map[string]string{"ws": "/ws", "version": "dev", "source": "file"},
			want: []string{"source=file", "version=dev", "ws=/ws"},
		},
		{
			name: "bare key",
			meta: map[string]string{"debug": ""},
			want: []string{"debug"},
		},
		{
			name: "empty",
			meta: nil,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TXTRecords(tt.meta); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TXTRecords() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTXTRecordsRoundTrip(t *testing.T) {
	meta := map[string]string{"version": "v1", "ws": "/ws"}
	bridge := parseServiceEntry(&zeroconf.ServiceEntry{
		Port:     80,
		AddrIPv4: []net.IP{net.ParseIP("127.0.0.1")},
		Text:     TXTRecords(meta),
	})
	if !reflect.DeepEqual(bridge.Metadata, meta) {
		t.Errorf("Metadata = %v, want %v", bridge.Metadata, meta)
	}
}

func TestAdvertiseRejectsBadPort(t *testing.T) {
	for _, port := range []int{0, -1, 70000} {
		if _, err := Advertise(context.Background(), "x", port, nil); err == nil {
			t.Errorf("Advertise(port=%d) succeeded, want error", port)
		}
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()
	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
}
