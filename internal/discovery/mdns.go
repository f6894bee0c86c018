package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/aqualogic/internal/logging"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type announced by the state API
	ServiceType = "_aqualogic._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for bridge discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultInstance is the instance name used when none is configured
	DefaultInstance = "aqualogic"
)

// Advertisement is a live mDNS registration
type Advertisement struct {
	server *zeroconf.Server
	once   sync.Once
}

// Advertise announces the state API on port until ctx is cancelled or
// Shutdown is called. meta becomes the TXT record.
func Advertise(ctx context.Context, instance string, port int, meta map[string]string) (*Advertisement, error) {
	if instance == "" {
		instance = DefaultInstance
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}

	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, TXTRecords(meta), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logging.Info("Advertising state API over mDNS",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
	)

	a := &Advertisement{server: server}
	context.AfterFunc(ctx, a.Shutdown)
	return a, nil
}

// Shutdown withdraws the announcement. Safe to call more than once.
func (a *Advertisement) Shutdown() {
	a.once.Do(func() {
		a.server.Shutdown()
		logging.Debug("mDNS advertisement withdrawn")
	})
}

// TXTRecords renders meta as sorted key=value strings. Empty values produce
// a bare key.
func TXTRecords(meta map[string]string) []string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	txt := make([]string, 0, len(keys))
	for _, k := range keys {
		if meta[k] == "" {
			txt = append(txt, k)
			continue
		}
		txt = append(txt, k+"="+meta[k])
	}
	return txt
}

// Scanner finds bridges on the local network
type Scanner struct {
	// Timeout is how long to listen for announcements
	Timeout time.Duration
}

// NewScanner creates a scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan collects every bridge announced before the timeout or ctx ends
func (s *Scanner) Scan(ctx context.Context) ([]*Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	var (
		mu      sync.Mutex
		bridges []*Bridge
		seen    = make(map[string]bool)
	)
	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for entry := range entries {
			bridge := parseServiceEntry(entry)
			if bridge == nil {
				continue
			}
			mu.Lock()
			if !seen[bridge.Instance] {
				seen[bridge.Instance] = true
				bridges = append(bridges, bridge)
			}
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	out := make([]*Bridge, len(bridges))
	copy(out, bridges)
	return out, nil
}

// parseServiceEntry converts a zeroconf entry to a Bridge. It returns nil
// for entries with no usable address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Bridge {
	if entry == nil || entry.Port == 0 {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	metadata := make(map[string]string, len(entry.Text))
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		if key != "" {
			metadata[key] = value
		}
	}

	return &Bridge{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
