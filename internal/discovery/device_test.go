package discovery

import "testing"

func TestBridgeURLs(t *testing.T) {
	tests := []struct {
		name    string
		bridge  *Bridge
		wantURL string
		wantWS  string
	}{
		{
			name:    "IPv4 default ws path",
			bridge:  &Bridge{IP: "192.168.1.20", Port: 8080},
			wantURL: "http://192.168.1.20:8080",
			wantWS:  "ws://192.168.1.20:8080/ws",
		},
		{
			name:    "IPv6 is bracketed",
			bridge:  &Bridge{IP: "fe80::1", Port: 80},
			wantURL: "http://[fe80::1]:80",
			wantWS:  "ws://[fe80::1]:80/ws",
		},
		{
			name: "ws path from TXT",
			bridge: &Bridge{
				IP:       "10.0.0.5",
				Port:     9000,
				Metadata: map[string]string{"ws": "/stream"},
			},
			wantURL: "http://10.0.0.5:9000",
			wantWS:  "ws://10.0.0.5:9000/stream",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.bridge.BaseURL(); got != tt.wantURL {
				t.Errorf("BaseURL() = %v, want %v", got, tt.wantURL)
			}
			if got := tt.bridge.WebsocketURL(); got != tt.wantWS {
				t.Errorf("WebsocketURL() = %v, want %v", got, tt.wantWS)
			}
		})
	}
}

func TestBridgeString(t *testing.T) {
	b := &Bridge{Instance: "aqualogic", Hostname: "pi.local.", IP: "192.168.1.20", Port: 8080}
	want := "AquaLogic bridge aqualogic (pi.local.) at 192.168.1.20:8080"
	if b.String() != want {
		t.Errorf("String() = %v, want %v", b.String(), want)
	}
}

func TestGetMetadata(t *testing.T) {
	var b Bridge
	if got := b.GetMetadata("version"); got != "" {
		t.Errorf("GetMetadata() on nil map = %q", got)
	}
	b.Metadata = map[string]string{"version": "v1"}
	if got := b.GetMetadata("version"); got != "v1" {
		t.Errorf("GetMetadata() = %q", got)
	}
}
