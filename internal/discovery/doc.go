// Package discovery announces and finds aqualogic state APIs over mDNS.
//
// A bridge running with api.advertise enabled registers itself as an
// "_aqualogic._tcp" service. The TXT record carries the bridge version,
// the byte source it decodes and the websocket path:
//
//	version=v0.3.0
//	source=tcp://192.168.1.50:8899
//	ws=/ws
//
// # Usage Example
//
//	ad, err := discovery.Advertise(ctx, "aqualogic-backyard", 8080, meta)
//	if err != nil {
//	    return err
//	}
//	defer ad.Shutdown()
//
//	bridges, err := discovery.NewScanner().Scan(ctx)
//	for _, b := range bridges {
//	    fmt.Println(b.Instance, b.BaseURL())
//	}
package discovery
