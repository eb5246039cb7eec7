// Package discovery finds and advertises stockbarcode services over mDNS.
//
// Scanner bridges advertise "_stockbarcode-bridge._tcp" and backends (the
// demo backend, or a proxy in front of a real one) advertise
// "_stockbarcode-backend._tcp". TXT records carry the websocket path and a
// tls flag so clients can build the URL to dial.
//
// # Usage Example
//
//	services, err := discovery.NewScanner().Browse(ctx, discovery.KindBridge)
//	if err != nil {
//	    return err
//	}
//	for _, svc := range services {
//	    fmt.Println(svc.Instance, svc.URL())
//	}
//
// Advertising:
//
//	ad, err := discovery.Advertise(discovery.KindBridge, "dock-3", 8765,
//	    map[string]string{"path": "/ws/session"})
//	defer ad.Stop()
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Clients and services must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
