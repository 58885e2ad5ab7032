package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// DefaultKey is used when no client address can be determined.
const DefaultKey = "127.0.0.1"

// ClientIPResolver extracts the client address used as a rate limit key.
type ClientIPResolver struct {
	// TrustedHops is the number of trusted reverse proxies between the client
	// and this server. 0 ignores X-Forwarded-For, 1 takes the rightmost entry,
	// 2 the second from the end, and so on.
	TrustedHops int
}

// ClientIP returns the client address for r. Forwarded headers are honored
// only when TrustedHops > 0 and the direct peer is a private or loopback
// address. Anything unparsable falls back to DefaultKey.
func (c ClientIPResolver) ClientIP(r *http.Request) string {
	peer := remoteIP(r.RemoteAddr)
	if peer == nil {
		return DefaultKey
	}

	if c.TrustedHops <= 0 || !(peer.IsPrivate() || peer.IsLoopback()) {
		return peer.String()
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		idx := len(parts) - c.TrustedHops
		if idx < 0 {
			// fewer entries than proxies: misconfigured or spoofed, use the peer
			return peer.String()
		}
		if ip := net.ParseIP(strings.TrimSpace(parts[idx])); ip != nil {
			return ip.String()
		}
		return peer.String()
	}

	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return peer.String()
}

// KeyFunc adapts the resolver to the middleware key signature. Requests keyed
// by address are never treated as authenticated.
func (c ClientIPResolver) KeyFunc() KeyFunc {
	return func(r *http.Request) (string, bool) {
		return c.ClientIP(r), false
	}
}

func remoteIP(remoteAddr string) net.IP {
	if remoteAddr == "" {
		return nil
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return net.ParseIP(host)
}
