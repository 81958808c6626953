package otphttp

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIPFunc determines the client IP used for rate limiting.
//
// Returning an empty string means "unknown" and causes rate limiting to fail open.
type ClientIPFunc func(r *http.Request) string

// DefaultClientIP uses RemoteAddr only when it is a public address, so a
// reverse proxy in front of the process is never rate-limited as one client.
func DefaultClientIP() ClientIPFunc {
	return func(r *http.Request) string {
		return publicOrEmpty(remoteIP(r))
	}
}

// ClientIPFromForwardedHeaders trusts CF-Connecting-IP and X-Forwarded-For
// only when the immediate peer is in trustedProxies.
func ClientIPFromForwardedHeaders(trustedProxies []netip.Prefix) ClientIPFunc {
	return func(r *http.Request) string {
		peer, err := netip.ParseAddr(remoteIP(r))
		if err != nil {
			return ""
		}
		if peerTrusted(peer, trustedProxies) {
			if ip := publicOrEmpty(forwardedClient(r)); ip != "" {
				return ip
			}
		}
		return publicOrEmpty(peer.String())
	}
}

// forwardedClient extracts the claimed client address from proxy headers.
// CF-Connecting-IP wins over X-Forwarded-For, whose left-most entry is the
// original client.
func forwardedClient(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); v != "" {
		return v
	}
	v := r.Header.Get("X-Forwarded-For")
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

func peerTrusted(peer netip.Addr, proxies []netip.Prefix) bool {
	for _, p := range proxies {
		if p.Contains(peer) {
			return true
		}
	}
	return false
}

func remoteIP(r *http.Request) string {
	if r == nil || r.RemoteAddr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// publicOrEmpty normalizes s to a public unicast address, or "" when s is
// unparseable, private, loopback, link-local, multicast, or unspecified.
func publicOrEmpty(s string) string {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return ""
	}
	switch {
	case a.IsLoopback(), a.IsPrivate(), a.IsUnspecified():
		return ""
	case a.IsLinkLocalUnicast(), a.IsLinkLocalMulticast(), a.IsMulticast():
		return ""
	}
	return a.String()
}
