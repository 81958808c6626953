package otphttp

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func reqFrom(remoteAddr string, hdr map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = remoteAddr
	for k, v := range hdr {
		r.Header.Set(k, v)
	}
	return r
}

func TestDefaultClientIP(t *testing.T) {
	fn := DefaultClientIP()

	require.Equal(t, "203.0.113.10", fn(reqFrom("203.0.113.10:1234", nil)))
	// Private, loopback, and unparseable peers yield "" so limiting fails open.
	require.Equal(t, "", fn(reqFrom("10.0.0.1:1234", nil)))
	require.Equal(t, "", fn(reqFrom("127.0.0.1:1234", nil)))
	require.Equal(t, "", fn(reqFrom("not-an-ip", nil)))
	// Forwarded headers are ignored without a trusted proxy setup.
	require.Equal(t, "", fn(reqFrom("10.0.0.1:1234", map[string]string{"X-Forwarded-For": "203.0.113.99"})))
}

func TestClientIPFromForwardedHeaders(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	fn := ClientIPFromForwardedHeaders(trusted)

	// Trusted peer: forwarded headers win, left-most XFF entry is the client.
	require.Equal(t, "203.0.113.99", fn(reqFrom("10.0.0.1:1234", map[string]string{
		"X-Forwarded-For": "203.0.113.99, 10.0.0.1",
	})))
	require.Equal(t, "203.0.113.50", fn(reqFrom("10.0.0.1:1234", map[string]string{
		"CF-Connecting-IP": "203.0.113.50",
		"X-Forwarded-For":  "203.0.113.99",
	})))
	// Private forwarded values are never accepted as the client.
	require.Equal(t, "", fn(reqFrom("10.0.0.1:1234", map[string]string{
		"X-Forwarded-For": "192.168.1.5",
	})))

	// Untrusted peer: headers ignored, public peer address used directly.
	require.Equal(t, "203.0.113.10", fn(reqFrom("203.0.113.10:1234", map[string]string{
		"X-Forwarded-For": "203.0.113.99",
	})))
}
