package util

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller IP for rate-limit keys. The X-Forwarded-For
// header is only honored when trustProxy is set; otherwise the direct peer
// address wins, so clients cannot spoof their way past per-IP limits.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
			first := strings.TrimSpace(strings.Split(fwd, ",")[0])
			if ip := net.ParseIP(first); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
