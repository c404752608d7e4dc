package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the address of the caller. Forwarding headers are only
// honored when trustProxy is set; X-Forwarded-For wins over X-Real-IP and
// its first entry is the original client.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := normalizeIP(first); ip != "" {
				return ip
			}
		}
		if ip := normalizeIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// normalizeIP strips whitespace and brackets and drops values that are not
// IP addresses.
func normalizeIP(value string) string {
	value = strings.Trim(strings.TrimSpace(value), "[]")
	if ip := net.ParseIP(value); ip != nil {
		return ip.String()
	}
	return ""
}
