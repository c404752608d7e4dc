package httputil

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		trustProxy bool
		expected   string
	}{
		{
			name:       "remote addr IPv4",
			remoteAddr: "192.0.2.55:54321",
			expected:   "192.0.2.55",
		},
		{
			name:       "remote addr IPv6",
			remoteAddr: "[2001:db8::5]:8443",
			expected:   "2001:db8::5",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.0.2.56",
			expected:   "192.0.2.56",
		},
		{
			name:       "forwarded headers ignored without trust",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5", "X-Real-IP": "203.0.113.6"},
			expected:   "10.0.0.1",
		},
		{
			name:       "first forwarded address",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "  198.51.100.7 , 203.0.113.9"},
			trustProxy: true,
			expected:   "198.51.100.7",
		},
		{
			name:       "forwarded IPv6",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "2001:db8::1, 203.0.113.9"},
			trustProxy: true,
			expected:   "2001:db8::1",
		},
		{
			name:       "real IP when no forwarded-for",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Real-IP": "[2001:db8::2]"},
			trustProxy: true,
			expected:   "2001:db8::2",
		},
		{
			name:       "garbage headers fall back to remote addr",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip", "X-Real-IP": "also bad"},
			trustProxy: true,
			expected:   "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, ClientIP(r, tt.trustProxy))
		})
	}
}
