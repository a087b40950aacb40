package ratelimit

import (
	"net/http"
	"testing"
)

func TestClientIdentifier_Precedence(t *testing.T) {
	cases := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "forwarded-for wins over everything",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7", "X-Real-IP": "10.0.0.1"},
			remoteAddr: "192.0.2.1:443",
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded chain keeps first hop",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 70.41.3.18, 150.172.238.178"},
			remoteAddr: "192.0.2.1:443",
			want:       "203.0.113.7",
		},
		{
			name:       "real-ip when no forwarded-for",
			headers:    map[string]string{"X-Real-IP": "10.0.0.1"},
			remoteAddr: "192.0.2.1:443",
			want:       "10.0.0.1",
		},
		{
			name:       "cloudflare header",
			headers:    map[string]string{"CF-Connecting-IP": "198.51.100.9"},
			remoteAddr: "192.0.2.1:443",
			want:       "198.51.100.9",
		},
		{
			name:       "akamai header",
			headers:    map[string]string{"True-Client-IP": "198.51.100.10"},
			remoteAddr: "192.0.2.1:443",
			want:       "198.51.100.10",
		},
		{
			name:       "remote addr host when no headers",
			remoteAddr: "192.0.2.1:53720",
			want:       "192.0.2.1",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.0.2.1",
			want:       "192.0.2.1",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
		{
			name:       "placeholder header falls through to remote addr",
			headers:    map[string]string{"X-Forwarded-For": "unknown"},
			remoteAddr: "192.0.2.1:443",
			want:       "192.0.2.1",
		},
		{
			name:       "whitespace header falls through",
			headers:    map[string]string{"X-Real-IP": "   "},
			remoteAddr: "192.0.2.1:443",
			want:       "192.0.2.1",
		},
		{
			name: "nothing usable degrades to shared bucket",
			want: IdentityUnknown,
		},
		{
			name:       "unix socket placeholder degrades",
			remoteAddr: "unix",
			want:       IdentityUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tc.headers {
				h.Set(k, v)
			}
			if got := ClientIdentifier(h, tc.remoteAddr); got != tc.want {
				t.Fatalf("ClientIdentifier = %q; want %q", got, tc.want)
			}
		})
	}
}
