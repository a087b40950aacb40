package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// IdentityUnknown is the sentinel identifier used when no client signal is
// available. Requests carrying it share one rate-limit bucket; precision is
// deliberately sacrificed rather than failing the request.
const IdentityUnknown = "unknown"

// identityHeaders is the precedence order for client-address sniffing.
// X-Forwarded-For may carry a comma-separated chain; only the first (client)
// entry counts.
var identityHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"CF-Connecting-IP",
	"True-Client-IP",
}

// ClientIdentifier derives a best-effort caller identity from request
// metadata. It is a pure function of the header set and remote address, so it
// can be tested without a network layer.
func ClientIdentifier(h http.Header, remoteAddr string) string {
	for _, name := range identityHeaders {
		v := h.Get(name)
		if v == "" {
			continue
		}
		// First hop of a forwarding chain is the original client.
		if i := strings.IndexByte(v, ','); i >= 0 {
			v = v[:i]
		}
		if id := normalizeIdentity(v); id != "" {
			return id
		}
	}

	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		if id := normalizeIdentity(host); id != "" {
			return id
		}
	} else if id := normalizeIdentity(remoteAddr); id != "" {
		return id
	}

	log.Warn().Msg("no client identity signal, rate limiting degraded to shared bucket")
	return IdentityUnknown
}

// normalizeIdentity trims a candidate value and rejects placeholders some
// proxies emit instead of omitting the header.
func normalizeIdentity(v string) string {
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "", "unknown", "unix", "-":
		return ""
	}
	return v
}
