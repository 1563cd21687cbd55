package mw

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/casaline/edge/internal/netx"
)

// Identity scopes a rate-limit counter: an authenticated subject when the
// request carries a valid token, otherwise the client IP.
type Identity struct {
	Kind  string // "user" | "ip"
	Value string
}

// Key is the limiter identifier for this identity.
func (id Identity) Key() string { return id.Kind + ":" + id.Value }

// IdentityResolver extracts the rate-limit identity of a request. Token
// validation here only scopes counters; it is not authentication — an
// invalid or absent token degrades to IP identity rather than rejecting.
type IdentityResolver struct {
	IP IPResolver
	// JWTSecret verifies HS256 bearer tokens; empty disables subject
	// extraction entirely.
	JWTSecret []byte
}

func (r IdentityResolver) Identify(req *http.Request) Identity {
	if sub, ok := r.subject(req); ok {
		return Identity{Kind: "user", Value: sub}
	}
	return Identity{Kind: "ip", Value: r.IP.ClientIP(req)}
}

func (r IdentityResolver) subject(req *http.Request) (string, bool) {
	if len(r.JWTSecret) == 0 {
		return "", false
	}
	authz := req.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))

	var claims jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return r.JWTSecret, nil
	})
	if err != nil || !tok.Valid || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

// IPResolver determines the client IP, honoring forwarded headers only
// when the peer is a trusted proxy.
type IPResolver struct {
	Trusted *netx.CIDRSet
}

func (r IPResolver) ClientIP(req *http.Request) string {
	remoteIP := parseRemoteIP(req.RemoteAddr)
	if remoteIP != nil && r.Trusted != nil && r.Trusted.Contains(remoteIP) {
		if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
			// left-most entry is the original client
			first, _, _ := strings.Cut(xff, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
		if xrip := net.ParseIP(strings.TrimSpace(req.Header.Get("X-Real-Ip"))); xrip != nil {
			return xrip.String()
		}
	}
	if remoteIP != nil {
		return remoteIP.String()
	}
	return req.RemoteAddr
}

func parseRemoteIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return net.ParseIP(remoteAddr)
	}
	return net.ParseIP(host)
}
